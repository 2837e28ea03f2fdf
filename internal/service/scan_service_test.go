package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/PPS-H/Invoice-manager-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestScanService(
	t *testing.T,
	store *MockScanTaskStore,
	dispatcher *MockDispatcher,
	factory *MockJobFactory,
) ScanService {
	t.Helper()

	svc, err := NewScanService(store, dispatcher, factory, slog.Default())
	require.NoError(t, err)
	return svc
}

func TestNewScanService(t *testing.T) {
	store := &MockScanTaskStore{}
	dispatcher := &MockDispatcher{}
	factory := &MockJobFactory{}
	logger := slog.Default()

	tests := []struct {
		name        string
		store       scanServiceStore
		dispatcher  JobDispatcher
		factory     JobFactory
		logger      *slog.Logger
		expectError string
	}{
		{"nil store", nil, dispatcher, factory, logger, "store"},
		{"nil dispatcher", store, nil, factory, logger, "dispatcher"},
		{"nil factory", store, dispatcher, nil, logger, "factory"},
		{"nil logger", store, dispatcher, factory, nil, "logger"},
		{"all dependencies provided", store, dispatcher, factory, logger, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewScanService(tt.store, tt.dispatcher, tt.factory, tt.logger)
			if tt.expectError != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestSubmit_Started(t *testing.T) {
	ctx := context.Background()
	ownerID := uuid.New()
	targetID := uuid.New()
	job := &stubJob{id: "job-1"}

	store := &MockScanTaskStore{}
	dispatcher := &MockDispatcher{}
	factory := &MockJobFactory{}

	store.On("FindActive", ctx, ownerID, targetID).Return(nil, nil)
	factory.On("NewScanJob", ownerID, targetID, domain.ScanKindInbox, 3).Return(job, nil)
	dispatcher.On("Enqueue", job).Return("job-1", nil)
	store.On("CreateIfAbsent", ctx, mock.MatchedBy(func(task *domain.ScanTask) bool {
		return task.TaskID == "job-1" &&
			task.OwnerID == ownerID &&
			task.TargetID == targetID &&
			task.Status == domain.TaskStatusPending &&
			task.EstimatedDuration == 6
	})).Return(nil, true, nil)

	svc := newTestScanService(t, store, dispatcher, factory)

	result, err := svc.Submit(ctx, ownerID, targetID, domain.ScanKindInbox, 3)
	require.NoError(t, err)
	assert.Equal(t, SubmitStatusStarted, result.Status)
	assert.Equal(t, "job-1", result.TaskID)
	assert.Equal(t, 6, result.EstimatedDuration)

	store.AssertExpectations(t)
	dispatcher.AssertExpectations(t)
	factory.AssertExpectations(t)
	dispatcher.AssertNotCalled(t, "Revoke", mock.Anything)
}

func TestSubmit_AlreadyRunningFastPath(t *testing.T) {
	ctx := context.Background()
	ownerID := uuid.New()
	targetID := uuid.New()

	active, err := domain.NewScanTask("job-live", ownerID, targetID,
		domain.ScanKindInbox, 3, 6)
	require.NoError(t, err)

	store := &MockScanTaskStore{}
	dispatcher := &MockDispatcher{}
	factory := &MockJobFactory{}

	store.On("FindActive", ctx, ownerID, targetID).Return(active, nil)

	svc := newTestScanService(t, store, dispatcher, factory)

	result, err := svc.Submit(ctx, ownerID, targetID, domain.ScanKindInbox, 3)
	require.NoError(t, err)
	assert.Equal(t, SubmitStatusAlreadyRunning, result.Status)
	assert.Equal(t, "job-live", result.TaskID)
	assert.Equal(t, 6, result.EstimatedDuration)

	// No job was dispatched for the duplicate submission.
	dispatcher.AssertNotCalled(t, "Enqueue", mock.Anything)
	factory.AssertNotCalled(t, "NewScanJob",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_LostRaceReturnsWinner(t *testing.T) {
	ctx := context.Background()
	ownerID := uuid.New()
	targetID := uuid.New()
	job := &stubJob{id: "job-loser"}

	winner, err := domain.NewScanTask("job-winner", ownerID, targetID,
		domain.ScanKindInbox, 3, 6)
	require.NoError(t, err)

	store := &MockScanTaskStore{}
	dispatcher := &MockDispatcher{}
	factory := &MockJobFactory{}

	store.On("FindActive", ctx, ownerID, targetID).Return(nil, nil)
	factory.On("NewScanJob", ownerID, targetID, domain.ScanKindInbox, 3).Return(job, nil)
	store.On("CreateIfAbsent", ctx, mock.Anything).Return(winner, false, nil)

	svc := newTestScanService(t, store, dispatcher, factory)

	result, err := svc.Submit(ctx, ownerID, targetID, domain.ScanKindInbox, 3)
	require.NoError(t, err)
	assert.Equal(t, SubmitStatusAlreadyRunning, result.Status)
	assert.Equal(t, "job-winner", result.TaskID)

	// The losing submission never reaches the runtime.
	dispatcher.AssertNotCalled(t, "Enqueue", mock.Anything)
	dispatcher.AssertNotCalled(t, "Revoke", mock.Anything)
}

func TestSubmit_PersistsBeforeDispatch(t *testing.T) {
	ctx := context.Background()
	ownerID := uuid.New()
	targetID := uuid.New()
	job := &stubJob{id: "job-1"}

	store := &MockScanTaskStore{}
	dispatcher := &MockDispatcher{}
	factory := &MockJobFactory{}

	// A fast job can complete before control returns from Enqueue. The row
	// has to be durable by then, or its completion report matches nothing
	// and the task sits in PENDING holding the admission slot.
	var calls []string
	store.On("FindActive", ctx, ownerID, targetID).Return(nil, nil)
	factory.On("NewScanJob", ownerID, targetID, domain.ScanKindInbox, 1).Return(job, nil)
	store.On("CreateIfAbsent", ctx, mock.Anything).
		Run(func(mock.Arguments) { calls = append(calls, "CreateIfAbsent") }).
		Return(nil, true, nil)
	dispatcher.On("Enqueue", job).
		Run(func(mock.Arguments) { calls = append(calls, "Enqueue") }).
		Return("job-1", nil)

	svc := newTestScanService(t, store, dispatcher, factory)

	result, err := svc.Submit(ctx, ownerID, targetID, domain.ScanKindInbox, 1)
	require.NoError(t, err)
	assert.Equal(t, SubmitStatusStarted, result.Status)
	assert.Equal(t, []string{"CreateIfAbsent", "Enqueue"}, calls)
}

func TestSubmit_DispatchFailureLeavesNothingDurable(t *testing.T) {
	ctx := context.Background()
	ownerID := uuid.New()
	targetID := uuid.New()
	job := &stubJob{id: "job-1"}

	store := &MockScanTaskStore{}
	dispatcher := &MockDispatcher{}
	factory := &MockJobFactory{}

	store.On("FindActive", ctx, ownerID, targetID).Return(nil, nil)
	factory.On("NewScanJob", ownerID, targetID, domain.ScanKindInbox, 3).Return(job, nil)
	store.On("CreateIfAbsent", ctx, mock.Anything).Return(nil, true, nil)
	dispatcher.On("Enqueue", job).Return("", errors.New("queue full"))
	store.On("Delete", ctx, "job-1").Return(nil)

	svc := newTestScanService(t, store, dispatcher, factory)

	result, err := svc.Submit(ctx, ownerID, targetID, domain.ScanKindInbox, 3)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrDispatchFailed)

	// The freshly created row is removed so the admission slot frees up.
	store.AssertCalled(t, "Delete", ctx, "job-1")
}

func TestSubmit_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	ownerID := uuid.New()
	targetID := uuid.New()

	svc := newTestScanService(t, &MockScanTaskStore{}, &MockDispatcher{}, &MockJobFactory{})

	tests := []struct {
		name     string
		ownerID  uuid.UUID
		targetID uuid.UUID
		kind     domain.ScanKind
		window   int
		wantErr  error
	}{
		{"nil owner", uuid.Nil, targetID, domain.ScanKindInbox, 3, domain.ErrEmptyOwnerID},
		{"nil target", ownerID, uuid.Nil, domain.ScanKindInbox, 3, domain.ErrEmptyTargetID},
		{"unknown kind", ownerID, targetID, "everything", 3, domain.ErrInvalidScanKind},
		{"window too small", ownerID, targetID, domain.ScanKindInbox, 0, domain.ErrInvalidScanWindow},
		{"window too large", ownerID, targetID, domain.ScanKindInbox, 13, domain.ErrInvalidScanWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Submit(ctx, tt.ownerID, tt.targetID, tt.kind, tt.window)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSubmitBulk(t *testing.T) {
	ctx := context.Background()
	ownerID := uuid.New()
	targets := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	store := &MockScanTaskStore{}
	dispatcher := &MockDispatcher{}
	factory := &MockJobFactory{}

	for _, targetID := range targets {
		job := &stubJob{id: uuid.New().String()}
		store.On("FindActive", ctx, ownerID, targetID).Return(nil, nil)
		factory.On("NewScanJob", ownerID, targetID, domain.ScanKindInbox, 2).Return(job, nil)
		dispatcher.On("Enqueue", job).Return(job.id, nil)
		store.On("CreateIfAbsent", ctx, mock.MatchedBy(func(task *domain.ScanTask) bool {
			return task.TargetID == targetID
		})).Return(nil, true, nil)
	}

	svc := newTestScanService(t, store, dispatcher, factory)

	result, err := svc.SubmitBulk(ctx, ownerID, targets, domain.ScanKindInbox, 2)
	require.NoError(t, err)

	assert.NotEmpty(t, result.BatchID)
	assert.Equal(t, 3, result.AccountCount)
	assert.Len(t, result.Tasks, 3)
	// Per-account estimate is 4 minutes; the batch aggregates across accounts.
	assert.Equal(t, 12, result.EstimatedDuration)
}

func TestSubmitBulk_NoTargets(t *testing.T) {
	svc := newTestScanService(t, &MockScanTaskStore{}, &MockDispatcher{}, &MockJobFactory{})

	result, err := svc.SubmitBulk(context.Background(), uuid.New(), nil, domain.ScanKindInbox, 2)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrNoTargets)
}

func TestSubmitBulk_DuplicatesReported(t *testing.T) {
	ctx := context.Background()
	ownerID := uuid.New()
	targetID := uuid.New()

	active, err := domain.NewScanTask("job-live", ownerID, targetID,
		domain.ScanKindInbox, 2, 4)
	require.NoError(t, err)

	store := &MockScanTaskStore{}
	dispatcher := &MockDispatcher{}
	factory := &MockJobFactory{}

	store.On("FindActive", ctx, ownerID, targetID).Return(active, nil)

	svc := newTestScanService(t, store, dispatcher, factory)

	result, err := svc.SubmitBulk(ctx, ownerID, []uuid.UUID{targetID}, domain.ScanKindInbox, 2)
	require.NoError(t, err)
	require.Len(t, result.Tasks, 1)
	assert.Equal(t, SubmitStatusAlreadyRunning, result.Tasks[0].Status)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	ownerID := uuid.New()

	task, err := domain.NewScanTask("job-1", ownerID, uuid.New(),
		domain.ScanKindInbox, 3, 6)
	require.NoError(t, err)

	t.Run("returns own task", func(t *testing.T) {
		store := &MockScanTaskStore{}
		store.On("GetByTaskID", ctx, "job-1").Return(task, nil)

		svc := newTestScanService(t, store, &MockDispatcher{}, &MockJobFactory{})

		got, err := svc.Status(ctx, ownerID, "job-1")
		require.NoError(t, err)
		assert.Equal(t, "job-1", got.TaskID)
		assert.Equal(t, 6, got.EstimatedDuration)
	})

	t.Run("unknown task", func(t *testing.T) {
		store := &MockScanTaskStore{}
		store.On("GetByTaskID", ctx, "missing").Return(nil, errors.New("no rows"))

		svc := newTestScanService(t, store, &MockDispatcher{}, &MockJobFactory{})

		got, err := svc.Status(ctx, ownerID, "missing")
		assert.Nil(t, got)
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("other owner's task is not found", func(t *testing.T) {
		store := &MockScanTaskStore{}
		store.On("GetByTaskID", ctx, "job-1").Return(task, nil)

		svc := newTestScanService(t, store, &MockDispatcher{}, &MockJobFactory{})

		got, err := svc.Status(ctx, uuid.New(), "job-1")
		assert.Nil(t, got)
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("repairs invalid stored estimate", func(t *testing.T) {
		broken, err := domain.NewScanTask("job-2", ownerID, uuid.New(),
			domain.ScanKindGroups, 1, 7)
		require.NoError(t, err)
		broken.EstimatedDuration = 0

		store := &MockScanTaskStore{}
		store.On("GetByTaskID", ctx, "job-2").Return(broken, nil)

		svc := newTestScanService(t, store, &MockDispatcher{}, &MockJobFactory{})

		got, err := svc.Status(ctx, ownerID, "job-2")
		require.NoError(t, err)
		assert.Equal(t, 7, got.EstimatedDuration)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	ownerID := uuid.New()

	t.Run("cancels active task and revokes job", func(t *testing.T) {
		task, err := domain.NewScanTask("job-1", ownerID, uuid.New(),
			domain.ScanKindInbox, 3, 6)
		require.NoError(t, err)

		cancelled := *task
		cancelled.Status = domain.TaskStatusCancelled
		cancelled.Message = "Scan cancelled"

		store := &MockScanTaskStore{}
		dispatcher := &MockDispatcher{}

		store.On("GetByTaskID", ctx, "job-1").Return(task, nil).Once()
		store.On("MarkCancelled", ctx, "job-1").Return(nil)
		dispatcher.On("Revoke", "job-1").Return()
		store.On("GetByTaskID", ctx, "job-1").Return(&cancelled, nil).Once()

		svc := newTestScanService(t, store, dispatcher, &MockJobFactory{})

		got, err := svc.Cancel(ctx, ownerID, "job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCancelled, got.Status)
		dispatcher.AssertCalled(t, "Revoke", "job-1")
		store.AssertExpectations(t)
	})

	t.Run("cancelling terminal task reports its actual state", func(t *testing.T) {
		task, err := domain.NewScanTask("job-1", ownerID, uuid.New(),
			domain.ScanKindInbox, 3, 6)
		require.NoError(t, err)
		task.Status = domain.TaskStatusDone
		task.Message = "Scan completed successfully"

		store := &MockScanTaskStore{}
		dispatcher := &MockDispatcher{}

		// MarkCancelled is a guarded no-op here; the re-read still sees DONE.
		store.On("GetByTaskID", ctx, "job-1").Return(task, nil)
		store.On("MarkCancelled", ctx, "job-1").Return(nil)

		svc := newTestScanService(t, store, dispatcher, &MockJobFactory{})

		got, err := svc.Cancel(ctx, ownerID, "job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusDone, got.Status)
		dispatcher.AssertNotCalled(t, "Revoke", mock.Anything)
	})

	t.Run("other owner's task is not found", func(t *testing.T) {
		task, err := domain.NewScanTask("job-1", ownerID, uuid.New(),
			domain.ScanKindInbox, 3, 6)
		require.NoError(t, err)

		store := &MockScanTaskStore{}
		store.On("GetByTaskID", ctx, "job-1").Return(task, nil)

		svc := newTestScanService(t, store, &MockDispatcher{}, &MockJobFactory{})

		got, err := svc.Cancel(ctx, uuid.New(), "job-1")
		assert.Nil(t, got)
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})
}

func TestListTasks(t *testing.T) {
	ctx := context.Background()
	ownerID := uuid.New()

	t.Run("applies default limit", func(t *testing.T) {
		store := &MockScanTaskStore{}
		store.On("ListByOwner", ctx, ownerID, 10).Return([]*domain.ScanTask{}, nil)

		svc := newTestScanService(t, store, &MockDispatcher{}, &MockJobFactory{})

		tasks, err := svc.ListTasks(ctx, ownerID, 0)
		require.NoError(t, err)
		assert.Empty(t, tasks)
		store.AssertExpectations(t)
	})

	t.Run("passes explicit limit", func(t *testing.T) {
		task, err := domain.NewScanTask("job-1", ownerID, uuid.New(),
			domain.ScanKindInbox, 3, 6)
		require.NoError(t, err)

		store := &MockScanTaskStore{}
		store.On("ListByOwner", ctx, ownerID, 5).Return([]*domain.ScanTask{task}, nil)

		svc := newTestScanService(t, store, &MockDispatcher{}, &MockJobFactory{})

		tasks, err := svc.ListTasks(ctx, ownerID, 5)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, "job-1", tasks[0].TaskID)
	})
}
