package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/PPS-H/Invoice-manager-backend/internal/domain"
	"github.com/PPS-H/Invoice-manager-backend/internal/store"
	"github.com/PPS-H/Invoice-manager-backend/internal/task"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockScanTaskStore mocks the store.ScanTaskStore interface
type MockScanTaskStore struct {
	mock.Mock
}

func (m *MockScanTaskStore) CreateIfAbsent(
	ctx context.Context,
	t *domain.ScanTask,
) (*domain.ScanTask, bool, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.ScanTask), args.Bool(1), args.Error(2)
}

func (m *MockScanTaskStore) GetByTaskID(
	ctx context.Context,
	taskID string,
) (*domain.ScanTask, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScanTask), args.Error(1)
}

func (m *MockScanTaskStore) FindActive(
	ctx context.Context,
	ownerID, targetID uuid.UUID,
) (*domain.ScanTask, error) {
	args := m.Called(ctx, ownerID, targetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScanTask), args.Error(1)
}

func (m *MockScanTaskStore) ListByOwner(
	ctx context.Context,
	ownerID uuid.UUID,
	limit int,
) ([]*domain.ScanTask, error) {
	args := m.Called(ctx, ownerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ScanTask), args.Error(1)
}

func (m *MockScanTaskStore) ListNonTerminal(ctx context.Context) ([]*domain.ScanTask, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ScanTask), args.Error(1)
}

func (m *MockScanTaskStore) UpdateProgress(
	ctx context.Context,
	taskID string,
	progress int,
	message string,
) error {
	args := m.Called(ctx, taskID, progress, message)
	return args.Error(0)
}

func (m *MockScanTaskStore) MarkDone(
	ctx context.Context,
	taskID string,
	result json.RawMessage,
) error {
	args := m.Called(ctx, taskID, result)
	return args.Error(0)
}

func (m *MockScanTaskStore) MarkFailed(ctx context.Context, taskID string, errorMsg string) error {
	args := m.Called(ctx, taskID, errorMsg)
	return args.Error(0)
}

func (m *MockScanTaskStore) MarkCancelled(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *MockScanTaskStore) FailStaleProgress(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockScanTaskStore) Delete(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *MockScanTaskStore) DeleteTerminalBefore(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockScanTaskStore) WithTx(_ *sql.Tx) store.ScanTaskStore {
	return m
}

// MockDispatcher mocks the JobDispatcher interface
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Enqueue(job task.Job) (string, error) {
	args := m.Called(job)
	return args.String(0), args.Error(1)
}

func (m *MockDispatcher) Revoke(jobID string) {
	m.Called(jobID)
}

// MockJobFactory mocks the JobFactory interface
type MockJobFactory struct {
	mock.Mock
}

func (m *MockJobFactory) NewScanJob(
	ownerID, targetID uuid.UUID,
	kind domain.ScanKind,
	window int,
) (task.Job, error) {
	args := m.Called(ownerID, targetID, kind, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(task.Job), args.Error(1)
}

// stubJob is a minimal Job implementation for dispatch tests
type stubJob struct {
	id string
}

func (j *stubJob) ID() string   { return j.id }
func (j *stubJob) Kind() string { return "email_scan" }

func (j *stubJob) Execute(ctx context.Context, progress task.ProgressFunc) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}
