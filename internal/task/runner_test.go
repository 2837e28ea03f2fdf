package task

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingReporter captures runtime updates for assertions.
type recordingReporter struct {
	mu      sync.Mutex
	updates []RuntimeUpdate

	staleCount int64
	staleErr   error
}

func (r *recordingReporter) Report(ctx context.Context, update RuntimeUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
	return nil
}

func (r *recordingReporter) FailStale(ctx context.Context, age time.Duration) (int64, error) {
	return r.staleCount, r.staleErr
}

func (r *recordingReporter) snapshot() []RuntimeUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RuntimeUpdate, len(r.updates))
	copy(out, r.updates)
	return out
}

// statesFor returns the reported states for a job, in order.
func (r *recordingReporter) statesFor(jobID string) []RuntimeState {
	var states []RuntimeState
	for _, u := range r.snapshot() {
		if u.JobID == jobID {
			states = append(states, u.State)
		}
	}
	return states
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestRunner(reporter Reporter) *Runner {
	return NewRunner(reporter, RunnerConfig{
		WorkerCount:           2,
		QueueSize:             10,
		StaleJobAge:           time.Hour,
		StaleJobCheckInterval: time.Hour,
	}, slog.Default())
}

func TestRunnerExecutesJob(t *testing.T) {
	reporter := &recordingReporter{}
	runner := newTestRunner(reporter)
	require.NoError(t, runner.Start())
	defer runner.Stop()

	job := &fakeJob{
		id: "job-ok",
		execute: func(ctx context.Context, progress ProgressFunc) (json.RawMessage, error) {
			progress(50, "halfway")
			return json.RawMessage(`{"done":true}`), nil
		},
	}

	jobID, err := runner.Enqueue(job)
	require.NoError(t, err)
	assert.Equal(t, "job-ok", jobID)

	waitFor(t, func() bool {
		states := reporter.statesFor("job-ok")
		return len(states) > 0 && states[len(states)-1] == StateSuccess
	})

	states := reporter.statesFor("job-ok")
	assert.Contains(t, states, StateRunning)

	final := reporter.snapshot()[len(reporter.snapshot())-1]
	assert.Equal(t, StateSuccess, final.State)
	assert.Equal(t, 100, final.Progress)
	assert.JSONEq(t, `{"done":true}`, string(final.Payload))
}

func TestRunnerReportsFailure(t *testing.T) {
	reporter := &recordingReporter{}
	runner := newTestRunner(reporter)
	require.NoError(t, runner.Start())
	defer runner.Stop()

	job := &fakeJob{
		id: "job-bad",
		execute: func(ctx context.Context, progress ProgressFunc) (json.RawMessage, error) {
			return nil, errors.New("mailbox unreachable")
		},
	}

	_, err := runner.Enqueue(job)
	require.NoError(t, err)

	waitFor(t, func() bool {
		states := reporter.statesFor("job-bad")
		return len(states) > 0 && states[len(states)-1] == StateFailure
	})

	updates := reporter.snapshot()
	last := updates[len(updates)-1]
	assert.Equal(t, "mailbox unreachable", last.Err)
}

func TestRunnerRevokeQueuedJob(t *testing.T) {
	reporter := &recordingReporter{}
	runner := newTestRunner(reporter)

	executed := false
	job := &fakeJob{
		id: "job-revoked",
		execute: func(ctx context.Context, progress ProgressFunc) (json.RawMessage, error) {
			executed = true
			return nil, nil
		},
	}

	// Revoke before the workers ever start, so the job is dropped at pickup.
	_, err := runner.Enqueue(job)
	require.NoError(t, err)
	runner.Revoke("job-revoked")

	require.NoError(t, runner.Start())
	defer runner.Stop()

	waitFor(t, func() bool {
		states := reporter.statesFor("job-revoked")
		return len(states) == 1 && states[0] == StateRevoked
	})

	assert.False(t, executed)
}

func TestRunnerRevokeRunningJob(t *testing.T) {
	reporter := &recordingReporter{}
	runner := newTestRunner(reporter)
	require.NoError(t, runner.Start())
	defer runner.Stop()

	started := make(chan struct{})
	job := &fakeJob{
		id: "job-live",
		execute: func(ctx context.Context, progress ProgressFunc) (json.RawMessage, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	_, err := runner.Enqueue(job)
	require.NoError(t, err)

	<-started
	runner.Revoke("job-live")

	waitFor(t, func() bool {
		states := reporter.statesFor("job-live")
		return len(states) > 0 && states[len(states)-1] == StateRevoked
	})

	// Revocation must never surface as FAILURE.
	assert.NotContains(t, reporter.statesFor("job-live"), StateFailure)
}

func TestRunnerRecover(t *testing.T) {
	reporter := &recordingReporter{}
	runner := newTestRunner(reporter)

	jobs := []Job{
		&fakeJob{id: "job-r1"},
		&fakeJob{id: "job-r2"},
	}
	runner.Recover(jobs)

	require.NoError(t, runner.Start())
	defer runner.Stop()

	waitFor(t, func() bool {
		r1 := reporter.statesFor("job-r1")
		r2 := reporter.statesFor("job-r2")
		return len(r1) > 0 && r1[len(r1)-1] == StateSuccess &&
			len(r2) > 0 && r2[len(r2)-1] == StateSuccess
	})
}

func TestRunnerShutdownLeavesInterruptedJobNonTerminal(t *testing.T) {
	reporter := &recordingReporter{}
	runner := newTestRunner(reporter)
	require.NoError(t, runner.Start())

	started := make(chan struct{})
	job := &fakeJob{
		id: "job-interrupted",
		execute: func(ctx context.Context, progress ProgressFunc) (json.RawMessage, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	_, err := runner.Enqueue(job)
	require.NoError(t, err)

	<-started
	runner.Stop()

	// A restart-interrupted job must not be failed terminally: its record
	// stays PENDING or PROGRESS so startup recovery requeues it. Only the
	// RUNNING progress reports may have landed.
	for _, state := range reporter.statesFor("job-interrupted") {
		assert.Equal(t, StateRunning, state)
	}
}

func TestRunnerStopWaitsForInflightJobs(t *testing.T) {
	reporter := &recordingReporter{}
	runner := newTestRunner(reporter)
	require.NoError(t, runner.Start())

	started := make(chan struct{})
	job := &fakeJob{
		id: "job-slow",
		execute: func(ctx context.Context, progress ProgressFunc) (json.RawMessage, error) {
			close(started)
			time.Sleep(50 * time.Millisecond)
			return json.RawMessage(`{}`), nil
		},
	}

	_, err := runner.Enqueue(job)
	require.NoError(t, err)

	<-started
	runner.Stop()

	states := reporter.statesFor("job-slow")
	require.NotEmpty(t, states)
}
