package task

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJob is a trivial Job for queue and runner tests.
type fakeJob struct {
	id      string
	execute func(ctx context.Context, progress ProgressFunc) (json.RawMessage, error)
}

func (j *fakeJob) ID() string   { return j.id }
func (j *fakeJob) Kind() string { return "fake" }

func (j *fakeJob) Execute(ctx context.Context, progress ProgressFunc) (json.RawMessage, error) {
	if j.execute != nil {
		return j.execute(ctx, progress)
	}
	return json.RawMessage(`{}`), nil
}

func TestJobQueueEnqueue(t *testing.T) {
	q := NewJobQueue(2, slog.Default())

	require.NoError(t, q.Enqueue(&fakeJob{id: "a"}))
	require.NoError(t, q.Enqueue(&fakeJob{id: "b"}))

	err := q.Enqueue(&fakeJob{id: "c"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestJobQueueClose(t *testing.T) {
	q := NewJobQueue(2, slog.Default())

	require.NoError(t, q.Enqueue(&fakeJob{id: "a"}))
	q.Close()

	err := q.Enqueue(&fakeJob{id: "b"})
	assert.ErrorIs(t, err, ErrQueueClosed)

	// Close is idempotent.
	q.Close()

	// The queued job is still readable after close.
	job, ok := <-q.GetChannel()
	require.True(t, ok)
	assert.Equal(t, "a", job.ID())

	_, ok = <-q.GetChannel()
	assert.False(t, ok)
}
