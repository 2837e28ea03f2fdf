package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RunnerConfig holds configuration for the job runner.
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process jobs.
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory job queue.
	QueueSize int

	// StaleJobAge defines how long a job can sit in the running state
	// without reporting progress before it's considered orphaned and failed.
	StaleJobAge time.Duration

	// StaleJobCheckInterval defines how often to check for stale jobs.
	// If zero, defaults to 5 minutes.
	StaleJobCheckInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:           2,
		QueueSize:             100,
		StaleJobAge:           30 * time.Minute,
		StaleJobCheckInterval: 5 * time.Minute,
	}
}

// Runner is the job queue runtime: a worker pool that executes scan jobs
// asynchronously and reports their lifecycle to a Reporter using the native
// state vocabulary. It supports best-effort revocation of queued and running
// jobs and periodic reaping of jobs orphaned by crashes.
type Runner struct {
	queue      *JobQueue
	reporter   Reporter
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     RunnerConfig
	logger     *slog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
	revoked map[string]struct{}
}

// NewRunner creates a new Runner reporting to the given Reporter.
func NewRunner(reporter Reporter, config RunnerConfig, logger *slog.Logger) *Runner {
	if config.StaleJobCheckInterval == 0 {
		config.StaleJobCheckInterval = 5 * time.Minute
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		queue:      NewJobQueue(config.QueueSize, logger),
		reporter:   reporter,
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger,
		running:    make(map[string]context.CancelFunc),
		revoked:    make(map[string]struct{}),
	}
}

// Enqueue hands a job to the runtime and returns its job ID. It fails fast
// when the queue is full or closed, leaving nothing behind; the caller holds
// the durable record and decides what to do with it on failure.
func (r *Runner) Enqueue(job Job) (string, error) {
	if err := r.queue.Enqueue(job); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job.ID(), nil
}

// Revoke requests best-effort cancellation of a job. A queued job is dropped
// before execution; a running job has its context cancelled. Unknown IDs are
// remembered so a job enqueued-then-revoked in quick succession still stops.
func (r *Runner) Revoke(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cancel, ok := r.running[jobID]; ok {
		cancel()
		return
	}

	r.revoked[jobID] = struct{}{}
}

// Start launches the worker pool and the stale job monitor.
func (r *Runner) Start() error {
	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.staleJobMonitor()

	r.logger.Info("job runner started",
		"worker_count", r.config.WorkerCount,
		"queue_size", r.config.QueueSize)

	return nil
}

// Stop gracefully shuts down the runner, waiting for in-flight jobs.
func (r *Runner) Stop() {
	r.cancelFunc()
	r.queue.Close()
	r.wg.Wait()
}

// Recover requeues jobs interrupted by a previous run. The caller loads the
// non-terminal records and rebuilds the corresponding jobs; progress updates
// are monotonic downstream, so re-running a partially complete scan never
// moves its visible progress backwards.
func (r *Runner) Recover(jobs []Job) {
	r.logger.Info("recovering unfinished jobs", "count", len(jobs))

	for _, job := range jobs {
		if err := r.queue.Enqueue(job); err != nil {
			r.logger.Error("failed to requeue job",
				"job_id", job.ID(),
				"job_kind", job.Kind(),
				"error", err)
		}
	}
}

// worker processes jobs from the queue.
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case job, ok := <-r.queue.GetChannel():
			if !ok {
				r.logger.Debug("job channel closed, stopping worker", "worker_id", id)
				return
			}

			r.processJob(job, id)
		}
	}
}

// processJob handles execution of a single job, reporting its lifecycle in
// the runtime's native vocabulary.
func (r *Runner) processJob(job Job, workerID int) {
	ctx := context.Background()
	logger := r.logger.With(
		"job_id", job.ID(),
		"job_kind", job.Kind(),
		"worker_id", workerID,
	)

	if r.consumeRevocation(job.ID()) {
		logger.Info("skipping revoked job")
		r.report(ctx, RuntimeUpdate{JobID: job.ID(), State: StateRevoked})
		return
	}

	jobCtx, cancel := context.WithCancel(r.ctx)
	r.trackRunning(job.ID(), cancel)
	defer r.untrackRunning(job.ID())
	defer cancel()

	progress := func(pct int, message string) {
		r.report(ctx, RuntimeUpdate{
			JobID:    job.ID(),
			State:    StateRunning,
			Progress: pct,
			Message:  message,
		})
	}

	logger.Info("processing job")

	payload, err := job.Execute(jobCtx, progress)

	switch {
	case jobCtx.Err() != nil && r.ctx.Err() == nil:
		// Cancelled individually, not by shutdown.
		logger.Info("job revoked during execution")
		r.report(ctx, RuntimeUpdate{JobID: job.ID(), State: StateRevoked})

	case r.ctx.Err() != nil && err != nil:
		// Shutdown interrupted the job. No terminal report: the record
		// stays non-terminal so startup recovery requeues it.
		logger.Info("job interrupted by shutdown, leaving for recovery")

	case err != nil:
		logger.Error("job execution failed", "error", err)
		r.report(ctx, RuntimeUpdate{
			JobID: job.ID(),
			State: StateFailure,
			Err:   err.Error(),
		})

	default:
		logger.Info("job completed successfully")
		r.report(ctx, RuntimeUpdate{
			JobID:    job.ID(),
			State:    StateSuccess,
			Progress: 100,
			Payload:  payload,
		})
	}
}

// report forwards an update to the reporter, logging delivery failures.
// Reporting failures are isolated per job and never crash the worker.
func (r *Runner) report(ctx context.Context, update RuntimeUpdate) {
	if err := r.reporter.Report(ctx, update); err != nil {
		r.logger.Error("failed to report job update",
			"job_id", update.JobID,
			"state", update.State,
			"error", err)
	}
}

func (r *Runner) trackRunning(jobID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[jobID] = cancel
}

func (r *Runner) untrackRunning(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, jobID)
}

// consumeRevocation reports and clears a pending revocation for the job.
func (r *Runner) consumeRevocation(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.revoked[jobID]; ok {
		delete(r.revoked, jobID)
		return true
	}
	return false
}

// staleJobMonitor periodically asks the reporter to fail jobs that have
// stopped reporting progress, e.g. after a worker crash on another replica.
func (r *Runner) staleJobMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StaleJobCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			count, err := r.reporter.FailStale(context.Background(), r.config.StaleJobAge)
			if err != nil {
				r.logger.Error("failed to check for stale jobs", "error", err)
				continue
			}

			if count > 0 {
				r.logger.Warn("failed stale jobs", "count", count)
			}
		}
	}
}
