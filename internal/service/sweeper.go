package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Bounds for the manual cleanup retention window, in days.
const (
	MinCleanupDays = 1
	MaxCleanupDays = 30
)

// sweeperStore is the slice of the task store the sweeper uses.
type sweeperStore interface {
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionSweeper periodically deletes terminal scan tasks older than the
// configured retention window. Non-terminal tasks are never touched.
type RetentionSweeper struct {
	store     sweeperStore
	logger    *slog.Logger
	retention time.Duration
	interval  time.Duration

	// now is replaceable in tests.
	now func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewRetentionSweeper creates a sweeper with the given retention window and
// sweep interval.
func NewRetentionSweeper(
	store sweeperStore,
	logger *slog.Logger,
	retention, interval time.Duration,
) (*RetentionSweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %v", retention)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %v", interval)
	}

	return &RetentionSweeper{
		store:     store,
		logger:    logger.With("component", "retention_sweeper"),
		retention: retention,
		interval:  interval,
		now:       time.Now,
	}, nil
}

// Start launches the background sweep loop. Calling Start on a running
// sweeper is a no-op.
func (s *RetentionSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("retention sweeper started",
		"retention", s.retention.String(),
		"interval", s.interval.String())
}

// Stop halts the sweep loop and waits for any in-flight sweep to finish.
func (s *RetentionSweeper) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("retention sweeper stopped")
}

func (s *RetentionSweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx, s.retention); err != nil {
				s.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// Sweep deletes terminal tasks whose completion time is older than the given
// retention window, returning the number removed.
func (s *RetentionSweeper) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention)

	deleted, err := s.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, newScanServiceError("sweep", "failed to delete expired tasks", err)
	}

	if deleted > 0 {
		s.logger.Info("expired scan tasks removed",
			"deleted", deleted,
			"cutoff", cutoff.UTC().Format(time.RFC3339))
	}

	return deleted, nil
}

// CleanupTasks runs an operator-initiated sweep with a retention window of
// the given number of days. Days outside [MinCleanupDays, MaxCleanupDays]
// are rejected.
func (s *RetentionSweeper) CleanupTasks(ctx context.Context, days int) (int64, error) {
	if days < MinCleanupDays || days > MaxCleanupDays {
		return 0, fmt.Errorf("%w: days must be between %d and %d, got %d",
			ErrInvalidRetention, MinCleanupDays, MaxCleanupDays, days)
	}

	return s.Sweep(ctx, time.Duration(days)*24*time.Hour)
}
