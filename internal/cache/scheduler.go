package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"ipward/internal/telemetry/logging"
)

// Prunable is implemented by cache backends that can remove their own
// expired entries. NullBackend does not implement it; MemoryBackend and
// SQLiteBackend do.
type Prunable interface {
	Prune(ctx context.Context) (int, error)
}

// Scheduler runs a backend's Prune method on a cron schedule, so an
// operator's known-decision cache doesn't grow unboundedly between the
// daemon's own unban-driven Forget calls.
type Scheduler struct {
	backend Prunable
	logger  *logging.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler constructs a Scheduler for backend. A backend that does not
// implement Prunable (NullBackend) makes Start a no-op.
func NewScheduler(backend Backend, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger, _ = logging.New(logging.Config{})
	}
	prunable, _ := backend.(Prunable)
	return &Scheduler{backend: prunable, logger: logger, cron: cron.New()}
}

// Start schedules pruning at the given standard cron expression (e.g.
// "0 3 * * *" for daily at 3 AM). An empty schedule or a backend that
// isn't Prunable disables scheduling entirely.
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if schedule == "" || s.backend == nil {
		return nil
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cache prune schedule %q: %w", schedule, err)
	}

	if _, err := s.cron.AddFunc(schedule, func() { s.runPrune(ctx) }); err != nil {
		return fmt.Errorf("scheduling cache prune: %w", err)
	}

	s.cron.Start()
	s.running = true
	return nil
}

func (s *Scheduler) runPrune(ctx context.Context) {
	n, err := s.backend.Prune(ctx)
	if err != nil {
		s.logger.Warn("cache prune failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("cache pruned", "removed", n)
	}
}

// Stop halts the scheduler. Safe to call even if Start was never called or
// scheduling was skipped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
}
