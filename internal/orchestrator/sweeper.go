package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docscreen-io/docscreen/constants"
	"github.com/docscreen-io/docscreen/internal/repository"
)

// Sweeper fails tasks stuck in running past their deadline. It sits outside
// the synchronous advance path: executors that crashed or hung never report
// back, so someone has to.
type Sweeper struct {
	store    repository.JobStore
	orch     *Orchestrator
	deadline time.Duration
	interval time.Duration
	log      *slog.Logger
}

func NewSweeper(store repository.JobStore, orch *Orchestrator, deadline, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, orch: orch, deadline: deadline, interval: interval, log: logger}
}

// Run loops until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Info("timeout sweeper started", "deadline", s.deadline, "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("timeout sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce fails every running task that started before now-deadline.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.deadline)
	stuck, err := s.store.ListRunningBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("sweep query failed", "error", err)
		return
	}
	for _, t := range stuck {
		msg := fmt.Sprintf("%s: running since %s", constants.ReasonTimeout, t.StartedAt.Format(time.RFC3339))
		if err := s.orch.FailTask(ctx, t.ID, msg); err != nil {
			s.log.Error("sweep fail-task failed", "task_id", t.ID, "error", err)
			continue
		}
		s.log.Warn("task timed out", "task_id", t.ID, "job_id", t.JobID, "task_type", t.TaskType)
	}
}
