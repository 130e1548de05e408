// Package scheduler runs timed backups for `quill serve`.
package scheduler

import (
	"context"
	"errors"
	"time"

	"quill/internal/quill"
)

// Dispatcher starts backups. Satisfied by *quill.Manager.
type Dispatcher interface {
	Dispatch(kind quill.Kind) (<-chan quill.Result, error)
}

// Scheduler fires snapshot and stage backups on fixed intervals and tries
// an archive at start-up and after every stage tick. The once-per-day guard
// in the manager turns the extra archive attempts into no-ops.
//
// Backup failures are logged and never stop the scheduler.
type Scheduler struct {
	mgr              Dispatcher
	snapshotInterval time.Duration
	stageInterval    time.Duration
	logger           quill.Logger
}

// New creates a Scheduler. Both intervals must be positive.
func New(mgr Dispatcher, snapshotInterval, stageInterval time.Duration, logger quill.Logger) *Scheduler {
	return &Scheduler{
		mgr:              mgr,
		snapshotInterval: snapshotInterval,
		stageInterval:    stageInterval,
		logger:           logger,
	}
}

// Serve implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.logger.Info("scheduler started", "snapshot_interval", s.snapshotInterval, "stage_interval", s.stageInterval)
	s.run(ctx, quill.KindArchive)

	snapshots := time.NewTicker(s.snapshotInterval)
	defer snapshots.Stop()
	stages := time.NewTicker(s.stageInterval)
	defer stages.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-snapshots.C:
			s.run(ctx, quill.KindSnapshot)
		case <-stages.C:
			s.run(ctx, quill.KindStage)
			s.run(ctx, quill.KindArchive)
		}
	}
}

func (s *Scheduler) String() string {
	return "backup-scheduler"
}

// run dispatches one backup and waits for it unless ctx ends first.
func (s *Scheduler) run(ctx context.Context, kind quill.Kind) {
	ch, err := s.mgr.Dispatch(kind)
	if errors.Is(err, quill.ErrBusy) {
		s.logger.Debug("scheduled backup skipped: worker busy", "kind", kind)
		return
	}
	if err != nil {
		s.logger.Warn("scheduled backup not started", "kind", kind, "error", err)
		return
	}

	select {
	case res := <-ch:
		if !res.Success {
			s.logger.Warn("scheduled backup failed", "kind", kind, "run_id", res.RunID, "message", res.Message)
		}
	case <-ctx.Done():
	}
}
