package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// DueLister yields the segments whose cron interval has elapsed.
type DueLister interface {
	ListDueSegments(ctx context.Context) ([]int64, error)
}

// SegmentUpdater runs one evaluation of a segment.
type SegmentUpdater interface {
	UpdateSegment(ctx context.Context, id int64) error
}

// Scheduler polls for due cron segments on a fixed interval and evaluates
// them one by one. Missed windows are not backfilled: a segment that was
// due during downtime simply runs on the next tick.
type Scheduler struct {
	due      DueLister
	updater  SegmentUpdater
	interval time.Duration
	log      *slog.Logger
}

func New(due DueLister, updater SegmentUpdater, interval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		due:      due,
		updater:  updater,
		interval: interval,
		log:      log,
	}
}

// Run blocks until the context is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	ids, err := s.due.ListDueSegments(ctx)
	if err != nil {
		s.log.Error("failed to list due segments", "error", err)
		return
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if err := s.updater.UpdateSegment(ctx, id); err != nil {
			s.log.Error("scheduled segment update failed", "segment_id", id, "error", err)
		}
	}
}
