package services

import (
	"context"
	"time"

	"learning-platform/logger"
	"learning-platform/metrics"
)

const sweepBatchSize = 100

// ExpirySweeper periodically prunes paid enrollments of students whose
// subscription has lapsed. Reads prune lazily as well; the sweeper only keeps
// stored enrollments tidy for students who stop visiting.
type ExpirySweeper struct {
	store    Store
	ledger   *Ledger
	interval time.Duration
	now      Clock
	metrics  *metrics.Metrics
}

func NewExpirySweeper(store Store, ledger *Ledger, interval time.Duration, clock Clock, m *metrics.Metrics) *ExpirySweeper {
	if clock == nil {
		clock = time.Now
	}
	return &ExpirySweeper{store: store, ledger: ledger, interval: interval, now: clock, metrics: m}
}

// Run sweeps every interval until ctx is done.
func (s *ExpirySweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Info("Subscription expiry sweeper started (interval=%s)", s.interval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Subscription expiry sweeper stopped")
			return nil
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				logger.Error("Subscription sweep failed: %v", err)
			} else if n > 0 {
				logger.Info("Subscription sweep pruned %d student(s)", n)
			}
		}
	}
}

// SweepOnce prunes up to one batch of expired students and returns how many
// were changed.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	pruned := 0
	err := s.store.WithinTx(ctx, func(repo Repository) error {
		ids, err := repo.ListExpiredStudentIDs(ctx, s.now(), sweepBatchSize)
		if err != nil {
			return err
		}
		for _, id := range ids {
			student, err := repo.GetStudentForUpdate(ctx, id)
			if err != nil {
				return err
			}
			removed := s.ledger.PruneExpiredPaidCourses(student)
			if len(removed) == 0 {
				continue
			}
			if err := repo.RemoveEnrollments(ctx, student.ID, removed); err != nil {
				return err
			}
			pruned++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for i := 0; i < pruned; i++ {
		s.metrics.SubscriptionChanged(OpPrune)
	}
	return pruned, nil
}
