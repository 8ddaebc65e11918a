package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/atelier-market/backend/internal/services"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type PayoutRunner interface {
	RunPayoutCycle(ctx context.Context, cycleDate time.Time) (*services.CycleReport, error)
}

// Scheduler runs the payout cycle on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	payouts PayoutRunner
	timeout time.Duration
	logger  *zap.Logger
}

// New registers the payout job. schedule uses the six-field cron format
// with seconds, evaluated in UTC.
func New(payouts PayoutRunner, schedule string, timeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = time.Hour
	}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
	)
	s := &Scheduler{
		cron:    c,
		payouts: payouts,
		timeout: timeout,
		logger:  logger.Named("scheduler"),
	}

	if _, err := s.cron.AddFunc(schedule, s.RunPayouts); err != nil {
		return nil, fmt.Errorf("register payout job %q: %w", schedule, err)
	}
	s.logger.Info("payout job registered", zap.String("schedule", schedule))
	return s, nil
}

// RunPayouts executes one payout cycle for the current UTC day.
func (s *Scheduler) RunPayouts() {
	s.runWithRecovery("payout-cycle", func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		report, err := s.payouts.RunPayoutCycle(ctx, time.Now().UTC())
		if err != nil {
			s.logger.Error("payout cycle failed", zap.Error(err))
			return
		}
		if report.LockHeld {
			s.logger.Info("payout cycle skipped, another instance holds the lock", zap.String("cycle_date", report.CycleDate))
			return
		}
		for _, f := range report.Failures {
			s.logger.Warn("payout failed",
				zap.String("user_id", f.UserID),
				zap.String("amount", f.Amount),
				zap.Bool("retryable", f.Retryable),
				zap.String("error", f.Error))
		}
	})
}

func (s *Scheduler) runWithRecovery(job string, fn func()) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", zap.String("job", job), zap.Any("panic", r))
			return
		}
		s.logger.Info("job completed", zap.String("job", job), zap.Duration("duration", time.Since(start)))
	}()

	s.logger.Info("job started", zap.String("job", job))
	fn()
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("cron scheduler started")
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("cron scheduler stopped")
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
