package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/recurring-billing/internal/interfaces"
	"github.com/akylbek/payment-system/recurring-billing/internal/models"
	"github.com/akylbek/payment-system/recurring-billing/internal/runguard"
	"github.com/akylbek/payment-system/recurring-billing/internal/telemetry"
)

// DailyJob wraps a billing run in the once-per-day guard. Only one Execute
// runs at a time within a process; the guard's lock covers other processes.
type DailyJob struct {
	guard  interfaces.RunGuard
	runner interfaces.Runner
	mu     sync.Mutex
}

func NewDailyJob(guard interfaces.RunGuard, runner interfaces.Runner) *DailyJob {
	return &DailyJob{guard: guard, runner: runner}
}

// Execute returns runguard.ErrAlreadyRan when today's run has happened,
// runguard.ErrLocked while another run holds the job, and aborts before any
// billing when the run timestamp cannot be stored.
func (j *DailyJob) Execute(ctx context.Context) (*models.RunSummary, error) {
	if !j.mu.TryLock() {
		return nil, fmt.Errorf("%w: a run is already in progress in this process", runguard.ErrLocked)
	}
	defer j.mu.Unlock()

	if err := j.guard.Acquire(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := j.guard.Release(context.WithoutCancel(ctx)); err != nil {
			telemetry.Logger.Warn("Could not release run lock", zap.Error(err))
		}
	}()

	ran, err := j.guard.HasRunToday(ctx)
	if err != nil {
		return nil, fmt.Errorf("check last run: %w", err)
	}
	if ran {
		telemetry.Logger.Info("Billing already ran today, quitting")
		return nil, runguard.ErrAlreadyRan
	}

	if err := j.guard.MarkRunNow(ctx); err != nil {
		return nil, err
	}

	return j.runner.Run(ctx)
}
