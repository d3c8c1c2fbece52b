package main

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/recurring-billing/internal/runguard"
	"github.com/akylbek/payment-system/recurring-billing/internal/service"
	"github.com/akylbek/payment-system/recurring-billing/internal/telemetry"
)

// cronLogger adapts zap to cron.Logger. Scheduler chatter goes to debug;
// verbose loggers report at info, which is where skipped runs belong.
type cronLogger struct {
	log     *zap.SugaredLogger
	verbose bool
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if l.verbose {
		l.log.Infow("cron: "+msg, keysAndValues...)
		return
	}
	l.log.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}

// newScheduler builds a cron in loc that never starts a job while its
// previous invocation is still running.
func newScheduler(loc *time.Location) *cron.Cron {
	sugar := telemetry.Logger.Sugar()
	return cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{log: sugar}),
		cron.WithChain(
			cron.Recover(cronLogger{log: sugar, verbose: true}),
			cron.SkipIfStillRunning(cronLogger{log: sugar, verbose: true}),
		),
	)
}

func scheduledRun(ctx context.Context, job *service.DailyJob) func() {
	return func() {
		telemetry.Logger.Info("Starting scheduled billing run")
		_, err := job.Execute(ctx)
		switch {
		case errors.Is(err, runguard.ErrAlreadyRan), errors.Is(err, runguard.ErrLocked):
			telemetry.Logger.Info("Scheduled billing run skipped", zap.Error(err))
		case err != nil:
			telemetry.Logger.Error("Scheduled billing run failed", zap.Error(err))
		}
	}
}
