package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/recurring-billing/internal/models"
	"github.com/akylbek/payment-system/recurring-billing/internal/runguard"
)

type fakeGuard struct {
	calls      []string
	acquireErr error
	ran        bool
	checkErr   error
	markErr    error
}

func (g *fakeGuard) Acquire(context.Context) error {
	g.calls = append(g.calls, "acquire")
	return g.acquireErr
}

func (g *fakeGuard) Release(context.Context) error {
	g.calls = append(g.calls, "release")
	return nil
}

func (g *fakeGuard) HasRunToday(context.Context) (bool, error) {
	g.calls = append(g.calls, "check")
	return g.ran, g.checkErr
}

func (g *fakeGuard) MarkRunNow(context.Context) error {
	g.calls = append(g.calls, "mark")
	if g.markErr != nil {
		return g.markErr
	}
	g.ran = true
	return nil
}

type fakeRunner struct {
	runs int
}

func (r *fakeRunner) Run(context.Context) (*models.RunSummary, error) {
	r.runs++
	return &models.RunSummary{}, nil
}

func TestDailyJob_RunsOncePerDay(t *testing.T) {
	guard := &fakeGuard{}
	runner := &fakeRunner{}
	job := NewDailyJob(guard, runner)

	summary, err := job.Execute(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, summary)
	assert.Equal(t, []string{"acquire", "check", "mark", "release"}, guard.calls)

	_, err = job.Execute(context.Background())
	assert.ErrorIs(t, err, runguard.ErrAlreadyRan)
	assert.Equal(t, 1, runner.runs)
}

func TestDailyJob_MarkFailureAbortsBeforeBilling(t *testing.T) {
	guard := &fakeGuard{markErr: runguard.ErrMarkFailed}
	runner := &fakeRunner{}

	_, err := NewDailyJob(guard, runner).Execute(context.Background())
	assert.ErrorIs(t, err, runguard.ErrMarkFailed)
	assert.Equal(t, 0, runner.runs)
	assert.Contains(t, guard.calls, "release")
}

func TestDailyJob_LockedElsewhere(t *testing.T) {
	guard := &fakeGuard{acquireErr: runguard.ErrLocked}
	runner := &fakeRunner{}

	_, err := NewDailyJob(guard, runner).Execute(context.Background())
	assert.ErrorIs(t, err, runguard.ErrLocked)
	assert.Equal(t, []string{"acquire"}, guard.calls)
	assert.Equal(t, 0, runner.runs)
}

func TestDailyJob_CheckError(t *testing.T) {
	guard := &fakeGuard{checkErr: errors.New("db down")}
	runner := &fakeRunner{}

	_, err := NewDailyJob(guard, runner).Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, runner.runs)
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	runs    int
}

func (r *blockingRunner) Run(context.Context) (*models.RunSummary, error) {
	r.runs++
	close(r.started)
	<-r.release
	return &models.RunSummary{}, nil
}

func TestDailyJob_OverlappingExecuteIsRejected(t *testing.T) {
	guard := &fakeGuard{}
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	job := NewDailyJob(guard, runner)

	done := make(chan error, 1)
	go func() {
		_, err := job.Execute(context.Background())
		done <- err
	}()

	select {
	case <-runner.started:
	case <-time.After(time.Second):
		t.Fatal("first run did not start")
	}

	_, err := job.Execute(context.Background())
	assert.ErrorIs(t, err, runguard.ErrLocked)

	close(runner.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, runner.runs)
	assert.Equal(t, []string{"acquire", "check", "mark", "release"}, guard.calls)
}
