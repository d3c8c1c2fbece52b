package runguard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/recurring-billing/internal/models"
)

type memoryRunState struct {
	state    *models.RunState
	readErr  error
	writeErr error
}

func (m *memoryRunState) LastRun(context.Context) (*models.RunState, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.state, nil
}

func (m *memoryRunState) TouchLastRun(_ context.Context, at time.Time) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.state = &models.RunState{LastRunAt: at, UpdatedAt: at}
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestHasRunToday_NoPreviousRun(t *testing.T) {
	g := New(&memoryRunState{}, nil, false, time.UTC)
	ran, err := g.HasRunToday(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestHasRunToday_MarkThenCheck(t *testing.T) {
	repo := &memoryRunState{}
	g := New(repo, nil, false, time.UTC)
	g.now = fixedClock(time.Date(2024, time.March, 1, 2, 0, 0, 0, time.UTC))

	require.NoError(t, g.MarkRunNow(context.Background()))

	ran, err := g.HasRunToday(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	g.now = fixedClock(time.Date(2024, time.March, 1, 23, 59, 0, 0, time.UTC))
	ran, err = g.HasRunToday(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	g.now = fixedClock(time.Date(2024, time.March, 2, 0, 0, 1, 0, time.UTC))
	ran, err = g.HasRunToday(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestHasRunToday_SameDayPreviousYear(t *testing.T) {
	repo := &memoryRunState{state: &models.RunState{
		LastRunAt: time.Date(2023, time.March, 1, 2, 0, 0, 0, time.UTC),
	}}
	g := New(repo, nil, false, time.UTC)
	g.now = fixedClock(time.Date(2024, time.March, 1, 2, 0, 0, 0, time.UTC))

	ran, err := g.HasRunToday(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestHasRunToday_UsesConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*60*60)
	// 2024-03-02 05:00 UTC is still March 1 at UTC-8.
	repo := &memoryRunState{state: &models.RunState{
		LastRunAt: time.Date(2024, time.March, 1, 18, 0, 0, 0, time.UTC),
	}}
	g := New(repo, nil, false, loc)
	g.now = fixedClock(time.Date(2024, time.March, 2, 5, 0, 0, 0, time.UTC))

	ran, err := g.HasRunToday(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestHasRunToday_TestModeAlwaysFalse(t *testing.T) {
	now := time.Date(2024, time.March, 1, 2, 0, 0, 0, time.UTC)
	repo := &memoryRunState{state: &models.RunState{LastRunAt: now}}
	g := New(repo, nil, true, time.UTC)
	g.now = fixedClock(now)

	ran, err := g.HasRunToday(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestHasRunToday_ReadError(t *testing.T) {
	g := New(&memoryRunState{readErr: errors.New("db down")}, nil, false, time.UTC)
	_, err := g.HasRunToday(context.Background())
	require.Error(t, err)
}

func TestMarkRunNow_Failure(t *testing.T) {
	g := New(&memoryRunState{writeErr: errors.New("db down")}, nil, false, time.UTC)
	err := g.MarkRunNow(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMarkFailed))
}

func TestAcquire_NoLocker(t *testing.T) {
	g := New(&memoryRunState{}, nil, false, time.UTC)
	assert.NoError(t, g.Acquire(context.Background()))
	assert.NoError(t, g.Release(context.Background()))
}
