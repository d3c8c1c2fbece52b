package runguard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/recurring-billing/internal/interfaces"
	"github.com/akylbek/payment-system/recurring-billing/internal/telemetry"
)

var (
	ErrAlreadyRan = errors.New("billing already ran today")
	ErrLocked     = errors.New("billing run locked by another instance")
	ErrMarkFailed = errors.New("failed to record run timestamp")
)

// Locker serializes runs across instances. Implementations must make
// Acquire fail with ErrLocked when another holder owns key.
type Locker interface {
	Acquire(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// Guard enforces at most one production run per calendar day.
type Guard struct {
	repo     interfaces.RunStateRepository
	lock     Locker
	testMode bool
	loc      *time.Location
	now      func() time.Time

	mu      sync.Mutex
	heldKey string
}

// New builds a Guard. lock may be nil when only one instance is deployed.
func New(repo interfaces.RunStateRepository, lock Locker, testMode bool, loc *time.Location) *Guard {
	if loc == nil {
		loc = time.Local
	}
	return &Guard{
		repo:     repo,
		lock:     lock,
		testMode: testMode,
		loc:      loc,
		now:      time.Now,
	}
}

// HasRunToday reports whether the stored last-run timestamp falls on today's
// date. In test mode it always reports false.
func (g *Guard) HasRunToday(ctx context.Context) (bool, error) {
	if g.testMode {
		return false, nil
	}

	state, err := g.repo.LastRun(ctx)
	if err != nil {
		return false, fmt.Errorf("read last run: %w", err)
	}
	if state == nil || state.LastRunAt.IsZero() {
		return false, nil
	}

	return sameDay(state.LastRunAt.In(g.loc), g.now().In(g.loc)), nil
}

// MarkRunNow stores the current time as the last run.
func (g *Guard) MarkRunNow(ctx context.Context) error {
	at := g.now()
	if err := g.repo.TouchLastRun(ctx, at); err != nil {
		telemetry.Logger.Error("Could not update last run timestamp", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrMarkFailed, err)
	}
	telemetry.Logger.Info("Recorded run timestamp", zap.Time("last_run_at", at))
	return nil
}

// Acquire takes today's run lock, if a Locker is configured. The key is
// remembered so Release frees the same lock even after midnight.
func (g *Guard) Acquire(ctx context.Context) error {
	if g.lock == nil {
		return nil
	}
	key := g.lockKey()
	if err := g.lock.Acquire(ctx, key); err != nil {
		return err
	}
	g.mu.Lock()
	g.heldKey = key
	g.mu.Unlock()
	return nil
}

// Release gives up the lock taken by Acquire.
func (g *Guard) Release(ctx context.Context) error {
	if g.lock == nil {
		return nil
	}
	g.mu.Lock()
	key := g.heldKey
	g.heldKey = ""
	g.mu.Unlock()
	if key == "" {
		return nil
	}
	return g.lock.Release(ctx, key)
}

func (g *Guard) lockKey() string {
	return "billing:run:" + g.now().In(g.loc).Format("2006-01-02")
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
