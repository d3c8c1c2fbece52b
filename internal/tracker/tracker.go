package tracker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/recurring-billing/internal/interfaces"
	"github.com/akylbek/payment-system/recurring-billing/internal/telemetry"
)

// DefaultThreshold is the failure count an administrator is told about once exceeded.
const DefaultThreshold = 3

// Tracker keeps the consecutive failure count of each (customer, product) pair.
type Tracker struct {
	store     interfaces.FailureStore
	threshold int
}

func New(store interfaces.FailureStore, threshold int) *Tracker {
	return &Tracker{store: store, threshold: threshold}
}

func (t *Tracker) Threshold() int {
	return t.threshold
}

// RecordOutcome resets the count on success and increments it otherwise.
// It returns the new count and whether the count is past the threshold.
// Escalation fires on every failure past the threshold, not only the first.
func (t *Tracker) RecordOutcome(ctx context.Context, customerID, productID string, success bool) (int, bool, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "tracker.RecordOutcome")
	defer span.End()

	if success {
		if err := t.store.ResetFailures(ctx, customerID, productID); err != nil {
			return 0, false, fmt.Errorf("reset failures for %s/%s: %w", customerID, productID, err)
		}
		return 0, false, nil
	}

	count, err := t.store.IncrementFailures(ctx, customerID, productID)
	if err != nil {
		return 0, false, fmt.Errorf("increment failures for %s/%s: %w", customerID, productID, err)
	}

	escalate := t.ShouldEscalate(count)
	if escalate {
		telemetry.Logger.Warn("Failure threshold exceeded",
			zap.String("customer_id", customerID),
			zap.String("product_id", productID),
			zap.Int("failure_count", count),
			zap.Int("threshold", t.threshold),
		)
	}
	return count, escalate, nil
}

// ShouldEscalate reports whether count is past the threshold.
func (t *Tracker) ShouldEscalate(count int) bool {
	return count > t.threshold
}
