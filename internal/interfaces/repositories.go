package interfaces

import (
	"context"
	"time"

	"github.com/akylbek/payment-system/recurring-billing/internal/models"
)

// Directory is the customer/product source of truth.
type Directory interface {
	ListCustomers(ctx context.Context) ([]models.Customer, error)
}

// FailureStore persists the consecutive-failure counter per customer and product.
// Each call is a single atomic update.
type FailureStore interface {
	ResetFailures(ctx context.Context, customerID, productID string) error
	IncrementFailures(ctx context.Context, customerID, productID string) (int, error)
}

// RunStateRepository holds the single last-run timestamp.
type RunStateRepository interface {
	LastRun(ctx context.Context) (*models.RunState, error)
	TouchLastRun(ctx context.Context, at time.Time) error
}

// TransactionLogRepository is the append-only log of charge attempts.
type TransactionLogRepository interface {
	InsertTransaction(ctx context.Context, entry *models.TransactionLogEntry) error
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]*models.TransactionLogEntry, error)
}
