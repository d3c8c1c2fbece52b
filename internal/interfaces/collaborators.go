package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/recurring-billing/internal/models"
)

// Gateway submits a charge and returns the final response after the
// gateway's own retry protocol has run.
type Gateway interface {
	Charge(ctx context.Context, req *models.TransactionRequest) (*models.TransactionResponse, error)
}

// Notifier sends the customer and administrator e-mails the orchestrator needs.
type Notifier interface {
	SendInvoice(ctx context.Context, customer models.Customer, product models.Product) error
	SendCardUpdateRequest(ctx context.Context, customer models.Customer, product models.Product) error
	SendEscalation(ctx context.Context, customer models.Customer, product models.Product, failures int) error
}

// EventPublisher announces charge outcomes to downstream consumers.
type EventPublisher interface {
	PublishChargeOutcome(ctx context.Context, event *models.BillingEvent) error
}

// FailureTracker records charge outcomes and decides when to escalate.
type FailureTracker interface {
	RecordOutcome(ctx context.Context, customerID, productID string, success bool) (int, bool, error)
}

// RunGuard keeps the daily run from executing twice.
type RunGuard interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
	HasRunToday(ctx context.Context) (bool, error)
	MarkRunNow(ctx context.Context) error
}

// Runner performs one pass over every customer.
type Runner interface {
	Run(ctx context.Context) (*models.RunSummary, error)
}
