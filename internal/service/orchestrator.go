package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/recurring-billing/internal/calendar"
	"github.com/akylbek/payment-system/recurring-billing/internal/config"
	"github.com/akylbek/payment-system/recurring-billing/internal/interfaces"
	"github.com/akylbek/payment-system/recurring-billing/internal/metrics"
	"github.com/akylbek/payment-system/recurring-billing/internal/models"
	"github.com/akylbek/payment-system/recurring-billing/internal/telemetry"
)

// Action is what the orchestrator decided to do for one product today.
type Action string

const (
	ActionNone    Action = "none"
	ActionInvoice Action = "invoice"
	ActionCharge  Action = "charge"
	ActionRetry   Action = "retry"
)

type Dependencies struct {
	Directory    interfaces.Directory
	Transactions interfaces.TransactionLogRepository
	Tracker      interfaces.FailureTracker
	Gateway      interfaces.Gateway
	Notifier     interfaces.Notifier
	Events       interfaces.EventPublisher
}

// ProductResult describes what happened to one product during a run.
type ProductResult struct {
	Action       Action
	Outcome      models.ChargeOutcome
	FailureCount int
	Escalated    bool
	Attempts     int
	Errors       int
}

// Orchestrator walks every customer and product once per run. It never
// charges two products concurrently.
type Orchestrator struct {
	deps Dependencies
	cfg  *config.Config
	loc  *time.Location
	now  func() time.Time
}

func NewOrchestrator(deps Dependencies, cfg *config.Config) *Orchestrator {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Orchestrator{
		deps: deps,
		cfg:  cfg,
		loc:  loc,
		now:  time.Now,
	}
}

// Run processes every customer. Only a failure to read the directory
// aborts the run; everything else is logged and counted.
func (o *Orchestrator) Run(ctx context.Context) (*models.RunSummary, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "billing.Run")
	defer span.End()

	summary := &models.RunSummary{StartedAt: o.now()}
	today := summary.StartedAt.In(o.loc)

	customers, err := o.deps.Directory.ListCustomers(ctx)
	if err != nil {
		metrics.Errors.WithLabelValues("directory").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list customers: %w", err)
	}

	telemetry.Logger.Info("Starting billing run",
		zap.Int("customers", len(customers)),
		zap.String("date", today.Format("2006-01-02")),
		zap.Bool("test_mode", o.cfg.TestMode),
	)

	for _, customer := range customers {
		if err := ctx.Err(); err != nil {
			telemetry.Logger.Warn("Billing run interrupted", zap.Error(err))
			break
		}
		o.ProcessCustomer(ctx, customer, today, summary)
	}

	summary.FinishedAt = o.now()
	metrics.ObserveRun(summary)
	span.SetAttributes(
		attribute.Int("billing.customers", summary.Customers),
		attribute.Int("billing.products", summary.Products),
		attribute.Int("billing.errors", summary.Errors),
	)

	telemetry.Logger.Info("Billing run finished",
		zap.Int("customers", summary.Customers),
		zap.Int("products", summary.Products),
		zap.Int("invoices_sent", summary.InvoicesSent),
		zap.Int("charges_approved", summary.ChargesApproved),
		zap.Int("charges_declined", summary.ChargesDeclined),
		zap.Int("escalations", summary.Escalations),
		zap.Int("errors", summary.Errors),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

// ProcessCustomer handles each of the customer's products in order and
// adds the results to summary.
func (o *Orchestrator) ProcessCustomer(ctx context.Context, customer models.Customer, today time.Time, summary *models.RunSummary) {
	summary.Customers++
	telemetry.Logger.Debug("Processing customer",
		zap.String("customer_id", customer.ID),
		zap.String("payment_method", string(customer.PaymentMethod)),
		zap.Int("products", len(customer.Products)),
	)

	for _, product := range customer.Products {
		summary.Products++
		result := o.ProcessProduct(ctx, customer, product, today)

		summary.Errors += result.Errors
		switch {
		case result.Action == ActionInvoice && result.Errors == 0:
			summary.InvoicesSent++
		case result.Outcome == models.OutcomeApproved:
			summary.ChargesApproved++
		case result.Outcome == models.OutcomeDeclined, result.Outcome == models.OutcomeError:
			summary.ChargesDeclined++
		}
		if result.Escalated {
			summary.Escalations++
		}
	}
}

// ProcessProduct evaluates one product against today's date and performs
// the resulting action.
func (o *Orchestrator) ProcessProduct(ctx context.Context, customer models.Customer, product models.Product, today time.Time) ProductResult {
	due := calendar.IsBillingDay(today, product.BillingDay)
	action := Decide(customer.PaymentMethod, due, product.FailureCount)

	log := telemetry.Logger.With(
		zap.String("customer_id", customer.ID),
		zap.String("product_id", product.ID),
		zap.String("action", string(action)),
	)

	switch action {
	case ActionInvoice:
		log.Info("Mailing invoice", zap.String("price", product.Price.StringFixed(2)))
		return o.invoice(ctx, customer, product)
	case ActionCharge, ActionRetry:
		log.Info("Charging credit card",
			zap.String("price", product.Price.StringFixed(2)),
			zap.String("card_last4", customer.CardLast4()),
			zap.Int("failure_count", product.FailureCount),
		)
		return o.charge(ctx, customer, product, action)
	default:
		return ProductResult{Action: ActionNone}
	}
}

// Decide maps a product's state for today onto an action.
func Decide(method models.PaymentMethod, due bool, failureCount int) Action {
	switch method {
	case models.PaymentMethodCheque:
		if due {
			return ActionInvoice
		}
	case models.PaymentMethodCreditCard:
		if due {
			return ActionCharge
		}
		if failureCount > 0 {
			return ActionRetry
		}
	}
	return ActionNone
}

func (o *Orchestrator) invoice(ctx context.Context, customer models.Customer, product models.Product) ProductResult {
	result := ProductResult{Action: ActionInvoice}
	if err := o.deps.Notifier.SendInvoice(ctx, customer, product); err != nil {
		metrics.Invoices.WithLabelValues("failed").Inc()
		metrics.Errors.WithLabelValues("mail").Inc()
		telemetry.Logger.Error("Invoice could not be mailed",
			zap.String("customer_id", customer.ID),
			zap.String("product_id", product.ID),
			zap.Error(err),
		)
		result.Errors++
		return result
	}
	metrics.Invoices.WithLabelValues("sent").Inc()
	return result
}

func (o *Orchestrator) charge(ctx context.Context, customer models.Customer, product models.Product, action Action) ProductResult {
	ctx, span := telemetry.Tracer.Start(ctx, "billing.Charge")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer.id", customer.ID),
		attribute.String("product.id", product.ID),
		attribute.Bool("billing.retry", action == ActionRetry),
	)

	result := ProductResult{Action: action, Outcome: models.OutcomeError}
	var last *models.TransactionResponse

	for attempt := 1; attempt <= o.cfg.Gateway.ChargeAttempts; attempt++ {
		result.Attempts = attempt
		resp, err := o.deps.Gateway.Charge(ctx, o.buildRequest(customer, product))
		if err != nil {
			telemetry.Logger.Error("Charge attempt failed",
				zap.String("customer_id", customer.ID),
				zap.String("product_id", product.ID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			span.RecordError(err)
		}
		if resp != nil {
			last = resp
		}

		if !o.logTransaction(ctx, customer, product, resp, err) {
			result.Errors++
		}

		if resp.Approved() {
			result.Outcome = models.OutcomeApproved
			break
		}
		if resp != nil {
			result.Outcome = models.OutcomeDeclined
		}
		telemetry.Logger.Info("Charge not approved",
			zap.String("customer_id", customer.ID),
			zap.String("product_id", product.ID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", o.cfg.Gateway.ChargeAttempts),
		)
	}

	success := result.Outcome == models.OutcomeApproved
	metrics.Charges.WithLabelValues(string(result.Outcome), strconv.FormatBool(action == ActionRetry)).Inc()

	count, escalate, err := o.deps.Tracker.RecordOutcome(ctx, customer.ID, product.ID, success)
	if err != nil {
		metrics.Errors.WithLabelValues("failure_store").Inc()
		telemetry.Logger.Error("Could not update failure count",
			zap.String("customer_id", customer.ID),
			zap.String("product_id", product.ID),
			zap.Error(err),
		)
		result.Errors++
		count, escalate = 0, false
		if !success {
			count = product.FailureCount + 1
			escalate = count > o.cfg.Escalation.Threshold
		}
	}
	result.FailureCount = count

	if !success {
		if err := o.deps.Notifier.SendCardUpdateRequest(ctx, customer, product); err != nil {
			metrics.Errors.WithLabelValues("mail").Inc()
			telemetry.Logger.Error("Credit card update message could not be mailed",
				zap.String("customer_id", customer.ID),
				zap.Error(err),
			)
			result.Errors++
		}

		if escalate {
			result.Escalated = true
			metrics.Escalations.Inc()
			if err := o.deps.Notifier.SendEscalation(ctx, customer, product, count); err != nil {
				metrics.Errors.WithLabelValues("mail").Inc()
				telemetry.Logger.Error("Unable to notify administrators",
					zap.String("customer_id", customer.ID),
					zap.String("product_id", product.ID),
					zap.Int("failure_count", count),
					zap.Error(err),
				)
				result.Errors++
			}
		}
	}

	if err := o.publish(ctx, customer, product, action, result, last); err != nil {
		metrics.Errors.WithLabelValues("events").Inc()
		telemetry.Logger.Warn("Could not publish charge outcome",
			zap.String("customer_id", customer.ID),
			zap.Error(err),
		)
		result.Errors++
	}

	span.SetAttributes(
		attribute.String("billing.outcome", string(result.Outcome)),
		attribute.Int("billing.failure_count", result.FailureCount),
	)
	return result
}

func (o *Orchestrator) buildRequest(customer models.Customer, product models.Product) *models.TransactionRequest {
	return &models.TransactionRequest{
		LoginID:        o.cfg.Gateway.LoginID,
		TransactionKey: o.cfg.Gateway.TransactionKey,
		TestMode:       o.cfg.TestMode,
		Delimiter:      o.cfg.Gateway.Delimiter,
		CardNumber:     customer.CardNumber,
		CardExpiry:     customer.CardExpiry,
		Amount:         product.Price,
	}
}

// logTransaction appends one row for an attempt. A failed attempt with no
// gateway response is recorded as an error row carrying the failure text.
func (o *Orchestrator) logTransaction(ctx context.Context, customer models.Customer, product models.Product, resp *models.TransactionResponse, chargeErr error) bool {
	entry := &models.TransactionLogEntry{
		CustomerID:   customer.ID,
		ProductID:    product.ID,
		BilledAmount: product.Price,
		ResponseCode: models.ResponseCodeError,
	}
	if resp != nil {
		entry.TransactionID = resp.TransactionID
		entry.ResponseCode = resp.ResponseCode
		entry.ApprovalCode = resp.ApprovalCode
		entry.ReasonCode = resp.ReasonCode
		entry.ReasonText = resp.ReasonText
		entry.CVVCode = resp.CVVResult
	} else if chargeErr != nil {
		entry.ReasonText = chargeErr.Error()
	}
	if o.cfg.TestMode {
		entry.ResponseCode = models.ResponseCodeTestMode
	}

	if err := o.deps.Transactions.InsertTransaction(ctx, entry); err != nil {
		metrics.Errors.WithLabelValues("transaction_log").Inc()
		telemetry.Logger.Error("Could not log transaction",
			zap.String("customer_id", customer.ID),
			zap.String("product_id", product.ID),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (o *Orchestrator) publish(ctx context.Context, customer models.Customer, product models.Product, action Action, result ProductResult, resp *models.TransactionResponse) error {
	if o.deps.Events == nil {
		return nil
	}
	event := &models.BillingEvent{
		CustomerID:   customer.ID,
		ProductID:    product.ID,
		ProductName:  product.Name,
		Amount:       product.Price.StringFixed(2),
		Outcome:      result.Outcome,
		FailureCount: result.FailureCount,
		Escalated:    result.Escalated,
		Retry:        action == ActionRetry,
		Timestamp:    o.now(),
	}
	if resp != nil {
		event.TransactionID = resp.TransactionID
		event.ReasonCode = resp.ReasonCode
		event.ReasonText = resp.ReasonText
	}
	return o.deps.Events.PublishChargeOutcome(ctx, event)
}
