package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrPersistence wraps every failure reported by a storage collaborator.
var ErrPersistence = errors.New("persistence error")

type PaymentMethod string

const (
	PaymentMethodCheque     PaymentMethod = "cheque"
	PaymentMethodCreditCard PaymentMethod = "credit_card"
)

// Customer is read from the directory once per run and never mutated by the engine.
type Customer struct {
	ID            string
	PaymentMethod PaymentMethod
	Email         string
	CardNumber    string
	CardExpiry    string // MMYY as accepted by the gateway
	Products      []Product
}

// CardLast4 returns the last four digits of the card number for logging.
func (c Customer) CardLast4() string {
	if len(c.CardNumber) <= 4 {
		return c.CardNumber
	}
	return c.CardNumber[len(c.CardNumber)-4:]
}

type Product struct {
	ID           string
	Name         string
	Price        decimal.Decimal
	BillingDay   int // 1..31
	FailureCount int
}

// TransactionRequest is built fresh for every charge attempt.
type TransactionRequest struct {
	LoginID        string
	TransactionKey string
	TestMode       bool
	Delimiter      string
	CardNumber     string
	CardExpiry     string
	Amount         decimal.Decimal
}

// Gateway response codes (field 1).
const (
	ResponseCodeApproved = 1
	ResponseCodeDeclined = 2
	ResponseCodeError    = 3
	ResponseCodeHeld     = 4

	// ResponseCodeTestMode is written to the transaction log instead of the
	// gateway's response code while test mode is on.
	ResponseCodeTestMode = 4
)

type TransactionResponse struct {
	ResponseCode  int
	Subcode       string
	ReasonCode    int
	ReasonText    string
	ApprovalCode  string
	AVSCode       string
	TransactionID string
	CVVResult     string
	CAVVResult    string
	Raw           string
}

func (r *TransactionResponse) Approved() bool {
	return r != nil && r.ResponseCode == ResponseCodeApproved
}

// TransactionLogEntry is the append-only record written once per charge attempt.
type TransactionLogEntry struct {
	ID            int64
	TransactionID string
	CustomerID    string
	ProductID     string
	BilledAmount  decimal.Decimal
	ResponseCode  int
	ApprovalCode  string
	ReasonCode    int
	ReasonText    string
	CVVCode       string
	CreatedAt     time.Time
}

type ChargeOutcome string

const (
	OutcomeApproved ChargeOutcome = "approved"
	OutcomeDeclined ChargeOutcome = "declined"
	OutcomeError    ChargeOutcome = "error"
)

// BillingEvent is published after every charge outcome.
type BillingEvent struct {
	CustomerID    string        `json:"customer_id"`
	ProductID     string        `json:"product_id"`
	ProductName   string        `json:"product_name"`
	Amount        string        `json:"amount"`
	Outcome       ChargeOutcome `json:"outcome"`
	TransactionID string        `json:"transaction_id,omitempty"`
	ReasonCode    int           `json:"reason_code,omitempty"`
	ReasonText    string        `json:"reason_text,omitempty"`
	FailureCount  int           `json:"failure_count"`
	Escalated     bool          `json:"escalated"`
	Retry         bool          `json:"retry"`
	Timestamp     time.Time     `json:"timestamp"`
}

// RunSummary aggregates the results of one daily run.
type RunSummary struct {
	StartedAt       time.Time
	FinishedAt      time.Time
	Customers       int
	Products        int
	InvoicesSent    int
	ChargesApproved int
	ChargesDeclined int
	Escalations     int
	Errors          int
}
