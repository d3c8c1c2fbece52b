package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/akylbek/payment-system/recurring-billing/internal/models"
)

const defaultListLimit = 50

// TransactionRepository is the append-only log of charge attempts.
type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS transaction_log (
			id BIGSERIAL PRIMARY KEY,
			transaction_id VARCHAR(64) NOT NULL DEFAULT '',
			customer_id VARCHAR(255) NOT NULL,
			product_id VARCHAR(255) NOT NULL,
			billed_amount NUMERIC(12,2) NOT NULL,
			response_code SMALLINT NOT NULL,
			approval_code VARCHAR(16) NOT NULL DEFAULT '',
			reason_code INTEGER NOT NULL DEFAULT 0,
			reason_text TEXT NOT NULL DEFAULT '',
			cvv_code VARCHAR(4) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_log_customer ON transaction_log(customer_id, created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return fmt.Errorf("%w: init transaction_log: %v", models.ErrPersistence, err)
		}
	}

	return nil
}

// InsertTransaction appends entry and fills in its ID and CreatedAt.
func (r *TransactionRepository) InsertTransaction(ctx context.Context, entry *models.TransactionLogEntry) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO transaction_log
			(transaction_id, customer_id, product_id, billed_amount, response_code,
			 approval_code, reason_code, reason_text, cvv_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`,
		entry.TransactionID, entry.CustomerID, entry.ProductID, entry.BilledAmount, entry.ResponseCode,
		entry.ApprovalCode, entry.ReasonCode, entry.ReasonText, entry.CVVCode,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert transaction for %s/%s: %v", models.ErrPersistence, entry.CustomerID, entry.ProductID, err)
	}
	return nil
}

// ListByCustomer returns the newest entries first.
func (r *TransactionRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*models.TransactionLogEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, transaction_id, customer_id, product_id, billed_amount, response_code,
			approval_code, reason_code, reason_text, cvv_code, created_at
		FROM transaction_log
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions for %s: %v", models.ErrPersistence, customerID, err)
	}
	defer rows.Close()

	var entries []*models.TransactionLogEntry
	for rows.Next() {
		var e models.TransactionLogEntry
		if err := rows.Scan(
			&e.ID, &e.TransactionID, &e.CustomerID, &e.ProductID, &e.BilledAmount, &e.ResponseCode,
			&e.ApprovalCode, &e.ReasonCode, &e.ReasonText, &e.CVVCode, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan transaction: %v", models.ErrPersistence, err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list transactions for %s: %v", models.ErrPersistence, customerID, err)
	}
	return entries, nil
}
