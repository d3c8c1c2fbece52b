package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/recurring-billing/internal/models"
)

// DirectoryRepository serves customers with their subscribed products and
// owns the per-product failure counter.
type DirectoryRepository struct {
	db *sql.DB
}

func NewDirectoryRepository(db *sql.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

func (r *DirectoryRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id VARCHAR(255) PRIMARY KEY,
			payment_method VARCHAR(20) NOT NULL CHECK (payment_method IN ('cheque', 'credit_card')),
			email VARCHAR(255) NOT NULL,
			card_number VARCHAR(19) NOT NULL DEFAULT '',
			card_expiry VARCHAR(4) NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			customer_id VARCHAR(255) NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
			id VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			price NUMERIC(12,2) NOT NULL CHECK (price >= 0),
			billing_day SMALLINT NOT NULL CHECK (billing_day BETWEEN 1 AND 31),
			failure_count INTEGER NOT NULL DEFAULT 0 CHECK (failure_count >= 0),
			PRIMARY KEY (customer_id, id)
		)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return fmt.Errorf("%w: init directory: %v", models.ErrPersistence, err)
		}
	}

	return nil
}

// ListCustomers returns every customer ordered by ID, each with its products.
func (r *DirectoryRepository) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.payment_method, c.email, c.card_number, c.card_expiry,
			p.id, p.name, p.price, p.billing_day, p.failure_count
		FROM customers c
		LEFT JOIN products p ON p.customer_id = c.id
		ORDER BY c.id, p.id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: list customers: %v", models.ErrPersistence, err)
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		var (
			c          models.Customer
			productID  sql.NullString
			name       sql.NullString
			price      decimal.NullDecimal
			billingDay sql.NullInt32
			failures   sql.NullInt32
		)
		if err := rows.Scan(
			&c.ID, &c.PaymentMethod, &c.Email, &c.CardNumber, &c.CardExpiry,
			&productID, &name, &price, &billingDay, &failures,
		); err != nil {
			return nil, fmt.Errorf("%w: scan customer: %v", models.ErrPersistence, err)
		}

		if n := len(customers); n == 0 || customers[n-1].ID != c.ID {
			customers = append(customers, c)
		}
		if !productID.Valid {
			continue
		}
		last := &customers[len(customers)-1]
		last.Products = append(last.Products, models.Product{
			ID:           productID.String,
			Name:         name.String,
			Price:        price.Decimal,
			BillingDay:   int(billingDay.Int32),
			FailureCount: int(failures.Int32),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list customers: %v", models.ErrPersistence, err)
	}
	return customers, nil
}

func (r *DirectoryRepository) ResetFailures(ctx context.Context, customerID, productID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE products SET failure_count = 0 WHERE customer_id = $1 AND id = $2`,
		customerID, productID)
	if err != nil {
		return fmt.Errorf("%w: reset failures for %s/%s: %v", models.ErrPersistence, customerID, productID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: product %s/%s not found", models.ErrPersistence, customerID, productID)
	}
	return nil
}

// IncrementFailures bumps the counter in a single statement and returns the new value.
func (r *DirectoryRepository) IncrementFailures(ctx context.Context, customerID, productID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		UPDATE products SET failure_count = failure_count + 1
		WHERE customer_id = $1 AND id = $2
		RETURNING failure_count
	`, customerID, productID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: product %s/%s not found", models.ErrPersistence, customerID, productID)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: increment failures for %s/%s: %v", models.ErrPersistence, customerID, productID, err)
	}
	return count, nil
}
