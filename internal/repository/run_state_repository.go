package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/akylbek/payment-system/recurring-billing/internal/models"
)

// RunStateRepository keeps the single last-run row used by the run guard.
type RunStateRepository struct {
	db *sql.DB
}

func NewRunStateRepository(db *sql.DB) *RunStateRepository {
	return &RunStateRepository{db: db}
}

func (r *RunStateRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS billing_last_run (
			id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			last_run_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return fmt.Errorf("%w: init billing_last_run: %v", models.ErrPersistence, err)
		}
	}

	return nil
}

// LastRun returns nil when the job has never run.
func (r *RunStateRepository) LastRun(ctx context.Context) (*models.RunState, error) {
	var state models.RunState
	err := r.db.QueryRowContext(ctx,
		`SELECT last_run_at, updated_at FROM billing_last_run WHERE id = 1`,
	).Scan(&state.LastRunAt, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read last run: %v", models.ErrPersistence, err)
	}
	return &state, nil
}

// TouchLastRun upserts the singleton row. An older timestamp never replaces a newer one.
func (r *RunStateRepository) TouchLastRun(ctx context.Context, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO billing_last_run (id, last_run_at, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE
		SET last_run_at = GREATEST(billing_last_run.last_run_at, EXCLUDED.last_run_at), updated_at = NOW()
	`, at)
	if err != nil {
		return fmt.Errorf("%w: update last run: %v", models.ErrPersistence, err)
	}
	return nil
}
