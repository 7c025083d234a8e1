package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/simaogato/goalflow-backend/internal/domain"
)

// periodRepository implements domain.PeriodRepository
type periodRepository struct {
	db *DB
}

// NewPeriodRepository creates a new tracking period repository
func NewPeriodRepository(db *DB) domain.PeriodRepository {
	return &periodRepository{db: db}
}

// GetByID retrieves a tracking period with its tracked pairs
func (r *periodRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TrackingPeriod, error) {
	query := `
		SELECT id, year, month, status, started_at, completed_at
		FROM tracking_periods
		WHERE id = $1
	`

	var period domain.TrackingPeriod
	var month int
	var startedAt, completedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&period.ID,
		&period.Year,
		&month,
		&period.Status,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tracking period not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get tracking period by ID: %w", err)
	}

	period.Month = time.Month(month)
	if startedAt.Valid {
		t := startedAt.Time
		period.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		period.CompletedAt = &t
	}

	pairs, err := r.listTrackedPairs(ctx, id)
	if err != nil {
		return nil, err
	}
	period.TrackedPairs = pairs

	return &period, nil
}

func (r *periodRepository) listTrackedPairs(ctx context.Context, periodID uuid.UUID) ([]domain.GoalAssetPair, error) {
	query := `
		SELECT goal_id, asset_id
		FROM period_tracked_pairs
		WHERE period_id = $1
		ORDER BY goal_id, asset_id
	`

	rows, err := r.db.QueryContext(ctx, query, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked pairs: %w", err)
	}
	defer rows.Close()

	pairs := make([]domain.GoalAssetPair, 0)
	for rows.Next() {
		var pair domain.GoalAssetPair
		if err := rows.Scan(&pair.GoalID, &pair.AssetID); err != nil {
			return nil, fmt.Errorf("failed to scan tracked pair: %w", err)
		}
		pairs = append(pairs, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tracked pairs: %w", err)
	}

	return pairs, nil
}

// Create creates a new tracking period
func (r *periodRepository) Create(ctx context.Context, period *domain.TrackingPeriod) error {
	query := `
		INSERT INTO tracking_periods (id, year, month, status, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		period.ID,
		period.Year,
		int(period.Month),
		string(period.Status),
		period.StartedAt,
		period.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create tracking period: %w", err)
	}

	return nil
}

// Update persists the period's status, timestamps and tracked pairs in a
// database transaction
func (r *periodRepository) Update(ctx context.Context, period *domain.TrackingPeriod) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := updatePeriodRow(ctx, dbTx, period); err != nil {
		return err
	}
	if err := replaceTrackedPairs(ctx, dbTx, period); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Close atomically persists the closed period together with its
// contributions: the status flip and every contribution row commit in one
// database transaction, or none of them do.
func (r *periodRepository) Close(ctx context.Context, period *domain.TrackingPeriod, contributions []*domain.PersistedContribution) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := updatePeriodRow(ctx, dbTx, period); err != nil {
		return err
	}

	insertQuery := `
		INSERT INTO persisted_contributions
			(id, period_id, goal_id, asset_id, amount, currency, recorded_at, rate, rate_at, converted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	for _, c := range contributions {
		var rate interface{}
		var rateAt interface{}
		if c.Rate.Converted {
			rate = c.Rate.Rate.String()
			rateAt = c.Rate.RateTimestamp
		}
		_, err = dbTx.ExecContext(ctx, insertQuery,
			c.ID,
			c.PeriodID,
			c.GoalID,
			c.AssetID,
			c.Amount.String(),
			c.Currency,
			c.Timestamp,
			rate,
			rateAt,
			c.Rate.Converted,
		)
		if err != nil {
			return fmt.Errorf("failed to insert persisted contribution: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func updatePeriodRow(ctx context.Context, dbTx *sql.Tx, period *domain.TrackingPeriod) error {
	query := `
		UPDATE tracking_periods
		SET status = $2, started_at = $3, completed_at = $4
		WHERE id = $1
	`

	_, err := dbTx.ExecContext(ctx, query,
		period.ID,
		string(period.Status),
		period.StartedAt,
		period.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update tracking period: %w", err)
	}
	return nil
}

func replaceTrackedPairs(ctx context.Context, dbTx *sql.Tx, period *domain.TrackingPeriod) error {
	if _, err := dbTx.ExecContext(ctx, `DELETE FROM period_tracked_pairs WHERE period_id = $1`, period.ID); err != nil {
		return fmt.Errorf("failed to clear tracked pairs: %w", err)
	}

	insertQuery := `
		INSERT INTO period_tracked_pairs (period_id, goal_id, asset_id)
		VALUES ($1, $2, $3)
	`
	for _, pair := range period.TrackedPairs {
		if _, err := dbTx.ExecContext(ctx, insertQuery, period.ID, pair.GoalID, pair.AssetID); err != nil {
			return fmt.Errorf("failed to insert tracked pair: %w", err)
		}
	}
	return nil
}
