package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/goalflow-backend/internal/domain"
)

// contributionRepository implements domain.ContributionRepository. Rows are
// written only through PeriodRepository.Close; this repository is read-only.
type contributionRepository struct {
	db *DB
}

// NewContributionRepository creates a new persisted contribution repository
func NewContributionRepository(db *DB) domain.ContributionRepository {
	return &contributionRepository{db: db}
}

// ListByPeriod retrieves all persisted contributions for a period
func (r *contributionRepository) ListByPeriod(ctx context.Context, periodID uuid.UUID) ([]domain.PersistedContribution, error) {
	query := `
		SELECT id, period_id, goal_id, asset_id, amount, currency, recorded_at, rate, rate_at, converted
		FROM persisted_contributions
		WHERE period_id = $1
		ORDER BY goal_id, asset_id
	`

	rows, err := r.db.QueryContext(ctx, query, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to list persisted contributions: %w", err)
	}
	defer rows.Close()

	contributions := make([]domain.PersistedContribution, 0)
	for rows.Next() {
		var c domain.PersistedContribution
		var amountStr string
		var rateStr sql.NullString
		var rateAt sql.NullTime

		err := rows.Scan(
			&c.ID,
			&c.PeriodID,
			&c.GoalID,
			&c.AssetID,
			&amountStr,
			&c.Currency,
			&c.Timestamp,
			&rateStr,
			&rateAt,
			&c.Rate.Converted,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan persisted contribution: %w", err)
		}

		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount: %w", err)
		}
		c.Amount = amount

		if rateStr.Valid {
			rate, err := decimal.NewFromString(rateStr.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse rate: %w", err)
			}
			c.Rate.Rate = rate
		}
		if rateAt.Valid {
			c.Rate.RateTimestamp = rateAt.Time
		}

		contributions = append(contributions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate persisted contributions: %w", err)
	}

	return contributions, nil
}
