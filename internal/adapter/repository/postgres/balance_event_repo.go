package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/goalflow-backend/internal/domain"
)

// balanceEventRepository implements domain.BalanceEventRepository
type balanceEventRepository struct {
	db *DB
}

// NewBalanceEventRepository creates a new balance event repository
func NewBalanceEventRepository(db *DB) domain.BalanceEventRepository {
	return &balanceEventRepository{db: db}
}

// Append records a new balance event. Events are append-only: there is no
// update path through this repository.
func (r *balanceEventRepository) Append(ctx context.Context, event *domain.BalanceEvent) error {
	query := `
		INSERT INTO balance_events (id, asset_id, amount, event_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.AssetID,
		event.Amount.String(),
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append balance event: %w", err)
	}

	return nil
}

// ListByAsset retrieves all balance events for an asset ordered by timestamp
func (r *balanceEventRepository) ListByAsset(ctx context.Context, assetID uuid.UUID) ([]domain.BalanceEvent, error) {
	query := `
		SELECT id, asset_id, amount, event_at
		FROM balance_events
		WHERE asset_id = $1
		ORDER BY event_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list balance events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.BalanceEvent, 0)
	for rows.Next() {
		var event domain.BalanceEvent
		var amountStr string
		if err := rows.Scan(&event.ID, &event.AssetID, &amountStr, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan balance event: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount: %w", err)
		}
		event.Amount = amount
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate balance events: %w", err)
	}

	return events, nil
}
