package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/goalflow-backend/internal/domain"
)

// allocationRepository implements domain.AllocationRepository
type allocationRepository struct {
	db *DB
}

// NewAllocationRepository creates a new allocation repository
func NewAllocationRepository(db *DB) domain.AllocationRepository {
	return &allocationRepository{db: db}
}

// GetTargets retrieves the live allocation targets for an asset
func (r *allocationRepository) GetTargets(ctx context.Context, assetID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	query := `
		SELECT goal_id, amount
		FROM allocation_targets
		WHERE asset_id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to get allocation targets: %w", err)
	}
	defer rows.Close()

	targets := make(map[uuid.UUID]decimal.Decimal)
	for rows.Next() {
		var goalID uuid.UUID
		var amountStr string
		if err := rows.Scan(&goalID, &amountStr); err != nil {
			return nil, fmt.Errorf("failed to scan allocation target: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount: %w", err)
		}
		targets[goalID] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate allocation targets: %w", err)
	}

	return targets, nil
}

// UpsertTarget creates or replaces the live target for a (asset, goal) pair
func (r *allocationRepository) UpsertTarget(ctx context.Context, target *domain.AllocationTarget) error {
	query := `
		INSERT INTO allocation_targets (asset_id, goal_id, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (asset_id, goal_id) DO UPDATE SET amount = EXCLUDED.amount
	`

	_, err := r.db.ExecContext(ctx, query,
		target.AssetID,
		target.GoalID,
		target.Amount.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert allocation target: %w", err)
	}

	return nil
}

// AppendSnapshot records a new allocation snapshot. Snapshots are append-only.
func (r *allocationRepository) AppendSnapshot(ctx context.Context, snapshot *domain.AllocationSnapshot) error {
	query := `
		INSERT INTO allocation_snapshots (id, asset_id, goal_id, amount, snapshot_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		snapshot.ID,
		snapshot.AssetID,
		snapshot.GoalID,
		snapshot.Amount.String(),
		snapshot.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append allocation snapshot: %w", err)
	}

	return nil
}

// ListSnapshots retrieves all snapshots for a (goal, asset) pair ordered by timestamp
func (r *allocationRepository) ListSnapshots(ctx context.Context, assetID, goalID uuid.UUID) ([]domain.AllocationSnapshot, error) {
	query := `
		SELECT id, asset_id, goal_id, amount, snapshot_at
		FROM allocation_snapshots
		WHERE asset_id = $1 AND goal_id = $2
		ORDER BY snapshot_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, assetID, goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocation snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]domain.AllocationSnapshot, 0)
	for rows.Next() {
		var snapshot domain.AllocationSnapshot
		var amountStr string
		if err := rows.Scan(&snapshot.ID, &snapshot.AssetID, &snapshot.GoalID, &amountStr, &snapshot.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan allocation snapshot: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount: %w", err)
		}
		snapshot.Amount = amount
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate allocation snapshots: %w", err)
	}

	return snapshots, nil
}
