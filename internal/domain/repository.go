package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AssetRepository defines the interface for asset persistence operations
type AssetRepository interface {
	// GetByID retrieves an asset by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*Asset, error)

	// Create creates a new asset
	Create(ctx context.Context, asset *Asset) error

	// List retrieves all assets
	List(ctx context.Context) ([]*Asset, error)
}

// GoalRepository defines the interface for goal persistence operations
type GoalRepository interface {
	// GetByID retrieves a goal by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*Goal, error)

	// Create creates a new goal
	Create(ctx context.Context, goal *Goal) error

	// List retrieves all goals
	List(ctx context.Context) ([]*Goal, error)
}

// BalanceEventRepository defines the interface for the append-only balance
// event ledger. Reads return timestamp-ordered, immutable views.
type BalanceEventRepository interface {
	// Append records a new balance event
	Append(ctx context.Context, event *BalanceEvent) error

	// ListByAsset retrieves all balance events for an asset ordered by timestamp
	ListByAsset(ctx context.Context, assetID uuid.UUID) ([]BalanceEvent, error)
}

// AllocationRepository defines the interface for live allocation targets and
// the append-only allocation snapshot history.
type AllocationRepository interface {
	// GetTargets retrieves the live allocation targets for an asset as a
	// goal ID to amount mapping. Goals with no live target are absent.
	GetTargets(ctx context.Context, assetID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)

	// UpsertTarget creates or replaces the live target for a (asset, goal) pair
	UpsertTarget(ctx context.Context, target *AllocationTarget) error

	// AppendSnapshot records a new allocation snapshot
	AppendSnapshot(ctx context.Context, snapshot *AllocationSnapshot) error

	// ListSnapshots retrieves all snapshots for a (goal, asset) pair ordered
	// by timestamp
	ListSnapshots(ctx context.Context, assetID, goalID uuid.UUID) ([]AllocationSnapshot, error)
}

// PeriodRepository defines the interface for tracking period persistence
type PeriodRepository interface {
	// GetByID retrieves a tracking period with its tracked pairs
	GetByID(ctx context.Context, id uuid.UUID) (*TrackingPeriod, error)

	// Create creates a new tracking period
	Create(ctx context.Context, period *TrackingPeriod) error

	// Update persists the period's status, timestamps and tracked pairs
	Update(ctx context.Context, period *TrackingPeriod) error

	// Close atomically persists the closed period together with its
	// contributions: either everything commits or nothing does.
	Close(ctx context.Context, period *TrackingPeriod, contributions []*PersistedContribution) error
}

// ContributionRepository defines the read interface for persisted
// contributions of closed periods
type ContributionRepository interface {
	// ListByPeriod retrieves all persisted contributions for a period
	ListByPeriod(ctx context.Context, periodID uuid.UUID) ([]PersistedContribution, error)
}

// Conversion is the result of a currency conversion, carrying the rate
// snapshot that produced it. When Converted is false the amount is unchanged
// and still denominated in the source currency.
type Conversion struct {
	Amount        decimal.Decimal
	Currency      string
	Rate          decimal.Decimal
	RateTimestamp time.Time
	Converted     bool
}

// RateConverter supplies point-in-time currency conversion rates. May fail
// with ErrRateUnavailable when no rate is known for the pair and instant.
type RateConverter interface {
	// Convert converts amount from one currency to another using the rate in
	// effect at asOf
	Convert(ctx context.Context, amount decimal.Decimal, from, to string, asOf time.Time) (Conversion, error)
}
