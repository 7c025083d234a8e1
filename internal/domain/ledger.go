package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceEvent represents a single balance-affecting event on an asset.
// Amount is signed in asset-currency units; negative means withdrawal.
// Immutable once recorded: events are only ever appended.
type BalanceEvent struct {
	ID        uuid.UUID
	AssetID   uuid.UUID
	Amount    decimal.Decimal
	Timestamp time.Time
}

// Validate ensures the balance event adheres to domain rules
func (e *BalanceEvent) Validate() error {
	if e.AssetID == uuid.Nil {
		return NewValidationError("balance event must reference an asset")
	}
	if e.Amount.IsZero() {
		return NewValidationError("balance event amount cannot be zero")
	}
	if e.Timestamp.IsZero() {
		return NewValidationError("balance event timestamp cannot be zero")
	}
	return nil
}

// AllocationTarget is the live earmarked amount from one asset toward one
// goal, in asset currency. At most one live value exists per (asset, goal)
// pair. It represents "now" and is not itself historical.
type AllocationTarget struct {
	AssetID uuid.UUID
	GoalID  uuid.UUID
	Amount  decimal.Decimal
}

// Validate ensures the allocation target adheres to domain rules.
// Zero is a valid target (goal removed from allocation); negative is not.
func (t *AllocationTarget) Validate() error {
	if t.AssetID == uuid.Nil || t.GoalID == uuid.Nil {
		return NewValidationError("allocation target must reference an asset and a goal")
	}
	if t.Amount.IsNegative() {
		return NewValidationError("allocation target amount cannot be negative")
	}
	return nil
}

// AllocationSnapshot is an immutable record of what the allocation target for
// a (goal, asset) pair was at a given timestamp. For a fixed pair, snapshots
// are totally ordered by timestamp and the value in effect at any instant t is
// the snapshot with the greatest timestamp <= t.
type AllocationSnapshot struct {
	ID        uuid.UUID
	AssetID   uuid.UUID
	GoalID    uuid.UUID
	Amount    decimal.Decimal
	Timestamp time.Time
}

// Validate ensures the allocation snapshot adheres to domain rules
func (s *AllocationSnapshot) Validate() error {
	if s.AssetID == uuid.Nil || s.GoalID == uuid.Nil {
		return NewValidationError("allocation snapshot must reference an asset and a goal")
	}
	if s.Amount.IsNegative() {
		return NewValidationError("allocation snapshot amount cannot be negative")
	}
	if s.Timestamp.IsZero() {
		return NewValidationError("allocation snapshot timestamp cannot be zero")
	}
	return nil
}

// TargetSource identifies which tier a target lookup resolved from
type TargetSource string

const (
	// TargetSourceHistorical means the value came from an allocation snapshot
	TargetSourceHistorical TargetSource = "HISTORICAL"
	// TargetSourceLiveFallback means no snapshot preceded the lookup instant
	// and the live allocation target was used instead (first-run bootstrap)
	TargetSourceLiveFallback TargetSource = "LIVE_FALLBACK"
)

// TargetValue is the result of the two-tier target lookup: the snapshot list
// first, the live allocation target as fallback. Callers can distinguish
// bootstrap state from steady state via Source.
type TargetValue struct {
	Amount decimal.Decimal
	Source TargetSource
}
