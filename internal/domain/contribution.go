package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RateSnapshot captures the exchange rate used when a contribution was
// persisted. When no rate was available the contribution keeps its source
// currency and Converted is false; a rate is never fabricated.
type RateSnapshot struct {
	Rate          decimal.Decimal
	RateTimestamp time.Time
	Converted     bool
}

// PersistedContribution is an immutable historical record created only at
// period close: the net derived contribution of one asset toward one goal
// over the period's tracking window, converted to goal currency when a rate
// was available. Rows are never mutated or regenerated after creation.
type PersistedContribution struct {
	ID        uuid.UUID
	PeriodID  uuid.UUID
	GoalID    uuid.UUID
	AssetID   uuid.UUID
	Amount    decimal.Decimal
	Currency  string
	Timestamp time.Time
	Rate      RateSnapshot
}

// Validate ensures the persisted contribution adheres to domain rules
func (c *PersistedContribution) Validate() error {
	if c.PeriodID == uuid.Nil {
		return NewValidationError("contribution must reference a period")
	}
	if c.GoalID == uuid.Nil || c.AssetID == uuid.Nil {
		return NewValidationError("contribution must reference a goal and an asset")
	}
	if c.Currency == "" {
		return NewValidationError("contribution currency cannot be empty")
	}
	if c.Timestamp.IsZero() {
		return NewValidationError("contribution timestamp cannot be zero")
	}
	return nil
}
