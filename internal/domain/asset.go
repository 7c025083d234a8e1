package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Asset represents a balance-holding entity in the domain layer.
// Its value changes only through appended BalanceEvents.
type Asset struct {
	ID       uuid.UUID
	Name     string
	Currency string // ISO-4217 code, e.g. "EUR"
}

// Validate ensures the asset adheres to domain rules
func (a *Asset) Validate() error {
	if a.Name == "" {
		return NewValidationError("asset name cannot be empty")
	}
	if a.Currency == "" {
		return NewValidationError("asset currency cannot be empty")
	}
	return nil
}

// Goal represents a savings target funded by one or more assets.
// TargetAmount is the overall savings target in the goal's currency and is
// display-only: it never influences funded-amount derivation.
type Goal struct {
	ID           uuid.UUID
	Name         string
	Currency     string
	TargetAmount decimal.Decimal
}

// Validate ensures the goal adheres to domain rules
func (g *Goal) Validate() error {
	if g.Name == "" {
		return NewValidationError("goal name cannot be empty")
	}
	if g.Currency == "" {
		return NewValidationError("goal currency cannot be empty")
	}
	if g.TargetAmount.IsNegative() {
		return NewValidationError("goal target amount cannot be negative")
	}
	return nil
}
