package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrRateUnavailable is returned by a RateConverter when no exchange rate is
// known for the requested currency pair and instant. It is non-fatal: callers
// fall back to the source currency and flag the result as unconverted.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// ValidationError indicates malformed input rejected before any write
// (negative amounts, missing entity references).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// NewValidationError creates a ValidationError with the given reason
func NewValidationError(reason string) error {
	return &ValidationError{Reason: reason}
}

// IsValidationError reports whether err is a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StateError indicates an operation invalid for the current tracking period
// status. It is rejected synchronously with no side effects.
type StateError struct {
	Op     string
	Status PeriodStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s not allowed while period is %s", e.Op, e.Status)
}

// IsStateError reports whether err is a StateError
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

// ConsistencyWarning reports over-allocation detected during computation: the
// targets for an asset summed to more than its balance at some instant. This
// is a legitimate reachable state (e.g. an external withdrawal after
// allocation), so it is surfaced to the caller and never blocks computation.
type ConsistencyWarning struct {
	AssetID   uuid.UUID
	At        time.Time
	Balance   decimal.Decimal
	TargetSum decimal.Decimal
}

func (w ConsistencyWarning) String() string {
	return fmt.Sprintf("asset %s over-allocated at %s: targets %s exceed balance %s",
		w.AssetID, w.At.Format(time.RFC3339), w.TargetSum, w.Balance)
}
