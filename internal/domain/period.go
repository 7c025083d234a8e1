package domain

import (
	"time"

	"github.com/google/uuid"
)

// PeriodStatus represents the lifecycle status of a tracking period
type PeriodStatus string

const (
	PeriodStatusDraft     PeriodStatus = "DRAFT"
	PeriodStatusExecuting PeriodStatus = "EXECUTING"
	PeriodStatusClosed    PeriodStatus = "CLOSED"
)

// GoalAssetPair identifies one tracked (goal, asset) funding relationship
type GoalAssetPair struct {
	GoalID  uuid.UUID
	AssetID uuid.UUID
}

// TrackingPeriod is the bounded window during which derived contributions
// accumulate before being crystallized into persisted records.
//
// Lifecycle: DRAFT -> EXECUTING -> CLOSED. No transition skips a state and no
// backward transition exists. StartedAt is set exactly once at the
// draft->executing transition, CompletedAt exactly once at executing->closed.
// Once closed the period is immutable.
type TrackingPeriod struct {
	ID           uuid.UUID
	Year         int
	Month        time.Month
	Status       PeriodStatus
	StartedAt    *time.Time
	CompletedAt  *time.Time
	TrackedPairs []GoalAssetPair
}

// NewTrackingPeriod creates a draft period for the given planning month
func NewTrackingPeriod(year int, month time.Month) *TrackingPeriod {
	return &TrackingPeriod{
		ID:     uuid.New(),
		Year:   year,
		Month:  month,
		Status: PeriodStatusDraft,
	}
}

// Start transitions the period from draft to executing, recording the tracked
// pairs and the start instant. Returns a StateError if the period is not in
// draft.
func (p *TrackingPeriod) Start(pairs []GoalAssetPair, at time.Time) error {
	if p.Status != PeriodStatusDraft {
		return &StateError{Op: "start tracking", Status: p.Status}
	}
	if len(pairs) == 0 {
		return NewValidationError("tracking period must track at least one goal-asset pair")
	}
	started := at
	p.StartedAt = &started
	p.TrackedPairs = pairs
	p.Status = PeriodStatusExecuting
	return nil
}

// Complete transitions the period from executing to closed. Returns a
// StateError if the period is not executing, or a ValidationError if the
// close instant does not come after the start instant.
func (p *TrackingPeriod) Complete(at time.Time) error {
	if p.Status != PeriodStatusExecuting {
		return &StateError{Op: "mark complete", Status: p.Status}
	}
	if !at.After(*p.StartedAt) {
		return NewValidationError("completion timestamp must come after the start timestamp")
	}
	completed := at
	p.CompletedAt = &completed
	p.Status = PeriodStatusClosed
	return nil
}
