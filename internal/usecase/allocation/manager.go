package allocation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/simaogato/goalflow-backend/internal/domain"
	"github.com/simaogato/goalflow-backend/internal/usecase/derivation"
)

// Manager maintains the live allocation target per (goal, asset) pair and
// writes allocation snapshots on every target change. It also enforces the
// auto-tracking rule for assets funding exactly one goal.
type Manager struct {
	EventRepo      domain.BalanceEventRepository
	AllocationRepo domain.AllocationRepository
	Locks          *AssetLocks
	Logger         *zap.Logger
}

// NewManager creates a new allocation Manager instance. The locks registry is
// shared with every other component that writes allocation state for the same
// assets.
func NewManager(
	eventRepo domain.BalanceEventRepository,
	allocationRepo domain.AllocationRepository,
	locks *AssetLocks,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		EventRepo:      eventRepo,
		AllocationRepo: allocationRepo,
		Locks:          locks,
		Logger:         logger,
	}
}

// UpdateAllocations replaces the live allocation target for every (asset,
// goal) pair touched by newTargets. For each changed value it appends a
// snapshot at the given timestamp; a goal previously allocated and now absent
// gets a zero target and a zero snapshot.
//
// Sums exceeding the asset's balance are not rejected: over-allocation is a
// legal, if discouraged, state that downstream derivation tolerates. It is
// logged as a warning here.
func (m *Manager) UpdateAllocations(ctx context.Context, assetID uuid.UUID, newTargets map[uuid.UUID]decimal.Decimal, at time.Time) error {
	if assetID == uuid.Nil {
		return domain.NewValidationError("asset ID cannot be empty")
	}
	for goalID, amount := range newTargets {
		if goalID == uuid.Nil {
			return domain.NewValidationError("goal ID cannot be empty")
		}
		if amount.IsNegative() {
			return domain.NewValidationError("allocation amount cannot be negative")
		}
	}

	// Hold the asset lock across the read-modify-write so a concurrent writer
	// cannot interleave between loading the current targets and writing
	lock := m.Locks.For(assetID)
	lock.Lock()
	defer lock.Unlock()

	current, err := m.AllocationRepo.GetTargets(ctx, assetID)
	if err != nil {
		return fmt.Errorf("failed to load current targets: %w", err)
	}

	// Changed or new values first
	for goalID, amount := range newTargets {
		existing, ok := current[goalID]
		if ok && existing.Equal(amount) {
			continue
		}
		if err := m.writeTarget(ctx, assetID, goalID, amount, at); err != nil {
			return err
		}
	}

	// Previously allocated goals absent from the new mapping drop to zero
	for goalID, existing := range current {
		if _, ok := newTargets[goalID]; ok {
			continue
		}
		if existing.IsZero() {
			continue
		}
		if err := m.writeTarget(ctx, assetID, goalID, decimal.Zero, at); err != nil {
			return err
		}
	}

	m.warnIfOverAllocated(ctx, assetID, newTargets, at)
	return nil
}

// RecordDeposit appends a new balance event for the asset and applies the
// auto-tracking rule: if, immediately before the event, the asset's targets
// summed to its balance and exactly one goal held a nonzero target, that
// goal's target follows the new balance and a matching snapshot is written at
// the event timestamp. In every other case (unallocated, shared, or partially
// allocated) the delta is left unallocated until a human acts.
func (m *Manager) RecordDeposit(ctx context.Context, assetID uuid.UUID, amount decimal.Decimal, at time.Time) (*domain.BalanceEvent, error) {
	event := &domain.BalanceEvent{
		ID:        uuid.New(),
		AssetID:   assetID,
		Amount:    amount,
		Timestamp: at,
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}

	// The auto-tracking decision depends on the balance and targets observed
	// before the event: serialize writers per asset so no concurrent deposit
	// or allocation edit computes from the same pre-state
	lock := m.Locks.For(assetID)
	lock.Lock()
	defer lock.Unlock()

	events, err := m.EventRepo.ListByAsset(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load balance events: %w", err)
	}
	balanceBefore := derivation.BalanceAt(events, at)

	targets, err := m.AllocationRepo.GetTargets(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load current targets: %w", err)
	}

	trackedGoalID, autoTrack := singleFullOwner(targets, balanceBefore)

	if err := m.EventRepo.Append(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to append balance event: %w", err)
	}

	if autoTrack {
		newTarget := balanceBefore.Add(amount)
		if newTarget.IsNegative() {
			newTarget = decimal.Zero
		}
		if err := m.writeTarget(ctx, assetID, trackedGoalID, newTarget, at); err != nil {
			return nil, err
		}
		m.Logger.Info("auto-tracked allocation target",
			zap.String("asset_id", assetID.String()),
			zap.String("goal_id", trackedGoalID.String()),
			zap.String("new_target", newTarget.String()),
		)
	}

	return event, nil
}

// writeTarget upserts the live target and appends the matching snapshot
func (m *Manager) writeTarget(ctx context.Context, assetID, goalID uuid.UUID, amount decimal.Decimal, at time.Time) error {
	target := &domain.AllocationTarget{
		AssetID: assetID,
		GoalID:  goalID,
		Amount:  amount,
	}
	if err := m.AllocationRepo.UpsertTarget(ctx, target); err != nil {
		return fmt.Errorf("failed to upsert allocation target: %w", err)
	}

	snapshot := &domain.AllocationSnapshot{
		ID:        uuid.New(),
		AssetID:   assetID,
		GoalID:    goalID,
		Amount:    amount,
		Timestamp: at,
	}
	if err := m.AllocationRepo.AppendSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to append allocation snapshot: %w", err)
	}
	return nil
}

// singleFullOwner reports whether the targets describe a fully and singly
// allocated asset: the target sum equals the balance and exactly one goal
// holds a nonzero target. Returns that goal's ID when so.
func singleFullOwner(targets map[uuid.UUID]decimal.Decimal, balance decimal.Decimal) (uuid.UUID, bool) {
	var owner uuid.UUID
	nonzero := 0
	sum := decimal.Zero
	for goalID, amount := range targets {
		sum = sum.Add(amount)
		if !amount.IsZero() {
			owner = goalID
			nonzero++
		}
	}
	if nonzero != 1 || !sum.Equal(balance) {
		return uuid.Nil, false
	}
	return owner, true
}

// warnIfOverAllocated logs when the new targets exceed the asset's balance
func (m *Manager) warnIfOverAllocated(ctx context.Context, assetID uuid.UUID, targets map[uuid.UUID]decimal.Decimal, at time.Time) {
	events, err := m.EventRepo.ListByAsset(ctx, assetID)
	if err != nil {
		return
	}
	balance := derivation.BalanceAt(events, at)

	sum := decimal.Zero
	for _, amount := range targets {
		sum = sum.Add(amount)
	}
	if sum.GreaterThan(balance) {
		m.Logger.Warn("allocation targets exceed asset balance",
			zap.String("asset_id", assetID.String()),
			zap.String("target_sum", sum.String()),
			zap.String("balance", balance.String()),
		)
	}
}
