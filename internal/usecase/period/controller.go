package period

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/simaogato/goalflow-backend/internal/domain"
	"github.com/simaogato/goalflow-backend/internal/usecase/allocation"
	"github.com/simaogato/goalflow-backend/internal/usecase/derivation"
)

// PairTotal is the derived contribution of one tracked (goal, asset) pair
// over a tracking window, in asset currency.
type PairTotal struct {
	GoalID   uuid.UUID
	AssetID  uuid.UUID
	Amount   decimal.Decimal
	Currency string
}

// Controller drives the tracking period state machine: draft -> executing ->
// closed. It seeds baseline allocation snapshots on start and, on close,
// crystallizes the period's derived totals into immutable persisted
// contributions exactly once.
type Controller struct {
	PeriodRepo     domain.PeriodRepository
	EventRepo      domain.BalanceEventRepository
	AllocationRepo domain.AllocationRepository
	AssetRepo      domain.AssetRepository
	GoalRepo       domain.GoalRepository
	Converter      domain.RateConverter
	AssetLocks     *allocation.AssetLocks
	Logger         *zap.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewController creates a new period Controller instance. assetLocks must be
// the same registry the allocation Manager writes under, so baseline seeding
// serializes with target and deposit writes on the same asset.
func NewController(
	periodRepo domain.PeriodRepository,
	eventRepo domain.BalanceEventRepository,
	allocationRepo domain.AllocationRepository,
	assetRepo domain.AssetRepository,
	goalRepo domain.GoalRepository,
	converter domain.RateConverter,
	assetLocks *allocation.AssetLocks,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		PeriodRepo:     periodRepo,
		EventRepo:      eventRepo,
		AllocationRepo: allocationRepo,
		AssetRepo:      assetRepo,
		GoalRepo:       goalRepo,
		Converter:      converter,
		AssetLocks:     assetLocks,
		Logger:         logger,
		locks:          make(map[uuid.UUID]*sync.Mutex),
	}
}

// lockFor returns the exclusive-section mutex for one period. Writers on the
// same period serialize; different periods do not contend.
func (c *Controller) lockFor(periodID uuid.UUID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[periodID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[periodID] = lock
	}
	return lock
}

// StartTracking transitions a draft period to executing at the given instant.
// For every tracked (goal, asset) pair lacking a prior allocation snapshot it
// seeds one equal to the current live target, establishing a stable zero
// reference for later interval deltas.
func (c *Controller) StartTracking(ctx context.Context, periodID uuid.UUID, pairs []domain.GoalAssetPair, at time.Time) error {
	lock := c.lockFor(periodID)
	lock.Lock()
	defer lock.Unlock()

	period, err := c.PeriodRepo.GetByID(ctx, periodID)
	if err != nil {
		return fmt.Errorf("failed to load period: %w", err)
	}

	if err := period.Start(pairs, at); err != nil {
		return err
	}

	for _, pair := range pairs {
		seeded, err := c.seedBaseline(ctx, pair, at)
		if err != nil {
			return err
		}
		if seeded {
			c.Logger.Info("seeded baseline allocation snapshot",
				zap.String("asset_id", pair.AssetID.String()),
				zap.String("goal_id", pair.GoalID.String()),
			)
		}
	}

	if err := c.PeriodRepo.Update(ctx, period); err != nil {
		return fmt.Errorf("failed to persist period start: %w", err)
	}
	return nil
}

// seedBaseline writes a snapshot equal to the live target for a pair that has
// no snapshot at or before the start instant. Reports whether it seeded one.
// Holds the pair's asset lock so the check-then-append cannot interleave with
// an allocation write on the same asset.
func (c *Controller) seedBaseline(ctx context.Context, pair domain.GoalAssetPair, at time.Time) (bool, error) {
	assetLock := c.AssetLocks.For(pair.AssetID)
	assetLock.Lock()
	defer assetLock.Unlock()

	snapshots, err := c.AllocationRepo.ListSnapshots(ctx, pair.AssetID, pair.GoalID)
	if err != nil {
		return false, fmt.Errorf("failed to list allocation snapshots: %w", err)
	}
	for _, s := range snapshots {
		if !s.Timestamp.After(at) {
			return false, nil
		}
	}

	targets, err := c.AllocationRepo.GetTargets(ctx, pair.AssetID)
	if err != nil {
		return false, fmt.Errorf("failed to load live targets: %w", err)
	}
	live := targets[pair.GoalID] // zero when the pair has no live target yet

	baseline := &domain.AllocationSnapshot{
		ID:        uuid.New(),
		AssetID:   pair.AssetID,
		GoalID:    pair.GoalID,
		Amount:    live,
		Timestamp: at,
	}
	if err := c.AllocationRepo.AppendSnapshot(ctx, baseline); err != nil {
		return false, fmt.Errorf("failed to seed baseline snapshot: %w", err)
	}
	return true, nil
}

// GetDerivedTotals recomputes the interval-aggregated contribution of every
// tracked pair over [startedAt, asOf) from current ledger state. Valid only
// while the period is executing; read-only and safe to call repeatedly.
func (c *Controller) GetDerivedTotals(ctx context.Context, periodID uuid.UUID, asOf time.Time) ([]PairTotal, error) {
	period, err := c.PeriodRepo.GetByID(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to load period: %w", err)
	}
	if period.Status != domain.PeriodStatusExecuting {
		return nil, &domain.StateError{Op: "get derived totals", Status: period.Status}
	}
	return c.deriveTotals(ctx, period, asOf)
}

// deriveTotals computes pair totals over [startedAt, asOf) for a period known
// to be executing
func (c *Controller) deriveTotals(ctx context.Context, period *domain.TrackingPeriod, asOf time.Time) ([]PairTotal, error) {
	byAsset := make(map[uuid.UUID][]uuid.UUID)
	for _, pair := range period.TrackedPairs {
		byAsset[pair.AssetID] = append(byAsset[pair.AssetID], pair.GoalID)
	}

	contributions := make(map[domain.GoalAssetPair]decimal.Decimal)
	currencies := make(map[uuid.UUID]string)
	for assetID, goalIDs := range byAsset {
		asset, err := c.AssetRepo.GetByID(ctx, assetID)
		if err != nil {
			return nil, fmt.Errorf("failed to load asset: %w", err)
		}
		currencies[assetID] = asset.Currency

		ledger, err := c.buildLedger(ctx, assetID, goalIDs)
		if err != nil {
			return nil, err
		}

		perGoal, warnings := derivation.Contributions(ledger, *period.StartedAt, asOf)
		for _, warning := range warnings {
			c.Logger.Warn("over-allocation during derivation", zap.String("detail", warning.String()))
		}
		for goalID, amount := range perGoal {
			contributions[domain.GoalAssetPair{GoalID: goalID, AssetID: assetID}] = amount
		}
	}

	// Iterate the tracked pairs so the result order is stable
	totals := make([]PairTotal, 0, len(period.TrackedPairs))
	for _, pair := range period.TrackedPairs {
		totals = append(totals, PairTotal{
			GoalID:   pair.GoalID,
			AssetID:  pair.AssetID,
			Amount:   contributions[pair],
			Currency: currencies[pair.AssetID],
		})
	}
	return totals, nil
}

// buildLedger assembles the derivation input for one asset: its full balance
// event history plus the snapshot series and live target of every tracked
// goal it funds.
func (c *Controller) buildLedger(ctx context.Context, assetID uuid.UUID, goalIDs []uuid.UUID) (derivation.AssetLedger, error) {
	events, err := c.EventRepo.ListByAsset(ctx, assetID)
	if err != nil {
		return derivation.AssetLedger{}, fmt.Errorf("failed to load balance events: %w", err)
	}

	targets, err := c.AllocationRepo.GetTargets(ctx, assetID)
	if err != nil {
		return derivation.AssetLedger{}, fmt.Errorf("failed to load live targets: %w", err)
	}

	goals := make([]derivation.GoalSeries, 0, len(goalIDs))
	for _, goalID := range goalIDs {
		snapshots, err := c.AllocationRepo.ListSnapshots(ctx, assetID, goalID)
		if err != nil {
			return derivation.AssetLedger{}, fmt.Errorf("failed to list allocation snapshots: %w", err)
		}
		goals = append(goals, derivation.GoalSeries{
			GoalID:     goalID,
			Snapshots:  snapshots,
			LiveTarget: targets[goalID],
		})
	}

	return derivation.AssetLedger{AssetID: assetID, Events: events, Goals: goals}, nil
}

// MarkComplete transitions an executing period to closed at completedAt. It
// derives the period's totals over [startedAt, completedAt) exactly once,
// converts each pair total to goal currency capturing the rate used, and
// persists one contribution per tracked pair atomically with the status flip.
//
// When a rate is unavailable the contribution keeps its source currency and
// is flagged unconverted. Any other conversion or persistence failure aborts
// the close: the period stays executing and nothing is written.
func (c *Controller) MarkComplete(ctx context.Context, periodID uuid.UUID, completedAt time.Time) error {
	lock := c.lockFor(periodID)
	lock.Lock()
	defer lock.Unlock()

	period, err := c.PeriodRepo.GetByID(ctx, periodID)
	if err != nil {
		return fmt.Errorf("failed to load period: %w", err)
	}
	if period.Status != domain.PeriodStatusExecuting {
		return &domain.StateError{Op: "mark complete", Status: period.Status}
	}

	totals, err := c.deriveTotals(ctx, period, completedAt)
	if err != nil {
		return err
	}

	contributions := make([]*domain.PersistedContribution, 0, len(totals))
	for _, total := range totals {
		goal, err := c.GoalRepo.GetByID(ctx, total.GoalID)
		if err != nil {
			return fmt.Errorf("failed to load goal: %w", err)
		}

		row := &domain.PersistedContribution{
			ID:        uuid.New(),
			PeriodID:  period.ID,
			GoalID:    total.GoalID,
			AssetID:   total.AssetID,
			Timestamp: completedAt,
		}

		conversion, err := c.Converter.Convert(ctx, total.Amount, total.Currency, goal.Currency, completedAt)
		switch {
		case err == nil:
			row.Amount = conversion.Amount
			row.Currency = conversion.Currency
			row.Rate = domain.RateSnapshot{
				Rate:          conversion.Rate,
				RateTimestamp: conversion.RateTimestamp,
				Converted:     true,
			}
		case errors.Is(err, domain.ErrRateUnavailable):
			// No fabricated rate: keep the source currency, flag unconverted
			row.Amount = total.Amount
			row.Currency = total.Currency
			row.Rate = domain.RateSnapshot{Converted: false}
			c.Logger.Warn("rate unavailable at period close, keeping source currency",
				zap.String("goal_id", total.GoalID.String()),
				zap.String("from", total.Currency),
				zap.String("to", goal.Currency),
			)
		default:
			return fmt.Errorf("failed to convert contribution: %w", err)
		}

		contributions = append(contributions, row)
	}

	if err := period.Complete(completedAt); err != nil {
		return err
	}
	if err := c.PeriodRepo.Close(ctx, period, contributions); err != nil {
		return fmt.Errorf("failed to close period: %w", err)
	}

	c.Logger.Info("tracking period closed",
		zap.String("period_id", period.ID.String()),
		zap.Int("contributions", len(contributions)),
	)
	return nil
}
