package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/simaogato/goalflow-backend/internal/domain"
	"github.com/simaogato/goalflow-backend/internal/usecase/period"
)

// UnconvertedAmount is a contribution share that could not be converted to
// the goal's currency because no rate was available.
type UnconvertedAmount struct {
	Amount   decimal.Decimal
	Currency string
}

// GoalProgress is the per-goal view of a tracking period: how much was
// contributed toward the goal over the period, against its target amount.
type GoalProgress struct {
	GoalID       uuid.UUID
	Name         string
	Currency     string
	Contributed  decimal.Decimal // in goal currency
	Unconverted  []UnconvertedAmount
	TargetAmount decimal.Decimal
	Display      string // formatted contributed amount, e.g. "€1,234.56"
}

// DerivedTotalsProvider supplies recomputed pair totals for executing periods
type DerivedTotalsProvider interface {
	GetDerivedTotals(ctx context.Context, periodID uuid.UUID, asOf time.Time) ([]period.PairTotal, error)
}

// Service assembles goal progress for display. Executing periods are
// recomputed from current ledger state; closed periods read only the
// persisted contribution rows and never re-derive.
type Service struct {
	PeriodRepo       domain.PeriodRepository
	ContributionRepo domain.ContributionRepository
	GoalRepo         domain.GoalRepository
	Totals           DerivedTotalsProvider
	Converter        domain.RateConverter
	Logger           *zap.Logger
}

// NewService creates a new progress Service instance
func NewService(
	periodRepo domain.PeriodRepository,
	contributionRepo domain.ContributionRepository,
	goalRepo domain.GoalRepository,
	totals DerivedTotalsProvider,
	converter domain.RateConverter,
	logger *zap.Logger,
) *Service {
	return &Service{
		PeriodRepo:       periodRepo,
		ContributionRepo: contributionRepo,
		GoalRepo:         goalRepo,
		Totals:           totals,
		Converter:        converter,
		Logger:           logger,
	}
}

// GetProgress returns per-goal progress for a tracking period as of the given
// instant. Draft periods have no progress to report.
func (s *Service) GetProgress(ctx context.Context, periodID uuid.UUID, asOf time.Time) ([]GoalProgress, error) {
	trackingPeriod, err := s.PeriodRepo.GetByID(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to load period: %w", err)
	}

	switch trackingPeriod.Status {
	case domain.PeriodStatusExecuting:
		return s.progressFromDerived(ctx, trackingPeriod, asOf)
	case domain.PeriodStatusClosed:
		return s.progressFromPersisted(ctx, trackingPeriod)
	default:
		return nil, &domain.StateError{Op: "get progress", Status: trackingPeriod.Status}
	}
}

// progressFromDerived recomputes totals for an open period and converts them
// to goal currency for display. Unavailable rates leave the share in its
// source currency instead of fabricating a rate.
func (s *Service) progressFromDerived(ctx context.Context, trackingPeriod *domain.TrackingPeriod, asOf time.Time) ([]GoalProgress, error) {
	totals, err := s.Totals.GetDerivedTotals(ctx, trackingPeriod.ID, asOf)
	if err != nil {
		return nil, err
	}

	byGoal := make(map[uuid.UUID]*GoalProgress)
	order := make([]uuid.UUID, 0)

	for _, total := range totals {
		entry, err := s.goalEntry(ctx, byGoal, &order, total.GoalID)
		if err != nil {
			return nil, err
		}

		if total.Currency == entry.Currency {
			entry.Contributed = entry.Contributed.Add(total.Amount)
			continue
		}

		conversion, err := s.Converter.Convert(ctx, total.Amount, total.Currency, entry.Currency, asOf)
		if err != nil {
			if errors.Is(err, domain.ErrRateUnavailable) {
				entry.Unconverted = append(entry.Unconverted, UnconvertedAmount{Amount: total.Amount, Currency: total.Currency})
				s.Logger.Warn("rate unavailable for progress display",
					zap.String("goal_id", total.GoalID.String()),
					zap.String("from", total.Currency),
					zap.String("to", entry.Currency),
				)
				continue
			}
			return nil, fmt.Errorf("failed to convert contribution: %w", err)
		}
		entry.Contributed = entry.Contributed.Add(conversion.Amount)
	}

	return s.finish(byGoal, order), nil
}

// progressFromPersisted reads only the crystallized rows of a closed period
func (s *Service) progressFromPersisted(ctx context.Context, trackingPeriod *domain.TrackingPeriod) ([]GoalProgress, error) {
	rows, err := s.ContributionRepo.ListByPeriod(ctx, trackingPeriod.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted contributions: %w", err)
	}

	byGoal := make(map[uuid.UUID]*GoalProgress)
	order := make([]uuid.UUID, 0)

	for _, row := range rows {
		entry, err := s.goalEntry(ctx, byGoal, &order, row.GoalID)
		if err != nil {
			return nil, err
		}
		if row.Rate.Converted || row.Currency == entry.Currency {
			entry.Contributed = entry.Contributed.Add(row.Amount)
		} else {
			entry.Unconverted = append(entry.Unconverted, UnconvertedAmount{Amount: row.Amount, Currency: row.Currency})
		}
	}

	return s.finish(byGoal, order), nil
}

func (s *Service) goalEntry(ctx context.Context, byGoal map[uuid.UUID]*GoalProgress, order *[]uuid.UUID, goalID uuid.UUID) (*GoalProgress, error) {
	if entry, ok := byGoal[goalID]; ok {
		return entry, nil
	}
	goal, err := s.GoalRepo.GetByID(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load goal: %w", err)
	}
	entry := &GoalProgress{
		GoalID:       goal.ID,
		Name:         goal.Name,
		Currency:     goal.Currency,
		Contributed:  decimal.Zero,
		TargetAmount: goal.TargetAmount,
	}
	byGoal[goalID] = entry
	*order = append(*order, goalID)
	return entry, nil
}

func (s *Service) finish(byGoal map[uuid.UUID]*GoalProgress, order []uuid.UUID) []GoalProgress {
	result := make([]GoalProgress, 0, len(order))
	for _, goalID := range order {
		entry := byGoal[goalID]
		entry.Display = FormatAmount(entry.Contributed, entry.Currency)
		result = append(result, *entry)
	}
	return result
}

// FormatAmount renders a decimal amount in the locale format of its currency
func FormatAmount(amount decimal.Decimal, code string) string {
	currency := money.GetCurrency(code)
	if currency == nil {
		return amount.String() + " " + code
	}
	minor := amount.Shift(int32(currency.Fraction)).Round(0).IntPart()
	return money.New(minor, code).Display()
}
