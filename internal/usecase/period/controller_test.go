package period

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/simaogato/goalflow-backend/internal/domain"
	"github.com/simaogato/goalflow-backend/internal/usecase/allocation"
)

// MockPeriodRepository is a mock implementation of PeriodRepository for testing
type MockPeriodRepository struct {
	mock.Mock
}

func (m *MockPeriodRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TrackingPeriod, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TrackingPeriod), args.Error(1)
}

func (m *MockPeriodRepository) Create(ctx context.Context, period *domain.TrackingPeriod) error {
	args := m.Called(ctx, period)
	return args.Error(0)
}

func (m *MockPeriodRepository) Update(ctx context.Context, period *domain.TrackingPeriod) error {
	args := m.Called(ctx, period)
	return args.Error(0)
}

func (m *MockPeriodRepository) Close(ctx context.Context, period *domain.TrackingPeriod, contributions []*domain.PersistedContribution) error {
	args := m.Called(ctx, period, contributions)
	return args.Error(0)
}

// MockBalanceEventRepository is a mock implementation of BalanceEventRepository for testing
type MockBalanceEventRepository struct {
	mock.Mock
}

func (m *MockBalanceEventRepository) Append(ctx context.Context, event *domain.BalanceEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockBalanceEventRepository) ListByAsset(ctx context.Context, assetID uuid.UUID) ([]domain.BalanceEvent, error) {
	args := m.Called(ctx, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.BalanceEvent), args.Error(1)
}

// MockAllocationRepository is a mock implementation of AllocationRepository for testing
type MockAllocationRepository struct {
	mock.Mock
}

func (m *MockAllocationRepository) GetTargets(ctx context.Context, assetID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	args := m.Called(ctx, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]decimal.Decimal), args.Error(1)
}

func (m *MockAllocationRepository) UpsertTarget(ctx context.Context, target *domain.AllocationTarget) error {
	args := m.Called(ctx, target)
	return args.Error(0)
}

func (m *MockAllocationRepository) AppendSnapshot(ctx context.Context, snapshot *domain.AllocationSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockAllocationRepository) ListSnapshots(ctx context.Context, assetID, goalID uuid.UUID) ([]domain.AllocationSnapshot, error) {
	args := m.Called(ctx, assetID, goalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AllocationSnapshot), args.Error(1)
}

// MockAssetRepository is a mock implementation of AssetRepository for testing
type MockAssetRepository struct {
	mock.Mock
}

func (m *MockAssetRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Asset, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Asset), args.Error(1)
}

func (m *MockAssetRepository) Create(ctx context.Context, asset *domain.Asset) error {
	args := m.Called(ctx, asset)
	return args.Error(0)
}

func (m *MockAssetRepository) List(ctx context.Context) ([]*domain.Asset, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Asset), args.Error(1)
}

// MockGoalRepository is a mock implementation of GoalRepository for testing
type MockGoalRepository struct {
	mock.Mock
}

func (m *MockGoalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Goal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Goal), args.Error(1)
}

func (m *MockGoalRepository) Create(ctx context.Context, goal *domain.Goal) error {
	args := m.Called(ctx, goal)
	return args.Error(0)
}

func (m *MockGoalRepository) List(ctx context.Context) ([]*domain.Goal, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Goal), args.Error(1)
}

// MockRateConverter is a mock implementation of RateConverter for testing
type MockRateConverter struct {
	mock.Mock
}

func (m *MockRateConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string, asOf time.Time) (domain.Conversion, error) {
	args := m.Called(ctx, amount, from, to, asOf)
	return args.Get(0).(domain.Conversion), args.Error(1)
}

type controllerMocks struct {
	periods     *MockPeriodRepository
	events      *MockBalanceEventRepository
	allocations *MockAllocationRepository
	assets      *MockAssetRepository
	goals       *MockGoalRepository
	converter   *MockRateConverter
}

func newTestController() (*Controller, *controllerMocks) {
	mocks := &controllerMocks{
		periods:     new(MockPeriodRepository),
		events:      new(MockBalanceEventRepository),
		allocations: new(MockAllocationRepository),
		assets:      new(MockAssetRepository),
		goals:       new(MockGoalRepository),
		converter:   new(MockRateConverter),
	}
	controller := NewController(
		mocks.periods, mocks.events, mocks.allocations,
		mocks.assets, mocks.goals, mocks.converter,
		allocation.NewAssetLocks(), zap.NewNop(),
	)
	return controller, mocks
}

var start = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

func TestStartTracking_FailsWhenNotDraft(t *testing.T) {
	ctx := context.Background()
	controller, mocks := newTestController()

	period := domain.NewTrackingPeriod(2025, time.March)
	period.Status = domain.PeriodStatusExecuting
	mocks.periods.On("GetByID", ctx, period.ID).Return(period, nil)

	err := controller.StartTracking(ctx, period.ID, []domain.GoalAssetPair{
		{GoalID: uuid.New(), AssetID: uuid.New()},
	}, start)

	require.Error(t, err)
	assert.True(t, domain.IsStateError(err))
	mocks.periods.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestStartTracking_SeedsBaselineForUnsnapshottedPairs(t *testing.T) {
	ctx := context.Background()
	controller, mocks := newTestController()

	assetID := uuid.New()
	seededGoal := uuid.New()
	historicGoal := uuid.New()
	period := domain.NewTrackingPeriod(2025, time.March)
	pairs := []domain.GoalAssetPair{
		{GoalID: seededGoal, AssetID: assetID},
		{GoalID: historicGoal, AssetID: assetID},
	}

	mocks.periods.On("GetByID", ctx, period.ID).Return(period, nil)
	mocks.allocations.On("ListSnapshots", ctx, assetID, seededGoal).Return([]domain.AllocationSnapshot{}, nil)
	mocks.allocations.On("ListSnapshots", ctx, assetID, historicGoal).Return([]domain.AllocationSnapshot{
		{ID: uuid.New(), AssetID: assetID, GoalID: historicGoal, Amount: decimal.NewFromInt(40), Timestamp: start.AddDate(0, -1, 0)},
	}, nil)
	mocks.allocations.On("GetTargets", ctx, assetID).Return(map[uuid.UUID]decimal.Decimal{
		seededGoal: decimal.NewFromInt(120),
	}, nil)
	mocks.allocations.On("AppendSnapshot", ctx, mock.MatchedBy(func(s *domain.AllocationSnapshot) bool {
		return s.GoalID == seededGoal && s.Amount.Equal(decimal.NewFromInt(120)) && s.Timestamp.Equal(start)
	})).Return(nil)
	mocks.periods.On("Update", ctx, period).Return(nil)

	err := controller.StartTracking(ctx, period.ID, pairs, start)

	require.NoError(t, err)
	assert.Equal(t, domain.PeriodStatusExecuting, period.Status)
	require.NotNil(t, period.StartedAt)
	assert.True(t, period.StartedAt.Equal(start))
	mocks.allocations.AssertNumberOfCalls(t, "AppendSnapshot", 1)
}

func TestGetDerivedTotals_FailsUnlessExecuting(t *testing.T) {
	ctx := context.Background()
	controller, mocks := newTestController()

	period := domain.NewTrackingPeriod(2025, time.March)
	mocks.periods.On("GetByID", ctx, period.ID).Return(period, nil)

	_, err := controller.GetDerivedTotals(ctx, period.ID, start)

	require.Error(t, err)
	assert.True(t, domain.IsStateError(err))
}

// executingPeriod builds a period already tracking one (goal, asset) pair
func executingPeriod(goalID, assetID uuid.UUID) *domain.TrackingPeriod {
	period := domain.NewTrackingPeriod(2025, time.March)
	startedAt := start
	period.Status = domain.PeriodStatusExecuting
	period.StartedAt = &startedAt
	period.TrackedPairs = []domain.GoalAssetPair{{GoalID: goalID, AssetID: assetID}}
	return period
}

func TestGetDerivedTotals_ZeroRightAfterBaseline(t *testing.T) {
	ctx := context.Background()
	controller, mocks := newTestController()

	assetID := uuid.New()
	goalID := uuid.New()
	period := executingPeriod(goalID, assetID)

	mocks.periods.On("GetByID", ctx, period.ID).Return(period, nil)
	mocks.assets.On("GetByID", ctx, assetID).Return(&domain.Asset{ID: assetID, Name: "Savings", Currency: "EUR"}, nil)
	mocks.events.On("ListByAsset", ctx, assetID).Return([]domain.BalanceEvent{
		{ID: uuid.New(), AssetID: assetID, Amount: decimal.NewFromInt(500), Timestamp: start.AddDate(0, -1, 0)},
	}, nil)
	mocks.allocations.On("GetTargets", ctx, assetID).Return(map[uuid.UUID]decimal.Decimal{
		goalID: decimal.NewFromInt(120),
	}, nil)
	mocks.allocations.On("ListSnapshots", ctx, assetID, goalID).Return([]domain.AllocationSnapshot{
		{ID: uuid.New(), AssetID: assetID, GoalID: goalID, Amount: decimal.NewFromInt(120), Timestamp: start},
	}, nil)

	totals, err := controller.GetDerivedTotals(ctx, period.ID, start.Add(time.Hour))

	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.True(t, totals[0].Amount.IsZero(), "baseline seeding must yield a zero reference, got %s", totals[0].Amount)
	assert.Equal(t, "EUR", totals[0].Currency)
}

func TestGetDerivedTotals_CapturesDepositAfterStart(t *testing.T) {
	ctx := context.Background()
	controller, mocks := newTestController()

	assetID := uuid.New()
	goalID := uuid.New()
	period := executingPeriod(goalID, assetID)
	depositAt := start.AddDate(0, 0, 10)

	mocks.periods.On("GetByID", ctx, period.ID).Return(period, nil)
	mocks.assets.On("GetByID", ctx, assetID).Return(&domain.Asset{ID: assetID, Name: "Savings", Currency: "EUR"}, nil)
	mocks.events.On("ListByAsset", ctx, assetID).Return([]domain.BalanceEvent{
		{ID: uuid.New(), AssetID: assetID, Amount: decimal.NewFromInt(100), Timestamp: start.AddDate(0, -1, 0)},
		{ID: uuid.New(), AssetID: assetID, Amount: decimal.NewFromInt(50), Timestamp: depositAt},
	}, nil)
	mocks.allocations.On("GetTargets", ctx, assetID).Return(map[uuid.UUID]decimal.Decimal{
		goalID: decimal.NewFromInt(150),
	}, nil)
	mocks.allocations.On("ListSnapshots", ctx, assetID, goalID).Return([]domain.AllocationSnapshot{
		{ID: uuid.New(), AssetID: assetID, GoalID: goalID, Amount: decimal.NewFromInt(100), Timestamp: start},
		{ID: uuid.New(), AssetID: assetID, GoalID: goalID, Amount: decimal.NewFromInt(150), Timestamp: depositAt},
	}, nil)

	totals, err := controller.GetDerivedTotals(ctx, period.ID, start.AddDate(0, 1, 0))

	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.True(t, totals[0].Amount.Equal(decimal.NewFromInt(50)),
		"expected contribution 50, got %s", totals[0].Amount)
}

func TestMarkComplete_WritesConvertedContributions(t *testing.T) {
	ctx := context.Background()
	controller, mocks := newTestController()

	assetID := uuid.New()
	goalID := uuid.New()
	period := executingPeriod(goalID, assetID)
	completedAt := start.AddDate(0, 1, 0)
	rateAt := completedAt.Add(-time.Hour)

	mocks.periods.On("GetByID", ctx, period.ID).Return(period, nil)
	mocks.assets.On("GetByID", ctx, assetID).Return(&domain.Asset{ID: assetID, Name: "Savings", Currency: "USD"}, nil)
	mocks.goals.On("GetByID", ctx, goalID).Return(&domain.Goal{ID: goalID, Name: "House", Currency: "EUR"}, nil)
	mocks.events.On("ListByAsset", ctx, assetID).Return([]domain.BalanceEvent{
		{ID: uuid.New(), AssetID: assetID, Amount: decimal.NewFromInt(100), Timestamp: start.AddDate(0, 0, 5)},
	}, nil)
	mocks.allocations.On("GetTargets", ctx, assetID).Return(map[uuid.UUID]decimal.Decimal{
		goalID: decimal.NewFromInt(100),
	}, nil)
	mocks.allocations.On("ListSnapshots", ctx, assetID, goalID).Return([]domain.AllocationSnapshot{
		{ID: uuid.New(), AssetID: assetID, GoalID: goalID, Amount: decimal.Zero, Timestamp: start},
		{ID: uuid.New(), AssetID: assetID, GoalID: goalID, Amount: decimal.NewFromInt(100), Timestamp: start.AddDate(0, 0, 5)},
	}, nil)
	mocks.converter.On("Convert", ctx, mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(decimal.NewFromInt(100))
	}), "USD", "EUR", completedAt).Return(domain.Conversion{
		Amount:        decimal.NewFromInt(92),
		Currency:      "EUR",
		Rate:          decimal.RequireFromString("0.92"),
		RateTimestamp: rateAt,
		Converted:     true,
	}, nil)
	mocks.periods.On("Close", ctx, period, mock.MatchedBy(func(rows []*domain.PersistedContribution) bool {
		if len(rows) != 1 {
			return false
		}
		row := rows[0]
		return row.GoalID == goalID &&
			row.AssetID == assetID &&
			row.Amount.Equal(decimal.NewFromInt(92)) &&
			row.Currency == "EUR" &&
			row.Rate.Converted &&
			row.Rate.Rate.Equal(decimal.RequireFromString("0.92"))
	})).Return(nil)

	err := controller.MarkComplete(ctx, period.ID, completedAt)

	require.NoError(t, err)
	assert.Equal(t, domain.PeriodStatusClosed, period.Status)
	require.NotNil(t, period.CompletedAt)
	assert.True(t, period.CompletedAt.Equal(completedAt))
	mocks.periods.AssertExpectations(t)
}

func TestMarkComplete_AbortsOnConversionFailure(t *testing.T) {
	// A converter failure aborts the whole close: the period stays executing
	// and no contribution rows are written.
	ctx := context.Background()
	controller, mocks := newTestController()

	assetID := uuid.New()
	goalID := uuid.New()
	period := executingPeriod(goalID, assetID)
	completedAt := start.AddDate(0, 1, 0)

	mocks.periods.On("GetByID", ctx, period.ID).Return(period, nil)
	mocks.assets.On("GetByID", ctx, assetID).Return(&domain.Asset{ID: assetID, Name: "Savings", Currency: "USD"}, nil)
	mocks.goals.On("GetByID", ctx, goalID).Return(&domain.Goal{ID: goalID, Name: "House", Currency: "EUR"}, nil)
	mocks.events.On("ListByAsset", ctx, assetID).Return([]domain.BalanceEvent{}, nil)
	mocks.allocations.On("GetTargets", ctx, assetID).Return(map[uuid.UUID]decimal.Decimal{}, nil)
	mocks.allocations.On("ListSnapshots", ctx, assetID, goalID).Return([]domain.AllocationSnapshot{}, nil)
	mocks.converter.On("Convert", ctx, mock.Anything, "USD", "EUR", completedAt).
		Return(domain.Conversion{}, errors.New("rate service unreachable"))

	err := controller.MarkComplete(ctx, period.ID, completedAt)

	require.Error(t, err)
	assert.Equal(t, domain.PeriodStatusExecuting, period.Status)
	assert.Nil(t, period.CompletedAt)
	mocks.periods.AssertNotCalled(t, "Close", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkComplete_RateUnavailableFallsBackUnconverted(t *testing.T) {
	ctx := context.Background()
	controller, mocks := newTestController()

	assetID := uuid.New()
	goalID := uuid.New()
	period := executingPeriod(goalID, assetID)
	completedAt := start.AddDate(0, 1, 0)

	mocks.periods.On("GetByID", ctx, period.ID).Return(period, nil)
	mocks.assets.On("GetByID", ctx, assetID).Return(&domain.Asset{ID: assetID, Name: "Savings", Currency: "USD"}, nil)
	mocks.goals.On("GetByID", ctx, goalID).Return(&domain.Goal{ID: goalID, Name: "House", Currency: "EUR"}, nil)
	mocks.events.On("ListByAsset", ctx, assetID).Return([]domain.BalanceEvent{
		{ID: uuid.New(), AssetID: assetID, Amount: decimal.NewFromInt(30), Timestamp: start.AddDate(0, 0, 2)},
	}, nil)
	mocks.allocations.On("GetTargets", ctx, assetID).Return(map[uuid.UUID]decimal.Decimal{
		goalID: decimal.NewFromInt(30),
	}, nil)
	mocks.allocations.On("ListSnapshots", ctx, assetID, goalID).Return([]domain.AllocationSnapshot{
		{ID: uuid.New(), AssetID: assetID, GoalID: goalID, Amount: decimal.Zero, Timestamp: start},
		{ID: uuid.New(), AssetID: assetID, GoalID: goalID, Amount: decimal.NewFromInt(30), Timestamp: start.AddDate(0, 0, 2)},
	}, nil)
	mocks.converter.On("Convert", ctx, mock.Anything, "USD", "EUR", completedAt).
		Return(domain.Conversion{}, domain.ErrRateUnavailable)
	mocks.periods.On("Close", ctx, period, mock.MatchedBy(func(rows []*domain.PersistedContribution) bool {
		return len(rows) == 1 &&
			rows[0].Currency == "USD" &&
			rows[0].Amount.Equal(decimal.NewFromInt(30)) &&
			!rows[0].Rate.Converted
	})).Return(nil)

	err := controller.MarkComplete(ctx, period.ID, completedAt)

	require.NoError(t, err)
	assert.Equal(t, domain.PeriodStatusClosed, period.Status)
	mocks.periods.AssertExpectations(t)
}

func TestMarkComplete_FailsWhenAlreadyClosed(t *testing.T) {
	ctx := context.Background()
	controller, mocks := newTestController()

	period := domain.NewTrackingPeriod(2025, time.March)
	period.Status = domain.PeriodStatusClosed
	mocks.periods.On("GetByID", ctx, period.ID).Return(period, nil)

	err := controller.MarkComplete(ctx, period.ID, start.AddDate(0, 1, 0))

	require.Error(t, err)
	assert.True(t, domain.IsStateError(err))
	mocks.periods.AssertNotCalled(t, "Close", mock.Anything, mock.Anything, mock.Anything)
}
