package derivation

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/goalflow-backend/internal/domain"
)

// The derivation engine is pure computation: given explicit ledger snapshots
// it produces funded-amount values per goal at any instant. It keeps no state
// and performs no writes, so repeated invocations over unchanged inputs yield
// identical results and concurrent readers are always safe.

// GoalSeries is the allocation-target history of one (goal, asset) pair: the
// ordered snapshot list plus the live target used as fallback when no
// snapshot precedes the lookup instant (first-run bootstrap only).
type GoalSeries struct {
	GoalID     uuid.UUID
	Snapshots  []domain.AllocationSnapshot // ordered by timestamp ascending
	LiveTarget decimal.Decimal
}

// AssetLedger is the full input for deriving funded amounts on one asset:
// its balance event history and the target series of every goal it funds.
type AssetLedger struct {
	AssetID uuid.UUID
	Events  []domain.BalanceEvent // ordered by timestamp ascending
	Goals   []GoalSeries
}

// FundedPoint is the funded-amount state of an asset at one breakpoint.
// Between consecutive breakpoints the funded-amount function is constant.
type FundedPoint struct {
	At          time.Time
	Funded      map[uuid.UUID]decimal.Decimal
	Balance     decimal.Decimal
	Unallocated decimal.Decimal // balance slack attributed to no goal
}

// BalanceAt returns the asset balance at instant t: the sum of all events
// with timestamp <= t.
func BalanceAt(events []domain.BalanceEvent, t time.Time) decimal.Decimal {
	balance := decimal.Zero
	for _, e := range events {
		if e.Timestamp.After(t) {
			continue
		}
		balance = balance.Add(e.Amount)
	}
	return balance
}

// balanceBefore returns the asset balance just before instant t: the sum of
// all events with timestamp strictly < t.
func balanceBefore(events []domain.BalanceEvent, t time.Time) decimal.Decimal {
	balance := decimal.Zero
	for _, e := range events {
		if !e.Timestamp.Before(t) {
			continue
		}
		balance = balance.Add(e.Amount)
	}
	return balance
}

// TargetAt resolves the allocation target of a pair at instant t using the
// two-tier lookup: the snapshot with the greatest timestamp <= t, falling
// back to the live target when no snapshot precedes t.
func TargetAt(series GoalSeries, t time.Time) domain.TargetValue {
	return targetLookup(series, func(ts time.Time) bool { return !ts.After(t) })
}

// targetBefore resolves the target just before instant t (timestamp < t)
func targetBefore(series GoalSeries, t time.Time) domain.TargetValue {
	return targetLookup(series, func(ts time.Time) bool { return ts.Before(t) })
}

func targetLookup(series GoalSeries, include func(time.Time) bool) domain.TargetValue {
	found := false
	value := decimal.Zero
	for _, s := range series.Snapshots {
		if !include(s.Timestamp) {
			continue
		}
		value = s.Amount
		found = true
	}
	if !found {
		return domain.TargetValue{Amount: series.LiveTarget, Source: domain.TargetSourceLiveFallback}
	}
	return domain.TargetValue{Amount: value, Source: domain.TargetSourceHistorical}
}

// FundedAt computes the funded amount per goal at instant t. When the target
// sum exceeds the balance the balance is distributed proportionally; this is
// a valid state, reported as a ConsistencyWarning, never an error.
func FundedAt(ledger AssetLedger, t time.Time) (map[uuid.UUID]decimal.Decimal, *domain.ConsistencyWarning) {
	targets := make(map[uuid.UUID]decimal.Decimal, len(ledger.Goals))
	for _, g := range ledger.Goals {
		targets[g.GoalID] = TargetAt(g, t).Amount
	}
	return distribute(ledger.AssetID, t, BalanceAt(ledger.Events, t), targets)
}

// fundedBefore computes the funded amount per goal just before instant t
func fundedBefore(ledger AssetLedger, t time.Time) (map[uuid.UUID]decimal.Decimal, *domain.ConsistencyWarning) {
	targets := make(map[uuid.UUID]decimal.Decimal, len(ledger.Goals))
	for _, g := range ledger.Goals {
		targets[g.GoalID] = targetBefore(g, t).Amount
	}
	return distribute(ledger.AssetID, t, balanceBefore(ledger.Events, t), targets)
}

// distribute applies the funding rule for one asset at one instant:
//   - sum of targets <= balance: every goal is funded to its target, the rest
//     of the balance is unallocated slack
//   - sum of targets > balance: the balance is split proportionally to the
//     targets, preserving sum(funded) == balance
//   - sum of targets == 0: every goal is funded 0 regardless of balance
//
// A negative balance funds nothing; funded amounts are never negative.
func distribute(assetID uuid.UUID, t time.Time, balance decimal.Decimal, targets map[uuid.UUID]decimal.Decimal) (map[uuid.UUID]decimal.Decimal, *domain.ConsistencyWarning) {
	funded := make(map[uuid.UUID]decimal.Decimal, len(targets))

	targetSum := decimal.Zero
	for _, amount := range targets {
		targetSum = targetSum.Add(amount)
	}

	available := balance
	if available.IsNegative() {
		available = decimal.Zero
	}

	if targetSum.IsZero() {
		for goalID := range targets {
			funded[goalID] = decimal.Zero
		}
		return funded, nil
	}

	if targetSum.LessThanOrEqual(available) {
		for goalID, amount := range targets {
			funded[goalID] = amount
		}
		return funded, nil
	}

	// Over-allocated: proportional distribution
	for goalID, amount := range targets {
		funded[goalID] = available.Mul(amount).Div(targetSum)
	}
	warning := &domain.ConsistencyWarning{
		AssetID:   assetID,
		At:        t,
		Balance:   balance,
		TargetSum: targetSum,
	}
	return funded, warning
}

// Breakpoints returns the sorted union of all balance event timestamps and
// all allocation snapshot timestamps of the ledger, without duplicates.
func Breakpoints(ledger AssetLedger) []time.Time {
	seen := make(map[int64]bool)
	points := make([]time.Time, 0, len(ledger.Events))
	add := func(t time.Time) {
		key := t.UnixNano()
		if seen[key] {
			return
		}
		seen[key] = true
		points = append(points, t)
	}

	for _, e := range ledger.Events {
		add(e.Timestamp)
	}
	for _, g := range ledger.Goals {
		for _, s := range g.Snapshots {
			add(s.Timestamp)
		}
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Before(points[j]) })
	return points
}

// FundedSeries computes the funded amounts at every breakpoint of the ledger,
// together with any over-allocation warnings encountered.
func FundedSeries(ledger AssetLedger) ([]FundedPoint, []domain.ConsistencyWarning) {
	breakpoints := Breakpoints(ledger)
	series := make([]FundedPoint, 0, len(breakpoints))
	var warnings []domain.ConsistencyWarning

	for _, bp := range breakpoints {
		funded, warning := FundedAt(ledger, bp)
		if warning != nil {
			warnings = append(warnings, *warning)
		}

		balance := BalanceAt(ledger.Events, bp)
		fundedSum := decimal.Zero
		for _, amount := range funded {
			fundedSum = fundedSum.Add(amount)
		}
		unallocated := balance.Sub(fundedSum)
		if unallocated.IsNegative() {
			unallocated = decimal.Zero
		}

		series = append(series, FundedPoint{
			At:          bp,
			Funded:      funded,
			Balance:     balance,
			Unallocated: unallocated,
		})
	}
	return series, warnings
}

// Contributions computes the net derived contribution per goal over the
// half-open interval [from, to): the sum of funded-amount deltas at
// breakpoints within the interval, equivalently funded just before to minus
// funded just before from.
func Contributions(ledger AssetLedger, from, to time.Time) (map[uuid.UUID]decimal.Decimal, []domain.ConsistencyWarning) {
	start, startWarning := fundedBefore(ledger, from)
	end, _ := fundedBefore(ledger, to)

	contributions := make(map[uuid.UUID]decimal.Decimal, len(end))
	for goalID, amount := range end {
		contributions[goalID] = amount.Sub(start[goalID])
	}

	// Over-allocation in effect entering the window, plus any encountered at
	// breakpoints inside it.
	var warnings []domain.ConsistencyWarning
	if startWarning != nil {
		warnings = append(warnings, *startWarning)
	}
	for _, bp := range Breakpoints(ledger) {
		if bp.Before(from) || !bp.Before(to) {
			continue
		}
		if _, warning := FundedAt(ledger, bp); warning != nil {
			warnings = append(warnings, *warning)
		}
	}

	return contributions, warnings
}
