package rates

import (
	"context"
	"fmt"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/simaogato/goalflow-backend/internal/domain"
)

// Rate is one configured exchange rate, effective from EffectiveAt onward
// until superseded by a later rate for the same pair.
type Rate struct {
	From        string
	To          string
	Rate        decimal.Decimal
	EffectiveAt time.Time
}

// TableConverter implements domain.RateConverter over a configured rate
// table. The rate in effect at an instant is the one with the greatest
// effective timestamp <= that instant; when only the opposite direction is
// configured the reciprocal is used.
type TableConverter struct {
	rates []Rate
}

// NewTableConverter creates a converter from the given rates, validating
// currency codes and rate values up front.
func NewTableConverter(rateList []Rate) (*TableConverter, error) {
	for _, r := range rateList {
		if money.GetCurrency(r.From) == nil {
			return nil, domain.NewValidationError("unknown currency code " + r.From)
		}
		if money.GetCurrency(r.To) == nil {
			return nil, domain.NewValidationError("unknown currency code " + r.To)
		}
		if !r.Rate.IsPositive() {
			return nil, domain.NewValidationError("exchange rate must be positive")
		}
	}
	return &TableConverter{rates: rateList}, nil
}

// Convert converts amount from one currency to another using the rate in
// effect at asOf. Fails with domain.ErrRateUnavailable when no rate is
// configured for the pair at that instant; no rate is ever fabricated.
func (c *TableConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string, asOf time.Time) (domain.Conversion, error) {
	if money.GetCurrency(from) == nil {
		return domain.Conversion{}, domain.NewValidationError("unknown currency code " + from)
	}
	if money.GetCurrency(to) == nil {
		return domain.Conversion{}, domain.NewValidationError("unknown currency code " + to)
	}

	if from == to {
		return domain.Conversion{
			Amount:        amount,
			Currency:      to,
			Rate:          decimal.NewFromInt(1),
			RateTimestamp: asOf,
			Converted:     true,
		}, nil
	}

	if rate, ok := c.lookup(from, to, asOf); ok {
		return domain.Conversion{
			Amount:        amount.Mul(rate.Rate),
			Currency:      to,
			Rate:          rate.Rate,
			RateTimestamp: rate.EffectiveAt,
			Converted:     true,
		}, nil
	}

	if rate, ok := c.lookup(to, from, asOf); ok {
		reciprocal := decimal.NewFromInt(1).Div(rate.Rate)
		return domain.Conversion{
			Amount:        amount.Mul(reciprocal),
			Currency:      to,
			Rate:          reciprocal,
			RateTimestamp: rate.EffectiveAt,
			Converted:     true,
		}, nil
	}

	return domain.Conversion{}, fmt.Errorf("no rate for %s/%s at %s: %w", from, to, asOf.Format(time.RFC3339), domain.ErrRateUnavailable)
}

// lookup finds the rate for a pair with the greatest effective timestamp <= asOf
func (c *TableConverter) lookup(from, to string, asOf time.Time) (Rate, bool) {
	var best Rate
	found := false
	for _, r := range c.rates {
		if r.From != from || r.To != to || r.EffectiveAt.After(asOf) {
			continue
		}
		if !found || r.EffectiveAt.After(best.EffectiveAt) {
			best = r
			found = true
		}
	}
	return best, found
}
