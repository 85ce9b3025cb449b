// Package pricing quotes rentals by day, week or month tier.
package pricing

import (
	"errors"
	"fmt"
)

type Tier string

const (
	TierDaily   Tier = "daily"
	TierWeekly  Tier = "weekly"
	TierMonthly Tier = "monthly"
)

var (
	ErrNoRate      = errors.New("pricing: machine has no daily rate")
	ErrInvalidDays = errors.New("pricing: rental must span at least one day")
)

// Rates are per-unit prices in cents. Weekly and monthly are optional and
// fall back to discounted multiples of the daily rate.
type Rates struct {
	DailyCents   int `json:"daily_cents"`
	WeeklyCents  int `json:"weekly_cents,omitempty"`
	MonthlyCents int `json:"monthly_cents,omitempty"`
}

type Quote struct {
	Tier       Tier `json:"tier"`
	Units      int  `json:"units"`
	UnitCents  int  `json:"unit_cents"`
	TotalCents int  `json:"total_cents"`
}

func (r Rates) weekly() int {
	if r.WeeklyCents > 0 {
		return r.WeeklyCents
	}
	return r.DailyCents * 7 * 85 / 100
}

func (r Rates) monthly() int {
	if r.MonthlyCents > 0 {
		return r.MonthlyCents
	}
	return r.DailyCents * 30 * 75 / 100
}

// QuoteRental prices a rental of days whole days:
//   - under 7 days: daily rate per day
//   - 7 to 29 days: weekly rate per started week
//   - 30 days and up: monthly rate per full 30-day month
func QuoteRental(r Rates, days int) (Quote, error) {
	if days < 1 {
		return Quote{}, fmt.Errorf("%w: %d", ErrInvalidDays, days)
	}
	if r.DailyCents <= 0 {
		return Quote{}, ErrNoRate
	}
	var q Quote
	switch {
	case days < 7:
		q = Quote{Tier: TierDaily, Units: days, UnitCents: r.DailyCents}
	case days < 30:
		q = Quote{Tier: TierWeekly, Units: (days + 6) / 7, UnitCents: r.weekly()}
	default:
		q = Quote{Tier: TierMonthly, Units: days / 30, UnitCents: r.monthly()}
	}
	q.TotalCents = q.Units * q.UnitCents
	return q, nil
}
