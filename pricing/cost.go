/*
cost.go - Session duration to monetary cost

PURPOSE:
  Pure calculation from (effective plan, start, end) to a cost. Duration
  is floored to whole minutes with the plan's MinimumHours as a billing
  floor.

TIER POLICY (explicit, not inferred):
  The tier is the smallest rate unit whose multiple covers the duration:
    < 24h          -> hourly
    < 7 days       -> daily
    < 30 days      -> weekly
    otherwise      -> monthly
  Whole units of the tier bill at the tier rate. The remainder - the
  overtime portion - bills at the next smaller tier's policy, capped at
  one full unit of the current tier (a remainder never costs more than
  rounding the session up to the next whole unit would).

OVERTIME OVERRIDES:
  When the plan carries an Override and it fires for the tier (remainder
  present, and the session end falls inside the override's hour band for
  the tier if one is configured):
    FIXED_PRICE          replaces the remainder cost with a flat value
    PERCENTAGE_REDUCTION discounts the remainder cost by a percentage

RESULT:
  cost = whole-unit cost + overtime portion - plan flat discount,
  floored at 0 and ceiled to the currency unit. Never negative, never
  fractional.
*/
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Xybronix/EcoMobile-backend-sub001/ledger"
)

// Tier identifies the rate unit a session bills against.
type Tier string

const (
	TierHourly  Tier = "hourly"
	TierDaily   Tier = "daily"
	TierWeekly  Tier = "weekly"
	TierMonthly Tier = "monthly"
)

const (
	minutesPerHour  = 60
	minutesPerDay   = 24 * minutesPerHour
	minutesPerWeek  = 7 * minutesPerDay
	minutesPerMonth = 30 * minutesPerDay
)

// CostBreakdown is the result of ComputeCost.
type CostBreakdown struct {
	Cost            ledger.Money
	BillableMinutes int
	Tier            Tier
	OvertimeApplied bool
}

// ComputeCost computes the billable cost of a session against a plan's
// effective rates. Pure; returns ledger.ErrInvalidAmount when end precedes
// start.
func ComputeCost(plan EffectivePlan, start, end time.Time) (CostBreakdown, error) {
	if end.Before(start) {
		return CostBreakdown{}, ledger.ErrInvalidAmount
	}

	minutes := int(end.Sub(start).Minutes())
	if min := plan.MinimumHours * minutesPerHour; minutes < min {
		minutes = min
	}

	tier := tierFor(minutes)
	base, overtime := tierCost(plan.Rates, tier, minutes)

	overtimeApplied := false
	if !overtime.IsZero() && plan.Override.appliesAt(tier, end) {
		overtime = applyOverride(plan.Override, overtime)
		overtimeApplied = true
	}

	cost := base.Add(overtime).Sub(plan.Discount).Floor0().CeilToUnit()

	return CostBreakdown{
		Cost:            cost,
		BillableMinutes: minutes,
		Tier:            tier,
		OvertimeApplied: overtimeApplied,
	}, nil
}

func tierFor(minutes int) Tier {
	switch {
	case minutes < minutesPerDay:
		return TierHourly
	case minutes < minutesPerWeek:
		return TierDaily
	case minutes < minutesPerMonth:
		return TierWeekly
	default:
		return TierMonthly
	}
}

// tierCost splits a duration into whole-unit cost and the marginal
// remainder (overtime portion). The remainder recurses into the next
// smaller tier and is capped at one full unit of the current tier.
func tierCost(rates Rates, tier Tier, minutes int) (base, overtime ledger.Money) {
	switch tier {
	case TierHourly:
		full := minutes / minutesPerHour
		rem := minutes % minutesPerHour
		base = rates.Hourly.Mul(decimal.NewFromInt(int64(full)))
		overtime = fractionOf(rates.Hourly, rem, minutesPerHour)
	case TierDaily:
		full := minutes / minutesPerDay
		rem := minutes % minutesPerDay
		base = rates.Daily.Mul(decimal.NewFromInt(int64(full)))
		overtime = capAt(fullCost(rates, TierHourly, rem), rates.Daily)
	case TierWeekly:
		full := minutes / minutesPerWeek
		rem := minutes % minutesPerWeek
		base = rates.Weekly.Mul(decimal.NewFromInt(int64(full)))
		overtime = capAt(fullCost(rates, tierFor(rem), rem), rates.Weekly)
	case TierMonthly:
		full := minutes / minutesPerMonth
		rem := minutes % minutesPerMonth
		base = rates.Monthly.Mul(decimal.NewFromInt(int64(full)))
		overtime = capAt(fullCost(rates, tierFor(rem), rem), rates.Monthly)
	}
	return base, overtime
}

// fullCost is the whole cost of a duration at a tier, base plus uncapped
// remainder. Used when a remainder itself spans multiple units.
func fullCost(rates Rates, tier Tier, minutes int) ledger.Money {
	base, overtime := tierCost(rates, tier, minutes)
	return base.Add(overtime)
}

func fractionOf(rate ledger.Money, part, whole int) ledger.Money {
	if part == 0 {
		return ledger.Zero()
	}
	return rate.Mul(decimal.NewFromInt(int64(part))).Div(decimal.NewFromInt(int64(whole)))
}

func capAt(m, limit ledger.Money) ledger.Money {
	if m.GreaterThan(limit) {
		return limit
	}
	return m
}

func applyOverride(o *Override, overtime ledger.Money) ledger.Money {
	switch o.Mode {
	case OverrideFixedPrice:
		return ledger.Money{Value: o.Value}
	case OverridePercentage:
		factor := one.Sub(o.Value.Div(hundred))
		return overtime.Mul(factor).Floor0()
	default:
		return overtime
	}
}
