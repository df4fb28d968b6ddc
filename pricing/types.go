/*
Package pricing computes session prices from a time-varying rate catalog.

PURPOSE:
  Given the active pricing catalog and an instant, produce the effective
  rate table per plan (resolver.go), then turn a session's duration and a
  plan's effective rates into a monetary cost (cost.go). Both steps are
  pure functions - no I/O - so they can be tested against literal fixtures
  and called concurrently without coordination.

KEY CONCEPTS IN THIS FILE (types.go):
  - Config: The one active catalog root (unlock fee, plans, rules, promos)
  - Plan: A named rate tier (hourly/daily/weekly/monthly)
  - Rule: A day-of-week/hour-window multiplier with a priority
  - Promotion: A dated discount window attached to plans
  - Override: A plan's overtime billing policy
  - EffectivePlan: A plan after rule + promotion adjustment at one instant

SEE ALSO:
  - resolver.go: Rule selection and promotion stacking
  - cost.go: Duration-to-cost calculation
  - ride/coordinator.go: The only billing-path consumer
*/
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Xybronix/EcoMobile-backend-sub001/ledger"
)

// =============================================================================
// CATALOG - Exactly one active Config at a time
// =============================================================================

// Config is the root of the rate catalog. Exactly one instance has
// IsActive=true; billing refuses to run without it.
type Config struct {
	ID             string
	UnlockFee      ledger.Money
	BaseHourlyRate ledger.Money
	IsActive       bool

	Plans      []Plan
	Rules      []Rule
	Promotions []Promotion
}

// ActivePlan returns the active plan with the given ID.
func (c *Config) ActivePlan(planID string) (*Plan, bool) {
	for i := range c.Plans {
		if c.Plans[i].ID == planID && c.Plans[i].IsActive {
			return &c.Plans[i], true
		}
	}
	return nil, false
}

// ActivePlans returns the active plans in catalog order.
func (c *Config) ActivePlans() []Plan {
	var out []Plan
	for _, p := range c.Plans {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out
}

// Plan is a named rate tier. MinimumHours is the billing floor for a
// session; Discount is a flat amount off the final session cost.
type Plan struct {
	ID           string
	Name         string
	HourlyRate   ledger.Money
	DailyRate    ledger.Money
	WeeklyRate   ledger.Money
	MonthlyRate  ledger.Money
	MinimumHours int
	Discount     ledger.Money
	IsActive     bool

	// At most one override per plan.
	Override *Override
}

// Rates returns the plan's base rates as a bundle.
func (p Plan) Rates() Rates {
	return Rates{
		Hourly:  p.HourlyRate,
		Daily:   p.DailyRate,
		Weekly:  p.WeeklyRate,
		Monthly: p.MonthlyRate,
	}
}

// =============================================================================
// RULES - Time-window multipliers
// =============================================================================

// Rule is a time-window multiplier. DayOfWeek nil matches every day;
// StartHour/EndHour nil matches all day. StartHour > EndHour means the
// window wraps past midnight (22..6 covers 22:00-23:59 and 00:00-05:59).
type Rule struct {
	ID         string
	Name       string
	DayOfWeek  *time.Weekday
	StartHour  *int
	EndHour    *int
	Multiplier decimal.Decimal
	Priority   int
	IsActive   bool
}

// Matches reports whether the rule's day/hour window contains the instant.
func (r Rule) Matches(at time.Time) bool {
	if !r.IsActive {
		return false
	}
	if r.DayOfWeek != nil && *r.DayOfWeek != at.Weekday() {
		return false
	}
	return hourInWindow(r.StartHour, r.EndHour, at.Hour())
}

// hourInWindow handles the midnight wrap: start <= end is same-day
// containment, start > end is wrap-around containment. Both bounds nil
// means all day; a half-open spec is treated as all day too.
func hourInWindow(start, end *int, hour int) bool {
	if start == nil || end == nil {
		return true
	}
	s, e := *start, *end
	if s <= e {
		return hour >= s && hour < e
	}
	return hour >= s || hour < e
}

// =============================================================================
// PROMOTIONS - Dated discount windows
// =============================================================================

type DiscountType string

const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// Promotion is a discount window attached to one or more plans.
// Promotions stack; they apply in catalog (creation) order.
type Promotion struct {
	ID            string
	Name          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	StartDate     time.Time
	EndDate       time.Time
	UsageLimit    *int
	UsageCount    int
	IsActive      bool
	PlanIDs       []string
}

// ActiveAt reports whether the promotion counts for pricing at the instant:
// enabled, inside [StartDate, EndDate], and under its usage limit.
func (p Promotion) ActiveAt(at time.Time) bool {
	if !p.IsActive {
		return false
	}
	if at.Before(p.StartDate) || at.After(p.EndDate) {
		return false
	}
	if p.UsageLimit != nil && p.UsageCount >= *p.UsageLimit {
		return false
	}
	return true
}

// AppliesTo reports whether the promotion is attached to the plan.
func (p Promotion) AppliesTo(planID string) bool {
	for _, id := range p.PlanIDs {
		if id == planID {
			return true
		}
	}
	return false
}

// =============================================================================
// OVERRIDES - Overtime billing policy
// =============================================================================

type OverrideMode string

const (
	// OverrideFixedPrice replaces the marginal overtime cost with a flat value.
	OverrideFixedPrice OverrideMode = "FIXED_PRICE"

	// OverridePercentage discounts the marginal overtime cost by a percentage.
	OverridePercentage OverrideMode = "PERCENTAGE_REDUCTION"
)

// Override changes how the portion of a session beyond whole tier units
// is billed. Windows optionally restricts the override, per tier, to
// sessions ending inside an hour band (wrapping like Rule windows).
type Override struct {
	Mode    OverrideMode
	Value   decimal.Decimal // flat price in currency units, or percentage 0-100
	Windows map[Tier]HourWindow
}

type HourWindow struct {
	StartHour int
	EndHour   int
}

// appliesAt reports whether the override fires for the tier at the
// session-end instant. No window configured for the tier means the
// override always fires for that tier.
func (o *Override) appliesAt(tier Tier, end time.Time) bool {
	if o == nil {
		return false
	}
	w, ok := o.Windows[tier]
	if !ok {
		return true
	}
	return hourInWindow(&w.StartHour, &w.EndHour, end.Hour())
}

// =============================================================================
// EFFECTIVE PLAN - A plan priced for one instant
// =============================================================================

// Rates bundles the four tier rates.
type Rates struct {
	Hourly  ledger.Money
	Daily   ledger.Money
	Weekly  ledger.Money
	Monthly ledger.Money
}

// EffectivePlan is a plan after the applicable rule multiplier and every
// active attached promotion have been applied for a specific instant.
// Original rates, the rule name, and the promotion list are retained for
// audit and user-facing receipts.
type EffectivePlan struct {
	PlanID string
	Name   string

	// Pre-multiplier rates, for receipts.
	Original Rates

	// Adjusted rates used for billing.
	Rates Rates

	// RuleName is the applied rule's name, empty when no rule matched.
	RuleName   string
	Multiplier decimal.Decimal

	// AppliedPromotions lists promotion IDs in application order.
	AppliedPromotions []string

	MinimumHours int
	Discount     ledger.Money
	Override     *Override
	UnlockFee    ledger.Money
}
