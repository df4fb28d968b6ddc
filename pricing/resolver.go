/*
resolver.go - Effective rate resolution for an instant

PURPOSE:
  Turns the active catalog into the rate table valid at one instant:
  pick the applicable rule, multiply each active plan's rates, then stack
  the plan's active promotions.

RULE SELECTION:
  Among active rules whose day matches (or is a wildcard) and whose hour
  window contains the target hour (midnight wrap handled), the highest
  priority wins. Ties break by catalog order, so selection is
  deterministic regardless of how rules were loaded. No match means
  multiplier 1.

PROMOTION STACKING (explicit policy):
  Promotions apply in catalog (creation) order. Percentage promotions
  multiply the running rate by (1 - value/100). Fixed-amount promotions
  subtract value from the hourly rate and value x {24, 168, 720} from the
  daily/weekly/monthly rates, floored at 0. A plan may accumulate several
  stacked promotions.

ROUNDING:
  Rates are rounded to the nearest currency unit after the rule
  multiplier and again after promotion stacking.

ERRORS:
  A nil or inactive config yields ledger.ErrNotConfigured. Billing never
  invents default rates; the display-only fallback lives solely in the
  public quote handler.
*/
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Xybronix/EcoMobile-backend-sub001/ledger"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)

	hoursPerDay   = decimal.NewFromInt(24)
	hoursPerWeek  = decimal.NewFromInt(24 * 7)
	hoursPerMonth = decimal.NewFromInt(24 * 30)
)

// Resolve produces the effective rate table for every active plan at the
// given instant. Returns ledger.ErrNotConfigured when no active catalog
// is supplied.
func Resolve(cfg *Config, at time.Time) ([]EffectivePlan, error) {
	if cfg == nil || !cfg.IsActive {
		return nil, ledger.ErrNotConfigured
	}

	rule := ApplicableRule(cfg.Rules, at)

	var plans []EffectivePlan
	for i := range cfg.Plans {
		plan := &cfg.Plans[i]
		if !plan.IsActive {
			continue
		}
		plans = append(plans, resolvePlan(cfg, plan, rule, at))
	}
	return plans, nil
}

// ResolvePlan resolves a single plan by ID. Used at session end, where the
// rider's selected plan is known.
func ResolvePlan(cfg *Config, planID string, at time.Time) (*EffectivePlan, error) {
	if cfg == nil || !cfg.IsActive {
		return nil, ledger.ErrNotConfigured
	}
	plan, ok := cfg.ActivePlan(planID)
	if !ok {
		return nil, ledger.ErrNotConfigured
	}
	ep := resolvePlan(cfg, plan, ApplicableRule(cfg.Rules, at), at)
	return &ep, nil
}

// ApplicableRule selects the rule governing the instant: the highest
// priority active rule whose day/hour window contains it. Ties break by
// catalog order. Nil when no rule matches (multiplier 1).
func ApplicableRule(rules []Rule, at time.Time) *Rule {
	var best *Rule
	for i := range rules {
		r := &rules[i]
		if !r.Matches(at) {
			continue
		}
		if best == nil || r.Priority > best.Priority {
			best = r
		}
	}
	return best
}

func resolvePlan(cfg *Config, plan *Plan, rule *Rule, at time.Time) EffectivePlan {
	original := Rates{
		Hourly:  plan.HourlyRate,
		Daily:   plan.DailyRate,
		Weekly:  plan.WeeklyRate,
		Monthly: plan.MonthlyRate,
	}

	multiplier := one
	ruleName := ""
	if rule != nil {
		multiplier = rule.Multiplier
		ruleName = rule.Name
	}

	rates := Rates{
		Hourly:  original.Hourly.Mul(multiplier).RoundToUnit(),
		Daily:   original.Daily.Mul(multiplier).RoundToUnit(),
		Weekly:  original.Weekly.Mul(multiplier).RoundToUnit(),
		Monthly: original.Monthly.Mul(multiplier).RoundToUnit(),
	}

	var applied []string
	for _, promo := range cfg.Promotions {
		if !promo.ActiveAt(at) || !promo.AppliesTo(plan.ID) {
			continue
		}
		rates = applyPromotion(rates, promo)
		applied = append(applied, promo.ID)
	}

	rates = Rates{
		Hourly:  rates.Hourly.RoundToUnit(),
		Daily:   rates.Daily.RoundToUnit(),
		Weekly:  rates.Weekly.RoundToUnit(),
		Monthly: rates.Monthly.RoundToUnit(),
	}

	return EffectivePlan{
		PlanID:            plan.ID,
		Name:              plan.Name,
		Original:          original,
		Rates:             rates,
		RuleName:          ruleName,
		Multiplier:        multiplier,
		AppliedPromotions: applied,
		MinimumHours:      plan.MinimumHours,
		Discount:          plan.Discount,
		Override:          plan.Override,
		UnlockFee:         cfg.UnlockFee,
	}
}

func applyPromotion(rates Rates, promo Promotion) Rates {
	switch promo.DiscountType {
	case DiscountPercentage:
		factor := one.Sub(promo.DiscountValue.Div(hundred))
		return Rates{
			Hourly:  rates.Hourly.Mul(factor),
			Daily:   rates.Daily.Mul(factor),
			Weekly:  rates.Weekly.Mul(factor),
			Monthly: rates.Monthly.Mul(factor),
		}
	case DiscountFixedAmount:
		v := ledger.Money{Value: promo.DiscountValue}
		return Rates{
			Hourly:  rates.Hourly.Sub(v).Floor0(),
			Daily:   rates.Daily.Sub(ledger.Money{Value: promo.DiscountValue.Mul(hoursPerDay)}).Floor0(),
			Weekly:  rates.Weekly.Sub(ledger.Money{Value: promo.DiscountValue.Mul(hoursPerWeek)}).Floor0(),
			Monthly: rates.Monthly.Sub(ledger.Money{Value: promo.DiscountValue.Mul(hoursPerMonth)}).Floor0(),
		}
	default:
		return rates
	}
}
