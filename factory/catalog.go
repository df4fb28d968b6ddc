/*
Package factory builds and validates pricing catalogs.

PURPOSE:
  Converts JSON catalog definitions into validated pricing.Config values
  and provides ready-made presets. Operations staff define catalogs as
  JSON; the factory is the single place where a definition is checked
  before it can become the active catalog.

VALIDATION RULES:
  - Config and plan IDs are required and plan IDs must be unique
  - Rates, fees, and discounts must not be negative
  - Rule hour windows must be 0-23 (start > end wraps past midnight)
  - Rule multipliers must be positive
  - Promotion date windows must be ordered; percentage values 0-100
  - Promotions must reference plans that exist in the catalog

USAGE:
  cfg, err := factory.ParseCatalog(jsonBytes)

  // Or start from a preset
  cfg := factory.StandardCatalog("catalog-1")

SEE ALSO:
  - pricing/types.go: The catalog types being validated
  - api/handlers.go: PutPricingConfig, the admin entry point
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Xybronix/EcoMobile-backend-sub001/ledger"
	"github.com/Xybronix/EcoMobile-backend-sub001/pricing"
)

// =============================================================================
// PARSING
// =============================================================================

// ParseCatalog decodes and validates a JSON catalog definition.
func ParseCatalog(raw []byte) (pricing.Config, error) {
	var cfg pricing.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return pricing.Config{}, fmt.Errorf("invalid catalog JSON: %w", err)
	}
	if err := ValidateCatalog(&cfg); err != nil {
		return pricing.Config{}, err
	}
	return cfg, nil
}

// ValidateCatalog checks a catalog for internal consistency. Returns the
// first problem found.
func ValidateCatalog(cfg *pricing.Config) error {
	if cfg.ID == "" {
		return fmt.Errorf("catalog id is required")
	}
	if cfg.UnlockFee.IsNegative() || cfg.BaseHourlyRate.IsNegative() {
		return fmt.Errorf("catalog %s: fees and rates must not be negative", cfg.ID)
	}

	planIDs := make(map[string]bool, len(cfg.Plans))
	for i := range cfg.Plans {
		p := &cfg.Plans[i]
		if p.ID == "" {
			return fmt.Errorf("catalog %s: plan %d has no id", cfg.ID, i)
		}
		if planIDs[p.ID] {
			return fmt.Errorf("catalog %s: duplicate plan id %q", cfg.ID, p.ID)
		}
		planIDs[p.ID] = true
		if err := validatePlan(p); err != nil {
			return fmt.Errorf("catalog %s: plan %q: %w", cfg.ID, p.ID, err)
		}
	}

	for i := range cfg.Rules {
		if err := validateRule(&cfg.Rules[i]); err != nil {
			return fmt.Errorf("catalog %s: rule %q: %w", cfg.ID, cfg.Rules[i].ID, err)
		}
	}

	for i := range cfg.Promotions {
		if err := validatePromotion(&cfg.Promotions[i], planIDs); err != nil {
			return fmt.Errorf("catalog %s: promotion %q: %w", cfg.ID, cfg.Promotions[i].ID, err)
		}
	}
	return nil
}

func validatePlan(p *pricing.Plan) error {
	for _, rate := range []ledger.Money{p.HourlyRate, p.DailyRate, p.WeeklyRate, p.MonthlyRate, p.Discount} {
		if rate.IsNegative() {
			return fmt.Errorf("rates and discounts must not be negative")
		}
	}
	if p.MinimumHours < 0 {
		return fmt.Errorf("minimum hours must not be negative")
	}
	if o := p.Override; o != nil {
		if o.Mode != pricing.OverrideFixedPrice && o.Mode != pricing.OverridePercentage {
			return fmt.Errorf("unknown override mode %q", o.Mode)
		}
		if o.Value.IsNegative() {
			return fmt.Errorf("override value must not be negative")
		}
		if o.Mode == pricing.OverridePercentage && o.Value.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("override percentage must be 0-100")
		}
		for tier, w := range o.Windows {
			if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
				return fmt.Errorf("override window for %s: hours must be 0-23", tier)
			}
		}
	}
	return nil
}

func validateRule(r *pricing.Rule) error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if !r.Multiplier.IsPositive() {
		return fmt.Errorf("multiplier must be positive")
	}
	for _, h := range []*int{r.StartHour, r.EndHour} {
		if h != nil && (*h < 0 || *h > 23) {
			return fmt.Errorf("hours must be 0-23")
		}
	}
	return nil
}

func validatePromotion(p *pricing.Promotion, planIDs map[string]bool) error {
	if p.ID == "" {
		return fmt.Errorf("promotion id is required")
	}
	switch p.DiscountType {
	case pricing.DiscountPercentage:
		if p.DiscountValue.IsNegative() || p.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("percentage must be 0-100")
		}
	case pricing.DiscountFixedAmount:
		if p.DiscountValue.IsNegative() {
			return fmt.Errorf("fixed amount must not be negative")
		}
	default:
		return fmt.Errorf("unknown discount type %q", p.DiscountType)
	}
	if p.EndDate.Before(p.StartDate) {
		return fmt.Errorf("end date before start date")
	}
	if p.UsageLimit != nil && *p.UsageLimit < 0 {
		return fmt.Errorf("usage limit must not be negative")
	}
	for _, id := range p.PlanIDs {
		if !planIDs[id] {
			return fmt.Errorf("references unknown plan %q", id)
		}
	}
	return nil
}

// =============================================================================
// PRESETS - Starting points for demos and new deployments
// =============================================================================

// StandardCatalog is a single-plan catalog: 200/hour with day, week, and
// month tiers, a one-hour minimum, and a 100 unlock fee.
func StandardCatalog(id string) pricing.Config {
	return pricing.Config{
		ID:             id,
		UnlockFee:      ledger.NewMoney(100),
		BaseHourlyRate: ledger.NewMoney(200),
		IsActive:       true,
		Plans: []pricing.Plan{
			{
				ID:           "standard",
				Name:         "Standard",
				HourlyRate:   ledger.NewMoney(200),
				DailyRate:    ledger.NewMoney(1000),
				WeeklyRate:   ledger.NewMoney(5000),
				MonthlyRate:  ledger.NewMoney(15000),
				MinimumHours: 1,
				IsActive:     true,
			},
		},
	}
}

// WeekendSurgeCatalog extends the standard catalog with a premium plan
// and a 1.5x Saturday/Sunday rule.
func WeekendSurgeCatalog(id string) pricing.Config {
	cfg := StandardCatalog(id)
	cfg.Plans = append(cfg.Plans, pricing.Plan{
		ID:           "premium",
		Name:         "Premium",
		HourlyRate:   ledger.NewMoney(350),
		DailyRate:    ledger.NewMoney(1800),
		WeeklyRate:   ledger.NewMoney(9000),
		MonthlyRate:  ledger.NewMoney(27000),
		MinimumHours: 1,
		IsActive:     true,
	})

	sat, sun := time.Saturday, time.Sunday
	surge := decimal.NewFromFloat(1.5)
	cfg.Rules = []pricing.Rule{
		{ID: "surge-sat", Name: "Weekend surge", DayOfWeek: &sat, Multiplier: surge, Priority: 10, IsActive: true},
		{ID: "surge-sun", Name: "Weekend surge", DayOfWeek: &sun, Multiplier: surge, Priority: 10, IsActive: true},
	}
	return cfg
}

// LaunchCatalog is the standard catalog with a half-price launch
// promotion running for the given number of days from now.
func LaunchCatalog(id string, days int) pricing.Config {
	cfg := StandardCatalog(id)
	now := time.Now().UTC()
	cfg.Promotions = []pricing.Promotion{
		{
			ID:            "launch",
			Name:          "Launch special",
			DiscountType:  pricing.DiscountPercentage,
			DiscountValue: decimal.NewFromInt(50),
			StartDate:     now,
			EndDate:       now.AddDate(0, 0, days),
			IsActive:      true,
			PlanIDs:       []string{"standard"},
		},
	}
	return cfg
}
