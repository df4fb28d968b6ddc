package pricing_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xybronix/EcoMobile-backend-sub001/ledger"
	"github.com/Xybronix/EcoMobile-backend-sub001/pricing"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func money(v int64) ledger.Money { return ledger.NewMoney(v) }

func intPtr(v int) *int                      { return &v }
func weekdayPtr(d time.Weekday) *time.Weekday { return &d }

func standardPlan() pricing.Plan {
	return pricing.Plan{
		ID:           "standard",
		Name:         "Standard",
		HourlyRate:   money(200),
		DailyRate:    money(1000),
		WeeklyRate:   money(5000),
		MonthlyRate:  money(15000),
		MinimumHours: 1,
		IsActive:     true,
	}
}

func baseConfig() *pricing.Config {
	return &pricing.Config{
		ID:        "catalog-1",
		UnlockFee: money(100),
		IsActive:  true,
		Plans:     []pricing.Plan{standardPlan()},
	}
}

// A Friday and a Saturday at 10:00.
var (
	friday   = time.Date(2026, time.March, 6, 10, 0, 0, 0, time.UTC)
	saturday = time.Date(2026, time.March, 7, 10, 0, 0, 0, time.UTC)
)

// =============================================================================
// CONFIG GATING
// =============================================================================

func TestResolve_NilConfig_NotConfigured(t *testing.T) {
	_, err := pricing.Resolve(nil, friday)
	assert.ErrorIs(t, err, ledger.ErrNotConfigured)
}

func TestResolve_InactiveConfig_NotConfigured(t *testing.T) {
	cfg := baseConfig()
	cfg.IsActive = false
	_, err := pricing.Resolve(cfg, friday)
	assert.ErrorIs(t, err, ledger.ErrNotConfigured)
}

func TestResolvePlan_UnknownPlan_NotConfigured(t *testing.T) {
	_, err := pricing.ResolvePlan(baseConfig(), "no-such-plan", friday)
	assert.ErrorIs(t, err, ledger.ErrNotConfigured)
}

func TestResolve_InactivePlanSkipped(t *testing.T) {
	cfg := baseConfig()
	retired := standardPlan()
	retired.ID = "retired"
	retired.IsActive = false
	cfg.Plans = append(cfg.Plans, retired)

	plans, err := pricing.Resolve(cfg, friday)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "standard", plans[0].PlanID)
}

// =============================================================================
// RULE SELECTION
// =============================================================================

func TestResolve_WeekendMultiplier_AppliesOnSaturdayOnly(t *testing.T) {
	// GIVEN: A 1.5x rule for Saturdays
	cfg := baseConfig()
	cfg.Rules = []pricing.Rule{{
		ID:         "weekend",
		Name:       "Weekend surge",
		DayOfWeek:  weekdayPtr(time.Saturday),
		Multiplier: decimal.NewFromFloat(1.5),
		Priority:   10,
		IsActive:   true,
	}}

	// WHEN: Resolving on Saturday
	sat, err := pricing.ResolvePlan(cfg, "standard", saturday)
	require.NoError(t, err)

	// THEN: Rates are multiplied; the original rates are retained
	assert.True(t, money(300).Equal(sat.Rates.Hourly), "hourly = %s", sat.Rates.Hourly)
	assert.True(t, money(1500).Equal(sat.Rates.Daily))
	assert.True(t, money(200).Equal(sat.Original.Hourly))
	assert.Equal(t, "Weekend surge", sat.RuleName)

	// AND: Friday is untouched
	fri, err := pricing.ResolvePlan(cfg, "standard", friday)
	require.NoError(t, err)
	assert.True(t, money(200).Equal(fri.Rates.Hourly))
	assert.Empty(t, fri.RuleName)
}

func TestApplicableRule_HighestPriorityWins(t *testing.T) {
	rules := []pricing.Rule{
		{ID: "low", Name: "low", Multiplier: decimal.NewFromFloat(1.1), Priority: 1, IsActive: true},
		{ID: "high", Name: "high", Multiplier: decimal.NewFromFloat(2.0), Priority: 5, IsActive: true},
	}
	r := pricing.ApplicableRule(rules, friday)
	require.NotNil(t, r)
	assert.Equal(t, "high", r.ID)
}

func TestApplicableRule_PriorityTie_CatalogOrderWins(t *testing.T) {
	// Two equal-priority rules both matching: the one earlier in the
	// catalog is chosen, every time.
	rules := []pricing.Rule{
		{ID: "first", Multiplier: decimal.NewFromFloat(1.2), Priority: 5, IsActive: true},
		{ID: "second", Multiplier: decimal.NewFromFloat(1.8), Priority: 5, IsActive: true},
	}
	for i := 0; i < 10; i++ {
		r := pricing.ApplicableRule(rules, friday)
		require.NotNil(t, r)
		assert.Equal(t, "first", r.ID)
	}
}

func TestApplicableRule_InactiveRuleIgnored(t *testing.T) {
	rules := []pricing.Rule{
		{ID: "off", Multiplier: decimal.NewFromFloat(3), Priority: 99, IsActive: false},
	}
	assert.Nil(t, pricing.ApplicableRule(rules, friday))
}

func TestApplicableRule_HourWindow(t *testing.T) {
	// 18:00-22:00 same-day window
	evening := pricing.Rule{
		ID: "evening", StartHour: intPtr(18), EndHour: intPtr(22),
		Multiplier: decimal.NewFromFloat(1.3), Priority: 1, IsActive: true,
	}
	rules := []pricing.Rule{evening}

	at19 := time.Date(2026, time.March, 6, 19, 0, 0, 0, time.UTC)
	at22 := time.Date(2026, time.March, 6, 22, 0, 0, 0, time.UTC)

	assert.NotNil(t, pricing.ApplicableRule(rules, at19))
	// End bound is exclusive
	assert.Nil(t, pricing.ApplicableRule(rules, at22))
}

func TestApplicableRule_WrapMidnightWindow(t *testing.T) {
	// 22:00-06:00 wraps past midnight
	night := pricing.Rule{
		ID: "night", StartHour: intPtr(22), EndHour: intPtr(6),
		Multiplier: decimal.NewFromFloat(0.8), Priority: 1, IsActive: true,
	}
	rules := []pricing.Rule{night}

	at23 := time.Date(2026, time.March, 6, 23, 0, 0, 0, time.UTC)
	at3 := time.Date(2026, time.March, 7, 3, 0, 0, 0, time.UTC)
	at12 := time.Date(2026, time.March, 7, 12, 0, 0, 0, time.UTC)

	assert.NotNil(t, pricing.ApplicableRule(rules, at23))
	assert.NotNil(t, pricing.ApplicableRule(rules, at3))
	assert.Nil(t, pricing.ApplicableRule(rules, at12))
}

func TestResolve_MultiplierRoundsToUnit(t *testing.T) {
	cfg := baseConfig()
	cfg.Plans[0].HourlyRate = money(199)
	cfg.Rules = []pricing.Rule{{
		ID: "surge", Multiplier: decimal.NewFromFloat(1.15), Priority: 1, IsActive: true,
	}}

	p, err := pricing.ResolvePlan(cfg, "standard", friday)
	require.NoError(t, err)
	// 199 * 1.15 = 228.85 -> 229
	assert.True(t, money(229).Equal(p.Rates.Hourly), "hourly = %s", p.Rates.Hourly)
}

// =============================================================================
// PROMOTIONS
// =============================================================================

func promo(id string, dt pricing.DiscountType, value float64) pricing.Promotion {
	return pricing.Promotion{
		ID:            id,
		Name:          id,
		DiscountType:  dt,
		DiscountValue: decimal.NewFromFloat(value),
		StartDate:     friday.AddDate(0, -1, 0),
		EndDate:       friday.AddDate(0, 1, 0),
		IsActive:      true,
		PlanIDs:       []string{"standard"},
	}
}

func TestResolve_PercentagePromotion(t *testing.T) {
	cfg := baseConfig()
	cfg.Promotions = []pricing.Promotion{promo("half-off", pricing.DiscountPercentage, 50)}

	p, err := pricing.ResolvePlan(cfg, "standard", friday)
	require.NoError(t, err)
	assert.True(t, money(100).Equal(p.Rates.Hourly))
	assert.True(t, money(500).Equal(p.Rates.Daily))
	assert.Equal(t, []string{"half-off"}, p.AppliedPromotions)
}

func TestResolve_FixedPromotionScalesByTier(t *testing.T) {
	// A fixed discount of 10 per hour becomes 240/day, 1680/week, 7200/month.
	cfg := baseConfig()
	cfg.Plans[0].WeeklyRate = money(5000)
	cfg.Plans[0].MonthlyRate = money(15000)
	cfg.Promotions = []pricing.Promotion{promo("ten-off", pricing.DiscountFixedAmount, 10)}

	p, err := pricing.ResolvePlan(cfg, "standard", friday)
	require.NoError(t, err)
	assert.True(t, money(190).Equal(p.Rates.Hourly))
	assert.True(t, money(760).Equal(p.Rates.Daily))   // 1000 - 240
	assert.True(t, money(3320).Equal(p.Rates.Weekly)) // 5000 - 1680
	assert.True(t, money(7800).Equal(p.Rates.Monthly)) // 15000 - 7200
}

func TestResolve_FixedPromotionFloorsAtZero(t *testing.T) {
	cfg := baseConfig()
	cfg.Promotions = []pricing.Promotion{promo("huge", pricing.DiscountFixedAmount, 5000)}

	p, err := pricing.ResolvePlan(cfg, "standard", friday)
	require.NoError(t, err)
	assert.True(t, p.Rates.Hourly.IsZero())
	assert.True(t, p.Rates.Daily.IsZero())
}

func TestResolve_PromotionsStackInCatalogOrder(t *testing.T) {
	// GIVEN: A 50% promotion followed by a fixed 10/hour promotion
	// WHEN: Both apply to the same plan
	// THEN: Percentage first, then fixed: 200 -> 100 -> 90
	//       (the reverse order would give 95)
	cfg := baseConfig()
	cfg.Promotions = []pricing.Promotion{
		promo("half-off", pricing.DiscountPercentage, 50),
		promo("ten-off", pricing.DiscountFixedAmount, 10),
	}

	p, err := pricing.ResolvePlan(cfg, "standard", friday)
	require.NoError(t, err)
	assert.True(t, money(90).Equal(p.Rates.Hourly), "hourly = %s", p.Rates.Hourly)
	assert.Equal(t, []string{"half-off", "ten-off"}, p.AppliedPromotions)
}

func TestResolve_PromotionOutsideDateWindow_Ignored(t *testing.T) {
	cfg := baseConfig()
	expired := promo("expired", pricing.DiscountPercentage, 50)
	expired.EndDate = friday.AddDate(0, 0, -1)
	cfg.Promotions = []pricing.Promotion{expired}

	p, err := pricing.ResolvePlan(cfg, "standard", friday)
	require.NoError(t, err)
	assert.True(t, money(200).Equal(p.Rates.Hourly))
	assert.Empty(t, p.AppliedPromotions)
}

func TestResolve_PromotionUsageLimitExhausted_Ignored(t *testing.T) {
	cfg := baseConfig()
	spent := promo("spent", pricing.DiscountPercentage, 50)
	spent.UsageLimit = intPtr(3)
	spent.UsageCount = 3
	cfg.Promotions = []pricing.Promotion{spent}

	p, err := pricing.ResolvePlan(cfg, "standard", friday)
	require.NoError(t, err)
	assert.Empty(t, p.AppliedPromotions)
}

func TestResolve_PromotionForOtherPlan_Ignored(t *testing.T) {
	cfg := baseConfig()
	other := promo("other", pricing.DiscountPercentage, 50)
	other.PlanIDs = []string{"premium"}
	cfg.Promotions = []pricing.Promotion{other}

	p, err := pricing.ResolvePlan(cfg, "standard", friday)
	require.NoError(t, err)
	assert.True(t, money(200).Equal(p.Rates.Hourly))
}

func TestResolve_MultiplierThenPromotion(t *testing.T) {
	// Rule multiplier applies before promotions: 200 * 1.5 = 300, then 50% -> 150.
	cfg := baseConfig()
	cfg.Rules = []pricing.Rule{{
		ID: "surge", Multiplier: decimal.NewFromFloat(1.5), Priority: 1, IsActive: true,
	}}
	cfg.Promotions = []pricing.Promotion{promo("half-off", pricing.DiscountPercentage, 50)}

	p, err := pricing.ResolvePlan(cfg, "standard", friday)
	require.NoError(t, err)
	assert.True(t, money(150).Equal(p.Rates.Hourly))
}
