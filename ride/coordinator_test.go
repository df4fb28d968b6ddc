package ride_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xybronix/EcoMobile-backend-sub001/ledger"
	"github.com/Xybronix/EcoMobile-backend-sub001/ledger/store"
	"github.com/Xybronix/EcoMobile-backend-sub001/pricing"
	"github.com/Xybronix/EcoMobile-backend-sub001/ride"
	"github.com/Xybronix/EcoMobile-backend-sub001/wallet"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	rider = ledger.UserID("rider-1")
	bike1 = "bike-1"
)

func money(v int64) ledger.Money { return ledger.NewMoney(v) }

// clock is a settable time source shared by the coordinator and the
// wallet service so sessions can be ended at exact instants.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *clock { return &clock{t: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Advance a little on every read so generated IDs stay unique.
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

var testStart = time.Date(2026, time.March, 6, 10, 0, 0, 0, time.UTC) // a Friday

type fixture struct {
	mem     *store.Memory
	wallets *wallet.Service
	coord   *ride.Coordinator
	clock   *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemory()
	clk := newClock(testStart)
	wallets := wallet.NewService(mem, mem, mem).WithClock(clk.Now)
	coord := ride.NewCoordinator(mem, mem, wallets).WithClock(clk.Now)

	require.NoError(t, mem.CreateWallet(ctx, rider))
	require.NoError(t, mem.SaveBike(ctx, ride.Bike{ID: bike1, Status: ride.BikeAvailable}))
	require.NoError(t, mem.SaveConfig(ctx, pricing.Config{
		ID:        "catalog-1",
		UnlockFee: money(100),
		IsActive:  true,
		Plans: []pricing.Plan{{
			ID:           "standard",
			Name:         "Standard",
			HourlyRate:   money(200),
			DailyRate:    money(1000),
			WeeklyRate:   money(5000),
			MonthlyRate:  money(15000),
			MinimumHours: 1,
			IsActive:     true,
		}},
	}))
	return &fixture{mem: mem, wallets: wallets, coord: coord, clock: clk}
}

func (f *fixture) fund(t *testing.T, amount int64) {
	t.Helper()
	_, err := f.wallets.CreditBalance(context.Background(), rider, money(amount), ledger.MethodAdmin, "seed")
	require.NoError(t, err)
}

func (f *fixture) start(t *testing.T) *ride.Ride {
	t.Helper()
	r, err := f.coord.Start(context.Background(), rider, bike1, "standard", ride.Location{})
	require.NoError(t, err)
	return r
}

// =============================================================================
// START
// =============================================================================

func TestStart_ClaimsBike(t *testing.T) {
	f := newFixture(t)
	r := f.start(t)

	assert.Equal(t, ride.StatusInProgress, r.Status)
	b, err := f.mem.GetBike(context.Background(), bike1)
	require.NoError(t, err)
	assert.Equal(t, ride.BikeInUse, b.Status)
}

func TestStart_MovesNoMoney(t *testing.T) {
	// Starting never consults or touches the wallet.
	f := newFixture(t)
	f.start(t)

	txs, err := f.wallets.TransactionHistory(context.Background(), rider)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestStart_SecondSessionRejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mem.SaveBike(context.Background(), ride.Bike{ID: "bike-2", Status: ride.BikeAvailable}))
	f.start(t)

	_, err := f.coord.Start(context.Background(), rider, "bike-2", "standard", ride.Location{})
	assert.ErrorIs(t, err, ledger.ErrSessionAlreadyActive)
}

func TestStart_BikeInUseRejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mem.CreateWallet(context.Background(), "rider-2"))
	f.start(t)

	_, err := f.coord.Start(context.Background(), "rider-2", bike1, "standard", ride.Location{})
	assert.ErrorIs(t, err, ledger.ErrBikeUnavailable)
}

func TestStart_ConcurrentClaims_OneWins(t *testing.T) {
	// Two riders race for the last bike; exactly one gets it.
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mem.CreateWallet(ctx, "rider-2"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, u := range []ledger.UserID{rider, "rider-2"} {
		wg.Add(1)
		go func(i int, u ledger.UserID) {
			defer wg.Done()
			_, errs[i] = f.coord.Start(ctx, u, bike1, "standard", ride.Location{})
		}(i, u)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ledger.ErrBikeUnavailable)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestStart_UnknownPlanRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.Start(context.Background(), rider, bike1, "no-such-plan", ride.Location{})
	assert.ErrorIs(t, err, ledger.ErrNotConfigured)
}

// =============================================================================
// END
// =============================================================================

func TestEnd_BillsAndSettles(t *testing.T) {
	// GIVEN: A funded rider on a 90-minute session at 200/hour + 100 unlock
	// WHEN: The session ends
	// THEN: Cost 400 is stamped and debited; the bike is released
	f := newFixture(t)
	f.fund(t, 1000)
	r := f.start(t)

	f.clock.Set(testStart.Add(90*time.Minute + 30*time.Second))
	res, err := f.coord.End(context.Background(), r.ID, rider, ride.Location{}, 5.2)
	require.NoError(t, err)

	assert.Equal(t, ride.StatusCompleted, res.Ride.Status)
	assert.True(t, money(400).Equal(res.Ride.Cost), "cost = %s", res.Ride.Cost)
	assert.False(t, res.PaymentFailed)
	require.NotNil(t, res.Payment)
	assert.Equal(t, ledger.StatusCompleted, res.Payment.Status)

	w, err := f.wallets.Balance(context.Background(), rider)
	require.NoError(t, err)
	assert.True(t, money(600).Equal(w.Balance))

	b, err := f.mem.GetBike(context.Background(), bike1)
	require.NoError(t, err)
	assert.Equal(t, ride.BikeAvailable, b.Status)
}

func TestEnd_PaymentFailureKeepsRideCompleted(t *testing.T) {
	// GIVEN: A broke rider ends a session
	// THEN: The ride still completes, the debt is a FAILED row, and the
	//       rider can start a new session
	f := newFixture(t)
	r := f.start(t)

	f.clock.Set(testStart.Add(90*time.Minute + 30*time.Second))
	res, err := f.coord.End(context.Background(), r.ID, rider, ride.Location{}, 0)
	require.NoError(t, err)

	assert.Equal(t, ride.StatusCompleted, res.Ride.Status)
	assert.True(t, res.PaymentFailed)
	require.NotNil(t, res.Payment)
	assert.Equal(t, ledger.StatusFailed, res.Payment.Status)

	stored, err := f.coord.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusCompleted, stored.Status)
	assert.True(t, stored.PaymentFailed)

	// Outstanding debt does not block a new session.
	_, err = f.coord.Start(context.Background(), rider, bike1, "standard", ride.Location{})
	assert.NoError(t, err)
}

func TestEnd_DebitConflictFlagsRideUnpaid(t *testing.T) {
	// GIVEN: The rider's wallet lock is held by another operation when
	//        the session ends, so the debit times out
	// THEN: The conflict surfaces, but the COMPLETED ride is flagged
	//       unpaid and a later settle collects
	f := newFixture(t)
	f.fund(t, 1000)
	r := f.start(t)

	release := make(chan struct{})
	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.mem.WithWallet(context.Background(), rider, func(ledger.WalletTx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	f.clock.Set(testStart.Add(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.coord.End(ctx, r.ID, rider, ride.Location{}, 0)
	assert.ErrorIs(t, err, ledger.ErrConcurrencyConflict)

	stored, err := f.coord.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusCompleted, stored.Status)
	assert.True(t, stored.PaymentFailed)

	unpaid, err := f.mem.ListUnpaidRides(context.Background())
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, r.ID, unpaid[0].ID)

	close(release)
	<-done

	tx, err := f.coord.Settle(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, tx.Status)

	stored, err = f.coord.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.False(t, stored.PaymentFailed)
}

func TestEnd_RatesResolvedAtEndInstant(t *testing.T) {
	// A session starting Friday and ending Saturday under a Saturday 1.5x
	// rule bills entirely at the multiplied rate.
	f := newFixture(t)
	f.fund(t, 10000)

	cfg, err := f.mem.ActiveConfig(context.Background())
	require.NoError(t, err)
	sat := time.Saturday
	cfg.Rules = []pricing.Rule{{
		ID: "weekend", Name: "Weekend", DayOfWeek: &sat,
		Multiplier: decimal.NewFromFloat(1.5), Priority: 1, IsActive: true,
	}}
	require.NoError(t, f.mem.SaveConfig(context.Background(), *cfg))

	f.clock.Set(time.Date(2026, time.March, 6, 23, 0, 0, 0, time.UTC)) // Friday night
	r := f.start(t)

	// Ends Saturday 00:30: 90 minutes at 300/hour (200 * 1.5) + 100 unlock.
	f.clock.Set(time.Date(2026, time.March, 7, 0, 30, 30, 0, time.UTC))
	res, err := f.coord.End(context.Background(), r.ID, rider, ride.Location{}, 0)
	require.NoError(t, err)

	// 300 + 150 + 100 = 550
	assert.True(t, money(550).Equal(res.Ride.Cost), "cost = %s", res.Ride.Cost)
}

func TestEnd_AlreadyCompletedRejected(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1000)
	r := f.start(t)

	f.clock.Set(testStart.Add(time.Hour))
	_, err := f.coord.End(context.Background(), r.ID, rider, ride.Location{}, 0)
	require.NoError(t, err)

	_, err = f.coord.End(context.Background(), r.ID, rider, ride.Location{}, 0)
	assert.ErrorIs(t, err, ledger.ErrWrongState)
}

func TestEnd_WrongUserRejected(t *testing.T) {
	f := newFixture(t)
	r := f.start(t)

	_, err := f.coord.End(context.Background(), r.ID, "someone-else", ride.Location{}, 0)
	assert.ErrorIs(t, err, ledger.ErrSessionNotFound)
}

func TestEnd_ConsumesPromotions(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1000)

	cfg, err := f.mem.ActiveConfig(context.Background())
	require.NoError(t, err)
	limit := 5
	cfg.Promotions = []pricing.Promotion{{
		ID:            "opening",
		Name:          "Opening week",
		DiscountType:  pricing.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(50),
		StartDate:     testStart.AddDate(0, 0, -1),
		EndDate:       testStart.AddDate(0, 0, 7),
		UsageLimit:    &limit,
		IsActive:      true,
		PlanIDs:       []string{"standard"},
	}}
	require.NoError(t, f.mem.SaveConfig(context.Background(), *cfg))

	r := f.start(t)
	f.clock.Set(testStart.Add(time.Hour))
	res, err := f.coord.End(context.Background(), r.ID, rider, ride.Location{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"opening"}, res.Plan.AppliedPromotions)

	after, err := f.mem.ActiveConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, after.Promotions[0].UsageCount)
}

// =============================================================================
// SETTLE
// =============================================================================

func TestSettle_RetriesFailedPayment(t *testing.T) {
	// GIVEN: A completed ride with a failed debit
	// WHEN: The rider tops up and settlement is retried
	// THEN: The ride is paid and the flag clears
	f := newFixture(t)
	r := f.start(t)
	f.clock.Set(testStart.Add(time.Hour))
	_, err := f.coord.End(context.Background(), r.ID, rider, ride.Location{}, 0)
	require.NoError(t, err)

	f.fund(t, 1000)
	tx, err := f.coord.Settle(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, tx.Status)

	stored, err := f.coord.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.False(t, stored.PaymentFailed)
}

func TestSettle_InProgressRejected(t *testing.T) {
	f := newFixture(t)
	r := f.start(t)

	_, err := f.coord.Settle(context.Background(), r.ID)
	assert.ErrorIs(t, err, ledger.ErrWrongState)
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancel_ReleasesBikeWithoutBilling(t *testing.T) {
	f := newFixture(t)
	r := f.start(t)

	cancelled, err := f.coord.Cancel(context.Background(), r.ID, rider)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusCancelled, cancelled.Status)
	assert.True(t, cancelled.Cost.IsZero())

	b, err := f.mem.GetBike(context.Background(), bike1)
	require.NoError(t, err)
	assert.Equal(t, ride.BikeAvailable, b.Status)

	txs, err := f.wallets.TransactionHistory(context.Background(), rider)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestCancel_CompletedRejected(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1000)
	r := f.start(t)
	f.clock.Set(testStart.Add(time.Hour))
	_, err := f.coord.End(context.Background(), r.ID, rider, ride.Location{}, 0)
	require.NoError(t, err)

	_, err = f.coord.Cancel(context.Background(), r.ID, rider)
	assert.ErrorIs(t, err, ledger.ErrWrongState)
}
