package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xybronix/EcoMobile-backend-sub001/factory"
	"github.com/Xybronix/EcoMobile-backend-sub001/ledger"
	"github.com/Xybronix/EcoMobile-backend-sub001/ride"
	"github.com/Xybronix/EcoMobile-backend-sub001/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testTx(id, key string) ledger.Transaction {
	return ledger.Transaction{
		ID:             ledger.TransactionID(id),
		WalletID:       "alice",
		Kind:           ledger.KindDeposit,
		Account:        ledger.AccountBalance,
		Amount:         ledger.NewMoney(500),
		TotalAmount:    ledger.NewMoney(500),
		Status:         ledger.StatusCompleted,
		Method:         ledger.MethodAdmin,
		IdempotencyKey: key,
		CreatedAt:      time.Now().UTC(),
	}
}

// =============================================================================
// WALLETS
// =============================================================================

func TestSQLite_CreateWallet_Idempotent(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateWallet(ctx, "alice"))
	require.NoError(t, st.CreateWallet(ctx, "alice"))

	w, err := st.GetWallet(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())
	assert.True(t, w.Deposit.IsZero())
}

func TestSQLite_GetWallet_Unknown(t *testing.T) {
	st := newStore(t)
	_, err := st.GetWallet(context.Background(), "nobody")
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
}

// =============================================================================
// WITH WALLET - atomicity and idempotency at the database level
// =============================================================================

func TestSQLite_WithWallet_CommitsTogether(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateWallet(ctx, "alice"))

	err := st.WithWallet(ctx, "alice", func(wtx ledger.WalletTx) error {
		if err := wtx.Append(testTx("tx-1", "key-1")); err != nil {
			return err
		}
		return wtx.UpdateWallet(ledger.NewMoney(500), ledger.NewMoney(0))
	})
	require.NoError(t, err)

	w, err := st.GetWallet(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "500", w.Balance.String())

	history, err := st.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "key-1", history[0].IdempotencyKey)
}

func TestSQLite_WithWallet_ErrorRollsBack(t *testing.T) {
	// GIVEN: fn appends a row and updates the balance, then fails
	// THEN: Neither write survives
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateWallet(ctx, "alice"))

	boom := errors.New("boom")
	err := st.WithWallet(ctx, "alice", func(wtx ledger.WalletTx) error {
		if err := wtx.Append(testTx("tx-1", "key-1")); err != nil {
			return err
		}
		if err := wtx.UpdateWallet(ledger.NewMoney(500), ledger.NewMoney(0)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	w, err := st.GetWallet(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())

	history, err := st.History(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSQLite_WithWallet_DuplicateKeyRejected(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateWallet(ctx, "alice"))

	require.NoError(t, st.WithWallet(ctx, "alice", func(wtx ledger.WalletTx) error {
		return wtx.Append(testTx("tx-1", "key-1"))
	}))

	err := st.WithWallet(ctx, "alice", func(wtx ledger.WalletTx) error {
		return wtx.Append(testTx("tx-2", "key-1"))
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)
}

func TestSQLite_WithWallet_CancelledContextFailsFast(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateWallet(ctx, "alice"))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	release := make(chan struct{})
	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		st.WithWallet(ctx, "alice", func(wtx ledger.WalletTx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer func() {
		close(release)
		<-done
	}()

	err := st.WithWallet(cancelled, "alice", func(wtx ledger.WalletTx) error {
		t.Error("fn must not run when the lock wait times out")
		return nil
	})
	assert.ErrorIs(t, err, ledger.ErrConcurrencyConflict)
}

func TestSQLite_MarkStatus_ExactlyOnce(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateWallet(ctx, "alice"))

	pending := testTx("tx-1", "key-1")
	pending.Status = ledger.StatusPending
	require.NoError(t, st.WithWallet(ctx, "alice", func(wtx ledger.WalletTx) error {
		return wtx.Append(pending)
	}))

	require.NoError(t, st.WithWallet(ctx, "alice", func(wtx ledger.WalletTx) error {
		return wtx.MarkStatus("tx-1", ledger.StatusCompleted)
	}))

	err := st.WithWallet(ctx, "alice", func(wtx ledger.WalletTx) error {
		return wtx.MarkStatus("tx-1", ledger.StatusRejected)
	})
	assert.ErrorIs(t, err, ledger.ErrStatusFinal)

	tx, err := st.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, tx.Status)
}

func TestSQLite_UpdateWallet_RejectsNegative(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateWallet(ctx, "alice"))

	err := st.WithWallet(ctx, "alice", func(wtx ledger.WalletTx) error {
		return wtx.UpdateWallet(ledger.NewMoney(-1), ledger.NewMoney(0))
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

// =============================================================================
// RIDES AND BIKES
// =============================================================================

func seedBike(t *testing.T, st *sqlite.Store, id string) {
	t.Helper()
	require.NoError(t, st.SaveBike(context.Background(), ride.Bike{
		ID: id, Status: ride.BikeAvailable, UpdatedAt: time.Now().UTC(),
	}))
}

func newRide(id, userID, bikeID string) ride.Ride {
	now := time.Now().UTC()
	return ride.Ride{
		ID:        ledger.RideID(id),
		UserID:    ledger.UserID(userID),
		BikeID:    bikeID,
		PlanID:    "standard",
		StartTime: now,
		Cost:      ledger.NewMoney(0),
		Status:    ride.StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSQLite_StartRide_ClaimsBike(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	seedBike(t, st, "bike-1")

	require.NoError(t, st.StartRide(ctx, newRide("r1", "alice", "bike-1")))

	b, err := st.GetBike(ctx, "bike-1")
	require.NoError(t, err)
	assert.Equal(t, ride.BikeInUse, b.Status)

	// Same bike cannot be claimed twice.
	err = st.StartRide(ctx, newRide("r2", "bob", "bike-1"))
	assert.ErrorIs(t, err, ledger.ErrBikeUnavailable)
}

func TestSQLite_StartRide_OneActivePerUser(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	seedBike(t, st, "bike-1")
	seedBike(t, st, "bike-2")

	require.NoError(t, st.StartRide(ctx, newRide("r1", "alice", "bike-1")))

	err := st.StartRide(ctx, newRide("r2", "alice", "bike-2"))
	assert.ErrorIs(t, err, ledger.ErrSessionAlreadyActive)

	// The failed start must not leave bike-2 claimed.
	b, err := st.GetBike(ctx, "bike-2")
	require.NoError(t, err)
	assert.Equal(t, ride.BikeAvailable, b.Status)
}

func TestSQLite_FinishRide_ReleasesBike(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	seedBike(t, st, "bike-1")

	r := newRide("r1", "alice", "bike-1")
	require.NoError(t, st.StartRide(ctx, r))

	end := time.Now().UTC()
	r.EndTime = &end
	r.EndLocation = &ride.Location{Lat: 6.13, Lng: 1.22}
	r.DurationMinutes = 45
	r.Cost = ledger.NewMoney(300)
	r.Status = ride.StatusCompleted
	r.UpdatedAt = end
	require.NoError(t, st.FinishRide(ctx, r, ride.BikeAvailable))

	got, err := st.GetRide(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, ride.StatusCompleted, got.Status)
	assert.Equal(t, "300", got.Cost.String())
	require.NotNil(t, got.EndLocation)
	assert.InDelta(t, 6.13, got.EndLocation.Lat, 0.001)

	b, err := st.GetBike(ctx, "bike-1")
	require.NoError(t, err)
	assert.Equal(t, ride.BikeAvailable, b.Status)

	_, err = st.ActiveRide(ctx, "alice")
	assert.ErrorIs(t, err, ledger.ErrSessionNotFound)
}

func TestSQLite_ListUnpaidRides(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	seedBike(t, st, "bike-1")

	r := newRide("r1", "alice", "bike-1")
	require.NoError(t, st.StartRide(ctx, r))

	end := time.Now().UTC()
	r.EndTime = &end
	r.Cost = ledger.NewMoney(300)
	r.PaymentFailed = true
	r.Status = ride.StatusCompleted
	r.UpdatedAt = end
	require.NoError(t, st.FinishRide(ctx, r, ride.BikeAvailable))

	unpaid, err := st.ListUnpaidRides(ctx)
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, ledger.RideID("r1"), unpaid[0].ID)

	// Settled: clear the flag and re-list.
	r.PaymentFailed = false
	require.NoError(t, st.FinishRide(ctx, r, ride.BikeAvailable))

	unpaid, err = st.ListUnpaidRides(ctx)
	require.NoError(t, err)
	assert.Empty(t, unpaid)
}

// =============================================================================
// PRICING CATALOG
// =============================================================================

func TestSQLite_ActiveConfig_NoneConfigured(t *testing.T) {
	st := newStore(t)
	_, err := st.ActiveConfig(context.Background())
	assert.ErrorIs(t, err, ledger.ErrNotConfigured)
}

func TestSQLite_SaveConfig_SingleActive(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveConfig(ctx, factory.StandardCatalog("c1")))
	require.NoError(t, st.SaveConfig(ctx, factory.WeekendSurgeCatalog("c2")))

	cfg, err := st.ActiveConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c2", cfg.ID)
}

func TestSQLite_ConsumePromotions(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.SaveConfig(ctx, factory.LaunchCatalog("c1", 30)))

	cfg, err := st.ActiveConfig(ctx)
	require.NoError(t, err)
	require.Len(t, cfg.Promotions, 1)
	promoID := cfg.Promotions[0].ID

	require.NoError(t, st.ConsumePromotions(ctx, []string{promoID}))
	require.NoError(t, st.ConsumePromotions(ctx, []string{promoID}))

	cfg, err = st.ActiveConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Promotions[0].UsageCount)
}

// =============================================================================
// AUDIT AND RESET
// =============================================================================

func TestSQLite_AuditRoundTrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	entry := ledger.AuditEntry{
		ID:            "audit-1",
		At:            time.Now().UTC(),
		ActorID:       "admin-1",
		Action:        ledger.AuditWalletCredited,
		UserID:        "alice",
		TransactionID: "tx-1",
		Before:        ledger.WalletSnapshot{Balance: ledger.NewMoney(0), Deposit: ledger.NewMoney(0)},
		After:         ledger.WalletSnapshot{Balance: ledger.NewMoney(500), Deposit: ledger.NewMoney(0)},
	}
	require.NoError(t, st.AppendAudit(ctx, entry))

	entries, err := st.QueryAudit(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "admin-1", entries[0].ActorID)
	assert.Equal(t, "500", entries[0].After.Balance.String())
}

func TestSQLite_ResetAll(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateWallet(ctx, "alice"))
	seedBike(t, st, "bike-1")
	require.NoError(t, st.SaveConfig(ctx, factory.StandardCatalog("c1")))

	require.NoError(t, st.ResetAll(ctx))

	_, err := st.GetWallet(ctx, "alice")
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
	bikes, err := st.ListBikes(ctx)
	require.NoError(t, err)
	assert.Empty(t, bikes)
	_, err = st.ActiveConfig(ctx)
	assert.ErrorIs(t, err, ledger.ErrNotConfigured)
}
