package api_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xybronix/EcoMobile-backend-sub001/api"
	"github.com/Xybronix/EcoMobile-backend-sub001/factory"
	"github.com/Xybronix/EcoMobile-backend-sub001/ledger"
	"github.com/Xybronix/EcoMobile-backend-sub001/ledger/store"
	"github.com/Xybronix/EcoMobile-backend-sub001/ride"
	"github.com/Xybronix/EcoMobile-backend-sub001/wallet"
)

func TestSettlementScheduler_EmptyPass(t *testing.T) {
	mem := store.NewMemory()
	wallets := wallet.NewService(mem, mem, mem)
	rides := ride.NewCoordinator(mem, mem, wallets)
	sched := api.NewSettlementScheduler(rides, mem)

	require.Nil(t, sched.LastRun())
	run := sched.RunOnce(context.Background())
	assert.Zero(t, run.Checked)
	assert.Zero(t, run.Errors)
	require.NotNil(t, sched.LastRun())
}

func TestSettlementScheduler_CollectsAfterTopUp(t *testing.T) {
	// GIVEN: A broke rider with a completed-but-unpaid ride
	// WHEN: The scheduler runs before and after a top-up
	// THEN: The first pass leaves the ride unpaid, the second collects
	ctx := context.Background()
	mem := store.NewMemory()
	wallets := wallet.NewService(mem, mem, mem)
	rides := ride.NewCoordinator(mem, mem, wallets)

	require.NoError(t, mem.SaveConfig(ctx, factory.StandardCatalog("c1")))
	require.NoError(t, mem.SaveBike(ctx, ride.Bike{ID: "bike-1", Status: ride.BikeAvailable}))
	require.NoError(t, mem.CreateWallet(ctx, "alice"))

	started, err := rides.Start(ctx, "alice", "bike-1", "standard", ride.Location{})
	require.NoError(t, err)
	ended, err := rides.End(ctx, started.ID, "alice", ride.Location{}, 0)
	require.NoError(t, err)
	require.True(t, ended.PaymentFailed)

	sched := api.NewSettlementScheduler(rides, mem)

	run := sched.RunOnce(ctx)
	assert.Equal(t, 1, run.Checked)
	assert.Equal(t, 1, run.StillUnpaid)
	assert.Zero(t, run.Settled)

	_, err = wallets.CreditBalance(ctx, "alice", ledger.NewMoney(1000), ledger.MethodAdmin, "topup-1")
	require.NoError(t, err)

	run = sched.RunOnce(ctx)
	assert.Equal(t, 1, run.Checked)
	assert.Equal(t, 1, run.Settled)
	assert.Zero(t, run.StillUnpaid)

	r, err := rides.Get(ctx, started.ID)
	require.NoError(t, err)
	assert.False(t, r.PaymentFailed)

	// Nothing left to collect.
	run = sched.RunOnce(ctx)
	assert.Zero(t, run.Checked)
}
