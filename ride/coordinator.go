/*
coordinator.go - Start / End / Cancel transitions

PURPOSE:
  The Coordinator drives the session state machine and connects it to
  pricing and payment. The sequencing rule on End is strict:

    1. Resolve the effective plan at the END instant (never the start)
    2. Compute the cost and stamp the ride COMPLETED
    3. Attempt the wallet debit

  A pricing or calculation failure aborts before any state or money
  changes. A payment failure does NOT reopen the ride: the session is
  over, the debt is recorded, collection is out of band.
*/
package ride

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Xybronix/EcoMobile-backend-sub001/ledger"
	"github.com/Xybronix/EcoMobile-backend-sub001/pricing"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Catalog supplies the active pricing configuration and tracks promotion
// consumption.
type Catalog interface {
	// ActiveConfig returns the current pricing configuration, or
	// ErrNotConfigured when none is active.
	ActiveConfig(ctx context.Context) (*pricing.Config, error)

	// ConsumePromotions increments the usage count of each promotion.
	// Called once per settled session that benefited from them.
	ConsumePromotions(ctx context.Context, promoIDs []string) error
}

// Payments settles session costs against the rider's wallet.
// Implemented by the wallet service.
type Payments interface {
	DebitForSession(ctx context.Context, userID ledger.UserID, amount ledger.Money, rideID ledger.RideID) (*ledger.Transaction, error)
}

// =============================================================================
// COORDINATOR
// =============================================================================

type Coordinator struct {
	rides    Store
	catalog  Catalog
	payments Payments

	now func() time.Time
}

func NewCoordinator(rides Store, catalog Catalog, payments Payments) *Coordinator {
	return &Coordinator{
		rides:    rides,
		catalog:  catalog,
		payments: payments,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// =============================================================================
// START
// =============================================================================

// Start opens a session. The bike-available and no-active-session checks
// and the bike flip happen atomically in the store: two users racing for
// the last bike cannot both win, and one user cannot hold two sessions.
// Starting moves no money and does not consult the wallet balance.
func (c *Coordinator) Start(ctx context.Context, userID ledger.UserID, bikeID, planID string, loc Location) (*Ride, error) {
	// Validate the plan exists up front so a dangling planID fails the
	// start, not the end.
	cfg, err := c.catalog.ActiveConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("start ride for %s: %w", userID, err)
	}
	if _, err := pricing.ResolvePlan(cfg, planID, c.now()); err != nil {
		return nil, fmt.Errorf("start ride for %s: %w", userID, err)
	}

	now := c.now()
	r := Ride{
		ID:            ledger.RideID(fmt.Sprintf("ride:%s:%d", userID, now.UnixNano())),
		UserID:        userID,
		BikeID:        bikeID,
		PlanID:        planID,
		StartTime:     now,
		StartLocation: loc,
		Status:        StatusInProgress,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.rides.StartRide(ctx, r); err != nil {
		return nil, err
	}
	return &r, nil
}

// =============================================================================
// END
// =============================================================================

// EndResult is everything the end-session flow produced.
type EndResult struct {
	Ride      Ride
	Plan      pricing.EffectivePlan
	Breakdown pricing.CostBreakdown

	// Payment is the debit transaction, completed or failed. Nil when
	// the cost was zero and no debit was attempted.
	Payment *ledger.Transaction

	// PaymentFailed is true when the debit did not complete, whether the
	// wallet could not cover the cost or the attempt itself failed.
	// The ride is COMPLETED regardless.
	PaymentFailed bool
}

// End closes a session: resolves rates at the end instant, computes the
// cost, marks the ride COMPLETED with the cost stamped exactly once,
// releases the bike, then attempts payment.
func (c *Coordinator) End(ctx context.Context, rideID ledger.RideID, userID ledger.UserID, loc Location, distanceKm float64) (*EndResult, error) {
	r, err := c.rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, fmt.Errorf("ride %s does not belong to %s: %w", rideID, userID, ledger.ErrSessionNotFound)
	}
	if r.Status != StatusInProgress {
		return nil, fmt.Errorf("ride %s is %s: %w", rideID, r.Status, ledger.ErrWrongState)
	}

	end := c.now()

	// Rates are resolved at the END instant. A ride crossing a rule
	// boundary is billed entirely under the rules in force at return.
	cfg, err := c.catalog.ActiveConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("end ride %s: %w", rideID, err)
	}
	plan, err := pricing.ResolvePlan(cfg, r.PlanID, end)
	if err != nil {
		return nil, fmt.Errorf("end ride %s: %w", rideID, err)
	}
	breakdown, err := pricing.ComputeCost(*plan, r.StartTime, end)
	if err != nil {
		return nil, fmt.Errorf("end ride %s: %w", rideID, err)
	}

	cost := breakdown.Cost.Add(plan.UnlockFee)

	r.EndTime = &end
	r.EndLocation = &loc
	r.DistanceKm = distanceKm
	r.DurationMinutes = int(end.Sub(r.StartTime).Minutes())
	r.Cost = cost
	r.Status = StatusCompleted
	r.UpdatedAt = end

	// The session closes before payment is attempted. The debit carries
	// the ride ID as its idempotency key, so a crash after this point is
	// safe: re-ending fails on status, and Settle re-drives the payment.
	if err := c.rides.FinishRide(ctx, *r, BikeAvailable); err != nil {
		return nil, err
	}

	result := EndResult{Plan: *plan, Breakdown: breakdown}
	if cost.IsPositive() {
		tx, debitErr := c.payments.DebitForSession(ctx, userID, cost, rideID)
		result.Payment = tx
		if debitErr != nil {
			// The session is over no matter why the debit failed: an
			// empty wallet and a wallet-lock timeout both leave a
			// COMPLETED ride with money owed. Flag it unpaid so Settle
			// and the unpaid-rides query can find it.
			result.PaymentFailed = true
			r.PaymentFailed = true
			r.UpdatedAt = c.now()
			if err := c.rides.FinishRide(ctx, *r, BikeAvailable); err != nil {
				return nil, err
			}
			if !errors.Is(debitErr, ledger.ErrInsufficientFunds) {
				return nil, fmt.Errorf("end ride %s: %w", rideID, debitErr)
			}
		}
	}
	result.Ride = *r

	if len(plan.AppliedPromotions) > 0 {
		if err := c.catalog.ConsumePromotions(ctx, plan.AppliedPromotions); err != nil {
			return nil, err
		}
	}
	return &result, nil
}

// Settle retries the payment of a completed ride whose debit failed.
// The idempotency key guarantees a ride is never charged twice.
func (c *Coordinator) Settle(ctx context.Context, rideID ledger.RideID) (*ledger.Transaction, error) {
	r, err := c.rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusCompleted {
		return nil, fmt.Errorf("ride %s is %s: %w", rideID, r.Status, ledger.ErrWrongState)
	}
	if !r.Cost.IsPositive() {
		return nil, nil
	}

	tx, err := c.payments.DebitForSession(ctx, r.UserID, r.Cost, rideID)
	if err != nil {
		return tx, err
	}
	if r.PaymentFailed && tx.Status == ledger.StatusCompleted {
		r.PaymentFailed = false
		r.UpdatedAt = c.now()
		if err := c.rides.FinishRide(ctx, *r, BikeAvailable); err != nil {
			return nil, err
		}
	}
	return tx, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel abandons an in-progress session without billing. The bike is
// released and no transaction is recorded.
func (c *Coordinator) Cancel(ctx context.Context, rideID ledger.RideID, userID ledger.UserID) (*Ride, error) {
	r, err := c.rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, fmt.Errorf("ride %s does not belong to %s: %w", rideID, userID, ledger.ErrSessionNotFound)
	}
	if r.Status != StatusInProgress {
		return nil, fmt.Errorf("ride %s is %s: %w", rideID, r.Status, ledger.ErrWrongState)
	}

	now := c.now()
	r.EndTime = &now
	r.Status = StatusCancelled
	r.UpdatedAt = now
	if err := c.rides.FinishRide(ctx, *r, BikeAvailable); err != nil {
		return nil, err
	}
	return r, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (c *Coordinator) Get(ctx context.Context, rideID ledger.RideID) (*Ride, error) {
	return c.rides.GetRide(ctx, rideID)
}

func (c *Coordinator) Active(ctx context.Context, userID ledger.UserID) (*Ride, error) {
	return c.rides.ActiveRide(ctx, userID)
}

func (c *Coordinator) History(ctx context.Context, userID ledger.UserID) ([]Ride, error) {
	return c.rides.ListRides(ctx, userID)
}

// Quote prices a hypothetical session for every active plan without
// touching any state. Display only.
func (c *Coordinator) Quote(ctx context.Context, start, end time.Time) ([]QuoteLine, error) {
	cfg, err := c.catalog.ActiveConfig(ctx)
	if err != nil {
		return nil, err
	}
	plans, err := pricing.Resolve(cfg, end)
	if err != nil {
		return nil, err
	}
	lines := make([]QuoteLine, 0, len(plans))
	for _, p := range plans {
		b, err := pricing.ComputeCost(p, start, end)
		if err != nil {
			return nil, err
		}
		lines = append(lines, QuoteLine{
			Plan:      p,
			Breakdown: b,
			Total:     b.Cost.Add(p.UnlockFee),
		})
	}
	return lines, nil
}

type QuoteLine struct {
	Plan      pricing.EffectivePlan
	Breakdown pricing.CostBreakdown
	Total     ledger.Money
}
