/*
scheduler.go - Automated settlement retry scheduler

PURPOSE:
  Periodically scans for completed rides whose wallet debit failed and
  retries their settlement. Riders clear their debt by topping up; the
  scheduler collects without anyone having to press a button.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Each pass lists unpaid rides and drives them through the same
    Settle path the manual endpoint uses; the ride-payment idempotency
    key makes a concurrent manual settle harmless
  - A ride whose wallet still cannot cover the cost simply stays unpaid
    until the next pass
  - Records the last run for the status endpoint

USAGE:
  sched := api.NewSettlementScheduler(rides, store)
  sched.Start()
  // ... later
  sched.Stop()

SEE ALSO:
  - handlers.go: SettleRide, the manual retry endpoint
  - ride/coordinator.go: Settle
*/
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Xybronix/EcoMobile-backend-sub001/ledger"
	"github.com/Xybronix/EcoMobile-backend-sub001/ride"
)

// SettlementScheduler retries failed ride settlements in the background.
type SettlementScheduler struct {
	Rides         *ride.Coordinator
	Store         ride.Store
	CheckInterval time.Duration
	Enabled       bool

	stop chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	lastRun *SettlementRun
}

// SettlementRun summarizes one pass over the unpaid rides.
type SettlementRun struct {
	At          time.Time `json:"at"`
	Checked     int       `json:"checked"`
	Settled     int       `json:"settled"`
	StillUnpaid int       `json:"still_unpaid"`
	Errors      int       `json:"errors"`
}

// NewSettlementScheduler creates a scheduler with a 5-minute interval.
func NewSettlementScheduler(rides *ride.Coordinator, store ride.Store) *SettlementScheduler {
	return &SettlementScheduler{
		Rides:         rides,
		Store:         store,
		CheckInterval: 5 * time.Minute,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start launches the background loop. No-op when disabled.
func (s *SettlementScheduler) Start() {
	if !s.Enabled {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				run := s.RunOnce(context.Background())
				if run.Checked > 0 {
					log.Printf("settlement pass: %d checked, %d settled, %d still unpaid, %d errors",
						run.Checked, run.Settled, run.StillUnpaid, run.Errors)
				}
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop terminates the background loop and waits for it to exit.
func (s *SettlementScheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// RunOnce performs a single settlement pass.
func (s *SettlementScheduler) RunOnce(ctx context.Context) SettlementRun {
	run := SettlementRun{At: time.Now().UTC()}

	unpaid, err := s.Store.ListUnpaidRides(ctx)
	if err != nil {
		log.Printf("settlement pass: listing unpaid rides: %v", err)
		run.Errors++
		s.record(run)
		return run
	}

	for _, r := range unpaid {
		run.Checked++
		tx, err := s.Rides.Settle(ctx, r.ID)
		switch {
		case err == nil && tx != nil && tx.Status == ledger.StatusCompleted:
			run.Settled++
		case errors.Is(err, ledger.ErrInsufficientFunds):
			run.StillUnpaid++
		case err != nil:
			log.Printf("settlement pass: ride %s: %v", r.ID, err)
			run.Errors++
		}
	}
	s.record(run)
	return run
}

func (s *SettlementScheduler) record(run SettlementRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = &run
}

// LastRun returns the most recent pass, or nil before the first one.
func (s *SettlementScheduler) LastRun() *SettlementRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// SettlementStatus reports the scheduler's last pass.
// GET /api/settlements/status
func (s *SettlementScheduler) SettlementStatus(w http.ResponseWriter, r *http.Request) {
	run := s.LastRun()
	if run == nil {
		writeJSON(w, http.StatusOK, map[string]any{"last_run": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"last_run": run})
}
