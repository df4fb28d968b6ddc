/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the store with realistic
  data for testing and demos. Each scenario creates a catalog, bikes,
  riders, and wallet history that demonstrate specific features.

AVAILABLE SCENARIOS:
  new-rider:      One funded rider, standard catalog, fresh fleet
  weekend-surge:  Two plans plus a 1.5x weekend rule
  launch-promo:   Standard catalog with a half-price launch promotion
  debt-recovery:  A completed ride whose settlement failed, awaiting
                  top-up and retry

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Install a catalog preset from the factory
 3. Register bikes and provision wallets
 4. Optionally run sessions to produce ledger history

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "debt-recovery"}

NOTE:
  Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - factory/catalog.go: Catalog presets
  - server.go: Scenario routes
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Xybronix/EcoMobile-backend-sub001/factory"
	"github.com/Xybronix/EcoMobile-backend-sub001/ledger"
	"github.com/Xybronix/EcoMobile-backend-sub001/ride"
)

// =============================================================================
// SCENARIO CATALOG
// =============================================================================

// Scenario describes a loadable demo dataset.
type Scenario struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var scenarios = []Scenario{
	{
		ID:          "new-rider",
		Name:        "New rider",
		Description: "One funded rider, a standard catalog, and a fresh fleet",
	},
	{
		ID:          "weekend-surge",
		Name:        "Weekend surge",
		Description: "Standard and premium plans with a 1.5x weekend rule",
	},
	{
		ID:          "launch-promo",
		Name:        "Launch promotion",
		Description: "Half-price launch promotion on the standard plan",
	},
	{
		ID:          "debt-recovery",
		Name:        "Debt recovery",
		Description: "A completed ride whose payment failed, awaiting settlement",
	},
}

// Resetter is implemented by stores that can be wiped for demo loading.
type Resetter interface {
	ResetAll(ctx context.Context) error
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario resets the store and loads the requested scenario.
// POST /api/scenarios/load  {"scenario_id": "..."}
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	resetter, ok := h.Store.(Resetter)
	if !ok {
		writeError(w, http.StatusNotImplemented, "store does not support scenario loading", nil)
		return
	}
	ctx := r.Context()
	if err := resetter.ResetAll(ctx); err != nil {
		writeDomainError(w, err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "new-rider":
		err = h.loadNewRiderScenario(ctx)
	case "weekend-surge":
		err = h.loadWeekendSurgeScenario(ctx)
	case "launch-promo":
		err = h.loadLaunchPromoScenario(ctx)
	case "debt-recovery":
		err = h.loadDebtRecoveryScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "unknown scenario: "+req.ScenarioID, nil)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) seedFleet(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		b := ride.Bike{ID: id, Label: "Bike " + id, Status: ride.BikeAvailable, UpdatedAt: h.now()}
		if err := h.Bikes.SaveBike(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) seedRider(ctx context.Context, userID ledger.UserID, balance, deposit int64) error {
	if err := h.Store.CreateWallet(ctx, userID); err != nil {
		return err
	}
	if balance > 0 {
		key := "scenario:balance:" + string(userID)
		if _, err := h.Wallets.CreditBalance(ctx, userID, ledger.NewMoney(balance), ledger.MethodAdmin, key); err != nil {
			return err
		}
	}
	if deposit > 0 {
		if _, err := h.Wallets.CreditDeposit(ctx, userID, ledger.NewMoney(deposit), ledger.MethodAdmin); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadNewRiderScenario(ctx context.Context) error {
	if err := h.Catalog.SaveConfig(ctx, factory.StandardCatalog("demo-standard")); err != nil {
		return err
	}
	if err := h.seedFleet(ctx, "b-001", "b-002", "b-003"); err != nil {
		return err
	}
	return h.seedRider(ctx, "rider-amina", 1000, 2000)
}

func (h *Handler) loadWeekendSurgeScenario(ctx context.Context) error {
	if err := h.Catalog.SaveConfig(ctx, factory.WeekendSurgeCatalog("demo-surge")); err != nil {
		return err
	}
	if err := h.seedFleet(ctx, "b-001", "b-002", "b-003", "b-004"); err != nil {
		return err
	}
	if err := h.seedRider(ctx, "rider-amina", 2000, 2000); err != nil {
		return err
	}
	return h.seedRider(ctx, "rider-kofi", 5000, 2000)
}

func (h *Handler) loadLaunchPromoScenario(ctx context.Context) error {
	if err := h.Catalog.SaveConfig(ctx, factory.LaunchCatalog("demo-launch", 30)); err != nil {
		return err
	}
	if err := h.seedFleet(ctx, "b-001", "b-002"); err != nil {
		return err
	}
	return h.seedRider(ctx, "rider-amina", 1000, 2000)
}

// loadDebtRecoveryScenario produces a completed-but-unpaid ride: the
// rider has no balance, so ending the session records a failed debit.
// Top up via the credits endpoint, then settle the ride.
func (h *Handler) loadDebtRecoveryScenario(ctx context.Context) error {
	if err := h.Catalog.SaveConfig(ctx, factory.StandardCatalog("demo-standard")); err != nil {
		return err
	}
	if err := h.seedFleet(ctx, "b-001"); err != nil {
		return err
	}
	if err := h.seedRider(ctx, "rider-amina", 0, 2000); err != nil {
		return err
	}

	r, err := h.Rides.Start(ctx, "rider-amina", "b-001", "standard", ride.Location{})
	if err != nil {
		return err
	}
	// A moment of riding, then an end the wallet cannot cover.
	time.Sleep(10 * time.Millisecond)
	_, err = h.Rides.End(ctx, r.ID, "rider-amina", ride.Location{}, 1.2)
	return err
}
