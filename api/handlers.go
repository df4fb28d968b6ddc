/*
handlers.go - HTTP API handlers for the pricing and wallet engine

PURPOSE:
  Exposes the pricing resolver, wallet service, and ride lifecycle via
  REST API. Handles HTTP request/response, JSON serialization, and
  delegates to domain logic.

ENDPOINTS:
  Pricing:
    GET    /api/pricing/current        Effective plans at an instant (public)
    GET    /api/pricing/quote          Price a hypothetical session
    GET    /api/pricing                Active catalog (admin)
    PUT    /api/pricing                Replace the catalog (admin)

  Wallets:
    POST   /api/wallets                          Provision a wallet
    GET    /api/wallets/{userID}                 Balance + deposit
    GET    /api/wallets/{userID}/transactions    Full history
    GET    /api/wallets/{userID}/audit           Audit trail
    POST   /api/wallets/{userID}/credits         Fund a pot (gateway/admin)
    POST   /api/wallets/{userID}/withdrawals     Withdraw spendable funds
    POST   /api/wallets/{userID}/cash-deposits   Record cash, pending
    POST   /api/cash-deposits/{txID}/validate    Admin validates
    POST   /api/cash-deposits/{txID}/reject      Admin rejects
    POST   /api/payments/callback                Gateway webhook

  Incidents:
    POST   /api/incidents                  Charge a security deposit
    DELETE /api/incidents/{id}             Reverse the charge
    GET    /api/users/{userID}/incidents   Incident history

  Rides:
    POST   /api/rides/start
    POST   /api/rides/{id}/end
    POST   /api/rides/{id}/cancel
    POST   /api/rides/{id}/settle      Retry a failed settlement
    GET    /api/users/{userID}/rides

  Bikes:
    GET    /api/bikes
    POST   /api/bikes

  Development:
    GET    /api/scenarios               List demo scenarios
    POST   /api/scenarios/load          Reset and load a scenario
    GET    /api/settlements/status      Last settlement-retry pass

ERROR HANDLING:
  Errors are returned as JSON with the status derived from the sentinel:
  - 400: InvalidAmount, WrongState
  - 402: InsufficientFunds, InsufficientDeposit
  - 404: Wallet/transaction/session/incident not found, no active catalog
  - 409: SessionAlreadyActive, BikeUnavailable, duplicates, final status
  - 503: ConcurrencyConflict (retryable)
  - 500: Everything else

SECURITY NOTE:
  Currently NO authentication or authorization. Admin endpoints trust the
  actor IDs in request bodies. Front with an authenticating proxy.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Xybronix/EcoMobile-backend-sub001/factory"
	"github.com/Xybronix/EcoMobile-backend-sub001/ledger"
	"github.com/Xybronix/EcoMobile-backend-sub001/pricing"
	"github.com/Xybronix/EcoMobile-backend-sub001/ride"
	"github.com/Xybronix/EcoMobile-backend-sub001/wallet"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// CatalogStore reads and writes the pricing catalog.
type CatalogStore interface {
	ActiveConfig(ctx context.Context) (*pricing.Config, error)
	SaveConfig(ctx context.Context, cfg pricing.Config) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Wallets   *wallet.Service
	Rides     *ride.Coordinator
	Store     ledger.Store
	Audit     ledger.AuditLog
	Bikes     ride.Store
	Catalog   CatalogStore
	Incidents wallet.IncidentStore

	now func() time.Time
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(wallets *wallet.Service, rides *ride.Coordinator, store ledger.Store, audit ledger.AuditLog, bikes ride.Store, catalog CatalogStore, incidents wallet.IncidentStore) *Handler {
	return &Handler{
		Wallets:   wallets,
		Rides:     rides,
		Store:     store,
		Audit:     audit,
		Bikes:     bikes,
		Catalog:   catalog,
		Incidents: incidents,
		now:       time.Now,
	}
}

// =============================================================================
// PRICING ENDPOINTS
// =============================================================================

// GetCurrentPricing returns every active plan with the rules and
// promotions in force at the requested instant.
// GET /api/pricing/current?date=2026-08-23&hour=18
func (h *Handler) GetCurrentPricing(w http.ResponseWriter, r *http.Request) {
	at := h.now()
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD", err)
			return
		}
		at = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), at.Hour(), 0, 0, 0, at.Location())
	}
	if hs := r.URL.Query().Get("hour"); hs != "" {
		hour, err := strconv.Atoi(hs)
		if err != nil || hour < 0 || hour > 23 {
			writeError(w, http.StatusBadRequest, "invalid hour, want 0-23", err)
			return
		}
		at = time.Date(at.Year(), at.Month(), at.Day(), hour, 0, 0, 0, at.Location())
	}

	cfg, err := h.Catalog.ActiveConfig(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// ActiveConfig only returns active configs, so Resolve cannot fail
	// past this point; no-catalog surfaces above as ErrNotConfigured.
	plans, err := pricing.Resolve(cfg, at)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]EffectivePlanDTO, 0, len(plans))
	for _, p := range plans {
		dtos = append(dtos, toEffectivePlanDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// QuotePricing prices a hypothetical session across all active plans.
// GET /api/pricing/quote?start=...&end=... (RFC3339)
func (h *Handler) QuotePricing(w http.ResponseWriter, r *http.Request) {
	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start, want RFC3339", err)
		return
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end, want RFC3339", err)
		return
	}

	lines, err := h.Rides.Quote(r.Context(), start, end)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	type quoteLine struct {
		Plan            EffectivePlanDTO `json:"plan"`
		BillableMinutes int              `json:"billable_minutes"`
		Tier            string           `json:"tier"`
		Total           string           `json:"total"`
	}
	out := make([]quoteLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, quoteLine{
			Plan:            toEffectivePlanDTO(l.Plan),
			BillableMinutes: l.Breakdown.BillableMinutes,
			Tier:            string(l.Breakdown.Tier),
			Total:           l.Total.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetPricingConfig returns the active catalog.
// GET /api/pricing
func (h *Handler) GetPricingConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Catalog.ActiveConfig(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PutPricingConfig replaces the catalog. Takes effect for sessions that
// END after this call; in-flight sessions are billed under it too, since
// rates resolve at the end instant.
// PUT /api/pricing
func (h *Handler) PutPricingConfig(w http.ResponseWriter, r *http.Request) {
	var cfg pricing.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid pricing config", err)
		return
	}
	if err := factory.ValidateCatalog(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid pricing config", err)
		return
	}
	if err := h.Catalog.SaveConfig(r.Context(), cfg); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// =============================================================================
// WALLET ENDPOINTS
// =============================================================================

// CreateWallet provisions an empty wallet. Idempotent.
// POST /api/wallets  {"user_id": "..."}
func (h *Handler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", err)
		return
	}
	if err := h.Store.CreateWallet(r.Context(), ledger.UserID(req.UserID)); err != nil {
		writeDomainError(w, err)
		return
	}
	wlt, err := h.Store.GetWallet(r.Context(), ledger.UserID(req.UserID))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWalletDTO(wlt))
}

// GetWallet returns balance and deposit.
// GET /api/wallets/{userID}
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))
	wlt, err := h.Wallets.Balance(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWalletDTO(wlt))
}

// GetTransactions returns the full movement history, oldest first.
// GET /api/wallets/{userID}/transactions
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))
	txs, err := h.Wallets.TransactionHistory(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// GetAuditTrail returns the audit entries for a user's wallet.
// GET /api/wallets/{userID}/audit
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))
	entries, err := h.Audit.QueryAudit(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// CreditWallet funds a pot directly (admin top-up or trusted gateway).
// POST /api/wallets/{userID}/credits
func (h *Handler) CreditWallet(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))
	var req CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	amount, err := ledger.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}

	method := ledger.Method(req.Method)
	if method == "" {
		method = ledger.MethodAdmin
	}

	var tx *ledger.Transaction
	switch req.Account {
	case "", string(ledger.AccountBalance):
		key := fmt.Sprintf("deposit:%s:%d", userID, h.now().UnixNano())
		tx, err = h.Wallets.CreditBalance(r.Context(), userID, amount, method, key)
	case string(ledger.AccountDeposit):
		tx, err = h.Wallets.CreditDeposit(r.Context(), userID, amount, method)
	default:
		writeError(w, http.StatusBadRequest, "account must be balance or deposit", nil)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// WithdrawWallet moves spendable funds out.
// POST /api/wallets/{userID}/withdrawals
func (h *Handler) WithdrawWallet(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	amount, err := ledger.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}
	method := ledger.Method(req.Method)
	if method == "" {
		method = ledger.MethodMobileMoney
	}

	tx, err := h.Wallets.Withdraw(r.Context(), userID, amount, method)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// RequestCashDeposit records cash handed to staff as a pending row.
// POST /api/wallets/{userID}/cash-deposits
func (h *Handler) RequestCashDeposit(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))
	var req CashDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	amount, err := ledger.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}
	account := ledger.Account(req.Account)
	if account == "" {
		account = ledger.AccountBalance
	}
	if account != ledger.AccountBalance && account != ledger.AccountDeposit {
		writeError(w, http.StatusBadRequest, "account must be balance or deposit", nil)
		return
	}

	tx, err := h.Wallets.RequestCashDeposit(r.Context(), userID, amount, account, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// ValidateCashDeposit credits the account a pending cash deposit targeted.
// POST /api/cash-deposits/{txID}/validate
func (h *Handler) ValidateCashDeposit(w http.ResponseWriter, r *http.Request) {
	txID := ledger.TransactionID(chi.URLParam(r, "txID"))
	var req CashDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	tx, err := h.Wallets.ValidateCashDeposit(r.Context(), txID, req.AdminID, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// RejectCashDeposit finalizes a pending cash deposit without crediting.
// POST /api/cash-deposits/{txID}/reject
func (h *Handler) RejectCashDeposit(w http.ResponseWriter, r *http.Request) {
	txID := ledger.TransactionID(chi.URLParam(r, "txID"))
	var req CashDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	tx, err := h.Wallets.RejectCashDeposit(r.Context(), txID, req.AdminID, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// PaymentCallback is the payment gateway webhook. Replays are absorbed by
// the provider reference acting as idempotency key.
// POST /api/payments/callback
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req GatewayCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ProviderRef == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "provider_ref and user_id are required", nil)
		return
	}
	amount, err := ledger.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}

	tx, err := h.Wallets.ApplyGatewayCallback(r.Context(), wallet.CallbackEvent{
		ProviderRef: req.ProviderRef,
		UserID:      ledger.UserID(req.UserID),
		Status:      req.Status,
		Amount:      amount,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// =============================================================================
// INCIDENT ENDPOINTS
// =============================================================================

// CreateIncident charges a user's security deposit.
// POST /api/incidents
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "id and user_id are required", nil)
		return
	}
	amount, err := ledger.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}

	tx, err := h.Wallets.ChargeDamage(r.Context(), ledger.UserID(req.UserID), amount,
		req.Reason, req.AdminID, ledger.IncidentID(req.ID))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// DeleteIncident reverses the incident's damage charge. The charge row
// stays in the ledger; a refund row offsets it.
// DELETE /api/incidents/{id}
func (h *Handler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	incidentID := ledger.IncidentID(chi.URLParam(r, "id"))
	adminID := r.URL.Query().Get("admin_id")

	refund, err := h.Wallets.ResolveIncident(r.Context(), incidentID, adminID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(refund))
}

// ListUserIncidents returns a user's incidents, oldest first.
// GET /api/users/{userID}/incidents
func (h *Handler) ListUserIncidents(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))
	incidents, err := h.Incidents.ListIncidents(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]IncidentDTO, 0, len(incidents))
	for i := range incidents {
		dtos = append(dtos, toIncidentDTO(&incidents[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RIDE ENDPOINTS
// =============================================================================

// StartRide opens a session.
// POST /api/rides/start
func (h *Handler) StartRide(w http.ResponseWriter, r *http.Request) {
	var req StartRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.UserID == "" || req.BikeID == "" || req.PlanID == "" {
		writeError(w, http.StatusBadRequest, "user_id, bike_id and plan_id are required", nil)
		return
	}

	rd, err := h.Rides.Start(r.Context(), ledger.UserID(req.UserID), req.BikeID, req.PlanID,
		ride.Location{Lat: req.Lat, Lng: req.Lng})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRideDTO(rd))
}

// EndRide closes a session and settles payment.
// POST /api/rides/{id}/end
func (h *Handler) EndRide(w http.ResponseWriter, r *http.Request) {
	rideID := ledger.RideID(chi.URLParam(r, "id"))
	var req EndRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	res, err := h.Rides.End(r.Context(), rideID, ledger.UserID(req.UserID),
		ride.Location{Lat: req.Lat, Lng: req.Lng}, req.DistanceKm)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := EndRideResponse{
		Ride:            toRideDTO(&res.Ride),
		BillableMinutes: res.Breakdown.BillableMinutes,
		Tier:            string(res.Breakdown.Tier),
		PaymentFailed:   res.PaymentFailed,
	}
	if res.Payment != nil {
		dto := toTransactionDTO(res.Payment)
		resp.Payment = &dto
	}
	// 402 tells the client the session is over but unpaid.
	status := http.StatusOK
	if res.PaymentFailed {
		status = http.StatusPaymentRequired
	}
	writeJSON(w, status, resp)
}

// CancelRide abandons a session without billing.
// POST /api/rides/{id}/cancel
func (h *Handler) CancelRide(w http.ResponseWriter, r *http.Request) {
	rideID := ledger.RideID(chi.URLParam(r, "id"))
	var req CancelRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rd, err := h.Rides.Cancel(r.Context(), rideID, ledger.UserID(req.UserID))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRideDTO(rd))
}

// SettleRide retries the payment of a completed ride.
// POST /api/rides/{id}/settle
func (h *Handler) SettleRide(w http.ResponseWriter, r *http.Request) {
	rideID := ledger.RideID(chi.URLParam(r, "id"))

	tx, err := h.Rides.Settle(r.Context(), rideID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if tx == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// ListUserRides returns a user's ride history, oldest first.
// GET /api/users/{userID}/rides
func (h *Handler) ListUserRides(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))
	rides, err := h.Rides.History(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRideDTOs(rides))
}

// =============================================================================
// BIKE ENDPOINTS
// =============================================================================

// ListBikes returns the fleet.
// GET /api/bikes
func (h *Handler) ListBikes(w http.ResponseWriter, r *http.Request) {
	bikes, err := h.Bikes.ListBikes(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]BikeDTO, 0, len(bikes))
	for i := range bikes {
		dtos = append(dtos, toBikeDTO(&bikes[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveBike registers or updates a bike.
// POST /api/bikes
func (h *Handler) SaveBike(w http.ResponseWriter, r *http.Request) {
	var req SaveBikeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", err)
		return
	}
	status := ride.BikeStatus(req.Status)
	if status == "" {
		status = ride.BikeAvailable
	}

	b := ride.Bike{ID: req.ID, Label: req.Label, Status: status, UpdatedAt: h.now()}
	if err := h.Bikes.SaveBike(r.Context(), b); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBikeDTO(&b))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps sentinel errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error(), nil)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrWrongState):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientDeposit):
		return http.StatusPaymentRequired
	case ledger.IsNotFound(err),
		errors.Is(err, ledger.ErrNotConfigured):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrSessionAlreadyActive),
		errors.Is(err, ledger.ErrBikeUnavailable),
		errors.Is(err, ledger.ErrDuplicateIdempotencyKey),
		errors.Is(err, ledger.ErrAlreadyReversed),
		errors.Is(err, ledger.ErrStatusFinal):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrConcurrencyConflict):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
