/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts cross the wire as decimal strings, never floats. Parsing is
  strict: a malformed amount is a 400, not a zero.

SEE ALSO:
  - handlers.go: Uses these types
  - pricing/types.go: The domain catalog these DTOs mirror
*/
package api

import (
	"time"

	"github.com/Xybronix/EcoMobile-backend-sub001/ledger"
	"github.com/Xybronix/EcoMobile-backend-sub001/pricing"
	"github.com/Xybronix/EcoMobile-backend-sub001/ride"
	"github.com/Xybronix/EcoMobile-backend-sub001/wallet"
)

// =============================================================================
// WALLET
// =============================================================================

// WalletDTO represents a wallet in API responses.
type WalletDTO struct {
	UserID    string `json:"user_id"`
	Balance   string `json:"balance"`
	Deposit   string `json:"deposit"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func toWalletDTO(w *ledger.Wallet) WalletDTO {
	return WalletDTO{
		UserID:    string(w.UserID),
		Balance:   w.Balance.String(),
		Deposit:   w.Deposit.String(),
		UpdatedAt: formatTime(w.UpdatedAt),
	}
}

// TransactionDTO represents a ledger row in API responses.
type TransactionDTO struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	Kind           string `json:"kind"`
	Account        string `json:"account"`
	Amount         string `json:"amount"`
	Fees           string `json:"fees,omitempty"`
	TotalAmount    string `json:"total_amount"`
	Status         string `json:"status"`
	Method         string `json:"method"`
	RideID         string `json:"ride_id,omitempty"`
	IncidentID     string `json:"incident_id,omitempty"`
	ReverseOf      string `json:"reverse_of,omitempty"`
	Note           string `json:"note,omitempty"`
	ActorID        string `json:"actor_id,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func toTransactionDTO(tx *ledger.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:             string(tx.ID),
		UserID:         string(tx.WalletID),
		Kind:           string(tx.Kind),
		Account:        string(tx.Account),
		Amount:         tx.Amount.String(),
		TotalAmount:    tx.TotalAmount.String(),
		Status:         string(tx.Status),
		Method:         string(tx.Method),
		RideID:         string(tx.RideID),
		IncidentID:     string(tx.IncidentID),
		ReverseOf:      string(tx.ReverseOf),
		Note:           tx.Note,
		ActorID:        tx.ActorID,
		IdempotencyKey: tx.IdempotencyKey,
		CreatedAt:      formatTime(tx.CreatedAt),
	}
	if !tx.Fees.IsZero() {
		dto.Fees = tx.Fees.String()
	}
	return dto
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, 0, len(txs))
	for i := range txs {
		dtos = append(dtos, toTransactionDTO(&txs[i]))
	}
	return dtos
}

// CreditRequest funds a wallet pot.
type CreditRequest struct {
	Amount  string `json:"amount"`
	Method  string `json:"method"`
	Account string `json:"account"` // "balance" or "deposit"
}

// WithdrawRequest moves spendable funds back out.
type WithdrawRequest struct {
	Amount string `json:"amount"`
	Method string `json:"method"`
}

// CashDepositRequest records cash handed to staff, pending validation.
type CashDepositRequest struct {
	Amount  string `json:"amount"`
	Account string `json:"account"`
	Note    string `json:"note"`
}

// CashDecisionRequest validates or rejects a pending cash deposit.
type CashDecisionRequest struct {
	AdminID string `json:"admin_id"`
	Note    string `json:"note"`
}

// GatewayCallbackRequest is the payment provider's webhook payload.
type GatewayCallbackRequest struct {
	ProviderRef string `json:"provider_ref"`
	UserID      string `json:"user_id"`
	Status      string `json:"status"`
	Amount      string `json:"amount"`
}

// =============================================================================
// INCIDENTS
// =============================================================================

// CreateIncidentRequest charges a user's security deposit.
type CreateIncidentRequest struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Amount  string `json:"amount"`
	Reason  string `json:"reason"`
	AdminID string `json:"admin_id"`
}

// IncidentDTO represents an incident in API responses.
type IncidentDTO struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Amount        string `json:"amount"`
	Reason        string `json:"reason"`
	CreatedBy     string `json:"created_by"`
	TransactionID string `json:"transaction_id"`
	RefundAmount  string `json:"refund_amount,omitempty"`
	ResolvedBy    string `json:"resolved_by,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toIncidentDTO(inc *wallet.Incident) IncidentDTO {
	dto := IncidentDTO{
		ID:            string(inc.ID),
		UserID:        string(inc.UserID),
		Amount:        inc.Amount.String(),
		Reason:        inc.Reason,
		CreatedBy:     inc.CreatedBy,
		TransactionID: string(inc.TransactionID),
		ResolvedBy:    inc.ResolvedBy,
		CreatedAt:     formatTime(inc.CreatedAt),
	}
	if !inc.RefundAmount.IsZero() {
		dto.RefundAmount = inc.RefundAmount.String()
	}
	return dto
}

// =============================================================================
// PRICING
// =============================================================================

// EffectivePlanDTO is a plan with the rules and promotions in force at
// the quoted instant already applied.
type EffectivePlanDTO struct {
	PlanID            string   `json:"plan_id"`
	Name              string   `json:"name"`
	HourlyRate        string   `json:"hourly_rate"`
	DailyRate         string   `json:"daily_rate"`
	WeeklyRate        string   `json:"weekly_rate"`
	MonthlyRate       string   `json:"monthly_rate"`
	BaseHourlyRate    string   `json:"base_hourly_rate"`
	BaseDailyRate     string   `json:"base_daily_rate"`
	BaseWeeklyRate    string   `json:"base_weekly_rate"`
	BaseMonthlyRate   string   `json:"base_monthly_rate"`
	RuleName          string   `json:"rule_name,omitempty"`
	Multiplier        string   `json:"multiplier"`
	AppliedPromotions []string `json:"applied_promotions,omitempty"`
	MinimumHours      int      `json:"minimum_hours"`
	UnlockFee         string   `json:"unlock_fee"`
}

func toEffectivePlanDTO(p pricing.EffectivePlan) EffectivePlanDTO {
	return EffectivePlanDTO{
		PlanID:            p.PlanID,
		Name:              p.Name,
		HourlyRate:        p.Rates.Hourly.String(),
		DailyRate:         p.Rates.Daily.String(),
		WeeklyRate:        p.Rates.Weekly.String(),
		MonthlyRate:       p.Rates.Monthly.String(),
		BaseHourlyRate:    p.Original.Hourly.String(),
		BaseDailyRate:     p.Original.Daily.String(),
		BaseWeeklyRate:    p.Original.Weekly.String(),
		BaseMonthlyRate:   p.Original.Monthly.String(),
		RuleName:          p.RuleName,
		Multiplier:        p.Multiplier.String(),
		AppliedPromotions: p.AppliedPromotions,
		MinimumHours:      p.MinimumHours,
		UnlockFee:         p.UnlockFee.String(),
	}
}

// =============================================================================
// RIDES
// =============================================================================

// StartRideRequest opens a session.
type StartRideRequest struct {
	UserID string  `json:"user_id"`
	BikeID string  `json:"bike_id"`
	PlanID string  `json:"plan_id"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
}

// EndRideRequest closes a session.
type EndRideRequest struct {
	UserID     string  `json:"user_id"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	DistanceKm float64 `json:"distance_km"`
}

// CancelRideRequest abandons a session without billing.
type CancelRideRequest struct {
	UserID string `json:"user_id"`
}

// RideDTO represents a ride in API responses.
type RideDTO struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	BikeID          string  `json:"bike_id"`
	PlanID          string  `json:"plan_id"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time,omitempty"`
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes int     `json:"duration_minutes"`
	Cost            string  `json:"cost"`
	PaymentFailed   bool    `json:"payment_failed,omitempty"`
	Status          string  `json:"status"`
}

func toRideDTO(r *ride.Ride) RideDTO {
	dto := RideDTO{
		ID:              string(r.ID),
		UserID:          string(r.UserID),
		BikeID:          r.BikeID,
		PlanID:          r.PlanID,
		StartTime:       formatTime(r.StartTime),
		DistanceKm:      r.DistanceKm,
		DurationMinutes: r.DurationMinutes,
		Cost:            r.Cost.String(),
		PaymentFailed:   r.PaymentFailed,
		Status:          string(r.Status),
	}
	if r.EndTime != nil {
		dto.EndTime = formatTime(*r.EndTime)
	}
	return dto
}

func toRideDTOs(rides []ride.Ride) []RideDTO {
	dtos := make([]RideDTO, 0, len(rides))
	for i := range rides {
		dtos = append(dtos, toRideDTO(&rides[i]))
	}
	return dtos
}

// EndRideResponse is the full settlement outcome.
type EndRideResponse struct {
	Ride            RideDTO         `json:"ride"`
	BillableMinutes int             `json:"billable_minutes"`
	Tier            string          `json:"tier"`
	Payment         *TransactionDTO `json:"payment,omitempty"`
	PaymentFailed   bool            `json:"payment_failed"`
}

// BikeDTO represents a bike in API responses.
type BikeDTO struct {
	ID        string `json:"id"`
	Label     string `json:"label,omitempty"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func toBikeDTO(b *ride.Bike) BikeDTO {
	return BikeDTO{
		ID:        b.ID,
		Label:     b.Label,
		Status:    string(b.Status),
		UpdatedAt: formatTime(b.UpdatedAt),
	}
}

// SaveBikeRequest registers or updates a bike.
type SaveBikeRequest struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Status string `json:"status"`
}

// =============================================================================
// SHARED
// =============================================================================

// ErrorResponse is the error body for all endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
