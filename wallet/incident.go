/*
incident.go - Staff-issued damage charges and their reversals

PURPOSE:
  An Incident is a charge a staff member levies against a user's security
  deposit (damage, penalty). The incident row and its damage-charge
  transaction reference each other explicitly - no metadata scanning.
  Deleting or editing an incident reverses or adjusts the linked
  transaction symmetrically, via a refund row.

INVARIANTS:
  - A charge never drives deposit below 0: amount > deposit fails with
    InsufficientDeposit and records nothing. No clamping.
  - The original charge transaction is never mutated; a reversal is a
    new refund row carrying the same incident reference.
  - A charge can be reversed at most once.
*/
package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/Xybronix/EcoMobile-backend-sub001/ledger"
)

// =============================================================================
// INCIDENT - Admin charge record
// =============================================================================

// Incident records a staff-issued deduction from a user's deposit and the
// transaction it produced.
type Incident struct {
	ID            ledger.IncidentID
	UserID        ledger.UserID
	Amount        ledger.Money
	Reason        string
	CreatedBy     string
	TransactionID ledger.TransactionID

	// Set when the incident is resolved (charge reversed or adjusted).
	RefundAmount ledger.Money
	ResolvedBy   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IncidentStore persists incident records.
type IncidentStore interface {
	SaveIncident(ctx context.Context, inc Incident) error
	GetIncident(ctx context.Context, id ledger.IncidentID) (*Incident, error)
	ListIncidents(ctx context.Context, userID ledger.UserID) ([]Incident, error)
}

// =============================================================================
// DAMAGE CHARGES
// =============================================================================

// ChargeDamage debits the security deposit and records the incident and
// its damage-charge transaction as one logical operation. Fails with
// InsufficientDepositError when amount exceeds the held deposit - the
// deposit is never clamped and nothing is recorded on failure.
func (s *Service) ChargeDamage(ctx context.Context, userID ledger.UserID, amount ledger.Money, reason, adminID string, incidentID ledger.IncidentID) (*ledger.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}

	key := fmt.Sprintf("damage-charge:%s", incidentID)
	if prior, err := s.priorOutcome(ctx, key); prior != nil || err != nil {
		return prior, err
	}

	var (
		result ledger.Transaction
		before ledger.WalletSnapshot
		after  ledger.WalletSnapshot
	)
	err := s.store.WithWallet(ctx, userID, func(wtx ledger.WalletTx) error {
		w := wtx.Wallet()
		before = w.Snapshot()
		if w.Deposit.LessThan(amount) {
			return &ledger.InsufficientDepositError{
				UserID:    userID,
				Available: w.Deposit,
				Requested: amount,
			}
		}
		if err := wtx.UpdateWallet(w.Balance, w.Deposit.Sub(amount)); err != nil {
			return err
		}
		after = ledger.WalletSnapshot{Balance: w.Balance, Deposit: w.Deposit.Sub(amount)}
		result = ledger.Transaction{
			ID:             ledger.TransactionID(key),
			WalletID:       userID,
			Kind:           ledger.KindDamageCharge,
			Account:        ledger.AccountDeposit,
			Amount:         amount.Neg(),
			TotalAmount:    amount,
			Status:         ledger.StatusCompleted,
			Method:         ledger.MethodAdmin,
			IncidentID:     incidentID,
			Note:           reason,
			ActorID:        adminID,
			IdempotencyKey: key,
			CreatedAt:      s.now(),
		}
		return wtx.Append(result)
	})
	if err != nil {
		return nil, err
	}

	inc := Incident{
		ID:            incidentID,
		UserID:        userID,
		Amount:        amount,
		Reason:        reason,
		CreatedBy:     adminID,
		TransactionID: result.ID,
		CreatedAt:     s.now(),
		UpdatedAt:     s.now(),
	}
	if err := s.incidents.SaveIncident(ctx, inc); err != nil {
		return nil, err
	}

	if err := s.writeAudit(ctx, ledger.AuditDamageCharged, adminID, userID, result.ID, before, after,
		fmt.Sprintf("incident %s: %s", incidentID, reason)); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReverseCharge offsets a completed damage charge with a refund row and
// re-increments the deposit. The original transaction is untouched; a
// second reversal of the same charge fails with ErrAlreadyReversed.
func (s *Service) ReverseCharge(ctx context.Context, txID ledger.TransactionID, adminID string) (*ledger.Transaction, error) {
	orig, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if orig.Kind != ledger.KindDamageCharge || orig.Status != ledger.StatusCompleted {
		return nil, fmt.Errorf("transaction %s is not a completed damage charge: %w", txID, ledger.ErrWrongState)
	}
	if existing, err := s.store.FindByReverseOf(ctx, txID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ledger.ErrAlreadyReversed
	}

	amount := orig.Amount.Neg() // original is a negative deposit delta
	key := fmt.Sprintf("refund:%s", txID)

	var (
		result ledger.Transaction
		before ledger.WalletSnapshot
		after  ledger.WalletSnapshot
	)
	err = s.store.WithWallet(ctx, orig.WalletID, func(wtx ledger.WalletTx) error {
		w := wtx.Wallet()
		before = w.Snapshot()
		if err := wtx.UpdateWallet(w.Balance, w.Deposit.Add(amount)); err != nil {
			return err
		}
		after = ledger.WalletSnapshot{Balance: w.Balance, Deposit: w.Deposit.Add(amount)}
		result = ledger.Transaction{
			ID:             ledger.TransactionID(key),
			WalletID:       orig.WalletID,
			Kind:           ledger.KindRefund,
			Account:        ledger.AccountDeposit,
			Amount:         amount,
			TotalAmount:    amount,
			Status:         ledger.StatusCompleted,
			Method:         ledger.MethodAdmin,
			IncidentID:     orig.IncidentID,
			ReverseOf:      orig.ID,
			ActorID:        adminID,
			IdempotencyKey: key,
			CreatedAt:      s.now(),
		}
		return wtx.Append(result)
	})
	if err != nil {
		return nil, err
	}

	if err := s.writeAudit(ctx, ledger.AuditChargeReversed, adminID, orig.WalletID, result.ID, before, after,
		fmt.Sprintf("reversal of %s (incident %s)", orig.ID, orig.IncidentID)); err != nil {
		return nil, err
	}
	return &result, nil
}

// ResolveIncident reverses an incident's damage charge and marks the
// incident resolved. This is the path taken when an admin deletes or
// edits a charge.
func (s *Service) ResolveIncident(ctx context.Context, incidentID ledger.IncidentID, adminID string) (*ledger.Transaction, error) {
	inc, err := s.incidents.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	refund, err := s.ReverseCharge(ctx, inc.TransactionID, adminID)
	if err != nil {
		return nil, err
	}

	inc.RefundAmount = refund.Amount
	inc.ResolvedBy = adminID
	inc.UpdatedAt = s.now()
	if err := s.incidents.SaveIncident(ctx, *inc); err != nil {
		return nil, err
	}
	return refund, nil
}
