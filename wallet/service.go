/*
Package wallet orchestrates atomic money movements against user wallets.

PURPOSE:
  Every way money enters or leaves a wallet goes through this service:
  ride settlement, deposit credits, admin damage charges and their
  reversals, the cash-deposit workflow, withdrawals, and the payment
  gateway callback. Each operation is all-or-nothing and idempotent
  under retry of the same logical request.

HOW ATOMICITY WORKS:
  Every mutation runs inside ledger.Store.WithWallet: the wallet row is
  read, the invariant validated, the new value written, and the
  transaction record inserted as one unit. Concurrent operations against
  the same wallet serialize; two concurrent debits cannot both observe
  the pre-debit balance.

BUSINESS OUTCOMES ARE NOT ROLLBACKS:
  A session debit that fails on insufficient funds still commits - as a
  failed ride-payment row. Service was rendered; the shortfall is
  recorded, never silently waived, and collected later out of band.

POLICY DECISIONS (deliberate, tested):
  - ChargeDamage fails with InsufficientDeposit when amount > deposit;
    it never clamps. Deposit may reach exactly 0.
  - Reversal creates an offsetting refund row; the original transaction
    is never touched.
  - Gateway callbacks are keyed on the provider reference: redelivery
    credits the wallet exactly once.

SEE ALSO:
  - ledger/store.go: WithWallet contract
  - ride/coordinator.go: The session-end caller of DebitForSession
*/
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Xybronix/EcoMobile-backend-sub001/ledger"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service performs atomic money movements. All state lives in the store;
// the service itself is stateless and safe for concurrent use.
type Service struct {
	store     ledger.Store
	audit     ledger.AuditLog
	incidents IncidentStore

	now func() time.Time
}

// NewService creates a wallet operations service.
func NewService(store ledger.Store, audit ledger.AuditLog, incidents IncidentStore) *Service {
	return &Service{
		store:     store,
		audit:     audit,
		incidents: incidents,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// =============================================================================
// READ QUERIES
// =============================================================================

// Balance returns the wallet row for a user.
func (s *Service) Balance(ctx context.Context, userID ledger.UserID) (*ledger.Wallet, error) {
	return s.store.GetWallet(ctx, userID)
}

// TransactionHistory returns a wallet's transactions, oldest first.
func (s *Service) TransactionHistory(ctx context.Context, userID ledger.UserID) ([]ledger.Transaction, error) {
	return s.store.History(ctx, userID)
}

// =============================================================================
// SESSION SETTLEMENT
// =============================================================================

// DebitForSession debits the spendable balance for a completed ride.
// Idempotent on the ride ID: retrying a settled ride returns the prior
// transaction without moving money again.
//
// On insufficient balance the debit is recorded as a FAILED ride-payment
// transaction (the ride stays completed - service was consumed) and an
// InsufficientFundsError is returned so the caller can flag the account.
func (s *Service) DebitForSession(ctx context.Context, userID ledger.UserID, amount ledger.Money, rideID ledger.RideID) (*ledger.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("session debit for ride %s: %w", rideID, ledger.ErrInvalidAmount)
	}

	// Only a COMPLETED debit claims the canonical key. Failed attempts are
	// recorded under per-attempt keys so a later retry (Settle) can still
	// collect, while a settled ride can never be charged twice.
	key := fmt.Sprintf("ride-payment:%s", rideID)
	prior, err := s.priorOutcome(ctx, key)
	if err != nil {
		return nil, err
	}
	if prior != nil && prior.Status == ledger.StatusCompleted {
		return prior, nil
	}

	var (
		result  ledger.Transaction
		outcome error
		before  ledger.WalletSnapshot
		after   ledger.WalletSnapshot
	)

	err = s.store.WithWallet(ctx, userID, func(wtx ledger.WalletTx) error {
		w := wtx.Wallet()
		before = w.Snapshot()
		after = before

		tx := ledger.Transaction{
			ID:             ledger.TransactionID(key),
			WalletID:       userID,
			Kind:           ledger.KindRidePayment,
			Account:        ledger.AccountBalance,
			Amount:         amount.Neg(),
			TotalAmount:    amount,
			Method:         ledger.MethodWallet,
			RideID:         rideID,
			ActorID:        string(userID),
			IdempotencyKey: key,
			CreatedAt:      s.now(),
		}

		if w.Balance.LessThan(amount) {
			// Record the shortfall; never waive it.
			attemptKey := fmt.Sprintf("%s:attempt:%d", key, s.now().UnixNano())
			tx.ID = ledger.TransactionID(attemptKey)
			tx.IdempotencyKey = attemptKey
			tx.Status = ledger.StatusFailed
			outcome = &ledger.InsufficientFundsError{
				UserID:    userID,
				Available: w.Balance,
				Requested: amount,
			}
			result = tx
			return wtx.Append(tx)
		}

		tx.Status = ledger.StatusCompleted
		if err := wtx.UpdateWallet(w.Balance.Sub(amount), w.Deposit); err != nil {
			return err
		}
		after.Balance = w.Balance.Sub(amount)
		result = tx
		return wtx.Append(tx)
	})
	if err != nil {
		return nil, err
	}

	action := ledger.AuditWalletDebited
	if outcome != nil {
		action = ledger.AuditPaymentFailed
	}
	if err := s.writeAudit(ctx, action, string(userID), userID, result.ID, before, after,
		fmt.Sprintf("ride %s settlement of %s", rideID, amount)); err != nil {
		return nil, err
	}
	return &result, outcome
}

// =============================================================================
// CREDITS
// =============================================================================

// CreditDeposit increments the refundable security deposit.
func (s *Service) CreditDeposit(ctx context.Context, userID ledger.UserID, amount ledger.Money, method ledger.Method) (*ledger.Transaction, error) {
	return s.credit(ctx, userID, amount, method, ledger.AccountDeposit, ledger.KindDeposit,
		fmt.Sprintf("deposit:%s:%d", userID, s.now().UnixNano()))
}

// CreditBalance increments the spendable balance. The idempotency key is
// supplied by the caller (gateway reference, admin action ID) so the same
// logical credit can never apply twice.
func (s *Service) CreditBalance(ctx context.Context, userID ledger.UserID, amount ledger.Money, method ledger.Method, idempotencyKey string) (*ledger.Transaction, error) {
	return s.credit(ctx, userID, amount, method, ledger.AccountBalance, ledger.KindDeposit, idempotencyKey)
}

func (s *Service) credit(ctx context.Context, userID ledger.UserID, amount ledger.Money, method ledger.Method, account ledger.Account, kind ledger.Kind, key string) (*ledger.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}
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

		balance, deposit := w.Balance, w.Deposit
		switch account {
		case ledger.AccountBalance:
			balance = balance.Add(amount)
		case ledger.AccountDeposit:
			deposit = deposit.Add(amount)
		}
		if err := wtx.UpdateWallet(balance, deposit); err != nil {
			return err
		}
		after = ledger.WalletSnapshot{Balance: balance, Deposit: deposit}

		result = ledger.Transaction{
			ID:             ledger.TransactionID(key),
			WalletID:       userID,
			Kind:           kind,
			Account:        account,
			Amount:         amount,
			TotalAmount:    amount,
			Status:         ledger.StatusCompleted,
			Method:         method,
			ActorID:        string(userID),
			IdempotencyKey: key,
			CreatedAt:      s.now(),
		}
		return wtx.Append(result)
	})
	if err != nil {
		return nil, err
	}

	if err := s.writeAudit(ctx, ledger.AuditWalletCredited, string(userID), userID, result.ID, before, after,
		fmt.Sprintf("credit of %s to %s via %s", amount, account, method)); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// GATEWAY CALLBACK
// =============================================================================

// CallbackEvent is what the mobile-money gateway adapter delivers.
type CallbackEvent struct {
	ProviderRef string
	UserID      ledger.UserID
	Status      string // "success" or anything else
	Amount      ledger.Money
}

// ApplyGatewayCallback applies an inbound payment callback exactly once,
// even when the gateway redelivers it. Keyed on the provider reference.
// Non-success callbacks record a failed deposit row for reconciliation.
func (s *Service) ApplyGatewayCallback(ctx context.Context, ev CallbackEvent) (*ledger.Transaction, error) {
	key := fmt.Sprintf("gateway:%s", ev.ProviderRef)
	if ev.Status != "success" {
		if prior, err := s.priorOutcome(ctx, key); prior != nil || err != nil {
			return prior, err
		}
		var result ledger.Transaction
		err := s.store.WithWallet(ctx, ev.UserID, func(wtx ledger.WalletTx) error {
			result = ledger.Transaction{
				ID:             ledger.TransactionID(key),
				WalletID:       ev.UserID,
				Kind:           ledger.KindDeposit,
				Account:        ledger.AccountBalance,
				Amount:         ev.Amount,
				TotalAmount:    ev.Amount,
				Status:         ledger.StatusFailed,
				Method:         ledger.MethodMobileMoney,
				ActorID:        "gateway",
				Note:           "gateway reported " + ev.Status,
				IdempotencyKey: key,
				CreatedAt:      s.now(),
			}
			return wtx.Append(result)
		})
		if err != nil {
			return nil, err
		}
		return &result, nil
	}
	return s.credit(ctx, ev.UserID, ev.Amount, ledger.MethodMobileMoney, ledger.AccountBalance, ledger.KindDeposit, key)
}

// =============================================================================
// WITHDRAWALS
// =============================================================================

// Withdraw pays spendable balance out to the user.
func (s *Service) Withdraw(ctx context.Context, userID ledger.UserID, amount ledger.Money, method ledger.Method) (*ledger.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}
	key := fmt.Sprintf("withdrawal:%s:%d", userID, s.now().UnixNano())

	var (
		result ledger.Transaction
		before ledger.WalletSnapshot
		after  ledger.WalletSnapshot
	)
	err := s.store.WithWallet(ctx, userID, func(wtx ledger.WalletTx) error {
		w := wtx.Wallet()
		before = w.Snapshot()
		if w.Balance.LessThan(amount) {
			return &ledger.InsufficientFundsError{
				UserID:    userID,
				Available: w.Balance,
				Requested: amount,
			}
		}
		if err := wtx.UpdateWallet(w.Balance.Sub(amount), w.Deposit); err != nil {
			return err
		}
		after = ledger.WalletSnapshot{Balance: w.Balance.Sub(amount), Deposit: w.Deposit}
		result = ledger.Transaction{
			ID:             ledger.TransactionID(key),
			WalletID:       userID,
			Kind:           ledger.KindWithdrawal,
			Account:        ledger.AccountBalance,
			Amount:         amount.Neg(),
			TotalAmount:    amount,
			Status:         ledger.StatusCompleted,
			Method:         method,
			ActorID:        string(userID),
			IdempotencyKey: key,
			CreatedAt:      s.now(),
		}
		return wtx.Append(result)
	})
	if err != nil {
		return nil, err
	}

	if err := s.writeAudit(ctx, ledger.AuditWithdrawal, string(userID), userID, result.ID, before, after,
		fmt.Sprintf("withdrawal of %s via %s", amount, method)); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// priorOutcome returns the transaction already recorded under key, making
// retries of the same logical request observably idempotent.
func (s *Service) priorOutcome(ctx context.Context, key string) (*ledger.Transaction, error) {
	prior, err := s.store.FindByKey(ctx, key)
	if err != nil && !errors.Is(err, ledger.ErrTransactionNotFound) {
		return nil, err
	}
	return prior, nil
}

func (s *Service) writeAudit(ctx context.Context, action ledger.AuditAction, actorID string, userID ledger.UserID, txID ledger.TransactionID, before, after ledger.WalletSnapshot, detail string) error {
	return s.audit.AppendAudit(ctx, ledger.AuditEntry{
		ID:            fmt.Sprintf("audit:%s:%d", txID, s.now().UnixNano()),
		At:            s.now(),
		ActorID:       actorID,
		Action:        action,
		UserID:        userID,
		TransactionID: txID,
		Before:        before,
		After:         after,
		Detail:        detail,
	})
}
