/*
cashdeposit.go - Cash handed to staff, validated later

PURPOSE:
  A user hands cash to a staff member; the system records a PENDING
  cash-deposit transaction that moves no money. An admin later validates
  it (credits the targeted account) or rejects it (money untouched).
  The pending row transitions exactly once.

STATE MACHINE:
  pending -> completed (validated, wallet credited)
  pending -> rejected  (nothing credited)
  Any second transition fails with ErrStatusFinal.
*/
package wallet

import (
	"context"
	"fmt"

	"github.com/Xybronix/EcoMobile-backend-sub001/ledger"
)

// RequestCashDeposit records a pending cash-deposit transaction. No
// wallet field moves until validation. The account parameter selects
// which pot the eventual validation credits.
func (s *Service) RequestCashDeposit(ctx context.Context, userID ledger.UserID, amount ledger.Money, account ledger.Account, note string) (*ledger.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}

	key := fmt.Sprintf("cash-deposit:%s:%d", userID, s.now().UnixNano())
	var result ledger.Transaction
	err := s.store.WithWallet(ctx, userID, func(wtx ledger.WalletTx) error {
		result = ledger.Transaction{
			ID:             ledger.TransactionID(key),
			WalletID:       userID,
			Kind:           ledger.KindCashDeposit,
			Account:        account,
			Amount:         amount,
			TotalAmount:    amount,
			Status:         ledger.StatusPending,
			Method:         ledger.MethodCash,
			Note:           note,
			ActorID:        string(userID),
			IdempotencyKey: key,
			CreatedAt:      s.now(),
		}
		return wtx.Append(result)
	})
	if err != nil {
		return nil, err
	}

	w, err := s.store.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.writeAudit(ctx, ledger.AuditCashRequested, string(userID), userID, result.ID, w.Snapshot(), w.Snapshot(),
		fmt.Sprintf("cash deposit of %s requested", amount)); err != nil {
		return nil, err
	}
	return &result, nil
}

// ValidateCashDeposit moves a pending cash-deposit to completed and
// credits the account it targeted. Exactly once: a validated or rejected
// row cannot transition again.
func (s *Service) ValidateCashDeposit(ctx context.Context, txID ledger.TransactionID, adminID, note string) (*ledger.Transaction, error) {
	pending, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if pending.Kind != ledger.KindCashDeposit {
		return nil, fmt.Errorf("transaction %s is not a cash deposit: %w", txID, ledger.ErrWrongState)
	}

	var (
		before ledger.WalletSnapshot
		after  ledger.WalletSnapshot
	)
	err = s.store.WithWallet(ctx, pending.WalletID, func(wtx ledger.WalletTx) error {
		// MarkStatus enforces the exactly-once transition inside the unit.
		if err := wtx.MarkStatus(txID, ledger.StatusCompleted); err != nil {
			return err
		}
		w := wtx.Wallet()
		before = w.Snapshot()
		balance, deposit := w.Balance, w.Deposit
		switch pending.Account {
		case ledger.AccountBalance:
			balance = balance.Add(pending.Amount)
		case ledger.AccountDeposit:
			deposit = deposit.Add(pending.Amount)
		}
		if err := wtx.UpdateWallet(balance, deposit); err != nil {
			return err
		}
		after = ledger.WalletSnapshot{Balance: balance, Deposit: deposit}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.writeAudit(ctx, ledger.AuditCashValidated, adminID, pending.WalletID, txID, before, after, note); err != nil {
		return nil, err
	}
	return s.store.GetTransaction(ctx, txID)
}

// RejectCashDeposit moves a pending cash-deposit to rejected. The wallet
// is left untouched.
func (s *Service) RejectCashDeposit(ctx context.Context, txID ledger.TransactionID, adminID, note string) (*ledger.Transaction, error) {
	pending, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if pending.Kind != ledger.KindCashDeposit {
		return nil, fmt.Errorf("transaction %s is not a cash deposit: %w", txID, ledger.ErrWrongState)
	}

	var snap ledger.WalletSnapshot
	err = s.store.WithWallet(ctx, pending.WalletID, func(wtx ledger.WalletTx) error {
		snap = wtx.Wallet().Snapshot()
		return wtx.MarkStatus(txID, ledger.StatusRejected)
	})
	if err != nil {
		return nil, err
	}

	if err := s.writeAudit(ctx, ledger.AuditCashRejected, adminID, pending.WalletID, txID, snap, snap, note); err != nil {
		return nil, err
	}
	return s.store.GetTransaction(ctx, txID)
}
