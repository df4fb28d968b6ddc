/*
Package ledger provides the core wallet-ledger engine.

PURPOSE:
  This package contains the types and invariants for tracking user money.
  A Wallet holds two pots - spendable balance and a refundable security
  deposit - and every change to either pot is recorded as an immutable
  Transaction. Balance and deposit are always reconcilable against the
  transaction history.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A whole-currency-unit amount backed by decimal.Decimal
  - Wallet: A user's two-part account (balance + deposit)
  - Transaction: An immutable ledger entry with a tagged kind
  - Account: Which pot a transaction affects (balance or deposit)

DESIGN PRINCIPLES:
  1. Immutability: Completed transactions are never modified, only reversed
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Explicit linkage: Ride payments carry RideID, damage charges carry
     IncidentID - no free-form metadata bag to scan
  4. Auditability: Every transaction has an actor, a note, and an
     idempotency key

SEE ALSO:
  - errors.go: Error taxonomy for wallet operations
  - store.go: Persistence and transactional interfaces
  - wallet/service.go: The operations that create these transactions
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Whole-currency-unit amount
// =============================================================================

// Money is a monetary amount. The currency has no fractional unit: every
// amount that leaves the engine is an integer number of units. Intermediate
// pricing math may carry fractions; RoundToUnit/CeilToUnit collapse them.
type Money struct {
	Value decimal.Decimal
}

func NewMoney(value int64) Money {
	return Money{Value: decimal.NewFromInt(value)}
}

func NewMoneyFromFloat(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}
}

// ParseMoney parses a decimal string. Strict: a malformed amount is an
// error, not zero.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return Money{Value: d}, nil
}

func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return Money{Value: d}
}

func Zero() Money { return Money{Value: decimal.Zero} }

func (m Money) Add(b Money) Money           { return Money{Value: m.Value.Add(b.Value)} }
func (m Money) Sub(b Money) Money           { return Money{Value: m.Value.Sub(b.Value)} }
func (m Money) Mul(s decimal.Decimal) Money { return Money{Value: m.Value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money { return Money{Value: m.Value.Div(s)} }
func (m Money) Neg() Money                  { return Money{Value: m.Value.Neg()} }
func (m Money) Abs() Money                  { return Money{Value: m.Value.Abs()} }
func (m Money) IsNegative() bool            { return m.Value.IsNegative() }
func (m Money) IsZero() bool                { return m.Value.IsZero() }
func (m Money) IsPositive() bool            { return m.Value.IsPositive() }
func (m Money) GreaterThan(b Money) bool    { return m.Value.GreaterThan(b.Value) }
func (m Money) GreaterOrEqual(b Money) bool { return m.Value.GreaterThanOrEqual(b.Value) }
func (m Money) LessThan(b Money) bool       { return m.Value.LessThan(b.Value) }
func (m Money) Equal(b Money) bool          { return m.Value.Equal(b.Value) }
func (m Money) Float64() float64            { f, _ := m.Value.Float64(); return f }
func (m Money) String() string              { return m.Value.String() }

// Money marshals as its bare decimal value, not as a wrapped object.
func (m Money) MarshalJSON() ([]byte, error)  { return m.Value.MarshalJSON() }
func (m *Money) UnmarshalJSON(b []byte) error { return m.Value.UnmarshalJSON(b) }

// RoundToUnit rounds half-up to the nearest whole currency unit.
func (m Money) RoundToUnit() Money { return Money{Value: m.Value.Round(0)} }

// CeilToUnit rounds up to the next whole currency unit.
func (m Money) CeilToUnit() Money { return Money{Value: m.Value.Ceil()} }

// Floor0 clamps negative amounts to zero.
func (m Money) Floor0() Money {
	if m.IsNegative() {
		return Zero()
	}
	return m
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type TransactionID string
type IncidentID string
type RideID string

// =============================================================================
// WALLET - One per user: spendable balance + refundable deposit
// =============================================================================

// Wallet is a user's account. Both fields are derived sums of the completed
// transactions affecting them and must never go negative. The fields are
// only ever mutated through Store.WithWallet, paired with the transaction
// record that explains the change.
type Wallet struct {
	UserID    UserID
	Balance   Money
	Deposit   Money
	UpdatedAt time.Time
}

// Snapshot captures the wallet's numeric state for audit entries.
func (w Wallet) Snapshot() WalletSnapshot {
	return WalletSnapshot{Balance: w.Balance, Deposit: w.Deposit}
}

type WalletSnapshot struct {
	Balance Money
	Deposit Money
}

// =============================================================================
// TRANSACTION - Immutable ledger entry with tagged kind
// =============================================================================

type Kind string

const (
	KindDeposit      Kind = "deposit"       // security-deposit credit
	KindRidePayment  Kind = "ride-payment"  // debit for a completed ride
	KindRefund       Kind = "refund"        // offsetting entry reversing a prior charge
	KindDamageCharge Kind = "damage-charge" // staff-issued deduction from deposit
	KindWithdrawal   Kind = "withdrawal"    // balance paid out to the user
	KindCashDeposit  Kind = "cash-deposit"  // cash handed to staff, pending validation
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
)

type Method string

const (
	MethodWallet      Method = "wallet"
	MethodMobileMoney Method = "mobile-money"
	MethodCash        Method = "cash"
	MethodAdmin       Method = "admin"
)

// Account identifies which wallet pot a transaction affects.
// Making this explicit (instead of inferring it from Kind) keeps the
// balance == sum(transactions) invariant trivially checkable.
type Account string

const (
	AccountBalance Account = "balance"
	AccountDeposit Account = "deposit"
)

// Transaction is an immutable ledger entry.
//
// INVARIANTS:
//   - Completed transactions are append-only; corrections are new refund
//     rows referencing the original via ReverseOf, never edits.
//   - Status moves pending -> completed/failed/rejected exactly once.
//   - Amount is signed: positive credits the Account, negative debits it.
//
// Each kind carries only the references it needs: ride payments a RideID,
// damage charges and their refunds an IncidentID, gateway credits a
// ProviderRef inside the idempotency key.
type Transaction struct {
	ID          TransactionID
	WalletID    UserID
	Kind        Kind
	Account     Account
	Amount      Money // signed delta applied to Account
	Fees        Money
	TotalAmount Money // Amount plus fees, as presented to the user
	Status      Status
	Method      Method

	// Kind-specific references
	RideID     RideID        // set for ride-payment
	IncidentID IncidentID    // set for damage-charge and its refund
	ReverseOf  TransactionID // set for refund rows

	Note           string
	ActorID        string // who triggered the movement: user, admin, gateway
	IdempotencyKey string

	CreatedAt time.Time
}

// AffectsWallet reports whether this transaction contributes to the wallet's
// derived sums. Only completed rows move money; pending/failed/rejected rows
// are bookkeeping.
func (t Transaction) AffectsWallet() bool {
	return t.Status == StatusCompleted
}

// =============================================================================
// RECONCILIATION - Derived sums must match the stored wallet row
// =============================================================================

// Reconcile recomputes balance and deposit from a transaction history.
// The stored wallet row must equal the result at all times.
func Reconcile(txs []Transaction) WalletSnapshot {
	balance := Zero()
	deposit := Zero()
	for _, tx := range txs {
		if !tx.AffectsWallet() {
			continue
		}
		switch tx.Account {
		case AccountBalance:
			balance = balance.Add(tx.Amount)
		case AccountDeposit:
			deposit = deposit.Add(tx.Amount)
		}
	}
	return WalletSnapshot{Balance: balance, Deposit: deposit}
}
