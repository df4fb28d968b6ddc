/*
store.go - Persistence interfaces for wallets and transactions

PURPOSE:
  Defines the interface between the domain logic and the database. The
  Store keeps the transactions table append-only and funnels every wallet
  mutation through a serialized read-validate-write unit.

KEY INTERFACES:
  Store:    Wallet rows, transaction log, read queries
  WalletTx: The unit of work inside WithWallet - the ONLY place wallet
            numeric fields can change
  AuditLog: Append-only trail of financial state transitions

APPEND-ONLY CONTRACT:
  Transactions have no Update or Delete beyond a single status move
  (pending -> completed/failed/rejected, exactly once). Corrections are
  refund rows referencing the original.

CONCURRENCY:
  WithWallet serializes all mutations against one wallet: two concurrent
  debits cannot both read a pre-debit balance and independently succeed.
  Implementations either hold a row lock for the duration of fn or fail
  fast with ErrConcurrencyConflict when the lock cannot be acquired
  within the context deadline.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite (same patterns apply to PostgreSQL)
  - ledger/store: In-memory for tests

SEE ALSO:
  - wallet/service.go: The orchestrator calling WithWallet
  - store/sqlite/sqlite.go: Concrete implementation
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Wallet rows + append-only transaction log
// =============================================================================

type Store interface {
	// CreateWallet creates an empty wallet for a user. Idempotent.
	CreateWallet(ctx context.Context, userID UserID) error

	// GetWallet returns the wallet row, or ErrWalletNotFound.
	GetWallet(ctx context.Context, userID UserID) (*Wallet, error)

	// GetTransaction returns a transaction by ID, or ErrTransactionNotFound.
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)

	// History returns all transactions for a wallet, oldest first.
	History(ctx context.Context, userID UserID) ([]Transaction, error)

	// ExistsKey checks whether an idempotency key has been used.
	ExistsKey(ctx context.Context, idempotencyKey string) (bool, error)

	// FindByKey returns the transaction recorded under an idempotency
	// key, or ErrTransactionNotFound.
	FindByKey(ctx context.Context, idempotencyKey string) (*Transaction, error)

	// FindByReverseOf returns the refund row offsetting txID, if any.
	FindByReverseOf(ctx context.Context, txID TransactionID) (*Transaction, error)

	// WithWallet executes fn as one atomic unit against a single wallet.
	// The wallet row read inside fn is current for the whole unit; either
	// every write in fn becomes visible or none does. Concurrent calls
	// against the same wallet serialize. Returns ErrConcurrencyConflict
	// if the wallet cannot be locked before ctx expires.
	WithWallet(ctx context.Context, userID UserID, fn func(WalletTx) error) error
}

// WalletTx is the unit of work handed to WithWallet's fn.
// All methods operate inside the same store-level transaction.
type WalletTx interface {
	// Wallet returns the row as read at the start of the unit.
	Wallet() Wallet

	// UpdateWallet writes new balance/deposit values. Rejects negatives.
	// Every call must be paired with at least one Append explaining it.
	UpdateWallet(balance, deposit Money) error

	// Append inserts a transaction row. Fails with
	// ErrDuplicateIdempotencyKey if the key exists.
	Append(tx Transaction) error

	// MarkStatus moves a pending transaction to a final status, exactly
	// once. Returns ErrStatusFinal if the row already left pending.
	MarkStatus(id TransactionID, to Status) error

	// GetTransaction reads a transaction within the unit.
	GetTransaction(id TransactionID) (*Transaction, error)
}

// =============================================================================
// AUDIT LOG - Immutable trail of financial state transitions
// =============================================================================

type AuditAction string

const (
	AuditWalletCredited AuditAction = "wallet_credited"
	AuditWalletDebited  AuditAction = "wallet_debited"
	AuditPaymentFailed  AuditAction = "payment_failed"
	AuditDamageCharged  AuditAction = "damage_charged"
	AuditChargeReversed AuditAction = "charge_reversed"
	AuditCashRequested  AuditAction = "cash_requested"
	AuditCashValidated  AuditAction = "cash_validated"
	AuditCashRejected   AuditAction = "cash_rejected"
	AuditWithdrawal     AuditAction = "withdrawal"
)

// AuditEntry records who moved money, when, and the wallet state around it.
type AuditEntry struct {
	ID            string
	At            time.Time
	ActorID       string
	Action        AuditAction
	UserID        UserID
	TransactionID TransactionID
	Before        WalletSnapshot
	After         WalletSnapshot
	Detail        string
}

// AuditLog stores audit entries. Append-only, like the ledger itself.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, userID UserID) ([]AuditEntry, error)
}
