/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces (ledger.Store, ledger.AuditLog,
  wallet.IncidentStore, ride.Store, ride.Catalog) using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-ONLY ENFORCEMENT:
  The transactions table has no UPDATE beyond the single status move
  (pending -> final, guarded by a WHERE status = 'pending' clause) and
  no DELETE. Corrections are refund rows referencing the original.

KEY TABLES:
  wallets:         One row per user; balance and deposit pots
  transactions:    Immutable money movement log, UNIQUE idempotency_key
  audit_log:       Who moved money, when, wallet state before/after
  incidents:       Staff-issued damage charges
  rides, bikes:    Session state machine
  pricing_configs: Rate catalog, stored as JSON like policy configs

CONCURRENCY:
  Per-wallet channel locks serialize WithWallet; the lock wait is bounded
  by the caller's context and fails with ErrConcurrencyConflict. A
  sync.RWMutex guards the connection itself, and SQLite runs in WAL mode
  so readers do not block.

USAGE:
  st, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Xybronix/EcoMobile-backend-sub001/ledger"
	"github.com/Xybronix/EcoMobile-backend-sub001/pricing"
	"github.com/Xybronix/EcoMobile-backend-sub001/ride"
	"github.com/Xybronix/EcoMobile-backend-sub001/wallet"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	lockMu sync.Mutex
	locks  map[ledger.UserID]chan struct{}
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, locks: make(map[ledger.UserID]chan struct{})}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Wallets (one row per user, two pots)
	CREATE TABLE IF NOT EXISTS wallets (
		user_id TEXT PRIMARY KEY,
		balance TEXT NOT NULL,
		deposit TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Transactions (append-only money movement log)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		account TEXT NOT NULL,
		amount TEXT NOT NULL,
		fees TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		method TEXT NOT NULL,
		ride_id TEXT,
		incident_id TEXT,
		reverse_of TEXT,
		note TEXT,
		actor_id TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_wallet
		ON transactions(wallet_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_idempotency
		ON transactions(idempotency_key) WHERE idempotency_key IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_transactions_reverse_of
		ON transactions(reverse_of) WHERE reverse_of IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_transactions_ride
		ON transactions(ride_id) WHERE ride_id IS NOT NULL;

	-- Audit log (append-only, state before/after each movement)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		user_id TEXT NOT NULL,
		transaction_id TEXT,
		before_balance TEXT NOT NULL,
		before_deposit TEXT NOT NULL,
		after_balance TEXT NOT NULL,
		after_deposit TEXT NOT NULL,
		detail TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_user
		ON audit_log(user_id, at);

	-- Incidents (staff-issued damage charges)
	CREATE TABLE IF NOT EXISTS incidents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_by TEXT NOT NULL,
		transaction_id TEXT NOT NULL,
		refund_amount TEXT NOT NULL,
		resolved_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_incidents_user
		ON incidents(user_id);

	-- Rides (session state machine)
	CREATE TABLE IF NOT EXISTS rides (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		bike_id TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT,
		start_lat REAL NOT NULL DEFAULT 0,
		start_lng REAL NOT NULL DEFAULT 0,
		end_lat REAL,
		end_lng REAL,
		distance_km REAL NOT NULL DEFAULT 0,
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		cost TEXT NOT NULL,
		payment_failed INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rides_user
		ON rides(user_id, start_time);

	-- CRITICAL: at most one IN_PROGRESS ride per user
	CREATE UNIQUE INDEX IF NOT EXISTS idx_rides_one_active
		ON rides(user_id) WHERE status = 'IN_PROGRESS';

	-- Bikes
	CREATE TABLE IF NOT EXISTS bikes (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Pricing configurations (catalog stored as JSON, one active at a time)
	CREATE TABLE IF NOT EXISTS pricing_configs (
		id TEXT PRIMARY KEY,
		config_json TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

// CreateWallet creates an empty wallet for a user. Idempotent.
func (s *Store) CreateWallet(ctx context.Context, userID ledger.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (user_id, balance, deposit, updated_at)
		VALUES (?, '0', '0', ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func (s *Store) GetWallet(ctx context.Context, userID ledger.UserID) (*ledger.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getWallet(ctx, s.db, userID)
}

func getWallet(ctx context.Context, db querier, userID ledger.UserID) (*ledger.Wallet, error) {
	var (
		w         ledger.Wallet
		balance   string
		deposit   string
		updatedAt string
	)
	err := db.QueryRowContext(ctx,
		"SELECT user_id, balance, deposit, updated_at FROM wallets WHERE user_id = ?",
		userID,
	).Scan(&w.UserID, &balance, &deposit, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	w.Balance = ledger.MustParseMoney(balance)
	w.Deposit = ledger.MustParseMoney(deposit)
	w.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &w, nil
}

const transactionColumns = `id, wallet_id, kind, account, amount, fees, total_amount,
	       status, method, ride_id, incident_id, reverse_of, note, actor_id,
	       idempotency_key, created_at`

func (s *Store) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTransaction(ctx, s.db, id)
}

func getTransaction(ctx context.Context, db querier, id ledger.TransactionID) (*ledger.Transaction, error) {
	txs, err := queryTransactions(ctx, db,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, ledger.ErrTransactionNotFound
	}
	return &txs[0], nil
}

// History returns all transactions for a wallet, oldest first.
func (s *Store) History(ctx context.Context, userID ledger.UserID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryTransactions(ctx, s.db, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE wallet_id = ?
		ORDER BY created_at ASC, id ASC
	`, userID)
}

// ExistsKey checks if an idempotency key exists.
func (s *Store) ExistsKey(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

func (s *Store) FindByKey(ctx context.Context, idempotencyKey string) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs, err := queryTransactions(ctx, s.db,
		"SELECT "+transactionColumns+" FROM transactions WHERE idempotency_key = ?",
		idempotencyKey)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, ledger.ErrTransactionNotFound
	}
	return &txs[0], nil
}

func (s *Store) FindByReverseOf(ctx context.Context, txID ledger.TransactionID) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs, err := queryTransactions(ctx, s.db,
		"SELECT "+transactionColumns+" FROM transactions WHERE reverse_of = ?", txID)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, nil
	}
	return &txs[0], nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func queryTransactions(ctx context.Context, db querier, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		tx             ledger.Transaction
		amount         string
		fees           string
		totalAmount    string
		rideID         sql.NullString
		incidentID     sql.NullString
		reverseOf      sql.NullString
		note           sql.NullString
		actorID        sql.NullString
		idempotencyKey sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&tx.ID, &tx.WalletID, &tx.Kind, &tx.Account, &amount, &fees, &totalAmount,
		&tx.Status, &tx.Method, &rideID, &incidentID, &reverseOf, &note, &actorID,
		&idempotencyKey, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.Amount = ledger.MustParseMoney(amount)
	tx.Fees = ledger.MustParseMoney(fees)
	tx.TotalAmount = ledger.MustParseMoney(totalAmount)
	tx.RideID = ledger.RideID(rideID.String)
	tx.IncidentID = ledger.IncidentID(incidentID.String)
	tx.ReverseOf = ledger.TransactionID(reverseOf.String)
	tx.Note = note.String
	tx.ActorID = actorID.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return tx, nil
}

func appendTransaction(ctx context.Context, db querier, tx ledger.Transaction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO transactions
		(id, wallet_id, kind, account, amount, fees, total_amount, status, method,
		 ride_id, incident_id, reverse_of, note, actor_id, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tx.ID,
		tx.WalletID,
		tx.Kind,
		tx.Account,
		tx.Amount.String(),
		tx.Fees.String(),
		tx.TotalAmount.String(),
		tx.Status,
		tx.Method,
		nullString(string(tx.RideID)),
		nullString(string(tx.IncidentID)),
		nullString(string(tx.ReverseOf)),
		nullString(tx.Note),
		nullString(tx.ActorID),
		nullString(tx.IdempotencyKey),
		tx.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// =============================================================================
// WITH WALLET - The serialized read-validate-write unit
// =============================================================================

// WithWallet executes fn inside a database transaction while holding the
// per-wallet lock. The lock wait is bounded by ctx; a timeout fails fast
// with ErrConcurrencyConflict and fn never runs.
func (s *Store) WithWallet(ctx context.Context, userID ledger.UserID, fn func(ledger.WalletTx) error) error {
	lock := s.walletLock(userID)
	select {
	case lock <- struct{}{}:
		defer func() { <-lock }()
	case <-ctx.Done():
		return ledger.ErrConcurrencyConflict
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	w, err := getWallet(ctx, sqlTx, userID)
	if err != nil {
		return err
	}

	wtx := &walletTx{ctx: ctx, tx: sqlTx, wallet: *w}
	if err := fn(wtx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) walletLock(userID ledger.UserID) chan struct{} {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[userID] = lock
	}
	return lock
}

type walletTx struct {
	ctx    context.Context
	tx     *sql.Tx
	wallet ledger.Wallet
}

func (t *walletTx) Wallet() ledger.Wallet { return t.wallet }

func (t *walletTx) UpdateWallet(balance, deposit ledger.Money) error {
	if balance.IsNegative() || deposit.IsNegative() {
		return ledger.ErrInvalidAmount
	}
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE wallets SET balance = ?, deposit = ?, updated_at = ?
		WHERE user_id = ?
	`, balance.String(), deposit.String(), time.Now().UTC().Format(time.RFC3339), t.wallet.UserID)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	return nil
}

func (t *walletTx) Append(tx ledger.Transaction) error {
	return appendTransaction(t.ctx, t.tx, tx)
}

// MarkStatus moves a pending row to a final status. The WHERE clause on
// status makes the transition exactly-once at the database level.
func (t *walletTx) MarkStatus(id ledger.TransactionID, to ledger.Status) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE transactions SET status = ? WHERE id = ? AND status = 'pending'",
		to, id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := getTransaction(t.ctx, t.tx, id); err != nil {
			return err
		}
		return ledger.ErrStatusFinal
	}
	return nil
}

func (t *walletTx) GetTransaction(id ledger.TransactionID) (*ledger.Transaction, error) {
	return getTransaction(t.ctx, t.tx, id)
}

// =============================================================================
// AUDIT LOG (ledger.AuditLog interface)
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry ledger.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log
		(id, at, actor_id, action, user_id, transaction_id,
		 before_balance, before_deposit, after_balance, after_deposit, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.At.UTC().Format(time.RFC3339),
		entry.ActorID,
		entry.Action,
		entry.UserID,
		nullString(string(entry.TransactionID)),
		entry.Before.Balance.String(),
		entry.Before.Deposit.String(),
		entry.After.Balance.String(),
		entry.After.Deposit.String(),
		nullString(entry.Detail),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) QueryAudit(ctx context.Context, userID ledger.UserID) ([]ledger.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, at, actor_id, action, user_id, transaction_id,
		       before_balance, before_deposit, after_balance, after_deposit, detail
		FROM audit_log
		WHERE user_id = ?
		ORDER BY at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []ledger.AuditEntry
	for rows.Next() {
		var (
			e            ledger.AuditEntry
			at           string
			txID, detail sql.NullString
			bBal, bDep   string
			aBal, aDep   string
		)
		if err := rows.Scan(&e.ID, &at, &e.ActorID, &e.Action, &e.UserID, &txID,
			&bBal, &bDep, &aBal, &aDep, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.At, _ = time.Parse(time.RFC3339, at)
		e.TransactionID = ledger.TransactionID(txID.String)
		e.Before = ledger.WalletSnapshot{Balance: ledger.MustParseMoney(bBal), Deposit: ledger.MustParseMoney(bDep)}
		e.After = ledger.WalletSnapshot{Balance: ledger.MustParseMoney(aBal), Deposit: ledger.MustParseMoney(aDep)}
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// INCIDENT STORE (wallet.IncidentStore interface)
// =============================================================================

func (s *Store) SaveIncident(ctx context.Context, inc wallet.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents
		(id, user_id, amount, reason, created_by, transaction_id,
		 refund_amount, resolved_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			refund_amount = excluded.refund_amount,
			resolved_by = excluded.resolved_by,
			updated_at = excluded.updated_at
	`,
		inc.ID,
		inc.UserID,
		inc.Amount.String(),
		inc.Reason,
		inc.CreatedBy,
		inc.TransactionID,
		inc.RefundAmount.String(),
		nullString(inc.ResolvedBy),
		inc.CreatedAt.UTC().Format(time.RFC3339),
		inc.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save incident: %w", err)
	}
	return nil
}

func (s *Store) GetIncident(ctx context.Context, id ledger.IncidentID) (*wallet.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	incs, err := s.queryIncidents(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(incs) == 0 {
		return nil, ledger.ErrIncidentNotFound
	}
	return &incs[0], nil
}

func (s *Store) ListIncidents(ctx context.Context, userID ledger.UserID) ([]wallet.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryIncidents(ctx, "WHERE user_id = ? ORDER BY created_at ASC", userID)
}

func (s *Store) queryIncidents(ctx context.Context, where string, args ...any) ([]wallet.Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, reason, created_by, transaction_id,
		       refund_amount, resolved_by, created_at, updated_at
		FROM incidents `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var incidents []wallet.Incident
	for rows.Next() {
		var (
			inc                  wallet.Incident
			amount, refundAmount string
			resolvedBy           sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&inc.ID, &inc.UserID, &amount, &inc.Reason, &inc.CreatedBy,
			&inc.TransactionID, &refundAmount, &resolvedBy, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		inc.Amount = ledger.MustParseMoney(amount)
		inc.RefundAmount = ledger.MustParseMoney(refundAmount)
		inc.ResolvedBy = resolvedBy.String
		inc.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		inc.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// =============================================================================
// RIDE STORE (ride.Store interface)
// =============================================================================

// StartRide verifies bike availability and the one-active-session rule
// and inserts the ride, all inside one database transaction. The partial
// unique index on rides backs the check even under concurrent inserts.
func (s *Store) StartRide(ctx context.Context, r ride.Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	res, err := sqlTx.ExecContext(ctx,
		"UPDATE bikes SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		ride.BikeInUse, r.StartTime.UTC().Format(time.RFC3339), r.BikeID, ride.BikeAvailable)
	if err != nil {
		return fmt.Errorf("failed to claim bike: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrBikeUnavailable
	}

	if err := insertRide(ctx, sqlTx, r); err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrSessionAlreadyActive
		}
		return err
	}
	return sqlTx.Commit()
}

func insertRide(ctx context.Context, db querier, r ride.Ride) error {
	var (
		endTime        sql.NullString
		endLat, endLng sql.NullFloat64
	)
	if r.EndTime != nil {
		endTime = sql.NullString{String: r.EndTime.UTC().Format(time.RFC3339), Valid: true}
	}
	if r.EndLocation != nil {
		endLat = sql.NullFloat64{Float64: r.EndLocation.Lat, Valid: true}
		endLng = sql.NullFloat64{Float64: r.EndLocation.Lng, Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO rides
		(id, user_id, bike_id, plan_id, start_time, end_time,
		 start_lat, start_lng, end_lat, end_lng, distance_km, duration_minutes,
		 cost, payment_failed, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.UserID, r.BikeID, r.PlanID,
		r.StartTime.UTC().Format(time.RFC3339), endTime,
		r.StartLocation.Lat, r.StartLocation.Lng, endLat, endLng,
		r.DistanceKm, r.DurationMinutes,
		r.Cost.String(), r.PaymentFailed, r.Status,
		r.CreatedAt.UTC().Format(time.RFC3339), r.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// FinishRide writes the ride's terminal state and releases the bike in
// the same transaction.
func (s *Store) FinishRide(ctx context.Context, r ride.Ride, bikeStatus ride.BikeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	var (
		endTime        sql.NullString
		endLat, endLng sql.NullFloat64
	)
	if r.EndTime != nil {
		endTime = sql.NullString{String: r.EndTime.UTC().Format(time.RFC3339), Valid: true}
	}
	if r.EndLocation != nil {
		endLat = sql.NullFloat64{Float64: r.EndLocation.Lat, Valid: true}
		endLng = sql.NullFloat64{Float64: r.EndLocation.Lng, Valid: true}
	}
	res, err := sqlTx.ExecContext(ctx, `
		UPDATE rides SET
			end_time = ?, end_lat = ?, end_lng = ?, distance_km = ?,
			duration_minutes = ?, cost = ?, payment_failed = ?, status = ?, updated_at = ?
		WHERE id = ?
	`,
		endTime, endLat, endLng, r.DistanceKm,
		r.DurationMinutes, r.Cost.String(), r.PaymentFailed, r.Status,
		r.UpdatedAt.UTC().Format(time.RFC3339), r.ID)
	if err != nil {
		return fmt.Errorf("failed to update ride: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrSessionNotFound
	}

	_, err = sqlTx.ExecContext(ctx,
		"UPDATE bikes SET status = ?, updated_at = ? WHERE id = ?",
		bikeStatus, r.UpdatedAt.UTC().Format(time.RFC3339), r.BikeID)
	if err != nil {
		return fmt.Errorf("failed to release bike: %w", err)
	}
	return sqlTx.Commit()
}

const rideColumns = `id, user_id, bike_id, plan_id, start_time, end_time,
	       start_lat, start_lng, end_lat, end_lng, distance_km, duration_minutes,
	       cost, payment_failed, status, created_at, updated_at`

func (s *Store) GetRide(ctx context.Context, id ledger.RideID) (*ride.Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rides, err := s.queryRides(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rides) == 0 {
		return nil, ledger.ErrSessionNotFound
	}
	return &rides[0], nil
}

func (s *Store) ActiveRide(ctx context.Context, userID ledger.UserID) (*ride.Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rides, err := s.queryRides(ctx, "WHERE user_id = ? AND status = 'IN_PROGRESS'", userID)
	if err != nil {
		return nil, err
	}
	if len(rides) == 0 {
		return nil, ledger.ErrSessionNotFound
	}
	return &rides[0], nil
}

func (s *Store) ListRides(ctx context.Context, userID ledger.UserID) ([]ride.Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryRides(ctx, "WHERE user_id = ? ORDER BY start_time ASC", userID)
}

func (s *Store) ListUnpaidRides(ctx context.Context) ([]ride.Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryRides(ctx,
		"WHERE status = 'COMPLETED' AND payment_failed = 1 ORDER BY start_time ASC")
}

func (s *Store) queryRides(ctx context.Context, where string, args ...any) ([]ride.Ride, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+rideColumns+" FROM rides "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rides: %w", err)
	}
	defer rows.Close()

	var rides []ride.Ride
	for rows.Next() {
		var (
			r                    ride.Ride
			startTime, createdAt string
			updatedAt, cost      string
			endTime              sql.NullString
			endLat, endLng       sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.BikeID, &r.PlanID, &startTime, &endTime,
			&r.StartLocation.Lat, &r.StartLocation.Lng, &endLat, &endLng,
			&r.DistanceKm, &r.DurationMinutes, &cost, &r.PaymentFailed, &r.Status,
			&createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ride: %w", err)
		}
		r.StartTime, _ = time.Parse(time.RFC3339, startTime)
		if endTime.Valid {
			t, _ := time.Parse(time.RFC3339, endTime.String)
			r.EndTime = &t
		}
		if endLat.Valid {
			r.EndLocation = &ride.Location{Lat: endLat.Float64, Lng: endLng.Float64}
		}
		r.Cost = ledger.MustParseMoney(cost)
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		rides = append(rides, r)
	}
	return rides, rows.Err()
}

func (s *Store) GetBike(ctx context.Context, id string) (*ride.Bike, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		b         ride.Bike
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, label, status, updated_at FROM bikes WHERE id = ?", id,
	).Scan(&b.ID, &b.Label, &b.Status, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrBikeUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bike: %w", err)
	}
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &b, nil
}

func (s *Store) SaveBike(ctx context.Context, b ride.Bike) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bikes (id, label, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, b.ID, b.Label, b.Status, b.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save bike: %w", err)
	}
	return nil
}

func (s *Store) ListBikes(ctx context.Context) ([]ride.Bike, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, label, status, updated_at FROM bikes ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query bikes: %w", err)
	}
	defer rows.Close()

	var bikes []ride.Bike
	for rows.Next() {
		var (
			b         ride.Bike
			updatedAt string
		)
		if err := rows.Scan(&b.ID, &b.Label, &b.Status, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bike: %w", err)
		}
		b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		bikes = append(bikes, b)
	}
	return bikes, rows.Err()
}

// =============================================================================
// PRICING CATALOG (ride.Catalog interface + admin writes)
// =============================================================================

// SaveConfig upserts a pricing configuration. Activating a config
// deactivates every other one; at most one is active at a time.
func (s *Store) SaveConfig(ctx context.Context, cfg pricing.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode pricing config: %w", err)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if cfg.IsActive {
		if _, err := sqlTx.ExecContext(ctx,
			"UPDATE pricing_configs SET is_active = 0 WHERE id != ?", cfg.ID); err != nil {
			return fmt.Errorf("failed to deactivate configs: %w", err)
		}
	}
	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO pricing_configs (id, config_json, is_active, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			config_json = excluded.config_json,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`, cfg.ID, string(raw), cfg.IsActive, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save pricing config: %w", err)
	}
	return sqlTx.Commit()
}

// ActiveConfig returns the active pricing configuration, or
// ErrNotConfigured when none is active.
func (s *Store) ActiveConfig(ctx context.Context) (*pricing.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT config_json FROM pricing_configs WHERE is_active = 1 LIMIT 1",
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pricing config: %w", err)
	}

	var cfg pricing.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode pricing config: %w", err)
	}
	return &cfg, nil
}

// ConsumePromotions increments promotion usage counts on the active
// configuration.
func (s *Store) ConsumePromotions(ctx context.Context, promoIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		id  string
		raw string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, config_json FROM pricing_configs WHERE is_active = 1 LIMIT 1",
	).Scan(&id, &raw)
	if err == sql.ErrNoRows {
		return ledger.ErrNotConfigured
	}
	if err != nil {
		return fmt.Errorf("failed to get pricing config: %w", err)
	}

	var cfg pricing.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return fmt.Errorf("failed to decode pricing config: %w", err)
	}
	for _, promoID := range promoIDs {
		for i := range cfg.Promotions {
			if cfg.Promotions[i].ID == promoID {
				cfg.Promotions[i].UsageCount++
			}
		}
	}

	updated, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode pricing config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE pricing_configs SET config_json = ?, updated_at = ? WHERE id = ?",
		string(updated), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to update pricing config: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// ResetAll clears every table. Demo scenario loading only; never exposed
// on a production path.
func (s *Store) ResetAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{
		"transactions", "audit_log", "incidents", "rides", "bikes",
		"pricing_configs", "wallets",
	} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
