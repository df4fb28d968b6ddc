// Package store provides in-memory implementations of the persistence
// interfaces, used in tests and local development.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Xybronix/EcoMobile-backend-sub001/ledger"
	"github.com/Xybronix/EcoMobile-backend-sub001/pricing"
	"github.com/Xybronix/EcoMobile-backend-sub001/ride"
	"github.com/Xybronix/EcoMobile-backend-sub001/wallet"
)

// =============================================================================
// MEMORY STORE - All persistence interfaces, map-backed
// =============================================================================

// Memory implements ledger.Store, ledger.AuditLog, wallet.IncidentStore,
// ride.Store and ride.Catalog on maps. Per-wallet channel locks give
// WithWallet the same serialization contract as the SQLite store.
type Memory struct {
	mu           sync.RWMutex
	wallets      map[ledger.UserID]ledger.Wallet
	transactions map[ledger.TransactionID]ledger.Transaction
	order        []ledger.TransactionID
	idempotency  map[string]ledger.TransactionID
	audit        []ledger.AuditEntry
	incidents    map[ledger.IncidentID]wallet.Incident
	rides        map[ledger.RideID]ride.Ride
	bikes        map[string]ride.Bike
	config       *pricing.Config

	lockMu sync.Mutex
	locks  map[ledger.UserID]chan struct{}
}

func NewMemory() *Memory {
	return &Memory{
		wallets:      make(map[ledger.UserID]ledger.Wallet),
		transactions: make(map[ledger.TransactionID]ledger.Transaction),
		idempotency:  make(map[string]ledger.TransactionID),
		incidents:    make(map[ledger.IncidentID]wallet.Incident),
		rides:        make(map[ledger.RideID]ride.Ride),
		bikes:        make(map[string]ride.Bike),
		locks:        make(map[ledger.UserID]chan struct{}),
	}
}

// ResetAll clears all state. Demo scenario loading only.
func (m *Memory) ResetAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets = make(map[ledger.UserID]ledger.Wallet)
	m.transactions = make(map[ledger.TransactionID]ledger.Transaction)
	m.order = nil
	m.idempotency = make(map[string]ledger.TransactionID)
	m.audit = nil
	m.incidents = make(map[ledger.IncidentID]wallet.Incident)
	m.rides = make(map[ledger.RideID]ride.Ride)
	m.bikes = make(map[string]ride.Bike)
	m.config = nil
	return nil
}

// =============================================================================
// LEDGER STORE
// =============================================================================

func (m *Memory) CreateWallet(_ context.Context, userID ledger.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.wallets[userID]; ok {
		return nil
	}
	m.wallets[userID] = ledger.Wallet{
		UserID:  userID,
		Balance: ledger.Zero(),
		Deposit: ledger.Zero(),
	}
	return nil
}

func (m *Memory) GetWallet(_ context.Context, userID ledger.UserID) (*ledger.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wallets[userID]
	if !ok {
		return nil, ledger.ErrWalletNotFound
	}
	return &w, nil
}

func (m *Memory) GetTransaction(_ context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.transactions[id]
	if !ok {
		return nil, ledger.ErrTransactionNotFound
	}
	return &tx, nil
}

func (m *Memory) History(_ context.Context, userID ledger.UserID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Transaction
	for _, id := range m.order {
		if tx := m.transactions[id]; tx.WalletID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *Memory) ExistsKey(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.idempotency[idempotencyKey]
	return ok, nil
}

func (m *Memory) FindByKey(_ context.Context, idempotencyKey string) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.idempotency[idempotencyKey]
	if !ok {
		return nil, ledger.ErrTransactionNotFound
	}
	tx := m.transactions[id]
	return &tx, nil
}

func (m *Memory) FindByReverseOf(_ context.Context, txID ledger.TransactionID) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		if tx := m.transactions[id]; tx.ReverseOf == txID {
			return &tx, nil
		}
	}
	return nil, nil
}

// WithWallet serializes on a per-wallet channel lock. If the lock cannot
// be taken before ctx expires, the call fails with ErrConcurrencyConflict
// and fn never runs. Writes are staged and applied only when fn returns
// nil, mirroring the SQLite transaction's commit-or-rollback.
func (m *Memory) WithWallet(ctx context.Context, userID ledger.UserID, fn func(ledger.WalletTx) error) error {
	lock := m.walletLock(userID)
	select {
	case lock <- struct{}{}:
		defer func() { <-lock }()
	case <-ctx.Done():
		return ledger.ErrConcurrencyConflict
	}

	m.mu.RLock()
	w, ok := m.wallets[userID]
	m.mu.RUnlock()
	if !ok {
		return ledger.ErrWalletNotFound
	}

	tx := &memoryTx{m: m, wallet: w, statuses: make(map[ledger.TransactionID]ledger.Status)}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

func (m *Memory) walletLock(userID ledger.UserID) chan struct{} {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	lock, ok := m.locks[userID]
	if !ok {
		lock = make(chan struct{}, 1)
		m.locks[userID] = lock
	}
	return lock
}

// memoryTx stages writes until commit.
type memoryTx struct {
	m      *Memory
	wallet ledger.Wallet

	updated  bool
	balance  ledger.Money
	deposit  ledger.Money
	appends  []ledger.Transaction
	statuses map[ledger.TransactionID]ledger.Status
}

func (t *memoryTx) Wallet() ledger.Wallet { return t.wallet }

func (t *memoryTx) UpdateWallet(balance, deposit ledger.Money) error {
	if balance.IsNegative() || deposit.IsNegative() {
		return ledger.ErrInvalidAmount
	}
	t.updated = true
	t.balance = balance
	t.deposit = deposit
	return nil
}

func (t *memoryTx) Append(tx ledger.Transaction) error {
	t.m.mu.RLock()
	_, dup := t.m.idempotency[tx.IdempotencyKey]
	t.m.mu.RUnlock()
	if dup && tx.IdempotencyKey != "" {
		return ledger.ErrDuplicateIdempotencyKey
	}
	for _, staged := range t.appends {
		if staged.IdempotencyKey == tx.IdempotencyKey && tx.IdempotencyKey != "" {
			return ledger.ErrDuplicateIdempotencyKey
		}
	}
	t.appends = append(t.appends, tx)
	return nil
}

func (t *memoryTx) MarkStatus(id ledger.TransactionID, to ledger.Status) error {
	tx, err := t.GetTransaction(id)
	if err != nil {
		return err
	}
	if tx.Status != ledger.StatusPending {
		return ledger.ErrStatusFinal
	}
	t.statuses[id] = to
	return nil
}

func (t *memoryTx) GetTransaction(id ledger.TransactionID) (*ledger.Transaction, error) {
	if staged, ok := t.statuses[id]; ok {
		t.m.mu.RLock()
		tx := t.m.transactions[id]
		t.m.mu.RUnlock()
		tx.Status = staged
		return &tx, nil
	}
	return t.m.GetTransaction(context.Background(), id)
}

func (t *memoryTx) commit() error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	if t.updated {
		w := t.m.wallets[t.wallet.UserID]
		w.Balance = t.balance
		w.Deposit = t.deposit
		t.m.wallets[t.wallet.UserID] = w
	}
	for id, to := range t.statuses {
		tx := t.m.transactions[id]
		tx.Status = to
		t.m.transactions[id] = tx
	}
	for _, tx := range t.appends {
		t.m.transactions[tx.ID] = tx
		t.m.order = append(t.m.order, tx.ID)
		if tx.IdempotencyKey != "" {
			t.m.idempotency[tx.IdempotencyKey] = tx.ID
		}
	}
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry ledger.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, userID ledger.UserID) ([]ledger.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.AuditEntry
	for _, e := range m.audit {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// =============================================================================
// INCIDENT STORE
// =============================================================================

func (m *Memory) SaveIncident(_ context.Context, inc wallet.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents[inc.ID] = inc
	return nil
}

func (m *Memory) GetIncident(_ context.Context, id ledger.IncidentID) (*wallet.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inc, ok := m.incidents[id]
	if !ok {
		return nil, ledger.ErrIncidentNotFound
	}
	return &inc, nil
}

func (m *Memory) ListIncidents(_ context.Context, userID ledger.UserID) ([]wallet.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []wallet.Incident
	for _, inc := range m.incidents {
		if inc.UserID == userID {
			out = append(out, inc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// RIDE STORE
// =============================================================================

func (m *Memory) StartRide(_ context.Context, r ride.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bikes[r.BikeID]
	if !ok || b.Status != ride.BikeAvailable {
		return ledger.ErrBikeUnavailable
	}
	for _, existing := range m.rides {
		if existing.UserID == r.UserID && existing.Status == ride.StatusInProgress {
			return ledger.ErrSessionAlreadyActive
		}
	}

	b.Status = ride.BikeInUse
	b.UpdatedAt = r.StartTime
	m.bikes[r.BikeID] = b
	m.rides[r.ID] = r
	return nil
}

func (m *Memory) FinishRide(_ context.Context, r ride.Ride, bikeStatus ride.BikeStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; !ok {
		return ledger.ErrSessionNotFound
	}
	m.rides[r.ID] = r
	if b, ok := m.bikes[r.BikeID]; ok {
		b.Status = bikeStatus
		b.UpdatedAt = r.UpdatedAt
		m.bikes[r.BikeID] = b
	}
	return nil
}

func (m *Memory) GetRide(_ context.Context, id ledger.RideID) (*ride.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ledger.ErrSessionNotFound
	}
	return &r, nil
}

func (m *Memory) ActiveRide(_ context.Context, userID ledger.UserID) (*ride.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rides {
		if r.UserID == userID && r.Status == ride.StatusInProgress {
			out := r
			return &out, nil
		}
	}
	return nil, ledger.ErrSessionNotFound
}

func (m *Memory) ListUnpaidRides(_ context.Context) ([]ride.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ride.Ride
	for _, r := range m.rides {
		if r.Status == ride.StatusCompleted && r.PaymentFailed {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *Memory) ListRides(_ context.Context, userID ledger.UserID) ([]ride.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ride.Ride
	for _, r := range m.rides {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *Memory) GetBike(_ context.Context, id string) (*ride.Bike, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bikes[id]
	if !ok {
		return nil, ledger.ErrBikeUnavailable
	}
	return &b, nil
}

func (m *Memory) SaveBike(_ context.Context, b ride.Bike) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bikes[b.ID] = b
	return nil
}

func (m *Memory) ListBikes(_ context.Context) ([]ride.Bike, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ride.Bike, 0, len(m.bikes))
	for _, b := range m.bikes {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// PRICING CATALOG
// =============================================================================

func (m *Memory) SaveConfig(_ context.Context, cfg pricing.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = &cfg
	return nil
}

func (m *Memory) ActiveConfig(_ context.Context) (*pricing.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil || !m.config.IsActive {
		return nil, ledger.ErrNotConfigured
	}
	cfg := *m.config
	return &cfg, nil
}

func (m *Memory) ConsumePromotions(_ context.Context, promoIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		return ledger.ErrNotConfigured
	}
	for _, id := range promoIDs {
		for i := range m.config.Promotions {
			if m.config.Promotions[i].ID == id {
				m.config.Promotions[i].UsageCount++
			}
		}
	}
	return nil
}
