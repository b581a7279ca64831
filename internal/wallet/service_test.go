package wallet

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/studypal/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks for Store and Ledger.
// ---------------------------------------------------------------------------

type fakeTx struct {
	pgx.Tx
}

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeDB struct{}

func (fakeDB) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

type walletRow struct {
	balance int
	slots   int
}

type mockStore struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*walletRow
}

func newMockStore() *mockStore {
	return &mockStore{wallets: make(map[uuid.UUID]*walletRow)}
}

func (m *mockStore) seed(id uuid.UUID, balance int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[id] = &walletRow{balance: balance}
}

func (m *mockStore) Get(_ context.Context, principalID uuid.UUID) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[principalID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return &models.Wallet{PrincipalID: principalID, Balance: w.balance, LibrarySlots: w.slots}, nil
}

func (m *mockStore) DebitTx(_ context.Context, _ pgx.Tx, principalID uuid.UUID, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[principalID]
	if !ok || w.balance < amount {
		return 0, ErrInsufficientBalance
	}
	w.balance -= amount
	return w.balance, nil
}

func (m *mockStore) AddLibrarySlotsTx(_ context.Context, _ pgx.Tx, principalID uuid.UUID, slots, costUnits int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[principalID]
	if !ok || w.balance < costUnits {
		return 0, ErrInsufficientBalance
	}
	w.balance -= costUnits
	w.slots += slots
	return w.balance, nil
}

type mockLedger struct {
	mu      sync.Mutex
	entries []*models.Transaction
}

func (m *mockLedger) AppendTx(_ context.Context, _ pgx.Tx, e *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

func TestGet_MissingWalletIsZero(t *testing.T) {
	svc := NewService(fakeDB{}, newMockStore(), &mockLedger{})
	id := uuid.New()

	w, err := svc.Get(context.Background(), id, models.PrincipalUser)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if w.Balance != 0 {
		t.Errorf("balance: got %d, want 0", w.Balance)
	}
	if w.PrincipalID != id {
		t.Error("zero wallet should carry the requested principal id")
	}
}

// ---------------------------------------------------------------------------
// Consume
// ---------------------------------------------------------------------------

func TestConsume(t *testing.T) {
	store := newMockStore()
	ledger := &mockLedger{}
	svc := NewService(fakeDB{}, store, ledger)
	account := uuid.New()
	store.seed(account, 13)

	balance, err := svc.Consume(context.Background(), account, nil, 2, "exam simulation")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if balance != 11 {
		t.Errorf("balance: got %d, want 11", balance)
	}
	if len(ledger.entries) != 1 {
		t.Fatalf("ledger entries: got %d, want 1", len(ledger.entries))
	}
	e := ledger.entries[0]
	if e.Kind != models.TxnConsumption {
		t.Errorf("entry kind: got %q, want %q", e.Kind, models.TxnConsumption)
	}
	if e.Amount != -2 {
		t.Errorf("entry amount: got %d, want -2 (consumption is negative)", e.Amount)
	}
	if e.Description != "exam simulation" {
		t.Errorf("entry description: got %q", e.Description)
	}
}

func TestConsume_GroupWallet(t *testing.T) {
	store := newMockStore()
	ledger := &mockLedger{}
	svc := NewService(fakeDB{}, store, ledger)
	account := uuid.New()
	group := uuid.New()
	store.seed(group, 25)

	balance, err := svc.Consume(context.Background(), account, &group, 5, "tutor message")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if balance != 20 {
		t.Errorf("group balance: got %d, want 20", balance)
	}
	// The entry is attributed to the spending member with the group recorded.
	e := ledger.entries[0]
	if e.AccountID != account {
		t.Error("entry should name the spending account")
	}
	if e.GroupID == nil || *e.GroupID != group {
		t.Error("entry should name the group wallet")
	}
}

func TestConsume_InsufficientBalance(t *testing.T) {
	store := newMockStore()
	ledger := &mockLedger{}
	svc := NewService(fakeDB{}, store, ledger)
	account := uuid.New()
	store.seed(account, 1)

	if _, err := svc.Consume(context.Background(), account, nil, 2, "document summary"); err != ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got: %v", err)
	}
	if len(ledger.entries) != 0 {
		t.Errorf("failed debit must not write ledger entries, got %d", len(ledger.entries))
	}
	if w, _ := store.Get(context.Background(), account); w.Balance != 1 {
		t.Errorf("balance must be unchanged, got %d", w.Balance)
	}
}

// ---------------------------------------------------------------------------
// PurchaseLibrarySlots
// ---------------------------------------------------------------------------

func TestPurchaseLibrarySlots(t *testing.T) {
	store := newMockStore()
	ledger := &mockLedger{}
	svc := NewService(fakeDB{}, store, ledger)
	account := uuid.New()
	store.seed(account, 13)

	balance, err := svc.PurchaseLibrarySlots(context.Background(), account, 2)
	if err != nil {
		t.Fatalf("PurchaseLibrarySlots: %v", err)
	}
	// 2 slots at 5 units each.
	if balance != 3 {
		t.Errorf("balance: got %d, want 3", balance)
	}
	w, _ := store.Get(context.Background(), account)
	if w.LibrarySlots != 2 {
		t.Errorf("library slots: got %d, want 2", w.LibrarySlots)
	}
	if len(ledger.entries) != 1 || ledger.entries[0].Amount != -10 {
		t.Error("slot purchase should append a -10 unit consumption entry")
	}

	if _, err := svc.PurchaseLibrarySlots(context.Background(), account, 1); err != ErrInsufficientBalance {
		t.Errorf("expected ErrInsufficientBalance, got: %v", err)
	}
}
