package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/studypal/backend/internal/catalog"
	"github.com/studypal/backend/internal/models"
)

// Store is the minimal wallet repository interface for the service.
type Store interface {
	Get(ctx context.Context, principalID uuid.UUID) (*models.Wallet, error)
	DebitTx(ctx context.Context, tx pgx.Tx, principalID uuid.UUID, amount int) (int, error)
	AddLibrarySlotsTx(ctx context.Context, tx pgx.Tx, principalID uuid.UUID, slots, costUnits int) (int, error)
}

// Ledger mirrors wallet mutations into the transaction ledger. Ledger writes
// stay at the call site so the audit trail is explicit.
type Ledger interface {
	AppendTx(ctx context.Context, tx pgx.Tx, e *models.Transaction) error
}

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Service struct {
	db     TxBeginner
	store  Store
	ledger Ledger
}

func NewService(db TxBeginner, store Store, ledger Ledger) *Service {
	return &Service{db: db, store: store, ledger: ledger}
}

// Get returns the wallet for a principal, or an empty zero-balance wallet if
// none exists yet (wallets are created lazily on first credit).
func (s *Service) Get(ctx context.Context, principalID uuid.UUID, kind string) (*models.Wallet, error) {
	w, err := s.store.Get(ctx, principalID)
	if err == ErrWalletNotFound {
		return &models.Wallet{PrincipalID: principalID, PrincipalKind: kind}, nil
	}
	return w, err
}

// Consume debits units for a named feature (tutor message, exam simulation,
// document summary) and appends a consumption ledger entry. groupID is set
// when the units are spent from a group wallet.
func (s *Service) Consume(ctx context.Context, accountID uuid.UUID, groupID *uuid.UUID, units int, feature string) (newBalance int, err error) {
	principal := accountID
	if groupID != nil {
		principal = *groupID
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	newBalance, err = s.store.DebitTx(ctx, tx, principal, units)
	if err != nil {
		return 0, err
	}
	if err := s.ledger.AppendTx(ctx, tx, &models.Transaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		GroupID:     groupID,
		Amount:      -units,
		Kind:        models.TxnConsumption,
		Description: feature,
	}); err != nil {
		return 0, err
	}
	return newBalance, tx.Commit(ctx)
}

// PurchaseLibrarySlots spends Knowledge Units on additional library slots for
// the account's personal wallet.
func (s *Service) PurchaseLibrarySlots(ctx context.Context, accountID uuid.UUID, slots int) (newBalance int, err error) {
	cost := slots * catalog.LibrarySlotCost
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	newBalance, err = s.store.AddLibrarySlotsTx(ctx, tx, accountID, slots, cost)
	if err != nil {
		return 0, err
	}
	if err := s.ledger.AppendTx(ctx, tx, &models.Transaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		Amount:      -cost,
		Kind:        models.TxnConsumption,
		Description: fmt.Sprintf("library slots x%d", slots),
	}); err != nil {
		return 0, err
	}
	return newBalance, tx.Commit(ctx)
}
