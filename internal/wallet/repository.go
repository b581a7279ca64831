package wallet

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studypal/backend/internal/models"
)

// ErrInsufficientBalance is returned when a debit exceeds the wallet balance.
// A missing wallet debits as if its balance were zero.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrWalletNotFound is returned by Get when no wallet row exists yet.
var ErrWalletNotFound = errors.New("wallet not found")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, principalID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx, `
		SELECT principal_id, principal_kind, balance, library_slots, created_at, updated_at
		FROM wallets WHERE principal_id = $1
	`, principalID).Scan(&w.PrincipalID, &w.PrincipalKind, &w.Balance, &w.LibrarySlots, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Balance returns the current balance, treating a missing wallet as zero.
func (r *Repository) Balance(ctx context.Context, principalID uuid.UUID) (int, error) {
	w, err := r.Get(ctx, principalID)
	if errors.Is(err, ErrWalletNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

// CreditTx atomically adds amount to the wallet, creating the row on first
// credit. welcomeBonus is applied only when the insert creates the wallet;
// concurrent credits for the same principal serialize on the row. Runs inside
// the caller's transaction.
func (r *Repository) CreditTx(ctx context.Context, tx pgx.Tx, principalID uuid.UUID, kind string, amount, welcomeBonus int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		INSERT INTO wallets (principal_id, principal_kind, balance)
		VALUES ($1, $2, $3 + $4)
		ON CONFLICT (principal_id) DO UPDATE
		SET balance = wallets.balance + $3, updated_at = now()
		RETURNING balance
	`, principalID, kind, amount, welcomeBonus).Scan(&newBalance)
	return newBalance, err
}

// DebitTx atomically deducts amount if the balance covers it. The conditional
// WHERE clause is what keeps the balance non-negative; there is no
// read-modify-write window.
func (r *Repository) DebitTx(ctx context.Context, tx pgx.Tx, principalID uuid.UUID, amount int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE wallets SET balance = balance - $1, updated_at = now()
		WHERE principal_id = $2 AND balance >= $1
		RETURNING balance
	`, amount, principalID).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientBalance
	}
	return newBalance, err
}

// AddLibrarySlotsTx spends costUnits from the balance and adds slots to the
// library-slot counter in a single statement.
func (r *Repository) AddLibrarySlotsTx(ctx context.Context, tx pgx.Tx, principalID uuid.UUID, slots, costUnits int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE wallets
		SET balance = balance - $1, library_slots = library_slots + $2, updated_at = now()
		WHERE principal_id = $3 AND balance >= $1
		RETURNING balance
	`, costUnits, slots, principalID).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientBalance
	}
	return newBalance, err
}
