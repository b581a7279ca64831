package intent

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studypal/backend/internal/models"
)

// ErrDuplicateReference is returned when creating an intent whose reference
// already exists.
var ErrDuplicateReference = errors.New("reference already exists")

// ErrNotFound is returned when no intent exists for a reference.
var ErrNotFound = errors.New("checkout intent not found")

// ErrAlreadyTerminal is returned by MarkTerminal when the intent has already
// left the pending state. Idempotent callers treat this as a no-op.
var ErrAlreadyTerminal = errors.New("checkout intent already terminal")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, in *models.CheckoutIntent) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO checkout_intents (reference, account_id, target, group_id, units, expected_amount, package_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		RETURNING created_at
	`, in.Reference, in.AccountID, in.Target, in.GroupID, in.Units, in.ExpectedAmount, in.PackageID).Scan(&in.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return err
	}
	in.Status = models.IntentPending
	return nil
}

func (r *Repository) GetByReference(ctx context.Context, reference string) (*models.CheckoutIntent, error) {
	var in models.CheckoutIntent
	err := r.pool.QueryRow(ctx, `
		SELECT reference, account_id, target, group_id, units, expected_amount, package_id, status, created_at
		FROM checkout_intents WHERE reference = $1
	`, reference).Scan(&in.Reference, &in.AccountID, &in.Target, &in.GroupID, &in.Units, &in.ExpectedAmount, &in.PackageID, &in.Status, &in.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// MarkTerminal transitions a pending intent to a terminal status. The status
// guard in the WHERE clause enforces the single-transition rule.
func (r *Repository) MarkTerminal(ctx context.Context, reference, status string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE checkout_intents SET status = $2 WHERE reference = $1 AND status = 'pending'
	`, reference, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyTerminal
	}
	return nil
}

// MarkTerminalTx is MarkTerminal inside the caller's transaction.
func (r *Repository) MarkTerminalTx(ctx context.Context, tx pgx.Tx, reference, status string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE checkout_intents SET status = $2 WHERE reference = $1 AND status = 'pending'
	`, reference, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyTerminal
	}
	return nil
}

// SweepExpired marks intents still pending after maxAge as expired and
// returns how many were swept.
func (r *Repository) SweepExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE checkout_intents SET status = 'expired'
		WHERE status = 'pending' AND created_at < now() - make_interval(secs => $1)
	`, maxAge.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
