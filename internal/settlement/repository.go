package settlement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studypal/backend/internal/models"
)

// Repository persists payment-history rows. The unique index on reference is
// the idempotency guard the whole engine hangs off: a second insert of the
// same reference fails with 23505 regardless of which entry path raced ahead.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetByReference(ctx context.Context, reference string) (*models.PaymentRecord, error) {
	var rec models.PaymentRecord
	err := r.pool.QueryRow(ctx, `
		SELECT reference, account_id, amount, status, package_id, created_at
		FROM payment_history WHERE reference = $1
	`, reference).Scan(&rec.Reference, &rec.AccountID, &rec.Amount, &rec.Status, &rec.PackageID, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) Create(ctx context.Context, rec *models.PaymentRecord) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO payment_history (reference, account_id, amount, status, package_id, raw_event)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, rec.Reference, rec.AccountID, rec.Amount, rec.Status, rec.PackageID, rec.RawEvent).Scan(&rec.CreatedAt)
	return mapDuplicate(err)
}

// CreateTx inserts the payment row inside the caller's transaction so the
// reference claim and the wallet credit commit or roll back together.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, rec *models.PaymentRecord) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO payment_history (reference, account_id, amount, status, package_id, raw_event)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, rec.Reference, rec.AccountID, rec.Amount, rec.Status, rec.PackageID, rec.RawEvent).Scan(&rec.CreatedAt)
	return mapDuplicate(err)
}

// HasPriorSuccess reports whether the account has a successful payment other
// than excludeReference. Used to decide first-purchase referral bonuses.
func (r *Repository) HasPriorSuccess(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, excludeReference string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM payment_history
			WHERE account_id = $1 AND status = 'success' AND reference <> $2
		)
	`, accountID, excludeReference).Scan(&exists)
	return exists, err
}

func mapDuplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateReference
	}
	return err
}
