// Package ledger is the append-only Knowledge-Unit transaction log. Entries
// are never updated or deleted; the sum of signed amounts per account is the
// reconciliation diagnostic for wallet balances.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studypal/backend/internal/models"
)

// DefaultPageSize bounds List when the caller does not pass a limit.
const DefaultPageSize = 50

// MaxPageSize caps a caller-supplied limit.
const MaxPageSize = 200

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Append(ctx context.Context, e *models.Transaction) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO transactions (id, account_id, group_id, amount, kind, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.AccountID, e.GroupID, e.Amount, e.Kind, e.Description).Scan(&e.CreatedAt)
}

// AppendTx inserts a ledger entry inside the given transaction.
func (r *Repository) AppendTx(ctx context.Context, tx pgx.Tx, e *models.Transaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO transactions (id, account_id, group_id, amount, kind, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.AccountID, e.GroupID, e.Amount, e.Kind, e.Description).Scan(&e.CreatedAt)
}

// List returns entries for an account ordered by timestamp ascending,
// restartable from a timestamp cursor.
func (r *Repository) List(ctx context.Context, accountID uuid.UUID, since *time.Time, limit int) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	cursor := time.Time{}
	if since != nil {
		cursor = *since
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, group_id, amount, kind, description, created_at
		FROM transactions
		WHERE account_id = $1 AND created_at > $2
		ORDER BY created_at ASC
		LIMIT $3
	`, accountID, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		var e models.Transaction
		if err := rows.Scan(&e.ID, &e.AccountID, &e.GroupID, &e.Amount, &e.Kind, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
