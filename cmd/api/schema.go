package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ensureSchema creates the application tables if they do not exist. All
// statements are idempotent so startup is safe against an already-migrated
// database.
func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			name TEXT NOT NULL,
			referred_by UUID REFERENCES accounts(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS wallets (
			principal_id UUID PRIMARY KEY,
			principal_kind TEXT NOT NULL,
			balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			library_slots INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS checkout_intents (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			reference TEXT NOT NULL UNIQUE,
			account_id UUID NOT NULL REFERENCES accounts(id),
			target TEXT NOT NULL,
			group_id UUID,
			package_id TEXT,
			units INTEGER NOT NULL,
			expected_amount BIGINT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_checkout_intents_pending
			ON checkout_intents (created_at) WHERE status = 'pending';

		CREATE TABLE IF NOT EXISTS payment_history (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			reference TEXT NOT NULL UNIQUE,
			account_id UUID NOT NULL,
			package_id TEXT,
			amount BIGINT NOT NULL,
			status TEXT NOT NULL,
			raw_event JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_payment_history_account
			ON payment_history (account_id, status);

		CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			account_id UUID NOT NULL,
			group_id UUID,
			amount INTEGER NOT NULL,
			kind TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_account_created
			ON transactions (account_id, created_at);
	`)
	return err
}
