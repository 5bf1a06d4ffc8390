package storage

import (
	"context"
)

// DefaultCategories are created on first migration.
var DefaultCategories = []string{
	"Food", "Transport", "Entertainment", "Utilities", "Housing", "Gifts", "Other",
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		expense_total_cents INTEGER NOT NULL DEFAULT 0,
		is_premium BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS expenses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		amount_cents INTEGER NOT NULL,
		description TEXT NOT NULL,
		category_id INTEGER NOT NULL REFERENCES categories(id),
		created_at DATETIME NOT NULL,
		deleted_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_account_active ON expenses(account_id, deleted_at)`,
	`CREATE TABLE IF NOT EXISTS incomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		amount_cents INTEGER NOT NULL,
		description TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		deleted_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_incomes_account_active ON incomes(account_id, deleted_at)`,
	`CREATE TABLE IF NOT EXISTS password_resets (
		id TEXT PRIMARY KEY,
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		consumed_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS payment_orders (
		id TEXT PRIMARY KEY,
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		amount_cents INTEGER NOT NULL,
		currency TEXT NOT NULL,
		payment_session_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'PENDING',
		gateway_payment_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_orders_account ON payment_orders(account_id)`,
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		expense_total_cents BIGINT NOT NULL DEFAULT 0,
		is_premium BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id BIGSERIAL PRIMARY KEY,
		name TEXT UNIQUE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS expenses (
		id BIGSERIAL PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES accounts(id),
		amount_cents BIGINT NOT NULL,
		description TEXT NOT NULL,
		category_id BIGINT NOT NULL REFERENCES categories(id),
		created_at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_account_active ON expenses(account_id, deleted_at)`,
	`CREATE TABLE IF NOT EXISTS incomes (
		id BIGSERIAL PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES accounts(id),
		amount_cents BIGINT NOT NULL,
		description TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_incomes_account_active ON incomes(account_id, deleted_at)`,
	`CREATE TABLE IF NOT EXISTS password_resets (
		id TEXT PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES accounts(id),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		consumed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS payment_orders (
		id TEXT PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES accounts(id),
		amount_cents BIGINT NOT NULL,
		currency TEXT NOT NULL,
		payment_session_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'PENDING',
		gateway_payment_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_orders_account ON payment_orders(account_id)`,
}

func (db *DB) migrate(ctx context.Context) error {
	migrations := sqliteMigrations
	if db.driver == Postgres {
		migrations = postgresMigrations
	}

	for _, m := range migrations {
		if _, err := db.conn.ExecContext(ctx, m); err != nil {
			return err
		}
	}

	for _, name := range DefaultCategories {
		if _, err := db.exec(ctx,
			"INSERT INTO categories (name) VALUES (?) ON CONFLICT (name) DO NOTHING", name,
		); err != nil {
			return err
		}
	}

	return nil
}
