package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"expense-ledger/internal/models"
)

const accountColumns = "id, name, email, phone, password_hash, expense_total_cents, is_premium, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	var totalCents int64
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Phone, &a.PasswordHash, &totalCents, &a.IsPremium, &a.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	a.ExpenseTotal = models.FromCents(totalCents)
	return &a, nil
}

// CreateAccount inserts a new account with a zero expense total.
func (r runner) CreateAccount(ctx context.Context, name, email, phone, passwordHash string) (*models.Account, error) {
	var id int64
	err := r.queryRow(ctx,
		"INSERT INTO accounts (name, email, phone, password_hash, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id",
		name, email, phone, passwordHash, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return r.GetAccountByID(ctx, id)
}

// GetAccountByID retrieves an account by ID.
func (r runner) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	return scanAccount(r.queryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id))
}

// GetAccountByEmail retrieves an account by email.
func (r runner) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(r.queryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE email = ?", email))
}

// UpdatePasswordHash replaces an account's password hash.
func (r runner) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	res, err := r.exec(ctx, "UPDATE accounts SET password_hash = ? WHERE id = ?", passwordHash, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetPremium sets or clears an account's premium flag.
func (r runner) SetPremium(ctx context.Context, id int64, premium bool) error {
	res, err := r.exec(ctx, "UPDATE accounts SET is_premium = ? WHERE id = ?", premium, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MaxExpenseTotalCents bounds an account's cached expense total, far below
// the int64 range so the guarded sum itself never overflows.
const MaxExpenseTotalCents int64 = 100_000_000_000_000_000

// AdjustExpenseTotal atomically adds deltaCents (which may be negative) to the
// account's cached expense total. The arithmetic happens in the storage engine
// so concurrent adjustments never lose an update. An adjustment that would
// exceed MaxExpenseTotalCents changes nothing and returns ErrTotalLimit.
func (r runner) AdjustExpenseTotal(ctx context.Context, id int64, deltaCents int64) error {
	res, err := r.exec(ctx, `
		UPDATE accounts SET expense_total_cents = expense_total_cents + ?
		WHERE id = ? AND expense_total_cents + ? <= ?
	`, deltaCents, id, deltaCents, MaxExpenseTotalCents)
	if err != nil {
		return err
	}
	err = requireRow(res)
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	var exists int
	if err := r.queryRow(ctx, "SELECT 1 FROM accounts WHERE id = ?", id).Scan(&exists); err != nil {
		return notFound(err)
	}
	return ErrTotalLimit
}

// TopAccountsByExpense lists accounts by expense total, highest first.
// Equal totals are ordered by account ID.
func (r runner) TopAccountsByExpense(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	rows, err := r.query(ctx, `
		SELECT id, name, email, expense_total_cents, is_premium
		FROM accounts
		ORDER BY expense_total_cents DESC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.LeaderboardEntry, 0)
	for rows.Next() {
		var e models.LeaderboardEntry
		var cents int64
		if err := rows.Scan(&e.ID, &e.Name, &e.Email, &cents, &e.IsPremium); err != nil {
			return nil, err
		}
		e.ExpenseTotal = models.FromCents(cents)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AccountCount returns the number of accounts in the database.
func (r runner) AccountCount(ctx context.Context) (int, error) {
	var count int
	err := r.queryRow(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count)
	return count, err
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func requireRow(res rowsAffected) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
