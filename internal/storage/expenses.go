package storage

import (
	"context"
	"time"

	"expense-ledger/internal/models"
)

// CreateCategory inserts a new category.
func (r runner) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	var c models.Category
	err := r.queryRow(ctx, "INSERT INTO categories (name) VALUES (?) RETURNING id, name", name).Scan(&c.ID, &c.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return &c, nil
}

// GetCategory retrieves a category by ID.
func (r runner) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	var c models.Category
	if err := r.queryRow(ctx, "SELECT id, name FROM categories WHERE id = ?", id).Scan(&c.ID, &c.Name); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// ListCategories returns all categories ordered by name.
func (r runner) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := r.query(ctx, "SELECT id, name FROM categories ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]models.Category, 0)
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// InsertExpense inserts an active expense and fills in its ID and CreatedAt.
func (r runner) InsertExpense(ctx context.Context, e *models.Expense) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.Lifecycle = models.Active()
	return r.queryRow(ctx, `
		INSERT INTO expenses (account_id, amount_cents, description, category_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, e.AccountID, models.ToCents(e.Amount), e.Description, e.CategoryID, e.CreatedAt).Scan(&e.ID)
}

// SoftDeleteExpense marks an active expense owned by accountID as deleted and
// returns its amount in minor units. ErrNotFound covers missing, foreign-owned
// and already deleted expenses.
func (r runner) SoftDeleteExpense(ctx context.Context, accountID, id int64, at time.Time) (int64, error) {
	var cents int64
	err := r.queryRow(ctx, `
		UPDATE expenses SET deleted_at = ?
		WHERE id = ? AND account_id = ? AND deleted_at IS NULL
		RETURNING amount_cents
	`, at.UTC(), id, accountID).Scan(&cents)
	if err != nil {
		return 0, notFound(err)
	}
	return cents, nil
}

const expenseSelect = `
	SELECT e.id, e.account_id, e.amount_cents, e.description, e.category_id, c.name, e.created_at, e.deleted_at
	FROM expenses e
	JOIN categories c ON c.id = e.category_id
`

func scanExpenses(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]models.Expense, error) {
	expenses := make([]models.Expense, 0)
	for rows.Next() {
		var e models.Expense
		var cents int64
		var deletedAt *time.Time
		if err := rows.Scan(&e.ID, &e.AccountID, &cents, &e.Description, &e.CategoryID, &e.CategoryName, &e.CreatedAt, &deletedAt); err != nil {
			return nil, err
		}
		e.Amount = models.FromCents(cents)
		e.Lifecycle = models.LifecycleFromNull(deletedAt)
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// ListActiveExpenses retrieves an account's active expenses, newest first.
func (r runner) ListActiveExpenses(ctx context.Context, accountID int64) ([]models.Expense, error) {
	rows, err := r.query(ctx,
		expenseSelect+"WHERE e.account_id = ? AND e.deleted_at IS NULL ORDER BY e.created_at DESC, e.id DESC",
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExpenses(rows)
}

// ListActiveExpensesBetween retrieves active expenses created in [from, to), oldest first.
func (r runner) ListActiveExpensesBetween(ctx context.Context, accountID int64, from, to time.Time) ([]models.Expense, error) {
	rows, err := r.query(ctx,
		expenseSelect+"WHERE e.account_id = ? AND e.deleted_at IS NULL AND e.created_at >= ? AND e.created_at < ? ORDER BY e.created_at ASC, e.id ASC",
		accountID, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExpenses(rows)
}

// SumActiveExpenses recomputes an account's expense total from its active rows.
func (r runner) SumActiveExpenses(ctx context.Context, accountID int64) (int64, error) {
	var cents int64
	err := r.queryRow(ctx,
		"SELECT CAST(COALESCE(SUM(amount_cents), 0) AS BIGINT) FROM expenses WHERE account_id = ? AND deleted_at IS NULL",
		accountID,
	).Scan(&cents)
	return cents, err
}

// InsertIncome inserts an active income record and fills in its ID and CreatedAt.
func (r runner) InsertIncome(ctx context.Context, in *models.Income) error {
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	in.Lifecycle = models.Active()
	return r.queryRow(ctx, `
		INSERT INTO incomes (account_id, amount_cents, description, source, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, in.AccountID, models.ToCents(in.Amount), in.Description, in.Source, in.CreatedAt).Scan(&in.ID)
}

// SoftDeleteIncome marks an active income owned by accountID as deleted.
func (r runner) SoftDeleteIncome(ctx context.Context, accountID, id int64, at time.Time) error {
	res, err := r.exec(ctx,
		"UPDATE incomes SET deleted_at = ? WHERE id = ? AND account_id = ? AND deleted_at IS NULL",
		at.UTC(), id, accountID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListActiveIncomes retrieves an account's active incomes, newest first.
func (r runner) ListActiveIncomes(ctx context.Context, accountID int64) ([]models.Income, error) {
	rows, err := r.query(ctx, `
		SELECT id, account_id, amount_cents, description, source, created_at
		FROM incomes
		WHERE account_id = ? AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	incomes := make([]models.Income, 0)
	for rows.Next() {
		var in models.Income
		var cents int64
		if err := rows.Scan(&in.ID, &in.AccountID, &cents, &in.Description, &in.Source, &in.CreatedAt); err != nil {
			return nil, err
		}
		in.Amount = models.FromCents(cents)
		in.Lifecycle = models.Active()
		incomes = append(incomes, in)
	}
	return incomes, rows.Err()
}
