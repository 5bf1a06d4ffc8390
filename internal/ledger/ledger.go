// Package ledger keeps each account's cached expense total equal to the sum
// of its active expenses.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"expense-ledger/internal/apperr"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"
)

// LeaderboardSize is the maximum number of entries returned by Leaderboard.
const LeaderboardSize = 50

// Service applies expense mutations and the matching total adjustment as one
// unit of work.
type Service struct {
	db  *storage.DB
	now func() time.Time
}

// NewService creates a ledger service backed by db.
func NewService(db *storage.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// AddExpense records a new expense for ownerID and adds its amount to the
// owner's total. amount is the raw user input.
func (s *Service) AddExpense(ctx context.Context, ownerID int64, amount, description string, categoryID int64) (*models.Expense, error) {
	value, err := models.ParseAmount(amount)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, apperr.Validation("description is required")
	}
	if categoryID <= 0 {
		return nil, apperr.Validation("category_id is required")
	}

	e := &models.Expense{
		AccountID:   ownerID,
		Amount:      value,
		Description: description,
		CategoryID:  categoryID,
		CreatedAt:   s.now().UTC(),
	}

	err = s.db.WithTx(ctx, func(tx *storage.Tx) error {
		cat, err := tx.GetCategory(ctx, categoryID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.Validation("unknown category %d", categoryID)
		}
		if err != nil {
			return err
		}
		e.CategoryName = cat.Name

		err = tx.AdjustExpenseTotal(ctx, ownerID, models.ToCents(value))
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("account %d not found", ownerID)
		}
		if errors.Is(err, storage.ErrTotalLimit) {
			return apperr.Validation("expense total would exceed %s", models.FromCents(storage.MaxExpenseTotalCents))
		}
		if err != nil {
			return err
		}
		return tx.InsertExpense(ctx, e)
	})
	if err != nil {
		return nil, apperr.LedgerUpdate(err)
	}
	return e, nil
}

// DeleteExpense soft-deletes an active expense owned by ownerID and subtracts
// its amount from the owner's total. Deleting the same expense twice fails
// with a not-found error the second time and changes nothing.
func (s *Service) DeleteExpense(ctx context.Context, ownerID, expenseID int64) error {
	err := s.db.WithTx(ctx, func(tx *storage.Tx) error {
		cents, err := tx.SoftDeleteExpense(ctx, ownerID, expenseID, s.now())
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("expense not found or already deleted")
		}
		if err != nil {
			return err
		}

		err = tx.AdjustExpenseTotal(ctx, ownerID, -cents)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("account %d not found", ownerID)
		}
		return err
	})
	return apperr.LedgerUpdate(err)
}

// ListExpenses returns the owner's active expenses, newest first.
func (s *Service) ListExpenses(ctx context.Context, ownerID int64) ([]models.Expense, error) {
	_, expenses, err := s.Statement(ctx, ownerID)
	return expenses, err
}

// Statement returns the owner's account and active expenses read from one
// snapshot, so the cached total always equals the sum of the listed amounts.
func (s *Service) Statement(ctx context.Context, ownerID int64) (*models.Account, []models.Expense, error) {
	var (
		account  *models.Account
		expenses []models.Expense
	)
	err := s.db.WithReadTx(ctx, func(tx *storage.Tx) error {
		var err error
		account, err = tx.GetAccountByID(ctx, ownerID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("account %d not found", ownerID)
		}
		if err != nil {
			return err
		}
		expenses, err = tx.ListActiveExpenses(ctx, ownerID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return account, expenses, nil
}

// Account returns the owner's account, including its cached expense total.
func (s *Service) Account(ctx context.Context, ownerID int64) (*models.Account, error) {
	a, err := s.db.GetAccountByID(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("account %d not found", ownerID)
	}
	return a, err
}

// Leaderboard returns the accounts with the highest expense totals. Callers
// without premium status are refused.
func (s *Service) Leaderboard(ctx context.Context, callerIsPremium bool) ([]models.LeaderboardEntry, error) {
	if !callerIsPremium {
		return nil, apperr.Authorization("Premium feature only")
	}
	return s.db.TopAccountsByExpense(ctx, LeaderboardSize)
}

// Reconcile recomputes the owner's total from its active expenses and
// reports whether the cached value drifted.
func (s *Service) Reconcile(ctx context.Context, ownerID int64) (bool, error) {
	var drifted bool
	err := s.db.WithTx(ctx, func(tx *storage.Tx) error {
		a, err := tx.GetAccountByID(ctx, ownerID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("account %d not found", ownerID)
		}
		if err != nil {
			return err
		}
		sum, err := tx.SumActiveExpenses(ctx, ownerID)
		if err != nil {
			return err
		}
		cached := models.ToCents(a.ExpenseTotal)
		if cached == sum {
			return nil
		}
		drifted = true
		return tx.AdjustExpenseTotal(ctx, ownerID, sum-cached)
	})
	if err != nil {
		return false, apperr.LedgerUpdate(err)
	}
	return drifted, nil
}
