package handlers

import (
	"errors"
	"net/http"
	"strings"

	"expense-ledger/internal/apperr"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"
)

// ListCategories returns every category.
func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.db.ListCategories(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// CreateCategory adds a category.
func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		h.writeError(w, r, apperr.Validation("Category name is required"))
		return
	}

	c, err := h.db.CreateCategory(r.Context(), name)
	if errors.Is(err, storage.ErrDuplicate) {
		h.writeError(w, r, apperr.Conflict("Category %q already exists", name))
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

type expenseListResponse struct {
	Expenses     []models.Expense `json:"expenses"`
	TotalExpense string           `json:"total_expense"`
}

// ListExpenses returns the caller's active expenses and cached total.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	id, err := h.currentAccountID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	account, expenses, err := h.ledger.Statement(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expenseListResponse{
		Expenses:     expenses,
		TotalExpense: account.ExpenseTotal.StringFixed(models.MinorUnits),
	})
}

type createExpenseRequest struct {
	Amount      amountInput `json:"amount"`
	Description string      `json:"description"`
	CategoryID  int64       `json:"category_id"`
}

// CreateExpense records an expense for the caller.
func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	account, err := h.currentAccount(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	e, err := h.ledger.AddExpense(r.Context(), account.ID, string(req.Amount), req.Description, req.CategoryID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Expense added successfully", "expense": e})
}

// DeleteExpense soft-deletes one of the caller's expenses.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	account, err := h.currentAccount(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.ledger.DeleteExpense(r.Context(), account.ID, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Expense deleted successfully"})
}

// Leaderboard lists the top spenders. Premium only.
func (h *Handlers) Leaderboard(w http.ResponseWriter, r *http.Request) {
	account, err := h.currentAccount(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entries, err := h.ledger.Leaderboard(r.Context(), account.IsPremium)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ReconcileTotal recomputes the caller's cached total from its active expenses.
func (h *Handlers) ReconcileTotal(w http.ResponseWriter, r *http.Request) {
	id, err := h.currentAccountID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	drifted, err := h.ledger.Reconcile(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if drifted {
		h.logger.WarnContext(r.Context(), "expense total drifted and was repaired", "account_id", id)
	}

	account, err := h.ledger.Account(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"drifted":       drifted,
		"total_expense": account.ExpenseTotal.StringFixed(models.MinorUnits),
	})
}
