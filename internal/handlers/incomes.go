package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"expense-ledger/internal/apperr"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"
)

// ListIncomes returns the caller's active incomes. Premium only.
func (h *Handlers) ListIncomes(w http.ResponseWriter, r *http.Request) {
	account, err := h.requirePremium(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	incomes, err := h.db.ListActiveIncomes(r.Context(), account.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, incomes)
}

type createIncomeRequest struct {
	Amount      amountInput `json:"amount"`
	Description string      `json:"description"`
	Source      string      `json:"source"`
}

// CreateIncome records an income. Incomes do not touch the expense total.
func (h *Handlers) CreateIncome(w http.ResponseWriter, r *http.Request) {
	var req createIncomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	account, err := h.requirePremium(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	amount, err := models.ParseAmount(string(req.Amount))
	if err != nil {
		h.writeError(w, r, apperr.Validation("%s", err.Error()))
		return
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		h.writeError(w, r, apperr.Validation("description is required"))
		return
	}

	in := &models.Income{
		AccountID:   account.ID,
		Amount:      amount,
		Description: description,
		Source:      strings.TrimSpace(req.Source),
	}
	if err := h.db.InsertIncome(r.Context(), in); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Income added successfully", "income": in})
}

// DeleteIncome soft-deletes one of the caller's incomes.
func (h *Handlers) DeleteIncome(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	account, err := h.requirePremium(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	err = h.db.SoftDeleteIncome(r.Context(), account.ID, id, time.Now())
	if errors.Is(err, storage.ErrNotFound) {
		h.writeError(w, r, apperr.NotFound("income not found or already deleted"))
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Income deleted successfully"})
}
