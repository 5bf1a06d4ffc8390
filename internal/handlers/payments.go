package handlers

import (
	"io"
	"net/http"

	"expense-ledger/internal/apperr"
	"expense-ledger/internal/models"
)

func (h *Handlers) paymentsEnabled(w http.ResponseWriter) bool {
	if h.payments == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "unavailable", Message: "Payments are not configured"})
		return false
	}
	return true
}

type createOrderResponse struct {
	OrderID          string `json:"order_id"`
	PaymentSessionID string `json:"payment_session_id"`
	OrderAmount      string `json:"order_amount"`
	OrderCurrency    string `json:"order_currency"`
}

// CreateOrder starts a premium purchase.
func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	if !h.paymentsEnabled(w) {
		return
	}
	var req struct {
		CustomerPhone string `json:"customer_phone"`
		ReturnURL     string `json:"return_url"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	account, err := h.currentAccount(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	phone := req.CustomerPhone
	if phone == "" {
		phone = account.Phone
	}
	order, err := h.payments.CreateOrder(r.Context(), account.ID, phone, req.ReturnURL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createOrderResponse{
		OrderID:          order.ID,
		PaymentSessionID: order.PaymentSessionID,
		OrderAmount:      order.Amount.StringFixed(models.MinorUnits),
		OrderCurrency:    order.Currency,
	})
}

type paymentStatusResponse struct {
	Order     *models.PaymentOrder `json:"order"`
	IsPremium bool                 `json:"is_premium"`
	Token     string               `json:"token,omitempty"`
}

// PaymentStatus polls the gateway for an order and returns a fresh token
// once premium has been granted.
func (h *Handlers) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	if !h.paymentsEnabled(w) {
		return
	}
	id, err := h.currentAccountID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.payments.RefreshStatus(r.Context(), id, r.PathValue("orderId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	account, err := h.currentAccount(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := paymentStatusResponse{Order: order, IsPremium: account.IsPremium}
	if order.Status == models.PaymentSuccess {
		if resp.Token, err = h.issueToken(account); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// PaymentWebhook applies a signed gateway notification.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.paymentsEnabled(w) {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, apperr.Validation("unreadable body"))
		return
	}

	err = h.payments.HandleWebhook(r.Context(), body, r.Header.Get("x-webhook-timestamp"), r.Header.Get("x-webhook-signature"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PremiumStatus reports the caller's premium flag as stored.
func (h *Handlers) PremiumStatus(w http.ResponseWriter, r *http.Request) {
	account, err := h.currentAccount(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": account.ID, "is_premium": account.IsPremium})
}

// RefreshToken reissues the caller's token with current account data.
func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	account, err := h.currentAccount(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	token, err := h.issueToken(account)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "is_premium": account.IsPremium})
}

// ListOrders returns the caller's payment orders.
func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	if !h.paymentsEnabled(w) {
		return
	}
	id, err := h.currentAccountID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	orders, err := h.payments.ListOrders(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}
