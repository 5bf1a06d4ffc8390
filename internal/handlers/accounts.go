package handlers

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"expense-ledger/internal/apperr"
	"expense-ledger/internal/auth"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"
)

type signupRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupResponse struct {
	Message string          `json:"message"`
	Token   string          `json:"token"`
	User    *models.Account `json:"user"`
}

// Signup creates an account and returns an access token for it.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	name := strings.TrimSpace(req.Name)
	phone := strings.TrimSpace(req.Phone)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" || phone == "" || email == "" || req.Password == "" {
		h.writeError(w, r, apperr.Validation("All fields are required"))
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		h.writeError(w, r, apperr.Validation("invalid email address"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		h.writeError(w, r, apperr.Validation("%s", err.Error()))
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	account, err := h.db.CreateAccount(r.Context(), name, email, phone, hash)
	if errors.Is(err, storage.ErrDuplicate) {
		h.writeError(w, r, apperr.Conflict("User already exists"))
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	token, err := h.issueToken(account)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "account created", "account_id", account.ID)
	writeJSON(w, http.StatusCreated, signupResponse{Message: "User created successfully", Token: token, User: account})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message   string `json:"message"`
	Token     string `json:"token"`
	UserID    int64  `json:"user_id"`
	Name      string `json:"name"`
	IsPremium bool   `json:"is_premium"`
}

// Login exchanges credentials for an access token.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		h.writeError(w, r, apperr.Validation("Email and password are required"))
		return
	}

	account, err := h.db.GetAccountByEmail(r.Context(), email)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.writeError(w, r, err)
		return
	}
	if err != nil || !auth.CheckPassword(req.Password, account.PasswordHash) {
		h.writeError(w, r, apperr.Unauthenticated("Invalid email or password"))
		return
	}

	token, err := h.issueToken(account)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Message:   "Login successful",
		Token:     token,
		UserID:    account.ID,
		Name:      account.Name,
		IsPremium: account.IsPremium,
	})
}

// Verify returns the account behind the presented token.
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	account, err := h.currentAccount(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "user": account})
}
