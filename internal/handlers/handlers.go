package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"expense-ledger/internal/apperr"
	"expense-ledger/internal/auth"
	"expense-ledger/internal/ledger"
	"expense-ledger/internal/models"
	"expense-ledger/internal/passwordreset"
	"expense-ledger/internal/payment"
	"expense-ledger/internal/storage"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Deps are the collaborators used by the HTTP handlers. Payments may be nil
// when no gateway is configured; the payment routes then answer 503.
type Deps struct {
	DB       *storage.DB
	Ledger   *ledger.Service
	Resets   *passwordreset.Service
	Payments *payment.Service
	Tokens   *auth.Issuer
	Logger   *slog.Logger
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db       *storage.DB
	ledger   *ledger.Service
	resets   *passwordreset.Service
	payments *payment.Service
	tokens   *auth.Issuer
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(d Deps) *Handlers {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		db:       d.DB,
		ledger:   d.Ledger,
		resets:   d.Resets,
		payments: d.Payments,
		tokens:   d.Tokens,
		logger:   logger,
	}
}

// AuthMiddleware wraps handlers to require a valid bearer token.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			h.writeError(w, r, apperr.Unauthenticated("missing auth token"))
			return
		}

		claims, err := h.tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			h.writeError(w, r, apperr.Unauthenticated("invalid token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}

func (h *Handlers) currentAccountID(r *http.Request) (int64, error) {
	id, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		return 0, apperr.Unauthenticated(err.Error())
	}
	return id, nil
}

// currentAccount loads the authenticated account. Premium status is always
// read from storage, never trusted from the token.
func (h *Handlers) currentAccount(r *http.Request) (*models.Account, error) {
	id, err := h.currentAccountID(r)
	if err != nil {
		return nil, err
	}
	a, err := h.db.GetAccountByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.Unauthenticated("account no longer exists")
	}
	return a, err
}

func (h *Handlers) requirePremium(r *http.Request) (*models.Account, error) {
	a, err := h.currentAccount(r)
	if err != nil {
		return nil, err
	}
	if !a.IsPremium {
		return nil, apperr.Authorization("Premium feature only")
	}
	return a, nil
}

func (h *Handlers) issueToken(a *models.Account) (string, error) {
	return h.tokens.Issue(a.ID, a.Name, a.IsPremium)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// writeError writes err as a JSON error body with the matching status code.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, errorResponse{Error: string(apperr.KindOf(err)), Message: apperr.Message(err)})
}

// decodeJSON parses the request body into v, rejecting unknown shapes as validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("invalid JSON body")
	}
	return nil
}

// pathID parses a positive integer path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

// amountInput accepts an amount as a JSON number or a JSON string and keeps
// its literal text for decimal parsing.
type amountInput string

func (a *amountInput) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amountInput(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount must be a number or string")
	}
	*a = amountInput(n)
	return nil
}

// Health reports whether the database is reachable and migrated.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	accounts, err := h.db.AccountCount(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "accounts": accounts})
}
