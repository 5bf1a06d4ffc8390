package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/ledger"
	"expense-ledger/internal/mailer"
	"expense-ledger/internal/models"
	"expense-ledger/internal/passwordreset"
	"expense-ledger/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (c *captureMailer) Send(_ context.Context, msg mailer.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

type HandlersTestSuite struct {
	suite.Suite
	db         *storage.DB
	h          *Handlers
	tokens     *auth.Issuer
	mail       *captureMailer
	ctx        context.Context
	categoryID int64
}

func (suite *HandlersTestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err)
	suite.db = db
	suite.ctx = context.Background()

	suite.tokens, err = auth.NewIssuer("test-secret", time.Hour)
	require.NoError(suite.T(), err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	suite.mail = &captureMailer{}
	suite.h = NewHandlers(Deps{
		DB:     db,
		Ledger: ledger.NewService(db),
		Resets: passwordreset.NewService(db, suite.mail, "http://localhost:5173/password/resetpassword", time.Hour, logger),
		Tokens: suite.tokens,
		Logger: logger,
	})

	categories, err := db.ListCategories(suite.ctx)
	require.NoError(suite.T(), err)
	suite.categoryID = categories[0].ID
}

func (suite *HandlersTestSuite) TearDownTest() {
	suite.db.Close()
}

type call struct {
	method string
	path   string
	body   any
	token  string
	params map[string]string
}

func (suite *HandlersTestSuite) do(handler http.Handler, c call) *httptest.ResponseRecorder {
	var body io.Reader = http.NoBody
	switch b := c.body.(type) {
	case nil:
	case string:
		body = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(suite.T(), err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(c.method, c.path, body)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.params {
		req.SetPathValue(k, v)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func (suite *HandlersTestSuite) authed(fn http.HandlerFunc) http.Handler {
	return suite.h.AuthMiddleware(fn)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// signup creates an account through the handler and returns its token.
func (suite *HandlersTestSuite) signup(email string) (string, int64) {
	w := suite.do(http.HandlerFunc(suite.h.Signup), call{method: "POST", path: "/signup", body: map[string]string{
		"name": "Test User", "phone": "9999999999", "email": email, "password": "password123",
	}})
	require.Equal(suite.T(), http.StatusCreated, w.Code, w.Body.String())
	resp := decode[signupResponse](suite.T(), w)
	return resp.Token, resp.User.ID
}

func (suite *HandlersTestSuite) TestHealth() {
	suite.signup("health@example.com")
	w := suite.do(http.HandlerFunc(suite.h.Health), call{method: "GET", path: "/health"})
	require.Equal(suite.T(), http.StatusOK, w.Code)
	resp := decode[map[string]any](suite.T(), w)
	assert.Equal(suite.T(), "ok", resp["status"])
	assert.EqualValues(suite.T(), 1, resp["accounts"])
}

func (suite *HandlersTestSuite) TestSignupAndLogin() {
	_, id := suite.signup("New@Example.com")
	assert.NotZero(suite.T(), id)

	w := suite.do(http.HandlerFunc(suite.h.Login), call{method: "POST", path: "/login", body: map[string]string{
		"email": "new@example.com", "password": "password123",
	}})
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())
	resp := decode[loginResponse](suite.T(), w)
	assert.Equal(suite.T(), id, resp.UserID)
	assert.False(suite.T(), resp.IsPremium)

	claims, err := suite.tokens.Parse(resp.Token)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), id, claims.UserID)
}

func (suite *HandlersTestSuite) TestSignupErrors() {
	suite.signup("dup@example.com")

	tests := []struct {
		name string
		body any
		want int
	}{
		{"duplicate email", map[string]string{"name": "A", "phone": "1", "email": "dup@example.com", "password": "password123"}, http.StatusConflict},
		{"missing field", map[string]string{"name": "A", "email": "a@example.com", "password": "password123"}, http.StatusBadRequest},
		{"short password", map[string]string{"name": "A", "phone": "1", "email": "b@example.com", "password": "short"}, http.StatusBadRequest},
		{"bad email", map[string]string{"name": "A", "phone": "1", "email": "not-an-email", "password": "password123"}, http.StatusBadRequest},
		{"bad json", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			w := suite.do(http.HandlerFunc(suite.h.Signup), call{method: "POST", path: "/signup", body: tt.body})
			assert.Equal(suite.T(), tt.want, w.Code, w.Body.String())
		})
	}
}

func (suite *HandlersTestSuite) TestLoginWrongPassword() {
	suite.signup("login@example.com")

	w := suite.do(http.HandlerFunc(suite.h.Login), call{method: "POST", path: "/login", body: map[string]string{
		"email": "login@example.com", "password": "nope-nope",
	}})
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)

	w = suite.do(http.HandlerFunc(suite.h.Login), call{method: "POST", path: "/login", body: map[string]string{
		"email": "ghost@example.com", "password": "password123",
	}})
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)
}

func (suite *HandlersTestSuite) TestAuthMiddleware() {
	handler := suite.authed(suite.h.Verify)

	w := suite.do(handler, call{method: "GET", path: "/verify"})
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)
	errBody := decode[errorResponse](suite.T(), w)
	assert.Equal(suite.T(), "unauthenticated", errBody.Error)

	w = suite.do(handler, call{method: "GET", path: "/verify", token: "garbage"})
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)

	token, _ := suite.signup("verify@example.com")
	w = suite.do(handler, call{method: "GET", path: "/verify", token: token})
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.NotContains(suite.T(), w.Body.String(), "password")
}

func (suite *HandlersTestSuite) TestExpenseLifecycle() {
	token, _ := suite.signup("spender@example.com")

	create := func(amount any, desc string) *httptest.ResponseRecorder {
		return suite.do(suite.authed(suite.h.CreateExpense), call{method: "POST", path: "/expenses", token: token, body: map[string]any{
			"amount": amount, "description": desc, "category_id": suite.categoryID,
		}})
	}

	w := create(100, "lunch")
	require.Equal(suite.T(), http.StatusCreated, w.Code, w.Body.String())
	first := decode[struct {
		Expense models.Expense `json:"expense"`
	}](suite.T(), w)

	w = create("50.25", "taxi")
	require.Equal(suite.T(), http.StatusCreated, w.Code, w.Body.String())

	w = create("abc", "broken")
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)

	w = suite.do(suite.authed(suite.h.ListExpenses), call{method: "GET", path: "/expenses", token: token})
	require.Equal(suite.T(), http.StatusOK, w.Code)
	list := decode[struct {
		Expenses     []json.RawMessage `json:"expenses"`
		TotalExpense string            `json:"total_expense"`
	}](suite.T(), w)
	assert.Len(suite.T(), list.Expenses, 2)
	assert.Equal(suite.T(), "150.25", list.TotalExpense)

	del := suite.authed(suite.h.DeleteExpense)
	idStr := strconv.FormatInt(first.Expense.ID, 10)
	w = suite.do(del, call{method: "DELETE", path: "/expenses/" + idStr, token: token, params: map[string]string{"id": idStr}})
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())

	w = suite.do(del, call{method: "DELETE", path: "/expenses/" + idStr, token: token, params: map[string]string{"id": idStr}})
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)

	w = suite.do(del, call{method: "DELETE", path: "/expenses/x", token: token, params: map[string]string{"id": "x"}})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)

	w = suite.do(suite.authed(suite.h.ListExpenses), call{method: "GET", path: "/expenses", token: token})
	list = decode[struct {
		Expenses     []json.RawMessage `json:"expenses"`
		TotalExpense string            `json:"total_expense"`
	}](suite.T(), w)
	assert.Len(suite.T(), list.Expenses, 1)
	assert.Equal(suite.T(), "50.25", list.TotalExpense)
}

func (suite *HandlersTestSuite) TestReconcileRepairsDrift() {
	token, id := suite.signup("drift@example.com")
	w := suite.do(suite.authed(suite.h.CreateExpense), call{method: "POST", path: "/expenses", token: token, body: map[string]any{
		"amount": "12.34", "description": "snacks", "category_id": suite.categoryID,
	}})
	require.Equal(suite.T(), http.StatusCreated, w.Code)
	require.NoError(suite.T(), suite.db.AdjustExpenseTotal(suite.ctx, id, 500))

	w = suite.do(suite.authed(suite.h.ReconcileTotal), call{method: "POST", path: "/expenses/reconcile", token: token})
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())
	resp := decode[map[string]any](suite.T(), w)
	assert.Equal(suite.T(), true, resp["drifted"])
	assert.Equal(suite.T(), "12.34", resp["total_expense"])
}

func (suite *HandlersTestSuite) TestLeaderboardGating() {
	token, id := suite.signup("board@example.com")
	handler := suite.authed(suite.h.Leaderboard)

	w := suite.do(handler, call{method: "GET", path: "/expenses/leaderboard", token: token})
	assert.Equal(suite.T(), http.StatusForbidden, w.Code)
	assert.Equal(suite.T(), "Premium feature only", decode[errorResponse](suite.T(), w).Message)

	// The stored flag is authoritative, so the old token works after upgrading.
	require.NoError(suite.T(), suite.db.SetPremium(suite.ctx, id, true))
	w = suite.do(handler, call{method: "GET", path: "/expenses/leaderboard", token: token})
	require.Equal(suite.T(), http.StatusOK, w.Code)
	entries := decode[[]models.LeaderboardEntry](suite.T(), w)
	require.Len(suite.T(), entries, 1)
	assert.Equal(suite.T(), id, entries[0].ID)
}

func (suite *HandlersTestSuite) TestCategories() {
	token, _ := suite.signup("cat@example.com")

	w := suite.do(suite.authed(suite.h.CreateCategory), call{method: "POST", path: "/categories", token: token, body: map[string]string{"name": "Travel"}})
	require.Equal(suite.T(), http.StatusCreated, w.Code)

	w = suite.do(suite.authed(suite.h.CreateCategory), call{method: "POST", path: "/categories", token: token, body: map[string]string{"name": "Travel"}})
	assert.Equal(suite.T(), http.StatusConflict, w.Code)

	w = suite.do(http.HandlerFunc(suite.h.ListCategories), call{method: "GET", path: "/categories"})
	require.Equal(suite.T(), http.StatusOK, w.Code)
	categories := decode[[]models.Category](suite.T(), w)
	assert.Len(suite.T(), categories, len(storage.DefaultCategories)+1)
}

func (suite *HandlersTestSuite) TestIncomesArePremiumOnly() {
	token, id := suite.signup("income@example.com")

	w := suite.do(suite.authed(suite.h.ListIncomes), call{method: "GET", path: "/incomes", token: token})
	assert.Equal(suite.T(), http.StatusForbidden, w.Code)

	require.NoError(suite.T(), suite.db.SetPremium(suite.ctx, id, true))
	w = suite.do(suite.authed(suite.h.CreateIncome), call{method: "POST", path: "/incomes", token: token, body: map[string]any{
		"amount": "2500", "description": "Salary", "source": "Employer",
	}})
	require.Equal(suite.T(), http.StatusCreated, w.Code, w.Body.String())

	w = suite.do(suite.authed(suite.h.ListIncomes), call{method: "GET", path: "/incomes", token: token})
	require.Equal(suite.T(), http.StatusOK, w.Code)
	incomes := decode[[]models.Income](suite.T(), w)
	require.Len(suite.T(), incomes, 1)

	account, err := suite.db.GetAccountByID(suite.ctx, id)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), account.ExpenseTotal.IsZero(), "incomes never touch the expense total")
}

func (suite *HandlersTestSuite) TestPasswordResetFlow() {
	suite.signup("forgot@example.com")

	w := suite.do(http.HandlerFunc(suite.h.ForgotPassword), call{method: "POST", path: "/password/forgot", body: map[string]string{"email": "nobody@example.com"}})
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)

	w = suite.do(http.HandlerFunc(suite.h.ForgotPassword), call{method: "POST", path: "/password/forgot", body: map[string]string{"email": "forgot@example.com"}})
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())
	require.Len(suite.T(), suite.mail.sent, 1)

	body := suite.mail.sent[0].Body
	idx := strings.Index(body, "/password/resetpassword/")
	require.GreaterOrEqual(suite.T(), idx, 0)
	id := strings.Fields(body[idx+len("/password/resetpassword/"):])[0]

	reset := http.HandlerFunc(suite.h.ResetPassword)
	w = suite.do(reset, call{method: "POST", path: "/password/reset/" + id, params: map[string]string{"id": id}, body: map[string]string{"newPassword": "brand-new-pass"}})
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())

	w = suite.do(reset, call{method: "POST", path: "/password/reset/" + id, params: map[string]string{"id": id}, body: map[string]string{"new_password": "another-pass"}})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Equal(suite.T(), "invalid_or_expired_request", decode[errorResponse](suite.T(), w).Error)

	w = suite.do(http.HandlerFunc(suite.h.Login), call{method: "POST", path: "/login", body: map[string]string{
		"email": "forgot@example.com", "password": "brand-new-pass",
	}})
	assert.Equal(suite.T(), http.StatusOK, w.Code)
}

func (suite *HandlersTestSuite) TestStatisticsAndReport() {
	token, id := suite.signup("stats@example.com")
	w := suite.do(suite.authed(suite.h.CreateExpense), call{method: "POST", path: "/expenses", token: token, body: map[string]any{
		"amount": 42, "description": "books", "category_id": suite.categoryID,
	}})
	require.Equal(suite.T(), http.StatusCreated, w.Code)

	w = suite.do(suite.authed(suite.h.Statistics), call{method: "GET", path: "/expenses/statistics", token: token})
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())
	stats := decode[map[string]any](suite.T(), w)
	assert.Equal(suite.T(), "42", stats["total"])
	assert.Equal(suite.T(), true, stats["is_current_month"])

	w = suite.do(suite.authed(suite.h.Statistics), call{method: "GET", path: "/expenses/statistics?month=13", token: token})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)

	w = suite.do(suite.authed(suite.h.ReportPDF), call{method: "GET", path: "/expenses/report.pdf", token: token})
	assert.Equal(suite.T(), http.StatusForbidden, w.Code)

	require.NoError(suite.T(), suite.db.SetPremium(suite.ctx, id, true))
	w = suite.do(suite.authed(suite.h.ReportPDF), call{method: "GET", path: "/expenses/report.pdf", token: token})
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), "application/pdf", w.Header().Get("Content-Type"))
	assert.True(suite.T(), bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}

func (suite *HandlersTestSuite) TestPaymentsDisabled() {
	token, _ := suite.signup("pay@example.com")
	w := suite.do(suite.authed(suite.h.CreateOrder), call{method: "POST", path: "/payment/create-order", token: token, body: map[string]string{}})
	assert.Equal(suite.T(), http.StatusServiceUnavailable, w.Code)

	w = suite.do(suite.authed(suite.h.PremiumStatus), call{method: "GET", path: "/payment/premium-status", token: token})
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), false, decode[map[string]any](suite.T(), w)["is_premium"])
}

func (suite *HandlersTestSuite) TestRefreshTokenCarriesPremium() {
	token, id := suite.signup("refresh@example.com")
	require.NoError(suite.T(), suite.db.SetPremium(suite.ctx, id, true))

	w := suite.do(suite.authed(suite.h.RefreshToken), call{method: "POST", path: "/payment/refresh-token", token: token})
	require.Equal(suite.T(), http.StatusOK, w.Code)
	resp := decode[map[string]any](suite.T(), w)

	claims, err := suite.tokens.Parse(resp["token"].(string))
	require.NoError(suite.T(), err)
	assert.True(suite.T(), claims.IsPremium)
}

func TestHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}

func TestAmountInput(t *testing.T) {
	var v struct {
		Amount amountInput `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"amount": 12.5}`), &v))
	assert.Equal(t, amountInput("12.5"), v.Amount)
	require.NoError(t, json.Unmarshal([]byte(`{"amount": "7.25"}`), &v))
	assert.Equal(t, amountInput("7.25"), v.Amount)
	assert.Error(t, json.Unmarshal([]byte(`{"amount": true}`), &v))
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(60, 2, nil)
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"), "burst exhausted")
	assert.True(t, l.Allow("5.6.7.8"), "clients are limited independently")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("1.2.3.4"), "one token refills per second at 60/min")
}

func TestRateLimiterMiddleware(t *testing.T) {
	l := NewRateLimiter(1, 1, nil)
	handler := l.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("POST", "/login", http.NoBody)
	req.RemoteAddr = "10.0.0.1:5555"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimiterIgnoresSpoofedForwardedFor(t *testing.T) {
	l := NewRateLimiter(1, 1, NewIPResolver(nil))
	handler := l.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/login", http.NoBody)
		req.RemoteAddr = "192.0.2.50:5555"
		req.Header.Set("X-Forwarded-For", "198.51.100."+strconv.Itoa(i))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", http.NoBody)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("X-Real-IP", "198.51.100.2")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "192.0.2.1", ClientIP(req), "headers are ignored without a resolver")
}

func TestIPResolver(t *testing.T) {
	ips := NewIPResolver([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")})

	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"untrusted peer keeps its address", "192.0.2.1:1234", "203.0.113.9", "198.51.100.2", "192.0.2.1"},
		{"trusted peer forwards client", "10.0.0.5:80", "203.0.113.9", "", "203.0.113.9"},
		{"spoofed leftmost hop is skipped", "10.0.0.5:80", "1.1.1.1, 203.0.113.9, 10.0.0.7", "", "203.0.113.9"},
		{"real ip from trusted peer", "10.0.0.5:80", "", "198.51.100.2", "198.51.100.2"},
		{"garbage hop falls back to peer", "10.0.0.5:80", "not-an-ip", "", "10.0.0.5"},
		{"no headers", "10.0.0.5:80", "", "", "10.0.0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", http.NoBody)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, ips.ClientIP(req))
		})
	}
}

func TestRecover(t *testing.T) {
	handler := Recover(slog.New(slog.NewTextHandler(io.Discard, nil)), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", http.NoBody))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
