package passwordreset

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"expense-ledger/internal/apperr"
	"expense-ledger/internal/auth"
	"expense-ledger/internal/mailer"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type ResetTestSuite struct {
	suite.Suite
	db      *storage.DB
	mail    *fakeMailer
	svc     *Service
	ctx     context.Context
	account *models.Account
	clock   time.Time
}

func (suite *ResetTestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err)
	suite.db = db
	suite.ctx = context.Background()
	suite.mail = &fakeMailer{}
	suite.clock = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	suite.svc = NewService(db, suite.mail, "https://app.example.com/password/reset/", time.Hour, logger)
	suite.svc.now = func() time.Time { return suite.clock }
	suite.svc.newID = func() string { return "req-123" }

	hash, err := auth.HashPassword("old-password")
	require.NoError(suite.T(), err)
	suite.account, err = db.CreateAccount(suite.ctx, "Resetter", "reset@example.com", "", hash)
	require.NoError(suite.T(), err)
}

func (suite *ResetTestSuite) TearDownTest() {
	suite.db.Close()
}

func (suite *ResetTestSuite) passwordMatches(password string) bool {
	a, err := suite.db.GetAccountByID(suite.ctx, suite.account.ID)
	require.NoError(suite.T(), err)
	return auth.CheckPassword(password, a.PasswordHash)
}

func (suite *ResetTestSuite) TestRequestUnknownEmail() {
	err := suite.svc.RequestPasswordReset(suite.ctx, "nobody@example.com")
	assert.ErrorIs(suite.T(), err, apperr.ErrNotFound)
	assert.Empty(suite.T(), suite.mail.sent)
}

func (suite *ResetTestSuite) TestRequestCreatesOneActiveRequest() {
	require.NoError(suite.T(), suite.svc.RequestPasswordReset(suite.ctx, " Reset@Example.com "))

	req, err := suite.db.GetPasswordReset(suite.ctx, "req-123")
	require.NoError(suite.T(), err)
	assert.True(suite.T(), req.IsActive)
	assert.Equal(suite.T(), suite.account.ID, req.AccountID)

	require.Len(suite.T(), suite.mail.sent, 1)
	assert.Equal(suite.T(), "reset@example.com", suite.mail.sent[0].To)
	assert.Contains(suite.T(), suite.mail.sent[0].Body, "https://app.example.com/password/reset/req-123")
}

func (suite *ResetTestSuite) TestRequestMailFailure() {
	suite.mail.err = errors.New("smtp down")
	err := suite.svc.RequestPasswordReset(suite.ctx, "reset@example.com")
	assert.ErrorContains(suite.T(), err, "smtp down")
}

func (suite *ResetTestSuite) TestConsumeOnce() {
	require.NoError(suite.T(), suite.svc.RequestPasswordReset(suite.ctx, "reset@example.com"))

	require.NoError(suite.T(), suite.svc.ConsumePasswordReset(suite.ctx, "req-123", "new-password"))
	assert.True(suite.T(), suite.passwordMatches("new-password"))

	req, err := suite.db.GetPasswordReset(suite.ctx, "req-123")
	require.NoError(suite.T(), err)
	assert.False(suite.T(), req.IsActive)

	err = suite.svc.ConsumePasswordReset(suite.ctx, "req-123", "another-password")
	assert.ErrorIs(suite.T(), err, apperr.ErrInvalidOrExpired)
	assert.True(suite.T(), suite.passwordMatches("new-password"), "second consume must not change the password")
}

func (suite *ResetTestSuite) TestConsumeUnknown() {
	err := suite.svc.ConsumePasswordReset(suite.ctx, "no-such-request", "new-password")
	assert.ErrorIs(suite.T(), err, apperr.ErrInvalidOrExpired)
}

func (suite *ResetTestSuite) TestConsumeShortPassword() {
	require.NoError(suite.T(), suite.svc.RequestPasswordReset(suite.ctx, "reset@example.com"))
	err := suite.svc.ConsumePasswordReset(suite.ctx, "req-123", "short")
	assert.ErrorIs(suite.T(), err, apperr.ErrValidation)

	req, err := suite.db.GetPasswordReset(suite.ctx, "req-123")
	require.NoError(suite.T(), err)
	assert.True(suite.T(), req.IsActive, "validation failures leave the request active")
}

func (suite *ResetTestSuite) TestConsumeExpired() {
	require.NoError(suite.T(), suite.svc.RequestPasswordReset(suite.ctx, "reset@example.com"))
	suite.clock = suite.clock.Add(time.Hour + time.Minute)

	err := suite.svc.ConsumePasswordReset(suite.ctx, "req-123", "new-password")
	assert.ErrorIs(suite.T(), err, apperr.ErrInvalidOrExpired)
	assert.True(suite.T(), suite.passwordMatches("old-password"))
}

func (suite *ResetTestSuite) TestConsumeConcurrentOnlyOnce() {
	require.NoError(suite.T(), suite.svc.RequestPasswordReset(suite.ctx, "reset@example.com"))

	const workers = 5
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- suite.svc.ConsumePasswordReset(suite.ctx, "req-123", "new-password")
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(suite.T(), err, apperr.ErrInvalidOrExpired)
	}
	assert.Equal(suite.T(), 1, ok)
}

func TestResetTestSuite(t *testing.T) {
	suite.Run(t, new(ResetTestSuite))
}

func TestResetURL(t *testing.T) {
	svc := NewService(nil, nil, "http://localhost:5173/password/resetpassword", 0, slog.Default())
	assert.Equal(t, "http://localhost:5173/password/resetpassword/abc", svc.ResetURL("abc"))
	assert.Equal(t, DefaultTTL, svc.ttl)
	assert.Len(t, svc.newID(), 36)
}
