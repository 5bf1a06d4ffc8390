// Package passwordreset issues single-use password reset links and redeems them.
//
// A request moves from active to consumed exactly once. Requests older than
// the configured TTL are treated as expired and can no longer be redeemed.
package passwordreset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"expense-ledger/internal/apperr"
	"expense-ledger/internal/auth"
	"expense-ledger/internal/mailer"
	"expense-ledger/internal/storage"
)

// DefaultTTL is how long a reset link stays redeemable.
const DefaultTTL = time.Hour

var errExpired = errors.New("reset request expired")

// Service manages password reset requests.
type Service struct {
	db      *storage.DB
	mail    mailer.Mailer
	baseURL string
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewService creates a Service. Reset links are built as baseURL + "/" + id.
func NewService(db *storage.DB, mail mailer.Mailer, baseURL string, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		db:      db,
		mail:    mail,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// ResetURL returns the link embedded in the reset email for id.
func (s *Service) ResetURL(id string) string {
	return s.baseURL + "/" + id
}

// RequestPasswordReset creates an active reset request for the account with
// email and mails it a reset link.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperr.Validation("email is required")
	}

	account, err := s.db.GetAccountByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("User not found")
	}
	if err != nil {
		return fmt.Errorf("lookup account: %w", err)
	}

	req, err := s.db.CreatePasswordReset(ctx, s.newID(), account.ID, s.now())
	if err != nil {
		return fmt.Errorf("create reset request: %w", err)
	}

	msg := mailer.Message{
		To:      account.Email,
		Subject: "Password Reset Link",
		Body:    fmt.Sprintf("Click this link to reset your password: %s\n\nThe link expires in %s.", s.ResetURL(req.ID), s.ttl),
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "failed to send reset email", "account_id", account.ID, "error", err)
		return fmt.Errorf("send reset email: %w", err)
	}

	s.logger.InfoContext(ctx, "password reset requested", "account_id", account.ID)
	return nil
}

// ConsumePasswordReset replaces the password of the account that owns an
// active request and marks the request consumed. Unknown, consumed and expired
// requests all fail with an invalid-or-expired error.
func (s *Service) ConsumePasswordReset(ctx context.Context, requestID, newPassword string) error {
	if len(newPassword) < auth.MinPasswordLength {
		return apperr.Validation("%s", auth.ErrPasswordTooShort.Error())
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	err = s.db.WithTx(ctx, func(tx *storage.Tx) error {
		req, err := tx.ConsumePasswordReset(ctx, requestID, now)
		if err != nil {
			return err
		}
		if now.Sub(req.CreatedAt) > s.ttl {
			return errExpired
		}
		return tx.UpdatePasswordHash(ctx, req.AccountID, hash)
	})
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "password reset completed", "request_id", requestID)
		return nil
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, errExpired):
		return apperr.InvalidOrExpired("Invalid or expired reset link")
	default:
		return fmt.Errorf("consume reset request: %w", err)
	}
}
