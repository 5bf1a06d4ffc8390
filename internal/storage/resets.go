package storage

import (
	"context"
	"time"

	"expense-ledger/internal/models"
)

// CreatePasswordReset inserts an active reset request.
func (r runner) CreatePasswordReset(ctx context.Context, id string, accountID int64, at time.Time) (*models.PasswordResetRequest, error) {
	req := &models.PasswordResetRequest{ID: id, AccountID: accountID, IsActive: true, CreatedAt: at.UTC()}
	_, err := r.exec(ctx,
		"INSERT INTO password_resets (id, account_id, is_active, created_at) VALUES (?, ?, ?, ?)",
		req.ID, req.AccountID, true, req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// GetPasswordReset retrieves a reset request by ID.
func (r runner) GetPasswordReset(ctx context.Context, id string) (*models.PasswordResetRequest, error) {
	var req models.PasswordResetRequest
	err := r.queryRow(ctx,
		"SELECT id, account_id, is_active, created_at, consumed_at FROM password_resets WHERE id = ?", id,
	).Scan(&req.ID, &req.AccountID, &req.IsActive, &req.CreatedAt, &req.ConsumedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

// ConsumePasswordReset flips an active request to consumed and returns it as it
// was before the update. ErrNotFound means the request is unknown or already used.
// Run it inside a transaction so the read and the state change form one unit.
func (r runner) ConsumePasswordReset(ctx context.Context, id string, at time.Time) (*models.PasswordResetRequest, error) {
	req, err := r.GetPasswordReset(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := r.exec(ctx,
		"UPDATE password_resets SET is_active = ?, consumed_at = ? WHERE id = ? AND is_active = ?",
		false, at.UTC(), id, true,
	)
	if err != nil {
		return nil, err
	}
	if err := requireRow(res); err != nil {
		return nil, err
	}
	return req, nil
}
