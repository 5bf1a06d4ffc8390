package storage

import (
	"context"
	"time"

	"expense-ledger/internal/models"
)

const paymentOrderColumns = "id, account_id, amount_cents, currency, payment_session_id, status, gateway_payment_id, created_at, updated_at"

func scanPaymentOrder(row rowScanner) (*models.PaymentOrder, error) {
	var o models.PaymentOrder
	var cents int64
	var status string
	if err := row.Scan(&o.ID, &o.AccountID, &cents, &o.Currency, &o.PaymentSessionID, &status, &o.GatewayPaymentID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	o.Amount = models.FromCents(cents)
	o.Status = models.PaymentStatus(status)
	return &o, nil
}

// CreatePaymentOrder inserts a pending payment order.
func (r runner) CreatePaymentOrder(ctx context.Context, o *models.PaymentOrder) error {
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	if o.Status == "" {
		o.Status = models.PaymentPending
	}
	_, err := r.exec(ctx,
		"INSERT INTO payment_orders ("+paymentOrderColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		o.ID, o.AccountID, models.ToCents(o.Amount), o.Currency, o.PaymentSessionID, string(o.Status), o.GatewayPaymentID, o.CreatedAt, o.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetPaymentOrder retrieves a payment order by ID.
func (r runner) GetPaymentOrder(ctx context.Context, id string) (*models.PaymentOrder, error) {
	return scanPaymentOrder(r.queryRow(ctx, "SELECT "+paymentOrderColumns+" FROM payment_orders WHERE id = ?", id))
}

// ResolvePaymentOrder moves a pending order to a final status. It reports false
// without error when the order was already resolved, so repeated gateway
// notifications apply at most once.
func (r runner) ResolvePaymentOrder(ctx context.Context, id string, status models.PaymentStatus, gatewayPaymentID string) (bool, error) {
	res, err := r.exec(ctx, `
		UPDATE payment_orders SET status = ?, gateway_payment_id = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(status), gatewayPaymentID, time.Now().UTC(), id, string(models.PaymentPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListPaymentOrders returns an account's orders, newest first.
func (r runner) ListPaymentOrders(ctx context.Context, accountID int64) ([]models.PaymentOrder, error) {
	rows, err := r.query(ctx,
		"SELECT "+paymentOrderColumns+" FROM payment_orders WHERE account_id = ? ORDER BY created_at DESC, id DESC",
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]models.PaymentOrder, 0)
	for rows.Next() {
		o, err := scanPaymentOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}
