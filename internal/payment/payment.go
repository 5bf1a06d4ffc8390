// Package payment sells premium status through the Cashfree payment gateway.
//
// An order is created PENDING and resolved to SUCCESS or FAILED at most once,
// either by polling the gateway or by a signed webhook. A successful order
// grants premium in the same unit of work that resolves it.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.jetify.com/typeid/v2"

	"expense-ledger/internal/apperr"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"
)

// Currency of premium orders.
const Currency = "INR"

// OrderIDPrefix is the TypeID prefix of order ids.
const OrderIDPrefix = "order"

// Gateway is the subset of the gateway API the service needs.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	OrderPayments(ctx context.Context, orderID string) ([]Payment, error)
}

// Config configures a Service.
type Config struct {
	Price         decimal.Decimal
	ReturnURL     string
	WebhookSecret string
}

// Service creates premium orders and applies their outcome.
type Service struct {
	db      *storage.DB
	gateway Gateway
	cfg     Config
	logger  *slog.Logger
	newID   func() (string, error)
}

func NewService(db *storage.DB, gateway Gateway, cfg Config, logger *slog.Logger) *Service {
	return &Service{db: db, gateway: gateway, cfg: cfg, logger: logger, newID: newOrderID}
}

func newOrderID() (string, error) {
	tid, err := typeid.Generate(OrderIDPrefix)
	if err != nil {
		return "", err
	}
	return tid.String(), nil
}

// CreateOrder places a premium order for accountID with the gateway and
// stores it as pending.
func (s *Service) CreateOrder(ctx context.Context, accountID int64, phone, returnURL string) (*models.PaymentOrder, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, apperr.Validation("customer_phone is required")
	}

	account, err := s.db.GetAccountByID(ctx, accountID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("account %d not found", accountID)
	}
	if err != nil {
		return nil, err
	}
	if account.IsPremium {
		return nil, apperr.Conflict("account is already premium")
	}

	orderID, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generate order id: %w", err)
	}
	if returnURL == "" {
		returnURL = s.cfg.ReturnURL
	}

	req := OrderRequest{
		OrderID:       orderID,
		OrderAmount:   json.Number(s.cfg.Price.StringFixed(models.MinorUnits)),
		OrderCurrency: Currency,
		CustomerDetails: CustomerDetails{
			CustomerID:    "user_" + strconv.FormatInt(account.ID, 10),
			CustomerPhone: phone,
			CustomerEmail: account.Email,
			CustomerName:  account.Name,
		},
	}
	if returnURL != "" {
		req.OrderMeta = &OrderMeta{ReturnURL: returnURL}
	}

	gw, err := s.gateway.CreateOrder(ctx, req)
	if err != nil {
		s.logger.ErrorContext(ctx, "gateway create order failed", "order_id", orderID, "error", err)
		return nil, apperr.Upstream("Failed to create order", err)
	}

	order := &models.PaymentOrder{
		ID:               orderID,
		AccountID:        account.ID,
		Amount:           s.cfg.Price,
		Currency:         Currency,
		PaymentSessionID: gw.PaymentSessionID,
		Status:           models.PaymentPending,
	}
	if err := s.db.CreatePaymentOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("store order: %w", err)
	}

	s.logger.InfoContext(ctx, "payment order created", "order_id", orderID, "account_id", account.ID)
	return order, nil
}

// RefreshStatus polls the gateway for an order owned by accountID and
// applies the outcome.
func (s *Service) RefreshStatus(ctx context.Context, accountID int64, orderID string) (*models.PaymentOrder, error) {
	order, err := s.ownedOrder(ctx, accountID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.PaymentPending {
		return order, nil
	}

	payments, err := s.gateway.OrderPayments(ctx, orderID)
	if err != nil {
		return nil, apperr.Upstream("Failed to fetch payment status", err)
	}

	status, paymentID := Outcome(payments)
	if status == models.PaymentPending {
		// No decisive attempt yet. An order the gateway closed can no longer be paid.
		gwOrder, err := s.gateway.GetOrder(ctx, orderID)
		if err != nil {
			return nil, apperr.Upstream("Failed to fetch order status", err)
		}
		if !orderClosed(gwOrder.OrderStatus) {
			return order, nil
		}
		status = models.PaymentFailed
	}
	if _, err := s.resolve(ctx, order, status, paymentID); err != nil {
		return nil, err
	}
	return s.db.GetPaymentOrder(ctx, orderID)
}

// Outcome derives an order status from its payment attempts. Any successful
// attempt wins. The order fails only when every attempt has failed.
func Outcome(payments []Payment) (models.PaymentStatus, string) {
	failedID := ""
	failed := 0
	for _, p := range payments {
		switch strings.ToUpper(p.PaymentStatus) {
		case "SUCCESS":
			return models.PaymentSuccess, string(p.CFPaymentID)
		case "FAILED", "USER_DROPPED", "CANCELLED":
			failed++
			failedID = string(p.CFPaymentID)
		}
	}
	if len(payments) > 0 && failed == len(payments) {
		return models.PaymentFailed, failedID
	}
	return models.PaymentPending, ""
}

func orderClosed(status string) bool {
	switch strings.ToUpper(status) {
	case "EXPIRED", "TERMINATED":
		return true
	}
	return false
}

// WebhookEvent is the subset of a gateway notification the service reads.
type WebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Order struct {
			OrderID string `json:"order_id"`
		} `json:"order"`
		Payment struct {
			CFPaymentID   flexString `json:"cf_payment_id"`
			PaymentStatus string     `json:"payment_status"`
		} `json:"payment"`
	} `json:"data"`
}

// HandleWebhook verifies and applies a gateway notification. Notifications
// for orders that are already resolved are accepted and ignored.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, timestamp, signature string) error {
	if !VerifyWebhookSignature(s.cfg.WebhookSecret, timestamp, body, signature) {
		return apperr.Unauthenticated("invalid webhook signature")
	}

	var evt WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return apperr.Validation("invalid webhook payload")
	}

	var status models.PaymentStatus
	switch evt.Type {
	case "PAYMENT_SUCCESS_WEBHOOK":
		status = models.PaymentSuccess
	case "PAYMENT_FAILED_WEBHOOK", "PAYMENT_USER_DROPPED_WEBHOOK":
		status = models.PaymentFailed
	default:
		s.logger.DebugContext(ctx, "ignoring webhook", "type", evt.Type)
		return nil
	}

	order, err := s.db.GetPaymentOrder(ctx, evt.Data.Order.OrderID)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("order %s not found", evt.Data.Order.OrderID)
	}
	if err != nil {
		return err
	}

	changed, err := s.resolve(ctx, order, status, string(evt.Data.Payment.CFPaymentID))
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "webhook applied", "order_id", order.ID, "status", status, "changed", changed)
	return nil
}

// resolve moves order to status and grants premium on success, in one unit of work.
func (s *Service) resolve(ctx context.Context, order *models.PaymentOrder, status models.PaymentStatus, paymentID string) (bool, error) {
	var changed bool
	err := s.db.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		changed, err = tx.ResolvePaymentOrder(ctx, order.ID, status, paymentID)
		if err != nil || !changed {
			return err
		}
		if status == models.PaymentSuccess {
			return tx.SetPremium(ctx, order.AccountID, true)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("resolve order %s: %w", order.ID, err)
	}
	if changed && status == models.PaymentSuccess {
		s.logger.InfoContext(ctx, "premium granted", "account_id", order.AccountID, "order_id", order.ID)
	}
	return changed, nil
}

func (s *Service) ownedOrder(ctx context.Context, accountID int64, orderID string) (*models.PaymentOrder, error) {
	order, err := s.db.GetPaymentOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("order %s not found", orderID)
	}
	if err != nil {
		return nil, err
	}
	if order.AccountID != accountID {
		return nil, apperr.NotFound("order %s not found", orderID)
	}
	return order, nil
}

// ListOrders returns the account's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, accountID int64) ([]models.PaymentOrder, error) {
	return s.db.ListPaymentOrders(ctx, accountID)
}

// PremiumStatus reports whether the account currently holds premium.
func (s *Service) PremiumStatus(ctx context.Context, accountID int64) (bool, error) {
	a, err := s.db.GetAccountByID(ctx, accountID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, apperr.NotFound("account %d not found", accountID)
	}
	if err != nil {
		return false, err
	}
	return a.IsPremium, nil
}
