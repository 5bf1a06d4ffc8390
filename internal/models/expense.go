package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// LifecycleState is the soft-delete state of a record.
type LifecycleState string

const (
	StateActive  LifecycleState = "active"
	StateDeleted LifecycleState = "deleted"
)

// Lifecycle tracks whether a record is active or was soft-deleted at a point in time.
// The zero value is Active.
type Lifecycle struct {
	deletedAt time.Time
}

// Active returns the lifecycle of a live record.
func Active() Lifecycle { return Lifecycle{} }

// Deleted returns the lifecycle of a record soft-deleted at t.
func Deleted(at time.Time) Lifecycle { return Lifecycle{deletedAt: at.UTC()} }

// LifecycleFromNull builds a Lifecycle from a nullable deleted_at column.
func LifecycleFromNull(deletedAt *time.Time) Lifecycle {
	if deletedAt == nil {
		return Active()
	}
	return Deleted(*deletedAt)
}

func (l Lifecycle) State() LifecycleState {
	if l.deletedAt.IsZero() {
		return StateActive
	}
	return StateDeleted
}

func (l Lifecycle) IsActive() bool { return l.deletedAt.IsZero() }

// DeletedAt returns the deletion time and true if the record was deleted.
func (l Lifecycle) DeletedAt() (time.Time, bool) {
	return l.deletedAt, !l.deletedAt.IsZero()
}

func (l Lifecycle) MarshalJSON() ([]byte, error) {
	out := struct {
		State     LifecycleState `json:"state"`
		DeletedAt *time.Time     `json:"deleted_at,omitempty"`
	}{State: l.State()}
	if at, ok := l.DeletedAt(); ok {
		out.DeletedAt = &at
	}
	return json.Marshal(out)
}

// Account represents a user account and its cached expense total.
type Account struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone,omitempty"`
	PasswordHash string          `json:"-"`
	ExpenseTotal decimal.Decimal `json:"total_expense"`
	IsPremium    bool            `json:"is_premium"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Category is reference data attached to expenses.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Expense represents a financial expense record.
type Expense struct {
	ID           int64           `json:"id"`
	AccountID    int64           `json:"user_id"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	CategoryID   int64           `json:"category_id"`
	CategoryName string          `json:"category_name,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	Lifecycle    Lifecycle       `json:"lifecycle"`
}

// Income is a premium-only record of money received. It does not affect the expense total.
type Income struct {
	ID          int64           `json:"id"`
	AccountID   int64           `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Source      string          `json:"source"`
	CreatedAt   time.Time       `json:"created_at"`
	Lifecycle   Lifecycle       `json:"lifecycle"`
}

// LeaderboardEntry is one row of the premium leaderboard.
type LeaderboardEntry struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	ExpenseTotal decimal.Decimal `json:"total_expense"`
	IsPremium    bool            `json:"is_premium"`
}

// PasswordResetRequest is a single-use reset link issued for an account.
type PasswordResetRequest struct {
	ID         string     `json:"id"`
	AccountID  int64      `json:"user_id"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// PaymentStatus is the lifecycle of a premium purchase order.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

// PaymentOrder is a premium purchase placed with the payment gateway.
type PaymentOrder struct {
	ID               string          `json:"order_id"`
	AccountID        int64           `json:"user_id"`
	Amount           decimal.Decimal `json:"order_amount"`
	Currency         string          `json:"order_currency"`
	PaymentSessionID string          `json:"payment_session_id"`
	Status           PaymentStatus   `json:"status"`
	GatewayPaymentID string          `json:"cf_payment_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
