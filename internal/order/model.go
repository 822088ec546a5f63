package order

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"grocery-backend/internal/pricing"
)

// ErrDuplicateTransaction signals that an order for this gateway transaction
// already exists. Webhook retries hit this path and must treat it as success.
var ErrDuplicateTransaction = errors.New("order for this transaction already exists")

type Status string

const (
	// StatusRegistered is the state a paid order lands in.
	StatusRegistered Status = "registered"
	StatusOnDelivery Status = "on_delivery"
	StatusCompleted  Status = "completed"
	// StatusCanceling means a refund has been requested but the gateway has
	// not yet confirmed it.
	StatusCanceling Status = "canceling"
	StatusCanceled  Status = "canceled"
)

var allowedTransitions = map[Status][]Status{
	StatusRegistered: {StatusOnDelivery, StatusCompleted, StatusCanceling},
	StatusOnDelivery: {StatusCompleted},
	StatusCompleted:  {},
	StatusCanceling:  {StatusCanceled},
	StatusCanceled:   {},
}

// CanTransition reports whether an order may move from one status to
// another. StatusCanceled is additionally reachable from anywhere through
// the refund reconciliation path, which bypasses this check.
func CanTransition(from, to Status) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Order is the immutable record of a completed checkout. TransactionID is
// the gateway payment intent and is unique, which is what makes webhook
// reconciliation idempotent.
type Order struct {
	ID              int64          `json:"order_id" db:"id"`
	UserID          uuid.UUID      `json:"user_id" db:"user_id"`
	TransactionID   string         `json:"-" db:"transaction_id"`
	Status          Status         `json:"status" db:"status"`
	Method          pricing.Method `json:"method" db:"method"`
	SubtotalCents   int64          `json:"subtotal_cents" db:"subtotal_cents"`
	ServiceFeeCents int64          `json:"service_fee_cents" db:"service_fee_cents"`
	BagFeeCents     int64          `json:"bag_fee_cents" db:"bag_fee_cents"`
	TotalCents      int64          `json:"total_cents" db:"total_cents"`
	ChosenAt        time.Time      `json:"chosen_at" db:"chosen_at"`
	Address         string         `json:"address" db:"address"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
}

// Item is a snapshot of one purchased line at the price actually paid.
// Unlike cart lines it never changes when the catalog does.
type Item struct {
	ID             int64            `json:"item_id" db:"id"`
	OrderID        int64            `json:"order_id" db:"order_id"`
	ProductID      int64            `json:"product_id" db:"product_id"`
	ProductName    string           `json:"product_name" db:"product_name"`
	UnitPriceCents int64            `json:"unit_price_cents" db:"unit_price_cents"`
	PriceUnit      pricing.UnitType `json:"price_unit" db:"price_unit"`
	Quantity       decimal.Decimal  `json:"quantity" db:"quantity"`
	TotalCents     int64            `json:"total_cents" db:"total_cents"`
}
