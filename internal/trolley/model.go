package trolley

import (
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"grocery-backend/internal/pricing"
)

// Trolley is a user's in-progress cart. One active trolley per user, created
// lazily on first access and deleted when its checkout completes. ItemCount
// caches the number of distinct lines.
type Trolley struct {
	ID        int64          `json:"trolley_id" db:"id"`
	UserID    uuid.UUID      `json:"user_id" db:"user_id"`
	ItemCount int            `json:"item_count" db:"item_count"`
	Method    pricing.Method `json:"method" db:"method"`
}

// Item is one cart line. (trolley_id, product_id, price_unit) is unique:
// adding the same combination again merges quantities instead of inserting
// a second row.
type Item struct {
	ID        int64            `json:"item_id" db:"id"`
	TrolleyID int64            `json:"trolley_id" db:"trolley_id"`
	ProductID int64            `json:"product_id" db:"product_id"`
	PriceUnit pricing.UnitType `json:"price_unit" db:"price_unit"`
	Quantity  decimal.Decimal  `json:"quantity" db:"quantity"`
}

// ContentItem is a cart line joined with current catalog data. TotalCents is
// a live quote computed at read time, unlike order-item snapshots.
type ContentItem struct {
	ID             int64            `json:"item_id"`
	ProductID      int64            `json:"product_id"`
	ProductName    string           `json:"product_name"`
	UnitPriceCents int64            `json:"unit_price_cents"`
	PriceUnit      pricing.UnitType `json:"price_unit"`
	Quantity       decimal.Decimal  `json:"quantity"`
	TotalCents     int64            `json:"total_cents"`
}

type Contents struct {
	TrolleyID       int64          `json:"trolley_id"`
	ItemCount       int            `json:"item_count"`
	Items           []ContentItem  `json:"items"`
	SubtotalCents   int64          `json:"subtotal_cents"`
	Method          pricing.Method `json:"method"`
	ServiceFeeCents int64          `json:"service_fee_cents"`
	BagFeeCents     int64          `json:"bag_fee_cents"`
	TotalCents      int64          `json:"total_cents"`
}

// ValidationRequest is a client-computed cart snapshot to be checked against
// a server-side recomputation before checkout.
type ValidationRequest struct {
	TrolleyID       int64            `json:"trolley_id"`
	Items           []ValidationItem `json:"items"`
	SubtotalCents   int64            `json:"subtotal_cents"`
	Method          pricing.Method   `json:"method"`
	ServiceFeeCents int64            `json:"service_fee_cents"`
	BagFeeCents     int64            `json:"bag_fee_cents"`
	TotalCents      int64            `json:"total_cents"`
}

type ValidationItem struct {
	ProductID      int64            `json:"product_id"`
	UnitPriceCents int64            `json:"unit_price_cents"`
	PriceUnit      pricing.UnitType `json:"price_unit"`
	Quantity       decimal.Decimal  `json:"quantity"`
	TotalCents     int64            `json:"total_cents"`
}
