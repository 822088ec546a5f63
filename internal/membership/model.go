package membership

import (
	"time"

	"github.com/gofrs/uuid"
)

// Plan is a purchasable membership tier. StripePriceID links it to the
// recurring price configured at the payment gateway.
type Plan struct {
	ID             int64  `json:"plan_id" db:"id"`
	Name           string `json:"name" db:"name"`
	PriceCents     int64  `json:"price_cents" db:"price_cents"`
	DurationMonths int    `json:"duration_months" db:"duration_months"`
	Description    string `json:"description" db:"description"`
	StripePriceID  string `json:"-" db:"stripe_price_id"`
}

type Status string

const (
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Membership is a user's subscription to a plan. Fee waivers only apply
// while Status is active.
type Membership struct {
	ID          int64     `json:"membership_id" db:"id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	PlanID      int64     `json:"plan_id" db:"plan_id"`
	PlanName    string    `json:"plan_name" db:"plan_name"`
	StartDate   time.Time `json:"start_date" db:"start_date"`
	RenewalDate time.Time `json:"renewal_date" db:"renewal_date"`
	Status      Status    `json:"status" db:"status"`
}
