// Package payment isolates the Stripe-shaped edges of the system. The rest
// of the codebase talks to the Gateway interface and the neutral Session and
// Event types; only this package imports the gateway SDK.
package payment

import (
	"context"
	"time"
)

// Currency for every amount sent to or read from the gateway.
const Currency = "nzd"

type Mode string

const (
	ModePayment      Mode = "payment"
	ModeSubscription Mode = "subscription"
)

// LineItem is one ad-hoc priced line of a payment-mode session.
type LineItem struct {
	Name            string
	UnitAmountCents int64
	Quantity        int64
	Metadata        map[string]string
}

// SessionRequest describes a checkout session to create. Payment mode uses
// Lines and the shipping fee; subscription mode uses PriceID instead.
type SessionRequest struct {
	Mode             Mode
	Lines            []LineItem
	ShippingFeeCents int64
	ShippingLabel    string
	PriceID          string
	CustomerID       string
	Metadata         map[string]string
	SuccessURL       string
	CancelURL        string
	ExpiresAt        time.Time
}

// SessionLine is one line of a completed session as reported back by the
// gateway, with the product metadata the session was created with.
type SessionLine struct {
	Name            string
	UnitAmountCents int64
	Quantity        int64
	AmountCents     int64
	Metadata        map[string]string
}

// Session is the gateway's authoritative record of a checkout session.
type Session struct {
	ID               string
	URL              string
	Mode             Mode
	PaymentIntentID  string
	CustomerID       string
	SubscriptionID   string
	Metadata         map[string]string
	ShippingFeeCents int64
	Lines            []SessionLine
}

type Subscription struct {
	ID          string
	CustomerID  string
	PriceID     string
	Status      string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

type Gateway interface {
	CreateSession(ctx context.Context, req *SessionRequest) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	Refund(ctx context.Context, paymentIntentID string) error
}
