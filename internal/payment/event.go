package payment

import (
	"encoding/json"
	"fmt"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout.session.completed"
	EventInvoicePaid         EventType = "invoice.paid"
	EventSubscriptionUpdated EventType = "customer.subscription.updated"
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
	EventChargeRefunded      EventType = "charge.refunded"

	// EventIgnored marks event types the reconciler has no interest in.
	EventIgnored EventType = "ignored"
)

// BillingReasonSubscriptionCreate marks the invoice issued together with
// checkout.session.completed; handling both would activate twice.
const BillingReasonSubscriptionCreate = "subscription_create"

// Event is the neutral form of a verified webhook notification. Only the
// identifiers needed to re-fetch authoritative state are carried over; the
// payload itself is never trusted for amounts.
type Event struct {
	Type            EventType
	SessionID       string
	SessionMode     Mode
	SubscriptionID  string
	CustomerID      string
	BillingReason   string
	PriceID         string
	PaymentIntentID string
}

// VerifyEvent checks the webhook signature against the endpoint secret and
// extracts the identifiers relevant to the event type. Unknown types come
// back as EventIgnored rather than an error, so new gateway event kinds
// never break the endpoint.
func VerifyEvent(payload []byte, sigHeader, secret string) (*Event, error) {
	raw, err := webhook.ConstructEvent(payload, sigHeader, secret)
	if err != nil {
		return nil, fmt.Errorf("payment: webhook signature verification failed: %w", err)
	}

	ev := &Event{Type: EventType(raw.Type)}
	switch ev.Type {
	case EventCheckoutCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(raw.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("payment: failed to parse checkout session event: %w", err)
		}
		ev.SessionID = s.ID
		ev.SessionMode = Mode(s.Mode)
	case EventInvoicePaid:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("payment: failed to parse invoice event: %w", err)
		}
		ev.BillingReason = string(inv.BillingReason)
		if inv.Subscription != nil {
			ev.SubscriptionID = inv.Subscription.ID
		}
		if inv.Customer != nil {
			ev.CustomerID = inv.Customer.ID
		}
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("payment: failed to parse subscription event: %w", err)
		}
		ev.SubscriptionID = sub.ID
		if sub.Customer != nil {
			ev.CustomerID = sub.Customer.ID
		}
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			ev.PriceID = sub.Items.Data[0].Price.ID
		}
	case EventChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(raw.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("payment: failed to parse charge event: %w", err)
		}
		if ch.PaymentIntent != nil {
			ev.PaymentIntentID = ch.PaymentIntent.ID
		}
	default:
		ev.Type = EventIgnored
	}
	return ev, nil
}
