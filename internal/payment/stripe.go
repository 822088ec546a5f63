package payment

import (
	"context"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/refund"
	"github.com/stripe/stripe-go/v79/subscription"
)

// StripeGateway implements Gateway against the hosted checkout API.
type StripeGateway struct{}

func NewStripeGateway(secretKey string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{}
}

func (g *StripeGateway) CreateSession(ctx context.Context, req *SessionRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(req.Mode)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}

	switch req.Mode {
	case ModePayment:
		for _, line := range req.Lines {
			item := &stripe.CheckoutSessionLineItemParams{
				Quantity: stripe.Int64(line.Quantity),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(Currency),
					UnitAmount: stripe.Int64(line.UnitAmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(line.Name),
					},
				},
			}
			if len(line.Metadata) > 0 {
				item.PriceData.ProductData.Metadata = line.Metadata
			}
			params.LineItems = append(params.LineItems, item)
		}
		if req.ShippingFeeCents > 0 || req.ShippingLabel != "" {
			params.ShippingOptions = []*stripe.CheckoutSessionShippingOptionParams{{
				ShippingRateData: &stripe.CheckoutSessionShippingOptionShippingRateDataParams{
					Type:        stripe.String("fixed_amount"),
					DisplayName: stripe.String(req.ShippingLabel),
					FixedAmount: &stripe.CheckoutSessionShippingOptionShippingRateDataFixedAmountParams{
						Amount:   stripe.Int64(req.ShippingFeeCents),
						Currency: stripe.String(Currency),
					},
				},
			}}
		}
	case ModeSubscription:
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(req.PriceID),
			Quantity: stripe.Int64(1),
		}}
	default:
		return nil, fmt.Errorf("payment: unsupported session mode %q", req.Mode)
	}

	s, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("payment: failed to create checkout session: %w", err)
	}
	return fromStripeSession(s), nil
}

// GetSession re-fetches a session with its line items and product metadata
// expanded; this is the authoritative record the reconciler works from.
func (g *StripeGateway) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items.data.price.product")

	s, err := session.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("payment: failed to fetch checkout session %s: %w", sessionID, err)
	}
	return fromStripeSession(s), nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("payment: failed to fetch subscription %s: %w", subscriptionID, err)
	}

	out := &Subscription{
		ID:          sub.ID,
		Status:      string(sub.Status),
		PeriodStart: time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		PeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		out.PriceID = sub.Items.Data[0].Price.ID
	}
	return out, nil
}

func (g *StripeGateway) Refund(ctx context.Context, paymentIntentID string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Context = ctx

	if _, err := refund.New(params); err != nil {
		return fmt.Errorf("payment: failed to refund payment intent %s: %w", paymentIntentID, err)
	}
	return nil
}

func fromStripeSession(s *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:       s.ID,
		URL:      s.URL,
		Mode:     Mode(s.Mode),
		Metadata: s.Metadata,
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	if s.ShippingCost != nil {
		out.ShippingFeeCents = s.ShippingCost.AmountTotal
	}
	if s.LineItems != nil {
		for _, li := range s.LineItems.Data {
			line := SessionLine{
				Quantity:    li.Quantity,
				AmountCents: li.AmountTotal,
			}
			if li.Price != nil {
				line.UnitAmountCents = li.Price.UnitAmount
				if li.Price.Product != nil {
					line.Name = li.Price.Product.Name
					line.Metadata = li.Price.Product.Metadata
				}
			}
			out.Lines = append(out.Lines, line)
		}
	}
	return out
}
