// Package webhook turns verified gateway notifications into database state.
// Amounts are never taken from the notification payload: the reconciler
// re-fetches the session or subscription and works from that.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"grocery-backend/internal/apperr"
	"grocery-backend/internal/checkout"
	"grocery-backend/internal/membership"
	"grocery-backend/internal/order"
	"grocery-backend/internal/payment"
	"grocery-backend/internal/pricing"
)

type orderStore interface {
	CreateFromPayment(ctx context.Context, o *order.Order, items []order.Item, trolleyID int64, holdID uuid.UUID) error
	CancelAndRestock(ctx context.Context, transactionID string) error
}

type membershipStore interface {
	PlanByStripePriceID(ctx context.Context, priceID string) (*membership.Plan, error)
	UserByStripeCustomerID(ctx context.Context, customerID string) (uuid.UUID, error)
	ActivateSubscription(ctx context.Context, userID uuid.UUID, customerID string, planID int64, start, renewal time.Time) error
	UpdateRenewal(ctx context.Context, userID uuid.UUID, renewal time.Time) error
	ChangePlan(ctx context.Context, userID uuid.UUID, planID int64, renewal time.Time) error
	SetStatus(ctx context.Context, userID uuid.UUID, status membership.Status) error
}

type Reconciler struct {
	gateway     payment.Gateway
	orders      orderStore
	memberships membershipStore
}

func NewReconciler(gateway payment.Gateway, orders orderStore, memberships membershipStore) *Reconciler {
	return &Reconciler{gateway: gateway, orders: orders, memberships: memberships}
}

// Handle dispatches one verified event. Returning nil acknowledges the
// event; returning an error makes the endpoint fail so the gateway retries.
func (r *Reconciler) Handle(ctx context.Context, ev *payment.Event) error {
	switch ev.Type {
	case payment.EventCheckoutCompleted:
		if ev.SessionMode == payment.ModeSubscription {
			return r.activateMembership(ctx, ev.SessionID)
		}
		return r.registerOrder(ctx, ev.SessionID)
	case payment.EventInvoicePaid:
		return r.renewMembership(ctx, ev)
	case payment.EventSubscriptionUpdated:
		return r.syncMembershipPlan(ctx, ev)
	case payment.EventSubscriptionDeleted:
		return r.cancelMembership(ctx, ev)
	case payment.EventChargeRefunded:
		return r.settleRefund(ctx, ev)
	default:
		log.Debug().Str("type", string(ev.Type)).Msg("webhook: ignoring event")
		return nil
	}
}

// registerOrder rebuilds the paid order from the authoritative session and
// persists it. Duplicate deliveries abort on the unique transaction id and
// are acknowledged as success.
func (r *Reconciler) registerOrder(ctx context.Context, sessionID string) error {
	s, err := r.gateway.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	userID, err := uuid.FromString(s.Metadata[checkout.MetaUserID])
	if err != nil {
		return fmt.Errorf("webhook: session %s has invalid %s metadata: %w", s.ID, checkout.MetaUserID, err)
	}
	trolleyID, err := strconv.ParseInt(s.Metadata[checkout.MetaTrolleyID], 10, 64)
	if err != nil {
		return fmt.Errorf("webhook: session %s has invalid %s metadata: %w", s.ID, checkout.MetaTrolleyID, err)
	}
	method := pricing.Method(s.Metadata[checkout.MetaServiceMethod])
	if !method.Valid() {
		return fmt.Errorf("webhook: session %s has invalid %s metadata", s.ID, checkout.MetaServiceMethod)
	}
	chosenAt, err := time.Parse(time.RFC3339, s.Metadata[checkout.MetaChosenDate])
	if err != nil {
		return fmt.Errorf("webhook: session %s has invalid %s metadata: %w", s.ID, checkout.MetaChosenDate, err)
	}
	// holdId may be absent from sessions created before holds existed.
	holdID, _ := uuid.FromString(s.Metadata[checkout.MetaHoldID])

	items, subtotal, bagFee, err := rebuildItems(s)
	if err != nil {
		return err
	}

	o := &order.Order{
		UserID:          userID,
		TransactionID:   s.PaymentIntentID,
		Status:          order.StatusRegistered,
		Method:          method,
		SubtotalCents:   subtotal,
		ServiceFeeCents: s.ShippingFeeCents,
		BagFeeCents:     bagFee,
		TotalCents:      subtotal + s.ShippingFeeCents + bagFee,
		ChosenAt:        chosenAt,
		Address:         s.Metadata[checkout.MetaChosenAddress],
	}

	err = r.orders.CreateFromPayment(ctx, o, items, trolleyID, holdID)
	if err != nil {
		if errors.Is(err, order.ErrDuplicateTransaction) {
			log.Info().Str("session_id", s.ID).Str("transaction_id", s.PaymentIntentID).
				Msg("webhook: duplicate delivery, order already registered")
			return nil
		}
		return err
	}

	log.Info().Int64("order_id", o.ID).Stringer("user_id", userID).Int64("total_cents", o.TotalCents).
		Msg("webhook: order registered")
	return nil
}

// rebuildItems reverses the line encoding done at session creation: the
// metadata-less bag fee line is split off, "ea" lines multiply out and "kg"
// lines carry their total as the unit amount with the real quantity in
// metadata.
func rebuildItems(s *payment.Session) (items []order.Item, subtotalCents, bagFeeCents int64, err error) {
	for _, line := range s.Lines {
		if len(line.Metadata) == 0 {
			if line.Name != checkout.BagFeeLineName {
				return nil, 0, 0, fmt.Errorf("webhook: session %s has unexpected fee line %q", s.ID, line.Name)
			}
			bagFeeCents = line.AmountCents
			continue
		}

		productID, perr := strconv.ParseInt(line.Metadata[checkout.MetaProductID], 10, 64)
		if perr != nil {
			return nil, 0, 0, fmt.Errorf("webhook: session %s line %q has invalid product id: %w", s.ID, line.Name, perr)
		}

		it := order.Item{
			ProductID:   productID,
			ProductName: line.Name,
			PriceUnit:   pricing.UnitType(line.Metadata[checkout.MetaUnitType]),
		}
		switch it.PriceUnit {
		case pricing.UnitEach:
			it.UnitPriceCents = line.UnitAmountCents
			it.Quantity = decimal.NewFromInt(line.Quantity)
			it.TotalCents = line.UnitAmountCents * line.Quantity
		case pricing.UnitKilogram:
			it.Quantity, perr = decimal.NewFromString(line.Metadata[checkout.MetaQuantity])
			if perr != nil {
				return nil, 0, 0, fmt.Errorf("webhook: session %s line %q has invalid quantity: %w", s.ID, line.Name, perr)
			}
			it.UnitPriceCents, perr = strconv.ParseInt(line.Metadata[checkout.MetaUnitPrice], 10, 64)
			if perr != nil {
				return nil, 0, 0, fmt.Errorf("webhook: session %s line %q has invalid unit price: %w", s.ID, line.Name, perr)
			}
			if name := line.Metadata[checkout.MetaProductName]; name != "" {
				it.ProductName = name
			}
			it.TotalCents = line.UnitAmountCents
		default:
			return nil, 0, 0, fmt.Errorf("webhook: session %s line %q has unknown unit type", s.ID, line.Name)
		}

		subtotalCents += it.TotalCents
		items = append(items, it)
	}

	if len(items) == 0 {
		return nil, 0, 0, fmt.Errorf("webhook: session %s has no product lines", s.ID)
	}
	return items, subtotalCents, bagFeeCents, nil
}

func (r *Reconciler) activateMembership(ctx context.Context, sessionID string) error {
	s, err := r.gateway.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	userID, err := uuid.FromString(s.Metadata[checkout.MetaUserID])
	if err != nil {
		return fmt.Errorf("webhook: session %s has invalid %s metadata: %w", s.ID, checkout.MetaUserID, err)
	}
	planID, err := strconv.ParseInt(s.Metadata[checkout.MetaPlanID], 10, 64)
	if err != nil {
		return fmt.Errorf("webhook: session %s has invalid %s metadata: %w", s.ID, checkout.MetaPlanID, err)
	}

	sub, err := r.gateway.GetSubscription(ctx, s.SubscriptionID)
	if err != nil {
		return err
	}

	err = r.memberships.ActivateSubscription(ctx, userID, s.CustomerID, planID, sub.PeriodStart, sub.PeriodEnd)
	if err != nil {
		return err
	}

	log.Info().Stringer("user_id", userID).Int64("plan_id", planID).Time("renewal", sub.PeriodEnd).
		Msg("webhook: membership activated")
	return nil
}

// renewMembership advances the renewal date on recurring invoices. The
// invoice issued at signup is skipped: activation already recorded the first
// period.
func (r *Reconciler) renewMembership(ctx context.Context, ev *payment.Event) error {
	if ev.BillingReason == payment.BillingReasonSubscriptionCreate {
		return nil
	}

	userID, err := r.memberships.UserByStripeCustomerID(ctx, ev.CustomerID)
	if err != nil {
		return err
	}

	sub, err := r.gateway.GetSubscription(ctx, ev.SubscriptionID)
	if err != nil {
		return err
	}

	if err := r.memberships.UpdateRenewal(ctx, userID, sub.PeriodEnd); err != nil {
		return err
	}
	log.Info().Stringer("user_id", userID).Time("renewal", sub.PeriodEnd).Msg("webhook: membership renewed")
	return nil
}

func (r *Reconciler) syncMembershipPlan(ctx context.Context, ev *payment.Event) error {
	userID, err := r.memberships.UserByStripeCustomerID(ctx, ev.CustomerID)
	if err != nil {
		return err
	}

	sub, err := r.gateway.GetSubscription(ctx, ev.SubscriptionID)
	if err != nil {
		return err
	}

	if sub.Status == "past_due" {
		return r.memberships.SetStatus(ctx, userID, membership.StatusPastDue)
	}

	plan, err := r.memberships.PlanByStripePriceID(ctx, sub.PriceID)
	if err != nil {
		return err
	}
	if err := r.memberships.ChangePlan(ctx, userID, plan.ID, sub.PeriodEnd); err != nil {
		return err
	}
	log.Info().Stringer("user_id", userID).Int64("plan_id", plan.ID).Msg("webhook: membership plan synced")
	return nil
}

func (r *Reconciler) cancelMembership(ctx context.Context, ev *payment.Event) error {
	userID, err := r.memberships.UserByStripeCustomerID(ctx, ev.CustomerID)
	if err != nil {
		return err
	}
	if err := r.memberships.SetStatus(ctx, userID, membership.StatusCanceled); err != nil {
		return err
	}
	log.Info().Stringer("user_id", userID).Msg("webhook: membership canceled")
	return nil
}

// settleRefund finalizes a refund the user requested. A transaction with no
// order belongs to some out-of-band refund; acknowledge and move on rather
// than making the gateway retry forever.
func (r *Reconciler) settleRefund(ctx context.Context, ev *payment.Event) error {
	if ev.PaymentIntentID == "" {
		return fmt.Errorf("webhook: refund event without payment intent")
	}

	err := r.orders.CancelAndRestock(ctx, ev.PaymentIntentID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			log.Warn().Str("transaction_id", ev.PaymentIntentID).Msg("webhook: refund for unknown transaction")
			return nil
		}
		return err
	}
	return nil
}
