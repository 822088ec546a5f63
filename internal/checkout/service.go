// Package checkout turns a validated cart into a gateway checkout session.
// Everything the webhook reconciler needs to rebuild the order later is
// embedded in session and line metadata at creation time.
package checkout

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"grocery-backend/internal/apperr"
	"grocery-backend/internal/membership"
	"grocery-backend/internal/payment"
	"grocery-backend/internal/pricing"
	"grocery-backend/internal/trolley"
)

// SessionExpiry is the lifetime requested for payment-mode sessions. The
// gateway's minimum is longer than the slot hold TTL, so a hold can lapse
// while its session is still open; the reconciler tolerates the missing hold.
const SessionExpiry = 30 * time.Minute

// Metadata keys attached to sessions and line items. The reconciler reads
// these back verbatim, so the two sides must agree on spelling.
const (
	MetaUserID        = "userId"
	MetaTrolleyID     = "trolleyId"
	MetaServiceMethod = "serviceMethod"
	MetaHoldID        = "holdId"
	MetaChosenDate    = "chosenDate"
	MetaChosenAddress = "chosenAddress"
	MetaPlanID        = "planId"

	MetaProductID   = "productId"
	MetaUnitType    = "productPriceUnitType"
	MetaQuantity    = "quantity"
	MetaUnitPrice   = "productPrice"
	MetaProductName = "productName"
)

// BagFeeLineName labels the bag fee line. It is the only metadata-less line
// in a session, which is how the reconciler tells it apart from products.
const BagFeeLineName = "Bag Fee"

type TrolleyStore interface {
	GetByID(ctx context.Context, trolleyID int64) (*trolley.Trolley, error)
	Items(ctx context.Context, trolleyID int64) ([]trolley.ContentItem, error)
}

type MembershipStore interface {
	CurrentTier(ctx context.Context, userID uuid.UUID) (pricing.Tier, error)
	PlanByID(ctx context.Context, planID int64) (*membership.Plan, error)
	StripeCustomerID(ctx context.Context, userID uuid.UUID) (string, error)
}

type Service struct {
	gateway     payment.Gateway
	trolleys    TrolleyStore
	memberships MembershipStore
}

func NewService(gateway payment.Gateway, trolleys TrolleyStore, memberships MembershipStore) *Service {
	return &Service{gateway: gateway, trolleys: trolleys, memberships: memberships}
}

// TrolleySessionRequest carries the client's fulfillment choices into
// session creation. HoldID is required so the reserved slot can be consumed
// when payment lands.
type TrolleySessionRequest struct {
	TrolleyID  int64     `json:"trolley_id"`
	HoldID     uuid.UUID `json:"hold_id"`
	ChosenDate time.Time `json:"chosen_date"`
	Address    string    `json:"address"`
	SuccessURL string    `json:"success_url"`
	CancelURL  string    `json:"cancel_url"`
}

// CreateTrolleySession builds a payment-mode session from the user's cart:
// one line per "ea" item, one total-priced line per "kg" item, a bag fee
// line when owed, and the service fee as the shipping amount.
func (s *Service) CreateTrolleySession(ctx context.Context, userID uuid.UUID, req *TrolleySessionRequest) (*payment.Session, error) {
	t, err := s.trolleys.GetByID(ctx, req.TrolleyID)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, fmt.Errorf("%w: trolley %d does not belong to user", apperr.ErrForbidden, req.TrolleyID)
	}
	if t.Method == pricing.MethodDelivery && req.Address == "" {
		return nil, fmt.Errorf("%w: delivery requires an address", apperr.ErrValidation)
	}
	if req.HoldID == uuid.Nil {
		return nil, fmt.Errorf("%w: a time slot hold is required", apperr.ErrValidation)
	}

	items, err := s.trolleys.Items(ctx, req.TrolleyID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: trolley %d is empty", apperr.ErrValidation, req.TrolleyID)
	}

	var subtotal int64
	lines := make([]payment.LineItem, 0, len(items)+1)
	for _, it := range items {
		subtotal += it.TotalCents
		lines = append(lines, buildLine(it))
	}

	tier, err := s.memberships.CurrentTier(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to resolve membership tier: %w", err)
	}
	serviceFee, bagFee := pricing.ComputeFees(subtotal, t.Method, tier)

	if bagFee > 0 {
		lines = append(lines, payment.LineItem{
			Name:            BagFeeLineName,
			UnitAmountCents: bagFee,
			Quantity:        1,
		})
	}

	shippingLabel := "Pickup Fee"
	if t.Method == pricing.MethodDelivery {
		shippingLabel = "Delivery Fee"
	}

	session, err := s.gateway.CreateSession(ctx, &payment.SessionRequest{
		Mode:             payment.ModePayment,
		Lines:            lines,
		ShippingFeeCents: serviceFee,
		ShippingLabel:    shippingLabel,
		Metadata: map[string]string{
			MetaUserID:        userID.String(),
			MetaTrolleyID:     strconv.FormatInt(req.TrolleyID, 10),
			MetaServiceMethod: t.Method.String(),
			MetaHoldID:        req.HoldID.String(),
			MetaChosenDate:    req.ChosenDate.UTC().Format(time.RFC3339),
			MetaChosenAddress: req.Address,
		},
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		ExpiresAt:  time.Now().Add(SessionExpiry),
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("session_id", session.ID).Stringer("user_id", userID).Int64("trolley_id", req.TrolleyID).
		Int64("subtotal_cents", subtotal).Msg("service: created trolley checkout session")
	return session, nil
}

// CreateMembershipSession builds a subscription-mode session for a plan's
// recurring price, reusing the user's gateway customer when one exists.
func (s *Service) CreateMembershipSession(ctx context.Context, userID uuid.UUID, planID int64, successURL, cancelURL string) (*payment.Session, error) {
	plan, err := s.memberships.PlanByID(ctx, planID)
	if err != nil {
		return nil, err
	}

	customerID, err := s.memberships.StripeCustomerID(ctx, userID)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateSession(ctx, &payment.SessionRequest{
		Mode:       payment.ModeSubscription,
		PriceID:    plan.StripePriceID,
		CustomerID: customerID,
		Metadata: map[string]string{
			MetaUserID: userID.String(),
			MetaPlanID: strconv.FormatInt(planID, 10),
		},
		SuccessURL: successURL + "?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  cancelURL,
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("session_id", session.ID).Stringer("user_id", userID).Int64("plan_id", planID).
		Msg("service: created membership checkout session")
	return session, nil
}

// buildLine maps a cart line onto a gateway line. "ea" items keep their unit
// price and integer quantity. "kg" items cannot, fractional quantities are
// not representable at the gateway, so the whole line total becomes the unit
// amount of a quantity-1 line and the real quantity rides in metadata.
func buildLine(it trolley.ContentItem) payment.LineItem {
	if it.PriceUnit == pricing.UnitEach {
		return payment.LineItem{
			Name:            it.ProductName,
			UnitAmountCents: it.UnitPriceCents,
			Quantity:        it.Quantity.IntPart(),
			Metadata: map[string]string{
				MetaProductID: strconv.FormatInt(it.ProductID, 10),
				MetaUnitType:  string(pricing.UnitEach),
			},
		}
	}
	return payment.LineItem{
		Name:            it.ProductName,
		UnitAmountCents: it.TotalCents,
		Quantity:        1,
		Metadata: map[string]string{
			MetaProductID:   strconv.FormatInt(it.ProductID, 10),
			MetaUnitType:    string(pricing.UnitKilogram),
			MetaQuantity:    it.Quantity.String(),
			MetaUnitPrice:   strconv.FormatInt(it.UnitPriceCents, 10),
			MetaProductName: it.ProductName,
		},
	}
}
