package webhook

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grocery-backend/internal/apperr"
	"grocery-backend/internal/checkout"
	"grocery-backend/internal/membership"
	"grocery-backend/internal/order"
	"grocery-backend/internal/payment"
	"grocery-backend/internal/pricing"
)

type mockGateway struct {
	session      *payment.Session
	subscription *payment.Subscription
	refunded     []string
}

func (m *mockGateway) CreateSession(ctx context.Context, req *payment.SessionRequest) (*payment.Session, error) {
	return nil, nil
}

func (m *mockGateway) GetSession(ctx context.Context, sessionID string) (*payment.Session, error) {
	if m.session == nil || m.session.ID != sessionID {
		return nil, fmt.Errorf("unknown session %s", sessionID)
	}
	return m.session, nil
}

func (m *mockGateway) GetSubscription(ctx context.Context, subscriptionID string) (*payment.Subscription, error) {
	if m.subscription == nil || m.subscription.ID != subscriptionID {
		return nil, fmt.Errorf("unknown subscription %s", subscriptionID)
	}
	return m.subscription, nil
}

func (m *mockGateway) Refund(ctx context.Context, paymentIntentID string) error {
	m.refunded = append(m.refunded, paymentIntentID)
	return nil
}

type mockOrders struct {
	createFn   func(ctx context.Context, o *order.Order, items []order.Item, trolleyID int64, holdID uuid.UUID) error
	canceledTx []string
	cancelErr  error
}

func (m *mockOrders) CreateFromPayment(ctx context.Context, o *order.Order, items []order.Item, trolleyID int64, holdID uuid.UUID) error {
	return m.createFn(ctx, o, items, trolleyID, holdID)
}

func (m *mockOrders) CancelAndRestock(ctx context.Context, transactionID string) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.canceledTx = append(m.canceledTx, transactionID)
	return nil
}

type activation struct {
	userID     uuid.UUID
	customerID string
	planID     int64
	start      time.Time
	renewal    time.Time
}

type mockMemberships struct {
	plans      map[string]*membership.Plan
	users      map[string]uuid.UUID
	activated  []activation
	renewals   []time.Time
	planSwaps  []int64
	statuses   []membership.Status
	statusUser uuid.UUID
}

func (m *mockMemberships) PlanByStripePriceID(ctx context.Context, priceID string) (*membership.Plan, error) {
	p, ok := m.plans[priceID]
	if !ok {
		return nil, fmt.Errorf("%w: plan for price %s", apperr.ErrNotFound, priceID)
	}
	return p, nil
}

func (m *mockMemberships) UserByStripeCustomerID(ctx context.Context, customerID string) (uuid.UUID, error) {
	id, ok := m.users[customerID]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: user for customer %s", apperr.ErrNotFound, customerID)
	}
	return id, nil
}

func (m *mockMemberships) ActivateSubscription(ctx context.Context, userID uuid.UUID, customerID string, planID int64, start, renewal time.Time) error {
	m.activated = append(m.activated, activation{userID, customerID, planID, start, renewal})
	return nil
}

func (m *mockMemberships) UpdateRenewal(ctx context.Context, userID uuid.UUID, renewal time.Time) error {
	m.renewals = append(m.renewals, renewal)
	return nil
}

func (m *mockMemberships) ChangePlan(ctx context.Context, userID uuid.UUID, planID int64, renewal time.Time) error {
	m.planSwaps = append(m.planSwaps, planID)
	return nil
}

func (m *mockMemberships) SetStatus(ctx context.Context, userID uuid.UUID, status membership.Status) error {
	m.statusUser = userID
	m.statuses = append(m.statuses, status)
	return nil
}

func paidSession(userID, holdID uuid.UUID) *payment.Session {
	return &payment.Session{
		ID:               "cs_paid",
		Mode:             payment.ModePayment,
		PaymentIntentID:  "pi_123",
		ShippingFeeCents: 870,
		Metadata: map[string]string{
			checkout.MetaUserID:        userID.String(),
			checkout.MetaTrolleyID:     "7",
			checkout.MetaServiceMethod: "delivery",
			checkout.MetaHoldID:        holdID.String(),
			checkout.MetaChosenDate:    "2026-03-04T09:00:00Z",
			checkout.MetaChosenAddress: "1 Queen St",
		},
		Lines: []payment.SessionLine{
			{
				Name: "Apple", UnitAmountCents: 100, Quantity: 3, AmountCents: 300,
				Metadata: map[string]string{
					checkout.MetaProductID: "10",
					checkout.MetaUnitType:  "ea",
				},
			},
			{
				Name: "Beef Mince", UnitAmountCents: 750, Quantity: 1, AmountCents: 750,
				Metadata: map[string]string{
					checkout.MetaProductID:   "20",
					checkout.MetaUnitType:    "kg",
					checkout.MetaQuantity:    "0.5",
					checkout.MetaUnitPrice:   "1500",
					checkout.MetaProductName: "Beef Mince",
				},
			},
			{Name: checkout.BagFeeLineName, UnitAmountCents: 150, Quantity: 1, AmountCents: 150},
		},
	}
}

func TestHandle_CheckoutCompleted_RegistersOrder(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	holdID := uuid.Must(uuid.NewV4())

	var gotOrder *order.Order
	var gotItems []order.Item
	var gotTrolleyID int64
	var gotHoldID uuid.UUID

	orders := &mockOrders{
		createFn: func(ctx context.Context, o *order.Order, items []order.Item, trolleyID int64, hID uuid.UUID) error {
			gotOrder, gotItems, gotTrolleyID, gotHoldID = o, items, trolleyID, hID
			return nil
		},
	}
	r := NewReconciler(&mockGateway{session: paidSession(userID, holdID)}, orders, &mockMemberships{})

	err := r.Handle(context.Background(), &payment.Event{
		Type:        payment.EventCheckoutCompleted,
		SessionID:   "cs_paid",
		SessionMode: payment.ModePayment,
	})

	require.NoError(t, err)
	require.NotNil(t, gotOrder)
	assert.Equal(t, userID, gotOrder.UserID)
	assert.Equal(t, "pi_123", gotOrder.TransactionID)
	assert.Equal(t, order.StatusRegistered, gotOrder.Status)
	assert.Equal(t, pricing.MethodDelivery, gotOrder.Method)
	assert.Equal(t, int64(1050), gotOrder.SubtotalCents)
	assert.Equal(t, int64(870), gotOrder.ServiceFeeCents)
	assert.Equal(t, int64(150), gotOrder.BagFeeCents)
	assert.Equal(t, int64(2070), gotOrder.TotalCents)
	assert.Equal(t, "1 Queen St", gotOrder.Address)
	assert.Equal(t, int64(7), gotTrolleyID)
	assert.Equal(t, holdID, gotHoldID)

	require.Len(t, gotItems, 2)
	assert.Equal(t, int64(10), gotItems[0].ProductID)
	assert.Equal(t, int64(100), gotItems[0].UnitPriceCents)
	assert.Equal(t, int64(300), gotItems[0].TotalCents)
	assert.Equal(t, int64(20), gotItems[1].ProductID)
	assert.Equal(t, int64(1500), gotItems[1].UnitPriceCents)
	assert.Equal(t, "0.5", gotItems[1].Quantity.String())
	assert.Equal(t, int64(750), gotItems[1].TotalCents)
}

func TestHandle_CheckoutCompleted_DuplicateDeliveryIsSuccess(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	orders := &mockOrders{
		createFn: func(ctx context.Context, o *order.Order, items []order.Item, trolleyID int64, holdID uuid.UUID) error {
			return fmt.Errorf("%w: transaction pi_123", order.ErrDuplicateTransaction)
		},
	}
	r := NewReconciler(&mockGateway{session: paidSession(userID, uuid.Must(uuid.NewV4()))}, orders, &mockMemberships{})

	err := r.Handle(context.Background(), &payment.Event{
		Type:        payment.EventCheckoutCompleted,
		SessionID:   "cs_paid",
		SessionMode: payment.ModePayment,
	})

	assert.NoError(t, err)
}

func TestHandle_SubscriptionCheckout_Activates(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	gateway := &mockGateway{
		session: &payment.Session{
			ID:             "cs_sub",
			Mode:           payment.ModeSubscription,
			CustomerID:     "cus_1",
			SubscriptionID: "sub_1",
			Metadata: map[string]string{
				checkout.MetaUserID: userID.String(),
				checkout.MetaPlanID: "2",
			},
		},
		subscription: &payment.Subscription{ID: "sub_1", CustomerID: "cus_1", PeriodStart: start, PeriodEnd: end},
	}
	memberships := &mockMemberships{}
	r := NewReconciler(gateway, &mockOrders{}, memberships)

	err := r.Handle(context.Background(), &payment.Event{
		Type:        payment.EventCheckoutCompleted,
		SessionID:   "cs_sub",
		SessionMode: payment.ModeSubscription,
	})

	require.NoError(t, err)
	require.Len(t, memberships.activated, 1)
	got := memberships.activated[0]
	assert.Equal(t, userID, got.userID)
	assert.Equal(t, "cus_1", got.customerID)
	assert.Equal(t, int64(2), got.planID)
	assert.Equal(t, start, got.start)
	assert.Equal(t, end, got.renewal)
}

func TestHandle_InvoicePaid(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	gateway := &mockGateway{
		subscription: &payment.Subscription{ID: "sub_1", CustomerID: "cus_1", PeriodEnd: end},
	}
	memberships := &mockMemberships{users: map[string]uuid.UUID{"cus_1": userID}}
	r := NewReconciler(gateway, &mockOrders{}, memberships)

	t.Run("signup invoice is skipped", func(t *testing.T) {
		err := r.Handle(context.Background(), &payment.Event{
			Type:           payment.EventInvoicePaid,
			BillingReason:  payment.BillingReasonSubscriptionCreate,
			SubscriptionID: "sub_1",
			CustomerID:     "cus_1",
		})
		require.NoError(t, err)
		assert.Empty(t, memberships.renewals)
	})

	t.Run("renewal invoice advances the renewal date", func(t *testing.T) {
		err := r.Handle(context.Background(), &payment.Event{
			Type:           payment.EventInvoicePaid,
			BillingReason:  "subscription_cycle",
			SubscriptionID: "sub_1",
			CustomerID:     "cus_1",
		})
		require.NoError(t, err)
		require.Len(t, memberships.renewals, 1)
		assert.Equal(t, end, memberships.renewals[0])
	})
}

func TestHandle_SubscriptionUpdated_SyncsPlan(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	gateway := &mockGateway{
		subscription: &payment.Subscription{ID: "sub_1", CustomerID: "cus_1", PriceID: "price_super", Status: "active"},
	}
	memberships := &mockMemberships{
		users: map[string]uuid.UUID{"cus_1": userID},
		plans: map[string]*membership.Plan{"price_super": {ID: 3, Name: "Super Saver"}},
	}
	r := NewReconciler(gateway, &mockOrders{}, memberships)

	err := r.Handle(context.Background(), &payment.Event{
		Type:           payment.EventSubscriptionUpdated,
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
	})

	require.NoError(t, err)
	assert.Equal(t, []int64{3}, memberships.planSwaps)
}

func TestHandle_SubscriptionDeleted_CancelsMembership(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	memberships := &mockMemberships{users: map[string]uuid.UUID{"cus_1": userID}}
	r := NewReconciler(&mockGateway{}, &mockOrders{}, memberships)

	err := r.Handle(context.Background(), &payment.Event{
		Type:       payment.EventSubscriptionDeleted,
		CustomerID: "cus_1",
	})

	require.NoError(t, err)
	assert.Equal(t, []membership.Status{membership.StatusCanceled}, memberships.statuses)
	assert.Equal(t, userID, memberships.statusUser)
}

func TestHandle_ChargeRefunded(t *testing.T) {
	t.Run("cancels and restocks the order", func(t *testing.T) {
		orders := &mockOrders{}
		r := NewReconciler(&mockGateway{}, orders, &mockMemberships{})

		err := r.Handle(context.Background(), &payment.Event{
			Type:            payment.EventChargeRefunded,
			PaymentIntentID: "pi_123",
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"pi_123"}, orders.canceledTx)
	})

	t.Run("unknown transaction is acknowledged", func(t *testing.T) {
		orders := &mockOrders{cancelErr: fmt.Errorf("%w: order", apperr.ErrNotFound)}
		r := NewReconciler(&mockGateway{}, orders, &mockMemberships{})

		err := r.Handle(context.Background(), &payment.Event{
			Type:            payment.EventChargeRefunded,
			PaymentIntentID: "pi_999",
		})

		assert.NoError(t, err)
	})
}

func TestHandle_IgnoredEvent(t *testing.T) {
	r := NewReconciler(&mockGateway{}, &mockOrders{}, &mockMemberships{})

	err := r.Handle(context.Background(), &payment.Event{Type: payment.EventIgnored})

	assert.NoError(t, err)
}
