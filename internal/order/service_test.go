package order

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grocery-backend/internal/apperr"
)

type mockOrderStore struct {
	orders      map[int64]*Order
	items       map[int64][]Item
	transitions []string
}

func (m *mockOrderStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	out := make([]Order, 0)
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderStore) GetByID(ctx context.Context, orderID int64) (*Order, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderStore) ItemsByOrder(ctx context.Context, orderID int64) ([]Item, error) {
	return m.items[orderID], nil
}

func (m *mockOrderStore) SetStatus(ctx context.Context, orderID int64, from, to Status) error {
	o, ok := m.orders[orderID]
	if !ok || o.Status != from {
		return apperr.ErrConflict
	}
	o.Status = to
	m.transitions = append(m.transitions, string(from)+"->"+string(to))
	return nil
}

type mockRefunder struct {
	refunded []string
	err      error
}

func (m *mockRefunder) Refund(ctx context.Context, paymentIntentID string) error {
	if m.err != nil {
		return m.err
	}
	m.refunded = append(m.refunded, paymentIntentID)
	return nil
}

func TestService_Get(t *testing.T) {
	owner := uuid.Must(uuid.NewV4())
	store := &mockOrderStore{
		orders: map[int64]*Order{1: {ID: 1, UserID: owner, Status: StatusRegistered, TransactionID: "pi_1"}},
		items:  map[int64][]Item{1: {{ID: 11, OrderID: 1, ProductID: 10}}},
	}
	svc := &Service{store: store, gateway: &mockRefunder{}}

	t.Run("owner gets order with items", func(t *testing.T) {
		detail, err := svc.Get(context.Background(), owner, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), detail.ID)
		assert.Len(t, detail.Items, 1)
	})

	t.Run("stranger is rejected", func(t *testing.T) {
		_, err := svc.Get(context.Background(), uuid.Must(uuid.NewV4()), 1)
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := svc.Get(context.Background(), owner, 99)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestService_Cancel(t *testing.T) {
	owner := uuid.Must(uuid.NewV4())

	t.Run("registered order moves to canceling and refunds", func(t *testing.T) {
		store := &mockOrderStore{
			orders: map[int64]*Order{1: {ID: 1, UserID: owner, Status: StatusRegistered, TransactionID: "pi_1"}},
		}
		refunder := &mockRefunder{}
		svc := &Service{store: store, gateway: refunder}

		err := svc.Cancel(context.Background(), owner, 1)

		require.NoError(t, err)
		assert.Equal(t, StatusCanceling, store.orders[1].Status)
		assert.Equal(t, []string{"pi_1"}, refunder.refunded)
	})

	t.Run("refund failure rolls the status back so cancel can be retried", func(t *testing.T) {
		store := &mockOrderStore{
			orders: map[int64]*Order{1: {ID: 1, UserID: owner, Status: StatusRegistered, TransactionID: "pi_1"}},
		}
		refunder := &mockRefunder{err: errors.New("gateway unavailable")}
		svc := &Service{store: store, gateway: refunder}

		err := svc.Cancel(context.Background(), owner, 1)
		require.Error(t, err)
		assert.Equal(t, StatusRegistered, store.orders[1].Status)

		refunder.err = nil
		err = svc.Cancel(context.Background(), owner, 1)
		require.NoError(t, err)
		assert.Equal(t, StatusCanceling, store.orders[1].Status)
		assert.Equal(t, []string{"pi_1"}, refunder.refunded)
	})

	t.Run("completed order cannot be canceled", func(t *testing.T) {
		store := &mockOrderStore{
			orders: map[int64]*Order{1: {ID: 1, UserID: owner, Status: StatusCompleted, TransactionID: "pi_1"}},
		}
		refunder := &mockRefunder{}
		svc := &Service{store: store, gateway: refunder}

		err := svc.Cancel(context.Background(), owner, 1)

		assert.ErrorIs(t, err, apperr.ErrConflict)
		assert.Empty(t, refunder.refunded)
	})
}
