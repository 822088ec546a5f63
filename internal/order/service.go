package order

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"grocery-backend/internal/apperr"
	"grocery-backend/internal/payment"
)

type Store interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error)
	GetByID(ctx context.Context, orderID int64) (*Order, error)
	ItemsByOrder(ctx context.Context, orderID int64) ([]Item, error)
	SetStatus(ctx context.Context, orderID int64, from, to Status) error
}

type refunder interface {
	Refund(ctx context.Context, paymentIntentID string) error
}

type Service struct {
	store   Store
	gateway refunder
}

func NewService(store Store, gateway payment.Gateway) *Service {
	return &Service{store: store, gateway: gateway}
}

// Detail is an order with its item snapshots.
type Detail struct {
	Order
	Items []Item `json:"items"`
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID uuid.UUID, orderID int64) (*Detail, error) {
	o, err := s.authorize(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	items, err := s.store.ItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &Detail{Order: *o, Items: items}, nil
}

// Cancel requests a refund for an order the user still may cancel. The order
// moves to canceling here; the refund webhook later confirms the refund and
// moves it to canceled, restocking in the same step.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID, orderID int64) error {
	o, err := s.authorize(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if !CanTransition(o.Status, StatusCanceling) {
		return fmt.Errorf("%w: order %d cannot be canceled from status %s", apperr.ErrConflict, orderID, o.Status)
	}

	if err := s.store.SetStatus(ctx, orderID, o.Status, StatusCanceling); err != nil {
		return err
	}

	if err := s.gateway.Refund(ctx, o.TransactionID); err != nil {
		log.Error().Err(err).Int64("order_id", orderID).Msg("service: refund request failed")
		// Undo the transition so the user can retry; leaving the order in
		// canceling would dead-end it with no refund ever requested.
		if rbErr := s.store.SetStatus(ctx, orderID, StatusCanceling, o.Status); rbErr != nil {
			log.Error().Err(rbErr).Int64("order_id", orderID).Msg("service: failed to roll back order status after refund failure")
		}
		return err
	}

	log.Info().Int64("order_id", orderID).Stringer("user_id", userID).Msg("service: order cancellation requested")
	return nil
}

func (s *Service) authorize(ctx context.Context, userID uuid.UUID, orderID int64) (*Order, error) {
	o, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, fmt.Errorf("%w: order %d does not belong to user", apperr.ErrForbidden, orderID)
	}
	return o, nil
}
