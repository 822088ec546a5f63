package trolley

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"grocery-backend/internal/apperr"
	"grocery-backend/internal/pricing"
	"grocery-backend/internal/product"
)

type Store interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*Trolley, error)
	SetMethod(ctx context.Context, userID uuid.UUID, method pricing.Method) (*Trolley, error)
	GetByID(ctx context.Context, trolleyID int64) (*Trolley, error)
	AddItem(ctx context.Context, userID uuid.UUID, productID int64, unit pricing.UnitType, quantity decimal.Decimal) (*Item, error)
	ItemOwners(ctx context.Context, itemIDs []int64) (map[int64]uuid.UUID, error)
	UpdateItemQuantity(ctx context.Context, itemID int64, quantity decimal.Decimal) (*Item, error)
	RemoveItems(ctx context.Context, itemIDs []int64) ([]Item, error)
	Items(ctx context.Context, trolleyID int64) ([]ContentItem, error)
}

type ProductStore interface {
	GetByID(ctx context.Context, id int64) (*product.Product, error)
	Exists(ctx context.Context, id int64) (bool, error)
}

type TierLookup interface {
	CurrentTier(ctx context.Context, userID uuid.UUID) (pricing.Tier, error)
}

type Service struct {
	store    Store
	products ProductStore
	tiers    TierLookup
}

func NewService(store Store, products ProductStore, tiers TierLookup) *Service {
	return &Service{store: store, products: products, tiers: tiers}
}

// Count returns the user's trolley id and cached item count, creating the
// trolley if needed.
func (s *Service) Count(ctx context.Context, userID uuid.UUID) (*Trolley, error) {
	return s.store.GetOrCreate(ctx, userID)
}

// SetMethod stores the fulfillment choice every fee computation reads from.
func (s *Service) SetMethod(ctx context.Context, userID uuid.UUID, method pricing.Method) (*Trolley, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: unknown fulfillment method %q", apperr.ErrValidation, method)
	}
	return s.store.SetMethod(ctx, userID, method)
}

// Contents returns the full cart with a live quote: current catalog prices,
// the subtotal, and fees from the same policy used at checkout.
func (s *Service) Contents(ctx context.Context, userID uuid.UUID) (*Contents, error) {
	t, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	items, err := s.store.Items(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	var subtotal int64
	for _, it := range items {
		subtotal += it.TotalCents
	}

	tier, err := s.tiers.CurrentTier(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to resolve membership tier: %w", err)
	}
	serviceFee, bagFee := pricing.ComputeFees(subtotal, t.Method, tier)

	return &Contents{
		TrolleyID:       t.ID,
		ItemCount:       t.ItemCount,
		Items:           items,
		SubtotalCents:   subtotal,
		Method:          t.Method,
		ServiceFeeCents: serviceFee,
		BagFeeCents:     bagFee,
		TotalCents:      subtotal + serviceFee + bagFee,
	}, nil
}

func (s *Service) AddItem(ctx context.Context, userID uuid.UUID, productID int64, unit pricing.UnitType, quantity decimal.Decimal) (*Item, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be greater than 0", apperr.ErrValidation)
	}
	if !unit.Valid() {
		return nil, fmt.Errorf("%w: unknown price unit %q", apperr.ErrValidation, unit)
	}

	exists, err := s.products.Exists(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to check product %d: %w", productID, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: product %d", apperr.ErrNotFound, productID)
	}

	item, err := s.store.AddItem(ctx, userID, productID, unit, quantity)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Int64("product_id", productID).Msg("service: failed to add trolley item")
		return nil, err
	}
	return item, nil
}

func (s *Service) UpdateItem(ctx context.Context, userID uuid.UUID, itemID int64, quantity decimal.Decimal) (*Item, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be greater than 0", apperr.ErrValidation)
	}

	if err := s.authorizeItems(ctx, userID, []int64{itemID}); err != nil {
		return nil, err
	}

	return s.store.UpdateItemQuantity(ctx, itemID, quantity)
}

func (s *Service) RemoveItem(ctx context.Context, userID uuid.UUID, itemID int64) (*Item, error) {
	removed, err := s.RemoveItems(ctx, userID, []int64{itemID})
	if err != nil {
		return nil, err
	}
	// The item can disappear between the ownership check and the delete if a
	// concurrent request removed it first.
	if len(removed) == 0 {
		return nil, fmt.Errorf("%w: trolley item %d", apperr.ErrNotFound, itemID)
	}
	return &removed[0], nil
}

// RemoveItems deletes a batch of lines after a single ownership query
// covering the whole batch.
func (s *Service) RemoveItems(ctx context.Context, userID uuid.UUID, itemIDs []int64) ([]Item, error) {
	if len(itemIDs) == 0 {
		return nil, fmt.Errorf("%w: no item ids given", apperr.ErrValidation)
	}

	if err := s.authorizeItems(ctx, userID, itemIDs); err != nil {
		return nil, err
	}

	removed, err := s.store.RemoveItems(ctx, itemIDs)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to remove trolley items")
		return nil, err
	}
	return removed, nil
}

// Validate recomputes a client-submitted cart snapshot server-side. Stale
// prices or totals yield false; structurally bad input yields an error.
func (s *Service) Validate(ctx context.Context, userID uuid.UUID, req *ValidationRequest) (bool, error) {
	t, err := s.store.GetByID(ctx, req.TrolleyID)
	if err != nil {
		return false, err
	}
	if t.UserID != userID {
		return false, fmt.Errorf("%w: trolley %d does not belong to user", apperr.ErrForbidden, req.TrolleyID)
	}
	if !req.Method.Valid() {
		return false, fmt.Errorf("%w: unknown fulfillment method %q", apperr.ErrValidation, req.Method)
	}
	// A snapshot quoted for a method other than the trolley's current one is
	// stale: checkout will charge fees for the stored method.
	if req.Method != t.Method {
		return false, nil
	}

	var subtotal int64
	for _, it := range req.Items {
		if !it.Quantity.IsPositive() {
			return false, fmt.Errorf("%w: quantity for product %d must be greater than 0", apperr.ErrValidation, it.ProductID)
		}

		p, err := s.products.GetByID(ctx, it.ProductID)
		if err != nil {
			return false, err
		}
		if p.PriceUnit != it.PriceUnit {
			return false, fmt.Errorf("%w: product %d has a different price unit", apperr.ErrValidation, it.ProductID)
		}

		if p.PriceCents != it.UnitPriceCents {
			return false, nil
		}
		if pricing.LineTotal(p.PriceCents, p.PriceUnit, it.Quantity) != it.TotalCents {
			return false, nil
		}
		subtotal += it.TotalCents
	}

	if subtotal != req.SubtotalCents {
		return false, nil
	}

	tier, err := s.tiers.CurrentTier(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("service: failed to resolve membership tier: %w", err)
	}
	serviceFee, bagFee := pricing.ComputeFees(req.SubtotalCents, t.Method, tier)
	if serviceFee != req.ServiceFeeCents || bagFee != req.BagFeeCents {
		return false, nil
	}

	if req.TotalCents != req.SubtotalCents+req.ServiceFeeCents+req.BagFeeCents {
		return false, nil
	}

	return true, nil
}

func (s *Service) authorizeItems(ctx context.Context, userID uuid.UUID, itemIDs []int64) error {
	owners, err := s.store.ItemOwners(ctx, itemIDs)
	if err != nil {
		return err
	}
	for _, id := range itemIDs {
		owner, ok := owners[id]
		if !ok {
			return fmt.Errorf("%w: trolley item %d", apperr.ErrNotFound, id)
		}
		if owner != userID {
			return fmt.Errorf("%w: trolley item %d does not belong to user", apperr.ErrForbidden, id)
		}
	}
	return nil
}
