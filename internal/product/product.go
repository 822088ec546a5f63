// Package product exposes the minimal slice of the catalog the fulfillment
// pipeline needs: name, current price and stock level. Catalog CRUD lives in
// another part of the system.
package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"grocery-backend/internal/apperr"
	"grocery-backend/internal/pricing"
)

type Product struct {
	ID         int64            `json:"id" db:"id"`
	Name       string           `json:"name" db:"name"`
	PriceCents int64            `json:"price_cents" db:"price_cents"`
	PriceUnit  pricing.UnitType `json:"price_unit" db:"price_unit"`
	Quantity   decimal.Decimal  `json:"quantity" db:"quantity"`
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Product, error) {
	query := `
		SELECT id, name, price_cents, price_unit, quantity
		FROM product
		WHERE id = $1
	`

	var p Product
	err := r.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.PriceCents, &p.PriceUnit, &p.Quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %d", apperr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("repository: failed to select product %d: %w", id, err)
	}

	return &p, nil
}

func (r *Repository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM product WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: failed to check product %d: %w", id, err)
	}
	return exists, nil
}
