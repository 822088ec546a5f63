package trolley

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"grocery-backend/internal/apperr"
	"grocery-backend/internal/pricing"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const trolleyColumns = "id, user_id, item_count, method"

// GetOrCreate returns the user's trolley, creating an empty one if none
// exists. The upsert makes concurrent first accesses converge on one row.
func (r *Repository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*Trolley, error) {
	query := `
		INSERT INTO trolley (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING ` + trolleyColumns

	var t Trolley
	err := r.db.QueryRow(ctx, query, userID).Scan(&t.ID, &t.UserID, &t.ItemCount, &t.Method)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to get or create trolley for user %s: %w", userID, err)
	}
	return &t, nil
}

// SetMethod records the user's fulfillment choice on the trolley, creating
// it if needed. Contents, validation and checkout all read the method back
// from this row, so the three can never disagree.
func (r *Repository) SetMethod(ctx context.Context, userID uuid.UUID, method pricing.Method) (*Trolley, error) {
	query := `
		INSERT INTO trolley (user_id, method)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET method = EXCLUDED.method
		RETURNING ` + trolleyColumns

	var t Trolley
	err := r.db.QueryRow(ctx, query, userID, method).Scan(&t.ID, &t.UserID, &t.ItemCount, &t.Method)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to set method for user %s: %w", userID, err)
	}
	return &t, nil
}

func (r *Repository) GetByID(ctx context.Context, trolleyID int64) (*Trolley, error) {
	query := `SELECT ` + trolleyColumns + ` FROM trolley WHERE id = $1`

	var t Trolley
	err := r.db.QueryRow(ctx, query, trolleyID).Scan(&t.ID, &t.UserID, &t.ItemCount, &t.Method)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: trolley %d", apperr.ErrNotFound, trolleyID)
		}
		return nil, fmt.Errorf("repository: failed to select trolley %d: %w", trolleyID, err)
	}
	return &t, nil
}

// AddItem merges quantity into an existing (product, unit) line or inserts a
// new one, then refreshes the cached item count, in one transaction.
func (r *Repository) AddItem(ctx context.Context, userID uuid.UUID, productID int64, unit pricing.UnitType, quantity decimal.Decimal) (item *Item, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Msg("repository: failed to rollback AddItem transaction")
			}
		}
	}()

	var trolleyID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO trolley (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id
	`, userID).Scan(&trolleyID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to ensure trolley for user %s: %w", userID, err)
	}

	var it Item
	err = tx.QueryRow(ctx, `
		INSERT INTO trolley_item (trolley_id, product_id, price_unit, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (trolley_id, product_id, price_unit)
			DO UPDATE SET quantity = trolley_item.quantity + EXCLUDED.quantity
		RETURNING id, trolley_id, product_id, price_unit, quantity
	`, trolleyID, productID, unit, quantity).Scan(&it.ID, &it.TrolleyID, &it.ProductID, &it.PriceUnit, &it.Quantity)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to upsert trolley item: %w", err)
	}

	if err = r.refreshItemCount(ctx, tx, trolleyID); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return &it, nil
}

// ItemOwners resolves the owning user of each existing item id in one query.
// Missing ids are simply absent from the result.
func (r *Repository) ItemOwners(ctx context.Context, itemIDs []int64) (map[int64]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT ti.id, t.user_id
		FROM trolley_item ti
		JOIN trolley t ON t.id = ti.trolley_id
		WHERE ti.id = ANY($1)
	`, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query item owners: %w", err)
	}
	defer rows.Close()

	owners := make(map[int64]uuid.UUID, len(itemIDs))
	for rows.Next() {
		var id int64
		var owner uuid.UUID
		if err := rows.Scan(&id, &owner); err != nil {
			return nil, fmt.Errorf("repository: failed to scan item owner: %w", err)
		}
		owners[id] = owner
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating item owners: %w", err)
	}
	return owners, nil
}

func (r *Repository) UpdateItemQuantity(ctx context.Context, itemID int64, quantity decimal.Decimal) (*Item, error) {
	var it Item
	err := r.db.QueryRow(ctx, `
		UPDATE trolley_item
		SET quantity = $2
		WHERE id = $1
		RETURNING id, trolley_id, product_id, price_unit, quantity
	`, itemID, quantity).Scan(&it.ID, &it.TrolleyID, &it.ProductID, &it.PriceUnit, &it.Quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: trolley item %d", apperr.ErrNotFound, itemID)
		}
		return nil, fmt.Errorf("repository: failed to update trolley item %d: %w", itemID, err)
	}
	return &it, nil
}

// RemoveItems deletes the given lines and refreshes the cached count of each
// affected trolley, in one transaction.
func (r *Repository) RemoveItems(ctx context.Context, itemIDs []int64) (removed []Item, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Msg("repository: failed to rollback RemoveItems transaction")
			}
		}
	}()

	rows, err := tx.Query(ctx, `
		DELETE FROM trolley_item
		WHERE id = ANY($1)
		RETURNING id, trolley_id, product_id, price_unit, quantity
	`, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to delete trolley items: %w", err)
	}

	trolleyIDs := make(map[int64]struct{})
	for rows.Next() {
		var it Item
		if err = rows.Scan(&it.ID, &it.TrolleyID, &it.ProductID, &it.PriceUnit, &it.Quantity); err != nil {
			rows.Close()
			return nil, fmt.Errorf("repository: failed to scan deleted trolley item: %w", err)
		}
		removed = append(removed, it)
		trolleyIDs[it.TrolleyID] = struct{}{}
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating deleted trolley items: %w", err)
	}

	for trolleyID := range trolleyIDs {
		if err = r.refreshItemCount(ctx, tx, trolleyID); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return removed, nil
}

// Items returns the trolley's lines joined with current catalog prices.
// Line totals are computed here, at read time.
func (r *Repository) Items(ctx context.Context, trolleyID int64) ([]ContentItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT ti.id, ti.product_id, p.name, p.price_cents, ti.price_unit, ti.quantity
		FROM trolley_item ti
		JOIN product p ON p.id = ti.product_id
		WHERE ti.trolley_id = $1
		ORDER BY ti.id
	`, trolleyID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query trolley items for trolley %d: %w", trolleyID, err)
	}
	defer rows.Close()

	items := make([]ContentItem, 0)
	for rows.Next() {
		var it ContentItem
		if err := rows.Scan(&it.ID, &it.ProductID, &it.ProductName, &it.UnitPriceCents, &it.PriceUnit, &it.Quantity); err != nil {
			return nil, fmt.Errorf("repository: failed to scan trolley item: %w", err)
		}
		it.TotalCents = pricing.LineTotal(it.UnitPriceCents, it.PriceUnit, it.Quantity)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating trolley items: %w", err)
	}
	return items, nil
}

func (r *Repository) refreshItemCount(ctx context.Context, tx pgx.Tx, trolleyID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE trolley
		SET item_count = (SELECT COUNT(*) FROM trolley_item WHERE trolley_id = $1)
		WHERE id = $1
	`, trolleyID)
	if err != nil {
		return fmt.Errorf("repository: failed to refresh item count for trolley %d: %w", trolleyID, err)
	}
	return nil
}
