package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"grocery-backend/internal/apperr"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const orderColumns = `id, user_id, transaction_id, status, method,
	subtotal_cents, service_fee_cents, bag_fee_cents, total_cents,
	chosen_at, address, created_at`

// CreateFromPayment persists a paid order and settles everything that hangs
// off it in one transaction: stock is decremented, the trolley is deleted
// and the slot hold is consumed. The order row goes in first so a duplicate
// transaction_id aborts before any side effect, making webhook retries
// harmless.
func (r *Repository) CreateFromPayment(ctx context.Context, o *Order, items []Item, trolleyID int64, holdID uuid.UUID) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Msg("repository: failed to rollback CreateFromPayment transaction")
			}
		}
	}()

	err = tx.QueryRow(ctx, `
		INSERT INTO product_order
			(user_id, transaction_id, status, method, subtotal_cents,
			 service_fee_cents, bag_fee_cents, total_cents, chosen_at, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`, o.UserID, o.TransactionID, o.Status, o.Method, o.SubtotalCents,
		o.ServiceFeeCents, o.BagFeeCents, o.TotalCents, o.ChosenAt, o.Address,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: transaction %s", ErrDuplicateTransaction, o.TransactionID)
		}
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	for i := range items {
		it := &items[i]
		it.OrderID = o.ID

		_, err = tx.Exec(ctx, `
			UPDATE product SET quantity = quantity - $2 WHERE id = $1
		`, it.ProductID, it.Quantity)
		if err != nil {
			return fmt.Errorf("repository: failed to decrement stock for product %d: %w", it.ProductID, err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO product_order_item
				(order_id, product_id, product_name, unit_price_cents, price_unit, quantity, total_cents)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, it.OrderID, it.ProductID, it.ProductName, it.UnitPriceCents, it.PriceUnit, it.Quantity, it.TotalCents).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `DELETE FROM trolley WHERE id = $1`, trolleyID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete trolley %d: %w", trolleyID, err)
	}

	// The hold may already be gone if it expired and was swept while the
	// session stayed open; that is fine, the capacity was simply resold.
	if holdID != uuid.Nil {
		_, err = tx.Exec(ctx, `DELETE FROM slot_hold WHERE id = $1`, holdID)
		if err != nil {
			return fmt.Errorf("repository: failed to consume slot hold %s: %w", holdID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return nil
}

// CancelAndRestock marks the order for a refunded transaction canceled and
// returns its items to stock. A transaction already canceled is a no-op, so
// repeated refund webhooks restock only once.
func (r *Repository) CancelAndRestock(ctx context.Context, transactionID string) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Msg("repository: failed to rollback CancelAndRestock transaction")
			}
		}
	}()

	var orderID int64
	err = tx.QueryRow(ctx, `
		UPDATE product_order
		SET status = 'canceled'
		WHERE transaction_id = $1 AND status <> 'canceled'
		RETURNING id
	`, transactionID).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err = tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM product_order WHERE transaction_id = $1)`, transactionID).Scan(&exists); err != nil {
				return fmt.Errorf("repository: failed to check order for transaction %s: %w", transactionID, err)
			}
			if exists {
				// Already canceled; nothing to restock.
				err = tx.Commit(ctx)
				return err
			}
			return fmt.Errorf("%w: order for transaction %s", apperr.ErrNotFound, transactionID)
		}
		return fmt.Errorf("repository: failed to cancel order for transaction %s: %w", transactionID, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE product p
		SET quantity = p.quantity + i.quantity
		FROM product_order_item i
		WHERE i.order_id = $1 AND p.id = i.product_id
	`, orderID)
	if err != nil {
		return fmt.Errorf("repository: failed to restock items for order %d: %w", orderID, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	log.Info().Int64("order_id", orderID).Str("transaction_id", transactionID).Msg("repository: order canceled and restocked")
	return nil
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM product_order
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for user %s: %w", userID, err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		var o Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}
	return orders, nil
}

func (r *Repository) GetByID(ctx context.Context, orderID int64) (*Order, error) {
	var o Order
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM product_order WHERE id = $1`, orderID)
	if err := scanOrder(row, &o); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %d", apperr.ErrNotFound, orderID)
		}
		return nil, err
	}
	return &o, nil
}

func (r *Repository) ItemsByOrder(ctx context.Context, orderID int64) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, product_name, unit_price_cents, price_unit, quantity, total_cents
		FROM product_order_item
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query items for order %d: %w", orderID, err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName,
			&it.UnitPriceCents, &it.PriceUnit, &it.Quantity, &it.TotalCents); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items: %w", err)
	}
	return items, nil
}

// SetStatus applies a checked status transition.
func (r *Repository) SetStatus(ctx context.Context, orderID int64, from, to Status) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE product_order SET status = $3 WHERE id = $1 AND status = $2
	`, orderID, from, to)
	if err != nil {
		return fmt.Errorf("repository: failed to update status of order %d: %w", orderID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %d is not %s", apperr.ErrConflict, orderID, from)
	}
	return nil
}

func scanOrder(row pgx.Row, o *Order) error {
	err := row.Scan(&o.ID, &o.UserID, &o.TransactionID, &o.Status, &o.Method,
		&o.SubtotalCents, &o.ServiceFeeCents, &o.BagFeeCents, &o.TotalCents,
		&o.ChosenAt, &o.Address, &o.CreatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("repository: failed to scan order: %w", err)
	}
	return err
}
