package timeslot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"grocery-backend/internal/apperr"
	"grocery-backend/internal/pricing"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GeneratedThrough returns the last date slots have been generated for, per
// method. ok is false when no generation has happened yet.
func (r *Repository) GeneratedThrough(ctx context.Context, method pricing.Method) (through time.Time, ok bool, err error) {
	err = r.db.QueryRow(ctx, `SELECT generated_through FROM slot_horizon WHERE method = $1`, method).Scan(&through)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("repository: failed to select slot horizon for %s: %w", method, err)
	}
	return through, true, nil
}

// InsertSlots stores newly generated slots and advances the per-method
// high-water mark, in one transaction. Re-inserting an already-covered
// (method, start) pair is a no-op, so capacity is never doubled.
func (r *Repository) InsertSlots(ctx context.Context, method pricing.Method, slots []Slot, through time.Time) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Msg("repository: failed to rollback InsertSlots transaction")
			}
		}
	}()

	for _, s := range slots {
		_, err = tx.Exec(ctx, `
			INSERT INTO time_slot (starts_at, ends_at, method, remaining_capacity)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (method, starts_at) DO NOTHING
		`, s.StartsAt, s.EndsAt, s.Method, s.RemainingCapacity)
		if err != nil {
			return fmt.Errorf("repository: failed to insert time slot: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO slot_horizon (method, generated_through)
		VALUES ($1, $2)
		ON CONFLICT (method) DO UPDATE
			SET generated_through = GREATEST(slot_horizon.generated_through, EXCLUDED.generated_through)
	`, method, through)
	if err != nil {
		return fmt.Errorf("repository: failed to advance slot horizon: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) ListFrom(ctx context.Context, method pricing.Method, from, to time.Time) ([]Slot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, starts_at, ends_at, method, remaining_capacity
		FROM time_slot
		WHERE method = $1 AND starts_at > $2 AND starts_at < $3
		ORDER BY starts_at
	`, method, from, to)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query time slots: %w", err)
	}
	defer rows.Close()

	slots := make([]Slot, 0)
	for rows.Next() {
		var s Slot
		if err := rows.Scan(&s.ID, &s.StartsAt, &s.EndsAt, &s.Method, &s.RemainingCapacity); err != nil {
			return nil, fmt.Errorf("repository: failed to scan time slot: %w", err)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating time slots: %w", err)
	}
	return slots, nil
}

// Reserve atomically takes one unit of capacity and records a hold for it.
// The conditional UPDATE serializes concurrent attempts on the same slot:
// when only one unit remains, exactly one of them matches the
// remaining_capacity > 0 predicate.
func (r *Repository) Reserve(ctx context.Context, userID uuid.UUID, slotID int64) (hold *Hold, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Msg("repository: failed to rollback Reserve transaction")
			}
		}
	}()

	ct, err := tx.Exec(ctx, `
		UPDATE time_slot
		SET remaining_capacity = remaining_capacity - 1
		WHERE id = $1 AND remaining_capacity > 0
	`, slotID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to decrement slot capacity: %w", err)
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err = tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM time_slot WHERE id = $1)`, slotID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("repository: failed to check slot %d: %w", slotID, err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: time slot %d", apperr.ErrNotFound, slotID)
		}
		return nil, fmt.Errorf("%w: time slot %d", apperr.ErrNoCapacity, slotID)
	}

	holdID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("repository: failed to generate hold id: %w", err)
	}

	h := Hold{ID: holdID, SlotID: slotID, UserID: userID}
	err = tx.QueryRow(ctx, `
		INSERT INTO slot_hold (id, slot_id, user_id)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, h.ID, h.SlotID, h.UserID).Scan(&h.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to insert slot hold: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return &h, nil
}

// Release removes a hold and restores its unit of capacity; used by explicit
// cancellation. Expired holds are reclaimed in bulk by SweepExpired instead.
func (r *Repository) Release(ctx context.Context, holdID uuid.UUID) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Msg("repository: failed to rollback Release transaction")
			}
		}
	}()

	var slotID int64
	err = tx.QueryRow(ctx, `DELETE FROM slot_hold WHERE id = $1 RETURNING slot_id`, holdID).Scan(&slotID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: hold %s", apperr.ErrNotFound, holdID)
		}
		return fmt.Errorf("repository: failed to delete slot hold %s: %w", holdID, err)
	}

	_, err = tx.Exec(ctx, `UPDATE time_slot SET remaining_capacity = remaining_capacity + 1 WHERE id = $1`, slotID)
	if err != nil {
		return fmt.Errorf("repository: failed to restore slot capacity: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return nil
}

// Consume removes a hold without restoring capacity: the unit was spent for
// good by a completed order.
func (r *Repository) Consume(ctx context.Context, holdID uuid.UUID) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM slot_hold WHERE id = $1`, holdID)
	if err != nil {
		return fmt.Errorf("repository: failed to consume slot hold %s: %w", holdID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: hold %s", apperr.ErrNotFound, holdID)
	}
	return nil
}

// SweepExpired reclaims capacity from holds older than cutoff: restore
// aggregated counts per slot, then delete the expired holds, both against
// the same cutoff and inside one transaction. Holds created after the cutoff
// are untouched by either statement, so live reservations never race with
// the sweep.
func (r *Repository) SweepExpired(ctx context.Context, cutoff time.Time) (restored, deleted int64, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Msg("repository: failed to rollback SweepExpired transaction")
			}
		}
	}()

	ct, err := tx.Exec(ctx, `
		UPDATE time_slot t
		SET remaining_capacity = t.remaining_capacity + s.expired
		FROM (
			SELECT slot_id, COUNT(*) AS expired
			FROM slot_hold
			WHERE created_at < $1
			GROUP BY slot_id
		) s
		WHERE t.id = s.slot_id
	`, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("repository: failed to restore expired capacity: %w", err)
	}
	restored = ct.RowsAffected()

	ct, err = tx.Exec(ctx, `DELETE FROM slot_hold WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("repository: failed to delete expired holds: %w", err)
	}
	deleted = ct.RowsAffected()

	if err = tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return restored, deleted, nil
}
