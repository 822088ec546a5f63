package membership

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

// CurrentTier maps the user's active membership onto a fee tier. Users
// without an active membership get TierNone, never an error.
func (r *Repository) CurrentTier(ctx context.Context, userID uuid.UUID) (pricing.Tier, error) {
	var name string
	err := r.db.QueryRow(ctx, `
		SELECT p.name
		FROM user_membership m
		JOIN membership_plan p ON p.id = m.plan_id
		WHERE m.user_id = $1 AND m.status = 'active'
	`, userID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricing.TierNone, nil
		}
		return pricing.TierNone, fmt.Errorf("repository: failed to select membership for user %s: %w", userID, err)
	}

	switch name {
	case string(pricing.TierSaver):
		return pricing.TierSaver, nil
	case string(pricing.TierSuperSaver):
		return pricing.TierSuperSaver, nil
	default:
		log.Warn().Str("plan", name).Stringer("user_id", userID).Msg("repository: membership plan has no fee tier")
		return pricing.TierNone, nil
	}
}

func (r *Repository) ListPlans(ctx context.Context) ([]Plan, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, price_cents, duration_months, description, stripe_price_id
		FROM membership_plan
		ORDER BY price_cents
	`)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query membership plans: %w", err)
	}
	defer rows.Close()

	plans := make([]Plan, 0)
	for rows.Next() {
		var p Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.DurationMonths, &p.Description, &p.StripePriceID); err != nil {
			return nil, fmt.Errorf("repository: failed to scan membership plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating membership plans: %w", err)
	}
	return plans, nil
}

func (r *Repository) PlanByID(ctx context.Context, planID int64) (*Plan, error) {
	var p Plan
	err := r.db.QueryRow(ctx, `
		SELECT id, name, price_cents, duration_months, description, stripe_price_id
		FROM membership_plan
		WHERE id = $1
	`, planID).Scan(&p.ID, &p.Name, &p.PriceCents, &p.DurationMonths, &p.Description, &p.StripePriceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: membership plan %d", apperr.ErrNotFound, planID)
		}
		return nil, fmt.Errorf("repository: failed to select membership plan %d: %w", planID, err)
	}
	return &p, nil
}

func (r *Repository) PlanByStripePriceID(ctx context.Context, priceID string) (*Plan, error) {
	var p Plan
	err := r.db.QueryRow(ctx, `
		SELECT id, name, price_cents, duration_months, description, stripe_price_id
		FROM membership_plan
		WHERE stripe_price_id = $1
	`, priceID).Scan(&p.ID, &p.Name, &p.PriceCents, &p.DurationMonths, &p.Description, &p.StripePriceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: membership plan for price %s", apperr.ErrNotFound, priceID)
		}
		return nil, fmt.Errorf("repository: failed to select membership plan for price %s: %w", priceID, err)
	}
	return &p, nil
}

// Current returns the user's membership joined with its plan name.
func (r *Repository) Current(ctx context.Context, userID uuid.UUID) (*Membership, error) {
	var m Membership
	err := r.db.QueryRow(ctx, `
		SELECT m.id, m.user_id, m.plan_id, p.name, m.start_date, m.renewal_date, m.status
		FROM user_membership m
		JOIN membership_plan p ON p.id = m.plan_id
		WHERE m.user_id = $1
	`, userID).Scan(&m.ID, &m.UserID, &m.PlanID, &m.PlanName, &m.StartDate, &m.RenewalDate, &m.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: membership for user %s", apperr.ErrNotFound, userID)
		}
		return nil, fmt.Errorf("repository: failed to select membership for user %s: %w", userID, err)
	}
	return &m, nil
}

// StripeCustomerID returns the gateway customer linked to the user, if any.
func (r *Repository) StripeCustomerID(ctx context.Context, userID uuid.UUID) (string, error) {
	var customerID string
	err := r.db.QueryRow(ctx, `SELECT stripe_customer_id FROM user_account WHERE user_id = $1`, userID).Scan(&customerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("repository: failed to select stripe customer for user %s: %w", userID, err)
	}
	return customerID, nil
}

func (r *Repository) UserByStripeCustomerID(ctx context.Context, customerID string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := r.db.QueryRow(ctx, `SELECT user_id FROM user_account WHERE stripe_customer_id = $1`, customerID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("%w: user for stripe customer %s", apperr.ErrNotFound, customerID)
		}
		return uuid.Nil, fmt.Errorf("repository: failed to select user for stripe customer %s: %w", customerID, err)
	}
	return userID, nil
}

// ActivateSubscription links the user to a gateway customer and records the
// membership as active, in one transaction. Re-activating replaces any
// previous membership row for the user.
func (r *Repository) ActivateSubscription(ctx context.Context, userID uuid.UUID, customerID string, planID int64, start, renewal time.Time) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Msg("repository: failed to rollback ActivateSubscription transaction")
			}
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO user_account (user_id, stripe_customer_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET stripe_customer_id = EXCLUDED.stripe_customer_id
	`, userID, customerID)
	if err != nil {
		return fmt.Errorf("repository: failed to upsert user account: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_membership (user_id, plan_id, start_date, renewal_date, status)
		VALUES ($1, $2, $3, $4, 'active')
		ON CONFLICT (user_id) DO UPDATE
			SET plan_id = EXCLUDED.plan_id,
			    start_date = EXCLUDED.start_date,
			    renewal_date = EXCLUDED.renewal_date,
			    status = 'active'
	`, userID, planID, start, renewal)
	if err != nil {
		return fmt.Errorf("repository: failed to upsert membership: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateRenewal pushes the renewal date forward after a successful recurring
// payment and re-activates the membership in case it was past due.
func (r *Repository) UpdateRenewal(ctx context.Context, userID uuid.UUID, renewal time.Time) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE user_membership
		SET renewal_date = $2, status = 'active'
		WHERE user_id = $1
	`, userID, renewal)
	if err != nil {
		return fmt.Errorf("repository: failed to update membership renewal for user %s: %w", userID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: membership for user %s", apperr.ErrNotFound, userID)
	}
	return nil
}

// ChangePlan switches the membership to another plan, keeping its dates.
func (r *Repository) ChangePlan(ctx context.Context, userID uuid.UUID, planID int64, renewal time.Time) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE user_membership
		SET plan_id = $2, renewal_date = $3
		WHERE user_id = $1
	`, userID, planID, renewal)
	if err != nil {
		return fmt.Errorf("repository: failed to change membership plan for user %s: %w", userID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: membership for user %s", apperr.ErrNotFound, userID)
	}
	return nil
}

func (r *Repository) SetStatus(ctx context.Context, userID uuid.UUID, status Status) error {
	ct, err := r.db.Exec(ctx, `UPDATE user_membership SET status = $2 WHERE user_id = $1`, userID, status)
	if err != nil {
		return fmt.Errorf("repository: failed to set membership status for user %s: %w", userID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: membership for user %s", apperr.ErrNotFound, userID)
	}
	return nil
}
