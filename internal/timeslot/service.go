package timeslot

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"grocery-backend/internal/apperr"
	"grocery-backend/internal/pricing"
)

type Store interface {
	GeneratedThrough(ctx context.Context, method pricing.Method) (time.Time, bool, error)
	InsertSlots(ctx context.Context, method pricing.Method, slots []Slot, through time.Time) error
	ListFrom(ctx context.Context, method pricing.Method, from, to time.Time) ([]Slot, error)
	Reserve(ctx context.Context, userID uuid.UUID, slotID int64) (*Hold, error)
	Release(ctx context.Context, holdID uuid.UUID) error
	Consume(ctx context.Context, holdID uuid.UUID) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// GenerateSlots emits the slots covering [startDate, endDate] (whole days,
// inclusive) for a method. Pickup: 30-minute slots across business hours.
// Delivery: 2-hour windows on a coarser cadence.
func GenerateSlots(startDate, endDate time.Time, method pricing.Method) []Slot {
	openHour, closeHour := pickupOpenHour, pickupCloseHour
	length := pickupSlotLength
	capacity := pickupCapacity
	if method == pricing.MethodDelivery {
		openHour, closeHour = deliveryOpenHour, deliveryCloseHour
		length = deliverySlotLength
		capacity = deliveryCapacity
	}

	var slots []Slot
	for day := truncateToDay(startDate); !day.After(truncateToDay(endDate)); day = day.AddDate(0, 0, 1) {
		open := day.Add(time.Duration(openHour) * time.Hour)
		close := day.Add(time.Duration(closeHour) * time.Hour)
		for start := open; !start.Add(length).After(close); start = start.Add(length) {
			slots = append(slots, Slot{
				StartsAt:          start,
				EndsAt:            start.Add(length),
				Method:            method,
				RemainingCapacity: capacity,
			})
		}
	}
	return slots
}

// ListAvailable returns the slots after now within the 7-day horizon,
// lazily extending slot generation first so the horizon is never
// artificially short.
func (s *Service) ListAvailable(ctx context.Context, now time.Time, method pricing.Method) ([]SlotView, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: unknown fulfillment method %q", apperr.ErrValidation, method)
	}

	if err := s.ensureHorizon(ctx, now, method); err != nil {
		return nil, err
	}

	slots, err := s.store.ListFrom(ctx, method, now, now.AddDate(0, 0, HorizonDays))
	if err != nil {
		return nil, err
	}

	views := make([]SlotView, 0, len(slots))
	for _, slot := range slots {
		status := StatusAvailable
		if slot.RemainingCapacity <= 0 {
			status = StatusUnavailable
		}
		views = append(views, SlotView{
			SlotID:   slot.ID,
			StartsAt: slot.StartsAt,
			EndsAt:   slot.EndsAt,
			Status:   status,
		})
	}
	return views, nil
}

// Reserve places a hold on one unit of the slot's capacity. A full slot is
// an expected outcome and surfaces as apperr.ErrNoCapacity.
func (s *Service) Reserve(ctx context.Context, userID uuid.UUID, slotID int64) (*Hold, error) {
	hold, err := s.store.Reserve(ctx, userID, slotID)
	if err != nil {
		return nil, err
	}
	log.Info().Stringer("hold_id", hold.ID).Int64("slot_id", slotID).Stringer("user_id", userID).Msg("service: slot reserved")
	return hold, nil
}

// Release gives the held unit of capacity back (explicit cancellation).
func (s *Service) Release(ctx context.Context, holdID uuid.UUID) error {
	return s.store.Release(ctx, holdID)
}

// Consume removes the hold while leaving the capacity spent.
func (s *Service) Consume(ctx context.Context, holdID uuid.UUID) error {
	return s.store.Consume(ctx, holdID)
}

// ensureHorizon extends slot generation forward from the per-method
// high-water mark so re-runs never duplicate already-covered days.
func (s *Service) ensureHorizon(ctx context.Context, now time.Time, method pricing.Method) error {
	target := truncateToDay(now).AddDate(0, 0, HorizonDays)

	through, ok, err := s.store.GeneratedThrough(ctx, method)
	if err != nil {
		return err
	}
	if ok && !truncateToDay(through).Before(target) {
		return nil
	}

	start := truncateToDay(now)
	if ok && !truncateToDay(through).Before(start) {
		start = truncateToDay(through).AddDate(0, 0, 1)
	}

	slots := GenerateSlots(start, target, method)
	if err := s.store.InsertSlots(ctx, method, slots, target); err != nil {
		return err
	}
	log.Info().Str("method", method.String()).Time("from", start).Time("through", target).Int("slots", len(slots)).Msg("service: extended slot horizon")
	return nil
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
