package timeslot

import (
	"time"

	"github.com/gofrs/uuid"

	"grocery-backend/internal/pricing"
)

const (
	// HoldTTL is how long a reservation hold survives without being consumed
	// by a completed checkout.
	HoldTTL = 10 * time.Minute

	// SweepInterval is the period of the background cleanup loop.
	SweepInterval = 10 * time.Minute

	// HorizonDays is how far ahead the availability listing reaches.
	HorizonDays = 7
)

// Slot generation cadence per fulfillment method. Pickup gets short slots on
// a dense cadence, delivery gets longer windows on a coarser one.
const (
	pickupOpenHour  = 8
	pickupCloseHour = 20
	pickupCapacity  = 6

	deliveryOpenHour  = 9
	deliveryCloseHour = 21
	deliveryCapacity  = 4
)

var (
	pickupSlotLength   = 30 * time.Minute
	deliverySlotLength = 2 * time.Hour
)

// Slot is a fixed time window with finite fulfillment capacity.
// RemainingCapacity never goes negative; each unit of it moves through
// Free -> Held -> {Consumed | Released}.
type Slot struct {
	ID                int64          `json:"slot_id" db:"id"`
	StartsAt          time.Time      `json:"starts_at" db:"starts_at"`
	EndsAt            time.Time      `json:"ends_at" db:"ends_at"`
	Method            pricing.Method `json:"method" db:"method"`
	RemainingCapacity int            `json:"remaining_capacity" db:"remaining_capacity"`
}

// Hold is a provisional claim on one unit of a slot's capacity. It expires
// HoldTTL after CreatedAt unless consumed first.
type Hold struct {
	ID        uuid.UUID `json:"hold_id" db:"id"`
	SlotID    int64     `json:"slot_id" db:"slot_id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Status string

const (
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
)

// SlotView is the client-facing availability row.
type SlotView struct {
	SlotID   int64     `json:"slot_id"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Status   Status    `json:"status"`
}
