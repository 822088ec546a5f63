package timeslot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grocery-backend/internal/apperr"
	"grocery-backend/internal/pricing"
)

type mockStore struct {
	generatedThroughFn func(ctx context.Context, method pricing.Method) (time.Time, bool, error)
	insertSlotsFn      func(ctx context.Context, method pricing.Method, slots []Slot, through time.Time) error
	listFromFn         func(ctx context.Context, method pricing.Method, from, to time.Time) ([]Slot, error)
	reserveFn          func(ctx context.Context, userID uuid.UUID, slotID int64) (*Hold, error)
	releaseFn          func(ctx context.Context, holdID uuid.UUID) error
	consumeFn          func(ctx context.Context, holdID uuid.UUID) error
}

func (m *mockStore) GeneratedThrough(ctx context.Context, method pricing.Method) (time.Time, bool, error) {
	return m.generatedThroughFn(ctx, method)
}

func (m *mockStore) InsertSlots(ctx context.Context, method pricing.Method, slots []Slot, through time.Time) error {
	return m.insertSlotsFn(ctx, method, slots, through)
}

func (m *mockStore) ListFrom(ctx context.Context, method pricing.Method, from, to time.Time) ([]Slot, error) {
	return m.listFromFn(ctx, method, from, to)
}

func (m *mockStore) Reserve(ctx context.Context, userID uuid.UUID, slotID int64) (*Hold, error) {
	return m.reserveFn(ctx, userID, slotID)
}

func (m *mockStore) Release(ctx context.Context, holdID uuid.UUID) error {
	return m.releaseFn(ctx, holdID)
}

func (m *mockStore) Consume(ctx context.Context, holdID uuid.UUID) error {
	return m.consumeFn(ctx, holdID)
}

func TestGenerateSlots_PickupCadence(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	slots := GenerateSlots(day, day, pricing.MethodPickup)

	// 08:00 to 20:00 in 30-minute steps.
	require.Len(t, slots, 24)
	assert.Equal(t, day.Add(8*time.Hour), slots[0].StartsAt)
	assert.Equal(t, day.Add(8*time.Hour+30*time.Minute), slots[0].EndsAt)
	last := slots[len(slots)-1]
	assert.Equal(t, day.Add(20*time.Hour), last.EndsAt)
	for _, s := range slots {
		assert.Equal(t, pickupCapacity, s.RemainingCapacity)
		assert.Equal(t, pricing.MethodPickup, s.Method)
	}
}

func TestGenerateSlots_DeliveryCadence(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	slots := GenerateSlots(day, day, pricing.MethodDelivery)

	// 09:00 to 21:00 in 2-hour windows.
	require.Len(t, slots, 6)
	assert.Equal(t, day.Add(9*time.Hour), slots[0].StartsAt)
	assert.Equal(t, day.Add(11*time.Hour), slots[0].EndsAt)
	assert.Equal(t, day.Add(21*time.Hour), slots[len(slots)-1].EndsAt)
	for _, s := range slots {
		assert.Equal(t, deliveryCapacity, s.RemainingCapacity)
	}
}

func TestGenerateSlots_MultipleDays(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 2)

	slots := GenerateSlots(start, end, pricing.MethodDelivery)

	assert.Len(t, slots, 3*6)
}

func TestListAvailable_BackfillsHorizonFromScratch(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	var inserted []Slot
	var insertedThrough time.Time

	store := &mockStore{
		generatedThroughFn: func(ctx context.Context, method pricing.Method) (time.Time, bool, error) {
			return time.Time{}, false, nil
		},
		insertSlotsFn: func(ctx context.Context, method pricing.Method, slots []Slot, through time.Time) error {
			inserted = slots
			insertedThrough = through
			return nil
		},
		listFromFn: func(ctx context.Context, method pricing.Method, from, to time.Time) ([]Slot, error) {
			return []Slot{}, nil
		},
	}
	svc := NewService(store)

	_, err := svc.ListAvailable(context.Background(), now, pricing.MethodPickup)

	require.NoError(t, err)
	require.NotEmpty(t, inserted)
	wantThrough := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, wantThrough, insertedThrough)
	// Generation starts today, so the morning slots exist even though they
	// are in the past; the listing query filters them out.
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), inserted[0].StartsAt)
}

func TestListAvailable_ExtendsFromHighWaterMark(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	through := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	var inserted []Slot

	store := &mockStore{
		generatedThroughFn: func(ctx context.Context, method pricing.Method) (time.Time, bool, error) {
			return through, true, nil
		},
		insertSlotsFn: func(ctx context.Context, method pricing.Method, slots []Slot, thr time.Time) error {
			inserted = slots
			return nil
		},
		listFromFn: func(ctx context.Context, method pricing.Method, from, to time.Time) ([]Slot, error) {
			return []Slot{}, nil
		},
	}
	svc := NewService(store)

	_, err := svc.ListAvailable(context.Background(), now, pricing.MethodDelivery)

	require.NoError(t, err)
	require.NotEmpty(t, inserted)
	// New generation picks up the day after the covered range.
	assert.Equal(t, time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC), inserted[0].StartsAt)
}

func TestListAvailable_HorizonAlreadyCovered(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	store := &mockStore{
		generatedThroughFn: func(ctx context.Context, method pricing.Method) (time.Time, bool, error) {
			return time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC), true, nil
		},
		insertSlotsFn: func(ctx context.Context, method pricing.Method, slots []Slot, through time.Time) error {
			t.Fatal("unexpected InsertSlots call")
			return nil
		},
		listFromFn: func(ctx context.Context, method pricing.Method, from, to time.Time) ([]Slot, error) {
			return []Slot{
				{ID: 1, StartsAt: now.Add(time.Hour), EndsAt: now.Add(90 * time.Minute), Method: method, RemainingCapacity: 3},
				{ID: 2, StartsAt: now.Add(2 * time.Hour), EndsAt: now.Add(150 * time.Minute), Method: method, RemainingCapacity: 0},
			}, nil
		},
	}
	svc := NewService(store)

	views, err := svc.ListAvailable(context.Background(), now, pricing.MethodPickup)

	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, StatusAvailable, views[0].Status)
	assert.Equal(t, StatusUnavailable, views[1].Status)
}

func TestListAvailable_InvalidMethod(t *testing.T) {
	svc := NewService(&mockStore{})

	_, err := svc.ListAvailable(context.Background(), time.Now(), pricing.Method("teleport"))

	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestReserve_NoCapacity(t *testing.T) {
	store := &mockStore{
		reserveFn: func(ctx context.Context, userID uuid.UUID, slotID int64) (*Hold, error) {
			return nil, fmt.Errorf("%w: time slot %d", apperr.ErrNoCapacity, slotID)
		},
	}
	svc := NewService(store)

	_, err := svc.Reserve(context.Background(), uuid.Must(uuid.NewV4()), 42)

	assert.ErrorIs(t, err, apperr.ErrNoCapacity)
}

// countingStore models a single slot with finite capacity behind a mutex, the
// way the database serializes the conditional decrement.
type countingStore struct {
	mockStore

	mu        sync.Mutex
	remaining int
	holds     int
}

func (c *countingStore) Reserve(ctx context.Context, userID uuid.UUID, slotID int64) (*Hold, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remaining == 0 {
		return nil, fmt.Errorf("%w: time slot %d", apperr.ErrNoCapacity, slotID)
	}
	c.remaining--
	c.holds++
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	return &Hold{ID: id, SlotID: slotID, UserID: userID, CreatedAt: time.Now()}, nil
}

func TestReserve_ConcurrentNeverOversells(t *testing.T) {
	const capacity = 4
	const attempts = 20

	store := &countingStore{remaining: capacity}
	svc := NewService(store)

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), uuid.Must(uuid.NewV4()), 1)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, full int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, apperr.ErrNoCapacity):
			full++
		}
	}

	assert.Equal(t, capacity, succeeded)
	assert.Equal(t, attempts-capacity, full)
	assert.Equal(t, 0, store.remaining)
	assert.Equal(t, capacity, store.holds)
}
