package timeslot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSweepStore struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (m *mockSweepStore) SweepExpired(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, cutoff)
	return 1, 2, nil
}

func (m *mockSweepStore) calls() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.cutoffs...)
}

func TestSweeper_SweepsOnTickAndStopsOnCancel(t *testing.T) {
	store := &mockSweepStore{}
	sweeper := NewSweeper(store, 10*time.Millisecond, HoldTTL)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return len(store.calls()) >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}

func TestSweeper_CutoffIsTTLBehindNow(t *testing.T) {
	store := &mockSweepStore{}
	sweeper := NewSweeper(store, time.Hour, 10*time.Minute)

	before := time.Now().UTC()
	sweeper.sweep(context.Background())
	after := time.Now().UTC()

	calls := store.calls()
	require.Len(t, calls, 1)
	cutoff := calls[0]
	assert.False(t, cutoff.Before(before.Add(-10*time.Minute)))
	assert.False(t, cutoff.After(after.Add(-10*time.Minute)))
}
