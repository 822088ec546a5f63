package timeslot

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type sweepStore interface {
	SweepExpired(ctx context.Context, cutoff time.Time) (restored, deleted int64, err error)
}

// Sweeper periodically reclaims capacity from holds older than the TTL.
type Sweeper struct {
	store    sweepStore
	interval time.Duration
	ttl      time.Duration
}

func NewSweeper(store sweepStore, interval, ttl time.Duration) *Sweeper {
	return &Sweeper{store: store, interval: interval, ttl: ttl}
}

// Run sweeps once immediately, then on every tick until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Dur("ttl", s.ttl).Msg("sweeper: started")

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sweeper: stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.ttl)
	restored, deleted, err := s.store.SweepExpired(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Time("cutoff", cutoff).Msg("sweeper: failed to sweep expired holds")
		return
	}
	if deleted > 0 {
		log.Info().Int64("slots_restored", restored).Int64("holds_deleted", deleted).Msg("sweeper: reclaimed expired holds")
	}
}
