package standup

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/skippi/standup/internal/metrics"
	"github.com/skippi/standup/internal/store"
)

// DefaultSweepInterval is how often the sweeper looks for expired posts.
const DefaultSweepInterval = 60 * time.Second

// Sweeper periodically finds and retires expired posts. It runs alongside
// event ingestion and shares the same invalidation path, so a sweep racing
// a message-delete event for the same post is harmless.
type Sweeper struct {
	store    store.DataStore
	manager  *Manager
	logger   zerolog.Logger
	interval time.Duration
}

// NewSweeper creates a Sweeper. A non-positive interval falls back to
// DefaultSweepInterval.
func NewSweeper(st store.DataStore, mgr *Manager, logger zerolog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: st, manager: mgr, logger: logger, interval: interval}
}

// Run blocks until ready is closed, then sweeps on a fixed interval until
// the context is canceled. It is not restarted within the process lifetime.
func (s *Sweeper) Run(ctx context.Context, ready <-chan struct{}) {
	select {
	case <-ready:
	case <-ctx.Done():
		return
	}
	s.logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx, time.Now().UTC())
		}
	}
}

// sweep retires every post expired at `now`. A failure on one post never
// blocks the others.
func (s *Sweeper) sweep(ctx context.Context, now time.Time) {
	metrics.SweepRuns.Inc()
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	expired, err := s.store.ExpiredPosts(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("expired post query failed")
		return
	}
	if len(expired) == 0 {
		return
	}

	s.logger.Info().Int("count", len(expired)).Msg("sweeping expired posts")
	for i := range expired {
		if err := s.manager.Invalidate(ctx, &expired[i], "expired"); err != nil {
			s.logger.Error().Err(err).
				Int64("post_id", expired[i].ID).
				Msg("failed to invalidate expired post")
		}
	}
}
