package ranking

import (
	"context"
	"sync"
	"time"

	"github.com/spigell/cv-ranker/internal/logger"
	"go.uber.org/zap"
)

const DefaultRefreshDelay = 2 * time.Second

// RankFunc produces a fresh ranking, usually Engine.RankFile bound to the
// configured job description.
type RankFunc func(ctx context.Context) (*Result, error)

// Refresher re-ranks in the background after the index changes. Bursts of
// triggers within the delay collapse into one run. Failures are logged and
// the previous list stays in place.
type Refresher struct {
	rank    RankFunc
	delay   time.Duration
	trigger chan struct{}
	logger  *zap.Logger

	mu      sync.RWMutex
	latest  *Result
	updated time.Time
}

func NewRefresher(rank RankFunc, delay time.Duration, log *zap.Logger) *Refresher {
	if delay <= 0 {
		delay = DefaultRefreshDelay
	}
	return &Refresher{
		rank:    rank,
		delay:   delay,
		trigger: make(chan struct{}, 1),
		logger:  logger.WithStage(log, "refresh"),
	}
}

// Trigger schedules a re-rank. It never blocks.
func (r *Refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run serves triggers until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.trigger:
		}

		timer := time.NewTimer(r.delay)
	debounce:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-r.trigger:
				timer.Reset(r.delay)
			case <-timer.C:
				break debounce
			}
		}

		if _, err := r.Refresh(ctx); err != nil {
			r.logger.Warn("background ranking failed, keeping the previous list", zap.Error(err))
		}
	}
}

// Refresh ranks synchronously and stores the result on success.
func (r *Refresher) Refresh(ctx context.Context) (*Result, error) {
	result, err := r.rank(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.latest = result
	r.updated = time.Now()
	r.mu.Unlock()

	r.logger.Info("ranking refreshed", zap.Int("candidates", len(result.Candidates)), zap.Bool("fallback", result.Fallback))
	return result, nil
}

// Latest returns the most recent successful ranking, nil if none yet.
func (r *Refresher) Latest() (*Result, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.updated
}
