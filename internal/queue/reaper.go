package queue

import (
	"context"
	"time"

	"github.com/flowforge/mediaflow/internal/domain"
	"github.com/flowforge/mediaflow/internal/platform/logger"
)

// DefaultReaperInterval is how often delayed jobs are checked for
// promotion to ready (§4.1's concrete mechanism for backoff; a dependent
// whose last dependency completes is pushed to ready by the ack script).
const DefaultReaperInterval = 250 * time.Millisecond

// Reaper periodically promotes due delayed jobs from each queue's ZSET
// back onto its ready LIST.
type Reaper struct {
	rdb      *RedisBackend
	log      *logger.Logger
	interval time.Duration
	queues   []string
}

func NewReaper(rdb *RedisBackend, log *logger.Logger, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultReaperInterval
	}
	return &Reaper{
		rdb:      rdb,
		log:      log.With("service", "Reaper"),
		interval: interval,
		queues: []string{
			domain.QueueTranscode,
			domain.QueueIntelligence,
			domain.QueueRender,
			domain.QueueLabels,
		},
	}
}

// Run blocks until ctx is done, sweeping every tick.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	for _, q := range r.queues {
		n, err := reapScript.Run(ctx, r.rdb.rdb, []string{delayedKey(q), readyKey(q)}, nowMs()).Int()
		if err != nil {
			r.log.Warn("reap sweep failed", "queue", q, "error", err)
			continue
		}
		if n > 0 {
			r.log.Debug("promoted delayed jobs", "queue", q, "count", n)
		}
	}
}
