package store

import (
	"sync"
	"time"

	"github.com/netobserv-lab/gnmi-exporter/internal/model"
	"go.uber.org/zap"
)

// SweeperConfig controls automatic staleness eviction.
type SweeperConfig struct {
	Threshold time.Duration // entry max age since last write, 0 = default
	Interval  time.Duration // sweep cadence, 0 = default
}

// Sweeper periodically evicts entries that have not been written within
// the staleness threshold.
type Sweeper struct {
	store     *Store
	logger    *zap.Logger
	threshold time.Duration
	interval  time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper starts the background sweep loop.
func NewSweeper(s *Store, logger *zap.Logger, cfg SweeperConfig) *Sweeper {
	if cfg.Threshold <= 0 {
		cfg.Threshold = model.DefaultStaleThreshold
	}
	if cfg.Interval <= 0 {
		cfg.Interval = model.DefaultSweepInterval
	}
	sw := &Sweeper{
		store:     s,
		logger:    logger,
		threshold: cfg.Threshold,
		interval:  cfg.Interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go sw.run()
	return sw
}

func (sw *Sweeper) run() {
	defer close(sw.done)
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sw.stop:
			return
		case <-ticker.C:
			sw.sweepOnce()
		}
	}
}

func (sw *Sweeper) sweepOnce() {
	cutoff := sw.store.now().Add(-sw.threshold)
	if n := sw.store.evictOlderThan(cutoff); n > 0 {
		sw.logger.Info("staleness sweep evicted entries", zap.Int("entries", n))
	}
}

// Stop terminates the sweep loop and waits for it to exit.
func (sw *Sweeper) Stop() {
	sw.stopOnce.Do(func() { close(sw.stop) })
	<-sw.done
}
