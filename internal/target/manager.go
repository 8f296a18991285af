// Package target owns the set of configured devices: it resolves each
// target's plugin bindings, runs one subscription session per target,
// and aggregates their health for the probe endpoints.
package target

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/netobserv-lab/gnmi-exporter/internal/model"
	"github.com/netobserv-lab/gnmi-exporter/internal/plugin"
	"github.com/netobserv-lab/gnmi-exporter/internal/session"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ManagerConfig wires the manager. Session tuning fields are copied
// into every session; zero values select the session defaults.
type ManagerConfig struct {
	Targets      []model.TargetConfig
	Registry     *plugin.Registry
	Writer       plugin.OwnedWriter
	Evictor      model.TargetEvictor
	Logger       *zap.Logger
	MetricPrefix string
	Dialer       session.Dialer // nil selects the gRPC dialer

	Oversampling       int
	WatchdogMultiplier int
	BackoffInitial     time.Duration
	BackoffMax         time.Duration
	BackoffJitter      float64
	MaxRetries         int
	HaltedSleep        time.Duration

	ShutdownGrace time.Duration
}

// Manager runs one session per configured target. Sessions are fully
// isolated: one device failing, flapping, or halting never affects the
// others.
type Manager struct {
	cfg      ManagerConfig
	logger   *zap.Logger
	sessions []*session.Session

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
}

// NewManager resolves every target's plugin set up front. Any binding
// error is a configuration error and fails construction, before any
// connection is attempted.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("target: no targets configured")
	}
	if cfg.MetricPrefix == "" {
		cfg.MetricPrefix = model.DefaultMetricPrefix
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = model.DefaultShutdownGrace
	}

	m := &Manager{cfg: cfg, logger: cfg.Logger}

	seen := make(map[string]bool, len(cfg.Targets))
	for i := range cfg.Targets {
		tc := cfg.Targets[i]
		if err := tc.Validate(); err != nil {
			return nil, fmt.Errorf("target: %w", err)
		}
		if seen[tc.Name] {
			return nil, fmt.Errorf("target: duplicate target name %q", tc.Name)
		}
		seen[tc.Name] = true

		plugins, err := cfg.Registry.Build(tc, cfg.MetricPrefix, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", tc.Name, err)
		}

		m.sessions = append(m.sessions, session.New(session.Config{
			Target:             tc,
			Plugins:            plugins,
			Writer:             cfg.Writer,
			Evictor:            cfg.Evictor,
			Logger:             cfg.Logger,
			Dialer:             cfg.Dialer,
			Oversampling:       cfg.Oversampling,
			WatchdogMultiplier: cfg.WatchdogMultiplier,
			BackoffInitial:     cfg.BackoffInitial,
			BackoffMax:         cfg.BackoffMax,
			BackoffJitter:      cfg.BackoffJitter,
			MaxRetries:         cfg.MaxRetries,
			HaltedSleep:        cfg.HaltedSleep,
		}))
	}
	return m, nil
}

// Start spawns every session and returns immediately. Starting twice
// is a programming error.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		panic("target: manager started twice")
	}
	m.started = true

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.group, runCtx = errgroup.WithContext(runCtx)

	for _, s := range m.sessions {
		s := s
		m.group.Go(func() error {
			s.Run(runCtx)
			return nil
		})
	}
	m.logger.Info("sessions started", zap.Int("targets", len(m.sessions)))
}

// Stop cancels every session and waits for them to close, up to the
// shutdown grace period. Sessions still draining after the deadline
// are abandoned; their dispatchers stop with the process.
func (m *Manager) Stop() error {
	m.mu.Lock()
	cancel, group := m.cancel, m.group
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case err := <-done:
		m.logger.Info("all sessions closed")
		return err
	case <-time.After(m.cfg.ShutdownGrace):
		return fmt.Errorf("target: shutdown grace %v exceeded", m.cfg.ShutdownGrace)
	}
}

// Health returns the per-target health views, sorted by target name.
func (m *Manager) Health() []model.TargetHealth {
	out := make([]model.TargetHealth, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Health())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// Targets returns the number of configured targets.
func (m *Manager) Targets() int { return len(m.sessions) }
