// Package session runs the per-target subscription state machine:
// dial, capability check, subscribe, stream, and reconnect with
// backoff. One session owns one target's stream exclusively; sessions
// never share state.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/netobserv-lab/gnmi-exporter/internal/model"
	"github.com/netobserv-lab/gnmi-exporter/internal/plugin"
	gpb "github.com/openconfig/gnmi/proto/gnmi"
	"go.uber.org/zap"
)

const (
	rpcTimeout = 10 * time.Second
	// malformedLimit closes the stream once a single attempt has
	// skipped this many protocol-level malformed updates.
	malformedLimit = 64
)

// Config wires one session. Everything a session touches is passed in
// explicitly; there is no process-global state.
type Config struct {
	Target  model.TargetConfig
	Plugins []plugin.Plugin
	Writer  plugin.OwnedWriter
	Evictor model.TargetEvictor
	Logger  *zap.Logger
	Dialer  Dialer // nil selects the gRPC dialer

	Oversampling       int
	WatchdogMultiplier int
	NotifyBuffer       int
	DispatchBuffer     int

	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffJitter  float64
	MaxRetries     int
	HaltedSleep    time.Duration
}

func (c *Config) applyDefaults() {
	if c.Dialer == nil {
		c.Dialer = grpcDial
	}
	if c.Oversampling <= 0 {
		c.Oversampling = model.DefaultOversampling
	}
	if c.WatchdogMultiplier <= 0 {
		c.WatchdogMultiplier = model.DefaultWatchdogMultiplier
	}
	if c.NotifyBuffer <= 0 {
		c.NotifyBuffer = model.DefaultNotifyBuffer
	}
	if c.DispatchBuffer <= 0 {
		c.DispatchBuffer = model.DefaultDispatchBuffer
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = model.DefaultBackoffInitial
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = model.DefaultBackoffMax
	}
	if c.BackoffJitter <= 0 {
		c.BackoffJitter = model.DefaultBackoffJitter
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = model.DefaultMaxRetries
	}
	if c.HaltedSleep <= 0 {
		c.HaltedSleep = model.DefaultHaltedSleep
	}
}

// Session is the runtime state machine bound 1:1 to a target.
type Session struct {
	cfg        Config
	dispatcher *plugin.Dispatcher
	logger     *zap.Logger

	mu        sync.Mutex
	health    model.TargetHealth
	succeeded bool // attempt made progress, cleared by takeSuccess
}

// New builds a session. The dispatcher (and with it the per-plugin
// routing table) is resolved once, not per notification.
func New(cfg Config) *Session {
	cfg.applyDefaults()
	logger := cfg.Logger.With(zap.String("target", cfg.Target.Name))
	return &Session{
		cfg:        cfg,
		dispatcher: plugin.NewDispatcher(cfg.Target.Name, cfg.Plugins, cfg.Writer, logger, cfg.DispatchBuffer),
		logger:     logger,
		health: model.TargetHealth{
			Target:    cfg.Target.Name,
			Address:   cfg.Target.Address,
			State:     model.StateIdle,
			StateName: model.StateIdle.String(),
		},
	}
}

// Health returns a copy of the current health view.
func (s *Session) Health() model.TargetHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

func (s *Session) setState(state model.TargetState) {
	s.mu.Lock()
	s.health.State = state
	s.health.StateName = state.String()
	s.mu.Unlock()
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	s.health.LastError = err.Error()
	s.health.RetryCount++
	s.mu.Unlock()
}

func (s *Session) markSuccess(sync bool) {
	s.mu.Lock()
	s.health.LastSuccess = time.Now()
	s.health.RetryCount = 0
	s.health.LastError = ""
	s.succeeded = true
	if sync {
		s.health.SyncComplete = true
	}
	s.mu.Unlock()
}

// takeSuccess reports whether the last attempt made progress and
// clears the flag for the next one.
func (s *Session) takeSuccess() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.succeeded
	s.succeeded = false
	return v
}

func (s *Session) clearSync() {
	s.mu.Lock()
	s.health.SyncComplete = false
	s.mu.Unlock()
}

// Run drives the session until ctx is cancelled. Every failure is
// retryable: the loop reconnects with capped, jittered exponential
// backoff and degrades to a long-sleep Halted state after MaxRetries
// consecutive failures. It never terminates the process.
func (s *Session) Run(ctx context.Context) {
	defer s.shutdown()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.BackoffInitial
	bo.MaxInterval = s.cfg.BackoffMax
	bo.RandomizationFactor = s.cfg.BackoffJitter
	bo.MaxElapsedTime = 0 // retry forever, Halted handles escalation
	bo.Reset()

	retries := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		// An attempt that streamed data was healthy: escalation to
		// Halted is for consecutive failures only, so a blip after
		// hours of streaming starts the count over.
		if s.takeSuccess() {
			retries = 0
			bo.Reset()
		}

		// The stream is gone: whatever the cause, entries owned by
		// this target are no longer fresh.
		s.cfg.Evictor.MarkTargetStale(s.cfg.Target.Name)
		s.clearSync()
		s.dispatcher.SyncChanged(false)
		s.setError(err)

		retries++
		if retries >= s.cfg.MaxRetries {
			s.logger.Error("sustained failure, halting reconnects",
				zap.Int("retries", retries),
				zap.Duration("sleep", s.cfg.HaltedSleep),
				zap.Error(err))
			s.setState(model.StateHalted)
			s.cfg.Evictor.EvictTarget(s.cfg.Target.Name)
			if !sleepCtx(ctx, s.cfg.HaltedSleep) {
				return
			}
			retries = 0
			bo.Reset()
			continue
		}

		wait := bo.NextBackOff()
		s.logger.Warn("stream lost, backing off",
			zap.Duration("wait", wait),
			zap.Int("retries", retries),
			zap.Error(err))
		s.setState(model.StateBackoff)
		if !sleepCtx(ctx, wait) {
			return
		}
	}
}

// runOnce performs one connect-subscribe-stream attempt. A nil return
// never happens; the stream either errors or ctx ends the attempt.
func (s *Session) runOnce(ctx context.Context) error {
	s.setState(model.StateConnecting)

	client, closer, err := s.cfg.Dialer(s.cfg.Target)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer closer.Close()

	encoding, err := s.checkCapabilities(ctx, client)
	if err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancel(withCredentials(ctx, s.cfg.Target))
	defer cancel()

	stream, err := client.Subscribe(streamCtx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	req := buildSubscribeRequest(s.cfg.Target, s.cfg.Plugins, encoding, s.cfg.Oversampling)
	if err := stream.Send(req); err != nil {
		return fmt.Errorf("send subscription: %w", err)
	}

	s.logger.Info("subscribed",
		zap.String("encoding", encoding.String()),
		zap.Int("plugins", len(s.cfg.Plugins)))
	s.setState(model.StateSyncing)

	return s.consume(streamCtx, cancel, stream)
}

// checkCapabilities verifies that the device supports every data model
// the target's plugins require, and negotiates the stream encoding.
func (s *Session) checkCapabilities(ctx context.Context, client gpb.GNMIClient) (gpb.Encoding, error) {
	rpcCtx, cancel := context.WithTimeout(withCredentials(ctx, s.cfg.Target), rpcTimeout)
	defer cancel()

	resp, err := client.Capabilities(rpcCtx, &gpb.CapabilityRequest{})
	if err != nil {
		return 0, fmt.Errorf("capabilities: %w", err)
	}

	supported := make(map[string]bool, len(resp.SupportedModels))
	for _, m := range resp.SupportedModels {
		supported[m.Name] = true
	}
	for _, p := range s.cfg.Plugins {
		for _, dm := range p.DataModels() {
			if !supported[dm] {
				return 0, fmt.Errorf("device does not support data model %q (plugin %s)", dm, p.Name())
			}
		}
	}

	return pickEncoding(s.cfg.Target.ForceEncoding, resp.SupportedEncodings)
}

// consume pumps the stream: a reader goroutine feeds a bounded channel
// so plugin dispatch never stalls the network read, and a watchdog
// forces a reconnect when a sample-mode stream goes silent.
func (s *Session) consume(ctx context.Context, cancel context.CancelFunc, stream gpb.GNMI_SubscribeClient) error {
	recvCh := make(chan *gpb.SubscribeResponse, s.cfg.NotifyBuffer)
	errCh := make(chan error, 1)

	go func() {
		for {
			sr, err := stream.Recv()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case recvCh <- sr:
			case <-ctx.Done():
				return
			}
		}
	}()

	// The watchdog only applies to sample mode: an on-change stream may
	// legitimately stay silent.
	var watchdog *time.Timer
	var watchdogC <-chan time.Time
	wdTimeout := s.cfg.Target.SampleInterval * time.Duration(s.cfg.WatchdogMultiplier)
	if s.cfg.Target.Mode == model.ModeSample {
		watchdog = time.NewTimer(wdTimeout)
		defer watchdog.Stop()
		watchdogC = watchdog.C
	}

	malformed := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			// Responses received before the error are still valid;
			// drain them so a stream drop loses nothing it delivered.
			for {
				select {
				case sr := <-recvCh:
					if herr := s.handleResponse(sr, &malformed); herr != nil {
						return herr
					}
				default:
					return fmt.Errorf("stream receive: %w", err)
				}
			}
		case <-watchdogC:
			cancel() // unblock the reader goroutine
			return fmt.Errorf("watchdog: no message within %v", wdTimeout)
		case sr := <-recvCh:
			if watchdog != nil {
				if !watchdog.Stop() {
					select {
					case <-watchdog.C:
					default:
					}
				}
				watchdog.Reset(wdTimeout)
			}
			if err := s.handleResponse(sr, &malformed); err != nil {
				return err
			}
		}
	}
}

// handleResponse routes one SubscribeResponse. Malformed updates are
// logged and skipped; only a sustained flood of them fails the attempt.
func (s *Session) handleResponse(sr *gpb.SubscribeResponse, malformed *int) error {
	switch resp := sr.Response.(type) {
	case *gpb.SubscribeResponse_Update:
		notifs, bad := decodeNotification(s.cfg.Target.Name, resp.Update, time.Now())
		if bad > 0 {
			*malformed += bad
			s.logger.Warn("skipped malformed updates",
				zap.Int("count", bad),
				zap.Int("total", *malformed))
			if *malformed >= malformedLimit {
				return fmt.Errorf("malformed update flood: %d skipped", *malformed)
			}
		}
		for _, n := range notifs {
			s.dispatcher.Dispatch(n)
		}
		s.markSuccess(false)
		return nil

	case *gpb.SubscribeResponse_SyncResponse:
		s.logger.Info("initial sync complete")
		s.markSuccess(true)
		s.setState(model.StateStreaming)
		s.dispatcher.SyncChanged(true)
		return nil

	default:
		*malformed++
		s.logger.Warn("unexpected subscribe response", zap.Any("response", sr.Response))
		if *malformed >= malformedLimit {
			return fmt.Errorf("malformed response flood: %d skipped", *malformed)
		}
		return nil
	}
}

// shutdown runs on manager-initiated close: the terminal Closed state.
func (s *Session) shutdown() {
	s.dispatcher.Close()
	s.cfg.Evictor.EvictTarget(s.cfg.Target.Name)
	s.setState(model.StateClosed)
	s.logger.Info("session closed")
}

// sleepCtx sleeps for d unless ctx ends first. Returns false when
// cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
