package plugin

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/netobserv-lab/gnmi-exporter/internal/model"
	"github.com/netobserv-lab/gnmi-exporter/internal/store"
	"go.uber.org/zap"
)

// OwnedWriter is the store write side with plugin provenance.
type OwnedWriter interface {
	WriteOwned(target, plugin string, s model.Sample) error
}

// dropLogEvery rate-limits queue-overflow logging per plugin.
const dropLogEvery = 1000

type queueItem struct {
	notif      model.Notification
	isSync     bool
	syncStatus bool
}

type pluginWorker struct {
	plugin  Plugin
	queue   chan queueItem
	dropped atomic.Uint64
}

// Dispatcher fans each notification out to the plugins whose prefixes
// match its path. Every plugin runs on its own goroutine behind a
// bounded queue, so one slow or faulting plugin cannot stall stream
// consumption or its peers; overflow drops the notification for that
// plugin only.
type Dispatcher struct {
	target  string
	writer  OwnedWriter
	logger  *zap.Logger
	workers []*pluginWorker

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewDispatcher resolves the routing table once and starts one worker
// per plugin. queueSize <= 0 selects the default.
func NewDispatcher(target string, plugins []Plugin, writer OwnedWriter, logger *zap.Logger, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = model.DefaultDispatchBuffer
	}
	d := &Dispatcher{
		target: target,
		writer: writer,
		logger: logger,
	}
	for _, p := range plugins {
		w := &pluginWorker{
			plugin: p,
			queue:  make(chan queueItem, queueSize),
		}
		d.workers = append(d.workers, w)
		d.wg.Add(1)
		go d.run(w)
	}
	return d
}

// Dispatch routes one notification. It never blocks: when a plugin's
// queue is full the notification is dropped for that plugin and
// counted. Within one session notifications reach each plugin in
// arrival order.
func (d *Dispatcher) Dispatch(n model.Notification) {
	for _, w := range d.workers {
		if !d.matches(w.plugin, n) {
			continue
		}
		select {
		case w.queue <- queueItem{notif: n}:
		default:
			if dropped := w.dropped.Add(1); dropped%dropLogEvery == 1 {
				d.logger.Warn("plugin queue full, dropping notification",
					zap.String("plugin", w.plugin.Name()),
					zap.String("path", n.Path.String()),
					zap.Uint64("dropped_total", dropped))
			}
		}
	}
}

// SyncChanged broadcasts a sync transition to all plugins through their
// queues, preserving ordering relative to in-flight notifications.
func (d *Dispatcher) SyncChanged(complete bool) {
	item := queueItem{isSync: true, syncStatus: complete}
	for _, w := range d.workers {
		select {
		case w.queue <- item:
		default:
			// Queue saturated. The session re-broadcasts sync state on
			// every reconnect, so dropping here is recoverable.
			d.logger.Warn("plugin queue full, dropping sync transition",
				zap.String("plugin", w.plugin.Name()),
				zap.Bool("complete", complete))
		}
	}
}

// Dropped returns the total notifications dropped across all plugins.
func (d *Dispatcher) Dropped() uint64 {
	var total uint64
	for _, w := range d.workers {
		total += w.dropped.Load()
	}
	return total
}

// Close stops all workers after draining their queues.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		for _, w := range d.workers {
			close(w.queue)
		}
	})
	d.wg.Wait()
}

func (d *Dispatcher) matches(p Plugin, n model.Notification) bool {
	for _, prefix := range p.Prefixes() {
		if prefix.Matches(n.Path) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) run(w *pluginWorker) {
	defer d.wg.Done()
	for item := range w.queue {
		if item.isSync {
			d.safeSync(w.plugin, item.syncStatus)
			continue
		}
		d.process(w.plugin, item.notif)
	}
}

// process invokes the plugin with panic isolation and writes its
// samples. One bad notification must not kill the stream.
func (d *Dispatcher) process(p Plugin, n model.Notification) {
	samples := d.safeProcess(p, n)
	for _, s := range samples {
		err := d.writer.WriteOwned(d.target, p.Name(), s)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrStaleWrite):
			d.logger.Debug("out-of-order sample rejected",
				zap.String("plugin", p.Name()),
				zap.String("metric", s.Name))
		default:
			d.logger.Warn("sample write failed",
				zap.String("plugin", p.Name()),
				zap.String("metric", s.Name),
				zap.Error(err))
		}
	}
}

func (d *Dispatcher) safeProcess(p Plugin, n model.Notification) (samples []model.Sample) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("plugin panicked processing notification",
				zap.String("plugin", p.Name()),
				zap.String("path", n.Path.String()),
				zap.Any("panic", r))
			samples = nil
		}
	}()
	return p.Process(n)
}

func (d *Dispatcher) safeSync(p Plugin, complete bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("plugin panicked on sync transition",
				zap.String("plugin", p.Name()),
				zap.Any("panic", r))
		}
	}()
	p.SyncChanged(complete)
}
