package plugin

import (
	"sync"
	"testing"
	"time"

	"github.com/netobserv-lab/gnmi-exporter/internal/gnmipath"
	"github.com/netobserv-lab/gnmi-exporter/internal/model"
	"github.com/netobserv-lab/gnmi-exporter/internal/store"
	"go.uber.org/zap"
)

// recordingWriter captures WriteOwned calls for assertions.
type recordingWriter struct {
	mu      sync.Mutex
	samples []model.Sample
	plugins []string
	err     error
}

func (w *recordingWriter) WriteOwned(target, plugin string, s model.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, s)
	w.plugins = append(w.plugins, plugin)
	return w.err
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

// fakePlugin records what it sees and emits one sample per notification.
type fakePlugin struct {
	name     string
	prefixes []gnmipath.Prefix

	mu        sync.Mutex
	seen      []model.Notification
	syncs     []bool
	panicOn   string // path string that triggers a panic
	processed chan struct{}
	block     chan struct{} // non-nil: Process blocks until closed
}

func (p *fakePlugin) Name() string                { return p.name }
func (p *fakePlugin) Prefixes() []gnmipath.Prefix { return p.prefixes }
func (p *fakePlugin) Origin() string              { return "openconfig" }
func (p *fakePlugin) DataModels() []string        { return nil }

func (p *fakePlugin) Process(n model.Notification) []model.Sample {
	if p.block != nil {
		<-p.block
	}
	if p.panicOn != "" && n.Path.String() == p.panicOn {
		panic("unexpected value type")
	}
	p.mu.Lock()
	p.seen = append(p.seen, n)
	p.mu.Unlock()
	if p.processed != nil {
		p.processed <- struct{}{}
	}
	return []model.Sample{{
		Name:      "fake_metric",
		Kind:      model.KindGauge,
		Value:     1,
		Timestamp: n.Timestamp,
	}}
}

func (p *fakePlugin) SyncChanged(complete bool) {
	p.mu.Lock()
	p.syncs = append(p.syncs, complete)
	p.mu.Unlock()
}

func (p *fakePlugin) seenPaths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.seen))
	for i, n := range p.seen {
		out[i] = n.Path.String()
	}
	return out
}

func notif(target, xpath string) model.Notification {
	return model.Notification{
		Target:    target,
		Path:      gnmipath.MustParse(xpath),
		Value:     model.UintValue(1),
		Timestamp: time.Now(),
	}
}

func TestDispatchRoutesByPrefix(t *testing.T) {
	ifPlugin := &fakePlugin{
		name:      "ocif",
		prefixes:  []gnmipath.Prefix{gnmipath.MustPrefix("/interfaces/interface/state")},
		processed: make(chan struct{}, 16),
	}
	sysPlugin := &fakePlugin{
		name:      "system",
		prefixes:  []gnmipath.Prefix{gnmipath.MustPrefix("/system/state")},
		processed: make(chan struct{}, 16),
	}
	w := &recordingWriter{}
	d := NewDispatcher("dev1", []Plugin{ifPlugin, sysPlugin}, w, zap.NewNop(), 16)
	defer d.Close()

	d.Dispatch(notif("dev1", "/interfaces/interface[name=eth0]/state/counters/in-octets"))
	d.Dispatch(notif("dev1", "/system/state/hostname"))
	d.Dispatch(notif("dev1", "/bgp/neighbors/neighbor/state"))

	<-ifPlugin.processed
	<-sysPlugin.processed
	d.Close()

	ifSeen := ifPlugin.seenPaths()
	if len(ifSeen) != 1 || ifSeen[0] != "/interfaces/interface[name=eth0]/state/counters/in-octets" {
		t.Errorf("ocif saw %v", ifSeen)
	}
	sysSeen := sysPlugin.seenPaths()
	if len(sysSeen) != 1 || sysSeen[0] != "/system/state/hostname" {
		t.Errorf("system saw %v", sysSeen)
	}
	// The unmatched bgp path reached nobody, so exactly 2 writes landed.
	if got := w.count(); got != 2 {
		t.Errorf("writes = %d, want 2", got)
	}
}

func TestDispatchPreservesOrderPerPlugin(t *testing.T) {
	p := &fakePlugin{
		name:     "ocif",
		prefixes: []gnmipath.Prefix{gnmipath.MustPrefix("/interfaces")},
	}
	d := NewDispatcher("dev1", []Plugin{p}, &recordingWriter{}, zap.NewNop(), 64)

	paths := []string{
		"/interfaces/interface[name=eth0]/state/counters/in-octets",
		"/interfaces/interface[name=eth1]/state/counters/in-octets",
		"/interfaces/interface[name=eth2]/state/counters/in-octets",
	}
	for _, xpath := range paths {
		d.Dispatch(notif("dev1", xpath))
	}
	d.Close()

	got := p.seenPaths()
	if len(got) != len(paths) {
		t.Fatalf("seen %d notifications, want %d", len(got), len(paths))
	}
	for i := range paths {
		if got[i] != paths[i] {
			t.Errorf("order[%d] = %q, want %q", i, got[i], paths[i])
		}
	}
}

func TestPluginPanicIsIsolated(t *testing.T) {
	p := &fakePlugin{
		name:     "ocif",
		prefixes: []gnmipath.Prefix{gnmipath.MustPrefix("/interfaces")},
		panicOn:  "/interfaces/interface[name=bad]/state",
	}
	w := &recordingWriter{}
	d := NewDispatcher("dev1", []Plugin{p}, w, zap.NewNop(), 16)

	d.Dispatch(notif("dev1", "/interfaces/interface[name=bad]/state"))
	d.Dispatch(notif("dev1", "/interfaces/interface[name=eth0]/state"))
	d.Close()

	seen := p.seenPaths()
	if len(seen) != 1 || seen[0] != "/interfaces/interface[name=eth0]/state" {
		t.Errorf("after panic, seen = %v", seen)
	}
	if got := w.count(); got != 1 {
		t.Errorf("writes after panic = %d, want 1", got)
	}
}

func TestSlowPluginDoesNotStallPeers(t *testing.T) {
	slow := &fakePlugin{
		name:     "slow",
		prefixes: []gnmipath.Prefix{gnmipath.MustPrefix("/interfaces")},
		block:    make(chan struct{}),
	}
	fast := &fakePlugin{
		name:     "fast",
		prefixes: []gnmipath.Prefix{gnmipath.MustPrefix("/interfaces")},
	}
	d := NewDispatcher("dev1", []Plugin{slow, fast}, &recordingWriter{}, zap.NewNop(), 2)

	// Fill well past the slow plugin's queue. Dispatch must never block.
	// The pacing leaves the fast worker ample time to drain its queue.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			d.Dispatch(notif("dev1", "/interfaces/interface[name=eth0]/state/counters/in-octets"))
			time.Sleep(time.Millisecond)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked on a slow plugin")
	}

	if d.Dropped() == 0 {
		t.Error("expected drops for the saturated slow plugin")
	}

	close(slow.block)
	d.Close()

	if got := len(fast.seenPaths()); got != 50 {
		t.Errorf("fast plugin saw %d notifications, want 50", got)
	}
}

func TestSyncTransitionsReachPlugins(t *testing.T) {
	p := &fakePlugin{
		name:     "ocif",
		prefixes: []gnmipath.Prefix{gnmipath.MustPrefix("/interfaces")},
	}
	d := NewDispatcher("dev1", []Plugin{p}, &recordingWriter{}, zap.NewNop(), 16)

	d.SyncChanged(true)
	d.SyncChanged(false)
	d.Close()

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.syncs) != 2 || p.syncs[0] != true || p.syncs[1] != false {
		t.Errorf("sync transitions = %v, want [true false]", p.syncs)
	}
}

func TestStaleWriteIsSwallowed(t *testing.T) {
	p := &fakePlugin{
		name:     "ocif",
		prefixes: []gnmipath.Prefix{gnmipath.MustPrefix("/interfaces")},
	}
	w := &recordingWriter{err: store.ErrStaleWrite}
	d := NewDispatcher("dev1", []Plugin{p}, w, zap.NewNop(), 16)

	d.Dispatch(notif("dev1", "/interfaces/interface[name=eth0]/state"))
	d.Close() // must terminate cleanly despite rejected writes
}
