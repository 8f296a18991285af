// Package ocif derives interface metrics from the openconfig-interfaces
// data model: counter leaves become counters, successive counter
// observations become rate gauges, and descriptive leaves become the
// labels of a per-interface status gauge.
package ocif

import (
	"time"

	"github.com/netobserv-lab/gnmi-exporter/internal/gnmipath"
	"github.com/netobserv-lab/gnmi-exporter/internal/model"
	"github.com/netobserv-lab/gnmi-exporter/internal/plugin"
	"go.uber.org/zap"
)

// TypeName is the registry key for this plugin.
const TypeName = "oc_interfaces"

const dataModel = "openconfig-interfaces"

// Path element indexes of the list keys in the subscribed subtrees.
const (
	ifaceKeyIndex    = 1 // /interfaces/interface[name=...]
	subifaceKeyIndex = 3 // .../subinterfaces/subinterface[index=...]
)

var prefixes = []gnmipath.Prefix{
	gnmipath.MustPrefix("/interfaces/interface/state"),
	gnmipath.MustPrefix("/interfaces/interface/subinterfaces/subinterface/state"),
}

// counterLeaves are the openconfig-interfaces counters exported 1:1.
var counterLeaves = map[string]bool{
	"in-octets":           true,
	"in-pkts":             true,
	"in-unicast-pkts":     true,
	"in-broadcast-pkts":   true,
	"in-multicast-pkts":   true,
	"in-errors":           true,
	"in-discards":         true,
	"in-unknown-protos":   true,
	"in-fcs-errors":       true,
	"out-octets":          true,
	"out-pkts":            true,
	"out-unicast-pkts":    true,
	"out-broadcast-pkts":  true,
	"out-multicast-pkts":  true,
	"out-discards":        true,
	"out-errors":          true,
	"carrier-transitions": true,
	"resets":              true,
}

// rateLeaves get an additional derived per-second rate gauge.
var rateLeaves = map[string]bool{
	"in-octets":  true,
	"out-octets": true,
	"in-pkts":    true,
	"out-pkts":   true,
}

// statusLeaves feed the descriptive label set of the status gauge.
var statusLeaves = map[string]bool{
	"mtu":          true,
	"description":  true,
	"ifindex":      true,
	"admin-status": true,
	"oper-status":  true,
}

type counterState struct {
	value float64
	ts    time.Time
}

// ifaceInfo is the descriptive state of one (sub)interface.
type ifaceInfo struct {
	labels model.Labels
	ts     time.Time
}

// Plugin holds per-target derived state; one instance exists per
// (target, oc_interfaces) pair and is only touched from its dispatch
// goroutine.
type Plugin struct {
	device string
	prefix string
	logger *zap.Logger

	rates    map[string]counterState // keyed by interface|leaf
	statuses map[string]*ifaceInfo   // keyed by interface full name
}

// New is the plugin.Factory for oc_interfaces.
func New(cfg plugin.Config) (plugin.Plugin, error) {
	return &Plugin{
		device:   cfg.Target.Name,
		prefix:   cfg.MetricPrefix,
		logger:   cfg.Logger,
		rates:    make(map[string]counterState),
		statuses: make(map[string]*ifaceInfo),
	}, nil
}

func (p *Plugin) Name() string                { return TypeName }
func (p *Plugin) Prefixes() []gnmipath.Prefix { return prefixes }
func (p *Plugin) Origin() string              { return "openconfig" }
func (p *Plugin) DataModels() []string        { return []string{dataModel} }

// SyncChanged drops derived baselines when the stream loses sync, so a
// reconnect cannot produce rates spanning the outage.
func (p *Plugin) SyncChanged(complete bool) {
	if !complete {
		p.rates = make(map[string]counterState)
		p.statuses = make(map[string]*ifaceInfo)
	}
}

// Process turns one notification into zero or more samples.
func (p *Plugin) Process(n model.Notification) []model.Sample {
	fullName, subiface, ok := interfaceName(n.Path)
	if !ok {
		return nil
	}
	if n.Delete {
		delete(p.statuses, fullName)
		return nil
	}

	leaf := n.Path[len(n.Path)-1].Name
	switch {
	case counterLeaves[leaf]:
		return p.processCounter(n, fullName, subiface, leaf)
	case statusLeaves[leaf]:
		return p.processStatus(n, fullName, subiface, leaf)
	default:
		return nil
	}
}

func (p *Plugin) processCounter(n model.Notification, fullName string, subiface bool, leaf string) []model.Sample {
	value, numeric := n.Value.Float()
	if !numeric {
		p.logger.Warn("non-numeric counter leaf",
			zap.String("path", n.Path.String()),
			zap.String("value", n.Value.Text()))
		return nil
	}

	kind := "interface"
	if subiface {
		kind = "subinterface"
	}
	labels := model.Labels{"device": p.device, "name": fullName}

	samples := []model.Sample{{
		Name:      plugin.MetricName(p.prefix, kind, leaf),
		Kind:      model.KindCounter,
		Labels:    labels,
		Value:     value,
		Timestamp: n.Timestamp,
	}}

	if rateLeaves[leaf] {
		if s, ok := p.rateSample(fullName, kind, leaf, value, n.Timestamp, labels); ok {
			samples = append(samples, s)
		}
	}
	return samples
}

// rateSample derives a per-second rate from the previous observation of
// the same counter. Counter resets (value going backwards) re-baseline
// without emitting.
func (p *Plugin) rateSample(fullName, kind, leaf string, value float64, ts time.Time, labels model.Labels) (model.Sample, bool) {
	key := fullName + "|" + leaf
	prev, seen := p.rates[key]
	p.rates[key] = counterState{value: value, ts: ts}

	if !seen || !ts.After(prev.ts) || value < prev.value {
		return model.Sample{}, false
	}
	elapsed := ts.Sub(prev.ts).Seconds()
	return model.Sample{
		Name:      plugin.MetricName(p.prefix, kind, "rate", leaf),
		Kind:      model.KindGauge,
		Labels:    labels.Clone(),
		Value:     (value - prev.value) / elapsed,
		Timestamp: ts,
	}, true
}

// processStatus folds descriptive leaves into the per-interface status
// gauge: value 1 while oper-status is UP, 0 otherwise, with the
// descriptive leaves as labels.
func (p *Plugin) processStatus(n model.Notification, fullName string, subiface bool, leaf string) []model.Sample {
	info, ok := p.statuses[fullName]
	if !ok {
		info = &ifaceInfo{labels: model.Labels{
			"device": p.device,
			"name":   fullName,
		}}
		p.statuses[fullName] = info
	}
	info.labels[plugin.LabelName(leaf)] = n.Value.Text()
	info.ts = n.Timestamp

	oper, ok := info.labels["oper_status"]
	if !ok {
		// Hold back the gauge until the operational state is known;
		// the device sends the whole state container during sync.
		return nil
	}

	kind := "interface"
	if subiface {
		kind = "subinterface"
	}
	value := 0.0
	if oper == "UP" {
		value = 1.0
	}
	return []model.Sample{{
		Name:      plugin.MetricName(p.prefix, kind, "status"),
		Kind:      model.KindGauge,
		Labels:    info.labels.Clone(),
		Value:     value,
		Timestamp: n.Timestamp,
	}}
}

// interfaceName extracts the interface (or interface.subinterface) name
// from a path under the subscribed subtrees.
func interfaceName(path gnmipath.Path) (name string, subiface, ok bool) {
	name, ok = path.Key(ifaceKeyIndex, "name")
	if !ok {
		return "", false, false
	}
	if index, sub := path.Key(subifaceKeyIndex, "index"); sub {
		return name + "." + index, true, true
	}
	return name, false, true
}
