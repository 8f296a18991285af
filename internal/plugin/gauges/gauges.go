// Package gauges exports arbitrary numeric leaves as gauges. The paths
// to export are supplied per binding, which makes it the catch-all for
// schema subtrees without a dedicated plugin.
package gauges

import (
	"fmt"
	"strings"

	"github.com/netobserv-lab/gnmi-exporter/internal/gnmipath"
	"github.com/netobserv-lab/gnmi-exporter/internal/model"
	"github.com/netobserv-lab/gnmi-exporter/internal/plugin"
	"go.uber.org/zap"
)

// TypeName is the registry key for this plugin.
const TypeName = "gauges"

// Binding options:
//
//	paths:  comma-separated xpath prefixes to subscribe and export
//	origin: gNMI path origin (default "openconfig")
//	models: comma-separated YANG models to require at capability check
type Plugin struct {
	device   string
	prefix   string
	origin   string
	models   []string
	prefixes []gnmipath.Prefix
	logger   *zap.Logger
}

// New is the plugin.Factory for gauges.
func New(cfg plugin.Config) (plugin.Plugin, error) {
	raw := cfg.Binding.Options["paths"]
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("gauges: binding for target %q has no paths option", cfg.Target.Name)
	}

	var prefixes []gnmipath.Prefix
	for _, xpath := range strings.Split(raw, ",") {
		xpath = strings.TrimSpace(xpath)
		if xpath == "" {
			continue
		}
		p, err := gnmipath.NewPrefix(xpath)
		if err != nil {
			return nil, fmt.Errorf("gauges: %w", err)
		}
		prefixes = append(prefixes, p)
	}
	if len(prefixes) == 0 {
		return nil, fmt.Errorf("gauges: binding for target %q has no usable paths", cfg.Target.Name)
	}

	origin := cfg.Binding.Options["origin"]
	if origin == "" {
		origin = "openconfig"
	}
	var models []string
	for _, m := range strings.Split(cfg.Binding.Options["models"], ",") {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}

	return &Plugin{
		device:   cfg.Target.Name,
		prefix:   cfg.MetricPrefix,
		origin:   origin,
		models:   models,
		prefixes: prefixes,
		logger:   cfg.Logger,
	}, nil
}

func (p *Plugin) Name() string                { return TypeName }
func (p *Plugin) Prefixes() []gnmipath.Prefix { return p.prefixes }
func (p *Plugin) Origin() string              { return p.origin }
func (p *Plugin) DataModels() []string        { return p.models }
func (p *Plugin) SyncChanged(bool)            {}

// Process exports any numeric leaf under the configured prefixes as a
// gauge named after its path, with list keys flattened into labels.
func (p *Plugin) Process(n model.Notification) []model.Sample {
	if n.Delete {
		return nil
	}
	value, numeric := n.Value.Float()
	if !numeric {
		return nil
	}

	labels := model.Labels{"device": p.device}
	for _, elem := range n.Path {
		for k, v := range elem.Keys {
			labels[plugin.LabelName(k)] = v
		}
	}

	return []model.Sample{{
		Name:      plugin.MetricName(p.prefix, n.Path.Names()...),
		Kind:      model.KindGauge,
		Labels:    labels,
		Value:     value,
		Timestamp: n.Timestamp,
	}}
}
