// Package plugin defines the processing units that turn raw gNMI
// notifications into metric samples, and the per-session dispatcher
// that routes notifications to them.
package plugin

import (
	"fmt"
	"sort"

	"github.com/netobserv-lab/gnmi-exporter/internal/gnmipath"
	"github.com/netobserv-lab/gnmi-exporter/internal/model"
	"go.uber.org/zap"
)

// Plugin consumes notifications under its declared path prefixes and
// produces metric samples. One instance exists per (target, type) pair;
// instances never share mutable state across targets.
//
// Process must not block on I/O. It runs on the plugin's dispatch
// goroutine, so internal state needs no locking.
type Plugin interface {
	Name() string
	Prefixes() []gnmipath.Prefix
	Origin() string
	DataModels() []string
	Process(n model.Notification) []model.Sample
	// SyncChanged reports initial-sync transitions. Plugins drop
	// derived baselines on sync loss so a reconnect starts clean.
	SyncChanged(complete bool)
}

// Config is handed to a factory when a binding is instantiated.
type Config struct {
	Target       model.TargetConfig
	Binding      model.PluginBinding
	MetricPrefix string
	Logger       *zap.Logger
}

// Factory builds one plugin instance for one target.
type Factory func(cfg Config) (Plugin, error)

// Registry maps plugin type names to factories. It is populated at
// startup and read-only afterwards; sessions receive resolved plugin
// sets, never the registry itself.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under a type name. Duplicate registration is
// a programming error.
func (r *Registry) Register(typeName string, f Factory) {
	if _, dup := r.factories[typeName]; dup {
		panic(fmt.Sprintf("plugin: duplicate registration of %q", typeName))
	}
	r.factories[typeName] = f
}

// Types returns the registered plugin type names, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Build instantiates every plugin bound to the target. An unknown type
// or a failing factory is a configuration error and aborts startup.
func (r *Registry) Build(target model.TargetConfig, metricPrefix string, logger *zap.Logger) ([]Plugin, error) {
	plugins := make([]Plugin, 0, len(target.Plugins))
	for _, binding := range target.Plugins {
		factory, ok := r.factories[binding.Type]
		if !ok {
			return nil, fmt.Errorf("plugin: target %q binds unknown type %q", target.Name, binding.Type)
		}
		p, err := factory(Config{
			Target:       target,
			Binding:      binding,
			MetricPrefix: metricPrefix,
			Logger:       logger.With(zap.String("plugin", binding.Type)),
		})
		if err != nil {
			return nil, fmt.Errorf("plugin: building %q for target %q: %w", binding.Type, target.Name, err)
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}
