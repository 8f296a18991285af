package model

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// SubscriptionMode selects how the device streams updates.
type SubscriptionMode string

const (
	ModeSample   SubscriptionMode = "sample"
	ModeOnChange SubscriptionMode = "on-change"
)

// PluginBinding attaches one plugin type to a target, with
// plugin-specific options.
type PluginBinding struct {
	Type    string            `yaml:"type"`
	Options map[string]string `yaml:"options,omitempty"`
}

// TargetConfig is one configured device endpoint. Immutable for the
// process lifetime.
type TargetConfig struct {
	Name           string           `yaml:"name"`
	Address        string           `yaml:"address"`
	Username       string           `yaml:"username,omitempty"`
	Password       string           `yaml:"password,omitempty"`
	TLS            bool             `yaml:"tls,omitempty"`
	Mode           SubscriptionMode `yaml:"mode,omitempty"`
	SampleInterval time.Duration    `yaml:"sample-interval,omitempty"`
	ForceEncoding  string           `yaml:"force-encoding,omitempty"`
	Plugins        []PluginBinding  `yaml:"plugins"`
}

// UnmarshalYAML accepts sample-interval in Go duration notation
// ("15s", "1m"), which yaml cannot decode into time.Duration itself.
func (c *TargetConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name           string           `yaml:"name"`
		Address        string           `yaml:"address"`
		Username       string           `yaml:"username"`
		Password       string           `yaml:"password"`
		TLS            bool             `yaml:"tls"`
		Mode           SubscriptionMode `yaml:"mode"`
		SampleInterval string           `yaml:"sample-interval"`
		ForceEncoding  string           `yaml:"force-encoding"`
		Plugins        []PluginBinding  `yaml:"plugins"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	c.Name = raw.Name
	c.Address = raw.Address
	c.Username = raw.Username
	c.Password = raw.Password
	c.TLS = raw.TLS
	c.Mode = raw.Mode
	c.ForceEncoding = raw.ForceEncoding
	c.Plugins = raw.Plugins

	if raw.SampleInterval != "" {
		d, err := time.ParseDuration(raw.SampleInterval)
		if err != nil {
			return fmt.Errorf("target %q: bad sample-interval: %w", raw.Name, err)
		}
		c.SampleInterval = d
	}
	return nil
}

// Validate fills defaults and rejects configs the runtime cannot start
// with. Configuration errors are the only process-fatal condition.
func (c *TargetConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("target has no name")
	}
	if c.Address == "" {
		return fmt.Errorf("target %q has no address", c.Name)
	}
	if len(c.Plugins) == 0 {
		return fmt.Errorf("target %q has no plugins", c.Name)
	}
	switch c.Mode {
	case "":
		c.Mode = ModeSample
	case ModeSample, ModeOnChange:
	default:
		return fmt.Errorf("target %q: unknown mode %q", c.Name, c.Mode)
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = DefaultSampleInterval
	}
	return nil
}
