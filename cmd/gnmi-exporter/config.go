package main

import (
	"time"

	"github.com/netobserv-lab/gnmi-exporter/internal/model"
)

const (
	defaultBindHost      = "0.0.0.0"
	defaultListenPort    = 9273
	defaultMetricPrefix  = model.DefaultMetricPrefix
	defaultLogLevel      = "info"
	defaultOversampling  = model.DefaultOversampling
	defaultWatchdogMult  = model.DefaultWatchdogMultiplier
	defaultStaleness     = model.DefaultStaleThreshold
	defaultSweepInterval = model.DefaultSweepInterval
	defaultShutdownGrace = model.DefaultShutdownGrace
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	ListenPort   int    `mapstructure:"listen-port"`
	ListenAddr   string `mapstructure:"listen-addr"`
	TargetsFile  string `mapstructure:"targets-file"`
	MetricPrefix string `mapstructure:"metric-prefix"`
	LogLevel     string `mapstructure:"log-level"`
	LogJSON      bool   `mapstructure:"log-json"`

	Oversampling       int           `mapstructure:"oversampling"`
	WatchdogMultiplier int           `mapstructure:"watchdog-multiplier"`
	BackoffInitial     time.Duration `mapstructure:"backoff-initial"`
	BackoffMax         time.Duration `mapstructure:"backoff-max"`
	BackoffJitter      float64       `mapstructure:"backoff-jitter"`
	MaxRetries         int           `mapstructure:"max-retries"`
	HaltedSleep        time.Duration `mapstructure:"halted-sleep"`

	StaleThreshold time.Duration `mapstructure:"stale-threshold"`
	SweepInterval  time.Duration `mapstructure:"sweep-interval"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown-grace"`

	ConfigPath string `mapstructure:"-"` // not from config file
}
