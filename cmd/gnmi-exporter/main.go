package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/netobserv-lab/gnmi-exporter/internal/model"
	"github.com/spf13/viper"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/gnmi-exporter/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("gnmi-exporter - gNMI Streaming Telemetry Exporter\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := runServer(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	defaultTargetsPath := filepath.Join(home, ".config", "gnmi-exporter", "targets.yml")

	v := viper.New()
	v.SetEnvPrefix("GNMIEXP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("listen-port", defaultListenPort)
	v.SetDefault("targets-file", defaultTargetsPath)
	v.SetDefault("metric-prefix", defaultMetricPrefix)
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("log-json", false)
	v.SetDefault("oversampling", defaultOversampling)
	v.SetDefault("watchdog-multiplier", defaultWatchdogMult)
	v.SetDefault("backoff-initial", model.DefaultBackoffInitial)
	v.SetDefault("backoff-max", model.DefaultBackoffMax)
	v.SetDefault("backoff-jitter", model.DefaultBackoffJitter)
	v.SetDefault("max-retries", model.DefaultMaxRetries)
	v.SetDefault("halted-sleep", model.DefaultHaltedSleep)
	v.SetDefault("stale-threshold", defaultStaleness)
	v.SetDefault("sweep-interval", defaultSweepInterval)
	v.SetDefault("shutdown-grace", defaultShutdownGrace)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		defaultConfigPath := filepath.Join(home, ".config", "gnmi-exporter", "config.yml")
		v.SetConfigFile(defaultConfigPath)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if cfg.ListenPort <= 0 || cfg.ListenPort > 65535 {
		return cfg, fmt.Errorf("invalid listen-port: %d", cfg.ListenPort)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.ListenPort))
	}

	// Expand ~ in targets-file
	if strings.HasPrefix(cfg.TargetsFile, "~/") {
		cfg.TargetsFile = filepath.Join(home, cfg.TargetsFile[2:])
	}

	return cfg, nil
}
