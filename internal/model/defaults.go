package model

import "time"

// Shared defaults used by the server binary and the runtime packages.
const (
	DefaultMetricPrefix = "gnmi"

	DefaultSampleInterval = 30 * time.Second
	DefaultOversampling   = 2
	// Watchdog fires after SampleInterval * DefaultWatchdogMultiplier
	// without any inbound stream message.
	DefaultWatchdogMultiplier = 3

	DefaultBackoffInitial = 1 * time.Second
	DefaultBackoffMax     = 2 * time.Minute
	DefaultBackoffJitter  = 0.5
	DefaultMaxRetries     = 10
	DefaultHaltedSleep    = 15 * time.Minute

	DefaultStaleThreshold = 5 * time.Minute
	DefaultSweepInterval  = 1 * time.Minute

	DefaultNotifyBuffer   = 4096
	DefaultDispatchBuffer = 1024

	DefaultShutdownGrace = 10 * time.Second
)
