package model

import "time"

// SampleWriter is the store write side handed to plugin dispatch.
type SampleWriter interface {
	Write(target string, s Sample) error
}

// StoreEntry is one latest-value record read back from the store.
type StoreEntry struct {
	Sample Sample
	Target string
	Plugin string
	Stale  bool
}

// SnapshotReader is the store read side consumed by the scrape path.
type SnapshotReader interface {
	Snapshot() []StoreEntry
}

// TargetEvictor retires a target's entries when its session degrades
// or shuts down.
type TargetEvictor interface {
	MarkTargetStale(target string)
	EvictTarget(target string)
}

// HealthSource is the read-only per-target health view exposed to
// liveness and readiness probes.
type HealthSource interface {
	Health() []TargetHealth
}

// Clock is injected where tests need deterministic time.
type Clock func() time.Time
