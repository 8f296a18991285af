package model

import (
	"sort"
	"strings"
	"time"
)

// MetricKind distinguishes how a sample is exposed to the scraper.
type MetricKind int

const (
	KindUnknown MetricKind = iota
	KindCounter
	KindGauge
)

func (k MetricKind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	default:
		return "unknown"
	}
}

// Labels is a label-key to label-value mapping. Keys are unique and
// unordered; identity ordering is applied by Sample.Identity.
type Labels map[string]string

// Clone returns an independent copy so samples stay immutable after
// they are handed to the store.
func (l Labels) Clone() Labels {
	if l == nil {
		return nil
	}
	out := make(Labels, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Sample is one derived metric observation produced by a plugin.
type Sample struct {
	Name      string
	Kind      MetricKind
	Labels    Labels
	Value     float64
	Timestamp time.Time
}

// Identity returns the canonical time-series identity of the sample:
// metric name plus the sorted label pairs.
func (s Sample) Identity() string {
	if len(s.Labels) == 0 {
		return s.Name
	}
	keys := make([]string, 0, len(s.Labels))
	for k := range s.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(s.Name)
	for _, k := range keys {
		b.WriteByte('{')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s.Labels[k])
		b.WriteByte('}')
	}
	return b.String()
}

// TargetState is the lifecycle state of one subscription session.
type TargetState int

const (
	StateIdle TargetState = iota
	StateConnecting
	StateSyncing
	StateStreaming
	StateBackoff
	StateHalted
	StateClosed
)

func (s TargetState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSyncing:
		return "syncing"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	case StateHalted:
		return "halted"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TargetHealth is a read-only view of one session for probes.
type TargetHealth struct {
	Target       string      `json:"target"`
	Address      string      `json:"address"`
	State        TargetState `json:"-"`
	StateName    string      `json:"state"`
	LastSuccess  time.Time   `json:"last_success"`
	RetryCount   int         `json:"retry_count"`
	LastError    string      `json:"last_error,omitempty"`
	SyncComplete bool        `json:"sync_complete"`
}
