// Package exporter exposes the metric store to Prometheus. It is a
// pull adapter: nothing is pushed, every scrape reads a consistent
// snapshot of the latest values.
package exporter

import (
	"time"

	"github.com/netobserv-lab/gnmi-exporter/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Config wires the collector.
type Config struct {
	Reader model.SnapshotReader
	Health model.HealthSource
	Logger *zap.Logger

	MetricPrefix string
	// StaleCutoff drops entries whose timestamp is older than now
	// minus the cutoff, even before the sweeper evicts them.
	StaleCutoff time.Duration
	Clock       model.Clock
}

// Collector implements prometheus.Collector over the store snapshot,
// plus the exporter's own health gauges. It is unchecked: series come
// and go with device state, so no descriptors are pre-registered.
type Collector struct {
	cfg Config

	descTargets   *prometheus.Desc
	descStreaming *prometheus.Desc
	descSeries    *prometheus.Desc
	descUp        *prometheus.Desc
	descState     *prometheus.Desc
}

// NewCollector builds the collector. Register it on a dedicated
// registry so scrapes expose only telemetry-derived series.
func NewCollector(cfg Config) *Collector {
	if cfg.MetricPrefix == "" {
		cfg.MetricPrefix = model.DefaultMetricPrefix
	}
	if cfg.StaleCutoff <= 0 {
		cfg.StaleCutoff = model.DefaultStaleThreshold
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	p := cfg.MetricPrefix
	return &Collector{
		cfg: cfg,
		descTargets: prometheus.NewDesc(p+"_configured_targets",
			"Number of configured targets.", nil, nil),
		descStreaming: prometheus.NewDesc(p+"_streaming_targets",
			"Number of targets currently streaming with sync complete.", nil, nil),
		descSeries: prometheus.NewDesc(p+"_collected_series",
			"Number of series exported from the latest-value store.", nil, nil),
		descUp: prometheus.NewDesc(p+"_target_up",
			"1 when the target session is streaming, 0 otherwise.",
			[]string{"device"}, nil),
		descState: prometheus.NewDesc(p+"_target_state",
			"Session state as an enum value.",
			[]string{"device", "state"}, nil),
	}
}

// Describe sends nothing: the collector is unchecked.
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect renders the snapshot. Invalid samples are dropped one by one
// so a single bad series never breaks the whole scrape.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	cutoff := c.cfg.Clock().Add(-c.cfg.StaleCutoff)

	series := 0
	for _, entry := range c.cfg.Reader.Snapshot() {
		if entry.Stale || entry.Sample.Timestamp.Before(cutoff) {
			continue
		}
		m, err := constMetric(entry.Sample)
		if err != nil {
			c.cfg.Logger.Warn("dropping unexportable sample",
				zap.String("metric", entry.Sample.Name),
				zap.Error(err))
			continue
		}
		ch <- prometheus.NewMetricWithTimestamp(entry.Sample.Timestamp, m)
		series++
	}

	c.collectHealth(ch, series)
}

func (c *Collector) collectHealth(ch chan<- prometheus.Metric, series int) {
	health := c.cfg.Health.Health()

	streaming := 0
	for _, h := range health {
		up := 0.0
		if h.State == model.StateStreaming {
			streaming++
			up = 1
		}
		ch <- prometheus.MustNewConstMetric(c.descUp, prometheus.GaugeValue, up, h.Target)
		ch <- prometheus.MustNewConstMetric(c.descState, prometheus.GaugeValue,
			float64(h.State), h.Target, h.StateName)
	}

	ch <- prometheus.MustNewConstMetric(c.descTargets, prometheus.GaugeValue, float64(len(health)))
	ch <- prometheus.MustNewConstMetric(c.descStreaming, prometheus.GaugeValue, float64(streaming))
	ch <- prometheus.MustNewConstMetric(c.descSeries, prometheus.GaugeValue, float64(series))
}

func constMetric(s model.Sample) (prometheus.Metric, error) {
	valueType := prometheus.GaugeValue
	if s.Kind == model.KindCounter {
		valueType = prometheus.CounterValue
	}

	keys := make([]string, 0, len(s.Labels))
	values := make([]string, 0, len(s.Labels))
	for k, v := range s.Labels {
		keys = append(keys, k)
		values = append(values, v)
	}

	desc := prometheus.NewDesc(s.Name, "Telemetry-derived series.", keys, nil)
	return prometheus.NewConstMetric(desc, valueType, s.Value, values...)
}
