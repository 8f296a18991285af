package plugin

import (
	"strings"

	pmodel "github.com/prometheus/common/model"
)

// MetricName joins prefix and parts into a valid Prometheus metric
// name, mapping YANG-style dashes to underscores.
func MetricName(prefix string, parts ...string) string {
	all := append([]string{prefix}, parts...)
	name := sanitize(strings.Join(all, "_"))
	if !pmodel.IsValidLegacyMetricName(name) {
		// First character may still be invalid (e.g. a digit).
		name = "_" + name
	}
	return name
}

// LabelName converts a YANG leaf name to a valid Prometheus label name.
func LabelName(leaf string) string {
	name := sanitize(leaf)
	if !pmodel.LabelName(name).IsValidLegacy() {
		name = "_" + name
	}
	return name
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
