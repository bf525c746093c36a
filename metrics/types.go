// Package metrics exposes rift counters and gauges through Prometheus.
package metrics

// Value represents a metric value as a float64.
type Value float64

// Dimension represents metric dimensions as key-value pairs, exported as
// Prometheus labels. A group/name pair should always be used with the same
// set of keys.
type Dimension map[string]string
