package metrics

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const _namespace = "rift"

var (
	_registry = prometheus.NewRegistry()
	_mu       sync.Mutex
	_counters = make(map[string]*prometheus.CounterVec)
	_gauges   = make(map[string]*prometheus.GaugeVec)
)

// Registry returns the registry all rift metrics are registered with.
func Registry() *prometheus.Registry {
	return _registry
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(_registry, promhttp.HandlerOpts{})
}

func sortedKeys(dim Dimension) []string {
	keys := make([]string, 0, len(dim))
	for k := range dim {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func vecKey(group, name string, labels []string) string {
	return group + "/" + name + "{" + strings.Join(labels, ",") + "}"
}

// Counter returns the counter for group/name with the given label values,
// creating and registering it on first use. A name can be used with several
// label sets; each set is a distinct collector.
func Counter(group, name string, dim Dimension) prometheus.Counter {
	labels := sortedKeys(dim)
	key := vecKey(group, name, labels)

	_mu.Lock()
	vec, ok := _counters[key]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: _namespace,
			Subsystem: group,
			Name:      name,
			Help:      group + " " + name,
		}, labels)
		if err := _registry.Register(vec); err != nil {
			if are, isAre := err.(prometheus.AlreadyRegisteredError); isAre {
				if existing, isVec := are.ExistingCollector.(*prometheus.CounterVec); isVec {
					vec = existing
				}
			}
		}
		_counters[key] = vec
	}
	_mu.Unlock()

	return vec.With(prometheus.Labels(dim))
}

// Gauge returns the gauge for group/name with the given label values.
func Gauge(group, name string, dim Dimension) prometheus.Gauge {
	labels := sortedKeys(dim)
	key := vecKey(group, name, labels)

	_mu.Lock()
	vec, ok := _gauges[key]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: _namespace,
			Subsystem: group,
			Name:      name,
			Help:      group + " " + name,
		}, labels)
		if err := _registry.Register(vec); err != nil {
			if are, isAre := err.(prometheus.AlreadyRegisteredError); isAre {
				if existing, isVec := are.ExistingCollector.(*prometheus.GaugeVec); isVec {
					vec = existing
				}
			}
		}
		_gauges[key] = vec
	}
	_mu.Unlock()

	return vec.With(prometheus.Labels(dim))
}

// IncrCounterWithGroup adds v to the counter group/name.
func IncrCounterWithGroup(group, name string, v Value) {
	Counter(group, name, nil).Add(float64(v))
}

// IncrCounterWithDimGroup adds v to the counter group/name with dimensions.
func IncrCounterWithDimGroup(group, name string, v Value, dim Dimension) {
	Counter(group, name, dim).Add(float64(v))
}

// UpdateGaugeWithGroup sets the gauge group/name to v.
func UpdateGaugeWithGroup(group, name string, v Value) {
	Gauge(group, name, nil).Set(float64(v))
}

// UpdateGaugeWithDimGroup sets the gauge group/name with dimensions to v.
func UpdateGaugeWithDimGroup(group, name string, v Value, dim Dimension) {
	Gauge(group, name, dim).Set(float64(v))
}
