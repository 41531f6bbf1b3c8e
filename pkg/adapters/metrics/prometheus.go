// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// jwtworkbench is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package metrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements MetricsAdapter against an in-process
// prometheus.Registry. Tag keys vary per call site, so each metric family
// is registered lazily on first use with whatever label set that call
// provides, and reused by name+sorted-label-keys on every subsequent call
// with the same shape.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetrics creates an adapter backed by a fresh registry. The
// registry is exposed via Registry() so an HTTP handler can serve it.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry returns the underlying prometheus.Registry, for wiring into an
// HTTP handler via promhttp.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func labelKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func familyKey(name string, keys []string) string {
	key := name
	for _, k := range keys {
		key += "|" + k
	}
	return key
}

func (m *PrometheusMetrics) counterVec(name string, tags map[string]string) *prometheus.CounterVec {
	keys := labelKeys(tags)
	fk := familyKey(name, keys)
	m.mu.Lock()
	defer m.mu.Unlock()
	if cv, ok := m.counters[fk]; ok {
		return cv
	}
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: promName(name)}, keys)
	m.registry.MustRegister(cv)
	m.counters[fk] = cv
	return cv
}

func (m *PrometheusMetrics) gaugeVec(name string, tags map[string]string) *prometheus.GaugeVec {
	keys := labelKeys(tags)
	fk := familyKey(name, keys)
	m.mu.Lock()
	defer m.mu.Unlock()
	if gv, ok := m.gauges[fk]; ok {
		return gv
	}
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: promName(name)}, keys)
	m.registry.MustRegister(gv)
	m.gauges[fk] = gv
	return gv
}

func (m *PrometheusMetrics) histogramVec(name string, tags map[string]string) *prometheus.HistogramVec {
	keys := labelKeys(tags)
	fk := familyKey(name, keys)
	m.mu.Lock()
	defer m.mu.Unlock()
	if hv, ok := m.histograms[fk]; ok {
		return hv
	}
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: promName(name)}, keys)
	m.registry.MustRegister(hv)
	m.histograms[fk] = hv
	return hv
}

// promName rewrites a dotted metric name (jwtworkbench.jws.encode) into
// prometheus's underscore convention.
func promName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '.' || name[i] == '-' {
			out[i] = '_'
		} else {
			out[i] = name[i]
		}
	}
	return string(out)
}

func (m *PrometheusMetrics) RecordCounter(_ context.Context, name string, tags map[string]string) error {
	m.counterVec(name, tags).With(tags).Inc()
	return nil
}

func (m *PrometheusMetrics) RecordCounterWithValue(_ context.Context, name string, value int64, tags map[string]string) error {
	m.counterVec(name, tags).With(tags).Add(float64(value))
	return nil
}

func (m *PrometheusMetrics) RecordGauge(_ context.Context, name string, value float64, tags map[string]string) error {
	m.gaugeVec(name, tags).With(tags).Set(value)
	return nil
}

func (m *PrometheusMetrics) RecordHistogram(_ context.Context, name string, value float64, tags map[string]string) error {
	m.histogramVec(name, tags).With(tags).Observe(value)
	return nil
}

func (m *PrometheusMetrics) RecordTimer(_ context.Context, name string, duration time.Duration, tags map[string]string) error {
	m.histogramVec(name, tags).With(tags).Observe(duration.Seconds())
	return nil
}

func (m *PrometheusMetrics) Name() string {
	return "prometheus"
}
