// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the coordinator's Prometheus collectors.
type Metrics struct {
	ClassLoads      *prometheus.CounterVec
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Pending         prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with
// registerer. A nil registerer creates unregistered collectors.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	metrics := &Metrics{
		ClassLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "class_loads_total",
			Help:      "Class loads seen by the coordinator, by outcome.",
		}, []string{"outcome"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "collector_requests_total",
			Help:      "Requests sent to the collector, by command.",
		}, []string{"command"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "loom",
			Name:      "collector_request_duration_seconds",
			Help:      "Collector request latency including the response, by command.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16), // 100µs to ~3s
		}, []string{"command"}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "loom",
			Name:      "pending_registrations",
			Help:      "Traced methods buffered until the host runtime is ready.",
		}),
	}

	if registerer == nil {
		return metrics, nil
	}
	for _, collector := range []prometheus.Collector{
		metrics.ClassLoads, metrics.Requests, metrics.RequestDuration, metrics.Pending,
	} {
		if err := registerer.Register(collector); err != nil {
			return nil, fmt.Errorf("registering coordinator metrics: %w", err)
		}
	}
	return metrics, nil
}

// ObserveRequest records one collector request. It has the signature of
// collector.Options.Observe.
func (m *Metrics) ObserveRequest(request string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(request).Inc()
	m.RequestDuration.WithLabelValues(request).Observe(elapsed.Seconds())
}

func (m *Metrics) observeLoad(outcome Outcome) {
	if m == nil {
		return
	}
	m.ClassLoads.WithLabelValues(outcome.String()).Inc()
}

func (m *Metrics) setPending(count int) {
	if m == nil {
		return
	}
	m.Pending.Set(float64(count))
}
