// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the relay's Prometheus collectors on a private
// registry, so tests can build isolated instances.
type Metrics struct {
	Registry *prometheus.Registry

	Requests    *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	InFlight    prometheus.Gauge
	RateLimited prometheus.Counter
}

// NewMetrics builds and registers the relay collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: registry,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Forwarded requests by method and upstream status.",
		}, []string{"method", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_request_duration_seconds",
			Help:    "Wall time of forwarded requests, stream included.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"method"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_in_flight_requests",
			Help: "Forwarded requests currently open, long-lived streams included.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_rate_limited_total",
			Help: "Requests rejected by the per-client rate limit.",
		}),
	}
	registry.MustRegister(m.Requests, m.Duration, m.InFlight, m.RateLimited)
	return m
}
