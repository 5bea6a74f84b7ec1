// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the presence API.
//
// # Description
//
// Metrics include:
//   - HTTP request counters and latency histograms by route and status
//   - An in-flight request gauge
//   - Catalog reload counters and the number of loaded days
//
// Catalog query and day analysis metrics are OTel instruments and live in
// the telemetry package; both end up on the same /metrics endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "venuewatch"

const (
	httpSubsystem    = "http"
	catalogSubsystem = "catalog"
)

// ReloadTrigger labels what started a catalog reload.
type ReloadTrigger string

const (
	// TriggerStartup is the initial load.
	TriggerStartup ReloadTrigger = "startup"

	// TriggerWatch is a refresh after day files changed.
	TriggerWatch ReloadTrigger = "watch"

	// TriggerAPI is a reload requested over HTTP.
	TriggerAPI ReloadTrigger = "api"
)

// Metrics holds the Prometheus collectors of the API server.
//
// # Fields
//
//   - RequestsTotal: Requests by method, route and status code
//   - RequestDurationSeconds: Request latency by method and route
//   - InFlightRequests: Requests currently being served
//   - ReloadsTotal: Catalog reloads by trigger and status
//   - LoadedDays: Days currently held by the catalog
type Metrics struct {
	RequestsTotal          *prometheus.CounterVec
	RequestDurationSeconds *prometheus.HistogramVec
	InFlightRequests       prometheus.Gauge
	ReloadsTotal           *prometheus.CounterVec
	LoadedDays             prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// uses the default registry.
//
// # Limitations
//
//   - Panics if called twice against the same registry (duplicate
//     registration).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "requests_total",
				Help:      "Total HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		),

		RequestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),

		InFlightRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "in_flight_requests",
				Help:      "Number of HTTP requests being served",
			},
		),

		ReloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: catalogSubsystem,
				Name:      "reloads_total",
				Help:      "Catalog reloads by trigger and status",
			},
			[]string{"trigger", "status"},
		),

		LoadedDays: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: catalogSubsystem,
				Name:      "loaded_days",
				Help:      "Number of days held by the catalog",
			},
		),
	}
}

// RecordReload records one reload and the resulting number of days.
func (m *Metrics) RecordReload(trigger ReloadTrigger, days int, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ReloadsTotal.WithLabelValues(string(trigger), status).Inc()
	if err == nil {
		m.LoadedDays.Set(float64(days))
	}
}

// Middleware records request count, latency and in-flight requests.
//
// The route label is the matched route template (c.FullPath), so
// /v1/days/:date is one series regardless of the date. Unmatched requests
// are labelled "unmatched".
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		m.InFlightRequests.Inc()
		defer m.InFlightRequests.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDurationSeconds.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
