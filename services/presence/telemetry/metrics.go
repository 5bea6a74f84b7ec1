// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OTel instruments for presence analysis.
//
// All instruments use the "venuewatch_" prefix.
//
// # Thread Safety
//
// Safe for concurrent use after creation.
type Metrics struct {
	// DayAnalysisDuration records how long one day's Analyze took.
	DayAnalysisDuration metric.Float64Histogram

	// DaysAnalysedTotal counts day analyses, cached or not.
	DaysAnalysedTotal metric.Int64Counter

	// QueriesTotal counts catalog queries by operation and status.
	QueriesTotal metric.Int64Counter

	// QueryDuration records catalog query duration by operation.
	QueryDuration metric.Float64Histogram

	// SamplesLoadedTotal counts snapshots loaded by reloads.
	SamplesLoadedTotal metric.Int64Counter
}

// NewMetrics registers the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.DayAnalysisDuration, err = meter.Float64Histogram(
		"venuewatch_day_analysis_duration_seconds",
		metric.WithDescription("Duration of one day's presence analysis"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create day_analysis_duration: %w", err)
	}

	m.DaysAnalysedTotal, err = meter.Int64Counter(
		"venuewatch_days_analysed_total",
		metric.WithDescription("Day analyses by cache outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create days_analysed_total: %w", err)
	}

	m.QueriesTotal, err = meter.Int64Counter(
		"venuewatch_catalog_queries_total",
		metric.WithDescription("Catalog queries by operation and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create catalog_queries_total: %w", err)
	}

	m.QueryDuration, err = meter.Float64Histogram(
		"venuewatch_catalog_query_duration_seconds",
		metric.WithDescription("Catalog query duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create catalog_query_duration: %w", err)
	}

	m.SamplesLoadedTotal, err = meter.Int64Counter(
		"venuewatch_samples_loaded_total",
		metric.WithDescription("Snapshots loaded into the catalog"),
	)
	if err != nil {
		return nil, fmt.Errorf("create samples_loaded_total: %w", err)
	}

	return m, nil
}

// RecordDayAnalysis records one day analysis. cached is true when the
// report came from the catalog's cache.
func (m *Metrics) RecordDayAnalysis(ctx context.Context, d time.Duration, cached bool) {
	if m == nil {
		return
	}
	m.DaysAnalysedTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("cached", cached)))
	if !cached {
		m.DayAnalysisDuration.Record(ctx, d.Seconds())
	}
}

// RecordQuery records one catalog query.
func (m *Metrics) RecordQuery(ctx context.Context, op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.QueriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("status", status),
	))
	m.QueryDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("operation", op)))
}

// RecordSamplesLoaded counts snapshots brought in by a reload.
func (m *Metrics) RecordSamplesLoaded(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.SamplesLoadedTotal.Add(ctx, int64(n))
}
