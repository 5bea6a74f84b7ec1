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
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// =============================================================================
// Init Tests
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "venuewatch", cfg.ServiceName)
	assert.Equal(t, ExporterNone, cfg.TraceExporter)
	assert.Equal(t, ExporterPrometheus, cfg.MetricExporter)
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context on purpose
	_, err := Init(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_UnknownExporters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "zipkin"
	_, err := Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)

	cfg = DefaultConfig()
	cfg.MetricExporter = "graphite"
	_, err = Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_StdoutExporters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = ExporterStdout
	cfg.MetricExporter = ExporterStdout

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_OTLPExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = ExporterOTLP
	cfg.MetricExporter = ExporterNone

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, shutdown(ctx), "no spans were recorded, so nothing is sent")
}

func TestInit_PrometheusServesOTelAndDefaultRegistry(t *testing.T) {
	cfg := DefaultConfig()
	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	defer shutdown(context.Background())

	m, err := NewMetrics(otel.Meter("telemetry_test"))
	require.NoError(t, err)
	m.RecordQuery(context.Background(), "profile", 5*time.Millisecond, nil)

	handler := MetricsHandler()
	require.NotNil(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "venuewatch_catalog_queries_total")
	assert.Contains(t, string(body), "go_goroutines", "default registry is included")
}

// =============================================================================
// Metrics Tests
// =============================================================================

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordDayAnalysis(ctx, time.Millisecond, false)
	m.RecordDayAnalysis(ctx, 0, true)
	m.RecordQuery(ctx, "playtime", time.Millisecond, errors.New("x"))
	m.RecordSamplesLoaded(ctx, 12)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			names[md.Name] = true
		}
	}
	for _, want := range []string{
		"venuewatch_days_analysed_total",
		"venuewatch_day_analysis_duration_seconds",
		"venuewatch_catalog_queries_total",
		"venuewatch_samples_loaded_total",
	} {
		assert.True(t, names[want], want)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordDayAnalysis(context.Background(), time.Second, false)
	m.RecordQuery(context.Background(), "x", time.Second, nil)
	m.RecordSamplesLoaded(context.Background(), 1)
}

// =============================================================================
// Tracing Tests
// =============================================================================

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestStartSpan_RecordError(t *testing.T) {
	rec := withRecorder(t)

	ctx, span := StartSpan(context.Background(), "test", "Catalog.Reload")
	assert.NotEmpty(t, TraceID(ctx))
	RecordError(span, errors.New("disk gone"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "Catalog.Reload", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)

	RecordError(nil, errors.New("ignored"))
	SetSpanOK(nil)
	assert.Empty(t, TraceID(context.Background()))
}

func TestLoggerWithTrace(t *testing.T) {
	withRecorder(t)

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	LoggerWithTrace(context.Background(), base).Info("no span")
	assert.NotContains(t, buf.String(), "trace_id")

	ctx, span := StartSpan(context.Background(), "test", "op")
	defer span.End()
	LoggerWithTrace(ctx, base).Info("with span")
	assert.Contains(t, buf.String(), "trace_id="+TraceID(ctx))

	assert.NotNil(t, LoggerWithTrace(ctx, nil))
}
