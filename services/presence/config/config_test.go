// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/venuewatch/pkg/logging"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "venuewatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Minute, cfg.Analysis.MaxStableGap)
	assert.Equal(t, time.Hour, cfg.Analysis.MaxReentryGap)
	assert.Equal(t, 5*time.Minute, cfg.Analysis.Tick)
	assert.False(t, cfg.Badger.Enabled())
	assert.False(t, cfg.Influx.Enabled())

	ac := cfg.AnalyzerConfig()
	assert.Equal(t, cfg.Analysis.MaxStableGap, ac.MaxStableGap)
	assert.Equal(t, cfg.Analysis.MaxReentryGap, ac.MaxReentryGap)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Analysis, cfg.Analysis)
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := writeFile(t, `
log_dir: /var/lib/venuewatch
analysis:
  max_stable_gap: 20m
  tick: 10m
server:
  port: 8080
  watch: true
influx:
  url: http://localhost:8086
  token: secret
logging:
  level: debug
  json: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/venuewatch", cfg.LogDir)
	assert.Equal(t, 20*time.Minute, cfg.Analysis.MaxStableGap)
	assert.Equal(t, time.Hour, cfg.Analysis.MaxReentryGap, "untouched default")
	assert.Equal(t, 10*time.Minute, cfg.Analysis.Tick)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Server.Watch)
	assert.True(t, cfg.Influx.Enabled())
	assert.Equal(t, "headcounts", cfg.Influx.Bucket)
	assert.Equal(t, logging.LevelDebug, cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative stable gap", "analysis:\n  max_stable_gap: -1m\n"},
		{"tick over a day", "analysis:\n  tick: 25h\n"},
		{"zero workers", "analysis:\n  workers: 0\n"},
		{"port out of range", "server:\n  port: 70000\n"},
		{"empty log dir", "log_dir: \"\"\n"},
		{"bad influx url", "influx:\n  url: \"::nope\"\n"},
		{"influx without bucket", "influx:\n  url: http://localhost:8086\n  bucket: \"\"\n"},
		{"bad otlp endpoint", "telemetry:\n  otlp_endpoint: \"not an endpoint\"\n"},
		{"unknown trace exporter", "telemetry:\n  trace_exporter: zipkin\n"},
		{"bad log level", "logging:\n  level: loud\n"},
		{"not yaml", "analysis: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "venuewatch.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Analysis, cfg.Analysis)
	assert.Equal(t, Default().Server, cfg.Server)

	require.NoError(t, os.WriteFile(path, []byte("log_dir: kept\n"), 0644))
	require.NoError(t, WriteDefault(path))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "kept", cfg.LogDir, "existing file is not overwritten")
}
