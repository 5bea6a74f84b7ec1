// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the venuewatch YAML configuration.
//
// Values missing from the file keep their defaults; the merged result is
// checked with go-playground/validator before use. Nothing below the
// service layer reads configuration on its own: the analyzer, grid and
// stores receive the values they need as arguments.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/venuewatch/pkg/logging"
	"github.com/AleutianAI/venuewatch/services/presence/analysis"
	"github.com/AleutianAI/venuewatch/services/presence/resample"
	"github.com/AleutianAI/venuewatch/services/presence/telemetry"
)

// Config is the root of venuewatch.yaml.
type Config struct {
	// LogDir holds the recorder's day files (log_YYYY-MM-DD.txt).
	LogDir string `yaml:"log_dir" validate:"required"`

	Analysis AnalysisConfig `yaml:"analysis"`
	Server   ServerConfig   `yaml:"server"`
	Badger   BadgerConfig   `yaml:"badger"`
	Influx   InfluxConfig   `yaml:"influx"`

	Telemetry telemetry.Config `yaml:"telemetry"`
	Logging   logging.Config   `yaml:"logging"`
}

// AnalysisConfig carries the presence heuristics and the grid tick.
type AnalysisConfig struct {
	MaxStableGap  time.Duration `yaml:"max_stable_gap" validate:"gt=0"`
	MaxReentryGap time.Duration `yaml:"max_reentry_gap" validate:"gt=0"`
	Tick          time.Duration `yaml:"tick" validate:"gt=0,lte=24h"`

	// Workers bounds how many days are analysed concurrently.
	Workers int `yaml:"workers" validate:"gte=1,lte=256"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" validate:"gte=1,lte=65535"`

	// Watch reloads the catalog when day files change.
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`

	// RateLimit caps requests per second across all clients; 0 disables.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	RateBurst int     `yaml:"rate_burst" validate:"gte=0"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// BadgerConfig points at the optional badger snapshot store. An empty
// Path with InMemory false disables it.
type BadgerConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// Enabled reports whether a badger store should be opened.
func (b BadgerConfig) Enabled() bool { return b.Path != "" || b.InMemory }

// InfluxConfig configures headcount export. An empty URL disables it.
type InfluxConfig struct {
	URL    string `yaml:"url" validate:"omitempty,url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org" validate:"required_with=URL"`
	Bucket string `yaml:"bucket" validate:"required_with=URL"`
}

// Enabled reports whether export is configured.
func (i InfluxConfig) Enabled() bool { return i.URL != "" }

// Default returns the reference configuration.
func Default() Config {
	return Config{
		LogDir: "logs",
		Analysis: AnalysisConfig{
			MaxStableGap:  analysis.DefaultMaxStableGap,
			MaxReentryGap: analysis.DefaultMaxReentryGap,
			Tick:          resample.DefaultTick,
			Workers:       4,
		},
		Server: ServerConfig{
			Port:            12220,
			Debounce:        500 * time.Millisecond,
			RateBurst:       20,
			ShutdownTimeout: 10 * time.Second,
		},
		Influx: InfluxConfig{
			Org:    "venuewatch",
			Bucket: "headcounts",
		},
		Telemetry: telemetry.DefaultConfig(),
		Logging: logging.Config{
			Level:   logging.LevelInfo,
			Service: "venuewatch",
		},
	}
}

var validate = validator.New()

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// AnalyzerConfig converts the analysis section for analysis.New.
func (c Config) AnalyzerConfig() analysis.Config {
	return analysis.Config{
		MaxStableGap:  c.Analysis.MaxStableGap,
		MaxReentryGap: c.Analysis.MaxReentryGap,
	}
}

// Load reads path over the defaults and validates the result. An empty
// path returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to path, creating parent
// directories. An existing file is left alone.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
