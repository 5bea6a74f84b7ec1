// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog answers cross-day questions over a set of day logs.
//
// # Description
//
// A Catalog holds one snapshot.Log per calendar date. Per-day questions
// (headcounts, who was present) read one day's analysis; cross-day
// questions (average headcount by time of day, cumulative play time, the
// dates an identity played) analyse every relevant day in parallel and fold
// the results onto the canonical grid in date order.
//
// Each day is analysed at most once per load; the report is cached until
// that date is replaced by Reload or Refresh.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Reload swaps the day map
// atomically, so queries see either the old or the new set of days.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/AleutianAI/venuewatch/services/presence/analysis"
	"github.com/AleutianAI/venuewatch/services/presence/resample"
	"github.com/AleutianAI/venuewatch/services/presence/snapshot"
	"github.com/AleutianAI/venuewatch/services/presence/telemetry"
)

const tracerName = "venuewatch.catalog"

// ErrUnknownDate is returned for a date the catalog holds no log for.
var ErrUnknownDate = errors.New("no log for date")

// DefaultWorkers bounds parallel day analysis when no option is given.
const DefaultWorkers = 4

// day is one loaded log and its lazily computed report.
type day struct {
	log    *snapshot.Log
	once   sync.Once
	report *analysis.DayReport
}

// Catalog is the set of loaded days plus the analysis settings applied to
// them.
type Catalog struct {
	analyzer *analysis.Analyzer
	grid     resample.Grid
	workers  int
	logger   *slog.Logger
	metrics  *telemetry.Metrics

	mu       sync.RWMutex
	days     map[civil.Date]*day
	loadedAt time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithWorkers bounds how many days are analysed at once.
func WithWorkers(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records analysis and query metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Catalog) { c.metrics = m }
}

// New creates an empty catalog.
func New(analyzer *analysis.Analyzer, grid resample.Grid, opts ...Option) *Catalog {
	c := &Catalog{
		analyzer: analyzer,
		grid:     grid,
		workers:  DefaultWorkers,
		logger:   slog.Default(),
		days:     make(map[civil.Date]*day),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyzer returns the analyzer applied to every day.
func (c *Catalog) Analyzer() *analysis.Analyzer { return c.analyzer }

// Grid returns the canonical grid profiles are resampled onto.
func (c *Catalog) Grid() resample.Grid { return c.grid }

// Set replaces the whole day map with logs. Empty logs are skipped since
// they carry no date.
func (c *Catalog) Set(logs ...*snapshot.Log) {
	c.replace(logs, nil)
}

// replace swaps in a day map built from logs. Dates in keep that are
// currently loaded carry over unchanged, cached report included. It
// returns the new day and sample counts.
func (c *Catalog) replace(logs []*snapshot.Log, keep []civil.Date) (days, samples int) {
	next := make(map[civil.Date]*day, len(logs)+len(keep))
	for _, l := range logs {
		if l == nil || l.Len() == 0 {
			continue
		}
		next[l.Date()] = &day{log: l}
	}

	c.mu.Lock()
	for _, date := range keep {
		if old, ok := c.days[date]; ok {
			if _, replaced := next[date]; !replaced {
				next[date] = old
			}
		}
	}
	c.days = next
	c.loadedAt = time.Now()
	c.mu.Unlock()

	for _, d := range next {
		samples += d.log.Len()
	}
	return len(next), samples
}

// Put adds or replaces the log for its date.
func (c *Catalog) Put(l *snapshot.Log) {
	if l == nil || l.Len() == 0 {
		return
	}
	c.mu.Lock()
	c.days[l.Date()] = &day{log: l}
	c.loadedAt = time.Now()
	c.mu.Unlock()
}

// Remove drops a date. Returns false if it was not loaded.
func (c *Catalog) Remove(date civil.Date) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.days[date]; !ok {
		return false
	}
	delete(c.days, date)
	c.loadedAt = time.Now()
	return true
}

// LoadedAt returns when the day map last changed.
func (c *Catalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// Len returns the number of loaded days.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.days)
}

// Dates returns the loaded dates in ascending order.
func (c *Catalog) Dates() []civil.Date {
	c.mu.RLock()
	dates := make([]civil.Date, 0, len(c.days))
	for d := range c.days {
		dates = append(dates, d)
	}
	c.mu.RUnlock()
	sortDates(dates)
	return dates
}

func sortDates(dates []civil.Date) {
	slices.SortFunc(dates, func(a, b civil.Date) int { return a.Compare(b) })
}

// Log returns the log for a date.
func (c *Catalog) Log(date civil.Date) (*snapshot.Log, error) {
	d, err := c.day(date)
	if err != nil {
		return nil, err
	}
	return d.log, nil
}

func (c *Catalog) day(date civil.Date) (*day, error) {
	c.mu.RLock()
	d, ok := c.days[date]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDate, date)
	}
	return d, nil
}

// entry pairs a date with its day for ordered iteration.
type entry struct {
	date civil.Date
	day  *day
}

// entries returns the loaded days in date order, optionally restricted to
// one weekday.
func (c *Catalog) entries(weekday *time.Weekday) []entry {
	c.mu.RLock()
	out := make([]entry, 0, len(c.days))
	for date, d := range c.days {
		if weekday != nil && Weekday(date) != *weekday {
			continue
		}
		out = append(out, entry{date: date, day: d})
	}
	c.mu.RUnlock()
	slices.SortFunc(out, func(a, b entry) int { return a.date.Compare(b.date) })
	return out
}

// Weekday returns the day of the week of a calendar date.
func Weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}

// report returns the cached analysis of d, computing it on first use.
func (c *Catalog) report(ctx context.Context, d *day) *analysis.DayReport {
	cached := true
	var took time.Duration
	d.once.Do(func() {
		cached = false
		start := time.Now()
		d.report = c.analyzer.Analyze(d.log)
		took = time.Since(start)
	})
	c.metrics.RecordDayAnalysis(ctx, took, cached)
	return d.report
}
