// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"fmt"
	"slices"
	"time"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/venuewatch/services/presence/analysis"
	"github.com/AleutianAI/venuewatch/services/presence/resample"
	"github.com/AleutianAI/venuewatch/services/presence/snapshot"
	"github.com/AleutianAI/venuewatch/services/presence/telemetry"
)

// TimedCount is a headcount at one sample time.
type TimedCount struct {
	Time  time.Time `json:"time"`
	Count int       `json:"count"`
}

// TimedPlayers is the set of identities present at one sample time,
// ordered by id.
type TimedPlayers struct {
	Time    time.Time           `json:"time"`
	Players []snapshot.Identity `json:"players"`
}

// Timeline is one identity's series for one day.
type Timeline struct {
	Identity    snapshot.Identity `json:"identity"`
	Date        civil.Date        `json:"date"`
	Times       []time.Time       `json:"times"`
	Transitions []bool            `json:"transitions"`
	Presence    []bool            `json:"presence"`
}

// observe starts a span and returns a function that ends it and records the
// query metric.
func (c *Catalog) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Catalog."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.SetSpanOK(span)
		}
		span.End()
		c.metrics.RecordQuery(ctx, op, time.Since(start), err)
	}
}

// =============================================================================
// Per-day queries
// =============================================================================

// Report returns a copy of the full analysis of one day. Changing it does
// not affect the catalog.
func (c *Catalog) Report(ctx context.Context, date civil.Date) (*analysis.DayReport, error) {
	rep, err := c.reportOn(ctx, date)
	if err != nil {
		return nil, err
	}
	return rep.Clone(), nil
}

// reportOn returns the cached report of a date. Callers must not modify it.
func (c *Catalog) reportOn(ctx context.Context, date civil.Date) (*analysis.DayReport, error) {
	d, err := c.day(date)
	if err != nil {
		return nil, err
	}
	return c.report(ctx, d), nil
}

// HeadcountsOn returns the headcount at each sample of a day.
func (c *Catalog) HeadcountsOn(ctx context.Context, date civil.Date) (out []TimedCount, err error) {
	ctx, done := c.observe(ctx, "HeadcountsOn", attribute.String("date", date.String()))
	defer done(&err)

	rep, err := c.reportOn(ctx, date)
	if err != nil {
		return nil, err
	}
	out = make([]TimedCount, len(rep.Times))
	for i, t := range rep.Times {
		out[i] = TimedCount{Time: t, Count: rep.Headcounts[i]}
	}
	return out, nil
}

// PlayersOn returns who was present at each sample of a day.
func (c *Catalog) PlayersOn(ctx context.Context, date civil.Date) (out []TimedPlayers, err error) {
	ctx, done := c.observe(ctx, "PlayersOn", attribute.String("date", date.String()))
	defer done(&err)

	rep, err := c.reportOn(ctx, date)
	if err != nil {
		return nil, err
	}
	sets := rep.PlayersOverTime()
	out = make([]TimedPlayers, len(rep.Times))
	for i, t := range rep.Times {
		out[i] = TimedPlayers{Time: t, Players: sets[i].Sorted()}
	}
	return out, nil
}

// TimelineOn returns one identity's transitions and presence for a day.
//
// # Outputs
//
//   - error: ErrUnknownDate, or snapshot.ErrUnknownIdentity when the
//     identity was not ranked that day.
func (c *Catalog) TimelineOn(ctx context.Context, date civil.Date, id string) (tl *Timeline, err error) {
	ctx, done := c.observe(ctx, "TimelineOn",
		attribute.String("date", date.String()),
		attribute.String("identity_id", id),
	)
	defer done(&err)

	rep, err := c.reportOn(ctx, date)
	if err != nil {
		return nil, err
	}
	who, ok := rep.Members[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q on %s", snapshot.ErrUnknownIdentity, id, date)
	}
	return &Timeline{
		Identity:    who,
		Date:        date,
		Times:       slices.Clone(rep.Times),
		Transitions: slices.Clone(rep.Transitions[id]),
		Presence:    slices.Clone(rep.Presence[id]),
	}, nil
}

// =============================================================================
// Cross-day queries
// =============================================================================

// Identities returns every identity seen on any day, ordered by id. When an
// id appears under several names the name from the latest date wins.
func (c *Catalog) Identities(ctx context.Context) []snapshot.Identity {
	_, done := c.observe(ctx, "Identities")
	defer done(nil)

	latest := make(snapshot.IdentitySet)
	for _, e := range c.entries(nil) {
		for id, who := range e.day.log.Identities() {
			latest[id] = who
		}
	}
	return latest.Sorted()
}

// reports analyses the given days in parallel and returns the reports in
// the same order.
func (c *Catalog) reports(ctx context.Context, entries []entry) ([]*analysis.DayReport, error) {
	out := make([]*analysis.DayReport, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = c.report(gctx, e.day)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// HeadcountProfile folds every day's headcount series onto the grid.
//
// # Inputs
//
//   - reduction: How values from different days combine at a grid point.
//   - weekday: Optional filter; nil uses every day.
//
// # Outputs
//
//   - resample.Profile: One point per grid offset.
//   - error: resample.ErrEmptyAccumulator when no day matches, for every
//     reduction except Sum (which yields zeros); ctx errors.
func (c *Catalog) HeadcountProfile(ctx context.Context, reduction resample.Reduction, weekday *time.Weekday) (p resample.Profile, err error) {
	attrs := []attribute.KeyValue{attribute.String("reduction", reduction.String())}
	if weekday != nil {
		attrs = append(attrs, attribute.String("weekday", weekday.String()))
	}
	ctx, done := c.observe(ctx, "HeadcountProfile", attrs...)
	defer done(&err)

	entries := c.entries(weekday)
	reps, err := c.reports(ctx, entries)
	if err != nil {
		return nil, err
	}

	acc := resample.NewAccumulator(c.grid, reduction)
	for _, rep := range reps {
		if err := acc.Append(rep.Times, rep.HeadcountValues()); err != nil {
			return nil, fmt.Errorf("fold %s: %w", rep.Date, err)
		}
	}
	c.logger.Debug("headcount profile computed",
		"reduction", reduction.String(),
		"days", acc.Count(),
	)
	if acc.Count() == 0 && reduction == resample.Max {
		return nil, fmt.Errorf("%w: %s", resample.ErrEmptyAccumulator, reduction)
	}
	return acc.Result()
}

// Playtime sums an identity's presence over every day, per grid point. A
// value of n at an offset means the identity was present around that time
// of day on n days.
//
// # Outputs
//
//   - error: snapshot.ErrUnknownIdentity when no loaded day ranks the id.
func (c *Catalog) Playtime(ctx context.Context, id string) (p resample.Profile, err error) {
	ctx, done := c.observe(ctx, "Playtime", attribute.String("identity_id", id))
	defer done(&err)

	entries := c.entries(nil)
	if !anyContains(entries, id) {
		return nil, fmt.Errorf("%w: %q on any date", snapshot.ErrUnknownIdentity, id)
	}
	reps, err := c.reports(ctx, entries)
	if err != nil {
		return nil, err
	}

	acc := resample.NewAccumulator(c.grid, resample.Sum)
	for _, rep := range reps {
		if err := acc.Append(rep.Times, rep.PresenceValues(id)); err != nil {
			return nil, fmt.Errorf("fold %s: %w", rep.Date, err)
		}
	}
	return acc.Result()
}

// PlayDates lists, ascending, the dates on which the identity had at least
// one confirmed transition.
//
// # Outputs
//
//   - error: snapshot.ErrUnknownIdentity when no loaded day ranks the id.
func (c *Catalog) PlayDates(ctx context.Context, id string) (dates []civil.Date, err error) {
	ctx, done := c.observe(ctx, "PlayDates", attribute.String("identity_id", id))
	defer done(&err)

	var candidates []entry
	for _, e := range c.entries(nil) {
		if e.day.log.Contains(id) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %q on any date", snapshot.ErrUnknownIdentity, id)
	}
	reps, err := c.reports(ctx, candidates)
	if err != nil {
		return nil, err
	}

	dates = []civil.Date{}
	for i, rep := range reps {
		if rep.Confirmed(id) {
			dates = append(dates, candidates[i].date)
		}
	}
	return dates, nil
}

func anyContains(entries []entry, id string) bool {
	for _, e := range entries {
		if e.day.log.Contains(id) {
			return true
		}
	}
	return false
}
