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
	"errors"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/venuewatch/services/presence/snapshot"
	"github.com/AleutianAI/venuewatch/services/presence/storage"
)

// ReloadResult summarises a Reload or Refresh.
type ReloadResult struct {
	// Days is the number of dates loaded. For Reload it includes skipped
	// dates whose previous contents were kept.
	Days int `json:"days"`

	// Samples is the number of snapshots across the counted dates.
	Samples int `json:"samples"`

	// Removed lists dates dropped because storage no longer has them.
	Removed []civil.Date `json:"removed,omitempty"`

	// Skipped lists dates whose logs could not be read or were invalid.
	// Their previous contents, if any, are kept.
	Skipped []civil.Date `json:"skipped,omitempty"`

	Duration time.Duration `json:"duration"`
}

// Reload replaces every day with what repo holds now.
//
// # Description
//
// Days are read in parallel. A day that fails to load (malformed row,
// samples from two dates) is logged and skipped instead of failing the
// whole reload. A skipped date that was already loaded keeps its previous
// log. Dates storage no longer lists are dropped. The swap happens only
// after every read finished.
//
// # Outputs
//
//   - ReloadResult: What was loaded and skipped.
//   - error: Listing the dates failed, or ctx was cancelled. The catalog is
//     unchanged on error.
func (c *Catalog) Reload(ctx context.Context, repo storage.Reader) (res ReloadResult, err error) {
	ctx, done := c.observe(ctx, "Reload")
	defer done(&err)
	start := time.Now()

	dates, err := repo.Dates(ctx)
	if err != nil {
		return ReloadResult{}, err
	}

	logs, skipped, err := c.load(ctx, repo, dates)
	if err != nil {
		return ReloadResult{}, err
	}

	res.Days, res.Samples = c.replace(logs, skipped)
	res.Skipped = skipped
	res.Duration = time.Since(start)
	c.metrics.RecordSamplesLoaded(ctx, res.Samples)
	c.logger.Info("catalog reloaded",
		"days", res.Days,
		"samples", res.Samples,
		"skipped", len(res.Skipped),
		"duration", res.Duration,
	)
	return res, nil
}

// Refresh reloads only the given dates. A date storage no longer has is
// removed.
func (c *Catalog) Refresh(ctx context.Context, repo storage.Reader, dates ...civil.Date) (res ReloadResult, err error) {
	ctx, done := c.observe(ctx, "Refresh", attribute.Int("dates", len(dates)))
	defer done(&err)
	start := time.Now()

	logs, skipped, err := c.load(ctx, repo, dates)
	if err != nil {
		return ReloadResult{}, err
	}
	for i, l := range logs {
		switch {
		case l != nil:
			c.Put(l)
			res.Days++
			res.Samples += l.Len()
		case !contains(skipped, dates[i]):
			if c.Remove(dates[i]) {
				res.Removed = append(res.Removed, dates[i])
			}
		}
	}
	res.Skipped = skipped
	res.Duration = time.Since(start)
	c.metrics.RecordSamplesLoaded(ctx, res.Samples)
	c.logger.Info("catalog refreshed",
		"days", res.Days,
		"removed", len(res.Removed),
		"skipped", len(res.Skipped),
	)
	return res, nil
}

// load reads dates in parallel. Index i of the returned slice is nil when
// dates[i] is missing or was skipped.
func (c *Catalog) load(ctx context.Context, repo storage.Reader, dates []civil.Date) ([]*snapshot.Log, []civil.Date, error) {
	logs := make([]*snapshot.Log, len(dates))
	var (
		mu      sync.Mutex
		skipped []civil.Date
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, date := range dates {
		g.Go(func() error {
			l, err := repo.LoadDay(gctx, date)
			switch {
			case err == nil:
				logs[i] = l
			case errors.Is(err, storage.ErrDayNotFound):
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				c.logger.Warn("skipping unreadable day", "date", date.String(), "error", err)
				mu.Lock()
				skipped = append(skipped, date)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	sortDates(skipped)
	return logs, skipped, nil
}

func contains(dates []civil.Date, d civil.Date) bool {
	for _, x := range dates {
		if x == d {
			return true
		}
	}
	return false
}
