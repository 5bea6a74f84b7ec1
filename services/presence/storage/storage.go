// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage defines how day logs are persisted.
//
// Two implementations exist: storage/jsonl reads and writes the recorder's
// one-file-per-day JSON-lines format, and storage/badger keeps snapshots in
// an embedded BadgerDB keyed by date and time.
package storage

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"

	"github.com/AleutianAI/venuewatch/services/presence/snapshot"
)

// ErrDayNotFound is returned by LoadDay for a date with no snapshots.
var ErrDayNotFound = errors.New("no snapshots for date")

// Reader loads whole days.
type Reader interface {
	// Dates lists every stored date in ascending order.
	Dates(ctx context.Context) ([]civil.Date, error)

	// LoadDay builds the Log for one date. Returns ErrDayNotFound when the
	// date has nothing stored.
	LoadDay(ctx context.Context, date civil.Date) (*snapshot.Log, error)
}

// Writer stores snapshots. Each snapshot is filed under the calendar date
// of its own timestamp.
type Writer interface {
	Append(ctx context.Context, snaps ...snapshot.Snapshot) error
}

// Repository is a Reader and Writer that holds resources.
type Repository interface {
	Reader
	Writer
	Close() error
}

// Copy streams every day from src into dst and returns the number of
// snapshots written.
func Copy(ctx context.Context, dst Writer, src Reader) (int, error) {
	dates, err := src.Dates(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, d := range dates {
		log, err := src.LoadDay(ctx, d)
		if err != nil {
			return total, err
		}
		snaps := log.Snapshots()
		if err := dst.Append(ctx, snaps...); err != nil {
			return total, err
		}
		total += len(snaps)
	}
	return total, nil
}
