// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resample projects day-bounded series onto a fixed daily grid and
// folds many days together.
//
// # Description
//
// Each day is sampled at its own irregular times. To compare days, every
// series is moved onto one canonical grid of time-of-day offsets (every
// 5 minutes by default) by nearest-neighbour interpolation. Grid points
// outside the span of the original samples get 0.
//
// An Accumulator collects one resampled value per grid point per day and
// reduces the collection with Sum, Average, MedianHigh or Max.
package resample

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/AleutianAI/venuewatch/services/presence/snapshot"
)

// Day is the span covered by the canonical grid.
const Day = 24 * time.Hour

// DefaultTick is the reference grid granularity.
const DefaultTick = 5 * time.Minute

var (
	// ErrInvalidRange is returned when a series spans more than 24 hours.
	// It is the same sentinel the snapshot package uses for multi-day logs.
	ErrInvalidRange = snapshot.ErrInvalidRange

	// ErrEmptyAccumulator is returned when Average or MedianHigh is asked
	// for before anything was appended.
	ErrEmptyAccumulator = errors.New("accumulator has no data")

	// ErrLengthMismatch is returned when times and values differ in length.
	ErrLengthMismatch = errors.New("times and values differ in length")

	// ErrInvalidTick is returned for a grid tick outside (0, 24h].
	ErrInvalidTick = errors.New("tick must be positive and at most 24h")
)

// Grid is the canonical set of time-of-day offsets, floor(24h/tick) of
// them starting at midnight.
type Grid struct {
	tick    time.Duration
	offsets []time.Duration
}

// NewGrid builds a grid with the given tick.
func NewGrid(tick time.Duration) (Grid, error) {
	if tick <= 0 || tick > Day {
		return Grid{}, fmt.Errorf("%w: %s", ErrInvalidTick, tick)
	}
	n := int(Day / tick)
	offsets := make([]time.Duration, n)
	for i := range offsets {
		offsets[i] = time.Duration(i) * tick
	}
	return Grid{tick: tick, offsets: offsets}, nil
}

// DefaultGrid returns the 5-minute grid.
func DefaultGrid() Grid {
	g, _ := NewGrid(DefaultTick)
	return g
}

// Tick returns the spacing between grid points.
func (g Grid) Tick() time.Duration { return g.tick }

// Len returns the number of grid points.
func (g Grid) Len() int { return len(g.offsets) }

// Offsets returns a copy of the grid offsets.
func (g Grid) Offsets() []time.Duration { return slices.Clone(g.offsets) }

// Point is one grid offset and its value.
type Point struct {
	Offset time.Duration `json:"offset"`
	Value  float64       `json:"value"`
}

// Profile is a series on the canonical grid, ordered by offset.
type Profile []Point

// Values returns the values in grid order.
func (p Profile) Values() []float64 {
	out := make([]float64, len(p))
	for i, pt := range p {
		out[i] = pt.Value
	}
	return out
}

func (g Grid) profile(values []float64) Profile {
	out := make(Profile, len(g.offsets))
	for i, off := range g.offsets {
		out[i] = Point{Offset: off, Value: values[i]}
	}
	return out
}
