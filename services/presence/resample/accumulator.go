// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resample

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// Reduction selects how an Accumulator combines the values collected at
// one grid point.
type Reduction int

const (
	// Sum totals the collected values.
	Sum Reduction = iota

	// Average divides the total by the number of appends.
	Average

	// MedianHigh takes the upper median: with an even count it returns the
	// larger of the two central values.
	MedianHigh

	// Max takes the pointwise maximum.
	Max
)

// String returns the canonical name of the reduction.
func (r Reduction) String() string {
	switch r {
	case Sum:
		return "sum"
	case Average:
		return "average"
	case MedianHigh:
		return "median"
	case Max:
		return "max"
	default:
		return "unknown"
	}
}

// ParseReduction reads a reduction name. "mean" and "median_high" are
// accepted as aliases.
func ParseReduction(name string) (Reduction, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sum":
		return Sum, nil
	case "average", "mean", "avg":
		return Average, nil
	case "median", "median_high":
		return MedianHigh, nil
	case "max":
		return Max, nil
	default:
		return 0, fmt.Errorf("unknown reduction %q", name)
	}
}

// Accumulator folds many days of series onto one grid.
//
// # Description
//
// Every grid point has a pre-allocated list that receives one value per
// Append. Result applies the configured reduction to each list without
// changing the accumulated state, so it may be called repeatedly.
//
// # Thread Safety
//
// Not safe for concurrent Append. Callers that analyse days in parallel
// append from a single goroutine.
type Accumulator struct {
	grid      Grid
	reduction Reduction
	values    [][]float64
	count     int
}

// NewAccumulator creates an empty accumulator for the grid.
func NewAccumulator(grid Grid, reduction Reduction) *Accumulator {
	values := make([][]float64, grid.Len())
	for i := range values {
		values[i] = []float64{}
	}
	return &Accumulator{grid: grid, reduction: reduction, values: values}
}

// Reduction returns the configured reduction.
func (a *Accumulator) Reduction() Reduction { return a.reduction }

// Count returns how many series have been appended.
func (a *Accumulator) Count() int { return a.count }

// Append resamples one day's series and records it.
//
// # Outputs
//
//   - error: Any error from Resample; on error nothing is recorded.
func (a *Accumulator) Append(xs []time.Time, ys []float64) error {
	resampled, err := Resample(a.grid, xs, ys)
	if err != nil {
		return err
	}
	return a.AppendResampled(resampled)
}

// AppendResampled records a series that is already on the grid.
func (a *Accumulator) AppendResampled(values []float64) error {
	if len(values) != a.grid.Len() {
		return fmt.Errorf("%w: grid has %d points, got %d", ErrLengthMismatch, a.grid.Len(), len(values))
	}
	for i, v := range values {
		a.values[i] = append(a.values[i], v)
	}
	a.count++
	return nil
}

// Result reduces the collected values.
//
// # Outputs
//
//   - Profile: One point per grid offset. With no appends, Sum yields 0
//     and Max yields -Inf everywhere.
//   - error: ErrEmptyAccumulator for Average or MedianHigh with no appends.
func (a *Accumulator) Result() (Profile, error) {
	if a.count == 0 && (a.reduction == Average || a.reduction == MedianHigh) {
		return nil, fmt.Errorf("%w: %s", ErrEmptyAccumulator, a.reduction)
	}

	reduced := make([]float64, len(a.values))
	for i, vs := range a.values {
		switch a.reduction {
		case Sum:
			reduced[i] = sum(vs)
		case Average:
			reduced[i] = sum(vs) / float64(a.count)
		case MedianHigh:
			reduced[i] = medianHigh(vs)
		case Max:
			reduced[i] = maximum(vs)
		default:
			return nil, fmt.Errorf("unsupported reduction %d", a.reduction)
		}
	}
	return a.grid.profile(reduced), nil
}

func sum(vs []float64) float64 {
	var total float64
	for _, v := range vs {
		total += v
	}
	return total
}

func maximum(vs []float64) float64 {
	m := math.Inf(-1)
	for _, v := range vs {
		if v > m {
			m = v
		}
	}
	return m
}

// medianHigh sorts a copy so the accumulated order is preserved.
func medianHigh(vs []float64) float64 {
	sorted := slices.Clone(vs)
	slices.Sort(sorted)
	return sorted[len(sorted)/2]
}
