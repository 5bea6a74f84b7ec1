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
	"sort"
	"time"
)

// OffsetOf returns how far t lies past its own local midnight.
func OffsetOf(t time.Time) time.Duration {
	y, m, d := t.Date()
	return t.Sub(time.Date(y, m, d, 0, 0, 0, 0, t.Location()))
}

// Resample maps a day's series onto the grid.
//
// # Description
//
// Every timestamp is reduced to its offset from its own midnight, which
// puts all samples on one notional day. Each grid point then takes the
// value of the nearest sample; a point exactly halfway between two
// samples takes the earlier one. Grid points before the first or after
// the last projected sample are 0.
//
// The only range check is the 24-hour span. Samples from two calendar
// dates inside that span (23:50 and 00:10 the next day) are accepted and
// folded by time of day. A snapshot.Log always holds a single date, so
// series taken from one never reach that case.
//
// # Inputs
//
//   - grid: Target grid.
//   - xs: Sample times, in any order, spanning at most 24 hours.
//   - ys: Values, index-aligned with xs.
//
// # Outputs
//
//   - []float64: One value per grid point.
//   - error: ErrInvalidRange if max(xs)-min(xs) exceeds 24 hours,
//     ErrLengthMismatch if the slices differ in length.
func Resample(grid Grid, xs []time.Time, ys []float64) ([]float64, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%w: %d times, %d values", ErrLengthMismatch, len(xs), len(ys))
	}
	out := make([]float64, grid.Len())
	if len(xs) == 0 {
		return out, nil
	}

	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x.Before(lo) {
			lo = x
		}
		if x.After(hi) {
			hi = x
		}
	}
	if hi.Sub(lo) > Day {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidRange, lo.Format(time.RFC3339), hi.Format(time.RFC3339))
	}

	type sample struct {
		offset time.Duration
		value  float64
	}
	samples := make([]sample, len(xs))
	for i, x := range xs {
		samples[i] = sample{offset: OffsetOf(x), value: ys[i]}
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].offset < samples[j].offset })

	first, last := samples[0].offset, samples[len(samples)-1].offset
	for i, g := range grid.offsets {
		if g < first || g > last {
			continue
		}
		k := sort.Search(len(samples), func(k int) bool { return samples[k].offset >= g })
		if samples[k].offset == g || k == 0 {
			out[i] = samples[k].value
			continue
		}
		below, above := samples[k-1], samples[k]
		if g-below.offset <= above.offset-g {
			out[i] = below.value
		} else {
			out[i] = above.value
		}
	}
	return out, nil
}
