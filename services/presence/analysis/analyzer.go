// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis infers per-identity presence from a day of snapshots.
//
// # Description
//
// The venue ranking reorders for many reasons, so rank alone says little.
// What it does prove is relative movement: if some identity q was ranked
// above p at one sample and below p at the next, p must have become more
// active in between. Such a sample is a confirmed transition for p.
//
// Presence is then built outward from confirmed transitions:
//
//  1. Each confirmed transition opens a stability window of MaxStableGap
//     wall-clock time in which p is assumed present.
//  2. Short false runs between present stretches (at most MaxReentryGap)
//     are treated as measurement gaps and filled.
//  3. Nothing after the sample that closes the last confirmed transition
//     stays present.
//
// The heuristic never confirms an exit and under-detects when the ranking
// reorders for unrelated reasons. It is an approximation by construction.
//
// # Thread Safety
//
// Analyzer holds only immutable configuration and is safe for concurrent
// use.
package analysis

import (
	"time"

	"github.com/AleutianAI/venuewatch/services/presence/snapshot"
)

const (
	// DefaultMaxStableGap is how long an identity is assumed present after
	// a confirmed transition.
	DefaultMaxStableGap = 30 * time.Minute

	// DefaultMaxReentryGap is the longest absence still treated as one
	// continuous visit.
	DefaultMaxReentryGap = time.Hour
)

// Config tunes the presence heuristic.
type Config struct {
	// MaxStableGap is the minimum time an identity stays present once a
	// transition is confirmed. Default: 30m
	MaxStableGap time.Duration

	// MaxReentryGap is the longest gap between two present stretches that
	// is smoothed over. Default: 1h
	MaxReentryGap time.Duration
}

// DefaultConfig returns the reference gap settings.
func DefaultConfig() Config {
	return Config{
		MaxStableGap:  DefaultMaxStableGap,
		MaxReentryGap: DefaultMaxReentryGap,
	}
}

// Analyzer derives transition, presence and headcount series from a Log.
type Analyzer struct {
	cfg Config
}

// New creates an Analyzer. Zero-valued gaps fall back to the defaults.
func New(cfg Config) *Analyzer {
	if cfg.MaxStableGap == 0 {
		cfg.MaxStableGap = DefaultMaxStableGap
	}
	if cfg.MaxReentryGap == 0 {
		cfg.MaxReentryGap = DefaultMaxReentryGap
	}
	return &Analyzer{cfg: cfg}
}

// Config returns the effective configuration.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// Transitions marks the samples at which the identity's presence is
// confirmed.
//
// # Description
//
// For each consecutive pair of samples (i, i+1) let p1 be the identity's
// rank at i and p2 its rank at i+1, with an unranked sample counting as
// one past the last row of that sample. leftOfP1 is everyone ranked above
// p1 at i; rightOfP2 is everyone ranked below p2 at i+1. Sample i is
// marked when the two sets share an identity. The last sample is never
// marked.
//
// # Outputs
//
//   - []bool: One entry per sample.
//   - error: snapshot.ErrUnknownIdentity when the log never ranks the id.
func (a *Analyzer) Transitions(log *snapshot.Log, id string) ([]bool, error) {
	positions, err := log.PositionsOf(id)
	if err != nil {
		return nil, err
	}
	return transitions(log, positions), nil
}

func transitions(log *snapshot.Log, positions []int) []bool {
	out := make([]bool, len(positions))

	var prev []snapshot.Identity
	for i, cur := range log.Rankings() {
		if i == 0 {
			prev = cur
			continue
		}
		p1 := positions[i-1]
		if p1 == snapshot.Absent {
			p1 = len(prev)
		}
		p2 := positions[i]
		if p2 == snapshot.Absent {
			p2 = len(cur)
		}

		above := make(map[string]struct{}, p1)
		for _, q := range prev[:p1] {
			above[q.ID] = struct{}{}
		}
		if p2+1 < len(cur) {
			for _, q := range cur[p2+1:] {
				if _, ok := above[q.ID]; ok {
					out[i-1] = true
					break
				}
			}
		}
		prev = cur
	}
	return out
}

// Presence estimates, per sample, whether the identity was at the venue.
//
// # Description
//
// Runs the window construction described in the package documentation
// over the identity's confirmed transitions. An identity with no confirmed
// transition is never present.
//
// # Outputs
//
//   - []bool: One entry per sample.
//   - error: snapshot.ErrUnknownIdentity when the log never ranks the id.
func (a *Analyzer) Presence(log *snapshot.Log, id string) ([]bool, error) {
	changed, err := a.Transitions(log, id)
	if err != nil {
		return nil, err
	}
	return a.presence(log.Times(), changed), nil
}

func (a *Analyzer) presence(times []time.Time, changed []bool) []bool {
	n := len(changed)
	present := make([]bool, n)

	// last is the sample closing the final confirmed interval; presence
	// past it is not supported by evidence.
	last := -1
	for i := n - 1; i > 0; i-- {
		if changed[i-1] {
			last = i
			break
		}
	}
	if last < 0 {
		return present
	}

	// Two-pointer extension: every confirmed sample l keeps the identity
	// present for MaxStableGap. r never moves backwards.
	l, r := 0, 1
	for r <= n {
		if changed[l] {
			for r < n && times[r-1].Sub(times[l]) <= a.cfg.MaxStableGap {
				present[r-1] = true
				r++
			}
		}
		l++
		if l == r {
			r++
		}
	}

	// Reentry smoothing from the first confirmed transition: a false run
	// [l, r) short enough in wall-clock time is a gap in measurement.
	l = firstTrue(changed)
	r = l + 1
	for r <= n {
		if !present[l] {
			for r < n && !present[r] {
				r++
			}
			if times[r-1].Sub(times[l]) <= a.cfg.MaxReentryGap {
				for i := l; i < r; i++ {
					present[i] = true
				}
			}
			l = r
		} else {
			l++
		}
		if l == r {
			r++
		}
	}

	for i := last + 1; i < n; i++ {
		present[i] = false
	}
	return present
}

func firstTrue(values []bool) int {
	for i, v := range values {
		if v {
			return i
		}
	}
	return -1
}

// PlayersOverTime returns, per sample, the identities believed present.
func (a *Analyzer) PlayersOverTime(log *snapshot.Log) []snapshot.IdentitySet {
	return a.Analyze(log).PlayersOverTime()
}

// Headcounts returns, per sample, how many identities are believed
// present.
func (a *Analyzer) Headcounts(log *snapshot.Log) []int {
	return a.Analyze(log).Headcounts
}
