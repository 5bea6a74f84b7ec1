// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"maps"
	"slices"
	"time"

	"cloud.google.com/go/civil"

	"github.com/AleutianAI/venuewatch/services/presence/snapshot"
)

// DayReport is the full analysis of one Log.
//
// Every slice is index-aligned with Times. The report owns its data; no
// field aliases the Log it was built from.
type DayReport struct {
	Date  civil.Date
	Times []time.Time

	// Members maps identity ID to the identity as first seen that day.
	Members snapshot.IdentitySet

	// Transitions maps identity ID to its confirmed-transition series.
	Transitions map[string][]bool

	// Presence maps identity ID to its presence series.
	Presence map[string][]bool

	// Headcounts is the number of identities present at each sample.
	Headcounts []int
}

// Analyze computes transitions, presence and headcounts for every identity
// in the log in one pass.
func (a *Analyzer) Analyze(log *snapshot.Log) *DayReport {
	times := log.Times()
	members := log.Identities()

	rep := &DayReport{
		Date:        log.Date(),
		Times:       times,
		Members:     members,
		Transitions: make(map[string][]bool, len(members)),
		Presence:    make(map[string][]bool, len(members)),
		Headcounts:  make([]int, len(times)),
	}
	for id := range members {
		// Members come from the log itself, so the lookup cannot miss.
		positions, _ := log.PositionsOf(id)
		changed := transitions(log, positions)
		present := a.presence(times, changed)

		rep.Transitions[id] = changed
		rep.Presence[id] = present
		for i, ok := range present {
			if ok {
				rep.Headcounts[i]++
			}
		}
	}
	return rep
}

// Clone returns a deep copy of the report.
func (r *DayReport) Clone() *DayReport {
	out := &DayReport{
		Date:        r.Date,
		Times:       slices.Clone(r.Times),
		Members:     maps.Clone(r.Members),
		Transitions: make(map[string][]bool, len(r.Transitions)),
		Presence:    make(map[string][]bool, len(r.Presence)),
		Headcounts:  slices.Clone(r.Headcounts),
	}
	for id, v := range r.Transitions {
		out.Transitions[id] = slices.Clone(v)
	}
	for id, v := range r.Presence {
		out.Presence[id] = slices.Clone(v)
	}
	return out
}

// PlayersOverTime returns, per sample, the identities present there.
func (r *DayReport) PlayersOverTime() []snapshot.IdentitySet {
	out := make([]snapshot.IdentitySet, len(r.Times))
	for i := range out {
		out[i] = make(snapshot.IdentitySet)
	}
	for id, present := range r.Presence {
		for i, ok := range present {
			if ok {
				out[i].Add(r.Members[id])
			}
		}
	}
	return out
}

// Confirmed reports whether the identity had at least one confirmed
// transition that day.
func (r *DayReport) Confirmed(id string) bool {
	for _, v := range r.Transitions[id] {
		if v {
			return true
		}
	}
	return false
}

// PresenceValues returns the identity's presence as 0/1 values, or all
// zeros when the identity was never ranked that day.
func (r *DayReport) PresenceValues(id string) []float64 {
	out := make([]float64, len(r.Times))
	for i, ok := range r.Presence[id] {
		if ok {
			out[i] = 1
		}
	}
	return out
}

// HeadcountValues returns the headcount series as floats for resampling.
func (r *DayReport) HeadcountValues() []float64 {
	out := make([]float64, len(r.Headcounts))
	for i, c := range r.Headcounts {
		out[i] = float64(c)
	}
	return out
}
