// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"encoding/json"
	"fmt"
	"iter"
	"slices"
	"sort"
	"time"

	"cloud.google.com/go/civil"
)

// Absent marks a sample at which an identity was not ranked.
const Absent = -1

// naiveLayout is the timestamp shape written without a zone offset.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// Snapshot is one observation of the venue ranking.
type Snapshot struct {
	Time    time.Time
	Ranking []Identity
}

type snapshotJSON struct {
	LoggedTime string     `json:"logged_time"`
	Ranking    []Identity `json:"log"`
}

// MarshalJSON encodes the snapshot as a day-file row.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	ranking := s.Ranking
	if ranking == nil {
		ranking = []Identity{}
	}
	return json.Marshal(snapshotJSON{
		LoggedTime: s.Time.Format(time.RFC3339Nano),
		Ranking:    ranking,
	})
}

// UnmarshalJSON decodes a day-file row.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	t, err := ParseLoggedTime(raw.LoggedTime)
	if err != nil {
		return err
	}
	s.Time = t
	s.Ranking = raw.Ranking
	return nil
}

// ParseLoggedTime parses an ISO-8601 timestamp. Values without a zone
// offset are read in the local zone.
func ParseLoggedTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(naiveLayout, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse logged_time %q: %w", value, err)
	}
	return t, nil
}

// Log is one calendar day of snapshots.
//
// # Description
//
// Log keeps the sample times in ascending order, the ranking seen at each
// sample, the set of every identity ranked that day, and a position index
// giving each identity's 0-based rank per sample (Absent when unranked).
//
// # Thread Safety
//
// Immutable after NewLog returns. Safe for concurrent reads.
type Log struct {
	date      civil.Date
	times     []time.Time
	rankings  [][]Identity
	members   IdentitySet
	positions map[string][]int
}

// NewLog builds a Log from a set of snapshots.
//
// # Description
//
// Snapshots are ordered by time. When two snapshots share a timestamp the
// one supplied later replaces the earlier one. Within a ranking an
// identity listed twice keeps the later position.
//
// # Inputs
//
//   - samples: Snapshots of one calendar day, in any order. May be empty.
//
// # Outputs
//
//   - *Log: The indexed day.
//   - error: ErrInvalidRange when the timestamps fall on more than one
//     calendar date.
func NewLog(samples []Snapshot) (*Log, error) {
	byInstant := make(map[int64]int, len(samples))
	ordered := make([]Snapshot, 0, len(samples))
	for _, s := range samples {
		key := s.Time.UnixNano()
		if idx, ok := byInstant[key]; ok {
			ordered[idx] = s
			continue
		}
		byInstant[key] = len(ordered)
		ordered = append(ordered, s)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Time.Before(ordered[j].Time)
	})

	l := &Log{
		times:     make([]time.Time, len(ordered)),
		rankings:  make([][]Identity, len(ordered)),
		members:   make(IdentitySet),
		positions: make(map[string][]int),
	}
	for i, s := range ordered {
		d := civil.DateOf(s.Time)
		if i == 0 {
			l.date = d
		} else if d != l.date {
			return nil, fmt.Errorf("%w: %s and %s", ErrInvalidRange, l.date, d)
		}
		l.times[i] = s.Time
		l.rankings[i] = slices.Clone(s.Ranking)
		for _, p := range s.Ranking {
			l.members.Add(p)
		}
	}

	for id := range l.members {
		row := make([]int, len(ordered))
		for i := range row {
			row[i] = Absent
		}
		l.positions[id] = row
	}
	for i, ranking := range l.rankings {
		for rank, p := range ranking {
			l.positions[p.ID][i] = rank
		}
	}
	return l, nil
}

// Date returns the calendar date every sample falls on. The zero Date is
// returned for an empty log.
func (l *Log) Date() civil.Date {
	return l.date
}

// Len returns the number of samples.
func (l *Log) Len() int {
	return len(l.times)
}

// Times returns the sample times in ascending order.
func (l *Log) Times() []time.Time {
	return slices.Clone(l.times)
}

// RankingAt returns a copy of the ranking observed at sample i.
func (l *Log) RankingAt(i int) []Identity {
	return slices.Clone(l.rankings[i])
}

// Rankings yields (index, ranking) pairs in time order. The yielded slices
// alias internal storage and must not be modified.
func (l *Log) Rankings() iter.Seq2[int, []Identity] {
	return func(yield func(int, []Identity) bool) {
		for i, r := range l.rankings {
			if !yield(i, r) {
				return
			}
		}
	}
}

// Snapshots returns the samples as day-file rows, in time order. Rankings
// are copied.
func (l *Log) Snapshots() []Snapshot {
	out := make([]Snapshot, len(l.times))
	for i, t := range l.times {
		out[i] = Snapshot{Time: t, Ranking: slices.Clone(l.rankings[i])}
	}
	return out
}

// Identities returns every identity ranked at least once in this log.
func (l *Log) Identities() IdentitySet {
	return l.members.Clone()
}

// Contains reports whether the identity with the given ID was ever ranked.
func (l *Log) Contains(id string) bool {
	_, ok := l.positions[id]
	return ok
}

// PositionsOf returns the rank of the identity at each sample.
//
// # Outputs
//
//   - []int: One entry per sample, Absent where the identity was unranked.
//     The slice is a copy.
//   - error: ErrUnknownIdentity when the identity never appears in the log.
func (l *Log) PositionsOf(id string) ([]int, error) {
	row, ok := l.positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q on %s", ErrUnknownIdentity, id, l.date)
	}
	return slices.Clone(row), nil
}
