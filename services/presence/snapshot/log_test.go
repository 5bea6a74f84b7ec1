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
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = Identity{Name: "alice", ID: "1111-1111"}
	bob   = Identity{Name: "bob", ID: "2222-2222"}
	carol = Identity{Name: "carol", ID: "3333-3333"}
)

func at(h, m int) time.Time {
	return time.Date(2022, 1, 1, h, m, 0, 0, time.UTC)
}

// =============================================================================
// Identity Tests
// =============================================================================

func TestIdentity_EqualityIgnoresName(t *testing.T) {
	renamed := Identity{Name: "alice-2", ID: alice.ID}

	assert.True(t, alice.Equal(renamed))
	assert.Equal(t, alice.Key(), renamed.Key())
	assert.False(t, alice.Equal(bob))

	set := make(IdentitySet)
	set.Add(alice)
	set.Add(renamed)
	assert.Len(t, set, 1)
	assert.True(t, set.Contains(renamed))
	assert.Equal(t, "alice", set[alice.ID].Name, "first observed name is kept")
}

func TestIdentity_JSONForms(t *testing.T) {
	var fromPair Identity
	require.NoError(t, json.Unmarshal([]byte(`["alice","1111-1111"]`), &fromPair))
	assert.Equal(t, alice, fromPair)

	var fromObject Identity
	require.NoError(t, json.Unmarshal([]byte(`{"name":"bob","id":"2222-2222"}`), &fromObject))
	assert.Equal(t, bob, fromObject)

	var bad Identity
	assert.Error(t, json.Unmarshal([]byte(`["only-one"]`), &bad))

	out, err := json.Marshal(alice)
	require.NoError(t, err)
	assert.JSONEq(t, `["alice","1111-1111"]`, string(out))
}

func TestIdentitySet_Sorted(t *testing.T) {
	set := IdentitySet{}
	set.Add(carol)
	set.Add(alice)
	set.Add(bob)
	assert.Equal(t, []Identity{alice, bob, carol}, set.Sorted())
}

// =============================================================================
// Log Construction Tests
// =============================================================================

func TestNewLog_RejectsMultipleDays(t *testing.T) {
	tests := []struct {
		name  string
		times []time.Time
	}{
		{"midnight to midnight", []time.Time{
			time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC),
		}},
		{"noon to next midnight", []time.Time{
			time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC),
			time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := make([]Snapshot, len(tt.times))
			for i, ts := range tt.times {
				samples[i] = Snapshot{Time: ts}
			}
			_, err := NewLog(samples)
			assert.True(t, errors.Is(err, ErrInvalidRange))
		})
	}
}

func TestNewLog_AcceptsWholeDay(t *testing.T) {
	l, err := NewLog([]Snapshot{
		{Time: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Time: time.Date(2022, 1, 1, 23, 59, 59, 0, time.UTC)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, civil.Date{Year: 2022, Month: time.January, Day: 1}, l.Date())
}

func TestNewLog_Empty(t *testing.T) {
	l, err := NewLog(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Identities())
	assert.Empty(t, l.Times())
}

func TestNewLog_SortsAndDeduplicates(t *testing.T) {
	l, err := NewLog([]Snapshot{
		{Time: at(10, 16), Ranking: []Identity{carol}},
		{Time: at(10, 0), Ranking: []Identity{alice}},
		{Time: at(10, 8), Ranking: []Identity{bob}},
		{Time: at(10, 0), Ranking: []Identity{bob, alice}},
	})
	require.NoError(t, err)

	assert.Equal(t, []time.Time{at(10, 0), at(10, 8), at(10, 16)}, l.Times())
	assert.Equal(t, []Identity{bob, alice}, l.RankingAt(0), "later duplicate replaces earlier")
}

// =============================================================================
// Position Index Tests
// =============================================================================

func newABCLog(t *testing.T) *Log {
	t.Helper()
	l, err := NewLog([]Snapshot{
		{Time: at(10, 0), Ranking: []Identity{alice, bob, carol}},
		{Time: at(10, 8), Ranking: []Identity{bob, alice, carol}},
		{Time: at(10, 16), Ranking: []Identity{bob, carol, alice}},
		{Time: at(10, 24), Ranking: []Identity{carol}},
	})
	require.NoError(t, err)
	return l
}

func TestLog_PositionsOf(t *testing.T) {
	l := newABCLog(t)

	got, err := l.PositionsOf(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, Absent}, got)

	got, err = l.PositionsOf(carol.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1, 0}, got)
}

func TestLog_PositionsOfUnknownIdentity(t *testing.T) {
	l := newABCLog(t)

	_, err := l.PositionsOf("9999-9999")
	assert.ErrorIs(t, err, ErrUnknownIdentity)
	assert.False(t, l.Contains("9999-9999"))
	assert.True(t, l.Contains(bob.ID))
}

func TestLog_AccessorsReturnCopies(t *testing.T) {
	l := newABCLog(t)

	positions, err := l.PositionsOf(alice.ID)
	require.NoError(t, err)
	positions[0] = 42

	times := l.Times()
	times[0] = time.Time{}

	ranking := l.RankingAt(0)
	ranking[0] = carol

	members := l.Identities()
	delete(members, alice.ID)

	again, _ := l.PositionsOf(alice.ID)
	assert.Equal(t, 0, again[0])
	assert.Equal(t, at(10, 0), l.Times()[0])
	assert.Equal(t, alice, l.RankingAt(0)[0])
	assert.Len(t, l.Identities(), 3)
}

func TestLog_RankingsIteratesInOrder(t *testing.T) {
	l := newABCLog(t)

	var firsts []Identity
	for i, r := range l.Rankings() {
		assert.Equal(t, len(firsts), i)
		firsts = append(firsts, r[0])
	}
	assert.Equal(t, []Identity{alice, bob, bob, carol}, firsts)
}

func TestLog_SnapshotsRebuildsTheLog(t *testing.T) {
	l := newABCLog(t)

	snaps := l.Snapshots()
	require.Len(t, snaps, l.Len())
	snaps[0].Ranking[0] = carol
	assert.Equal(t, alice, l.RankingAt(0)[0])

	rebuilt, err := NewLog(l.Snapshots())
	require.NoError(t, err)
	assert.Equal(t, l.Times(), rebuilt.Times())
	for i := range l.Len() {
		assert.Equal(t, l.RankingAt(i), rebuilt.RankingAt(i))
	}
}

// =============================================================================
// Snapshot JSON Tests
// =============================================================================

func TestSnapshot_DecodesNaiveTimestamp(t *testing.T) {
	row := `{"logged_time": "2022-01-01T10:08:00.123456", "log": [["alice", "1111-1111"], ["bob", "2222-2222"]]}`

	var s Snapshot
	require.NoError(t, json.Unmarshal([]byte(row), &s))
	assert.Equal(t, 10, s.Time.Hour())
	assert.Equal(t, 8, s.Time.Minute())
	assert.Equal(t, []Identity{alice, bob}, s.Ranking)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	in := Snapshot{Time: at(9, 30), Ranking: []Identity{carol, alice}}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Snapshot
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, in.Time.Equal(out.Time))
	assert.Equal(t, in.Ranking, out.Ranking)
}

func TestParseLoggedTime_Invalid(t *testing.T) {
	_, err := ParseLoggedTime("yesterday")
	assert.Error(t, err)
}
