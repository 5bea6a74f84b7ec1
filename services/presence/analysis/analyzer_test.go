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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/venuewatch/services/presence/snapshot"
)

var (
	idA = snapshot.Identity{Name: "A", ID: "a"}
	idB = snapshot.Identity{Name: "B", ID: "b"}
	idC = snapshot.Identity{Name: "C", ID: "c"}
	idX = snapshot.Identity{Name: "X", ID: "x"}
	idQ = snapshot.Identity{Name: "Q", ID: "q"}
)

func clock(h, m int) time.Time {
	return time.Date(2022, 1, 1, h, m, 0, 0, time.UTC)
}

func buildLog(t *testing.T, samples ...snapshot.Snapshot) *snapshot.Log {
	t.Helper()
	l, err := snapshot.NewLog(samples)
	require.NoError(t, err)
	return l
}

func rank(ids ...snapshot.Identity) []snapshot.Identity {
	return ids
}

// everyTenMinutes builds a log with one sample every ten minutes from 10:00.
func everyTenMinutes(t *testing.T, rankings ...[]snapshot.Identity) *snapshot.Log {
	t.Helper()
	samples := make([]snapshot.Snapshot, len(rankings))
	for i, r := range rankings {
		samples[i] = snapshot.Snapshot{Time: clock(10, 0).Add(time.Duration(i) * 10 * time.Minute), Ranking: r}
	}
	return buildLog(t, samples...)
}

// windowLog confirms X at sample 0 and sample 6 of nine samples.
func windowLog(t *testing.T) *snapshot.Log {
	t.Helper()
	return everyTenMinutes(t,
		rank(idQ, idX), // 10:00, Q passes below X next
		rank(idX, idQ),
		rank(idX, idQ),
		rank(idX, idQ),
		rank(idX, idQ),
		rank(idX, idQ),
		rank(idQ, idX), // 11:00, Q passes below X next
		rank(idX, idQ),
		rank(idX, idQ),
	)
}

// =============================================================================
// Worked Scenario
// =============================================================================

// TestAnalyzer_ThreeSampleDerivation works through 10:00 [A,B,C],
// 10:08 [B,A,C], 10:16 [B,C,A].
//
// Pair 10:00->10:08: B rises from rank 1 to 0; above B before = {A},
// below B after = {A,C}; they share A, so B is confirmed at sample 0.
// A has nobody above it at 10:00 and C has nobody below it at 10:08.
//
// Pair 10:08->10:16: C rises from 2 to 1; above C before = {B,A}, below C
// after = {A}; C is confirmed at sample 1. A has nobody below it at 10:16
// and B has nobody above it at 10:08.
func TestAnalyzer_ThreeSampleDerivation(t *testing.T) {
	l := buildLog(t,
		snapshot.Snapshot{Time: clock(10, 0), Ranking: rank(idA, idB, idC)},
		snapshot.Snapshot{Time: clock(10, 8), Ranking: rank(idB, idA, idC)},
		snapshot.Snapshot{Time: clock(10, 16), Ranking: rank(idB, idC, idA)},
	)
	a := New(DefaultConfig())

	positions, err := l.PositionsOf(idA.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, positions)

	transitionsWant := map[string][]bool{
		idA.ID: {false, false, false},
		idB.ID: {true, false, false},
		idC.ID: {false, true, false},
	}
	for id, want := range transitionsWant {
		got, err := a.Transitions(l, id)
		require.NoError(t, err)
		assert.Equal(t, want, got, "transitions for %s", id)
	}

	// B closes its only confirmed interval at sample 1, so sample 2 is
	// trimmed. C closes at sample 2, the last sample.
	presenceWant := map[string][]bool{
		idA.ID: {false, false, false},
		idB.ID: {true, true, false},
		idC.ID: {false, true, true},
	}
	for id, want := range presenceWant {
		got, err := a.Presence(l, id)
		require.NoError(t, err)
		assert.Equal(t, want, got, "presence for %s", id)
	}

	assert.Equal(t, []int{1, 2, 1}, a.Headcounts(l))

	players := a.PlayersOverTime(l)
	require.Len(t, players, 3)
	assert.Equal(t, []snapshot.Identity{idB}, players[0].Sorted())
	assert.Equal(t, []snapshot.Identity{idB, idC}, players[1].Sorted())
	assert.Equal(t, []snapshot.Identity{idC}, players[2].Sorted())
}

// =============================================================================
// Transition Detection
// =============================================================================

func TestTransitions_AbsentCountsAsBelowLastRow(t *testing.T) {
	a := New(DefaultConfig())

	tests := []struct {
		name string
		log  *snapshot.Log
		want []bool
	}{
		{
			name: "appears above someone",
			log:  everyTenMinutes(t, rank(idQ), rank(idX, idQ)),
			want: []bool{true, false},
		},
		{
			name: "drops out of the ranking",
			log:  everyTenMinutes(t, rank(idQ, idX), rank(idQ, idC)),
			want: []bool{false, false},
		},
		{
			name: "top of both samples",
			log:  everyTenMinutes(t, rank(idX, idQ), rank(idX, idQ)),
			want: []bool{false, false},
		},
		{
			name: "passes someone who then leaves",
			log:  everyTenMinutes(t, rank(idQ, idX), rank(idX)),
			want: []bool{false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.Transitions(tt.log, idX.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransitions_UnknownIdentity(t *testing.T) {
	a := New(DefaultConfig())
	l := everyTenMinutes(t, rank(idA))

	_, err := a.Transitions(l, idX.ID)
	assert.ErrorIs(t, err, snapshot.ErrUnknownIdentity)

	_, err = a.Presence(l, idX.ID)
	assert.ErrorIs(t, err, snapshot.ErrUnknownIdentity)
}

// =============================================================================
// Presence Windows
// =============================================================================

func TestPresence_NoEvidenceMeansAbsent(t *testing.T) {
	a := New(DefaultConfig())
	l := everyTenMinutes(t, rank(idX, idQ), rank(idX, idQ), rank(idX, idQ, idA))

	got, err := a.Presence(l, idX.ID)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false}, got)
}

func TestPresence_SingleSample(t *testing.T) {
	a := New(DefaultConfig())
	l := everyTenMinutes(t, rank(idX, idQ))

	got, err := a.Presence(l, idX.ID)
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, got)
	assert.Equal(t, []int{0}, a.Headcounts(l))
}

func TestPresence_EmptyLog(t *testing.T) {
	a := New(DefaultConfig())
	l := buildLog(t)

	assert.Empty(t, a.Headcounts(l))
	assert.Empty(t, a.PlayersOverTime(l))
}

func TestPresence_StabilityWindowByWallClock(t *testing.T) {
	// A tight reentry gap keeps smoothing from hiding the window edge.
	a := New(Config{MaxStableGap: 30 * time.Minute, MaxReentryGap: 5 * time.Minute})

	got, err := a.Presence(windowLog(t), idX.ID)
	require.NoError(t, err)

	// 10:00-10:30 are inside the first window, 10:40 and 10:50 are not;
	// the 11:00 transition opens a new window; 11:20 is after the sample
	// closing the last transition and is trimmed.
	assert.Equal(t, []bool{true, true, true, true, false, false, true, true, false}, got)
}

func TestPresence_ReentrySmoothingFillsShortGaps(t *testing.T) {
	a := New(DefaultConfig())

	got, err := a.Presence(windowLog(t), idX.ID)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true, true, true, true, true, true, false}, got)
}

func TestPresence_LongGapIsARealExit(t *testing.T) {
	a := New(Config{MaxStableGap: 10 * time.Minute, MaxReentryGap: 30 * time.Minute})

	rankings := make([][]snapshot.Identity, 0, 12)
	rankings = append(rankings, rank(idQ, idX))
	for i := 0; i < 8; i++ {
		rankings = append(rankings, rank(idX, idQ))
	}
	rankings = append(rankings, rank(idQ, idX), rank(idX, idQ), rank(idX, idQ))
	l := everyTenMinutes(t, rankings...)

	got, err := a.Presence(l, idX.ID)
	require.NoError(t, err)

	// Window 10:00-10:10, then a 60 minute false run (10:20-11:20) that
	// exceeds the reentry gap, then the 11:30 transition.
	want := []bool{true, true, false, false, false, false, false, false, false, true, true, false}
	assert.Equal(t, want, got)
}

func TestPresence_NothingAfterLastConfirmedInterval(t *testing.T) {
	a := New(Config{MaxStableGap: 2 * time.Hour, MaxReentryGap: 2 * time.Hour})
	logs := []*snapshot.Log{
		windowLog(t),
		everyTenMinutes(t, rank(idQ, idX), rank(idX, idQ), rank(idX, idQ), rank(idX, idQ)),
		everyTenMinutes(t, rank(idA, idB, idC, idX), rank(idC, idB, idA, idX), rank(idX, idA, idC, idB), rank(idB, idX)),
	}

	for _, l := range logs {
		rep := a.Analyze(l)
		for id, changed := range rep.Transitions {
			last := -1
			for i := range changed {
				if changed[i] {
					last = i + 1
				}
			}
			for i, ok := range rep.Presence[id] {
				if i > last {
					assert.False(t, ok, "identity %s present at %d after last interval %d", id, i, last)
				}
			}
		}
	}
}

// TestPresence_SingleSampleGapAlwaysFilled pins a quirk of reentry
// smoothing: a false run of one sample spans zero wall-clock time, so it
// is filled whatever MaxReentryGap is. The final sample of a day is never
// marked by the stability window and only becomes present this way.
func TestPresence_SingleSampleGapAlwaysFilled(t *testing.T) {
	a := New(Config{MaxStableGap: 30 * time.Minute, MaxReentryGap: time.Nanosecond})

	l := buildLog(t,
		snapshot.Snapshot{Time: clock(10, 0), Ranking: rank(idQ, idX)},
		snapshot.Snapshot{Time: clock(10, 5), Ranking: rank(idX, idQ)},
	)
	got, err := a.Presence(l, idX.ID)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true}, got)
}

func TestNew_DefaultsZeroGaps(t *testing.T) {
	a := New(Config{})
	assert.Equal(t, DefaultConfig(), a.Config())
}

// =============================================================================
// Day Report
// =============================================================================

func TestAnalyze_ReportMatchesPerIdentityCalls(t *testing.T) {
	a := New(DefaultConfig())
	l := windowLog(t)
	rep := a.Analyze(l)

	assert.Equal(t, l.Date(), rep.Date)
	for id := range l.Identities() {
		presence, err := a.Presence(l, id)
		require.NoError(t, err)
		assert.Equal(t, presence, rep.Presence[id])
	}
	assert.True(t, rep.Confirmed(idX.ID))
	assert.False(t, rep.Confirmed("missing"))
	assert.Equal(t, make([]float64, l.Len()), rep.PresenceValues("missing"))

	values := rep.HeadcountValues()
	for i, c := range rep.Headcounts {
		assert.Equal(t, float64(c), values[i])
	}
}
