// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package jsonl

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/venuewatch/services/presence/snapshot"
	"github.com/AleutianAI/venuewatch/services/presence/storage"
)

var (
	alice = snapshot.Identity{Name: "alice", ID: "1111"}
	bob   = snapshot.Identity{Name: "bob", ID: "2222"}
	jan1  = civil.Date{Year: 2022, Month: time.January, Day: 1}
	jan2  = civil.Date{Year: 2022, Month: time.January, Day: 2}
)

func at(d civil.Date, h, m int) time.Time {
	return time.Date(d.Year, d.Month, d.Day, h, m, 0, 0, time.UTC)
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	return s
}

// =============================================================================
// File Naming Tests
// =============================================================================

func TestFileName(t *testing.T) {
	assert.Equal(t, "log_2022-01-01.txt", FileName(jan1))

	d, ok := ParseFileName("log_2022-01-02.txt")
	require.True(t, ok)
	assert.Equal(t, jan2, d)

	for _, bad := range []string{"log_2022-01-02.json", "2022-01-02.txt", "log_yesterday.txt", "log_.txt"} {
		_, ok := ParseFileName(bad)
		assert.False(t, ok, bad)
	}
}

// =============================================================================
// Store Tests
// =============================================================================

func TestStore_AppendAndLoadDay(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.Append(ctx,
		snapshot.Snapshot{Time: at(jan1, 10, 0), Ranking: []snapshot.Identity{alice, bob}},
		snapshot.Snapshot{Time: at(jan2, 9, 0), Ranking: []snapshot.Identity{bob}},
	))
	require.NoError(t, s.Append(ctx,
		snapshot.Snapshot{Time: at(jan1, 10, 8), Ranking: []snapshot.Identity{bob, alice}},
	))

	dates, err := s.Dates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{jan1, jan2}, dates)

	log, err := s.LoadDay(ctx, jan1)
	require.NoError(t, err)
	assert.Equal(t, jan1, log.Date())
	assert.Equal(t, []time.Time{at(jan1, 10, 0), at(jan1, 10, 8)}, log.Times())
	assert.Equal(t, []snapshot.Identity{bob, alice}, log.RankingAt(1))

	other, err := s.LoadDay(ctx, jan2)
	require.NoError(t, err)
	assert.Equal(t, 1, other.Len())
}

func TestStore_LoadDayMissing(t *testing.T) {
	s := openStore(t)
	_, err := s.LoadDay(context.Background(), jan1)
	assert.ErrorIs(t, err, storage.ErrDayNotFound)
}

func TestStore_ReadsRecorderFormat(t *testing.T) {
	s := openStore(t)
	body := `{"logged_time": "2022-01-01T10:00:00.123456", "log": [["alice", "1111"], ["bob", "2222"]]}

{"logged_time": "2022-01-01T10:08:00.5", "log": [["bob", "2222"]]}
`
	require.NoError(t, os.WriteFile(s.Path(jan1), []byte(body), 0640))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.md"), []byte("x"), 0640))

	dates, err := s.Dates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{jan1}, dates)

	log, err := s.LoadDay(context.Background(), jan1)
	require.NoError(t, err)
	assert.Equal(t, 2, log.Len())
	assert.Equal(t, 10, log.Times()[0].Hour())
	assert.True(t, log.Contains("1111"))
}

func TestStore_LoadDayErrors(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, os.WriteFile(s.Path(jan1), []byte(`{"logged_time": "2022-01-01T10:00:00", "log": []}`+"\n{broken\n"), 0640))
	_, err := s.LoadDay(ctx, jan1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	mixed := `{"logged_time": "2022-01-02T23:59:00+00:00", "log": []}` + "\n" +
		`{"logged_time": "2022-01-03T00:01:00+00:00", "log": []}` + "\n"
	require.NoError(t, os.WriteFile(s.Path(jan2), []byte(mixed), 0640))
	_, err = s.LoadDay(ctx, jan2)
	assert.ErrorIs(t, err, snapshot.ErrInvalidRange)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.LoadDay(cancelled, jan1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadSnapshots_PartialLastLine(t *testing.T) {
	full := `{"logged_time": "2022-01-01T10:00:00", "log": [["alice", "1111"]]}` + "\n"

	snaps, err := ReadSnapshots(strings.NewReader(full + `{"logged_time": "2022-01-01T10:2`))
	require.NoError(t, err)
	assert.Len(t, snaps, 1)

	_, err = ReadSnapshots(strings.NewReader(full + `{"logged_time": "2022-01-01T10:2` + "\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = ReadSnapshots(strings.NewReader(`{broken` + "\n" + full))
	assert.ErrorContains(t, err, "line 1")
}

func TestOpen_RequiresDir(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

// =============================================================================
// Codec Tests
// =============================================================================

func TestWriteSnapshots_OneRowPerLine(t *testing.T) {
	var buf bytes.Buffer
	snaps := []snapshot.Snapshot{
		{Time: at(jan1, 1, 0), Ranking: []snapshot.Identity{alice}},
		{Time: at(jan1, 2, 0), Ranking: []snapshot.Identity{{Name: "<b>", ID: "3"}}},
	}
	require.NoError(t, WriteSnapshots(&buf, snaps))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"log":[["alice","1111"]]`)
	assert.Contains(t, lines[1], `"<b>"`, "html is not escaped")

	back, err := ReadSnapshots(&buf)
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.True(t, back[1].Time.Equal(snaps[1].Time))
	assert.Equal(t, snaps[1].Ranking, back[1].Ranking)
}

func TestCopy_IntoAnotherStore(t *testing.T) {
	ctx := context.Background()
	src := openStore(t)
	dst := openStore(t)
	require.NoError(t, src.Append(ctx,
		snapshot.Snapshot{Time: at(jan1, 10, 0), Ranking: []snapshot.Identity{alice}},
		snapshot.Snapshot{Time: at(jan2, 11, 0), Ranking: []snapshot.Identity{bob}},
	))

	n, err := storage.Copy(ctx, dst, src)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	dates, err := dst.Dates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{jan1, jan2}, dates)
}
