// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package jsonl stores day logs as JSON-lines files, one file per date.
//
// Files are named log_YYYY-MM-DD.txt. Each line is one snapshot:
//
//	{"logged_time": "2022-01-01T10:00:00", "log": [["alice", "1111"], ["bob", "2222"]]}
//
// This is the format the recorder appends to, so the directory can be
// read while the recorder is still writing today's file.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"cloud.google.com/go/civil"

	"github.com/AleutianAI/venuewatch/services/presence/snapshot"
	"github.com/AleutianAI/venuewatch/services/presence/storage"
)

const (
	filePrefix = "log_"
	fileSuffix = ".txt"

	// maxLineBytes bounds one snapshot row.
	maxLineBytes = 4 << 20
)

// FileName returns the day-file name for a date.
func FileName(date civil.Date) string {
	return filePrefix + date.String() + fileSuffix
}

// ParseFileName extracts the date from a day-file name.
func ParseFileName(name string) (civil.Date, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return civil.Date{}, false
	}
	d, err := civil.ParseDate(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	if err != nil {
		return civil.Date{}, false
	}
	return d, true
}

// Store is a directory of day files.
//
// # Thread Safety
//
// Safe for concurrent use within one process. Appends are serialised.
type Store struct {
	dir string
	mu  sync.Mutex
}

var _ storage.Repository = (*Store)(nil)

// Open uses dir as a day-file directory, creating it if needed.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("jsonl: directory is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("jsonl: create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory the store reads.
func (s *Store) Dir() string { return s.dir }

// Path returns the file path for a date.
func (s *Store) Path(date civil.Date) string {
	return filepath.Join(s.dir, FileName(date))
}

// Dates lists the dates of every day file, ascending. Files that do not
// follow the naming scheme are ignored.
func (s *Store) Dates(ctx context.Context) ([]civil.Date, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("jsonl: list %s: %w", s.dir, err)
	}
	var dates []civil.Date
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if d, ok := ParseFileName(e.Name()); ok {
			dates = append(dates, d)
		}
	}
	slices.SortFunc(dates, func(a, b civil.Date) int { return a.Compare(b) })
	return dates, nil
}

// LoadDay reads and validates one day file.
//
// # Outputs
//
//   - *snapshot.Log: The day's log.
//   - error: storage.ErrDayNotFound when the file is missing; a decode
//     error naming the line; snapshot.ErrInvalidRange when the file holds
//     rows from more than one date.
func (s *Store) LoadDay(ctx context.Context, date civil.Date) (*snapshot.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path(date))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", storage.ErrDayNotFound, date)
	}
	if err != nil {
		return nil, fmt.Errorf("jsonl: open %s: %w", date, err)
	}
	defer f.Close()

	snaps, err := ReadSnapshots(f)
	if err != nil {
		return nil, fmt.Errorf("jsonl: %s: %w", FileName(date), err)
	}
	log, err := snapshot.NewLog(snaps)
	if err != nil {
		return nil, fmt.Errorf("jsonl: %s: %w", FileName(date), err)
	}
	return log, nil
}

// Append writes snapshots to the files of their own dates.
func (s *Store) Append(ctx context.Context, snaps ...snapshot.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	byDate := make(map[civil.Date][]snapshot.Snapshot)
	var order []civil.Date
	for _, snap := range snaps {
		d := civil.DateOf(snap.Time)
		if _, seen := byDate[d]; !seen {
			order = append(order, d)
		}
		byDate[d] = append(byDate[d], snap)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range order {
		if err := s.appendFile(d, byDate[d]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) appendFile(date civil.Date, snaps []snapshot.Snapshot) error {
	f, err := os.OpenFile(s.Path(date), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("jsonl: open %s for append: %w", date, err)
	}
	if err := WriteSnapshots(f, snaps); err != nil {
		f.Close()
		return fmt.Errorf("jsonl: write %s: %w", date, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("jsonl: close %s: %w", date, err)
	}
	return nil
}

// Close is a no-op; the store keeps no files open between calls.
func (s *Store) Close() error { return nil }

// ReadSnapshots decodes one snapshot per non-blank line.
//
// A final line with no trailing newline that does not decode is a record
// the recorder is still writing; it is left out instead of failing the
// whole day. A malformed newline-terminated line is an error.
func ReadSnapshots(r io.Reader) ([]snapshot.Snapshot, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	partial := false
	scanner.Split(func(data []byte, atEOF bool) (int, []byte, error) {
		advance, token, err := bufio.ScanLines(data, atEOF)
		if atEOF && token != nil && advance == len(data) && len(data) > 0 && data[len(data)-1] != '\n' {
			partial = true
		}
		return advance, token, err
	})

	var snaps []snapshot.Snapshot
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var snap snapshot.Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			if partial {
				break
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		snaps = append(snaps, snap)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", line+1, err)
	}
	return snaps, nil
}

// WriteSnapshots encodes one snapshot per line.
func WriteSnapshots(w io.Writer, snaps []snapshot.Snapshot) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, snap := range snaps {
		if err := enc.Encode(snap); err != nil {
			return err
		}
	}
	return bw.Flush()
}
