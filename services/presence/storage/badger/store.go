// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/venuewatch/services/presence/snapshot"
	"github.com/AleutianAI/venuewatch/services/presence/storage"
)

const (
	dayPrefix  = "day/"
	snapPrefix = "snap/"
)

func dayKey(d civil.Date) []byte {
	return []byte(dayPrefix + d.String())
}

func snapDayPrefix(d civil.Date) []byte {
	return []byte(snapPrefix + d.String() + "/")
}

// snapKey orders snapshots of one day by instant. The sign bit is flipped
// so pre-1970 instants still sort first.
func snapKey(s snapshot.Snapshot) []byte {
	prefix := snapDayPrefix(civil.DateOf(s.Time))
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(s.Time.UnixNano())^(1<<63))
	return key
}

// Store is a storage.Repository over a badger DB.
//
// # Thread Safety
//
// Safe for concurrent use.
type Store struct {
	db    *DB
	owned bool
}

var _ storage.Repository = (*Store)(nil)

// Open opens a database and wraps it. Close closes the database.
func Open(cfg Config) (*Store, error) {
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, owned: true}, nil
}

// NewStore wraps an already open database. Close leaves it open.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database.
func (s *Store) DB() *DB { return s.db }

// Append writes snapshots. A snapshot at an instant already stored
// replaces the earlier one.
func (s *Store) Append(ctx context.Context, snaps ...snapshot.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	days := make(map[civil.Date]struct{})
	for _, snap := range snaps {
		value, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("encode snapshot at %s: %w", snap.Time, err)
		}
		if err := wb.Set(snapKey(snap), value); err != nil {
			return fmt.Errorf("stage snapshot: %w", err)
		}
		days[civil.DateOf(snap.Time)] = struct{}{}
	}
	for d := range days {
		if err := wb.Set(dayKey(d), nil); err != nil {
			return fmt.Errorf("stage date index: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush snapshots: %w", err)
	}
	return nil
}

// Dates lists stored dates in ascending order.
func (s *Store) Dates(ctx context.Context) ([]civil.Date, error) {
	var dates []civil.Date
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(dayPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			raw := string(it.Item().Key()[len(dayPrefix):])
			d, err := civil.ParseDate(raw)
			if err != nil {
				return fmt.Errorf("corrupt date key %q: %w", raw, err)
			}
			dates = append(dates, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dates, nil
}

// LoadDay reads every snapshot filed under date.
func (s *Store) LoadDay(ctx context.Context, date civil.Date) (*snapshot.Log, error) {
	var snaps []snapshot.Snapshot
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = snapDayPrefix(date)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var snap snapshot.Snapshot
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &snap)
			})
			if err != nil {
				return fmt.Errorf("decode snapshot %x: %w", it.Item().Key(), err)
			}
			snaps = append(snaps, snap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("%w: %s", storage.ErrDayNotFound, date)
	}
	return snapshot.NewLog(snaps)
}

// DeleteDay removes a date and its snapshots.
func (s *Store) DeleteDay(ctx context.Context, date civil.Date) error {
	var keys [][]byte
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = snapDayPrefix(date)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("stage delete: %w", err)
		}
	}
	if err := wb.Delete(dayKey(date)); err != nil {
		return fmt.Errorf("stage delete: %w", err)
	}
	return wb.Flush()
}

// Close closes the database if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
