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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/fsnotify/fsnotify"
)

// ErrWatcherStarted is returned by Start on a watcher that already ran.
var ErrWatcherStarted = errors.New("jsonl: watcher already started")

// ChangeHandler receives the dates whose day files changed during one
// debounce window, ascending.
type ChangeHandler func(ctx context.Context, dates []civil.Date)

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// Debounce is how long the directory must stay quiet before a batch is
	// delivered. Default: 500ms.
	Debounce time.Duration

	// BufferSize is the capacity of the event channel. Default: 256.
	BufferSize int

	// Logger receives watch errors. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultWatcherOptions returns the defaults.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		Debounce:   500 * time.Millisecond,
		BufferSize: 256,
	}
}

// Watcher reports which day files in a store directory changed.
//
// # Description
//
// The recorder appends to today's file every few minutes, and operators
// drop or delete whole files. Watcher listens on the directory (not
// recursively), ignores anything that is not a day file, and batches the
// affected dates with a debounce window so a burst of writes to one file
// produces one callback.
//
// # Thread Safety
//
// Start and Stop may be called from any goroutine. The handler is called
// from a single goroutine, never concurrently with itself.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	handler  ChangeHandler
	debounce time.Duration
	logger   *slog.Logger

	changes  chan civil.Date
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool

	// overflow holds dates that arrived while changes was full.
	overflowMu sync.Mutex
	overflow   map[civil.Date]struct{}
	kick       chan struct{}
}

// NewWatcher creates a watcher for the store's directory.
//
// # Inputs
//
//   - store: Store whose directory is watched.
//   - handler: Called with each debounced batch of dates.
//   - opts: Optional configuration; nil uses defaults.
//
// # Example
//
//	w, err := jsonl.NewWatcher(store, func(ctx context.Context, dates []civil.Date) {
//	    cat.Refresh(ctx, store, dates...)
//	}, nil)
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	if err := w.Start(ctx); err != nil {
//	    return err
//	}
func NewWatcher(store *Store, handler ChangeHandler, opts *WatcherOptions) (*Watcher, error) {
	o := DefaultWatcherOptions()
	if opts != nil {
		if opts.Debounce > 0 {
			o.Debounce = opts.Debounce
		}
		if opts.BufferSize > 0 {
			o.BufferSize = opts.BufferSize
		}
		o.Logger = opts.Logger
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("jsonl: create watcher: %w", err)
	}
	return &Watcher{
		dir:      store.Dir(),
		watcher:  fw,
		handler:  handler,
		debounce: o.Debounce,
		logger:   o.Logger.With("component", "jsonl_watcher", "dir", store.Dir()),
		changes:  make(chan civil.Date, o.BufferSize),
		overflow: make(map[civil.Date]struct{}),
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Start begins watching. The watcher runs until Stop is called or ctx is
// cancelled; a stopped watcher cannot be restarted.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrWatcherStarted
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("jsonl: watch %s: %w", w.dir, err)
	}
	w.started = true

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.processEvents(ctx)
	}()
	go func() {
		defer wg.Done()
		w.debounceLoop(ctx)
	}()
	go func() {
		wg.Wait()
		close(w.stopped)
	}()
	return nil
}

// Stop ends watching and waits for a pending batch to be delivered.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.stopped
	}
}

// processEvents turns fsnotify events on day files into dates.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			date, ok := ParseFileName(filepath.Base(event.Name))
			if !ok {
				continue
			}
			w.enqueue(date)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", "error", err)
		}
	}
}

// enqueue hands a date to the debounce loop. When the channel is full the
// date is parked in the overflow set and merged into the next batch.
func (w *Watcher) enqueue(date civil.Date) {
	select {
	case w.changes <- date:
	default:
		w.overflowMu.Lock()
		w.overflow[date] = struct{}{}
		w.overflowMu.Unlock()
		select {
		case w.kick <- struct{}{}:
		default:
		}
		w.logger.Debug("change buffer full, deferring date", "date", date.String())
	}
}

// drainOverflow moves parked dates into pending.
func (w *Watcher) drainOverflow(pending map[civil.Date]struct{}) {
	w.overflowMu.Lock()
	for d := range w.overflow {
		pending[d] = struct{}{}
	}
	clear(w.overflow)
	w.overflowMu.Unlock()
}

// debounceLoop collects dates and hands them over once the window passes
// without new events.
func (w *Watcher) debounceLoop(ctx context.Context) {
	pending := make(map[civil.Date]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func(ctx context.Context) {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
		w.drainOverflow(pending)
		if len(pending) == 0 || w.handler == nil {
			return
		}
		dates := make([]civil.Date, 0, len(pending))
		for d := range pending {
			dates = append(dates, d)
		}
		clear(pending)
		slices.SortFunc(dates, func(a, b civil.Date) int { return a.Compare(b) })
		w.logger.Debug("day files changed", "dates", len(dates))
		w.handler(ctx, dates)
	}

	arm := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			timerC = timer.C
		} else {
			timer.Reset(w.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			flush(context.WithoutCancel(ctx))
			return
		case d := <-w.changes:
			pending[d] = struct{}{}
			arm()
		case <-w.kick:
			arm()
		case <-timerC:
			timer, timerC = nil, nil
			flush(ctx)
		}
	}
}
