// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package batch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// PointSetChange is a detected change to a point-table file.
type PointSetChange struct {
	// Path is the absolute path of the changed file.
	Path string

	// Removed is true when the file was deleted or renamed away.
	Removed bool

	// Time is when the change was detected.
	Time time.Time
}

// PointSetHandler is called with debounced, deduplicated changes.
type PointSetHandler func(changes []PointSetChange)

// Watcher watches a drop directory for point-table files and feeds
// debounced change batches to a handler, typically one that loads each
// file and submits it to a Runner.
//
// Description:
//
//	Tracing rigs and export pipelines write point tables incrementally,
//	so raw file events arrive in bursts. Changes are buffered and the
//	handler fires only after the debounce window passes without new
//	events, with one entry per path.
//
// Thread Safety:
//
//	Safe for concurrent use. The handler is called from a single
//	goroutine.
type Watcher struct {
	root       string
	watcher    *fsnotify.Watcher
	handler    PointSetHandler
	debounce   time.Duration
	extensions []string

	changes  chan PointSetChange
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// DebounceWindow is how long to wait for more changes before the
	// handler fires. Default: 250ms.
	DebounceWindow time.Duration

	// Extensions are the file suffixes to report. Default: [".json"].
	Extensions []string

	// BufferSize is the size of the change buffer channel. Default: 256.
	BufferSize int
}

// DefaultWatcherOptions returns the default watcher configuration.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		DebounceWindow: 250 * time.Millisecond,
		Extensions:     []string{".json"},
		BufferSize:     256,
	}
}

// NewWatcher creates a watcher for the given drop directory.
//
// Call Start to begin watching and Stop to shut down.
func NewWatcher(root string, handler PointSetHandler, opts *WatcherOptions) (*Watcher, error) {
	if opts == nil {
		defaults := DefaultWatcherOptions()
		opts = &defaults
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:       root,
		watcher:    fsWatcher,
		handler:    handler,
		debounce:   opts.DebounceWindow,
		extensions: opts.Extensions,
		changes:    make(chan PointSetChange, opts.BufferSize),
		done:       make(chan struct{}),
	}, nil
}

// Start begins watching the drop directory and its subdirectories.
//
// Spawns the event processor and the debouncer; both exit when Stop is
// called or the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	slog.Info("watching for point tables",
		slog.String("dir", w.root),
		slog.Duration("debounce", w.debounce))

	return nil
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether the watcher is active.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// addRecursive registers the directory and all subdirectories.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.watcher.Add(path)
	})
}

// wants reports whether the path carries a tracked extension.
func (w *Watcher) wants(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, tracked := range w.extensions {
		if ext == tracked {
			return true
		}
	}
	return false
}

// processEvents converts fsnotify events to PointSetChange values.
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

			// New subdirectories join the watch set immediately so
			// tables dropped inside them are not missed.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watcher.Add(event.Name); err != nil {
						slog.Warn("failed to watch new directory",
							slog.String("dir", event.Name),
							slog.String("error", err.Error()))
					}
					continue
				}
			}

			if !w.wants(event.Name) {
				continue
			}

			change := PointSetChange{
				Path:    event.Name,
				Removed: event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename),
				Time:    time.Now(),
			}

			select {
			case w.changes <- change:
			default:
				slog.Warn("change buffer full, dropping event",
					slog.String("path", event.Name))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// debounceLoop batches changes and calls the handler after the debounce
// window passes without new events.
func (w *Watcher) debounceLoop(ctx context.Context) {
	var batch []PointSetChange
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 {
			deduped := dedupeChanges(batch)
			if len(deduped) > 0 && w.handler != nil {
				w.handler(deduped)
			}
			batch = batch[:0]
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case change := <-w.changes:
			batch = append(batch, change)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// dedupeChanges keeps the most recent change per path, preserving first
// appearance order.
func dedupeChanges(changes []PointSetChange) []PointSetChange {
	seen := make(map[string]int)
	result := make([]PointSetChange, 0, len(changes))

	for _, change := range changes {
		if idx, ok := seen[change.Path]; ok {
			result[idx] = change
		} else {
			seen[change.Path] = len(result)
			result = append(result, change)
		}
	}
	return result
}
