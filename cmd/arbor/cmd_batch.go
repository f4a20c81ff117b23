// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/arbor/pkg/ux"
	"github.com/AleutianAI/arbor/services/morpho/batch"
	"github.com/AleutianAI/arbor/services/morpho/cache"
	storage "github.com/AleutianAI/arbor/services/morpho/storage/badger"
)

var errStoreDisabled = errors.New("storage is disabled in the configuration")

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

// runBatch analyzes every point table under a drop directory, once or
// continuously with --watch.
func runBatch(cmd *cobra.Command, args []string) {
	dir := args[0]

	// Result store (only when persisting)
	var db *storage.DB
	var store *storage.ResultStore
	if batchStore {
		if !cfg.Storage.Enabled {
			OutputError(batchJSON, "Cannot persist results", errStoreDisabled)
			os.Exit(CLIExitError)
		}
		var err error
		db, err = storage.Open(cfg.Storage.ToBadger())
		if err != nil {
			OutputError(batchJSON, "Failed to open result store", err)
			os.Exit(CLIExitError)
		}
		store, err = storage.NewResultStore(db)
		if err != nil {
			db.Close()
			OutputError(batchJSON, "Failed to open result store", err)
			os.Exit(CLIExitError)
		}
	}

	// os.Exit skips defers, so the store is closed explicitly on every
	// exit path.
	closeDB := func() {
		if db == nil {
			return
		}
		if err := db.Close(); err != nil {
			ux.Warning(fmt.Sprintf("Result store close failed: %v", err))
		}
	}

	resultCache := cache.NewResultCache(cfg.Cache.Options()...)

	if batchWatch {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runBatchOnce(ctx, dir, store, resultCache)

		watcher, err := batch.NewWatcher(dir, func(changes []batch.PointSetChange) {
			if !batchJSON && !quietMode {
				ux.Info(fmt.Sprintf("Detected %d change(s), re-running batch", len(changes)))
			}
			runBatchOnce(ctx, dir, store, resultCache)
		}, nil)
		if err != nil {
			closeDB()
			OutputError(batchJSON, "Failed to create watcher", err)
			os.Exit(CLIExitError)
		}
		if err := watcher.Start(ctx); err != nil {
			closeDB()
			OutputError(batchJSON, "Failed to start watcher", err)
			os.Exit(CLIExitError)
		}

		<-ctx.Done()
		if !batchJSON && !quietMode {
			ux.Info("Stopping watcher")
		}
		watcher.Stop()
		closeDB()
		os.Exit(CLIExitSuccess)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	code := runBatchOnce(ctx, dir, store, resultCache)
	closeDB()
	os.Exit(code)
}

// runBatchOnce loads the directory, runs the batch, and reports.
// Returning the exit code instead of exiting lets watch mode keep going
// after a bad run.
func runBatchOnce(ctx context.Context, dir string, store *storage.ResultStore, resultCache *cache.ResultCache) int {
	outCfg := OutputConfig{JSON: batchJSON, Quiet: quietMode}
	start := time.Now()

	tasks, err := loadPointSetDir(dir)
	if err != nil {
		return OutputResult(outCfg, "batch", start, nil, false, err)
	}

	opts := cfg.Batch.Options()
	if batchWorkers > 0 {
		opts = append(opts, batch.WithWorkers(batchWorkers))
	}
	opts = append(opts, batch.WithCache(resultCache))

	report, err := batch.NewRunner(opts...).Run(ctx, tasks)
	if err != nil {
		return OutputResult(outCfg, "batch", start, nil, false, err)
	}

	data := BatchData{Directory: dir, Report: report}

	// Persist successful results
	if store != nil {
		storedIDs := make([]string, 0, len(report.Results))
		for i, res := range report.Results {
			if res.Diameter == nil {
				continue
			}
			rec := &storage.ResultRecord{
				ID:             uuid.NewString(),
				Name:           res.Name,
				Fingerprint:    tasks[i].Graph.Fingerprint(),
				Length:         res.Diameter.Length,
				Path:           res.Diameter.Path,
				NodeCount:      tasks[i].Graph.NodeCount(),
				TipCount:       len(tasks[i].Graph.Tips()),
				DurationMs:     res.DurationMs,
				CreatedAtMilli: time.Now().UnixMilli(),
			}
			if err := store.Put(ctx, rec); err != nil {
				return OutputResult(outCfg, "batch", start, data, false,
					fmt.Errorf("store task %q: %w", res.Name, err))
			}
			storedIDs = append(storedIDs, rec.ID)
		}
		data.StoredIDs = storedIDs
	}

	// Styled output
	if !batchJSON && !quietMode {
		ux.Title("Batch Analysis")
		for _, res := range report.Results {
			if res.Diameter != nil {
				ux.KeyValue(res.Name, formatLength(res.Diameter.Length))
			} else {
				ux.Error(fmt.Sprintf("%s: %s", res.Name, res.Error))
			}
		}
		if len(data.StoredIDs) > 0 {
			ux.Info(fmt.Sprintf("Stored %d result(s)", len(data.StoredIDs)))
		}
		ux.Summary(report.Summary.Succeeded, report.Summary.Failed, report.Summary.TaskCount)
	}

	return OutputResult(outCfg, "batch", start, data, report.Summary.Failed > 0, nil)
}
