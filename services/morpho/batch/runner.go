// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package batch runs diameter analysis across many independent graphs.
//
// Description:
//
//	The unit of parallelism is one graph per task. Analyses never share
//	state, so tasks need no coordination beyond a worker limit; a failed
//	task records its error in the per-task result and the run continues.
//	Aggregation happens after the last task finishes.
//
// Thread Safety:
//
//	A Runner is safe for concurrent use. Each Run call owns its result
//	slice and workers write to disjoint indexes.
package batch

import (
	"context"
	"runtime"
	"time"

	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/arbor/services/morpho/analysis"
	"github.com/AleutianAI/arbor/services/morpho/cache"
	"github.com/AleutianAI/arbor/services/morpho/graph"
)

// defaultMaxWorkers caps parallelism regardless of CPU count. Diameter
// traversal is memory-bound and stops scaling well past this.
const defaultMaxWorkers = 8

// Task is a single graph to analyze.
type Task struct {
	// Name identifies the task in results, typically a file path or
	// specimen label.
	Name string

	// Graph is the frozen graph to analyze.
	Graph *graph.Graph
}

// Result is the per-task outcome. Exactly one of Diameter and Error is
// set.
type Result struct {
	Name       string               `json:"name"`
	Index      int                  `json:"index"`
	Diameter   *analysis.PathResult `json:"diameter,omitempty"`
	Error      string               `json:"error,omitempty"`
	DurationMs int64                `json:"duration_ms"`

	// Err carries the typed error for programmatic inspection.
	Err error `json:"-"`
}

// Report is the outcome of a batch run.
type Report struct {
	Results    []Result `json:"results"`
	Summary    Summary  `json:"summary"`
	DurationMs int64    `json:"duration_ms"`
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// Workers is the maximum number of concurrent analyses.
	Workers int

	// TaskTimeout bounds each individual analysis. Zero means no
	// per-task limit.
	TaskTimeout time.Duration

	// Cache, when non-nil, serves repeated graphs by fingerprint.
	Cache *cache.ResultCache
}

// DefaultRunnerOptions returns the default runner configuration.
func DefaultRunnerOptions() RunnerOptions {
	workers := runtime.NumCPU()
	if workers > defaultMaxWorkers {
		workers = defaultMaxWorkers
	}
	return RunnerOptions{Workers: workers}
}

// RunnerOption customizes runner configuration.
type RunnerOption func(*RunnerOptions)

// WithWorkers sets the maximum number of concurrent analyses.
func WithWorkers(n int) RunnerOption {
	return func(o *RunnerOptions) {
		if n > 0 {
			o.Workers = n
		}
	}
}

// WithTaskTimeout bounds each individual analysis.
func WithTaskTimeout(d time.Duration) RunnerOption {
	return func(o *RunnerOptions) {
		if d > 0 {
			o.TaskTimeout = d
		}
	}
}

// WithCache serves repeated graphs from the given result cache.
func WithCache(c *cache.ResultCache) RunnerOption {
	return func(o *RunnerOptions) {
		o.Cache = c
	}
}

// Runner executes diameter analyses across a set of graphs.
type Runner struct {
	options RunnerOptions
}

// NewRunner creates a Runner with the given options.
func NewRunner(opts ...RunnerOption) *Runner {
	options := DefaultRunnerOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Runner{options: options}
}

// Run analyzes every task and returns the index-aligned results with an
// aggregate summary.
//
// Description:
//
//	Tasks run under a bounded errgroup. A task that fails records its
//	error in Results[i] and never aborts the run; only cancellation of
//	the parent context stops the batch early, in which case the
//	already-finished results are returned alongside ctx.Err().
//
// Complexity: O(sum of task costs / workers) wall time.
func (r *Runner) Run(ctx context.Context, tasks []Task) (*Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer("morpho").Start(ctx, "batch.Run")
	defer span.End()
	span.SetAttributes(
		attribute.Int("task_count", len(tasks)),
		attribute.Int("workers", r.options.Workers),
	)

	start := time.Now()
	results := make([]Result, len(tasks))

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.options.Workers)

	for i, task := range tasks {
		i, task := i, task

		eg.Go(func() error {
			taskStart := time.Now()
			diameter, err := r.analyzeOne(gCtx, task)

			results[i] = Result{
				Name:       task.Name,
				Index:      i,
				Diameter:   diameter,
				Err:        err,
				DurationMs: time.Since(taskStart).Milliseconds(),
			}
			if err != nil {
				results[i].Error = err.Error()
				slog.Warn("batch task failed",
					slog.String("task", task.Name),
					slog.Int("index", i),
					slog.String("error", err.Error()))
			}

			// Task failures are recorded, never propagated.
			return nil
		})
	}

	// eg.Go callbacks always return nil; Wait only synchronizes.
	_ = eg.Wait()

	report := &Report{
		Results:    results,
		Summary:    Aggregate(results),
		DurationMs: time.Since(start).Milliseconds(),
	}

	span.SetAttributes(
		attribute.Int("succeeded", report.Summary.Succeeded),
		attribute.Int("failed", report.Summary.Failed),
	)

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch cancelled")
		return report, err
	}

	span.SetStatus(codes.Ok, "batch complete")

	slog.Info("batch run complete",
		slog.Int("tasks", len(tasks)),
		slog.Int("succeeded", report.Summary.Succeeded),
		slog.Int("failed", report.Summary.Failed),
		slog.Duration("duration", time.Since(start)))

	return report, nil
}

// analyzeOne computes the diameter of a single task graph, serving from
// the cache when one is configured.
func (r *Runner) analyzeOne(ctx context.Context, task Task) (*analysis.PathResult, error) {
	if task.Graph == nil {
		return nil, analysis.ErrNilGraph
	}

	if r.options.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.options.TaskTimeout)
		defer cancel()
	}

	compute := func(ctx context.Context) (*analysis.PathResult, error) {
		analyzer, err := analysis.NewAnalyzer(task.Graph)
		if err != nil {
			return nil, err
		}
		return analyzer.Diameter(ctx)
	}

	// Fingerprints are only stable once the graph is frozen; unfrozen
	// graphs bypass the cache and fail inside NewAnalyzer.
	if r.options.Cache != nil && task.Graph.IsFrozen() {
		return r.options.Cache.GetOrCompute(ctx, task.Graph.Fingerprint(), compute)
	}
	return compute(ctx)
}
