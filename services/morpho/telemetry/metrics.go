// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for the Arbor morphometry service.
//
// Description:
//
//	Provides standard counters, histograms, and gauges for HTTP requests,
//	graph construction, diameter analysis, batch runs, and result storage.
//	All metrics use the "arbor_" prefix for consistent naming.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- HTTP Metrics ---

	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal metric.Int64Counter

	// HTTPRequestDuration records HTTP request duration in seconds.
	HTTPRequestDuration metric.Float64Histogram

	// HTTPActiveRequests tracks currently active HTTP requests.
	HTTPActiveRequests metric.Int64UpDownCounter

	// --- Graph Metrics ---

	// GraphBuildsTotal counts graph constructions from point sets by status.
	GraphBuildsTotal metric.Int64Counter

	// GraphBuildDuration records graph build duration in seconds.
	GraphBuildDuration metric.Float64Histogram

	// GraphNodes records the node-count distribution of analyzed graphs.
	GraphNodes metric.Int64Histogram

	// --- Analysis Metrics ---

	// AnalysesTotal counts analysis operations by operation and status.
	AnalysesTotal metric.Int64Counter

	// AnalysisDuration records analysis duration in seconds by operation.
	AnalysisDuration metric.Float64Histogram

	// --- Batch Metrics ---

	// BatchRunsTotal counts batch runs.
	BatchRunsTotal metric.Int64Counter

	// BatchTasksTotal counts batch tasks by status.
	BatchTasksTotal metric.Int64Counter

	// BatchRunDuration records whole-run duration in seconds.
	BatchRunDuration metric.Float64Histogram

	// --- Store Metrics ---

	// StoreRequestsTotal counts result-store operations by operation and status.
	StoreRequestsTotal metric.Int64Counter

	// StoreRequestDuration records result-store operation duration in seconds.
	StoreRequestDuration metric.Float64Histogram

	// --- Cache Metrics (registered via RegisterCacheStats) ---

	// CacheHits reports cumulative result-cache hits.
	CacheHits metric.Int64ObservableCounter

	// CacheMisses reports cumulative result-cache misses.
	CacheMisses metric.Int64ObservableCounter

	// CacheEvictions reports cumulative result-cache evictions.
	CacheEvictions metric.Int64ObservableCounter

	// CacheEntries reports the current number of cached results.
	CacheEntries metric.Int64ObservableGauge

	// --- Error Metrics ---

	// ErrorsTotal counts total errors by type and component.
	ErrorsTotal metric.Int64Counter
}

// CacheSnapshot is a point-in-time view of result-cache counters,
// returned by the callback passed to RegisterCacheStats.
type CacheSnapshot struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int64
}

// NewMetrics creates a new Metrics instance with all metrics registered.
//
// Description:
//
//	Registers all pre-defined metrics with the provided meter.
//	Returns an error if any metric registration fails.
//
// Inputs:
//
//	meter - The OTel meter to use for metric registration.
//
// Outputs:
//
//	*Metrics - The metrics instance with all counters and histograms initialized.
//	error - Non-nil if metric registration fails.
//
// Example:
//
//	meter := otel.Meter("morpho")
//	metrics, err := telemetry.NewMetrics(meter)
//	if err != nil {
//	    return fmt.Errorf("create metrics: %w", err)
//	}
//	metrics.AnalysesTotal.Add(ctx, 1, ...)
//
// Thread Safety: Safe for concurrent use after creation.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	// --- HTTP Metrics ---
	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"arbor_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total: %w", err)
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"arbor_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_request_duration: %w", err)
	}

	m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"arbor_http_active_requests",
		metric.WithDescription("Currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_active_requests: %w", err)
	}

	// --- Graph Metrics ---
	m.GraphBuildsTotal, err = meter.Int64Counter(
		"arbor_graph_builds_total",
		metric.WithDescription("Total graph constructions from point sets"),
		metric.WithUnit("{build}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create graph_builds_total: %w", err)
	}

	m.GraphBuildDuration, err = meter.Float64Histogram(
		"arbor_graph_build_duration_seconds",
		metric.WithDescription("Graph build duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("create graph_build_duration: %w", err)
	}

	m.GraphNodes, err = meter.Int64Histogram(
		"arbor_graph_nodes",
		metric.WithDescription("Node counts of analyzed graphs"),
		metric.WithUnit("{node}"),
		metric.WithExplicitBucketBoundaries(10, 100, 1000, 10000, 100000, 1000000),
	)
	if err != nil {
		return nil, fmt.Errorf("create graph_nodes: %w", err)
	}

	// --- Analysis Metrics ---
	m.AnalysesTotal, err = meter.Int64Counter(
		"arbor_analyses_total",
		metric.WithDescription("Total analysis operations"),
		metric.WithUnit("{analysis}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create analyses_total: %w", err)
	}

	m.AnalysisDuration, err = meter.Float64Histogram(
		"arbor_analysis_duration_seconds",
		metric.WithDescription("Analysis duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("create analysis_duration: %w", err)
	}

	// --- Batch Metrics ---
	m.BatchRunsTotal, err = meter.Int64Counter(
		"arbor_batch_runs_total",
		metric.WithDescription("Total batch runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create batch_runs_total: %w", err)
	}

	m.BatchTasksTotal, err = meter.Int64Counter(
		"arbor_batch_tasks_total",
		metric.WithDescription("Total batch tasks by status"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create batch_tasks_total: %w", err)
	}

	m.BatchRunDuration, err = meter.Float64Histogram(
		"arbor_batch_run_duration_seconds",
		metric.WithDescription("Batch run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, fmt.Errorf("create batch_run_duration: %w", err)
	}

	// --- Store Metrics ---
	m.StoreRequestsTotal, err = meter.Int64Counter(
		"arbor_store_requests_total",
		metric.WithDescription("Total result-store operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create store_requests_total: %w", err)
	}

	m.StoreRequestDuration, err = meter.Float64Histogram(
		"arbor_store_request_duration_seconds",
		metric.WithDescription("Result-store operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("create store_request_duration: %w", err)
	}

	// Note: cache metrics require a callback registration, handled by RegisterCacheStats

	// --- Error Metrics ---
	m.ErrorsTotal, err = meter.Int64Counter(
		"arbor_errors_total",
		metric.WithDescription("Total errors by type and component"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors_total: %w", err)
	}

	return m, nil
}

// RegisterCacheStats registers a callback that reports result-cache counters.
//
// Description:
//
//	Sets up observable instruments that report cache hits, misses,
//	evictions, and current entry count. The callback is invoked each
//	time metrics are scraped.
//
// Inputs:
//
//	meter - The OTel meter to use for registration.
//	statsFunc - A function returning the current cache counters.
//
// Outputs:
//
//	metric.Registration - Registration handle for cleanup.
//	error - Non-nil if registration fails.
func (m *Metrics) RegisterCacheStats(meter metric.Meter, statsFunc func() CacheSnapshot) (metric.Registration, error) {
	var err error
	m.CacheHits, err = meter.Int64ObservableCounter(
		"arbor_cache_hits_total",
		metric.WithDescription("Cumulative result-cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache_hits_total: %w", err)
	}

	m.CacheMisses, err = meter.Int64ObservableCounter(
		"arbor_cache_misses_total",
		metric.WithDescription("Cumulative result-cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache_misses_total: %w", err)
	}

	m.CacheEvictions, err = meter.Int64ObservableCounter(
		"arbor_cache_evictions_total",
		metric.WithDescription("Cumulative result-cache evictions"),
		metric.WithUnit("{eviction}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache_evictions_total: %w", err)
	}

	m.CacheEntries, err = meter.Int64ObservableGauge(
		"arbor_cache_entries",
		metric.WithDescription("Current number of cached results"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache_entries: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		snap := statsFunc()
		o.ObserveInt64(m.CacheHits, snap.Hits)
		o.ObserveInt64(m.CacheMisses, snap.Misses)
		o.ObserveInt64(m.CacheEvictions, snap.Evictions)
		o.ObserveInt64(m.CacheEntries, snap.Entries)
		return nil
	}, m.CacheHits, m.CacheMisses, m.CacheEvictions, m.CacheEntries)
}
