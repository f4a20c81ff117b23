// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server provides the morpho HTTP service for morphology analysis.
//
// The service exposes endpoints for:
//   - Registering graphs built from sample point tables
//   - Diameter analysis (tree-native and Dijkstra cross-check)
//   - Shortest paths, simplification, and morphometrics
//   - Batch diameter runs over many point sets
package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/arbor/services/morpho/analysis"
	"github.com/AleutianAI/arbor/services/morpho/batch"
	"github.com/AleutianAI/arbor/services/morpho/cache"
	"github.com/AleutianAI/arbor/services/morpho/graph"
	storage "github.com/AleutianAI/arbor/services/morpho/storage/badger"
	"github.com/AleutianAI/arbor/services/morpho/telemetry"
)

// ServiceConfig configures the morpho service.
type ServiceConfig struct {
	// MaxGraphs is the maximum number of graphs the registry holds.
	// Default: 256
	MaxGraphs int

	// BatchOptions is the base configuration for batch runs. Per-request
	// worker overrides are applied on top.
	BatchOptions []batch.RunnerOption
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxGraphs: 256,
	}
}

// RegisteredGraph is one graph held by the registry.
type RegisteredGraph struct {
	// ID is the registry identifier.
	ID string

	// Name is the caller-supplied label.
	Name string

	// Graph is the frozen, validated graph.
	Graph *graph.Graph

	// Analyzer runs queries against Graph.
	Analyzer *analysis.Analyzer

	// Fingerprint is the content hash of Graph, computed at registration.
	Fingerprint string

	// CreatedAtMilli is when the graph was registered, Unix milliseconds.
	CreatedAtMilli int64
}

// Service is the morpho service.
//
// Thread Safety:
//
//	Service is safe for concurrent use. Multiple goroutines can call
//	any combination of methods simultaneously.
type Service struct {
	config ServiceConfig
	graphs map[string]*RegisteredGraph
	mu     sync.RWMutex

	// cache serves repeated analyses by graph fingerprint. Optional.
	cache *cache.ResultCache

	// store persists analysis results. Optional.
	store *storage.ResultStore

	// metrics records operation-level instruments. Optional.
	metrics *telemetry.Metrics
}

// NewService creates a new morpho service.
func NewService(config ServiceConfig) *Service {
	if config.MaxGraphs <= 0 {
		config.MaxGraphs = DefaultServiceConfig().MaxGraphs
	}
	return &Service{
		config: config,
		graphs: make(map[string]*RegisteredGraph),
	}
}

// WithCache sets the result cache for diameter queries.
func (s *Service) WithCache(c *cache.ResultCache) *Service {
	s.cache = c
	return s
}

// WithStore sets the archive database for result persistence.
func (s *Service) WithStore(st *storage.ResultStore) *Service {
	s.store = st
	return s
}

// WithMetrics sets the telemetry instruments.
func (s *Service) WithMetrics(m *telemetry.Metrics) *Service {
	s.metrics = m
	return s
}

// CreateGraph builds, validates, and registers a graph.
//
// Description:
//
//	Builds a frozen graph from the point table, verifies the rooted-tree
//	invariant, and registers it under a fresh ID. Registered graphs are
//	guaranteed analyzable: invalid point sets are rejected here with the
//	precise diagnostic rather than failing later on first analysis.
//
// Inputs:
//
//	ctx - Context for cancellation
//	name - Caller-supplied label
//	points - Sample point table
//
// Outputs:
//
//	*RegisteredGraph - The registered graph
//	error - Non-nil on build failure, graph.ErrInvalidGraph taxonomy
//	        violations, or ErrTooManyGraphs
func (s *Service) CreateGraph(ctx context.Context, name string, points []graph.SamplePoint) (*RegisteredGraph, error) {
	start := time.Now()

	g, err := graph.NewFromPoints(points)
	if err != nil {
		s.recordBuild(ctx, start, 0, err)
		return nil, err
	}

	if err := g.Validate(ctx); err != nil {
		s.recordBuild(ctx, start, g.NodeCount(), err)
		return nil, err
	}

	analyzer, err := analysis.NewAnalyzer(g)
	if err != nil {
		s.recordBuild(ctx, start, g.NodeCount(), err)
		return nil, err
	}

	rg := &RegisteredGraph{
		ID:             uuid.NewString(),
		Name:           name,
		Graph:          g,
		Analyzer:       analyzer,
		Fingerprint:    g.Fingerprint(),
		CreatedAtMilli: time.Now().UnixMilli(),
	}

	s.mu.Lock()
	if len(s.graphs) >= s.config.MaxGraphs {
		s.mu.Unlock()
		s.recordBuild(ctx, start, g.NodeCount(), ErrTooManyGraphs)
		return nil, ErrTooManyGraphs
	}
	s.graphs[rg.ID] = rg
	s.mu.Unlock()

	s.recordBuild(ctx, start, g.NodeCount(), nil)
	return rg, nil
}

// GetGraph retrieves a registered graph by ID.
func (s *Service) GetGraph(id string) (*RegisteredGraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rg, ok := s.graphs[id]
	if !ok {
		return nil, ErrGraphNotFound
	}
	return rg, nil
}

// ListGraphs returns all registered graphs ordered by creation time,
// then ID for stability.
func (s *Service) ListGraphs() []*RegisteredGraph {
	s.mu.RLock()
	out := make([]*RegisteredGraph, 0, len(s.graphs))
	for _, rg := range s.graphs {
		out = append(out, rg)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtMilli != out[j].CreatedAtMilli {
			return out[i].CreatedAtMilli < out[j].CreatedAtMilli
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DeleteGraph removes a graph from the registry.
func (s *Service) DeleteGraph(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.graphs[id]; !ok {
		return ErrGraphNotFound
	}
	delete(s.graphs, id)
	return nil
}

// GraphCount returns the number of registered graphs.
func (s *Service) GraphCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.graphs)
}

// StorageConfigured reports whether a result store is attached.
func (s *Service) StorageConfigured() bool {
	return s.store != nil
}

// CacheSnapshot adapts cache statistics for the telemetry observables.
// Returns zeros when no cache is configured.
func (s *Service) CacheSnapshot() telemetry.CacheSnapshot {
	if s.cache == nil {
		return telemetry.CacheSnapshot{}
	}
	st := s.cache.Stats()
	return telemetry.CacheSnapshot{
		Hits:      st.Hits,
		Misses:    st.Misses,
		Evictions: st.Evictions,
		Entries:   int64(st.EntryCount),
	}
}

// Diameter runs a diameter analysis on a registered graph.
//
// Description:
//
//	Runs the selected traversal, serving repeated queries from the
//	result cache when one is configured. Cache keys combine the graph
//	fingerprint with the algorithm so the cross-check oracle never
//	inherits the tree-native result.
//
// Inputs:
//
//	ctx - Context for cancellation
//	id - Registered graph ID
//	algorithm - AlgorithmLinear or AlgorithmDijkstra
//
// Outputs:
//
//	*analysis.PathResult - Length and winning root-to-tip path
//	bool - True when served from the cache
//	error - ErrGraphNotFound, ErrUnknownAlgorithm, or the analysis
//	        error taxonomy
func (s *Service) Diameter(ctx context.Context, id, algorithm string) (*analysis.PathResult, bool, error) {
	rg, err := s.GetGraph(id)
	if err != nil {
		return nil, false, err
	}

	var compute cache.ComputeFunc
	switch algorithm {
	case AlgorithmLinear:
		compute = rg.Analyzer.Diameter
	case AlgorithmDijkstra:
		compute = rg.Analyzer.DiameterGeneric
	default:
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}

	start := time.Now()
	attrs := []attribute.KeyValue{
		attribute.String("operation", "diameter"),
		attribute.String("algorithm", algorithm),
	}

	if s.cache == nil {
		result, err := compute(ctx)
		s.recordAnalysis(ctx, start, err, attrs...)
		return result, false, err
	}

	// Track whether the compute function actually ran: if it did not
	// and the lookup succeeded, the result came from the cache (or a
	// concurrent computation we piggybacked on).
	key := rg.Fingerprint + "/diameter/" + algorithm
	computed := false
	tracked := func(ctx context.Context) (*analysis.PathResult, error) {
		computed = true
		return compute(ctx)
	}

	result, err := s.cache.GetOrCompute(ctx, key, tracked)
	s.recordAnalysis(ctx, start, err, attrs...)
	return result, err == nil && !computed, err
}

// ShortestPath returns the unique tree path between two nodes of a
// registered graph.
func (s *Service) ShortestPath(ctx context.Context, id string, from, to graph.NodeID) (*analysis.PathResult, error) {
	rg, err := s.GetGraph(id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := rg.Analyzer.ShortestPath(ctx, from, to)
	s.recordAnalysis(ctx, start, err, attribute.String("operation", "shortest_path"))
	return result, err
}

// Simplify reduces a registered graph to its topology skeleton and
// registers the result as a new graph.
func (s *Service) Simplify(ctx context.Context, id, name string) (*RegisteredGraph, error) {
	rg, err := s.GetGraph(id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	simplified, err := rg.Analyzer.Simplify(ctx)
	s.recordAnalysis(ctx, start, err, attribute.String("operation", "simplify"))
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = rg.Name + "-simplified"
	}

	analyzer, err := analysis.NewAnalyzer(simplified)
	if err != nil {
		return nil, err
	}

	out := &RegisteredGraph{
		ID:             uuid.NewString(),
		Name:           name,
		Graph:          simplified,
		Analyzer:       analyzer,
		Fingerprint:    simplified.Fingerprint(),
		CreatedAtMilli: time.Now().UnixMilli(),
	}

	s.mu.Lock()
	if len(s.graphs) >= s.config.MaxGraphs {
		s.mu.Unlock()
		return nil, ErrTooManyGraphs
	}
	s.graphs[out.ID] = out
	s.mu.Unlock()

	return out, nil
}

// Morphometrics computes scalar summaries for a registered graph.
func (s *Service) Morphometrics(ctx context.Context, id string) (*analysis.Morphometrics, error) {
	rg, err := s.GetGraph(id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	m, err := rg.Analyzer.Morphometrics(ctx)
	s.recordAnalysis(ctx, start, err, attribute.String("operation", "morphometrics"))
	return m, err
}

// StoreResult persists a diameter result for a registered graph.
//
// Outputs:
//
//	string - The new record ID
//	error - ErrStoreNotConfigured when no store is attached
func (s *Service) StoreResult(ctx context.Context, rg *RegisteredGraph, result *analysis.PathResult, durationMs int64) (string, error) {
	if s.store == nil {
		return "", ErrStoreNotConfigured
	}

	stats := rg.Graph.Stats()
	rec := &storage.ResultRecord{
		ID:             uuid.NewString(),
		Name:           rg.Name,
		Fingerprint:    rg.Fingerprint,
		Length:         result.Length,
		Path:           result.Path,
		NodeCount:      stats.NodeCount,
		TipCount:       stats.TipCount,
		DurationMs:     durationMs,
		CreatedAtMilli: time.Now().UnixMilli(),
	}

	start := time.Now()
	err := s.store.Put(ctx, rec)
	s.recordStore(ctx, start, "put", err)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// BatchDiameter runs diameter analyses over many point sets.
//
// Description:
//
//	Builds one graph per task and runs them through the batch runner.
//	Building is atomic: if any point set fails to build, the whole batch
//	is rejected with an error naming the offending task, before any
//	analysis runs. Analysis failures, by contrast, are isolated per task
//	inside the report.
//
// Inputs:
//
//	ctx - Context for cancellation
//	specs - Named point tables
//	workers - Worker count override, 0 for the configured default
//	persist - Store each successful result when true
//
// Outputs:
//
//	*batch.Report - Per-task results plus aggregate summary
//	[]string - One record ID per task when persisting, "" for failures
//	error - Build failure, ErrStoreNotConfigured, or runner error
func (s *Service) BatchDiameter(ctx context.Context, specs []BatchTaskSpec, workers int, persist bool) (*batch.Report, []string, error) {
	if persist && s.store == nil {
		return nil, nil, ErrStoreNotConfigured
	}

	tasks := make([]batch.Task, len(specs))
	for i, spec := range specs {
		g, err := graph.NewFromPoints(spec.Points)
		if err != nil {
			return nil, nil, fmt.Errorf("task %q: %w", spec.Name, err)
		}
		tasks[i] = batch.Task{Name: spec.Name, Graph: g}
	}

	opts := make([]batch.RunnerOption, 0, len(s.config.BatchOptions)+2)
	opts = append(opts, s.config.BatchOptions...)
	if workers > 0 {
		opts = append(opts, batch.WithWorkers(workers))
	}
	if s.cache != nil {
		opts = append(opts, batch.WithCache(s.cache))
	}

	start := time.Now()
	report, err := batch.NewRunner(opts...).Run(ctx, tasks)
	s.recordBatch(ctx, start, report, err)
	if err != nil {
		return nil, nil, err
	}

	var storedIDs []string
	if persist {
		storedIDs = make([]string, len(report.Results))
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
			putStart := time.Now()
			putErr := s.store.Put(ctx, rec)
			s.recordStore(ctx, putStart, "put", putErr)
			if putErr != nil {
				return report, storedIDs, fmt.Errorf("store task %q: %w", res.Name, putErr)
			}
			storedIDs[i] = rec.ID
		}
	}

	return report, storedIDs, nil
}

// ListResults returns persisted results from the archive database.
func (s *Service) ListResults(ctx context.Context, limit int) ([]*storage.ResultRecord, error) {
	if s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	start := time.Now()
	recs, err := s.store.List(ctx, limit)
	s.recordStore(ctx, start, "list", err)
	return recs, err
}

// GetResult returns one persisted result by record ID.
func (s *Service) GetResult(ctx context.Context, id string) (*storage.ResultRecord, error) {
	if s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	start := time.Now()
	rec, err := s.store.Get(ctx, id)
	s.recordStore(ctx, start, "get", err)
	return rec, err
}

// DeleteResult removes one persisted result by record ID.
func (s *Service) DeleteResult(ctx context.Context, id string) error {
	if s.store == nil {
		return ErrStoreNotConfigured
	}
	start := time.Now()
	err := s.store.Delete(ctx, id)
	s.recordStore(ctx, start, "delete", err)
	return err
}

// statusAttr converts an error into the metric status attribute.
func statusAttr(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("status", "failed")
	}
	return attribute.String("status", "success")
}

func (s *Service) recordBuild(ctx context.Context, start time.Time, nodes int, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.GraphBuildsTotal.Add(ctx, 1, metric.WithAttributes(statusAttr(err)))
	s.metrics.GraphBuildDuration.Record(ctx, time.Since(start).Seconds())
	if err == nil && nodes > 0 {
		s.metrics.GraphNodes.Record(ctx, int64(nodes))
	}
}

func (s *Service) recordAnalysis(ctx context.Context, start time.Time, err error, attrs ...attribute.KeyValue) {
	if s.metrics == nil {
		return
	}
	all := append(attrs, statusAttr(err))
	s.metrics.AnalysesTotal.Add(ctx, 1, metric.WithAttributes(all...))
	s.metrics.AnalysisDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
	if err != nil {
		s.metrics.ErrorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", "analysis"),
			attribute.String("component", "server"),
		))
	}
}

func (s *Service) recordBatch(ctx context.Context, start time.Time, report *batch.Report, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.BatchRunsTotal.Add(ctx, 1, metric.WithAttributes(statusAttr(err)))
	s.metrics.BatchRunDuration.Record(ctx, time.Since(start).Seconds())
	if report != nil {
		s.metrics.BatchTasksTotal.Add(ctx, int64(report.Summary.Succeeded), metric.WithAttributes(
			attribute.String("status", "success")))
		s.metrics.BatchTasksTotal.Add(ctx, int64(report.Summary.Failed), metric.WithAttributes(
			attribute.String("status", "failed")))
	}
}

func (s *Service) recordStore(ctx context.Context, start time.Time, op string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.StoreRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op), statusAttr(err)))
	s.metrics.StoreRequestDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("operation", op)))
}
