// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis provides analytical queries over frozen morphology
// graphs.
//
// Description:
//
//	The central query is the diameter of a rooted tree: the longest
//	root-to-tip shortest path, reported as total edge weight plus the
//	node sequence that realizes it. Because every node in a rooted tree
//	is reached by exactly one path from the root, "shortest path to a
//	tip" and "the path to a tip" coincide, which is what makes the
//	single-traversal implementation in Diameter possible. The package
//	also carries point-to-point paths, topology simplification, and
//	scalar morphometry summaries.
//
// Thread Safety:
//
//	An Analyzer wraps a frozen (read-only) graph and is safe for
//	concurrent use. Validation runs at most once per Analyzer on the
//	success path.
//
// Performance:
//
//	| Operation       | Complexity           |
//	|-----------------|----------------------|
//	| Diameter        | O(V + E)             |
//	| DiameterGeneric | O(T * (V + E) log V) |
//	| ShortestPath    | O(depth)             |
//	| Simplify        | O(V + E)             |
//	| Morphometrics   | O(V + E)             |
package analysis

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/arbor/services/morpho/graph"
)

// Sentinel errors for analysis operations.
var (
	ErrNilGraph = errors.New("graph must not be nil")
)

// PathResult is the outcome of a longest-path or point-to-point query.
type PathResult struct {
	// Length is the total edge weight along Path. Zero for a
	// single-node path.
	Length float64 `json:"length"`

	// Path is the ordered node sequence from the start node to the
	// terminal node, both inclusive. Never empty on success.
	Path []graph.NodeID `json:"path"`
}

// Terminal returns the last node on the path, which for diameter
// queries is the winning tip. Returns false when the path is empty.
func (r *PathResult) Terminal() (graph.NodeID, bool) {
	if r == nil || len(r.Path) == 0 {
		return 0, false
	}
	return r.Path[len(r.Path)-1], true
}

// Analyzer runs read-only analytical queries against a single frozen
// morphology graph.
//
// Thread Safety:
//
//	Safe for concurrent use. The underlying graph is never mutated.
type Analyzer struct {
	graph *graph.Graph

	// mu guards validated. Validation succeeds at most once per
	// analyzer; failures (including context cancellation) are retried
	// on the next call.
	mu        sync.Mutex
	validated bool
}

// NewAnalyzer creates an analyzer for the given graph.
//
// Inputs:
//   - g: Graph to analyze. Must be non-nil and frozen.
//
// Outputs:
//   - *Analyzer: Ready for queries. Never nil on success.
//   - error: ErrNilGraph or graph.ErrGraphNotFrozen.
func NewAnalyzer(g *graph.Graph) (*Analyzer, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	if !g.IsFrozen() {
		return nil, graph.ErrGraphNotFrozen
	}
	return &Analyzer{graph: g}, nil
}

// Graph returns the underlying frozen graph.
func (a *Analyzer) Graph() *graph.Graph {
	return a.graph
}

// ensureValid checks the rooted-tree invariant, caching success so
// repeated queries on the same frozen graph validate only once.
func (a *Analyzer) ensureValid(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.validated {
		return nil
	}
	if err := a.graph.Validate(ctx); err != nil {
		return err
	}
	a.validated = true
	return nil
}

// Diameter computes the longest root-to-tip shortest path of the tree.
//
// Description:
//
//	Validates the rooted-tree invariant, then runs a single iterative
//	depth-first traversal from the root, accumulating the cumulative
//	edge-weight distance and a parent pointer for every node. The tips
//	are then scanned in enumeration order and the best distance is kept
//	on strict improvement, so ties resolve to the first-enumerated tip
//	deterministically. The winning path is reconstructed from the
//	parent pointers.
//
//	A single-node tree is its own tip: the result is length 0 with a
//	one-element path holding the root.
//
// Inputs:
//   - ctx: Context for cancellation. May be nil.
//
// Outputs:
//   - *PathResult: Diameter length and root-to-tip node sequence.
//   - error: Wrapped graph.ErrInvalidGraph when the graph is empty, has
//     zero or multiple roots, a cycle, or disconnected nodes. A graph
//     that violates the invariant is never silently analyzed.
//
// Complexity: O(V + E) time, O(V) space.
//
// Example:
//
//	res, err := analyzer.Diameter(ctx)
//	if err != nil {
//	    return fmt.Errorf("diameter: %w", err)
//	}
//	fmt.Printf("%.3f over %d nodes\n", res.Length, len(res.Path))
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) Diameter(ctx context.Context) (*PathResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer("morpho").Start(ctx, "analysis.Diameter")
	defer span.End()

	start := time.Now()

	span.AddEvent("validating_tree")
	if err := a.ensureValid(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid tree")
		return nil, err
	}

	root, err := a.graph.Root()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "root lookup failed")
		return nil, err
	}

	span.AddEvent("accumulating_distances")
	dist, parent, err := a.rootDistances(ctx, root)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "traversal cancelled")
		return nil, err
	}

	span.AddEvent("scanning_tips")
	tips := a.graph.Tips()
	best := math.Inf(-1)
	bestTip := root
	for _, tip := range tips {
		if d := dist[tip]; d > best {
			best = d
			bestTip = tip
		}
	}

	result := &PathResult{
		Length: best,
		Path:   reconstructPath(root, bestTip, parent),
	}

	span.SetAttributes(
		attribute.Int("node_count", a.graph.NodeCount()),
		attribute.Int("tip_count", len(tips)),
		attribute.Float64("diameter", result.Length),
		attribute.Int("path_nodes", len(result.Path)),
	)
	span.SetStatus(codes.Ok, "diameter computed")

	slog.Debug("diameter computed",
		slog.Int("node_count", a.graph.NodeCount()),
		slog.Int("tip_count", len(tips)),
		slog.Float64("length", result.Length),
		slog.Duration("duration", time.Since(start)))

	return result, nil
}

// rootDistances runs one iterative depth-first traversal from root,
// returning the cumulative edge-weight distance and the parent pointer
// for every node. The explicit stack keeps deep unbranched chains from
// exhausting goroutine stack space.
func (a *Analyzer) rootDistances(ctx context.Context, root graph.NodeID) (map[graph.NodeID]float64, map[graph.NodeID]graph.NodeID, error) {
	dist := make(map[graph.NodeID]float64, a.graph.NodeCount())
	parent := make(map[graph.NodeID]graph.NodeID, a.graph.NodeCount())
	dist[root] = 0

	stack := make([]graph.NodeID, 1, 64)
	stack[0] = root
	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		base := dist[id]
		for _, e := range a.graph.OutEdges(id) {
			dist[e.To] = base + e.Weight
			parent[e.To] = id
			stack = append(stack, e.To)
		}
	}
	return dist, parent, nil
}

// reconstructPath walks parent pointers from tip back to root and
// reverses the sequence so the result reads root-first.
func reconstructPath(root, tip graph.NodeID, parent map[graph.NodeID]graph.NodeID) []graph.NodeID {
	path := []graph.NodeID{tip}
	for cur := tip; cur != root; {
		cur = parent[cur]
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
