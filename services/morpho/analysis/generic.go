// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	gonumgraph "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/AleutianAI/arbor/services/morpho/graph"
)

// DiameterGeneric computes the diameter with a general shortest-path
// algorithm instead of the tree-native traversal.
//
// Description:
//
//	Copies the tree into a gonum weighted digraph and runs Dijkstra
//	from the root once per tip, keeping the largest tip distance under
//	the same strict-improvement rule as Diameter. Each tip deliberately
//	pays for its own priority-queue run: the point of this method is an
//	independently derived answer, not speed. It exists as a correctness
//	oracle for Diameter and as the reference implementation for graphs
//	that may one day stop being trees.
//
// Inputs:
//   - ctx: Context for cancellation. May be nil.
//
// Outputs:
//   - *PathResult: Same contract as Diameter. On a valid tree the two
//     methods agree on length to within floating-point tolerance and
//     return the same path.
//   - error: Same taxonomy as Diameter.
//
// Complexity: O(T * (V + E) log V) time for T tips.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) DiameterGeneric(ctx context.Context) (*PathResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer("morpho").Start(ctx, "analysis.DiameterGeneric")
	defer span.End()

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

	span.AddEvent("building_weighted_digraph")
	dg := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for _, id := range a.graph.Nodes() {
		dg.AddNode(simple.Node(int64(id)))
	}
	for _, e := range a.graph.Edges() {
		dg.SetWeightedEdge(simple.WeightedEdge{
			F: simple.Node(int64(e.From)),
			T: simple.Node(int64(e.To)),
			W: e.Weight,
		})
	}

	span.AddEvent("running_dijkstra_per_tip")
	tips := a.graph.Tips()
	best := math.Inf(-1)
	var bestPath []gonumgraph.Node
	for _, tip := range tips {
		select {
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			span.SetStatus(codes.Error, "cancelled")
			return nil, ctx.Err()
		default:
		}

		shortest := path.DijkstraFrom(dg.Node(int64(root)), dg)
		nodes, weight := shortest.To(int64(tip))
		if weight > best {
			best = weight
			bestPath = nodes
		}
	}

	result := &PathResult{
		Length: best,
		Path:   make([]graph.NodeID, 0, len(bestPath)),
	}
	for _, n := range bestPath {
		result.Path = append(result.Path, graph.NodeID(n.ID()))
	}

	span.SetAttributes(
		attribute.Int("node_count", a.graph.NodeCount()),
		attribute.Int("tip_count", len(tips)),
		attribute.Float64("diameter", result.Length),
	)
	span.SetStatus(codes.Ok, "diameter computed")

	return result, nil
}
