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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/arbor/services/morpho/graph"
)

// ShortestPath returns the unique tree path between two nodes.
//
// Description:
//
//	Climbs from the first node to the root recording cumulative upward
//	distance, then climbs from the second node until it meets that
//	ancestor chain. The meeting point is the lowest common ancestor;
//	the result walks from -> lca -> to with the summed edge weights of
//	both climbs. Edge direction is ignored, matching how path length is
//	measured along a traced structure.
//
// Outputs:
//   - *PathResult: Path from 'from' to 'to' inclusive. When the nodes
//     are equal the path has one element and length 0.
//   - error: graph.ErrNodeNotFound for unknown endpoints, or the
//     Diameter error taxonomy when the graph is invalid.
//
// Complexity: O(depth) after validation.
func (a *Analyzer) ShortestPath(ctx context.Context, from, to graph.NodeID) (*PathResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer("morpho").Start(ctx, "analysis.ShortestPath")
	defer span.End()

	if err := a.ensureValid(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid tree")
		return nil, err
	}
	if _, ok := a.graph.Node(from); !ok {
		return nil, fmt.Errorf("%w: %d", graph.ErrNodeNotFound, from)
	}
	if _, ok := a.graph.Node(to); !ok {
		return nil, fmt.Errorf("%w: %d", graph.ErrNodeNotFound, to)
	}
	if from == to {
		return &PathResult{Length: 0, Path: []graph.NodeID{from}}, nil
	}

	// Climb from 'from' to the root, recording the upward distance of
	// every ancestor.
	upDist := map[graph.NodeID]float64{from: 0}
	for cur := from; ; {
		pe, ok := a.graph.ParentEdge(cur)
		if !ok {
			break
		}
		upDist[pe.From] = upDist[cur] + pe.Weight
		cur = pe.From
	}

	// Climb from 'to' until the chains meet.
	lca := to
	toDist := 0.0
	for {
		if _, ok := upDist[lca]; ok {
			break
		}
		pe, ok := a.graph.ParentEdge(lca)
		if !ok {
			return nil, fmt.Errorf("%w: nodes %d and %d share no ancestor",
				graph.ErrInvalidGraph, from, to)
		}
		toDist += pe.Weight
		lca = pe.From
	}

	nodes := []graph.NodeID{from}
	for cur := from; cur != lca; {
		pe, _ := a.graph.ParentEdge(cur)
		cur = pe.From
		nodes = append(nodes, cur)
	}
	var descent []graph.NodeID
	for cur := to; cur != lca; {
		descent = append(descent, cur)
		pe, _ := a.graph.ParentEdge(cur)
		cur = pe.From
	}
	for i := len(descent) - 1; i >= 0; i-- {
		nodes = append(nodes, descent[i])
	}

	result := &PathResult{Length: upDist[lca] + toDist, Path: nodes}

	span.SetAttributes(
		attribute.Int64("from", int64(from)),
		attribute.Int64("to", int64(to)),
		attribute.Float64("length", result.Length),
		attribute.Int("path_nodes", len(result.Path)),
	)
	span.SetStatus(codes.Ok, "path computed")

	return result, nil
}
