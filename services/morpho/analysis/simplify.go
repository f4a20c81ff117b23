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

// Simplify reduces the tree to its topology skeleton.
//
// Description:
//
//	Keeps only the root, branch points, and tips. Every kept node is
//	connected to its nearest kept ancestor by a single edge whose
//	weight is the summed weight of the collapsed pass-through chain, so
//	path lengths between kept nodes are preserved exactly. Node
//	insertion order follows the source graph, which keeps tip
//	enumeration order stable across simplification.
//
// Outputs:
//   - *graph.Graph: A new frozen graph. The receiver is not modified.
//   - error: Same taxonomy as Diameter.
//
// Complexity: O(V + E). Each collapsed edge is walked exactly once.
func (a *Analyzer) Simplify(ctx context.Context) (*graph.Graph, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer("morpho").Start(ctx, "analysis.Simplify")
	defer span.End()

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

	kept := make(map[graph.NodeID]bool)
	kept[root] = true
	for _, id := range a.graph.BranchPoints() {
		kept[id] = true
	}
	for _, id := range a.graph.Tips() {
		kept[id] = true
	}

	sg := graph.New()
	for _, id := range a.graph.Nodes() {
		if !kept[id] {
			continue
		}
		node, _ := a.graph.Node(id)
		if err := sg.AddNode(node); err != nil {
			return nil, fmt.Errorf("simplify: %w", err)
		}
	}

	for _, id := range a.graph.Nodes() {
		if !kept[id] || id == root {
			continue
		}
		select {
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			span.SetStatus(codes.Error, "cancelled")
			return nil, ctx.Err()
		default:
		}

		weight := 0.0
		anc := id
		for {
			pe, ok := a.graph.ParentEdge(anc)
			if !ok {
				return nil, fmt.Errorf("%w: node %d is detached from the root",
					graph.ErrInvalidGraph, id)
			}
			weight += pe.Weight
			anc = pe.From
			if kept[anc] {
				break
			}
		}
		if err := sg.AddEdge(anc, id, weight); err != nil {
			return nil, fmt.Errorf("simplify: %w", err)
		}
	}

	sg.Freeze()

	span.SetAttributes(
		attribute.Int("source_nodes", a.graph.NodeCount()),
		attribute.Int("kept_nodes", sg.NodeCount()),
	)
	span.SetStatus(codes.Ok, "graph simplified")

	return sg, nil
}
