// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"fmt"
)

// Validate checks the rooted-tree invariant.
//
// Description:
//
//	Verifies that the frozen graph is a rooted tree: exactly one node with
//	in-degree 0 (the root), every other node with in-degree exactly 1, no
//	cycles, and every node reachable from the root. All violations return
//	an error wrapping ErrInvalidGraph with a description of the first
//	violation found, checked in order of diagnostic usefulness: root
//	count, multi-parent nodes, cycles, connectivity, edge count.
//
//	Validate never repairs anything. A graph with several root candidates
//	is rejected outright rather than adopting one of them.
//
// Inputs:
//
//	ctx - Cancels the reachability walk on large graphs.
//
// Outputs:
//
//	error - Nil if the invariant holds. Otherwise wraps ErrInvalidGraph
//	(or ErrGraphNotFrozen for unfrozen graphs, which is a usage error
//	rather than an input error).
//
// Complexity: O(V + E).
//
// Thread Safety: Safe for concurrent use on frozen graphs.
func (g *Graph) Validate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !g.IsFrozen() {
		return ErrGraphNotFrozen
	}

	if len(g.nodes) == 0 {
		return ErrEmptyGraph
	}

	switch len(g.roots) {
	case 1:
		// Single root; carry on.
	case 0:
		return fmt.Errorf("%w: graph has no root", ErrInvalidGraph)
	default:
		return fmt.Errorf("%w: graph has %d roots", ErrInvalidGraph, len(g.roots))
	}
	root := g.roots[0]

	for _, id := range g.order {
		if parents := len(g.in[id]); parents > 1 {
			return fmt.Errorf("%w: node %d has %d parents", ErrInvalidGraph, id, parents)
		}
	}

	// Iterative DFS from the root. Traced morphologies can be single
	// unbranched chains of hundreds of thousands of nodes, so recursion
	// is off the table.
	visited := make(map[NodeID]bool, len(g.nodes))
	onStack := make(map[NodeID]bool)

	type frame struct {
		id   NodeID
		next int // index of the next outgoing edge to follow
	}
	stack := []frame{{id: root}}
	visited[root] = true
	onStack[root] = true

	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		top := &stack[len(stack)-1]
		edges := g.out[top.id]
		if top.next >= len(edges) {
			onStack[top.id] = false
			stack = stack[:len(stack)-1]
			continue
		}

		child := edges[top.next].To
		top.next++

		if onStack[child] {
			return fmt.Errorf("%w: cycle detected at node %d", ErrInvalidGraph, child)
		}
		if visited[child] {
			// Reached by two paths; degree checks above report this as
			// a multi-parent node first, but keep the walk safe anyway.
			continue
		}
		visited[child] = true
		onStack[child] = true
		stack = append(stack, frame{id: child})
	}

	if len(visited) != len(g.nodes) {
		return fmt.Errorf("%w: graph is disconnected: %d nodes reachable from root, %d total",
			ErrInvalidGraph, len(visited), len(g.nodes))
	}

	if g.edgeCount != len(g.nodes)-1 {
		return fmt.Errorf("%w: tree must have exactly V-1 edges, got %d edges for %d nodes",
			ErrInvalidGraph, g.edgeCount, len(g.nodes))
	}

	return nil
}
