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
	"math"
)

// AssignEuclideanWeights recomputes every edge weight as the Euclidean
// distance between its endpoints' coordinates.
//
// Description:
//
//	Overwrites whatever weights the edges carried. Only valid while the
//	graph is still building; frozen graphs derive reweighted copies via
//	Scale instead.
//
// Errors:
//
//	ErrGraphFrozen - the graph has been frozen
func (g *Graph) AssignEuclideanWeights() error {
	if g.state == GraphStateReadOnly {
		return ErrGraphFrozen
	}

	total := 0.0
	for id, edges := range g.out {
		from := g.nodes[id]
		for i := range edges {
			to := g.nodes[edges[i].To]
			edges[i].Weight = from.DistanceTo(to)
			total += edges[i].Weight
		}
	}
	// The in-map holds its own edge copies; refresh them from the node
	// coordinates as well.
	for id, edges := range g.in {
		to := g.nodes[id]
		for i := range edges {
			from := g.nodes[edges[i].From]
			edges[i].Weight = from.DistanceTo(to)
		}
	}
	g.totalWeight = total
	return nil
}

// Scale derives a new graph with scaled coordinates.
//
// Description:
//
//	Multiplies every node's X, Y, Z by the given factors, and the radius
//	by radiusScale. When reweight is true, edge weights are recomputed as
//	Euclidean distances over the new coordinates; otherwise the original
//	weights are kept (useful when weights encode path distance rather
//	than straight-line distance).
//
//	The receiver must be frozen and is never modified; the result is a
//	new frozen graph with the same insertion order, so enumeration and
//	tie-break behavior carry over.
//
// Errors:
//
//	ErrGraphNotFrozen - the receiver has not been frozen
//	ErrInvalidScale - a factor is zero, negative or non-finite
func (g *Graph) Scale(sx, sy, sz, radiusScale float64, reweight bool) (*Graph, error) {
	if !g.IsFrozen() {
		return nil, ErrGraphNotFrozen
	}
	for _, f := range [4]float64{sx, sy, sz, radiusScale} {
		if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
			return nil, fmt.Errorf("%w: got (%g, %g, %g, radius %g)", ErrInvalidScale, sx, sy, sz, radiusScale)
		}
	}

	scaled := g.Clone()
	for id, node := range scaled.nodes {
		node.X *= sx
		node.Y *= sy
		node.Z *= sz
		node.Radius *= radiusScale
		scaled.nodes[id] = node
	}
	if reweight {
		if err := scaled.AssignEuclideanWeights(); err != nil {
			return nil, err
		}
	}
	scaled.Freeze()
	return scaled, nil
}

// Reroot derives a new tree rooted at the given node.
//
// Description:
//
//	Reverses the direction of every edge on the path from the current
//	root down to newRoot, which turns newRoot into the unique in-degree-0
//	node. Edge weights are preserved. The receiver must be frozen and
//	satisfy the rooted-tree invariant; Reroot validates it first and
//	refuses malformed graphs rather than producing a surprising reversal.
//
//	The receiver is never modified; the result is a new frozen graph.
//
// Inputs:
//
//	ctx - Cancels validation on large graphs.
//	newRoot - The node to become the root. Rerooting at the current root
//	returns an equivalent copy.
//
// Errors:
//
//	ErrGraphNotFrozen - the receiver has not been frozen
//	ErrNodeNotFound - newRoot does not exist
//	ErrInvalidGraph - the receiver is not a valid rooted tree
func (g *Graph) Reroot(ctx context.Context, newRoot NodeID) (*Graph, error) {
	if !g.IsFrozen() {
		return nil, ErrGraphNotFrozen
	}
	if _, ok := g.nodes[newRoot]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, newRoot)
	}
	if err := g.Validate(ctx); err != nil {
		return nil, err
	}

	rerooted := g.Clone()

	// Walk newRoot -> old root collecting the parent chain, then reverse
	// each edge along it. The walk terminates because Validate ruled out
	// cycles.
	current := newRoot
	for {
		edge, ok := g.ParentEdge(current)
		if !ok {
			break // reached the old root
		}
		if !rerooted.removeEdge(edge.From, edge.To) {
			return nil, fmt.Errorf("%w: edge %d -> %d vanished during reroot", ErrInvalidGraph, edge.From, edge.To)
		}
		if err := rerooted.AddEdge(edge.To, edge.From, edge.Weight); err != nil {
			return nil, fmt.Errorf("reverse edge %d -> %d: %w", edge.From, edge.To, err)
		}
		current = edge.From
	}

	rerooted.Freeze()
	return rerooted, nil
}

// removeEdge deletes the directed edge between two nodes from a building
// graph. Returns false if no such edge exists.
func (g *Graph) removeEdge(from, to NodeID) bool {
	key := edgeKey{from: from, to: to}
	if _, ok := g.edgeIndex[key]; !ok {
		return false
	}

	removeFrom := func(edges []Edge, from, to NodeID) ([]Edge, float64) {
		for i, e := range edges {
			if e.From == from && e.To == to {
				w := e.Weight
				return append(edges[:i], edges[i+1:]...), w
			}
		}
		return edges, 0
	}

	var weight float64
	g.out[from], weight = removeFrom(g.out[from], from, to)
	g.in[to], _ = removeFrom(g.in[to], from, to)
	delete(g.edgeIndex, key)
	g.edgeCount--
	g.totalWeight -= weight
	return true
}
