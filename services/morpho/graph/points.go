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

import "fmt"

// RootParentID marks a sample point with no parent (the root) in a point
// table.
const RootParentID NodeID = -1

// SamplePoint is one row of an in-memory point table: the externally
// supplied morphology representation graphs are constructed from.
//
// ParentID links the point to its parent sample; RootParentID (-1) marks
// the root. The table is order-sensitive: point order becomes the graph's
// node insertion order, which in turn fixes tip enumeration and tie-break
// order.
type SamplePoint struct {
	// ID is the sample identifier, unique within the table.
	ID NodeID `json:"id"`

	// ParentID is the identifier of the parent sample, or -1 for the root.
	ParentID NodeID `json:"parent_id"`

	// Type tags the compartment the sample belongs to.
	Type NodeType `json:"type"`

	// X, Y, Z are spatial coordinates in calibrated units.
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`

	// Radius is the sample radius, in the same units.
	Radius float64 `json:"radius"`
}

// NewFromPoints builds a frozen graph from a point table.
//
// Description:
//
//	Adds one node per point (in table order), then one parent-to-child
//	edge per non-root point, weighted by the Euclidean distance between
//	the two samples. The result is frozen and ready for queries.
//
//	NewFromPoints does NOT verify the rooted-tree invariant: a table with
//	several parentless points, or with parent links forming a cycle among
//	themselves, still builds (and freezes) so the caller gets the precise
//	diagnostic from Validate or from an analysis entry point, instead of
//	a half-built graph.
//
// Inputs:
//
//	points - The point table. Order is preserved as insertion order.
//	opts - Optional graph configuration (capacity limits).
//
// Outputs:
//
//	*Graph - The frozen graph.
//	error - Non-nil on duplicate IDs, parent references to missing
//	points, non-finite coordinates, or capacity overflow.
//
// Complexity: O(N) over the table.
func NewFromPoints(points []SamplePoint, opts ...GraphOption) (*Graph, error) {
	g := New(opts...)

	for _, p := range points {
		node := Node{
			ID:     p.ID,
			Type:   p.Type,
			X:      p.X,
			Y:      p.Y,
			Z:      p.Z,
			Radius: p.Radius,
		}
		if err := g.AddNode(node); err != nil {
			return nil, fmt.Errorf("add point %d: %w", p.ID, err)
		}
	}

	for _, p := range points {
		if p.ParentID == RootParentID {
			continue
		}
		parent, ok := g.nodes[p.ParentID]
		if !ok {
			return nil, fmt.Errorf("connect point %d: parent %d: %w", p.ID, p.ParentID, ErrNodeNotFound)
		}
		child := g.nodes[p.ID]
		if err := g.AddEdge(p.ParentID, p.ID, parent.DistanceTo(child)); err != nil {
			return nil, fmt.Errorf("connect point %d: %w", p.ID, err)
		}
	}

	g.Freeze()
	return g, nil
}

// Points exports the graph as a point table.
//
// Description:
//
//	Produces one SamplePoint per node in insertion order, with ParentID
//	resolved through the node's unique incoming edge. Nodes without
//	exactly one parent (the root, or malformed multi-parent nodes) are
//	exported with ParentID -1, so the export is only faithful for graphs
//	that satisfy the rooted-tree invariant.
//
// Outputs:
//
//	[]SamplePoint - The point table, one row per node.
func (g *Graph) Points() []SamplePoint {
	points := make([]SamplePoint, 0, len(g.order))
	for _, id := range g.order {
		node := g.nodes[id]
		parentID := RootParentID
		if parent, ok := g.Parent(id); ok {
			parentID = parent
		}
		points = append(points, SamplePoint{
			ID:       node.ID,
			ParentID: parentID,
			Type:     node.Type,
			X:        node.X,
			Y:        node.Y,
			Z:        node.Z,
			Radius:   node.Radius,
		})
	}
	return points
}
