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
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// Default configuration values.
const (
	// DefaultMaxNodes is the default maximum number of nodes a graph can hold.
	DefaultMaxNodes = 1_000_000

	// DefaultMaxEdges is the default maximum number of edges a graph can hold.
	// Trees carry one edge per non-root node, so the edge cap matches the
	// node cap.
	DefaultMaxEdges = 1_000_000
)

// GraphState represents the lifecycle state of the graph.
type GraphState int

const (
	// GraphStateBuilding indicates the graph is accepting AddNode/AddEdge calls.
	GraphStateBuilding GraphState = iota

	// GraphStateReadOnly indicates the graph is frozen and read-only.
	GraphStateReadOnly
)

// String returns the string representation of the GraphState.
func (s GraphState) String() string {
	switch s {
	case GraphStateBuilding:
		return "building"
	case GraphStateReadOnly:
		return "readonly"
	default:
		return "unknown"
	}
}

// NodeID identifies a node within a graph. IDs establish identity: two nodes
// at the same coordinates are distinct entities unless they share an ID.
type NodeID int64

// NodeType tags a node with the compartment it was sampled from.
type NodeType int

const (
	// NodeUndefined indicates an untyped sample point.
	NodeUndefined NodeType = iota

	// NodeSoma indicates a cell body sample.
	NodeSoma

	// NodeAxon indicates an axonal sample.
	NodeAxon

	// NodeBasalDendrite indicates a basal dendrite sample.
	NodeBasalDendrite

	// NodeApicalDendrite indicates an apical dendrite sample.
	NodeApicalDendrite

	// NodeCustom indicates an application-defined compartment.
	NodeCustom
)

// nodeTypeNames maps NodeType values to their string representations.
var nodeTypeNames = map[NodeType]string{
	NodeUndefined:      "undefined",
	NodeSoma:           "soma",
	NodeAxon:           "axon",
	NodeBasalDendrite:  "basal_dendrite",
	NodeApicalDendrite: "apical_dendrite",
	NodeCustom:         "custom",
}

// String returns the string representation of the NodeType.
func (t NodeType) String() string {
	if name, ok := nodeTypeNames[t]; ok {
		return name
	}
	return "undefined"
}

// Node represents a sample point in 3D space.
//
// Nodes are stored by value; the graph owns its copies and accessors hand
// out further copies, so callers can never alias graph internals.
type Node struct {
	// ID is the unique identifier within the graph.
	ID NodeID

	// Type tags the compartment the sample belongs to.
	Type NodeType

	// X, Y, Z are spatial coordinates in calibrated units.
	X, Y, Z float64

	// Radius is the sample radius at this point, in the same units.
	Radius float64
}

// DistanceTo returns the Euclidean distance between two nodes' coordinates.
func (n Node) DistanceTo(o Node) float64 {
	dx := n.X - o.X
	dy := n.Y - o.Y
	dz := n.Z - o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// valid reports whether the node's spatial fields are usable: finite
// coordinates and a non-negative finite radius.
func (n Node) valid() bool {
	for _, v := range [4]float64{n.X, n.Y, n.Z, n.Radius} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return n.Radius >= 0
}

// Edge represents a directed, weighted connection between two nodes.
//
// The weight is a non-negative distance, typically the Euclidean distance
// between the endpoints when the graph was built from sample points.
type Edge struct {
	// From is the ID of the source node (the parent in a rooted tree).
	From NodeID

	// To is the ID of the target node (the child in a rooted tree).
	To NodeID

	// Weight is the non-negative length of this connection.
	Weight float64
}

// edgeKey identifies a directed node pair for duplicate detection.
type edgeKey struct {
	from, to NodeID
}

// GraphOptions configures Graph behavior and limits.
type GraphOptions struct {
	// MaxNodes is the maximum number of nodes the graph can hold.
	// Default: 1,000,000
	MaxNodes int

	// MaxEdges is the maximum number of edges the graph can hold.
	// Default: 1,000,000
	MaxEdges int
}

// DefaultGraphOptions returns sensible defaults for graph configuration.
func DefaultGraphOptions() GraphOptions {
	return GraphOptions{
		MaxNodes: DefaultMaxNodes,
		MaxEdges: DefaultMaxEdges,
	}
}

// GraphOption is a functional option for configuring Graph.
type GraphOption func(*GraphOptions)

// WithMaxNodes sets the maximum number of nodes the graph can hold.
func WithMaxNodes(n int) GraphOption {
	return func(o *GraphOptions) {
		o.MaxNodes = n
	}
}

// WithMaxEdges sets the maximum number of edges the graph can hold.
func WithMaxEdges(n int) GraphOption {
	return func(o *GraphOptions) {
		o.MaxEdges = n
	}
}

// Graph represents a weighted directed morphology graph.
//
// Thread Safety:
//
//	Graph is NOT safe for concurrent use during building. It is designed
//	for single-writer access during build, then read-only after Freeze().
//	After Freeze() is called, the graph can be safely read from multiple
//	goroutines, but no further modifications are allowed.
//
// Enumeration Order:
//
//	Nodes are enumerated in insertion order, and so are the derived Roots,
//	Tips and BranchPoints slices computed by Freeze(). Analysis operations
//	that break ties between equal-length paths do so by this order, which
//	makes their results reproducible across calls and across processes.
//
// Lifecycle:
//
//  1. Create with New() or NewFromPoints(points)
//  2. Build with AddNode() and AddEdge() calls
//  3. Call Freeze() to finalize enumeration order and degree indexes
//  4. Query with Root(), Tips(), analysis operations, etc.
type Graph struct {
	// nodes maps node ID to the owned node copy.
	nodes map[NodeID]Node

	// order holds node IDs in insertion order. This is the enumeration
	// order for Nodes(), Tips() and BranchPoints().
	order []NodeID

	// out holds outgoing edges per node, in insertion order.
	out map[NodeID][]Edge

	// in holds incoming edges per node, in insertion order.
	in map[NodeID][]Edge

	// edgeIndex detects duplicate directed pairs in O(1).
	edgeIndex map[edgeKey]struct{}

	// edgeCount is the total number of edges.
	edgeCount int

	// totalWeight accumulates the sum of all edge weights.
	totalWeight float64

	// roots, tips and branchPoints are computed by Freeze(), each in node
	// insertion order.
	roots        []NodeID
	tips         []NodeID
	branchPoints []NodeID

	// state is the current lifecycle state.
	state GraphState

	// options contains configuration.
	options GraphOptions

	// BuiltAtMilli is the Unix timestamp in milliseconds when Freeze() was
	// called. Zero if the graph has not been frozen.
	BuiltAtMilli int64
}

// New creates a new empty graph.
//
// Description:
//
//	Creates a graph in the Building state, ready to accept AddNode and
//	AddEdge calls. The graph must be frozen with Freeze() before querying
//	roots, tips or running analysis.
//
// Example:
//
//	// Default options
//	g := New()
//
//	// Custom limits
//	g := New(WithMaxNodes(100_000), WithMaxEdges(100_000))
func New(opts ...GraphOption) *Graph {
	options := DefaultGraphOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Graph{
		nodes:     make(map[NodeID]Node),
		order:     make([]NodeID, 0),
		out:       make(map[NodeID][]Edge),
		in:        make(map[NodeID][]Edge),
		edgeIndex: make(map[edgeKey]struct{}),
		state:     GraphStateBuilding,
		options:   options,
	}
}

// State returns the current lifecycle state of the graph.
func (g *Graph) State() GraphState {
	return g.state
}

// IsFrozen returns true if the graph is in read-only mode.
func (g *Graph) IsFrozen() bool {
	return g.state == GraphStateReadOnly
}

// Freeze transitions the graph to read-only mode.
//
// Description:
//
//	After calling Freeze(), AddNode and AddEdge will return ErrGraphFrozen.
//	This operation is irreversible. Freeze computes the degree-class
//	indexes (root candidates, tips, branch points) in node insertion order
//	and sets the BuiltAtMilli timestamp.
//
//	Freeze does NOT verify the rooted-tree invariant; call Validate for
//	that. A malformed graph can therefore be frozen and inspected, which
//	is what the invariant diagnostics rely on.
//
// Thread Safety:
//
//	After Freeze() returns, the graph can be safely read from multiple
//	goroutines concurrently.
func (g *Graph) Freeze() {
	if g.state == GraphStateReadOnly {
		return
	}

	g.roots = g.roots[:0]
	g.tips = g.tips[:0]
	g.branchPoints = g.branchPoints[:0]
	for _, id := range g.order {
		if len(g.in[id]) == 0 {
			g.roots = append(g.roots, id)
		}
		switch out := len(g.out[id]); {
		case out == 0:
			g.tips = append(g.tips, id)
		case out > 1:
			g.branchPoints = append(g.branchPoints, id)
		}
	}

	g.state = GraphStateReadOnly
	g.BuiltAtMilli = time.Now().UnixMilli()
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	return g.edgeCount
}

// AddNode adds a sample point as a node in the graph.
//
// Description:
//
//	Copies the given node into the graph. Insertion order is remembered
//	and becomes the enumeration (and tie-break) order after Freeze().
//
// Inputs:
//
//	node - The node to add. Coordinates must be finite, radius non-negative.
//
// Outputs:
//
//	error - Non-nil if the graph is frozen, at capacity, or the node is
//	invalid or a duplicate.
//
// Errors:
//
//	ErrGraphFrozen - Graph has been frozen
//	ErrInvalidNode - Non-finite coordinate or negative radius
//	ErrDuplicateNode - Node with same ID already exists
//	ErrMaxNodesExceeded - Graph is at node capacity
func (g *Graph) AddNode(node Node) error {
	if g.state == GraphStateReadOnly {
		return ErrGraphFrozen
	}

	if !node.valid() {
		return fmt.Errorf("%w: node %d has non-finite coordinates or negative radius", ErrInvalidNode, node.ID)
	}

	if len(g.nodes) >= g.options.MaxNodes {
		return ErrMaxNodesExceeded
	}

	if _, exists := g.nodes[node.ID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateNode, node.ID)
	}

	g.nodes[node.ID] = node
	g.order = append(g.order, node.ID)
	return nil
}

// Node retrieves a node by its ID.
//
// Description:
//
//	Performs O(1) lookup in the node map and returns a copy.
//
// Outputs:
//
//	Node - A copy of the node if found, zero value otherwise.
//	bool - True if the node was found.
func (g *Graph) Node(id NodeID) (Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// AddEdge creates a directed weighted edge between two existing nodes.
//
// Description:
//
//	Creates an edge from the source node to the target node. Both nodes
//	must already exist. At most one edge is allowed per directed pair;
//	parallel edges have no meaning for distance graphs.
//
//	The builder intentionally does NOT reject edges that violate the
//	rooted-tree invariant (second parents, back edges). Those graphs are
//	diagnosed by Validate after freezing.
//
// Inputs:
//
//	from - ID of the source node.
//	to - ID of the target node.
//	weight - Non-negative finite edge length.
//
// Errors:
//
//	ErrGraphFrozen - Graph has been frozen
//	ErrNodeNotFound - Source or target node doesn't exist
//	ErrNegativeWeight - Weight is negative, NaN or infinite
//	ErrDuplicateEdge - The directed pair is already connected
//	ErrMaxEdgesExceeded - Graph is at edge capacity
func (g *Graph) AddEdge(from, to NodeID, weight float64) error {
	if g.state == GraphStateReadOnly {
		return ErrGraphFrozen
	}

	if g.edgeCount >= g.options.MaxEdges {
		return ErrMaxEdgesExceeded
	}

	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight < 0 {
		return fmt.Errorf("%w: %f", ErrNegativeWeight, weight)
	}

	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("%w: source %d", ErrNodeNotFound, from)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("%w: target %d", ErrNodeNotFound, to)
	}

	key := edgeKey{from: from, to: to}
	if _, dup := g.edgeIndex[key]; dup {
		return fmt.Errorf("%w: %d -> %d", ErrDuplicateEdge, from, to)
	}

	edge := Edge{From: from, To: to, Weight: weight}
	g.out[from] = append(g.out[from], edge)
	g.in[to] = append(g.in[to], edge)
	g.edgeIndex[key] = struct{}{}
	g.edgeCount++
	g.totalWeight += weight
	return nil
}

// Nodes returns the node IDs in insertion order.
//
// The returned slice is a copy; callers may modify it freely.
func (g *Graph) Nodes() []NodeID {
	ids := make([]NodeID, len(g.order))
	copy(ids, g.order)
	return ids
}

// Edges returns all edges in node insertion order (outgoing edges of the
// first-inserted node first). The returned slice is a copy.
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0, g.edgeCount)
	for _, id := range g.order {
		edges = append(edges, g.out[id]...)
	}
	return edges
}

// OutEdges returns a copy of the outgoing edges of the given node, in
// insertion order. Returns nil if the node has no outgoing edges.
func (g *Graph) OutEdges(id NodeID) []Edge {
	src := g.out[id]
	if len(src) == 0 {
		return nil
	}
	edges := make([]Edge, len(src))
	copy(edges, src)
	return edges
}

// InEdges returns a copy of the incoming edges of the given node, in
// insertion order. Returns nil if the node has no incoming edges.
func (g *Graph) InEdges(id NodeID) []Edge {
	src := g.in[id]
	if len(src) == 0 {
		return nil
	}
	edges := make([]Edge, len(src))
	copy(edges, src)
	return edges
}

// OutDegree returns the number of outgoing edges of the given node.
func (g *Graph) OutDegree(id NodeID) int {
	return len(g.out[id])
}

// InDegree returns the number of incoming edges of the given node.
func (g *Graph) InDegree(id NodeID) int {
	return len(g.in[id])
}

// Children returns the target IDs of the node's outgoing edges, in
// insertion order.
func (g *Graph) Children(id NodeID) []NodeID {
	src := g.out[id]
	if len(src) == 0 {
		return nil
	}
	children := make([]NodeID, len(src))
	for i, e := range src {
		children[i] = e.To
	}
	return children
}

// Parent returns the unique parent of the given node.
//
// The second return is false for nodes without exactly one incoming edge
// (the root, unknown IDs, or multi-parent nodes in malformed graphs).
func (g *Graph) Parent(id NodeID) (NodeID, bool) {
	in := g.in[id]
	if len(in) != 1 {
		return 0, false
	}
	return in[0].From, true
}

// ParentEdge returns the unique incoming edge of the given node, with the
// same contract as Parent.
func (g *Graph) ParentEdge(id NodeID) (Edge, bool) {
	in := g.in[id]
	if len(in) != 1 {
		return Edge{}, false
	}
	return in[0], true
}

// Root returns the unique root (the single node with in-degree 0).
//
// Description:
//
//	The root is determined once at Freeze() time and is immutable for the
//	graph's lifetime. If the graph has no in-degree-0 node, or more than
//	one, the rooted-tree invariant is broken and an error wrapping
//	ErrInvalidGraph is returned. No candidate is ever picked silently.
//
// Errors:
//
//	ErrGraphNotFrozen - Freeze() has not been called
//	ErrEmptyGraph - the graph has no nodes
//	ErrInvalidGraph - zero or multiple in-degree-0 nodes
func (g *Graph) Root() (NodeID, error) {
	if g.state != GraphStateReadOnly {
		return 0, ErrGraphNotFrozen
	}
	if len(g.nodes) == 0 {
		return 0, ErrEmptyGraph
	}
	switch len(g.roots) {
	case 1:
		return g.roots[0], nil
	case 0:
		return 0, fmt.Errorf("%w: graph has no root", ErrInvalidGraph)
	default:
		return 0, fmt.Errorf("%w: graph has %d roots", ErrInvalidGraph, len(g.roots))
	}
}

// Roots returns all in-degree-0 nodes in insertion order. Valid only after
// Freeze(); returns nil before. Useful for diagnosing invalid graphs.
func (g *Graph) Roots() []NodeID {
	return copyIDs(g.roots)
}

// Tips returns all out-degree-0 nodes (terminals) in insertion order.
//
// A single-node graph reports its root as the only tip. Valid only after
// Freeze(); returns nil before.
func (g *Graph) Tips() []NodeID {
	return copyIDs(g.tips)
}

// BranchPoints returns all nodes with out-degree greater than one, in
// insertion order. Valid only after Freeze(); returns nil before.
func (g *Graph) BranchPoints() []NodeID {
	return copyIDs(g.branchPoints)
}

func copyIDs(src []NodeID) []NodeID {
	if len(src) == 0 {
		return nil
	}
	ids := make([]NodeID, len(src))
	copy(ids, src)
	return ids
}

// SumEdgeWeights returns the total of all edge weights: the cable length
// of the traced structure.
func (g *Graph) SumEdgeWeights() float64 {
	return g.totalWeight
}

// GraphStats summarizes graph contents for logging and API responses.
type GraphStats struct {
	// NodeCount is the total number of nodes.
	NodeCount int `json:"node_count"`

	// EdgeCount is the total number of edges.
	EdgeCount int `json:"edge_count"`

	// RootCount is the number of in-degree-0 nodes (1 for a valid tree).
	RootCount int `json:"root_count"`

	// TipCount is the number of out-degree-0 nodes.
	TipCount int `json:"tip_count"`

	// BranchPointCount is the number of nodes with out-degree > 1.
	BranchPointCount int `json:"branch_point_count"`

	// CableLength is the sum of all edge weights.
	CableLength float64 `json:"cable_length"`

	// MaxNodes is the configured maximum node capacity.
	MaxNodes int `json:"max_nodes"`

	// MaxEdges is the configured maximum edge capacity.
	MaxEdges int `json:"max_edges"`

	// State is the current graph state.
	State string `json:"state"`

	// BuiltAtMilli is when Freeze() was called (0 if not frozen).
	BuiltAtMilli int64 `json:"built_at_milli"`
}

// Stats returns statistics about the graph.
//
// Degree-class counts are only populated on frozen graphs, since Freeze()
// computes the underlying indexes.
func (g *Graph) Stats() GraphStats {
	return GraphStats{
		NodeCount:        len(g.nodes),
		EdgeCount:        g.edgeCount,
		RootCount:        len(g.roots),
		TipCount:         len(g.tips),
		BranchPointCount: len(g.branchPoints),
		CableLength:      g.totalWeight,
		MaxNodes:         g.options.MaxNodes,
		MaxEdges:         g.options.MaxEdges,
		State:            g.state.String(),
		BuiltAtMilli:     g.BuiltAtMilli,
	}
}

// Clone creates a deep copy of the graph.
//
// Description:
//
//	Creates an independent copy that can be modified without affecting the
//	original. Used by the geometry operations (Scale, Reroot) to derive
//	new graphs from frozen ones.
//
// Outputs:
//
//	*Graph - A deep copy in GraphStateBuilding state so it can be modified.
//	         Node insertion order is preserved, so enumeration order (and
//	         therefore tie-breaking) carries over once the clone is frozen.
func (g *Graph) Clone() *Graph {
	clone := &Graph{
		nodes:     make(map[NodeID]Node, len(g.nodes)),
		order:     make([]NodeID, len(g.order)),
		out:       make(map[NodeID][]Edge, len(g.out)),
		in:        make(map[NodeID][]Edge, len(g.in)),
		edgeIndex: make(map[edgeKey]struct{}, len(g.edgeIndex)),
		edgeCount: g.edgeCount,
		state:     GraphStateBuilding,
		options:   g.options,
	}
	copy(clone.order, g.order)
	for id, node := range g.nodes {
		clone.nodes[id] = node
	}
	for id, edges := range g.out {
		clone.out[id] = append([]Edge(nil), edges...)
	}
	for id, edges := range g.in {
		clone.in[id] = append([]Edge(nil), edges...)
	}
	for key := range g.edgeIndex {
		clone.edgeIndex[key] = struct{}{}
	}
	clone.totalWeight = g.totalWeight
	return clone
}

// Fingerprint returns a stable hex digest of the graph's topology, node
// geometry and edge weights.
//
// Description:
//
//	Two graphs built from the same nodes (in the same insertion order) and
//	the same edges hash identically, regardless of freeze timestamps. The
//	digest keys result caches and persisted analysis records.
//
// Complexity: O(V + E).
func (g *Graph) Fingerprint() string {
	h := sha256.New()
	var buf [8]byte

	writeU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	writeF64 := func(v float64) {
		writeU64(math.Float64bits(v))
	}

	writeU64(uint64(len(g.order)))
	for _, id := range g.order {
		node := g.nodes[id]
		writeU64(uint64(node.ID))
		writeU64(uint64(node.Type))
		writeF64(node.X)
		writeF64(node.Y)
		writeF64(node.Z)
		writeF64(node.Radius)
	}

	writeU64(uint64(g.edgeCount))
	for _, id := range g.order {
		for _, e := range g.out[id] {
			writeU64(uint64(e.From))
			writeU64(uint64(e.To))
			writeF64(e.Weight)
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}
