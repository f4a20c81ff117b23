// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides the weighted directed graph model for traced
// morphologies.
//
// The graph package contains types for representing a traced structure as a
// directed graph where nodes are sample points in 3D space and edges carry
// non-negative weights (typically the Euclidean distance between the
// endpoints). The intended shape is a rooted tree (one root of in-degree 0,
// every other node with in-degree 1, acyclic and connected), but the builder
// deliberately accepts arbitrary digraphs so that malformed inputs can be
// constructed, frozen, and then rejected by Validate with a diagnosable
// error instead of failing half-way through construction.
//
// # Ownership Model
//
// The graph owns its nodes and edges:
//   - AddNode copies the provided Node value into the graph
//   - Accessors return copies or read-only views, never interior pointers
//   - Callers keep no aliases into graph internals
//
// # Thread Safety
//
// Graph is NOT safe for concurrent use during building. It is designed for:
//   - Single-writer access during the build phase (AddNode, AddEdge calls)
//   - Read-only access after Freeze() is called
//
// After Freeze(), the graph can be safely read from multiple goroutines.
//
// # Lifecycle
//
// A typical graph lifecycle:
//  1. Create with New() or NewFromPoints(points)
//  2. Build with AddNode() and AddEdge() calls
//  3. Call Freeze() to finalize enumeration order and degree indexes
//  4. Query with Root(), Tips(), analysis operations, etc.
package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph operations.
var (
	// ErrInvalidGraph is returned (wrapped, with detail) whenever the
	// rooted-tree invariant does not hold: zero or multiple roots, a node
	// with more than one parent, a cycle, or a disconnected component.
	// Callers match with errors.Is(err, ErrInvalidGraph). The invariant is
	// never repaired silently; in particular no arbitrary node is ever
	// promoted to root when several candidates exist.
	ErrInvalidGraph = errors.New("invalid graph")

	// ErrGraphFrozen is returned when attempting to modify a frozen graph.
	// Once Freeze() is called, the graph becomes read-only and no further
	// nodes or edges can be added.
	ErrGraphFrozen = errors.New("graph is frozen and cannot be modified")

	// ErrGraphNotFrozen is returned by query and analysis entry points that
	// require a finalized graph. Freeze() fixes the enumeration order that
	// tie-breaking depends on, so reads before Freeze() are refused.
	ErrGraphNotFrozen = errors.New("graph is not frozen")

	// ErrNodeNotFound is returned when an edge or query references a
	// non-existent node. Both endpoints must exist before an edge can be
	// created.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNode is returned when adding a node with an ID that
	// already exists in the graph.
	ErrDuplicateNode = errors.New("duplicate node ID")

	// ErrDuplicateEdge is returned when adding an edge between a pair of
	// nodes that is already connected in that direction.
	ErrDuplicateEdge = errors.New("duplicate edge")

	// ErrNegativeWeight is returned when an edge weight is negative or not
	// a finite number. Weights are distances; they cannot be negative.
	ErrNegativeWeight = errors.New("edge weight must be a non-negative finite number")

	// ErrMaxNodesExceeded is returned when the graph has reached its
	// configured maximum node capacity.
	ErrMaxNodesExceeded = errors.New("maximum node count exceeded")

	// ErrMaxEdgesExceeded is returned when the graph has reached its
	// configured maximum edge capacity.
	ErrMaxEdgesExceeded = errors.New("maximum edge count exceeded")

	// ErrInvalidNode is returned when a node fails validation, e.g. a
	// non-finite coordinate or a negative radius.
	ErrInvalidNode = errors.New("invalid node")

	// ErrInvalidScale is returned when a scale factor is zero, negative
	// or non-finite.
	ErrInvalidScale = errors.New("scale factors must be positive finite numbers")

	// ErrEmptyGraph is returned by queries that need at least one node.
	// An empty graph has no root, so this error also matches
	// errors.Is(err, ErrInvalidGraph).
	ErrEmptyGraph = fmt.Errorf("%w: graph has no nodes", ErrInvalidGraph)
)
