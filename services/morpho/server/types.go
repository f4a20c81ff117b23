// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"github.com/AleutianAI/arbor/services/morpho/analysis"
	"github.com/AleutianAI/arbor/services/morpho/batch"
	"github.com/AleutianAI/arbor/services/morpho/graph"
	storage "github.com/AleutianAI/arbor/services/morpho/storage/badger"
)

// Diameter algorithm names accepted by the diameter endpoints.
const (
	// AlgorithmLinear is the tree-native single-pass traversal. Default.
	AlgorithmLinear = "linear"

	// AlgorithmDijkstra is the Dijkstra-per-tip cross-check oracle.
	AlgorithmDijkstra = "dijkstra"
)

// CreateGraphRequest is the request body for POST /v1/morpho/graphs.
type CreateGraphRequest struct {
	// Name labels the graph in listings and results. Required.
	Name string `json:"name" binding:"required"`

	// Points is the sample point table the graph is built from. Required.
	Points []graph.SamplePoint `json:"points" binding:"required,min=1"`
}

// GraphResponse describes one registered graph.
type GraphResponse struct {
	// ID is the registry identifier assigned at creation.
	ID string `json:"id"`

	// Name is the caller-supplied label.
	Name string `json:"name"`

	// NodeCount is the total number of nodes.
	NodeCount int `json:"node_count"`

	// EdgeCount is the total number of edges.
	EdgeCount int `json:"edge_count"`

	// TipCount is the number of out-degree-0 nodes.
	TipCount int `json:"tip_count"`

	// BranchPointCount is the number of nodes with out-degree > 1.
	BranchPointCount int `json:"branch_point_count"`

	// CableLength is the sum of all edge weights.
	CableLength float64 `json:"cable_length"`

	// Fingerprint is the content hash of topology and weights.
	Fingerprint string `json:"fingerprint"`

	// CreatedAtMilli is when the graph was registered, Unix milliseconds.
	CreatedAtMilli int64 `json:"created_at_milli"`
}

// GraphListResponse is the response for GET /v1/morpho/graphs.
type GraphListResponse struct {
	// Graphs lists registered graphs ordered by creation time.
	Graphs []GraphResponse `json:"graphs"`

	// Total is the number of registered graphs.
	Total int `json:"total"`
}

// DiameterRequest is the request body for POST /v1/morpho/graphs/:id/diameter.
// An empty body runs the default algorithm without persistence.
type DiameterRequest struct {
	// Algorithm selects the traversal: "linear" (default) or "dijkstra".
	Algorithm string `json:"algorithm"`

	// Store persists the result to the archive database when true.
	Store bool `json:"store"`
}

// DiameterResponse is the response for POST /v1/morpho/graphs/:id/diameter.
type DiameterResponse struct {
	// GraphID is the analyzed graph.
	GraphID string `json:"graph_id"`

	// Algorithm is the traversal that produced the result.
	Algorithm string `json:"algorithm"`

	// Length is the total edge weight of the winning root-to-tip path.
	Length float64 `json:"length"`

	// Path is the winning path, root first, tip last.
	Path []graph.NodeID `json:"path"`

	// Tip is the terminal node of the winning path.
	Tip graph.NodeID `json:"tip"`

	// Cached is true when the result was served from the result cache.
	Cached bool `json:"cached"`

	// DurationMs is the wall time of this request's analysis step.
	DurationMs int64 `json:"duration_ms"`

	// ResultID identifies the persisted record when Store was requested.
	ResultID string `json:"result_id,omitempty"`
}

// ShortestPathRequest is the request body for
// POST /v1/morpho/graphs/:id/shortest-path. Pointer fields distinguish
// an omitted endpoint from node ID 0.
type ShortestPathRequest struct {
	// From is the start node ID. Required.
	From *graph.NodeID `json:"from" binding:"required"`

	// To is the end node ID. Required.
	To *graph.NodeID `json:"to" binding:"required"`
}

// PathResponse is the response for POST /v1/morpho/graphs/:id/shortest-path.
type PathResponse struct {
	// GraphID is the queried graph.
	GraphID string `json:"graph_id"`

	// Length is the total edge weight along Path.
	Length float64 `json:"length"`

	// Path is the node sequence from the start node to the end node.
	Path []graph.NodeID `json:"path"`
}

// SimplifyRequest is the request body for POST /v1/morpho/graphs/:id/simplify.
// The body is optional.
type SimplifyRequest struct {
	// Name labels the simplified graph. Defaults to "<source>-simplified".
	Name string `json:"name"`
}

// MorphometricsResponse is the response for
// GET /v1/morpho/graphs/:id/morphometrics.
type MorphometricsResponse struct {
	// GraphID is the measured graph.
	GraphID string `json:"graph_id"`

	// Morphometrics carries the scalar summaries.
	Morphometrics *analysis.Morphometrics `json:"morphometrics"`
}

// BatchTaskSpec is one graph in a batch request.
type BatchTaskSpec struct {
	// Name identifies the task in results. Required.
	Name string `json:"name" binding:"required"`

	// Points is the sample point table for this task. Required.
	Points []graph.SamplePoint `json:"points" binding:"required,min=1"`
}

// BatchDiameterRequest is the request body for POST /v1/morpho/batch/diameter.
type BatchDiameterRequest struct {
	// Tasks lists the graphs to analyze. Required.
	Tasks []BatchTaskSpec `json:"tasks" binding:"required,min=1,dive"`

	// Workers overrides the configured worker count when positive.
	Workers int `json:"workers"`

	// Store persists each successful result when true.
	Store bool `json:"store"`
}

// BatchDiameterResponse is the response for POST /v1/morpho/batch/diameter.
type BatchDiameterResponse struct {
	// Results holds the per-task outcomes in task order.
	Results []batch.Result `json:"results"`

	// Summary aggregates the successful results.
	Summary batch.Summary `json:"summary"`

	// DurationMs is the wall time of the whole run.
	DurationMs int64 `json:"duration_ms"`

	// StoredIDs holds one record ID per task when Store was requested,
	// empty string for failed tasks.
	StoredIDs []string `json:"stored_ids,omitempty"`
}

// ResultListResponse is the response for GET /v1/morpho/results.
type ResultListResponse struct {
	// Results are persisted analysis records, newest first.
	Results []*storage.ResultRecord `json:"results"`

	// Total is the number of records returned.
	Total int `json:"total"`
}

// HealthResponse is the response for GET /v1/morpho/health.
type HealthResponse struct {
	// Status is "healthy" or "degraded".
	Status string `json:"status"`

	// Version is the service version.
	Version string `json:"version"`
}

// ReadyResponse is the response for GET /v1/morpho/ready.
type ReadyResponse struct {
	// Ready is true if the service is ready to accept requests.
	Ready bool `json:"ready"`

	// GraphCount is the number of registered graphs.
	GraphCount int `json:"graph_count"`

	// StorageOK is true if the archive database is configured.
	StorageOK bool `json:"storage_ok"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`
}

// graphResponseFrom builds the API view of a registered graph.
func graphResponseFrom(rg *RegisteredGraph) GraphResponse {
	stats := rg.Graph.Stats()
	return GraphResponse{
		ID:               rg.ID,
		Name:             rg.Name,
		NodeCount:        stats.NodeCount,
		EdgeCount:        stats.EdgeCount,
		TipCount:         stats.TipCount,
		BranchPointCount: stats.BranchPointCount,
		CableLength:      stats.CableLength,
		Fingerprint:      rg.Fingerprint,
		CreatedAtMilli:   rg.CreatedAtMilli,
	}
}
