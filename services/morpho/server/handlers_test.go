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
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AleutianAI/arbor/services/morpho/cache"
	"github.com/AleutianAI/arbor/services/morpho/graph"
	storage "github.com/AleutianAI/arbor/services/morpho/storage/badger"
	"github.com/gin-gonic/gin"
)

func init() {
	// Set Gin to test mode to reduce noise
	gin.SetMode(gin.TestMode)
}

func setupTestRouter(svc *Service) *gin.Engine {
	router := gin.New()
	handlers := NewHandlers(svc)
	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)
	return router
}

// testPoints returns a small Y-shaped tree:
//
//	0 --3--> 1 --4--> 2
//	          \--5--> 3
//
// Diameter 8.0 along [0 1 3].
func testPoints() []graph.SamplePoint {
	return []graph.SamplePoint{
		{ID: 0, ParentID: graph.RootParentID},
		{ID: 1, ParentID: 0, X: 3},
		{ID: 2, ParentID: 1, X: 3, Y: 4},
		{ID: 3, ParentID: 1, X: 7, Y: 3},
	}
}

// chainPoints returns a straight unit-spaced chain 0->1->2->3.
func chainPoints() []graph.SamplePoint {
	return []graph.SamplePoint{
		{ID: 0, ParentID: graph.RootParentID},
		{ID: 1, ParentID: 0, X: 1},
		{ID: 2, ParentID: 1, X: 2},
		{ID: 3, ParentID: 2, X: 3},
	}
}

func createTestGraph(t *testing.T, router *gin.Engine, name string, points []graph.SamplePoint) string {
	t.Helper()

	body, err := json.Marshal(CreateGraphRequest{Name: name, Points: points})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req, _ := http.NewRequest("POST", "/v1/morpho/graphs", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("create graph: expected status %d, got %d: %s",
			http.StatusCreated, w.Code, w.Body.String())
	}

	var resp GraphResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return resp.ID
}

func setupStoreBackedRouter(t *testing.T) *gin.Engine {
	t.Helper()

	db, err := storage.Open(storage.InMemoryConfig())
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewResultStore(db)
	if err != nil {
		t.Fatalf("create result store: %v", err)
	}

	svc := NewService(DefaultServiceConfig()).WithStore(store)
	return setupTestRouter(svc)
}

func TestHandlers_HandleHealth(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)

	req, _ := http.NewRequest("GET", "/v1/morpho/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.Status != "healthy" {
		t.Errorf("expected status 'healthy', got %q", resp.Status)
	}

	if resp.Version != ServiceVersion {
		t.Errorf("expected version %q, got %q", ServiceVersion, resp.Version)
	}
}

func TestHandlers_HandleReady(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)

	req, _ := http.NewRequest("GET", "/v1/morpho/ready", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp ReadyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if !resp.Ready {
		t.Error("expected Ready=true")
	}

	if resp.GraphCount != 0 {
		t.Errorf("expected 0 graphs, got %d", resp.GraphCount)
	}

	if resp.StorageOK {
		t.Error("expected StorageOK=false without a store")
	}
}

func TestHandlers_HandleCreateGraph(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)

	body, _ := json.Marshal(CreateGraphRequest{Name: "y-tree", Points: testPoints()})
	req, _ := http.NewRequest("POST", "/v1/morpho/graphs", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	var resp GraphResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.ID == "" {
		t.Error("expected non-empty graph ID")
	}
	if resp.Name != "y-tree" {
		t.Errorf("expected name 'y-tree', got %q", resp.Name)
	}
	if resp.NodeCount != 4 {
		t.Errorf("expected 4 nodes, got %d", resp.NodeCount)
	}
	if resp.EdgeCount != 3 {
		t.Errorf("expected 3 edges, got %d", resp.EdgeCount)
	}
	if resp.TipCount != 2 {
		t.Errorf("expected 2 tips, got %d", resp.TipCount)
	}
	if resp.BranchPointCount != 1 {
		t.Errorf("expected 1 branch point, got %d", resp.BranchPointCount)
	}
	if resp.CableLength != 12.0 {
		t.Errorf("expected cable length 12.0, got %v", resp.CableLength)
	}
	if resp.Fingerprint == "" {
		t.Error("expected non-empty fingerprint")
	}
}

func TestHandlers_HandleCreateGraph_InvalidRequest(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "empty body",
			body:       "{}",
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "missing points",
			body:       `{"name": "empty"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "empty points",
			body:       `{"name": "empty", "points": []}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "malformed json",
			body:       `{"name": `,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("POST", "/v1/morpho/graphs",
				bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}

			var errResp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}

			if errResp.Code != tt.wantCode {
				t.Errorf("expected code %q, got %q", tt.wantCode, errResp.Code)
			}
		})
	}
}

func TestHandlers_HandleCreateGraph_InvalidPoints(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)

	tests := []struct {
		name     string
		points   []graph.SamplePoint
		wantCode string
	}{
		{
			name: "duplicate ids",
			points: []graph.SamplePoint{
				{ID: 0, ParentID: graph.RootParentID},
				{ID: 0, ParentID: 0, X: 1},
			},
			wantCode: "DUPLICATE_NODE",
		},
		{
			name: "unknown parent",
			points: []graph.SamplePoint{
				{ID: 0, ParentID: graph.RootParentID},
				{ID: 1, ParentID: 99, X: 1},
			},
			wantCode: "UNKNOWN_PARENT",
		},
		{
			name: "two roots",
			points: []graph.SamplePoint{
				{ID: 0, ParentID: graph.RootParentID},
				{ID: 1, ParentID: graph.RootParentID, X: 1},
			},
			wantCode: "INVALID_GRAPH",
		},
		{
			name: "no root",
			points: []graph.SamplePoint{
				{ID: 0, ParentID: 1},
				{ID: 1, ParentID: 0, X: 1},
			},
			wantCode: "INVALID_GRAPH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(CreateGraphRequest{Name: tt.name, Points: tt.points})
			req, _ := http.NewRequest("POST", "/v1/morpho/graphs", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
			}

			var errResp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}

			if errResp.Code != tt.wantCode {
				t.Errorf("expected code %q, got %q", tt.wantCode, errResp.Code)
			}
		})
	}
}

func TestHandlers_HandleGetGraph(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)
	graphID := createTestGraph(t, router, "y-tree", testPoints())

	req, _ := http.NewRequest("GET", "/v1/morpho/graphs/"+graphID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp GraphResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.ID != graphID {
		t.Errorf("expected ID %q, got %q", graphID, resp.ID)
	}
}

func TestHandlers_HandleGetGraph_NotFound(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)

	req, _ := http.NewRequest("GET", "/v1/morpho/graphs/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if errResp.Code != "GRAPH_NOT_FOUND" {
		t.Errorf("expected code 'GRAPH_NOT_FOUND', got %q", errResp.Code)
	}
}

func TestHandlers_HandleListGraphs(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)
	createTestGraph(t, router, "first", testPoints())
	createTestGraph(t, router, "second", chainPoints())

	req, _ := http.NewRequest("GET", "/v1/morpho/graphs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp GraphListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.Total != 2 {
		t.Errorf("expected 2 graphs, got %d", resp.Total)
	}
	if len(resp.Graphs) != 2 {
		t.Fatalf("expected 2 graph entries, got %d", len(resp.Graphs))
	}
}

func TestHandlers_HandleDeleteGraph(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)
	graphID := createTestGraph(t, router, "doomed", testPoints())

	req, _ := http.NewRequest("DELETE", "/v1/morpho/graphs/"+graphID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, w.Code)
	}

	// The graph is gone
	req, _ = http.NewRequest("GET", "/v1/morpho/graphs/"+graphID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d after delete, got %d", http.StatusNotFound, w.Code)
	}
}

func TestHandlers_HandleDeleteGraph_NotFound(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)

	req, _ := http.NewRequest("DELETE", "/v1/morpho/graphs/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestHandlers_HandleDiameter(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)
	graphID := createTestGraph(t, router, "y-tree", testPoints())

	// Empty body runs the default algorithm
	req, _ := http.NewRequest("POST", "/v1/morpho/graphs/"+graphID+"/diameter", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp DiameterResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.Algorithm != AlgorithmLinear {
		t.Errorf("expected algorithm %q, got %q", AlgorithmLinear, resp.Algorithm)
	}
	if resp.Length != 8.0 {
		t.Errorf("expected length 8.0, got %v", resp.Length)
	}
	wantPath := []graph.NodeID{0, 1, 3}
	if len(resp.Path) != len(wantPath) {
		t.Fatalf("expected path %v, got %v", wantPath, resp.Path)
	}
	for i, id := range wantPath {
		if resp.Path[i] != id {
			t.Errorf("path[%d]: expected %d, got %d", i, id, resp.Path[i])
		}
	}
	if resp.Tip != 3 {
		t.Errorf("expected tip 3, got %d", resp.Tip)
	}
	if resp.Cached {
		t.Error("expected Cached=false without a cache")
	}
	if resp.ResultID != "" {
		t.Errorf("expected empty result ID, got %q", resp.ResultID)
	}
}

func TestHandlers_HandleDiameter_Dijkstra(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)
	graphID := createTestGraph(t, router, "y-tree", testPoints())

	body := `{"algorithm": "dijkstra"}`
	req, _ := http.NewRequest("POST", "/v1/morpho/graphs/"+graphID+"/diameter",
		bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp DiameterResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.Algorithm != AlgorithmDijkstra {
		t.Errorf("expected algorithm %q, got %q", AlgorithmDijkstra, resp.Algorithm)
	}
	if resp.Length != 8.0 {
		t.Errorf("expected length 8.0, got %v", resp.Length)
	}
}

func TestHandlers_HandleDiameter_SingleNode(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)
	graphID := createTestGraph(t, router, "soma-only", []graph.SamplePoint{
		{ID: 7, ParentID: graph.RootParentID},
	})

	req, _ := http.NewRequest("POST", "/v1/morpho/graphs/"+graphID+"/diameter", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp DiameterResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.Length != 0.0 {
		t.Errorf("expected length 0.0, got %v", resp.Length)
	}
	if len(resp.Path) != 1 || resp.Path[0] != 7 {
		t.Errorf("expected path [7], got %v", resp.Path)
	}
	if resp.Tip != 7 {
		t.Errorf("expected tip 7, got %d", resp.Tip)
	}
}

func TestHandlers_HandleDiameter_Cached(t *testing.T) {
	svc := NewService(DefaultServiceConfig()).WithCache(cache.NewResultCache())
	router := setupTestRouter(svc)
	graphID := createTestGraph(t, router, "y-tree", testPoints())

	run := func() DiameterResponse {
		req, _ := http.NewRequest("POST", "/v1/morpho/graphs/"+graphID+"/diameter", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}
		var resp DiameterResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		return resp
	}

	first := run()
	if first.Cached {
		t.Error("expected first query to compute")
	}

	second := run()
	if !second.Cached {
		t.Error("expected second query to be served from cache")
	}
	if second.Length != first.Length {
		t.Errorf("cached length %v differs from computed %v", second.Length, first.Length)
	}
}

func TestHandlers_HandleDiameter_UnknownAlgorithm(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)
	graphID := createTestGraph(t, router, "y-tree", testPoints())

	body := `{"algorithm": "bfs"}`
	req, _ := http.NewRequest("POST", "/v1/morpho/graphs/"+graphID+"/diameter",
		bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if errResp.Code != "UNKNOWN_ALGORITHM" {
		t.Errorf("expected code 'UNKNOWN_ALGORITHM', got %q", errResp.Code)
	}
}

func TestHandlers_HandleDiameter_GraphNotFound(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)

	req, _ := http.NewRequest("POST", "/v1/morpho/graphs/nonexistent/diameter", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if errResp.Code != "GRAPH_NOT_FOUND" {
		t.Errorf("expected code 'GRAPH_NOT_FOUND', got %q", errResp.Code)
	}
}

func TestHandlers_HandleDiameter_StoreNotConfigured(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)
	graphID := createTestGraph(t, router, "y-tree", testPoints())

	body := `{"store": true}`
	req, _ := http.NewRequest("POST", "/v1/morpho/graphs/"+graphID+"/diameter",
		bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if errResp.Code != "STORAGE_NOT_CONFIGURED" {
		t.Errorf("expected code 'STORAGE_NOT_CONFIGURED', got %q", errResp.Code)
	}
}

func TestHandlers_HandleDiameter_StoreRoundTrip(t *testing.T) {
	router := setupStoreBackedRouter(t)
	graphID := createTestGraph(t, router, "y-tree", testPoints())

	// Compute and persist
	body := `{"store": true}`
	req, _ := http.NewRequest("POST", "/v1/morpho/graphs/"+graphID+"/diameter",
		bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp DiameterResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.ResultID == "" {
		t.Fatal("expected a result ID when store=true")
	}

	// The record is retrievable
	req, _ = http.NewRequest("GET", "/v1/morpho/results/"+resp.ResultID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var rec storage.ResultRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("failed to unmarshal record: %v", err)
	}
	if rec.Length != 8.0 {
		t.Errorf("expected stored length 8.0, got %v", rec.Length)
	}
	if rec.Name != "y-tree" {
		t.Errorf("expected stored name 'y-tree', got %q", rec.Name)
	}

	// Listing includes it
	req, _ = http.NewRequest("GET", "/v1/morpho/results", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var list ResultListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to unmarshal list: %v", err)
	}
	if list.Total != 1 {
		t.Errorf("expected 1 stored result, got %d", list.Total)
	}

	// Delete and verify it is gone
	req, _ = http.NewRequest("DELETE", "/v1/morpho/results/"+resp.ResultID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, w.Code)
	}

	req, _ = http.NewRequest("GET", "/v1/morpho/results/"+resp.ResultID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d after delete, got %d", http.StatusNotFound, w.Code)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if errResp.Code != "RESULT_NOT_FOUND" {
		t.Errorf("expected code 'RESULT_NOT_FOUND', got %q", errResp.Code)
	}
}

func TestHandlers_HandleShortestPath(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)
	graphID := createTestGraph(t, router, "y-tree", testPoints())

	tests := []struct {
		name       string
		body       string
		wantLength float64
		wantPath   []graph.NodeID
	}{
		{
			name:       "tip to tip",
			body:       `{"from": 2, "to": 3}`,
			wantLength: 9.0,
			wantPath:   []graph.NodeID{2, 1, 3},
		},
		{
			name:       "root to tip",
			body:       `{"from": 0, "to": 2}`,
			wantLength: 7.0,
			wantPath:   []graph.NodeID{0, 1, 2},
		},
		{
			name:       "against edge direction",
			body:       `{"from": 3, "to": 0}`,
			wantLength: 8.0,
			wantPath:   []graph.NodeID{3, 1, 0},
		},
		{
			name:       "same node",
			body:       `{"from": 2, "to": 2}`,
			wantLength: 0.0,
			wantPath:   []graph.NodeID{2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("POST", "/v1/morpho/graphs/"+graphID+"/shortest-path",
				bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
			}

			var resp PathResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}

			if resp.Length != tt.wantLength {
				t.Errorf("expected length %v, got %v", tt.wantLength, resp.Length)
			}
			if len(resp.Path) != len(tt.wantPath) {
				t.Fatalf("expected path %v, got %v", tt.wantPath, resp.Path)
			}
			for i, id := range tt.wantPath {
				if resp.Path[i] != id {
					t.Errorf("path[%d]: expected %d, got %d", i, id, resp.Path[i])
				}
			}
		})
	}
}

func TestHandlers_HandleShortestPath_Errors(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)
	graphID := createTestGraph(t, router, "y-tree", testPoints())

	tests := []struct {
		name       string
		url        string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing body",
			url:        "/v1/morpho/graphs/" + graphID + "/shortest-path",
			body:       "",
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "missing to",
			url:        "/v1/morpho/graphs/" + graphID + "/shortest-path",
			body:       `{"from": 0}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "unknown node",
			url:        "/v1/morpho/graphs/" + graphID + "/shortest-path",
			body:       `{"from": 0, "to": 99}`,
			wantStatus: http.StatusNotFound,
			wantCode:   "NODE_NOT_FOUND",
		},
		{
			name:       "unknown graph",
			url:        "/v1/morpho/graphs/nonexistent/shortest-path",
			body:       `{"from": 0, "to": 1}`,
			wantStatus: http.StatusNotFound,
			wantCode:   "GRAPH_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("POST", tt.url, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}

			var errResp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}

			if errResp.Code != tt.wantCode {
				t.Errorf("expected code %q, got %q", tt.wantCode, errResp.Code)
			}
		})
	}
}

func TestHandlers_HandleSimplify(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)
	graphID := createTestGraph(t, router, "chain", chainPoints())

	req, _ := http.NewRequest("POST", "/v1/morpho/graphs/"+graphID+"/simplify", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	var resp GraphResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.ID == graphID {
		t.Error("expected a new graph ID")
	}
	if resp.Name != "chain-simplified" {
		t.Errorf("expected name 'chain-simplified', got %q", resp.Name)
	}
	if resp.NodeCount != 2 {
		t.Errorf("expected 2 nodes in skeleton, got %d", resp.NodeCount)
	}
	if resp.EdgeCount != 1 {
		t.Errorf("expected 1 edge in skeleton, got %d", resp.EdgeCount)
	}
	if resp.CableLength != 3.0 {
		t.Errorf("expected cable length 3.0, got %v", resp.CableLength)
	}

	// Both graphs are registered
	if svc.GraphCount() != 2 {
		t.Errorf("expected 2 registered graphs, got %d", svc.GraphCount())
	}
}

func TestHandlers_HandleSimplify_CustomName(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)
	graphID := createTestGraph(t, router, "chain", chainPoints())

	body := `{"name": "skeleton"}`
	req, _ := http.NewRequest("POST", "/v1/morpho/graphs/"+graphID+"/simplify",
		bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	var resp GraphResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.Name != "skeleton" {
		t.Errorf("expected name 'skeleton', got %q", resp.Name)
	}
}

func TestHandlers_HandleMorphometrics(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)
	graphID := createTestGraph(t, router, "y-tree", testPoints())

	req, _ := http.NewRequest("GET", "/v1/morpho/graphs/"+graphID+"/morphometrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp MorphometricsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.GraphID != graphID {
		t.Errorf("expected graph ID %q, got %q", graphID, resp.GraphID)
	}
	m := resp.Morphometrics
	if m == nil {
		t.Fatal("expected morphometrics payload")
	}
	if m.NodeCount != 4 {
		t.Errorf("expected 4 nodes, got %d", m.NodeCount)
	}
	if m.TipCount != 2 {
		t.Errorf("expected 2 tips, got %d", m.TipCount)
	}
	if m.MaxTipDepth != 8.0 {
		t.Errorf("expected max tip depth 8.0, got %v", m.MaxTipDepth)
	}
	if m.MinTipDepth != 7.0 {
		t.Errorf("expected min tip depth 7.0, got %v", m.MinTipDepth)
	}
	if m.CableLength != 12.0 {
		t.Errorf("expected cable length 12.0, got %v", m.CableLength)
	}
}

func TestHandlers_HandleBatchDiameter(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)

	reqBody := BatchDiameterRequest{
		Tasks: []BatchTaskSpec{
			{Name: "y-tree", Points: testPoints()},
			{Name: "chain", Points: chainPoints()},
		},
		Workers: 2,
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequest("POST", "/v1/morpho/batch/diameter", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp BatchDiameterResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.Summary.TaskCount != 2 {
		t.Errorf("expected 2 tasks, got %d", resp.Summary.TaskCount)
	}
	if resp.Summary.Succeeded != 2 {
		t.Errorf("expected 2 successes, got %d", resp.Summary.Succeeded)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}

	lengths := map[string]float64{}
	for _, res := range resp.Results {
		if res.Diameter == nil {
			t.Fatalf("task %q: missing diameter", res.Name)
		}
		lengths[res.Name] = res.Diameter.Length
	}
	if lengths["y-tree"] != 8.0 {
		t.Errorf("y-tree: expected length 8.0, got %v", lengths["y-tree"])
	}
	if lengths["chain"] != 3.0 {
		t.Errorf("chain: expected length 3.0, got %v", lengths["chain"])
	}

	if resp.StoredIDs != nil {
		t.Errorf("expected no stored IDs, got %v", resp.StoredIDs)
	}
}

func TestHandlers_HandleBatchDiameter_UnbuildableTask(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)

	reqBody := BatchDiameterRequest{
		Tasks: []BatchTaskSpec{
			{Name: "good", Points: testPoints()},
			{Name: "bad", Points: []graph.SamplePoint{
				{ID: 0, ParentID: 42},
			}},
		},
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequest("POST", "/v1/morpho/batch/diameter", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if errResp.Code != "INVALID_GRAPH" {
		t.Errorf("expected code 'INVALID_GRAPH', got %q", errResp.Code)
	}
	if !strings.Contains(errResp.Error, `"bad"`) {
		t.Errorf("expected error to name the offending task, got %q", errResp.Error)
	}
}

func TestHandlers_HandleBatchDiameter_StoreNotConfigured(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)

	reqBody := BatchDiameterRequest{
		Tasks: []BatchTaskSpec{{Name: "y-tree", Points: testPoints()}},
		Store: true,
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequest("POST", "/v1/morpho/batch/diameter", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}

func TestHandlers_HandleBatchDiameter_StoredIDs(t *testing.T) {
	router := setupStoreBackedRouter(t)

	reqBody := BatchDiameterRequest{
		Tasks: []BatchTaskSpec{
			{Name: "y-tree", Points: testPoints()},
			{Name: "chain", Points: chainPoints()},
		},
		Store: true,
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequest("POST", "/v1/morpho/batch/diameter", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp BatchDiameterResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if len(resp.StoredIDs) != 2 {
		t.Fatalf("expected 2 stored IDs, got %d", len(resp.StoredIDs))
	}
	for i, id := range resp.StoredIDs {
		if id == "" {
			t.Errorf("stored ID %d is empty", i)
		}
	}

	// Every stored record is retrievable
	for _, id := range resp.StoredIDs {
		req, _ := http.NewRequest("GET", "/v1/morpho/results/"+id, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("result %s: expected status %d, got %d", id, http.StatusOK, w.Code)
		}
	}
}

func TestHandlers_Results_StoreNotConfigured(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)

	tests := []struct {
		name   string
		method string
		url    string
	}{
		{"list", "GET", "/v1/morpho/results"},
		{"get", "GET", "/v1/morpho/results/some-id"},
		{"delete", "DELETE", "/v1/morpho/results/some-id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, tt.url, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusServiceUnavailable {
				t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
			}

			var errResp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}

			if errResp.Code != "STORAGE_NOT_CONFIGURED" {
				t.Errorf("expected code 'STORAGE_NOT_CONFIGURED', got %q", errResp.Code)
			}
		})
	}
}

func TestHandlers_HandleListResults_InvalidLimit(t *testing.T) {
	router := setupStoreBackedRouter(t)

	tests := []string{"zero", "-1", "abc"}
	for _, limit := range tests {
		t.Run(limit, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "/v1/morpho/results?limit="+limit, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestHandlers_RequestIDEcho(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	router := setupTestRouter(svc)

	// Supplied IDs are echoed back
	req, _ := http.NewRequest("GET", "/v1/morpho/graphs", nil)
	req.Header.Set("X-Request-ID", "test-request-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "test-request-42" {
		t.Errorf("expected request ID echoed, got %q", got)
	}

	// Absent IDs are generated
	req, _ = http.NewRequest("GET", "/v1/morpho/graphs", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got == "" {
		t.Error("expected a generated request ID")
	}
}

func TestHandlers_RegistryFull(t *testing.T) {
	svc := NewService(ServiceConfig{MaxGraphs: 1})
	router := setupTestRouter(svc)
	createTestGraph(t, router, "first", testPoints())

	body, _ := json.Marshal(CreateGraphRequest{Name: "second", Points: chainPoints()})
	req, _ := http.NewRequest("POST", "/v1/morpho/graphs", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status %d, got %d", http.StatusTooManyRequests, w.Code)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if errResp.Code != "TOO_MANY_GRAPHS" {
		t.Errorf("expected code 'TOO_MANY_GRAPHS', got %q", errResp.Code)
	}
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimit(1, 1))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	// First request consumes the burst
	req, _ := http.NewRequest("GET", "/ping", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	// Immediate second request is throttled
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status %d, got %d", http.StatusTooManyRequests, w.Code)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if errResp.Code != "RATE_LIMITED" {
		t.Errorf("expected code 'RATE_LIMITED', got %q", errResp.Code)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimit(0, 0))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 20; i++ {
		req, _ := http.NewRequest("GET", "/ping", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected status %d, got %d", i, http.StatusOK, w.Code)
		}
	}
}

func TestNewRouter_ServesRoutes(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	handlers := NewHandlers(svc)
	router := NewRouter(RouterConfig{}, handlers, nil)

	req, _ := http.NewRequest("GET", "/v1/morpho/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestGetOrCreateRequestID(t *testing.T) {
	t.Run("generates when absent", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request, _ = http.NewRequest("GET", "/", nil)

		id := getOrCreateRequestID(c)
		if id == "" {
			t.Error("expected a generated request ID")
		}
		if got := w.Header().Get("X-Request-ID"); got != id {
			t.Errorf("expected header %q, got %q", id, got)
		}
	})

	t.Run("preserves supplied ID", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request, _ = http.NewRequest("GET", "/", nil)
		c.Request.Header.Set("X-Request-ID", "supplied")

		if id := getOrCreateRequestID(c); id != "supplied" {
			t.Errorf("expected 'supplied', got %q", id)
		}
	})
}

func TestHandlers_ConcurrentRequests(t *testing.T) {
	svc := NewService(DefaultServiceConfig()).WithCache(cache.NewResultCache())
	router := setupTestRouter(svc)
	graphID := createTestGraph(t, router, "y-tree", testPoints())

	done := make(chan error, 16)
	for i := 0; i < 16; i++ {
		go func() {
			req, _ := http.NewRequest("POST", "/v1/morpho/graphs/"+graphID+"/diameter", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				done <- fmt.Errorf("status %d: %s", w.Code, w.Body.String())
				return
			}
			var resp DiameterResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				done <- err
				return
			}
			if resp.Length != 8.0 {
				done <- fmt.Errorf("length %v", resp.Length)
				return
			}
			done <- nil
		}()
	}

	for i := 0; i < 16; i++ {
		if err := <-done; err != nil {
			t.Errorf("concurrent request failed: %v", err)
		}
	}
}
