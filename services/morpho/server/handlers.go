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
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/arbor/services/morpho/graph"
	storage "github.com/AleutianAI/arbor/services/morpho/storage/badger"
	"github.com/AleutianAI/arbor/services/morpho/telemetry"
)

// ServiceVersion is the morpho service version.
const ServiceVersion = "0.1.0"

// Handlers contains the HTTP handlers for the morpho service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// requestLogger returns a trace-correlated logger for one request.
func requestLogger(c *gin.Context, handler string) *slog.Logger {
	requestID := getOrCreateRequestID(c)
	return telemetry.LoggerWithTrace(c.Request.Context(), slog.Default()).
		With("request_id", requestID, "handler", handler)
}

// HandleCreateGraph handles POST /v1/morpho/graphs.
//
// Description:
//
//	Builds a frozen graph from the submitted point table, validates the
//	rooted-tree invariant, and registers it. The graph is immutable from
//	here on; every analysis endpoint addresses it by the returned ID.
//
// Request Body:
//
//	CreateGraphRequest
//
// Response:
//
//	201 Created: GraphResponse
//	400 Bad Request: Malformed body or invalid point table
//	429 Too Many Requests: Registry is full
func (h *Handlers) HandleCreateGraph(c *gin.Context) {
	logger := requestLogger(c, "HandleCreateGraph")

	var req CreateGraphRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	logger.Info("Registering graph", "name", req.Name, "points", len(req.Points))

	rg, err := h.svc.CreateGraph(c.Request.Context(), req.Name, req.Points)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "BUILD_FAILED"

		if errors.Is(err, ErrTooManyGraphs) {
			statusCode = http.StatusTooManyRequests
			errCode = "TOO_MANY_GRAPHS"
		} else if errors.Is(err, graph.ErrDuplicateNode) {
			statusCode = http.StatusBadRequest
			errCode = "DUPLICATE_NODE"
		} else if errors.Is(err, graph.ErrNodeNotFound) {
			statusCode = http.StatusBadRequest
			errCode = "UNKNOWN_PARENT"
		} else if errors.Is(err, graph.ErrInvalidNode) {
			statusCode = http.StatusBadRequest
			errCode = "INVALID_NODE"
		} else if errors.Is(err, graph.ErrNegativeWeight) {
			statusCode = http.StatusBadRequest
			errCode = "NEGATIVE_WEIGHT"
		} else if errors.Is(err, graph.ErrMaxNodesExceeded) || errors.Is(err, graph.ErrMaxEdgesExceeded) {
			statusCode = http.StatusBadRequest
			errCode = "GRAPH_TOO_LARGE"
		} else if errors.Is(err, graph.ErrInvalidGraph) {
			statusCode = http.StatusBadRequest
			errCode = "INVALID_GRAPH"
		}

		logger.Error("Graph registration failed", "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	logger.Info("Graph registered",
		"graph_id", rg.ID,
		"nodes", rg.Graph.NodeCount(),
		"edges", rg.Graph.EdgeCount())

	c.JSON(http.StatusCreated, graphResponseFrom(rg))
}

// HandleListGraphs handles GET /v1/morpho/graphs.
//
// Description:
//
//	Lists all registered graphs ordered by creation time.
//
// Response:
//
//	200 OK: GraphListResponse
func (h *Handlers) HandleListGraphs(c *gin.Context) {
	getOrCreateRequestID(c)

	registered := h.svc.ListGraphs()
	graphs := make([]GraphResponse, 0, len(registered))
	for _, rg := range registered {
		graphs = append(graphs, graphResponseFrom(rg))
	}

	c.JSON(http.StatusOK, GraphListResponse{
		Graphs: graphs,
		Total:  len(graphs),
	})
}

// HandleGetGraph handles GET /v1/morpho/graphs/:id.
//
// Description:
//
//	Returns one registered graph by ID.
//
// Path Parameters:
//
//	id: Graph ID (required)
//
// Response:
//
//	200 OK: GraphResponse
//	404 Not Found: Graph not found
func (h *Handlers) HandleGetGraph(c *gin.Context) {
	logger := requestLogger(c, "HandleGetGraph")

	graphID := c.Param("id")
	if graphID == "" {
		logger.Warn("Missing graph id")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "graph id is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	rg, err := h.svc.GetGraph(graphID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "GRAPH_NOT_FOUND",
		})
		return
	}

	c.JSON(http.StatusOK, graphResponseFrom(rg))
}

// HandleDeleteGraph handles DELETE /v1/morpho/graphs/:id.
//
// Description:
//
//	Removes a graph from the registry. Persisted results are unaffected.
//
// Path Parameters:
//
//	id: Graph ID (required)
//
// Response:
//
//	204 No Content: Successfully deleted
//	404 Not Found: Graph not found
func (h *Handlers) HandleDeleteGraph(c *gin.Context) {
	logger := requestLogger(c, "HandleDeleteGraph")

	graphID := c.Param("id")
	if graphID == "" {
		logger.Warn("Missing graph id")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "graph id is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	if err := h.svc.DeleteGraph(graphID); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "GRAPH_NOT_FOUND",
		})
		return
	}

	logger.Info("Graph deleted", "graph_id", graphID)
	c.Status(http.StatusNoContent)
}

// HandleDiameter handles POST /v1/morpho/graphs/:id/diameter.
//
// Description:
//
//	Computes the longest shortest path from the root to any tip. The
//	body is optional; an empty body runs the default tree-native
//	traversal. Set "algorithm" to "dijkstra" for the cross-check
//	oracle, and "store" to persist the result in the archive database.
//
// Request Body:
//
//	DiameterRequest (optional)
//
// Response:
//
//	200 OK: DiameterResponse
//	400 Bad Request: Malformed body or unknown algorithm
//	404 Not Found: Graph not found
//	503 Service Unavailable: Store requested but not configured
func (h *Handlers) HandleDiameter(c *gin.Context) {
	logger := requestLogger(c, "HandleDiameter")

	graphID := c.Param("id")
	if graphID == "" {
		logger.Warn("Missing graph id")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "graph id is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	var req DiameterRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("Invalid request body", "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "Invalid request body",
				Code:  "INVALID_REQUEST",
			})
			return
		}
	}

	algorithm := req.Algorithm
	if algorithm == "" {
		algorithm = AlgorithmLinear
	}

	start := time.Now()
	result, cached, err := h.svc.Diameter(c.Request.Context(), graphID, algorithm)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "ANALYSIS_FAILED"

		if errors.Is(err, ErrGraphNotFound) {
			statusCode = http.StatusNotFound
			errCode = "GRAPH_NOT_FOUND"
		} else if errors.Is(err, ErrUnknownAlgorithm) {
			statusCode = http.StatusBadRequest
			errCode = "UNKNOWN_ALGORITHM"
		}

		logger.Error("Diameter analysis failed", "error", err, "graph_id", graphID)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}
	durationMs := time.Since(start).Milliseconds()

	tip, _ := result.Terminal()
	resp := DiameterResponse{
		GraphID:    graphID,
		Algorithm:  algorithm,
		Length:     result.Length,
		Path:       result.Path,
		Tip:        tip,
		Cached:     cached,
		DurationMs: durationMs,
	}

	if req.Store {
		rg, err := h.svc.GetGraph(graphID)
		if err != nil {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: err.Error(),
				Code:  "GRAPH_NOT_FOUND",
			})
			return
		}

		resultID, err := h.svc.StoreResult(c.Request.Context(), rg, result, durationMs)
		if err != nil {
			statusCode := http.StatusInternalServerError
			errCode := "STORAGE_FAILED"

			if errors.Is(err, ErrStoreNotConfigured) {
				statusCode = http.StatusServiceUnavailable
				errCode = "STORAGE_NOT_CONFIGURED"
			}

			logger.Error("Result persistence failed", "error", err, "graph_id", graphID)
			c.JSON(statusCode, ErrorResponse{
				Error: err.Error(),
				Code:  errCode,
			})
			return
		}
		resp.ResultID = resultID
	}

	logger.Info("Diameter computed",
		"graph_id", graphID,
		"algorithm", algorithm,
		"length", result.Length,
		"cached", cached,
		"duration_ms", durationMs)

	c.JSON(http.StatusOK, resp)
}

// HandleShortestPath handles POST /v1/morpho/graphs/:id/shortest-path.
//
// Description:
//
//	Returns the unique tree path between two nodes, usable in either
//	direction.
//
// Request Body:
//
//	ShortestPathRequest
//
// Response:
//
//	200 OK: PathResponse
//	400 Bad Request: Malformed body
//	404 Not Found: Graph or endpoint node not found
func (h *Handlers) HandleShortestPath(c *gin.Context) {
	logger := requestLogger(c, "HandleShortestPath")

	graphID := c.Param("id")
	if graphID == "" {
		logger.Warn("Missing graph id")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "graph id is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	var req ShortestPathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	result, err := h.svc.ShortestPath(c.Request.Context(), graphID, *req.From, *req.To)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "ANALYSIS_FAILED"

		if errors.Is(err, ErrGraphNotFound) {
			statusCode = http.StatusNotFound
			errCode = "GRAPH_NOT_FOUND"
		} else if errors.Is(err, graph.ErrNodeNotFound) {
			statusCode = http.StatusNotFound
			errCode = "NODE_NOT_FOUND"
		}

		logger.Error("Shortest path failed", "error", err, "graph_id", graphID)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	c.JSON(http.StatusOK, PathResponse{
		GraphID: graphID,
		Length:  result.Length,
		Path:    result.Path,
	})
}

// HandleSimplify handles POST /v1/morpho/graphs/:id/simplify.
//
// Description:
//
//	Reduces a graph to its topology skeleton (root, branch points,
//	tips) and registers the result as a new graph. The body is
//	optional; an empty body derives the name from the source graph.
//
// Request Body:
//
//	SimplifyRequest (optional)
//
// Response:
//
//	201 Created: GraphResponse for the new graph
//	404 Not Found: Graph not found
//	429 Too Many Requests: Registry is full
func (h *Handlers) HandleSimplify(c *gin.Context) {
	logger := requestLogger(c, "HandleSimplify")

	graphID := c.Param("id")
	if graphID == "" {
		logger.Warn("Missing graph id")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "graph id is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	var req SimplifyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("Invalid request body", "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "Invalid request body",
				Code:  "INVALID_REQUEST",
			})
			return
		}
	}

	rg, err := h.svc.Simplify(c.Request.Context(), graphID, req.Name)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "ANALYSIS_FAILED"

		if errors.Is(err, ErrGraphNotFound) {
			statusCode = http.StatusNotFound
			errCode = "GRAPH_NOT_FOUND"
		} else if errors.Is(err, ErrTooManyGraphs) {
			statusCode = http.StatusTooManyRequests
			errCode = "TOO_MANY_GRAPHS"
		}

		logger.Error("Simplify failed", "error", err, "graph_id", graphID)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	logger.Info("Graph simplified",
		"source_id", graphID,
		"graph_id", rg.ID,
		"nodes", rg.Graph.NodeCount())

	c.JSON(http.StatusCreated, graphResponseFrom(rg))
}

// HandleMorphometrics handles GET /v1/morpho/graphs/:id/morphometrics.
//
// Description:
//
//	Returns scalar morphometric summaries: counts, cable length, and
//	tip depth statistics.
//
// Path Parameters:
//
//	id: Graph ID (required)
//
// Response:
//
//	200 OK: MorphometricsResponse
//	404 Not Found: Graph not found
func (h *Handlers) HandleMorphometrics(c *gin.Context) {
	logger := requestLogger(c, "HandleMorphometrics")

	graphID := c.Param("id")
	if graphID == "" {
		logger.Warn("Missing graph id")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "graph id is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	m, err := h.svc.Morphometrics(c.Request.Context(), graphID)
	if err != nil {
		if errors.Is(err, ErrGraphNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: err.Error(),
				Code:  "GRAPH_NOT_FOUND",
			})
			return
		}

		logger.Error("Morphometrics failed", "error", err, "graph_id", graphID)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "ANALYSIS_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, MorphometricsResponse{
		GraphID:       graphID,
		Morphometrics: m,
	})
}

// HandleBatchDiameter handles POST /v1/morpho/batch/diameter.
//
// Description:
//
//	Runs diameter analyses over many point sets in one request.
//	Building is atomic: any point set that fails to build rejects the
//	whole batch. Analysis failures are isolated per task and reported
//	inside the result list.
//
// Request Body:
//
//	BatchDiameterRequest
//
// Response:
//
//	200 OK: BatchDiameterResponse
//	400 Bad Request: Malformed body or unbuildable point set
//	503 Service Unavailable: Store requested but not configured
func (h *Handlers) HandleBatchDiameter(c *gin.Context) {
	logger := requestLogger(c, "HandleBatchDiameter")

	var req BatchDiameterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	logger.Info("Batch diameter run", "tasks", len(req.Tasks), "workers", req.Workers)

	report, storedIDs, err := h.svc.BatchDiameter(c.Request.Context(), req.Tasks, req.Workers, req.Store)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "BATCH_FAILED"

		if errors.Is(err, ErrStoreNotConfigured) {
			statusCode = http.StatusServiceUnavailable
			errCode = "STORAGE_NOT_CONFIGURED"
		} else if errors.Is(err, graph.ErrInvalidGraph) ||
			errors.Is(err, graph.ErrDuplicateNode) ||
			errors.Is(err, graph.ErrNodeNotFound) ||
			errors.Is(err, graph.ErrInvalidNode) ||
			errors.Is(err, graph.ErrNegativeWeight) {
			statusCode = http.StatusBadRequest
			errCode = "INVALID_GRAPH"
		} else if report != nil {
			errCode = "STORAGE_FAILED"
		}

		logger.Error("Batch run failed", "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	logger.Info("Batch run complete",
		"tasks", report.Summary.TaskCount,
		"succeeded", report.Summary.Succeeded,
		"failed", report.Summary.Failed,
		"duration_ms", report.DurationMs)

	c.JSON(http.StatusOK, BatchDiameterResponse{
		Results:    report.Results,
		Summary:    report.Summary,
		DurationMs: report.DurationMs,
		StoredIDs:  storedIDs,
	})
}

// HandleListResults handles GET /v1/morpho/results.
//
// Description:
//
//	Lists persisted analysis results, newest first.
//
// Query Parameters:
//
//	limit: Maximum records to return (default 50)
//
// Response:
//
//	200 OK: ResultListResponse
//	503 Service Unavailable: No store configured
func (h *Handlers) HandleListResults(c *gin.Context) {
	logger := requestLogger(c, "HandleListResults")

	limitStr := c.DefaultQuery("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		logger.Warn("Invalid limit parameter", "limit", limitStr)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "limit must be a positive integer",
			Code:  "INVALID_PARAMETER",
		})
		return
	}

	recs, err := h.svc.ListResults(c.Request.Context(), limit)
	if err != nil {
		if errors.Is(err, ErrStoreNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error: err.Error(),
				Code:  "STORAGE_NOT_CONFIGURED",
			})
			return
		}

		logger.Error("Result listing failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "STORAGE_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, ResultListResponse{
		Results: recs,
		Total:   len(recs),
	})
}

// HandleGetResult handles GET /v1/morpho/results/:id.
//
// Description:
//
//	Returns one persisted analysis result by record ID.
//
// Path Parameters:
//
//	id: Record ID (required)
//
// Response:
//
//	200 OK: storage.ResultRecord
//	404 Not Found: Record not found
//	503 Service Unavailable: No store configured
func (h *Handlers) HandleGetResult(c *gin.Context) {
	logger := requestLogger(c, "HandleGetResult")

	resultID := c.Param("id")
	if resultID == "" {
		logger.Warn("Missing result id")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "result id is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	rec, err := h.svc.GetResult(c.Request.Context(), resultID)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "STORAGE_FAILED"

		if errors.Is(err, ErrStoreNotConfigured) {
			statusCode = http.StatusServiceUnavailable
			errCode = "STORAGE_NOT_CONFIGURED"
		} else if errors.Is(err, storage.ErrNotFound) {
			statusCode = http.StatusNotFound
			errCode = "RESULT_NOT_FOUND"
		}

		logger.Error("Result lookup failed", "error", err, "result_id", resultID)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// HandleDeleteResult handles DELETE /v1/morpho/results/:id.
//
// Description:
//
//	Permanently deletes a persisted result by record ID.
//
// Path Parameters:
//
//	id: Record ID (required)
//
// Response:
//
//	204 No Content: Successfully deleted
//	404 Not Found: Record not found
//	503 Service Unavailable: No store configured
func (h *Handlers) HandleDeleteResult(c *gin.Context) {
	logger := requestLogger(c, "HandleDeleteResult")

	resultID := c.Param("id")
	if resultID == "" {
		logger.Warn("Missing result id")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "result id is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	if err := h.svc.DeleteResult(c.Request.Context(), resultID); err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "STORAGE_FAILED"

		if errors.Is(err, ErrStoreNotConfigured) {
			statusCode = http.StatusServiceUnavailable
			errCode = "STORAGE_NOT_CONFIGURED"
		} else if errors.Is(err, storage.ErrNotFound) {
			statusCode = http.StatusNotFound
			errCode = "RESULT_NOT_FOUND"
		}

		logger.Error("Result deletion failed", "error", err, "result_id", resultID)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	logger.Info("Result deleted", "result_id", resultID)
	c.Status(http.StatusNoContent)
}

// HandleHealth handles GET /v1/morpho/health.
//
// Description:
//
//	Returns the health status of the service. Always returns 200 if running.
//
// Response:
//
//	200 OK: HealthResponse
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /v1/morpho/ready.
//
// Description:
//
//	Returns the readiness status of the service including dependency
//	checks. The service has no warmup phase; it is ready once serving.
//
// Response:
//
//	200 OK: ReadyResponse
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, ReadyResponse{
		Ready:      true,
		GraphCount: h.svc.GraphCount(),
		StorageOK:  h.svc.StorageConfigured(),
	})
}

// getOrCreateRequestID returns the request ID from the X-Request-ID
// header, generating one if absent, and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
