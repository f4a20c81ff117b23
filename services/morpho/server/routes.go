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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all morpho routes with the router.
//
// Description:
//
//	Registers all /v1/morpho/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Graph Endpoints:
//
//	POST   /v1/morpho/graphs - Register a graph from a point table
//	GET    /v1/morpho/graphs - List registered graphs
//	GET    /v1/morpho/graphs/:id - Get one registered graph
//	DELETE /v1/morpho/graphs/:id - Remove a graph from the registry
//
// Analysis Endpoints:
//
//	POST /v1/morpho/graphs/:id/diameter - Longest root-to-tip path
//	POST /v1/morpho/graphs/:id/shortest-path - Path between two nodes
//	POST /v1/morpho/graphs/:id/simplify - Register the topology skeleton
//	GET  /v1/morpho/graphs/:id/morphometrics - Scalar summaries
//
// Batch Endpoints:
//
//	POST /v1/morpho/batch/diameter - Diameter over many point sets
//
// Result Archive Endpoints:
//
//	GET    /v1/morpho/results - List persisted results
//	GET    /v1/morpho/results/:id - Get one persisted result
//	DELETE /v1/morpho/results/:id - Delete a persisted result
//
// Health Endpoints:
//
//	GET /v1/morpho/health - Health check
//	GET /v1/morpho/ready - Readiness check
//
// Example:
//
//	service := server.NewService(server.DefaultServiceConfig())
//	handlers := server.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	server.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	morpho := rg.Group("/morpho")
	{
		// Graph registry
		morpho.POST("/graphs", handlers.HandleCreateGraph)
		morpho.GET("/graphs", handlers.HandleListGraphs)
		morpho.GET("/graphs/:id", handlers.HandleGetGraph)
		morpho.DELETE("/graphs/:id", handlers.HandleDeleteGraph)

		// Per-graph analysis
		morpho.POST("/graphs/:id/diameter", handlers.HandleDiameter)
		morpho.POST("/graphs/:id/shortest-path", handlers.HandleShortestPath)
		morpho.POST("/graphs/:id/simplify", handlers.HandleSimplify)
		morpho.GET("/graphs/:id/morphometrics", handlers.HandleMorphometrics)

		// Batch analysis
		batch := morpho.Group("/batch")
		{
			batch.POST("/diameter", handlers.HandleBatchDiameter)
		}

		// Result archive
		morpho.GET("/results", handlers.HandleListResults)
		morpho.GET("/results/:id", handlers.HandleGetResult)
		morpho.DELETE("/results/:id", handlers.HandleDeleteResult)

		// Health checks
		morpho.GET("/health", handlers.HandleHealth)
		morpho.GET("/ready", handlers.HandleReady)
	}
}
