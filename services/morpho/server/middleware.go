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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/arbor/services/morpho/telemetry"
)

// RouterConfig configures the assembled HTTP router.
type RouterConfig struct {
	// ServiceName names the tracing middleware spans.
	// Default: "arbor"
	ServiceName string

	// RateLimitRPS throttles requests per second across all clients.
	// Zero disables throttling.
	RateLimitRPS float64

	// RateLimitBurst is the burst allowance when throttling.
	RateLimitBurst int
}

// RequestMetrics records request counts and latencies per route.
//
// Uses the route template (c.FullPath) rather than the raw URL so
// metric cardinality stays bounded regardless of path parameters.
func RequestMetrics(m *telemetry.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		m.HTTPActiveRequests.Add(c.Request.Context(), 1)
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		ctx := c.Request.Context()
		m.HTTPActiveRequests.Add(ctx, -1)
		m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("path", path),
			attribute.Int("status", c.Writer.Status()),
		))
		m.HTTPRequestDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("path", path),
		))
	}
}

// RateLimit throttles the whole service to rps requests per second
// with the given burst. A non-positive rps disables throttling.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "rate limit exceeded",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// NewRouter assembles the morpho HTTP router.
//
// Description:
//
//	Builds a Gin engine with recovery, tracing, request metrics, and
//	rate limiting applied, registers all /v1/morpho routes, and mounts
//	the Prometheus scrape endpoint when telemetry is initialized.
//
// Inputs:
//
//	cfg - Router configuration
//	handlers - The handlers instance
//	metrics - Telemetry instruments, nil to skip request metrics
//
// Outputs:
//
//	*gin.Engine - The assembled router
func NewRouter(cfg RouterConfig, handlers *Handlers, metrics *telemetry.Metrics) *gin.Engine {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "arbor"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(RequestMetrics(metrics))
	router.Use(RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}

	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)

	return router
}
