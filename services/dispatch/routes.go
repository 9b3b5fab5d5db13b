// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dispatch

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts the dispatch API on the router.
//
// Routes:
//
//	POST /v1/dispatch/turn     - run one conversational turn
//	GET  /v1/dispatch/actions  - list the action catalog
//	GET  /v1/dispatch/audit    - query the audit trail
//	GET  /healthz              - liveness probe
//	GET  /metrics              - Prometheus scrape endpoint
func RegisterRoutes(router *gin.Engine, h *Handlers, limiter *UserRateLimiter) {
	v1 := router.Group("/v1/dispatch")
	if limiter != nil {
		v1.Use(limiter.Middleware())
	}
	v1.POST("/turn", h.HandleTurn)
	v1.GET("/actions", h.HandleListActions)
	v1.GET("/audit", h.HandleAuditQuery)

	router.GET("/healthz", h.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
