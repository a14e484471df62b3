// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianRefine/services/engine/handlers"
	"github.com/AleutianAI/AleutianRefine/services/engine/memory"
	"github.com/AleutianAI/AleutianRefine/services/engine/pipeline"
)

// SetupRoutes registers the HTTP surface. Session administration routes
// are only mounted when a memory store is available; in stateless mode
// the compose endpoint still works and reports Degraded on every
// response.
func SetupRoutes(router *gin.Engine, p *pipeline.Pipeline, store *memory.Store,
	metricsPath string, retentionAge time.Duration) {

	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	router.GET("/health", handlers.HealthCheck)
	router.GET(metricsPath, gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/compose", handlers.HandleCompose(p))
		if store != nil {
			v1.POST("/sweep", handlers.HandleSweep(p, retentionAge))
			// Session administration routes
			sessions := v1.Group("/sessions")
			{
				sessions.GET("", handlers.ListSessions(store))
				sessions.GET("/:fingerprint/history", handlers.GetSessionHistory(store))
				sessions.DELETE("/:fingerprint", handlers.DeleteSession(store))
			}
		}
	}
}
