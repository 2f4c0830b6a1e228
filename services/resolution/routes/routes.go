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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ecp-platform/ecp/services/resolution/handlers"
	"github.com/ecp-platform/ecp/services/resolution/orchestrator"
)

// SetupRoutes wires the resolution API onto the router.
func SetupRoutes(router *gin.Engine, orch *orchestrator.Orchestrator) {
	router.Use(otelgin.Middleware("resolution"))

	router.GET("/health", handlers.Health(orch))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/resolve", handlers.Resolve(orch))
		v1.POST("/execute", handlers.Execute(orch))
		v1.GET("/glossary", handlers.Glossary(orch))
		v1.GET("/lineage/:target", handlers.Lineage(orch))
		v1.GET("/metrics", handlers.MetricsCatalog(orch))
	}
}
