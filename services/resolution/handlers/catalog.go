// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ecp-platform/ecp/services/resolution/orchestrator"
	"github.com/ecp-platform/ecp/services/resolution/stores"
)

// Glossary handles GET /api/v1/glossary?q=&domain=&limit=.
func Glossary(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("q")
		if query == "" {
			writeBadRequest(c, "q query parameter is required")
			return
		}
		domain := c.Query("domain")
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

		terms, err := orch.Glossary(c.Request.Context(), query, domain, limit)
		if err != nil {
			writeError(c, orch, err)
			return
		}
		if terms == nil {
			terms = []stores.Asset{}
		}
		c.JSON(http.StatusOK, gin.H{"query": query, "terms": terms})
	}
}

// Lineage handles GET /api/v1/lineage/:target?depth=.
func Lineage(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		target := c.Param("target")
		depth, _ := strconv.Atoi(c.DefaultQuery("depth", "2"))

		lineage, err := orch.Lineage(c.Request.Context(), target, depth)
		if err != nil {
			writeError(c, orch, err)
			return
		}
		c.JSON(http.StatusOK, lineage)
	}
}

// MetricsCatalog handles GET /api/v1/metrics?dimension=&domain=&tier=.
func MetricsCatalog(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		dimension := c.Query("dimension")
		if dimension == "" {
			writeBadRequest(c, "dimension query parameter is required")
			return
		}
		domain := c.Query("domain")
		tier, _ := strconv.Atoi(c.DefaultQuery("tier", "0"))

		metrics, err := orch.MetricsCatalog(c.Request.Context(), dimension, domain, tier)
		if err != nil {
			writeError(c, orch, err)
			return
		}
		if metrics == nil {
			metrics = []stores.Metric{}
		}
		c.JSON(http.StatusOK, gin.H{"dimension": dimension, "metrics": metrics})
	}
}
