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

	"github.com/gin-gonic/gin"

	"github.com/ecp-platform/ecp/services/resolution/orchestrator"
)

// Health handles GET /health: per-store reachability, degraded services,
// and cache counters. Always returns 200; the payload carries the
// status so load balancers and dashboards read the same endpoint.
func Health(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		storeHealth := orch.StoreHealth(c.Request.Context())

		status := "ok"
		for _, healthy := range storeHealth {
			if !healthy {
				status = "degraded"
				break
			}
		}

		degraded := orch.Degradation().Degraded()
		if len(degraded) > 0 {
			status = "degraded"
		}

		c.JSON(http.StatusOK, gin.H{
			"status":            status,
			"stores":            storeHealth,
			"degraded_services": degraded,
			"cache":             orch.Cache().Stats(),
		})
	}
}
