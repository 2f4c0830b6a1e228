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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ecp-platform/ecp/services/resolution/datatypes"
	"github.com/ecp-platform/ecp/services/resolution/orchestrator"
)

// Resolve handles POST /api/v1/resolve.
func Resolve(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ResolveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, "concept is required: "+err.Error())
			return
		}

		slog.Info("Received resolve request", "concept", req.Concept)

		resp, err := orch.Resolve(c.Request.Context(), req)
		if err != nil {
			slog.Error("resolve failed", "concept", req.Concept, "error", err)
			writeError(c, orch, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Execute handles POST /api/v1/execute.
func Execute(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ExecuteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, "resolution_id is required: "+err.Error())
			return
		}

		slog.Info("Received execute request", "resolution_id", req.ResolutionID)

		resp, err := orch.Execute(c.Request.Context(), req)
		if err != nil {
			slog.Error("execute failed", "resolution_id", req.ResolutionID, "error", err)
			writeError(c, orch, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
