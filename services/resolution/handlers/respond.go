// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin handlers for the resolution service
// API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ecp-platform/ecp/services/resolution/ecperr"
	"github.com/ecp-platform/ecp/services/resolution/orchestrator"
)

// writeError surfaces an escaped error in the boundary format: error
// code, human message, structured details, and the currently degraded
// services when any exist.
func writeError(c *gin.Context, orch *orchestrator.Orchestrator, err error) {
	status := http.StatusInternalServerError
	body := gin.H{
		"error":   "internal_error",
		"message": err.Error(),
	}

	var typed *ecperr.Error
	if errors.As(err, &typed) {
		status = typed.StatusCode()
		body["error"] = typed.Code
		body["message"] = typed.Message
		if len(typed.Details) > 0 {
			body["details"] = typed.Details
		}
	}

	if degraded := orch.Degradation().Degraded(); len(degraded) > 0 {
		body["degraded_services"] = degraded
	}

	c.JSON(status, body)
}

// writeBadRequest reports a malformed request body or parameter.
func writeBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": message,
	})
}
