// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the request/response models for the resolution
// service wire format.
package datatypes

// -----------------------------------------------------------------------------
// User Context
// -----------------------------------------------------------------------------

// Default values applied when a caller omits user context fields.
const (
	DefaultRole       = "analyst"
	DefaultDepartment = "finance"
)

// UserContext identifies the requesting user. Immutable per request;
// absent fields take neutral defaults when referenced downstream.
type UserContext struct {
	UserID         string   `json:"user_id,omitempty"`
	Department     string   `json:"department,omitempty"`
	Role           string   `json:"role,omitempty"`
	AllowedRegions []string `json:"allowed_regions,omitempty"`
}

// WithDefaults returns a copy with neutral values filled in for absent
// fields.
func (u UserContext) WithDefaults() UserContext {
	if u.Role == "" {
		u.Role = DefaultRole
	}
	if u.Department == "" {
		u.Department = DefaultDepartment
	}
	return u
}

// ToMap renders the context for DAG snapshots and cache entries.
func (u UserContext) ToMap() map[string]any {
	m := map[string]any{}
	if u.UserID != "" {
		m["user_id"] = u.UserID
	}
	if u.Department != "" {
		m["department"] = u.Department
	}
	if u.Role != "" {
		m["role"] = u.Role
	}
	if len(u.AllowedRegions) > 0 {
		m["allowed_regions"] = u.AllowedRegions
	}
	return m
}

// -----------------------------------------------------------------------------
// Requests
// -----------------------------------------------------------------------------

// ResolveRequest asks for a business concept to be resolved.
type ResolveRequest struct {
	Concept     string       `json:"concept" binding:"required"`
	UserContext *UserContext `json:"user_context,omitempty"`
}

// ExecuteRequest asks for a previously resolved plan to be executed.
type ExecuteRequest struct {
	ResolutionID string         `json:"resolution_id" binding:"required"`
	Parameters   map[string]any `json:"parameters,omitempty"`
}

// -----------------------------------------------------------------------------
// Execution Plan
// -----------------------------------------------------------------------------

// Query is one executable semantic-layer query within a plan.
type Query struct {
	ID         string         `json:"id"`
	Measure    string         `json:"measure"`
	Dimensions []string       `json:"dimensions"`
	Filters    map[string]any `json:"filters"`
}

// ExecutionPlan is the canonical, store-agnostic description of the
// queries needed to answer a resolved concept. Immutable once built:
// runtime parameters merge into filters at execute time and are never
// persisted back into the plan.
type ExecutionPlan struct {
	PlanType    string            `json:"plan_type"`
	Queries     []Query           `json:"queries"`
	Computation map[string]string `json:"computation,omitempty"`
}

// -----------------------------------------------------------------------------
// Responses
// -----------------------------------------------------------------------------

// ResolutionStatus is the outcome of a resolve call.
type ResolutionStatus string

const (
	// StatusComplete means the plan was built, authorized, and cached.
	StatusComplete ResolutionStatus = "complete"
	// StatusAccessDenied means policy denied the plan; nothing was cached.
	StatusAccessDenied ResolutionStatus = "access_denied"
)

// Warning annotates a response with a typed, non-fatal condition.
type Warning struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Warning types surfaced by the orchestrator.
const (
	WarningAccessDenied = "access_denied"
	WarningNotFound     = "not_found"
	WarningDegraded     = "degraded"
)

// ResolveResponse is the result of resolving a concept.
type ResolveResponse struct {
	ResolutionID     string           `json:"resolution_id"`
	Status           ResolutionStatus `json:"status"`
	ExecutionPlan    *ExecutionPlan   `json:"execution_plan,omitempty"`
	ResolvedConcepts map[string]any   `json:"resolved_concepts"`
	ConfidenceScore  float64          `json:"confidence_score"`
	Provenance       map[string]any   `json:"provenance"`
	Warnings         []Warning        `json:"warnings"`
}

// ExecuteResponse is the result of executing a cached plan. Results are
// keyed by query id; a query whose backend call ultimately failed is
// represented by an inline error marker, never by aborting the batch.
type ExecuteResponse struct {
	Results         map[string]any `json:"results"`
	Provenance      map[string]any `json:"provenance"`
	ConfidenceScore float64        `json:"confidence_score"`
	Warnings        []Warning      `json:"warnings"`
}
