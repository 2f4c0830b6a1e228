// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ecperr defines the typed error taxonomy shared by every component
// of the resolution service.
//
// The taxonomy groups failures into four classes:
//
//   - Store: backend unreachable, slow, or rejected a query
//   - Resolution: user-supplied concept could not be resolved
//   - Validation: data-quality or business-rule violation
//   - Authorization: permission or policy denial (always fail-secure)
//
// Each error carries a machine-readable code, a human message, structured
// details, and a suggested HTTP status for the API boundary. The retry
// executor and circuit breaker consult Class to decide whether a failure
// is a backend health signal or a caller bug.
package ecperr

import (
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Error Class
// -----------------------------------------------------------------------------

// Class is the coarse failure category used by the resilience subsystem.
type Class int

const (
	// ClassUnknown is any error that did not originate from this taxonomy.
	ClassUnknown Class = iota
	// ClassStore covers backend connection, timeout, and query failures.
	ClassStore
	// ClassResolution covers user-input failures during concept resolution.
	ClassResolution
	// ClassValidation covers data-quality and business-rule failures.
	ClassValidation
	// ClassAuthorization covers permission and policy failures.
	ClassAuthorization
)

// String returns a human-readable class name.
func (c Class) String() string {
	switch c {
	case ClassStore:
		return "store"
	case ClassResolution:
		return "resolution"
	case ClassValidation:
		return "validation"
	case ClassAuthorization:
		return "authorization"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Error Codes
// -----------------------------------------------------------------------------

const (
	CodeStoreConnection         = "store_connection_error"
	CodeStoreTimeout            = "store_timeout_error"
	CodeStoreQuery              = "store_query_error"
	CodeConceptNotFound         = "concept_not_found"
	CodeAmbiguousConcept        = "ambiguous_concept"
	CodeInvalidQuery            = "invalid_query"
	CodeDataQuality             = "data_quality_error"
	CodeBusinessRuleViolation   = "business_rule_violation"
	CodeInsufficientPermissions = "insufficient_permissions"
	CodePolicyDenied            = "policy_denied"
)

// -----------------------------------------------------------------------------
// Error Type
// -----------------------------------------------------------------------------

// Error is the typed error carried throughout the resolution pipeline.
//
// Thread Safety: Error values are immutable after construction.
type Error struct {
	// Code is the machine-readable error code (e.g. "store_timeout_error").
	Code string

	// Class is the coarse category used for retry/breaker classification.
	Class Class

	// Message is the human-readable description.
	Message string

	// Details holds structured context (store name, query, thresholds).
	Details map[string]any

	// HTTPStatus is the suggested status code at the API boundary.
	HTTPStatus int

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string { return e.Message }

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// StatusCode reports the suggested HTTP status. The retry classifier uses
// this through the StatusCoder interface for HTTP-style errors.
func (e *Error) StatusCode() int { return e.HTTPStatus }

// ToMap renders the error in the boundary wire format.
func (e *Error) ToMap() map[string]any {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	return map[string]any{
		"error":   e.Code,
		"message": e.Message,
		"details": details,
	}
}

// StatusCoder is implemented by errors that carry an HTTP-style status.
// Failures with a 5xx status are treated as retryable, 4xx as not.
type StatusCoder interface {
	StatusCode() int
}

// -----------------------------------------------------------------------------
// Store Errors
// -----------------------------------------------------------------------------

// NewStoreConnection reports that a backend could not be reached. Retryable.
func NewStoreConnection(store, reason string, cause error) *Error {
	return &Error{
		Code:       CodeStoreConnection,
		Class:      ClassStore,
		Message:    fmt.Sprintf("failed to connect to %s: %s", store, reason),
		Details:    map[string]any{"store": store},
		HTTPStatus: 503,
		cause:      cause,
	}
}

// NewStoreTimeout reports that a backend call exceeded its bound. Retryable.
func NewStoreTimeout(store, operation string, timeout time.Duration) *Error {
	return &Error{
		Code:    CodeStoreTimeout,
		Class:   ClassStore,
		Message: fmt.Sprintf("%s %s timed out after %s", store, operation, timeout),
		Details: map[string]any{
			"store":     store,
			"operation": operation,
			"timeout":   timeout.String(),
		},
		HTTPStatus: 504,
	}
}

// NewStoreQuery reports a malformed or rejected query. Not retryable: the
// same query will fail again, and retrying only loads a healthy backend.
func NewStoreQuery(store, query, reason string) *Error {
	return &Error{
		Code:       CodeStoreQuery,
		Class:      ClassStore,
		Message:    fmt.Sprintf("%s query failed: %s", store, reason),
		Details:    map[string]any{"store": store, "query": query, "reason": reason},
		HTTPStatus: 500,
	}
}

// -----------------------------------------------------------------------------
// Resolution Errors
// -----------------------------------------------------------------------------

// NewConceptNotFound reports that a concept has no canonical mapping.
func NewConceptNotFound(concept string) *Error {
	return &Error{
		Code:       CodeConceptNotFound,
		Class:      ClassResolution,
		Message:    fmt.Sprintf("concept not found: %s", concept),
		Details:    map[string]any{"concept": concept},
		HTTPStatus: 404,
	}
}

// NewAmbiguousConcept reports that a concept has multiple interpretations.
func NewAmbiguousConcept(concept string, interpretations []string) *Error {
	return &Error{
		Code:       CodeAmbiguousConcept,
		Class:      ClassResolution,
		Message:    fmt.Sprintf("ambiguous concept %q: multiple interpretations found", concept),
		Details:    map[string]any{"concept": concept, "interpretations": interpretations},
		HTTPStatus: 409,
	}
}

// NewInvalidQuery reports a malformed resolution request.
func NewInvalidQuery(query, reason string) *Error {
	return &Error{
		Code:       CodeInvalidQuery,
		Class:      ClassResolution,
		Message:    fmt.Sprintf("invalid query: %s", reason),
		Details:    map[string]any{"query": query, "reason": reason},
		HTTPStatus: 400,
	}
}

// -----------------------------------------------------------------------------
// Validation Errors
// -----------------------------------------------------------------------------

// NewDataQuality reports a failed data-quality check.
func NewDataQuality(rule string, value, threshold any) *Error {
	return &Error{
		Code:       CodeDataQuality,
		Class:      ClassValidation,
		Message:    fmt.Sprintf("data quality check failed: %s", rule),
		Details:    map[string]any{"rule": rule, "value": value, "threshold": threshold},
		HTTPStatus: 422,
	}
}

// NewBusinessRuleViolation reports a violated business rule.
func NewBusinessRuleViolation(rule, description string) *Error {
	return &Error{
		Code:       CodeBusinessRuleViolation,
		Class:      ClassValidation,
		Message:    fmt.Sprintf("business rule violation: %s", description),
		Details:    map[string]any{"rule": rule, "description": description},
		HTTPStatus: 422,
	}
}

// -----------------------------------------------------------------------------
// Authorization Errors
// -----------------------------------------------------------------------------

// NewInsufficientPermissions reports that the user lacks a permission.
func NewInsufficientPermissions(required, role string) *Error {
	return &Error{
		Code:  CodeInsufficientPermissions,
		Class: ClassAuthorization,
		Message: fmt.Sprintf("insufficient permissions: requires %q, user has role %q",
			required, role),
		Details:    map[string]any{"required_permission": required, "user_role": role},
		HTTPStatus: 403,
	}
}

// NewPolicyDenied reports an explicit policy denial.
func NewPolicyDenied(policy, reason string) *Error {
	return &Error{
		Code:       CodePolicyDenied,
		Class:      ClassAuthorization,
		Message:    fmt.Sprintf("access denied by policy %q: %s", policy, reason),
		Details:    map[string]any{"policy": policy, "reason": reason},
		HTTPStatus: 403,
	}
}
