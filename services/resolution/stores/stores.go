// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stores defines the capability interfaces for the five backend
// data services the orchestrator consumes, plus production adapters for
// each. Test doubles implement the same interfaces; no inheritance
// hierarchy is needed or wanted.
//
// Every method takes a context and returns an explicit error. The
// orchestrator wraps each call in the resilience executor, so adapters
// report failures through the ecperr taxonomy and never retry internally.
package stores

import "context"

// Backend names used for circuit breakers, degradation records, and
// metrics labels.
const (
	BackendGraph    = "graph"
	BackendVector   = "vector"
	BackendRegistry = "registry"
	BackendSemantic = "semantic"
	BackendPolicy   = "policy"
)

// -----------------------------------------------------------------------------
// Result Types
// -----------------------------------------------------------------------------

// Metric is a canonical metric definition from the knowledge graph.
type Metric struct {
	ID               string         `json:"id"`
	Name             string         `json:"name,omitempty"`
	SemanticLayerRef string         `json:"semantic_layer_ref,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Region is a resolved region variation (a region code and its countries).
type Region struct {
	RegionCode string   `json:"region_code"`
	Countries  []string `json:"countries"`
	Source     string   `json:"source,omitempty"`
}

// Lineage is a lineage subgraph for a metric or table.
type Lineage struct {
	Target string           `json:"target"`
	Nodes  []map[string]any `json:"nodes"`
	Edges  []map[string]any `json:"edges"`
}

// SearchHit is one vector-search result.
type SearchHit struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	ContentText string         `json:"content_text"`
	Metadata    map[string]any `json:"metadata"`
	Score       float64        `json:"score"`
}

// Asset is a structured artifact from the registry (glossary term,
// contract, calendar).
type Asset struct {
	ID       string         `json:"id"`
	Content  map[string]any `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// QueryResult is the outcome of one semantic-layer query.
type QueryResult struct {
	Data       []map[string]any `json:"data"`
	Annotation map[string]any   `json:"annotation,omitempty"`
	Degraded   bool             `json:"degraded,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// PolicyDecision is the outcome of a policy evaluation. Degraded marks a
// decision produced by the fail-secure fallback rather than the engine.
type PolicyDecision struct {
	Allow    bool           `json:"allow"`
	Reason   string         `json:"reason,omitempty"`
	Degraded bool           `json:"degraded,omitempty"`
	Raw      map[string]any `json:"raw,omitempty"`
}

// -----------------------------------------------------------------------------
// Capability Interfaces
// -----------------------------------------------------------------------------

// GraphStore is the knowledge graph: entities, metrics, lineage.
type GraphStore interface {
	// GetMetricByID returns the metric node and refs, or nil if absent.
	GetMetricByID(ctx context.Context, id string) (*Metric, error)

	// ResolveRegion resolves a region code (e.g. APAC) to its variation
	// for the given caller context, or nil if unknown.
	ResolveRegion(ctx context.Context, code, callerContext string) (*Region, error)

	// GetLineage returns the lineage subgraph for a metric or table.
	GetLineage(ctx context.Context, target string, depth int) (*Lineage, error)

	// ListMetricsForDimension lists metrics carrying the given dimension,
	// optionally filtered by domain and certification tier (0 = any).
	ListMetricsForDimension(ctx context.Context, dimension, domain string, tier int) ([]Metric, error)

	// Health reports backend reachability.
	Health(ctx context.Context) error
}

// VectorStore is the semantic index over glossary and tribal knowledge.
type VectorStore interface {
	// Search runs a semantic search; typeFilter narrows by document type
	// when non-empty.
	Search(ctx context.Context, queryText, typeFilter string, topK int) ([]SearchHit, error)

	// Health reports backend reachability.
	Health(ctx context.Context) error
}

// AssetRegistry is the structured artifact store: glossary, contracts,
// calendars.
type AssetRegistry interface {
	// GetAsset returns an asset by id, or nil if absent.
	GetAsset(ctx context.Context, assetID string) (*Asset, error)

	// GetAssetsByType returns up to limit assets of the given type.
	GetAssetsByType(ctx context.Context, assetType string, limit int) ([]Asset, error)

	// SearchGlossary searches glossary terms by name or definition.
	SearchGlossary(ctx context.Context, query, domain string, limit int) ([]Asset, error)

	// Health reports backend reachability.
	Health(ctx context.Context) error
}

// SemanticLayer executes canonical metric queries.
type SemanticLayer interface {
	// ExecuteQuery runs one metric query and returns data plus annotation.
	ExecuteQuery(ctx context.Context, measure string, dimensions []string, filters map[string]any) (*QueryResult, error)

	// Health reports backend reachability.
	Health(ctx context.Context) error
}

// PolicyEngine evaluates runtime access-control policy.
type PolicyEngine interface {
	// Evaluate decides whether user may perform action on dataProduct.
	Evaluate(ctx context.Context, user map[string]any, action string, dataProduct map[string]any) (*PolicyDecision, error)

	// Health reports backend reachability.
	Health(ctx context.Context) error
}
