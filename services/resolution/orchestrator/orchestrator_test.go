// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecp-platform/ecp/services/resolution/dag"
	"github.com/ecp-platform/ecp/services/resolution/datatypes"
	"github.com/ecp-platform/ecp/services/resolution/ecperr"
	"github.com/ecp-platform/ecp/services/resolution/resilience"
	"github.com/ecp-platform/ecp/services/resolution/stores"
)

// -----------------------------------------------------------------------------
// Store Fakes
// -----------------------------------------------------------------------------

type fakeGraph struct {
	metric    *stores.Metric
	metricErr error
	region    *stores.Region
	regionErr error
	lineage   *stores.Lineage
	metrics   []stores.Metric
}

func (f *fakeGraph) GetMetricByID(ctx context.Context, id string) (*stores.Metric, error) {
	return f.metric, f.metricErr
}

func (f *fakeGraph) ResolveRegion(ctx context.Context, code, callerContext string) (*stores.Region, error) {
	return f.region, f.regionErr
}

func (f *fakeGraph) GetLineage(ctx context.Context, target string, depth int) (*stores.Lineage, error) {
	return f.lineage, nil
}

func (f *fakeGraph) ListMetricsForDimension(ctx context.Context, dimension, domain string, tier int) ([]stores.Metric, error) {
	return f.metrics, nil
}

func (f *fakeGraph) Health(ctx context.Context) error { return nil }

type fakeVector struct {
	hits []stores.SearchHit
	err  error
}

func (f *fakeVector) Search(ctx context.Context, queryText, typeFilter string, topK int) ([]stores.SearchHit, error) {
	return f.hits, f.err
}

func (f *fakeVector) Health(ctx context.Context) error { return nil }

type fakeRegistry struct {
	asset    *stores.Asset
	assetErr error
	glossary []stores.Asset
}

func (f *fakeRegistry) GetAsset(ctx context.Context, assetID string) (*stores.Asset, error) {
	return f.asset, f.assetErr
}

func (f *fakeRegistry) GetAssetsByType(ctx context.Context, assetType string, limit int) ([]stores.Asset, error) {
	return nil, nil
}

func (f *fakeRegistry) SearchGlossary(ctx context.Context, query, domain string, limit int) ([]stores.Asset, error) {
	return f.glossary, nil
}

func (f *fakeRegistry) Health(ctx context.Context) error { return nil }

type fakeSemantic struct {
	result *stores.QueryResult
	err    error
	calls  int
}

func (f *fakeSemantic) ExecuteQuery(ctx context.Context, measure string, dimensions []string, filters map[string]any) (*stores.QueryResult, error) {
	f.calls++
	return f.result, f.err
}

func (f *fakeSemantic) Health(ctx context.Context) error { return nil }

type fakePolicy struct {
	decision *stores.PolicyDecision
	err      error
}

func (f *fakePolicy) Evaluate(ctx context.Context, user map[string]any, action string, dataProduct map[string]any) (*stores.PolicyDecision, error) {
	return f.decision, f.err
}

func (f *fakePolicy) Health(ctx context.Context) error { return nil }

// -----------------------------------------------------------------------------
// Fixtures
// -----------------------------------------------------------------------------

func healthyStores() (*fakeGraph, *fakeVector, *fakeRegistry, *fakeSemantic, *fakePolicy) {
	graph := &fakeGraph{
		metric: &stores.Metric{ID: "net_revenue", Name: "Net Revenue", SemanticLayerRef: "Revenue.netRevenue"},
		region: &stores.Region{RegionCode: "APAC", Countries: []string{"JP", "KR", "SG"}},
	}
	vector := &fakeVector{hits: []stores.SearchHit{{
		ID:       "doc-1",
		Type:     "glossary_term",
		Metadata: map[string]any{"canonical_term": "net_revenue"},
		Score:    0.91,
	}}}
	registry := &fakeRegistry{asset: &stores.Asset{
		ID: FiscalCalendarAssetID,
		Content: map[string]any{
			"current_quarter": map[string]any{
				"label": "Q3-2024",
				"start": "2024-10-01",
				"end":   "2024-12-31",
			},
		},
	}}
	semantic := &fakeSemantic{result: &stores.QueryResult{
		Data:       []map[string]any{{"Revenue.netRevenue": 1250000.0}},
		Annotation: map[string]any{"measures": []string{"Revenue.netRevenue"}},
	}}
	policy := &fakePolicy{decision: &stores.PolicyDecision{Allow: true}}
	return graph, vector, registry, semantic, policy
}

func newTestOrchestrator(t *testing.T, graph stores.GraphStore, vector stores.VectorStore,
	registry stores.AssetRegistry, semantic stores.SemanticLayer, policy stores.PolicyEngine,
	config Config) *Orchestrator {
	t.Helper()

	exec := resilience.NewExecutor(resilience.ExecutorConfig{
		Retry:       resilience.RetryConfig{MaxAttempts: 2, MinWait: time.Millisecond, MaxWait: 2 * time.Millisecond},
		Breaker:     resilience.BreakerConfig{FailureThreshold: 5, RecoveryTimeout: time.Minute},
		CallTimeout: time.Second,
	}, nil, nil)

	cache := NewResolutionCache(time.Minute, time.Minute, nil)
	t.Cleanup(cache.Stop)

	return New(graph, vector, registry, semantic, policy, exec, cache, config, nil, nil)
}

// -----------------------------------------------------------------------------
// Resolve
// -----------------------------------------------------------------------------

func TestResolve_EndToEndComplete(t *testing.T) {
	graph, vector, registry, semantic, policy := healthyStores()
	orch := newTestOrchestrator(t, graph, vector, registry, semantic, policy, Config{})

	resp, err := orch.Resolve(context.Background(), datatypes.ResolveRequest{
		Concept:     "APAC revenue last quarter",
		UserContext: &datatypes.UserContext{UserID: "u1", Department: "finance"},
	})
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusComplete, resp.Status)
	assert.Equal(t, 0.92, resp.ConfidenceScore)
	assert.Empty(t, resp.Warnings)

	require.NotNil(t, resp.ExecutionPlan)
	require.Len(t, resp.ExecutionPlan.Queries, 1)
	query := resp.ExecutionPlan.Queries[0]
	assert.Equal(t, "actual_revenue", query.ID)
	assert.Equal(t, "Revenue.netRevenue", query.Measure)
	assert.Equal(t, []string{"JP", "KR", "SG"}, query.Filters["Revenue.region"])

	dateRange, ok := query.Filters["Revenue.date_range"].(map[string]any)
	require.True(t, ok, "date_range filter missing")
	assert.Equal(t, "2024-10-01", dateRange["start"])
	assert.Equal(t, "2024-12-31", dateRange["end"])

	// Execute against the cached plan.
	execResp, err := orch.Execute(context.Background(), datatypes.ExecuteRequest{
		ResolutionID: resp.ResolutionID,
	})
	require.NoError(t, err)
	require.Contains(t, execResp.Results, "actual_revenue")
	assert.Equal(t, 0.92, execResp.ConfidenceScore)
	assert.Equal(t, resp.ResolutionID, execResp.Provenance["resolution_id"])
}

func TestResolve_ProvenanceNodeOrderDeterministic(t *testing.T) {
	graph, vector, registry, semantic, policy := healthyStores()
	orch := newTestOrchestrator(t, graph, vector, registry, semantic, policy, Config{})

	wantOrder := []string{"parse_intent", "resolve_metric", "resolve_region", "resolve_time", "build_plan", "authorize"}

	for i := 0; i < 5; i++ {
		resp, err := orch.Resolve(context.Background(), datatypes.ResolveRequest{
			Concept: "APAC revenue last quarter",
		})
		require.NoError(t, err)

		nodes, ok := resp.Provenance["nodes"].([]dag.Node)
		require.True(t, ok, "provenance missing nodes")
		require.Len(t, nodes, len(wantOrder))
		for j, id := range wantOrder {
			assert.Equal(t, id, nodes[j].ID, "iteration %d node %d", i, j)
		}
	}
}

func TestResolve_PolicyDeniedNotCached(t *testing.T) {
	graph, vector, registry, semantic, policy := healthyStores()
	policy.decision = &stores.PolicyDecision{Allow: false, Reason: "certification tier too low"}
	orch := newTestOrchestrator(t, graph, vector, registry, semantic, policy, Config{})

	resp, err := orch.Resolve(context.Background(), datatypes.ResolveRequest{
		Concept: "APAC revenue last quarter",
	})
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusAccessDenied, resp.Status)
	assert.Zero(t, resp.ConfidenceScore)
	assert.Nil(t, resp.ExecutionPlan)
	require.NotEmpty(t, resp.Warnings)
	assert.Equal(t, datatypes.WarningAccessDenied, resp.Warnings[0].Type)

	// A denied resolution must not be executable.
	execResp, err := orch.Execute(context.Background(), datatypes.ExecuteRequest{
		ResolutionID: resp.ResolutionID,
	})
	require.NoError(t, err)
	assert.Empty(t, execResp.Results)
	require.NotEmpty(t, execResp.Warnings)
	assert.Equal(t, datatypes.WarningNotFound, execResp.Warnings[0].Type)
	assert.Zero(t, semantic.calls, "denied plan reached the semantic layer")
}

func TestResolve_PolicyEngineDownFailsSecure(t *testing.T) {
	graph, vector, registry, semantic, policy := healthyStores()
	policy.decision = nil
	policy.err = ecperr.NewStoreConnection("policy", "refused", nil)
	orch := newTestOrchestrator(t, graph, vector, registry, semantic, policy, Config{})

	resp, err := orch.Resolve(context.Background(), datatypes.ResolveRequest{
		Concept: "APAC revenue last quarter",
	})
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusAccessDenied, resp.Status)
	assert.Zero(t, resp.ConfidenceScore)
}

func TestResolve_PolicyEngineDownFailOpenOverride(t *testing.T) {
	graph, vector, registry, semantic, policy := healthyStores()
	policy.decision = nil
	policy.err = ecperr.NewStoreConnection("policy", "refused", nil)
	orch := newTestOrchestrator(t, graph, vector, registry, semantic, policy, Config{FailOpenPolicy: true})

	resp, err := orch.Resolve(context.Background(), datatypes.ResolveRequest{
		Concept: "APAC revenue last quarter",
	})
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusComplete, resp.Status)
	require.NotNil(t, resp.ExecutionPlan)
}

func TestResolve_AllResolutionBackendsDownStillCompletes(t *testing.T) {
	_, _, _, semantic, policy := healthyStores()
	graph := &fakeGraph{
		metricErr: ecperr.NewStoreConnection("graph", "refused", nil),
		regionErr: ecperr.NewStoreConnection("graph", "refused", nil),
	}
	vector := &fakeVector{err: ecperr.NewStoreTimeout("vector", "search", time.Second)}
	registry := &fakeRegistry{assetErr: ecperr.NewStoreConnection("registry", "refused", nil)}
	orch := newTestOrchestrator(t, graph, vector, registry, semantic, policy, Config{})

	resp, err := orch.Resolve(context.Background(), datatypes.ResolveRequest{
		Concept: "APAC revenue last quarter",
	})
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusComplete, resp.Status)
	require.NotNil(t, resp.ExecutionPlan)
	require.Len(t, resp.ExecutionPlan.Queries, 1)

	query := resp.ExecutionPlan.Queries[0]
	assert.Equal(t, DefaultMeasure, query.Measure)
	assert.Equal(t, defaultRegionCountries["APAC"], query.Filters["Revenue.region"])

	// One degraded warning per fallen-back resolution step.
	assert.GreaterOrEqual(t, len(resp.Warnings), 3)
	for _, w := range resp.Warnings {
		assert.Equal(t, datatypes.WarningDegraded, w.Type)
	}
}

func TestResolve_UnparsedConceptUsesDefaults(t *testing.T) {
	graph, vector, registry, semantic, policy := healthyStores()
	vector.hits = nil
	orch := newTestOrchestrator(t, graph, vector, registry, semantic, policy, Config{})

	resp, err := orch.Resolve(context.Background(), datatypes.ResolveRequest{
		Concept: "some unrelated phrase",
	})
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusComplete, resp.Status)
	require.NotNil(t, resp.ExecutionPlan)
	assert.Equal(t, "Revenue.netRevenue", resp.ExecutionPlan.Queries[0].Measure)
}

// -----------------------------------------------------------------------------
// Execute
// -----------------------------------------------------------------------------

func TestExecute_UnknownIDIdempotent(t *testing.T) {
	graph, vector, registry, semantic, policy := healthyStores()
	orch := newTestOrchestrator(t, graph, vector, registry, semantic, policy, Config{})

	for i := 0; i < 3; i++ {
		resp, err := orch.Execute(context.Background(), datatypes.ExecuteRequest{
			ResolutionID: "no-such-resolution",
		})
		require.NoError(t, err)
		assert.Empty(t, resp.Results)
		assert.Zero(t, resp.ConfidenceScore)
		require.Len(t, resp.Warnings, 1)
		assert.Equal(t, datatypes.WarningNotFound, resp.Warnings[0].Type)
		assert.Contains(t, resp.Warnings[0].Message, "not found")
	}
}

func TestExecute_ParametersOverrideStaticFilters(t *testing.T) {
	graph, vector, registry, _, policy := healthyStores()

	var seenFilters map[string]any
	semantic := &capturingSemantic{onQuery: func(filters map[string]any) {
		seenFilters = filters
	}}
	orch := newTestOrchestrator(t, graph, vector, registry, semantic, policy, Config{})

	resp, err := orch.Resolve(context.Background(), datatypes.ResolveRequest{
		Concept: "APAC revenue last quarter",
	})
	require.NoError(t, err)

	_, err = orch.Execute(context.Background(), datatypes.ExecuteRequest{
		ResolutionID: resp.ResolutionID,
		Parameters:   map[string]any{"Revenue.region": []string{"JP"}},
	})
	require.NoError(t, err)

	require.NotNil(t, seenFilters)
	assert.Equal(t, []string{"JP"}, seenFilters["Revenue.region"])

	// The cached plan itself stays untouched.
	entry, ok := orch.Cache().Get(resp.ResolutionID)
	require.True(t, ok)
	assert.Equal(t, []string{"JP", "KR", "SG"}, entry.Plan.Queries[0].Filters["Revenue.region"])
}

func TestExecute_QueryFailureIsolated(t *testing.T) {
	graph, vector, registry, _, policy := healthyStores()
	semantic := &fakeSemantic{err: ecperr.NewStoreConnection("semantic", "refused", nil)}
	orch := newTestOrchestrator(t, graph, vector, registry, semantic, policy, Config{})

	resp, err := orch.Resolve(context.Background(), datatypes.ResolveRequest{
		Concept: "APAC revenue last quarter",
	})
	require.NoError(t, err)

	execResp, err := orch.Execute(context.Background(), datatypes.ExecuteRequest{
		ResolutionID: resp.ResolutionID,
	})
	require.NoError(t, err)

	// The batch returns with a degraded marker instead of aborting.
	require.Contains(t, execResp.Results, "actual_revenue")
	result, ok := execResp.Results["actual_revenue"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, result["degraded"])
	require.NotEmpty(t, execResp.Warnings)
	assert.Equal(t, datatypes.WarningDegraded, execResp.Warnings[0].Type)
}

// capturingSemantic records the filters of each executed query.
type capturingSemantic struct {
	onQuery func(filters map[string]any)
}

func (c *capturingSemantic) ExecuteQuery(ctx context.Context, measure string, dimensions []string, filters map[string]any) (*stores.QueryResult, error) {
	if c.onQuery != nil {
		c.onQuery(filters)
	}
	return &stores.QueryResult{Data: []map[string]any{}}, nil
}

func (c *capturingSemantic) Health(ctx context.Context) error { return nil }

// -----------------------------------------------------------------------------
// Read Accessors
// -----------------------------------------------------------------------------

func TestStoreHealth_ReportsAllBackends(t *testing.T) {
	graph, vector, registry, semantic, policy := healthyStores()
	orch := newTestOrchestrator(t, graph, vector, registry, semantic, policy, Config{})

	health := orch.StoreHealth(context.Background())
	require.Len(t, health, 5)
	for backend, healthy := range health {
		assert.True(t, healthy, "backend %s reported unhealthy", backend)
	}
}
