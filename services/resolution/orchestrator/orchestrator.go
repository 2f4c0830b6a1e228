// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator coordinates concept resolution: it drives the
// parse, metric, region, and time steps through the store interfaces,
// each wrapped by the resilience executor, builds and authorizes an
// execution plan, caches it, and later executes it against the semantic
// layer.
//
// Failure semantics: individual backend failures are absorbed by
// retry, breaker, and fallback and degrade result quality; only an
// authorization denial short-circuits resolve, and only an unknown
// resolution id short-circuits execute. Both are ordinary typed
// outcomes.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ecp-platform/ecp/services/resolution/dag"
	"github.com/ecp-platform/ecp/services/resolution/datatypes"
	"github.com/ecp-platform/ecp/services/resolution/parser"
	"github.com/ecp-platform/ecp/services/resolution/resilience"
	"github.com/ecp-platform/ecp/services/resolution/stores"
)

const tracerName = "ecp/resolution/orchestrator"

// Recorder receives orchestrator-level outcome metrics. The
// observability package provides the production implementation.
type Recorder interface {
	RecordResolution(status string, duration time.Duration)
	RecordExecution(queries int, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordResolution(string, time.Duration) {}
func (nopRecorder) RecordExecution(int, time.Duration)     {}

// Config holds orchestrator tunables.
type Config struct {
	// FailOpenPolicy allows resolution when the policy engine is
	// unreachable. Default false: authorization fails secure.
	FailOpenPolicy bool

	// VectorTopK is how many glossary hits to request per metric
	// resolution (default: 3).
	VectorTopK int
}

// Orchestrator is the top-level resolution coordinator.
//
// Thread Safety: Safe for concurrent use; per-request state lives on the
// stack and in the request's DAG.
type Orchestrator struct {
	graph    stores.GraphStore
	vector   stores.VectorStore
	registry stores.AssetRegistry
	semantic stores.SemanticLayer
	policy   stores.PolicyEngine

	exec     *resilience.Executor
	cache    *ResolutionCache
	config   Config
	logger   *slog.Logger
	recorder Recorder
	tracer   trace.Tracer
}

// New creates an orchestrator over the five store capabilities.
func New(
	graph stores.GraphStore,
	vector stores.VectorStore,
	registry stores.AssetRegistry,
	semantic stores.SemanticLayer,
	policy stores.PolicyEngine,
	exec *resilience.Executor,
	cache *ResolutionCache,
	config Config,
	logger *slog.Logger,
	recorder Recorder,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if config.VectorTopK <= 0 {
		config.VectorTopK = 3
	}
	return &Orchestrator{
		graph:    graph,
		vector:   vector,
		registry: registry,
		semantic: semantic,
		policy:   policy,
		exec:     exec,
		cache:    cache,
		config:   config,
		logger:   logger.With(slog.String("component", "orchestrator")),
		recorder: recorder,
		tracer:   otel.Tracer(tracerName),
	}
}

// Degradation exposes the degradation registry for the API boundary.
func (o *Orchestrator) Degradation() *resilience.DegradationRegistry {
	return o.exec.Degradation()
}

// Cache exposes the resolution cache for stats and shutdown.
func (o *Orchestrator) Cache() *ResolutionCache { return o.cache }

// -----------------------------------------------------------------------------
// Resolve
// -----------------------------------------------------------------------------

// Resolve turns a free-form concept into an authorized, cached execution
// plan.
func (o *Orchestrator) Resolve(ctx context.Context, req datatypes.ResolveRequest) (*datatypes.ResolveResponse, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "orchestrator.resolve",
		trace.WithAttributes(attribute.String("concept", req.Concept)))
	defer span.End()

	resolutionID := uuid.NewString()
	userCtx := datatypes.UserContext{}
	if req.UserContext != nil {
		userCtx = *req.UserContext
	}
	userCtx = userCtx.WithDefaults()

	d := dag.New(resolutionID, userCtx.ToMap(), req.Concept)

	// Step 1: parse. Pure, never fails; empty tags mean system defaults.
	tags := parser.ParseConcept(req.Concept)
	d.Add(dag.Node{
		ID:     "parse_intent",
		Type:   "parse",
		Status: dag.StatusComplete,
		Output: map[string]any{"tags": tags},
	})

	// Steps 2-4: metric, region, and time resolve concurrently. Results
	// land in locals; DAG nodes are recorded afterwards in fixed pipeline
	// order so provenance is reproducible.
	var (
		metric resolvedMetric
		region resolvedRegion
		period resolvedTime
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { metric = o.resolveMetric(gctx, req.Concept, tags); return nil })
	g.Go(func() error { region = o.resolveRegion(gctx, tags, userCtx.Department); return nil })
	g.Go(func() error { period = o.resolveTime(gctx, tags); return nil })
	_ = g.Wait()

	d.Add(concretionNode("resolve_metric", "metric_resolution", []string{"parse_intent"}, map[string]any{
		"metric": metric,
	}))
	d.Add(concretionNode("resolve_region", "region_resolution", []string{"parse_intent"}, map[string]any{
		"region": region,
	}))
	d.Add(concretionNode("resolve_time", "time_resolution", []string{"parse_intent"}, map[string]any{
		"time_period": period,
	}))

	// Step 5: build the plan.
	plan := buildPlan(metric, region, period)
	d.Add(concretionNode("build_plan", "plan", []string{"resolve_metric", "resolve_region", "resolve_time"}, map[string]any{
		"plan": plan,
	}))

	resolvedConcepts := map[string]any{
		"metric":      metric,
		"region":      region,
		"time_period": period,
	}

	warnings := degradationWarnings(metric, region, period)

	// Step 6: authorize. Fail-secure: an unreachable policy engine denies
	// unless the fail-open override is configured.
	decision := o.authorize(ctx, userCtx, metric)
	d.Add(concretionNode("authorize", "authorization", []string{"build_plan"}, map[string]any{
		"decision": decision,
	}))

	if !decision.Allow {
		reason := decision.Reason
		if reason == "" {
			reason = "policy denied query"
		}
		warnings = append(warnings, datatypes.Warning{
			Type:    datatypes.WarningAccessDenied,
			Message: reason,
		})
		o.logger.Warn("Resolution denied",
			slog.String("resolution_id", resolutionID),
			slog.String("user_id", userCtx.UserID),
			slog.String("reason", reason))
		o.recorder.RecordResolution(string(datatypes.StatusAccessDenied), time.Since(start))

		return &datatypes.ResolveResponse{
			ResolutionID:     resolutionID,
			Status:           datatypes.StatusAccessDenied,
			ResolvedConcepts: resolvedConcepts,
			ConfidenceScore:  0,
			Provenance:       d.Snapshot(),
			Warnings:         warnings,
		}, nil
	}

	// Step 7: cache and return. The 0.92 default reflects the heuristic
	// parser's confidence ceiling.
	const confidence = 0.92
	o.cache.Put(resolutionID, CacheEntry{
		Plan:             plan,
		ResolvedConcepts: resolvedConcepts,
		UserContext:      userCtx,
		ConfidenceScore:  confidence,
	})

	o.logger.Info("Resolution complete",
		slog.String("resolution_id", resolutionID),
		slog.String("metric", metric.ID),
		slog.String("region", region.RegionCode),
		slog.String("period", period.Label),
		slog.Int("warnings", len(warnings)))
	o.recorder.RecordResolution(string(datatypes.StatusComplete), time.Since(start))

	return &datatypes.ResolveResponse{
		ResolutionID:     resolutionID,
		Status:           datatypes.StatusComplete,
		ExecutionPlan:    plan,
		ResolvedConcepts: resolvedConcepts,
		ConfidenceScore:  confidence,
		Provenance:       d.Snapshot(),
		Warnings:         warnings,
	}, nil
}

// resolveMetric finds the canonical metric: vector search for the
// glossary term, then graph lookup for the backend query ref. Both calls
// degrade to platform defaults rather than failing resolve.
func (o *Orchestrator) resolveMetric(ctx context.Context, concept string, tags []parser.ConceptTag) resolvedMetric {
	result := resolvedMetric{ID: DefaultMetricID, Sources: []string{}}

	hits, err := resilience.Call(ctx, o.exec, stores.BackendVector,
		func(ctx context.Context) ([]stores.SearchHit, error) {
			return o.vector.Search(ctx, concept, "glossary_term", o.config.VectorTopK)
		}, nil)
	if err != nil {
		// Default candidate stands; the vector store is already marked
		// degraded by the executor.
		result.Degraded = true
	} else if len(hits) > 0 {
		if canonical, ok := hits[0].Metadata["canonical_term"].(string); ok && canonical != "" {
			result.ID = canonical
		} else if hits[0].ID != "" {
			result.ID = hits[0].ID
		}
		result.Sources = append(result.Sources, stores.BackendVector)
	}

	metric, err := resilience.Call(ctx, o.exec, stores.BackendGraph,
		func(ctx context.Context) (*stores.Metric, error) {
			return o.graph.GetMetricByID(ctx, result.ID)
		}, nil)
	if err != nil {
		result.Degraded = true
		return result
	}
	if metric == nil {
		// Unknown metric id: the measure falls back to the default naming
		// convention in buildPlan.
		return result
	}

	result.SemanticLayerRef = metric.SemanticLayerRef
	result.Sources = append(result.Sources, stores.BackendGraph)
	return result
}

// resolveRegion resolves the region tag (or the platform default code)
// to a country list, with a static per-region fallback.
func (o *Orchestrator) resolveRegion(ctx context.Context, tags []parser.ConceptTag, department string) resolvedRegion {
	code := DefaultRegionCode
	if tag, ok := parser.RegionTag(tags); ok {
		code = tag.Raw
	}

	region, err := resilience.Call(ctx, o.exec, stores.BackendGraph,
		func(ctx context.Context) (*stores.Region, error) {
			return o.graph.ResolveRegion(ctx, code, department)
		},
		func(ctx context.Context, cause error) (*stores.Region, error) {
			return nil, cause
		})
	if err == nil && region != nil && len(region.Countries) > 0 {
		return resolvedRegion{
			RegionCode: code,
			Countries:  region.Countries,
			Source:     stores.BackendGraph,
		}
	}

	return resolvedRegion{
		RegionCode: code,
		Countries:  defaultRegionCountries[code],
		Source:     "static_default",
		Degraded:   err != nil,
	}
}

// resolveTime resolves the time tag against the active fiscal calendar,
// with a static default period as fallback.
func (o *Orchestrator) resolveTime(ctx context.Context, tags []parser.ConceptTag) resolvedTime {
	label := "last quarter"
	if tag, ok := parser.TimeTag(tags); ok {
		label = tag.Raw
	}

	asset, err := resilience.Call(ctx, o.exec, stores.BackendRegistry,
		func(ctx context.Context) (*stores.Asset, error) {
			return o.registry.GetAsset(ctx, FiscalCalendarAssetID)
		},
		func(ctx context.Context, cause error) (*stores.Asset, error) {
			return nil, cause
		})
	if err == nil && asset != nil {
		if period, ok := fiscalPeriodFor(asset.Content, label); ok {
			return period
		}
	}

	return resolvedTime{
		Label:    DefaultPeriodLabel,
		Start:    DefaultPeriodStart,
		End:      DefaultPeriodEnd,
		Source:   "static_default",
		Degraded: err != nil,
	}
}

// fiscalPeriodFor reads the period matching a tag label out of a fiscal
// calendar asset. Today only "last quarter" is mapped, to the calendar's
// current_quarter block.
func fiscalPeriodFor(content map[string]any, label string) (resolvedTime, bool) {
	if label != "last quarter" {
		return resolvedTime{}, false
	}
	quarter, ok := content["current_quarter"].(map[string]any)
	if !ok {
		return resolvedTime{}, false
	}
	name, _ := quarter["label"].(string)
	start, _ := quarter["start"].(string)
	end, _ := quarter["end"].(string)
	if name == "" || start == "" || end == "" {
		return resolvedTime{}, false
	}
	return resolvedTime{
		Label:  name,
		Start:  start,
		End:    end,
		Source: stores.BackendRegistry,
	}, true
}

// authorize evaluates policy for the plan. The fallback is fail-secure:
// deny unless FailOpenPolicy is set.
func (o *Orchestrator) authorize(ctx context.Context, userCtx datatypes.UserContext, metric resolvedMetric) *stores.PolicyDecision {
	user := map[string]any{
		"id":         userCtx.UserID,
		"role":       userCtx.Role,
		"department": userCtx.Department,
	}
	dataProduct := map[string]any{
		"name":               metric.ID,
		"certification_tier": 1,
	}

	decision, err := resilience.Call(ctx, o.exec, stores.BackendPolicy,
		func(ctx context.Context) (*stores.PolicyDecision, error) {
			return o.policy.Evaluate(ctx, user, "query", dataProduct)
		},
		func(ctx context.Context, cause error) (*stores.PolicyDecision, error) {
			return &stores.PolicyDecision{
				Allow:    o.config.FailOpenPolicy,
				Reason:   fmt.Sprintf("policy engine unavailable: %v", cause),
				Degraded: true,
			}, nil
		})
	if err != nil || decision == nil {
		return &stores.PolicyDecision{
			Allow:    o.config.FailOpenPolicy,
			Reason:   "policy evaluation failed",
			Degraded: true,
		}
	}
	return decision
}

// -----------------------------------------------------------------------------
// Execute
// -----------------------------------------------------------------------------

// Execute runs a previously resolved plan. Unknown or expired ids yield
// an empty result with a not_found warning, idempotently.
func (o *Orchestrator) Execute(ctx context.Context, req datatypes.ExecuteRequest) (*datatypes.ExecuteResponse, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "orchestrator.execute",
		trace.WithAttributes(attribute.String("resolution_id", req.ResolutionID)))
	defer span.End()

	entry, ok := o.cache.Get(req.ResolutionID)
	if !ok {
		o.recorder.RecordExecution(0, time.Since(start))
		return &datatypes.ExecuteResponse{
			Results:         map[string]any{},
			Provenance:      map[string]any{"resolution_id": req.ResolutionID},
			ConfidenceScore: 0,
			Warnings: []datatypes.Warning{{
				Type:    datatypes.WarningNotFound,
				Message: "resolution not found or expired",
			}},
		}, nil
	}

	type queryOutcome struct {
		id     string
		result map[string]any
		failed bool
	}
	outcomes := make([]queryOutcome, len(entry.Plan.Queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, query := range entry.Plan.Queries {
		g.Go(func() error {
			filters := mergeFilters(query.Filters, req.Parameters)
			result, err := resilience.Call(gctx, o.exec, stores.BackendSemantic,
				func(ctx context.Context) (*stores.QueryResult, error) {
					return o.semantic.ExecuteQuery(ctx, query.Measure, query.Dimensions, filters)
				},
				func(ctx context.Context, cause error) (*stores.QueryResult, error) {
					return &stores.QueryResult{
						Data:     []map[string]any{},
						Degraded: true,
						Reason:   cause.Error(),
					}, nil
				})
			if err != nil {
				// Per-query failure isolation: an inline marker, never a
				// batch abort.
				outcomes[i] = queryOutcome{id: query.ID, failed: true, result: map[string]any{
					"error": err.Error(),
					"data":  []map[string]any{},
				}}
				return nil
			}
			out := map[string]any{
				"data":       result.Data,
				"annotation": result.Annotation,
			}
			if result.Degraded {
				out["degraded"] = true
				out["reason"] = result.Reason
			}
			outcomes[i] = queryOutcome{id: query.ID, failed: result.Degraded, result: out}
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]any, len(outcomes))
	var warnings []datatypes.Warning
	for _, oc := range outcomes {
		results[oc.id] = oc.result
		if oc.failed {
			warnings = append(warnings, datatypes.Warning{
				Type:    datatypes.WarningDegraded,
				Message: fmt.Sprintf("query %s returned degraded or no data", oc.id),
			})
		}
	}

	o.logger.Info("Execution complete",
		slog.String("resolution_id", req.ResolutionID),
		slog.Int("queries", len(entry.Plan.Queries)),
		slog.Int("warnings", len(warnings)))
	o.recorder.RecordExecution(len(entry.Plan.Queries), time.Since(start))

	return &datatypes.ExecuteResponse{
		Results: results,
		Provenance: map[string]any{
			"resolution_id":     req.ResolutionID,
			"resolved_concepts": entry.ResolvedConcepts,
		},
		ConfidenceScore: entry.ConfidenceScore,
		Warnings:        warnings,
	}, nil
}

// -----------------------------------------------------------------------------
// Read Accessors
// -----------------------------------------------------------------------------

// Lineage fetches the lineage subgraph for a metric or table.
func (o *Orchestrator) Lineage(ctx context.Context, target string, depth int) (*stores.Lineage, error) {
	return resilience.Call(ctx, o.exec, stores.BackendGraph,
		func(ctx context.Context) (*stores.Lineage, error) {
			return o.graph.GetLineage(ctx, target, depth)
		}, nil)
}

// Glossary searches glossary terms in the asset registry.
func (o *Orchestrator) Glossary(ctx context.Context, query, domain string, limit int) ([]stores.Asset, error) {
	return resilience.Call(ctx, o.exec, stores.BackendRegistry,
		func(ctx context.Context) ([]stores.Asset, error) {
			return o.registry.SearchGlossary(ctx, query, domain, limit)
		}, nil)
}

// MetricsCatalog lists metrics carrying a dimension from the graph.
func (o *Orchestrator) MetricsCatalog(ctx context.Context, dimension, domain string, tier int) ([]stores.Metric, error) {
	return resilience.Call(ctx, o.exec, stores.BackendGraph,
		func(ctx context.Context) ([]stores.Metric, error) {
			return o.graph.ListMetricsForDimension(ctx, dimension, domain, tier)
		}, nil)
}

// StoreHealth probes every backend directly, bypassing resilience
// wrappers so the report reflects live reachability.
func (o *Orchestrator) StoreHealth(ctx context.Context) map[string]bool {
	checks := map[string]func(context.Context) error{
		stores.BackendGraph:    o.graph.Health,
		stores.BackendVector:   o.vector.Health,
		stores.BackendRegistry: o.registry.Health,
		stores.BackendSemantic: o.semantic.Health,
		stores.BackendPolicy:   o.policy.Health,
	}

	var mu sync.Mutex
	health := make(map[string]bool, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	for name, check := range checks {
		g.Go(func() error {
			err := check(gctx)
			mu.Lock()
			health[name] = err == nil
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return health
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func concretionNode(id, nodeType string, deps []string, output map[string]any) dag.Node {
	return dag.Node{
		ID:        id,
		Type:      nodeType,
		Status:    dag.StatusComplete,
		DependsOn: deps,
		Output:    output,
	}
}

// degradationWarnings emits one warning per degraded resolution step.
func degradationWarnings(metric resolvedMetric, region resolvedRegion, period resolvedTime) []datatypes.Warning {
	var warnings []datatypes.Warning
	if metric.Degraded {
		warnings = append(warnings, datatypes.Warning{
			Type:    datatypes.WarningDegraded,
			Message: "metric resolution used platform defaults",
		})
	}
	if region.Degraded {
		warnings = append(warnings, datatypes.Warning{
			Type:    datatypes.WarningDegraded,
			Message: "region resolution used static default country list",
		})
	}
	if period.Degraded {
		warnings = append(warnings, datatypes.Warning{
			Type:    datatypes.WarningDegraded,
			Message: "time resolution used static default fiscal period",
		})
	}
	return warnings
}
