// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stores

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ecp-platform/ecp/services/resolution/ecperr"
)

// Neo4jStore implements GraphStore against a Neo4j knowledge graph.
//
// The graph model: (:Metric {id, name, semantic_layer_ref, domain,
// certification_tier})-[:HAS_DIMENSION]->(:Dimension {name}), and
// (:Region {code})-[:HAS_VARIATION]->(:RegionVariation {context,
// countries}).
//
// Thread Safety: Safe for concurrent use; the underlying driver pools
// connections.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewNeo4jStore connects a GraphStore adapter. Connectivity is not
// verified here; Health does that so the service can start degraded.
func NewNeo4jStore(uri, username, password, database string, logger *slog.Logger) (*Neo4jStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if database == "" {
		database = "neo4j"
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	return &Neo4jStore{
		driver:   driver,
		database: database,
		logger:   logger.With(slog.String("component", "graph_store")),
	}, nil
}

// Close releases the driver's connection pool.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// GetMetricByID fetches one metric node with its semantic layer ref.
func (s *Neo4jStore) GetMetricByID(ctx context.Context, id string) (*Metric, error) {
	const cypher = `
		MATCH (m:Metric {id: $id})
		RETURN m.id AS id, m.name AS name,
		       m.semantic_layer_ref AS semantic_layer_ref,
		       properties(m) AS props`

	result, err := s.run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, nil
	}

	rec := result.Records[0]
	m := &Metric{ID: id}
	if v, ok := rec.Get("name"); ok {
		m.Name, _ = v.(string)
	}
	if v, ok := rec.Get("semantic_layer_ref"); ok {
		m.SemanticLayerRef, _ = v.(string)
	}
	if v, ok := rec.Get("props"); ok {
		m.Metadata, _ = v.(map[string]any)
	}
	return m, nil
}

// ResolveRegion resolves a region code to its country list for a caller
// context, falling back to the region's default variation.
func (s *Neo4jStore) ResolveRegion(ctx context.Context, code, callerContext string) (*Region, error) {
	const cypher = `
		MATCH (r:Region {code: $code})-[:HAS_VARIATION]->(v:RegionVariation)
		WHERE v.context = $context OR v.context = 'default'
		RETURN v.context AS context, v.countries AS countries
		ORDER BY CASE v.context WHEN $context THEN 0 ELSE 1 END
		LIMIT 1`

	result, err := s.run(ctx, cypher, map[string]any{
		"code":    code,
		"context": callerContext,
	})
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, nil
	}

	rec := result.Records[0]
	region := &Region{RegionCode: code, Source: BackendGraph}
	if v, ok := rec.Get("countries"); ok {
		if list, ok := v.([]any); ok {
			for _, c := range list {
				if str, ok := c.(string); ok {
					region.Countries = append(region.Countries, str)
				}
			}
		}
	}
	return region, nil
}

// GetLineage fetches upstream and downstream edges around a target node
// up to the given depth.
func (s *Neo4jStore) GetLineage(ctx context.Context, target string, depth int) (*Lineage, error) {
	if depth <= 0 || depth > 5 {
		depth = 2
	}

	cypher := fmt.Sprintf(`
		MATCH path = (n {id: $target})-[:DERIVED_FROM|FEEDS*1..%d]-(related)
		UNWIND relationships(path) AS rel
		RETURN DISTINCT
		       properties(startNode(rel)) AS from_node,
		       properties(endNode(rel)) AS to_node,
		       type(rel) AS rel_type`, depth)

	result, err := s.run(ctx, cypher, map[string]any{"target": target})
	if err != nil {
		return nil, err
	}

	lineage := &Lineage{
		Target: target,
		Nodes:  []map[string]any{},
		Edges:  []map[string]any{},
	}
	seen := map[string]bool{}
	for _, rec := range result.Records {
		from, _ := recordMap(rec, "from_node")
		to, _ := recordMap(rec, "to_node")
		relType := ""
		if v, ok := rec.Get("rel_type"); ok {
			relType, _ = v.(string)
		}
		for _, node := range []map[string]any{from, to} {
			if node == nil {
				continue
			}
			id, _ := node["id"].(string)
			if id != "" && !seen[id] {
				seen[id] = true
				lineage.Nodes = append(lineage.Nodes, node)
			}
		}
		lineage.Edges = append(lineage.Edges, map[string]any{
			"from": from["id"],
			"to":   to["id"],
			"type": relType,
		})
	}
	return lineage, nil
}

// ListMetricsForDimension lists metrics that carry a dimension, optionally
// filtered by domain and minimum certification tier.
func (s *Neo4jStore) ListMetricsForDimension(ctx context.Context, dimension, domain string, tier int) ([]Metric, error) {
	const cypher = `
		MATCH (m:Metric)-[:HAS_DIMENSION]->(d:Dimension {name: $dimension})
		WHERE ($domain = '' OR m.domain = $domain)
		  AND ($tier = 0 OR m.certification_tier <= $tier)
		RETURN m.id AS id, m.name AS name,
		       m.semantic_layer_ref AS semantic_layer_ref
		ORDER BY m.certification_tier, m.id`

	result, err := s.run(ctx, cypher, map[string]any{
		"dimension": dimension,
		"domain":    domain,
		"tier":      tier,
	})
	if err != nil {
		return nil, err
	}

	metrics := make([]Metric, 0, len(result.Records))
	for _, rec := range result.Records {
		var m Metric
		if v, ok := rec.Get("id"); ok {
			m.ID, _ = v.(string)
		}
		if v, ok := rec.Get("name"); ok {
			m.Name, _ = v.(string)
		}
		if v, ok := rec.Get("semantic_layer_ref"); ok {
			m.SemanticLayerRef, _ = v.(string)
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

// Health verifies driver connectivity.
func (s *Neo4jStore) Health(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return ecperr.NewStoreConnection(BackendGraph, "connectivity check failed", err)
	}
	return nil
}

// run executes one cypher query, mapping driver failures into the error
// taxonomy.
func (s *Neo4jStore) run(ctx context.Context, cypher string, params map[string]any) (*neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver, cypher, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ecperr.NewStoreConnection(BackendGraph, "query interrupted", err)
		}
		return nil, ecperr.NewStoreConnection(BackendGraph, "query failed", err)
	}
	return result, nil
}

func recordMap(rec *neo4j.Record, key string) (map[string]any, bool) {
	v, ok := rec.Get(key)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}
