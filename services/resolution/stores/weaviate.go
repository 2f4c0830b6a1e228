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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/ecp-platform/ecp/services/resolution/ecperr"
)

// ContextDocumentClass is the Weaviate class holding glossary terms and
// tribal knowledge documents.
const ContextDocumentClass = "ContextDocument"

// WeaviateStore implements VectorStore against a Weaviate instance.
//
// Thread Safety: Safe for concurrent use.
type WeaviateStore struct {
	client *weaviate.Client
	logger *slog.Logger
}

// NewWeaviateStore creates a VectorStore adapter for the given Weaviate
// URL (e.g. "http://localhost:8080").
func NewWeaviateStore(url string, logger *slog.Logger) (*WeaviateStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := weaviate.Config{
		Host:   url,
		Scheme: "http",
	}
	if strings.HasPrefix(url, "https://") {
		cfg.Scheme = "https"
		cfg.Host = strings.TrimPrefix(url, "https://")
	} else if strings.HasPrefix(url, "http://") {
		cfg.Host = strings.TrimPrefix(url, "http://")
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	return &WeaviateStore{
		client: client,
		logger: logger.With(slog.String("component", "vector_store")),
	}, nil
}

// Search runs a nearText semantic search over context documents.
func (s *WeaviateStore) Search(ctx context.Context, queryText, typeFilter string, topK int) ([]SearchHit, error) {
	if topK <= 0 {
		topK = 5
	}

	nearText := s.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{queryText})

	fields := []graphql.Field{
		{Name: "docId"},
		{Name: "docType"},
		{Name: "contentText"},
		{Name: "metadataJson"},
		{Name: "_additional { certainty }"},
	}

	query := s.client.GraphQL().Get().
		WithClassName(ContextDocumentClass).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(topK)

	if typeFilter != "" {
		query = query.WithWhere(filters.Where().
			WithPath([]string{"docType"}).
			WithOperator(filters.Equal).
			WithValueString(typeFilter))
	}

	result, err := query.Do(ctx)
	if err != nil {
		return nil, ecperr.NewStoreConnection(BackendVector, "graphql query failed", err)
	}
	if len(result.Errors) > 0 {
		return nil, ecperr.NewStoreQuery(BackendVector, "nearText", result.Errors[0].Message)
	}

	data := make(map[string]any, len(result.Data))
	for k, v := range result.Data {
		data[k] = v
	}
	return parseSearchHits(data)
}

// Health checks Weaviate readiness.
func (s *WeaviateStore) Health(ctx context.Context) error {
	ready, err := s.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return ecperr.NewStoreConnection(BackendVector, "readiness probe failed", err)
	}
	if !ready {
		return ecperr.NewStoreConnection(BackendVector, "weaviate not ready", nil)
	}
	return nil
}

// parseSearchHits walks the GraphQL response into typed hits. Malformed
// entries are skipped rather than failing the whole search.
func parseSearchHits(data map[string]any) ([]SearchHit, error) {
	get, ok := data["Get"].(map[string]any)
	if !ok {
		return nil, ecperr.NewStoreQuery(BackendVector, "nearText", "response missing Get block")
	}
	raw, ok := get[ContextDocumentClass].([]any)
	if !ok {
		return []SearchHit{}, nil
	}

	hits := make([]SearchHit, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		hit := SearchHit{Metadata: map[string]any{}}
		if v, ok := obj["docId"].(string); ok {
			hit.ID = v
		}
		if v, ok := obj["docType"].(string); ok {
			hit.Type = v
		}
		if v, ok := obj["contentText"].(string); ok {
			hit.ContentText = v
		}
		if v, ok := obj["metadataJson"].(string); ok && v != "" {
			var meta map[string]any
			if err := json.Unmarshal([]byte(v), &meta); err == nil {
				hit.Metadata = meta
			}
		}
		if add, ok := obj["_additional"].(map[string]any); ok {
			if c, ok := add["certainty"].(float64); ok {
				hit.Score = c
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
