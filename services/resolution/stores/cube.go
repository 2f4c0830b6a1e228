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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ecp-platform/ecp/services/resolution/ecperr"
)

// CubeClient implements SemanticLayer against a Cube REST API.
//
// Thread Safety: Safe for concurrent use.
type CubeClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewCubeClient creates a SemanticLayer adapter for the given Cube base
// URL (e.g. "http://localhost:4000/cubejs-api").
func NewCubeClient(baseURL, apiKey string, logger *slog.Logger) *CubeClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &CubeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With(slog.String("component", "semantic_layer")),
	}
}

// cubeQuery is the wire shape of a Cube load request.
type cubeQuery struct {
	Measures       []string            `json:"measures"`
	Dimensions     []string            `json:"dimensions,omitempty"`
	Filters        []cubeFilter        `json:"filters,omitempty"`
	TimeDimensions []cubeTimeDimension `json:"timeDimensions,omitempty"`
}

type cubeFilter struct {
	Member   string   `json:"member"`
	Operator string   `json:"operator"`
	Values   []string `json:"values"`
}

type cubeTimeDimension struct {
	Dimension string   `json:"dimension"`
	DateRange []string `json:"dateRange"`
}

// ExecuteQuery runs one metric query through Cube's /v1/load endpoint.
//
// Filters translate positionally: a list value becomes an equals filter
// over its members, a scalar becomes a single-value equals filter, and a
// map carrying start/end becomes a time dimension date range.
func (c *CubeClient) ExecuteQuery(ctx context.Context, measure string, dimensions []string, filters map[string]any) (*QueryResult, error) {
	query := cubeQuery{
		Measures:   []string{measure},
		Dimensions: dimensions,
	}

	cube := measureCube(measure)
	for member, value := range filters {
		// Plan filters arrive pre-qualified (Revenue.region); qualify bare
		// members against the measure's cube.
		if !strings.Contains(member, ".") {
			member = cube + "." + member
		}
		switch v := value.(type) {
		case []string:
			query.Filters = append(query.Filters, cubeFilter{
				Member: member, Operator: "equals", Values: v,
			})
		case []any:
			values := make([]string, 0, len(v))
			for _, item := range v {
				values = append(values, fmt.Sprint(item))
			}
			query.Filters = append(query.Filters, cubeFilter{
				Member: member, Operator: "equals", Values: values,
			})
		case map[string]any:
			start, _ := v["start"].(string)
			end, _ := v["end"].(string)
			if start != "" && end != "" {
				query.TimeDimensions = append(query.TimeDimensions, cubeTimeDimension{
					Dimension: member,
					DateRange: []string{start, end},
				})
			}
		default:
			query.Filters = append(query.Filters, cubeFilter{
				Member: member, Operator: "equals", Values: []string{fmt.Sprint(v)},
			})
		}
	}

	body, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return nil, ecperr.NewInvalidQuery(measure, "query not serializable: "+err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/load", bytes.NewReader(body))
	if err != nil {
		return nil, ecperr.NewInvalidQuery(measure, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, ecperr.NewStoreConnection(BackendSemantic, "load request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, ecperr.NewStoreConnection(BackendSemantic, "read response failed", err)
	}

	if resp.StatusCode >= 500 {
		return nil, ecperr.NewStoreConnection(BackendSemantic,
			fmt.Sprintf("load returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, ecperr.NewStoreQuery(BackendSemantic, measure,
			fmt.Sprintf("load returned %d: %s", resp.StatusCode, truncate(string(raw), 200)))
	}

	var decoded struct {
		Data       []map[string]any `json:"data"`
		Annotation map[string]any   `json:"annotation"`
		Error      string           `json:"error"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, ecperr.NewStoreQuery(BackendSemantic, measure, "malformed response: "+err.Error())
	}
	if decoded.Error != "" {
		// Cube signals pre-aggregation warmup with a retryable wait error.
		if strings.Contains(decoded.Error, "Continue wait") {
			return nil, ecperr.NewStoreConnection(BackendSemantic, "cube temporary wait", nil)
		}
		return nil, ecperr.NewStoreQuery(BackendSemantic, measure, decoded.Error)
	}

	return &QueryResult{Data: decoded.Data, Annotation: decoded.Annotation}, nil
}

// Health probes Cube's readiness endpoint.
func (c *CubeClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/readyz", nil)
	if err != nil {
		return ecperr.NewStoreConnection(BackendSemantic, "build probe failed", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return ecperr.NewStoreConnection(BackendSemantic, "readiness probe failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return ecperr.NewStoreConnection(BackendSemantic,
			fmt.Sprintf("readiness probe returned %d", resp.StatusCode), nil)
	}
	return nil
}

// measureCube extracts the cube name from a measure ref like
// "Revenue.netRevenue".
func measureCube(measure string) string {
	if idx := strings.IndexByte(measure, '.'); idx > 0 {
		return measure[:idx]
	}
	return measure
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
