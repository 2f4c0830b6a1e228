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

// OPAClient implements PolicyEngine against an Open Policy Agent server's
// data API.
//
// Thread Safety: Safe for concurrent use.
type OPAClient struct {
	baseURL    string
	policyPath string
	client     *http.Client
	logger     *slog.Logger
}

// NewOPAClient creates a PolicyEngine adapter. policyPath is the data API
// path of the decision document (e.g. "ecp/authz/decision").
func NewOPAClient(baseURL, policyPath string, logger *slog.Logger) *OPAClient {
	if logger == nil {
		logger = slog.Default()
	}
	if policyPath == "" {
		policyPath = "ecp/authz/decision"
	}
	return &OPAClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		policyPath: strings.Trim(policyPath, "/"),
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With(slog.String("component", "policy_engine")),
	}
}

// Evaluate asks OPA whether user may perform action on dataProduct.
//
// A missing decision document (OPA returns an empty result) is treated as
// an explicit deny, never as an engine failure.
func (c *OPAClient) Evaluate(ctx context.Context, user map[string]any, action string, dataProduct map[string]any) (*PolicyDecision, error) {
	input := map[string]any{
		"input": map[string]any{
			"user":         user,
			"action":       action,
			"data_product": dataProduct,
		},
	}
	body, err := json.Marshal(input)
	if err != nil {
		return nil, ecperr.NewInvalidQuery(action, "policy input not serializable: "+err.Error())
	}

	url := c.baseURL + "/v1/data/" + c.policyPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, ecperr.NewInvalidQuery(action, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, ecperr.NewStoreConnection(BackendPolicy, "evaluate request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, ecperr.NewStoreConnection(BackendPolicy, "read response failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ecperr.NewStoreConnection(BackendPolicy,
			fmt.Sprintf("evaluate returned %d", resp.StatusCode), nil)
	}

	var decoded struct {
		Result map[string]any `json:"result"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, ecperr.NewStoreQuery(BackendPolicy, c.policyPath, "malformed response: "+err.Error())
	}

	decision := &PolicyDecision{Raw: decoded.Result}
	if decoded.Result == nil {
		decision.Reason = "no decision document at policy path"
		return decision, nil
	}
	if v, ok := decoded.Result["allow"].(bool); ok {
		decision.Allow = v
	}
	if v, ok := decoded.Result["reason"].(string); ok {
		decision.Reason = v
	}
	return decision, nil
}

// Health probes OPA's health endpoint.
func (c *OPAClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return ecperr.NewStoreConnection(BackendPolicy, "build probe failed", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return ecperr.NewStoreConnection(BackendPolicy, "health probe failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return ecperr.NewStoreConnection(BackendPolicy,
			fmt.Sprintf("health probe returned %d", resp.StatusCode), nil)
	}
	return nil
}
