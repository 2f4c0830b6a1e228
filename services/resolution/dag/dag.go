// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dag records the causal order of resolution steps for audit and
// provenance. The DAG is built and consumed within a single resolution
// request; it is a record, not a re-entrant scheduler.
package dag

import "sync"

// NodeStatus is the lifecycle state of one resolution step.
type NodeStatus string

const (
	// StatusPending means the step has not run yet.
	StatusPending NodeStatus = "pending"
	// StatusComplete means the step finished and its output is set.
	StatusComplete NodeStatus = "complete"
	// StatusFailed means the step failed; output may hold failure context.
	StatusFailed NodeStatus = "failed"
)

// Node is one resolution step. Nodes are append-only once created; a
// node's output is set exactly once, at the moment its step completes.
type Node struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Status    NodeStatus     `json:"status"`
	DependsOn []string       `json:"depends_on,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
}

// DAG is the ordered record of resolution steps for one resolve request.
//
// Node order is the fixed pipeline order in which the orchestrator records
// steps, never completion order, so provenance is reproducible even when
// the underlying store calls run concurrently.
//
// Thread Safety: Safe for concurrent use, though the orchestrator records
// nodes sequentially after gathering concurrent results.
type DAG struct {
	QueryID       string         `json:"query_id"`
	UserContext   map[string]any `json:"user_context"`
	OriginalQuery string         `json:"original_query"`

	mu    sync.Mutex
	nodes []Node
}

// New creates an empty DAG for one resolution request.
func New(queryID string, userContext map[string]any, originalQuery string) *DAG {
	if userContext == nil {
		userContext = map[string]any{}
	}
	return &DAG{
		QueryID:       queryID,
		UserContext:   userContext,
		OriginalQuery: originalQuery,
	}
}

// Add appends a completed (or failed) step. Appending is the only mutation
// the DAG supports.
func (d *DAG) Add(node Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nodes = append(d.nodes, node)
}

// Nodes returns a copy of the recorded steps in recording order.
func (d *DAG) Nodes() []Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Node, len(d.nodes))
	copy(out, d.nodes)
	return out
}

// Snapshot renders the DAG for inclusion in response provenance.
func (d *DAG) Snapshot() map[string]any {
	return map[string]any{
		"query_id":       d.QueryID,
		"user_context":   d.UserContext,
		"original_query": d.OriginalQuery,
		"nodes":          d.Nodes(),
	}
}
