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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPlan_FullyResolved(t *testing.T) {
	plan := buildPlan(
		resolvedMetric{ID: "net_revenue", SemanticLayerRef: "Revenue.netRevenue"},
		resolvedRegion{RegionCode: "APAC", Countries: []string{"JP", "KR", "SG"}},
		resolvedTime{Label: "Q3-2024", Start: "2024-10-01", End: "2024-12-31"},
	)

	assert.Equal(t, PlanTypeSingleMetric, plan.PlanType)
	require.Len(t, plan.Queries, 1)

	query := plan.Queries[0]
	assert.Equal(t, "actual_revenue", query.ID)
	assert.Equal(t, "Revenue.netRevenue", query.Measure)
	assert.Equal(t, []string{"JP", "KR", "SG"}, query.Filters["Revenue.region"])
	assert.NotContains(t, query.Filters, "Revenue.region_code")
	assert.Equal(t, map[string]any{"start": "2024-10-01", "end": "2024-12-31"},
		query.Filters["Revenue.date_range"])
}

func TestBuildPlan_DefaultMeasureWhenRefMissing(t *testing.T) {
	plan := buildPlan(resolvedMetric{ID: "net_revenue"}, resolvedRegion{}, resolvedTime{})

	require.Len(t, plan.Queries, 1)
	assert.Equal(t, DefaultMeasure, plan.Queries[0].Measure)
}

func TestBuildPlan_RegionCodeFallbackWithoutCountries(t *testing.T) {
	plan := buildPlan(
		resolvedMetric{SemanticLayerRef: "Revenue.netRevenue"},
		resolvedRegion{RegionCode: "APAC"},
		resolvedTime{},
	)

	query := plan.Queries[0]
	assert.Equal(t, "APAC", query.Filters["Revenue.region_code"])
	assert.NotContains(t, query.Filters, "Revenue.region")
	assert.NotContains(t, query.Filters, "Revenue.date_range")
}

func TestBuildPlan_AlwaysAtLeastOneQuery(t *testing.T) {
	plan := buildPlan(resolvedMetric{}, resolvedRegion{}, resolvedTime{})
	require.NotEmpty(t, plan.Queries)
	assert.Empty(t, plan.Queries[0].Filters)
}

func TestMeasureCube(t *testing.T) {
	tests := []struct {
		measure string
		want    string
	}{
		{"Revenue.netRevenue", "Revenue"},
		{"Orders.count", "Orders"},
		{"bare", "bare"},
		{".leadingDot", ".leadingDot"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, measureCube(tt.measure), tt.measure)
	}
}

func TestMergeFilters_ParametersWin(t *testing.T) {
	static := map[string]any{
		"Revenue.region":     []string{"JP", "KR", "SG"},
		"Revenue.date_range": map[string]any{"start": "2024-10-01", "end": "2024-12-31"},
	}
	params := map[string]any{"Revenue.region": []string{"JP"}}

	merged := mergeFilters(static, params)
	assert.Equal(t, []string{"JP"}, merged["Revenue.region"])
	assert.Equal(t, static["Revenue.date_range"], merged["Revenue.date_range"])

	// The static map is untouched.
	assert.Equal(t, []string{"JP", "KR", "SG"}, static["Revenue.region"])
}

func TestMergeFilters_NilInputs(t *testing.T) {
	assert.Empty(t, mergeFilters(nil, nil))
	assert.Equal(t, map[string]any{"a": 1}, mergeFilters(map[string]any{"a": 1}, nil))
	assert.Equal(t, map[string]any{"a": 1}, mergeFilters(nil, map[string]any{"a": 1}))
}
