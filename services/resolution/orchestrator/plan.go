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
	"strings"

	"github.com/ecp-platform/ecp/services/resolution/datatypes"
)

// Platform defaults used when parsing or a degraded backend leaves a
// concept unresolved.
const (
	DefaultMetricID   = "net_revenue"
	DefaultMeasure    = "Revenue.netRevenue"
	DefaultRegionCode = "APAC"

	// FiscalCalendarAssetID is the registry asset holding the active
	// fiscal calendar.
	FiscalCalendarAssetID = "ar_cal_001"

	DefaultPeriodLabel = "Q3-2024"
	DefaultPeriodStart = "2024-10-01"
	DefaultPeriodEnd   = "2024-12-31"
)

// defaultRegionCountries are the static per-region fallbacks used when
// the graph cannot resolve a region variation.
var defaultRegionCountries = map[string][]string{
	"APAC": {"JP", "KR", "SG", "HK", "TW", "AU", "NZ", "IN", "CN"},
	"EMEA": {"GB", "DE", "FR", "NL", "AE", "ZA"},
	"AMER": {"US", "CA", "MX", "BR"},
}

// PlanTypeSingleMetric is the only plan shape the builder currently
// emits: one query per resolvable measure.
const PlanTypeSingleMetric = "single_metric_query"

// resolvedMetric is the synthesized outcome of the metric resolution step.
type resolvedMetric struct {
	ID               string   `json:"id"`
	SemanticLayerRef string   `json:"semantic_layer_ref"`
	Sources          []string `json:"sources"`
	Degraded         bool     `json:"degraded,omitempty"`
}

// resolvedRegion is the outcome of the region resolution step.
type resolvedRegion struct {
	RegionCode string   `json:"region_code"`
	Countries  []string `json:"countries"`
	Source     string   `json:"source"`
	Degraded   bool     `json:"degraded,omitempty"`
}

// resolvedTime is the outcome of the time resolution step.
type resolvedTime struct {
	Label    string `json:"label"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Source   string `json:"source"`
	Degraded bool   `json:"degraded,omitempty"`
}

// buildPlan assembles the execution plan from the three resolved
// concepts. The measure comes from the metric's semantic layer ref with
// a convention fallback; filters prefer the explicit country list over a
// bare region code; the plan always contains at least one query.
func buildPlan(metric resolvedMetric, region resolvedRegion, period resolvedTime) *datatypes.ExecutionPlan {
	measure := metric.SemanticLayerRef
	if measure == "" {
		measure = DefaultMeasure
	}
	cube := measureCube(measure)

	filters := map[string]any{}
	if len(region.Countries) > 0 {
		filters[cube+".region"] = region.Countries
	} else if region.RegionCode != "" {
		filters[cube+".region_code"] = region.RegionCode
	}
	if period.Start != "" && period.End != "" {
		filters[cube+".date_range"] = map[string]any{
			"start": period.Start,
			"end":   period.End,
		}
	}

	return &datatypes.ExecutionPlan{
		PlanType: PlanTypeSingleMetric,
		Queries: []datatypes.Query{
			{
				ID:         "actual_revenue",
				Measure:    measure,
				Dimensions: []string{},
				Filters:    filters,
			},
		},
	}
}

// measureCube extracts the cube name from a measure ref like
// "Revenue.netRevenue".
func measureCube(measure string) string {
	if idx := strings.IndexByte(measure, '.'); idx > 0 {
		return measure[:idx]
	}
	return measure
}

// mergeFilters overlays runtime parameters onto a plan query's static
// filters without mutating the cached plan. Parameters win on key
// collision.
func mergeFilters(static map[string]any, params map[string]any) map[string]any {
	merged := make(map[string]any, len(static)+len(params))
	for k, v := range static {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}
