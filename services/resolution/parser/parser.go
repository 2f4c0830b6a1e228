// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package parser extracts coarse concept tags from a free-text business
// concept. It is a deliberately minimal keyword heuristic: matching is
// case-insensitive substring search against a small fixed vocabulary, it
// never fails, and an unmatched concept simply yields no tags so the
// orchestrator proceeds with system defaults.
package parser

import "strings"

// TagType classifies a concept tag.
type TagType string

const (
	// TagMetric marks a measurable quantity ("revenue").
	TagMetric TagType = "metric"
	// TagDimensionFilter marks a dimension constraint ("APAC" on region).
	TagDimensionFilter TagType = "dimension_filter"
	// TagTimeFilter marks a time constraint ("last quarter").
	TagTimeFilter TagType = "time_filter"
)

// ConceptTag is one extracted tag with its matching confidence.
type ConceptTag struct {
	Type       TagType `json:"type"`
	Raw        string  `json:"raw"`
	Dimension  string  `json:"dimension,omitempty"`
	Confidence float64 `json:"confidence"`
}

// regionKeywords maps concept substrings to region codes.
var regionKeywords = []struct {
	keyword string
	code    string
}{
	{"apac", "APAC"},
	{"asia", "APAC"},
	{"emea", "EMEA"},
	{"europe", "EMEA"},
	{"americas", "AMER"},
}

// ParseConcept maps a free-text concept to zero or more typed tags.
//
// Pure and stateless; the result for a given input never changes. The
// orchestrator records the output as the first DAG node.
func ParseConcept(concept string) []ConceptTag {
	lower := strings.ToLower(concept)
	var tags []ConceptTag

	if strings.Contains(lower, "revenue") {
		tags = append(tags, ConceptTag{
			Type:       TagMetric,
			Raw:        "revenue",
			Confidence: 0.95,
		})
	}

	for _, rk := range regionKeywords {
		if strings.Contains(lower, rk.keyword) {
			tags = append(tags, ConceptTag{
				Type:       TagDimensionFilter,
				Raw:        rk.code,
				Dimension:  "region",
				Confidence: 0.98,
			})
			break
		}
	}

	if strings.Contains(lower, "quarter") {
		tags = append(tags, ConceptTag{
			Type:       TagTimeFilter,
			Raw:        "last quarter",
			Confidence: 0.92,
		})
	}

	return tags
}

// MetricTag returns the first metric tag, if any.
func MetricTag(tags []ConceptTag) (ConceptTag, bool) {
	return firstOfType(tags, TagMetric)
}

// RegionTag returns the first dimension-filter tag on region, if any.
func RegionTag(tags []ConceptTag) (ConceptTag, bool) {
	for _, t := range tags {
		if t.Type == TagDimensionFilter && t.Dimension == "region" {
			return t, true
		}
	}
	return ConceptTag{}, false
}

// TimeTag returns the first time-filter tag, if any.
func TimeTag(tags []ConceptTag) (ConceptTag, bool) {
	return firstOfType(tags, TagTimeFilter)
}

func firstOfType(tags []ConceptTag, tt TagType) (ConceptTag, bool) {
	for _, t := range tags {
		if t.Type == tt {
			return t, true
		}
	}
	return ConceptTag{}, false
}
