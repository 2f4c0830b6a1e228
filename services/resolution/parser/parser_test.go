// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package parser

import "testing"

func TestParseConcept(t *testing.T) {
	tests := []struct {
		name       string
		concept    string
		wantTypes  []TagType
		wantRegion string
	}{
		{
			name:       "full concept",
			concept:    "APAC revenue last quarter",
			wantTypes:  []TagType{TagMetric, TagDimensionFilter, TagTimeFilter},
			wantRegion: "APAC",
		},
		{
			name:       "case insensitive",
			concept:    "ReVeNuE in asia",
			wantTypes:  []TagType{TagMetric, TagDimensionFilter},
			wantRegion: "APAC",
		},
		{
			name:       "europe keyword",
			concept:    "europe revenue",
			wantTypes:  []TagType{TagMetric, TagDimensionFilter},
			wantRegion: "EMEA",
		},
		{
			name:      "metric only",
			concept:   "total revenue",
			wantTypes: []TagType{TagMetric},
		},
		{
			name:      "time only",
			concept:   "sales last quarter",
			wantTypes: []TagType{TagTimeFilter},
		},
		{
			name:      "no matches",
			concept:   "something unrelated",
			wantTypes: nil,
		},
		{
			name:      "empty string",
			concept:   "",
			wantTypes: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tags := ParseConcept(tt.concept)
			if len(tags) != len(tt.wantTypes) {
				t.Fatalf("tags = %d, want %d: %+v", len(tags), len(tt.wantTypes), tags)
			}
			for i, wantType := range tt.wantTypes {
				if tags[i].Type != wantType {
					t.Errorf("tags[%d].Type = %s, want %s", i, tags[i].Type, wantType)
				}
				if tags[i].Confidence <= 0 || tags[i].Confidence > 1 {
					t.Errorf("tags[%d].Confidence = %f out of range", i, tags[i].Confidence)
				}
			}
			if tt.wantRegion != "" {
				tag, ok := RegionTag(tags)
				if !ok {
					t.Fatal("expected a region tag")
				}
				if tag.Raw != tt.wantRegion {
					t.Errorf("region = %s, want %s", tag.Raw, tt.wantRegion)
				}
				if tag.Dimension != "region" {
					t.Errorf("dimension = %s, want region", tag.Dimension)
				}
			}
		})
	}
}

func TestParseConcept_Deterministic(t *testing.T) {
	a := ParseConcept("APAC revenue last quarter")
	b := ParseConcept("APAC revenue last quarter")
	if len(a) != len(b) {
		t.Fatal("repeated parse returned different tag counts")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("tag %d differs between parses: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestTagAccessors(t *testing.T) {
	tags := ParseConcept("APAC revenue last quarter")

	if tag, ok := MetricTag(tags); !ok || tag.Raw != "revenue" {
		t.Errorf("MetricTag = %+v, %v", tag, ok)
	}
	if tag, ok := TimeTag(tags); !ok || tag.Raw != "last quarter" {
		t.Errorf("TimeTag = %+v, %v", tag, ok)
	}

	empty := ParseConcept("nothing here")
	if _, ok := MetricTag(empty); ok {
		t.Error("MetricTag on empty tag list reported a match")
	}
	if _, ok := RegionTag(empty); ok {
		t.Error("RegionTag on empty tag list reported a match")
	}
}
