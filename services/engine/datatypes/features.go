// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the shared data structures for the refine
// engine: feature vectors, strategies, drafts, assessments, and the
// request/response envelopes served over HTTP.
package datatypes

// =============================================================================
// Query Feature Types
// =============================================================================

// Complexity buckets a request by how much reasoning it likely needs.
type Complexity string

const (
	ComplexitySimple      Complexity = "simple"
	ComplexityModerate    Complexity = "moderate"
	ComplexityComplex     Complexity = "complex"
	ComplexityVeryComplex Complexity = "very_complex"
)

// QueryType classifies the shape of the question being asked.
type QueryType string

const (
	QueryFactual     QueryType = "factual"
	QueryConceptual  QueryType = "conceptual"
	QueryComparative QueryType = "comparative"
	QueryPrinciple   QueryType = "principle"
	QueryMultiAspect QueryType = "multi_aspect"
)

// FeatureVector is the typed analysis of one raw request. It is derived
// exactly once per request and never mutated afterwards.
type FeatureVector struct {
	Complexity        Complexity `json:"complexity"`
	Type              QueryType  `json:"type"`
	MultiQuestion     bool       `json:"multi_question"`
	IsComparative     bool       `json:"is_comparative"`
	HasTechnicalTerms bool       `json:"has_technical_terms"`
	NeedsExplanation  bool       `json:"needs_explanation"`
	SourceCount       int        `json:"source_count"`
	IsMultiSource     bool       `json:"is_multi_source"`
}

// CorpusFeatures describes the attached source material independently of
// the query text. SourceCount counts distinct source identities; a corpus
// with more than one is multi-source.
type CorpusFeatures struct {
	SourceCount   int  `json:"source_count"`
	IsMultiSource bool `json:"is_multi_source"`
}
