// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package features turns raw requests into typed feature vectors for the
// strategy selector. Extraction is pure: no I/O, no randomness, the same
// input always yields the same vector.
package features

import (
	"strings"

	"github.com/AleutianAI/AleutianRefine/services/engine/datatypes"
)

// Word-count boundaries for the complexity buckets.
const (
	simpleWordLimit   = 10
	moderateWordLimit = 25
	complexWordLimit  = 50
)

var comparativeKeywords = []string{
	"vs", "versus", "difference", "compare", "compared", "contrast",
}

var technicalKeywords = []string{
	"mechanism", "algorithm", "architecture", "model", "system", "method",
	"function", "protocol", "implementation",
}

var technicalPhrases = []string{
	"how does", "how do", "how it works",
}

var principleKeywords = []string{
	"principle", "mechanism", "how does", "how do", "why does",
}

var conceptualKeywords = []string{
	"what is", "what are", "understand", "explain",
}

var explanationKeywords = []string{
	"why", "how", "explain", "clarify",
}

// Analyze derives the feature vector for a query.
//
// # Description
//
//	Complexity is bucketed by word count: at most 10 words with a
//	single question is simple, up to 25 words moderate, up to 50
//	complex, anything longer very complex. Type detection is keyword
//	driven and checked in a fixed order (comparative, principle,
//	conceptual, multi-aspect, factual) so a query matching several
//	categories classifies deterministically.
//
// # Limitations
//
//	Keyword matching is lexical only. "model" in a file name or a
//	quoted phrase still counts as a technical term.
func Analyze(query string) datatypes.FeatureVector {
	lower := strings.ToLower(query)
	words := strings.Fields(query)
	questionCount := strings.Count(query, "?")

	fv := datatypes.FeatureVector{
		Complexity:        detectComplexity(len(words), questionCount),
		MultiQuestion:     questionCount > 1,
		IsComparative:     containsAnyWord(lower, comparativeKeywords),
		HasTechnicalTerms: containsAnyWord(lower, technicalKeywords) || containsAnyPhrase(lower, technicalPhrases),
		NeedsExplanation:  containsAnyWord(lower, explanationKeywords),
	}
	fv.Type = detectType(lower, questionCount)
	return fv
}

// AnalyzeSources derives corpus features from the attached source
// identity set.
func AnalyzeSources(sourcePaths []string) datatypes.CorpusFeatures {
	return datatypes.CorpusFeatures{
		SourceCount:   len(sourcePaths),
		IsMultiSource: len(sourcePaths) > 1,
	}
}

// Extract analyzes the query and its attached sources together,
// mirroring the corpus counts into the feature vector.
func Extract(query string, sourcePaths []string) (datatypes.FeatureVector, datatypes.CorpusFeatures) {
	fv := Analyze(query)
	cf := AnalyzeSources(sourcePaths)
	fv.SourceCount = cf.SourceCount
	fv.IsMultiSource = cf.IsMultiSource
	return fv, cf
}

func detectComplexity(wordCount, questionCount int) datatypes.Complexity {
	if wordCount <= simpleWordLimit && questionCount <= 1 {
		return datatypes.ComplexitySimple
	}
	if wordCount <= moderateWordLimit {
		return datatypes.ComplexityModerate
	}
	if wordCount <= complexWordLimit {
		return datatypes.ComplexityComplex
	}
	return datatypes.ComplexityVeryComplex
}

func detectType(lower string, questionCount int) datatypes.QueryType {
	if containsAnyWord(lower, comparativeKeywords) {
		return datatypes.QueryComparative
	}
	if containsAnyPhrase(lower, principleKeywords) {
		return datatypes.QueryPrinciple
	}
	if containsAnyPhrase(lower, conceptualKeywords) {
		return datatypes.QueryConceptual
	}
	if questionCount > 1 {
		return datatypes.QueryMultiAspect
	}
	return datatypes.QueryFactual
}

// containsAnyWord matches whole tokens so "work" does not fire inside
// "network".
func containsAnyWord(lower string, keywords []string) bool {
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	for _, tok := range tokens {
		for _, kw := range keywords {
			if tok == kw {
				return true
			}
		}
	}
	return false
}

func containsAnyPhrase(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
