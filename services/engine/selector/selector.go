// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package selector maps feature vectors to generation strategies.
//
// Select is total and pure: every input produces exactly one strategy
// from the closed set, the same input always produces the same output,
// and nothing here performs I/O. The decision table is ordered; the
// first matching rule wins.
package selector

import (
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianRefine/services/engine/datatypes"
)

// Select walks the decision table top-down and returns the chosen
// strategy with a human-readable rationale for the audit trail.
func Select(fv datatypes.FeatureVector, cf datatypes.CorpusFeatures) datatypes.Decision {
	// 1. Very complex request over many sources gets everything.
	if fv.Complexity == datatypes.ComplexityVeryComplex && cf.IsMultiSource {
		return decide(datatypes.StrategyTripleCombined,
			"very complex request over %d sources, layering decomposition, hypothesis retrieval, and step-back reasoning", cf.SourceCount)
	}

	// 2. Complex multi-part requests decompose; escalate when the corpus
	// spans multiple sources.
	if fv.Complexity == datatypes.ComplexityComplex || fv.Complexity == datatypes.ComplexityVeryComplex {
		if fv.MultiQuestion || fv.Type == datatypes.QueryMultiAspect {
			if cf.IsMultiSource {
				return decide(datatypes.StrategyDecomposeHypothesize,
					"%s multi-part request over %d sources, decomposing with hypothesis-led retrieval per part", fv.Complexity, cf.SourceCount)
			}
			return decide(datatypes.StrategyDecompose,
				"%s multi-part request, decomposing into sub-questions", fv.Complexity)
		}
	}

	// 3. Principle questions want background first.
	if fv.Type == datatypes.QueryPrinciple &&
		(fv.Complexity == datatypes.ComplexityModerate || fv.Complexity == datatypes.ComplexityComplex) {
		return decide(datatypes.StrategyStepBack,
			"principle question at %s complexity, stepping back for background reasoning", fv.Complexity)
	}

	// 4. Technical vocabulary benefits from hypothesis-led retrieval.
	if fv.HasTechnicalTerms &&
		(fv.Complexity == datatypes.ComplexityModerate || fv.Complexity == datatypes.ComplexityComplex) {
		return decide(datatypes.StrategyHypothesize,
			"technical terms at %s complexity, retrieving against a hypothetical answer", fv.Complexity)
	}

	// 5. Comparisons across sources need independent retrieval per side.
	if fv.IsComparative && cf.IsMultiSource {
		return decide(datatypes.StrategyDecompose,
			"comparative request over %d sources, retrieving each side separately", cf.SourceCount)
	}

	// 6. Moderate requests over many sources still benefit from the
	// combined treatment.
	if fv.Complexity == datatypes.ComplexityModerate && cf.IsMultiSource {
		return decide(datatypes.StrategyDecomposeHypothesize,
			"moderate request over %d sources, decomposing with hypothesis-led retrieval", cf.SourceCount)
	}

	// 7. Simple requests stay cheap.
	if fv.Complexity == datatypes.ComplexitySimple {
		if fv.HasTechnicalTerms {
			return decide(datatypes.StrategyHypothesize,
				"simple request with technical terms, hypothesis retrieval sharpens matching")
		}
		return decide(datatypes.StrategyBasic, "simple request, single-pass generation suffices")
	}

	// 8. Explanation-seeking moderate requests get background.
	if fv.NeedsExplanation && fv.Complexity == datatypes.ComplexityModerate {
		return decide(datatypes.StrategyStepBack,
			"explanation requested at moderate complexity, stepping back for context")
	}

	// 9. Fallbacks.
	if fv.Complexity == datatypes.ComplexityModerate {
		return decide(datatypes.StrategyStepBack, "moderate complexity default, step-back reasoning")
	}
	return decide(datatypes.StrategyDecompose, "%s complexity default, decomposing the request", fv.Complexity)
}

// SelectWithOverride applies a caller-supplied strategy name ahead of the
// decision table. An empty override defers to Select. An unknown value
// fails closed to basic with a logged warning; it never errors back to
// the caller.
func SelectWithOverride(override string, fv datatypes.FeatureVector, cf datatypes.CorpusFeatures) datatypes.Decision {
	if override == "" {
		return Select(fv, cf)
	}
	strategy, ok := datatypes.ParseStrategy(override)
	if !ok {
		slog.Warn("Unknown strategy override, falling back to basic", "override", override)
		return datatypes.Decision{
			Strategy:  datatypes.StrategyBasic,
			Rationale: fmt.Sprintf("manual override %q not recognized, using basic", override),
			Manual:    true,
		}
	}
	return datatypes.Decision{
		Strategy:  strategy,
		Rationale: fmt.Sprintf("manual override to %s", strategy),
		Manual:    true,
	}
}

func decide(s datatypes.Strategy, format string, args ...any) datatypes.Decision {
	return datatypes.Decision{
		Strategy:  s,
		Rationale: fmt.Sprintf(format, args...),
	}
}
