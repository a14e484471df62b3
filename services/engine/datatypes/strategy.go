// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// Strategy is one member of the closed set of retrieval/generation
// approaches. A strategy is chosen once per request and never mutated.
type Strategy string

const (
	// StrategyBasic is plain single-pass retrieval and generation.
	StrategyBasic Strategy = "basic"

	// StrategyDecompose splits the request into sub-questions answered
	// independently and merged.
	StrategyDecompose Strategy = "decompose"

	// StrategyHypothesize generates a hypothetical answer first and
	// retrieves against it.
	StrategyHypothesize Strategy = "hypothesize"

	// StrategyStepBack reformulates the request as a broader background
	// question before answering the original.
	StrategyStepBack Strategy = "step_back"

	// StrategyDecomposeHypothesize combines decomposition with
	// hypothesis-led retrieval per sub-question.
	StrategyDecomposeHypothesize Strategy = "decompose_hypothesize"

	// StrategyTripleCombined layers decomposition, hypothesis-led
	// retrieval, and step-back reformulation. The most expensive option.
	StrategyTripleCombined Strategy = "triple_combined"
)

// AllStrategies lists every valid strategy value.
var AllStrategies = []Strategy{
	StrategyBasic,
	StrategyDecompose,
	StrategyHypothesize,
	StrategyStepBack,
	StrategyDecomposeHypothesize,
	StrategyTripleCombined,
}

// ParseStrategy maps a raw string to a Strategy. The second return is
// false when the value is not in the closed set.
func ParseStrategy(raw string) (Strategy, bool) {
	for _, s := range AllStrategies {
		if string(s) == raw {
			return s, true
		}
	}
	return StrategyBasic, false
}

// Decision is the selector's output: the chosen strategy and the
// human-readable rationale recorded in the audit trail.
type Decision struct {
	Strategy  Strategy `json:"strategy"`
	Rationale string   `json:"rationale"`
	Manual    bool     `json:"manual"`
}
