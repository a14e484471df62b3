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

// =============================================================================
// Refinement Loop Types
// =============================================================================

// Assessment is one critique of a draft. Immutable once produced.
type Assessment struct {
	Critique      string `json:"critique"`
	Suggestions   string `json:"suggestions"`
	NeedsRevision bool   `json:"needs_revision"`
}

// Budget caps external-call volume per request. It is configuration and
// is never mutated at runtime; live remaining counters are derived per
// invocation.
type Budget struct {
	MaxIterations        int `json:"max_iterations"`
	MaxCorrectionRetries int `json:"max_correction_retries"`
}

const (
	// DefaultMaxIterations bounds improvement rounds per refinement run.
	DefaultMaxIterations = 5

	// DefaultMaxCorrectionRetries bounds LLM correction attempts per
	// validation failure before the deterministic fallback takes over.
	DefaultMaxCorrectionRetries = 2
)

// DefaultBudget returns the standard iteration and retry ceilings.
func DefaultBudget() Budget {
	return Budget{
		MaxIterations:        DefaultMaxIterations,
		MaxCorrectionRetries: DefaultMaxCorrectionRetries,
	}
}

// IterationRecord is one append-only audit entry for a refinement
// iteration. The full ordered list is returned to the caller.
type IterationRecord struct {
	IterationIndex int        `json:"iteration_index"`
	Assessment     Assessment `json:"assessment"`
	WasImproved    bool       `json:"was_improved"`
}

// Outcome names how a refinement run ended.
type Outcome string

const (
	// OutcomeConverged means the assessor found nothing meaningful left
	// to fix.
	OutcomeConverged Outcome = "converged"

	// OutcomeExhausted means the iteration budget ran out first. The
	// last generated draft is still returned and usable.
	OutcomeExhausted Outcome = "exhausted"

	// OutcomeAborted means an improvement-step generation failed and the
	// last known-good draft was returned instead.
	OutcomeAborted Outcome = "aborted"
)

// RefineResult is the terminal output of one refinement run: the final
// draft, how the loop ended, and the complete iteration audit trail.
type RefineResult struct {
	Draft       Draft             `json:"draft"`
	Outcome     Outcome           `json:"outcome"`
	WasImproved bool              `json:"was_improved"`
	Iterations  []IterationRecord `json:"iterations"`
}
