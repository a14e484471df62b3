// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package refine drives the bounded generate, assess, improve cycle.
//
// One Controller instance owns one run: its draft, its assessment list,
// and its remaining budget. Nothing is shared between concurrent runs.
package refine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianRefine/services/engine/datatypes"
)

var tracer = otel.Tracer("aleutian.refine.controller")

// DraftGenerator produces candidate drafts. The correction argument is
// empty on the initial call and carries assessor suggestions on
// improvement calls.
type DraftGenerator interface {
	Produce(ctx context.Context, prompt, memoryContext, correction string) (datatypes.Draft, error)
}

// QualityAssessor critiques a draft against the original request.
type QualityAssessor interface {
	Assess(ctx context.Context, request string, draft datatypes.Draft) (datatypes.Assessment, error)
}

// minSubstanceRunes is the floor below which a trimmed suggestion text
// counts as "nothing meaningful to fix". Suggestions shorter than this
// are noise like "none" or "looks fine".
const minSubstanceRunes = 20

// Converged reports whether an assessment requires no further action:
// the suggestion text is empty or below the substance floor, and the
// assessor did not flag a revision.
func Converged(a datatypes.Assessment) bool {
	if a.NeedsRevision {
		return false
	}
	trimmed := strings.TrimSpace(a.Suggestions)
	return len([]rune(trimmed)) < minSubstanceRunes
}

// Controller runs one refinement cycle at a time. Construct per request.
type Controller struct {
	generator DraftGenerator
	assessor  QualityAssessor
	budget    datatypes.Budget
}

// NewController wires a generator/assessor pair under an iteration
// budget. A non-positive MaxIterations is lifted to the default.
func NewController(gen DraftGenerator, assessor QualityAssessor, budget datatypes.Budget) (*Controller, error) {
	if gen == nil || assessor == nil {
		return nil, fmt.Errorf("controller requires both a generator and an assessor")
	}
	if budget.MaxIterations <= 0 {
		budget.MaxIterations = datatypes.DefaultMaxIterations
	}
	return &Controller{generator: gen, assessor: assessor, budget: budget}, nil
}

// Run executes the full cycle.
//
// # Description
//
//	Generates an initial draft, then alternates assessment and
//	improvement until the assessor converges or the budget runs out.
//	The generator is called at most MaxIterations+1 times and the
//	assessor at most MaxIterations+1 times, whatever the assessor
//	returns. A generator failure during an improvement step ends the
//	run with the last known-good draft and an aborted outcome instead
//	of an error; only a failed initial generation is a hard error,
//	because there is no prior draft to fall back to.
//
// # Outputs
//
//	The final draft, the terminal outcome, and the ordered audit trail
//	of every assessment made.
func (c *Controller) Run(ctx context.Context, prompt, memoryContext string) (datatypes.RefineResult, error) {
	ctx, span := tracer.Start(ctx, "Controller.Run")
	defer span.End()
	span.SetAttributes(attribute.Int("refine.max_iterations", c.budget.MaxIterations))

	draft, err := c.generator.Produce(ctx, prompt, memoryContext, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "initial generation failed")
		return datatypes.RefineResult{}, fmt.Errorf("initial draft generation: %w", err)
	}

	result := datatypes.RefineResult{Draft: draft}
	for iteration := 0; ; iteration++ {
		if ctx.Err() != nil {
			span.SetAttributes(attribute.String("refine.outcome", string(datatypes.OutcomeAborted)))
			result.Outcome = datatypes.OutcomeAborted
			result.WasImproved = iteration > 0
			return result, nil
		}

		assessment, err := c.assessor.Assess(ctx, prompt, result.Draft)
		if err != nil {
			slog.Warn("Assessor failed, keeping current draft", "iteration", iteration, "error", err)
			span.RecordError(err)
			result.Outcome = datatypes.OutcomeAborted
			result.WasImproved = iteration > 0
			return result, nil
		}

		if Converged(assessment) {
			result.Iterations = append(result.Iterations, datatypes.IterationRecord{
				IterationIndex: iteration,
				Assessment:     assessment,
			})
			result.Outcome = datatypes.OutcomeConverged
			result.WasImproved = iteration > 0
			span.SetAttributes(
				attribute.String("refine.outcome", string(datatypes.OutcomeConverged)),
				attribute.Int("refine.iterations", iteration),
			)
			return result, nil
		}

		if iteration >= c.budget.MaxIterations {
			result.Iterations = append(result.Iterations, datatypes.IterationRecord{
				IterationIndex: iteration,
				Assessment:     assessment,
			})
			result.Outcome = datatypes.OutcomeExhausted
			result.WasImproved = iteration > 0
			slog.Info("Refinement budget exhausted, returning last draft",
				"iterations", iteration, "max_iterations", c.budget.MaxIterations)
			span.SetAttributes(attribute.String("refine.outcome", string(datatypes.OutcomeExhausted)))
			return result, nil
		}

		improved, err := c.generator.Produce(ctx, prompt, memoryContext, correctionGuidance(assessment))
		if err != nil {
			slog.Warn("Improvement generation failed, keeping last good draft",
				"iteration", iteration, "error", err)
			span.RecordError(err)
			result.Iterations = append(result.Iterations, datatypes.IterationRecord{
				IterationIndex: iteration,
				Assessment:     assessment,
			})
			result.Outcome = datatypes.OutcomeAborted
			result.WasImproved = iteration > 0
			return result, nil
		}

		result.Iterations = append(result.Iterations, datatypes.IterationRecord{
			IterationIndex: iteration,
			Assessment:     assessment,
			WasImproved:    true,
		})
		result.Draft = improved
	}
}

// correctionGuidance folds an assessment into the improvement prompt.
func correctionGuidance(a datatypes.Assessment) string {
	var b strings.Builder
	if critique := strings.TrimSpace(a.Critique); critique != "" {
		b.WriteString("Critique: ")
		b.WriteString(critique)
		b.WriteString("\n")
	}
	b.WriteString("Apply these suggestions: ")
	b.WriteString(strings.TrimSpace(a.Suggestions))
	return b.String()
}
