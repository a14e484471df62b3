// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianRefine/services/engine/datatypes"
	"github.com/AleutianAI/AleutianRefine/services/llm"
)

// DefaultRubric is used when the caller supplies no domain rubric.
const DefaultRubric = `1. Completeness: does the draft fully address the request?
2. Accuracy: are the stated facts supported by the material?
3. Clarity: is the draft clear, well structured, and free of filler?`

// Assessor critiques drafts against the original request using a
// caller-supplied rubric.
type Assessor struct {
	client llm.LLMClient
	rubric string
}

// NewAssessor wires an assessor. An empty rubric falls back to
// DefaultRubric.
func NewAssessor(client llm.LLMClient, rubric string) (*Assessor, error) {
	if client == nil {
		return nil, fmt.Errorf("assessor requires a language model client")
	}
	if rubric == "" {
		rubric = DefaultRubric
	}
	return &Assessor{client: client, rubric: rubric}, nil
}

// assessmentReply mirrors the JSON verdict requested from the model.
type assessmentReply struct {
	Critique      string `json:"critique"`
	Suggestions   string `json:"suggestions"`
	NeedsRevision bool   `json:"needs_revision"`
}

// Assess critiques one draft.
//
// # Description
//
//	Asks the model for an explicit structured verdict: critique text,
//	concrete suggestions, and a needs_revision flag. A reply that does
//	not parse as JSON is demoted to a free-text assessment whose whole
//	body becomes the suggestion text, leaving the convergence decision
//	to the controller's length heuristic.
func (a *Assessor) Assess(ctx context.Context, request string, draft datatypes.Draft) (datatypes.Assessment, error) {
	ctx, span := tracer.Start(ctx, "Assessor.Assess")
	defer span.End()

	reply, err := a.client.Generate(ctx, a.buildPrompt(request, draft), llm.GenerationParams{})
	if err != nil {
		span.RecordError(err)
		return datatypes.Assessment{}, fmt.Errorf("assessment generation: %w", err)
	}

	var parsed assessmentReply
	if err := json.Unmarshal([]byte(llm.StripFences(reply)), &parsed); err != nil {
		slog.Warn("Assessment reply not parseable as JSON, using free-text fallback", "error", err)
		trimmed := strings.TrimSpace(reply)
		return datatypes.Assessment{Critique: trimmed, Suggestions: trimmed}, nil
	}

	return datatypes.Assessment{
		Critique:      strings.TrimSpace(parsed.Critique),
		Suggestions:   strings.TrimSpace(parsed.Suggestions),
		NeedsRevision: parsed.NeedsRevision,
	}, nil
}

func (a *Assessor) buildPrompt(request string, draft datatypes.Draft) string {
	var b strings.Builder
	b.WriteString("You are reviewing a draft response against the request that produced it.\n\n")
	b.WriteString("Rubric:\n")
	b.WriteString(a.rubric)
	b.WriteString("\n\nRequest:\n")
	b.WriteString(request)
	b.WriteString("\n\nDraft:\n")
	b.WriteString(draft.Content)

	if draft.Event != nil {
		encoded, err := json.Marshal(draft.Event)
		if err == nil {
			b.WriteString("\n\nStructured record:\n")
			b.Write(encoded)
		}
	}

	b.WriteString("\n\nReply with JSON only, no code fences, in this shape:\n")
	b.WriteString(`{"critique": "assessment against the rubric", "suggestions": "concrete changes, empty string if none", "needs_revision": false}` + "\n")
	b.WriteString("Set needs_revision to true only for serious problems: missing key information, ")
	b.WriteString("unsupported claims, or an unusable structure. Leave suggestions empty when the draft is good enough.")
	return b.String()
}
