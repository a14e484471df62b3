// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agents implements the capability side of the refinement loop:
// draft generation and quality assessment on top of a language model,
// plus retrieval for prompt grounding.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianRefine/services/engine/datatypes"
	"github.com/AleutianAI/AleutianRefine/services/llm"
)

var tracer = otel.Tracer("aleutian.refine.agents")

// retrievalDepth is how many snippets each generation request grounds on.
const retrievalDepth = 5

// strategyDirectives shape the working instructions per strategy.
var strategyDirectives = map[datatypes.Strategy]string{
	datatypes.StrategyBasic: "Answer the request directly from the provided material.",
	datatypes.StrategyDecompose: "Break the request into its distinct sub-questions, " +
		"answer each from the provided material, then merge the answers into one coherent response.",
	datatypes.StrategyHypothesize: "First sketch the ideal answer you would expect, " +
		"then ground and correct that sketch strictly against the provided material.",
	datatypes.StrategyStepBack: "First state the broader background principles behind the request, " +
		"then answer the specific question in that frame.",
	datatypes.StrategyDecomposeHypothesize: "Break the request into sub-questions. For each, " +
		"sketch the expected answer, then ground it against the provided material before merging.",
	datatypes.StrategyTripleCombined: "State the background principles, break the request into " +
		"sub-questions, sketch each expected answer, and ground everything against the provided material.",
}

// Generator produces drafts for one request. It carries the chosen
// strategy so every iteration of a run is shaped the same way.
type Generator struct {
	client    llm.LLMClient
	retriever Retriever
	strategy  datatypes.Strategy
	wantEvent bool
}

// NewGenerator wires a generator. The retriever may be nil, in which
// case drafts are produced from the prompt and memory context alone.
func NewGenerator(client llm.LLMClient, retriever Retriever, strategy datatypes.Strategy, wantEvent bool) (*Generator, error) {
	if client == nil {
		return nil, fmt.Errorf("generator requires a language model client")
	}
	return &Generator{
		client:    client,
		retriever: retriever,
		strategy:  strategy,
		wantEvent: wantEvent,
	}, nil
}

// draftReply is the JSON shape requested for record-like drafts.
type draftReply struct {
	Content string                 `json:"content"`
	Event   *datatypes.EventRecord `json:"event"`
}

// Produce generates one draft.
//
// # Description
//
//	Assembles the working prompt from the strategy directive, retrieved
//	snippets, session memory, and any correction guidance, then calls
//	the model once. Record-like drafts are requested as JSON and
//	parsed; a reply that is not valid JSON is kept as free text with an
//	empty event record, so a sloppy model still yields a draft for the
//	validation gate to repair. Retrieval failure is logged and skipped,
//	never fatal: a draft without grounding beats no draft.
func (g *Generator) Produce(ctx context.Context, prompt, memoryContext, correction string) (datatypes.Draft, error) {
	ctx, span := tracer.Start(ctx, "Generator.Produce")
	defer span.End()
	span.SetAttributes(
		attribute.String("generator.strategy", string(g.strategy)),
		attribute.Bool("generator.correction", correction != ""),
	)

	var snippets []Snippet
	if g.retriever != nil {
		var err error
		snippets, err = g.retriever.Search(ctx, prompt, retrievalDepth)
		if err != nil {
			slog.Warn("Retrieval failed, generating without grounding", "error", err)
			span.RecordError(err)
			snippets = nil
		}
	}

	working := g.buildPrompt(prompt, memoryContext, correction, snippets)
	reply, err := g.client.Generate(ctx, working, llm.GenerationParams{})
	if err != nil {
		span.RecordError(err)
		return datatypes.Draft{}, fmt.Errorf("draft generation: %w", err)
	}

	if !g.wantEvent {
		return datatypes.Draft{Content: strings.TrimSpace(reply)}, nil
	}

	var parsed draftReply
	if err := json.Unmarshal([]byte(llm.StripFences(reply)), &parsed); err != nil {
		slog.Warn("Record draft reply not parseable as JSON, keeping as free text", "error", err)
		return datatypes.Draft{Content: strings.TrimSpace(reply), Event: &datatypes.EventRecord{}}, nil
	}
	if parsed.Event == nil {
		parsed.Event = &datatypes.EventRecord{}
	}
	return datatypes.Draft{Content: strings.TrimSpace(parsed.Content), Event: parsed.Event}, nil
}

func (g *Generator) buildPrompt(prompt, memoryContext, correction string, snippets []Snippet) string {
	var b strings.Builder

	directive, ok := strategyDirectives[g.strategy]
	if !ok {
		directive = strategyDirectives[datatypes.StrategyBasic]
	}
	b.WriteString(directive)
	b.WriteString("\n\n")

	if len(snippets) > 0 {
		b.WriteString("Material:\n")
		for i, s := range snippets {
			fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, s.Source, s.Content)
		}
		b.WriteString("\n")
	}

	if memoryContext != "" {
		b.WriteString("Earlier conversation:\n")
		b.WriteString(memoryContext)
		b.WriteString("\n\n")
	}

	b.WriteString("Request: ")
	b.WriteString(prompt)

	if correction != "" {
		b.WriteString("\n\nA reviewer critiqued your previous draft. Revise accordingly.\n")
		b.WriteString(correction)
	}

	if g.wantEvent {
		b.WriteString("\n\nReply with JSON only, no code fences, in this shape:\n")
		b.WriteString(`{"content": "summary text", "event": {"title": "", "start": "RFC3339", "end": "RFC3339", "contacts": ["user@example.com"], "location": "", "description": ""}}`)
	}
	return b.String()
}

// FormatMemory renders retrieved turns into the prompt block consumed
// by Produce. Empty input yields an empty string so the block is
// omitted entirely.
func FormatMemory(turns []string) string {
	if len(turns) == 0 {
		return ""
	}
	return strings.Join(turns, "\n")
}
