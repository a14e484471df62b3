// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline wires feature extraction, strategy selection, session
// memory, refinement, and validation into one compose operation.
//
// The operation is synchronous and sequential per request. A memory
// store failure never aborts the request: the pipeline runs stateless
// and flags the response as degraded instead.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianRefine/services/engine/agents"
	"github.com/AleutianAI/AleutianRefine/services/engine/datatypes"
	"github.com/AleutianAI/AleutianRefine/services/engine/features"
	"github.com/AleutianAI/AleutianRefine/services/engine/memory"
	"github.com/AleutianAI/AleutianRefine/services/engine/observability"
	"github.com/AleutianAI/AleutianRefine/services/engine/refine"
	"github.com/AleutianAI/AleutianRefine/services/engine/selector"
	"github.com/AleutianAI/AleutianRefine/services/engine/validation"
	"github.com/AleutianAI/AleutianRefine/services/llm"
)

var tracer = otel.Tracer("aleutian.refine.pipeline")

// SessionStore is the slice of the memory store the pipeline needs.
// *memory.Store satisfies it; tests substitute failing fakes.
type SessionStore interface {
	GetOrCreateSession(ctx context.Context, identitySet []string) (string, error)
	Retrieve(ctx context.Context, fp, query string, mode datatypes.MemoryMode, limit int, assist llm.LLMClient) ([]memory.Turn, error)
	Append(ctx context.Context, fp string, role memory.Role, content string) error
	SweepExpired(ctx context.Context, maxAge time.Duration) (int, error)
}

// Pipeline owns the per-request control flow. Safe for concurrent use;
// each request builds its own controller and draft state.
type Pipeline struct {
	store     SessionStore
	model     llm.LLMClient
	retriever agents.Retriever
	gate      *validation.Gate
	budget    datatypes.Budget
	rubric    string
	metrics   *observability.EngineMetrics
}

// Options collects optional collaborators.
type Options struct {
	// Store may be nil; every request then runs stateless.
	Store SessionStore

	// Retriever may be nil; drafts are then generated ungrounded.
	Retriever agents.Retriever

	// Rubric overrides the default assessment rubric.
	Rubric string

	// Metrics may be nil, which disables instrumentation.
	Metrics *observability.EngineMetrics
}

// New builds a pipeline around the given model capability.
func New(model llm.LLMClient, budget datatypes.Budget, opts Options) (*Pipeline, error) {
	if model == nil {
		return nil, fmt.Errorf("pipeline requires a language model client")
	}
	return &Pipeline{
		store:     opts.Store,
		model:     model,
		retriever: opts.Retriever,
		gate:      validation.NewGate(model, budget.MaxCorrectionRetries),
		budget:    budget,
		rubric:    opts.Rubric,
		metrics:   opts.Metrics,
	}, nil
}

// Compose runs the full request flow.
//
// # Description
//
//	Extracts features, selects a strategy (honoring a manual override),
//	assembles session context, refines a draft under the iteration
//	budget, gates structured fields, and writes the exchange back to
//	the session. The returned response carries the complete audit
//	trail: decision rationale, iteration records, terminal outcome,
//	validation path, and the degraded flag.
//
// # Outputs
//
//	An error only for an invalid request or a failed initial
//	generation; every other internal failure degrades into a flagged
//	but usable response.
func (p *Pipeline) Compose(ctx context.Context, req *datatypes.ComposeRequest) (*datatypes.ComposeResponse, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Compose")
	defer span.End()
	started := time.Now()

	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return nil, fmt.Errorf("invalid compose request: %w", err)
	}
	span.SetAttributes(attribute.String("request.id", req.RequestID))

	fv, cf := features.Extract(req.Query, req.SourcePaths)
	decision := selector.SelectWithOverride(req.StrategyOverride, fv, cf)
	slog.Info("Strategy selected",
		"request_id", req.RequestID,
		"strategy", decision.Strategy,
		"manual", decision.Manual,
		"rationale", decision.Rationale)
	if p.metrics != nil {
		p.metrics.StrategySelectedTotal.WithLabelValues(string(decision.Strategy), fmt.Sprint(decision.Manual)).Inc()
	}

	fp, memoryContext, degraded := p.assembleContext(ctx, req)
	span.SetAttributes(attribute.Bool("memory.degraded", degraded))

	generator, err := agents.NewGenerator(p.model, p.retriever, decision.Strategy, req.WantEvent)
	if err != nil {
		return nil, err
	}
	assessor, err := agents.NewAssessor(p.model, p.rubric)
	if err != nil {
		return nil, err
	}
	controller, err := refine.NewController(generator, assessor, p.budget)
	if err != nil {
		return nil, err
	}

	result, err := controller.Run(ctx, req.Query, memoryContext)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refinement failed")
		p.observe(datatypes.Outcome("none"), "error", started, 0)
		return nil, fmt.Errorf("refinement: %w", err)
	}

	resp := &datatypes.ComposeResponse{
		RequestID:          req.RequestID,
		SessionFingerprint: fp,
		Decision:           decision,
		Content:            result.Draft.Content,
		Outcome:            result.Outcome,
		WasImproved:        result.WasImproved,
		Iterations:         result.Iterations,
		ValidationPath:     datatypes.ValidationSkipped,
		Degraded:           degraded,
	}

	if result.Draft.HasStructuredFields() {
		// Missing fields are judged on what the generator produced, not
		// on what the gate later filled in.
		resp.MissingFields = result.Draft.Event.MissingFields()
		record, path, verr := p.gate.Validate(ctx, req.Query, result.Draft.Event)
		if verr != nil {
			// Unreachable with a non-nil event; degrade rather than fail.
			slog.Error("Validation gate rejected structured draft", "error", verr)
		} else {
			resp.Event = record
			resp.ValidationPath = path
		}
	}
	if p.metrics != nil {
		p.metrics.ValidationPathTotal.WithLabelValues(string(resp.ValidationPath)).Inc()
	}

	if !degraded && fp != "" {
		p.writeBack(ctx, fp, req.Query, resp.Content)
	}

	p.observe(resp.Outcome, "success", started, len(resp.Iterations))
	return resp, nil
}

// assembleContext resolves the session and renders retrieved turns.
// Any store failure flips the pipeline into stateless mode for this
// request rather than surfacing an error.
func (p *Pipeline) assembleContext(ctx context.Context, req *datatypes.ComposeRequest) (fp, memoryContext string, degraded bool) {
	if p.store == nil {
		return "", "", true
	}

	fp, err := p.store.GetOrCreateSession(ctx, req.SourcePaths)
	if err != nil {
		slog.Warn("Memory store unavailable, running stateless", "error", err)
		if p.metrics != nil {
			p.metrics.MemoryDegradedTotal.Inc()
		}
		return "", "", true
	}

	turns, err := p.store.Retrieve(ctx, fp, req.Query, req.MemoryMode, req.MemoryLimit, p.model)
	if err != nil {
		slog.Warn("Session retrieval failed, running stateless", "fingerprint", fp, "error", err)
		if p.metrics != nil {
			p.metrics.MemoryDegradedTotal.Inc()
		}
		return fp, "", true
	}

	var lines []string
	for _, turn := range turns {
		lines = append(lines, fmt.Sprintf("[%s] %s", turn.Role, turn.Content))
	}
	return fp, strings.Join(lines, "\n"), false
}

// writeBack appends the exchange to the session. Failures are logged;
// the response has already been produced.
func (p *Pipeline) writeBack(ctx context.Context, fp, query, content string) {
	if err := p.store.Append(ctx, fp, memory.RoleRequester, query); err != nil {
		slog.Warn("Failed to record requester turn", "fingerprint", fp, "error", err)
		return
	}
	if err := p.store.Append(ctx, fp, memory.RoleResponder, content); err != nil {
		slog.Warn("Failed to record responder turn", "fingerprint", fp, "error", err)
	}
}

// Sweep removes sessions older than maxAge from the store.
func (p *Pipeline) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	if p.store == nil {
		return 0, fmt.Errorf("no memory store configured")
	}
	deleted, err := p.store.SweepExpired(ctx, maxAge)
	if err != nil {
		return 0, err
	}
	if p.metrics != nil {
		p.metrics.SweptSessionsTotal.Add(float64(deleted))
	}
	return deleted, nil
}

func (p *Pipeline) observe(outcome datatypes.Outcome, status string, started time.Time, iterations int) {
	if p.metrics == nil {
		return
	}
	p.metrics.RequestsTotal.WithLabelValues(string(outcome), status).Inc()
	p.metrics.RefinementIterations.Observe(float64(iterations))
	p.metrics.RequestDurationSeconds.WithLabelValues(string(outcome)).Observe(time.Since(started).Seconds())
}
