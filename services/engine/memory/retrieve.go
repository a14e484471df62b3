// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianRefine/services/engine/datatypes"
	"github.com/AleutianAI/AleutianRefine/services/llm"
)

// assistWindow is how many trailing turns the capability-assisted mode
// shows the model when asking for relevant indices.
const assistWindow = 20

// minTokenLength filters stop-word noise out of lexical matching.
// Only query tokens longer than this participate.
const minTokenLength = 2

// Retrieve returns session turns for prompt assembly.
//
// # Description
//
//	Recency mode returns the last limit requester/responder pairs in
//	chronological order. Lexical mode ranks by token overlap with the
//	query, most recent first, capped at limit turns. Assisted mode asks
//	the attached language model to pick relevant turn indices from the
//	trailing window; it degrades silently, never failing the request:
//	a capability error falls back to lexical, an unparseable or empty
//	reply falls back to the most recent turns.
//
// # Inputs
//
//   - assist: optional model client for assisted mode. May be nil, in
//     which case assisted requests degrade to lexical immediately.
func (s *Store) Retrieve(ctx context.Context, fp, query string, mode datatypes.MemoryMode, limit int, assist llm.LLMClient) ([]Turn, error) {
	ctx, span := tracer.Start(ctx, "Store.Retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.fingerprint", fp),
		attribute.String("memory.mode", string(mode)),
		attribute.Int("memory.limit", limit),
	)

	if limit <= 0 {
		return nil, nil
	}

	switch mode {
	case datatypes.MemoryLexical:
		return s.retrieveLexical(fp, query, limit)
	case datatypes.MemoryAssisted:
		return s.retrieveAssisted(ctx, fp, query, limit, assist)
	default:
		return s.retrieveRecent(fp, limit)
	}
}

// retrieveRecent returns the last limit request/response pairs,
// chronological.
func (s *Store) retrieveRecent(fp string, limit int) ([]Turn, error) {
	turns, err := s.allTurns(fp)
	if err != nil {
		return nil, err
	}
	want := limit * 2
	if len(turns) > want {
		turns = turns[len(turns)-want:]
	}
	return turns, nil
}

// retrieveLexical keeps turns containing any query token longer than
// minTokenLength, most recent first, capped at limit.
func (s *Store) retrieveLexical(fp, query string, limit int) ([]Turn, error) {
	turns, err := s.allTurns(fp)
	if err != nil {
		return nil, err
	}

	var tokens []string
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		if len(tok) > minTokenLength {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	var matched []Turn
	for i := len(turns) - 1; i >= 0 && len(matched) < limit; i-- {
		content := strings.ToLower(turns[i].Content)
		for _, tok := range tokens {
			if strings.Contains(content, tok) {
				matched = append(matched, turns[i])
				break
			}
		}
	}
	return matched, nil
}

// retrieveAssisted asks the model to pick relevant turn indices from the
// trailing window. Every failure path degrades rather than erroring.
func (s *Store) retrieveAssisted(ctx context.Context, fp, query string, limit int, assist llm.LLMClient) ([]Turn, error) {
	if assist == nil {
		slog.Debug("No assist client configured, degrading to lexical retrieval", "fingerprint", fp)
		return s.retrieveLexical(fp, query, limit)
	}

	turns, err := s.allTurns(fp)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, nil
	}

	window := turns
	if len(window) > assistWindow {
		window = window[len(window)-assistWindow:]
	}

	prompt := buildAssistPrompt(query, window, limit)
	reply, err := assist.Generate(ctx, prompt, llm.GenerationParams{})
	if err != nil {
		slog.Warn("Assisted retrieval call failed, degrading to lexical", "error", err)
		return s.retrieveLexical(fp, query, limit)
	}

	indices := parseIndices(reply, len(window))
	if len(indices) == 0 {
		slog.Debug("Assisted retrieval reply unusable, returning most recent turns", "reply_chars", len(reply))
		if len(window) > limit {
			window = window[len(window)-limit:]
		}
		return window, nil
	}

	if len(indices) > limit {
		indices = indices[:limit]
	}
	selected := make([]Turn, 0, len(indices))
	for _, idx := range indices {
		selected = append(selected, window[idx])
	}
	return selected, nil
}

func buildAssistPrompt(query string, window []Turn, limit int) string {
	var b strings.Builder
	b.WriteString("Below is a numbered conversation transcript. ")
	fmt.Fprintf(&b, "Reply with the numbers of the %d entries most relevant to the question, comma separated, nothing else.\n\n", limit)
	for i, turn := range window {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i, turn.Role, turn.Content)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(query)
	return b.String()
}

// parseIndices extracts in-range turn indices from a model reply,
// tolerating surrounding prose. Duplicates are dropped, order kept.
func parseIndices(reply string, windowSize int) []int {
	fields := strings.FieldsFunc(reply, func(r rune) bool {
		return !('0' <= r && r <= '9')
	})
	seen := make(map[int]bool)
	var indices []int
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 || n >= windowSize || seen[n] {
			continue
		}
		seen[n] = true
		indices = append(indices, n)
	}
	return indices
}
