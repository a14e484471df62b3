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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRefine/services/engine/datatypes"
	"github.com/AleutianAI/AleutianRefine/services/llm"
)

type scriptedModel struct {
	reply   string
	err     error
	prompts []string
}

func (m *scriptedModel) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

type fakeRetriever struct {
	snippets []Snippet
	err      error
	queries  []string
}

func (r *fakeRetriever) Search(ctx context.Context, query string, k int) ([]Snippet, error) {
	r.queries = append(r.queries, query)
	if r.err != nil {
		return nil, r.err
	}
	return r.snippets, nil
}

func TestGeneratorFreeTextDraft(t *testing.T) {
	model := &scriptedModel{reply: "  a plain answer  "}
	retriever := &fakeRetriever{snippets: []Snippet{{Content: "fact one", Source: "a.pdf", Score: 0.9}}}
	gen, err := NewGenerator(model, retriever, datatypes.StrategyStepBack, false)
	require.NoError(t, err)

	draft, err := gen.Produce(context.Background(), "explain the design", "earlier turn text", "")
	require.NoError(t, err)

	assert.Equal(t, "a plain answer", draft.Content)
	assert.Nil(t, draft.Event)
	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "background principles", "strategy directive present")
	assert.Contains(t, model.prompts[0], "fact one")
	assert.Contains(t, model.prompts[0], "earlier turn text")
	assert.Equal(t, []string{"explain the design"}, retriever.queries)
}

func TestGeneratorCorrectionGuidanceInPrompt(t *testing.T) {
	model := &scriptedModel{reply: "revised"}
	gen, err := NewGenerator(model, nil, datatypes.StrategyBasic, false)
	require.NoError(t, err)

	_, err = gen.Produce(context.Background(), "explain", "", "shorten the intro")
	require.NoError(t, err)
	assert.Contains(t, model.prompts[0], "shorten the intro")
}

func TestGeneratorRetrievalFailureIsNotFatal(t *testing.T) {
	model := &scriptedModel{reply: "ungrounded answer"}
	retriever := &fakeRetriever{err: errors.New("vector store down")}
	gen, err := NewGenerator(model, retriever, datatypes.StrategyBasic, false)
	require.NoError(t, err)

	draft, err := gen.Produce(context.Background(), "explain", "", "")
	require.NoError(t, err)
	assert.Equal(t, "ungrounded answer", draft.Content)
}

func TestGeneratorRecordDraft(t *testing.T) {
	model := &scriptedModel{reply: "```json\n" +
		`{"content": "booked", "event": {"title": "sync", "start": "2026-03-02T09:00:00Z", "end": "2026-03-02T10:00:00Z"}}` +
		"\n```"}
	gen, err := NewGenerator(model, nil, datatypes.StrategyBasic, true)
	require.NoError(t, err)

	draft, err := gen.Produce(context.Background(), "schedule a sync", "", "")
	require.NoError(t, err)

	require.NotNil(t, draft.Event)
	assert.Equal(t, "sync", draft.Event.Title)
	assert.Equal(t, "booked", draft.Content)
	assert.Contains(t, model.prompts[0], "RFC3339")
}

func TestGeneratorRecordDraftToleratesNonJSON(t *testing.T) {
	model := &scriptedModel{reply: "I scheduled it for tomorrow morning."}
	gen, err := NewGenerator(model, nil, datatypes.StrategyBasic, true)
	require.NoError(t, err)

	draft, err := gen.Produce(context.Background(), "schedule a sync", "", "")
	require.NoError(t, err)

	require.NotNil(t, draft.Event, "a record draft always carries an event for the gate to repair")
	assert.Equal(t, "I scheduled it for tomorrow morning.", draft.Content)
}

func TestAssessorStructuredVerdict(t *testing.T) {
	model := &scriptedModel{reply: `{"critique": "solid", "suggestions": "", "needs_revision": false}`}
	assessor, err := NewAssessor(model, "")
	require.NoError(t, err)

	assessment, err := assessor.Assess(context.Background(), "explain", datatypes.Draft{Content: "answer"})
	require.NoError(t, err)

	assert.Equal(t, "solid", assessment.Critique)
	assert.Empty(t, assessment.Suggestions)
	assert.False(t, assessment.NeedsRevision)
	assert.Contains(t, model.prompts[0], "Completeness", "default rubric applied")
}

func TestAssessorFreeTextFallback(t *testing.T) {
	model := &scriptedModel{reply: "The draft misses the cost analysis entirely and should cover it."}
	assessor, err := NewAssessor(model, "custom rubric line")
	require.NoError(t, err)

	assessment, err := assessor.Assess(context.Background(), "explain", datatypes.Draft{Content: "answer"})
	require.NoError(t, err)

	assert.Equal(t, assessment.Critique, assessment.Suggestions,
		"unparseable replies become free-text assessments")
	assert.NotEmpty(t, assessment.Suggestions)
	assert.Contains(t, model.prompts[0], "custom rubric line")
}

func TestAssessorPropagatesModelFailure(t *testing.T) {
	model := &scriptedModel{err: errors.New("backend down")}
	assessor, err := NewAssessor(model, "")
	require.NoError(t, err)

	_, err = assessor.Assess(context.Background(), "explain", datatypes.Draft{Content: "answer"})
	assert.Error(t, err)
}

func TestParseSnippets(t *testing.T) {
	data := map[string]interface{}{
		"Get": map[string]interface{}{
			"Document": []interface{}{
				map[string]interface{}{
					"content":     "first",
					"source":      "a.pdf",
					"_additional": map[string]interface{}{"certainty": 0.92},
				},
				map[string]interface{}{"source": "broken row without content"},
				map[string]interface{}{"content": "second"},
			},
		},
	}

	snippets := parseSnippets(data, "Document")
	require.Len(t, snippets, 2)
	assert.Equal(t, "first", snippets[0].Content)
	assert.Equal(t, "a.pdf", snippets[0].Source)
	assert.InDelta(t, 0.92, snippets[0].Score, 1e-9)
	assert.Equal(t, "second", snippets[1].Content)

	assert.Nil(t, parseSnippets(map[string]interface{}{}, "Document"))
}
