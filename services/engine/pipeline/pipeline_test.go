// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRefine/services/engine/datatypes"
	"github.com/AleutianAI/AleutianRefine/services/engine/memory"
	"github.com/AleutianAI/AleutianRefine/services/llm"
)

// routingModel answers generation, assessment, and correction prompts
// differently, the way one real backend serves all three roles.
type routingModel struct {
	generation string
	assessment string
	correction string
	genCalls   int
}

func (m *routingModel) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	switch {
	case strings.Contains(prompt, "You are reviewing a draft"):
		return m.assessment, nil
	case strings.Contains(prompt, "failed validation"):
		return m.correction, nil
	default:
		m.genCalls++
		return m.generation, nil
	}
}

type failingStore struct{}

func (failingStore) GetOrCreateSession(ctx context.Context, identitySet []string) (string, error) {
	return "", errors.New("disk gone")
}

func (failingStore) Retrieve(ctx context.Context, fp, query string, mode datatypes.MemoryMode, limit int, assist llm.LLMClient) ([]memory.Turn, error) {
	return nil, errors.New("disk gone")
}

func (failingStore) Append(ctx context.Context, fp string, role memory.Role, content string) error {
	return errors.New("disk gone")
}

func (failingStore) SweepExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	return 0, errors.New("disk gone")
}

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestComposeFreeTextHappyPath(t *testing.T) {
	store := newStore(t)
	model := &routingModel{
		generation: "the summary you asked for",
		assessment: `{"critique": "fine", "suggestions": "", "needs_revision": false}`,
	}
	p, err := New(model, datatypes.DefaultBudget(), Options{Store: store})
	require.NoError(t, err)

	req := &datatypes.ComposeRequest{
		Query:       "summarize the design notes",
		SourcePaths: []string{"notes.pdf"},
	}
	resp, err := p.Compose(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, datatypes.OutcomeConverged, resp.Outcome)
	assert.False(t, resp.WasImproved)
	assert.False(t, resp.Degraded)
	assert.Equal(t, "the summary you asked for", resp.Content)
	assert.Equal(t, datatypes.ValidationSkipped, resp.ValidationPath)
	assert.NotEmpty(t, resp.SessionFingerprint)
	assert.Equal(t, 1, model.genCalls)
	require.Len(t, resp.Iterations, 1)

	// The exchange was written back as a requester/responder pair.
	turns, err := store.Retrieve(context.Background(), resp.SessionFingerprint, "", datatypes.MemoryRecency, 5, nil)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, memory.RoleRequester, turns[0].Role)
	assert.Equal(t, "summarize the design notes", turns[0].Content)
	assert.Equal(t, memory.RoleResponder, turns[1].Role)
}

func TestComposeDegradesWhenStoreFails(t *testing.T) {
	model := &routingModel{
		generation: "stateless answer",
		assessment: `{"critique": "fine", "suggestions": "", "needs_revision": false}`,
	}
	p, err := New(model, datatypes.DefaultBudget(), Options{Store: failingStore{}})
	require.NoError(t, err)

	resp, err := p.Compose(context.Background(), &datatypes.ComposeRequest{Query: "anything"})
	require.NoError(t, err, "a dead store must not abort the request")

	assert.True(t, resp.Degraded)
	assert.Empty(t, resp.SessionFingerprint)
	assert.Equal(t, "stateless answer", resp.Content)
}

func TestComposeStructuredDraftFallsBack(t *testing.T) {
	store := newStore(t)
	model := &routingModel{
		generation: `{"content": "scheduled", "event": {"title": "sync", "start": "2026-03-02T10:00:00Z", "end": "2026-03-02T09:00:00Z"}}`,
		assessment: `{"critique": "fine", "suggestions": "", "needs_revision": false}`,
		correction: "still not valid json {",
	}
	p, err := New(model, datatypes.DefaultBudget(), Options{Store: store})
	require.NoError(t, err)

	req := &datatypes.ComposeRequest{Query: "schedule the sync", WantEvent: true}
	resp, err := p.Compose(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, datatypes.ValidationFallback, resp.ValidationPath)
	assert.Equal(t, []string{"contacts"}, resp.MissingFields)
	require.NotNil(t, resp.Event)
	start, err := time.Parse(time.RFC3339, resp.Event.Start)
	require.NoError(t, err)
	end, err := time.Parse(time.RFC3339, resp.Event.End)
	require.NoError(t, err)
	assert.True(t, end.After(start))
}

func TestComposeStructuredDraftCleanPath(t *testing.T) {
	store := newStore(t)
	model := &routingModel{
		generation: `{"content": "scheduled", "event": {"title": "sync", "start": "2026-03-02T09:00:00Z", "end": "2026-03-02T10:00:00Z", "contacts": ["dana@example.com"]}}`,
		assessment: `{"critique": "fine", "suggestions": "", "needs_revision": false}`,
	}
	p, err := New(model, datatypes.DefaultBudget(), Options{Store: store})
	require.NoError(t, err)

	resp, err := p.Compose(context.Background(), &datatypes.ComposeRequest{Query: "schedule the sync", WantEvent: true})
	require.NoError(t, err)

	assert.Equal(t, datatypes.ValidationClean, resp.ValidationPath)
	assert.Empty(t, resp.MissingFields)
	require.NotNil(t, resp.Event)
	assert.Equal(t, "sync", resp.Event.Title)
}

func TestComposeManualOverrideInDecision(t *testing.T) {
	model := &routingModel{
		generation: "answer",
		assessment: `{"critique": "fine", "suggestions": "", "needs_revision": false}`,
	}
	p, err := New(model, datatypes.DefaultBudget(), Options{})
	require.NoError(t, err)

	resp, err := p.Compose(context.Background(), &datatypes.ComposeRequest{
		Query:            "anything goes here",
		StrategyOverride: "triple_combined",
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.StrategyTripleCombined, resp.Decision.Strategy)
	assert.True(t, resp.Decision.Manual)
}

func TestComposeRejectsInvalidRequest(t *testing.T) {
	model := &routingModel{generation: "x", assessment: "{}"}
	p, err := New(model, datatypes.DefaultBudget(), Options{})
	require.NoError(t, err)

	_, err = p.Compose(context.Background(), &datatypes.ComposeRequest{Query: ""})
	assert.Error(t, err)
}

func TestSweepWithoutStore(t *testing.T) {
	model := &routingModel{}
	p, err := New(model, datatypes.DefaultBudget(), Options{})
	require.NoError(t, err)

	_, err = p.Sweep(context.Background(), time.Hour)
	assert.Error(t, err)
}

func TestSweepPassesThrough(t *testing.T) {
	store := newStore(t)
	model := &routingModel{
		generation: "answer",
		assessment: `{"critique": "fine", "suggestions": "", "needs_revision": false}`,
	}
	p, err := New(model, datatypes.DefaultBudget(), Options{Store: store})
	require.NoError(t, err)

	_, err = p.Compose(context.Background(), &datatypes.ComposeRequest{Query: "seed a session"})
	require.NoError(t, err)

	deleted, err := p.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}
