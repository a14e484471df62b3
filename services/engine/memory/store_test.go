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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRefine/services/engine/datatypes"
	"github.com/AleutianAI/AleutianRefine/services/llm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestFingerprintPermutationInvariance(t *testing.T) {
	a := Fingerprint([]string{"notes.pdf", "budget.xlsx", "plan.txt"})
	b := Fingerprint([]string{"plan.txt", "notes.pdf", "budget.xlsx"})

	assert.Equal(t, a, b)
	assert.Len(t, a, fingerprintLength)

	c := Fingerprint([]string{"notes.pdf"})
	assert.NotEqual(t, a, c)

	assert.Equal(t, Fingerprint(nil), Fingerprint([]string{}))
}

func TestGetOrCreateSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fp, err := store.GetOrCreateSession(ctx, []string{"a.pdf", "b.pdf"})
	require.NoError(t, err)

	sess, err := store.GetSession(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, fp, sess.Fingerprint)
	assert.Equal(t, sess.CreatedAt, sess.UpdatedAt)

	// Same identity set in a different order resolves to the same session.
	fp2, err := store.GetOrCreateSession(ctx, []string{"b.pdf", "a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, fp, fp2)

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestAppendAndRecentRetrieval(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fp, err := store.GetOrCreateSession(ctx, []string{"doc.pdf"})
	require.NoError(t, err)

	exchanges := []string{"first", "second", "third"}
	for _, content := range exchanges {
		require.NoError(t, store.Append(ctx, fp, RoleRequester, "ask "+content))
		require.NoError(t, store.Append(ctx, fp, RoleResponder, "answer "+content))
	}

	turns, err := store.Retrieve(ctx, fp, "", datatypes.MemoryRecency, 2, nil)
	require.NoError(t, err)
	require.Len(t, turns, 4, "two pairs requested")

	assert.Equal(t, "ask second", turns[0].Content)
	assert.Equal(t, RoleRequester, turns[0].Role)
	assert.Equal(t, "answer third", turns[3].Content)
	assert.Equal(t, RoleResponder, turns[3].Role)
}

func TestLexicalRetrieval(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fp, err := store.GetOrCreateSession(ctx, []string{"doc.pdf"})
	require.NoError(t, err)

	require.NoError(t, store.Append(ctx, fp, RoleRequester, "tell me about kubernetes networking"))
	require.NoError(t, store.Append(ctx, fp, RoleResponder, "pods talk over a flat network"))
	require.NoError(t, store.Append(ctx, fp, RoleRequester, "what about storage"))
	require.NoError(t, store.Append(ctx, fp, RoleResponder, "persistent volumes handle storage"))

	turns, err := store.Retrieve(ctx, fp, "how does storage work", datatypes.MemoryLexical, 5, nil)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "persistent volumes handle storage", turns[0].Content, "most recent match first")

	// Tokens of length <= 2 are ignored entirely.
	turns, err = store.Retrieve(ctx, fp, "a an is", datatypes.MemoryLexical, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

type scriptedAssist struct {
	reply string
	err   error
}

func (s *scriptedAssist) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func TestAssistedRetrievalSelectsIndices(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fp, err := store.GetOrCreateSession(ctx, []string{"doc.pdf"})
	require.NoError(t, err)
	for _, content := range []string{"alpha", "bravo", "charlie", "delta"} {
		require.NoError(t, store.Append(ctx, fp, RoleRequester, content))
	}

	turns, err := store.Retrieve(ctx, fp, "pick", datatypes.MemoryAssisted, 2, &scriptedAssist{reply: "0, 3"})
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "alpha", turns[0].Content)
	assert.Equal(t, "delta", turns[1].Content)
}

func TestAssistedRetrievalDegradesOnCapabilityFailure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fp, err := store.GetOrCreateSession(ctx, []string{"doc.pdf"})
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, fp, RoleRequester, "the replication factor question"))
	require.NoError(t, store.Append(ctx, fp, RoleResponder, "unrelated answer"))

	failing := &scriptedAssist{err: errors.New("quota exhausted")}
	turns, err := store.Retrieve(ctx, fp, "replication", datatypes.MemoryAssisted, 5, failing)
	require.NoError(t, err, "assisted mode must never surface capability errors")
	require.Len(t, turns, 1)
	assert.Equal(t, "the replication factor question", turns[0].Content)
}

func TestAssistedRetrievalFallsBackOnGarbageReply(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fp, err := store.GetOrCreateSession(ctx, []string{"doc.pdf"})
	require.NoError(t, err)
	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, store.Append(ctx, fp, RoleRequester, content))
	}

	garbage := &scriptedAssist{reply: "none of these seem relevant"}
	turns, err := store.Retrieve(ctx, fp, "anything", datatypes.MemoryAssisted, 2, garbage)
	require.NoError(t, err)
	require.Len(t, turns, 2, "unusable reply returns the most recent turns")
	assert.Equal(t, "two", turns[0].Content)
	assert.Equal(t, "three", turns[1].Content)
}

func TestParseIndices(t *testing.T) {
	assert.Equal(t, []int{0, 2}, parseIndices("0, 2", 5))
	assert.Equal(t, []int{1}, parseIndices("I would pick entry 1.", 5))
	assert.Nil(t, parseIndices("7, 9", 5), "out-of-range indices are dropped")
	assert.Equal(t, []int{3}, parseIndices("3 and 3 again", 5), "duplicates collapse")
	assert.Nil(t, parseIndices("", 5))
}

func TestSweepExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	oldFp, err := store.GetOrCreateSession(ctx, []string{"old.pdf"})
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, oldFp, RoleRequester, "stale"))

	// Sweeping with a zero max age treats everything as expired.
	deleted, err := store.SweepExpired(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = store.GetSession(ctx, oldFp)
	assert.Error(t, err)

	turns, err := store.Retrieve(ctx, oldFp, "", datatypes.MemoryRecency, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, turns)

	// A fresh session survives a bounded sweep.
	freshFp, err := store.GetOrCreateSession(ctx, []string{"fresh.pdf"})
	require.NoError(t, err)
	deleted, err = store.SweepExpired(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, deleted)
	_, err = store.GetSession(ctx, freshFp)
	assert.NoError(t, err)
}
