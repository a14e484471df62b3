// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgvalidation "github.com/AleutianAI/AleutianRefine/pkg/validation"
	"github.com/AleutianAI/AleutianRefine/services/engine/datatypes"
	"github.com/AleutianAI/AleutianRefine/services/llm"
)

type scriptedCorrector struct {
	calls   int
	replies []string
	err     error
	prompts []string
}

func (s *scriptedCorrector) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	idx := s.calls - 1
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	return s.replies[idx], nil
}

func validRecord() *datatypes.EventRecord {
	return &datatypes.EventRecord{
		Title:    "design review",
		Start:    "2026-03-02T14:00:00+08:00",
		End:      "2026-03-02T15:00:00+08:00",
		Contacts: []string{"reviewer@example.com"},
	}
}

func TestCheckTiers(t *testing.T) {
	assert.Empty(t, Check(validRecord()))

	malformed := validRecord()
	malformed.Start = "next wednesday afternoon"
	errs := Check(malformed)
	require.Len(t, errs, 1)
	assert.True(t, IsFormatError(errs[0]))

	inverted := validRecord()
	inverted.End = "2026-03-02T13:00:00+08:00"
	errs = Check(inverted)
	require.Len(t, errs, 1)
	assert.True(t, IsLogicError(errs[0]))

	badMail := validRecord()
	badMail.Contacts = []string{"not-an-address"}
	errs = Check(badMail)
	require.Len(t, errs, 1)
	assert.True(t, IsFormatError(errs[0]))
}

func TestLogicTierNeedsFormatTierFirst(t *testing.T) {
	rec := validRecord()
	rec.Start = "garbage"
	rec.End = "also garbage"

	for _, err := range Check(rec) {
		assert.True(t, IsFormatError(err), "malformed values must never reach the logic tier")
	}
}

func TestValidateCleanPath(t *testing.T) {
	corrector := &scriptedCorrector{replies: []string{"{}"}}
	gate := NewGate(corrector, 2)

	rec, path, err := gate.Validate(context.Background(), "book a review", validRecord())
	require.NoError(t, err)
	assert.Equal(t, datatypes.ValidationClean, path)
	assert.Equal(t, validRecord(), rec)
	assert.Zero(t, corrector.calls, "clean records never invoke the model")
}

func TestValidateCorrectedPath(t *testing.T) {
	corrector := &scriptedCorrector{replies: []string{
		"```json\n{\"start\": \"2026-03-02T14:00:00+08:00\", \"end\": \"2026-03-02T15:00:00+08:00\"}\n```",
	}}
	gate := NewGate(corrector, 2)

	broken := validRecord()
	broken.End = "2026-03-02T13:00:00+08:00"
	rec, path, err := gate.Validate(context.Background(), "book a review", broken)
	require.NoError(t, err)

	assert.Equal(t, datatypes.ValidationCorrected, path)
	assert.Equal(t, "2026-03-02T15:00:00+08:00", rec.End)
	assert.Equal(t, 1, corrector.calls)

	require.Len(t, corrector.prompts, 1)
	assert.Contains(t, corrector.prompts[0], "end_after_start")
	assert.Contains(t, corrector.prompts[0], "2026-03-02T14:00:00+08:00")
	assert.Contains(t, corrector.prompts[0], "2026-03-02T13:00:00+08:00")
	assert.Contains(t, corrector.prompts[0], "Today is")
}

func TestValidateFallbackAfterRetriesExhausted(t *testing.T) {
	// The model keeps emitting an inverted pair.
	corrector := &scriptedCorrector{replies: []string{
		"{\"start\": \"2026-03-02T14:00:00+08:00\", \"end\": \"2026-03-02T13:00:00+08:00\"}",
	}}
	gate := NewGate(corrector, 2)
	fixedNow := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	gate.now = func() time.Time { return fixedNow }

	broken := validRecord()
	broken.End = broken.Start
	rec, path, err := gate.Validate(context.Background(), "book a review", broken)
	require.NoError(t, err)

	assert.Equal(t, datatypes.ValidationFallback, path)
	assert.Equal(t, 2, corrector.calls, "both retries spent before falling back")

	start, perr := pkgvalidation.ParseDateTime(rec.Start)
	require.NoError(t, perr)
	end, perr := pkgvalidation.ParseDateTime(rec.End)
	require.NoError(t, perr)
	assert.True(t, end.After(start), "fallback output must satisfy the logic tier")
	assert.Empty(t, Check(rec), "fallback output must pass the full gate")
}

func TestValidateFallbackOnCorrectorError(t *testing.T) {
	corrector := &scriptedCorrector{err: errors.New("capability down")}
	gate := NewGate(corrector, 2)

	broken := validRecord()
	broken.Start = "whenever works"
	rec, path, err := gate.Validate(context.Background(), "book a review", broken)
	require.NoError(t, err)

	assert.Equal(t, datatypes.ValidationFallback, path)
	assert.Equal(t, 2, corrector.calls, "each failed call spends one attempt")
	assert.Empty(t, Check(rec))
}

func TestValidateCorrectedAfterUnparseableReply(t *testing.T) {
	// First reply is not JSON; the second attempt repairs the record.
	corrector := &scriptedCorrector{replies: []string{
		"sorry, here is the fix: start at two",
		"{\"start\": \"2026-03-02T14:00:00+08:00\", \"end\": \"2026-03-02T15:00:00+08:00\"}",
	}}
	gate := NewGate(corrector, 2)

	broken := validRecord()
	broken.End = "2026-03-02T13:00:00+08:00"
	rec, path, err := gate.Validate(context.Background(), "book a review", broken)
	require.NoError(t, err)

	assert.Equal(t, datatypes.ValidationCorrected, path)
	assert.Equal(t, 2, corrector.calls, "an unparseable reply leaves the rest of the budget to the model")
	assert.Equal(t, "2026-03-02T15:00:00+08:00", rec.End)
	assert.Empty(t, Check(rec))
}

func TestValidateWithoutCorrector(t *testing.T) {
	gate := NewGate(nil, 2)

	broken := validRecord()
	broken.Start = "tomorrow"
	broken.End = ""
	broken.Contacts = []string{"Dana <dana@example.com>", "nobody"}
	rec, path, err := gate.Validate(context.Background(), "book a review", broken)
	require.NoError(t, err)

	assert.Equal(t, datatypes.ValidationFallback, path)
	assert.Empty(t, Check(rec))
	assert.Equal(t, []string{"dana@example.com"}, rec.Contacts,
		"addresses are recovered from display-name forms, bare names dropped")
}

func TestValidateNilRecord(t *testing.T) {
	gate := NewGate(nil, 2)
	_, path, err := gate.Validate(context.Background(), "anything", nil)
	assert.Error(t, err)
	assert.Equal(t, datatypes.ValidationSkipped, path)
}
