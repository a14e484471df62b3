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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDateTime_Valid(t *testing.T) {
	valid := []string{
		"2026-01-25T14:00:00+08:00",
		"2026-01-25T06:00:00Z",
		"2026-12-31T23:59:59-05:00",
	}
	for _, v := range valid {
		assert.NoError(t, ValidateDateTime(v), "expected %q to be valid", v)
	}
}

func TestValidateDateTime_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"   ",
		"tomorrow at 2pm",
		"2026-01-25",          // date only
		"14:00",               // time only
		"2026-13-45T99:00:00Z", // nonsense components
		"0001-01-01T00:00:00Z", // zero-value round-trip
	}
	for _, v := range invalid {
		assert.Error(t, ValidateDateTime(v), "expected %q to be rejected", v)
	}
}

func TestParseDateTime(t *testing.T) {
	ts, err := ParseDateTime("2026-01-25T14:00:00+08:00")
	require.NoError(t, err)
	assert.Equal(t, 2026, ts.Year())
	assert.Equal(t, 14, ts.Hour())

	_, err = ParseDateTime("not a timestamp")
	assert.Error(t, err)
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("john@example.com"))
	assert.NoError(t, ValidateEmail("  john.doe+tag@sub.example.co  "))
	assert.NoError(t, ValidateEmail(`"mary@example.com"`))

	assert.Error(t, ValidateEmail(""))
	assert.Error(t, ValidateEmail("john"))
	assert.Error(t, ValidateEmail("john@"))
	assert.Error(t, ValidateEmail("@example.com"))
	assert.Error(t, ValidateEmail("john at example dot com"))
}

func TestValidateEmails_EmptyListIsValid(t *testing.T) {
	assert.NoError(t, ValidateEmails(nil))
	assert.NoError(t, ValidateEmails([]string{}))
}

func TestValidateEmails_ReportsAllInvalid(t *testing.T) {
	err := ValidateEmails([]string{"ok@example.com", "bad", "worse@"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Contains(t, err.Error(), "worse@")
}

func TestExtractEmails(t *testing.T) {
	text := "Invite John <john@example.com> and mary@example.com, plus JOHN@example.com again"
	got := ExtractEmails(text)
	require.Len(t, got, 2, "duplicates should collapse case-insensitively")
	assert.Equal(t, "john@example.com", got[0])
	assert.Equal(t, "mary@example.com", got[1])
}

func TestExtractEmails_NoneFound(t *testing.T) {
	assert.Empty(t, ExtractEmails("no addresses here"))
}
