// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides lexical-grammar validators for structured
// draft fields.
//
// This package contains the fixed grammars used by the validation gate:
// canonical date-time representations (RFC 3339) and email addresses.
// These are pure format checks; they never recompute or repair a value.
// Repair belongs to the correction loop and the deterministic fallback
// parser, both in services/engine/validation.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
)

// emailPattern matches a single email address.
// Intentionally permissive on the local part; the goal is catching
// obviously malformed values ("john", "john@", "at example dot com"),
// not full RFC 5322 conformance.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateDateTime validates that a string is a canonical RFC 3339
// date-time with an offset (e.g. "2026-01-25T14:00:00+08:00").
//
// # Description
//
// Format-tier check only: the value is parsed, never recalculated.
// A value that parses but refers to an implausible instant (year 1)
// is rejected so that zero-value round-trips don't slip through.
//
// # Inputs
//
//   - value: The candidate date-time string.
//
// # Outputs
//
//   - error: Non-nil if the value does not conform to the grammar.
func ValidateDateTime(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("date-time is empty")
	}
	if !strfmt.IsDateTime(value) {
		return fmt.Errorf("invalid date-time %q: must be RFC 3339 (e.g. 2026-01-25T14:00:00+08:00)", value)
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return fmt.Errorf("invalid date-time %q: %w", value, err)
	}
	if parsed.Year() < 1970 {
		return fmt.Errorf("implausible date-time %q: year %d", value, parsed.Year())
	}
	return nil
}

// ParseDateTime parses a value previously accepted by ValidateDateTime.
//
// Returns the zero time and an error for values that fail the grammar,
// so callers can use it directly without a prior Validate call.
func ParseDateTime(value string) (time.Time, error) {
	if err := ValidateDateTime(value); err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}

// ValidateEmail validates a single email address against the address
// grammar. Leading/trailing whitespace and optional surrounding quotes
// are tolerated and ignored.
func ValidateEmail(address string) error {
	cleaned := strings.Trim(strings.TrimSpace(address), `"'`)
	if cleaned == "" {
		return fmt.Errorf("email address is empty")
	}
	if !emailPattern.MatchString(cleaned) {
		return fmt.Errorf("invalid email address %q (expected user@domain.tld)", address)
	}
	return nil
}

// ValidateEmails validates a list of email addresses.
//
// An empty list is valid: it means "no contacts", not a format error.
// Returns an error listing every invalid address if any fail.
func ValidateEmails(addresses []string) error {
	var invalid []string
	for _, a := range addresses {
		if err := ValidateEmail(a); err != nil {
			invalid = append(invalid, a)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid email addresses: %v", invalid)
	}
	return nil
}

// ExtractEmails pulls every well-formed email address out of free text.
//
// This is the deterministic safety net for contact repair: it accepts
// "John <john@example.com>, mary@example.com" and returns the bare
// addresses in order of appearance, deduplicated case-insensitively.
// Used only after the correction loop is exhausted.
func ExtractEmails(text string) []string {
	matches := looseEmailPattern.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		key := strings.ToLower(m)
		if !seen[key] {
			seen[key] = true
			out = append(out, m)
		}
	}
	return out
}

// looseEmailPattern finds addresses embedded anywhere in text,
// unlike emailPattern which anchors the whole string.
var looseEmailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
