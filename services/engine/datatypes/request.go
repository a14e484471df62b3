// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxQueryBytes is the maximum size of a request query. Byte length,
	// not rune count, to bound memory on large payloads.
	MaxQueryBytes = 32 * 1024 // 32KB

	// MaxSourcePaths caps the identity set used for session fingerprinting.
	MaxSourcePaths = 256

	// MaxMemoryLimit caps how many turn pairs a single request may pull
	// from the memory store.
	MaxMemoryLimit = 50
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// requestValidate is the validator instance for engine datatypes.
// Initialized in init() with custom validators.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	_ = requestValidate.RegisterValidation("maxbytes", validateQueryBytes)
}

// validateQueryBytes enforces MaxQueryBytes on string fields tagged maxbytes.
func validateQueryBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQueryBytes
}

// =============================================================================
// Compose Request / Response
// =============================================================================

// MemoryMode selects how session context is retrieved for a request.
type MemoryMode string

const (
	// MemoryRecency returns the most recent turn pairs in order.
	MemoryRecency MemoryMode = "recency"

	// MemoryLexical ranks turns by token overlap with the query.
	MemoryLexical MemoryMode = "lexical"

	// MemoryAssisted asks the language model to pick relevant turns,
	// degrading silently to lexical then recency on failure.
	MemoryAssisted MemoryMode = "assisted"
)

// ComposeRequest is the body for POST /v1/compose.
//
// SourcePaths is the identity set that keys the session: the same set in
// any order resolves to the same session fingerprint. StrategyOverride,
// when set, bypasses the selector decision table; an unknown value is
// demoted to basic with a logged warning rather than rejected.
type ComposeRequest struct {
	RequestID        string     `json:"request_id" validate:"omitempty,uuid4"`
	Timestamp        time.Time  `json:"timestamp"`
	Query            string     `json:"query" validate:"required,maxbytes"`
	SourcePaths      []string   `json:"source_paths" validate:"max=256,dive,min=1"`
	StrategyOverride string     `json:"strategy_override,omitempty"`
	MemoryMode       MemoryMode `json:"memory_mode,omitempty" validate:"omitempty,oneof=recency lexical assisted"`
	MemoryLimit      int        `json:"memory_limit,omitempty" validate:"min=0,max=50"`

	// WantEvent marks the request as producing a record-like artifact
	// whose structured fields must pass the validation gate.
	WantEvent bool `json:"want_event,omitempty"`
}

// EnsureDefaults fills the request ID, timestamp, and memory settings
// when the caller omits them.
func (r *ComposeRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	if r.MemoryMode == "" {
		r.MemoryMode = MemoryRecency
	}
	if r.MemoryLimit == 0 {
		r.MemoryLimit = 5
	}
}

// Validate checks the request against its struct tags.
func (r *ComposeRequest) Validate() error {
	return requestValidate.Struct(r)
}

// ComposeResponse is the body returned by POST /v1/compose. Degraded is
// true when the memory store was unreachable and the pipeline ran
// stateless. The outcome, iteration list, and validation path let the
// caller assert on the path taken, not just the final content.
type ComposeResponse struct {
	RequestID          string            `json:"request_id"`
	SessionFingerprint string            `json:"session_fingerprint,omitempty"`
	Decision           Decision          `json:"decision"`
	Content            string            `json:"content"`
	Event              *EventRecord      `json:"event,omitempty"`
	Outcome            Outcome           `json:"outcome"`
	WasImproved        bool              `json:"was_improved"`
	Iterations         []IterationRecord `json:"iterations"`
	ValidationPath     ValidationPath    `json:"validation_path"`
	MissingFields      []string          `json:"missing_fields,omitempty"`
	Degraded           bool              `json:"degraded"`
}
