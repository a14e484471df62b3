// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation gates structured drafts through two deterministic
// check tiers with a model-assisted correction sub-loop.
//
// Repair ordering is fixed: failing fields go to the model first, up to
// the retry budget, and the deterministic parser runs only after every
// model attempt has failed. The fallback always produces a structurally
// valid record, so the gate as a whole cannot fail.
package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	pkgvalidation "github.com/AleutianAI/AleutianRefine/pkg/validation"
	"github.com/AleutianAI/AleutianRefine/services/engine/datatypes"
	"github.com/AleutianAI/AleutianRefine/services/llm"
)

var tracer = otel.Tracer("aleutian.refine.validation")

// Gate validates one structured draft at a time. Safe for concurrent
// use; all state is per call.
type Gate struct {
	corrector  llm.LLMClient
	maxRetries int

	// now is replaceable in tests.
	now func() time.Time
}

// NewGate builds a gate around an optional correction model. A nil
// client skips the model sub-loop and goes straight to the
// deterministic fallback on any failure. A non-positive retry budget is
// lifted to the default.
func NewGate(corrector llm.LLMClient, maxRetries int) *Gate {
	if maxRetries <= 0 {
		maxRetries = datatypes.DefaultMaxCorrectionRetries
	}
	return &Gate{
		corrector:  corrector,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// Check runs both tiers over a record and returns every violation. The
// logic tier only runs once start and end both pass the format tier, so
// a malformed value is never compared.
func Check(rec *datatypes.EventRecord) []error {
	var errs []error

	startOK := true
	if err := pkgvalidation.ValidateDateTime(rec.Start); err != nil {
		startOK = false
		errs = append(errs, &FormatError{Field: "start", Value: rec.Start, Reason: err.Error()})
	}
	endOK := true
	if err := pkgvalidation.ValidateDateTime(rec.End); err != nil {
		endOK = false
		errs = append(errs, &FormatError{Field: "end", Value: rec.End, Reason: err.Error()})
	}
	if err := pkgvalidation.ValidateEmails(rec.Contacts); err != nil {
		errs = append(errs, &FormatError{Field: "contacts", Value: fmt.Sprint(rec.Contacts), Reason: err.Error()})
	}

	if startOK && endOK {
		start, _ := pkgvalidation.ParseDateTime(rec.Start)
		end, _ := pkgvalidation.ParseDateTime(rec.End)
		if !end.After(start) {
			errs = append(errs, &LogicError{
				Constraint: "end_after_start",
				Detail:     fmt.Sprintf("start %s, end %s", rec.Start, rec.End),
			})
		}
	}
	return errs
}

// Validate drives a record through the gate.
//
// # Description
//
//	A record passing both tiers returns unchanged on the clean path.
//	Otherwise the model is asked to re-emit the failing fields, with a
//	diagnostic naming every violation plus today's date, up to the
//	retry budget; a repaired record returns on the corrected path. If
//	the model never produces a valid record, the deterministic parser
//	synthesizes the temporal fields and the contact list is reduced to
//	its extractable addresses. That path always succeeds structurally
//	and is logged distinctly so imprecise results stay observable.
//
// # Outputs
//
//	The accepted record, the path that produced it, and an error only
//	for a nil input record.
func (g *Gate) Validate(ctx context.Context, prompt string, rec *datatypes.EventRecord) (*datatypes.EventRecord, datatypes.ValidationPath, error) {
	ctx, span := tracer.Start(ctx, "Gate.Validate")
	defer span.End()

	if rec == nil {
		return nil, datatypes.ValidationSkipped, fmt.Errorf("validate called without a structured record")
	}

	errs := Check(rec)
	if len(errs) == 0 {
		span.SetAttributes(attribute.String("validation.path", string(datatypes.ValidationClean)))
		return rec, datatypes.ValidationClean, nil
	}

	current := rec.Clone()
	if g.corrector != nil {
		for attempt := 1; attempt <= g.maxRetries; attempt++ {
			diagnostic := buildDiagnostic(errs, g.now())
			slog.Info("Requesting model correction for structured draft",
				"attempt", attempt, "max_retries", g.maxRetries, "violations", len(errs))

			corrected, err := g.requestCorrection(ctx, prompt, current, diagnostic)
			if err != nil {
				// A failed request, including an unparseable reply, spends
				// one attempt; the remaining budget still goes to the model.
				slog.Warn("Correction request failed", "attempt", attempt, "error", err)
				continue
			}
			current = corrected
			errs = Check(current)
			if len(errs) == 0 {
				slog.Info("Model correction accepted", "attempt", attempt)
				span.SetAttributes(
					attribute.String("validation.path", string(datatypes.ValidationCorrected)),
					attribute.Int("validation.attempts", attempt),
				)
				return current, datatypes.ValidationCorrected, nil
			}
		}
	}

	fixed := g.applyFallback(current)
	slog.Warn("Model correction exhausted, deterministic fallback applied",
		"start", fixed.Start, "end", fixed.End, "contacts", len(fixed.Contacts))
	span.SetAttributes(attribute.String("validation.path", string(datatypes.ValidationFallback)))
	return fixed, datatypes.ValidationFallback, nil
}

// applyFallback repairs whatever still fails using fixed rules only.
func (g *Gate) applyFallback(rec *datatypes.EventRecord) *datatypes.EventRecord {
	fixed := rec.Clone()
	now := g.now()

	startErr := pkgvalidation.ValidateDateTime(fixed.Start)
	endErr := pkgvalidation.ValidateDateTime(fixed.End)
	logicBroken := false
	if startErr == nil && endErr == nil {
		start, _ := pkgvalidation.ParseDateTime(fixed.Start)
		end, _ := pkgvalidation.ParseDateTime(fixed.End)
		logicBroken = !end.After(start)
	}
	if startErr != nil || endErr != nil || logicBroken {
		// The raw start value doubles as the date hint: models that
		// failed format checks often emitted phrases like "tomorrow".
		start, end := FallbackParse(fixed.Start, "", now)
		fixed.Start = start.Format(time.RFC3339)
		fixed.End = end.Format(time.RFC3339)
	}

	if pkgvalidation.ValidateEmails(fixed.Contacts) != nil {
		var keep []string
		var rejected []string
		for _, contact := range fixed.Contacts {
			if pkgvalidation.ValidateEmail(contact) == nil {
				keep = append(keep, contact)
			} else {
				rejected = append(rejected, contact)
			}
		}
		// Addresses buried in display-name forms are still recoverable.
		for _, raw := range rejected {
			keep = append(keep, pkgvalidation.ExtractEmails(raw)...)
		}
		fixed.Contacts = keep
	}
	return fixed
}

// buildDiagnostic enumerates every violation plus the current date, so
// the model can resolve relative phrases like "next Wednesday".
func buildDiagnostic(errs []error, now time.Time) string {
	diagnostic := "The structured fields failed validation:\n"
	for _, err := range errs {
		diagnostic += "- " + err.Error() + "\n"
	}
	diagnostic += fmt.Sprintf("Today is %s (%s).", now.Format("2006-01-02"), now.Weekday())
	return diagnostic
}
