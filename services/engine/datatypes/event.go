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

// Draft is one candidate artifact. Content always carries the free-text
// body. Event is non-nil only for record-like artifacts whose structured
// fields go through the validation gate. Each refinement iteration
// supersedes the previous draft rather than mutating it.
type Draft struct {
	Content string       `json:"content"`
	Event   *EventRecord `json:"event,omitempty"`
}

// HasStructuredFields reports whether the draft carries a structured
// sub-record subject to format and logic validation.
func (d Draft) HasStructuredFields() bool {
	return d.Event != nil
}

// EventRecord is the structured sub-record for scheduling-style drafts.
// Start and End stay as raw strings until the validation gate has
// confirmed their format, so a malformed value survives long enough to
// be named in a correction diagnostic.
type EventRecord struct {
	Title       string   `json:"title"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Contacts    []string `json:"contacts,omitempty"`
	Location    string   `json:"location,omitempty"`
	Description string   `json:"description,omitempty"`
}

// MissingFields names the required scheduling fields the record never
// received, so callers can prompt for them instead of guessing.
func (e *EventRecord) MissingFields() []string {
	if e == nil {
		return nil
	}
	var missing []string
	if e.Title == "" {
		missing = append(missing, "title")
	}
	if e.Start == "" {
		missing = append(missing, "start")
	}
	if e.End == "" {
		missing = append(missing, "end")
	}
	if len(e.Contacts) == 0 {
		missing = append(missing, "contacts")
	}
	return missing
}

// Clone returns a deep copy so corrections never mutate a prior draft.
func (e *EventRecord) Clone() *EventRecord {
	if e == nil {
		return nil
	}
	dup := *e
	if e.Contacts != nil {
		dup.Contacts = append([]string(nil), e.Contacts...)
	}
	return &dup
}

// ValidationPath records which repair tier produced the accepted record.
type ValidationPath string

const (
	// ValidationClean means the draft passed both tiers unmodified.
	ValidationClean ValidationPath = "clean"

	// ValidationCorrected means the LLM correction sub-loop repaired
	// one or more fields.
	ValidationCorrected ValidationPath = "llm_corrected"

	// ValidationFallback means the deterministic parser produced the
	// final values after correction retries ran out.
	ValidationFallback ValidationPath = "fallback"

	// ValidationSkipped means the draft had no structured fields.
	ValidationSkipped ValidationPath = "skipped"
)
