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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianRefine/services/engine/datatypes"
	"github.com/AleutianAI/AleutianRefine/services/llm"
)

// correctionReply is the JSON shape the model is asked to emit. Pointer
// fields distinguish "omitted" from "set empty" so a reply that only
// re-emits the failing fields leaves the rest of the record alone.
type correctionReply struct {
	Start    *string   `json:"start"`
	End      *string   `json:"end"`
	Contacts *[]string `json:"contacts"`
}

// requestCorrection asks the model to re-emit the failing fields and
// merges the reply over a copy of the current record.
func (g *Gate) requestCorrection(ctx context.Context, prompt string, current *datatypes.EventRecord, diagnostic string) (*datatypes.EventRecord, error) {
	reply, err := g.corrector.Generate(ctx, buildCorrectionPrompt(prompt, current, diagnostic), llm.GenerationParams{})
	if err != nil {
		return nil, fmt.Errorf("correction generation: %w", err)
	}

	var parsed correctionReply
	if err := json.Unmarshal([]byte(llm.StripFences(reply)), &parsed); err != nil {
		return nil, fmt.Errorf("correction reply not parseable: %w", err)
	}

	merged := current.Clone()
	if parsed.Start != nil {
		merged.Start = strings.TrimSpace(*parsed.Start)
	}
	if parsed.End != nil {
		merged.End = strings.TrimSpace(*parsed.End)
	}
	if parsed.Contacts != nil {
		contacts := make([]string, 0, len(*parsed.Contacts))
		for _, c := range *parsed.Contacts {
			if trimmed := strings.TrimSpace(c); trimmed != "" {
				contacts = append(contacts, trimmed)
			}
		}
		merged.Contacts = contacts
	}
	return merged, nil
}

func buildCorrectionPrompt(prompt string, current *datatypes.EventRecord, diagnostic string) string {
	var b strings.Builder
	b.WriteString("Your previous output contained invalid structured fields. ")
	b.WriteString("Recalculate and re-emit only the corrected values.\n\n")

	b.WriteString("Original request:\n")
	b.WriteString(prompt)
	b.WriteString("\n\nYour previous output:\n")
	fmt.Fprintf(&b, "start: %s\nend: %s\ncontacts: %s\n", current.Start, current.End, strings.Join(current.Contacts, ", "))

	b.WriteString("\nValidation diagnostic:\n")
	b.WriteString(diagnostic)

	b.WriteString("\n\nReply with JSON only, no code fences, in this shape:\n")
	b.WriteString(`{"start": "RFC3339 datetime", "end": "RFC3339 datetime", "contacts": ["user@example.com"]}` + "\n")
	b.WriteString("Datetimes must be RFC3339, for example 2026-01-25T14:00:00+08:00. ")
	b.WriteString("The end must be strictly after the start. ")
	b.WriteString("Contacts must be bare email addresses; omit names without addresses.")
	return b.String()
}
