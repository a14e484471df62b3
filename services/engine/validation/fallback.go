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
	"strings"
	"time"
)

// defaultEventHour is the start hour used when no time can be parsed.
const defaultEventHour = 9

// defaultEventDuration is applied when only a start time is known.
const defaultEventDuration = time.Hour

var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

var timeLayouts = []string{"15:04", "3:04 PM", "3:04PM", "3:04 pm", "3:04pm"}

// FallbackParse is the unconditional safety net behind the correction
// sub-loop.
//
// # Description
//
//	Produces a structurally valid start/end pair from raw date and time
//	hints using fixed rules, never the model. Relative phrases (today,
//	tomorrow, day after tomorrow, next <weekday>) and YYYY-MM-DD dates
//	are understood; anything else means today. "next <weekday>" always
//	lands in the future, so asking for next Wednesday on a Wednesday
//	gives the one seven days out. An unparseable or missing time slots
//	the event at 09:00. The end is always start plus one hour, so the
//	pair always satisfies the end-after-start constraint.
//
// # Limitations
//
//	The result is approximate on purpose. This path only runs after
//	every model correction attempt has failed, and callers log it
//	separately so imprecise values stay visible.
func FallbackParse(dateStr, timeStr string, now time.Time) (time.Time, time.Time) {
	target := resolveDate(strings.ToLower(strings.TrimSpace(dateStr)), now)
	hour, minute := resolveTime(strings.TrimSpace(timeStr))

	start := time.Date(target.Year(), target.Month(), target.Day(), hour, minute, 0, 0, now.Location())
	return start, start.Add(defaultEventDuration)
}

func resolveDate(lower string, now time.Time) time.Time {
	switch {
	case strings.Contains(lower, "day after tomorrow"):
		return now.AddDate(0, 0, 2)
	case strings.Contains(lower, "tomorrow"):
		return now.AddDate(0, 0, 1)
	case strings.Contains(lower, "today"):
		return now
	case strings.Contains(lower, "next"):
		return nextWeekday(lower, now)
	}
	if parsed, err := time.ParseInLocation("2006-01-02", lower, now.Location()); err == nil {
		return parsed
	}
	return now
}

func nextWeekday(lower string, now time.Time) time.Time {
	for name, wd := range weekdayNames {
		if !strings.Contains(lower, name) {
			continue
		}
		ahead := int(wd) - int(now.Weekday())
		if ahead <= 0 {
			ahead += 7
		}
		return now.AddDate(0, 0, ahead)
	}
	// No weekday named: default to next Monday.
	ahead := (int(time.Monday) - int(now.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return now.AddDate(0, 0, ahead)
}

func resolveTime(raw string) (int, int) {
	if raw == "" {
		return defaultEventHour, 0
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.Hour(), parsed.Minute()
		}
	}
	return defaultEventHour, 0
}
