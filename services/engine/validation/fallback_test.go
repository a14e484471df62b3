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
	"time"

	"github.com/stretchr/testify/assert"
)

// Sunday, so weekday arithmetic is easy to eyeball.
var fallbackNow = time.Date(2026, 3, 1, 16, 30, 0, 0, time.UTC)

func TestFallbackParseRelativeDates(t *testing.T) {
	cases := []struct {
		name    string
		dateStr string
		wantDay int
	}{
		{"today", "today", 1},
		{"tomorrow", "Tomorrow", 2},
		{"day after tomorrow", "the day after tomorrow", 3},
		{"unknown text means today", "sometime soonish", 1},
		{"explicit date", "2026-03-10", 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end := FallbackParse(tc.dateStr, "", fallbackNow)
			assert.Equal(t, tc.wantDay, start.Day())
			assert.Equal(t, defaultEventHour, start.Hour())
			assert.Equal(t, time.Hour, end.Sub(start))
		})
	}
}

func TestFallbackParseNextWeekday(t *testing.T) {
	// From Sunday 2026-03-01: next Wednesday is the 4th.
	start, _ := FallbackParse("next Wednesday", "", fallbackNow)
	assert.Equal(t, time.Wednesday, start.Weekday())
	assert.Equal(t, 4, start.Day())

	// Asking for the current weekday jumps a full week ahead.
	start, _ = FallbackParse("next Sunday", "", fallbackNow)
	assert.Equal(t, time.Sunday, start.Weekday())
	assert.Equal(t, 8, start.Day())

	// "next" without a recognizable weekday defaults to next Monday.
	start, _ = FallbackParse("next sprint", "", fallbackNow)
	assert.Equal(t, time.Monday, start.Weekday())
	assert.Equal(t, 2, start.Day())
}

func TestFallbackParseTimes(t *testing.T) {
	start, end := FallbackParse("today", "14:45", fallbackNow)
	assert.Equal(t, 14, start.Hour())
	assert.Equal(t, 45, start.Minute())
	assert.Equal(t, 15, end.Hour())

	start, _ = FallbackParse("today", "2:30 PM", fallbackNow)
	assert.Equal(t, 14, start.Hour())
	assert.Equal(t, 30, start.Minute())

	start, _ = FallbackParse("today", "half past nine", fallbackNow)
	assert.Equal(t, defaultEventHour, start.Hour(), "unparseable time takes the default slot")
}

func TestFallbackParseAlwaysOrdered(t *testing.T) {
	inputs := []struct{ date, clock string }{
		{"", ""}, {"garbage", "garbage"}, {"next friday", "23:59"}, {"2026-12-31", "11:00 pm"},
	}
	for _, in := range inputs {
		start, end := FallbackParse(in.date, in.clock, fallbackNow)
		assert.True(t, end.After(start), "end must always land after start for %q %q", in.date, in.clock)
	}
}
