package lucide

import (
	"testing"
	"time"
	"unicode/utf8"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{
			name:    "short message passes through",
			message: "Lyon fixtures",
			want:    "Lyon fixtures",
		},
		{
			name:    "whitespace trimmed before truncation",
			message: "  What is the weather in Lyon tomorrow morning please\n",
			want:    "What is the weather in Lyon tomo…",
		},
		{
			name:    "exactly the limit keeps no marker",
			message: "abcdefghijklmnopqrstuvwxyzabcdef",
			want:    "abcdefghijklmnopqrstuvwxyzabcdef",
		},
		{
			name:    "empty falls back to default",
			message: "   \n  ",
			want:    DefaultTitle,
		},
		{
			name:    "counts runes not bytes",
			message: "ééééééééééééééééééééééééééééééééé",
			want:    "éééééééééééééééééééééééééééééééé…",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveTitle(tt.message)
			if got != tt.want {
				t.Errorf("DeriveTitle(%q) = %q, want %q", tt.message, got, tt.want)
			}
			if n := utf8.RuneCountInString(got); n > titleMaxRunes+1 {
				t.Errorf("title too long: %d runes", n)
			}
		})
	}
}

func TestFormatDateLabel(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"same day", now.Add(-2 * time.Hour), "Today"},
		{"previous day", now.Add(-24 * time.Hour), "Yesterday"},
		{"late yesterday", time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC), "Yesterday"},
		{"older", time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC), "Jan 5, 2026"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDateLabel(tt.t, now); got != tt.want {
				t.Errorf("FormatDateLabel(%v) = %q, want %q", tt.t, got, tt.want)
			}
		})
	}
}
