package lucide

import (
	"strings"
	"time"
)

const (
	// titleMaxRunes is the maximum derived-title length before truncation.
	titleMaxRunes = 32

	// truncationMarker is appended when a derived title is cut short.
	truncationMarker = "…"
)

// DeriveTitle builds a conversation title from the first user message:
// leading/trailing whitespace and newlines are trimmed, then the result is
// truncated to 32 runes with a marker when longer.
func DeriveTitle(message string) string {
	title := strings.TrimSpace(message)
	if title == "" {
		return DefaultTitle
	}

	runes := []rune(title)
	if len(runes) <= titleMaxRunes {
		return title
	}
	return string(runes[:titleMaxRunes]) + truncationMarker
}

// FormatDateLabel renders the human-facing relative date for t: "Today",
// "Yesterday", or a formatted date for anything older.
func FormatDateLabel(t, now time.Time) string {
	ty, tm, td := t.Date()

	ny, nm, nd := now.Date()
	if ty == ny && tm == nm && td == nd {
		return "Today"
	}

	yy, ym, yd := now.AddDate(0, 0, -1).Date()
	if ty == yy && tm == ym && td == yd {
		return "Yesterday"
	}

	return t.Format("Jan 2, 2006")
}

// DerivePreview builds the short listing excerpt from a message.
func DerivePreview(message string) string {
	preview := strings.TrimSpace(message)
	runes := []rune(preview)
	if len(runes) <= 80 {
		return preview
	}
	return string(runes[:80]) + truncationMarker
}
