package ui

import (
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// FormatDate renders a conversation timestamp relative to now:
// today as "15:04", within a week as "Mon 15:04", this year as "Jan 2",
// otherwise "Jan 2, 2006".
func FormatDate(t, now time.Time) string {
	t = t.In(now.Location())
	y1, m1, d1 := t.Date()
	y2, m2, d2 := now.Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return t.Format("15:04")
	}
	if now.Sub(t) < 7*24*time.Hour {
		return t.Format("Mon 15:04")
	}
	if y1 == y2 {
		return t.Format("Jan 2")
	}
	return t.Format("Jan 2, 2006")
}

// truncate cuts s to fit width terminal cells, adding an ellipsis when cut.
// Newlines are flattened to spaces.
func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}

// padRight pads s with spaces to width terminal cells
func padRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}
