package tgui

import (
	"time"
	"unicode/utf8"
)

// TruncRunes cuts s to at most n runes and appends "..." when it did.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}
	return s
}

// DateDE formats t as "02.01.2006" in local time.
func DateDE(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("02.01.2006")
}

// DateTimeDE formats t as "02.01.2006, 15:04:05" in local time.
func DateTimeDE(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("02.01.2006, 15:04:05")
}
