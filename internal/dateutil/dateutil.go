// Package dateutil parses the date strings accepted on event import.
package dateutil

import (
	"fmt"
	"strings"
	"time"
)

// Layouts tried in order. Inputs without a zone are read as UTC.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type ParseError struct {
	Input string
}

func (e *ParseError) Error() string { return fmt.Sprintf("invalid date %q", e.Input) }

// Parse returns the instant described by s or a *ParseError.
func Parse(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return time.Time{}, &ParseError{Input: s}
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &ParseError{Input: s}
}

// ParseOr parses s when it is non-empty and falls back to def otherwise.
func ParseOr(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	return Parse(s)
}
