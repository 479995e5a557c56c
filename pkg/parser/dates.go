package parser

import (
	"strings"
	"time"
)

// dateLayouts is the shared ordered list of ISO-like and locale formats
// §4.1 describes: "try a fixed ordered list ... on miss, return null."
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"01/02/2006 15:04:05",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"02-01-2006",
	"2006/01/02",
}

// ParseDate tries every layout in order and returns nil (never an error) on
// a miss, so callers can warn-and-null rather than fail the job.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
