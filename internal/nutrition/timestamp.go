package nutrition

import (
	"strconv"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseClientTimestamp resolves the optional client-supplied consumed-at
// value. Digit-only strings are epoch milliseconds, anything else is tried as
// an ISO date. Blank or unparseable input falls back to now; the second return
// value reports whether that happened. Parsing never fails the request.
func ParseClientTimestamp(raw string, now time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now, true
	}

	if isDigits(raw) {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return now, true
		}
		return time.UnixMilli(ms).UTC(), false
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), false
		}
	}
	return now, true
}

// CalendarDate returns the YYYY-MM-DD date of t in loc, used for daily rollups.
func CalendarDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(time.DateOnly)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
