package caption

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayout is the format the ingestion endpoint expects:
// millisecond precision, no timezone suffix, wall-clock UTC.
const timestampLayout = "2006-01-02T15:04:05.000"

// FormatTimestamp renders t in the endpoint's expected format. The endpoint
// rejects sub-millisecond precision and timezone suffixes.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ParseTimestamp parses an ISO-8601 timestamp as produced by the endpoint or
// supplied by callers. Zone-qualified forms ("Z", "+05:30") are converted to
// UTC; bare forms are read as UTC already. Fractional seconds beyond
// milliseconds are truncated.
func ParseTimestamp(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)

	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC().Truncate(time.Millisecond), nil
		}
	}
	return time.Time{}, fmt.Errorf("caption: invalid timestamp %q", s)
}
