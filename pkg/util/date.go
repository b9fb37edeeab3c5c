package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var dayLayouts = []string{"20060102", "2006-01-02", "2006/01/02"}

// ParseDay accepts YYYYMMDD, YYYY-MM-DD, YYYY/MM/DD, RFC3339 or unix seconds
// and returns the UTC calendar day.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dayLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return truncateDay(t), nil
	}
	if len(s) > 8 {
		if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
			return truncateDay(time.Unix(ts, 0)), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
