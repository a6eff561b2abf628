package mojavez

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatAPIDate renders a bound in the registry's unpadded Y/M/D form.
// Day-aligned bounds keep the exact shape the registry documents; sub-day
// bounds (hour-level partition chunks) carry an explicit clock component.
func FormatAPIDate(t time.Time) string {
	date := fmt.Sprintf("%d/%d/%d", t.Year(), int(t.Month()), t.Day())
	if t.Hour() == 0 && t.Minute() == 0 {
		return date
	}
	return fmt.Sprintf("%s %02d:%02d", date, t.Hour(), t.Minute())
}

// FormatAPITime renders a bound with an explicit clock component even at
// midnight. Hour-level partition chunks use this so both bounds of a chunk
// are unambiguous instants.
func FormatAPITime(t time.Time) string {
	return fmt.Sprintf("%d/%d/%d %02d:%02d", t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute())
}

// ParseAPIDate parses Y/M/D with an optional HH:MM clock component.
func ParseAPIDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	datePart := s
	clockPart := ""
	if idx := strings.IndexByte(s, ' '); idx >= 0 {
		datePart = s[:idx]
		clockPart = strings.TrimSpace(s[idx+1:])
	}

	parts := strings.Split(datePart, "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("invalid API date %q", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid year in %q", s)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month in %q", s)
	}
	day, err := strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day in %q", s)
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("out of range API date %q", s)
	}

	hour, minute := 0, 0
	if clockPart != "" {
		hm := strings.Split(clockPart, ":")
		if len(hm) != 2 {
			return time.Time{}, fmt.Errorf("invalid clock in %q", s)
		}
		hour, err = strconv.Atoi(hm[0])
		if err != nil || hour < 0 || hour > 23 {
			return time.Time{}, fmt.Errorf("invalid hour in %q", s)
		}
		minute, err = strconv.Atoi(hm[1])
		if err != nil || minute < 0 || minute > 59 {
			return time.Time{}, fmt.Errorf("invalid minute in %q", s)
		}
	}

	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC), nil
}
