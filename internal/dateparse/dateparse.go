// Package dateparse turns the date strings accepted on the command line
// (absolute dates, keywords, weekday names and +N/-N offsets) into times.
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var layouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04"}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Parse resolves input against the current time. See ParseFrom.
func Parse(input string) (time.Time, error) {
	return ParseFrom(input, time.Now())
}

// ParseFrom resolves input relative to now. Supported forms:
//   - Absolute: "2026-03-01", RFC 3339, "2026-03-01 14:30"
//   - Keywords: "today", "tomorrow", "yesterday", "next-week", "next-month"
//   - Offsets: "+7d", "-3d", "+2w", "+1m"
//   - Weekday names, meaning the next occurrence
//
// Everything except explicit timestamps resolves to midnight UTC.
func ParseFrom(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, fmt.Errorf("empty date input")
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, input); err == nil {
			return t.UTC(), nil
		}
	}

	input = strings.ToLower(input)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch input {
	case "today":
		return day, nil
	case "tomorrow":
		return day.AddDate(0, 0, 1), nil
	case "yesterday":
		return day.AddDate(0, 0, -1), nil
	case "next-week":
		return day.AddDate(0, 0, daysUntil(now.Weekday(), time.Monday)), nil
	case "next-month":
		return time.Date(day.Year(), day.Month()+1, 1, 0, 0, 0, 0, time.UTC), nil
	}

	if (input[0] == '+' || input[0] == '-') && len(input) >= 3 {
		n, err := strconv.Atoi(input[1 : len(input)-1])
		if err == nil && n >= 0 {
			if input[0] == '-' {
				n = -n
			}
			switch unit := input[len(input)-1]; unit {
			case 'd':
				return day.AddDate(0, 0, n), nil
			case 'w':
				return day.AddDate(0, 0, 7*n), nil
			case 'm':
				return day.AddDate(0, n, 0), nil
			default:
				return time.Time{}, fmt.Errorf("unknown unit %q in %q (use d, w or m)", string(unit), input)
			}
		}
	}

	if wd, ok := weekdays[input]; ok {
		return day.AddDate(0, 0, daysUntil(now.Weekday(), wd)), nil
	}

	return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD, +Nd or a weekday)", input)
}

// daysUntil counts days to the next target weekday, never zero.
func daysUntil(from, target time.Weekday) int {
	n := (int(target) - int(from) + 7) % 7
	if n == 0 {
		n = 7
	}
	return n
}
