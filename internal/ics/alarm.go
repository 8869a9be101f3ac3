package ics

import (
	"strconv"
	"strings"
)

// reminderFromTrigger reads a VALARM TRIGGER line such as
// "TRIGGER;RELATED=START:-PT15M" and returns the lead time in minutes.
// Absolute triggers and triggers after the start are ignored.
func reminderFromTrigger(line string) (int, bool) {
	params, value, found := strings.Cut(line, ":")
	if !found || strings.Contains(strings.ToUpper(params), "VALUE=DATE-TIME") {
		return 0, false
	}
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "-") && value != "PT0S" && value != "PT0M" {
		return 0, false
	}
	minutes, ok := durationMinutes(strings.TrimPrefix(value, "-"))
	if !ok {
		return 0, false
	}
	return minutes, true
}

// durationMinutes parses an unsigned RFC 5545 duration (P1D, PT1H30M,
// P1W, ...) into whole minutes. Seconds are truncated.
func durationMinutes(v string) (int, bool) {
	if !strings.HasPrefix(v, "P") || len(v) < 3 {
		return 0, false
	}
	var (
		total  int
		num    strings.Builder
		inTime bool
	)
	for _, c := range v[1:] {
		switch {
		case c >= '0' && c <= '9':
			num.WriteRune(c)
			continue
		case c == 'T':
			if inTime || num.Len() > 0 {
				return 0, false
			}
			inTime = true
			continue
		}
		if num.Len() == 0 {
			return 0, false
		}
		n, err := strconv.Atoi(num.String())
		if err != nil {
			return 0, false
		}
		num.Reset()
		switch {
		case c == 'W' && !inTime:
			total += n * 7 * 24 * 60
		case c == 'D' && !inTime:
			total += n * 24 * 60
		case c == 'H' && inTime:
			total += n * 60
		case c == 'M' && inTime:
			total += n
		case c == 'S' && inTime:
			total += n / 60
		default:
			return 0, false
		}
	}
	if num.Len() > 0 {
		return 0, false
	}
	return total, true
}
