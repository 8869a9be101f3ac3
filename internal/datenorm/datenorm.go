// Package datenorm converts format-specific date tokens into the canonical
// timestamp shape used by decoded records: YYYY-MM-DDTHH:MM:SS, whole
// seconds, no zone.
package datenorm

import (
	"strings"
	"time"
)

// Canonical is the time layout of every normalized timestamp.
const Canonical = "2006-01-02T15:04:05"

// Lengths of the two ICS date shapes.
const (
	icsDate     = "20060102"
	icsDateTime = "20060102T150405"
)

// Normalizer turns ICS date tokens into canonical timestamps. Now supplies
// the fallback value for unparseable input; nil means time.Now.
type Normalizer struct {
	Now func() time.Time
}

// ICS normalizes a DTSTART/DTEND value.
//
//   - YYYYMMDD becomes YYYY-MM-DDT00:00:00.
//   - YYYYMMDDTHHMMSS (15 or more characters) keeps its wall-clock numerals;
//     a trailing Z is dropped without converting zones.
//
// Numerals are copied as written, so 20240230 or a leap second stays as
// given. A token of any other length, or with non-digits where numerals
// belong, is replaced by the current time and ok is false.
func (n Normalizer) ICS(token string) (ts string, ok bool) {
	v := strings.TrimSuffix(strings.TrimSpace(token), "Z")

	switch {
	case len(v) == len(icsDate):
		if digits(v) {
			return v[0:4] + "-" + v[4:6] + "-" + v[6:8] + "T00:00:00", true
		}
	case len(v) >= len(icsDateTime):
		if digits(v[0:8]) && v[8] == 'T' && digits(v[9:15]) {
			return v[0:4] + "-" + v[4:6] + "-" + v[6:8] + "T" + v[9:11] + ":" + v[11:13] + ":" + v[13:15], true
		}
	}
	return n.now(), false
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsAllDay reports whether an ICS date token is a bare date.
func IsAllDay(token string) bool {
	return len(strings.TrimSpace(token)) == len(icsDate)
}

// PassThrough is the CSV/JSON policy: values are assumed already
// normalized and are returned untouched, malformed or not.
func PassThrough(v string) string {
	return v
}

// Parse reads a canonical timestamp, accepting RFC 3339 and bare dates as
// well since CSV/JSON values are passed through as written. Zoned values
// keep their wall-clock reading.
func Parse(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range []string{Canonical, time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02"} {
		t, err := time.Parse(layout, v)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
		}
	}
	return time.Parse(Canonical, v)
}

func (n Normalizer) now() string {
	if n.Now != nil {
		return n.Now().Format(Canonical)
	}
	return time.Now().Format(Canonical)
}
