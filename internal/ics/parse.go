package ics

import (
	"strings"

	"rehabcal/internal/datenorm"
	"rehabcal/internal/model"
	"rehabcal/internal/textscan"
)

type state int

const (
	outsideEvent state = iota
	insideEvent
)

// Decoder turns iCalendar text into candidate records. The zero value is
// ready to use and falls back to time.Now for unparseable dates.
type Decoder struct {
	Dates datenorm.Normalizer
}

// Decode scans text line by line. Every BEGIN:VEVENT opens a fresh record;
// the matching END:VEVENT emits it if it has a title, start and end. An
// event left open at end of input, or an END without a BEGIN, produces
// nothing. Decode never fails.
func (d Decoder) Decode(text string) model.Batch {
	var (
		batch model.Batch
		st    = outsideEvent
		acc   model.Record
		// depth counts components nested inside the current VEVENT
		// (VALARM and friends).
		depth int
	)

	for _, line := range textscan.UnfoldICS(textscan.Lines(text)) {
		switch {
		case line == "BEGIN:VEVENT":
			batch.Found++
			st, acc, depth = insideEvent, model.Record{}, 0
		case line == "END:VEVENT":
			if st == insideEvent && acc.Complete() {
				batch.Records = append(batch.Records, acc)
			}
			st, acc, depth = outsideEvent, model.Record{}, 0
		case st != insideEvent:
			// outside any event: VCALENDAR headers, VTIMEZONE, ...
		case strings.HasPrefix(line, "BEGIN:"):
			depth++
		case depth > 0 && strings.HasPrefix(line, "END:"):
			depth--
		case depth > 0:
			if strings.HasPrefix(line, "TRIGGER") && acc.ReminderMinutes == nil {
				if m, ok := reminderFromTrigger(line); ok {
					acc.ReminderMinutes = model.IntPtr(m)
				}
			}
		default:
			if !d.apply(&acc, line) {
				batch.DateFallbacks++
			}
		}
	}

	return batch
}

// apply matches one event property line. The order is fixed and the first
// matching prefix wins. It returns false only when a date had to fall back
// to the current time.
func (d Decoder) apply(acc *model.Record, line string) bool {
	switch {
	case strings.HasPrefix(line, "SUMMARY:"):
		acc.Title = Unescape(strings.TrimPrefix(line, "SUMMARY:"))
	case strings.HasPrefix(line, "DESCRIPTION:"):
		acc.Description = Unescape(strings.TrimPrefix(line, "DESCRIPTION:"))
	case strings.HasPrefix(line, "LOCATION:"):
		acc.Location = Unescape(strings.TrimPrefix(line, "LOCATION:"))
	case strings.HasPrefix(line, "DTSTART"):
		params, value, found := strings.Cut(line, ":")
		if !found {
			return true
		}
		ts, ok := d.Dates.ICS(value)
		acc.StartTime = ts
		acc.IsAllDay = model.BoolPtr(isDateValue(params, value))
		return ok
	case strings.HasPrefix(line, "DTEND"):
		_, value, found := strings.Cut(line, ":")
		if !found {
			return true
		}
		ts, ok := d.Dates.ICS(value)
		acc.EndTime = ts
		return ok
	case strings.HasPrefix(line, "STATUS:"):
		if st, ok := model.ParseStatus(strings.TrimPrefix(line, "STATUS:")); ok {
			acc.Status = st
		}
	case strings.HasPrefix(line, "UID:"):
		acc.UID = strings.TrimPrefix(line, "UID:")
	case strings.HasPrefix(line, "RRULE:"):
		if rule := strings.TrimPrefix(line, "RRULE:"); ValidRRule(rule) {
			acc.RecurrenceRule = rule
		}
	}
	return true
}

// isDateValue reports whether a DTSTART carries a date rather than a
// date-time, either by VALUE=DATE or by its 8-character shape.
func isDateValue(params, value string) bool {
	for _, p := range strings.Split(params, ";")[1:] {
		if strings.EqualFold(p, "VALUE=DATE") {
			return true
		}
	}
	return datenorm.IsAllDay(value)
}

// Unescape resolves iCalendar TEXT escapes in a single left-to-right pass:
// \n and \N become a newline, \, \; and \\ become the literal character.
// Unknown escapes and a trailing lone backslash are kept as written, so a
// source "\\n" yields a backslash followed by n, never a newline.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		switch next := s[i+1]; next {
		case 'n', 'N':
			b.WriteByte('\n')
		case ',', ';', '\\':
			b.WriteByte(next)
		default:
			b.WriteByte(c)
			b.WriteByte(next)
		}
		i++
	}
	return b.String()
}
