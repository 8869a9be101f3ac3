package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	"rehabcal/internal/datenorm"
	"rehabcal/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 500
)

// ValidRRule reports whether rule (the value of an RRULE property, without
// the "RRULE:" prefix) is a recurrence rule rrule-go can evaluate.
func ValidRRule(rule string) bool {
	if rule == "" {
		return false
	}
	_, err := rrule.StrToROption(rule)
	return err == nil
}

// ExpandConfig controls recurrence expansion of decoded records.
type ExpandConfig struct {
	// RangeStart / RangeEnd define the inclusive window, read as wall-clock
	// times like the canonical timestamps themselves.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps a single rule. If zero,
	// defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps expanded occurrences and the indexes of records whose
// expansion hit the cap.
type ExpandResult struct {
	Occurrences []model.Occurrence
	Truncated   []int
	// Skipped lists records whose timestamps could not be read.
	Skipped []int
}

// ExpandOccurrences turns records into concrete occurrences inside the
// window. Records without a recurrence rule yield at most one occurrence;
// recurring ones follow their RRULE from their own start time and keep the
// original duration. Output follows record order, then occurrence order.
func ExpandOccurrences(records []model.Record, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}
	from := wallClock(cfg.RangeStart)
	to := wallClock(cfg.RangeEnd)

	for i, rec := range records {
		start, err := datenorm.Parse(rec.StartTime)
		if err != nil {
			result.Skipped = append(result.Skipped, i)
			continue
		}
		end, err := datenorm.Parse(rec.EndTime)
		if err != nil || end.Before(start) {
			end = start
		}

		if rec.RecurrenceRule == "" {
			if !end.Before(from) && !start.After(to) {
				result.Occurrences = append(result.Occurrences, makeOccurrence(i, rec, start, end))
			}
			continue
		}

		opt, err := rrule.StrToROption(rec.RecurrenceRule)
		if err != nil {
			result.Skipped = append(result.Skipped, i)
			continue
		}
		opt.Dtstart = start
		r, err := rrule.NewRRule(*opt)
		if err != nil {
			result.Skipped = append(result.Skipped, i)
			continue
		}

		dur := end.Sub(start)
		times := r.Between(from, to, true)
		if len(times) > cfg.MaxOccurrencesPerEvent {
			times = times[:cfg.MaxOccurrencesPerEvent]
			result.Truncated = append(result.Truncated, i)
		}
		for _, occStart := range times {
			result.Occurrences = append(result.Occurrences, makeOccurrence(i, rec, occStart, occStart.Add(dur)))
		}
	}

	return result, nil
}

func makeOccurrence(index int, rec model.Record, start, end time.Time) model.Occurrence {
	startTS := start.Format(datenorm.Canonical)
	return model.Occurrence{
		RecordIndex: index,
		UID:         rec.UID,
		InstanceKey: startTS,
		Title:       rec.Title,
		Location:    rec.Location,
		AllDay:      rec.IsAllDay != nil && *rec.IsAllDay,
		StartTime:   startTS,
		EndTime:     end.Format(datenorm.Canonical),
	}
}

// wallClock drops the zone while keeping the displayed numerals, matching
// how canonical timestamps are read.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}
