package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"rehabcal/internal/datenorm"
	"rehabcal/internal/model"
)

const defaultProductID = "-//rehabcal//calendar export//EN"

// EncodeOptions configures the outbound feed.
type EncodeOptions struct {
	ProductID string
	// Now stamps DTSTAMP; nil means time.Now.
	Now func() time.Time
}

// Encode renders records as an iCalendar feed using the same property
// mapping Decode reads back: SUMMARY, DESCRIPTION, LOCATION, DTSTART/DTEND
// (VALUE=DATE for all-day records), STATUS, RRULE, UID and a display
// VALARM for the reminder. Timestamps keep their numerals and are written
// with a Z marker. Records whose start cannot be read are skipped and
// counted.
func Encode(records []model.Record, opts EncodeOptions) (feed string, skipped int) {
	if opts.ProductID == "" {
		opts.ProductID = defaultProductID
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(opts.ProductID)

	for _, rec := range records {
		start, err := datenorm.Parse(rec.StartTime)
		if err != nil {
			skipped++
			continue
		}
		end, err := datenorm.Parse(rec.EndTime)
		if err != nil {
			end = start
		}

		uid := rec.UID
		if uid == "" {
			uid = uuid.NewString()
		}
		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(now())
		ev.SetSummary(rec.Title)
		if rec.Description != "" {
			ev.SetDescription(rec.Description)
		}
		if rec.Location != "" {
			ev.SetLocation(rec.Location)
		}

		if rec.IsAllDay != nil && *rec.IsAllDay {
			ev.SetAllDayStartAt(start)
			ev.SetAllDayEndAt(end)
		} else {
			ev.SetStartAt(start)
			ev.SetEndAt(end)
		}

		if rec.Status != "" {
			ev.SetStatus(ical.ObjectStatus(strings.ToUpper(string(rec.Status))))
		}
		if rec.RecurrenceRule != "" {
			ev.AddRrule(rec.RecurrenceRule)
		}
		if rec.ReminderMinutes != nil && *rec.ReminderMinutes > 0 {
			alarm := ev.AddAlarm()
			alarm.SetAction(ical.ActionDisplay)
			alarm.SetTrigger(fmt.Sprintf("-PT%dM", *rec.ReminderMinutes))
		}
	}

	return cal.Serialize(), skipped
}
