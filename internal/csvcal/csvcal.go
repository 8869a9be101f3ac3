// Package csvcal decodes spreadsheet-style calendar exports: a header row
// naming the columns, then one event per line.
package csvcal

import (
	"strconv"
	"strings"

	"rehabcal/internal/datenorm"
	"rehabcal/internal/model"
	"rehabcal/internal/textscan"
)

type field int

const (
	fieldNone field = iota
	fieldTitle
	fieldDescription
	fieldStart
	fieldEnd
	fieldAllDay
	fieldLocation
	fieldStatus
	fieldReminder
	fieldNotes
)

// columnField maps a header cell to a record field. Matching is
// case-insensitive and the first rule that matches wins, so "Start Date"
// is a start column and "Reminder (min)" a reminder column.
func columnField(header string) field {
	h := strings.ToLower(strings.TrimSpace(header))
	switch {
	case h == "title":
		return fieldTitle
	case h == "description":
		return fieldDescription
	case strings.Contains(h, "start"):
		return fieldStart
	case strings.Contains(h, "end"):
		return fieldEnd
	case strings.Contains(h, "all day"):
		return fieldAllDay
	case h == "location":
		return fieldLocation
	case h == "status":
		return fieldStatus
	case strings.Contains(h, "reminder"):
		return fieldReminder
	case h == "notes":
		return fieldNotes
	default:
		return fieldNone
	}
}

// Decode reads a header row and the data rows after it. Fewer than two
// non-empty lines is a *model.MalformedInputError; rows missing a title,
// start or end are skipped.
func Decode(text string) (model.Batch, error) {
	var lines []string
	for _, l := range textscan.Lines(text) {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 2 {
		return model.Batch{}, &model.MalformedInputError{Reason: "need a header row and at least one data row"}
	}

	headers := textscan.SplitCSVLine(strings.TrimPrefix(lines[0], "\ufeff"))
	columns := make([]field, len(headers))
	for i, h := range headers {
		columns[i] = columnField(h)
	}

	batch := model.Batch{Found: len(lines) - 1}
	for _, line := range lines[1:] {
		rec := decodeRow(columns, textscan.SplitCSVLine(line))
		if rec.Complete() {
			batch.Records = append(batch.Records, rec)
		}
	}
	return batch, nil
}

// decodeRow zips values onto columns by position. Short rows read the
// missing cells as empty; surplus cells are ignored.
func decodeRow(columns []field, values []string) model.Record {
	var rec model.Record
	for i, f := range columns {
		var v string
		if i < len(values) {
			v = strings.TrimSpace(values[i])
		}
		switch f {
		case fieldTitle:
			rec.Title = v
		case fieldDescription:
			rec.Description = v
		case fieldStart:
			rec.StartTime = datenorm.PassThrough(v)
		case fieldEnd:
			rec.EndTime = datenorm.PassThrough(v)
		case fieldAllDay:
			rec.IsAllDay = model.BoolPtr(strings.EqualFold(v, "yes") || strings.EqualFold(v, "true"))
		case fieldLocation:
			rec.Location = v
		case fieldStatus:
			if st, ok := model.ParseStatus(v); ok {
				rec.Status = st
			}
		case fieldReminder:
			rec.ReminderMinutes = model.IntPtr(leadingInt(v))
		case fieldNotes:
			rec.Notes = v
		}
	}
	return rec
}

// leadingInt reads the optional sign and digits at the start of v, so
// "15 min" and "15.0" give 15. Anything without leading digits is 0.
func leadingInt(v string) int {
	end := 0
	if end < len(v) && (v[end] == '-' || v[end] == '+') {
		end++
	}
	start := end
	for end < len(v) && v[end] >= '0' && v[end] <= '9' {
		end++
	}
	if end == start {
		return 0
	}
	n, err := strconv.Atoi(v[:end])
	if err != nil {
		return 0
	}
	return n
}
