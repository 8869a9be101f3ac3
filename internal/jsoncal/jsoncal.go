// Package jsoncal decodes JSON calendar exports.
//
// Two root shapes are accepted: {"events": [...]} and a bare array. Each
// element is copied field-for-field into a record; dates are assumed to be
// pre-formatted and are passed through untouched.
package jsoncal

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"

	"rehabcal/internal/datenorm"
	"rehabcal/internal/model"
)

// Decode parses text and returns the records that carry a title, start and
// end. A root of any other shape, or text that is not JSON, yields
// *model.InvalidFormatError.
func Decode(text string) (model.Batch, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return model.Batch{}, &model.InvalidFormatError{Reason: err.Error()}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return model.Batch{}, &model.InvalidFormatError{Reason: "unexpected content after the JSON document"}
	}

	elements, ok := eventArray(root)
	if !ok {
		return model.Batch{}, &model.InvalidFormatError{Reason: `expected an array or an object with an "events" array`}
	}

	batch := model.Batch{Found: len(elements)}
	for _, el := range elements {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		if rec := toRecord(obj); rec.Complete() {
			batch.Records = append(batch.Records, rec)
		}
	}
	return batch, nil
}

func eventArray(root any) ([]any, bool) {
	switch v := root.(type) {
	case []any:
		return v, true
	case map[string]any:
		events, ok := v["events"].([]any)
		return events, ok
	default:
		return nil, false
	}
}

// toRecord maps known keys. A value of the wrong JSON type leaves its field
// unset.
func toRecord(obj map[string]any) model.Record {
	rec := model.Record{
		Title:       str(obj, "title"),
		Description: str(obj, "description"),
		Location:    str(obj, "location"),
		StartTime:   datenorm.PassThrough(str(obj, "startTime")),
		EndTime:     datenorm.PassThrough(str(obj, "endTime")),
		Notes:       str(obj, "notes"),
	}
	if v, ok := obj["isAllDay"].(bool); ok {
		rec.IsAllDay = model.BoolPtr(v)
	}
	if st, ok := model.ParseStatus(str(obj, "status")); ok {
		rec.Status = st
	}
	if n, ok := obj["reminderMinutes"].(json.Number); ok {
		if m, ok := wholeNumber(n); ok {
			rec.ReminderMinutes = model.IntPtr(m)
		}
	}
	return rec
}

func str(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func wholeNumber(n json.Number) (int, bool) {
	if i, err := n.Int64(); err == nil && i >= math.MinInt32 && i <= math.MaxInt32 {
		return int(i), true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
