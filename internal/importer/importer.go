// Package importer selects a calendar export decoder by format and reports
// how much of the source survived normalization.
package importer

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"rehabcal/internal/csvcal"
	"rehabcal/internal/datenorm"
	"rehabcal/internal/ics"
	"rehabcal/internal/jsoncal"
	"rehabcal/internal/model"
)

// Format is the closed set of export formats.
type Format int

const (
	FormatICS Format = iota + 1
	FormatJSON
	FormatCSV
)

func (f Format) String() string {
	switch f {
	case FormatICS:
		return "ics"
	case FormatJSON:
		return "json"
	case FormatCSV:
		return "csv"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat accepts exactly "ics", "json" or "csv".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "ics":
		return FormatICS, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	default:
		return 0, &model.UnsupportedFormatError{Format: s}
	}
}

// Import decodes text in the named format. It is the whole engine contract:
// no state, no I/O, records in source order.
func Import(text, format string) ([]model.Record, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	batch, err := Engine{}.Decode(text, f)
	if err != nil {
		return nil, err
	}
	return batch.Records, nil
}

// Engine carries the clock used for unparseable ICS dates. The zero value
// uses time.Now.
type Engine struct {
	Now func() time.Time
}

// Decode hands text to the decoder for f.
func (e Engine) Decode(text string, f Format) (model.Batch, error) {
	switch f {
	case FormatICS:
		return ics.Decoder{Dates: datenorm.Normalizer{Now: e.Now}}.Decode(text), nil
	case FormatJSON:
		return jsoncal.Decode(text)
	case FormatCSV:
		return csvcal.Decode(text)
	default:
		return model.Batch{}, &model.UnsupportedFormatError{Format: f.String()}
	}
}

// Report describes one import run.
type Report struct {
	ID     string `json:"id"`
	Format string `json:"format"`
	// Found is the number of event blocks, array elements or data rows in
	// the source; Imported is how many became records.
	Found         int            `json:"found"`
	Imported      int            `json:"imported"`
	DateFallbacks int            `json:"dateFallbacks,omitempty"`
	Records       []model.Record `json:"records"`
}

// Summary renders the user-facing "N of M imported" line.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d imported", r.Imported, r.Found)
	if r.DateFallbacks > 0 {
		fmt.Fprintf(&b, " (%d unreadable dates set to import time)", r.DateFallbacks)
	}
	return b.String()
}

// Run parses the format tag, decodes text and wraps the result in a Report
// with a fresh ID.
func (e Engine) Run(text, format string) (Report, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return Report{}, err
	}
	batch, err := e.Decode(text, f)
	if err != nil {
		return Report{}, err
	}
	records := batch.Records
	if records == nil {
		records = []model.Record{}
	}
	return Report{
		ID:            uuid.NewString(),
		Format:        f.String(),
		Found:         batch.Found,
		Imported:      len(batch.Records),
		DateFallbacks: batch.DateFallbacks,
		Records:       records,
	}, nil
}
