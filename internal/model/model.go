package model

import "strings"

// Status is the closed appointment status vocabulary. The zero value means
// "unset".
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusMissed    Status = "missed"
)

// ParseStatus lower-cases s and reports whether it names one of the four
// known statuses. Anything else yields ("", false) and must not be stored.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusMissed:
		return st, true
	default:
		return "", false
	}
}

// Record is a candidate calendar event decoded from an external export.
// It is transient: decoders build it, callers persist it, nothing here
// keeps it around.
//
// StartTime and EndTime are canonical timestamps (YYYY-MM-DDTHH:MM:SS) for
// ICS input; CSV and JSON values are carried through as written.
type Record struct {
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	Location        string `json:"location,omitempty"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
	IsAllDay        *bool  `json:"isAllDay,omitempty"`
	Status          Status `json:"status,omitempty"`
	ReminderMinutes *int   `json:"reminderMinutes,omitempty"`
	Notes           string `json:"notes,omitempty"`

	// ICS only.
	UID            string `json:"uid,omitempty"`
	RecurrenceRule string `json:"recurrenceRule,omitempty"`
}

// Complete reports whether r carries the three fields every emitted record
// must have.
func (r Record) Complete() bool {
	return r.Title != "" && r.StartTime != "" && r.EndTime != ""
}

// Batch is the output of one decoder call.
type Batch struct {
	Records []Record
	// Found counts raw top-level constructs in the source (VEVENT blocks,
	// array elements, data rows), emitted or not.
	Found int
	// DateFallbacks counts ICS dates that could not be parsed and were
	// replaced with the import time.
	DateFallbacks int
}

// Dropped is the number of constructs that did not become records.
func (b Batch) Dropped() int {
	return b.Found - len(b.Records)
}

func BoolPtr(v bool) *bool { return &v }

func IntPtr(v int) *int { return &v }

// Occurrence is a single concrete instance of a record after recurrence
// expansion.
type Occurrence struct {
	// RecordIndex points back into the slice that was expanded.
	RecordIndex int    `json:"recordIndex"`
	UID         string `json:"uid,omitempty"`
	// InstanceKey identifies one instance of a recurring record; it is the
	// canonical start time.
	InstanceKey string `json:"instanceKey"`

	Title    string `json:"title"`
	Location string `json:"location,omitempty"`
	AllDay   bool   `json:"allDay"`

	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}
