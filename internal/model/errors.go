package model

import "fmt"

// UnsupportedFormatError is returned when an import names a format outside
// ics/json/csv.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported import format %q", e.Format)
}

// InvalidFormatError is returned when a JSON export has a root that is
// neither an array nor an object with an "events" array.
type InvalidFormatError struct {
	Reason string
}

func (e *InvalidFormatError) Error() string {
	return "invalid JSON calendar export: " + e.Reason
}

// MalformedInputError is returned when a CSV export lacks a header row or
// data rows.
type MalformedInputError struct {
	Reason string
}

func (e *MalformedInputError) Error() string {
	return "malformed CSV calendar export: " + e.Reason
}
