package datenorm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 19, 7, 45, 12, 0, time.UTC)

func TestICS(t *testing.T) {
	n := Normalizer{Now: func() time.Time { return fixedNow }}

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"20240315", "2024-03-15T00:00:00", true},
		{"20240315T143000", "2024-03-15T14:30:00", true},
		{"20240315T143000Z", "2024-03-15T14:30:00", true},
		{" 20240315T143000Z ", "2024-03-15T14:30:00", true},
		{"20240229", "2024-02-29T00:00:00", true},
		{"2024031", "2026-10-19T07:45:12", false},
		{"", "2026-10-19T07:45:12", false},
		{"20240230", "2024-02-30T00:00:00", true},
		{"20240630T235960", "2024-06-30T23:59:60", true},
		{"20241315T143000", "2024-13-15T14:30:00", true},
		{"20240315 143000", "2026-10-19T07:45:12", false},
		{"20240315T14300X", "2026-10-19T07:45:12", false},
		{"2024-03-15T14:30:00", "2026-10-19T07:45:12", false},
		{"2024AB15", "2026-10-19T07:45:12", false},
	}
	for _, tt := range tests {
		got, ok := n.ICS(tt.in)
		require.Equal(t, tt.want, got, tt.in)
		require.Equal(t, tt.wantOK, ok, tt.in)
	}
}

func TestICSDefaultClock(t *testing.T) {
	got, ok := Normalizer{}.ICS("garbage")
	require.False(t, ok)
	_, err := time.Parse(Canonical, got)
	require.NoError(t, err)
}

func TestIsAllDay(t *testing.T) {
	require.True(t, IsAllDay("20240601"))
	require.False(t, IsAllDay("20240601T090000"))
}

func TestPassThrough(t *testing.T) {
	require.Equal(t, "next tuesday", PassThrough("next tuesday"))
}

func TestParse(t *testing.T) {
	want := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-06-01T09:00:00", "2024-06-01T09:00:00+02:00", "2024-06-01 09:00:00", "2024-06-01T09:00"} {
		got, err := Parse(in)
		require.NoError(t, err, in)
		require.True(t, want.Equal(got), in)
	}

	_, err := Parse("tomorrow")
	require.Error(t, err)
}
