package csvcal

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"rehabcal/internal/model"
)

func TestDecodeFullRow(t *testing.T) {
	text := strings.Join([]string{
		`Title,Description,Start Time,End Time,All Day,Location,Status,Reminder (minutes),Notes`,
		`"Cardiac Rehab, week 1","Bring ""log"" sheet",2024-06-01T09:00:00,2024-06-01T10:00:00,Yes,Gym,COMPLETED,30,ok`,
	}, "\r\n")

	batch, err := Decode(text)
	require.NoError(t, err)
	require.Equal(t, 1, batch.Found)
	require.Len(t, batch.Records, 1)

	rec := batch.Records[0]
	require.Equal(t, "Cardiac Rehab, week 1", rec.Title)
	require.Equal(t, `Bring "log" sheet`, rec.Description)
	require.Equal(t, "2024-06-01T09:00:00", rec.StartTime)
	require.Equal(t, "2024-06-01T10:00:00", rec.EndTime)
	require.True(t, *rec.IsAllDay)
	require.Equal(t, "Gym", rec.Location)
	require.Equal(t, model.StatusCompleted, rec.Status)
	require.Equal(t, 30, *rec.ReminderMinutes)
	require.Equal(t, "ok", rec.Notes)
}

func TestDecodeSkipsIncompleteRowsAndBlankLines(t *testing.T) {
	text := strings.Join([]string{
		"title,start,end",
		"A,2024-01-01T08:00:00,2024-01-01T09:00:00",
		"",
		",2024-01-02T08:00:00,2024-01-02T09:00:00",
		"C,2024-01-03T08:00:00",
		"D,2024-01-04T08:00:00,2024-01-04T09:00:00",
		"",
	}, "\n")

	batch, err := Decode(text)
	require.NoError(t, err)
	require.Equal(t, 4, batch.Found)
	require.Len(t, batch.Records, 2)
	require.Equal(t, "A", batch.Records[0].Title)
	require.Equal(t, "D", batch.Records[1].Title)
}

func TestDecodeFieldFallbacks(t *testing.T) {
	text := "title,start,end,all day,reminder,status\n" +
		"A,s,e,no,soon,tentative\n" +
		"B,s,e,TRUE,,missed\n"

	batch, err := Decode(text)
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)

	a := batch.Records[0]
	require.False(t, *a.IsAllDay)
	require.Equal(t, 0, *a.ReminderMinutes)
	require.Empty(t, a.Status)

	b := batch.Records[1]
	require.True(t, *b.IsAllDay)
	require.Equal(t, model.StatusMissed, b.Status)
}

func TestDecodeReminderLeadingDigits(t *testing.T) {
	text := "title,start,end,reminder\n" +
		"A,s,e,15 min\n" +
		"B,s,e,15.0\n" +
		"C,s,e,-5\n" +
		"D,s,e,min 15\n"

	batch, err := Decode(text)
	require.NoError(t, err)
	require.Len(t, batch.Records, 4)
	for i, want := range []int{15, 15, -5, 0} {
		require.Equal(t, want, *batch.Records[i].ReminderMinutes, batch.Records[i].Title)
	}
}

func TestDecodeHeaderWithByteOrderMark(t *testing.T) {
	text := "\ufeffTitle,Start,End\r\nWalk,2024-06-01T08:00:00,2024-06-01T08:30:00\r\n"

	batch, err := Decode(text)
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	require.Equal(t, "Walk", batch.Records[0].Title)
}

func TestDecodeMalformed(t *testing.T) {
	for _, text := range []string{"", "title,start,end", "title,start,end\n\n  \n"} {
		_, err := Decode(text)
		var mie *model.MalformedInputError
		require.True(t, errors.As(err, &mie), "%q", text)
	}
}

func TestColumnField(t *testing.T) {
	tests := map[string]field{
		"Title":           fieldTitle,
		" DESCRIPTION ":   fieldDescription,
		"Start Date":      fieldStart,
		"end_time":        fieldEnd,
		"All Day Event":   fieldAllDay,
		"Location":        fieldLocation,
		"status":          fieldStatus,
		"Reminder":        fieldReminder,
		"Notes":           fieldNotes,
		"Event Title":     fieldNone,
		"Private":         fieldNone,
		"Attendees":       fieldEnd,
		"Weekend Session": fieldEnd,
	}
	for header, want := range tests {
		require.Equal(t, want, columnField(header), header)
	}
}

func TestDecodeUnknownColumnsIgnored(t *testing.T) {
	text := "Category,Title,Start,End,Private\nclinic,Echo,2024-05-01T10:00:00,2024-05-01T10:30:00,true\n"

	batch, err := Decode(text)
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	require.Equal(t, "Echo", batch.Records[0].Title)
	require.Nil(t, batch.Records[0].IsAllDay)
}
