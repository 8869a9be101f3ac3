package jsoncal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"rehabcal/internal/model"
)

func TestDecodeEventsObject(t *testing.T) {
	text := `{"calendar":"rehab","events":[
		{"title":"Walk","startTime":"2024-06-01T08:00:00","endTime":"2024-06-01T08:30:00",
		 "isAllDay":false,"location":"Park","status":"Completed","reminderMinutes":15,"notes":"felt good",
		 "description":"30 min"}
	]}`

	batch, err := Decode(text)
	require.NoError(t, err)
	require.Equal(t, 1, batch.Found)
	require.Len(t, batch.Records, 1)

	rec := batch.Records[0]
	require.Equal(t, "Walk", rec.Title)
	require.Equal(t, "30 min", rec.Description)
	require.Equal(t, "Park", rec.Location)
	require.Equal(t, "2024-06-01T08:00:00", rec.StartTime)
	require.Equal(t, "2024-06-01T08:30:00", rec.EndTime)
	require.False(t, *rec.IsAllDay)
	require.Equal(t, model.StatusCompleted, rec.Status)
	require.Equal(t, 15, *rec.ReminderMinutes)
	require.Equal(t, "felt good", rec.Notes)
}

func TestDecodeBareArrayDropsIncomplete(t *testing.T) {
	batch, err := Decode(`[{"title":"X","startTime":"2024-01-01T00:00:00"}]`)
	require.NoError(t, err)
	require.Equal(t, 1, batch.Found)
	require.Empty(t, batch.Records)
}

func TestDecodePassesDatesThroughAndKeepsOrder(t *testing.T) {
	text := `[
		{"title":"A","startTime":"tomorrow","endTime":"later"},
		42,
		{"title":"","startTime":"a","endTime":"b"},
		{"title":"B","startTime":"2024-01-02","endTime":"2024-01-03"}
	]`

	batch, err := Decode(text)
	require.NoError(t, err)
	require.Equal(t, 4, batch.Found)
	require.Len(t, batch.Records, 2)
	require.Equal(t, "A", batch.Records[0].Title)
	require.Equal(t, "tomorrow", batch.Records[0].StartTime)
	require.Equal(t, "B", batch.Records[1].Title)
}

func TestDecodeIgnoresMistypedFields(t *testing.T) {
	text := `[{"title":"A","startTime":"s","endTime":"e","isAllDay":"yes","reminderMinutes":"10","status":"tentative","location":7}]`

	batch, err := Decode(text)
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	rec := batch.Records[0]
	require.Nil(t, rec.IsAllDay)
	require.Nil(t, rec.ReminderMinutes)
	require.Empty(t, rec.Status)
	require.Empty(t, rec.Location)
}

func TestDecodeReminderNumbers(t *testing.T) {
	batch, err := Decode(`[{"title":"A","startTime":"s","endTime":"e","reminderMinutes":30.0},{"title":"B","startTime":"s","endTime":"e","reminderMinutes":2.5}]`)
	require.NoError(t, err)
	require.Equal(t, 30, *batch.Records[0].ReminderMinutes)
	require.Nil(t, batch.Records[1].ReminderMinutes)
}

func TestDecodeInvalidRoots(t *testing.T) {
	for _, text := range []string{`{"items":[]}`, `{"events":{}}`, `"events"`, `12`, `null`, `not json`, ``} {
		_, err := Decode(text)
		var ife *model.InvalidFormatError
		require.True(t, errors.As(err, &ife), text)
	}
}

func TestDecodeRejectsTrailingContent(t *testing.T) {
	for _, text := range []string{
		`[{"title":"X","startTime":"a","endTime":"b"}] garbage`,
		`{"events":[]} {"events":[]}`,
		`[] ]`,
	} {
		_, err := Decode(text)
		var ife *model.InvalidFormatError
		require.True(t, errors.As(err, &ife), text)
	}

	batch, err := Decode("[{\"title\":\"X\",\"startTime\":\"a\",\"endTime\":\"b\"}]\n\t ")
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
}

func TestDecodeEmptyEvents(t *testing.T) {
	batch, err := Decode(`{"events":[]}`)
	require.NoError(t, err)
	require.Zero(t, batch.Found)
	require.Empty(t, batch.Records)
}
