package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"rehabcal/internal/importer"
	"rehabcal/internal/journal"
)

const sessionsCSV = "Title,Start Time,End Time,Status\n" +
	"Treadmill,2024-06-01T09:00:00,2024-06-01T09:45:00,completed\n" +
	"Stretching,,,\n"

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestImportCommand(t *testing.T) {
	p := writeFile(t, "sessions.csv", sessionsCSV)

	out, _, err := execute(t, "import", p)
	require.NoError(t, err)
	require.Contains(t, out, "1 of 2 imported")
	require.Contains(t, out, "Treadmill  2024-06-01T09:00:00 -> 2024-06-01T09:45:00  [completed]")
}

func TestImportCommandJSON(t *testing.T) {
	p := writeFile(t, "sessions.txt", sessionsCSV)

	out, _, err := execute(t, "import", p, "--format", "csv", "--json")
	require.NoError(t, err)

	var rep importer.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.Equal(t, 2, rep.Found)
	require.Equal(t, 1, rep.Imported)
	require.Len(t, rep.Records, 1)
	require.NotEmpty(t, rep.ID)
}

func TestImportCommandJournal(t *testing.T) {
	p := writeFile(t, "sessions.csv", sessionsCSV)
	dbPath := filepath.Join(t.TempDir(), "imports.db")

	_, _, err := execute(t, "import", p, "--journal", dbPath)
	require.NoError(t, err)

	j, err := journal.Open(dbPath)
	require.NoError(t, err)
	defer j.Close()
	entries, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, p, entries[0].Source)
	require.Equal(t, 1, entries[0].Imported)
}

func TestImportCommandErrors(t *testing.T) {
	p := writeFile(t, "sessions.xml", sessionsCSV)
	_, errOut, err := execute(t, "import", p)
	require.Error(t, err)
	require.Contains(t, errOut, "error:")

	_, errOut, err = execute(t, "import", filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	require.Contains(t, errOut, "cannot read")

	_, _, err = execute(t, "--log-level", "loud", "import", p)
	require.Error(t, err)
}

func TestExportCommand(t *testing.T) {
	p := writeFile(t, "sessions.csv", sessionsCSV)
	target := filepath.Join(t.TempDir(), "out.ics")

	_, errOut, err := execute(t, "export", p, "-o", target)
	require.NoError(t, err)
	require.Contains(t, errOut, "1 of 2 imported, 0 skipped on export")

	feed, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Contains(t, string(feed), "BEGIN:VCALENDAR")
	require.Contains(t, string(feed), "SUMMARY:Treadmill")

	out, _, err := execute(t, "export", p)
	require.NoError(t, err)
	require.Contains(t, out, "END:VCALENDAR")
}
