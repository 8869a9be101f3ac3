// Package journal keeps a sqlite history of import runs so users can see
// which exports were read and how many of their events survived.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	appLog "rehabcal/internal/log"
)

const schemaVersion = 1

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one import run.
type Entry struct {
	ID            string    `json:"id"`
	Source        string    `json:"source"`
	Format        string    `json:"format"`
	Found         int       `json:"found"`
	Imported      int       `json:"imported"`
	DateFallbacks int       `json:"dateFallbacks"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Journal is safe for concurrent use; database/sql serializes access.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal at path and migrates it.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; one connection also keeps ":memory:"
	// databases from splitting across connections.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS db_version (
		name TEXT PRIMARY KEY,
		version INTEGER
	)`); err != nil {
		return err
	}

	var version int
	err := j.db.QueryRowContext(ctx, `SELECT version FROM db_version WHERE name='journal'`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := j.db.ExecContext(ctx, `INSERT INTO db_version (name, version) VALUES ('journal', 0)`); err != nil {
			return err
		}
		version = 0
	} else if err != nil {
		return err
	}

	if version < 1 {
		if _, err := j.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS imports (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			format TEXT NOT NULL,
			found INTEGER NOT NULL,
			imported INTEGER NOT NULL,
			date_fallbacks INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`); err != nil {
			return err
		}
		if _, err := j.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS imports_created_at ON imports (created_at)`); err != nil {
			return err
		}
		if _, err := j.db.ExecContext(ctx, `UPDATE db_version SET version = ? WHERE name = 'journal'`, schemaVersion); err != nil {
			return err
		}
		appLog.Info("journal schema migrated", "version", schemaVersion)
	}
	return nil
}

// Record stores e. A zero CreatedAt is set to now.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return errors.New("journal entry has no id")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO imports (id, source, format, found, imported, date_fallbacks, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Source, e.Format, e.Found, e.Imported, e.DateFallbacks, e.Error,
		e.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, source, format, found, imported, date_fallbacks, error, created_at
		 FROM imports ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e       Entry
			created string
		)
		if err := rows.Scan(&e.ID, &e.Source, &e.Format, &e.Found, &e.Imported, &e.DateFallbacks, &e.Error, &created); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("journal entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
