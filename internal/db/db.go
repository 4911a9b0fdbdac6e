package db

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/lvcoi/ytup/internal/model"
)

// FileRecord represents a row in the files table.
type FileRecord struct {
	Name      string
	State     model.FileState
	VideoID   string
	Detail    string
	RunID     string
	Attempts  int
	UpdatedAt time.Time
}

// RunStats are the per-run counters written by FinishRun.
type RunStats struct {
	Uploaded int
	Skipped  int
	Failed   int
}

// ErrNotFound is returned by Get for an unknown file name.
var ErrNotFound = errors.New("file not tracked")

const createTableSQL = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
    finished_at DATETIME,
    uploaded    INTEGER NOT NULL DEFAULT 0,
    skipped     INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS files (
    name        TEXT PRIMARY KEY,
    state       TEXT NOT NULL DEFAULT 'pending',
    video_id    TEXT NOT NULL DEFAULT '',
    detail      TEXT NOT NULL DEFAULT '',
    run_id      TEXT NOT NULL DEFAULT '',
    attempts    INTEGER NOT NULL DEFAULT 0,
    updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_files_state ON files(state);
`

// DB wraps an SQLite connection holding the publishing queue.
type DB struct {
	db    *sql.DB
	mu    sync.Mutex
	runID string
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database at %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	if _, err := sqlDB.Exec(createTableSQL); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: sqlDB}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// BeginRun records the start of a run. Later state changes are attributed to it.
func (d *DB) BeginRun(id string) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if id == "" {
		return fmt.Errorf("empty run id")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.db.Exec(`INSERT INTO runs (id) VALUES (?)`, id); err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	d.runID = id
	return nil
}

// FinishRun stamps the run with its end time and counters.
func (d *DB) FinishRun(id string, stats RunStats) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("database not initialized")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.db.Exec(`
		UPDATE runs SET finished_at = datetime('now'), uploaded = ?, skipped = ?, failed = ?
		WHERE id = ?
	`, stats.Uploaded, stats.Skipped, stats.Failed, id)
	if err != nil {
		return fmt.Errorf("recording run end: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unknown run %q", id)
	}
	return nil
}

// Sync inserts every name not yet tracked as pending. Known names keep their
// state, and names missing from the folder are left untouched.
func (d *DB) Sync(names []string) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("database not initialized")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("starting sync: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO files (name, state) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing sync: %w", err)
	}
	defer stmt.Close()

	for _, name := range names {
		if _, err := stmt.Exec(name, string(model.StatePending)); err != nil {
			tx.Rollback()
			return fmt.Errorf("tracking %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing sync: %w", err)
	}
	return nil
}

// MarkState moves name to state. Entering the selected state counts an attempt.
func (d *DB) MarkState(name string, state model.FileState, detail string) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("database not initialized")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	attempt := 0
	if state == model.StateSelected {
		attempt = 1
	}
	_, err := d.db.Exec(`
		INSERT INTO files (name, state, detail, run_id, attempts, updated_at)
		VALUES (?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(name) DO UPDATE SET
			state = excluded.state, detail = excluded.detail, run_id = excluded.run_id,
			attempts = files.attempts + excluded.attempts, updated_at = excluded.updated_at
	`, name, string(state), detail, d.runID, attempt)
	if err != nil {
		return fmt.Errorf("marking %s %s: %w", name, state, err)
	}
	return nil
}

// MarkPublished records that the platform confirmed the upload of name.
func (d *DB) MarkPublished(name, videoID string) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("database not initialized")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`
		INSERT INTO files (name, state, video_id, run_id, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(name) DO UPDATE SET
			state = excluded.state, video_id = excluded.video_id, detail = '',
			run_id = excluded.run_id, updated_at = excluded.updated_at
	`, name, string(model.StatePublished), videoID, d.runID)
	if err != nil {
		return fmt.Errorf("marking %s published: %w", name, err)
	}
	return nil
}

// Recoverable returns the rows a previous run left in flight: files that were
// selected but never finished, and files whose upload was confirmed but whose
// archive move never happened.
func (d *DB) Recoverable() (selected, published []FileRecord, err error) {
	records, err := d.listWhere(`state IN (?, ?)`, string(model.StateSelected), string(model.StatePublished))
	if err != nil {
		return nil, nil, err
	}
	for _, r := range records {
		if r.State == model.StateSelected {
			selected = append(selected, r)
		} else {
			published = append(published, r)
		}
	}
	return selected, published, nil
}

// Get returns the row for name.
func (d *DB) Get(name string) (FileRecord, error) {
	records, err := d.listWhere(`name = ?`, name)
	if err != nil {
		return FileRecord{}, err
	}
	if len(records) == 0 {
		return FileRecord{}, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return records[0], nil
}

// CountByState returns the number of tracked files per state.
func (d *DB) CountByState() (map[model.FileState]int, error) {
	if d == nil || d.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := d.db.Query(`SELECT state, COUNT(*) FROM files GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("counting files: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.FileState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scanning count row: %w", err)
		}
		counts[model.FileState(state)] = n
	}
	return counts, rows.Err()
}

func (d *DB) listWhere(where string, args ...any) ([]FileRecord, error) {
	if d == nil || d.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := d.db.Query(`
		SELECT name, state, video_id, detail, run_id, attempts, updated_at
		FROM files
		WHERE `+where+`
		ORDER BY name
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	defer rows.Close()

	var records []FileRecord
	for rows.Next() {
		var r FileRecord
		var state string
		if err := rows.Scan(&r.Name, &state, &r.VideoID, &r.Detail, &r.RunID, &r.Attempts, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning file row: %w", err)
		}
		r.State = model.FileState(state)
		records = append(records, r)
	}
	return records, rows.Err()
}
