package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/Sumatoshi-tech/bugfeat/pkg/extraction"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	mode       TEXT NOT NULL,
	model      TEXT NOT NULL DEFAULT '',
	rollback_to TEXT NOT NULL DEFAULT '',
	columns    TEXT NOT NULL,
	row_count  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS run_rows (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	body     TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);`

var pragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

// ErrUnknownRun is returned when a run id is not in the store.
var ErrUnknownRun = errors.New("unknown extraction run")

// RunInfo describes an extraction run.
type RunInfo struct {
	// Model is the model configuration name, if any.
	Model string
	// Rollback is the rollback target as text, "creation", or empty when disabled.
	Rollback string
}

// Run is a stored extraction run.
type Run struct {
	ID        string
	CreatedAt time.Time
	Mode      string
	Columns   []string
	Rows      int
	RunInfo
}

// Store keeps extraction runs in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// OpenStore opens or creates the store at path. ":memory:" opens a private
// in-memory database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range pragmas {
		_, err = db.Exec(pragma)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("store pragma %q: %w", pragma, err), db.Close())
		}
	}

	_, err = db.Exec(storeSchema)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("store schema: %w", err), db.Close())
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores frame as a new run and returns its id.
func (s *Store) Save(ctx context.Context, frame *extraction.Frame, info RunInfo) (id string, err error) {
	runID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("run id: %w", err)
	}

	columns, err := json.Marshal(frame.Columns)
	if err != nil {
		return "", fmt.Errorf("encode columns: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}

	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, mode, model, rollback_to, columns, row_count) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID.String(), s.now().UTC().Format(time.RFC3339Nano), string(frame.Mode),
		info.Model, info.Rollback, string(columns), frame.Len(),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_rows (run_id, position, body) VALUES (?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare rows: %w", err)
	}
	defer stmt.Close()

	for i, row := range frame.Rows {
		body, marshalErr := json.Marshal(row)
		if marshalErr != nil {
			return "", fmt.Errorf("encode row %d: %w", i, marshalErr)
		}

		_, err = stmt.ExecContext(ctx, runID.String(), i, string(body))
		if err != nil {
			return "", fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	return runID.String(), nil
}

// Runs lists stored runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, mode, model, rollback_to, columns, row_count FROM runs ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		var (
			run       Run
			createdAt string
			columns   string
		)

		err = rows.Scan(&run.ID, &createdAt, &run.Mode, &run.Model, &run.Rollback, &columns, &run.Rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("run %s created_at: %w", run.ID, err)
		}

		err = json.Unmarshal([]byte(columns), &run.Columns)
		if err != nil {
			return nil, fmt.Errorf("run %s columns: %w", run.ID, err)
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// Rows returns the rows of a run in order, decoded from JSON.
func (s *Store) Rows(ctx context.Context, runID string) ([]map[string]any, error) {
	var count int

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("lookup run: %w", err)
	}

	if count == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT body FROM run_rows WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var decoded []map[string]any

	for rows.Next() {
		var body string

		err = rows.Scan(&body)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		var row map[string]any

		err = json.Unmarshal([]byte(body), &row)
		if err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}

		decoded = append(decoded, row)
	}

	return decoded, rows.Err()
}
