package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// maxStoredErrors bounds how many error strings are persisted per run.
const maxStoredErrors = 5

// Run is one recorded import run.
type Run struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	Source      string        `json:"source"`
	Total       int           `json:"total"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Duration    time.Duration `json:"duration"`
	FirstErrors []string      `json:"first_errors,omitempty"`
}

// Store is a SQLite ledger of import runs. It records run statistics only,
// never document content.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (and if needed initializes) the ledger database.
func Open(dbPath string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	store := &Store{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	query := `
		CREATE TABLE IF NOT EXISTS import_runs (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			source TEXT,
			total INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			first_errors TEXT
		)
	`

	_, err := s.db.Exec(query)
	return err
}

// Record persists one run. Errors beyond the first few are dropped.
func (s *Store) Record(run Run) error {
	errs := run.FirstErrors
	if len(errs) > maxStoredErrors {
		errs = errs[:maxStoredErrors]
	}
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("failed to encode run errors: %w", err)
	}

	query := `
		INSERT INTO import_runs (id, started_at, source, total, succeeded, failed, duration_ms, first_errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query,
		run.ID,
		run.StartedAt.UTC(),
		run.Source,
		run.Total,
		run.Succeeded,
		run.Failed,
		run.Duration.Milliseconds(),
		string(errsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert import run: %w", err)
	}

	s.logger.Debug("Recorded import run",
		zap.String("run_id", run.ID),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("failed", run.Failed))

	return nil
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, started_at, source, total, succeeded, failed, duration_ms, first_errors
		FROM import_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query import runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var durationMS int64
		var errsJSON string

		if err := rows.Scan(&run.ID, &run.StartedAt, &run.Source, &run.Total,
			&run.Succeeded, &run.Failed, &durationMS, &errsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan import run: %w", err)
		}

		run.Duration = time.Duration(durationMS) * time.Millisecond
		if errsJSON != "" {
			if err := json.Unmarshal([]byte(errsJSON), &run.FirstErrors); err != nil {
				s.logger.Warn("Malformed error list in history row",
					zap.String("run_id", run.ID), zap.Error(err))
			}
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}
