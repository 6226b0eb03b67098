// Package store journals translation runs and batch job lifecycle events in
// a local sqlite database. It is the operator-visible record of what every
// job did, in particular terminal failures, which are never retried and
// would otherwise vanish with the process.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/batchtran/internal/orchestrator"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		input_file TEXT NOT NULL,
		output_file TEXT,
		source_lang TEXT,
		target_lang TEXT NOT NULL,
		model TEXT NOT NULL,
		input_excerpt TEXT,
		status TEXT DEFAULT 'running',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- job_events records every lifecycle transition of every batch job
	CREATE TABLE IF NOT EXISTS job_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		batch_id TEXT,
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		detail TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_events_run ON job_events(run_id);
	CREATE INDEX IF NOT EXISTS idx_events_state ON job_events(run_id, to_state);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Run is one end-to-end translation of a corpus.
type Run struct {
	ID         string
	InputFile  string
	OutputFile string
	SourceLang string
	TargetLang string
	Model      string
	Excerpt    string
	Status     string
	CreatedAt  time.Time
}

// JobEvent is one recorded lifecycle transition.
type JobEvent struct {
	RunID     string
	BatchID   string
	FromState string
	ToState   string
	Detail    string
	CreatedAt time.Time
}

func (s *Store) SaveRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, input_file, output_file, source_lang, target_lang, model, input_excerpt, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.InputFile, run.OutputFile, run.SourceLang, run.TargetLang, run.Model, normalizeText(run.Excerpt), time.Now())
	return err
}

func (s *Store) UpdateRunStatus(ctx context.Context, runID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), runID)
	return err
}

func (s *Store) GetRun(ctx context.Context, runID string) (Run, bool, error) {
	var run Run
	var outputFile, sourceLang, excerpt sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, input_file, output_file, source_lang, target_lang, model, input_excerpt, status, created_at FROM runs WHERE id = ?`,
		runID).Scan(&run.ID, &run.InputFile, &outputFile, &sourceLang, &run.TargetLang, &run.Model, &excerpt, &run.Status, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, err
	}
	run.OutputFile = outputFile.String
	run.SourceLang = sourceLang.String
	run.Excerpt = excerpt.String
	return run, true, nil
}

// RecordTransition implements the orchestrator's Recorder interface.
func (s *Store) RecordTransition(ctx context.Context, runID, batchID string, from, to orchestrator.State, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_events (run_id, batch_id, from_state, to_state, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, batchID, string(from), string(to), detail, time.Now())
	return err
}

// JobEvents returns a run's transitions in the order they were recorded.
func (s *Store) JobEvents(ctx context.Context, runID string) ([]JobEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, batch_id, from_state, to_state, detail, created_at FROM job_events WHERE run_id = ? ORDER BY id`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// FailedJobs returns the terminal-failure events of a run. These are never
// retried automatically, so an operator has to act on them.
func (s *Store) FailedJobs(ctx context.Context, runID string) ([]JobEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, batch_id, from_state, to_state, detail, created_at FROM job_events WHERE run_id = ? AND to_state = ? ORDER BY id`,
		runID, string(orchestrator.StateFailed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]JobEvent, error) {
	var events []JobEvent
	for rows.Next() {
		var ev JobEvent
		var batchID, detail sql.NullString
		if err := rows.Scan(&ev.RunID, &batchID, &ev.FromState, &ev.ToState, &detail, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.BatchID = batchID.String
		ev.Detail = detail.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// normalizeText applies NFC normalization so excerpts compare and display
// consistently regardless of the source encoding's composition form.
func normalizeText(s string) string {
	return norm.NFC.String(s)
}
