// Package history keeps every matrix run in a SQLite database so verdicts
// can be followed across runs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/giantswarm/version-matrix/internal/compare"
	"github.com/giantswarm/version-matrix/internal/matrix"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	suite TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	duration_seconds REAL NOT NULL,
	regressions INTEGER NOT NULL,
	cells INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cells (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	data_set TEXT NOT NULL,
	case_id INTEGER NOT NULL,
	case_name TEXT NOT NULL,
	version_label TEXT NOT NULL,
	reported_version TEXT,
	is_reference INTEGER NOT NULL,
	kind TEXT NOT NULL,
	cell TEXT NOT NULL,
	detail TEXT
);
CREATE INDEX IF NOT EXISTS idx_cells_run ON cells(run_id);
CREATE INDEX IF NOT EXISTS idx_cells_case ON cells(data_set, case_id, version_label);
`

// Store is a run history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; matrix runs are sequential anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Run summarises one recorded run.
type Run struct {
	ID          string        `json:"id"`
	Suite       string        `json:"suite"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Regressions int           `json:"regressions"`
	Cells       int           `json:"cells"`
}

// Cell is one recorded verdict.
type Cell struct {
	RunID       string       `json:"run_id"`
	DataSet     string       `json:"data_set"`
	CaseID      int          `json:"case_id"`
	CaseName    string       `json:"case_name"`
	Version     string       `json:"version"`
	Reported    string       `json:"reported_version,omitempty"`
	IsReference bool         `json:"is_reference"`
	Kind        compare.Kind `json:"kind"`
	Text        string       `json:"cell"`
	Detail      string       `json:"detail,omitempty"`
}

// IsRegression reports whether the cell is a failed or errored candidate cell.
func (c Cell) IsRegression() bool {
	return !c.IsReference && (c.Kind == compare.Fail || c.Kind == compare.Error)
}

// Record stores a report. Recording the same run ID twice replaces it.
func (s *Store) Record(ctx context.Context, r *matrix.Report) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM cells WHERE run_id = ?", r.RunID); err != nil {
		return err
	}

	counts := r.Counts()
	regressions := counts[compare.Fail] + counts[compare.Error]
	cells := regressions + counts[compare.Pass]
	if _, err = tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO runs (id, suite, started_at, duration_seconds, regressions, cells) VALUES (?, ?, ?, ?, ?, ?)",
		r.RunID, r.Suite, r.Timestamp.UTC(), r.Duration.Seconds(), regressions, cells,
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cells (run_id, data_set, case_id, case_name, version_label, reported_version, is_reference, kind, cell, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sec := range r.Sections {
		for ci, col := range sec.Grid.Columns {
			for ri, row := range sec.Grid.Rows {
				v := sec.Grid.Cell(ri, ci)
				if _, err = stmt.ExecContext(ctx,
					r.RunID, sec.DataSet.Label, row.ID, row.Name, col.Label, col.Version,
					col.IsReference, string(v.Kind), v.String(), v.Detail,
				); err != nil {
					return fmt.Errorf("failed to insert cell: %w", err)
				}
			}
		}
	}
	return tx.Commit()
}

// Runs lists recorded runs, newest first. An empty suite lists every suite;
// limit <= 0 means no limit.
func (s *Store) Runs(ctx context.Context, suite string, limit int) ([]Run, error) {
	query := "SELECT id, suite, started_at, duration_seconds, regressions, cells FROM runs"
	var args []any
	if suite != "" {
		query += " WHERE suite = ?"
		args = append(args, suite)
	}
	query += " ORDER BY started_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var seconds float64
		if err := rows.Scan(&r.ID, &r.Suite, &r.StartedAt, &seconds, &r.Regressions, &r.Cells); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(seconds * float64(time.Second))
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Regressions returns the failed and errored candidate cells of a run.
func (s *Store) Regressions(ctx context.Context, runID string) ([]Cell, error) {
	return s.cells(ctx,
		"WHERE run_id = ? AND is_reference = 0 AND kind IN (?, ?) ORDER BY data_set, case_id, rowid",
		runID, string(compare.Fail), string(compare.Error))
}

// CaseHistory returns the recorded verdicts of one case for one version
// label in one data set, newest run first.
func (s *Store) CaseHistory(ctx context.Context, dataSet string, caseID int, versionLabel string) ([]Cell, error) {
	return s.cells(ctx,
		`WHERE data_set = ? AND case_id = ? AND version_label = ?
		ORDER BY (SELECT started_at FROM runs WHERE runs.id = cells.run_id) DESC`,
		dataSet, caseID, versionLabel)
}

func (s *Store) cells(ctx context.Context, where string, args ...any) ([]Cell, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, data_set, case_id, case_name, version_label, COALESCE(reported_version, ''),
		is_reference, kind, cell, COALESCE(detail, '') FROM cells `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cells: %w", err)
	}
	defer rows.Close()

	var out []Cell
	for rows.Next() {
		var c Cell
		var kind string
		if err := rows.Scan(&c.RunID, &c.DataSet, &c.CaseID, &c.CaseName, &c.Version, &c.Reported,
			&c.IsReference, &kind, &c.Text, &c.Detail); err != nil {
			return nil, err
		}
		c.Kind = compare.Kind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}
