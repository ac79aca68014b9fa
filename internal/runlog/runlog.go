// Package runlog persists exploration runs in SQLite so that a run can be
// replayed into a fresh interest model. Only observations are stored; the
// region tree is always rebuilt from them.
package runlog

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/TrevorS/riac"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	created_at  TEXT NOT NULL,
	preset      TEXT NOT NULL,
	config_yaml TEXT NOT NULL,
	bounds_min  BLOB NOT NULL,
	bounds_max  BLOB NOT NULL,
	expl_dims   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS observations (
	run_id      TEXT NOT NULL,
	idx         INTEGER NOT NULL,
	goal        BLOB NOT NULL,
	outcome     BLOB,
	competence  REAL NOT NULL,
	PRIMARY KEY (run_id, idx),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("runlog: run not found")

// Run describes a recorded exploration run.
type Run struct {
	ID        string      `json:"id" yaml:"id"`
	CreatedAt time.Time   `json:"created_at" yaml:"created_at"`
	Preset    string      `json:"preset" yaml:"preset"`
	Config    string      `json:"-" yaml:"-"`
	Bounds    riac.Bounds `json:"bounds" yaml:"bounds"`
	ExplDims  []int       `json:"expl_dims" yaml:"expl_dims"`
}

// Observation is one scored goal of a run.
type Observation struct {
	Index      int
	Goal       []float64
	Outcome    []float64
	Competence float64
}

// Store manages recorded runs in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun registers a new run and returns it with a fresh id.
// config is the YAML of the run configuration, kept verbatim for replay.
func (s *Store) CreateRun(ctx context.Context, preset, config string, bounds riac.Bounds, explDims []int) (Run, error) {
	dims, err := yaml.Marshal(explDims)
	if err != nil {
		return Run{}, fmt.Errorf("marshal expl dims: %w", err)
	}
	run := Run{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Preset:    preset,
		Config:    config,
		Bounds:    bounds.Clone(),
		ExplDims:  append([]int(nil), explDims...),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, created_at, preset, config_yaml, bounds_min, bounds_max, expl_dims)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.Format(timeLayout), preset, config,
		encodeVector(bounds.Min), encodeVector(bounds.Max), string(dims),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// GetRun returns the run with the given id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, created_at, preset, config_yaml, bounds_min, bounds_max, expl_dims
		 FROM runs WHERE run_id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, created_at, preset, config_yaml, bounds_min, bounds_max, expl_dims
		 FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var run Run
	var created, dims string
	var lo, hi []byte
	if err := sc.Scan(&run.ID, &created, &run.Preset, &run.Config, &lo, &hi, &dims); err != nil {
		return Run{}, err
	}
	run.CreatedAt, _ = time.Parse(timeLayout, created)
	run.Bounds = riac.Bounds{Min: decodeVector(lo), Max: decodeVector(hi)}
	if err := yaml.Unmarshal([]byte(dims), &run.ExplDims); err != nil {
		return Run{}, fmt.Errorf("unmarshal expl dims: %w", err)
	}
	return run, nil
}

// Append records one observation of a run.
func (s *Store) Append(ctx context.Context, runID string, obs Observation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO observations (run_id, idx, goal, outcome, competence) VALUES (?, ?, ?, ?, ?)`,
		runID, obs.Index, encodeVector(obs.Goal), encodeVector(obs.Outcome), obs.Competence,
	)
	if err != nil {
		return fmt.Errorf("insert observation %d: %w", obs.Index, err)
	}
	return nil
}

// AppendBatch records several observations of a run atomically.
func (s *Store) AppendBatch(ctx context.Context, runID string, batch []Observation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO observations (run_id, idx, goal, outcome, competence) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, obs := range batch {
		if _, err := stmt.ExecContext(ctx, runID, obs.Index, encodeVector(obs.Goal), encodeVector(obs.Outcome), obs.Competence); err != nil {
			return fmt.Errorf("insert observation %d: %w", obs.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Count returns the number of observations recorded for a run.
func (s *Store) Count(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM observations WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count observations: %w", err)
	}
	return n, nil
}

// Observations calls fn for every observation of a run in index order,
// stopping at the first error fn returns. fn must not call back into s.
func (s *Store) Observations(ctx context.Context, runID string, fn func(Observation) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, goal, outcome, competence FROM observations WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var obs Observation
		var goal, outcome []byte
		if err := rows.Scan(&obs.Index, &goal, &outcome, &obs.Competence); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		obs.Goal = decodeVector(goal)
		obs.Outcome = decodeVector(outcome)
		if err := fn(obs); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Replay records every observation of a run into m and returns how many
// were replayed.
func (s *Store) Replay(ctx context.Context, runID string, m *riac.InterestModel) (int, error) {
	n := 0
	err := s.Observations(ctx, runID, func(obs Observation) error {
		if _, err := m.Record(obs.Goal, obs.Outcome, obs.Competence); err != nil {
			return fmt.Errorf("replay observation %d: %w", obs.Index, err)
		}
		n++
		return nil
	})
	return n, err
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float64 {
	if len(b) == 0 {
		return nil
	}
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}
