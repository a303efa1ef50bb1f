package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteRunStore stores runs, unit statistics and distances in SQLite.
type SQLiteRunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// Open opens (or creates) the database at path and initializes its schema.
func Open(path string) (*SQLiteRunStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRunStore{db: db, dbPath: path}, nil
}

// Path returns the database file path.
func (s *SQLiteRunStore) Path() string {
	return s.dbPath
}

// SaveRun stores a run with its unit statistics and optional distances in
// one transaction and returns the new run ID. run.ID and run.CreatedAt are
// assigned by the store when zero.
func (s *SQLiteRunStore) SaveRun(ctx context.Context, run Run, units []UnitStat, distances []DistanceRecord) (int64, error) {
	if !run.Kind.Valid() {
		return 0, fmt.Errorf("invalid run kind %q", run.Kind)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (created_at, kind, source, duration, cost, workers, seed, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.CreatedAt.Format(time.RFC3339Nano),
		string(run.Kind),
		nullString(run.Source),
		run.Duration,
		nullFloat(run.Cost),
		run.Workers,
		seedText(run.Seed),
		nullString(run.Note),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	unitStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO unit_stats (run_id, unit_index, unit_id, location, mean, std, firing_rate, fano, pairs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare unit insert: %w", err)
	}
	defer unitStmt.Close()

	for _, u := range units {
		if _, err := unitStmt.ExecContext(ctx, id, u.UnitIndex, nullString(u.UnitID), nullString(u.Location),
			nullFloat(u.Mean), nullFloat(u.Std), nullFloat(u.FiringRate), nullFloat(u.Fano), u.Pairs); err != nil {
			return 0, fmt.Errorf("failed to insert unit %d: %w", u.UnitIndex, err)
		}
	}

	if len(distances) > 0 {
		distStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO distances (run_id, unit_index, pair_index, trial_i, trial_j, distance)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare distance insert: %w", err)
		}
		defer distStmt.Close()

		for _, d := range distances {
			if _, err := distStmt.ExecContext(ctx, id, d.UnitIndex, d.PairIndex, d.TrialI, d.TrialJ, nullFloat(d.Distance)); err != nil {
				return 0, fmt.Errorf("failed to insert distance (unit %d, pair %d): %w", d.UnitIndex, d.PairIndex, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, created_at, kind, source, duration, cost, workers, seed, note FROM runs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a run and its unit statistics ordered by unit index.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id int64) (*RunDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, kind, source, duration, cost, workers, seed, note FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT unit_index, unit_id, location, mean, std, firing_rate, fano, pairs
		FROM unit_stats WHERE run_id = ? ORDER BY unit_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query unit stats: %w", err)
	}
	defer rows.Close()

	detail := &RunDetail{Run: run, Units: []UnitStat{}}
	for rows.Next() {
		var u UnitStat
		var unitID, location sql.NullString
		var mean, std, rate, fano sql.NullFloat64
		if err := rows.Scan(&u.UnitIndex, &unitID, &location, &mean, &std, &rate, &fano, &u.Pairs); err != nil {
			return nil, fmt.Errorf("failed to scan unit stats: %w", err)
		}
		u.UnitID = unitID.String
		u.Location = location.String
		u.Mean = floatOrNaN(mean)
		u.Std = floatOrNaN(std)
		u.FiringRate = floatOrNaN(rate)
		u.Fano = floatOrNaN(fano)
		detail.Units = append(detail.Units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate unit stats: %w", err)
	}
	return detail, nil
}

// RunDistances returns the stored distances of a run. unit < 0 returns
// every unit.
func (s *SQLiteRunStore) RunDistances(ctx context.Context, id int64, unit int) ([]DistanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRun(ctx, id); err != nil {
		return nil, err
	}

	query := `SELECT unit_index, pair_index, trial_i, trial_j, distance FROM distances WHERE run_id = ?`
	args := []any{id}
	if unit >= 0 {
		query += ` AND unit_index = ?`
		args = append(args, unit)
	}
	query += ` ORDER BY unit_index, pair_index`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query distances: %w", err)
	}
	defer rows.Close()

	out := []DistanceRecord{}
	for rows.Next() {
		var d DistanceRecord
		var dist sql.NullFloat64
		if err := rows.Scan(&d.UnitIndex, &d.PairIndex, &d.TrialI, &d.TrialJ, &dist); err != nil {
			return nil, fmt.Errorf("failed to scan distance: %w", err)
		}
		d.Distance = floatOrNaN(dist)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate distances: %w", err)
	}
	return out, nil
}

// DeleteRun removes a run and, by cascade, its statistics and distances.
func (s *SQLiteRunStore) DeleteRun(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %d: %w", id, ErrRunNotFound)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteRunStore) requireRun(ctx context.Context, id int64) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("run %d: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up run: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var createdAt, kind string
	var source, seed, note sql.NullString
	var cost sql.NullFloat64
	if err := row.Scan(&run.ID, &createdAt, &kind, &source, &run.Duration, &cost, &run.Workers, &seed, &note); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Run{}, fmt.Errorf("run %d: bad created_at %q: %w", run.ID, createdAt, err)
	}
	run.CreatedAt = t
	run.Kind = RunKind(kind)
	run.Source = source.String
	run.Note = note.String
	run.Cost = math.Inf(1)
	if cost.Valid {
		run.Cost = cost.Float64
	}
	if seed.Valid {
		v, err := strconv.ParseUint(seed.String, 10, 64)
		if err != nil {
			return Run{}, fmt.Errorf("run %d: bad seed %q: %w", run.ID, seed.String, err)
		}
		run.Seed = &v
	}
	return run, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullFloat maps NaN and ±Inf to NULL.
func nullFloat(f float64) sql.NullFloat64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func floatOrNaN(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.NaN()
	}
	return f.Float64
}

func seedText(seed *uint64) sql.NullString {
	if seed == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: strconv.FormatUint(*seed, 10), Valid: true}
}
