package store

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteRunStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tbc.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "tbc.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if s.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", s.Path(), dbPath)
	}
}

func TestOpen_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tbc.db")
	ctx := context.Background()

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	id, err := s.SaveRun(ctx, Run{Kind: KindObserved, Duration: 1, Cost: 10}, nil, nil)
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	s.Close()

	s, err = Open(dbPath)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer s.Close()

	if _, err := s.GetRun(ctx, id); err != nil {
		t.Errorf("GetRun() after reopen error = %v", err)
	}
}

func TestSaveRun_GetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seed := uint64(42)
	run := Run{
		Kind:     KindShuffled,
		Source:   "pop.yaml",
		Duration: 2,
		Cost:     5,
		Workers:  4,
		Seed:     &seed,
		Note:     "baseline",
	}
	units := []UnitStat{
		{UnitIndex: 0, UnitID: "u0", Location: "VISp", Mean: 1.5, Std: 0.5, FiringRate: 3, Fano: 1.1, Pairs: 3},
		{UnitIndex: 1, UnitID: "u1", Mean: math.NaN(), Std: math.NaN(), FiringRate: 0, Fano: math.NaN(), Pairs: 0},
	}

	id, err := s.SaveRun(ctx, run, units, nil)
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	if id <= 0 {
		t.Fatalf("SaveRun() id = %d, want > 0", id)
	}

	got, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}

	if got.Run.Kind != KindShuffled || got.Run.Source != "pop.yaml" || got.Run.Workers != 4 {
		t.Errorf("GetRun() run = %+v", got.Run)
	}
	if got.Run.Seed == nil || *got.Run.Seed != 42 {
		t.Errorf("GetRun() seed = %v, want 42", got.Run.Seed)
	}
	if got.Run.Note != "baseline" {
		t.Errorf("GetRun() note = %q, want %q", got.Run.Note, "baseline")
	}
	if got.Run.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be assigned")
	}
	if len(got.Units) != 2 {
		t.Fatalf("GetRun() units = %d, want 2", len(got.Units))
	}
	if got.Units[0] != units[0] {
		t.Errorf("unit 0 = %+v, want %+v", got.Units[0], units[0])
	}
	if !math.IsNaN(got.Units[1].Mean) || !math.IsNaN(got.Units[1].Std) || !math.IsNaN(got.Units[1].Fano) {
		t.Errorf("unit 1 should round-trip NaN as NaN, got %+v", got.Units[1])
	}
	if got.Units[1].Location != "" {
		t.Errorf("unit 1 location = %q, want empty", got.Units[1].Location)
	}
}

func TestSaveRun_InfiniteCost(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.SaveRun(ctx, Run{Kind: KindPoisson, Duration: 1, Cost: math.Inf(1)}, nil, nil)
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	got, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if !math.IsInf(got.Run.Cost, 1) {
		t.Errorf("cost = %v, want +Inf", got.Run.Cost)
	}
	if got.Run.Seed != nil {
		t.Errorf("seed = %v, want nil", *got.Run.Seed)
	}
}

func TestSaveRun_InvalidKind(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SaveRun(context.Background(), Run{Kind: "bogus", Duration: 1}, nil, nil); err == nil {
		t.Error("expected error for invalid run kind")
	}
}

func TestRunDistances(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	dists := []DistanceRecord{
		{UnitIndex: 0, PairIndex: 0, TrialI: 0, TrialJ: 1, Distance: 2},
		{UnitIndex: 0, PairIndex: 1, TrialI: 0, TrialJ: 2, Distance: 3},
		{UnitIndex: 1, PairIndex: 0, TrialI: 0, TrialJ: 1, Distance: 0.5},
	}
	id, err := s.SaveRun(ctx, Run{Kind: KindObserved, Duration: 1, Cost: 1}, nil, dists)
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	all, err := s.RunDistances(ctx, id, -1)
	if err != nil {
		t.Fatalf("RunDistances() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("RunDistances(all) = %d rows, want 3", len(all))
	}
	for i := range dists {
		if all[i] != dists[i] {
			t.Errorf("row %d = %+v, want %+v", i, all[i], dists[i])
		}
	}

	unit1, err := s.RunDistances(ctx, id, 1)
	if err != nil {
		t.Fatalf("RunDistances(unit 1) error = %v", err)
	}
	if len(unit1) != 1 || unit1[0].Distance != 0.5 {
		t.Errorf("RunDistances(unit 1) = %+v", unit1)
	}

	if _, err := s.RunDistances(ctx, id+100, -1); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("RunDistances(missing) error = %v, want ErrRunNotFound", err)
	}
}

func TestListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, kind := range []RunKind{KindObserved, KindShuffled, KindPoisson} {
		if _, err := s.SaveRun(ctx, Run{Kind: kind, Duration: 1, Cost: 1}, nil, nil); err != nil {
			t.Fatalf("SaveRun(%s) error = %v", kind, err)
		}
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("ListRuns() = %d runs, want 3", len(runs))
	}
	if runs[0].Kind != KindPoisson {
		t.Errorf("ListRuns()[0].Kind = %s, want most recent (poisson)", runs[0].Kind)
	}

	limited, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns(2) error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("ListRuns(2) = %d runs, want 2", len(limited))
	}
}

func TestDeleteRun_Cascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.SaveRun(ctx, Run{Kind: KindObserved, Duration: 1, Cost: 1},
		[]UnitStat{{UnitIndex: 0, UnitID: "u0", Pairs: 1}},
		[]DistanceRecord{{UnitIndex: 0, PairIndex: 0, TrialI: 0, TrialJ: 1, Distance: 1}})
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	if err := s.DeleteRun(ctx, id); err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}
	if _, err := s.GetRun(ctx, id); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() after delete error = %v, want ErrRunNotFound", err)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM distances`).Scan(&n); err != nil {
		t.Fatalf("count distances: %v", err)
	}
	if n != 0 {
		t.Errorf("distances left after delete = %d, want 0", n)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM unit_stats`).Scan(&n); err != nil {
		t.Fatalf("count unit_stats: %v", err)
	}
	if n != 0 {
		t.Errorf("unit stats left after delete = %d, want 0", n)
	}

	if err := s.DeleteRun(ctx, id); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("second DeleteRun() error = %v, want ErrRunNotFound", err)
	}
}
