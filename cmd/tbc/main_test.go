package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/nvandessel/tbc/internal/estimate"
	"github.com/nvandessel/tbc/internal/export"
	"github.com/nvandessel/tbc/internal/recording"
)

// isolateHome points HOME at a temp directory so config and the results
// database never touch the real ~/.tbc/. It also clears TBC_* overrides.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"TBC_WORKERS", "TBC_COST", "TBC_DURATION", "TBC_SHAPE_PARAMS", "TBC_STORE_PATH", "TBC_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	return home
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("tbc %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func decodeJSON(t *testing.T, out string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	return m
}

func TestRootCmdRegistersCommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"version", "distance", "pairs", "null", "fano", "shuffle", "poisson", "estimate", "align", "runs", "config", "mcp-server"}
	for _, name := range want {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing %q subcommand", name)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	isolateHome(t)
	out := mustExecute(t, "version", "--json")
	m := decodeJSON(t, out)
	if m["version"] != version {
		t.Errorf("version = %v, want %s", m["version"], version)
	}
}

func TestDistanceCmd(t *testing.T) {
	isolateHome(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"identical trains", []string{"--first", "0.1,0.5", "--second", "0.1,0.5"}, "0"},
		{"count difference at zero cost", []string{"--first", "0.1,0.2", "--cost", "0"}, "2"},
		{"shift cheaper than delete and insert", []string{"--first", "0.1", "--second", "0.2", "--cost", "1"}, "0.1"},
		{"spikes past duration ignored", []string{"--first", "0.1,1.5", "--second", "0.1", "--duration", "1"}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := mustExecute(t, append([]string{"distance"}, tt.args...)...)
			if got := strings.TrimSpace(out); got != tt.want {
				t.Errorf("distance = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDistanceCmdRejectsNegativeCost(t *testing.T) {
	isolateHome(t)
	if _, err := execute(t, "distance", "--first", "0.1", "--cost", "-1"); err == nil {
		t.Fatal("expected error for negative cost")
	}
}

func TestPairsCmd(t *testing.T) {
	isolateHome(t)
	out := mustExecute(t, "pairs", "population.yaml", "--root", "testdata", "--cost", "0", "--json")
	m := decodeJSON(t, out)
	if m["unit"] != "unit-a" {
		t.Errorf("unit = %v, want unit-a", m["unit"])
	}
	if m["count"] != float64(3) {
		t.Errorf("count = %v, want 3", m["count"])
	}

	if _, err := execute(t, "pairs", "population.yaml", "--root", "testdata", "--unit", "9"); err == nil {
		t.Error("expected error for out-of-range unit")
	}
}

func TestNullCmd_JSON(t *testing.T) {
	isolateHome(t)
	out := mustExecute(t, "null", "population.yaml", "--root", "testdata", "--cost", "0", "--json")
	m := decodeJSON(t, out)

	units, ok := m["units"].([]any)
	if !ok || len(units) != 3 {
		t.Fatalf("units = %v, want 3 entries", m["units"])
	}

	a := units[0].(map[string]any)
	if a["pairs"] != float64(3) {
		t.Errorf("unit-a pairs = %v, want 3", a["pairs"])
	}
	// Counts 2, 2, 3: pair distances 0, 1, 1.
	if mean := a["mean"].(float64); mean < 0.666 || mean > 0.667 {
		t.Errorf("unit-a mean = %v, want 2/3", mean)
	}
	if a["location"] != "VISp" {
		t.Errorf("unit-a location = %v, want VISp", a["location"])
	}

	b := units[1].(map[string]any)
	if b["mean"] != nil || b["fano"] != nil {
		t.Errorf("single-trial unit should report null mean and fano, got %v", b)
	}

	c := units[2].(map[string]any)
	if c["mean"] != float64(0) {
		t.Errorf("silent unit mean = %v, want 0", c["mean"])
	}
	if c["fano"] != nil {
		t.Errorf("silent unit fano = %v, want null", c["fano"])
	}
}

func TestNullCmd_ShuffleIsReproducible(t *testing.T) {
	isolateHome(t)
	args := []string{"null", "population.yaml", "--root", "testdata", "--shuffle", "--seed", "11", "--json", "--distances"}
	first := mustExecute(t, args...)
	second := mustExecute(t, args...)
	if first != second {
		t.Error("same seed produced different shuffled statistics")
	}
}

func TestNullCmd_UnseededShuffleRecordsSeed(t *testing.T) {
	isolateHome(t)
	db := filepath.Join(t.TempDir(), "results.db")

	first := decodeJSON(t, mustExecute(t, "null", "population.yaml", "--root", "testdata", "--shuffle", "--distances", "--store", "--db", db, "--json"))

	out := mustExecute(t, "runs", "show", "1", "--db", db, "--json")
	dec := json.NewDecoder(strings.NewReader(out))
	dec.UseNumber()
	var shown struct {
		Run struct {
			Seed json.Number `json:"seed"`
		} `json:"run"`
	}
	if err := dec.Decode(&shown); err != nil {
		t.Fatalf("invalid runs show JSON: %v", err)
	}
	if shown.Run.Seed == "" {
		t.Fatal("unseeded shuffle stored no seed")
	}

	replay := decodeJSON(t, mustExecute(t, "null", "population.yaml", "--root", "testdata", "--shuffle", "--distances", "--seed", shown.Run.Seed.String(), "--json"))
	if !reflect.DeepEqual(first["units"], replay["units"]) {
		t.Error("replaying the recorded seed gave different statistics")
	}
}

func TestNullCmd_StoreAndRuns(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "results.db")

	out := mustExecute(t, "null", "population.yaml", "--root", "testdata", "--store", "--distances", "--db", db, "--note", "baseline", "--json")
	m := decodeJSON(t, out)
	if m["run_id"] != float64(1) {
		t.Fatalf("run_id = %v, want 1", m["run_id"])
	}

	out = mustExecute(t, "runs", "list", "--db", db, "--json")
	m = decodeJSON(t, out)
	if m["count"] != float64(1) {
		t.Fatalf("runs list count = %v, want 1", m["count"])
	}

	out = mustExecute(t, "runs", "show", "1", "--db", db, "--distances", "--json")
	m = decodeJSON(t, out)
	if note := m["run"].(map[string]any)["note"]; note != "baseline" {
		t.Errorf("stored note = %v, want baseline", note)
	}
	if units := m["units"].([]any); len(units) != 3 {
		t.Errorf("stored units = %d, want 3", len(units))
	}
	// unit-a has 3 pairs, unit-c 1 pair.
	if dists := m["distances"].([]any); len(dists) != 4 {
		t.Errorf("stored distances = %d, want 4", len(dists))
	}

	arrowPath := filepath.Join(dir, "run1.arrow")
	mustExecute(t, "runs", "export", "1", arrowPath, "--db", db)
	rows, err := export.ReadDistancesFile(arrowPath)
	if err != nil {
		t.Fatalf("reading exported arrow file: %v", err)
	}
	if len(rows) != 4 || rows[0].UnitID != "unit-a" {
		t.Errorf("exported rows = %+v", rows)
	}

	mustExecute(t, "null", "population.yaml", "--root", "testdata", "--store", "--db", db)
	out = mustExecute(t, "runs", "prune", "--keep", "1", "--db", db, "--json")
	if m = decodeJSON(t, out); m["count"] != float64(1) {
		t.Errorf("pruned = %v, want 1", m["count"])
	}

	if _, err := execute(t, "runs", "delete", "1", "--db", db); err == nil {
		t.Error("expected error deleting pruned run")
	}
	mustExecute(t, "runs", "delete", "2", "--db", db)
	if _, err := execute(t, "runs", "show", "2", "--db", db); err == nil {
		t.Error("expected error showing deleted run")
	}
}

func TestNullCmd_ArrowExport(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	arrowPath := filepath.Join(dir, "dist.arrow")

	mustExecute(t, "null", "population.yaml", "--root", "testdata", "--cost", "0", "--arrow", arrowPath)

	rows, err := export.ReadDistancesFile(arrowPath)
	if err != nil {
		t.Fatalf("ReadDistancesFile: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if rows[0].TrialI != 0 || rows[0].TrialJ != 1 || rows[0].Distance != 0 {
		t.Errorf("first row = %+v, want trials 0,1 distance 0", rows[0])
	}
}

func TestFanoCmd(t *testing.T) {
	isolateHome(t)
	out := mustExecute(t, "fano", "population.yaml", "--root", "testdata", "--json")
	m := decodeJSON(t, out)
	units := m["units"].([]any)

	// Counts 2, 2, 3: sample variance 1/3 over mean 7/3.
	fano := units[0].(map[string]any)["fano"].(float64)
	if fano < 0.1428 || fano > 0.1429 {
		t.Errorf("unit-a fano = %v, want 1/7", fano)
	}
	if units[1].(map[string]any)["fano"] != nil {
		t.Error("single-trial unit fano should be null")
	}
}

func TestShuffleCmd(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "shuffled.yaml")

	mustExecute(t, "shuffle", "population.yaml", "--root", "testdata", "--seed", "3", "--out", out, "--format", "yaml")

	shuffled, err := recording.LoadPopulation(out)
	if err != nil {
		t.Fatalf("LoadPopulation: %v", err)
	}
	original, err := recording.LoadPopulation(filepath.Join("testdata", "population.yaml"))
	if err != nil {
		t.Fatalf("LoadPopulation: %v", err)
	}
	for i, u := range original.Units {
		for j, tr := range u.Trials {
			if got := len(shuffled.Units[i].Trials[j]); got != len(tr) {
				t.Errorf("unit %d trial %d: %d spikes after shuffle, want %d", i, j, got, len(tr))
			}
		}
	}
}

func TestPoissonCmd(t *testing.T) {
	isolateHome(t)
	out := mustExecute(t, "poisson", "--rate", "20", "--duration", "2", "--trials", "4", "--units", "2", "--seed", "5")

	var pop struct {
		Duration float64 `json:"duration"`
		Units    []struct {
			ID     string      `json:"id"`
			Trials [][]float64 `json:"trials"`
		} `json:"units"`
	}
	if err := json.Unmarshal([]byte(out), &pop); err != nil {
		t.Fatalf("invalid population JSON: %v", err)
	}
	if pop.Duration != 2 || len(pop.Units) != 2 || len(pop.Units[0].Trials) != 4 {
		t.Fatalf("unexpected population shape: %+v", pop)
	}
	for _, u := range pop.Units {
		for _, tr := range u.Trials {
			for _, s := range tr {
				if s < 0 || s >= 2 {
					t.Errorf("spike %v outside [0, 2)", s)
				}
			}
		}
	}

	again := mustExecute(t, "poisson", "--rate", "20", "--duration", "2", "--trials", "4", "--units", "2", "--seed", "5")
	if again != out {
		t.Error("same seed produced different trains")
	}

	if _, err := execute(t, "poisson", "--rate", "-1"); err == nil {
		t.Error("expected error for negative rate")
	}
}

func TestPoissonCmd_UnseededVaries(t *testing.T) {
	isolateHome(t)
	args := []string{"poisson", "--rate", "20", "--duration", "1", "--trials", "5", "--units", "2"}
	if mustExecute(t, args...) == mustExecute(t, args...) {
		t.Error("two runs without --seed produced identical trains")
	}
}

func TestEstimateCmd(t *testing.T) {
	isolateHome(t)

	out := mustExecute(t, "estimate", "--rate", "0", "--cost", "1,10", "--builtin-shape", "--json")
	m := decodeJSON(t, out)
	for _, row := range m["estimates"].([]any) {
		if got := row.(map[string]any)["estimate"]; got != float64(0) {
			t.Errorf("zero-rate estimate = %v, want 0", got)
		}
	}

	out = mustExecute(t, "estimate", "--rate", "10", "--cost", "1,10,100", "--builtin-shape", "--json")
	m = decodeJSON(t, out)
	rows := m["estimates"].([]any)
	if len(rows) != 3 {
		t.Fatalf("estimates = %d, want 3", len(rows))
	}
	prev := -1.0
	for _, row := range rows {
		v := row.(map[string]any)["estimate"].(float64)
		if v < prev {
			t.Errorf("estimate decreased with cost: %v after %v", v, prev)
		}
		prev = v
	}
}

func TestEstimateCmd_MissingShapeParams(t *testing.T) {
	isolateHome(t)
	_, err := execute(t, "estimate", "--rate", "10")
	if err == nil || !strings.Contains(err.Error(), "shape parameters not found") {
		t.Fatalf("err = %v, want shape parameters not found", err)
	}
}

func TestEstimateCmd_ShapeParamsFile(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "shape.toml")
	content := "[gamma]\nparams = [6.074, 7.299, 1.870]\n\n[delta]\nparams = [0.172, 1.506, 0.367]\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	mustExecute(t, "estimate", "--rate", "10", "--cost", "5", "--shape-params", path)

	if _, err := execute(t, "estimate", "--rate", "10", "--mode", "per_minute", "--builtin-shape"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestAlignCmd(t *testing.T) {
	isolateHome(t)
	out := mustExecute(t, "align", "session.json", "--root", "testdata", "--duration", "1")

	var pop struct {
		Units []struct {
			Location string      `json:"location"`
			Trials   [][]float64 `json:"trials"`
		} `json:"units"`
	}
	if err := json.Unmarshal([]byte(out), &pop); err != nil {
		t.Fatalf("invalid population JSON: %v", err)
	}
	if len(pop.Units) != 2 {
		t.Fatalf("units = %d, want 2", len(pop.Units))
	}
	if pop.Units[0].Location != "VISp" || pop.Units[1].Location != "LGd" {
		t.Errorf("locations = %q, %q", pop.Units[0].Location, pop.Units[1].Location)
	}
	wantCounts := [][]int{{1, 2, 2}, {1, 0, 0}}
	for i, u := range pop.Units {
		for j, tr := range u.Trials {
			if len(tr) != wantCounts[i][j] {
				t.Errorf("unit %d trial %d: %d spikes, want %d", i, j, len(tr), wantCounts[i][j])
			}
		}
	}

	if _, err := execute(t, "align", "session.json", "--root", "testdata", "--onsets", "0.5", "--duration", "0.5"); err != nil {
		t.Errorf("align with --onsets: %v", err)
	}
}

func TestAlignCmd_NWB(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()

	_, err := execute(t, "align", "recording.nwb", "--root", dir, "--duration", "1")
	if !errors.Is(err, errNoNWBReader) {
		t.Errorf("align .nwb error = %v, want errNoNWBReader", err)
	}

	// Anything else is read as a session export.
	_, err = execute(t, "align", "recording.h5", "--root", dir, "--duration", "1")
	if err == nil || errors.Is(err, errNoNWBReader) {
		t.Errorf("align .h5 error = %v, want a session load error", err)
	}
}

func TestMCPServerCmd_RequiresShapeParams(t *testing.T) {
	isolateHome(t)
	_, err := execute(t, "mcp-server", "--no-audit", "--root", t.TempDir())
	if !errors.Is(err, estimate.ErrShapeParamsNotFound) {
		t.Errorf("mcp-server error = %v, want ErrShapeParamsNotFound", err)
	}
}

func TestConfigCmd_SetGet(t *testing.T) {
	home := isolateHome(t)

	mustExecute(t, "config", "set", "compute.cost", "12.5")
	out := mustExecute(t, "config", "get", "compute.cost", "--json")
	m := decodeJSON(t, out)
	if m["value"] != 12.5 {
		t.Errorf("compute.cost = %v, want 12.5", m["value"])
	}

	if _, err := os.Stat(filepath.Join(home, ".tbc", "config.yaml")); err != nil {
		t.Errorf("config file not written: %v", err)
	}

	if _, err := execute(t, "config", "set", "compute.duration", "0"); err == nil {
		t.Error("expected validation error for zero duration")
	}
	if _, err := execute(t, "config", "get", "llm.provider"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestConfigCmd_CostFeedsCommands(t *testing.T) {
	isolateHome(t)
	mustExecute(t, "config", "set", "compute.cost", "0")

	out := mustExecute(t, "distance", "--first", "0.1", "--second", "0.9")
	if got := strings.TrimSpace(out); got != "0" {
		t.Errorf("distance with configured zero cost = %s, want 0", got)
	}
}

func TestFormatFloat(t *testing.T) {
	if got := formatFloat(0.5); got != "0.5000" {
		t.Errorf("formatFloat(0.5) = %q", got)
	}
	if got := nullable(1); got != 1.0 {
		t.Errorf("nullable(1) = %v", got)
	}
}
