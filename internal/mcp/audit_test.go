package mcp

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAuditLogger_NilSafety(t *testing.T) {
	t.Run("nil logger Log is no-op", func(t *testing.T) {
		var logger *AuditLogger
		logger.Log(AuditEntry{Tool: "test"})
	})

	t.Run("nil logger Close is no-op", func(t *testing.T) {
		var logger *AuditLogger
		if err := logger.Close(); err != nil {
			t.Errorf("Close() on nil logger returned error: %v", err)
		}
	})
}

func TestAuditLogger_WritesJSONL(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	defer logger.Close()

	logger.Log(AuditEntry{
		Timestamp:  time.Now(),
		Tool:       "tbc_null_stats",
		DurationMs: 42,
		Status:     "success",
		Params:     map[string]string{"cost": "10"},
	})

	data, err := os.ReadFile(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}

	var entry AuditEntry
	if err := json.Unmarshal(data[:len(data)-1], &entry); err != nil {
		t.Fatalf("parsing audit entry: %v", err)
	}
	if entry.Tool != "tbc_null_stats" {
		t.Errorf("tool = %q, want tbc_null_stats", entry.Tool)
	}
	if entry.DurationMs != 42 {
		t.Errorf("duration_ms = %d, want 42", entry.DurationMs)
	}
	if entry.Params["cost"] != "10" {
		t.Errorf("params[cost] = %q, want 10", entry.Params["cost"])
	}
}

func TestAuditLogger_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	defer logger.Close()

	info, err := os.Stat(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("stat audit log: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}

func TestAuditLogger_ConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log(AuditEntry{Tool: "tbc_distance", Status: "success"})
		}()
	}
	wg.Wait()
	logger.Close()

	data, err := os.ReadFile(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != n {
		t.Fatalf("got %d lines, want %d", len(lines), n)
	}
	for i, line := range lines {
		var entry AuditEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i, err)
		}
	}
}

func TestAuditLogger_LogAfterClose(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir)
	logger.Close()

	logger.Log(AuditEntry{Tool: "after_close"})
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestAuditLogger_NonFatalOnBadPath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	// A regular file where the directory should be.
	if logger := NewAuditLogger(filepath.Join(blocker, "audit")); logger != nil {
		t.Error("expected nil logger for unusable directory")
	}
}

func TestSanitizeToolParams(t *testing.T) {
	cost := 2.5
	seed := uint64(9)
	var unset *float64

	got := sanitizeToolParams(map[string]any{
		"population": "/home/ana/secret/pop.yaml",
		"first":      3,
		"cost":       &cost,
		"duration":   unset,
		"shuffle":    true,
		"seed":       &seed,
		"mystery":    "dropped",
	})

	want := map[string]string{
		"population":   "(set)",
		"first":        "(set)",
		"cost":         "2.5",
		"duration":     "(default)",
		"shuffle":      "true",
		"seed":         "9",
		"_param_count": "7",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("params[%q] = %q, want %q", k, got[k], v)
		}
	}

	if sanitizeToolParams(nil) != nil {
		t.Error("expected nil for nil params")
	}
}

func TestAuditTool(t *testing.T) {
	dir := t.TempDir()
	s := &Server{auditLogger: NewAuditLogger(dir)}

	s.auditTool("tbc_fano", time.Now(), errors.New("boom"), map[string]string{"_param_count": "1"})
	s.auditLogger.Close()

	data, err := os.ReadFile(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}
	var entry AuditEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry); err != nil {
		t.Fatalf("parsing audit entry: %v", err)
	}
	if entry.Status != "error" || entry.Error != "boom" {
		t.Errorf("entry = %+v, want error status with message", entry)
	}
}

func TestFormatParam_UnsetSeed(t *testing.T) {
	var seed *uint64
	if got := formatParam(seed); got != "(random)" {
		t.Errorf("formatParam(nil seed) = %q, want %q", got, "(random)")
	}
}
