package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var entries []Entry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("Unmarshal %q: %v", line, err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestLoggerWritesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer l.Close()

	ts := time.Date(2026, 2, 19, 10, 30, 0, 0, time.UTC)

	l.Log(Entry{
		Timestamp: ts,
		Action:    ActionPasswordRead,
		Key:       "deploy/api-token",
		Service:   "com.secframe",
		Trigger:   "manual",
	})

	l.Log(Entry{
		Timestamp: ts.Add(time.Hour),
		Action:    ActionImport,
		Key:       "server.pem",
		Keychain:  "/tmp/work.keychain",
		Actor:     "cli",
	})

	entries := readEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	e1 := entries[0]
	if e1.Action != ActionPasswordRead {
		t.Errorf("expected password_read, got %v", e1.Action)
	}
	if e1.Key != "deploy/api-token" {
		t.Errorf("expected deploy/api-token, got %q", e1.Key)
	}
	if e1.Service != "com.secframe" {
		t.Errorf("expected com.secframe, got %q", e1.Service)
	}
	if !e1.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", e1.Timestamp, ts)
	}

	e2 := entries[1]
	if e2.Action != ActionImport {
		t.Errorf("expected import, got %v", e2.Action)
	}
	if e2.Keychain != "/tmp/work.keychain" {
		t.Errorf("expected keychain path, got %q", e2.Keychain)
	}
	if e1.ID == "" || e1.ID == e2.ID {
		t.Errorf("expected distinct ids, got %q and %q", e1.ID, e2.ID)
	}
}

func TestLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	l1, _ := NewLogger(path)
	l1.Log(Entry{Action: ActionPasswordWrite, Key: "first"})
	l1.Close()

	l2, _ := NewLogger(path)
	l2.Log(Entry{Action: ActionPasswordRead, Key: "second"})
	l2.Close()

	entries := readEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Key != "first" || entries[1].Key != "second" {
		t.Errorf("unexpected order: %q, %q", entries[0].Key, entries[1].Key)
	}
}

func TestLoggerDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, _ := NewLogger(path)
	defer l.Close()

	before := time.Now().UTC()
	l.Log(Entry{Action: ActionPasswordRead, Key: "test", ID: "fixed"})
	after := time.Now().UTC()

	e := readEntries(t, path)[0]
	if e.Timestamp.Before(before) || e.Timestamp.After(after) {
		t.Errorf("timestamp %v not between %v and %v", e.Timestamp, before, after)
	}
	if e.ID != "fixed" {
		t.Errorf("id = %q, want the caller's", e.ID)
	}
	if l.Path() != path {
		t.Errorf("Path() = %q, want %q", l.Path(), path)
	}
}

func TestLoggerFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, _ := NewLogger(path)
	l.Close()

	info, _ := os.Stat(path)
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("expected 0600, got %o", perm)
	}
}

func TestReadFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Timestamp: base, Action: ActionPasswordWrite, Key: "db"},
		{Timestamp: base.Add(time.Hour), Action: ActionPasswordRead, Key: "db"},
		{Timestamp: base.Add(2 * time.Hour), Action: ActionPasswordRead, Key: "api"},
		{Timestamp: base.Add(3 * time.Hour), Action: ActionImport, Key: "leaf.pem"},
	}
	for _, e := range entries {
		if err := l.Log(e); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	l.Close()

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"db", "db", "api", "leaf.pem"}},
		{"by key", Filter{Key: "db"}, []string{"db", "db"}},
		{"by action", Filter{Action: ActionPasswordRead}, []string{"db", "api"}},
		{"since", Filter{Since: base.Add(2 * time.Hour)}, []string{"api", "leaf.pem"}},
		{"no match", Filter{Key: "db", Action: ActionImport}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(path, tt.filter)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			var keys []string
			for _, e := range got {
				keys = append(keys, e.Key)
			}
			if strings.Join(keys, ",") != strings.Join(tt.want, ",") {
				t.Errorf("keys = %v, want %v", keys, tt.want)
			}
		})
	}
}

func TestReadMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	got, err := Read(filepath.Join(dir, "absent.log"), Filter{})
	if err != nil || got != nil {
		t.Fatalf("missing log: got %v, %v; want nil, nil", got, err)
	}

	path := filepath.Join(dir, "bad.log")
	if err := os.WriteFile(path, []byte("{\"key\":\"ok\"}\nnot json\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err = Read(path, Filter{})
	if err == nil || !strings.Contains(err.Error(), "bad.log:2") {
		t.Errorf("err = %v, want a line 2 parse error", err)
	}
}
