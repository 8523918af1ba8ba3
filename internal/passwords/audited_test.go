package passwords

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benaskins/secframe/internal/audit"
)

func setupAuditedStore(t *testing.T) (*AuditedStore, string) {
	t.Helper()
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit.log")
	metaPath := filepath.Join(dir, "password-metadata.json")

	auditLog, err := audit.NewLogger(auditPath)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { auditLog.Close() })

	meta, err := NewMetadataStore(metaPath)
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}

	store := NewAuditedStore(testStore(t), auditLog, meta, "cli", DefaultService)
	return store, auditPath
}

func readAuditEntries(t *testing.T, path string) []audit.Entry {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	entries := make([]audit.Entry, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		var e audit.Entry
		json.Unmarshal([]byte(line), &e)
		entries = append(entries, e)
	}
	return entries
}

func filterEntries(entries []audit.Entry, action audit.Action) []audit.Entry {
	var result []audit.Entry
	for _, e := range entries {
		if e.Action == action {
			result = append(result, e)
		}
	}
	return result
}

func TestAuditedStoreSetLogsWrite(t *testing.T) {
	store, auditPath := setupAuditedStore(t)

	if err := store.Set("test/key", "value"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	entries := readAuditEntries(t, auditPath)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Action != audit.ActionPasswordWrite {
		t.Errorf("expected password_write, got %v", entries[0].Action)
	}
	if entries[0].Key != "test/key" {
		t.Errorf("expected test/key, got %q", entries[0].Key)
	}
	if entries[0].Actor != "cli" {
		t.Errorf("expected cli, got %q", entries[0].Actor)
	}
	if entries[0].Service != DefaultService {
		t.Errorf("expected %s, got %q", DefaultService, entries[0].Service)
	}

	meta := store.Metadata().Get("test/key")
	if meta == nil || meta.CreatedAt.IsZero() {
		t.Errorf("expected CreatedAt to be recorded, got %+v", meta)
	}
}

func TestAuditedStoreGetLogsRead(t *testing.T) {
	store, auditPath := setupAuditedStore(t)

	store.Set("test/get", "val")
	store.Get("test/get")

	entries := readAuditEntries(t, auditPath)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Action != audit.ActionPasswordRead {
		t.Errorf("expected password_read, got %v", entries[1].Action)
	}
}

func TestAuditedStoreFailedGetNotLogged(t *testing.T) {
	store, auditPath := setupAuditedStore(t)

	store.Set("test/present", "val")
	if _, err := store.Get("test/absent"); err == nil {
		t.Fatal("expected error for missing key")
	}

	if got := filterEntries(readAuditEntries(t, auditPath), audit.ActionPasswordRead); len(got) != 0 {
		t.Errorf("expected no read entries, got %d", len(got))
	}
}

func TestAuditedStoreDeleteLogsDelete(t *testing.T) {
	store, auditPath := setupAuditedStore(t)

	store.Set("test/del", "val")
	store.Delete("test/del")

	entries := readAuditEntries(t, auditPath)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Action != audit.ActionPasswordDelete {
		t.Errorf("expected password_delete, got %v", entries[1].Action)
	}
	if store.Metadata().Get("test/del") != nil {
		t.Error("expected metadata to be removed")
	}
}

func TestAuditedStoreGetMultipleLogsEachRead(t *testing.T) {
	store, auditPath := setupAuditedStore(t)

	store.Set("m/a", "1")
	store.Set("m/b", "2")
	store.GetMultiple([]string{"m/a", "m/b", "m/c"})

	if got := filterEntries(readAuditEntries(t, auditPath), audit.ActionPasswordRead); len(got) != 2 {
		t.Errorf("expected 2 read entries, got %d", len(got))
	}
}

func TestAuditedStoreRotate(t *testing.T) {
	store, auditPath := setupAuditedStore(t)

	store.Set("test/rotate", "old-value")

	if err := store.Rotate(context.Background(), "test/rotate", "echo new-value"); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	val, err := store.Get("test/rotate")
	if err != nil {
		t.Fatalf("Get after rotate: %v", err)
	}
	if val != "new-value" {
		t.Errorf("expected 'new-value', got %q", val)
	}

	rotateEntries := filterEntries(readAuditEntries(t, auditPath), audit.ActionPasswordRotate)
	if len(rotateEntries) != 1 {
		t.Fatalf("expected 1 rotate entry, got %d", len(rotateEntries))
	}
	if rotateEntries[0].Command != "echo new-value" {
		t.Errorf("expected command 'echo new-value', got %q", rotateEntries[0].Command)
	}

	meta := store.Metadata().Get("test/rotate")
	if meta == nil {
		t.Fatal("expected metadata")
	}
	if meta.LastRotated.IsZero() {
		t.Error("expected LastRotated to be set")
	}
}

func TestAuditedStoreRotateFailure(t *testing.T) {
	store, auditPath := setupAuditedStore(t)

	store.Set("test/rotate-fail", "original")

	if err := store.Rotate(context.Background(), "test/rotate-fail", "exit 1"); err == nil {
		t.Error("expected error from failing rotation command")
	}
	if err := store.Rotate(context.Background(), "test/rotate-fail", "true"); err == nil {
		t.Error("expected error from a command that prints nothing")
	}

	val, _ := store.Get("test/rotate-fail")
	if val != "original" {
		t.Errorf("expected original value preserved, got %q", val)
	}

	rotateEntries := filterEntries(readAuditEntries(t, auditPath), audit.ActionPasswordRotate)
	if len(rotateEntries) != 2 {
		t.Fatalf("expected 2 rotate entries, got %d", len(rotateEntries))
	}
	if rotateEntries[0].Error == "" {
		t.Error("expected error in audit entry")
	}
}

func TestMetadataStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")

	ms1, _ := NewMetadataStore(path)
	ms1.Set("key1", &Metadata{RotateEvery: "30d"})

	ms2, _ := NewMetadataStore(path)
	meta := ms2.Get("key1")
	if meta == nil {
		t.Fatal("expected metadata after reload")
	}
	if meta.RotateEvery != "30d" {
		t.Errorf("expected 30d, got %q", meta.RotateEvery)
	}
}

func TestMetadataStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	os.WriteFile(path, []byte("{not json"), 0600)

	ms, err := NewMetadataStore(path)
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}
	if len(ms.All()) != 0 {
		t.Errorf("expected empty metadata, got %v", ms.All())
	}
}

func TestRotationDue(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	ms, _ := NewMetadataStore(filepath.Join(t.TempDir(), "meta.json"))
	ms.Set("stale", &Metadata{CreatedAt: now.Add(-31 * 24 * time.Hour), RotateEvery: "30d"})
	ms.Set("rotated", &Metadata{CreatedAt: now.Add(-60 * 24 * time.Hour), LastRotated: now.Add(-time.Hour), RotateEvery: "30d"})
	ms.Set("hourly", &Metadata{CreatedAt: now.Add(-2 * time.Hour), RotateEvery: "1h"})
	ms.Set("never", &Metadata{CreatedAt: now.Add(-365 * 24 * time.Hour)})

	due := ms.Due(now)
	if len(due) != 2 || due[0] != "hourly" || due[1] != "stale" {
		t.Errorf("Due = %v, want [hourly stale]", due)
	}
}

func TestSetRotationRejectsBadInterval(t *testing.T) {
	store, _ := setupAuditedStore(t)
	if err := store.SetRotation("k", "soon"); err == nil {
		t.Error("expected error for an unparseable interval")
	}
	if err := store.SetRotation("k", "7d"); err != nil {
		t.Fatalf("SetRotation: %v", err)
	}
	if got := store.Metadata().Get("k").RotateEvery; got != "7d" {
		t.Errorf("RotateEvery = %q", got)
	}
}
