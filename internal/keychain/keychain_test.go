package keychain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/native/emulated"
	"github.com/benaskins/secframe/internal/status"
)

func newService(t *testing.T) *emulated.Service {
	t.Helper()
	svc := emulated.New(emulated.WithRoot(t.TempDir()), emulated.WithKDFIterations(1000))
	t.Cleanup(func() { svc.Close() })
	return svc
}

func addPassword(t *testing.T, svc native.Service, kc *Keychain, account string, data []byte) {
	t.Helper()
	_, st := svc.ItemAdd(native.Dict{
		native.KeyClass:       native.ClassGenericPassword,
		native.AttrService:    "secframe.test",
		native.AttrAccount:    account,
		native.KeyValueData:   data,
		native.KeyUseKeychain: kc.Handle().Ref(),
	})
	if err := status.Translate(svc, st); err != nil {
		t.Fatalf("ItemAdd: %v", err)
	}
}

func readPassword(svc native.Service, kc *Keychain, account string) ([]byte, error) {
	v, st := svc.ItemCopyMatching(native.Dict{
		native.KeyClass:           native.ClassGenericPassword,
		native.AttrService:        "secframe.test",
		native.AttrAccount:        account,
		native.KeyReturnData:      true,
		native.KeyMatchLimit:      native.MatchLimitOne,
		native.KeyMatchSearchList: []native.Value{kc.Handle().Ref()},
	})
	if err := status.Translate(svc, st); err != nil {
		return nil, err
	}
	data, _ := v.([]byte)
	return data, nil
}

func TestCreateOpenAndPath(t *testing.T) {
	svc := newService(t)
	path := filepath.Join(t.TempDir(), "test.keychain-db")

	kc, err := Create(svc, path, []byte("pw"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer kc.Close()

	got, err := kc.Path()
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if got != path {
		t.Errorf("Path = %q, want %q", got, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("keychain file missing: %v", err)
	}

	again, err := Open(svc, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer again.Close()

	if _, err := Create(svc, path, []byte("pw")); !errors.Is(err, status.ErrDuplicateKeychain) {
		t.Errorf("expected ErrDuplicateKeychain, got %v", err)
	}
}

func TestOpenMissing(t *testing.T) {
	svc := newService(t)
	_, err := Open(svc, filepath.Join(t.TempDir(), "missing.keychain-db"))
	if !errors.Is(err, status.ErrNoSuchKeychain) {
		t.Errorf("expected ErrNoSuchKeychain, got %v", err)
	}
}

func TestLockUnlock(t *testing.T) {
	svc := newService(t)
	kc, err := Create(svc, filepath.Join(t.TempDir(), "lock.keychain-db"), []byte("secret"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer kc.Close()

	addPassword(t, svc, kc, "alice", []byte("hunter2"))

	if err := kc.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	unlocked, err := kc.Unlocked()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if unlocked {
		t.Error("expected keychain to be locked")
	}
	if _, err := readPassword(svc, kc, "alice"); !errors.Is(err, status.ErrInteractionNotAllowed) {
		t.Errorf("expected ErrInteractionNotAllowed while locked, got %v", err)
	}

	if err := kc.Unlock([]byte("wrong")); !errors.Is(err, status.ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
	if err := kc.Unlock([]byte("secret")); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	data, err := readPassword(svc, kc, "alice")
	if err != nil {
		t.Fatalf("read after unlock: %v", err)
	}
	if string(data) != "hunter2" {
		t.Errorf("data = %q", data)
	}
}

func TestDefaultKeychain(t *testing.T) {
	svc := newService(t)

	def, err := Default(svc)
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	defer def.Close()
	p, _ := def.Path()
	if filepath.Base(p) != "login.keychain-db" {
		t.Errorf("default path = %q", p)
	}

	other, err := Create(svc, filepath.Join(t.TempDir(), "other.keychain-db"), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer other.Close()
	if err := other.SetDefault(); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}

	now, err := Default(svc)
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	defer now.Close()
	want, _ := other.Path()
	got, _ := now.Path()
	if got != want {
		t.Errorf("default = %q, want %q", got, want)
	}
}

func TestDelete(t *testing.T) {
	svc := newService(t)
	path := filepath.Join(t.TempDir(), "gone.keychain-db")
	kc, err := Create(svc, path, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := kc.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	kc.Close()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected file removed, stat err = %v", err)
	}
	if svc.Objects() != 0 {
		t.Errorf("expected no live objects, got %d", svc.Objects())
	}
}

func TestWatchReportsChanges(t *testing.T) {
	svc := newService(t)
	path := filepath.Join(t.TempDir(), "watched.keychain-db")
	kc, err := Create(svc, path, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer kc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Change, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, kc, func(c Change) { changes <- c })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	addPassword(t, svc, kc, "bob", []byte("pw"))

	select {
	case c := <-changes:
		if c.Path != path {
			t.Errorf("change path = %q, want %q", c.Path, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch: %v", err)
	}
}
