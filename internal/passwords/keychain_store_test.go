package passwords

import (
	"errors"
	"testing"
)

func testStore(t *testing.T) Store {
	t.Helper()
	return NewKeychainStore(newService(t), "")
}

func TestSetAndGet(t *testing.T) {
	s := testStore(t)

	if err := s.Set("test/set-get", "hello-world"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	val, err := s.Get("test/set-get")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "hello-world" {
		t.Errorf("expected 'hello-world', got %q", val)
	}
}

func TestGetNotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.Get("test/nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetOverwrites(t *testing.T) {
	s := testStore(t)

	s.Set("test/overwrite", "first")
	s.Set("test/overwrite", "second")

	val, err := s.Get("test/overwrite")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "second" {
		t.Errorf("expected 'second', got %q", val)
	}
}

func TestSetOverwritesPlainPassword(t *testing.T) {
	svc := newService(t)
	if err := SetGenericPassword(svc, DefaultService, "plain", []byte("old")); err != nil {
		t.Fatalf("SetGenericPassword: %v", err)
	}

	s := NewKeychainStore(svc, DefaultService)
	if err := s.Set("plain", "new"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if val, _ := s.Get("plain"); val != "new" {
		t.Errorf("expected 'new', got %q", val)
	}
}

func TestListSortedAndScopedToService(t *testing.T) {
	svc := newService(t)
	s := NewKeychainStore(svc, "com.secframe.list")
	other := NewKeychainStore(svc, "com.secframe.other")

	if keys, err := s.List(); err != nil || len(keys) != 0 {
		t.Fatalf("empty List = %v, %v", keys, err)
	}

	s.Set("b/key", "1")
	s.Set("a/key", "2")
	other.Set("c/key", "3")

	keys, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a/key" || keys[1] != "b/key" {
		t.Errorf("List = %v, want [a/key b/key]", keys)
	}
}

func TestDelete(t *testing.T) {
	s := testStore(t)

	s.Set("test/delete", "gone")
	if err := s.Delete("test/delete"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get("test/delete"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete("test/delete"); err != nil {
		t.Errorf("deleting a missing key: %v", err)
	}
}

func TestGetMultiple(t *testing.T) {
	s := testStore(t)

	s.Set("multi/a", "1")
	s.Set("multi/b", "2")

	got, err := s.GetMultiple([]string{"multi/a", "multi/b", "multi/missing"})
	if err != nil {
		t.Fatalf("GetMultiple: %v", err)
	}
	if len(got) != 2 || got["multi/a"] != "1" || got["multi/b"] != "2" {
		t.Errorf("GetMultiple = %v", got)
	}
}

func TestKeychainStoreInNamedKeychain(t *testing.T) {
	svc := newService(t)
	kc := newKeychain(t, svc, "store.keychain")
	s := NewKeychainStore(svc, "", InKeychain(kc))

	if err := s.Set("named/key", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("named/key", "v2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if val, err := s.Get("named/key"); err != nil || val != "v2" {
		t.Errorf("Get = %q, %v", val, err)
	}

	if _, err := NewKeychainStore(svc, "").Get("named/key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("default store sees scoped entry: %v", err)
	}
}

func TestLockedKeychainRefusesReads(t *testing.T) {
	svc := newService(t)
	kc := newKeychain(t, svc, "locked.keychain")
	s := NewKeychainStore(svc, "", InKeychain(kc))
	s.Set("locked/key", "v")

	if err := kc.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	_, err := s.Get("locked/key")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Get on locked keychain: err = %v, want an interaction error", err)
	}
}
