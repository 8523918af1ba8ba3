package emulated

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benaskins/secframe/internal/native"
)

func newTestService(t *testing.T, root string) *Service {
	t.Helper()
	s := New(WithRoot(root), WithKDFIterations(1000))
	t.Cleanup(func() { s.Close() })
	return s
}

func genericPassword(kc native.Ref, data []byte) native.Dict {
	d := native.Dict{
		native.KeyClass:    native.ClassGenericPassword,
		native.AttrService: "svc",
		native.AttrAccount: "alice",
	}
	if kc != native.NullRef {
		d[native.KeyUseKeychain] = kc
		d[native.KeyMatchSearchList] = []native.Value{kc}
	}
	if data != nil {
		d[native.KeyValueData] = data
	}
	return d
}

func readPassword(s *Service, kc native.Ref) ([]byte, native.Status) {
	q := genericPassword(kc, nil)
	q[native.KeyReturnData] = true
	v, st := s.ItemCopyMatching(q)
	b, _ := v.([]byte)
	return b, st
}

func TestKeychainPersistsAcrossServices(t *testing.T) {
	root := t.TempDir()
	secret := []byte("correct horse battery staple")

	first := newTestService(t, root)
	kc, st := first.KeychainCreate("work.keychain-db", []byte("pw"))
	require.Equal(t, native.ErrSecSuccess, st)
	_, st = first.ItemAdd(genericPassword(kc, secret))
	require.Equal(t, native.ErrSecSuccess, st)
	first.Release(kc)
	require.NoError(t, first.Close())

	second := newTestService(t, root)
	kc, st = second.KeychainOpen("work.keychain-db")
	require.Equal(t, native.ErrSecSuccess, st)
	defer second.Release(kc)

	ks, st := second.KeychainGetStatus(kc)
	require.Equal(t, native.ErrSecSuccess, st)
	assert.Zero(t, ks&native.KeychainUnlocked, "reopened keychain should start locked")

	_, st = readPassword(second, kc)
	assert.Equal(t, native.ErrSecInteractionNotAllowed, st)

	assert.Equal(t, native.ErrSecAuthFailed, second.KeychainUnlock(kc, []byte("wrong")))
	require.Equal(t, native.ErrSecSuccess, second.KeychainUnlock(kc, []byte("pw")))

	got, st := readPassword(second, kc)
	require.Equal(t, native.ErrSecSuccess, st)
	assert.Equal(t, secret, got)
}

func TestPasswordDataSealedAtRest(t *testing.T) {
	root := t.TempDir()
	marker := []byte("plaintext-marker-6c1f0e")

	s := newTestService(t, root)
	kc, st := s.KeychainCreate("sealed.keychain-db", []byte("pw"))
	require.Equal(t, native.ErrSecSuccess, st)
	_, st = s.ItemAdd(genericPassword(kc, marker))
	require.Equal(t, native.ErrSecSuccess, st)
	s.Release(kc)
	require.NoError(t, s.Close())

	files, err := filepath.Glob(filepath.Join(root, "sealed.keychain-db*"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		raw, err := os.ReadFile(f)
		require.NoError(t, err)
		assert.False(t, bytes.Contains(raw, marker), "%s holds the password in the clear", filepath.Base(f))
	}
}

func TestLoginKeychainCreatedOnDemand(t *testing.T) {
	root := t.TempDir()
	s := newTestService(t, root)

	_, st := s.ItemAdd(genericPassword(native.NullRef, []byte("v")))
	require.Equal(t, native.ErrSecSuccess, st)
	_, err := os.Stat(filepath.Join(root, "login.keychain-db"))
	assert.NoError(t, err)

	got, st := readPassword(s, native.NullRef)
	require.Equal(t, native.ErrSecSuccess, st)
	assert.Equal(t, []byte("v"), got)
}

func TestOpenMissingKeychain(t *testing.T) {
	s := newTestService(t, t.TempDir())
	_, st := s.KeychainOpen("absent.keychain-db")
	assert.Equal(t, native.ErrSecNoSuchKeychain, st)
}

func TestSealOpen(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	sealed, err := seal(key, []byte("payload"))
	require.NoError(t, err)

	plain, err := open(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), plain)

	sealed[len(sealed)-1] ^= 1
	_, err = open(key, sealed)
	assert.Error(t, err, "tampered ciphertext must not open")

	_, err = open(key, []byte{1, 2})
	assert.Error(t, err)
}

func TestParsePersistentRef(t *testing.T) {
	tests := []struct {
		in          string
		store, item string
		ok          bool
	}{
		{"kc/item", "kc", "item", true},
		{"kc/", "kc", "", false},
		{"/item", "", "item", false},
		{"noslash", "", "", false},
	}
	for _, tt := range tests {
		store, item, ok := parsePersistentRef([]byte(tt.in))
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.store, store)
			assert.Equal(t, tt.item, item)
		}
	}
}

func TestReleaseFreesObjects(t *testing.T) {
	s := newTestService(t, t.TempDir())
	before := s.Objects()

	p := s.PolicyCreateBasicX509()
	assert.Equal(t, before+1, s.Objects())
	s.Retain(p)
	s.Release(p)
	assert.Equal(t, before+1, s.Objects(), "one retain is still outstanding")
	s.Release(p)
	assert.Equal(t, before, s.Objects())
}

func TestErrorMessages(t *testing.T) {
	s := newTestService(t, t.TempDir())
	msg, ok := s.CopyErrorMessageString(native.ErrSecInteractionNotAllowed)
	require.True(t, ok)
	assert.Equal(t, "User interaction is not allowed.", msg)

	_, ok = s.CopyErrorMessageString(native.Status(-123456))
	assert.False(t, ok)
}
