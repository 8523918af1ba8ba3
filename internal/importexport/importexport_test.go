package importexport

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benaskins/secframe/internal/certs"
	"github.com/benaskins/secframe/internal/item"
	"github.com/benaskins/secframe/internal/keychain"
	"github.com/benaskins/secframe/internal/native/emulated"
	"github.com/benaskins/secframe/internal/pkitest"
	"github.com/benaskins/secframe/internal/status"
)

func newService(t *testing.T) *emulated.Service {
	t.Helper()
	svc := emulated.New(emulated.WithRoot(t.TempDir()), emulated.WithKDFIterations(1000))
	t.Cleanup(func() { svc.Close() })
	return svc
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}
	return data
}

func TestImportPEMIdentity(t *testing.T) {
	svc := newService(t)
	ca := pkitest.NewAuthority(t, "Import Root")
	leaf := ca.Issue(t, "import.example.com")

	res, err := Import(svc, leaf.Bundle(t), Options{Filename: "bundle.pem"})
	require.NoError(t, err)
	defer res.Close()

	require.Len(t, res.Identities, 1)
	assert.Empty(t, res.Certificates)
	assert.Empty(t, res.Keys)

	cert, err := res.Identities[0].Certificate()
	require.NoError(t, err)
	defer cert.Close()
	assert.Equal(t, leaf.DER, cert.DER())
}

func TestImportFormats(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		hint  string
		certs int
		ids   int
		keys  int
	}{
		{"der by extension", "ca.der", "ca.cer", 1, 0, 0},
		{"der sniffed", "ca.der", "", 1, 0, 0},
		{"pem certificate", "ca.pem", "ca.pem", 1, 0, 0},
		{"pem key", "leaf.key", "leaf.key", 0, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(t)
			res, err := Import(svc, readFixture(t, tt.file), Options{Filename: tt.hint})
			require.NoError(t, err)
			defer res.Close()
			assert.Len(t, res.Certificates, tt.certs)
			assert.Len(t, res.Identities, tt.ids)
			assert.Len(t, res.Keys, tt.keys)
		})
	}
}

func TestImportRejectsUnknownFormat(t *testing.T) {
	svc := newService(t)
	_, err := Import(svc, []byte("plain text"), Options{Filename: "notes.txt"})
	assert.True(t, errors.Is(err, status.ErrUnknownFormat), "err = %v", err)
}

func TestImportPersistsToKeychain(t *testing.T) {
	svc := newService(t)
	kc, err := keychain.Create(svc, filepath.Join(t.TempDir(), "import.keychain-db"), []byte("pw"))
	require.NoError(t, err)
	defer kc.Close()

	data := append(readFixture(t, "leaf.pem"), readFixture(t, "leaf.key")...)
	res, err := Import(svc, data, Options{Filename: "pem", Keychain: kc})
	require.NoError(t, err)
	res.Close()

	ids, err := item.New(svc, item.Identity).Keychains(kc).ReturnRef(true).Limit(item.LimitAll).Search()
	require.NoError(t, err)
	defer item.CloseResults(ids)
	require.Len(t, ids, 1)

	again, err := Import(svc, data, Options{Filename: "pem", Keychain: kc})
	require.NoError(t, err, "re-importing existing items")
	again.Close()
}

func TestPKCS12(t *testing.T) {
	svc := newService(t)
	entries, err := PKCS12(svc, readFixture(t, "identity.p12"), "secframe")
	require.NoError(t, err)
	defer func() {
		for _, e := range entries {
			e.Close()
		}
	}()
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "fixture identity", e.Label)
	assert.NotEmpty(t, e.KeyID)
	require.NotNil(t, e.Identity)
	require.Len(t, e.Chain, 2)
	assert.Equal(t, "fixture.example.com", e.Chain[0].SubjectSummary())
	assert.Equal(t, "secframe Fixture Root", e.Chain[1].SubjectSummary())

	require.NotNil(t, e.Trust)
	require.NoError(t, e.Trust.SetAnchors([]*certs.Certificate{e.Chain[1]}))
	assert.NoError(t, e.Trust.EvaluateWithError())
}

func TestPKCS12WrongPassphrase(t *testing.T) {
	svc := newService(t)
	_, err := PKCS12(svc, readFixture(t, "identity.p12"), "wrong")
	assert.True(t, errors.Is(err, status.ErrAuthFailed), "err = %v", err)
}

func TestImportP12ByExtension(t *testing.T) {
	svc := newService(t)
	res, err := Import(svc, readFixture(t, "identity.p12"), Options{Filename: "identity.p12", Passphrase: "secframe"})
	require.NoError(t, err)
	defer res.Close()
	assert.Len(t, res.Identities, 1)
	assert.Len(t, res.Certificates, 1)
}
