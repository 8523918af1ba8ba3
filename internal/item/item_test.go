package item

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benaskins/secframe/internal/keychain"
	"github.com/benaskins/secframe/internal/native"
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

func newKeychain(t *testing.T, svc native.Service, name string) *keychain.Keychain {
	t.Helper()
	kc, err := keychain.Create(svc, filepath.Join(t.TempDir(), name+".keychain-db"), []byte("pw"))
	if err != nil {
		t.Fatalf("Create %s: %v", name, err)
	}
	t.Cleanup(func() { kc.Close() })
	return kc
}

func password(svc native.Service, account string) *Query {
	return New(svc, GenericPassword).Service("secframe.test").Account(account)
}

func TestSetReplacesInPlace(t *testing.T) {
	q := New(nil, GenericPassword).Service("a").Account("b").Service("c")

	assert.Equal(t, []native.Key{native.KeyClass, native.AttrService, native.AttrAccount}, q.Keys())
	v, _ := q.Get(native.AttrService)
	assert.Equal(t, "c", v)
}

func TestLimitValues(t *testing.T) {
	tests := []struct {
		limit Limit
		want  native.Value
	}{
		{LimitOne, native.MatchLimitOne},
		{LimitAll, native.MatchLimitAll},
		{LimitN(5), int64(5)},
	}
	for _, tt := range tests {
		q := New(nil, GenericPassword).Limit(tt.limit)
		v, _ := q.Get(native.KeyMatchLimit)
		if v != tt.want {
			t.Errorf("Limit = %v, want %v", v, tt.want)
		}
	}
}

func TestDataRoundTrip(t *testing.T) {
	svc := newService(t)
	data := []byte{0, 121, 122, 123, 40, 50, 126, 127, 8, 9}

	_, err := password(svc, "bytes").Data(data).Add()
	require.NoError(t, err)

	rs, err := password(svc, "bytes").ReturnData(true).Search()
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, data, rs[0].Data)
}

func TestUpsertOverwrites(t *testing.T) {
	svc := newService(t)
	id := password(svc, "rotating")

	require.NoError(t, Upsert(id, []byte("first")))
	require.NoError(t, Upsert(id, []byte("second")))

	rs, err := password(svc, "rotating").ReturnData(true).Limit(LimitAll).Search()
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "second", string(rs[0].Data))
}

func TestUpsertInNamedKeychain(t *testing.T) {
	svc := newService(t)
	kc := newKeychain(t, svc, "upsert")
	id := password(svc, "pinned").UseKeychain(kc)

	require.NoError(t, Upsert(id, []byte("one")))
	require.NoError(t, Upsert(id, []byte("two")))

	rs, err := password(svc, "pinned").Keychains(kc).ReturnData(true).Search()
	require.NoError(t, err)
	assert.Equal(t, "two", string(rs[0].Data))
}

func TestAddDuplicate(t *testing.T) {
	svc := newService(t)
	_, err := password(svc, "dup").Data([]byte("x")).Add()
	require.NoError(t, err)

	_, err = password(svc, "dup").Data([]byte("y")).Add()
	if !errors.Is(err, status.ErrDuplicateItem) {
		t.Fatalf("err = %v, want ErrDuplicateItem", err)
	}
}

func TestDeleteMissing(t *testing.T) {
	svc := newService(t)
	err := password(svc, "ghost").Delete()
	if !errors.Is(err, status.ErrItemNotFound) {
		t.Fatalf("err = %v, want ErrItemNotFound", err)
	}
}

func TestSearchEmptyWithLimitAll(t *testing.T) {
	svc := newService(t)
	_, err := password(svc, "nobody").ReturnAttributes(true).Limit(LimitAll).Search()
	if !errors.Is(err, status.ErrItemNotFound) {
		t.Fatalf("err = %v, want ErrItemNotFound", err)
	}
}

func TestKeychainIsolation(t *testing.T) {
	svc := newService(t)
	a := newKeychain(t, svc, "a")
	b := newKeychain(t, svc, "b")

	_, err := password(svc, "shared").UseKeychain(a).Data([]byte("in a")).Add()
	require.NoError(t, err)

	_, err = password(svc, "shared").Keychains(b).ReturnData(true).Search()
	assert.True(t, errors.Is(err, status.ErrItemNotFound), "search of b: %v", err)

	rs, err := password(svc, "shared").Keychains(a, b).ReturnData(true).Search()
	require.NoError(t, err)
	assert.Equal(t, "in a", string(rs[0].Data))
}

func TestSearchAllWithAttributesAndRefs(t *testing.T) {
	svc := newService(t)
	for _, acct := range []string{"alice", "bob", "carol"} {
		_, err := password(svc, acct).Label("label-" + acct).Data([]byte(acct)).Add()
		require.NoError(t, err)
	}

	rs, err := New(svc, GenericPassword).Service("secframe.test").
		ReturnAttributes(true).ReturnRef(true).ReturnData(true).ReturnPersistentRef(true).
		Limit(LimitAll).Search()
	require.NoError(t, err)
	defer CloseResults(rs)
	require.Len(t, rs, 3)

	seen := map[string]bool{}
	for _, r := range rs {
		acct, ok := r.Attributes.String(native.AttrAccount)
		require.True(t, ok)
		seen[acct] = true
		assert.Equal(t, acct, string(r.Data))
		assert.NotEmpty(t, r.PersistentRef)
		require.NotNil(t, r.Ref)
		assert.Equal(t, KeychainItemRef, r.Ref.Kind)
		_, ok = r.Attributes.Time(native.AttrCreationDate)
		assert.True(t, ok)
	}
	assert.Equal(t, map[string]bool{"alice": true, "bob": true, "carol": true}, seen)

	byRef, err := New(svc, GenericPassword).PersistentRef(rs[1].PersistentRef).ReturnData(true).Search()
	require.NoError(t, err)
	assert.Equal(t, rs[1].Data, byRef[0].Data)
}

func TestSearchLimitN(t *testing.T) {
	svc := newService(t)
	for _, acct := range []string{"1", "2", "3"} {
		_, err := password(svc, acct).Data([]byte(acct)).Add()
		require.NoError(t, err)
	}
	rs, err := New(svc, GenericPassword).ReturnData(true).Limit(LimitN(2)).Search()
	require.NoError(t, err)
	assert.Len(t, rs, 2)
}

func TestUpdateChangesAttributes(t *testing.T) {
	svc := newService(t)
	_, err := password(svc, "labelled").Label("old").Data([]byte("x")).Add()
	require.NoError(t, err)

	require.NoError(t, password(svc, "labelled").Update(NewChanges(svc).Label("new")))

	r, err := password(svc, "labelled").ReturnAttributes(true).SearchOne()
	require.NoError(t, err)
	label, _ := r.Attributes.String(native.AttrLabel)
	assert.Equal(t, "new", label)
}

func TestCertificateAndIdentityReferences(t *testing.T) {
	svc := newService(t)
	kc := newKeychain(t, svc, "pki")
	ca := pkitest.NewAuthority(t, "Item Root")
	leaf := ca.Issue(t, "item.example.com")

	_, err := New(svc, Certificate).UseKeychain(kc).Data(ca.DER).Add()
	require.NoError(t, err)

	imported, st := svc.ItemImport(leaf.Bundle(t), "pem", native.ImportParams{Keychain: kc.Handle().Ref()})
	require.NoError(t, status.Translate(svc, st))
	svc.ReleaseValue(imported)

	certs, err := New(svc, Certificate).Keychains(kc).ReturnRef(true).Limit(LimitAll).Search()
	require.NoError(t, err)
	defer CloseResults(certs)
	require.Len(t, certs, 2)
	for _, r := range certs {
		assert.Equal(t, CertificateRef, r.Ref.Kind)
	}

	ids, err := New(svc, Identity).Keychains(kc).ReturnRef(true).Limit(LimitAll).Search()
	require.NoError(t, err)
	defer CloseResults(ids)
	require.Len(t, ids, 1)
	require.Equal(t, IdentityRef, ids[0].Ref.Kind)

	cert, err := ids[0].Ref.Identity.Certificate()
	require.NoError(t, err)
	defer cert.Close()
	assert.Equal(t, "item.example.com", cert.SubjectSummary())

	keys, err := New(svc, Key).Keychains(kc).ReturnRef(true).Search()
	require.NoError(t, err)
	defer CloseResults(keys)
	assert.Equal(t, KeyRef, keys[0].Ref.Kind)
}

func TestResultsReleaseContainer(t *testing.T) {
	svc := newService(t)
	_, err := password(svc, "counted").Data([]byte("x")).Add()
	require.NoError(t, err)
	base := svc.Objects()

	rs, err := password(svc, "counted").ReturnRef(true).ReturnAttributes(true).Limit(LimitAll).Search()
	require.NoError(t, err)
	assert.Equal(t, base+1, svc.Objects())

	CloseResults(rs)
	assert.Equal(t, base, svc.Objects())
}

func TestSimplify(t *testing.T) {
	attrs := Attributes{
		native.AttrAccount: "alice",
		native.AttrGeneric: []byte{'o', 'k', 0xff, '!'},
		native.AttrPort:    int64(443),
	}
	got := attrs.Simplify()
	assert.Equal(t, "alice", got[string(native.AttrAccount)])
	assert.Equal(t, "ok�!", got[string(native.AttrGeneric)])
	assert.Equal(t, "443", got[string(native.AttrPort)])
}

func TestUpsertOnAddAttributes(t *testing.T) {
	svc := newService(t)
	labelled := func(l string) func(*Query) {
		return func(q *Query) { q.Label(l) }
	}

	require.NoError(t, Upsert(password(svc, "labelled"), []byte("one"), labelled("first")))
	require.NoError(t, Upsert(password(svc, "labelled"), []byte("two"), labelled("second")))

	rs, err := password(svc, "labelled").ReturnData(true).ReturnAttributes(true).Limit(LimitAll).Search()
	require.NoError(t, err)
	defer CloseResults(rs)
	require.Len(t, rs, 1)
	assert.Equal(t, "two", string(rs[0].Data))
	l, _ := rs[0].Attributes.String(native.AttrLabel)
	assert.Equal(t, "first", l)
}

func TestZeroLengthDataRoundTrip(t *testing.T) {
	svc := newService(t)

	require.NoError(t, Upsert(password(svc, "empty"), []byte{}))
	rs, err := password(svc, "empty").ReturnData(true).Search()
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Len(t, rs[0].Data, 0)

	require.NoError(t, Upsert(password(svc, "empty"), []byte("filled")))
	require.NoError(t, Upsert(password(svc, "empty"), []byte{}))
	rs, err = password(svc, "empty").ReturnData(true).Search()
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Len(t, rs[0].Data, 0)
}
