// Package item builds query dictionaries and runs them against the item
// store: search, add, update, delete and upsert.
package item

import (
	"github.com/benaskins/secframe/internal/certs"
	"github.com/benaskins/secframe/internal/cf"
	"github.com/benaskins/secframe/internal/keychain"
	"github.com/benaskins/secframe/internal/native"
)

// Class is the item class a query targets.
type Class string

const (
	GenericPassword  Class = native.ClassGenericPassword
	InternetPassword Class = native.ClassInternetPassword
	Certificate      Class = native.ClassCertificate
	Key              Class = native.ClassKey
	Identity         Class = native.ClassIdentity
)

// Limit bounds the number of matches a search returns.
type Limit struct {
	n int64
}

var (
	LimitOne = Limit{n: 1}
	LimitAll = Limit{n: 0}
)

// LimitN returns at most n matches.
func LimitN(n int) Limit { return Limit{n: int64(n)} }

func (l Limit) value() native.Value {
	switch l.n {
	case 0:
		return native.MatchLimitAll
	case 1:
		return native.MatchLimitOne
	}
	return l.n
}

type pair struct {
	key   native.Key
	value native.Value
}

// Query is an ordered set of attribute pairs. Setting a key a second time
// replaces its value in place.
type Query struct {
	svc   native.Service
	pairs []pair
}

// New starts a query for class against svc.
func New(svc native.Service, class Class) *Query {
	q := &Query{svc: svc}
	return q.Set(native.KeyClass, string(class))
}

// NewChanges starts an attribute set for Update. It carries no class.
func NewChanges(svc native.Service) *Query {
	return &Query{svc: svc}
}

// Set stores an arbitrary pair.
func (q *Query) Set(key native.Key, value native.Value) *Query {
	for i := range q.pairs {
		if q.pairs[i].key == key {
			q.pairs[i].value = value
			return q
		}
	}
	q.pairs = append(q.pairs, pair{key: key, value: value})
	return q
}

// Get returns the value stored under key.
func (q *Query) Get(key native.Key) (native.Value, bool) {
	for _, p := range q.pairs {
		if p.key == key {
			return p.value, true
		}
	}
	return nil, false
}

// Keys lists the keys in insertion order.
func (q *Query) Keys() []native.Key {
	out := make([]native.Key, len(q.pairs))
	for i, p := range q.pairs {
		out[i] = p.key
	}
	return out
}

// Clone copies the pairs so the copy can be changed independently.
func (q *Query) Clone() *Query {
	return &Query{svc: q.svc, pairs: append([]pair(nil), q.pairs...)}
}

// Dict serializes the query.
func (q *Query) Dict() native.Dict {
	d := make(native.Dict, len(q.pairs))
	for _, p := range q.pairs {
		d[p.key] = p.value
	}
	return d
}

func (q *Query) Service(s string) *Query        { return q.Set(native.AttrService, s) }
func (q *Query) Account(s string) *Query        { return q.Set(native.AttrAccount, s) }
func (q *Query) Server(s string) *Query         { return q.Set(native.AttrServer, s) }
func (q *Query) Protocol(s string) *Query       { return q.Set(native.AttrProtocol, s) }
func (q *Query) Path(s string) *Query           { return q.Set(native.AttrPath, s) }
func (q *Query) Port(n int) *Query              { return q.Set(native.AttrPort, int64(n)) }
func (q *Query) SecurityDomain(s string) *Query { return q.Set(native.AttrSecurityDomain, s) }
func (q *Query) Label(s string) *Query          { return q.Set(native.AttrLabel, s) }
func (q *Query) Description(s string) *Query    { return q.Set(native.AttrDescription, s) }
func (q *Query) Comment(s string) *Query        { return q.Set(native.AttrComment, s) }
func (q *Query) AccessGroup(s string) *Query    { return q.Set(native.AttrAccessGroup, s) }
func (q *Query) Synchronizable(b bool) *Query   { return q.Set(native.AttrSynchronizable, b) }
func (q *Query) SubjectContains(s string) *Query {
	return q.Set(native.KeyMatchSubjectContains, s)
}

// AuthenticationType is one of the native.AuthenticationType values.
func (q *Query) AuthenticationType(s string) *Query {
	return q.Set(native.AttrAuthenticationType, s)
}

// Accessible is one of the native.Accessible values.
func (q *Query) Accessible(s string) *Query { return q.Set(native.AttrAccessible, s) }

func (q *Query) AccessControl(ac *certs.AccessControl) *Query {
	return q.Set(native.AttrAccessControl, ac.Handle().Ref())
}

func (q *Query) Access(a *certs.Access) *Query {
	return q.Set(native.AttrAccess, a.Handle().Ref())
}

// Keychains restricts a search to kcs.
func (q *Query) Keychains(kcs ...*keychain.Keychain) *Query {
	list := make([]native.Value, len(kcs))
	for i, ref := range keychain.Refs(kcs) {
		list[i] = ref
	}
	return q.Set(native.KeyMatchSearchList, list)
}

// UseKeychain selects the keychain Add stores into.
func (q *Query) UseKeychain(kc *keychain.Keychain) *Query {
	return q.Set(native.KeyUseKeychain, kc.Handle().Ref())
}

// Data is the secret payload of a password item or the DER of a certificate.
func (q *Query) Data(b []byte) *Query { return q.Set(native.KeyValueData, b) }

// Ref adds an existing certificate, key or identity object.
func (q *Query) Ref(h *cf.Handle) *Query { return q.Set(native.KeyValueRef, h.Ref()) }

func (q *Query) PersistentRef(b []byte) *Query { return q.Set(native.KeyValuePersistentRef, b) }

func (q *Query) ReturnData(b bool) *Query          { return q.Set(native.KeyReturnData, b) }
func (q *Query) ReturnAttributes(b bool) *Query    { return q.Set(native.KeyReturnAttributes, b) }
func (q *Query) ReturnRef(b bool) *Query           { return q.Set(native.KeyReturnRef, b) }
func (q *Query) ReturnPersistentRef(b bool) *Query { return q.Set(native.KeyReturnPersistentRef, b) }

func (q *Query) Limit(l Limit) *Query { return q.Set(native.KeyMatchLimit, l.value()) }

func (q *Query) flag(key native.Key) bool {
	v, _ := q.Get(key)
	b, _ := v.(bool)
	return b
}

// single reports whether the service returns one bare match rather than a
// list.
func (q *Query) single() bool {
	v, ok := q.Get(native.KeyMatchLimit)
	if !ok {
		return true
	}
	switch v := v.(type) {
	case string:
		return v == native.MatchLimitOne
	case int64:
		return v == 1
	}
	return false
}

func (q *Query) returned() []native.Key {
	var keys []native.Key
	for _, k := range []native.Key{native.KeyReturnData, native.KeyReturnAttributes, native.KeyReturnRef, native.KeyReturnPersistentRef} {
		if q.flag(k) {
			keys = append(keys, k)
		}
	}
	return keys
}
