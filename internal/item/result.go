package item

import (
	"fmt"

	"github.com/benaskins/secframe/internal/certs"
	"github.com/benaskins/secframe/internal/cf"
	"github.com/benaskins/secframe/internal/keychain"
	"github.com/benaskins/secframe/internal/native"
)

// RefKind tags the object held by a Reference.
type RefKind int

const (
	CertificateRef RefKind = iota + 1
	KeyRef
	IdentityRef
	KeychainItemRef
)

func (k RefKind) String() string {
	switch k {
	case CertificateRef:
		return "certificate"
	case KeyRef:
		return "key"
	case IdentityRef:
		return "identity"
	case KeychainItemRef:
		return "keychain item"
	}
	return fmt.Sprintf("RefKind(%d)", int(k))
}

// Reference is an object returned by a search. Exactly one field matching
// Kind is set.
type Reference struct {
	Kind        RefKind
	Certificate *certs.Certificate
	Key         *certs.Key
	Identity    *certs.Identity
	Item        *keychain.Item
}

// newReference tags ref by its runtime type and takes a retain on it. A type
// the item store never returns panics.
func newReference(svc native.Service, ref native.Ref) *Reference {
	kind, ok := cf.KindOf(svc, ref, native.KindCertificate, native.KindKey, native.KindIdentity, native.KindKeychainItem)
	if !ok {
		panic(fmt.Sprintf("item: search returned reference %#x of unexpected type %d", uintptr(ref), svc.GetTypeID(ref)))
	}
	h := cf.WrapBorrowing(svc, ref)
	switch kind {
	case native.KindCertificate:
		return &Reference{Kind: CertificateRef, Certificate: certs.WrapCertificate(h)}
	case native.KindKey:
		return &Reference{Kind: KeyRef, Key: certs.WrapKey(h)}
	case native.KindIdentity:
		return &Reference{Kind: IdentityRef, Identity: certs.WrapIdentity(h)}
	default:
		return &Reference{Kind: KeychainItemRef, Item: keychain.WrapItem(h)}
	}
}

// Handle returns the handle of whichever object is set.
func (r *Reference) Handle() *cf.Handle {
	switch r.Kind {
	case CertificateRef:
		return r.Certificate.Handle()
	case KeyRef:
		return r.Key.Handle()
	case IdentityRef:
		return r.Identity.Handle()
	case KeychainItemRef:
		return r.Item.Handle()
	}
	return nil
}

func (r *Reference) Close() error {
	if h := r.Handle(); h != nil {
		return h.Close()
	}
	return nil
}

// Result is one match. Only the parts the query asked for are set.
type Result struct {
	Ref           *Reference
	Attributes    Attributes
	Data          []byte
	PersistentRef []byte
}

// Close releases Ref if present.
func (r *Result) Close() error {
	if r.Ref != nil {
		return r.Ref.Close()
	}
	return nil
}

// CloseResults closes every result.
func CloseResults(rs []Result) {
	for i := range rs {
		rs[i].Close()
	}
}

// results converts a value returned by the service. Every embedded
// reference is retained before the container is released.
func (q *Query) results(v native.Value) []Result {
	if v == nil {
		return nil
	}
	defer q.svc.ReleaseValue(v)

	items := []native.Value{v}
	if !q.single() {
		list, ok := v.([]native.Value)
		if !ok {
			panic(fmt.Sprintf("item: search with a limit returned %T, want a list", v))
		}
		items = list
	}
	returned := q.returned()
	out := make([]Result, 0, len(items))
	for _, it := range items {
		out = append(out, q.result(it, returned))
	}
	return out
}

func (q *Query) result(v native.Value, returned []native.Key) Result {
	var r Result
	if len(returned) == 1 {
		switch returned[0] {
		case native.KeyReturnData:
			r.Data, _ = v.([]byte)
		case native.KeyReturnRef:
			if ref, ok := v.(native.Ref); ok && ref != native.NullRef {
				r.Ref = newReference(q.svc, ref)
			}
		case native.KeyReturnPersistentRef:
			r.PersistentRef, _ = v.([]byte)
		case native.KeyReturnAttributes:
			d, _ := v.(native.Dict)
			r.Attributes = attributesOf(d)
		}
		return r
	}

	d, _ := v.(native.Dict)
	r.Data, _ = d[native.KeyValueData].([]byte)
	r.PersistentRef, _ = d[native.KeyValuePersistentRef].([]byte)
	if ref, ok := d[native.KeyValueRef].(native.Ref); ok && ref != native.NullRef {
		r.Ref = newReference(q.svc, ref)
	}
	if q.flag(native.KeyReturnAttributes) {
		r.Attributes = attributesOf(d)
	}
	return r
}

func attributesOf(d native.Dict) Attributes {
	attrs := make(Attributes, len(d))
	for k, v := range d {
		switch k {
		case native.KeyValueData, native.KeyValueRef, native.KeyValuePersistentRef:
			continue
		}
		attrs[k] = v
	}
	return attrs
}
