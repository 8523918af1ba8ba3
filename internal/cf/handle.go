// Package cf gives native references a Go lifetime.
//
// A Handle owns exactly one retain count on its reference and gives it back
// exactly once, on Close or, for handles that are dropped without Close,
// from a runtime cleanup. References returned by Create and Copy entry points
// are wrapped with WrapOwning; references returned by Get entry points are
// wrapped with WrapBorrowing, which retains first.
package cf

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/benaskins/secframe/internal/native"
)

// state is shared between a Handle and its cleanup so the cleanup never
// keeps the Handle reachable.
type state struct {
	svc      native.Service
	ref      native.Ref
	released atomic.Bool
}

func (s *state) release() bool {
	if !s.released.CompareAndSwap(false, true) {
		return false
	}
	s.svc.Release(s.ref)
	return true
}

// Handle is one owned retain count on a native reference.
type Handle struct {
	st      *state
	cleanup runtime.Cleanup
}

func wrap(svc native.Service, ref native.Ref) *Handle {
	h := &Handle{st: &state{svc: svc, ref: ref}}
	h.cleanup = runtime.AddCleanup(h, func(s *state) { s.release() }, h.st)
	return h
}

// WrapOwning takes over a reference the caller already owns. It panics on a
// null reference.
func WrapOwning(svc native.Service, ref native.Ref) *Handle {
	if ref == native.NullRef {
		panic("cf: WrapOwning of a null reference")
	}
	return wrap(svc, ref)
}

// WrapOwningOptional is WrapOwning for outputs the service documents as
// optional. It returns nil for a null reference.
func WrapOwningOptional(svc native.Service, ref native.Ref) *Handle {
	if ref == native.NullRef {
		return nil
	}
	return wrap(svc, ref)
}

// WrapBorrowing retains a reference owned by someone else and wraps the new
// count. It panics on a null reference.
func WrapBorrowing(svc native.Service, ref native.Ref) *Handle {
	if ref == native.NullRef {
		panic("cf: WrapBorrowing of a null reference")
	}
	return wrap(svc, svc.Retain(ref))
}

// Ref returns the wrapped reference. Using a handle after Close is a
// programmer error and panics.
func (h *Handle) Ref() native.Ref {
	if h.st.released.Load() {
		panic(fmt.Sprintf("cf: use of reference %#x after Close", uintptr(h.st.ref)))
	}
	return h.st.ref
}

// Service returns the service the reference belongs to.
func (h *Handle) Service() native.Service {
	return h.st.svc
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	return h.st.released.Load()
}

// Close releases the reference. Further calls do nothing.
func (h *Handle) Close() error {
	if h.st.release() {
		h.cleanup.Stop()
	}
	return nil
}

// Clone returns a second handle to the same object with its own retain count.
func (h *Handle) Clone() *Handle {
	return WrapBorrowing(h.st.svc, h.Ref())
}

// TypeID returns the runtime type of the referenced object.
func (h *Handle) TypeID() native.TypeID {
	return h.st.svc.GetTypeID(h.Ref())
}

// Is reports whether the referenced object has the given kind.
func (h *Handle) Is(kind native.Kind) bool {
	id := TypeIDOf(h.st.svc, kind)
	return id != 0 && h.TypeID() == id
}

// Expect panics unless h references an object of the given kind. Wrappers
// call it where a mismatch means the service broke its contract.
func Expect(h *Handle, kind native.Kind) *Handle {
	if !h.Is(kind) {
		panic(fmt.Sprintf("cf: reference %#x has type id %d, want %s", uintptr(h.Ref()), h.TypeID(), kind))
	}
	return h
}

type typeKey struct {
	svc  native.Service
	kind native.Kind
}

var typeIDs sync.Map // typeKey -> native.TypeID

// TypeIDOf resolves the type id of kind once per service.
func TypeIDOf(svc native.Service, kind native.Kind) native.TypeID {
	key := typeKey{svc: svc, kind: kind}
	if v, ok := typeIDs.Load(key); ok {
		return v.(native.TypeID)
	}
	id := svc.TypeIDForKind(kind)
	if id != 0 {
		typeIDs.Store(key, id)
	}
	return id
}

// KindOf classifies ref among kinds by type id.
func KindOf(svc native.Service, ref native.Ref, kinds ...native.Kind) (native.Kind, bool) {
	id := svc.GetTypeID(ref)
	if id == 0 {
		return "", false
	}
	for _, k := range kinds {
		if TypeIDOf(svc, k) == id {
			return k, true
		}
	}
	return "", false
}

// CloseAll closes every element of hs.
func CloseAll[T interface{ Close() error }](hs []T) {
	for _, h := range hs {
		h.Close()
	}
}
