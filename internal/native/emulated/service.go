// Package emulated is a software implementation of the platform security
// service. Keychains are sqlite files whose secret payloads are sealed with a
// key derived from the keychain password, trust evaluation runs on
// crypto/x509 and the secure transport engine drives crypto/tls over the
// caller's read and write callbacks.
//
// The service reproduces the native status codes and reference counting
// rules, so wrappers exercised against it behave the same against the real
// service.
package emulated

import (
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benaskins/secframe/internal/native"
)

const typeIDBase = 0x130

// kinds lists every object kind the service hands out, in type id order.
var kinds = []native.Kind{
	native.KindKeychain,
	native.KindKeychainItem,
	native.KindCertificate,
	native.KindIdentity,
	native.KindKey,
	native.KindTrust,
	native.KindPolicy,
	native.KindAccess,
	native.KindAccessControl,
	native.KindTransform,
	native.KindSSLContext,
}

// releaser is implemented by object values that hold references to other
// objects or to open resources.
type releaser interface {
	release(s *Service)
}

type object struct {
	kind  native.Kind
	refs  int
	value any
}

// Service implements native.Service.
type Service struct {
	logger   *slog.Logger
	root     string
	roots    *x509.CertPool
	now      func() time.Time
	disabled map[native.Capability]bool
	kdfIter  int

	mu      sync.Mutex
	next    native.Ref
	objects map[native.Ref]*object
	typeIDs map[native.Kind]native.TypeID

	kcMu        sync.Mutex
	stores      map[string]*store
	defaultPath string

	settingsOnce sync.Once
	settings     *settingsStore
	settingsErr  error
}

var _ native.Service = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithRoot sets the directory holding the default keychain and the trust
// settings database.
func WithRoot(dir string) Option {
	return func(s *Service) { s.root = dir }
}

// WithoutCapability hides an optional group of entry points, the way newer
// platform versions drop deprecated APIs.
func WithoutCapability(c native.Capability) Option {
	return func(s *Service) { s.disabled[c] = true }
}

// WithSystemRoots sets the anchors used when a trust has no explicit anchors.
func WithSystemRoots(pool *x509.CertPool) Option {
	return func(s *Service) { s.roots = pool }
}

// WithClock overrides the time source used for evaluation and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithKDFIterations sets the pbkdf2 iteration count used to derive keychain
// master keys.
func WithKDFIterations(n int) Option {
	return func(s *Service) { s.kdfIter = n }
}

// New creates a software security service.
func New(opts ...Option) *Service {
	s := &Service{
		logger:   slog.Default(),
		now:      time.Now,
		disabled: make(map[native.Capability]bool),
		kdfIter:  defaultKDFIterations,
		next:     0x1000,
		objects:  make(map[native.Ref]*object),
		typeIDs:  make(map[native.Kind]native.TypeID, len(kinds)),
		stores:   make(map[string]*store),
	}
	for i, k := range kinds {
		s.typeIDs[k] = native.TypeID(typeIDBase + i)
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		s.root = filepath.Join(home, ".secframe", "keychains")
	}
	if s.roots == nil {
		if pool, err := x509.SystemCertPool(); err == nil {
			s.roots = pool
		} else {
			s.roots = x509.NewCertPool()
		}
	}
	s.logger = s.logger.With("component", "security-service")
	s.defaultPath = filepath.Join(s.root, "login.keychain-db")
	return s
}

// Root returns the directory holding the default keychain.
func (s *Service) Root() string {
	return s.root
}

// Close closes every open keychain file and the trust settings database.
func (s *Service) Close() error {
	s.kcMu.Lock()
	defer s.kcMu.Unlock()

	var firstErr error
	for path, st := range s.stores {
		if err := st.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing keychain %s: %w", path, err)
		}
		delete(s.stores, path)
	}
	if s.settings != nil {
		if err := s.settings.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Objects returns the number of live objects. Tests use it to check that
// wrappers release everything they acquire.
func (s *Service) Objects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *Service) alloc(kind native.Kind, value any) native.Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next += 0x10
	ref := s.next
	s.objects[ref] = &object{kind: kind, refs: 1, value: value}
	return ref
}

func (s *Service) lookup(ref native.Ref) (*object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[ref]
	return obj, ok
}

// valueOf returns the value behind ref when it has the wanted kind.
func valueOf[T any](s *Service, ref native.Ref, kind native.Kind) (T, bool) {
	var zero T
	obj, ok := s.lookup(ref)
	if !ok || obj.kind != kind {
		return zero, false
	}
	v, ok := obj.value.(T)
	return v, ok
}

func (s *Service) Retain(ref native.Ref) native.Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[ref]
	if !ok {
		panic(fmt.Sprintf("emulated: retain of unknown reference %#x", uintptr(ref)))
	}
	obj.refs++
	return ref
}

func (s *Service) Release(ref native.Ref) {
	s.mu.Lock()
	obj, ok := s.objects[ref]
	if !ok {
		s.mu.Unlock()
		panic(fmt.Sprintf("emulated: release of unknown reference %#x", uintptr(ref)))
	}
	obj.refs--
	if obj.refs > 0 {
		s.mu.Unlock()
		return
	}
	delete(s.objects, ref)
	s.mu.Unlock()

	if r, ok := obj.value.(releaser); ok {
		r.release(s)
	}
}

func (s *Service) RetainCount(ref native.Ref) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obj, ok := s.objects[ref]; ok {
		return obj.refs
	}
	return 0
}

func (s *Service) GetTypeID(ref native.Ref) native.TypeID {
	obj, ok := s.lookup(ref)
	if !ok {
		return 0
	}
	return s.typeIDs[obj.kind]
}

func (s *Service) TypeIDForKind(kind native.Kind) native.TypeID {
	return s.typeIDs[kind]
}

func (s *Service) ReleaseValue(v native.Value) {
	switch v := v.(type) {
	case native.Ref:
		if v != native.NullRef {
			s.Release(v)
		}
	case []native.Value:
		for _, e := range v {
			s.ReleaseValue(e)
		}
	case native.Dict:
		for _, e := range v {
			s.ReleaseValue(e)
		}
	}
}

func (s *Service) HasCapability(c native.Capability) bool {
	return !s.disabled[c]
}

func (s *Service) releaseAll(refs []native.Ref) {
	for _, r := range refs {
		if r != native.NullRef {
			s.Release(r)
		}
	}
}

func (s *Service) retainAll(refs []native.Ref) []native.Ref {
	out := make([]native.Ref, len(refs))
	for i, r := range refs {
		out[i] = s.Retain(r)
	}
	return out
}
