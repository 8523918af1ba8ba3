// Package keychain manages keychain sessions: creating, opening, locking and
// deleting keychain files, and references to the items stored in them.
package keychain

import (
	"fmt"
	"log/slog"

	"github.com/benaskins/secframe/internal/cf"
	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/status"
)

// Keychain is an open keychain session. A session is mutable state; callers
// must not use one Keychain from several goroutines at once.
type Keychain struct {
	h *cf.Handle
}

// Status describes whether a keychain is unlocked, readable and writable.
type Status = native.KeychainStatus

// Wrap adopts a keychain handle returned by another package.
func Wrap(h *cf.Handle) *Keychain {
	return &Keychain{h: cf.Expect(h, native.KindKeychain)}
}

// Create makes a new keychain file protected by password. Relative paths are
// resolved by the service.
func Create(svc native.Service, path string, password []byte) (*Keychain, error) {
	ref, st := svc.KeychainCreate(path, password)
	if err := status.Translate(svc, st); err != nil {
		return nil, fmt.Errorf("creating keychain %s: %w", path, err)
	}
	kc := &Keychain{h: cf.WrapOwning(svc, ref)}
	slog.Info("keychain created", "component", "keychain", "path", kc.pathOrEmpty())
	return kc, nil
}

// Open opens an existing keychain file.
func Open(svc native.Service, path string) (*Keychain, error) {
	ref, st := svc.KeychainOpen(path)
	if err := status.Translate(svc, st); err != nil {
		return nil, fmt.Errorf("opening keychain %s: %w", path, err)
	}
	return &Keychain{h: cf.WrapOwning(svc, ref)}, nil
}

// Default returns the default keychain.
func Default(svc native.Service) (*Keychain, error) {
	ref, st := svc.KeychainCopyDefault()
	if err := status.Translate(svc, st); err != nil {
		return nil, fmt.Errorf("copying default keychain: %w", err)
	}
	return &Keychain{h: cf.WrapOwning(svc, ref)}, nil
}

// Handle returns the underlying handle. It stays owned by the Keychain.
func (k *Keychain) Handle() *cf.Handle {
	return k.h
}

func (k *Keychain) svc() native.Service {
	return k.h.Service()
}

// SetDefault makes k the default keychain.
func (k *Keychain) SetDefault() error {
	return status.Translate(k.svc(), k.svc().KeychainSetDefault(k.h.Ref()))
}

// Lock discards the keychain's key. Secret data cannot be read or written
// until Unlock.
func (k *Keychain) Lock() error {
	return status.Translate(k.svc(), k.svc().KeychainLock(k.h.Ref()))
}

// Unlock unlocks the keychain. A wrong password yields status.ErrAuthFailed.
func (k *Keychain) Unlock(password []byte) error {
	return status.Translate(k.svc(), k.svc().KeychainUnlock(k.h.Ref(), password))
}

// Status reports the session state.
func (k *Keychain) Status() (Status, error) {
	s, st := k.svc().KeychainGetStatus(k.h.Ref())
	return s, status.Translate(k.svc(), st)
}

// Unlocked is a convenience over Status.
func (k *Keychain) Unlocked() (bool, error) {
	s, err := k.Status()
	return s&native.KeychainUnlocked != 0, err
}

// Path returns the keychain file path.
func (k *Keychain) Path() (string, error) {
	p, st := k.svc().KeychainGetPath(k.h.Ref())
	if err := status.Translate(k.svc(), st); err != nil {
		return "", err
	}
	return p, nil
}

func (k *Keychain) pathOrEmpty() string {
	p, _ := k.Path()
	return p
}

// Delete removes the keychain file. The session stays valid for Close only.
func (k *Keychain) Delete() error {
	path := k.pathOrEmpty()
	if err := status.Translate(k.svc(), k.svc().KeychainDelete(k.h.Ref())); err != nil {
		return fmt.Errorf("deleting keychain %s: %w", path, err)
	}
	slog.Info("keychain deleted", "component", "keychain", "path", path)
	return nil
}

// Close releases the session.
func (k *Keychain) Close() error {
	return k.h.Close()
}

// Refs returns the raw references of kcs for search lists.
func Refs(kcs []*Keychain) []native.Ref {
	out := make([]native.Ref, len(kcs))
	for i, k := range kcs {
		out[i] = k.h.Ref()
	}
	return out
}
