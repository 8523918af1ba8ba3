package keychain

import (
	"github.com/benaskins/secframe/internal/cf"
	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/status"
)

// Item references one stored password item.
type Item struct {
	h *cf.Handle
}

// WrapItem adopts a keychain item handle.
func WrapItem(h *cf.Handle) *Item {
	return &Item{h: cf.Expect(h, native.KindKeychainItem)}
}

// Handle returns the underlying handle. It stays owned by the Item.
func (i *Item) Handle() *cf.Handle {
	return i.h
}

// Keychain returns the keychain that stores the item.
func (i *Item) Keychain() (*Keychain, error) {
	svc := i.h.Service()
	ref, st := svc.KeychainItemCopyKeychain(i.h.Ref())
	if err := status.Translate(svc, st); err != nil {
		return nil, err
	}
	return &Keychain{h: cf.WrapOwning(svc, ref)}, nil
}

// PersistentRef returns a reference that survives process restarts.
func (i *Item) PersistentRef() ([]byte, error) {
	svc := i.h.Service()
	ref, st := svc.KeychainItemCreatePersistentReference(i.h.Ref())
	if err := status.Translate(svc, st); err != nil {
		return nil, err
	}
	return ref, nil
}

// Delete removes the item from its keychain.
func (i *Item) Delete() error {
	svc := i.h.Service()
	return status.Translate(svc, svc.KeychainItemDelete(i.h.Ref()))
}

// Close releases the reference.
func (i *Item) Close() error {
	return i.h.Close()
}
