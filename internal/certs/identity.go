package certs

import (
	"fmt"

	"github.com/benaskins/secframe/internal/cf"
	"github.com/benaskins/secframe/internal/keychain"
	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/status"
)

// Identity pairs a certificate with its private key.
type Identity struct {
	h *cf.Handle
}

// WrapIdentity adopts an identity handle.
func WrapIdentity(h *cf.Handle) *Identity {
	return &Identity{h: cf.Expect(h, native.KindIdentity)}
}

// IdentityWithCertificate finds the private key for cert in kcs, or in the
// default keychain when kcs is empty.
func IdentityWithCertificate(kcs []*keychain.Keychain, cert *Certificate) (*Identity, error) {
	svc := cert.svc()
	ref, st := svc.IdentityCreateWithCertificate(keychain.Refs(kcs), cert.h.Ref())
	if err := status.Translate(svc, st); err != nil {
		return nil, fmt.Errorf("finding identity for %q: %w", cert.SubjectSummary(), err)
	}
	return &Identity{h: cf.WrapOwning(svc, ref)}, nil
}

func (i *Identity) Handle() *cf.Handle { return i.h }
func (i *Identity) Close() error       { return i.h.Close() }
func (i *Identity) Clone() *Identity   { return &Identity{h: i.h.Clone()} }

func (i *Identity) Certificate() (*Certificate, error) {
	svc := i.h.Service()
	ref, st := svc.IdentityCopyCertificate(i.h.Ref())
	if err := status.Translate(svc, st); err != nil {
		return nil, err
	}
	return &Certificate{h: cf.WrapOwning(svc, ref)}, nil
}

func (i *Identity) PrivateKey() (*Key, error) {
	svc := i.h.Service()
	ref, st := svc.IdentityCopyPrivateKey(i.h.Ref())
	if err := status.Translate(svc, st); err != nil {
		return nil, err
	}
	return &Key{h: cf.WrapOwning(svc, ref)}, nil
}
