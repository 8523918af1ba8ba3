// Package certs wraps certificate, identity, key, policy and access objects.
//
// Certificates, keys and policies are immutable once created and may be
// shared between goroutines. Every wrapper owns one retain count and must be
// closed.
package certs

import (
	"crypto/x509"
	"fmt"
	"math/big"

	"github.com/benaskins/secframe/internal/cf"
	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/status"
)

// Certificate is an X.509 certificate object.
type Certificate struct {
	h *cf.Handle
}

// WrapCertificate adopts a certificate handle. It panics if h is not a
// certificate.
func WrapCertificate(h *cf.Handle) *Certificate {
	return &Certificate{h: cf.Expect(h, native.KindCertificate)}
}

// CertificateFromDER parses a DER encoded certificate.
func CertificateFromDER(svc native.Service, der []byte) (*Certificate, error) {
	ref := svc.CertificateCreateWithData(der)
	if ref == native.NullRef {
		return nil, fmt.Errorf("parsing certificate: %w", status.ErrDecode)
	}
	return &Certificate{h: cf.WrapOwning(svc, ref)}, nil
}

// Handle returns the underlying handle. It stays owned by the Certificate.
func (c *Certificate) Handle() *cf.Handle { return c.h }

// Close releases the certificate.
func (c *Certificate) Close() error { return c.h.Close() }

// Clone returns an independently owned reference to the same certificate.
func (c *Certificate) Clone() *Certificate { return &Certificate{h: c.h.Clone()} }

func (c *Certificate) svc() native.Service { return c.h.Service() }

// DER returns the encoded certificate.
func (c *Certificate) DER() []byte {
	return c.svc().CertificateCopyData(c.h.Ref())
}

// X509 parses the certificate with crypto/x509.
func (c *Certificate) X509() (*x509.Certificate, error) {
	return x509.ParseCertificate(c.DER())
}

// SubjectSummary returns a human readable name for the subject.
func (c *Certificate) SubjectSummary() string {
	return c.svc().CertificateCopySubjectSummary(c.h.Ref())
}

func (c *Certificate) CommonName() (string, error) {
	cn, st := c.svc().CertificateCopyCommonName(c.h.Ref())
	return cn, status.Translate(c.svc(), st)
}

func (c *Certificate) EmailAddresses() ([]string, error) {
	addrs, st := c.svc().CertificateCopyEmailAddresses(c.h.Ref())
	return addrs, status.Translate(c.svc(), st)
}

func (c *Certificate) SerialNumber() (*big.Int, error) {
	raw, st := c.svc().CertificateCopySerialNumberData(c.h.Ref())
	if err := status.Translate(c.svc(), st); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// PublicKey returns the certificate's public key.
func (c *Certificate) PublicKey() (*Key, error) {
	ref := c.svc().CertificateCopyKey(c.h.Ref())
	if ref == native.NullRef {
		return nil, fmt.Errorf("copying public key of %q: %w", c.SubjectSummary(), status.ErrUnimplemented)
	}
	return &Key{h: cf.WrapOwning(c.svc(), ref)}, nil
}

// Refs returns the raw references of certs.
func Refs(certs []*Certificate) []native.Ref {
	out := make([]native.Ref, len(certs))
	for i, c := range certs {
		out[i] = c.h.Ref()
	}
	return out
}
