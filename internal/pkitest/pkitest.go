// Package pkitest issues throwaway certificate hierarchies for tests.
package pkitest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"sync/atomic"
	"testing"
	"time"
)

var serial atomic.Int64

// Authority is a self-signed CA.
type Authority struct {
	Cert *x509.Certificate
	DER  []byte
	Key  *ecdsa.PrivateKey
}

// Leaf is a certificate issued by an Authority.
type Leaf struct {
	Cert *x509.Certificate
	DER  []byte
	Key  *ecdsa.PrivateKey
}

// LeafOption adjusts a leaf template before signing.
type LeafOption func(*x509.Certificate)

// WithDNSNames sets the subject alternative DNS names.
func WithDNSNames(names ...string) LeafOption {
	return func(c *x509.Certificate) { c.DNSNames = names }
}

func WithEmail(addrs ...string) LeafOption {
	return func(c *x509.Certificate) { c.EmailAddresses = addrs }
}

// ClientAuth issues a client certificate instead of a server certificate.
func ClientAuth() LeafOption {
	return func(c *x509.Certificate) { c.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth} }
}

// Validity overrides the validity window.
func Validity(notBefore, notAfter time.Time) LeafOption {
	return func(c *x509.Certificate) { c.NotBefore, c.NotAfter = notBefore, notAfter }
}

func newKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return k
}

func template(cn string) *x509.Certificate {
	now := time.Now()
	return &x509.Certificate{
		SerialNumber: big.NewInt(serial.Add(1) + 1000),
		Subject:      pkix.Name{CommonName: cn, Organization: []string{"secframe tests"}},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(24 * time.Hour),
	}
}

// NewAuthority creates a self-signed CA named cn.
func NewAuthority(t testing.TB, cn string) *Authority {
	t.Helper()
	key := newKey(t)
	tmpl := template(cn)
	tmpl.IsCA = true
	tmpl.BasicConstraintsValid = true
	tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating CA %q: %v", cn, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsing CA %q: %v", cn, err)
	}
	return &Authority{Cert: cert, DER: der, Key: key}
}

// Issue signs a server leaf for cn. Without options the leaf is valid for
// the DNS name cn.
func (a *Authority) Issue(t testing.TB, cn string, opts ...LeafOption) *Leaf {
	t.Helper()
	key := newKey(t)
	tmpl := template(cn)
	tmpl.DNSNames = []string{cn}
	tmpl.KeyUsage = x509.KeyUsageDigitalSignature
	tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	for _, o := range opts {
		o(tmpl)
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, a.Cert, &key.PublicKey, a.Key)
	if err != nil {
		t.Fatalf("issuing %q: %v", cn, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsing %q: %v", cn, err)
	}
	return &Leaf{Cert: cert, DER: der, Key: key}
}

// CertPEM encodes the authority certificate.
func (a *Authority) CertPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: a.DER})
}

func (l *Leaf) CertPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: l.DER})
}

// KeyPEM encodes the private key as PKCS#8.
func (l *Leaf) KeyPEM(t testing.TB) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(l.Key)
	if err != nil {
		t.Fatalf("marshalling key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

// Bundle concatenates the leaf certificate and key in PEM form.
func (l *Leaf) Bundle(t testing.TB) []byte {
	t.Helper()
	return append(l.CertPEM(), l.KeyPEM(t)...)
}

// Signer returns the leaf key as a crypto.Signer.
func (l *Leaf) Signer() crypto.Signer { return l.Key }
