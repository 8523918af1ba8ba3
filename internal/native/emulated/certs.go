package emulated

import (
	"crypto/sha1"
	"crypto/x509"

	"github.com/benaskins/secframe/internal/native"
)

// certTypeX509v3 is the stored certificate type attribute value.
const certTypeX509v3 = 3

type certificate struct {
	cert   *x509.Certificate
	origin *itemRef
}

type identity struct {
	cert *certificate
	key  *key
}

func parseCertificate(der []byte) (*certificate, bool) {
	c, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, false
	}
	return &certificate{cert: c}, true
}

func subjectSummary(c *x509.Certificate) string {
	switch {
	case c.Subject.CommonName != "":
		return c.Subject.CommonName
	case len(c.EmailAddresses) > 0:
		return c.EmailAddresses[0]
	case len(c.Subject.OrganizationalUnit) > 0:
		return c.Subject.OrganizationalUnit[0]
	case len(c.Subject.Organization) > 0:
		return c.Subject.Organization[0]
	case len(c.DNSNames) > 0:
		return c.DNSNames[0]
	}
	return ""
}

// publicKeyHash is the SHA-1 of the key's external representation. It links
// certificates to their private keys.
func publicKeyHash(pub any) []byte {
	raw, ok := publicKeyBytes(pub)
	if !ok {
		return nil
	}
	sum := sha1.Sum(raw)
	return sum[:]
}

func certAttributes(c *x509.Certificate) native.Dict {
	attrs := native.Dict{
		native.AttrCertificateType: int64(certTypeX509v3),
		native.AttrSubject:         c.RawSubject,
		native.AttrIssuer:          c.RawIssuer,
		native.AttrSerialNumber:    c.SerialNumber.Bytes(),
		native.AttrLabel:           subjectSummary(c),
	}
	if h := publicKeyHash(c.PublicKey); h != nil {
		attrs[native.AttrPublicKeyHash] = h
	}
	return attrs
}

func (s *Service) certificateRef(c *certificate) native.Ref {
	return s.alloc(native.KindCertificate, c)
}

func (s *Service) certOf(ref native.Ref) (*certificate, bool) {
	return valueOf[*certificate](s, ref, native.KindCertificate)
}

func (s *Service) CertificateCreateWithData(der []byte) native.Ref {
	c, ok := parseCertificate(der)
	if !ok {
		return native.NullRef
	}
	return s.certificateRef(c)
}

func (s *Service) CertificateCopyData(ref native.Ref) []byte {
	c, ok := s.certOf(ref)
	if !ok {
		return nil
	}
	return append([]byte(nil), c.cert.Raw...)
}

func (s *Service) CertificateCopySubjectSummary(ref native.Ref) string {
	c, ok := s.certOf(ref)
	if !ok {
		return ""
	}
	return subjectSummary(c.cert)
}

func (s *Service) CertificateCopyCommonName(ref native.Ref) (string, native.Status) {
	c, ok := s.certOf(ref)
	if !ok {
		return "", native.ErrSecParam
	}
	return c.cert.Subject.CommonName, native.ErrSecSuccess
}

func (s *Service) CertificateCopyEmailAddresses(ref native.Ref) ([]string, native.Status) {
	c, ok := s.certOf(ref)
	if !ok {
		return nil, native.ErrSecParam
	}
	return append([]string(nil), c.cert.EmailAddresses...), native.ErrSecSuccess
}

func (s *Service) CertificateCopySerialNumberData(ref native.Ref) ([]byte, native.Status) {
	c, ok := s.certOf(ref)
	if !ok {
		return nil, native.ErrSecParam
	}
	return c.cert.SerialNumber.Bytes(), native.ErrSecSuccess
}

func (s *Service) CertificateCopyKey(ref native.Ref) native.Ref {
	c, ok := s.certOf(ref)
	if !ok {
		return native.NullRef
	}
	k, ok := publicKeyFrom(c.cert.PublicKey)
	if !ok {
		return native.NullRef
	}
	return s.keyRef(k)
}

func (s *Service) identityOf(ref native.Ref) (*identity, bool) {
	return valueOf[*identity](s, ref, native.KindIdentity)
}

func (s *Service) IdentityCreateWithCertificate(searchList []native.Ref, certRef native.Ref) (native.Ref, native.Status) {
	c, ok := s.certOf(certRef)
	if !ok {
		return native.NullRef, native.ErrSecParam
	}
	stores, status := s.searchStores(searchList)
	if status != native.ErrSecSuccess {
		return native.NullRef, status
	}
	for _, st := range stores {
		k, status := s.privateKeyFor(st, c.cert)
		if status == native.ErrSecItemNotFound {
			continue
		}
		if status != native.ErrSecSuccess {
			return native.NullRef, status
		}
		return s.alloc(native.KindIdentity, &identity{cert: c, key: k}), native.ErrSecSuccess
	}
	return native.NullRef, native.ErrSecItemNotFound
}

func (s *Service) IdentityCopyCertificate(ref native.Ref) (native.Ref, native.Status) {
	id, ok := s.identityOf(ref)
	if !ok {
		return native.NullRef, native.ErrSecParam
	}
	return s.certificateRef(id.cert), native.ErrSecSuccess
}

func (s *Service) IdentityCopyPrivateKey(ref native.Ref) (native.Ref, native.Status) {
	id, ok := s.identityOf(ref)
	if !ok {
		return native.NullRef, native.ErrSecParam
	}
	return s.keyRef(id.key), native.ErrSecSuccess
}

// privateKeyFor loads the private key stored in st whose public half matches
// the certificate.
func (s *Service) privateKeyFor(st *store, c *x509.Certificate) (*key, native.Status) {
	hash := publicKeyHash(c.PublicKey)
	if hash == nil {
		return nil, native.ErrSecItemNotFound
	}
	recs, err := st.loadClass(native.ClassKey)
	if err != nil {
		return nil, statusFor(err)
	}
	for _, r := range recs {
		if !valuesEqual(r.attrs[native.AttrKeyClass], native.KeyClassPrivate) {
			continue
		}
		if !valuesEqual(r.attrs[native.AttrApplicationLabel], hash) {
			continue
		}
		return keyFromRecord(r)
	}
	return nil, native.ErrSecItemNotFound
}
