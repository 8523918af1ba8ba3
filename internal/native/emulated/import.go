package emulated

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pkcs12"

	"github.com/benaskins/secframe/internal/native"
)

// decoded is the format independent result of parsing an import bundle.
type decoded struct {
	certs []*certificate
	keys  []*key
	// labels and keyIDs are keyed by the certificate's public key hash.
	labels map[string]string
	keyIDs map[string][]byte
}

func newDecoded() *decoded {
	return &decoded{labels: make(map[string]string), keyIDs: make(map[string][]byte)}
}

func formatOf(data []byte, hint string) string {
	ext := strings.ToLower(hint)
	if strings.Contains(ext, ".") {
		ext = filepath.Ext(ext)
	}
	ext = strings.TrimPrefix(ext, ".")
	switch ext {
	case "cer", "crt", "der":
		if bytes.HasPrefix(bytes.TrimSpace(data), []byte("-----BEGIN")) {
			return "pem"
		}
		return "der"
	case "pem", "key":
		return "pem"
	case "p12", "pfx":
		return "p12"
	case "":
		if bytes.Contains(data, []byte("-----BEGIN")) {
			return "pem"
		}
		return "der"
	}
	return ""
}

func parsePrivateKey(der []byte) (*key, bool) {
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return privateKeyFrom(k)
	}
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return privateKeyFrom(k)
	}
	if k, err := x509.ParseECPrivateKey(der); err == nil {
		return privateKeyFrom(k)
	}
	return nil, false
}

func (d *decoded) addBlocks(blocks []*pem.Block) native.Status {
	for _, b := range blocks {
		switch b.Type {
		case "CERTIFICATE":
			c, ok := parseCertificate(b.Bytes)
			if !ok {
				return native.ErrSecDecode
			}
			d.certs = append(d.certs, c)
			hash := hex.EncodeToString(publicKeyHash(c.cert.PublicKey))
			if name := b.Headers["friendlyName"]; name != "" {
				d.labels[hash] = name
			}
			if id := b.Headers["localKeyId"]; id != "" {
				if raw, err := hex.DecodeString(id); err == nil {
					d.keyIDs[hash] = raw
				}
			}
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			k, ok := parsePrivateKey(b.Bytes)
			if !ok {
				return native.ErrSecDecode
			}
			d.keys = append(d.keys, k)
		case "PUBLIC KEY":
			pub, err := x509.ParsePKIXPublicKey(b.Bytes)
			if err != nil {
				return native.ErrSecDecode
			}
			k, ok := publicKeyFrom(pub)
			if !ok {
				return native.ErrSecUnknownFormat
			}
			d.keys = append(d.keys, k)
		}
	}
	return native.ErrSecSuccess
}

func decodePEM(data []byte) []*pem.Block {
	var blocks []*pem.Block
	for {
		var b *pem.Block
		b, data = pem.Decode(data)
		if b == nil {
			return blocks
		}
		blocks = append(blocks, b)
	}
}

func decodeBundle(data []byte, hint, passphrase string) (*decoded, native.Status) {
	d := newDecoded()
	switch formatOf(data, hint) {
	case "der":
		c, ok := parseCertificate(data)
		if !ok {
			return nil, native.ErrSecUnknownFormat
		}
		d.certs = append(d.certs, c)
	case "pem":
		if status := d.addBlocks(decodePEM(data)); status != native.ErrSecSuccess {
			return nil, status
		}
	case "p12":
		blocks, err := pkcs12.ToPEM(data, passphrase)
		if err != nil {
			return nil, pkcs12Status(err)
		}
		if status := d.addBlocks(blocks); status != native.ErrSecSuccess {
			return nil, status
		}
	default:
		return nil, native.ErrSecUnknownFormat
	}
	if len(d.certs) == 0 && len(d.keys) == 0 {
		return nil, native.ErrSecUnknownFormat
	}
	return d, native.ErrSecSuccess
}

func pkcs12Status(err error) native.Status {
	switch {
	case errors.Is(err, pkcs12.ErrIncorrectPassword):
		return native.ErrSecAuthFailed
	case errors.Is(err, pkcs12.ErrDecryption):
		return native.ErrSecPkcs12VerifyFailure
	}
	return native.ErrSecDecode
}

// pair matches private keys with the certificates carrying their public half.
// Unpaired certificates and keys are returned separately.
func (d *decoded) pair() (ids []*identity, certs []*certificate, keys []*key) {
	used := make(map[*key]bool)
	for _, c := range d.certs {
		var match *key
		for _, k := range d.keys {
			if used[k] || k.priv == nil {
				continue
			}
			if publicKeysEqual(k.pub, c.cert.PublicKey) {
				match = k
				break
			}
		}
		if match == nil {
			certs = append(certs, c)
			continue
		}
		used[match] = true
		match.label = d.labels[hex.EncodeToString(publicKeyHash(c.cert.PublicKey))]
		ids = append(ids, &identity{cert: c, key: match})
	}
	for _, k := range d.keys {
		if !used[k] {
			keys = append(keys, k)
		}
	}
	return ids, certs, keys
}

func publicKeysEqual(a, b crypto.PublicKey) bool {
	eq, ok := a.(interface{ Equal(crypto.PublicKey) bool })
	return ok && eq.Equal(b)
}

func (s *Service) ItemImport(data []byte, hint string, params native.ImportParams) (native.Value, native.Status) {
	if len(data) == 0 {
		return nil, native.ErrSecParam
	}
	d, status := decodeBundle(data, hint, params.Passphrase)
	if status != native.ErrSecSuccess {
		return nil, status
	}
	ids, certs, keys := d.pair()

	var st *store
	if params.Keychain != native.NullRef {
		st, status = s.storeOf(params.Keychain)
		if status != native.ErrSecSuccess {
			return nil, status
		}
	}

	out := make([]native.Value, 0, len(ids)+len(certs)+len(keys))
	for _, id := range ids {
		if st != nil {
			if status := s.persistImported(st, id.cert, id.key); status != native.ErrSecSuccess {
				s.ReleaseValue(out)
				return nil, status
			}
		}
		out = append(out, s.alloc(native.KindIdentity, id))
	}
	for _, c := range certs {
		if st != nil {
			if status := s.persistImported(st, c, nil); status != native.ErrSecSuccess {
				s.ReleaseValue(out)
				return nil, status
			}
		}
		out = append(out, s.certificateRef(c))
	}
	for _, k := range keys {
		if st != nil {
			if status := s.persistImported(st, nil, k); status != native.ErrSecSuccess {
				s.ReleaseValue(out)
				return nil, status
			}
		}
		out = append(out, s.keyRef(k))
	}
	s.logger.Debug("items imported", "identities", len(ids), "certificates", len(certs), "keys", len(keys))
	return out, native.ErrSecSuccess
}

// persistImported stores imported items. Items already present in the
// keychain are left alone.
func (s *Service) persistImported(st *store, c *certificate, k *key) native.Status {
	if c != nil {
		if _, status := s.addCertificate(st, c, native.Dict{}); status != native.ErrSecSuccess && status != native.ErrSecDuplicateItem {
			return status
		}
	}
	if k != nil {
		extra := native.Dict{}
		if k.label != "" {
			extra[native.AttrLabel] = k.label
		}
		if _, status := s.addKey(st, k, extra); status != native.ErrSecSuccess && status != native.ErrSecDuplicateItem {
			return status
		}
	}
	return native.ErrSecSuccess
}

func (s *Service) PKCS12Import(data []byte, passphrase string) (native.Value, native.Status) {
	if len(data) == 0 {
		return nil, native.ErrSecParam
	}
	d, status := decodeBundle(data, "p12", passphrase)
	if status != native.ErrSecSuccess {
		return nil, status
	}
	ids, certs, _ := d.pair()
	if len(ids) == 0 {
		return []native.Value{}, native.ErrSecSuccess
	}

	out := make([]native.Value, 0, len(ids))
	for _, id := range ids {
		hash := hex.EncodeToString(publicKeyHash(id.cert.cert.PublicKey))
		item := native.Dict{
			native.ImportItemIdentity: s.alloc(native.KindIdentity, id),
		}
		if label := d.labels[hash]; label != "" {
			item[native.ImportItemLabel] = label
		}
		if keyID := d.keyIDs[hash]; keyID != nil {
			item[native.ImportItemKeyID] = keyID
		}

		chain := []native.Value{s.certificateRef(id.cert)}
		chainRefs := []native.Ref{chain[0].(native.Ref)}
		for _, c := range certs {
			ref := s.certificateRef(c)
			chain = append(chain, ref)
			chainRefs = append(chainRefs, ref)
		}
		item[native.ImportItemCertChain] = chain

		basic := s.PolicyCreateBasicX509()
		if t, status := s.TrustCreateWithCertificates(chainRefs, []native.Ref{basic}); status == native.ErrSecSuccess {
			item[native.ImportItemTrust] = t
		}
		s.Release(basic)
		out = append(out, item)
	}
	return out, native.ErrSecSuccess
}
