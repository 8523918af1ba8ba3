package certs

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benaskins/secframe/internal/keychain"
	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/native/emulated"
	"github.com/benaskins/secframe/internal/pkitest"
	"github.com/benaskins/secframe/internal/status"
)

func newService(t *testing.T) *emulated.Service {
	t.Helper()
	svc := emulated.New(emulated.WithRoot(t.TempDir()), emulated.WithKDFIterations(1000))
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestCertificateAccessors(t *testing.T) {
	svc := newService(t)
	ca := pkitest.NewAuthority(t, "Test Root")
	leaf := ca.Issue(t, "mail.example.com", pkitest.WithEmail("ops@example.com"))

	cert, err := CertificateFromDER(svc, leaf.DER)
	require.NoError(t, err)
	defer cert.Close()

	assert.Equal(t, leaf.DER, cert.DER())
	assert.Equal(t, "mail.example.com", cert.SubjectSummary())

	cn, err := cert.CommonName()
	require.NoError(t, err)
	assert.Equal(t, "mail.example.com", cn)

	emails, err := cert.EmailAddresses()
	require.NoError(t, err)
	assert.Equal(t, []string{"ops@example.com"}, emails)

	serial, err := cert.SerialNumber()
	require.NoError(t, err)
	assert.Equal(t, 0, serial.Cmp(leaf.Cert.SerialNumber))

	parsed, err := cert.X509()
	require.NoError(t, err)
	assert.True(t, parsed.Equal(leaf.Cert))

	pub, err := cert.PublicKey()
	require.NoError(t, err)
	defer pub.Close()
	assert.Equal(t, KeyTypeEC, pub.Type())
	assert.Equal(t, KeyClassPublic, pub.Class())
	assert.True(t, leaf.Key.PublicKey.Equal(pub.Public()))
}

func TestCertificateFromDERRejectsGarbage(t *testing.T) {
	svc := newService(t)
	_, err := CertificateFromDER(svc, []byte("not a certificate"))
	if !errors.Is(err, status.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}

func TestCloseRestoresRetainCount(t *testing.T) {
	svc := newService(t)
	ca := pkitest.NewAuthority(t, "Test Root")

	cert, err := CertificateFromDER(svc, ca.DER)
	require.NoError(t, err)
	ref := cert.Handle().Ref()
	before := svc.RetainCount(ref)

	clone := cert.Clone()
	assert.Equal(t, before+1, svc.RetainCount(ref))
	require.NoError(t, clone.Close())
	require.NoError(t, clone.Close())
	assert.Equal(t, before, svc.RetainCount(ref))

	require.NoError(t, cert.Close())
	assert.Equal(t, 0, svc.Objects())
}

func TestIdentityWithCertificate(t *testing.T) {
	svc := newService(t)
	kc, err := keychain.Create(svc, filepath.Join(t.TempDir(), "id.keychain-db"), []byte("pw"))
	require.NoError(t, err)
	defer kc.Close()

	ca := pkitest.NewAuthority(t, "Test Root")
	leaf := ca.Issue(t, "client.example.com", pkitest.ClientAuth())
	imported, st := svc.ItemImport(leaf.Bundle(t), "pem", native.ImportParams{Keychain: kc.Handle().Ref()})
	require.NoError(t, status.Translate(svc, st))
	svc.ReleaseValue(imported)

	cert, err := CertificateFromDER(svc, leaf.DER)
	require.NoError(t, err)
	defer cert.Close()

	id, err := IdentityWithCertificate([]*keychain.Keychain{kc}, cert)
	require.NoError(t, err)
	defer id.Close()

	idCert, err := id.Certificate()
	require.NoError(t, err)
	defer idCert.Close()
	assert.Equal(t, leaf.DER, idCert.DER())

	priv, err := id.PrivateKey()
	require.NoError(t, err)
	defer priv.Close()
	assert.Equal(t, KeyClassPrivate, priv.Class())

	digest := sha256.Sum256([]byte("signed by the keychain"))
	sig, err := priv.Sign(nil, digest[:], crypto.SHA256)
	require.NoError(t, err)
	assert.True(t, ecdsa.VerifyASN1(&leaf.Key.PublicKey, digest[:], sig))
}

func TestIdentityWithCertificateMissingKey(t *testing.T) {
	svc := newService(t)
	kc, err := keychain.Create(svc, filepath.Join(t.TempDir(), "empty.keychain-db"), []byte("pw"))
	require.NoError(t, err)
	defer kc.Close()

	ca := pkitest.NewAuthority(t, "Test Root")
	cert, err := CertificateFromDER(svc, ca.DER)
	require.NoError(t, err)
	defer cert.Close()

	_, err = IdentityWithCertificate([]*keychain.Keychain{kc}, cert)
	if !errors.Is(err, status.ErrItemNotFound) {
		t.Fatalf("err = %v, want ErrItemNotFound", err)
	}
}

func TestKeySignVerify(t *testing.T) {
	payload := []byte("payload")
	sum256 := sha256.Sum256(payload)
	sum384 := sha512.Sum384(payload)

	tests := []struct {
		name   string
		opts   KeyOptions
		alg    native.KeyAlgorithm
		digest []byte
	}{
		{"ec p256", KeyOptions{Type: KeyTypeEC, Bits: 256}, native.AlgorithmECDSASignatureDigestX962SHA256, sum256[:]},
		{"ec p384", KeyOptions{Type: KeyTypeEC, Bits: 384}, native.AlgorithmECDSASignatureDigestX962SHA384, sum384[:]},
		{"rsa pkcs1", KeyOptions{Type: KeyTypeRSA, Bits: 2048}, native.AlgorithmRSASignatureDigestPKCS1v15SHA256, sum256[:]},
		{"rsa pss", KeyOptions{Type: KeyTypeRSA, Bits: 2048}, native.AlgorithmRSASignatureDigestPSSSHA256, sum256[:]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(t)
			priv, err := GenerateKey(svc, tt.opts)
			require.NoError(t, err)
			defer priv.Close()
			assert.Equal(t, tt.opts.Bits, priv.Bits())

			pub, err := priv.PublicKey()
			require.NoError(t, err)
			defer pub.Close()

			sig, err := priv.CreateSignature(tt.alg, tt.digest)
			require.NoError(t, err)
			require.NoError(t, pub.VerifySignature(tt.alg, tt.digest, sig))

			sig[len(sig)-1] ^= 0xff
			assert.Error(t, pub.VerifySignature(tt.alg, tt.digest, sig))
		})
	}
}

func TestKeyIsCryptoSigner(t *testing.T) {
	svc := newService(t)
	priv, err := GenerateKey(svc, KeyOptions{Type: KeyTypeRSA, Bits: 2048})
	require.NoError(t, err)
	defer priv.Close()

	var signer crypto.Signer = priv
	rsaPub, ok := signer.Public().(*rsa.PublicKey)
	require.True(t, ok, "Public() = %T", signer.Public())

	digest := sha256.Sum256([]byte("tls transcript"))
	pss := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}
	sig, err := signer.Sign(nil, digest[:], pss)
	require.NoError(t, err)
	assert.NoError(t, rsa.VerifyPSS(rsaPub, crypto.SHA256, digest[:], sig, pss))

	sig, err = signer.Sign(nil, digest[:], crypto.SHA256)
	require.NoError(t, err)
	assert.NoError(t, rsa.VerifyPKCS1v15(rsaPub, crypto.SHA256, digest[:], sig))

	_, err = signer.Sign(nil, digest[:], crypto.MD5)
	assert.Error(t, err)
}

func TestKeyExternalRepresentationRoundTrip(t *testing.T) {
	svc := newService(t)
	priv, err := GenerateKey(svc, KeyOptions{Type: KeyTypeEC, Bits: 256})
	require.NoError(t, err)
	defer priv.Close()

	data, err := priv.ExternalRepresentation()
	require.NoError(t, err)

	restored, err := KeyFromData(svc, data, KeyOptions{Type: KeyTypeEC, Class: KeyClassPrivate})
	require.NoError(t, err)
	defer restored.Close()

	again, err := restored.ExternalRepresentation()
	require.NoError(t, err)
	assert.Equal(t, data, again)
	assert.True(t, priv.Public().(*ecdsa.PublicKey).Equal(restored.Public()))
}

func TestSymmetricKeyHasNoPublicHalf(t *testing.T) {
	svc := newService(t)
	aes, err := GenerateKey(svc, KeyOptions{Type: KeyTypeAES, Bits: 256})
	require.NoError(t, err)
	defer aes.Close()

	assert.Equal(t, KeyClassSymmetric, aes.Class())
	assert.Nil(t, aes.Public())
	_, err = aes.PublicKey()
	assert.True(t, errors.Is(err, status.ErrParam))
	_, err = aes.Sign(nil, make([]byte, 32), crypto.SHA256)
	assert.Error(t, err)
}

func TestPolicyProperties(t *testing.T) {
	svc := newService(t)

	ssl := NewSSLPolicy(svc, ServerPolicy, "example.com")
	defer ssl.Close()
	assert.Equal(t, PolicyProperties{OID: native.PolicyOidAppleSSL, Hostname: "example.com"}, ssl.Properties())

	client := NewSSLPolicy(svc, ClientPolicy, "")
	defer client.Close()
	assert.True(t, client.Properties().Client)

	basic := NewBasicX509Policy(svc)
	defer basic.Close()
	assert.Equal(t, native.PolicyOidAppleX509Basic, basic.Properties().OID)

	rev := NewRevocationPolicy(svc, native.RevocationUseAnyAvailableMethod)
	defer rev.Close()
	assert.Equal(t, native.PolicyOidAppleRevocation, rev.Properties().OID)
}

func TestAccessControl(t *testing.T) {
	svc := newService(t)

	ac, err := NewAccessControl(svc, native.AccessibleWhenUnlocked, native.AccessControlUserPresence)
	require.NoError(t, err)
	require.NoError(t, ac.Close())

	_, err = NewAccessControl(svc, "bogus", 0)
	assert.True(t, errors.Is(err, status.ErrParam))

	a, err := NewAccess(svc, "secframe", []string{"/usr/bin/true"})
	require.NoError(t, err)
	require.NoError(t, a.Close())
	assert.Equal(t, 0, svc.Objects())
}
