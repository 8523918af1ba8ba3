package transform

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benaskins/secframe/internal/certs"
	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/native/emulated"
	"github.com/benaskins/secframe/internal/status"
)

func newService(t *testing.T, opts ...emulated.Option) *emulated.Service {
	t.Helper()
	opts = append([]emulated.Option{emulated.WithRoot(t.TempDir())}, opts...)
	svc := emulated.New(opts...)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestDigestVectors(t *testing.T) {
	tests := []struct {
		digest DigestType
		length int
		want   string
	}{
		{SHA2, 256, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{SHA2, 0, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{SHA1, 0, "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{MD5, 128, "900150983cd24fb0d6963f7d28e17f72"},
	}
	svc := newService(t)
	for _, tt := range tests {
		tr, err := NewDigest(svc, tt.digest, tt.length)
		require.NoError(t, err)
		out, err := tr.Execute([]byte("abc"))
		require.NoError(t, err)
		if got := hex.EncodeToString(out); got != tt.want {
			t.Errorf("%s/%d(abc) = %s, want %s", tt.digest, tt.length, got, tt.want)
		}
		tr.Close()
	}
}

func TestDigestBadLength(t *testing.T) {
	svc := newService(t)
	_, err := NewDigest(svc, SHA2, 100)
	assert.True(t, errors.Is(err, status.ErrParam), "err = %v", err)
}

func TestExecuteIsSingleShot(t *testing.T) {
	svc := newService(t)
	tr, err := NewDigest(svc, SHA2, 256)
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.Execute([]byte("once"))
	require.NoError(t, err)
	_, err = tr.Execute([]byte("twice"))
	assert.True(t, errors.Is(err, status.ErrBadReq), "err = %v", err)
}

func TestHMAC(t *testing.T) {
	svc := newService(t)
	secret := bytes.Repeat([]byte{0x42}, 32)
	key, err := certs.KeyFromData(svc, secret, certs.KeyOptions{Type: certs.KeyTypeAES, Class: certs.KeyClassSymmetric})
	require.NoError(t, err)
	defer key.Close()

	tr, err := NewHMAC(SHA2, 256, key)
	require.NoError(t, err)
	defer tr.Close()
	got, err := tr.Execute([]byte("message"))
	require.NoError(t, err)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("message"))
	assert.Equal(t, mac.Sum(nil), got)
}

func TestHMACRejectsAsymmetricKey(t *testing.T) {
	svc := newService(t)
	key, err := certs.GenerateKey(svc, certs.KeyOptions{Type: certs.KeyTypeEC, Bits: 256})
	require.NoError(t, err)
	defer key.Close()

	tr, err := NewHMAC(SHA2, 256, key)
	require.NoError(t, err)
	defer tr.Close()
	_, err = tr.Execute([]byte("message"))
	assert.True(t, errors.Is(err, status.ErrParam), "err = %v", err)
}

func TestAESRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"cbc pkcs7", []Option{IV(make([]byte, 16))}},
		{"cfb", []Option{Mode(native.ModeCFB), IV(bytes.Repeat([]byte{1}, 16))}},
		{"ecb", []Option{Mode(native.ModeECB)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(t)
			key, err := certs.GenerateKey(svc, certs.KeyOptions{Type: certs.KeyTypeAES, Bits: 256})
			require.NoError(t, err)
			defer key.Close()

			plain := []byte("attack at dawn, bring snacks")
			enc, err := NewEncrypt(key, tt.opts...)
			require.NoError(t, err)
			defer enc.Close()
			sealed, err := enc.Execute(plain)
			require.NoError(t, err)
			assert.NotEqual(t, plain, sealed)

			dec, err := NewDecrypt(key, tt.opts...)
			require.NoError(t, err)
			defer dec.Close()
			opened, err := dec.Execute(sealed)
			require.NoError(t, err)
			assert.Equal(t, plain, opened)
		})
	}
}

func TestRSAOAEPRoundTrip(t *testing.T) {
	svc := newService(t)
	priv, err := certs.GenerateKey(svc, certs.KeyOptions{Type: certs.KeyTypeRSA, Bits: 2048})
	require.NoError(t, err)
	defer priv.Close()
	pub, err := priv.PublicKey()
	require.NoError(t, err)
	defer pub.Close()

	opts := []Option{Padding(native.PaddingOAEP), OAEPParameters([]byte("label"))}
	enc, err := NewEncrypt(pub, opts...)
	require.NoError(t, err)
	defer enc.Close()
	sealed, err := enc.Execute([]byte("secret"))
	require.NoError(t, err)

	dec, err := NewDecrypt(priv, opts...)
	require.NoError(t, err)
	defer dec.Close()
	opened, err := dec.Execute(sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(opened))
}

func TestSignVerify(t *testing.T) {
	svc := newService(t)
	priv, err := certs.GenerateKey(svc, certs.KeyOptions{Type: certs.KeyTypeEC, Bits: 256})
	require.NoError(t, err)
	defer priv.Close()
	pub, err := priv.PublicKey()
	require.NoError(t, err)
	defer pub.Close()

	digestOpts := []Option{SignatureDigest(SHA2), DigestLength(256)}
	signer, err := NewSign(priv, digestOpts...)
	require.NoError(t, err)
	defer signer.Close()
	sig, err := signer.Execute([]byte("document"))
	require.NoError(t, err)

	verifier, err := NewVerify(pub, sig, digestOpts...)
	require.NoError(t, err)
	defer verifier.Close()
	ok, err := verifier.ExecuteVerify([]byte("document"))
	require.NoError(t, err)
	assert.True(t, ok)

	tampered, err := NewVerify(pub, sig, digestOpts...)
	require.NoError(t, err)
	defer tampered.Close()
	ok, err = tampered.ExecuteVerify([]byte("forged document"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = signer.ExecuteVerify(nil)
	assert.True(t, errors.Is(err, status.ErrParam))
}

func TestUnavailable(t *testing.T) {
	svc := newService(t, emulated.WithoutCapability(native.CapabilityTransforms))
	assert.False(t, Available(svc))

	_, err := NewDigest(svc, SHA2, 256)
	assert.True(t, errors.Is(err, ErrUnsupported))
	assert.True(t, errors.Is(err, status.ErrUnimplemented))
}
