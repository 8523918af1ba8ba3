package certs

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"io"

	"github.com/benaskins/secframe/internal/cf"
	"github.com/benaskins/secframe/internal/keychain"
	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/status"
)

// KeyType is the algorithm family of a key.
type KeyType string

const (
	KeyTypeRSA KeyType = native.KeyTypeRSA
	KeyTypeEC  KeyType = native.KeyTypeECSECPrimeRandom
	KeyTypeAES KeyType = native.KeyTypeAES
)

func (t KeyType) String() string {
	switch t {
	case KeyTypeRSA:
		return "rsa"
	case KeyTypeEC:
		return "ec"
	case KeyTypeAES:
		return "aes"
	}
	return "unknown(" + string(t) + ")"
}

// KeyClass says whether a key is the public or private half of a pair, or
// a symmetric key.
type KeyClass string

const (
	KeyClassPublic    KeyClass = native.KeyClassPublic
	KeyClassPrivate   KeyClass = native.KeyClassPrivate
	KeyClassSymmetric KeyClass = native.KeyClassSymmetric
)

// KeyOptions describe a key to generate or import.
type KeyOptions struct {
	Type  KeyType
	Class KeyClass // KeyFromData only
	Bits  int
	Label string
	Tag   []byte
	// Permanent stores a generated key in Keychain, or in the default
	// keychain when Keychain is nil.
	Permanent bool
	Keychain  *keychain.Keychain
}

func (o KeyOptions) dict() native.Dict {
	d := native.Dict{native.AttrKeyType: string(o.Type)}
	if o.Bits > 0 {
		d[native.AttrKeySizeInBits] = int64(o.Bits)
	}
	if o.Label != "" {
		d[native.AttrLabel] = o.Label
	}
	if o.Tag != nil {
		d[native.AttrApplicationTag] = o.Tag
	}
	return d
}

// Key is a cryptographic key held by the security service. Private keys
// implement crypto.Signer so they can back a tls.Certificate.
type Key struct {
	h *cf.Handle
}

var _ crypto.Signer = (*Key)(nil)

func WrapKey(h *cf.Handle) *Key {
	return &Key{h: cf.Expect(h, native.KindKey)}
}

// GenerateKey creates a random key. RSA and EC keys are generated as pairs
// and the private half is returned.
func GenerateKey(svc native.Service, opts KeyOptions) (*Key, error) {
	d := opts.dict()
	if opts.Permanent {
		d[native.AttrIsPermanent] = true
		if opts.Keychain != nil {
			d[native.KeyUseKeychain] = opts.Keychain.Handle().Ref()
		}
	}
	ref, st := svc.KeyCreateRandomKey(d)
	if err := status.Translate(svc, st); err != nil {
		return nil, fmt.Errorf("generating %s key: %w", opts.Type, err)
	}
	return &Key{h: cf.WrapOwning(svc, ref)}, nil
}

// KeyFromData restores a key from its external representation.
func KeyFromData(svc native.Service, data []byte, opts KeyOptions) (*Key, error) {
	d := opts.dict()
	d[native.AttrKeyClass] = string(opts.Class)
	ref, st := svc.KeyCreateWithData(data, d)
	if err := status.Translate(svc, st); err != nil {
		return nil, fmt.Errorf("decoding %s key: %w", opts.Type, err)
	}
	return &Key{h: cf.WrapOwning(svc, ref)}, nil
}

func (k *Key) Handle() *cf.Handle { return k.h }
func (k *Key) Close() error       { return k.h.Close() }
func (k *Key) Clone() *Key        { return &Key{h: k.h.Clone()} }

func (k *Key) svc() native.Service { return k.h.Service() }

// Attributes returns the key's attribute dictionary.
func (k *Key) Attributes() native.Dict {
	return k.svc().KeyCopyAttributes(k.h.Ref())
}

func (k *Key) Type() KeyType {
	t, _ := k.Attributes()[native.AttrKeyType].(string)
	return KeyType(t)
}

func (k *Key) Class() KeyClass {
	c, _ := k.Attributes()[native.AttrKeyClass].(string)
	return KeyClass(c)
}

func (k *Key) Bits() int {
	n, _ := k.Attributes()[native.AttrKeySizeInBits].(int64)
	return int(n)
}

// PublicKey returns the public half of an asymmetric key.
func (k *Key) PublicKey() (*Key, error) {
	ref := k.svc().KeyCopyPublicKey(k.h.Ref())
	if ref == native.NullRef {
		return nil, fmt.Errorf("%s key has no public half: %w", k.Type(), status.ErrParam)
	}
	return &Key{h: cf.WrapOwning(k.svc(), ref)}, nil
}

// ExternalRepresentation exports the key: PKCS#1 for RSA, an X9.63 point
// (followed by the scalar for private keys) for EC and raw bytes for AES.
func (k *Key) ExternalRepresentation() ([]byte, error) {
	data, st := k.svc().KeyCopyExternalRepresentation(k.h.Ref())
	if err := status.Translate(k.svc(), st); err != nil {
		return nil, err
	}
	return data, nil
}

func (k *Key) CreateSignature(alg native.KeyAlgorithm, data []byte) ([]byte, error) {
	sig, st := k.svc().KeyCreateSignature(k.h.Ref(), alg, data)
	if err := status.Translate(k.svc(), st); err != nil {
		return nil, fmt.Errorf("signing with %s: %w", alg, err)
	}
	return sig, nil
}

// VerifySignature returns nil when signature is valid for data.
func (k *Key) VerifySignature(alg native.KeyAlgorithm, data, signature []byte) error {
	return status.Translate(k.svc(), k.svc().KeyVerifySignature(k.h.Ref(), alg, data, signature))
}

// Public decodes the public half into a crypto/rsa or crypto/ecdsa key. It
// returns nil when the key is symmetric or cannot be exported.
func (k *Key) Public() crypto.PublicKey {
	pub, err := k.goPublicKey()
	if err != nil {
		return nil
	}
	return pub
}

func (k *Key) goPublicKey() (crypto.PublicKey, error) {
	pk := k
	if k.Class() != KeyClassPublic {
		var err error
		if pk, err = k.PublicKey(); err != nil {
			return nil, err
		}
		defer pk.Close()
	}
	data, err := pk.ExternalRepresentation()
	if err != nil {
		return nil, err
	}
	switch pk.Type() {
	case KeyTypeRSA:
		return x509.ParsePKCS1PublicKey(data)
	case KeyTypeEC:
		curve, err := curveFor(pk.Bits())
		if err != nil {
			return nil, err
		}
		return ecdsa.ParseUncompressedPublicKey(curve, data)
	}
	return nil, fmt.Errorf("%s key has no public half: %w", pk.Type(), status.ErrParam)
}

func curveFor(bits int) (elliptic.Curve, error) {
	switch bits {
	case 256:
		return elliptic.P256(), nil
	case 384:
		return elliptic.P384(), nil
	case 521:
		return elliptic.P521(), nil
	}
	return nil, fmt.Errorf("unsupported curve size %d", bits)
}

var errUnsupportedHash = errors.New("unsupported signature hash")

// Sign signs a digest. The algorithm is chosen from the key type, the hash
// in opts and whether opts asks for PSS.
func (k *Key) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	alg, err := signatureAlgorithm(k.Type(), opts)
	if err != nil {
		return nil, err
	}
	return k.CreateSignature(alg, digest)
}

func signatureAlgorithm(t KeyType, opts crypto.SignerOpts) (native.KeyAlgorithm, error) {
	_, pss := opts.(*rsa.PSSOptions)
	hash := opts.HashFunc()
	switch {
	case t == KeyTypeRSA && pss:
		switch hash {
		case crypto.SHA256:
			return native.AlgorithmRSASignatureDigestPSSSHA256, nil
		case crypto.SHA384:
			return native.AlgorithmRSASignatureDigestPSSSHA384, nil
		case crypto.SHA512:
			return native.AlgorithmRSASignatureDigestPSSSHA512, nil
		}
	case t == KeyTypeRSA:
		switch hash {
		case crypto.SHA256:
			return native.AlgorithmRSASignatureDigestPKCS1v15SHA256, nil
		case crypto.SHA384:
			return native.AlgorithmRSASignatureDigestPKCS1v15SHA384, nil
		case crypto.SHA512:
			return native.AlgorithmRSASignatureDigestPKCS1v15SHA512, nil
		}
	case t == KeyTypeEC:
		switch hash {
		case crypto.SHA256:
			return native.AlgorithmECDSASignatureDigestX962SHA256, nil
		case crypto.SHA384:
			return native.AlgorithmECDSASignatureDigestX962SHA384, nil
		case crypto.SHA512:
			return native.AlgorithmECDSASignatureDigestX962SHA512, nil
		}
	default:
		return "", fmt.Errorf("%s keys cannot sign: %w", t, status.ErrParam)
	}
	return "", fmt.Errorf("%w: %v", errUnsupportedHash, hash)
}
