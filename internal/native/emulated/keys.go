package emulated

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"

	"github.com/benaskins/secframe/internal/native"
)

type key struct {
	class   string
	keyType string
	bits    int
	priv    crypto.Signer
	pub     crypto.PublicKey
	sym     []byte
	label   string
	tag     []byte
	origin  *itemRef
}

func (s *Service) keyRef(k *key) native.Ref {
	return s.alloc(native.KindKey, k)
}

func (s *Service) keyOf(ref native.Ref) (*key, bool) {
	return valueOf[*key](s, ref, native.KindKey)
}

func publicKeyBytes(pub any) ([]byte, bool) {
	switch pub := pub.(type) {
	case *rsa.PublicKey:
		return x509.MarshalPKCS1PublicKey(pub), true
	case *ecdsa.PublicKey:
		b, err := pub.Bytes()
		return b, err == nil
	}
	return nil, false
}

func publicKeyFrom(pub any) (*key, bool) {
	switch pub := pub.(type) {
	case *rsa.PublicKey:
		return &key{class: native.KeyClassPublic, keyType: native.KeyTypeRSA, bits: pub.N.BitLen(), pub: pub}, true
	case *ecdsa.PublicKey:
		return &key{class: native.KeyClassPublic, keyType: native.KeyTypeECSECPrimeRandom, bits: pub.Curve.Params().BitSize, pub: pub}, true
	}
	return nil, false
}

func privateKeyFrom(signer any) (*key, bool) {
	switch priv := signer.(type) {
	case *rsa.PrivateKey:
		return &key{class: native.KeyClassPrivate, keyType: native.KeyTypeRSA, bits: priv.N.BitLen(), priv: priv, pub: &priv.PublicKey}, true
	case *ecdsa.PrivateKey:
		return &key{class: native.KeyClassPrivate, keyType: native.KeyTypeECSECPrimeRandom, bits: priv.Curve.Params().BitSize, priv: priv, pub: &priv.PublicKey}, true
	}
	return nil, false
}

func curveForBits(bits int) (elliptic.Curve, bool) {
	switch bits {
	case 256:
		return elliptic.P256(), true
	case 384:
		return elliptic.P384(), true
	case 521:
		return elliptic.P521(), true
	}
	return nil, false
}

func curveForPointSize(coord int) (elliptic.Curve, bool) {
	switch coord {
	case 32:
		return elliptic.P256(), true
	case 48:
		return elliptic.P384(), true
	case 66:
		return elliptic.P521(), true
	}
	return nil, false
}

// externalRepresentation encodes keys the way the native service exports
// them: PKCS#1 for RSA, X9.63 points for EC and raw bytes for symmetric keys.
func (k *key) externalRepresentation() ([]byte, native.Status) {
	switch {
	case k.sym != nil:
		return append([]byte(nil), k.sym...), native.ErrSecSuccess
	case k.priv != nil:
		switch priv := k.priv.(type) {
		case *rsa.PrivateKey:
			return x509.MarshalPKCS1PrivateKey(priv), native.ErrSecSuccess
		case *ecdsa.PrivateKey:
			pub, err := priv.PublicKey.Bytes()
			if err != nil {
				return nil, native.ErrSecInvalidData
			}
			d, err := priv.Bytes()
			if err != nil {
				return nil, native.ErrSecInvalidData
			}
			return append(pub, d...), native.ErrSecSuccess
		}
	case k.pub != nil:
		if b, ok := publicKeyBytes(k.pub); ok {
			return b, native.ErrSecSuccess
		}
	}
	return nil, native.ErrSecUnimplemented
}

func keyFromExternal(data []byte, class, keyType string) (*key, native.Status) {
	switch keyType {
	case native.KeyTypeAES:
		if class != native.KeyClassSymmetric {
			return nil, native.ErrSecParam
		}
		switch len(data) {
		case 16, 24, 32:
		default:
			return nil, native.ErrSecParam
		}
		return &key{class: class, keyType: keyType, bits: len(data) * 8, sym: append([]byte(nil), data...)}, native.ErrSecSuccess

	case native.KeyTypeRSA:
		if class == native.KeyClassPrivate {
			priv, err := x509.ParsePKCS1PrivateKey(data)
			if err != nil {
				return nil, native.ErrSecDecode
			}
			k, _ := privateKeyFrom(priv)
			return k, native.ErrSecSuccess
		}
		pub, err := x509.ParsePKCS1PublicKey(data)
		if err != nil {
			return nil, native.ErrSecDecode
		}
		k, _ := publicKeyFrom(pub)
		return k, native.ErrSecSuccess

	case native.KeyTypeECSECPrimeRandom:
		if len(data) == 0 || data[0] != 4 {
			return nil, native.ErrSecDecode
		}
		if class == native.KeyClassPrivate {
			if (len(data)-1)%3 != 0 {
				return nil, native.ErrSecDecode
			}
			n := (len(data) - 1) / 3
			curve, ok := curveForPointSize(n)
			if !ok {
				return nil, native.ErrSecDecode
			}
			priv, err := ecdsa.ParseRawPrivateKey(curve, data[1+2*n:])
			if err != nil {
				return nil, native.ErrSecDecode
			}
			k, _ := privateKeyFrom(priv)
			return k, native.ErrSecSuccess
		}
		if (len(data)-1)%2 != 0 {
			return nil, native.ErrSecDecode
		}
		curve, ok := curveForPointSize((len(data) - 1) / 2)
		if !ok {
			return nil, native.ErrSecDecode
		}
		pub, err := ecdsa.ParseUncompressedPublicKey(curve, data)
		if err != nil {
			return nil, native.ErrSecDecode
		}
		k, _ := publicKeyFrom(pub)
		return k, native.ErrSecSuccess
	}
	return nil, native.ErrSecParam
}

func (k *key) attributes() native.Dict {
	attrs := native.Dict{
		native.AttrKeyClass:      k.class,
		native.AttrKeyType:       k.keyType,
		native.AttrKeySizeInBits: int64(k.bits),
		native.AttrIsPermanent:   k.origin != nil,
		native.AttrCanSign:       k.priv != nil,
		native.AttrCanDecrypt:    k.priv != nil || k.sym != nil,
	}
	if h := publicKeyHash(k.pub); h != nil {
		attrs[native.AttrApplicationLabel] = h
	}
	if k.label != "" {
		attrs[native.AttrLabel] = k.label
	}
	if k.tag != nil {
		attrs[native.AttrApplicationTag] = k.tag
	}
	return attrs
}

// storedForm returns the payload persisted for a key item.
func (k *key) storedForm() ([]byte, error) {
	if k.sym != nil {
		return k.sym, nil
	}
	if k.priv != nil {
		return x509.MarshalPKCS8PrivateKey(k.priv)
	}
	return x509.MarshalPKIXPublicKey(k.pub)
}

func keyFromRecord(r *record) (*key, native.Status) {
	data, err := r.plaintext()
	if err != nil {
		return nil, statusFor(err)
	}
	class, _ := stringValue(r.attrs[native.AttrKeyClass])
	var k *key
	switch class {
	case native.KeyClassSymmetric:
		k = &key{class: class, keyType: native.KeyTypeAES, bits: len(data) * 8, sym: data}
	case native.KeyClassPrivate:
		priv, err := x509.ParsePKCS8PrivateKey(data)
		if err != nil {
			return nil, native.ErrSecDecode
		}
		var ok bool
		if k, ok = privateKeyFrom(priv); !ok {
			return nil, native.ErrSecUnimplemented
		}
	default:
		pub, err := x509.ParsePKIXPublicKey(data)
		if err != nil {
			return nil, native.ErrSecDecode
		}
		var ok bool
		if k, ok = publicKeyFrom(pub); !ok {
			return nil, native.ErrSecUnimplemented
		}
	}
	k.label, _ = stringValue(r.attrs[native.AttrLabel])
	if tag, ok := r.attrs[native.AttrApplicationTag].([]byte); ok {
		k.tag = tag
	}
	k.origin = r.ref()
	return k, native.ErrSecSuccess
}

func (s *Service) KeyCreateRandomKey(params native.Dict) (native.Ref, native.Status) {
	keyType, _ := stringValue(params[native.AttrKeyType])
	bits64, _ := intValue(params[native.AttrKeySizeInBits])
	bits := int(bits64)

	var k *key
	switch keyType {
	case native.KeyTypeRSA:
		if bits == 0 {
			bits = 2048
		}
		if bits < 1024 || bits > 8192 {
			return native.NullRef, native.ErrSecParam
		}
		priv, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			return native.NullRef, native.ErrSecAllocate
		}
		k, _ = privateKeyFrom(priv)
	case native.KeyTypeECSECPrimeRandom:
		if bits == 0 {
			bits = 256
		}
		curve, ok := curveForBits(bits)
		if !ok {
			return native.NullRef, native.ErrSecParam
		}
		priv, err := ecdsa.GenerateKey(curve, rand.Reader)
		if err != nil {
			return native.NullRef, native.ErrSecAllocate
		}
		k, _ = privateKeyFrom(priv)
	case native.KeyTypeAES:
		if bits == 0 {
			bits = 256
		}
		if bits != 128 && bits != 192 && bits != 256 {
			return native.NullRef, native.ErrSecParam
		}
		sym := make([]byte, bits/8)
		if _, err := rand.Read(sym); err != nil {
			return native.NullRef, native.ErrSecAllocate
		}
		k = &key{class: native.KeyClassSymmetric, keyType: keyType, bits: bits, sym: sym}
	default:
		return native.NullRef, native.ErrSecParam
	}

	k.label, _ = stringValue(params[native.AttrLabel])
	if tag, ok := params[native.AttrApplicationTag].([]byte); ok {
		k.tag = tag
	}

	if boolValue(params[native.AttrIsPermanent]) {
		if status := s.persistKey(k, params[native.KeyUseKeychain]); status != native.ErrSecSuccess {
			return native.NullRef, status
		}
	}
	return s.keyRef(k), native.ErrSecSuccess
}

func (s *Service) persistKey(k *key, target native.Value) native.Status {
	st, status := s.targetStore(target)
	if status != native.ErrSecSuccess {
		return status
	}
	data, err := k.storedForm()
	if err != nil {
		return native.ErrSecInvalidData
	}
	r, status := s.insertUnique(st, native.ClassKey, k.attributes(), data)
	if status != native.ErrSecSuccess {
		return status
	}
	k.origin = r.ref()
	return native.ErrSecSuccess
}

func (s *Service) KeyCreateWithData(data []byte, attrs native.Dict) (native.Ref, native.Status) {
	class, ok := stringValue(attrs[native.AttrKeyClass])
	if !ok {
		return native.NullRef, native.ErrSecParam
	}
	keyType, ok := stringValue(attrs[native.AttrKeyType])
	if !ok {
		return native.NullRef, native.ErrSecParam
	}
	k, status := keyFromExternal(data, class, keyType)
	if status != native.ErrSecSuccess {
		return native.NullRef, status
	}
	if bits, ok := intValue(attrs[native.AttrKeySizeInBits]); ok && bits != 0 && int(bits) != k.bits {
		return native.NullRef, native.ErrSecParam
	}
	k.label, _ = stringValue(attrs[native.AttrLabel])
	return s.keyRef(k), native.ErrSecSuccess
}

func (s *Service) KeyCopyPublicKey(ref native.Ref) native.Ref {
	k, ok := s.keyOf(ref)
	if !ok || k.pub == nil {
		return native.NullRef
	}
	pub, ok := publicKeyFrom(k.pub)
	if !ok {
		return native.NullRef
	}
	return s.keyRef(pub)
}

func (s *Service) KeyCopyExternalRepresentation(ref native.Ref) ([]byte, native.Status) {
	k, ok := s.keyOf(ref)
	if !ok {
		return nil, native.ErrSecParam
	}
	return k.externalRepresentation()
}

func (s *Service) KeyCopyAttributes(ref native.Ref) native.Dict {
	k, ok := s.keyOf(ref)
	if !ok {
		return nil
	}
	return k.attributes()
}

type signatureAlgorithm struct {
	keyType string
	hash    crypto.Hash
	pss     bool
	message bool
}

var signatureAlgorithms = map[native.KeyAlgorithm]signatureAlgorithm{
	native.AlgorithmRSASignatureDigestPKCS1v15SHA256:  {native.KeyTypeRSA, crypto.SHA256, false, false},
	native.AlgorithmRSASignatureDigestPKCS1v15SHA384:  {native.KeyTypeRSA, crypto.SHA384, false, false},
	native.AlgorithmRSASignatureDigestPKCS1v15SHA512:  {native.KeyTypeRSA, crypto.SHA512, false, false},
	native.AlgorithmRSASignatureDigestPSSSHA256:       {native.KeyTypeRSA, crypto.SHA256, true, false},
	native.AlgorithmRSASignatureDigestPSSSHA384:       {native.KeyTypeRSA, crypto.SHA384, true, false},
	native.AlgorithmRSASignatureDigestPSSSHA512:       {native.KeyTypeRSA, crypto.SHA512, true, false},
	native.AlgorithmRSASignatureMessagePKCS1v15SHA256: {native.KeyTypeRSA, crypto.SHA256, false, true},
	native.AlgorithmECDSASignatureDigestX962SHA256:    {native.KeyTypeECSECPrimeRandom, crypto.SHA256, false, false},
	native.AlgorithmECDSASignatureDigestX962SHA384:    {native.KeyTypeECSECPrimeRandom, crypto.SHA384, false, false},
	native.AlgorithmECDSASignatureDigestX962SHA512:    {native.KeyTypeECSECPrimeRandom, crypto.SHA512, false, false},
	native.AlgorithmECDSASignatureMessageX962SHA256:   {native.KeyTypeECSECPrimeRandom, crypto.SHA256, false, true},
}

func (a signatureAlgorithm) digest(data []byte) ([]byte, native.Status) {
	if a.message {
		h := a.hash.New()
		h.Write(data)
		return h.Sum(nil), native.ErrSecSuccess
	}
	if len(data) != a.hash.Size() {
		return nil, native.ErrSecParam
	}
	return data, native.ErrSecSuccess
}

func (s *Service) KeyCreateSignature(ref native.Ref, algorithm native.KeyAlgorithm, data []byte) ([]byte, native.Status) {
	k, ok := s.keyOf(ref)
	if !ok {
		return nil, native.ErrSecParam
	}
	alg, ok := signatureAlgorithms[algorithm]
	if !ok || alg.keyType != k.keyType || k.priv == nil {
		return nil, native.ErrSecParam
	}
	digest, status := alg.digest(data)
	if status != native.ErrSecSuccess {
		return nil, status
	}
	return signDigest(k.priv, alg.hash, alg.pss, digest)
}

func signDigest(signer crypto.Signer, hash crypto.Hash, pss bool, digest []byte) ([]byte, native.Status) {
	var (
		sig []byte
		err error
	)
	switch priv := signer.(type) {
	case *rsa.PrivateKey:
		if pss {
			sig, err = rsa.SignPSS(rand.Reader, priv, hash, digest, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
		} else {
			sig, err = rsa.SignPKCS1v15(rand.Reader, priv, hash, digest)
		}
	case *ecdsa.PrivateKey:
		sig, err = ecdsa.SignASN1(rand.Reader, priv, digest)
	default:
		return nil, native.ErrSecUnimplemented
	}
	if err != nil {
		return nil, native.ErrSecParam
	}
	return sig, native.ErrSecSuccess
}

func (s *Service) KeyVerifySignature(ref native.Ref, algorithm native.KeyAlgorithm, data, signature []byte) native.Status {
	k, ok := s.keyOf(ref)
	if !ok {
		return native.ErrSecParam
	}
	alg, ok := signatureAlgorithms[algorithm]
	if !ok || alg.keyType != k.keyType || k.pub == nil {
		return native.ErrSecParam
	}
	digest, status := alg.digest(data)
	if status != native.ErrSecSuccess {
		return status
	}
	if err := verifyDigest(k.pub, alg.hash, alg.pss, digest, signature); err != nil {
		return native.ErrSecVerifyFailed
	}
	return native.ErrSecSuccess
}

func verifyDigest(pub crypto.PublicKey, hash crypto.Hash, pss bool, digest, signature []byte) error {
	switch pub := pub.(type) {
	case *rsa.PublicKey:
		if pss {
			return rsa.VerifyPSS(pub, hash, digest, signature, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
		}
		return rsa.VerifyPKCS1v15(pub, hash, digest, signature)
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(pub, digest, signature) {
			return errors.New("ecdsa: verification error")
		}
		return nil
	}
	return errors.New("unsupported public key")
}
