package emulated

import (
	"bytes"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"sync"

	"github.com/benaskins/secframe/internal/native"
)

type transformKind int

const (
	transformDigest transformKind = iota
	transformEncrypt
	transformDecrypt
	transformSign
	transformVerify
)

type transform struct {
	mu        sync.Mutex
	kind      transformKind
	key       native.Ref
	signature []byte
	attrs     native.Dict
	executed  bool
}

func (t *transform) release(s *Service) {
	if t.key != native.NullRef {
		s.Release(t.key)
	}
}

func (s *Service) newTransform(kind transformKind, keyRef native.Ref, attrs native.Dict) (native.Ref, native.Status) {
	if !s.HasCapability(native.CapabilityTransforms) {
		return native.NullRef, native.ErrSecUnimplemented
	}
	t := &transform{kind: kind, attrs: attrs}
	if kind != transformDigest {
		if _, ok := s.keyOf(keyRef); !ok {
			return native.NullRef, native.ErrSecParam
		}
		t.key = s.Retain(keyRef)
	}
	return s.alloc(native.KindTransform, t), native.ErrSecSuccess
}

func (s *Service) DigestTransformCreate(digestType string, length int) (native.Ref, native.Status) {
	if _, status := digestFor(digestType, length); status != native.ErrSecSuccess {
		return native.NullRef, status
	}
	return s.newTransform(transformDigest, native.NullRef, native.Dict{
		native.TransformDigestType:   digestType,
		native.TransformDigestLength: int64(length),
	})
}

func (s *Service) EncryptTransformCreate(keyRef native.Ref) (native.Ref, native.Status) {
	return s.newTransform(transformEncrypt, keyRef, native.Dict{})
}

func (s *Service) DecryptTransformCreate(keyRef native.Ref) (native.Ref, native.Status) {
	return s.newTransform(transformDecrypt, keyRef, native.Dict{})
}

func (s *Service) SignTransformCreate(keyRef native.Ref) (native.Ref, native.Status) {
	return s.newTransform(transformSign, keyRef, native.Dict{})
}

func (s *Service) VerifyTransformCreate(keyRef native.Ref, signature []byte) (native.Ref, native.Status) {
	ref, status := s.newTransform(transformVerify, keyRef, native.Dict{})
	if status == native.ErrSecSuccess {
		t, _ := valueOf[*transform](s, ref, native.KindTransform)
		t.signature = append([]byte(nil), signature...)
	}
	return ref, status
}

func (s *Service) TransformSetAttribute(ref native.Ref, name native.Key, value native.Value) native.Status {
	t, ok := valueOf[*transform](s, ref, native.KindTransform)
	if !ok {
		return native.ErrSecParam
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.executed {
		return native.ErrSecBadReq
	}
	switch v := value.(type) {
	case native.Ref:
		// Key valued attributes are captured by value so the transform does
		// not outlive the caller's reference.
		k, ok := s.keyOf(v)
		if !ok || k.sym == nil {
			return native.ErrSecParam
		}
		t.attrs[name] = append([]byte(nil), k.sym...)
	case []byte:
		t.attrs[name] = append([]byte(nil), v...)
	default:
		t.attrs[name] = normalize(value)
	}
	return native.ErrSecSuccess
}

func (s *Service) TransformExecute(ref native.Ref) (native.Value, native.Status) {
	t, ok := valueOf[*transform](s, ref, native.KindTransform)
	if !ok {
		return nil, native.ErrSecParam
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.executed {
		return nil, native.ErrSecBadReq
	}
	t.executed = true

	input, ok := t.attrs[native.TransformInput].([]byte)
	if !ok {
		return nil, native.ErrSecParam
	}

	var k *key
	if t.key != native.NullRef {
		k, _ = s.keyOf(t.key)
	}

	switch t.kind {
	case transformDigest:
		return t.digest(input)
	case transformEncrypt:
		return t.encrypt(k, input)
	case transformDecrypt:
		return t.decrypt(k, input)
	case transformSign:
		return t.sign(k, input)
	case transformVerify:
		return t.verify(k, input)
	}
	return nil, native.ErrSecUnimplemented
}

// digestFor resolves a digest type and length. A zero length selects the
// default for the family.
func digestFor(digestType string, length int) (crypto.Hash, native.Status) {
	switch digestType {
	case native.DigestSHA1, native.DigestHMACSHA1:
		if length != 0 && length != 160 {
			return 0, native.ErrSecParam
		}
		return crypto.SHA1, native.ErrSecSuccess
	case native.DigestMD5, native.DigestHMACMD5:
		if length != 0 && length != 128 {
			return 0, native.ErrSecParam
		}
		return crypto.MD5, native.ErrSecSuccess
	case native.DigestSHA2, native.DigestHMACSHA2:
		switch length {
		case 224:
			return crypto.SHA224, native.ErrSecSuccess
		case 0, 256:
			return crypto.SHA256, native.ErrSecSuccess
		case 384:
			return crypto.SHA384, native.ErrSecSuccess
		case 512:
			return crypto.SHA512, native.ErrSecSuccess
		}
		return 0, native.ErrSecParam
	}
	return 0, native.ErrSecParam
}

func newHash(h crypto.Hash) func() hash.Hash {
	switch h {
	case crypto.SHA1:
		return sha1.New
	case crypto.MD5:
		return md5.New
	case crypto.SHA224:
		return sha256.New224
	case crypto.SHA256:
		return sha256.New
	case crypto.SHA384:
		return sha512.New384
	case crypto.SHA512:
		return sha512.New
	}
	return nil
}

func isHMAC(digestType string) bool {
	switch digestType {
	case native.DigestHMACSHA1, native.DigestHMACSHA2, native.DigestHMACMD5:
		return true
	}
	return false
}

// hashSetting reads the digest attributes, falling back to SHA-1.
func (t *transform) hashSetting() (string, crypto.Hash, native.Status) {
	digestType, ok := stringValue(t.attrs[native.TransformDigestType])
	if !ok {
		digestType = native.DigestSHA1
	}
	length, _ := intValue(t.attrs[native.TransformDigestLength])
	h, status := digestFor(digestType, int(length))
	return digestType, h, status
}

func (t *transform) digest(input []byte) (native.Value, native.Status) {
	digestType, h, status := t.hashSetting()
	if status != native.ErrSecSuccess {
		return nil, status
	}
	var w hash.Hash
	if isHMAC(digestType) {
		secret, ok := t.attrs[native.TransformHMACKey].([]byte)
		if !ok {
			return nil, native.ErrSecParam
		}
		w = hmac.New(newHash(h), secret)
	} else {
		w = newHash(h)()
	}
	w.Write(input)
	return w.Sum(nil), native.ErrSecSuccess
}

func (t *transform) blockSettings() (mode, padding string, iv []byte) {
	mode, ok := stringValue(t.attrs[native.TransformEncryptionMode])
	if !ok {
		mode = native.ModeCBC
	}
	padding, ok = stringValue(t.attrs[native.TransformPadding])
	if !ok {
		padding = native.PaddingPKCS7
	}
	iv, _ = t.attrs[native.TransformIV].([]byte)
	return mode, padding, iv
}

func (t *transform) encrypt(k *key, input []byte) (native.Value, native.Status) {
	if k == nil {
		return nil, native.ErrSecParam
	}
	if k.sym != nil {
		mode, padding, iv := t.blockSettings()
		return cryptBlock(k.sym, mode, padding, iv, input, true)
	}
	pub, ok := k.pub.(*rsa.PublicKey)
	if !ok {
		return nil, native.ErrSecUnimplemented
	}
	padding, _ := stringValue(t.attrs[native.TransformPadding])
	switch padding {
	case native.PaddingOAEP:
		label, _ := t.attrs[native.TransformOAEPParameters].([]byte)
		out, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, input, label)
		if err != nil {
			return nil, native.ErrSecParam
		}
		return out, native.ErrSecSuccess
	case "", native.PaddingPKCS1:
		out, err := rsa.EncryptPKCS1v15(rand.Reader, pub, input)
		if err != nil {
			return nil, native.ErrSecParam
		}
		return out, native.ErrSecSuccess
	}
	return nil, native.ErrSecParam
}

func (t *transform) decrypt(k *key, input []byte) (native.Value, native.Status) {
	if k == nil {
		return nil, native.ErrSecParam
	}
	if k.sym != nil {
		mode, padding, iv := t.blockSettings()
		return cryptBlock(k.sym, mode, padding, iv, input, false)
	}
	priv, ok := k.priv.(*rsa.PrivateKey)
	if !ok {
		return nil, native.ErrSecUnimplemented
	}
	padding, _ := stringValue(t.attrs[native.TransformPadding])
	switch padding {
	case native.PaddingOAEP:
		label, _ := t.attrs[native.TransformOAEPParameters].([]byte)
		out, err := rsa.DecryptOAEP(sha1.New(), nil, priv, input, label)
		if err != nil {
			return nil, native.ErrSecDecode
		}
		return out, native.ErrSecSuccess
	case "", native.PaddingPKCS1:
		out, err := rsa.DecryptPKCS1v15(nil, priv, input)
		if err != nil {
			return nil, native.ErrSecDecode
		}
		return out, native.ErrSecSuccess
	}
	return nil, native.ErrSecParam
}

func cryptBlock(secret []byte, mode, padding string, iv, input []byte, encrypt bool) (native.Value, native.Status) {
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, native.ErrSecParam
	}
	bs := block.BlockSize()
	if iv == nil {
		iv = make([]byte, bs)
	}
	if len(iv) != bs {
		return nil, native.ErrSecParam
	}

	switch mode {
	case native.ModeCFB, native.ModeOFB:
		var stream cipher.Stream
		switch {
		case mode == native.ModeOFB:
			stream = cipher.NewOFB(block, iv)
		case encrypt:
			stream = cipher.NewCFBEncrypter(block, iv)
		default:
			stream = cipher.NewCFBDecrypter(block, iv)
		}
		out := make([]byte, len(input))
		stream.XORKeyStream(out, input)
		return out, native.ErrSecSuccess
	case native.ModeCBC, native.ModeECB, native.ModeNone:
	default:
		return nil, native.ErrSecParam
	}

	pad := padding == native.PaddingPKCS7
	data := input
	if encrypt && pad {
		data = pkcs7Pad(input, bs)
	}
	if len(data)%bs != 0 {
		return nil, native.ErrSecParam
	}

	out := make([]byte, len(data))
	switch {
	case mode == native.ModeCBC && encrypt:
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	case mode == native.ModeCBC:
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	default:
		for i := 0; i < len(data); i += bs {
			if encrypt {
				block.Encrypt(out[i:i+bs], data[i:i+bs])
			} else {
				block.Decrypt(out[i:i+bs], data[i:i+bs])
			}
		}
	}
	if !encrypt && pad {
		unpadded, ok := pkcs7Unpad(out, bs)
		if !ok {
			return nil, native.ErrSecDecode
		}
		out = unpadded
	}
	return out, native.ErrSecSuccess
}

func pkcs7Pad(data []byte, bs int) []byte {
	n := bs - len(data)%bs
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, bs int) ([]byte, bool) {
	if len(data) == 0 || len(data)%bs != 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > bs || n > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}

// signingInput turns the transform input into what the key signs, according
// to InputIs.
func (t *transform) signingInput(input []byte) (crypto.Hash, []byte, native.Status) {
	_, h, status := t.hashSetting()
	if status != native.ErrSecSuccess {
		return 0, nil, status
	}
	inputIs, ok := stringValue(t.attrs[native.TransformInputIs])
	if !ok {
		inputIs = native.InputIsPlainText
	}
	switch inputIs {
	case native.InputIsPlainText:
		w := newHash(h)()
		w.Write(input)
		return h, w.Sum(nil), native.ErrSecSuccess
	case native.InputIsDigest:
		if len(input) != h.Size() {
			return 0, nil, native.ErrSecParam
		}
		return h, input, native.ErrSecSuccess
	case native.InputIsRaw:
		return 0, input, native.ErrSecSuccess
	}
	return 0, nil, native.ErrSecParam
}

func (t *transform) sign(k *key, input []byte) (native.Value, native.Status) {
	if k == nil || k.priv == nil {
		return nil, native.ErrSecParam
	}
	h, digest, status := t.signingInput(input)
	if status != native.ErrSecSuccess {
		return nil, status
	}
	switch priv := k.priv.(type) {
	case *rsa.PrivateKey:
		sig, err := rsa.SignPKCS1v15(nil, priv, h, digest)
		if err != nil {
			return nil, native.ErrSecParam
		}
		return sig, native.ErrSecSuccess
	case *ecdsa.PrivateKey:
		sig, err := ecdsa.SignASN1(rand.Reader, priv, digest)
		if err != nil {
			return nil, native.ErrSecParam
		}
		return sig, native.ErrSecSuccess
	}
	return nil, native.ErrSecUnimplemented
}

// verify reports a mismatching signature as a false result rather than an
// error.
func (t *transform) verify(k *key, input []byte) (native.Value, native.Status) {
	if k == nil || k.pub == nil {
		return nil, native.ErrSecParam
	}
	h, digest, status := t.signingInput(input)
	if status != native.ErrSecSuccess {
		return nil, status
	}
	switch pub := k.pub.(type) {
	case *rsa.PublicKey:
		return rsa.VerifyPKCS1v15(pub, h, digest, t.signature) == nil, native.ErrSecSuccess
	case *ecdsa.PublicKey:
		return ecdsa.VerifyASN1(pub, digest, t.signature), native.ErrSecSuccess
	}
	return nil, native.ErrSecUnimplemented
}
