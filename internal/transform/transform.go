// Package transform drives the single-shot digest, cipher and signature
// transforms. Transforms are an optional platform capability; check
// Available before relying on them.
package transform

import (
	"fmt"
	"log/slog"

	"github.com/benaskins/secframe/internal/certs"
	"github.com/benaskins/secframe/internal/cf"
	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/platform"
	"github.com/benaskins/secframe/internal/status"
)

// ErrUnsupported is returned by every constructor when the platform has no
// transform support.
var ErrUnsupported = fmt.Errorf("transforms are not available on this platform: %w", status.ErrUnimplemented)

// Available reports whether svc provides transforms.
func Available(svc native.Service) bool {
	return platform.CapabilitiesOf(svc).Transforms
}

// DigestType names a digest family. The length picks the member, zero
// selects the family default.
type DigestType string

const (
	SHA1 DigestType = native.DigestSHA1
	SHA2 DigestType = native.DigestSHA2
	MD5  DigestType = native.DigestMD5
)

func (d DigestType) hmac() string {
	switch d {
	case SHA1:
		return native.DigestHMACSHA1
	case MD5:
		return native.DigestHMACMD5
	}
	return native.DigestHMACSHA2
}

// Option sets one transform attribute before execution.
type Option struct {
	key   native.Key
	value native.Value
}

// Padding is one of the native.Padding values.
func Padding(p string) Option { return Option{native.TransformPadding, p} }

// Mode is one of the native.Mode values.
func Mode(m string) Option { return Option{native.TransformEncryptionMode, m} }

func IV(iv []byte) Option { return Option{native.TransformIV, iv} }

// InputIs says whether signing input is plain text, a digest or raw data.
func InputIs(s string) Option { return Option{native.TransformInputIs, s} }

func OAEPParameters(label []byte) Option { return Option{native.TransformOAEPParameters, label} }

func OAEPMGF1Digest(d DigestType) Option { return Option{native.TransformOAEPMGF1Digest, string(d)} }

// SignatureDigest selects the digest a sign or verify transform hashes
// plain text input with.
func SignatureDigest(d DigestType) Option { return Option{native.TransformDigestType, string(d)} }

func DigestLength(n int) Option { return Option{native.TransformDigestLength, int64(n)} }

type kind int

const (
	kindDigest kind = iota
	kindEncrypt
	kindDecrypt
	kindSign
	kindVerify
)

// Transform is one configured transform. It can be executed once.
type Transform struct {
	h    *cf.Handle
	kind kind
	opts []Option
}

func create(svc native.Service, k kind, fn func() (native.Ref, native.Status), opts []Option) (*Transform, error) {
	if !Available(svc) {
		return nil, ErrUnsupported
	}
	ref, st := fn()
	if err := status.Translate(svc, st); err != nil {
		return nil, err
	}
	return &Transform{h: cf.WrapOwning(svc, ref), kind: k, opts: opts}, nil
}

// NewDigest hashes the input.
func NewDigest(svc native.Service, d DigestType, length int, opts ...Option) (*Transform, error) {
	return create(svc, kindDigest, func() (native.Ref, native.Status) {
		return svc.DigestTransformCreate(string(d), length)
	}, opts)
}

// NewHMAC computes an HMAC keyed by a symmetric key.
func NewHMAC(d DigestType, length int, key *certs.Key, opts ...Option) (*Transform, error) {
	svc := key.Handle().Service()
	opts = append([]Option{{native.TransformHMACKey, key.Handle().Ref()}}, opts...)
	return create(svc, kindDigest, func() (native.Ref, native.Status) {
		return svc.DigestTransformCreate(d.hmac(), length)
	}, opts)
}

func NewEncrypt(key *certs.Key, opts ...Option) (*Transform, error) {
	svc := key.Handle().Service()
	return create(svc, kindEncrypt, func() (native.Ref, native.Status) {
		return svc.EncryptTransformCreate(key.Handle().Ref())
	}, opts)
}

func NewDecrypt(key *certs.Key, opts ...Option) (*Transform, error) {
	svc := key.Handle().Service()
	return create(svc, kindDecrypt, func() (native.Ref, native.Status) {
		return svc.DecryptTransformCreate(key.Handle().Ref())
	}, opts)
}

func NewSign(key *certs.Key, opts ...Option) (*Transform, error) {
	svc := key.Handle().Service()
	return create(svc, kindSign, func() (native.Ref, native.Status) {
		return svc.SignTransformCreate(key.Handle().Ref())
	}, opts)
}

func NewVerify(key *certs.Key, signature []byte, opts ...Option) (*Transform, error) {
	svc := key.Handle().Service()
	return create(svc, kindVerify, func() (native.Ref, native.Status) {
		return svc.VerifyTransformCreate(key.Handle().Ref(), signature)
	}, opts)
}

func (t *Transform) Handle() *cf.Handle { return t.h }
func (t *Transform) Close() error       { return t.h.Close() }

func (t *Transform) svc() native.Service { return t.h.Service() }

// Set adds an option after construction.
func (t *Transform) Set(o Option) { t.opts = append(t.opts, o) }

// Execute applies the options, feeds input and runs the transform. Option
// failures are returned as the service reported them and the transform does
// not run. A second call fails with ErrBadReq.
func (t *Transform) Execute(input []byte) ([]byte, error) {
	v, err := t.execute(input)
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case []byte:
		return v, nil
	case bool:
		if v {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	}
	return nil, fmt.Errorf("transform returned %T: %w", v, status.ErrDecode)
}

// ExecuteVerify runs a verify transform and reports whether the signature
// matched.
func (t *Transform) ExecuteVerify(input []byte) (bool, error) {
	if t.kind != kindVerify {
		return false, fmt.Errorf("not a verify transform: %w", status.ErrParam)
	}
	out, err := t.Execute(input)
	if err != nil {
		return false, err
	}
	return len(out) == 1 && out[0] == 1, nil
}

func (t *Transform) execute(input []byte) (native.Value, error) {
	svc := t.svc()
	for _, o := range t.opts {
		if err := status.Translate(svc, svc.TransformSetAttribute(t.h.Ref(), o.key, o.value)); err != nil {
			slog.Debug("transform attribute rejected", "component", "transform", "attribute", o.key, "error", err)
			return nil, err
		}
	}
	t.opts = nil
	if err := status.Translate(svc, svc.TransformSetAttribute(t.h.Ref(), native.TransformInput, input)); err != nil {
		return nil, err
	}
	v, st := svc.TransformExecute(t.h.Ref())
	if err := status.Translate(svc, st); err != nil {
		return nil, err
	}
	return v, nil
}
