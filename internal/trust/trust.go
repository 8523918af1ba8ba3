// Package trust evaluates certificate chains against policies and manages
// per-domain trust settings.
package trust

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/benaskins/secframe/internal/certs"
	"github.com/benaskins/secframe/internal/cf"
	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/status"
)

// Result is the outcome of an evaluation.
type Result uint32

const (
	Invalid                 = Result(native.TrustResultInvalid)
	Proceed                 = Result(native.TrustResultProceed)
	Deny                    = Result(native.TrustResultDeny)
	Unspecified             = Result(native.TrustResultUnspecified)
	RecoverableTrustFailure = Result(native.TrustResultRecoverableTrustFailure)
	FatalTrustFailure       = Result(native.TrustResultFatalTrustFailure)
	OtherError              = Result(native.TrustResultOtherError)
)

// resultOf maps a raw result code. The set of codes is closed, so anything
// else means the service and this package disagree.
func resultOf(raw uint32) Result {
	switch r := Result(raw); r {
	case Invalid, Proceed, Deny, Unspecified, RecoverableTrustFailure, FatalTrustFailure, OtherError:
		return r
	}
	panic(fmt.Sprintf("trust: unknown evaluation result %d", raw))
}

// Success reports whether the chain may be used: either the user explicitly
// trusts it or it chains to a trusted anchor.
func (r Result) Success() bool {
	return r == Proceed || r == Unspecified
}

func (r Result) String() string {
	switch r {
	case Invalid:
		return "invalid"
	case Proceed:
		return "proceed"
	case Deny:
		return "deny"
	case Unspecified:
		return "unspecified"
	case RecoverableTrustFailure:
		return "recoverable trust failure"
	case FatalTrustFailure:
		return "fatal trust failure"
	case OtherError:
		return "other error"
	}
	return fmt.Sprintf("Result(%d)", uint32(r))
}

// Trust is one evaluation of a certificate chain. It is not safe for
// concurrent use until it has been evaluated.
type Trust struct {
	h *cf.Handle
}

func Wrap(h *cf.Handle) *Trust {
	return &Trust{h: cf.Expect(h, native.KindTrust)}
}

// New prepares an evaluation of chain, leaf first.
func New(chain []*certs.Certificate, policies ...*certs.Policy) (*Trust, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("creating trust: no certificates: %w", status.ErrParam)
	}
	svc := chain[0].Handle().Service()
	ref, st := svc.TrustCreateWithCertificates(certs.Refs(chain), certs.PolicyRefs(policies))
	if err := status.Translate(svc, st); err != nil {
		return nil, fmt.Errorf("creating trust: %w", err)
	}
	return &Trust{h: cf.WrapOwning(svc, ref)}, nil
}

func (t *Trust) Handle() *cf.Handle { return t.h }
func (t *Trust) Close() error       { return t.h.Close() }

func (t *Trust) svc() native.Service { return t.h.Service() }

func (t *Trust) translate(st native.Status) error { return status.Translate(t.svc(), st) }

// SetAnchors replaces the anchor certificates and restricts evaluation to
// them. An empty list restores the system anchors.
func (t *Trust) SetAnchors(anchors []*certs.Certificate) error {
	return t.translate(t.svc().TrustSetAnchorCertificates(t.h.Ref(), certs.Refs(anchors)))
}

// SetAnchorsOnly controls whether the system anchors are consulted in
// addition to those passed to SetAnchors.
func (t *Trust) SetAnchorsOnly(only bool) error {
	return t.translate(t.svc().TrustSetAnchorCertificatesOnly(t.h.Ref(), only))
}

func (t *Trust) SetPolicy(policies ...*certs.Policy) error {
	return t.translate(t.svc().TrustSetPolicies(t.h.Ref(), certs.PolicyRefs(policies)))
}

// SetVerifyDate evaluates validity periods at date instead of now.
func (t *Trust) SetVerifyDate(date time.Time) error {
	return t.translate(t.svc().TrustSetVerifyDate(t.h.Ref(), date))
}

func (t *Trust) SetNetworkFetchAllowed(allowed bool) error {
	return t.translate(t.svc().TrustSetNetworkFetchAllowed(t.h.Ref(), allowed))
}

// Evaluate builds and checks the chain.
func (t *Trust) Evaluate() (Result, error) {
	raw, st := t.svc().TrustEvaluate(t.h.Ref())
	if err := t.translate(st); err != nil {
		return Invalid, fmt.Errorf("evaluating trust: %w", err)
	}
	return resultOf(raw), nil
}

// EvaluateWithError returns nil when the chain is trusted and otherwise an
// error describing why it is not.
func (t *Trust) EvaluateWithError() error {
	ok, st := t.svc().TrustEvaluateWithError(t.h.Ref())
	if ok {
		return nil
	}
	if st == native.ErrSecSuccess {
		st = native.ErrSecNotTrusted
	}
	err := t.translate(st)
	slog.Debug("certificate chain not trusted", "component", "trust", "error", err)
	return err
}

// CertificateCount is the length of the evaluated chain, or of the input
// before evaluation.
func (t *Trust) CertificateCount() int {
	return t.svc().TrustGetCertificateCount(t.h.Ref())
}

// CertificateAt returns the certificate at index i, leaf first.
func (t *Trust) CertificateAt(i int) (*certs.Certificate, bool) {
	ref := t.svc().TrustGetCertificateAtIndex(t.h.Ref(), i)
	if ref == native.NullRef {
		return nil, false
	}
	return certs.WrapCertificate(cf.WrapBorrowing(t.svc(), ref)), true
}

// PublicKey returns the leaf's public key.
func (t *Trust) PublicKey() (*certs.Key, error) {
	ref := t.svc().TrustCopyPublicKey(t.h.Ref())
	if ref == native.NullRef {
		return nil, fmt.Errorf("copying leaf public key: %w", status.ErrUnimplemented)
	}
	return certs.WrapKey(cf.WrapOwning(t.svc(), ref)), nil
}
