package emulated

import (
	"crypto/x509"
	"errors"
	"sync"
	"time"

	"github.com/benaskins/secframe/internal/native"
)

type trust struct {
	mu          sync.Mutex
	certs       []native.Ref
	policies    []native.Ref
	anchors     []native.Ref
	anchorsSet  bool
	anchorsOnly bool
	verifyDate  time.Time
	network     bool

	evaluated bool
	chain     []native.Ref
	result    native.TrustResultType
	failure   native.Status
}

func (t *trust) release(s *Service) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s.releaseAll(t.certs)
	s.releaseAll(t.policies)
	s.releaseAll(t.anchors)
	s.releaseAll(t.chain)
	t.certs, t.policies, t.anchors, t.chain = nil, nil, nil, nil
}

// invalidate drops a previous evaluation after an input changes.
func (t *trust) invalidate(s *Service) {
	s.releaseAll(t.chain)
	t.chain = nil
	t.evaluated = false
	t.result = native.TrustResultInvalid
	t.failure = native.ErrSecSuccess
}

func (s *Service) trustOf(ref native.Ref) (*trust, bool) {
	return valueOf[*trust](s, ref, native.KindTrust)
}

func (s *Service) checkKinds(refs []native.Ref, kind native.Kind) bool {
	for _, r := range refs {
		obj, ok := s.lookup(r)
		if !ok || obj.kind != kind {
			return false
		}
	}
	return true
}

func (s *Service) TrustCreateWithCertificates(certs []native.Ref, policies []native.Ref) (native.Ref, native.Status) {
	if len(certs) == 0 || !s.checkKinds(certs, native.KindCertificate) || !s.checkKinds(policies, native.KindPolicy) {
		return native.NullRef, native.ErrSecParam
	}
	t := &trust{
		certs:    s.retainAll(certs),
		policies: s.retainAll(policies),
		network:  true,
	}
	return s.alloc(native.KindTrust, t), native.ErrSecSuccess
}

func (s *Service) withTrust(ref native.Ref, fn func(t *trust) native.Status) native.Status {
	t, ok := s.trustOf(ref)
	if !ok {
		return native.ErrSecParam
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(t)
}

// TrustSetAnchorCertificates replaces the anchors. Setting anchors disables
// the system anchors until TrustSetAnchorCertificatesOnly(false) is called.
func (s *Service) TrustSetAnchorCertificates(ref native.Ref, anchors []native.Ref) native.Status {
	if !s.checkKinds(anchors, native.KindCertificate) {
		return native.ErrSecParam
	}
	return s.withTrust(ref, func(t *trust) native.Status {
		s.releaseAll(t.anchors)
		t.anchors = s.retainAll(anchors)
		t.anchorsSet = len(anchors) > 0
		t.anchorsOnly = t.anchorsSet
		t.invalidate(s)
		return native.ErrSecSuccess
	})
}

func (s *Service) TrustSetAnchorCertificatesOnly(ref native.Ref, only bool) native.Status {
	return s.withTrust(ref, func(t *trust) native.Status {
		t.anchorsOnly = only
		t.invalidate(s)
		return native.ErrSecSuccess
	})
}

func (s *Service) TrustSetPolicies(ref native.Ref, policies []native.Ref) native.Status {
	if !s.checkKinds(policies, native.KindPolicy) {
		return native.ErrSecParam
	}
	return s.withTrust(ref, func(t *trust) native.Status {
		s.releaseAll(t.policies)
		t.policies = s.retainAll(policies)
		t.invalidate(s)
		return native.ErrSecSuccess
	})
}

func (s *Service) TrustSetVerifyDate(ref native.Ref, date time.Time) native.Status {
	return s.withTrust(ref, func(t *trust) native.Status {
		t.verifyDate = date
		t.invalidate(s)
		return native.ErrSecSuccess
	})
}

func (s *Service) TrustSetNetworkFetchAllowed(ref native.Ref, allowed bool) native.Status {
	return s.withTrust(ref, func(t *trust) native.Status {
		t.network = allowed
		return native.ErrSecSuccess
	})
}

func (s *Service) TrustEvaluate(ref native.Ref) (uint32, native.Status) {
	var result native.TrustResultType
	status := s.withTrust(ref, func(t *trust) native.Status {
		s.evaluate(t)
		result = t.result
		return native.ErrSecSuccess
	})
	return uint32(result), status
}

func (s *Service) TrustEvaluateWithError(ref native.Ref) (bool, native.Status) {
	var failure native.Status
	var ok bool
	status := s.withTrust(ref, func(t *trust) native.Status {
		s.evaluate(t)
		ok = t.result == native.TrustResultProceed || t.result == native.TrustResultUnspecified
		failure = t.failure
		return native.ErrSecSuccess
	})
	if status != native.ErrSecSuccess {
		return false, status
	}
	if ok {
		return true, native.ErrSecSuccess
	}
	return false, failure
}

func (s *Service) TrustGetCertificateCount(ref native.Ref) int {
	n := 0
	s.withTrust(ref, func(t *trust) native.Status {
		if t.evaluated {
			n = len(t.chain)
		} else {
			n = len(t.certs)
		}
		return native.ErrSecSuccess
	})
	return n
}

func (s *Service) TrustGetCertificateAtIndex(ref native.Ref, index int) native.Ref {
	out := native.NullRef
	s.withTrust(ref, func(t *trust) native.Status {
		list := t.certs
		if t.evaluated {
			list = t.chain
		}
		if index >= 0 && index < len(list) {
			out = list[index]
		}
		return native.ErrSecSuccess
	})
	return out
}

func (s *Service) TrustCopyPublicKey(ref native.Ref) native.Ref {
	out := native.NullRef
	s.withTrust(ref, func(t *trust) native.Status {
		if c, ok := s.certOf(t.certs[0]); ok {
			if k, ok := publicKeyFrom(c.cert.PublicKey); ok {
				out = s.keyRef(k)
			}
		}
		return native.ErrSecSuccess
	})
	return out
}

// evaluate runs chain building and policy checks. Called with t.mu held.
func (s *Service) evaluate(t *trust) {
	if t.evaluated {
		return
	}
	t.evaluated = true

	leafCert, _ := s.certOf(t.certs[0])
	leaf := leafCert.cert

	intermediates := x509.NewCertPool()
	for _, r := range t.certs[1:] {
		if c, ok := s.certOf(r); ok {
			intermediates.AddCert(c.cert)
		}
	}

	policyName := native.PolicyNameBasicX509
	opts := x509.VerifyOptions{
		Intermediates: intermediates,
		CurrentTime:   t.verifyDate,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if opts.CurrentTime.IsZero() {
		opts.CurrentTime = s.now()
	}
	for _, r := range t.policies {
		p, ok := s.policyOf(r)
		if !ok || p.oid != native.PolicyOidAppleSSL {
			continue
		}
		policyName = p.name
		opts.DNSName = p.hostname
		if p.client {
			opts.KeyUsages = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
		} else {
			opts.KeyUsages = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
		}
	}

	roots := x509.NewCertPool()
	if !t.anchorsOnly && s.roots != nil {
		roots = s.roots.Clone()
	}
	for _, r := range t.anchors {
		if c, ok := s.certOf(r); ok {
			roots.AddCert(c.cert)
		}
	}

	// Certificates the user explicitly trusts or distrusts take part in
	// evaluation the same way they do natively.
	explicit := false
	for _, r := range t.certs {
		c, ok := s.certOf(r)
		if !ok {
			continue
		}
		result, found := s.effectiveSettings(c.cert.Raw, policyName)
		if !found {
			continue
		}
		switch result {
		case native.TrustSettingsResultDeny:
			t.result, t.failure = native.TrustResultDeny, native.ErrSecNotTrusted
			t.chain = s.retainAll(t.certs)
			return
		case native.TrustSettingsResultTrustRoot, native.TrustSettingsResultTrustAsRoot:
			roots.AddCert(c.cert)
			explicit = true
		}
	}
	opts.Roots = roots

	chains, err := leaf.Verify(opts)
	if err != nil {
		t.result, t.failure = classifyVerifyError(err)
		t.chain = s.retainAll(t.certs)
		s.logger.Debug("trust evaluation failed", "subject", subjectSummary(leaf), "error", err)
		return
	}

	chain := chains[0]
	t.chain = make([]native.Ref, 0, len(chain))
	for _, c := range chain {
		t.chain = append(t.chain, s.certificateRef(&certificate{cert: c}))
	}
	t.result, t.failure = native.TrustResultUnspecified, native.ErrSecSuccess
	if explicit {
		t.result = native.TrustResultProceed
	}
}

func classifyVerifyError(err error) (native.TrustResultType, native.Status) {
	var (
		hostErr      x509.HostnameError
		invalidErr   x509.CertificateInvalidError
		authorityErr x509.UnknownAuthorityError
	)
	switch {
	case errors.As(err, &hostErr):
		return native.TrustResultRecoverableTrustFailure, native.ErrSecHostNameMismatch
	case errors.As(err, &invalidErr):
		switch invalidErr.Reason {
		case x509.Expired:
			return native.TrustResultRecoverableTrustFailure, native.ErrSecCertificateExpired
		case x509.IncompatibleUsage:
			return native.TrustResultRecoverableTrustFailure, native.ErrSecNotTrusted
		}
		return native.TrustResultFatalTrustFailure, native.ErrSecVerifyFailed
	case errors.As(err, &authorityErr):
		return native.TrustResultRecoverableTrustFailure, native.ErrSecNotTrusted
	}
	return native.TrustResultFatalTrustFailure, native.ErrSecVerifyFailed
}
