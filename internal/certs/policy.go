package certs

import (
	"github.com/benaskins/secframe/internal/cf"
	"github.com/benaskins/secframe/internal/native"
)

// Policy selects the checks trust evaluation applies.
type Policy struct {
	h *cf.Handle
}

// PolicySide says which end of a TLS connection the evaluated certificate
// belongs to.
type PolicySide int

const (
	// ServerPolicy evaluates a server certificate, as a client does.
	ServerPolicy PolicySide = iota
	// ClientPolicy evaluates a client certificate, as a server does.
	ClientPolicy
)

func WrapPolicy(h *cf.Handle) *Policy {
	return &Policy{h: cf.Expect(h, native.KindPolicy)}
}

// NewSSLPolicy creates a TLS policy. An empty hostname skips name checks.
func NewSSLPolicy(svc native.Service, side PolicySide, hostname string) *Policy {
	return &Policy{h: cf.WrapOwning(svc, svc.PolicyCreateSSL(side == ServerPolicy, hostname))}
}

// NewBasicX509Policy creates a policy that only checks chain validity.
func NewBasicX509Policy(svc native.Service) *Policy {
	return &Policy{h: cf.WrapOwning(svc, svc.PolicyCreateBasicX509())}
}

func NewRevocationPolicy(svc native.Service, flags native.RevocationFlags) *Policy {
	return &Policy{h: cf.WrapOwning(svc, svc.PolicyCreateRevocation(flags))}
}

func (p *Policy) Handle() *cf.Handle { return p.h }
func (p *Policy) Close() error       { return p.h.Close() }
func (p *Policy) Clone() *Policy     { return &Policy{h: p.h.Clone()} }

// PolicyProperties describes a policy.
type PolicyProperties struct {
	OID      string
	Hostname string
	Client   bool
}

func (p *Policy) Properties() PolicyProperties {
	d := p.h.Service().PolicyCopyProperties(p.h.Ref())
	var props PolicyProperties
	props.OID, _ = d[native.PolicyOid].(string)
	props.Hostname, _ = d[native.PolicyName].(string)
	props.Client, _ = d[native.PolicyClient].(bool)
	return props
}

// PolicyRefs returns the raw references of policies.
func PolicyRefs(policies []*Policy) []native.Ref {
	out := make([]native.Ref, len(policies))
	for i, p := range policies {
		out[i] = p.h.Ref()
	}
	return out
}
