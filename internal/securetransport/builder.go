package securetransport

import (
	"errors"
	"fmt"
	"io"

	"github.com/benaskins/secframe/internal/certs"
	"github.com/benaskins/secframe/internal/native"
)

// settings is the configuration shared by both builders.
type settings struct {
	identity   *certs.Identity
	chain      []*certs.Certificate
	alpn       []string
	minVersion ProtocolVersion
	maxVersion ProtocolVersion
}

func (s *settings) apply(ctx *Context) error {
	if s.identity != nil {
		if err := ctx.SetCertificate(s.identity, s.chain); err != nil {
			return fmt.Errorf("setting certificate: %w", err)
		}
	}
	if len(s.alpn) > 0 {
		if err := ctx.SetALPNProtocols(s.alpn); err != nil {
			return fmt.Errorf("setting alpn protocols: %w", err)
		}
	}
	if s.minVersion != native.ProtocolUnknown {
		if err := ctx.SetProtocolVersionMin(s.minVersion); err != nil {
			return fmt.Errorf("setting minimum protocol version: %w", err)
		}
	}
	if s.maxVersion != native.ProtocolUnknown {
		if err := ctx.SetProtocolVersionMax(s.maxVersion); err != nil {
			return fmt.Errorf("setting maximum protocol version: %w", err)
		}
	}
	return nil
}

// verifyPeer evaluates the peer trust at the authentication break point
// against an SSL policy and the given anchors. A rejected chain fails with
// the bad certificate status wrapping the evaluation error.
func verifyPeer(ctx *Context, side certs.PolicySide, hostname string, anchors []*certs.Certificate, anchorsOnly bool) error {
	badCert := ctx.translate(native.ErrSSLBadCert)
	t, err := ctx.PeerTrust()
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("%w: peer sent no certificates", badCert)
	}
	defer t.Close()

	policy := certs.NewSSLPolicy(ctx.svc(), side, hostname)
	defer policy.Close()
	if err := t.SetPolicy(policy); err != nil {
		return err
	}
	if len(anchors) > 0 {
		if err := t.SetAnchors(anchors); err != nil {
			return err
		}
		if err := t.SetAnchorsOnly(anchorsOnly); err != nil {
			return err
		}
	}
	if err := t.EvaluateWithError(); err != nil {
		return fmt.Errorf("%w: %w", badCert, err)
	}
	return nil
}

// ClientBuilder configures client sessions. The server's certificate is
// checked by this package rather than by the context, so extra anchors and
// the relaxed checks below apply.
type ClientBuilder struct {
	svc native.Service
	settings

	anchors                []*certs.Certificate
	anchorsOnly            bool
	noSNI                  bool
	acceptInvalidCerts     bool
	acceptInvalidHostnames bool
}

func NewClientBuilder(svc native.Service) *ClientBuilder {
	return &ClientBuilder{svc: svc}
}

// Anchors adds certificates trusted as roots in addition to the system's.
func (b *ClientBuilder) Anchors(anchors ...*certs.Certificate) *ClientBuilder {
	b.anchors = append(b.anchors, anchors...)
	return b
}

// AnchorsOnly restricts trust to the certificates passed to Anchors.
func (b *ClientBuilder) AnchorsOnly(only bool) *ClientBuilder {
	b.anchorsOnly = only
	return b
}

// Identity sets the certificate presented when the server asks for one.
func (b *ClientBuilder) Identity(identity *certs.Identity, chain ...*certs.Certificate) *ClientBuilder {
	b.identity, b.chain = identity, chain
	return b
}

func (b *ClientBuilder) ALPN(protocols ...string) *ClientBuilder {
	b.alpn = protocols
	return b
}

func (b *ClientBuilder) ProtocolMin(v ProtocolVersion) *ClientBuilder {
	b.minVersion = v
	return b
}

func (b *ClientBuilder) ProtocolMax(v ProtocolVersion) *ClientBuilder {
	b.maxVersion = v
	return b
}

// UseSNI controls whether the domain is sent in the client hello. It is on
// by default.
func (b *ClientBuilder) UseSNI(on bool) *ClientBuilder {
	b.noSNI = !on
	return b
}

// DangerAcceptInvalidCerts skips server certificate evaluation entirely.
func (b *ClientBuilder) DangerAcceptInvalidCerts(on bool) *ClientBuilder {
	b.acceptInvalidCerts = on
	return b
}

// DangerAcceptInvalidHostnames evaluates the chain without matching it
// against the domain.
func (b *ClientBuilder) DangerAcceptInvalidHostnames(on bool) *ClientBuilder {
	b.acceptInvalidHostnames = on
	return b
}

// NewContext returns a configured client context that breaks on server
// authentication.
func (b *ClientBuilder) NewContext(domain string) (*Context, error) {
	ctx := NewContext(b.svc, ClientSide, StreamConnection)
	if err := b.configure(ctx, domain); err != nil {
		ctx.Close()
		return nil, err
	}
	return ctx, nil
}

func (b *ClientBuilder) configure(ctx *Context, domain string) error {
	if !b.noSNI && domain != "" {
		if err := ctx.SetPeerDomainName(domain); err != nil {
			return fmt.Errorf("setting peer domain name: %w", err)
		}
	}
	if err := b.apply(ctx); err != nil {
		return err
	}
	return ctx.SetBreakOnServerAuth(true)
}

func (b *ClientBuilder) verify(domain string) func(*Context) error {
	return func(ctx *Context) error {
		if b.acceptInvalidCerts {
			return nil
		}
		host := domain
		if b.acceptInvalidHostnames {
			host = ""
		}
		return verifyPeer(ctx, certs.ServerPolicy, host, b.anchors, b.anchorsOnly)
	}
}

// Handshake connects to domain over stream. On failure the error is a
// *HandshakeError; its Context belongs to the caller.
func (b *ClientBuilder) Handshake(domain string, stream io.ReadWriter) (*Stream, error) {
	ctx, err := b.NewContext(domain)
	if err != nil {
		return nil, &HandshakeError{Err: err, Stream: stream}
	}
	id, err := ctx.bind(stream)
	if err != nil {
		return nil, &HandshakeError{Err: err, Context: ctx, Stream: stream}
	}
	s := &Stream{ctx: ctx, id: id}
	return s.handshake(b.verify(domain))
}

// ServerBuilder configures server sessions for one identity.
type ServerBuilder struct {
	settings

	clientAuth    AuthenticateMode
	clientAnchors []*certs.Certificate
}

func NewServerBuilder(identity *certs.Identity, chain ...*certs.Certificate) *ServerBuilder {
	return &ServerBuilder{settings: settings{identity: identity, chain: chain}}
}

// ClientAuth sets whether client certificates are requested.
func (b *ServerBuilder) ClientAuth(mode AuthenticateMode) *ServerBuilder {
	b.clientAuth = mode
	return b
}

// ClientAnchors sets the only roots client certificates may chain to.
func (b *ServerBuilder) ClientAnchors(anchors ...*certs.Certificate) *ServerBuilder {
	b.clientAnchors = append(b.clientAnchors, anchors...)
	return b
}

func (b *ServerBuilder) ALPN(protocols ...string) *ServerBuilder {
	b.alpn = protocols
	return b
}

func (b *ServerBuilder) ProtocolMin(v ProtocolVersion) *ServerBuilder {
	b.minVersion = v
	return b
}

func (b *ServerBuilder) ProtocolMax(v ProtocolVersion) *ServerBuilder {
	b.maxVersion = v
	return b
}

var errNoIdentity = errors.New("server builder has no identity")

func (b *ServerBuilder) NewContext() (*Context, error) {
	if b.identity == nil {
		return nil, errNoIdentity
	}
	ctx := NewContext(b.identity.Handle().Service(), ServerSide, StreamConnection)
	if err := b.configure(ctx); err != nil {
		ctx.Close()
		return nil, err
	}
	return ctx, nil
}

func (b *ServerBuilder) configure(ctx *Context) error {
	if err := b.apply(ctx); err != nil {
		return err
	}
	if b.clientAuth != NeverAuthenticate {
		if err := ctx.SetClientSideAuthenticate(b.clientAuth); err != nil {
			return fmt.Errorf("setting client authentication: %w", err)
		}
	}
	if len(b.clientAnchors) > 0 {
		return ctx.SetBreakOnClientAuth(true)
	}
	return nil
}

func (b *ServerBuilder) verify() func(*Context) error {
	if len(b.clientAnchors) == 0 {
		return nil
	}
	return func(ctx *Context) error {
		return verifyPeer(ctx, certs.ClientPolicy, "", b.clientAnchors, true)
	}
}

// Handshake accepts a client over stream.
func (b *ServerBuilder) Handshake(stream io.ReadWriter) (*Stream, error) {
	ctx, err := b.NewContext()
	if err != nil {
		return nil, &HandshakeError{Err: err, Stream: stream}
	}
	id, err := ctx.bind(stream)
	if err != nil {
		return nil, &HandshakeError{Err: err, Context: ctx, Stream: stream}
	}
	s := &Stream{ctx: ctx, id: id}
	return s.handshake(b.verify())
}
