// Package securetransport runs TLS sessions through a native secure
// transport context over any io.ReadWriter.
package securetransport

import (
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/benaskins/secframe/internal/certs"
	"github.com/benaskins/secframe/internal/cf"
	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/status"
	"github.com/benaskins/secframe/internal/trust"
)

type (
	Side             = native.ProtocolSide
	ConnectionType   = native.ConnectionType
	ProtocolVersion  = native.ProtocolVersion
	AuthenticateMode = native.AuthenticateMode
)

const (
	ClientSide = native.ClientSide
	ServerSide = native.ServerSide

	StreamConnection   = native.StreamType
	DatagramConnection = native.DatagramType

	SSL3  = native.ProtocolSSL3
	TLS1  = native.ProtocolTLS1
	TLS11 = native.ProtocolTLS11
	TLS12 = native.ProtocolTLS12
	TLS13 = native.ProtocolTLS13

	NeverAuthenticate  = native.NeverAuthenticate
	AlwaysAuthenticate = native.AlwaysAuthenticate
	TryAuthenticate    = native.TryAuthenticate
)

// SessionState is the progress of a session.
type SessionState native.SessionState

const (
	Idle      = SessionState(native.SessionIdle)
	Handshake = SessionState(native.SessionHandshake)
	Connected = SessionState(native.SessionConnected)
	Closed    = SessionState(native.SessionClosed)
	Aborted   = SessionState(native.SessionAborted)
)

func (s SessionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Handshake:
		return "handshake"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("SessionState(%d)", uint32(s))
}

// Context is a native secure transport context. Configure it, then call
// Handshake to bind it to a stream. Close shuts the session down and
// releases the stream's connection token whatever state the session is in.
type Context struct {
	h       *cf.Handle
	side    Side
	conn    *binding
	cleanup runtime.Cleanup
}

// binding is the connection token a context is bound to. It lives apart
// from the Context so the cleanup can reclaim the token without keeping the
// Context reachable.
type binding struct {
	mu sync.Mutex
	id native.Connection
}

func (b *binding) set(id native.Connection) {
	b.mu.Lock()
	b.id = id
	b.mu.Unlock()
}

func (b *binding) take() native.Connection {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.id
	b.id = 0
	return id
}

func (b *binding) bound() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id != 0
}

// NewContext allocates a context. The service refuses contexts it cannot
// support, such as datagram framing; that is treated as a programming error.
func NewContext(svc native.Service, side Side, connType ConnectionType) *Context {
	ref := svc.SSLCreateContext(side, connType)
	if ref == native.NullRef {
		panic(fmt.Sprintf("securetransport: unable to create context (side %d, type %d)", side, connType))
	}
	c := &Context{h: cf.WrapOwning(svc, ref), side: side, conn: &binding{}}
	c.cleanup = runtime.AddCleanup(c, func(b *binding) {
		if id := b.take(); id != 0 {
			unregister(id)
		}
	}, c.conn)
	return c
}

func (c *Context) Handle() *cf.Handle { return c.h }
func (c *Context) Side() Side         { return c.side }

// Close closes a bound session, reclaims its connection token and releases
// the context. Further calls do nothing.
func (c *Context) Close() error {
	if c.h.Closed() {
		return nil
	}
	c.cleanup.Stop()
	if c.conn.bound() {
		c.svc().SSLClose(c.ref())
		c.unbind()
	}
	return c.h.Close()
}

// unbind reclaims the connection token and returns the stream it held.
func (c *Context) unbind() io.ReadWriter {
	id := c.conn.take()
	if id == 0 {
		return nil
	}
	return unregister(id)
}

func (c *Context) svc() native.Service { return c.h.Service() }
func (c *Context) ref() native.Ref     { return c.h.Ref() }

func (c *Context) translate(st native.Status) error { return status.Translate(c.svc(), st) }

func (c *Context) SetPeerDomainName(name string) error {
	return c.translate(c.svc().SSLSetPeerDomainName(c.ref(), name))
}

func (c *Context) PeerDomainName() (string, error) {
	name, st := c.svc().SSLGetPeerDomainName(c.ref())
	return name, c.translate(st)
}

// SetCertificate sets the local identity and any intermediates sent after
// its certificate.
func (c *Context) SetCertificate(identity *certs.Identity, chain []*certs.Certificate) error {
	refs := []native.Ref{identity.Handle().Ref()}
	refs = append(refs, certs.Refs(chain)...)
	return c.translate(c.svc().SSLSetCertificate(c.ref(), refs))
}

func (c *Context) SetProtocolVersionMin(v ProtocolVersion) error {
	return c.translate(c.svc().SSLSetProtocolVersionMin(c.ref(), v))
}

func (c *Context) SetProtocolVersionMax(v ProtocolVersion) error {
	return c.translate(c.svc().SSLSetProtocolVersionMax(c.ref(), v))
}

func (c *Context) NegotiatedProtocolVersion() (ProtocolVersion, error) {
	v, st := c.svc().SSLGetNegotiatedProtocolVersion(c.ref())
	return v, c.translate(st)
}

func (c *Context) SetALPNProtocols(protocols []string) error {
	return c.translate(c.svc().SSLSetALPNProtocols(c.ref(), protocols))
}

// ALPNProtocols returns the negotiated protocol once the handshake has
// completed. It is empty before that or when nothing was agreed.
func (c *Context) ALPNProtocols() ([]string, error) {
	protos, st := c.svc().SSLCopyALPNProtocols(c.ref())
	return protos, c.translate(st)
}

func (c *Context) setOption(o native.SessionOption, on bool) error {
	return c.translate(c.svc().SSLSetSessionOption(c.ref(), o, on))
}

// SetBreakOnServerAuth makes a client handshake stop once the server's
// certificate has arrived so the caller can evaluate PeerTrust itself.
func (c *Context) SetBreakOnServerAuth(on bool) error {
	return c.setOption(native.SessionOptionBreakOnServerAuth, on)
}

func (c *Context) SetBreakOnClientAuth(on bool) error {
	return c.setOption(native.SessionOptionBreakOnClientAuth, on)
}

func (c *Context) SetBreakOnCertRequested(on bool) error {
	return c.setOption(native.SessionOptionBreakOnCertRequested, on)
}

func (c *Context) SetBreakOnClientHello(on bool) error {
	return c.setOption(native.SessionOptionBreakOnClientHello, on)
}

func (c *Context) SetClientSideAuthenticate(mode AuthenticateMode) error {
	return c.translate(c.svc().SSLSetClientSideAuthenticate(c.ref(), mode))
}

func (c *Context) State() (SessionState, error) {
	s, st := c.svc().SSLGetSessionState(c.ref())
	return SessionState(s), c.translate(st)
}

// PeerTrust returns the evaluation prepared for the peer's certificates, or
// nil before they have been received.
func (c *Context) PeerTrust() (*trust.Trust, error) {
	ref, st := c.svc().SSLCopyPeerTrust(c.ref())
	if err := c.translate(st); err != nil {
		return nil, err
	}
	h := cf.WrapOwningOptional(c.svc(), ref)
	if h == nil {
		return nil, nil
	}
	return trust.Wrap(h), nil
}

// BufferedReadSize is the amount of decrypted data that can be read without
// touching the stream.
func (c *Context) BufferedReadSize() (int, error) {
	n, st := c.svc().SSLGetBufferedReadSize(c.ref())
	return n, c.translate(st)
}

// bind registers stream and points the context at it. A token left from an
// earlier binding is reclaimed first.
func (c *Context) bind(stream io.ReadWriter) (native.Connection, error) {
	c.unbind()
	id, _ := register(stream)
	if err := c.translate(c.svc().SSLSetIOFuncs(c.ref(), readFunc, writeFunc)); err != nil {
		unregister(id)
		return 0, err
	}
	if err := c.translate(c.svc().SSLSetConnection(c.ref(), id)); err != nil {
		unregister(id)
		return 0, err
	}
	c.conn.set(id)
	return id, nil
}

// Handshake binds the context to stream and runs the handshake. A paused
// handshake is reported as a *MidHandshake, a failed one as a
// *HandshakeError carrying the stream back.
func (c *Context) Handshake(stream io.ReadWriter) (*Stream, error) {
	id, err := c.bind(stream)
	if err != nil {
		return nil, &HandshakeError{Err: err, Context: c, Stream: stream}
	}
	s := &Stream{ctx: c, id: id}
	return s.handshake(nil)
}
