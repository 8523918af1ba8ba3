package securetransport

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/benaskins/secframe/internal/native"
)

// Interrupt is the reason a handshake stopped before completing.
type Interrupt int

const (
	ServerAuthCompleted Interrupt = iota
	ClientCertRequested
	ClientHelloReceived
	WouldBlock
)

func (i Interrupt) String() string {
	switch i {
	case ServerAuthCompleted:
		return "peer authentication completed"
	case ClientCertRequested:
		return "client certificate requested"
	case ClientHelloReceived:
		return "client hello received"
	case WouldBlock:
		return "would block"
	}
	return fmt.Sprintf("Interrupt(%d)", int(i))
}

// HandshakeError is a failed handshake. The connection token has been
// reclaimed: Stream is the caller's stream, unconsumed beyond what the
// handshake read, and Context can be closed or bound again.
type HandshakeError struct {
	Err     error
	Context *Context
	Stream  io.ReadWriter
}

func (e *HandshakeError) Error() string { return "tls handshake: " + e.Err.Error() }
func (e *HandshakeError) Unwrap() error { return e.Err }

// MidHandshake is a handshake paused at a break point or on a stream that
// would block. Call Handshake to continue it, or close its Context to
// abandon it.
type MidHandshake struct {
	stream *Stream
	reason Interrupt
	verify func(*Context) error
}

func (m *MidHandshake) Error() string {
	return "tls handshake interrupted: " + m.reason.String()
}

func (m *MidHandshake) Reason() Interrupt  { return m.reason }
func (m *MidHandshake) Context() *Context { return m.stream.ctx }

// Stream returns the caller's stream without reclaiming it.
func (m *MidHandshake) Stream() io.ReadWriter {
	c, ok := lookup(m.stream.id)
	if !ok {
		return nil
	}
	return c.stream
}

// Handshake resumes the handshake.
func (m *MidHandshake) Handshake() (*Stream, error) {
	return m.stream.handshake(m.verify)
}

// handshake drives the native handshake. When verify is set, it is called
// at the peer authentication break point and the handshake continues only
// if it returns nil.
func (s *Stream) handshake(verify func(*Context) error) (*Stream, error) {
	ctx := s.ctx
	for {
		st := ctx.svc().SSLHandshake(ctx.ref())
		switch st {
		case native.ErrSecSuccess:
			s.logConnected()
			return s, nil
		case native.ErrSSLPeerAuthCompleted:
			if verify == nil {
				return nil, s.interrupted(ServerAuthCompleted, verify)
			}
			if err := verify(ctx); err != nil {
				ctx.svc().SSLClose(ctx.ref())
				return nil, s.fail(err)
			}
		case native.ErrSSLClientCertRequested:
			return nil, s.interrupted(ClientCertRequested, verify)
		case native.ErrSSLClientHelloReceived:
			return nil, s.interrupted(ClientHelloReceived, verify)
		case native.ErrSSLWouldBlock:
			s.conn().takeErr()
			return nil, s.interrupted(WouldBlock, verify)
		default:
			return nil, s.fail(s.errFor(st))
		}
	}
}

func (s *Stream) interrupted(reason Interrupt, verify func(*Context) error) *MidHandshake {
	slog.Debug("handshake interrupted", "component", "securetransport", "reason", reason.String())
	return &MidHandshake{stream: s, reason: reason, verify: verify}
}

// fail reclaims the connection token and wraps err.
func (s *Stream) fail(err error) *HandshakeError {
	stream := s.ctx.unbind()
	slog.Debug("handshake failed", "component", "securetransport", "error", err)
	return &HandshakeError{Err: err, Context: s.ctx, Stream: stream}
}

func (s *Stream) logConnected() {
	version, _ := s.ctx.NegotiatedProtocolVersion()
	alpn, _ := s.ctx.ALPNProtocols()
	side := "client"
	if s.ctx.side == ServerSide {
		side = "server"
	}
	slog.Debug("handshake complete", "component", "securetransport", "side", side, "version", VersionName(version), "alpn", alpn)
}

// VersionName is the conventional name of a protocol version.
func VersionName(v ProtocolVersion) string {
	switch v {
	case SSL3:
		return "SSLv3"
	case TLS1:
		return "TLS 1.0"
	case TLS11:
		return "TLS 1.1"
	case TLS12:
		return "TLS 1.2"
	case TLS13:
		return "TLS 1.3"
	}
	return "unknown"
}
