package emulated

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/benaskins/secframe/internal/native"
)

// maxPlaintext is the largest plaintext a single TLS record carries.
const maxPlaintext = 16384

type opKind int

const (
	opHandshake opKind = iota
	opRead
	opWrite
)

// engineEvent is sent by the engine goroutine when an operation pauses on a
// would-block or break point, or when it finishes.
type engineEvent struct {
	paused bool
	status native.Status
	n      int
	err    error
}

type sslContext struct {
	s    *Service
	side native.ProtocolSide

	mu         sync.Mutex
	read       native.ReadFunc
	write      native.WriteFunc
	conn       native.Connection
	peerName   string
	certs      []native.Ref
	minVersion native.ProtocolVersion
	maxVersion native.ProtocolVersion
	alpn       []string
	options    map[native.SessionOption]bool
	authMode   native.AuthenticateMode
	state      native.SessionState
	peerTrust  native.Ref

	// opMu serializes operations. The fields below are owned by whichever
	// goroutine currently runs the operation.
	opMu    sync.Mutex
	tls     *tls.Conn
	pending *opKind
	events  chan engineEvent
	resume  chan bool
	noPause bool
	fault   native.Status
	plain   []byte
}

func (c *sslContext) release(s *Service) {
	c.opMu.Lock()
	c.abortPending()
	c.opMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	s.releaseAll(c.certs)
	c.certs = nil
	if c.peerTrust != native.NullRef {
		s.Release(c.peerTrust)
		c.peerTrust = native.NullRef
	}
}

func (s *Service) sslOf(ref native.Ref) (*sslContext, bool) {
	return valueOf[*sslContext](s, ref, native.KindSSLContext)
}

func (s *Service) withSSL(ref native.Ref, fn func(c *sslContext) native.Status) native.Status {
	c, ok := s.sslOf(ref)
	if !ok {
		return native.ErrSecParam
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c)
}

func (s *Service) SSLCreateContext(side native.ProtocolSide, connType native.ConnectionType) native.Ref {
	if connType != native.StreamType {
		return native.NullRef
	}
	if side != native.ClientSide && side != native.ServerSide {
		return native.NullRef
	}
	c := &sslContext{
		s:       s,
		side:    side,
		options: make(map[native.SessionOption]bool),
		events:  make(chan engineEvent),
		resume:  make(chan bool),
	}
	return s.alloc(native.KindSSLContext, c)
}

// rebind changes the I/O binding. A context that was aborted or closed can be
// bound to a new connection and used again.
func (s *Service) rebind(ref native.Ref, fn func(c *sslContext)) native.Status {
	c, ok := s.sslOf(ref)
	if !ok {
		return native.ErrSecParam
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case native.SessionIdle:
	case native.SessionAborted, native.SessionClosed:
		c.tls, c.plain, c.fault, c.noPause = nil, nil, native.ErrSecSuccess, false
		c.state = native.SessionIdle
	default:
		return native.ErrSecBadReq
	}
	fn(c)
	return native.ErrSecSuccess
}

func (s *Service) SSLSetIOFuncs(ref native.Ref, read native.ReadFunc, write native.WriteFunc) native.Status {
	if read == nil || write == nil {
		return native.ErrSecParam
	}
	return s.rebind(ref, func(c *sslContext) {
		c.read, c.write = read, write
	})
}

func (s *Service) SSLSetConnection(ref native.Ref, conn native.Connection) native.Status {
	return s.rebind(ref, func(c *sslContext) {
		c.conn = conn
	})
}

func (s *Service) SSLGetConnection(ref native.Ref) (native.Connection, native.Status) {
	var conn native.Connection
	status := s.withSSL(ref, func(c *sslContext) native.Status {
		conn = c.conn
		return native.ErrSecSuccess
	})
	return conn, status
}

func (s *Service) SSLSetPeerDomainName(ref native.Ref, name string) native.Status {
	return s.withSSL(ref, func(c *sslContext) native.Status {
		c.peerName = name
		return native.ErrSecSuccess
	})
}

func (s *Service) SSLGetPeerDomainName(ref native.Ref) (string, native.Status) {
	var name string
	status := s.withSSL(ref, func(c *sslContext) native.Status {
		name = c.peerName
		return native.ErrSecSuccess
	})
	return name, status
}

func (s *Service) SSLSetCertificate(ref native.Ref, certs []native.Ref) native.Status {
	if len(certs) == 0 {
		return native.ErrSecParam
	}
	if _, ok := s.identityOf(certs[0]); !ok {
		return native.ErrSecParam
	}
	if !s.checkKinds(certs[1:], native.KindCertificate) {
		return native.ErrSecParam
	}
	return s.withSSL(ref, func(c *sslContext) native.Status {
		s.releaseAll(c.certs)
		c.certs = s.retainAll(certs)
		return native.ErrSecSuccess
	})
}

func validVersion(v native.ProtocolVersion) bool {
	switch v {
	case native.ProtocolUnknown, native.ProtocolSSL3, native.ProtocolTLS1,
		native.ProtocolTLS11, native.ProtocolTLS12, native.ProtocolTLS13:
		return true
	}
	return false
}

func (s *Service) SSLSetProtocolVersionMin(ref native.Ref, v native.ProtocolVersion) native.Status {
	if !validVersion(v) {
		return native.ErrSecParam
	}
	return s.withSSL(ref, func(c *sslContext) native.Status {
		c.minVersion = v
		return native.ErrSecSuccess
	})
}

func (s *Service) SSLSetProtocolVersionMax(ref native.Ref, v native.ProtocolVersion) native.Status {
	if !validVersion(v) {
		return native.ErrSecParam
	}
	return s.withSSL(ref, func(c *sslContext) native.Status {
		c.maxVersion = v
		return native.ErrSecSuccess
	})
}

// tlsVersion maps a protocol version to crypto/tls. SSL 3 is not available
// and is raised to TLS 1.0.
func tlsVersion(v native.ProtocolVersion) uint16 {
	switch v {
	case native.ProtocolSSL3, native.ProtocolTLS1:
		return tls.VersionTLS10
	case native.ProtocolTLS11:
		return tls.VersionTLS11
	case native.ProtocolTLS12:
		return tls.VersionTLS12
	case native.ProtocolTLS13:
		return tls.VersionTLS13
	}
	return 0
}

func protocolVersion(v uint16) native.ProtocolVersion {
	switch v {
	case tls.VersionTLS10:
		return native.ProtocolTLS1
	case tls.VersionTLS11:
		return native.ProtocolTLS11
	case tls.VersionTLS12:
		return native.ProtocolTLS12
	case tls.VersionTLS13:
		return native.ProtocolTLS13
	}
	return native.ProtocolUnknown
}

func (s *Service) SSLGetNegotiatedProtocolVersion(ref native.Ref) (native.ProtocolVersion, native.Status) {
	c, ok := s.sslOf(ref)
	if !ok {
		return native.ProtocolUnknown, native.ErrSecParam
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.tls == nil || c.pending != nil {
		return native.ProtocolUnknown, native.ErrSecSuccess
	}
	return protocolVersion(c.tls.ConnectionState().Version), native.ErrSecSuccess
}

func (s *Service) SSLSetALPNProtocols(ref native.Ref, protocols []string) native.Status {
	for _, p := range protocols {
		if p == "" || len(p) > 255 {
			return native.ErrSecParam
		}
	}
	return s.withSSL(ref, func(c *sslContext) native.Status {
		c.alpn = append([]string(nil), protocols...)
		return native.ErrSecSuccess
	})
}

// SSLCopyALPNProtocols returns the negotiated protocol once the handshake
// has completed.
func (s *Service) SSLCopyALPNProtocols(ref native.Ref) ([]string, native.Status) {
	c, ok := s.sslOf(ref)
	if !ok {
		return nil, native.ErrSecParam
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.tls == nil || c.pending != nil {
		return nil, native.ErrSecSuccess
	}
	if p := c.tls.ConnectionState().NegotiatedProtocol; p != "" {
		return []string{p}, native.ErrSecSuccess
	}
	return nil, native.ErrSecSuccess
}

func (s *Service) SSLSetSessionOption(ref native.Ref, option native.SessionOption, value bool) native.Status {
	switch option {
	case native.SessionOptionBreakOnServerAuth, native.SessionOptionBreakOnCertRequested,
		native.SessionOptionBreakOnClientAuth, native.SessionOptionBreakOnClientHello:
	default:
		return native.ErrSecParam
	}
	return s.withSSL(ref, func(c *sslContext) native.Status {
		c.options[option] = value
		return native.ErrSecSuccess
	})
}

func (s *Service) SSLSetClientSideAuthenticate(ref native.Ref, mode native.AuthenticateMode) native.Status {
	switch mode {
	case native.NeverAuthenticate, native.AlwaysAuthenticate, native.TryAuthenticate:
	default:
		return native.ErrSecParam
	}
	return s.withSSL(ref, func(c *sslContext) native.Status {
		if c.side != native.ServerSide {
			return native.ErrSecParam
		}
		c.authMode = mode
		return native.ErrSecSuccess
	})
}

func (s *Service) SSLGetSessionState(ref native.Ref) (native.SessionState, native.Status) {
	var state native.SessionState
	status := s.withSSL(ref, func(c *sslContext) native.Status {
		state = c.state
		return native.ErrSecSuccess
	})
	return state, status
}

func (s *Service) SSLCopyPeerTrust(ref native.Ref) (native.Ref, native.Status) {
	out := native.NullRef
	status := s.withSSL(ref, func(c *sslContext) native.Status {
		if c.peerTrust != native.NullRef {
			out = s.Retain(c.peerTrust)
		}
		return native.ErrSecSuccess
	})
	return out, status
}

func (c *sslContext) setState(state native.SessionState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *sslContext) currentState() native.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// tlsCertificate builds the local certificate from the configured identity
// and chain. Called with c.mu held.
func (c *sslContext) tlsCertificate() *tls.Certificate {
	if len(c.certs) == 0 {
		return nil
	}
	id, ok := c.s.identityOf(c.certs[0])
	if !ok || id.key.priv == nil {
		return nil
	}
	out := &tls.Certificate{
		Certificate: [][]byte{id.cert.cert.Raw},
		PrivateKey:  id.key.priv,
		Leaf:        id.cert.cert,
	}
	for _, r := range c.certs[1:] {
		if cert, ok := c.s.certOf(r); ok {
			out.Certificate = append(out.Certificate, cert.cert.Raw)
		}
	}
	return out
}

// tlsConfig snapshots the context settings. Peer verification always runs
// in verifyPeer so break points and trust settings apply.
func (c *sslContext) tlsConfig() *tls.Config {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := &tls.Config{
		MinVersion:            tlsVersion(c.minVersion),
		MaxVersion:            tlsVersion(c.maxVersion),
		NextProtos:            append([]string(nil), c.alpn...),
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: c.verifyPeer,
		Time:                  c.s.now,
	}
	if c.side == native.ClientSide {
		cfg.ServerName = c.peerName
		cfg.GetClientCertificate = c.clientCertificate
		return cfg
	}
	if cert := c.tlsCertificate(); cert != nil {
		cfg.Certificates = []tls.Certificate{*cert}
	}
	switch c.authMode {
	case native.TryAuthenticate:
		cfg.ClientAuth = tls.RequestClientCert
	case native.AlwaysAuthenticate:
		cfg.ClientAuth = tls.RequireAnyClientCert
	default:
		cfg.ClientAuth = tls.NoClientCert
	}
	return cfg
}

func (c *sslContext) option(o native.SessionOption) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.options[o]
}

// pause hands control back to the caller with status and blocks the engine
// until the operation is resumed or aborted.
func (c *sslContext) pause(status native.Status) bool {
	if c.noPause {
		return false
	}
	c.events <- engineEvent{paused: true, status: status}
	return <-c.resume
}

func (c *sslContext) clientHello(*tls.ClientHelloInfo) (*tls.Config, error) {
	if c.option(native.SessionOptionBreakOnClientHello) {
		if !c.pause(native.ErrSSLClientHelloReceived) {
			return nil, errAborted
		}
	}
	return c.tlsConfig(), nil
}

func (c *sslContext) clientCertificate(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
	if c.option(native.SessionOptionBreakOnCertRequested) {
		if !c.pause(native.ErrSSLClientCertRequested) {
			return nil, errAborted
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cert := c.tlsCertificate(); cert != nil {
		return cert, nil
	}
	return &tls.Certificate{}, nil
}

// verifyPeer records the peer trust and either breaks out to the caller or
// evaluates it directly.
func (c *sslContext) verifyPeer(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		return nil
	}
	s := c.s
	certs := make([]native.Ref, 0, len(rawCerts))
	defer func() { s.releaseAll(certs) }()
	for _, der := range rawCerts {
		ref := s.CertificateCreateWithData(der)
		if ref == native.NullRef {
			c.fault = native.ErrSSLBadCert
			return errBadPeerCrt
		}
		certs = append(certs, ref)
	}

	c.mu.Lock()
	peerName := c.peerName
	c.mu.Unlock()
	policy := s.PolicyCreateSSL(c.side == native.ClientSide, peerName)
	trustRef, status := s.TrustCreateWithCertificates(certs, []native.Ref{policy})
	s.Release(policy)
	if status != native.ErrSecSuccess {
		c.fault = native.ErrSSLBadCert
		return errBadPeerCrt
	}

	c.mu.Lock()
	if c.peerTrust != native.NullRef {
		s.Release(c.peerTrust)
	}
	c.peerTrust = trustRef
	c.mu.Unlock()

	brk := native.SessionOptionBreakOnClientAuth
	if c.side == native.ClientSide {
		brk = native.SessionOptionBreakOnServerAuth
	}
	if c.option(brk) {
		if !c.pause(native.ErrSSLPeerAuthCompleted) {
			return errAborted
		}
		return nil
	}

	if ok, _ := s.TrustEvaluateWithError(trustRef); !ok {
		c.fault = native.ErrSSLXCertChainInvalid
		return errUntrusted
	}
	return nil
}

// start runs fn on a fresh engine goroutine. Called with opMu held.
func (c *sslContext) start(kind opKind, fn func() (int, error)) engineEvent {
	c.pending = &kind
	c.fault = native.ErrSecSuccess
	go func() {
		n, err := fn()
		c.events <- engineEvent{n: n, err: err}
	}()
	return c.wait()
}

func (c *sslContext) wait() engineEvent {
	ev := <-c.events
	if !ev.paused {
		c.pending = nil
	}
	return ev
}

// resumePending continues a paused operation until it pauses again or
// finishes. Called with opMu held.
func (c *sslContext) resumePending() engineEvent {
	c.fault = native.ErrSecSuccess
	c.resume <- true
	return c.wait()
}

// abortPending fails a paused operation and waits for its goroutine to exit.
// Called with opMu held.
func (c *sslContext) abortPending() {
	if c.pending == nil {
		return
	}
	c.noPause = true
	c.resume <- false
	for ev := c.wait(); ev.paused; ev = c.wait() {
		c.resume <- false
	}
}

// ensureConn creates the TLS engine over the bound callbacks. Called with
// opMu held.
func (c *sslContext) ensureConn() native.Status {
	if c.tls != nil {
		return native.ErrSecSuccess
	}
	c.mu.Lock()
	b := &bridge{ctx: c, read: c.read, write: c.write, conn: c.conn}
	side := c.side
	c.mu.Unlock()
	if b.read == nil || b.write == nil {
		return native.ErrSecParam
	}

	cfg := c.tlsConfig()
	if side == native.ServerSide {
		cfg.GetConfigForClient = c.clientHello
		c.tls = tls.Server(b, cfg)
	} else {
		c.tls = tls.Client(b, cfg)
	}
	return native.ErrSecSuccess
}

// statusFor maps an engine error to a secure transport status. A status
// recorded by a callback or by peer verification takes priority.
func (c *sslContext) statusFor(err error) native.Status {
	if c.fault != native.ErrSecSuccess {
		return c.fault
	}
	var (
		verifyErr *tls.CertificateVerificationError
		opErr     *net.OpError
		headerErr tls.RecordHeaderError
	)
	switch {
	case errors.Is(err, io.EOF):
		return native.ErrSSLClosedGraceful
	case errors.Is(err, errAborted):
		return native.ErrSSLClosedAbort
	case errors.As(err, &verifyErr):
		return native.ErrSSLXCertChainInvalid
	case errors.As(err, &opErr) && opErr.Op == "remote error":
		return alertStatus(opErr.Err.Error())
	case errors.As(err, &headerErr):
		return native.ErrSSLProtocol
	case strings.Contains(err.Error(), "no certificates configured"):
		return native.ErrSSLBadConfiguration
	case strings.Contains(err.Error(), "no application protocol"):
		return native.ErrSSLNegotiation
	case strings.Contains(err.Error(), "protocol version"), strings.Contains(err.Error(), "no cipher suite"):
		return native.ErrSSLNegotiation
	}
	return native.ErrSSLProtocol
}

func alertStatus(alert string) native.Status {
	switch {
	case strings.Contains(alert, "bad certificate"):
		return native.ErrSSLPeerBadCert
	case strings.Contains(alert, "unknown certificate authority"):
		return native.ErrSSLPeerUnknownCA
	case strings.Contains(alert, "handshake failure"):
		return native.ErrSSLPeerHandshakeFail
	case strings.Contains(alert, "protocol version"):
		return native.ErrSSLPeerProtocolVersion
	case strings.Contains(alert, "internal error"):
		return native.ErrSSLPeerInternalError
	case strings.Contains(alert, "unexpected message"):
		return native.ErrSSLPeerUnexpectedMsg
	}
	return native.ErrSSLFatalAlert
}

// finishOther resumes a paused operation of a different kind before a new
// operation starts. ok is false when it paused again.
func (c *sslContext) finishOther(kind opKind) (native.Status, bool) {
	if c.pending == nil || *c.pending == kind {
		return native.ErrSecSuccess, true
	}
	pendingKind := *c.pending
	ev := c.resumePending()
	if ev.paused {
		return ev.status, false
	}
	if pendingKind == opHandshake {
		if status := c.settleHandshake(ev); status != native.ErrSecSuccess {
			return status, false
		}
	}
	return native.ErrSecSuccess, true
}

func (c *sslContext) settleHandshake(ev engineEvent) native.Status {
	if ev.paused {
		return ev.status
	}
	if ev.err != nil {
		status := c.statusFor(ev.err)
		c.setState(native.SessionAborted)
		c.s.logger.Debug("handshake failed", "status", int(status), "error", ev.err)
		return status
	}
	c.setState(native.SessionConnected)
	return native.ErrSecSuccess
}

func (s *Service) SSLHandshake(ref native.Ref) native.Status {
	c, ok := s.sslOf(ref)
	if !ok {
		return native.ErrSecParam
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if status, ok := c.finishOther(opHandshake); !ok {
		return status
	}
	if c.pending != nil {
		return c.settleHandshake(c.resumePending())
	}

	switch c.currentState() {
	case native.SessionConnected:
		return native.ErrSecSuccess
	case native.SessionClosed:
		return native.ErrSSLClosedGraceful
	case native.SessionAborted:
		return native.ErrSSLClosedAbort
	}
	if status := c.ensureConn(); status != native.ErrSecSuccess {
		return status
	}
	c.setState(native.SessionHandshake)
	return c.settleHandshake(c.start(opHandshake, func() (int, error) {
		return 0, c.tls.Handshake()
	}))
}

// SSLRead returns buffered plaintext first. Otherwise it blocks until at
// least one byte is available.
func (s *Service) SSLRead(ref native.Ref, data []byte) (int, native.Status) {
	c, ok := s.sslOf(ref)
	if !ok {
		return 0, native.ErrSecParam
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if len(c.plain) > 0 {
		n := copy(data, c.plain)
		c.plain = c.plain[n:]
		return n, native.ErrSecSuccess
	}
	if len(data) == 0 {
		return 0, native.ErrSecSuccess
	}
	if status, ok := c.finishOther(opRead); !ok {
		return 0, status
	}

	var ev engineEvent
	if c.pending != nil {
		ev = c.resumePending()
	} else {
		switch c.currentState() {
		case native.SessionClosed:
			return 0, native.ErrSSLClosedGraceful
		case native.SessionAborted:
			return 0, native.ErrSSLClosedAbort
		case native.SessionIdle:
			if status := c.ensureConn(); status != native.ErrSecSuccess {
				return 0, status
			}
			c.setState(native.SessionHandshake)
		}
		ev = c.start(opRead, func() (int, error) {
			buf := make([]byte, maxPlaintext)
			n, err := c.tls.Read(buf)
			c.plain = append(c.plain, buf[:n]...)
			return n, err
		})
	}
	if ev.paused {
		return 0, ev.status
	}
	if c.currentState() == native.SessionHandshake && c.tls.ConnectionState().HandshakeComplete {
		c.setState(native.SessionConnected)
	}

	n := copy(data, c.plain)
	c.plain = c.plain[n:]
	if ev.err != nil && n == 0 {
		status := c.statusFor(ev.err)
		if status == native.ErrSSLClosedGraceful {
			c.setState(native.SessionClosed)
		} else {
			c.setState(native.SessionAborted)
		}
		return 0, status
	}
	return n, native.ErrSecSuccess
}

// SSLWrite blocks until all of data is written. After a would-block the
// caller repeats the call with the same data to continue.
func (s *Service) SSLWrite(ref native.Ref, data []byte) (int, native.Status) {
	c, ok := s.sslOf(ref)
	if !ok {
		return 0, native.ErrSecParam
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if len(data) == 0 {
		return 0, native.ErrSecSuccess
	}
	if status, ok := c.finishOther(opWrite); !ok {
		return 0, status
	}

	var ev engineEvent
	if c.pending != nil {
		ev = c.resumePending()
	} else {
		switch c.currentState() {
		case native.SessionClosed:
			return 0, native.ErrSSLClosedGraceful
		case native.SessionAborted:
			return 0, native.ErrSSLClosedAbort
		case native.SessionIdle:
			if status := c.ensureConn(); status != native.ErrSecSuccess {
				return 0, status
			}
			c.setState(native.SessionHandshake)
		}
		buf := append([]byte(nil), data...)
		ev = c.start(opWrite, func() (int, error) {
			return c.tls.Write(buf)
		})
	}
	if ev.paused {
		return 0, ev.status
	}
	if c.currentState() == native.SessionHandshake && c.tls.ConnectionState().HandshakeComplete {
		c.setState(native.SessionConnected)
	}
	if ev.err != nil {
		c.setState(native.SessionAborted)
		return ev.n, c.statusFor(ev.err)
	}
	return ev.n, native.ErrSecSuccess
}

func (s *Service) SSLGetBufferedReadSize(ref native.Ref) (int, native.Status) {
	c, ok := s.sslOf(ref)
	if !ok {
		return 0, native.ErrSecParam
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return len(c.plain), native.ErrSecSuccess
}

// SSLClose aborts a paused operation and sends close_notify on an
// established session. Writes made while closing never pause.
func (s *Service) SSLClose(ref native.Ref) native.Status {
	c, ok := s.sslOf(ref)
	if !ok {
		return native.ErrSecParam
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.abortPending()
	state := c.currentState()
	if state == native.SessionConnected && c.tls != nil {
		c.noPause = true
		if err := c.tls.Close(); err != nil {
			s.logger.Debug("close_notify not sent", "error", err)
		}
	}
	if state == native.SessionHandshake {
		c.setState(native.SessionAborted)
	} else if state != native.SessionAborted {
		c.setState(native.SessionClosed)
	}
	return native.ErrSecSuccess
}
