package securetransport

import (
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benaskins/secframe/internal/certs"
	"github.com/benaskins/secframe/internal/importexport"
	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/native/emulated"
	"github.com/benaskins/secframe/internal/pkitest"
	"github.com/benaskins/secframe/internal/status"
)

const serverName = "server.example.com"

func newService(t *testing.T) *emulated.Service {
	t.Helper()
	svc := emulated.New(emulated.WithRoot(t.TempDir()), emulated.WithSystemRoots(x509.NewCertPool()))
	t.Cleanup(func() { svc.Close() })
	return svc
}

func importIdentity(t *testing.T, svc native.Service, leaf *pkitest.Leaf) *certs.Identity {
	t.Helper()
	res, err := importexport.Import(svc, leaf.Bundle(t), importexport.Options{Filename: "identity.pem"})
	require.NoError(t, err)
	require.Len(t, res.Identities, 1)
	id := res.Identities[0].Clone()
	res.Close()
	t.Cleanup(func() { id.Close() })
	return id
}

func importCertificate(t *testing.T, svc native.Service, der []byte) *certs.Certificate {
	t.Helper()
	cert, err := certs.CertificateFromDER(svc, der)
	require.NoError(t, err)
	t.Cleanup(func() { cert.Close() })
	return cert
}

type fixture struct {
	ca        *pkitest.Authority
	serverSvc *emulated.Service
	clientSvc *emulated.Service
	identity  *certs.Identity
	anchor    *certs.Certificate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ca:        pkitest.NewAuthority(t, "Transport Root"),
		serverSvc: newService(t),
		clientSvc: newService(t),
	}
	f.identity = importIdentity(t, f.serverSvc, f.ca.Issue(t, serverName))
	f.anchor = importCertificate(t, f.clientSvc, f.ca.DER)
	return f
}

// tcpPair returns both ends of a loopback TCP connection.
func tcpPair(t *testing.T) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()
	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server = <-accepted
	require.NotNil(t, server)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

// serve runs a server handshake on conn and then fn, reporting the first
// error.
func serve(b *ServerBuilder, conn net.Conn, fn func(*Stream) error) <-chan error {
	done := make(chan error, 1)
	go func() {
		s, err := b.Handshake(conn)
		if err != nil {
			conn.Close()
			done <- err
			return
		}
		err = fn(s)
		s.Close()
		done <- err
	}()
	return done
}

func drain(s *Stream) error {
	_, err := io.Copy(io.Discard, s)
	return err
}

func TestHandshakeExchangesData(t *testing.T) {
	f := newFixture(t)
	cconn, sconn := tcpPair(t)
	before := registered()

	server := serve(NewServerBuilder(f.identity).ALPN("h2", "http/1.1"), sconn, func(s *Stream) error {
		buf := make([]byte, 5)
		if _, err := io.ReadFull(s, buf); err != nil {
			return err
		}
		if string(buf) != "hello" {
			return fmt.Errorf("server read %q", buf)
		}
		if _, err := s.Write([]byte("world")); err != nil {
			return err
		}
		if _, err := s.Read(buf); !errors.Is(err, io.EOF) {
			return fmt.Errorf("read after close_notify: %v, want EOF", err)
		}
		return nil
	})

	stream, err := NewClientBuilder(f.clientSvc).Anchors(f.anchor).ALPN("h2").Handshake(serverName, cconn)
	require.NoError(t, err)

	state, err := stream.Context().State()
	require.NoError(t, err)
	assert.Equal(t, Connected, state)

	alpn, err := stream.Context().ALPNProtocols()
	require.NoError(t, err)
	assert.Equal(t, []string{"h2"}, alpn)

	version, err := stream.Context().NegotiatedProtocolVersion()
	require.NoError(t, err)
	assert.Equal(t, TLS13, version)

	_, err = stream.Write([]byte("hello"))
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = io.ReadFull(stream, buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf))

	require.NoError(t, stream.Close())
	require.NoError(t, <-server)
	assert.Equal(t, before, registered())
}

func TestClientRejectsUnknownAuthority(t *testing.T) {
	f := newFixture(t)
	cconn, sconn := tcpPair(t)
	server := serve(NewServerBuilder(f.identity), sconn, drain)

	_, err := NewClientBuilder(f.clientSvc).Handshake(serverName, cconn)
	require.Error(t, err)

	var he *HandshakeError
	require.ErrorAs(t, err, &he)
	defer he.Context.Close()
	assert.ErrorIs(t, err, status.ErrBadCert)
	assert.ErrorIs(t, err, &status.Error{Code: native.ErrSecNotTrusted})
	assert.Equal(t, cconn, he.Stream)

	state, err := he.Context.State()
	require.NoError(t, err)
	assert.Equal(t, Aborted, state)

	assert.Error(t, <-server)
}

func TestClientHostnameChecks(t *testing.T) {
	tests := []struct {
		name          string
		domain        string
		acceptInvalid bool
		wantErr       native.Status
	}{
		{name: "matching", domain: serverName},
		{name: "mismatch", domain: "other.example.com", wantErr: native.ErrSecHostNameMismatch},
		{name: "mismatch accepted", domain: "other.example.com", acceptInvalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			cconn, sconn := tcpPair(t)
			server := serve(NewServerBuilder(f.identity), sconn, drain)

			b := NewClientBuilder(f.clientSvc).Anchors(f.anchor).DangerAcceptInvalidHostnames(tt.acceptInvalid)
			stream, err := b.Handshake(tt.domain, cconn)
			if tt.wantErr != 0 {
				require.Error(t, err)
				assert.ErrorIs(t, err, status.ErrBadCert)
				assert.ErrorIs(t, err, &status.Error{Code: tt.wantErr})
				var he *HandshakeError
				require.ErrorAs(t, err, &he)
				he.Context.Close()
				<-server
				return
			}
			require.NoError(t, err)
			require.NoError(t, stream.Close())
			require.NoError(t, <-server)
		})
	}
}

func TestDangerAcceptInvalidCerts(t *testing.T) {
	f := newFixture(t)
	cconn, sconn := tcpPair(t)
	server := serve(NewServerBuilder(f.identity), sconn, drain)

	stream, err := NewClientBuilder(f.clientSvc).DangerAcceptInvalidCerts(true).Handshake("anything.invalid", cconn)
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	require.NoError(t, <-server)
}

func TestBreakOnServerAuth(t *testing.T) {
	f := newFixture(t)
	cconn, sconn := tcpPair(t)
	server := serve(NewServerBuilder(f.identity), sconn, drain)

	ctx := NewContext(f.clientSvc, ClientSide, StreamConnection)
	require.NoError(t, ctx.SetPeerDomainName(serverName))
	require.NoError(t, ctx.SetBreakOnServerAuth(true))

	_, err := ctx.Handshake(cconn)
	var mid *MidHandshake
	require.ErrorAs(t, err, &mid)
	assert.Equal(t, ServerAuthCompleted, mid.Reason())
	assert.Equal(t, cconn, mid.Stream())
	assert.Same(t, ctx, mid.Context())

	peer, err := ctx.PeerTrust()
	require.NoError(t, err)
	require.NotNil(t, peer)
	defer peer.Close()
	require.NoError(t, peer.SetAnchors([]*certs.Certificate{f.anchor}))
	require.NoError(t, peer.EvaluateWithError())

	stream, err := mid.Handshake()
	require.NoError(t, err)
	state, err := stream.Context().State()
	require.NoError(t, err)
	assert.Equal(t, Connected, state)

	require.NoError(t, stream.Close())
	require.NoError(t, <-server)
}

func TestPeerTrustBeforeHandshake(t *testing.T) {
	svc := newService(t)
	ctx := NewContext(svc, ClientSide, StreamConnection)
	defer ctx.Close()

	peer, err := ctx.PeerTrust()
	require.NoError(t, err)
	assert.Nil(t, peer)

	state, err := ctx.State()
	require.NoError(t, err)
	assert.Equal(t, Idle, state)
}

// blockOnce reports would-block on its first read.
type blockOnce struct {
	net.Conn
	blocked bool
}

func (b *blockOnce) Read(p []byte) (int, error) {
	if !b.blocked {
		b.blocked = true
		return 0, ErrWouldBlock
	}
	return b.Conn.Read(p)
}

func TestWouldBlockResumes(t *testing.T) {
	f := newFixture(t)
	cconn, sconn := tcpPair(t)
	server := serve(NewServerBuilder(f.identity), sconn, drain)

	_, err := NewClientBuilder(f.clientSvc).Anchors(f.anchor).Handshake(serverName, &blockOnce{Conn: cconn})
	var mid *MidHandshake
	require.ErrorAs(t, err, &mid)
	assert.Equal(t, WouldBlock, mid.Reason())

	stream, err := mid.Handshake()
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	require.NoError(t, <-server)
}

// trickle returns at most one byte per read.
type trickle struct {
	net.Conn
}

func (t trickle) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return t.Conn.Read(p)
}

func TestShortReadsAccumulate(t *testing.T) {
	f := newFixture(t)
	cconn, sconn := tcpPair(t)
	server := serve(NewServerBuilder(f.identity), trickle{sconn}, func(s *Stream) error {
		_, err := s.Write([]byte("payload"))
		if err != nil {
			return err
		}
		return drain(s)
	})

	stream, err := NewClientBuilder(f.clientSvc).Anchors(f.anchor).Handshake(serverName, trickle{cconn})
	require.NoError(t, err)
	buf := make([]byte, 7)
	_, err = io.ReadFull(stream, buf)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(buf))
	require.NoError(t, stream.Close())
	require.NoError(t, <-server)
}

var errLinkDown = errors.New("link down")

type brokenStream struct{}

func (brokenStream) Read([]byte) (int, error)    { return 0, errLinkDown }
func (brokenStream) Write(p []byte) (int, error) { return len(p), nil }

func TestHandshakeSurfacesStreamError(t *testing.T) {
	svc := newService(t)
	_, err := NewClientBuilder(svc).Handshake(serverName, brokenStream{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errLinkDown)

	var he *HandshakeError
	require.ErrorAs(t, err, &he)
	defer he.Context.Close()
	assert.Equal(t, brokenStream{}, he.Stream)
}

func TestClientCertificates(t *testing.T) {
	tests := []struct {
		name     string
		issuer   string
		accepted bool
	}{
		{name: "trusted issuer", issuer: "Transport Root", accepted: true},
		{name: "unknown issuer", issuer: "Stranger Root"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			clientCA := f.ca
			if tt.issuer != "Transport Root" {
				clientCA = pkitest.NewAuthority(t, tt.issuer)
			}
			clientID := importIdentity(t, f.clientSvc, clientCA.Issue(t, "client.example.com", pkitest.ClientAuth()))
			serverAnchor := importCertificate(t, f.serverSvc, f.ca.DER)

			cconn, sconn := tcpPair(t)
			b := NewServerBuilder(f.identity).ClientAuth(AlwaysAuthenticate).ClientAnchors(serverAnchor)
			server := serve(b, sconn, drain)

			stream, err := NewClientBuilder(f.clientSvc).Anchors(f.anchor).Identity(clientID).Handshake(serverName, cconn)
			if err == nil {
				stream.Close()
			} else {
				var he *HandshakeError
				if errors.As(err, &he) && he.Context != nil {
					he.Context.Close()
				}
			}

			serverErr := <-server
			if tt.accepted {
				require.NoError(t, err)
				assert.NoError(t, serverErr)
				return
			}
			assert.ErrorIs(t, serverErr, status.ErrBadCert)
		})
	}
}

func TestNewContextRejectsDatagram(t *testing.T) {
	svc := newService(t)
	assert.Panics(t, func() { NewContext(svc, ClientSide, DatagramConnection) })
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want native.Status
	}{
		{"eof", io.EOF, native.ErrSSLClosedGraceful},
		{"not found", fmt.Errorf("open: %w", fs.ErrNotExist), native.ErrSSLClosedGraceful},
		{"would block", ErrWouldBlock, native.ErrSSLWouldBlock},
		{"deadline", &net.OpError{Op: "read", Err: os.ErrDeadlineExceeded}, native.ErrSSLWouldBlock},
		{"closed pipe", io.ErrClosedPipe, native.ErrSSLClosedAbort},
		{"other", errors.New("boom"), native.ErrSecIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestVersionName(t *testing.T) {
	assert.Equal(t, "TLS 1.2", VersionName(TLS12))
	assert.Equal(t, "unknown", VersionName(native.ProtocolUnknown))
	assert.Equal(t, "aborted", Aborted.String())
}

func TestContextCloseReclaimsToken(t *testing.T) {
	f := newFixture(t)
	cconn, sconn := tcpPair(t)
	before := registered()
	server := serve(NewServerBuilder(f.identity), sconn, drain)

	stream, err := NewClientBuilder(f.clientSvc).Anchors(f.anchor).Handshake(serverName, cconn)
	require.NoError(t, err)
	assert.Same(t, cconn, stream.Underlying())

	require.NoError(t, stream.Context().Close())
	assert.Nil(t, stream.Underlying())
	require.NoError(t, <-server)
	assert.Equal(t, before, registered())

	require.NoError(t, stream.Close())
	assert.Equal(t, before, registered())
}

func TestAbandonedMidHandshakeReclaimsToken(t *testing.T) {
	f := newFixture(t)
	cconn, sconn := tcpPair(t)
	before := registered()
	server := serve(NewServerBuilder(f.identity), sconn, drain)

	ctx := NewContext(f.clientSvc, ClientSide, StreamConnection)
	require.NoError(t, ctx.SetPeerDomainName(serverName))
	require.NoError(t, ctx.SetBreakOnServerAuth(true))

	_, err := ctx.Handshake(cconn)
	var mid *MidHandshake
	require.ErrorAs(t, err, &mid)
	assert.Same(t, cconn, mid.Stream())

	require.NoError(t, ctx.Close())
	assert.Nil(t, mid.Stream())

	cconn.Close()
	<-server
	assert.Equal(t, before, registered())
}

// failFirstRead fails its first read and passes the rest through.
type failFirstRead struct {
	net.Conn
	failed bool
}

func (f *failFirstRead) Read(p []byte) (int, error) {
	if !f.failed {
		f.failed = true
		return 0, errLinkDown
	}
	return f.Conn.Read(p)
}

func TestFailedHandshakeReturnsUsableStream(t *testing.T) {
	f := newFixture(t)
	cconn, sconn := tcpPair(t)
	before := registered()
	link := &failFirstRead{Conn: cconn}

	_, err := NewClientBuilder(f.clientSvc).Anchors(f.anchor).Handshake(serverName, link)
	var he *HandshakeError
	require.ErrorAs(t, err, &he)
	assert.ErrorIs(t, err, errLinkDown)
	require.Same(t, link, he.Stream)
	require.NoError(t, he.Context.Close())
	assert.Equal(t, before, registered())

	// Drop the client hello of the failed attempt.
	hdr := make([]byte, 5)
	_, err = io.ReadFull(sconn, hdr)
	require.NoError(t, err)
	_, err = io.CopyN(io.Discard, sconn, int64(hdr[3])<<8|int64(hdr[4]))
	require.NoError(t, err)

	server := serve(NewServerBuilder(f.identity), sconn, func(s *Stream) error {
		_, err := s.Write([]byte("again"))
		if err != nil {
			return err
		}
		return drain(s)
	})

	stream, err := NewClientBuilder(f.clientSvc).Anchors(f.anchor).Handshake(serverName, he.Stream)
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = io.ReadFull(stream, buf)
	require.NoError(t, err)
	assert.Equal(t, "again", string(buf))
	require.NoError(t, stream.Close())
	require.NoError(t, <-server)
	assert.Equal(t, before, registered())
}

func TestRecordKeepsLastError(t *testing.T) {
	c := &connection{}
	first := errors.New("first")
	c.record(first)
	c.record(errLinkDown)
	assert.Equal(t, errLinkDown, c.takeErr())
	assert.NoError(t, c.takeErr())
}
