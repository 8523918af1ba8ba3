package emulated

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/benaskins/secframe/internal/native"
)

const recordHeaderLen = 5

var (
	errAborted    = errors.New("secure transport operation aborted")
	errShortIO    = errors.New("callback made no progress")
	errUntrusted  = errors.New("peer certificate chain not trusted")
	errBadPeerCrt = errors.New("peer certificate could not be decoded")
)

type callbackError struct {
	status native.Status
}

func (e *callbackError) Error() string {
	return fmt.Sprintf("i/o callback failed with status %d", e.status)
}

// bridge adapts the caller's read and write callbacks to a net.Conn for
// crypto/tls. Reads are issued one record header or record body at a time so
// a callback is never asked for more bytes than the peer has sent.
type bridge struct {
	ctx   *sslContext
	read  native.ReadFunc
	write native.WriteFunc
	conn  native.Connection

	want    int
	header  bool
	unit    []byte
	pending []byte
}

func (b *bridge) Read(p []byte) (int, error) {
	for len(b.pending) == 0 {
		if err := b.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

// fill reads the next record header or body into pending.
func (b *bridge) fill() error {
	if b.want == 0 {
		b.want, b.header, b.unit = recordHeaderLen, true, b.unit[:0]
	}
	for len(b.unit) < b.want {
		buf := make([]byte, b.want-len(b.unit))
		n, st := b.read(b.conn, buf)
		b.unit = append(b.unit, buf[:n]...)
		switch st {
		case native.ErrSecSuccess:
			if n == 0 {
				b.ctx.fault = native.ErrSSLInternal
				return errShortIO
			}
		case native.ErrSSLWouldBlock:
			if !b.ctx.pause(st) {
				return errAborted
			}
		case native.ErrSSLClosedGraceful, native.ErrSSLClosedNoNotify, native.ErrSSLClosedAbort:
			b.ctx.fault = st
			return io.EOF
		default:
			b.ctx.fault = st
			return &callbackError{status: st}
		}
	}

	b.pending = append(b.pending, b.unit...)
	if b.header {
		b.header = false
		b.want = int(b.unit[3])<<8 | int(b.unit[4])
	} else {
		b.want = 0
	}
	b.unit = b.unit[:0]
	return nil
}

func (b *bridge) Write(p []byte) (int, error) {
	done := 0
	for done < len(p) {
		n, st := b.write(b.conn, p[done:])
		done += n
		switch st {
		case native.ErrSecSuccess:
			if n == 0 {
				b.ctx.fault = native.ErrSSLInternal
				return done, errShortIO
			}
		case native.ErrSSLWouldBlock:
			if !b.ctx.pause(st) {
				return done, errAborted
			}
		default:
			b.ctx.fault = st
			return done, &callbackError{status: st}
		}
	}
	return done, nil
}

func (b *bridge) Close() error                       { return nil }
func (b *bridge) LocalAddr() net.Addr                { return bridgeAddr{} }
func (b *bridge) RemoteAddr() net.Addr               { return bridgeAddr{} }
func (b *bridge) SetDeadline(t time.Time) error      { return nil }
func (b *bridge) SetReadDeadline(t time.Time) error  { return nil }
func (b *bridge) SetWriteDeadline(t time.Time) error { return nil }

type bridgeAddr struct{}

func (bridgeAddr) Network() string { return "callback" }
func (bridgeAddr) String() string  { return "callback" }
