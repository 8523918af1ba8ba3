package securetransport

import (
	"errors"
	"io"

	"github.com/benaskins/secframe/internal/native"
)

// Stream is an established session. It is an io.ReadWriteCloser; reads and
// writes go through the native context and from there to the underlying
// stream.
type Stream struct {
	ctx *Context
	id  native.Connection
}

func (s *Stream) Context() *Context { return s.ctx }

// Underlying returns the stream the session runs over.
func (s *Stream) Underlying() io.ReadWriter {
	if c, ok := lookup(s.id); ok {
		return c.stream
	}
	return nil
}

func (s *Stream) conn() *connection {
	if c, ok := lookup(s.id); ok {
		return c
	}
	return &connection{}
}

// errFor prefers the error the stream itself returned over the status the
// native context reduced it to.
func (s *Stream) errFor(st native.Status) error {
	if err := s.conn().takeErr(); err != nil {
		return err
	}
	return s.ctx.translate(st)
}

func closedStatus(st native.Status) bool {
	switch st {
	case native.ErrSSLClosedGraceful, native.ErrSSLClosedNoNotify, native.ErrSSLClosedAbort:
		return true
	}
	return false
}

// Read returns decrypted data. A closed session reads as io.EOF.
func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	// Never ask for more than is already decrypted, so a read that could
	// be served from the buffer does not wait on the stream.
	if buffered, err := s.ctx.BufferedReadSize(); err == nil && buffered > 0 && buffered < len(p) {
		p = p[:buffered]
	}
	for {
		n, st := s.ctx.svc().SSLRead(s.ctx.ref(), p)
		switch {
		case st == native.ErrSecSuccess:
			if n == 0 {
				continue
			}
			return n, nil
		case n > 0:
			return n, nil
		case closedStatus(st):
			if err := s.conn().takeErr(); err != nil && !errors.Is(err, io.EOF) {
				return 0, err
			}
			return 0, io.EOF
		case st == native.ErrSSLPeerAuthCompleted:
			// Renegotiation stopped at the break point; nothing to check.
			continue
		}
		return 0, s.errFor(st)
	}
}

// Write encrypts and sends p.
func (s *Stream) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, st := s.ctx.svc().SSLWrite(s.ctx.ref(), p[written:])
		written += n
		if st != native.ErrSecSuccess {
			return written, s.errFor(st)
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}

// Close sends close_notify when the session is established, releases the
// context and closes the underlying stream if it is an io.Closer.
func (s *Stream) Close() error {
	stream := s.Underlying()
	s.ctx.Close()
	if c, ok := stream.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
