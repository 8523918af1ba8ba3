package securetransport

import (
	"io"
	"sync"

	"github.com/benaskins/secframe/internal/native"
)

// connection is the Go side of a native connection token. The native
// context only ever sees the token; the stream stays in this table so the
// garbage collector keeps it alive for as long as the context may call back.
type connection struct {
	stream io.ReadWriter

	mu  sync.Mutex
	err error
}

// record keeps the last I/O error seen during a native call so it can be
// returned in place of the status it was reduced to.
func (c *connection) record(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *connection) takeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.err
	c.err = nil
	return err
}

var registry = struct {
	sync.Mutex
	next  native.Connection
	conns map[native.Connection]*connection
}{conns: make(map[native.Connection]*connection)}

func register(stream io.ReadWriter) (native.Connection, *connection) {
	registry.Lock()
	defer registry.Unlock()
	registry.next++
	c := &connection{stream: stream}
	registry.conns[registry.next] = c
	return registry.next, c
}

func lookup(id native.Connection) (*connection, bool) {
	registry.Lock()
	defer registry.Unlock()
	c, ok := registry.conns[id]
	return c, ok
}

// unregister removes the token and hands the stream back.
func unregister(id native.Connection) io.ReadWriter {
	registry.Lock()
	defer registry.Unlock()
	c, ok := registry.conns[id]
	if !ok {
		return nil
	}
	delete(registry.conns, id)
	return c.stream
}

func registered() int {
	registry.Lock()
	defer registry.Unlock()
	return len(registry.conns)
}

// readFunc fills data from the stream, looping over short reads.
func readFunc(id native.Connection, data []byte) (int, native.Status) {
	c, ok := lookup(id)
	if !ok {
		return 0, native.ErrSecParam
	}
	n := 0
	for n < len(data) {
		m, err := c.stream.Read(data[n:])
		n += m
		if err != nil {
			c.record(err)
			return n, classify(err)
		}
		if m == 0 {
			return n, native.ErrSSLClosedNoNotify
		}
	}
	return n, native.ErrSecSuccess
}

// writeFunc drains data into the stream, looping over short writes.
func writeFunc(id native.Connection, data []byte) (int, native.Status) {
	c, ok := lookup(id)
	if !ok {
		return 0, native.ErrSecParam
	}
	n := 0
	for n < len(data) {
		m, err := c.stream.Write(data[n:])
		n += m
		if err != nil {
			c.record(err)
			return n, classify(err)
		}
		if m == 0 {
			return n, native.ErrSSLClosedNoNotify
		}
	}
	return n, native.ErrSecSuccess
}
