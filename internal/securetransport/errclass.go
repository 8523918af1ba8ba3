package securetransport

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/benaskins/secframe/internal/native"
)

// ErrWouldBlock is returned by non-blocking streams that have no data or
// buffer space yet. The operation that saw it can be resumed later.
var ErrWouldBlock = errors.New("securetransport: operation would block")

// classify reduces a stream error to the status handed to the native
// context.
func classify(err error) native.Status {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, fs.ErrNotExist):
		return native.ErrSSLClosedGraceful
	case errors.Is(err, ErrWouldBlock), errors.Is(err, os.ErrDeadlineExceeded):
		return native.ErrSSLWouldBlock
	case errors.Is(err, io.ErrClosedPipe):
		return native.ErrSSLClosedAbort
	}
	return classifyErrno(err)
}
