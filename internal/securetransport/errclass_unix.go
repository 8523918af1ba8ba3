//go:build unix

package securetransport

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/benaskins/secframe/internal/native"
)

func classifyErrno(err error) native.Status {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return native.ErrSecIO
	}
	switch errno {
	case unix.ECONNRESET, unix.EPIPE, unix.ECONNABORTED:
		return native.ErrSSLClosedAbort
	case unix.EAGAIN, unix.EINTR:
		return native.ErrSSLWouldBlock
	case unix.ENOENT:
		return native.ErrSSLClosedGraceful
	}
	return native.ErrSecIO
}
