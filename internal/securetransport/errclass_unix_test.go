//go:build unix

package securetransport

import (
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/benaskins/secframe/internal/native"
)

func TestClassifyErrno(t *testing.T) {
	wrap := func(errno unix.Errno) error {
		return &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", errno)}
	}
	assert.Equal(t, native.ErrSSLClosedAbort, classify(wrap(unix.ECONNRESET)))
	assert.Equal(t, native.ErrSSLClosedAbort, classify(wrap(unix.EPIPE)))
	assert.Equal(t, native.ErrSSLWouldBlock, classify(wrap(unix.EAGAIN)))
	assert.Equal(t, native.ErrSecIO, classify(wrap(unix.EINVAL)))
}
