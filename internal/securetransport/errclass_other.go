//go:build !unix

package securetransport

import "github.com/benaskins/secframe/internal/native"

func classifyErrno(error) native.Status {
	return native.ErrSecIO
}
