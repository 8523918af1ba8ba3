// Package status turns native status codes into Go errors. It is the only
// place non-success codes become errors; other packages compare raw codes
// only where a code selects behaviour rather than reports a failure.
package status

import (
	"errors"
	"fmt"

	"github.com/benaskins/secframe/internal/native"
)

// Error is a non-success native status. Code is preserved exactly as the
// service returned it.
type Error struct {
	Code    native.Status
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("OSStatus %d", e.Code)
	}
	return fmt.Sprintf("%s (OSStatus %d)", e.Message, e.Code)
}

// Is reports whether target is an *Error with the same code, so sentinels
// match regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// MessageSource looks up the description of a status code.
type MessageSource interface {
	CopyErrorMessageString(code native.Status) (string, bool)
}

// Translate returns nil for success and an *Error otherwise. The message is
// looked up through src when it is not nil; a failed lookup leaves it empty.
func Translate(src MessageSource, code native.Status) error {
	if code == native.ErrSecSuccess {
		return nil
	}
	e := &Error{Code: code}
	if src != nil {
		if msg, ok := src.CopyErrorMessageString(code); ok {
			e.Message = msg
		}
	}
	return e
}

// Code extracts the status code carried by err.
func Code(err error) (native.Status, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// Is reports whether err carries code.
func Is(err error, code native.Status) bool {
	c, ok := Code(err)
	return ok && c == code
}

func sentinel(code native.Status) *Error {
	return &Error{Code: code}
}

// Sentinels for codes callers commonly branch on. Compare with errors.Is.
var (
	ErrParam                 = sentinel(native.ErrSecParam)
	ErrIO                    = sentinel(native.ErrSecIO)
	ErrBadReq                = sentinel(native.ErrSecBadReq)
	ErrUnimplemented         = sentinel(native.ErrSecUnimplemented)
	ErrItemNotFound          = sentinel(native.ErrSecItemNotFound)
	ErrDuplicateItem         = sentinel(native.ErrSecDuplicateItem)
	ErrAuthFailed            = sentinel(native.ErrSecAuthFailed)
	ErrInteractionNotAllowed = sentinel(native.ErrSecInteractionNotAllowed)
	ErrNoSuchKeychain        = sentinel(native.ErrSecNoSuchKeychain)
	ErrDuplicateKeychain     = sentinel(native.ErrSecDuplicateKeychain)
	ErrDecode                = sentinel(native.ErrSecDecode)
	ErrNoTrustSettings       = sentinel(native.ErrSecNoTrustSettings)
	ErrUnknownFormat         = sentinel(native.ErrSecUnknownFormat)
	ErrNotAvailable          = sentinel(native.ErrSecNotAvailable)
	ErrReadOnly              = sentinel(native.ErrSecReadOnly)
	ErrVerifyFailed          = sentinel(native.ErrSecVerifyFailed)

	ErrWouldBlock     = sentinel(native.ErrSSLWouldBlock)
	ErrClosedGraceful = sentinel(native.ErrSSLClosedGraceful)
	ErrClosedAbort    = sentinel(native.ErrSSLClosedAbort)
	ErrClosedNoNotify = sentinel(native.ErrSSLClosedNoNotify)
	ErrProtocol       = sentinel(native.ErrSSLProtocol)
	ErrBadCert        = sentinel(native.ErrSSLBadCert)
)
