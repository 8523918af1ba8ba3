package certs

import (
	"fmt"

	"github.com/benaskins/secframe/internal/cf"
	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/status"
)

// Access is a legacy access list attached to items in keychain files.
type Access struct {
	h *cf.Handle
}

// NewAccess creates an access list naming the applications allowed to use
// an item without prompting.
func NewAccess(svc native.Service, descriptor string, trustedApplications []string) (*Access, error) {
	ref, st := svc.AccessCreate(descriptor, trustedApplications)
	if err := status.Translate(svc, st); err != nil {
		return nil, fmt.Errorf("creating access %q: %w", descriptor, err)
	}
	return &Access{h: cf.WrapOwning(svc, ref)}, nil
}

func (a *Access) Handle() *cf.Handle { return a.h }
func (a *Access) Close() error       { return a.h.Close() }

// AccessControl constrains when and how an item may be used.
type AccessControl struct {
	h *cf.Handle
}

// NewAccessControl creates an access control. protection is one of the
// native.Accessible values.
func NewAccessControl(svc native.Service, protection string, flags native.AccessControlFlags) (*AccessControl, error) {
	ref, st := svc.AccessControlCreateWithFlags(protection, flags)
	if err := status.Translate(svc, st); err != nil {
		return nil, fmt.Errorf("creating access control: %w", err)
	}
	return &AccessControl{h: cf.WrapOwning(svc, ref)}, nil
}

func (a *AccessControl) Handle() *cf.Handle { return a.h }
func (a *AccessControl) Close() error       { return a.h.Close() }
