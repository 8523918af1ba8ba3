package emulated

import (
	"fmt"
	"sort"
	"strings"

	"github.com/benaskins/secframe/internal/native"
)

type policy struct {
	oid        string
	name       string
	hostname   string
	client     bool
	revocation native.RevocationFlags
}

func (s *Service) policyOf(ref native.Ref) (*policy, bool) {
	return valueOf[*policy](s, ref, native.KindPolicy)
}

func (s *Service) PolicyCreateSSL(server bool, hostname string) native.Ref {
	p := &policy{oid: native.PolicyOidAppleSSL, name: native.PolicyNameSSLServer, hostname: hostname, client: !server}
	if !server {
		p.name = native.PolicyNameSSLClient
	}
	return s.alloc(native.KindPolicy, p)
}

func (s *Service) PolicyCreateBasicX509() native.Ref {
	return s.alloc(native.KindPolicy, &policy{oid: native.PolicyOidAppleX509Basic, name: native.PolicyNameBasicX509})
}

func (s *Service) PolicyCreateRevocation(flags native.RevocationFlags) native.Ref {
	return s.alloc(native.KindPolicy, &policy{oid: native.PolicyOidAppleRevocation, name: native.PolicyNameRevocation, revocation: flags})
}

// PolicyCopyProperties reports the policy oid, and for SSL policies the host
// name under PolicyName the way the native service does.
func (s *Service) PolicyCopyProperties(ref native.Ref) native.Dict {
	p, ok := s.policyOf(ref)
	if !ok {
		return nil
	}
	props := native.Dict{native.PolicyOid: p.oid}
	if p.oid == native.PolicyOidAppleSSL {
		if p.hostname != "" {
			props[native.PolicyName] = p.hostname
		}
		props[native.PolicyClient] = p.client
	}
	return props
}

type access struct {
	descriptor string
	apps       []string
}

type accessControl struct {
	protection string
	flags      native.AccessControlFlags
}

func (s *Service) AccessCreate(descriptor string, trustedApplications []string) (native.Ref, native.Status) {
	if descriptor == "" {
		return native.NullRef, native.ErrSecParam
	}
	apps := append([]string(nil), trustedApplications...)
	sort.Strings(apps)
	return s.alloc(native.KindAccess, &access{descriptor: descriptor, apps: apps}), native.ErrSecSuccess
}

func (s *Service) AccessControlCreateWithFlags(protection string, flags native.AccessControlFlags) (native.Ref, native.Status) {
	switch protection {
	case native.AccessibleWhenUnlocked, native.AccessibleAfterFirstUnlock,
		native.AccessibleWhenUnlockedThisDeviceOnly, native.AccessibleAfterFirstUnlockThisDeviceOnly,
		native.AccessibleWhenPasscodeSetThisDeviceOnly:
	default:
		return native.NullRef, native.ErrSecParam
	}
	if flags&native.AccessControlOr != 0 && flags&native.AccessControlAnd != 0 {
		return native.NullRef, native.ErrSecParam
	}
	return s.alloc(native.KindAccessControl, &accessControl{protection: protection, flags: flags}), native.ErrSecSuccess
}

// describeAccess renders an access or access control reference as the
// string stored with an item.
func (s *Service) describeAccess(ref native.Ref) (string, bool) {
	obj, ok := s.lookup(ref)
	if !ok {
		return "", false
	}
	switch v := obj.value.(type) {
	case *access:
		return fmt.Sprintf("%s;%s", v.descriptor, strings.Join(v.apps, ",")), true
	case *accessControl:
		return fmt.Sprintf("%s;%#x", v.protection, uint64(v.flags)), true
	}
	return "", false
}

// storableAttrs replaces access references with their stored form.
func (s *Service) storableAttrs(attrs native.Dict) (native.Dict, native.Status) {
	out := copyDict(attrs)
	for k, v := range out {
		ref, ok := v.(native.Ref)
		if !ok {
			continue
		}
		desc, ok := s.describeAccess(ref)
		if !ok {
			return nil, native.ErrSecParam
		}
		out[k] = desc
	}
	return out, native.ErrSecSuccess
}
