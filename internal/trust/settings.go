package trust

import (
	"errors"
	"fmt"

	"github.com/benaskins/secframe/internal/certs"
	"github.com/benaskins/secframe/internal/cf"
	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/status"
)

// Domain selects whose trust settings are read or written.
type Domain = native.TrustSettingsDomain

const (
	User   = native.TrustSettingsDomainUser
	Admin  = native.TrustSettingsDomainAdmin
	System = native.TrustSettingsDomainSystem
)

// ForCertificate is the trust a settings entry assigns to a certificate.
type ForCertificate uint32

const (
	SettingsInvalid     = ForCertificate(native.TrustSettingsResultInvalid)
	SettingsTrustRoot   = ForCertificate(native.TrustSettingsResultTrustRoot)
	SettingsTrustAsRoot = ForCertificate(native.TrustSettingsResultTrustAsRoot)
	SettingsDeny        = ForCertificate(native.TrustSettingsResultDeny)
	SettingsUnspecified = ForCertificate(native.TrustSettingsResultUnspecified)
)

// forCertificate maps a stored result to a ForCertificate. Values outside
// the known range are SettingsInvalid.
func forCertificate(n int64) ForCertificate {
	if n < int64(SettingsInvalid) || n > int64(SettingsUnspecified) {
		return SettingsInvalid
	}
	return ForCertificate(n)
}

func (f ForCertificate) String() string {
	switch f {
	case SettingsInvalid:
		return "invalid"
	case SettingsTrustRoot:
		return "trust root"
	case SettingsTrustAsRoot:
		return "trust as root"
	case SettingsDeny:
		return "deny"
	case SettingsUnspecified:
		return "unspecified"
	}
	return fmt.Sprintf("ForCertificate(%d)", uint32(f))
}

// explicit reports whether f decides trust on its own.
func (f ForCertificate) explicit() bool {
	return f != SettingsUnspecified && f != SettingsInvalid
}

// Entry is one usage constraint of a certificate's trust settings.
type Entry struct {
	// Policy limits the entry to one policy. Nil applies to every policy.
	Policy *certs.Policy
	// PolicyName is filled in by CopyTrustSettings.
	PolicyName   string
	PolicyString string
	Result       ForCertificate
	// HasResult is false when the entry leaves the result at its default.
	HasResult    bool
	AllowedError native.Status
	KeyUsage     uint32
}

func (e Entry) dict() native.Dict {
	d := native.Dict{}
	if e.Policy != nil {
		d[native.TrustSettingsPolicy] = e.Policy.Handle().Ref()
	}
	if e.PolicyString != "" {
		d[native.TrustSettingsPolicyString] = e.PolicyString
	}
	if e.HasResult {
		d[native.TrustSettingsResult] = int64(e.Result)
	}
	if e.AllowedError != native.ErrSecSuccess {
		d[native.TrustSettingsAllowedError] = int64(e.AllowedError)
	}
	if e.KeyUsage != 0 {
		d[native.TrustSettingsKeyUsage] = int64(e.KeyUsage)
	}
	return d
}

func entryOf(svc native.Service, d native.Dict) Entry {
	var e Entry
	if ref, ok := d[native.TrustSettingsPolicy].(native.Ref); ok && ref != native.NullRef {
		e.Policy = certs.WrapPolicy(cf.WrapBorrowing(svc, ref))
	}
	e.PolicyName, _ = d[native.TrustSettingsPolicyName].(string)
	e.PolicyString, _ = d[native.TrustSettingsPolicyString].(string)
	if n, ok := d[native.TrustSettingsResult].(int64); ok {
		e.Result, e.HasResult = forCertificate(n), true
	}
	if n, ok := d[native.TrustSettingsAllowedError].(int64); ok {
		e.AllowedError = native.Status(n)
	}
	if n, ok := d[native.TrustSettingsKeyUsage].(int64); ok {
		e.KeyUsage = uint32(n)
	}
	return e
}

// CloseEntries releases the policies held by entries.
func CloseEntries(entries []Entry) {
	for _, e := range entries {
		if e.Policy != nil {
			e.Policy.Close()
		}
	}
}

// Settings reads and writes the trust settings of one domain. The System
// domain is read-only.
type Settings struct {
	svc    native.Service
	Domain Domain
}

func NewSettings(svc native.Service, domain Domain) *Settings {
	return &Settings{svc: svc, Domain: domain}
}

// Certificates lists the certificates that have settings in the domain.
func (s *Settings) Certificates() ([]*certs.Certificate, error) {
	v, st := s.svc.TrustSettingsCopyCertificates(s.Domain)
	if st == native.ErrSecNoTrustSettings {
		return nil, nil
	}
	if err := status.Translate(s.svc, st); err != nil {
		return nil, fmt.Errorf("listing trust settings: %w", err)
	}
	defer s.svc.ReleaseValue(v)

	list, _ := v.([]native.Value)
	out := make([]*certs.Certificate, 0, len(list))
	for _, e := range list {
		if ref, ok := e.(native.Ref); ok && ref != native.NullRef {
			out = append(out, certs.WrapCertificate(cf.WrapBorrowing(s.svc, ref)))
		}
	}
	return out, nil
}

// CopyTrustSettings returns the entries recorded for cert. A certificate
// without a record is ErrItemNotFound. Close the result with CloseEntries.
func (s *Settings) CopyTrustSettings(cert *certs.Certificate) ([]Entry, error) {
	v, st := s.svc.TrustSettingsCopyTrustSettings(cert.Handle().Ref(), s.Domain)
	if err := status.Translate(s.svc, st); err != nil {
		return nil, err
	}
	defer s.svc.ReleaseValue(v)

	list, _ := v.([]native.Value)
	out := make([]Entry, 0, len(list))
	for _, e := range list {
		if d, ok := e.(native.Dict); ok {
			out = append(out, entryOf(s.svc, d))
		}
	}
	return out, nil
}

// SetTrustSettings replaces the record for cert. No entries means the
// certificate is trusted as a root for every policy.
func (s *Settings) SetTrustSettings(cert *certs.Certificate, entries []Entry) error {
	list := make([]native.Value, len(entries))
	for i, e := range entries {
		list[i] = e.dict()
	}
	if err := status.Translate(s.svc, s.svc.TrustSettingsSetTrustSettings(cert.Handle().Ref(), s.Domain, list)); err != nil {
		return fmt.Errorf("setting trust for %q: %w", cert.SubjectSummary(), err)
	}
	return nil
}

func (s *Settings) RemoveTrustSettings(cert *certs.Certificate) error {
	if err := status.Translate(s.svc, s.svc.TrustSettingsRemoveTrustSettings(cert.Handle().Ref(), s.Domain)); err != nil {
		return fmt.Errorf("removing trust for %q: %w", cert.SubjectSummary(), err)
	}
	return nil
}

// TLSTrustSettingsForCertificate reports the trust the domain assigns to
// cert for TLS server authentication. found is false when the domain has no
// record for cert.
func (s *Settings) TLSTrustSettingsForCertificate(cert *certs.Certificate) (result ForCertificate, found bool, err error) {
	entries, err := s.CopyTrustSettings(cert)
	if errors.Is(err, status.ErrItemNotFound) {
		return SettingsInvalid, false, nil
	}
	if err != nil {
		return SettingsInvalid, false, err
	}
	defer CloseEntries(entries)

	for _, e := range entries {
		if e.PolicyName != "" && e.PolicyName != native.PolicyNameSSLServer {
			continue
		}
		if !e.HasResult {
			return SettingsTrustRoot, true, nil
		}
		if e.Result.explicit() {
			return e.Result, true, nil
		}
	}
	return SettingsTrustRoot, true, nil
}
