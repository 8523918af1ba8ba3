package emulated

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/benaskins/secframe/internal/native"
)

const settingsSchema = `
CREATE TABLE IF NOT EXISTS trust_settings (
	domain    INTEGER NOT NULL,
	cert_hash TEXT NOT NULL,
	cert      BLOB NOT NULL,
	settings  TEXT NOT NULL,
	PRIMARY KEY (domain, cert_hash)
);
`

type storedPolicy struct {
	OID        string `json:"oid"`
	Name       string `json:"name"`
	Hostname   string `json:"hostname,omitempty"`
	Client     bool   `json:"client,omitempty"`
	Revocation uint32 `json:"revocation,omitempty"`
}

type storedSetting struct {
	Policy       *storedPolicy `json:"policy,omitempty"`
	PolicyString string        `json:"policy_string,omitempty"`
	Result       *int64        `json:"result,omitempty"`
	AllowedError *int64        `json:"allowed_error,omitempty"`
	KeyUsage     *int64        `json:"key_usage,omitempty"`
}

type settingsStore struct {
	db *sql.DB
}

func (s *Service) trustSettings() (*settingsStore, error) {
	s.settingsOnce.Do(func() {
		path := filepath.Join(s.root, "trust-settings.db")
		if err := os.MkdirAll(s.root, 0700); err != nil {
			s.settingsErr = fmt.Errorf("creating trust settings directory: %w", err)
			return
		}
		db, err := openDB(path)
		if err != nil {
			s.settingsErr = err
			return
		}
		if _, err := db.Exec(settingsSchema); err != nil {
			db.Close()
			s.settingsErr = fmt.Errorf("initializing trust settings schema: %w", err)
			return
		}
		s.settings = &settingsStore{db: db}
	})
	return s.settings, s.settingsErr
}

func certHash(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

func (ss *settingsStore) get(domain native.TrustSettingsDomain, der []byte) ([]storedSetting, bool, error) {
	var raw string
	err := ss.db.QueryRow("SELECT settings FROM trust_settings WHERE domain = ? AND cert_hash = ?", int(domain), certHash(der)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var out []storedSetting
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (ss *settingsStore) put(domain native.TrustSettingsDomain, der []byte, settings []storedSetting) error {
	if settings == nil {
		settings = []storedSetting{}
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	_, err = ss.db.Exec(`INSERT INTO trust_settings (domain, cert_hash, cert, settings) VALUES (?, ?, ?, ?)
		ON CONFLICT(domain, cert_hash) DO UPDATE SET settings = excluded.settings`,
		int(domain), certHash(der), der, string(raw))
	return err
}

func (ss *settingsStore) remove(domain native.TrustSettingsDomain, der []byte) (bool, error) {
	res, err := ss.db.Exec("DELETE FROM trust_settings WHERE domain = ? AND cert_hash = ?", int(domain), certHash(der))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (ss *settingsStore) certificates(domain native.TrustSettingsDomain) ([][]byte, error) {
	rows, err := ss.db.Query("SELECT cert FROM trust_settings WHERE domain = ? ORDER BY cert_hash", int(domain))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][]byte
	for rows.Next() {
		var der []byte
		if err := rows.Scan(&der); err != nil {
			return nil, err
		}
		out = append(out, der)
	}
	return out, rows.Err()
}

func (ss *settingsStore) close() error {
	return ss.db.Close()
}

func validDomain(d native.TrustSettingsDomain) bool {
	switch d {
	case native.TrustSettingsDomainUser, native.TrustSettingsDomainAdmin, native.TrustSettingsDomainSystem:
		return true
	}
	return false
}

// settingsFor opens the settings database after the capability and domain
// checks shared by every trust settings entry point.
func (s *Service) settingsFor(domain native.TrustSettingsDomain) (*settingsStore, native.Status) {
	if !s.HasCapability(native.CapabilityTrustSettings) {
		return nil, native.ErrSecUnimplemented
	}
	if !validDomain(domain) {
		return nil, native.ErrSecParam
	}
	ss, err := s.trustSettings()
	if err != nil {
		s.logger.Debug("trust settings unavailable", "error", err)
		return nil, native.ErrSecIO
	}
	return ss, native.ErrSecSuccess
}

func (s *Service) TrustSettingsCopyCertificates(domain native.TrustSettingsDomain) (native.Value, native.Status) {
	ss, status := s.settingsFor(domain)
	if status != native.ErrSecSuccess {
		return nil, status
	}
	ders, err := ss.certificates(domain)
	if err != nil {
		return nil, native.ErrSecIO
	}
	if len(ders) == 0 {
		return nil, native.ErrSecNoTrustSettings
	}
	out := make([]native.Value, 0, len(ders))
	for _, der := range ders {
		c, ok := parseCertificate(der)
		if !ok {
			s.ReleaseValue(out)
			return nil, native.ErrSecInvalidTrustSettings
		}
		out = append(out, s.certificateRef(c))
	}
	return out, native.ErrSecSuccess
}

func (s *Service) TrustSettingsCopyTrustSettings(certRef native.Ref, domain native.TrustSettingsDomain) (native.Value, native.Status) {
	c, ok := s.certOf(certRef)
	if !ok {
		return nil, native.ErrSecParam
	}
	ss, status := s.settingsFor(domain)
	if status != native.ErrSecSuccess {
		return nil, status
	}
	entries, found, err := ss.get(domain, c.cert.Raw)
	if err != nil {
		return nil, native.ErrSecInvalidTrustSettings
	}
	if !found {
		return nil, native.ErrSecItemNotFound
	}

	out := make([]native.Value, 0, len(entries))
	for _, e := range entries {
		d := native.Dict{}
		if e.Policy != nil {
			p := &policy{
				oid:        e.Policy.OID,
				name:       e.Policy.Name,
				hostname:   e.Policy.Hostname,
				client:     e.Policy.Client,
				revocation: native.RevocationFlags(e.Policy.Revocation),
			}
			d[native.TrustSettingsPolicy] = s.alloc(native.KindPolicy, p)
			d[native.TrustSettingsPolicyName] = p.name
		}
		if e.PolicyString != "" {
			d[native.TrustSettingsPolicyString] = e.PolicyString
		}
		if e.Result != nil {
			d[native.TrustSettingsResult] = *e.Result
		}
		if e.AllowedError != nil {
			d[native.TrustSettingsAllowedError] = *e.AllowedError
		}
		if e.KeyUsage != nil {
			d[native.TrustSettingsKeyUsage] = *e.KeyUsage
		}
		out = append(out, d)
	}
	return out, native.ErrSecSuccess
}

func (s *Service) parseSettings(v native.Value) ([]storedSetting, native.Status) {
	var dicts []native.Dict
	switch v := v.(type) {
	case nil:
	case native.Dict:
		dicts = []native.Dict{v}
	case []native.Dict:
		dicts = v
	case []native.Value:
		for _, e := range v {
			d, ok := e.(native.Dict)
			if !ok {
				return nil, native.ErrSecParam
			}
			dicts = append(dicts, d)
		}
	default:
		return nil, native.ErrSecParam
	}

	out := make([]storedSetting, 0, len(dicts))
	for _, d := range dicts {
		var e storedSetting
		if pv, ok := d[native.TrustSettingsPolicy]; ok {
			ref, _ := pv.(native.Ref)
			p, ok := s.policyOf(ref)
			if !ok {
				return nil, native.ErrSecParam
			}
			e.Policy = &storedPolicy{OID: p.oid, Name: p.name, Hostname: p.hostname, Client: p.client, Revocation: uint32(p.revocation)}
		}
		e.PolicyString, _ = stringValue(d[native.TrustSettingsPolicyString])
		if n, ok := intValue(d[native.TrustSettingsResult]); ok {
			if n < int64(native.TrustSettingsResultInvalid) || n > int64(native.TrustSettingsResultUnspecified) {
				return nil, native.ErrSecInvalidTrustSettings
			}
			e.Result = &n
		}
		if n, ok := intValue(d[native.TrustSettingsAllowedError]); ok {
			e.AllowedError = &n
		}
		if n, ok := intValue(d[native.TrustSettingsKeyUsage]); ok {
			e.KeyUsage = &n
		}
		out = append(out, e)
	}
	return out, native.ErrSecSuccess
}

func (s *Service) TrustSettingsSetTrustSettings(certRef native.Ref, domain native.TrustSettingsDomain, settings native.Value) native.Status {
	c, ok := s.certOf(certRef)
	if !ok {
		return native.ErrSecParam
	}
	ss, status := s.settingsFor(domain)
	if status != native.ErrSecSuccess {
		return status
	}
	if domain == native.TrustSettingsDomainSystem {
		return native.ErrSecReadOnly
	}
	entries, status := s.parseSettings(settings)
	if status != native.ErrSecSuccess {
		return status
	}
	if err := ss.put(domain, c.cert.Raw, entries); err != nil {
		s.logger.Debug("writing trust settings failed", "error", err)
		return native.ErrSecIO
	}
	return native.ErrSecSuccess
}

func (s *Service) TrustSettingsRemoveTrustSettings(certRef native.Ref, domain native.TrustSettingsDomain) native.Status {
	c, ok := s.certOf(certRef)
	if !ok {
		return native.ErrSecParam
	}
	ss, status := s.settingsFor(domain)
	if status != native.ErrSecSuccess {
		return status
	}
	if domain == native.TrustSettingsDomainSystem {
		return native.ErrSecReadOnly
	}
	removed, err := ss.remove(domain, c.cert.Raw)
	if err != nil {
		return native.ErrSecIO
	}
	if !removed {
		return native.ErrSecItemNotFound
	}
	return native.ErrSecSuccess
}

// effectiveSettings applies recorded user and admin trust settings to a
// certificate for the named policy. found is false when neither domain has a
// record.
func (s *Service) effectiveSettings(der []byte, policyName string) (native.TrustSettingsResultCode, bool) {
	if !s.HasCapability(native.CapabilityTrustSettings) {
		return native.TrustSettingsResultInvalid, false
	}
	ss, err := s.trustSettings()
	if err != nil {
		return native.TrustSettingsResultInvalid, false
	}
	for _, domain := range []native.TrustSettingsDomain{native.TrustSettingsDomainUser, native.TrustSettingsDomainAdmin} {
		entries, found, err := ss.get(domain, der)
		if err != nil || !found {
			continue
		}
		for _, e := range entries {
			if e.Policy != nil && e.Policy.Name != "" && policyName != "" && e.Policy.Name != policyName {
				continue
			}
			if e.Result == nil {
				return native.TrustSettingsResultTrustRoot, true
			}
			r := native.TrustSettingsResultCode(*e.Result)
			if r != native.TrustSettingsResultUnspecified && r != native.TrustSettingsResultInvalid {
				return r, true
			}
		}
		return native.TrustSettingsResultTrustRoot, true
	}
	return native.TrustSettingsResultInvalid, false
}
