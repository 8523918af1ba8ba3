// Package importexport decodes certificate, key and identity bundles.
package importexport

import (
	"fmt"
	"log/slog"

	"github.com/benaskins/secframe/internal/certs"
	"github.com/benaskins/secframe/internal/cf"
	"github.com/benaskins/secframe/internal/keychain"
	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/status"
	"github.com/benaskins/secframe/internal/trust"
)

// Options control an import.
type Options struct {
	// Filename, or just an extension such as "p12", selects the format.
	// Without it DER and PEM are told apart by content.
	Filename   string
	Passphrase string
	// Keychain persists the imported items when set.
	Keychain *keychain.Keychain
}

// Result holds everything an import produced. Certificates and Keys that
// belong to an identity appear only under Identities.
type Result struct {
	Certificates []*certs.Certificate
	Identities   []*certs.Identity
	Keys         []*certs.Key
}

// Close releases every imported object.
func (r *Result) Close() {
	cf.CloseAll(r.Certificates)
	cf.CloseAll(r.Identities)
	cf.CloseAll(r.Keys)
}

// Import decodes data as DER, PEM or PKCS#12.
func Import(svc native.Service, data []byte, opts Options) (*Result, error) {
	params := native.ImportParams{Passphrase: opts.Passphrase}
	if opts.Keychain != nil {
		params.Keychain = opts.Keychain.Handle().Ref()
	}
	v, st := svc.ItemImport(data, opts.Filename, params)
	if err := status.Translate(svc, st); err != nil {
		return nil, fmt.Errorf("importing %q: %w", opts.Filename, err)
	}
	defer svc.ReleaseValue(v)

	list, _ := v.([]native.Value)
	res := &Result{}
	for _, e := range list {
		ref, ok := e.(native.Ref)
		if !ok {
			continue
		}
		h := cf.WrapBorrowing(svc, ref)
		switch {
		case h.Is(native.KindIdentity):
			res.Identities = append(res.Identities, certs.WrapIdentity(h))
		case h.Is(native.KindCertificate):
			res.Certificates = append(res.Certificates, certs.WrapCertificate(h))
		case h.Is(native.KindKey):
			res.Keys = append(res.Keys, certs.WrapKey(h))
		default:
			h.Close()
			panic(fmt.Sprintf("importexport: import returned reference of unexpected type %d", h.TypeID()))
		}
	}
	slog.Debug("bundle imported", "component", "import", "file", opts.Filename,
		"identities", len(res.Identities), "certificates", len(res.Certificates), "keys", len(res.Keys))
	return res, nil
}

// PKCS12Identity is one identity from a PKCS#12 archive.
type PKCS12Identity struct {
	Label    string
	KeyID    []byte
	Identity *certs.Identity
	// Chain starts with the identity's certificate.
	Chain []*certs.Certificate
	Trust *trust.Trust
}

func (p *PKCS12Identity) Close() {
	if p.Identity != nil {
		p.Identity.Close()
	}
	cf.CloseAll(p.Chain)
	if p.Trust != nil {
		p.Trust.Close()
	}
}

// PKCS12 decodes an archive and returns one entry per identity. An archive
// holding no private keys yields no entries.
func PKCS12(svc native.Service, data []byte, passphrase string) ([]*PKCS12Identity, error) {
	v, st := svc.PKCS12Import(data, passphrase)
	if err := status.Translate(svc, st); err != nil {
		return nil, fmt.Errorf("importing pkcs12: %w", err)
	}
	defer svc.ReleaseValue(v)

	list, _ := v.([]native.Value)
	out := make([]*PKCS12Identity, 0, len(list))
	for _, e := range list {
		d, ok := e.(native.Dict)
		if !ok {
			continue
		}
		entry := &PKCS12Identity{}
		entry.Label, _ = d[native.ImportItemLabel].(string)
		entry.KeyID, _ = d[native.ImportItemKeyID].([]byte)
		if ref, ok := d[native.ImportItemIdentity].(native.Ref); ok && ref != native.NullRef {
			entry.Identity = certs.WrapIdentity(cf.WrapBorrowing(svc, ref))
		}
		chain, _ := d[native.ImportItemCertChain].([]native.Value)
		for _, c := range chain {
			if ref, ok := c.(native.Ref); ok && ref != native.NullRef {
				entry.Chain = append(entry.Chain, certs.WrapCertificate(cf.WrapBorrowing(svc, ref)))
			}
		}
		if ref, ok := d[native.ImportItemTrust].(native.Ref); ok && ref != native.NullRef {
			entry.Trust = trust.Wrap(cf.WrapBorrowing(svc, ref))
		}
		out = append(out, entry)
	}
	return out, nil
}
