package passwords

import (
	"github.com/benaskins/secframe/internal/item"
	"github.com/benaskins/secframe/internal/native"
)

// InternetPassword identifies a password for a network service. Server and
// Account are required; zero values of the other fields are left out of
// the item.
type InternetPassword struct {
	Server             string
	SecurityDomain     string
	Account            string
	Path               string
	Port               int
	Protocol           string // native.ProtocolHTTPS etc.
	AuthenticationType string // native.AuthenticationTypeHTTPBasic etc.
}

func (p InternetPassword) query(svc native.Service) *item.Query {
	q := item.New(svc, item.InternetPassword).Server(p.Server).Account(p.Account)
	if p.SecurityDomain != "" {
		q.SecurityDomain(p.SecurityDomain)
	}
	if p.Path != "" {
		q.Path(p.Path)
	}
	if p.Port != 0 {
		q.Port(p.Port)
	}
	if p.Protocol != "" {
		q.Protocol(p.Protocol)
	}
	if p.AuthenticationType != "" {
		q.AuthenticationType(p.AuthenticationType)
	}
	return q
}

func SetInternetPassword(svc native.Service, p InternetPassword, password []byte, opts ...Option) error {
	return item.Upsert(collect(opts).target(p.query(svc)), password)
}

func FindInternetPassword(svc native.Service, p InternetPassword, opts ...Option) ([]byte, error) {
	return find(collect(opts).source(p.query(svc)))
}

func DeleteInternetPassword(svc native.Service, p InternetPassword, opts ...Option) error {
	return collect(opts).source(p.query(svc)).Delete()
}
