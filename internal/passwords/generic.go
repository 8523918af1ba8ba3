package passwords

import (
	"github.com/benaskins/secframe/internal/item"
	"github.com/benaskins/secframe/internal/keychain"
	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/status"
)

// Option scopes a password call.
type Option func(*options)

type options struct {
	keychain *keychain.Keychain
}

// InKeychain stores into and searches only kc instead of the default
// keychain and search list.
func InKeychain(kc *keychain.Keychain) Option {
	return func(o *options) { o.keychain = kc }
}

func collect(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o options) target(q *item.Query) *item.Query {
	if o.keychain != nil {
		q.UseKeychain(o.keychain)
	}
	return q
}

func (o options) source(q *item.Query) *item.Query {
	if o.keychain != nil {
		q.Keychains(o.keychain)
	}
	return q
}

func genericQuery(svc native.Service, service, account string) *item.Query {
	return item.New(svc, item.GenericPassword).Service(service).Account(account)
}

// find returns the data of the single item matching q.
func find(q *item.Query) ([]byte, error) {
	r, err := q.ReturnData(true).SearchOne()
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, status.ErrItemNotFound
	}
	defer r.Close()
	return r.Data, nil
}

// SetGenericPassword stores password for service and account, replacing an
// existing one.
func SetGenericPassword(svc native.Service, service, account string, password []byte, opts ...Option) error {
	return item.Upsert(collect(opts).target(genericQuery(svc, service, account)), password)
}

// GenericPassword returns the password stored for service and account.
// A missing item is status.ErrItemNotFound.
func GenericPassword(svc native.Service, service, account string, opts ...Option) ([]byte, error) {
	return find(collect(opts).source(genericQuery(svc, service, account)))
}

func DeleteGenericPassword(svc native.Service, service, account string, opts ...Option) error {
	return collect(opts).source(genericQuery(svc, service, account)).Delete()
}
