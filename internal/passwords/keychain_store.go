package passwords

import (
	"errors"
	"fmt"
	"sort"

	"github.com/benaskins/secframe/internal/item"
	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/status"
)

// KeychainStore keeps Store entries as generic passwords through a security
// service, in the default keychain or the one passed with InKeychain.
type KeychainStore struct {
	svc     native.Service
	service string
	opts    options
}

func NewKeychainStore(svc native.Service, service string, opts ...Option) *KeychainStore {
	if service == "" {
		service = DefaultService
	}
	return &KeychainStore{svc: svc, service: service, opts: collect(opts)}
}

func (s *KeychainStore) query(key string) *item.Query {
	return genericQuery(s.svc, s.service, key)
}

// Set stores value under key, replacing the data of an existing entry.
func (s *KeychainStore) Set(key, value string) error {
	err := item.Upsert(s.opts.target(s.query(key)), []byte(value), func(q *item.Query) {
		q.Label(label(key)).
			Accessible(native.AccessibleWhenUnlockedThisDeviceOnly).
			Synchronizable(false)
	})
	if err != nil {
		return fmt.Errorf("keychain set %q: %w", key, err)
	}
	return nil
}

func (s *KeychainStore) Get(key string) (string, error) {
	data, err := find(s.opts.source(s.query(key)))
	if err != nil {
		if errors.Is(err, status.ErrItemNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", fmt.Errorf("keychain get %q: %w", key, err)
	}
	return string(data), nil
}

// List returns the keys of every entry under the store's service, sorted.
func (s *KeychainStore) List() ([]string, error) {
	q := item.New(s.svc, item.GenericPassword).Service(s.service).ReturnAttributes(true).Limit(item.LimitAll)
	rs, err := s.opts.source(q).Search()
	if err != nil {
		if errors.Is(err, status.ErrItemNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain list: %w", err)
	}
	defer item.CloseResults(rs)

	keys := make([]string, 0, len(rs))
	for _, r := range rs {
		if account, ok := r.Attributes.String(native.AttrAccount); ok {
			keys = append(keys, account)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *KeychainStore) Delete(key string) error {
	err := s.opts.source(s.query(key)).Delete()
	if err != nil && !errors.Is(err, status.ErrItemNotFound) {
		return fmt.Errorf("keychain delete %q: %w", key, err)
	}
	return nil
}

// GetMultiple returns the entries that exist among keys.
func (s *KeychainStore) GetMultiple(keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		val, err := s.Get(key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result[key] = val
	}
	return result, nil
}
