//go:build !darwin

package passwords

// NewSystemStore fails outside macOS. Callers fall back to a KeychainStore.
func NewSystemStore(service string) (Store, error) {
	return nil, ErrNoSystemStore
}
