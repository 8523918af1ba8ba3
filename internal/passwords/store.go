// Package passwords reads and writes generic and internet passwords, and
// offers a small string-keyed Store for tools that only need named secrets.
//
// Store entries are generic passwords with:
//   - Service: "com.secframe" unless configured otherwise
//   - Account: the entry key (e.g. "deploy/api-token")
//   - Label: "secframe: <key>"
//
// Entries are only readable while the device is unlocked and are never
// synchronized.
package passwords

import "errors"

// DefaultService is the service attribute shared by Store entries.
const DefaultService = "com.secframe"

var (
	// ErrNotFound is returned when an entry does not exist in the store.
	ErrNotFound = errors.New("password not found")
	// ErrNoSystemStore is returned where there is no platform keychain to
	// talk to directly.
	ErrNoSystemStore = errors.New("system password store is only available on macOS")
)

// Store is the interface for named secret storage.
type Store interface {
	Set(key, value string) error
	Get(key string) (string, error)
	List() ([]string, error)
	Delete(key string) error
	GetMultiple(keys []string) (map[string]string, error)
}

func label(key string) string {
	return "secframe: " + key
}
