package emulated

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
	_ "modernc.org/sqlite"

	"github.com/benaskins/secframe/internal/native"
)

const (
	defaultKDFIterations = 20000
	saltSize             = 16
	checkPlaintext       = "secframe keychain"
)

const keychainSchema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS items (
	id         TEXT PRIMARY KEY,
	class      TEXT NOT NULL,
	attrs      TEXT NOT NULL,
	data       BLOB,
	sealed     INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS items_class ON items(class);
`

var errLocked = errors.New("keychain is locked")

// store is one keychain file. Every session opened on the same path shares
// the store, so lock state is per file.
type store struct {
	path    string
	id      string
	db      *sql.DB
	salt    []byte
	check   []byte
	kdfIter int

	mu     sync.Mutex
	master []byte
}

// keychain is the value behind a KindKeychain reference.
type keychain struct {
	mu      sync.Mutex
	store   *store
	deleted bool
}

func (k *keychain) get() (*store, native.Status) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.deleted {
		return nil, native.ErrSecInvalidKeychain
	}
	return k.store, native.ErrSecSuccess
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening keychain database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}
	return db, nil
}

func createStore(path string, password []byte, iter int) (*store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating keychain directory: %w", err)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(keychainSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing keychain schema: %w", err)
	}

	st := &store{path: path, db: db, id: uuid.NewString(), kdfIter: iter}
	st.salt = make([]byte, saltSize)
	if _, err := rand.Read(st.salt); err != nil {
		db.Close()
		return nil, err
	}
	master := st.derive(password)
	st.check, err = seal(master, []byte(checkPlaintext))
	if err != nil {
		db.Close()
		return nil, err
	}

	meta := map[string][]byte{
		"id":         []byte(st.id),
		"salt":       st.salt,
		"check":      st.check,
		"iterations": []byte(fmt.Sprint(iter)),
	}
	for k, v := range meta {
		if _, err := db.Exec("INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			db.Close()
			return nil, fmt.Errorf("writing keychain metadata: %w", err)
		}
	}
	st.master = master
	return st, nil
}

func loadStore(path string) (*store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	st := &store{path: path, db: db}

	rows, err := db.Query("SELECT key, value FROM meta")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("reading keychain metadata: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			db.Close()
			return nil, err
		}
		switch k {
		case "id":
			st.id = string(v)
		case "salt":
			st.salt = v
		case "check":
			st.check = v
		case "iterations":
			fmt.Sscan(string(v), &st.kdfIter)
		}
	}
	if err := rows.Err(); err != nil {
		db.Close()
		return nil, err
	}
	if st.id == "" || len(st.salt) == 0 || len(st.check) == 0 || st.kdfIter == 0 {
		db.Close()
		return nil, fmt.Errorf("%s: missing keychain metadata", path)
	}
	return st, nil
}

func (st *store) derive(password []byte) []byte {
	return pbkdf2.Key(password, st.salt, st.kdfIter, chacha20poly1305.KeySize, sha256.New)
}

func (st *store) unlock(password []byte) bool {
	master := st.derive(password)
	if _, err := open(master, st.check); err != nil {
		return false
	}
	st.mu.Lock()
	st.master = master
	st.mu.Unlock()
	return true
}

func (st *store) lock() {
	st.mu.Lock()
	defer st.mu.Unlock()
	clear(st.master)
	st.master = nil
}

func (st *store) unlocked() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.master != nil
}

func (st *store) sealData(plain []byte) ([]byte, error) {
	st.mu.Lock()
	master := st.master
	st.mu.Unlock()
	if master == nil {
		return nil, errLocked
	}
	return seal(master, plain)
}

func (st *store) openData(sealed []byte) ([]byte, error) {
	st.mu.Lock()
	master := st.master
	st.mu.Unlock()
	if master == nil {
		return nil, errLocked
	}
	return open(master, sealed)
}

func (st *store) close() error {
	st.lock()
	return st.db.Close()
}

func seal(key, plain []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plain, nil), nil
}

func open(key, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("sealed value too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}

func (s *Service) cleanPath(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	return filepath.Clean(path)
}

func (s *Service) openStore(path string) (*store, native.Status) {
	s.kcMu.Lock()
	defer s.kcMu.Unlock()
	if st, ok := s.stores[path]; ok {
		return st, native.ErrSecSuccess
	}
	st, err := loadStore(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, native.ErrSecNoSuchKeychain
		}
		s.logger.Debug("keychain open failed", "path", path, "error", err)
		return nil, native.ErrSecInvalidKeychain
	}
	s.stores[path] = st
	return st, native.ErrSecSuccess
}

// defaultStore opens the default keychain, creating the login keychain with
// an empty password the first time it is needed.
func (s *Service) defaultStore() (*store, native.Status) {
	s.kcMu.Lock()
	path := s.defaultPath
	login := filepath.Join(s.root, "login.keychain-db")
	if st, ok := s.stores[path]; ok {
		s.kcMu.Unlock()
		return st, native.ErrSecSuccess
	}
	s.kcMu.Unlock()

	st, status := s.openStore(path)
	if status == native.ErrSecNoSuchKeychain && path == login {
		if st, status = s.createStore(path, nil); status != native.ErrSecSuccess {
			return nil, native.ErrSecNoDefaultKeychain
		}
		return st, native.ErrSecSuccess
	}
	if status == native.ErrSecSuccess && path == login && !st.unlocked() {
		st.unlock(nil)
	}
	return st, status
}

func (s *Service) createStore(path string, password []byte) (*store, native.Status) {
	s.kcMu.Lock()
	defer s.kcMu.Unlock()
	if _, ok := s.stores[path]; ok {
		return nil, native.ErrSecDuplicateKeychain
	}
	if _, err := os.Stat(path); err == nil {
		return nil, native.ErrSecDuplicateKeychain
	}
	st, err := createStore(path, password, s.kdfIter)
	if err != nil {
		s.logger.Debug("keychain create failed", "path", path, "error", err)
		return nil, native.ErrSecIO
	}
	s.stores[path] = st
	s.logger.Info("keychain created", "path", path)
	return st, native.ErrSecSuccess
}

func (s *Service) keychainRef(st *store) native.Ref {
	return s.alloc(native.KindKeychain, &keychain{store: st})
}

func (s *Service) storeOf(ref native.Ref) (*store, native.Status) {
	kc, ok := valueOf[*keychain](s, ref, native.KindKeychain)
	if !ok {
		return nil, native.ErrSecInvalidKeychain
	}
	return kc.get()
}

func (s *Service) KeychainCreate(path string, password []byte) (native.Ref, native.Status) {
	if path == "" {
		return native.NullRef, native.ErrSecParam
	}
	st, status := s.createStore(s.cleanPath(path), password)
	if status != native.ErrSecSuccess {
		return native.NullRef, status
	}
	return s.keychainRef(st), native.ErrSecSuccess
}

func (s *Service) KeychainOpen(path string) (native.Ref, native.Status) {
	if path == "" {
		return native.NullRef, native.ErrSecParam
	}
	st, status := s.openStore(s.cleanPath(path))
	if status != native.ErrSecSuccess {
		return native.NullRef, status
	}
	return s.keychainRef(st), native.ErrSecSuccess
}

func (s *Service) KeychainCopyDefault() (native.Ref, native.Status) {
	st, status := s.defaultStore()
	if status != native.ErrSecSuccess {
		return native.NullRef, status
	}
	return s.keychainRef(st), native.ErrSecSuccess
}

func (s *Service) KeychainSetDefault(ref native.Ref) native.Status {
	st, status := s.storeOf(ref)
	if status != native.ErrSecSuccess {
		return status
	}
	s.kcMu.Lock()
	s.defaultPath = st.path
	s.kcMu.Unlock()
	return native.ErrSecSuccess
}

func (s *Service) KeychainDelete(ref native.Ref) native.Status {
	kc, ok := valueOf[*keychain](s, ref, native.KindKeychain)
	if !ok {
		return native.ErrSecInvalidKeychain
	}
	st, status := kc.get()
	if status != native.ErrSecSuccess {
		return status
	}

	s.kcMu.Lock()
	delete(s.stores, st.path)
	if s.defaultPath == st.path {
		s.defaultPath = filepath.Join(s.root, "login.keychain-db")
	}
	s.kcMu.Unlock()

	kc.mu.Lock()
	kc.deleted = true
	kc.mu.Unlock()

	if err := st.close(); err != nil {
		s.logger.Debug("closing deleted keychain", "path", st.path, "error", err)
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(st.path + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return native.ErrSecIO
		}
	}
	s.logger.Info("keychain deleted", "path", st.path)
	return native.ErrSecSuccess
}

func (s *Service) KeychainLock(ref native.Ref) native.Status {
	st, status := s.storeOf(ref)
	if status != native.ErrSecSuccess {
		return status
	}
	st.lock()
	return native.ErrSecSuccess
}

func (s *Service) KeychainUnlock(ref native.Ref, password []byte) native.Status {
	st, status := s.storeOf(ref)
	if status != native.ErrSecSuccess {
		return status
	}
	if !st.unlock(password) {
		return native.ErrSecAuthFailed
	}
	return native.ErrSecSuccess
}

func (s *Service) KeychainGetStatus(ref native.Ref) (native.KeychainStatus, native.Status) {
	st, status := s.storeOf(ref)
	if status != native.ErrSecSuccess {
		return 0, status
	}
	ks := native.KeychainReadable | native.KeychainWritable
	if st.unlocked() {
		ks |= native.KeychainUnlocked
	}
	return ks, native.ErrSecSuccess
}

func (s *Service) KeychainGetPath(ref native.Ref) (string, native.Status) {
	st, status := s.storeOf(ref)
	if status != native.ErrSecSuccess {
		return "", status
	}
	return st.path, native.ErrSecSuccess
}

// storeByID finds an open store from a persistent reference.
func (s *Service) storeByID(id string) (*store, bool) {
	s.kcMu.Lock()
	defer s.kcMu.Unlock()
	for _, st := range s.stores {
		if st.id == id {
			return st, true
		}
	}
	return nil, false
}

func unixNow(now time.Time) int64 {
	return now.UTC().UnixNano()
}
