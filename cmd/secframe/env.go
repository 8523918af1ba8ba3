package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/benaskins/secframe/internal/certs"
	"github.com/benaskins/secframe/internal/cf"
	"github.com/benaskins/secframe/internal/config"
	"github.com/benaskins/secframe/internal/importexport"
	"github.com/benaskins/secframe/internal/keychain"
	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/native/emulated"
	"github.com/benaskins/secframe/internal/platform"
)

var (
	cfg     *config.Config
	emu     *emulated.Service
	restore func()
)

// setup loads the config, installs the log handler and makes the configured
// service the process default.
func setup() error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level, err := c.Level()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := os.MkdirAll(c.Home, 0700); err != nil {
		return fmt.Errorf("creating %s: %w", c.Home, err)
	}
	svc, err := platform.FromConfig(c)
	if err != nil {
		return err
	}
	cfg, emu = c, svc
	restore = platform.Use(svc)
	return nil
}

func teardown() error {
	if emu == nil {
		return nil
	}
	restore()
	err := emu.Close()
	emu = nil
	return err
}

func service() native.Service {
	return platform.Default()
}

// openKeychain opens path, the configured keychain when path is empty, or
// the default keychain when neither is set.
func openKeychain(path string) (*keychain.Keychain, error) {
	if path == "" {
		path = cfg.Keychain
	}
	if path == "" {
		return keychain.Default(service())
	}
	return keychain.Open(service(), path)
}

// openUnlocked is openKeychain followed by a password prompt when the
// keychain is locked. Lock state does not outlive the process, so keychains
// other than the login keychain start out locked.
func openUnlocked(path string) (*keychain.Keychain, error) {
	kc, err := openKeychain(path)
	if err != nil {
		return nil, err
	}
	unlocked, err := kc.Unlocked()
	if err == nil && unlocked {
		return kc, nil
	}
	if err == nil {
		name, _ := kc.Path()
		var password []byte
		password, err = readSecret("Password for keychain " + filepath.Base(name) + ": ")
		if err == nil {
			err = kc.Unlock(password)
		}
	}
	if err != nil {
		kc.Close()
		return nil, err
	}
	return kc, nil
}

// readSecret prompts on a terminal, otherwise reads all of stdin.
func readSecret(prompt string) ([]byte, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("reading password: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile("/dev/stdin")
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	return []byte(strings.TrimRight(string(b), "\n")), nil
}

// readNewSecret asks twice on a terminal.
func readNewSecret(prompt string) ([]byte, error) {
	first, err := readSecret(prompt)
	if err != nil {
		return nil, err
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return first, nil
	}
	second, err := readSecret("Confirm: ")
	if err != nil {
		return nil, err
	}
	if string(first) != string(second) {
		return nil, fmt.Errorf("passwords do not match")
	}
	return first, nil
}

// loadFile imports every certificate, key and identity in path.
func loadFile(path, passphrase string, kc *keychain.Keychain) (*importexport.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	res, err := importexport.Import(service(), data, importexport.Options{
		Filename:   path,
		Passphrase: passphrase,
		Keychain:   kc,
	})
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", path, err)
	}
	return res, nil
}

// loadCertificates returns the certificates in path, identity certificates
// first. The caller closes them.
func loadCertificates(path string) ([]*certs.Certificate, error) {
	res, err := loadFile(path, "", nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	var out []*certs.Certificate
	for _, id := range res.Identities {
		c, err := id.Certificate()
		if err != nil {
			cf.CloseAll(out)
			return nil, err
		}
		out = append(out, c)
	}
	for _, c := range res.Certificates {
		out = append(out, c.Clone())
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s holds no certificates", path)
	}
	return out, nil
}
