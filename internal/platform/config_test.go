package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/benaskins/secframe/internal/config"
	"github.com/benaskins/secframe/internal/pkitest"
)

func TestFromConfig(t *testing.T) {
	home := t.TempDir()
	disabled := false
	cfg := &config.Config{Home: home, Transforms: &disabled}

	svc, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	defer svc.Close()

	if CapabilitiesOf(svc).Transforms {
		t.Error("transforms should be disabled")
	}
	if !CapabilitiesOf(svc).KeychainFiles {
		t.Error("keychain files should stay available")
	}
}

func TestFromConfigSystemRoots(t *testing.T) {
	dir := t.TempDir()
	ca := pkitest.NewAuthority(t, "Configured Root")
	bundle := filepath.Join(dir, "roots.pem")
	if err := os.WriteFile(bundle, ca.CertPEM(), 0600); err != nil {
		t.Fatal(err)
	}

	svc, err := FromConfig(&config.Config{Home: dir, SystemRoots: bundle})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	svc.Close()

	empty := filepath.Join(dir, "empty.pem")
	os.WriteFile(empty, []byte("not a certificate\n"), 0600)
	if _, err := FromConfig(&config.Config{Home: dir, SystemRoots: empty}); err == nil {
		t.Error("expected error for a bundle without certificates")
	}
	if _, err := FromConfig(&config.Config{Home: dir, SystemRoots: filepath.Join(dir, "missing.pem")}); err == nil {
		t.Error("expected error for a missing bundle")
	}
}
