package platform

import (
	"crypto/x509"
	"fmt"
	"os"

	"github.com/benaskins/secframe/internal/config"
	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/native/emulated"
)

// FromConfig builds the software service described by cfg.
func FromConfig(cfg *config.Config) (*emulated.Service, error) {
	opts := []emulated.Option{emulated.WithRoot(cfg.KeychainDir())}
	if cfg.SystemRoots != "" {
		data, err := os.ReadFile(cfg.SystemRoots)
		if err != nil {
			return nil, fmt.Errorf("reading system roots: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("no certificates in %s", cfg.SystemRoots)
		}
		opts = append(opts, emulated.WithSystemRoots(pool))
	}
	if !cfg.TransformsEnabled() {
		opts = append(opts, emulated.WithoutCapability(native.CapabilityTransforms))
	}
	return emulated.New(opts...), nil
}
