// Package platform resolves the security service used by the process and
// the optional capabilities it provides. Resolution happens once; tests and
// the CLI may install a different service with Use.
package platform

import (
	"log/slog"
	"sync"

	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/native/emulated"
)

var (
	mu       sync.RWMutex
	current  native.Service
	initOnce sync.Once
	fallback native.Service
)

// Default returns the process-wide service. Unless Use installed one, this
// is the software service rooted in the user's home directory.
func Default() native.Service {
	mu.RLock()
	svc := current
	mu.RUnlock()
	if svc != nil {
		return svc
	}
	initOnce.Do(func() {
		fallback = emulated.New()
		slog.Debug("security service resolved", "backend", "software")
	})
	return fallback
}

// Use installs svc as the process-wide service and returns a function that
// restores the previous one.
func Use(svc native.Service) (restore func()) {
	mu.Lock()
	prev := current
	current = svc
	mu.Unlock()
	return func() {
		mu.Lock()
		current = prev
		mu.Unlock()
	}
}

// Capabilities records which optional entry point groups a service provides.
type Capabilities struct {
	Transforms    bool
	TrustSettings bool
	KeychainFiles bool
}

type resolved struct {
	once sync.Once
	caps Capabilities
}

var capabilities sync.Map // native.Service -> *resolved

// CapabilitiesOf probes svc once and caches the answer for the life of the
// process.
func CapabilitiesOf(svc native.Service) Capabilities {
	v, _ := capabilities.LoadOrStore(svc, &resolved{})
	r := v.(*resolved)
	r.once.Do(func() {
		r.caps = Capabilities{
			Transforms:    svc.HasCapability(native.CapabilityTransforms),
			TrustSettings: svc.HasCapability(native.CapabilityTrustSettings),
			KeychainFiles: svc.HasCapability(native.CapabilityKeychainFiles),
		}
		slog.Debug("security service capabilities",
			"transforms", r.caps.Transforms,
			"trust_settings", r.caps.TrustSettings,
			"keychain_files", r.caps.KeychainFiles)
	})
	return r.caps
}
