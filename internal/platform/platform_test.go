package platform

import (
	"testing"

	"github.com/benaskins/secframe/internal/native"
	"github.com/benaskins/secframe/internal/native/emulated"
)

func TestUseRestores(t *testing.T) {
	svc := emulated.New(emulated.WithRoot(t.TempDir()))
	restore := Use(svc)
	if Default() != native.Service(svc) {
		t.Fatal("Default did not return the installed service")
	}
	restore()
	if Default() == native.Service(svc) {
		t.Error("restore left the installed service in place")
	}
}

func TestCapabilitiesOf(t *testing.T) {
	full := emulated.New(emulated.WithRoot(t.TempDir()))
	caps := CapabilitiesOf(full)
	if !caps.Transforms || !caps.TrustSettings || !caps.KeychainFiles {
		t.Errorf("expected all capabilities, got %+v", caps)
	}

	reduced := emulated.New(
		emulated.WithRoot(t.TempDir()),
		emulated.WithoutCapability(native.CapabilityTransforms),
	)
	caps = CapabilitiesOf(reduced)
	if caps.Transforms {
		t.Error("expected transforms to be unavailable")
	}
	if !caps.TrustSettings {
		t.Error("expected trust settings to stay available")
	}
}
