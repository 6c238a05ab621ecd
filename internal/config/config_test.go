package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func discardLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "missing.conf"), discardLogger())

	if cfg.HeaderDevice != defaultHeaderDevice {
		t.Errorf("HeaderDevice = %q, want %q", cfg.HeaderDevice, defaultHeaderDevice)
	}
	if cfg.SectorSize != defaultSectorSize {
		t.Errorf("SectorSize = %d, want %d", cfg.SectorSize, defaultSectorSize)
	}
	if cfg.SectorSizeForce != defaultSectorSizeForce {
		t.Errorf("SectorSizeForce = %v, want %v", cfg.SectorSizeForce, defaultSectorSizeForce)
	}
}

func TestLoadMissingSectionUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.conf")
	if err := os.WriteFile(path, []byte("[other-section]\nheader_device=/dev/nope\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path, discardLogger())
	if cfg.HeaderDevice != defaultHeaderDevice {
		t.Errorf("HeaderDevice = %q, want %q", cfg.HeaderDevice, defaultHeaderDevice)
	}
}

func TestLoadPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.conf")
	contents := "[droidian-encryption-service]\n" +
		"header_device=/dev/custom/header\n" +
		"sector_size=512\n" +
		"sector_size_force=true\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path, discardLogger())
	if cfg.HeaderDevice != "/dev/custom/header" {
		t.Errorf("HeaderDevice = %q, want override", cfg.HeaderDevice)
	}
	if cfg.DataDevice != defaultDataDevice {
		t.Errorf("DataDevice = %q, want default %q", cfg.DataDevice, defaultDataDevice)
	}
	if cfg.SectorSize != 512 {
		t.Errorf("SectorSize = %d, want 512", cfg.SectorSize)
	}
	if !cfg.SectorSizeForce {
		t.Error("SectorSizeForce = false, want true")
	}
}

func TestLoadUnparseableIntFallsBackToDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.conf")
	contents := "[droidian-encryption-service]\nsector_size=not-a-number\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path, discardLogger())
	if cfg.SectorSize != defaultSectorSize {
		t.Errorf("SectorSize = %d, want default %d", cfg.SectorSize, defaultSectorSize)
	}
}
