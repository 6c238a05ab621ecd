// Package config reads the static service configuration from
// /etc/droidian-encryption-service.conf. Every key degrades to a
// hardcoded default on any failure (missing file, missing section,
// missing key, unparseable value) — this mirrors the GKeyFile-based
// reader it replaces, which never treats a configuration problem as
// fatal.
package config

import (
	"github.com/rs/zerolog"
	"gopkg.in/ini.v1"
)

const (
	// Path is the on-disk location of the configuration file.
	Path = "/etc/droidian-encryption-service.conf"

	section = "droidian-encryption-service"

	defaultHeaderDevice    = "/dev/droidian/droidian-reserved"
	defaultDataDevice      = "/dev/droidian/droidian-rootfs"
	defaultMappedName      = "droidian_encrypted"
	defaultCipher          = "aes"
	defaultCipherMode      = "xts-plain64"
	defaultSectorSize      = 4096
	defaultSectorSizeForce = false
)

// Config holds the resolved (default-filled) configuration. Fields are
// read-only after Load returns.
type Config struct {
	HeaderDevice    string
	DataDevice      string
	MappedName      string
	Cipher          string
	CipherMode      string
	SectorSize      int
	SectorSizeForce bool
}

// Load reads path (normally Path) and returns a fully populated Config.
// It never returns an error: every unreadable or missing value is
// logged at warn level and replaced with its default.
func Load(path string, log zerolog.Logger) *Config {
	cfg := &Config{
		HeaderDevice:    defaultHeaderDevice,
		DataDevice:      defaultDataDevice,
		MappedName:      defaultMappedName,
		Cipher:          defaultCipher,
		CipherMode:      defaultCipherMode,
		SectorSize:      defaultSectorSize,
		SectorSizeForce: defaultSectorSizeForce,
	}

	file, err := ini.Load(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("unable to read configuration file, using defaults")
		return cfg
	}

	sec, err := file.GetSection(section)
	if err != nil {
		log.Warn().Err(err).Str("section", section).Msg("configuration section missing, using defaults")
		return cfg
	}

	cfg.HeaderDevice = getString(sec, log, "header_device", defaultHeaderDevice)
	cfg.DataDevice = getString(sec, log, "data_device", defaultDataDevice)
	cfg.MappedName = getString(sec, log, "mapped_name", defaultMappedName)
	cfg.Cipher = getString(sec, log, "cipher", defaultCipher)
	cfg.CipherMode = getString(sec, log, "cipher_mode", defaultCipherMode)
	cfg.SectorSize = getInt(sec, log, "sector_size", defaultSectorSize)
	cfg.SectorSizeForce = getBool(sec, log, "sector_size_force", defaultSectorSizeForce)

	return cfg
}

func getString(sec *ini.Section, log zerolog.Logger, key, fallback string) string {
	if !sec.HasKey(key) {
		log.Warn().Str("key", key).Msg("unable to get configuration key, using default")
		return fallback
	}
	return sec.Key(key).MustString(fallback)
}

func getInt(sec *ini.Section, log zerolog.Logger, key string, fallback int) int {
	if !sec.HasKey(key) {
		log.Warn().Str("key", key).Msg("unable to get configuration key, using default")
		return fallback
	}
	v, err := sec.Key(key).Int()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("unable to parse configuration key, using default")
		return fallback
	}
	return v
}

func getBool(sec *ini.Section, log zerolog.Logger, key string, fallback bool) bool {
	if !sec.HasKey(key) {
		log.Warn().Str("key", key).Msg("unable to get configuration key, using default")
		return fallback
	}
	v, err := sec.Key(key).Bool()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("unable to parse configuration key, using default")
		return fallback
	}
	return v
}
