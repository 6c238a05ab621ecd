package cryptdevice

import (
	"bytes"
	"context"
	"strconv"
	"strings"
)

// minCryptTargetMajor and minCryptTargetMinor are the device-mapper
// "crypt" target version that introduced sector-size support (reported
// by `dmsetup targets` as "crypt v1.17.0" or similar).
const (
	minCryptTargetMajor = 1
	minCryptTargetMinor = 17
)

// SupportsSectorSize shells out to `dmsetup targets` and reports whether
// the running kernel's crypt target is new enough to honor a
// configured sector size, mirroring get_supported_features()'s
// DM_DEVICE_LIST_VERSIONS probe.
func SupportsSectorSize(ctx context.Context) bool {
	out, err := execRunner(ctx, nil, "dmsetup", "targets")
	if err != nil {
		return false
	}
	major, minor, ok := parseCryptTargetVersion(out)
	if !ok {
		return false
	}
	if major != minCryptTargetMajor {
		return major > minCryptTargetMajor
	}
	return minor >= minCryptTargetMinor
}

// parseCryptTargetVersion scans `dmsetup targets` output for a line of
// the form "crypt            v1.17.0" and returns its major/minor
// version.
func parseCryptTargetVersion(out []byte) (int, int, bool) {
	for _, line := range strings.Split(string(bytes.TrimSpace(out)), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "crypt" {
			continue
		}
		version := strings.TrimPrefix(fields[1], "v")
		parts := strings.SplitN(version, ".", 3)
		if len(parts) < 2 {
			return 0, 0, false
		}
		major, err1 := strconv.Atoi(parts[0])
		minor, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		return major, minor, true
	}
	return 0, 0, false
}
