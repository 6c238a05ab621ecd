// Package helper implements the early-boot helper executable's two
// phases: the short-lived parent that activates the LUKS2 volume and,
// if reencryption is still outstanding, launches a long-lived resumer;
// and that resumer's own child-phase logic (signal handling, rendezvous
// waits, chroot, and driving reencryption to completion).
package helper

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/droidian/droidian-encryption-service/internal/cryptdevice"
)

// Exit codes mirror the original helper's contract: 0 for success or
// "nothing to do", 2 for "unable to activate" (wrong passphrase or
// unreadable header), 1 for any other failure.
const (
	ExitSuccess          = 0
	ExitFailure          = 1
	ExitUnableToActivate = 2
)

// Options carries the parsed CLI flags (see cmd/droidian-encryption-helper).
type Options struct {
	Device        string
	Header        string
	RootMnt       string
	Name          string
	StripNewlines bool
}

// ReadPassphrase keeps up to 256 bytes of data. When stripNewlines is
// true, newline bytes are dropped (the behavior the flag name
// promises); when false, all bytes read — including newlines — are
// kept up to the cap. This is the corrected inverse of the source's
// `i < PASSPHRASE_MAX && (strip_newlines && ch != '\n')` predicate,
// which only ever appended a byte when strip_newlines was true,
// silently producing an empty passphrase whenever the flag was left at
// its default.
func ReadPassphrase(data []byte, stripNewlines bool) []byte {
	const max = 256
	out := make([]byte, 0, max)
	for _, b := range data {
		if len(out) >= max {
			break
		}
		if stripNewlines && b == '\n' {
			continue
		}
		out = append(out, b)
	}
	return out
}

// reencryptProber is the subset of *cryptdevice.Device needed by
// needsReencryption, narrowed to an interface so tests can fake it.
type reencryptProber interface {
	ReencryptStatus(ctx context.Context) cryptdevice.ReencryptStatus
}

// needsReencryption implements the corrected needs_reencryption
// contract: CLEAN means resume, NONE means nothing to do, and any
// other status is logged as an error and treated as "do not resume" —
// unlike the source, which set its out-boolean to TRUE even on the
// error path, conflating "should resume" with "something is wrong".
func needsReencryption(ctx context.Context, dev reencryptProber, log zerolog.Logger) bool {
	switch dev.ReencryptStatus(ctx) {
	case cryptdevice.ReencryptClean:
		return true
	case cryptdevice.ReencryptNone:
		return false
	default:
		log.Error().Msg("libcryptsetup reported reencryption failure")
		return false
	}
}

