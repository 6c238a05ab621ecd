// Package cryptdevice wraps the cryptsetup(8) command line tool with the
// handful of LUKS2 operations this service needs: formatting a detached
// header, driving the two phases of in-place reencryption, and
// activating/loading an existing volume. libcryptsetup itself is a cgo
// dependency with no pure-Go equivalent in this codebase's lineage, so —
// exactly as the rest of this codebase's ancestry does for every
// cryptsetup operation it performs — these wrap the real binary via
// os/exec rather than bind to the C library.
package cryptdevice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// Status mirrors crypt_status_info.
type Status int

const (
	StatusInvalid Status = iota
	StatusInactive
	StatusActive
	StatusBusy
)

// ReencryptStatus mirrors crypt_reencrypt_info.
type ReencryptStatus int

const (
	ReencryptNone ReencryptStatus = iota
	ReencryptClean
	ReencryptCrashed
	ReencryptInvalid
)

// FormatParams configures Format.
type FormatParams struct {
	Cipher     string
	CipherMode string
	SectorSize int
}

// Device operates on a detached-header LUKS2 volume identified by a
// header device path and (for activation) a paired data device.
type Device struct {
	HeaderDevice string
	DataDevice   string
	MappedName   string

	// runner executes an external command, returning combined output.
	// It is a field so tests can stub it out instead of invoking the
	// real cryptsetup binary.
	runner commandRunner

	// newCmd builds the *exec.Cmd backing ReencryptResume, which needs a
	// streamed stdout rather than runner's buffered combined output. It
	// is a field, like runner, so tests can redirect the binary that
	// gets run instead of invoking the real cryptsetup.
	newCmd func(ctx context.Context, name string, args ...string) *exec.Cmd
}

type commandRunner func(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// New builds a Device bound to the given header/data devices and mapped
// name. header and data are typically config.Config.HeaderDevice/DataDevice.
func New(header, data, mappedName string) *Device {
	return &Device{
		HeaderDevice: header,
		DataDevice:   data,
		MappedName:   mappedName,
		runner:       execRunner,
		newCmd:       exec.CommandContext,
	}
}

// Format creates a new LUKS2 header with a single keyslot holding
// passphrase. It mirrors crypt_format + crypt_keyslot_add_by_volume_key
// from the C implementation this replaces, expressed as one cryptsetup
// luksFormat invocation since the CLI's luksFormat already creates the
// first keyslot from the supplied passphrase in one step. It does not
// initialize reencryption; ReencryptInit does that.
func (d *Device) Format(ctx context.Context, params FormatParams, passphrase []byte) error {
	cipherSpec := fmt.Sprintf("%s-%s", params.Cipher, params.CipherMode)

	args := []string{
		"luksFormat",
		"--type", "luks2",
		"--batch-mode",
		"--key-size", "512",
		"--cipher", cipherSpec,
		"--sector-size", strconv.Itoa(params.SectorSize),
		"--header", d.HeaderDevice,
		d.DataDevice,
	}
	if out, err := d.runner(ctx, bytes.NewReader(passphrase), "cryptsetup", args...); err != nil {
		return fmt.Errorf("cryptsetup luksFormat: %w (%s)", err, out)
	}
	return nil
}

// ReencryptInit starts (but does not run) in-place reencryption of the
// data device, bound to the header, leaving the header in the CLEAN
// reencryption state ready for ReencryptResume. This is the
// INITIALIZE_ONLY phase.
func (d *Device) ReencryptInit(ctx context.Context, params FormatParams, passphrase []byte) error {
	cipherSpec := fmt.Sprintf("%s-%s", params.Cipher, params.CipherMode)

	args := []string{
		"reencrypt",
		"--encrypt",
		"--init-only",
		"--batch-mode",
		"--header", d.HeaderDevice,
		"--resilience", "checksum",
		"--hash", "sha256",
		"--cipher", cipherSpec,
		d.DataDevice,
	}
	if out, err := d.runner(ctx, bytes.NewReader(passphrase), "cryptsetup", args...); err != nil {
		return fmt.Errorf("cryptsetup reencrypt --init-only: %w (%s)", err, out)
	}
	return nil
}

// ReencryptResume runs the RESUME_ONLY phase of an already-initialized
// reencryption to completion, unlocking the keyslot with passphrase the
// same way crypt_reencrypt_init_by_passphrase does post-fork in the
// implementation this replaces, and calling progress after each chunk
// with the fraction complete in [0, 1]. progress returning false aborts
// the run at the next checkpoint, leaving the header in CLEAN state for
// a later resume, mirroring crypt_reencrypt_run's cooperative-cancellation
// callback contract.
func (d *Device) ReencryptResume(ctx context.Context, passphrase []byte, progress func(fraction float64) bool) error {
	args := reencryptResumeArgs(d)

	// progress returning false aborts at the next checkpoint; since
	// cryptsetup is an external process rather than a linked library,
	// "abort" is expressed as cancelling the context that governs it,
	// which exec.CommandContext turns into a kill of the subprocess.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := d.newCmd(ctx, "cryptsetup", args...)
	cmd.Stdin = bytes.NewReader(passphrase)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	done := make(chan struct{})
	go watchProgress(stdout, progress, cancel, done)

	if err := cmd.Start(); err != nil {
		return err
	}
	<-done
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("cryptsetup reencrypt --resume-only: %w (%s)", err, stderr.Bytes())
	}
	return nil
}

// reencryptResumeArgs builds the RESUME_ONLY invocation's argument list,
// factored out as a pure function so it can be asserted on without
// spawning a process.
func reencryptResumeArgs(d *Device) []string {
	return []string{
		"reencrypt",
		"--resume-only",
		"--batch-mode",
		"--header", d.HeaderDevice,
		"--resilience", "checksum",
		"--hash", "sha256",
		d.DataDevice,
	}
}

// watchProgress scans cryptsetup's --batch-mode progress output
// ("Progress: NN.N%, ...") and feeds the reported fraction to progress.
// If progress returns false, cancel is called so the next checkpoint
// observes the subprocess being killed rather than running to
// completion.
func watchProgress(r io.Reader, progress func(fraction float64) bool, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 && progress != nil {
			if pct, ok := parseProgressPercent(buf[:n]); ok {
				if !progress(pct / 100.0) {
					cancel()
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// parseProgressPercent extracts the first "NN.N%" occurrence from a
// chunk of cryptsetup progress output, if any.
func parseProgressPercent(chunk []byte) (float64, bool) {
	idx := bytes.IndexByte(chunk, '%')
	if idx <= 0 {
		return 0, false
	}
	start := idx - 1
	for start > 0 && (chunk[start-1] == '.' || (chunk[start-1] >= '0' && chunk[start-1] <= '9')) {
		start--
	}
	v, err := strconv.ParseFloat(string(chunk[start:idx]), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ActivateByPassphrase loads the header (if not already loaded) and
// activates the mapped device, mirroring crypt_load + crypt_activate_by_passphrase.
func (d *Device) ActivateByPassphrase(ctx context.Context, passphrase []byte) error {
	args := []string{
		"open",
		"--type", "luks2",
		"--header", d.HeaderDevice,
		d.DataDevice,
		d.MappedName,
	}
	if out, err := d.runner(ctx, bytes.NewReader(passphrase), "cryptsetup", args...); err != nil {
		return fmt.Errorf("cryptsetup open: %w (%s)", err, out)
	}
	return nil
}

// Close deactivates the mapped device, mirroring crypt_deactivate.
func (d *Device) Close(ctx context.Context) error {
	args := []string{"close", d.MappedName}
	if out, err := d.runner(ctx, nil, "cryptsetup", args...); err != nil {
		return fmt.Errorf("cryptsetup close: %w (%s)", err, out)
	}
	return nil
}

// Status reports the dm-crypt activation status of the mapped device,
// mirroring crypt_status. A mapping that does not exist at all is
// reported as StatusInactive, matching libcryptsetup's own behavior for
// an unknown name.
func (d *Device) Status(ctx context.Context) Status {
	out, err := d.runner(ctx, nil, "cryptsetup", "status", d.MappedName)
	if err != nil {
		return StatusInactive
	}
	text := string(bytes.ToLower(out))
	switch {
	case strings.Contains(text, "is active and is in use"):
		return StatusBusy
	case strings.Contains(text, "is active"):
		return StatusActive
	default:
		return StatusInvalid
	}
}

// ReencryptStatus reports the LUKS2 reencryption status of the header,
// mirroring crypt_reencrypt_status. It inspects `cryptsetup luksDump`'s
// metadata for a reencryption section, which is present exactly when a
// reencryption has been initialized and not yet completed.
func (d *Device) ReencryptStatus(ctx context.Context) ReencryptStatus {
	out, err := d.runner(ctx, nil, "cryptsetup", "luksDump", d.HeaderDevice)
	if err != nil {
		return ReencryptInvalid
	}
	text := string(bytes.ToLower(out))
	switch {
	case strings.Contains(text, "reencrypt failed") || strings.Contains(text, "reencryption crashed"):
		return ReencryptCrashed
	case strings.Contains(text, "reencrypt") || strings.Contains(text, "verifying"):
		return ReencryptClean
	default:
		return ReencryptNone
	}
}
