package helper

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/droidian/droidian-encryption-service/internal/cryptdevice"
	"github.com/droidian/droidian-encryption-service/internal/rendezvous"
)

// InternalChildFlag is the hidden flag used to re-exec this binary into
// its own long-lived child phase; it never appears in --help.
const InternalChildFlag = "--internal-child"

// passphraseFD is the file descriptor number the child reads its
// passphrase from, inherited across the re-exec via ExtraFiles.
const passphraseFD = 3

// RunParent implements the helper's parent phase: activate the volume,
// and if the header still needs reencryption, launch a long-lived
// resumer and record its PID. It returns the process exit code.
func RunParent(ctx context.Context, opts Options, passphrase []byte, log zerolog.Logger) int {
	dev := cryptdevice.New(opts.Header, opts.Device, opts.Name)

	if err := dev.ActivateByPassphrase(ctx, passphrase); err != nil {
		log.Error().Err(err).Msg("unable to activate device")
		return ExitUnableToActivate
	}

	if !needsReencryption(ctx, dev, log) {
		log.Info().Msg("device already encrypted, nothing to resume")
		return ExitSuccess
	}

	self, err := os.Executable()
	if err != nil {
		log.Error().Err(err).Msg("unable to determine own executable path")
		return ExitFailure
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		log.Error().Err(err).Msg("unable to create passphrase pipe")
		return ExitFailure
	}
	defer pr.Close()

	args := []string{
		InternalChildFlag,
		"--device", opts.Device,
		"--header", opts.Header,
		"--name", opts.Name,
	}
	if opts.RootMnt != "" {
		args = append(args, "--rootmnt", opts.RootMnt)
	}

	cmd := exec.Command(self, args...)
	// Prefixing argv[0] with '@' tells systemd not to kill this process
	// during the transition away from the initramfs root, the same
	// convention https://systemd.io/ROOT_STORAGE_DAEMONS/ describes;
	// Go cannot mutate a forked child's argv[0] in place the way the
	// source does post-fork, so it is set here at exec time instead.
	cmd.Args[0] = "@" + filepath.Base(self)
	cmd.ExtraFiles = []*os.File{pr}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		log.Error().Err(err).Msg("unable to start resumer")
		return ExitFailure
	}
	pr.Close()

	if _, err := pw.Write(passphrase); err != nil {
		log.Error().Err(err).Msg("unable to hand passphrase to resumer")
	}
	pw.Close()

	if err := writePidfile(cmd.Process.Pid); err != nil {
		log.Error().Err(err).Msg("unable to write pidfile")
		return ExitFailure
	}

	return ExitSuccess
}

func writePidfile(pid int) error {
	path := filepath.Join(rendezvous.RunDirPath, rendezvous.HelperPidfile)
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644)
}
