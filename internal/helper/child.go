package helper

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/droidian/droidian-encryption-service/internal/cryptdevice"
	"github.com/droidian/droidian-encryption-service/internal/rendezvous"
)

const (
	haliumWaitPoll   = 1 * time.Second
	bootDoneWaitPoll = 10 * time.Second
)

// RunChild implements the long-lived resumer spawned by RunParent: it
// waits for the rendezvous stamps external boot machinery produces,
// chroots into the real root if rootmnt was given, then drives
// reencryption to completion, unlocking the keyslot with the passphrase
// inherited from RunParent over passphraseFD — mirroring
// crypt_reencrypt_init_by_passphrase's post-fork behavior in the
// implementation this replaces.
func RunChild(ctx context.Context, opts Options, log zerolog.Logger) int {
	passphrase, err := readPassphraseFD()
	if err != nil {
		log.Error().Err(err).Msg("unable to read passphrase from parent")
		return ExitFailure
	}
	defer zero(passphrase)

	var teardown atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		teardown.Store(true)
	}()

	runDir, err := rendezvous.OpenRunDir()
	if err != nil {
		log.Error().Err(err).Msg("unable to open /run")
		return ExitFailure
	}
	defer runDir.Close()

	exitCode := ExitSuccess
	if err := runUntilDone(ctx, opts, passphrase, &teardown, runDir, log); err != nil {
		log.Error().Err(err).Msg("resumer failed")
		if werr := runDir.WriteString(rendezvous.HelperFailureStamp, err.Error()); werr != nil {
			log.Error().Err(werr).Msg("unable to write failure stamp")
		}
		exitCode = ExitFailure
	} else {
		log.Info().Msg("reencryption finished")
	}

	if err := runDir.Remove(rendezvous.HelperPidfile); err != nil {
		log.Error().Err(err).Msg("unable to remove pidfile")
		return ExitFailure
	}

	return exitCode
}

func runUntilDone(ctx context.Context, opts Options, passphrase []byte, teardown *atomic.Bool, runDir *rendezvous.RunDir, log zerolog.Logger) error {
	if opts.RootMnt != "" {
		for !teardown.Load() && !runDir.Exists(rendezvous.HaliumMountedStamp) {
			log.Debug().Msg("root move stamp not found, waiting")
			time.Sleep(haliumWaitPoll)
		}
		if teardown.Load() {
			return nil
		}

		if err := unix.Chroot(opts.RootMnt); err != nil {
			return err
		}
		if err := os.Chdir("/"); err != nil {
			return err
		}
		if err := runDir.Remove(rendezvous.HaliumMountedStamp); err != nil {
			return err
		}
	}

	for !teardown.Load() && !runDir.Exists(rendezvous.BootDoneStamp) {
		log.Debug().Msg("boot done stamp not found, waiting")
		time.Sleep(bootDoneWaitPoll)
	}
	if teardown.Load() {
		return nil
	}

	dev := cryptdevice.New(opts.Header, opts.Device, opts.Name)
	progress := func(float64) bool { return !teardown.Load() }
	return dev.ReencryptResume(ctx, passphrase, progress)
}

// zero overwrites a passphrase buffer once it is no longer needed.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func readPassphraseFD() ([]byte, error) {
	f := os.NewFile(uintptr(passphraseFD), "passphrase")
	defer f.Close()

	buf := make([]byte, 0, 256)
	chunk := make([]byte, 256)
	for {
		n, err := f.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}
