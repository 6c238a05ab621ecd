// Package encryption implements the service-side encryption state
// machine: Start launches the one-shot format+reencrypt-init worker,
// RefreshStatus derives the current status from a mix of cached state
// and live probes of the helper's rendezvous stamps and the LUKS2
// header.
package encryption

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/droidian/droidian-encryption-service/internal/config"
	"github.com/droidian/droidian-encryption-service/internal/cryptdevice"
	"github.com/droidian/droidian-encryption-service/internal/rendezvous"
	"github.com/droidian/droidian-encryption-service/internal/status"
)

// stickyStatuses are left untouched by RefreshStatus: neither the
// helper's stamps nor the device probes are consulted while one of them
// is published. Configuring is replaced only by the worker's terminal
// publish; the others hold for the rest of the process's life.
var stickyStatuses = map[status.Status]bool{
	status.Configuring: true,
	status.Configured:  true,
	status.Unsupported: true,
	status.Failed:      true,
}

// device is the subset of *cryptdevice.Device that Core needs, narrowed
// to an interface so tests can substitute a fake rather than shelling
// out to the real cryptsetup binary.
type device interface {
	Format(ctx context.Context, params cryptdevice.FormatParams, passphrase []byte) error
	ReencryptInit(ctx context.Context, params cryptdevice.FormatParams, passphrase []byte) error
	Status(ctx context.Context) cryptdevice.Status
	ReencryptStatus(ctx context.Context) cryptdevice.ReencryptStatus
}

// pathChecker reports whether a path exists; swapped out in tests so
// device presence can be simulated without touching the filesystem.
type pathChecker func(path string) bool

// Core owns the process-wide mutex guarding all status transitions, the
// current published status, and the LUKS2 device handle.
type Core struct {
	cfg       *config.Config
	log       zerolog.Logger
	device    device
	rdv       *rendezvous.Absolute
	pathExist pathChecker

	mu        sync.Mutex
	published status.Status
	wg        sync.WaitGroup
}

// New builds a Core for the devices/cipher named in cfg.
func New(cfg *config.Config, log zerolog.Logger) *Core {
	return &Core{
		cfg:       cfg,
		log:       log,
		device:    cryptdevice.New(cfg.HeaderDevice, cfg.DataDevice, cfg.MappedName),
		rdv:       rendezvous.NewAbsolute(),
		pathExist: pathExists,
		published: status.Unknown,
	}
}

// Status returns the last published status without probing anything.
func (c *Core) Status() status.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published
}

// Start begins formatting and initializing reencryption of the
// configured devices with passphrase. Per 4.4.1, if the published
// status is anything other than Unconfigured this is a no-op that
// still reports success — the TODO-marked behavior of the source this
// replaces, preserved deliberately rather than hardened into an error
// return (see DESIGN.md).
func (c *Core) Start(ctx context.Context, passphrase []byte) error {
	c.mu.Lock()
	if c.published != status.Unconfigured {
		c.log.Info().Str("status", c.published.String()).Msg("Start called outside Unconfigured, ignoring")
		c.mu.Unlock()
		return nil
	}

	c.published = status.Configuring
	c.mu.Unlock()

	buf := make([]byte, len(passphrase))
	copy(buf, passphrase)

	c.wg.Add(1)
	go c.runWorker(ctx, buf)

	return nil
}

// RefreshStatus recomputes and publishes the current status per the
// derivation order in 4.4.2, and returns it.
func (c *Core) RefreshStatus(ctx context.Context) status.Status {
	if !c.mu.TryLock() {
		// Mutex briefly held elsewhere (Start, Status, or the worker's
		// terminal publish): skip the probes and return the cached
		// status once the holder releases it.
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.published
	}
	defer c.mu.Unlock()

	if stickyStatuses[c.published] {
		return c.published
	}

	if c.rdv.Exists(rendezvous.HelperPidfile) {
		c.published = status.Encrypting
		return c.published
	}
	if c.rdv.Exists(rendezvous.HelperFailureStamp) {
		c.published = status.Failed
		return c.published
	}

	if !c.pathExist(c.cfg.HeaderDevice) || !c.pathExist(c.cfg.DataDevice) {
		c.published = status.Unsupported
		return c.published
	}

	switch c.device.Status(ctx) {
	case cryptdevice.StatusInvalid, cryptdevice.StatusInactive:
		c.published = status.Unconfigured
		return c.published
	case cryptdevice.StatusActive, cryptdevice.StatusBusy:
		// continue to reencryption probe below
	default:
		return c.published
	}

	switch c.device.ReencryptStatus(ctx) {
	case cryptdevice.ReencryptNone:
		c.published = status.Encrypted
	case cryptdevice.ReencryptClean:
		c.published = status.Encrypting
	default:
		c.published = status.Failed
	}
	return c.published
}

// Close joins the worker if one is in flight. Call on service shutdown.
func (c *Core) Close() {
	c.wg.Wait()
}

func (c *Core) runWorker(ctx context.Context, passphrase []byte) {
	defer c.wg.Done()
	defer zero(passphrase)

	sectorSize := c.resolveSectorSize(ctx)
	params := cryptdevice.FormatParams{
		Cipher:     c.cfg.Cipher,
		CipherMode: c.cfg.CipherMode,
		SectorSize: sectorSize,
	}

	final := status.Configured
	if err := c.device.Format(ctx, params, passphrase); err != nil {
		c.log.Error().Err(err).Msg("luksFormat failed")
		final = status.Failed
	} else if err := c.device.ReencryptInit(ctx, params, passphrase); err != nil {
		c.log.Error().Err(err).Msg("reencrypt init failed")
		final = status.Failed
	}

	c.mu.Lock()
	c.published = final
	c.mu.Unlock()
}

// resolveSectorSize implements 4.4.3 step 1: the kernel's crypt target
// must support sector sizes, or sector_size_force must be set, for the
// configured sector_size to be honored; otherwise 512 is used and a
// warning is logged.
func (c *Core) resolveSectorSize(ctx context.Context) int {
	if c.cfg.SectorSizeForce || cryptdevice.SupportsSectorSize(ctx) {
		return c.cfg.SectorSize
	}
	c.log.Warn().Int("configured_sector_size", c.cfg.SectorSize).Msg("kernel crypt target does not support sector sizes, falling back to 512")
	return 512
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
