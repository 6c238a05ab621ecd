// Command droidian-encryption-service is the long-running, bus-attached
// daemon that owns the on-disk encryption status: it formats and
// initializes reencryption of a device on request, and answers status
// queries for everything else in the boot chain.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
	"github.com/rs/zerolog"

	"github.com/droidian/droidian-encryption-service/internal/authorize"
	"github.com/droidian/droidian-encryption-service/internal/config"
	"github.com/droidian/droidian-encryption-service/internal/encryption"
	"github.com/droidian/droidian-encryption-service/internal/idleexit"
	"github.com/droidian/droidian-encryption-service/internal/logging"
	"github.com/droidian/droidian-encryption-service/internal/polkit"
	"github.com/droidian/droidian-encryption-service/internal/status"
	"github.com/droidian/droidian-encryption-service/internal/svcbus"
)

var version = "unknown"

const ifaceName = svcbus.BusName

func main() {
	showVersion := flag.Bool("version", false, "show program version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	log := logging.New("droidian-encryption-service", "info")

	cfg := config.Load(config.Path, log)
	core := encryption.New(cfg, log)
	defer core.Close()

	bus, err := svcbus.New(log)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to attach to system bus")
	}
	defer bus.Close()

	oracle := oracleAdapter{polkit.New(bus.Conn())}
	gate := authorize.New(oracle, bus, log)

	iface := &encryptionIface{core: core, gate: gate}
	props, err := exportObject(bus.Conn(), iface, core)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to export object")
	}
	iface.props = props

	runEventLoop(bus, core, log)
}

func runEventLoop(bus *svcbus.Bus, core *encryption.Core, log zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)

	log.Info().Msg("service ready")

	supervisor := idleexit.New(bus)
	go supervisor.Run()

	for {
		select {
		case <-sigCh:
			log.Info().Msg("received SIGTERM, exiting")
			return
		case <-supervisor.Timeout():
			if s := core.Status(); s == status.Configuring || s == status.Configured {
				log.Info().Str("status", s.String()).Msg("idle timeout reached but status forbids exit")
				supervisor = idleexit.New(bus)
				go supervisor.Run()
				continue
			}
			log.Info().Msg("idle timeout reached, exiting")
			return
		}
	}
}

// oracleAdapter adapts *polkit.Authority's signature to authorize.Oracle.
type oracleAdapter struct {
	authority *polkit.Authority
}

func (o oracleAdapter) CheckAuthorization(ctx context.Context, senderBusName, actionID string, details map[string]string, flags polkit.CheckFlags) (bool, error) {
	return o.authority.CheckAuthorization(ctx, senderBusName, actionID, details, flags)
}

// encryptionIface is exported at svcbus.ObjectPath and implements the
// Start/RefreshStatus methods of org.droidian.EncryptionService. It
// also keeps a handle on the exported Status property so method
// handlers can push the current status after each call. A status change
// made by the background worker is not pushed on its own; it reaches
// the property on the next method call.
type encryptionIface struct {
	core  *encryption.Core
	gate  *authorize.Gate
	props *prop.Properties
}

func exportObject(conn *dbus.Conn, iface *encryptionIface, core *encryption.Core) (*prop.Properties, error) {
	methods := map[string]interface{}{
		"Start":         iface.Start,
		"RefreshStatus": iface.RefreshStatus,
	}
	if err := conn.ExportMethodTable(methods, svcbus.ObjectPath, ifaceName); err != nil {
		return nil, err
	}

	propsSpec := prop.Map{
		ifaceName: {
			"Status": {
				Value:    core.Status().Int32(),
				Writable: false,
				Emit:     prop.EmitTrue,
			},
		},
	}
	props, err := prop.Export(conn, svcbus.ObjectPath, propsSpec)
	if err != nil {
		return nil, err
	}
	return props, nil
}

func (e *encryptionIface) Start(passphrase string, sender dbus.Sender) *dbus.Error {
	ok, err := e.gate.Authorize(context.Background(), string(sender), "Start")
	if errors.Is(err, authorize.ErrNotAuthorized) {
		return dbus.NewError(ifaceName+".NotAuthorized", nil)
	}
	if err != nil {
		return dbus.MakeFailedError(err)
	}
	if !ok {
		return dbus.NewError(ifaceName+".NotAuthorized", nil)
	}
	if err := e.core.Start(context.Background(), []byte(passphrase)); err != nil {
		return dbus.MakeFailedError(err)
	}
	e.publishStatus()
	return nil
}

func (e *encryptionIface) RefreshStatus(sender dbus.Sender) *dbus.Error {
	if _, err := e.gate.Authorize(context.Background(), string(sender), "RefreshStatus"); err != nil {
		return dbus.MakeFailedError(err)
	}
	e.core.RefreshStatus(context.Background())
	e.publishStatus()
	return nil
}

func (e *encryptionIface) publishStatus() {
	if e.props == nil {
		return
	}
	e.props.SetMust(ifaceName, "Status", e.core.Status().Int32())
}
