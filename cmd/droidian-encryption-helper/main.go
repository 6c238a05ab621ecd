// Command droidian-encryption-helper runs during early boot to activate
// a LUKS2 volume and, if an in-place encryption started by
// droidian-encryption-service is still outstanding, to drive it to
// completion in the background.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/droidian/droidian-encryption-service/internal/helper"
	"github.com/droidian/droidian-encryption-service/internal/logging"
)

var version = "unknown"

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	if len(args) > 1 && args[1] == helper.InternalChildFlag {
		return runChild(args)
	}
	return runParent(args)
}

func runParent(args []string) int {
	opts := helper.Options{}
	var stripNewlines bool
	exitCode := helper.ExitFailure

	app := &cli.App{
		Name:  "droidian-encryption-helper",
		Usage: "helper for droidian-encryption-service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "device", Usage: "device to open", Destination: &opts.Device},
			&cli.StringFlag{Name: "header", Usage: "detached header to use", Destination: &opts.Header},
			&cli.StringFlag{Name: "rootmnt", Usage: "root mountpoint", Destination: &opts.RootMnt},
			&cli.StringFlag{Name: "name", Usage: "name to use", Destination: &opts.Name},
			&cli.BoolFlag{Name: "strip-newlines", Usage: "strip newlines from passphrase", Destination: &stripNewlines},
		},
		Version: version,
		Action: func(c *cli.Context) error {
			if opts.Device == "" || opts.Header == "" || opts.Name == "" {
				return fmt.Errorf("missing required arguments (--device, --header, --name)")
			}

			log := logging.New("droidian-encryption-helper", "info")

			raw, err := io.ReadAll(os.Stdin)
			if err != nil {
				log.Error().Err(err).Msg("unable to read passphrase")
				exitCode = helper.ExitUnableToActivate
				return nil
			}
			passphrase := helper.ReadPassphrase(raw, stripNewlines)
			if len(passphrase) == 0 {
				log.Error().Msg("unable to read passphrase")
				exitCode = helper.ExitUnableToActivate
				return nil
			}

			opts.StripNewlines = stripNewlines
			exitCode = helper.RunParent(context.Background(), opts, passphrase, log)
			return nil
		},
	}

	if err := app.Run(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return helper.ExitFailure
	}
	return exitCode
}

func runChild(args []string) int {
	opts := helper.Options{}

	app := &cli.App{
		Name:   "droidian-encryption-helper",
		Hidden: true,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "device", Destination: &opts.Device},
			&cli.StringFlag{Name: "header", Destination: &opts.Header},
			&cli.StringFlag{Name: "rootmnt", Destination: &opts.RootMnt},
			&cli.StringFlag{Name: "name", Destination: &opts.Name},
		},
	}

	exitCode := helper.ExitFailure
	app.Action = func(c *cli.Context) error {
		log := logging.New("droidian-encryption-helper-resumer", "info")
		exitCode = helper.RunChild(context.Background(), opts, log)
		return nil
	}

	// args[0] carries the '@'-prefixed argv[0]; args[1] is
	// InternalChildFlag itself, which urfave/cli would otherwise try
	// (and fail) to parse as a flag, so it is dropped before Run.
	childArgs := append([]string{args[0]}, args[2:]...)
	if err := app.Run(childArgs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return helper.ExitFailure
	}
	return exitCode
}
