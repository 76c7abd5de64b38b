package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"bookings/internal/app"
	"bookings/internal/config"
	"bookings/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "bookingctl",
		Short:         "Operator tool for the booking service: availability, suggestions, exports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "path to config.yaml")

	root.AddCommand(newLocationsCmd(opts))
	root.AddCommand(newCheckCmd(opts))
	root.AddCommand(newSuggestCmd(opts))
	root.AddCommand(newExportCmd(opts))
	root.AddCommand(newProbeCmd(opts))
	root.AddCommand(newBackupCmd(opts))
	root.AddCommand(newNotificationsCmd(opts))

	return root
}

// load reads the config and builds a logger that writes to stderr so command
// output on stdout stays machine readable.
func (o *rootOptions) load() (*config.Config, *zerolog.Logger, io.Closer, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logCfg := cfg.Logging
	if logCfg.Output == "" || logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	logger, closer, err := logging.New(logCfg, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, closer, nil
}

// withApp builds the full application for commands that talk to calendars.
func (o *rootOptions) withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, logger, closer, err := o.load()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}
