// Package cli implements the storekitctl commands.
package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/mihaimyh/gostorekit/internal/app"
	"github.com/mihaimyh/gostorekit/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

// NewRootCommand creates the root command for storekitctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "storekitctl",
		Short: "Drive the storekit bridge from the command line",
		Long: `Drive the storekit bridge from the command line.

Every envelope the bridge delivers to its callback is printed to stdout as one JSON line.
Configuration comes from --config, a .env file next to it and STOREKIT_* variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to the YAML configuration")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override log.level (debug|info|warn|error)")

	cmd.AddCommand(NewPurchaseCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// openApp loads configuration and builds an app whose callback prints envelopes to out.
func openApp(ctx context.Context, opts *RootOptions, out, logs io.Writer) (*app.App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	a, err := app.New(ctx, cfg, logs)
	if err != nil {
		return nil, err
	}
	a.Manager.RegisterCallback(printEnvelope(out))
	return a, nil
}

// printEnvelope returns a callback writing each payload as a line. The registry invokes it
// from a single goroutine, so writes never interleave.
func printEnvelope(out io.Writer) func(payload []byte) {
	return func(payload []byte) {
		_, _ = out.Write(append(payload, '\n'))
	}
}
