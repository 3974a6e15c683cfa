package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// RestoreOptions holds flags for the restore command.
type RestoreOptions struct {
	*RootOptions
	Timeout time.Duration
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RestoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore purchases and print the LOAD_RECEIPT envelope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			a, err := openApp(ctx, opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			a.Manager.Restore(ctx)
			return nil
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 2*time.Minute, "overall time limit")

	return cmd
}
