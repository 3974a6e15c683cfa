package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// PurchaseOptions holds flags for the purchase command.
type PurchaseOptions struct {
	*RootOptions
	Token   string
	Product string
	Timeout time.Duration
}

// NewPurchaseCommand creates the purchase command.
func NewPurchaseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PurchaseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "purchase",
		Short: "Purchase a product and print the PURCHASE envelope",
		Long: `Purchase a product and print the PURCHASE envelope.

Example:
  storekitctl purchase --token 0b7e6c2e-4f4a-4d55-9a51-2f7cbd9d2b11 --product gems_100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPurchase(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Token, "token", "", "account token (UUID) attached to the purchase")
	cmd.Flags().StringVar(&opts.Product, "product", "", "product identifier")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Minute, "overall time limit")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("product")

	return cmd
}

func runPurchase(cmd *cobra.Command, opts *PurchaseOptions) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	a, err := openApp(ctx, opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	a.Manager.Purchase(ctx, opts.Token, opts.Product)
	return nil
}
