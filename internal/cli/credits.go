package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func NewCreditsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Show and buy game credits",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "balance",
		Short: "Show remaining credits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			balance, err := rootOpts.client().Balance(cmd.Context())
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Success(balance, func(w io.Writer) error { return renderBalance(w, balance) })
		},
	})

	var size int
	buy := &cobra.Command{
		Use:   "buy",
		Short: "Purchase a credit lot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lot, err := rootOpts.client().PurchaseLot(cmd.Context(), size)
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Success(lot, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Purchased lot %s with %d credits\n", lot.ID, lot.Size)
				return err
			})
		},
	}
	buy.Flags().IntVar(&size, "size", 10, "credits in the lot (1, 10 or 52)")
	cmd.AddCommand(buy)

	return cmd
}
