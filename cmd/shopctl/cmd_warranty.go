package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"phoneshop/internal/app"
)

var cancelReason string

var warrantyCmd = &cobra.Command{
	Use:   "warranty",
	Short: "Manage warranty contracts",
}

var warrantyCancelCmd = &cobra.Command{
	Use:   "cancel <imei>",
	Short: "Cancel the active warranty contracts of a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			contracts, err := a.Warranty.CancelByDevice(ctx, args[0], cancelReason)
			if err != nil {
				return err
			}
			if len(contracts) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No active contracts for %s\n", args[0])
				return nil
			}
			for _, c := range contracts {
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s (%s)\n", c.ID, c.PackageCode)
			}
			return nil
		})
	},
}

func init() {
	warrantyCancelCmd.Flags().StringVarP(&cancelReason, "reason", "r", "", "Reason written to the contract note (required)")
	_ = warrantyCancelCmd.MarkFlagRequired("reason")
	warrantyCmd.AddCommand(warrantyCancelCmd)
}
