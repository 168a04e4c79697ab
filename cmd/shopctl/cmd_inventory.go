package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"phoneshop/internal/app"
	"phoneshop/internal/models"
	"phoneshop/internal/vn"
)

var inventoryStatus string

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Inspect device stock",
}

var inventoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List devices, optionally by status",
	RunE:  runInventoryList,
}

func init() {
	inventoryListCmd.Flags().StringVarP(&inventoryStatus, "status", "s", "", "Filter by status (e.g. \"còn hàng\", cnc, sold)")
	inventoryCmd.AddCommand(inventoryListCmd)
}

func runInventoryList(cmd *cobra.Command, args []string) error {
	var status models.DeviceStatus
	if inventoryStatus != "" {
		parsed, err := models.ParseDeviceStatus(inventoryStatus)
		if err != nil {
			return err
		}
		status = parsed
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		devices, err := a.Inventory.List(ctx, status)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "IMEI\tMÁY\tTRẠNG THÁI\tGIÁ BÁN\tNGÀY NHẬP")
		for _, d := range devices {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				d.IMEI, d.DisplayName(), d.Status.Label(), vn.FormatVND(d.Price), vn.FormatDate(d.ReceivedAt))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d device(s)\n", len(devices))
		return nil
	})
}
