package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"phoneshop/internal/app"
)

var (
	exportOut    string
	exportSheets []string
)

// exportCmd snapshots the spreadsheet into a local workbook
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export sheets to an .xlsx file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportOut == "" {
			exportOut = fmt.Sprintf("shop-%s.xlsx", time.Now().Format("20060102-1504"))
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Exporter.ExportToFile(ctx, exportOut, exportSheets...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", exportOut)
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default: shop-<timestamp>.xlsx)")
	exportCmd.Flags().StringSliceVar(&exportSheets, "sheet", nil, "Sheet to export, repeatable (default: all)")
}
