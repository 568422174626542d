package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"stock-price-alerts/internal/storage"
)

var (
	exportCode      string
	exportDirection string
	exportFrom      string
	exportTo        string
	exportCSVPath   string
	exportPNGPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export alert history as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportCSVPath == "" && exportPNGPath == "" {
			return fmt.Errorf("at least one of --csv or --png is required")
		}

		filter := storage.AlertFilter{
			Code:      exportCode,
			Direction: exportDirection,
			Limit:     getApp().MaxPoints(exportMaxPoints),
		}

		if exportFrom != "" {
			from, err := time.Parse(time.RFC3339, exportFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			filter.From = &from
		}
		if exportTo != "" {
			to, err := time.Parse(time.RFC3339, exportTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			filter.To = &to
		}

		if exportCSVPath != "" {
			file, err := os.Create(exportCSVPath)
			if err != nil {
				return fmt.Errorf("create csv file: %w", err)
			}
			if err := getApp().ExportCSV(cmd.Context(), file, filter); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
		}

		if exportPNGPath != "" {
			if exportCode == "" {
				return fmt.Errorf("--code is required for a PNG chart")
			}
			if err := getApp().ExportChart(cmd.Context(), exportPNGPath, exportCode, exportMaxPoints); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportCode, "code", "", "Restrict to one instrument code")
	exportCmd.Flags().StringVar(&exportDirection, "direction", "", "Restrict to one direction (UP or DOWN)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End timestamp (RFC3339, exclusive)")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
