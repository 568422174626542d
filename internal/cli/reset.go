package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	resetCode      string
	resetDirection string
)

var resetCmd = &cobra.Command{
	Use:   "reset-alert",
	Short: "Clear the cooldown for one instrument and direction",
	RunE: func(cmd *cobra.Command, args []string) error {
		if resetCode == "" {
			return fmt.Errorf("--code is required")
		}

		deleted, err := getApp().ResetAlert(cmd.Context(), resetCode, resetDirection)
		if err != nil {
			return err
		}
		if deleted {
			fmt.Fprintf(cmd.OutOrStdout(), "cooldown cleared for %s %s\n", resetCode, resetDirection)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "no cooldown recorded for %s %s\n", resetCode, resetDirection)
		}
		return nil
	},
}

func init() {
	resetCmd.Flags().StringVar(&resetCode, "code", "", "Instrument code, e.g. 600036.SH")
	resetCmd.Flags().StringVar(&resetDirection, "direction", "UP", "Breach direction (UP or DOWN)")
}
