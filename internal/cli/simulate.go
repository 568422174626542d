package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	simulatePrice string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert <code>",
	Short: "Run the alert pipeline with an injected price",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrice == "" {
			return fmt.Errorf("--price is required")
		}
		return getApp().SimulateAlert(cmd.Context(), args[0], simulatePrice)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePrice, "price", "", "Injected price for the instrument")
}
