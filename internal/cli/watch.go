package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	watchName  string
	watchUpper string
	watchLower string
	watchOwner string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage the watchlist",
}

var watchAddCmd = &cobra.Command{
	Use:   "add <code>",
	Short: "Track an instrument with threshold prices",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchUpper == "" || watchLower == "" {
			return fmt.Errorf("--upper and --lower are required")
		}
		if watchName == "" {
			watchName = args[0]
		}
		return getApp().AddInstrument(cmd.Context(), args[0], watchName, watchUpper, watchLower, watchOwner)
	},
}

var watchRemoveCmd = &cobra.Command{
	Use:   "remove <code>",
	Short: "Stop tracking an instrument",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RemoveInstrument(cmd.Context(), args[0], watchOwner)
	},
}

var watchSetCmd = &cobra.Command{
	Use:   "set <code>",
	Short: "Replace the threshold pair for an instrument",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchUpper == "" || watchLower == "" {
			return fmt.Errorf("--upper and --lower are required")
		}
		return getApp().SetThresholds(cmd.Context(), args[0], watchOwner, watchUpper, watchLower)
	},
}

var watchListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the watchlist",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowWatchlist(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	watchCmd.PersistentFlags().StringVar(&watchOwner, "owner", "", "Owner email receiving alerts")
	watchAddCmd.Flags().StringVar(&watchName, "name", "", "Display name (defaults to the code)")
	watchAddCmd.Flags().StringVar(&watchUpper, "upper", "", "Upper threshold price")
	watchAddCmd.Flags().StringVar(&watchLower, "lower", "", "Lower threshold price")
	watchSetCmd.Flags().StringVar(&watchUpper, "upper", "", "Upper threshold price")
	watchSetCmd.Flags().StringVar(&watchLower, "lower", "", "Lower threshold price")

	watchCmd.AddCommand(watchAddCmd)
	watchCmd.AddCommand(watchRemoveCmd)
	watchCmd.AddCommand(watchSetCmd)
	watchCmd.AddCommand(watchListCmd)
}
