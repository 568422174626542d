package cli

import (
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check-now",
	Short: "Run one evaluation pass immediately and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CheckNow(cmd.Context())
	},
}
