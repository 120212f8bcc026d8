package cmd

import (
	"github.com/spf13/cobra"
)

// watchCmd is "checkin watch [path]": an explicit alias for
// "checkin --watch [path]".
var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Check in, then keep re-checking in on every debounced change",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Flags().Set("watch", "true")
		return runCheckIn(cmd, args)
	},
}
