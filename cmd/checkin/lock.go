package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// lockCmd is "checkin lock [path]": an explicit alias for
// "checkin --locked [path]", verifying that the entry's lock is already up
// to date without writing anything.
var lockCmd = &cobra.Command{
	Use:   "lock [path]",
	Short: "Verify the entry's lock is up to date without writing it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Flags().Set("locked", "true")
		entryPath := "."
		if len(args) == 1 {
			entryPath = args[0]
		}
		run, _, err := buildRunner(cmd, entryPath)
		if err != nil {
			return err
		}
		result, err := run(context.Background())
		if err != nil {
			return err
		}
		reportResult(result)
		return nil
	},
}
