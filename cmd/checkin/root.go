// Package cmd implements the checkin CLI surface: the root command performs
// one check-in, and lock/watch give the same pipeline explicit, separately
// documented entry points. Grounded on bennypowers-cem's cmd/root.go for the
// cobra+viper wiring shape (persistent flags bound with viper.BindPFlag,
// pterm for console output), adapted from a project-config CLI to the
// check-in engine's own flag surface.
package cmd

import (
	"github.com/spf13/cobra"

	checkinconfig "tangram.systems/checkin/internal/config"
)

var v = checkinconfig.New()

var rootCmd = &cobra.Command{
	Use:   "checkin [path]",
	Short: "Check content into the tangram object store",
	Long: `checkin scans a file or directory, resolves its tagged dependencies,
assembles its content-addressed object graph, and writes a lock file
recording the resolution.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheckIn,
}

// Execute runs the CLI and returns the process exit code: 0 success, 1
// fatal, 2 usage error, per §6.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		if _, ok := err.(usageError); ok {
			return 2
		}
		return 1
	}
	return 0
}

// usageError marks an error that should exit 2 (bad flags/arguments) rather
// than 1 (a check-in that ran but failed).
type usageError struct{ error }

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./tangram.yaml)")
	flags.Bool("locked", false, "fail instead of writing a changed lock")
	flags.Bool("no-solve", false, "leave every tag dependency unresolved")
	flags.Bool("unsolved-dependencies", false, "record unsatisfiable references as null instead of failing")
	flags.StringArray("update", nil, "forget the lock's pinned version for this dependency before solving")
	flags.Bool("deterministic", false, "never contact the catalog; use only lock-pinned versions")
	flags.Int("ttl", 0, "catalog candidate-list cache TTL, in seconds (0: use configured default)")
	flags.String("lock", "auto", "lock file medium: file, attr, auto, or none")
	flags.Bool("destructive", false, "fail on symlinks or path references that escape the entry")
	flags.Bool("ignore", true, "honor .tangramignore files and configured global ignore patterns")
	flags.Bool("no-cache-references", false, "bypass the catalog candidate-list cache for this run")
	flags.Bool("no-cache-pointers", false, "bypass cached object lookups for this run")
	flags.Bool("watch", false, "keep running, re-checking in on every debounced filesystem change")

	v.BindPFlag("configFile", flags.Lookup("config"))

	rootCmd.AddCommand(lockCmd, watchCmd)
}

func initConfig() {
	if cfgFile := v.GetString("configFile"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
}
