package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// This command reads a scenario file, evaluates the mission and exports its results.

var rootCmd = &cobra.Command{
	Use:   "mission",
	Short: "mission evaluates the segments of an aircraft mission",
	Long: `mission reads a scenario file (vehicle, segments and export options), solves every
segment in order and writes the requested CSV and YAML files to the output directory
set in $SEGSIM_CONFIG/conf.toml.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("scenario", "s", "", "scenario TOML file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log every segment and solver step")
	rootCmd.MarkPersistentFlagRequired("scenario")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
