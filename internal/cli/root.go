package cli

import (
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "cdclogger",
	Short:   "Acquire and log CDC counts from a capacitive-to-digital converter",
	Version: version,
	Long: `cdclogger reads the stream of CDC counts sent by an AD7745 based
instrument over a serial line, shows the latest reading, measures the
oscillation period of the signal, and appends every reading to one file
per day.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand is provided, print help
		cmd.Help()
	},
}

// Execute runs the root command. It is called by main.main().
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(dumpCmd)
}
