package cmd

import (
	"os"

	"github.com/encodeous/sospf/core"
	"github.com/encodeous/sospf/state"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a router",
	Long:  `This will run the router described by the config file and open an interactive terminal on stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		logPath, _ := cmd.Flags().GetString("log")
		if logPath != "" {
			if err := state.PathValidator(logPath); err != nil {
				return err
			}
		}
		return core.Bootstrap(state.ConfigPath, logPath, verbose, os.Stdin, os.Stdout)
	},
	GroupID: "sospf",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().StringP("log", "l", "", "Also write logs to this file")
	runCmd.Flags().BoolVarP(&state.DBG_debug, "debug", "d", false, "Serve expvar, metrics and pprof on "+state.DebugAddr)
	runCmd.Flags().BoolVarP(&state.DBG_trace, "trace", "t", false, "Write a runtime trace to trace.out")
}
