package cmd

import (
	"os"

	"github.com/encodeous/sospf/state"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sospf",
	Short: "Simulated OSPF router",
	Long: `sospf runs one router of a simulated link-state network.
Routers are identified by a simulated address, discover neighbours over direct links and compute shortest paths over the topology they learn.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Initialize a Router",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "sospf",
		Title: "Router Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&state.ConfigPath, "config", "c", state.ConfigPath, "router config")
}
