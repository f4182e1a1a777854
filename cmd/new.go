package cmd

import (
	"fmt"
	"os"

	"github.com/encodeous/sospf/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new <simulated ip>",
	Short: "Write a new router config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := state.AddrValidator(args[0])
		if err != nil {
			return err
		}
		port, _ := cmd.Flags().GetUint16("port")
		bind, _ := cmd.Flags().GetString("bind")
		force, _ := cmd.Flags().GetBool("force")

		cfg := state.LocalCfg{
			Addr: addr,
			Port: port,
			Bind: bind,
		}
		if err = state.LocalConfigValidator(&cfg); err != nil {
			return err
		}
		if _, err = os.Stat(state.ConfigPath); err == nil && !force {
			return fmt.Errorf("%s already exists, use --force to overwrite it", state.ConfigPath)
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		if err = os.WriteFile(state.ConfigPath, out, 0600); err != nil {
			return err
		}
		fmt.Printf("wrote %s for router %s\n", state.ConfigPath, addr)
		return nil
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(newCmd)

	newCmd.Flags().Uint16P("port", "p", uint16(state.DefaultPort), "Port the router listens on")
	newCmd.Flags().StringP("bind", "b", state.DefaultBind, "Host the router listens on")
	newCmd.Flags().BoolP("force", "f", false, "Overwrite an existing config")
}
