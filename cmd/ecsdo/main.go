package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "ecsdo",
		Short: "EtherCAT mailbox tool",
		Long: `ecsdo talks to the slaves of an EtherCAT segment described in a
configuration file (ini or yaml). It reads and writes CoE objects, drives
AL states and can expose slaves as CANopen nodes on a CAN bus.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Segment configuration file (.ini or .yaml)")
	rootCmd.PersistentFlags().StringVarP(&flags.iface, "interface", "i", "", "Network interface, overrides the configuration")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level, overrides the configuration")

	rootCmd.AddCommand(newReadCmd(flags))
	rootCmd.AddCommand(newWriteCmd(flags))
	rootCmd.AddCommand(newStateCmd(flags))
	rootCmd.AddCommand(newIdentityCmd(flags))
	rootCmd.AddCommand(newGatewayCmd(flags))
	rootCmd.AddCommand(newHttpCmd(flags))
	rootCmd.AddCommand(newInterfacesCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
