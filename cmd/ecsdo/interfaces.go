package main

import (
	"fmt"

	"github.com/samsamfire/goethercat/pkg/transport/raw/pcapconn"
	"github.com/spf13/cobra"
)

func newInterfacesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interfaces",
		Short: "List network interfaces usable as EtherCAT ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := pcapconn.Interfaces()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
