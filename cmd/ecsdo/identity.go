package main

import (
	"context"
	"errors"
	"fmt"

	ethercat "github.com/samsamfire/goethercat"
	"github.com/samsamfire/goethercat/pkg/slave"
	"github.com/spf13/cobra"
)

func newIdentityCmd(global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity [address...]",
		Short: "Read the identity object of CoE slaves",
		Long: `Read the identity object (0x1018) and the device name (0x1008) of the
given slaves, or of every slave supporting CoE when no address is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openSegment(global)
			if err != nil {
				return err
			}
			defer n.Close()

			var slaves []*slave.Slave
			for _, arg := range args {
				address, err := parseUint(arg, "address", 16)
				if err != nil {
					return err
				}
				s, err := n.Slave(uint16(address))
				if err != nil {
					return err
				}
				slaves = append(slaves, s)
			}
			if len(args) == 0 {
				slaves = n.Slaves()
			}

			ctx := context.Background()
			out := cmd.OutOrStdout()
			for _, s := range slaves {
				identity, err := s.ReadIdentity(ctx)
				if len(args) == 0 && (errors.Is(err, ethercat.ErrNoMailbox) || errors.Is(err, ethercat.ErrProtocolNotFound)) {
					continue
				}
				if err != nil {
					return fmt.Errorf("%v : %w", s.Name(), err)
				}
				name, err := s.ReadDeviceName(ctx)
				if err != nil {
					name = "-"
				}
				fmt.Fprintf(out, "Slave x%04x (%v):\n", s.Address(), s.Name())
				fmt.Fprintf(out, "  Device name:  %s\n", name)
				fmt.Fprintf(out, "  Vendor ID:    0x%08X\n", identity.VendorId)
				fmt.Fprintf(out, "  Product code: 0x%08X\n", identity.ProductCode)
				fmt.Fprintf(out, "  Revision:     0x%08X\n", identity.RevisionNumber)
				fmt.Fprintf(out, "  Serial:       0x%08X\n", identity.SerialNumber)
			}
			return nil
		},
	}
	return cmd
}
