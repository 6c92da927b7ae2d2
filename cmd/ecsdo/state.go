package main

import (
	"context"
	"fmt"

	"github.com/samsamfire/goethercat/pkg/esc"
	"github.com/samsamfire/goethercat/pkg/slave"
	"github.com/spf13/cobra"
)

func newStateCmd(global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state [state] [address...]",
		Short: "Show or change the AL state of slaves",
		Long: `Without arguments, show the AL state and AL status code of every slave.

With a state (init, preop, boot, safeop, op), request it from the given
slaves, or from every slave when no address is given, and wait until they
reach it.`,
		Example: `  # Show states
  ecsdo state -c segment.ini

  # Whole segment to PRE-OPERATIONAL
  ecsdo state -c segment.ini preop

  # One slave to SAFE-OPERATIONAL
  ecsdo state -c segment.ini safeop 0x1002`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var target esc.SlaveState
			var addresses []uint16
			if len(args) > 0 {
				var err error
				target, err = esc.ParseState(args[0])
				if err != nil {
					return err
				}
				for _, arg := range args[1:] {
					address, err := parseUint(arg, "address", 16)
					if err != nil {
						return err
					}
					addresses = append(addresses, uint16(address))
				}
			}
			n, err := openSegment(global)
			if err != nil {
				return err
			}
			defer n.Close()

			ctx := context.Background()
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, s := range n.Slaves() {
					state, code, err := s.Status(ctx)
					if err != nil {
						fmt.Fprintf(out, "x%04x %-20s error: %v\n", s.Address(), s.Name(), err)
						continue
					}
					fmt.Fprintf(out, "x%04x %-20s %v (%v)\n", s.Address(), s.Name(), state, code)
				}
				return nil
			}
			if len(addresses) == 0 {
				return n.TransitionAll(ctx, target)
			}
			slaves := make([]*slave.Slave, 0, len(addresses))
			for _, address := range addresses {
				s, err := n.Slave(address)
				if err != nil {
					return err
				}
				slaves = append(slaves, s)
			}
			for _, s := range slaves {
				if err := s.TransitionTo(ctx, target); err != nil {
					return err
				}
				fmt.Fprintf(out, "x%04x %-20s %v\n", s.Address(), s.Name(), target)
			}
			return nil
		},
	}
	return cmd
}
