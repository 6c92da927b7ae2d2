package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/samsamfire/goethercat/pkg/esc"
	"github.com/samsamfire/goethercat/pkg/gateway/cangw"
	"github.com/spf13/cobra"
)

type gatewayFlags struct {
	canInterface string
	queueSize    int
	preop        bool
}

func newGatewayCmd(global *globalFlags) *cobra.Command {
	flags := &gatewayFlags{}

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Expose slaves as CANopen nodes on a socketcan bus",
		Long: `Forward expedited CANopen SDO requests received on a CAN bus to the
slaves configured with a can_node_id. Responses are sent back on the bus.
Runs until interrupted.`,
		Example: `  ecsdo gateway -c segment.ini --can can0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openSegment(global)
			if err != nil {
				return err
			}
			defer n.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			if flags.preop {
				if err := n.TransitionAll(ctx, esc.StatePreOp); err != nil {
					return err
				}
			}
			bus, err := cangw.NewSocketcanBus(flags.canInterface)
			if err != nil {
				return fmt.Errorf("open %v : %w", flags.canInterface, err)
			}
			gw := cangw.New(bus, flags.queueSize, nil)
			mapped, err := n.MapGateway(gw)
			if err != nil {
				return err
			}
			if mapped == 0 {
				return errors.New("no slave configured with a can_node_id")
			}
			if err := bus.Subscribe(gw); err != nil {
				return err
			}
			if err := bus.Connect(); err != nil {
				return err
			}
			defer bus.Disconnect()
			fmt.Fprintf(cmd.OutOrStdout(), "Forwarding %d slave(s) on %v\n", mapped, flags.canInterface)
			err = gw.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&flags.canInterface, "can", "can0", "Socketcan interface")
	cmd.Flags().IntVar(&flags.queueSize, "queue", cangw.DefaultQueueSize, "Number of pending requests before dropping")
	cmd.Flags().BoolVar(&flags.preop, "preop", true, "Bring every slave to PRE-OPERATIONAL first")

	return cmd
}
