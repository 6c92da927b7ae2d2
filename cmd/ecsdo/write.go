package main

import (
	"context"
	"fmt"

	"github.com/samsamfire/goethercat/pkg/gateway"
	"github.com/spf13/cobra"
)

func newWriteCmd(global *globalFlags) *cobra.Command {
	var dataType string

	cmd := &cobra.Command{
		Use:   "write <address> <index> <subindex> <value>",
		Short: "Download a value of at most 4 bytes to a slave",
		Long: `Download a value with an expedited SDO transfer. The value is encoded
little endian according to --type, or taken as raw bytes with --type hex.`,
		Example: `  # Controlword
  ecsdo write -c segment.ini 0x1002 0x6040 0 0x0f --type u16

  # Raw bytes
  ecsdo write -c segment.ini 0x1002 0x8010 1 e803 --type hex`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, index, subIndex, err := parseObject(args)
			if err != nil {
				return err
			}
			data, err := gateway.EncodeValue(args[3], dataType)
			if err != nil {
				return err
			}
			n, err := openSegment(global)
			if err != nil {
				return err
			}
			defer n.Close()
			err = n.WriteRaw(context.Background(), address, index, subIndex, data)
			if err != nil {
				return fmt.Errorf("write x%x:x%x : %w", index, subIndex, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataType, "type", "u32", "Value type: u8|u16|u32|i8|i16|i32|hex")

	return cmd
}
