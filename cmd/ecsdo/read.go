package main

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type readFlags struct {
	size     int
	format   string
	complete bool
}

func newReadCmd(global *globalFlags) *cobra.Command {
	flags := &readFlags{}

	cmd := &cobra.Command{
		Use:   "read <address> <index> <subindex>",
		Short: "Upload a CoE object from a slave",
		Long: `Upload a CoE object with an SDO transfer. Expedited, normal and segmented
uploads are chosen by the slave.

With --complete, every sub index of the object is uploaded at once and the
given sub index must be 0 or 1.`,
		Example: `  # Device name of the slave at 0x1001
  ecsdo read -c segment.ini 0x1001 0x1008 0 --format string

  # Vendor id
  ecsdo read -c segment.ini 0x1001 0x1018 1 --format uint`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd, global, flags, args)
		},
	}

	cmd.Flags().IntVar(&flags.size, "size", 1024, "Size of the receive buffer in bytes")
	cmd.Flags().StringVar(&flags.format, "format", "hex", "Output format: hex|string|uint|int")
	cmd.Flags().BoolVar(&flags.complete, "complete", false, "Use complete access")

	return cmd
}

func runRead(cmd *cobra.Command, global *globalFlags, flags *readFlags, args []string) error {
	address, index, subIndex, err := parseObject(args)
	if err != nil {
		return err
	}
	if flags.size <= 0 {
		return fmt.Errorf("invalid buffer size %d", flags.size)
	}
	n, err := openSegment(global)
	if err != nil {
		return err
	}
	defer n.Close()

	s, err := n.Slave(address)
	if err != nil {
		return err
	}
	ctx := context.Background()
	var data []byte
	if flags.complete {
		data, err = s.SdoReadComplete(ctx, index, make([]byte, flags.size))
	} else {
		data, err = s.SdoReadRaw(ctx, index, subIndex, make([]byte, flags.size))
	}
	if err != nil {
		return fmt.Errorf("read x%x:x%x : %w", index, subIndex, err)
	}
	value, err := formatValue(data, flags.format)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func formatValue(data []byte, format string) (string, error) {
	switch format {
	case "hex":
		return hex.EncodeToString(data), nil
	case "string":
		return strings.TrimRight(string(data), "\x00"), nil
	case "uint", "int":
		var value uint64
		switch len(data) {
		case 1:
			value = uint64(data[0])
			if format == "int" {
				return fmt.Sprint(int8(data[0])), nil
			}
		case 2:
			value = uint64(binary.LittleEndian.Uint16(data))
			if format == "int" {
				return fmt.Sprint(int16(value)), nil
			}
		case 4:
			value = uint64(binary.LittleEndian.Uint32(data))
			if format == "int" {
				return fmt.Sprint(int32(value)), nil
			}
		case 8:
			value = binary.LittleEndian.Uint64(data)
			if format == "int" {
				return fmt.Sprint(int64(value)), nil
			}
		default:
			return "", fmt.Errorf("cannot show %d bytes as an integer", len(data))
		}
		return fmt.Sprint(value), nil
	}
	return "", fmt.Errorf("invalid output format '%s'; must be 'hex', 'string', 'uint' or 'int'", format)
}
