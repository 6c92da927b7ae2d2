// Package pcapconn opens a live network interface for the raw transport
// using libpcap.
package pcapconn

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/samsamfire/goethercat/pkg/transport/raw"
)

const (
	snapshotLength = 1600
	readTimeout    = time.Millisecond
	filter         = "ether proto 0x88a4"
)

// Conn is a [raw.PacketConn] over a pcap handle
type Conn struct {
	handle *pcap.Handle
}

// Open captures EtherCAT frames on iface in promiscuous mode.
func Open(iface string) (*Conn, error) {
	handle, err := pcap.OpenLive(iface, snapshotLength, true, readTimeout)
	if err != nil {
		return nil, fmt.Errorf("open live interface %v: %w", iface, err)
	}
	if err := handle.SetBPFFilter(filter); err != nil {
		handle.Close()
		return nil, fmt.Errorf("set BPF filter: %w", err)
	}
	return &Conn{handle: handle}, nil
}

func (c *Conn) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := c.handle.ReadPacketData()
	if errors.Is(err, pcap.NextErrorTimeoutExpired) {
		return nil, ci, raw.ErrNoPacket
	}
	return data, ci, err
}

func (c *Conn) WritePacketData(data []byte) error {
	return c.handle.WritePacketData(data)
}

func (c *Conn) Close() error {
	c.handle.Close()
	return nil
}

// Interfaces lists the names of the interfaces pcap can open
func Interfaces() ([]string, error) {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("find network devices: %w", err)
	}
	names := make([]string, 0, len(devices))
	for _, device := range devices {
		names = append(names, device.Name)
	}
	return names, nil
}
