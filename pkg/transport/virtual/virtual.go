// Package virtual simulates a segment of EtherCAT slave controllers in memory.
// It implements [ethercat.Transport] and is primarily used for testing.
package virtual

import (
	"context"
	"fmt"
	"sort"
	"sync"

	ethercat "github.com/samsamfire/goethercat"
	log "github.com/sirupsen/logrus"
)

// Network holds the simulated devices, addressed by configured station
// address. Datagrams to an unknown address come back with a working counter
// of 0 as they would on a real segment.
type Network struct {
	logger    *log.Entry
	mu        sync.Mutex
	devices   map[uint16]*Device
	datagrams uint64
}

func NewNetwork(logger *log.Entry) *Network {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Network{
		logger:  logger.WithField("service", "[VIRTUAL]"),
		devices: make(map[uint16]*Device),
	}
}

// AddDevice creates a device in INIT state at station address
func (n *Network) AddDevice(address uint16) *Device {
	n.mu.Lock()
	defer n.mu.Unlock()
	device := newDevice(address, n.logger)
	n.devices[address] = device
	return device
}

func (n *Network) Device(address uint16) (*Device, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	device, ok := n.devices[address]
	return device, ok
}

func (n *Network) Addresses() []uint16 {
	n.mu.Lock()
	defer n.mu.Unlock()
	addresses := make([]uint16, 0, len(n.devices))
	for address := range n.devices {
		addresses = append(addresses, address)
	}
	sort.Slice(addresses, func(i, j int) bool { return addresses[i] < addresses[j] })
	return addresses
}

// Datagrams returns the number of datagrams processed so far
func (n *Network) Datagrams() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.datagrams
}

func (n *Network) lookup(station uint16) *Device {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.datagrams++
	return n.devices[station]
}

func (n *Network) Read(ctx context.Context, station uint16, register uint16, length int) (ethercat.Response, error) {
	if err := ctx.Err(); err != nil {
		return ethercat.Response{}, err
	}
	if int(register)+length > memorySize || length < 0 {
		return ethercat.Response{}, fmt.Errorf("%w : read x%x+%d", ethercat.ErrIllegalArgument, register, length)
	}
	device := n.lookup(station)
	if device == nil {
		return ethercat.Response{Data: make([]byte, length)}, nil
	}
	return device.read(register, length), nil
}

func (n *Network) Write(ctx context.Context, station uint16, register uint16, data []byte) (ethercat.Response, error) {
	if err := ctx.Err(); err != nil {
		return ethercat.Response{}, err
	}
	if int(register)+len(data) > memorySize {
		return ethercat.Response{}, fmt.Errorf("%w : write x%x+%d", ethercat.ErrIllegalArgument, register, len(data))
	}
	device := n.lookup(station)
	if device == nil {
		return ethercat.Response{Data: append([]byte(nil), data...)}, nil
	}
	return device.write(register, data), nil
}
