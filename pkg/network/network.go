// Package network manages the slaves of an EtherCAT segment reachable
// through a single transport.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	ethercat "github.com/samsamfire/goethercat"
	"github.com/samsamfire/goethercat/pkg/config"
	"github.com/samsamfire/goethercat/pkg/esc"
	"github.com/samsamfire/goethercat/pkg/gateway/cangw"
	"github.com/samsamfire/goethercat/pkg/slave"
	log "github.com/sirupsen/logrus"
)

var (
	ErrIdConflict    = errors.New("address already exists on network, this will create conflicts")
	ErrSlaveNotFound = errors.New("no slave with this address on network")
)

// A Network is the main object of this package, slaves are added to it
// either one by one or from a configuration.
type Network struct {
	logger    *log.Entry
	transport ethercat.Transport
	timeouts  ethercat.Timeouts
	mu        sync.Mutex
	slaves    map[uint16]*slave.Slave
	canIds    map[uint16]uint8
}

// Create a new Network using the given transport
func New(transport ethercat.Transport, timeouts ethercat.Timeouts, logger *log.Entry) *Network {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Network{
		logger:    logger,
		transport: transport,
		timeouts:  timeouts,
		slaves:    map[uint16]*slave.Slave{},
		canIds:    map[uint16]uint8{},
	}
}

// FromConfig creates a network with every slave described in cfg
func FromConfig(transport ethercat.Transport, cfg *config.Config, logger *log.Entry) (*Network, error) {
	network := New(transport, cfg.Master.Timeouts, logger)
	for _, s := range cfg.Slaves {
		_, err := network.AddSlave(s.Address,
			slave.WithName(s.Name),
			slave.WithMailbox(s.Mailbox),
		)
		if err != nil {
			return nil, fmt.Errorf("slave x%x : %w", s.Address, err)
		}
		if s.CanNodeId != 0 {
			network.canIds[s.Address] = s.CanNodeId
		}
	}
	return network, nil
}

func (network *Network) Transport() ethercat.Transport {
	return network.transport
}

func (network *Network) Timeouts() ethercat.Timeouts {
	return network.timeouts
}

// AddSlave creates the handle of the slave at address. The network
// timeouts and logger are used unless given in opts.
func (network *Network) AddSlave(address uint16, opts ...slave.Option) (*slave.Slave, error) {
	network.mu.Lock()
	defer network.mu.Unlock()
	if _, ok := network.slaves[address]; ok {
		return nil, ErrIdConflict
	}
	opts = append([]slave.Option{
		slave.WithTimeouts(network.timeouts),
		slave.WithLogger(network.logger),
	}, opts...)
	s, err := slave.New(network.transport, address, opts...)
	if err != nil {
		return nil, err
	}
	network.logger.WithFields(log.Fields{
		"service": "[NETWORK]",
		"station": fmt.Sprintf("x%x", address),
	}).Info("adding slave to network")
	network.slaves[address] = s
	return s, nil
}

// Slave returns the slave at address
func (network *Network) Slave(address uint16) (*slave.Slave, error) {
	network.mu.Lock()
	defer network.mu.Unlock()
	s, ok := network.slaves[address]
	if !ok {
		return nil, fmt.Errorf("%w : x%x", ErrSlaveNotFound, address)
	}
	return s, nil
}

// Slaves sorted by address
func (network *Network) Slaves() []*slave.Slave {
	network.mu.Lock()
	defer network.mu.Unlock()
	slaves := make([]*slave.Slave, 0, len(network.slaves))
	for _, s := range network.slaves {
		slaves = append(slaves, s)
	}
	sort.Slice(slaves, func(i, j int) bool { return slaves[i].Address() < slaves[j].Address() })
	return slaves
}

// TransitionAll requests state from every slave, one after the other.
// Every slave is tried, failures are joined in the returned error.
func (network *Network) TransitionAll(ctx context.Context, state esc.SlaveState) error {
	var errs []error
	for _, s := range network.Slaves() {
		if err := s.TransitionTo(ctx, state); err != nil {
			errs = append(errs, fmt.Errorf("%v : %w", s.Name(), err))
			if ctx.Err() != nil {
				break
			}
		}
	}
	return errors.Join(errs...)
}

// MapGateway exposes every slave configured with a CAN node id on gw
func (network *Network) MapGateway(gw *cangw.Gateway) (int, error) {
	mapped := 0
	for _, s := range network.Slaves() {
		network.mu.Lock()
		nodeId, ok := network.canIds[s.Address()]
		network.mu.Unlock()
		if !ok {
			continue
		}
		if err := gw.Map(nodeId, s); err != nil {
			return mapped, fmt.Errorf("%v as node x%x : %w", s.Name(), nodeId, err)
		}
		mapped++
	}
	return mapped, nil
}

// ReadRaw reads an SDO of the slave at address into buf
func (network *Network) ReadRaw(ctx context.Context, address uint16, index uint16, subIndex uint8, buf []byte) ([]byte, error) {
	s, err := network.Slave(address)
	if err != nil {
		return nil, err
	}
	return s.SdoReadRaw(ctx, index, subIndex, buf)
}

// WriteRaw writes an SDO of the slave at address
func (network *Network) WriteRaw(ctx context.Context, address uint16, index uint16, subIndex uint8, data []byte) error {
	s, err := network.Slave(address)
	if err != nil {
		return err
	}
	return s.SdoWriteRaw(ctx, index, subIndex, data)
}

// Close closes the transport when it can be closed
func (network *Network) Close() error {
	if closer, ok := network.transport.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
