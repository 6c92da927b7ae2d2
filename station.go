package ethercat

import (
	"context"
	"fmt"
)

// Station is a [Transport] bound to a single configured station address.
// Every datagram expects a working counter of 1.
type Station struct {
	transport Transport
	address   uint16
}

func NewStation(transport Transport, address uint16) *Station {
	return &Station{transport: transport, address: address}
}

func (s *Station) Address() uint16 {
	return s.address
}

func (s *Station) Transport() Transport {
	return s.transport
}

// Read length bytes from register and check the working counter
func (s *Station) Read(ctx context.Context, register uint16, length int) ([]byte, error) {
	resp, err := s.transport.Read(ctx, s.address, register, length)
	if err != nil {
		return nil, err
	}
	return resp.Wkc(1, fmt.Sprintf("read x%x@x%x", register, s.address))
}

// ReadIgnoreWkc reads length bytes from register whatever the working counter.
// Used to clear a mailbox that may have been emptied in the meantime.
func (s *Station) ReadIgnoreWkc(ctx context.Context, register uint16, length int) ([]byte, error) {
	resp, err := s.transport.Read(ctx, s.address, register, length)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Write data at register and check the working counter.
// The data echoed back by the device is returned.
func (s *Station) Write(ctx context.Context, register uint16, data []byte) ([]byte, error) {
	resp, err := s.transport.Write(ctx, s.address, register, data)
	if err != nil {
		return nil, err
	}
	return resp.Wkc(1, fmt.Sprintf("write x%x@x%x", register, s.address))
}
