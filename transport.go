// Package ethercat holds the types shared by every layer of the master :
// the register transport abstraction, timeouts and common errors.
package ethercat

import "context"

// Transport gives addressed access to the registers and memory of devices
// on the segment, using configured station addresses.
// Implementations serialise access to the physical link.
type Transport interface {
	// Read length bytes at register of the device at station
	Read(ctx context.Context, station uint16, register uint16, length int) (Response, error)
	// Write data at register of the device at station
	Write(ctx context.Context, station uint16, register uint16, data []byte) (Response, error)
}

// Response is the datagram payload returned by a device along with the
// working counter it produced.
type Response struct {
	Data           []byte
	WorkingCounter uint16
}

// Wkc checks the working counter and returns the payload when it matches.
func (r Response) Wkc(expected uint16, context string) ([]byte, error) {
	if r.WorkingCounter != expected {
		return nil, &WorkingCounterError{Expected: expected, Received: r.WorkingCounter, Context: context}
	}
	return r.Data, nil
}
