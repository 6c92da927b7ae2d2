package gateway

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"

	"github.com/samsamfire/goethercat/pkg/esc"
	"github.com/samsamfire/goethercat/pkg/network"
	"github.com/samsamfire/goethercat/pkg/slave"
	log "github.com/sirupsen/logrus"
)

// BaseGateway holds what every gateway front end needs to reach the
// slaves of a network : a default station and an upload buffer.
// Front ends (HTTP, CAN) map their own requests to it.
type BaseGateway struct {
	logger         *log.Entry
	network        *network.Network
	mu             sync.Mutex
	defaultStation uint16
	sdoBuffer      []byte
}

func NewBaseGateway(network *network.Network, defaultStation uint16, sdoUploadBufferSize int, logger *log.Entry) *BaseGateway {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &BaseGateway{
		logger:         logger.WithField("service", "[GATEWAY]"),
		network:        network,
		defaultStation: defaultStation,
		sdoBuffer:      make([]byte, sdoUploadBufferSize),
	}
}

type GatewayVersion struct {
	VendorId            string
	ProductCode         string
	RevisionNumber      string
	SerialNumber        string
	GatewayClass        string
	ProtocolVersion     string
	ImplementationClass string
}

// Set default station address to use
func (gw *BaseGateway) SetDefaultStation(address uint16) error {
	if _, err := gw.network.Slave(address); err != nil {
		return err
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.defaultStation = address
	return nil
}

// Get the default station address, 0 if not set
func (gw *BaseGateway) DefaultStation() uint16 {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return gw.defaultStation
}

// Get gateway version information
func (gw *BaseGateway) GetVersion() (GatewayVersion, error) {
	return GatewayVersion{
		VendorId:            "0x0",
		ProductCode:         "0x0",
		RevisionNumber:      "0x0",
		SerialNumber:        "0x0",
		GatewayClass:        "2",
		ProtocolVersion:     "02.01",
		ImplementationClass: "01.00",
	}, nil
}

// Identity of a slave, read from its object dictionary
func (gw *BaseGateway) Identity(ctx context.Context, address uint16) (slave.Identity, error) {
	s, err := gw.network.Slave(address)
	if err != nil {
		return slave.Identity{}, err
	}
	return s.ReadIdentity(ctx)
}

// Request state from one slave, or from all of them if address is 0
func (gw *BaseGateway) StateCommand(ctx context.Context, address uint16, state esc.SlaveState) error {
	gw.logger.WithFields(log.Fields{
		"station": fmt.Sprintf("x%x", address),
		"state":   state,
	}).Debug("state command")
	if address == 0 {
		return gw.network.TransitionAll(ctx, state)
	}
	s, err := gw.network.Slave(address)
	if err != nil {
		return err
	}
	return s.TransitionTo(ctx, state)
}

// Read SDO, the returned slice is only valid until the next read
func (gw *BaseGateway) ReadSDO(ctx context.Context, address uint16, index uint16, subindex uint8) ([]byte, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return gw.network.ReadRaw(ctx, address, index, subindex, gw.sdoBuffer)
}

// Write SDO, value is encoded according to datatype, see [EncodeValue]
func (gw *BaseGateway) WriteSDO(ctx context.Context, address uint16, index uint16, subindex uint8, value string, datatype string) error {
	encoded, err := EncodeValue(value, datatype)
	if err != nil {
		return err
	}
	return gw.network.WriteRaw(ctx, address, index, subindex, encoded)
}

// Close the network
func (gw *BaseGateway) Disconnect() error {
	return gw.network.Close()
}

// EncodeValue converts a value given as a string into the little endian
// representation of datatype. Datatypes are u8, u16, u32, i8, i16, i32 and
// hex for raw bytes.
func EncodeValue(value string, datatype string) ([]byte, error) {
	var size int
	switch datatype {
	case "hex":
		data, err := hex.DecodeString(value)
		if err != nil {
			return nil, fmt.Errorf("%w : %q is not hex : %v", ErrTypeMismatch, value, err)
		}
		return data, nil
	case "u8", "i8":
		size = 1
	case "u16", "i16":
		size = 2
	case "u32", "i32":
		size = 4
	default:
		return nil, fmt.Errorf("%w : %q", ErrUnknownDatatype, datatype)
	}
	var raw uint64
	if datatype[0] == 'i' {
		parsed, err := strconv.ParseInt(value, 0, size*8)
		if err != nil {
			return nil, fmt.Errorf("%w : %q as %v", ErrTypeMismatch, value, datatype)
		}
		raw = uint64(parsed)
	} else {
		parsed, err := strconv.ParseUint(value, 0, size*8)
		if err != nil {
			return nil, fmt.Errorf("%w : %q as %v", ErrTypeMismatch, value, datatype)
		}
		raw = parsed
	}
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, raw)
	return data[:size], nil
}
