// Package cangw exposes EtherCAT slaves as CANopen nodes : expedited SDO
// requests received on a CAN bus are forwarded as CoE transfers to the slave
// mapped to the addressed node id.
package cangw

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	ethercat "github.com/samsamfire/goethercat"
	"github.com/samsamfire/goethercat/pkg/coe"
	log "github.com/sirupsen/logrus"
)

const (
	ServerRequestBase  uint32 = 0x600
	ServerResponseBase uint32 = 0x580
	DefaultQueueSize          = 32
	uploadBufferSize          = 64
)

// CANopen command specifiers of the SDO initiate services
const (
	ccsDownloadInitiate = 1
	ccsUploadInitiate   = 2
	ccsAbort            = 4
	scsUploadInitiate   = 2
	scsDownloadInitiate = 3
	csAbort             = 4
)

var ErrIdConflict = errors.New("node id already mapped, this will create conflicts")

// SdoAccess is implemented by [slave.Slave]
type SdoAccess interface {
	SdoReadRaw(ctx context.Context, index uint16, subIndex uint8, buf []byte) ([]byte, error)
	SdoWriteRaw(ctx context.Context, index uint16, subIndex uint8, data []byte) error
}

type request struct {
	nodeId uint8
	data   [8]byte
}

// Gateway must be subscribed to the bus, requests are then queued by
// [Gateway.Handle] and processed one at a time by [Gateway.Run].
type Gateway struct {
	logger   *log.Entry
	bus      Bus
	mu       sync.Mutex
	nodes    map[uint8]SdoAccess
	requests chan request
}

func New(bus Bus, queueSize int, logger *log.Entry) *Gateway {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Gateway{
		logger:   logger.WithField("service", "[GATEWAY]"),
		bus:      bus,
		nodes:    make(map[uint8]SdoAccess),
		requests: make(chan request, queueSize),
	}
}

// Map exposes slave as CANopen node nodeId
func (g *Gateway) Map(nodeId uint8, slave SdoAccess) error {
	if nodeId == 0 || nodeId > 127 || slave == nil {
		return ethercat.ErrIllegalArgument
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[nodeId]; ok {
		return ErrIdConflict
	}
	g.nodes[nodeId] = slave
	return nil
}

func (g *Gateway) node(nodeId uint8) (SdoAccess, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[nodeId]
	return node, ok
}

// Handle is called by the bus for every received frame, it never blocks.
func (g *Gateway) Handle(frame Frame) {
	if frame.ID&CanRtrFlag != 0 || frame.DLC != 8 {
		return
	}
	id := frame.ID & CanSffMask
	if id <= ServerRequestBase || id > ServerRequestBase+127 {
		return
	}
	nodeId := uint8(id - ServerRequestBase)
	if _, ok := g.node(nodeId); !ok {
		return
	}
	select {
	case g.requests <- request{nodeId: nodeId, data: frame.Data}:
	default:
		g.logger.WithField("node", nodeId).Warn("request queue full, dropping sdo request")
	}
}

// Run processes queued requests until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	g.logger.Info("starting gateway")
	for {
		select {
		case <-ctx.Done():
			g.logger.Info("exited gateway")
			return ctx.Err()
		case req := <-g.requests:
			g.process(ctx, req)
		}
	}
}

func (g *Gateway) process(ctx context.Context, req request) {
	node, _ := g.node(req.nodeId)
	ccs := req.data[0] >> 5
	index := binary.LittleEndian.Uint16(req.data[1:3])
	subIndex := req.data[3]
	logger := g.logger.WithFields(log.Fields{
		"node":     req.nodeId,
		"index":    fmt.Sprintf("x%x", index),
		"subindex": fmt.Sprintf("x%x", subIndex),
	})

	var response [8]byte
	switch ccs {
	case ccsAbort:
		logger.Debug("[RX] client abort")
		return
	case ccsUploadInitiate:
		logger.Debug("[RX] upload")
		data, err := node.SdoReadRaw(ctx, index, subIndex, make([]byte, uploadBufferSize))
		switch {
		case err != nil:
		case len(data) == 0:
			logger.Warn("empty object can not be forwarded as expedited upload")
			err = coe.AbortNoData
		case len(data) > 4:
			logger.WithField("length", len(data)).Warn("only expedited uploads can be forwarded")
			err = coe.AbortCmd
		}
		if err != nil {
			response = abortResponse(index, subIndex, abortCode(err))
			break
		}
		response[0] = scsUploadInitiate<<5 | byte(4-len(data))<<2 | 0x03
		copy(response[4:], data)
	case ccsDownloadInitiate:
		expedited := req.data[0]&0x02 != 0
		sizeIndicated := req.data[0]&0x01 != 0
		if !expedited {
			logger.Warn("only expedited downloads can be forwarded")
			response = abortResponse(index, subIndex, coe.AbortCmd)
			break
		}
		size := 4
		if sizeIndicated {
			size = 4 - int(req.data[0]>>2&0x03)
		}
		logger.WithField("data", req.data[4:4+size]).Debug("[RX] download")
		err := node.SdoWriteRaw(ctx, index, subIndex, req.data[4:4+size])
		if err != nil {
			response = abortResponse(index, subIndex, abortCode(err))
			break
		}
		response[0] = scsDownloadInitiate << 5
	default:
		logger.WithField("ccs", ccs).Warn("unsupported sdo command")
		response = abortResponse(index, subIndex, coe.AbortCmd)
	}
	if response[0]>>5 != csAbort {
		binary.LittleEndian.PutUint16(response[1:3], index)
		response[3] = subIndex
	}
	err := g.bus.Send(Frame{ID: ServerResponseBase + uint32(req.nodeId), DLC: 8, Data: response})
	if err != nil {
		logger.WithError(err).Error("failed to send sdo response")
	}
}

// Abort code sent back on the CAN side for a failed transfer
func abortCode(err error) coe.AbortCode {
	var abortErr *coe.AbortError
	var code coe.AbortCode
	switch {
	case errors.As(err, &abortErr):
		return abortErr.Code
	case errors.As(err, &code):
		return code
	case errors.Is(err, ethercat.ErrTimeout):
		return coe.AbortTimeout
	default:
		return coe.AbortGeneral
	}
}

func abortResponse(index uint16, subIndex uint8, code coe.AbortCode) [8]byte {
	var response [8]byte
	response[0] = csAbort << 5
	binary.LittleEndian.PutUint16(response[1:3], index)
	response[3] = subIndex
	binary.LittleEndian.PutUint32(response[4:], uint32(code))
	return response
}
