// Package coe implements SDO transfers of the CANopen over EtherCAT mailbox
// protocol : expedited downloads, and expedited, normal or segmented uploads.
package coe

import (
	"context"
	"fmt"

	ethercat "github.com/samsamfire/goethercat"
	"github.com/samsamfire/goethercat/pkg/mailbox"
	"github.com/samsamfire/goethercat/pkg/wire"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultClientBufferSize = 1024
	// Passed as sub index of a complete access upload
	SubIndexComplete uint8 = 0
)

// Client performs SDO transfers with a single slave. Each request takes the
// next value of the mailbox counter shared with the other users of the
// slave's mailbox.
type Client struct {
	channel *mailbox.Channel
	counter *mailbox.Counter
	logger  *log.Entry
}

func NewClient(channel *mailbox.Channel, counter *mailbox.Counter, logger *log.Entry) (*Client, error) {
	if channel == nil || counter == nil {
		return nil, ethercat.ErrIllegalArgument
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	logger = logger.WithFields(log.Fields{
		"service": "[COE]",
		"station": fmt.Sprintf("x%x", channel.Station().Address()),
	})
	if !channel.Config().Protocols.Has(mailbox.ProtocolCoE) {
		logger.Warn("slave does not advertise CoE")
		return nil, ErrNoCoE
	}
	return &Client{channel: channel, counter: counter, logger: logger}, nil
}

func (c *Client) newTransfer(index uint16, subIndex uint8) *transfer {
	return &transfer{
		client:   c,
		index:    index,
		subIndex: subIndex,
		state:    stateIdle,
		logger: c.logger.WithFields(log.Fields{
			"index":    fmt.Sprintf("x%x", index),
			"subindex": fmt.Sprintf("x%x", subIndex),
		}),
	}
}

// Upload reads object index / subIndex into buf and returns the part of
// buf that was filled. buf is left untouched if the transfer fails.
func (c *Client) Upload(ctx context.Context, index uint16, subIndex uint8, buf []byte) ([]byte, error) {
	t := c.newTransfer(index, subIndex)
	n, err := t.upload(ctx, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// UploadComplete reads every sub index of object index in a single transfer.
// The slave must support complete access.
func (c *Client) UploadComplete(ctx context.Context, index uint16, buf []byte) ([]byte, error) {
	if !c.channel.Config().CompleteAccess {
		return nil, fmt.Errorf("%w : complete access", ErrNotSupported)
	}
	t := c.newTransfer(index, SubIndexComplete)
	t.completeAccess = true
	n, err := t.upload(ctx, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// ReadAll uploads an object of up to [DefaultClientBufferSize] bytes.
func (c *Client) ReadAll(ctx context.Context, index uint16, subIndex uint8) ([]byte, error) {
	buf := make([]byte, DefaultClientBufferSize)
	return c.Upload(ctx, index, subIndex, buf)
}

// Download writes data to object index / subIndex. Only expedited transfers
// are supported, data longer than 4 bytes fails with [ErrNotSupported]
// before anything is sent.
func (c *Client) Download(ctx context.Context, index uint16, subIndex uint8, data []byte) error {
	if len(data) > 4 || len(data) == 0 {
		c.logger.WithFields(log.Fields{
			"index":    fmt.Sprintf("x%x", index),
			"subindex": fmt.Sprintf("x%x", subIndex),
			"length":   len(data),
		}).Error("only expedited downloads are supported")
		return ErrNotSupported
	}
	t := c.newTransfer(index, subIndex)
	return t.download(ctx, data)
}

// Read uploads an object and decodes it as T.
func Read[T any](ctx context.Context, c *Client, index uint16, subIndex uint8) (T, error) {
	var value T
	size, err := wire.SizeOf[T]()
	if err != nil {
		return value, err
	}
	buf := make([]byte, max(size, 4))
	data, err := c.Upload(ctx, index, subIndex, buf)
	if err != nil {
		return value, err
	}
	err = wire.Unpack(data, &value)
	if err != nil {
		c.logger.WithFields(log.Fields{
			"index":    fmt.Sprintf("x%x", index),
			"subindex": fmt.Sprintf("x%x", subIndex),
			"type":     fmt.Sprintf("%T", value),
			"data":     data,
		}).Error("failed to decode sdo data")
	}
	return value, err
}

// Write encodes value and downloads it.
func Write[T any](ctx context.Context, c *Client, index uint16, subIndex uint8, value T) error {
	data, err := wire.Marshal(value)
	if err != nil {
		return err
	}
	return c.Download(ctx, index, subIndex, data)
}
