package mailbox

import (
	"context"
	"errors"
	"fmt"

	ethercat "github.com/samsamfire/goethercat"
	"github.com/samsamfire/goethercat/pkg/esc"
	"github.com/samsamfire/goethercat/pkg/wire"
	log "github.com/sirupsen/logrus"
)

// Channel drives the full / empty handshake of the two mailboxes of a slave.
// It holds no state between calls; only one exchange per slave should be
// outstanding at a time.
type Channel struct {
	station  *ethercat.Station
	config   Config
	timeouts ethercat.Timeouts
	logger   *log.Entry
}

func NewChannel(station *ethercat.Station, config Config, timeouts ethercat.Timeouts, logger *log.Entry) (*Channel, error) {
	if station == nil {
		return nil, ethercat.ErrIllegalArgument
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	logger = logger.WithFields(log.Fields{
		"service": "[MAILBOX]",
		"station": fmt.Sprintf("x%x", station.Address()),
	})
	if config.Read == nil || config.Write == nil {
		logger.Error("slave has no read or write mailbox")
		return nil, ethercat.ErrNoMailbox
	}
	return &Channel{station: station, config: config, timeouts: timeouts, logger: logger}, nil
}

func (c *Channel) Config() Config {
	return c.config
}

func (c *Channel) Station() *ethercat.Station {
	return c.station
}

func (c *Channel) syncManagerStatus(ctx context.Context, index uint8) (esc.SyncManagerStatus, error) {
	raw, err := c.station.Read(ctx, esc.SyncManager(index), esc.SyncManagerLength)
	if err != nil {
		return esc.SyncManagerStatus{}, err
	}
	sm, err := wire.Decode[esc.SyncManagerChannel](raw)
	if err != nil {
		return esc.SyncManagerStatus{}, err
	}
	return sm.Status, nil
}

// Poll the sync manager of a mailbox until its full flag equals full
func (c *Channel) waitFull(ctx context.Context, mbx *Mailbox, full bool, op string) error {
	timeout := c.timeouts.MailboxEcho
	if full {
		timeout = c.timeouts.MailboxResponse
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		status, err := c.syncManagerStatus(ctx, mbx.SyncManager)
		if err != nil {
			return c.mapError(ctx, err, op)
		}
		if status.MailboxFull == full {
			return nil
		}
		if err := c.timeouts.Tick(ctx); err != nil {
			return c.mapError(ctx, err, op)
		}
	}
}

func (c *Channel) mapError(ctx context.Context, err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.logger.WithField("op", op).Error("mailbox timeout")
		return &TimeoutError{Slave: c.station.Address(), Op: op}
	}
	return err
}

// AcquireWrite waits until the write mailbox has been emptied by the slave.
func (c *Channel) AcquireWrite(ctx context.Context) error {
	return c.waitFull(ctx, c.config.Write, false, "acquire write mailbox")
}

// DrainStaleRead empties the read mailbox when a response from a previous
// exchange is still waiting in it.
func (c *Channel) DrainStaleRead(ctx context.Context) error {
	status, err := c.syncManagerStatus(ctx, c.config.Read.SyncManager)
	if err != nil {
		return err
	}
	if !status.MailboxFull {
		return nil
	}
	c.logger.Debug("read mailbox not empty, clearing")
	_, err = c.station.ReadIgnoreWkc(ctx, c.config.Read.Address, int(c.config.Read.Length))
	return err
}

// AwaitResponse waits for the slave to fill the read mailbox then reads it
// once entirely. Nothing is returned on timeout.
func (c *Channel) AwaitResponse(ctx context.Context) ([]byte, error) {
	err := c.waitFull(ctx, c.config.Read, true, "await response")
	if err != nil {
		return nil, err
	}
	response, err := c.station.Read(ctx, c.config.Read.Address, int(c.config.Read.Length))
	if err != nil {
		return nil, err
	}
	c.logger.WithField("data", response).Debug("[RX] mailbox")
	return response, nil
}

// Send writes frame to the write mailbox, padded with zeros to its length.
func (c *Channel) Send(ctx context.Context, frame []byte) error {
	length := int(c.config.Write.Length)
	if len(frame) > length {
		return fmt.Errorf("%w : %d bytes, mailbox is %d", ErrFrameTooLarge, len(frame), length)
	}
	buf := make([]byte, length)
	copy(buf, frame)
	c.logger.WithField("data", frame).Debug("[TX] mailbox")
	_, err := c.station.Write(ctx, c.config.Write.Address, buf)
	return err
}

// Exchange performs a complete request / response cycle.
func (c *Channel) Exchange(ctx context.Context, frame []byte) ([]byte, error) {
	if err := c.DrainStaleRead(ctx); err != nil {
		return nil, err
	}
	if err := c.AcquireWrite(ctx); err != nil {
		return nil, err
	}
	if err := c.Send(ctx, frame); err != nil {
		return nil, err
	}
	return c.AwaitResponse(ctx)
}
