// Package slave is the master side handle of a single EtherCAT slave : its
// AL state machine and mailbox based services.
package slave

import (
	"context"
	"fmt"
	"sync"

	ethercat "github.com/samsamfire/goethercat"
	"github.com/samsamfire/goethercat/pkg/coe"
	"github.com/samsamfire/goethercat/pkg/esc"
	"github.com/samsamfire/goethercat/pkg/mailbox"
	"github.com/samsamfire/goethercat/pkg/wire"
	log "github.com/sirupsen/logrus"
)

// Identity is the content of object 0x1018
type Identity struct {
	VendorId       uint32
	ProductCode    uint32
	RevisionNumber uint32
	SerialNumber   uint32
}

func (id Identity) String() string {
	return fmt.Sprintf("vendor x%08x product x%08x revision x%08x serial x%08x",
		id.VendorId, id.ProductCode, id.RevisionNumber, id.SerialNumber)
}

// Slave is created once the slave has a configured station address.
// Its mailbox counter starts at 1 and is never reset for the lifetime of
// the handle. A Slave may be shared between goroutines but mailbox
// exchanges must not overlap.
type Slave struct {
	station    *ethercat.Station
	name       string
	mu         sync.Mutex
	identity   Identity
	config     mailbox.Config
	counter    *mailbox.Counter
	timeouts   ethercat.Timeouts
	logger     *log.Entry
	checkState bool
	channel    *mailbox.Channel
	client     *coe.Client
}

type Option func(*Slave)

func WithName(name string) Option {
	return func(s *Slave) { s.name = name }
}

func WithIdentity(identity Identity) Option {
	return func(s *Slave) { s.identity = identity }
}

// WithMailbox sets the mailbox configuration. Without it the slave only
// supports register access and state changes.
func WithMailbox(config mailbox.Config) Option {
	return func(s *Slave) { s.config = config }
}

func WithTimeouts(timeouts ethercat.Timeouts) Option {
	return func(s *Slave) { s.timeouts = timeouts }
}

func WithLogger(logger *log.Entry) Option {
	return func(s *Slave) { s.logger = logger }
}

// WithCheckState reads the AL status before every mailbox transfer and
// fails with [ErrMailboxNotReady] while the slave is still in INIT.
func WithCheckState(check bool) Option {
	return func(s *Slave) { s.checkState = check }
}

func New(transport ethercat.Transport, address uint16, opts ...Option) (*Slave, error) {
	if transport == nil || address == 0 {
		return nil, ethercat.ErrIllegalArgument
	}
	s := &Slave{
		station:  ethercat.NewStation(transport, address),
		counter:  mailbox.NewCounter(),
		timeouts: ethercat.DefaultTimeouts(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.NewEntry(log.StandardLogger())
	}
	if s.name == "" {
		s.name = fmt.Sprintf("slave-x%x", address)
	}
	parent := s.logger
	s.logger = parent.WithFields(log.Fields{
		"service": "[SLAVE]",
		"station": fmt.Sprintf("x%x", address),
	})
	if s.config.Read == nil || s.config.Write == nil {
		return s, nil
	}
	channel, err := mailbox.NewChannel(s.station, s.config, s.timeouts, parent)
	if err != nil {
		return nil, err
	}
	s.channel = channel
	if s.config.Protocols.Has(mailbox.ProtocolCoE) {
		s.client, err = coe.NewClient(channel, s.counter, parent)
		if err != nil {
			return nil, err
		}
	}
	s.logger.WithFields(log.Fields{
		"name":      s.name,
		"protocols": s.config.Protocols.String(),
	}).Debug("slave created")
	return s, nil
}

func (s *Slave) Address() uint16 {
	return s.station.Address()
}

func (s *Slave) Name() string {
	return s.name
}

func (s *Slave) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Slave) Mailbox() mailbox.Config {
	return s.config
}

func (s *Slave) Counter() *mailbox.Counter {
	return s.counter
}

func (s *Slave) Station() *ethercat.Station {
	return s.station
}

func (s *Slave) Timeouts() ethercat.Timeouts {
	return s.timeouts
}

func (s *Slave) mailboxReady(ctx context.Context) error {
	if s.channel == nil {
		return ethercat.ErrNoMailbox
	}
	if !s.checkState {
		return nil
	}
	state, _, err := s.Status(ctx)
	if err != nil {
		return err
	}
	if state == esc.StateNone || state == esc.StateInit {
		s.logger.WithField("state", state).Warn("mailbox access refused")
		return fmt.Errorf("%w : slave x%x is %v", ErrMailboxNotReady, s.Address(), state)
	}
	return nil
}

// Channel returns the mailbox channel of the slave, once it is usable.
func (s *Slave) Channel(ctx context.Context) (*mailbox.Channel, error) {
	if err := s.mailboxReady(ctx); err != nil {
		return nil, err
	}
	return s.channel, nil
}

// Coe returns the SDO client of the slave, once its mailbox is usable.
func (s *Slave) Coe(ctx context.Context) (*coe.Client, error) {
	if s.channel != nil && s.client == nil {
		return nil, fmt.Errorf("%w : %w", ethercat.ErrProtocolNotFound, coe.ErrNoCoE)
	}
	if err := s.mailboxReady(ctx); err != nil {
		return nil, err
	}
	return s.client, nil
}

// RegisterRead reads length bytes of ESC memory at register.
func (s *Slave) RegisterRead(ctx context.Context, register uint16, length int) ([]byte, error) {
	return s.station.Read(ctx, register, length)
}

// RegisterWrite writes data at register and returns what the slave echoed.
func (s *Slave) RegisterWrite(ctx context.Context, register uint16, data []byte) ([]byte, error) {
	return s.station.Write(ctx, register, data)
}

// ReadRegister reads and decodes a register into T.
func ReadRegister[T any](ctx context.Context, s *Slave, register uint16) (T, error) {
	var value T
	size, err := wire.SizeOf[T]()
	if err != nil {
		return value, err
	}
	raw, err := s.RegisterRead(ctx, register, size)
	if err != nil {
		return value, err
	}
	return wire.Decode[T](raw)
}
