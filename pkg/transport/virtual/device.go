package virtual

import (
	"fmt"
	"sync"

	ethercat "github.com/samsamfire/goethercat"
	"github.com/samsamfire/goethercat/pkg/esc"
	"github.com/samsamfire/goethercat/pkg/mailbox"
	"github.com/samsamfire/goethercat/pkg/wire"
	log "github.com/sirupsen/logrus"
)

const memorySize = 0x10000

// MailboxHandler processes a request written to the write mailbox and
// returns the frames the slave puts in its read mailbox, in order.
type MailboxHandler func(request []byte) [][]byte

// Device is a simulated slave controller : register memory, the AL state
// machine and the two mailboxes with their sync manager full flags.
type Device struct {
	logger   *log.Entry
	mu       sync.Mutex
	address  uint16
	memory   []byte
	state    esc.SlaveState
	refusals map[esc.SlaveState]esc.AlStatusCode

	writeMbx  *mailbox.Mailbox
	readMbx   *mailbox.Mailbox
	writeFull bool
	readFull  bool
	pending   [][]byte
	handler   MailboxHandler
	requests  [][]byte
	mute      bool
}

func newDevice(address uint16, logger *log.Entry) *Device {
	d := &Device{
		logger:   logger.WithField("station", fmt.Sprintf("x%x", address)),
		address:  address,
		memory:   make([]byte, memorySize),
		refusals: make(map[esc.SlaveState]esc.AlStatusCode),
	}
	d.memory[esc.RegisterConfiguredAddress] = byte(address)
	d.memory[esc.RegisterConfiguredAddress+1] = byte(address >> 8)
	d.setStatus(esc.AlControl{State: esc.StateInit}, esc.AlNoError)
	return d
}

func (d *Device) Address() uint16 {
	return d.address
}

// ConfigureMailbox sets up the sync managers of both mailboxes.
func (d *Device) ConfigureMailbox(write mailbox.Mailbox, read mailbox.Mailbox) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	channels := []struct {
		mbx       mailbox.Mailbox
		direction esc.Direction
	}{
		{write, esc.DirectionMasterWrite},
		{read, esc.DirectionMasterRead},
	}
	for _, ch := range channels {
		sm := esc.SyncManagerChannel{
			PhysicalStart: ch.mbx.Address,
			Length:        ch.mbx.Length,
			Control: esc.SyncManagerControl{
				OperationMode:   esc.OperationMailbox,
				Direction:       ch.direction,
				EcatEventEnable: true,
			},
			Enable: esc.SyncManagerEnable{Enable: true},
		}
		_, err := wire.Pack(sm, d.memory[esc.SyncManager(ch.mbx.SyncManager):])
		if err != nil {
			return err
		}
	}
	d.writeMbx = &write
	d.readMbx = &read
	return nil
}

// SetMailboxHandler sets the function answering mailbox requests.
func (d *Device) SetMailboxHandler(handler MailboxHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = handler
}

// AttachSdoServer answers CoE requests with server.
func (d *Device) AttachSdoServer(server *SdoServer) {
	d.SetMailboxHandler(server.Handle)
}

// StallWriteMailbox keeps the write mailbox full, as a slave that stopped
// processing requests would.
func (d *Device) StallWriteMailbox(stall bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeFull = stall
}

// MuteMailbox makes the device swallow requests without ever responding.
func (d *Device) MuteMailbox(mute bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mute = mute
}

// InjectResponse queues a frame in the read mailbox as if the slave had
// produced it unprompted.
func (d *Device) InjectResponse(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, append([]byte(nil), frame...))
	if !d.readFull {
		d.loadNext()
	}
}

// Requests returns a copy of every frame written to the write mailbox.
func (d *Device) Requests() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	requests := make([][]byte, len(d.requests))
	for i, r := range d.requests {
		requests[i] = append([]byte(nil), r...)
	}
	return requests
}

func (d *Device) ReadMailboxFull() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readFull
}

// RefuseState makes any request for state fail with code.
func (d *Device) RefuseState(state esc.SlaveState, code esc.AlStatusCode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refusals[state] = code
}

// SetState forces the current AL state.
func (d *Device) SetState(state esc.SlaveState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = state
	d.setStatus(esc.AlControl{State: state}, esc.AlNoError)
}

func (d *Device) State() esc.SlaveState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Device) setStatus(status esc.AlControl, code esc.AlStatusCode) {
	d.state = status.State
	_, _ = wire.Pack(status, d.memory[esc.RegisterAlStatus:])
	_, _ = wire.Pack(code, d.memory[esc.RegisterAlStatusCode:])
}

func (d *Device) requestState(control esc.AlControl) {
	code, refused := d.refusals[control.State]
	if refused {
		d.logger.WithFields(log.Fields{
			"requested": control.State,
			"code":      code,
		}).Debug("refusing state change")
		d.setStatus(esc.AlControl{State: d.state, Error: true}, code)
		return
	}
	d.setStatus(esc.AlControl{State: control.State}, esc.AlNoError)
}

// Mirror the full flags into the sync manager status bytes
func (d *Device) refreshSyncManagers() {
	flags := []struct {
		mbx  *mailbox.Mailbox
		full bool
	}{
		{d.writeMbx, d.writeFull},
		{d.readMbx, d.readFull},
	}
	for _, f := range flags {
		if f.mbx == nil {
			continue
		}
		status := &d.memory[esc.SyncManager(f.mbx.SyncManager)+esc.SyncManagerStatusOffset]
		if f.full {
			*status |= 0x08
		} else {
			*status &^= 0x08
		}
	}
}

func (d *Device) loadNext() {
	if len(d.pending) == 0 || d.readMbx == nil {
		return
	}
	frame := d.pending[0]
	d.pending = d.pending[1:]
	region := d.memory[d.readMbx.Address : int(d.readMbx.Address)+int(d.readMbx.Length)]
	clear(region)
	copy(region, frame)
	d.readFull = true
}

func (d *Device) read(register uint16, length int) ethercat.Response {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readMbx != nil && register == d.readMbx.Address {
		if !d.readFull {
			// Reading an empty mailbox is not acknowledged
			return ethercat.Response{Data: make([]byte, length)}
		}
		data := append([]byte(nil), d.memory[register:int(register)+length]...)
		d.readFull = false
		d.loadNext()
		return ethercat.Response{Data: data, WorkingCounter: 1}
	}
	d.refreshSyncManagers()
	data := append([]byte(nil), d.memory[register:int(register)+length]...)
	return ethercat.Response{Data: data, WorkingCounter: 1}
}

func (d *Device) write(register uint16, data []byte) ethercat.Response {
	d.mu.Lock()
	defer d.mu.Unlock()
	echo := append([]byte(nil), data...)

	switch {
	case d.writeMbx != nil && register == d.writeMbx.Address:
		if d.writeFull {
			return ethercat.Response{Data: echo}
		}
		copy(d.memory[register:], data)
		d.requests = append(d.requests, echo)
		if d.handler != nil && !d.mute {
			d.pending = append(d.pending, d.handler(append([]byte(nil), data...))...)
		}
		if !d.readFull {
			d.loadNext()
		}
	case register == esc.RegisterAlControl:
		control, err := wire.Decode[esc.AlControl](data)
		if err != nil {
			d.logger.WithError(err).Warn("invalid AL control")
			d.setStatus(esc.AlControl{State: d.state, Error: true}, esc.AlUnknownRequestedState)
			break
		}
		d.requestState(control)
	default:
		copy(d.memory[register:], data)
	}
	return ethercat.Response{Data: echo, WorkingCounter: 1}
}
