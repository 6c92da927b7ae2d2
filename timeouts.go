package ethercat

import (
	"context"
	"time"
)

const (
	DefaultStateTransition = 5 * time.Second
	DefaultPdu             = 30 * time.Millisecond
	DefaultMailboxEcho     = 100 * time.Millisecond
	DefaultMailboxResponse = 1000 * time.Millisecond
	DefaultLoopTick        = 0
)

// Timeouts bound every polling loop of the master.
type Timeouts struct {
	// Maximum time for a slave to reach a requested AL state
	StateTransition time.Duration
	// Maximum time to wait for a single datagram to come back
	Pdu time.Duration
	// Maximum time for a slave to empty its write mailbox
	MailboxEcho time.Duration
	// Maximum time for a slave to fill its read mailbox with a response
	MailboxResponse time.Duration
	// Delay between two polls of a status register
	LoopTick time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		StateTransition: DefaultStateTransition,
		Pdu:             DefaultPdu,
		MailboxEcho:     DefaultMailboxEcho,
		MailboxResponse: DefaultMailboxResponse,
		LoopTick:        DefaultLoopTick,
	}
}

// Tick sleeps for LoopTick or until ctx is done. A zero tick returns at once.
func (t Timeouts) Tick(ctx context.Context) error {
	if t.LoopTick <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(t.LoopTick)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
