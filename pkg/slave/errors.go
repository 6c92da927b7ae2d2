package slave

import (
	"errors"
	"fmt"

	"github.com/samsamfire/goethercat/pkg/esc"
)

var ErrMailboxNotReady = errors.New("slave mailbox is not available in INIT state")

// StateTransitionError is returned when a slave refused a requested AL state.
// Code is the AL status code it reported.
type StateTransitionError struct {
	Slave     uint16
	Requested esc.SlaveState
	Current   esc.SlaveState
	Code      esc.AlStatusCode
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("slave x%x refused transition to %v (current %v) : %v (x%04x)",
		e.Slave, e.Requested, e.Current, e.Code, uint16(e.Code))
}
