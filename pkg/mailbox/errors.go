package mailbox

import (
	"errors"
	"fmt"

	ethercat "github.com/samsamfire/goethercat"
)

var ErrFrameTooLarge = errors.New("mailbox frame larger than write mailbox")

// TimeoutError is returned when a slave did not empty or fill a mailbox
// in time. It matches [ethercat.ErrTimeout].
type TimeoutError struct {
	Slave uint16
	Op    string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mailbox timeout for slave x%x during %s", e.Slave, e.Op)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ethercat.ErrTimeout
}
