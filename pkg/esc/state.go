package esc

import (
	"fmt"

	"github.com/samsamfire/goethercat/pkg/wire"
)

// SlaveState is the application layer state of a slave.
type SlaveState uint8

const (
	StateNone      SlaveState = 0x00
	StateInit      SlaveState = 0x01
	StatePreOp     SlaveState = 0x02
	StateBootstrap SlaveState = 0x03
	StateSafeOp    SlaveState = 0x04
	StateOp        SlaveState = 0x08
)

var stateMap = map[SlaveState]string{
	StateNone:      "NONE",
	StateInit:      "INIT",
	StatePreOp:     "PRE-OPERATIONAL",
	StateBootstrap: "BOOTSTRAP",
	StateSafeOp:    "SAFE-OPERATIONAL",
	StateOp:        "OPERATIONAL",
}

func (s SlaveState) String() string {
	name, ok := stateMap[s]
	if !ok {
		return fmt.Sprintf("UNKNOWN (x%x)", uint8(s))
	}
	return name
}

// ParseState accepts the names used by String as well as the short forms
// init, preop, boot, safeop and op.
func ParseState(name string) (SlaveState, error) {
	switch name {
	case "init", "INIT":
		return StateInit, nil
	case "preop", "pre-op", "PRE-OPERATIONAL":
		return StatePreOp, nil
	case "boot", "bootstrap", "BOOTSTRAP":
		return StateBootstrap, nil
	case "safeop", "safe-op", "SAFE-OPERATIONAL":
		return StateSafeOp, nil
	case "op", "OPERATIONAL":
		return StateOp, nil
	}
	return StateNone, fmt.Errorf("unknown slave state %q", name)
}

// AlControl is both the AL control word written by the master and the
// AL status word reported by the slave (ETG1000.6 Table 9).
type AlControl struct {
	State     SlaveState `wire:"bits=4"`
	Error     bool       `wire:"bits=1"`
	IdRequest bool       `wire:"bits=1,post_skip=10"`
}

// Request for state with the error flag set to acknowledge any pending error.
func NewAlControl(state SlaveState) AlControl {
	return AlControl{State: state, Error: true}
}

func init() {
	wire.MustEnum(wire.EnumSpec[SlaveState]{
		Bits:     8,
		Variants: []SlaveState{StateNone, StateInit, StatePreOp, StateBootstrap, StateSafeOp, StateOp},
	})
	wire.MustStruct[AlControl](16)
}
