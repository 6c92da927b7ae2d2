// Package mailbox implements the acyclic mailbox handshake between the master
// and a single slave : two fixed buffers, each guarded by the "mailbox full"
// flag of its sync manager.
package mailbox

import (
	"fmt"
	"strings"
)

// Mailbox is one direction of the mailbox of a slave, as discovered from
// its EEPROM or given by configuration.
type Mailbox struct {
	Address     uint16
	Length      uint16
	SyncManager uint8
}

func (m Mailbox) String() string {
	return fmt.Sprintf("x%x (%d bytes, SM%d)", m.Address, m.Length, m.SyncManager)
}

// Protocols is the bitmask of mailbox protocols supported by a slave.
type Protocols uint16

const (
	ProtocolAoE Protocols = 0x0001
	ProtocolEoE Protocols = 0x0002
	ProtocolCoE Protocols = 0x0004
	ProtocolFoE Protocols = 0x0008
	ProtocolSoE Protocols = 0x0010
	ProtocolVoE Protocols = 0x0020
)

var protocolNames = []struct {
	p    Protocols
	name string
}{
	{ProtocolAoE, "aoe"},
	{ProtocolEoE, "eoe"},
	{ProtocolCoE, "coe"},
	{ProtocolFoE, "foe"},
	{ProtocolSoE, "soe"},
	{ProtocolVoE, "voe"},
}

func (p Protocols) Has(other Protocols) bool {
	return p&other == other
}

func (p Protocols) String() string {
	names := []string{}
	for _, pn := range protocolNames {
		if p.Has(pn.p) {
			names = append(names, pn.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseProtocol returns the protocol bit for a name such as "coe".
func ParseProtocol(name string) (Protocols, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, pn := range protocolNames {
		if pn.name == name {
			return pn.p, nil
		}
	}
	return 0, fmt.Errorf("unknown mailbox protocol %q", name)
}

// Config is the mailbox configuration of a slave. It does not change once
// the slave has been configured.
type Config struct {
	// Slave to master
	Read *Mailbox
	// Master to slave
	Write          *Mailbox
	Protocols      Protocols
	CompleteAccess bool
}
