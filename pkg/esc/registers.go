// Package esc describes the registers of an EtherCAT slave controller that
// the master needs for mailbox and state handling, along with their packed
// representations.
package esc

const (
	RegisterType              uint16 = 0x0000
	RegisterConfiguredAddress uint16 = 0x0010
	RegisterDlStatus          uint16 = 0x0110
	RegisterAlControl         uint16 = 0x0120
	RegisterAlStatus          uint16 = 0x0130
	RegisterAlStatusCode      uint16 = 0x0134
	RegisterSiiControl        uint16 = 0x0502
	RegisterFmmu0             uint16 = 0x0600
	RegisterSyncManager0      uint16 = 0x0800
)

const (
	SyncManagerCount  = 16
	SyncManagerLength = 8
	// Offset of the status byte inside a sync manager channel
	SyncManagerStatusOffset = 5
)

// SyncManager returns the register address of sync manager channel index.
func SyncManager(index uint8) uint16 {
	return RegisterSyncManager0 + uint16(index)*SyncManagerLength
}
