package esc

import (
	"fmt"

	"github.com/samsamfire/goethercat/pkg/wire"
)

// AlStatusCode is the diagnostic held in register 0x0134 when a state
// change was refused. ETG1000.6 Table 11, vendor codes decode as is.
type AlStatusCode uint16

const (
	AlNoError                        AlStatusCode = 0x0000
	AlUnspecifiedError               AlStatusCode = 0x0001
	AlNoMemory                       AlStatusCode = 0x0002
	AlInvalidRequestedStateChange    AlStatusCode = 0x0011
	AlUnknownRequestedState          AlStatusCode = 0x0012
	AlBootstrapNotSupported          AlStatusCode = 0x0013
	AlNoValidFirmware                AlStatusCode = 0x0014
	AlInvalidBootstrapMailbox        AlStatusCode = 0x0015
	AlInvalidMailboxConfiguration    AlStatusCode = 0x0016
	AlInvalidSyncManagerConfig       AlStatusCode = 0x0017
	AlNoValidInputs                  AlStatusCode = 0x0018
	AlNoValidOutputs                 AlStatusCode = 0x0019
	AlSynchronizationError           AlStatusCode = 0x001A
	AlSyncManagerWatchdog            AlStatusCode = 0x001B
	AlInvalidSyncManagerTypes        AlStatusCode = 0x001C
	AlInvalidOutputConfiguration     AlStatusCode = 0x001D
	AlInvalidInputConfiguration      AlStatusCode = 0x001E
	AlInvalidWatchdogConfiguration   AlStatusCode = 0x001F
	AlSlaveNeedsColdStart            AlStatusCode = 0x0020
	AlSlaveNeedsInit                 AlStatusCode = 0x0021
	AlSlaveNeedsPreOp                AlStatusCode = 0x0022
	AlSlaveNeedsSafeOp               AlStatusCode = 0x0023
	AlInvalidInputMapping            AlStatusCode = 0x0024
	AlInvalidOutputMapping           AlStatusCode = 0x0025
	AlInconsistentSettings           AlStatusCode = 0x0026
	AlFreeRunNotSupported            AlStatusCode = 0x0027
	AlSynchronizationNotSupported    AlStatusCode = 0x0028
	AlFreeRunNeedsThreeBuffers       AlStatusCode = 0x0029
	AlBackgroundWatchdog             AlStatusCode = 0x002A
	AlNoValidInputsAndOutputs        AlStatusCode = 0x002B
	AlFatalSyncError                 AlStatusCode = 0x002C
	AlNoSyncError                    AlStatusCode = 0x002D
	AlInvalidDcSyncConfiguration     AlStatusCode = 0x0030
	AlInvalidDcLatchConfiguration    AlStatusCode = 0x0031
	AlPllError                       AlStatusCode = 0x0032
	AlDcSyncIoError                  AlStatusCode = 0x0033
	AlDcSyncTimeout                  AlStatusCode = 0x0034
	AlDcInvalidSyncCycleTime         AlStatusCode = 0x0035
	AlDcSync0CycleTime               AlStatusCode = 0x0036
	AlDcSync1CycleTime               AlStatusCode = 0x0037
	AlMailboxAoe                     AlStatusCode = 0x0041
	AlMailboxEoe                     AlStatusCode = 0x0042
	AlMailboxCoe                     AlStatusCode = 0x0043
	AlMailboxFoe                     AlStatusCode = 0x0044
	AlMailboxSoe                     AlStatusCode = 0x0045
	AlMailboxVoe                     AlStatusCode = 0x004F
	AlEepromNoAccess                 AlStatusCode = 0x0050
	AlEepromError                    AlStatusCode = 0x0051
	AlSlaveRestartedLocally          AlStatusCode = 0x0060
	AlDeviceIdentificationUpdated    AlStatusCode = 0x0061
	AlApplicationControllerAvailable AlStatusCode = 0x00F0
)

var alStatusCodeDescription = map[AlStatusCode]string{
	AlNoError:                        "No error",
	AlUnspecifiedError:               "Unspecified error",
	AlNoMemory:                       "No memory",
	AlInvalidRequestedStateChange:    "Invalid requested state change",
	AlUnknownRequestedState:          "Unknown requested state",
	AlBootstrapNotSupported:          "Bootstrap not supported",
	AlNoValidFirmware:                "No valid firmware",
	AlInvalidBootstrapMailbox:        "Invalid mailbox configuration (bootstrap)",
	AlInvalidMailboxConfiguration:    "Invalid mailbox configuration (pre-operational)",
	AlInvalidSyncManagerConfig:       "Invalid sync manager configuration",
	AlNoValidInputs:                  "No valid inputs available",
	AlNoValidOutputs:                 "No valid outputs",
	AlSynchronizationError:           "Synchronization error",
	AlSyncManagerWatchdog:            "Sync manager watchdog",
	AlInvalidSyncManagerTypes:        "Invalid sync manager types",
	AlInvalidOutputConfiguration:     "Invalid output configuration",
	AlInvalidInputConfiguration:      "Invalid input configuration",
	AlInvalidWatchdogConfiguration:   "Invalid watchdog configuration",
	AlSlaveNeedsColdStart:            "Slave needs cold start",
	AlSlaveNeedsInit:                 "Slave needs INIT",
	AlSlaveNeedsPreOp:                "Slave needs PREOP",
	AlSlaveNeedsSafeOp:               "Slave needs SAFEOP",
	AlInvalidInputMapping:            "Invalid input mapping",
	AlInvalidOutputMapping:           "Invalid output mapping",
	AlInconsistentSettings:           "Inconsistent settings",
	AlFreeRunNotSupported:            "Freerun not supported",
	AlSynchronizationNotSupported:    "Synchronization not supported",
	AlFreeRunNeedsThreeBuffers:       "Freerun needs 3 buffer mode",
	AlBackgroundWatchdog:             "Background watchdog",
	AlNoValidInputsAndOutputs:        "No valid inputs and outputs",
	AlFatalSyncError:                 "Fatal sync error",
	AlNoSyncError:                    "No sync error",
	AlInvalidDcSyncConfiguration:     "Invalid DC SYNC configuration",
	AlInvalidDcLatchConfiguration:    "Invalid DC latch configuration",
	AlPllError:                       "PLL error",
	AlDcSyncIoError:                  "DC sync IO error",
	AlDcSyncTimeout:                  "DC sync timeout error",
	AlDcInvalidSyncCycleTime:         "DC invalid sync cycle time",
	AlDcSync0CycleTime:               "DC SYNC0 cycle time",
	AlDcSync1CycleTime:               "DC SYNC1 cycle time",
	AlMailboxAoe:                     "Mailbox AoE error",
	AlMailboxEoe:                     "Mailbox EoE error",
	AlMailboxCoe:                     "Mailbox CoE error",
	AlMailboxFoe:                     "Mailbox FoE error",
	AlMailboxSoe:                     "Mailbox SoE error",
	AlMailboxVoe:                     "Mailbox VoE error",
	AlEepromNoAccess:                 "EEPROM no access",
	AlEepromError:                    "EEPROM error",
	AlSlaveRestartedLocally:          "Slave restarted locally",
	AlDeviceIdentificationUpdated:    "Device identification value updated",
	AlApplicationControllerAvailable: "Application controller available",
}

func (c AlStatusCode) String() string {
	desc, ok := alStatusCodeDescription[c]
	if !ok {
		return fmt.Sprintf("Vendor specific (x%04x)", uint16(c))
	}
	return desc
}

// Known is false for vendor specific codes.
func (c AlStatusCode) Known() bool {
	_, ok := alStatusCodeDescription[c]
	return ok
}

func init() {
	codes := make([]AlStatusCode, 0, len(alStatusCodeDescription))
	for code := range alStatusCodeDescription {
		codes = append(codes, code)
	}
	wire.MustEnum(wire.EnumSpec[AlStatusCode]{
		Bits:     16,
		Variants: codes,
		CatchAll: true,
	})
}
