package coe

import "fmt"

// AbortCode is the reason given by a slave for rejecting an SDO transfer.
type AbortCode uint32

const (
	AbortToggleBit          AbortCode = 0x05030000
	AbortTimeout            AbortCode = 0x05040000
	AbortCmd                AbortCode = 0x05040001
	AbortBlockSize          AbortCode = 0x05040002
	AbortSeqNum             AbortCode = 0x05040003
	AbortCRC                AbortCode = 0x05040004
	AbortOutOfMem           AbortCode = 0x05040005
	AbortUnsupportedAccess  AbortCode = 0x06010000
	AbortWriteOnly          AbortCode = 0x06010001
	AbortReadOnly           AbortCode = 0x06010002
	AbortSubIndexZeroOnly   AbortCode = 0x06010003
	AbortCompleteAccess     AbortCode = 0x06010004
	AbortObjectTooLong      AbortCode = 0x06010005
	AbortObjectMapped       AbortCode = 0x06010006
	AbortNotExist           AbortCode = 0x06020000
	AbortNoMap              AbortCode = 0x06040041
	AbortMapLen             AbortCode = 0x06040042
	AbortParamIncompat      AbortCode = 0x06040043
	AbortDeviceIncompat     AbortCode = 0x06040047
	AbortHardware           AbortCode = 0x06060000
	AbortTypeMismatch       AbortCode = 0x06070010
	AbortDataLong           AbortCode = 0x06070012
	AbortDataShort          AbortCode = 0x06070013
	AbortSubUnknown         AbortCode = 0x06090011
	AbortInvalidValue       AbortCode = 0x06090030
	AbortValueHigh          AbortCode = 0x06090031
	AbortValueLow           AbortCode = 0x06090032
	AbortModuleListMismatch AbortCode = 0x06090033
	AbortMaxLessMin         AbortCode = 0x06090036
	AbortNoRessource        AbortCode = 0x060A0023
	AbortGeneral            AbortCode = 0x08000000
	AbortDataTransfer       AbortCode = 0x08000020
	AbortDataLocalControl   AbortCode = 0x08000021
	AbortDataDeviceState    AbortCode = 0x08000022
	AbortDataOD             AbortCode = 0x08000023
	AbortNoData             AbortCode = 0x08000024
)

var abortCodeDescription = map[AbortCode]string{
	AbortToggleBit:          "Toggle bit not altered",
	AbortTimeout:            "SDO protocol timed out",
	AbortCmd:                "Command specifier not valid or unknown",
	AbortBlockSize:          "Invalid block size in block mode",
	AbortSeqNum:             "Invalid sequence number in block mode",
	AbortCRC:                "CRC error (block mode only)",
	AbortOutOfMem:           "Out of memory",
	AbortUnsupportedAccess:  "Unsupported access to an object",
	AbortWriteOnly:          "Attempt to read a write only object",
	AbortReadOnly:           "Attempt to write a read only object",
	AbortSubIndexZeroOnly:   "Subindex cannot be written, SI0 must be 0 for write access",
	AbortCompleteAccess:     "Complete access not supported for variable length objects",
	AbortObjectTooLong:      "Object length exceeds mailbox size",
	AbortObjectMapped:       "Object mapped to RxPDO, SDO download blocked",
	AbortNotExist:           "Object does not exist in the object dictionary",
	AbortNoMap:              "Object cannot be mapped to the PDO",
	AbortMapLen:             "Num and len of object to be mapped exceeds PDO len",
	AbortParamIncompat:      "General parameter incompatibility reasons",
	AbortDeviceIncompat:     "General internal incompatibility in device",
	AbortHardware:           "Access failed due to hardware error",
	AbortTypeMismatch:       "Data type does not match, length does not match",
	AbortDataLong:           "Data type does not match, length too high",
	AbortDataShort:          "Data type does not match, length too short",
	AbortSubUnknown:         "Sub index does not exist",
	AbortInvalidValue:       "Invalid value for parameter (download only)",
	AbortValueHigh:          "Value range of parameter written too high",
	AbortValueLow:           "Value range of parameter written too low",
	AbortModuleListMismatch: "Detected module ident list does not match configured list",
	AbortMaxLessMin:         "Maximum value is less than minimum value.",
	AbortNoRessource:        "Resource not available: SDO connection",
	AbortGeneral:            "General error",
	AbortDataTransfer:       "Data cannot be transferred or stored to application",
	AbortDataLocalControl:   "Data cannot be transferred because of local control",
	AbortDataDeviceState:    "Data cannot be tran. because of present device state",
	AbortDataOD:             "Object dict. not present or dynamic generation fails",
	AbortNoData:             "No data available",
}

func (abort AbortCode) Error() string {
	return fmt.Sprintf("x%x : %s", uint32(abort), abort.Description())
}

// Description of the code, unknown codes are reported as general errors
func (abort AbortCode) Description() string {
	description, ok := abortCodeDescription[abort]
	if ok {
		return description
	}
	return abortCodeDescription[AbortGeneral]
}
