package http

import (
	"strconv"
)

const TOKEN_NONE = -3
const TOKEN_DEFAULT = -2
const TOKEN_ALL = -1

// Gets SDO command as list of strings and processes it
func parseSdoCommand(command []string) (index uint16, subindex uint8, err error) {
	if len(command) != 3 {
		return 0, 0, ErrGwSyntaxError
	}
	indexStr := command[1]
	subIndexStr := command[2]
	if indexStr == "all" {
		return 0, 0, ErrGwRequestNotSupported
	}
	index64, e := strconv.ParseUint(indexStr, 0, 16)
	if e != nil {
		return 0, 0, ErrGwSyntaxError
	}
	subIndex64, e := strconv.ParseUint(subIndexStr, 0, 8)
	if e != nil {
		return 0, 0, ErrGwSyntaxError
	}
	return uint16(index64), uint8(subIndex64), nil
}

// Parse raw station string param
func parseStationParam(param string) (int, error) {
	switch param {
	case "default":
		return TOKEN_DEFAULT, nil
	case "none":
		return TOKEN_NONE, nil
	case "all":
		return TOKEN_ALL, nil
	}
	// This automatically treats 0x,0X,... correctly
	paramUint, err := strconv.ParseUint(param, 0, 16)
	if err != nil {
		return 0, err
	}
	return int(paramUint), nil
}
