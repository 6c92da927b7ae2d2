package http

import (
	"context"
	"errors"
	"fmt"

	ethercat "github.com/samsamfire/goethercat"
	"github.com/samsamfire/goethercat/pkg/coe"
	"github.com/samsamfire/goethercat/pkg/gateway"
	"github.com/samsamfire/goethercat/pkg/network"
	"github.com/samsamfire/goethercat/pkg/slave"
)

var ERROR_GATEWAY_DESCRIPTION_MAP = map[int]string{
	100: "Request not supported",
	101: "Syntax error",
	102: "Request not processed due to internal state",
	103: "Time-out (where applicable)",
	105: "No default station set",
	107: "Unsupported station",
	204: "Wrong AL state",
	600: "Running out of memory",
	601: "Network interface currently not available",
	900: "Manufacturer-specific error",
}

var (
	ErrGwRequestNotSupported  = &GatewayError{Code: 100}
	ErrGwSyntaxError          = &GatewayError{Code: 101}
	ErrGwRequestNotProcessed  = &GatewayError{Code: 102}
	ErrGwTimeout              = &GatewayError{Code: 103}
	ErrGwNoDefaultStationSet  = &GatewayError{Code: 105}
	ErrGwUnsupportedStation   = &GatewayError{Code: 107}
	ErrGwWrongState           = &GatewayError{Code: 204}
	ErrGwRunningOutOfMemory   = &GatewayError{Code: 600}
	ErrGwInterfaceUnavailable = &GatewayError{Code: 601}
)

type GatewayError struct {
	Code int // Can be either a CoE abort code or a gateway error code
}

func NewGatewayError(code int) error {
	return &GatewayError{Code: code}
}

func (e *GatewayError) Error() string {
	if e.Code <= 999 {
		return fmt.Sprintf("ERROR:%d", e.Code)
	}
	// Return as a hex value (sdo aborts)
	return fmt.Sprintf("ERROR:0x%x", e.Code)
}

// Description of a gateway error code, empty for abort codes
func (e *GatewayError) Description() string {
	return ERROR_GATEWAY_DESCRIPTION_MAP[e.Code]
}

// Convert an error of the master stack to the error sent back to the client
func toGatewayError(err error) *GatewayError {
	var gwErr *GatewayError
	var abortErr *coe.AbortError
	var code coe.AbortCode
	var transitionErr *slave.StateTransitionError
	switch {
	case errors.As(err, &gwErr):
		return gwErr
	case errors.As(err, &abortErr):
		return &GatewayError{Code: int(abortErr.Code)}
	case errors.As(err, &code):
		return &GatewayError{Code: int(code)}
	case errors.As(err, &transitionErr):
		return ErrGwWrongState
	case errors.Is(err, ethercat.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrGwTimeout
	case errors.Is(err, network.ErrSlaveNotFound):
		return ErrGwUnsupportedStation
	case errors.Is(err, gateway.ErrUnknownDatatype):
		return ErrGwRequestNotSupported
	case errors.Is(err, gateway.ErrTypeMismatch):
		return &GatewayError{Code: int(coe.AbortTypeMismatch)}
	case errors.Is(err, ethercat.ErrTransportClosed), errors.Is(err, ethercat.ErrNoResponse):
		return ErrGwInterfaceUnavailable
	default:
		return ErrGwRequestNotProcessed
	}
}
