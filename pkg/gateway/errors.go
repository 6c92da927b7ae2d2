package gateway

import "errors"

var (
	ErrUnknownDatatype = errors.New("unknown datatype")
	ErrTypeMismatch    = errors.New("value does not match datatype")
)
