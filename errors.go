package tvio

import (
	"errors"
)

var (
	ErrNetwork            = errors.New("tvio: network failure")
	ErrInvalidDescriptor  = errors.New("tvio: invalid descriptor")
	ErrInvalidInput       = errors.New("tvio: invalid input")
	ErrInvalidOutput      = errors.New("tvio: invalid output")
	ErrInvalidResultID    = errors.New("tvio: invalid result id")
	ErrInvalidRequestID   = errors.New("tvio: invalid request id")
	ErrNoResultAvailable  = errors.New("tvio: no result available")
	ErrNoRequestAvailable = errors.New("tvio: no request available")
	ErrResultNotArrived   = errors.New("tvio: result not arrived")
	ErrInvalidFunction    = errors.New("tvio: invalid function")
	ErrInvalidProperty    = errors.New("tvio: invalid property")
	ErrNoUpdate           = errors.New("tvio: no property update available")

	ErrInvalidCfg = errors.New("tvio: invalid options")
)

// Code is the integer form of an error, for callers that cannot carry Go
// errors across their boundary.
type Code int

const (
	CodeOK Code = iota
	CodeNetwork
	CodeInvalidDescriptor
	CodeInvalidInput
	CodeInvalidOutput
	CodeInvalidResultID
	CodeInvalidRequestID
	CodeNoResultAvailable
	CodeNoRequestAvailable
	CodeResultNotArrived
	CodeInvalidFunction
	CodeInvalidProperty
	CodeNoUpdate
)

var codes = []struct {
	err  error
	code Code
}{
	{ErrNetwork, CodeNetwork},
	{ErrInvalidDescriptor, CodeInvalidDescriptor},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrInvalidOutput, CodeInvalidOutput},
	{ErrInvalidResultID, CodeInvalidResultID},
	{ErrInvalidRequestID, CodeInvalidRequestID},
	{ErrNoResultAvailable, CodeNoResultAvailable},
	{ErrNoRequestAvailable, CodeNoRequestAvailable},
	{ErrResultNotArrived, CodeResultNotArrived},
	{ErrInvalidFunction, CodeInvalidFunction},
	{ErrInvalidProperty, CodeInvalidProperty},
	{ErrNoUpdate, CodeNoUpdate},
}

// CodeOf maps err to its Code. Errors outside the taxonomy, bus failures
// included, map to CodeNetwork.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeNetwork
}

// Err returns the sentinel error of c, or nil for CodeOK.
func (c Code) Err() error {
	for _, known := range codes {
		if known.code == c {
			return known.err
		}
	}
	if c == CodeOK {
		return nil
	}
	return ErrNetwork
}

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeNetwork:
		return "network fail"
	case CodeInvalidDescriptor:
		return "invalid descriptor"
	case CodeInvalidInput:
		return "invalid input"
	case CodeInvalidOutput:
		return "invalid output"
	case CodeInvalidResultID:
		return "invalid result id"
	case CodeInvalidRequestID:
		return "invalid request id"
	case CodeNoResultAvailable:
		return "no result available"
	case CodeNoRequestAvailable:
		return "no request available"
	case CodeResultNotArrived:
		return "result not arrived"
	case CodeInvalidFunction:
		return "invalid function"
	case CodeInvalidProperty:
		return "invalid property"
	case CodeNoUpdate:
		return "no property update available"
	default:
		return "unknown"
	}
}
