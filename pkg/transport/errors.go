package transport

import "errors"

// Connection error kinds. Every one of them is terminal for a run; they are
// wrapped together with their cause so both can be matched with errors.Is.
var (
	ErrInvalidAddress           = errors.New("invalid address")
	ErrUnparseableAddress       = errors.New("address cannot be parsed")
	ErrUnsupportedAddressFamily = errors.New("unsupported address family")

	ErrConnectionFailed   = errors.New("connection failed")
	ErrConnectionTimedOut = errors.New("connection timed out")
	ErrConnectionLost     = errors.New("connection lost")
	ErrSendingFailed      = errors.New("sending failed")
)
