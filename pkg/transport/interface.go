package transport

import (
	"net/netip"

	"github.com/federicojvarela/node-challenge/pkg/protocol"
)

// Node is an established, codec-wrapped connection to a remote peer.
type Node interface {
	// Send encodes and writes one message.
	Send(msg protocol.Message) error
	// Receive blocks until the next complete message arrives. It returns
	// io.EOF when the peer closes the stream on a message boundary and an
	// error wrapping protocol.ErrDecode for corrupt input.
	Receive() (protocol.Message, error)
	Close() error
	RemoteAddr() netip.AddrPort
	LocalAddr() netip.AddrPort
}
