package protocol

import (
	"errors"
	"fmt"
	"net/netip"
	"time"
)

// NetAddress is a peer endpoint together with the services advertised for it.
type NetAddress struct {
	Services ServiceFlag
	Addr     netip.AddrPort
}

// NewNetAddress returns a NetAddress for addr advertising services.
func NewNetAddress(addr netip.AddrPort, services ServiceFlag) NetAddress {
	return NetAddress{
		Services: services,
		Addr:     netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port()),
	}
}

func (na NetAddress) String() string {
	return fmt.Sprintf("%s (services=%s)", na.Addr, na.Services)
}

// MsgVersion is the first message sent by each side of a connection.
type MsgVersion struct {
	ProtocolVersion int32
	Services        ServiceFlag
	Timestamp       time.Time
	AddrRecv        NetAddress
	AddrFrom        NetAddress
	Nonce           uint64
	UserAgent       string
	StartHeight     int32
	Relay           bool
}

// NewMsgVersion builds a version message at the current protocol version.
// Timestamp is truncated to whole seconds, which is all the wire carries.
func NewMsgVersion(recv, from NetAddress, services ServiceFlag, nonce uint64, userAgent string, startHeight int32) *MsgVersion {
	return &MsgVersion{
		ProtocolVersion: ProtocolVersion,
		Services:        services,
		Timestamp:       time.Unix(time.Now().Unix(), 0),
		AddrRecv:        recv,
		AddrFrom:        from,
		Nonce:           nonce,
		UserAgent:       userAgent,
		StartHeight:     startHeight,
		Relay:           true,
	}
}

func (m *MsgVersion) Command() string { return CmdVersion }

func (m *MsgVersion) encodePayload(w *payloadWriter) error {
	if len(m.UserAgent) > MaxUserAgentLen {
		return fmt.Errorf("user agent too long: %d bytes, max %d", len(m.UserAgent), MaxUserAgentLen)
	}
	// A zero address would go out as [::]:0 and not decode back to itself.
	if !m.AddrRecv.Addr.IsValid() {
		return errors.New("receiver address not set")
	}
	if !m.AddrFrom.Addr.IsValid() {
		return errors.New("sender address not set")
	}

	w.putUint32(uint32(m.ProtocolVersion))
	w.putUint64(uint64(m.Services))
	w.putUint64(uint64(m.Timestamp.Unix()))
	w.putNetAddress(m.AddrRecv)
	w.putNetAddress(m.AddrFrom)
	w.putUint64(m.Nonce)
	w.putVarString(m.UserAgent)
	w.putUint32(uint32(m.StartHeight))
	if m.ProtocolVersion >= RelayFlagVersion {
		w.putBool(m.Relay)
	}
	return nil
}

func (m *MsgVersion) decodePayload(r *payloadReader) error {
	pver, err := r.uint32()
	if err != nil {
		return fmt.Errorf("protocol version: %w", err)
	}
	services, err := r.uint64()
	if err != nil {
		return fmt.Errorf("services: %w", err)
	}
	ts, err := r.uint64()
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if m.AddrRecv, err = r.netAddress(); err != nil {
		return fmt.Errorf("receiver address: %w", err)
	}
	if m.AddrFrom, err = r.netAddress(); err != nil {
		return fmt.Errorf("sender address: %w", err)
	}
	if m.Nonce, err = r.uint64(); err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	if m.UserAgent, err = r.varString(MaxUserAgentLen); err != nil {
		return fmt.Errorf("user agent: %w", err)
	}
	height, err := r.uint32()
	if err != nil {
		return fmt.Errorf("start height: %w", err)
	}

	m.ProtocolVersion = int32(pver)
	m.Services = ServiceFlag(services)
	m.Timestamp = time.Unix(int64(ts), 0)
	m.StartHeight = int32(height)

	// Older peers omit the relay flag; absence means relay.
	m.Relay = true
	if r.Len() > 0 {
		if m.Relay, err = r.bool(); err != nil {
			return fmt.Errorf("relay: %w", err)
		}
	}
	return nil
}
