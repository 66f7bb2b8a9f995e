package protocol

import (
	"fmt"
	"strings"
)

// BitcoinNet is the 4-byte magic value that prefixes every message and
// identifies the network a peer belongs to.
type BitcoinNet uint32

// Known network magic values. On the wire they appear little-endian, so
// MainNet is sent as F9 BE B4 D9.
const (
	MainNet  BitcoinNet = 0xd9b4bef9
	TestNet3 BitcoinNet = 0x0709110b
	Signet   BitcoinNet = 0x40cf030a
	Regtest  BitcoinNet = 0xdab5bffa
)

var netNames = map[BitcoinNet]string{
	MainNet:  "mainnet",
	TestNet3: "testnet3",
	Signet:   "signet",
	Regtest:  "regtest",
}

func (n BitcoinNet) String() string {
	if s, ok := netNames[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown BitcoinNet (%#08x)", uint32(n))
}

// ParseNet maps a network name to its magic value.
func ParseNet(name string) (BitcoinNet, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for n, s := range netNames {
		if s == name {
			return n, nil
		}
	}
	if name == "testnet" {
		return TestNet3, nil
	}
	return 0, fmt.Errorf("unknown bitcoin network %q", name)
}

// Protocol constants
const (
	// ProtocolVersion is the version advertised by this client.
	ProtocolVersion int32 = 70001

	// RelayFlagVersion is the first protocol version whose version
	// message carries the trailing relay flag.
	RelayFlagVersion int32 = 70001

	// MessageHeaderSize is [magic 4][command 12][length 4][checksum 4].
	MessageHeaderSize = 24

	// CommandSize is the null padded command field width.
	CommandSize = 12

	// MaxMessagePayload caps the declared payload length of any message.
	MaxMessagePayload = 32 * 1024 * 1024

	// MaxUserAgentLen is the longest user agent accepted in a version message.
	MaxUserAgentLen = 256
)

// Commands understood by this client.
const (
	CmdVersion = "version"
	CmdVerAck  = "verack"
)

// ServiceFlag is the bitmask of optional capabilities a node advertises.
type ServiceFlag uint64

const (
	SFNodeNetwork ServiceFlag = 1 << iota
	SFNodeGetUTXO
	SFNodeBloom
	SFNodeWitness
	_
	_
	SFNodeCompactFilters
	_
	_
	_
	SFNodeNetworkLimited
	SFNodeP2PV2

	// SFNone advertises no services at all.
	SFNone ServiceFlag = 0
)

var orderedSFStrings = []struct {
	flag ServiceFlag
	name string
}{
	{SFNodeNetwork, "SFNodeNetwork"},
	{SFNodeGetUTXO, "SFNodeGetUTXO"},
	{SFNodeBloom, "SFNodeBloom"},
	{SFNodeWitness, "SFNodeWitness"},
	{SFNodeCompactFilters, "SFNodeCompactFilters"},
	{SFNodeNetworkLimited, "SFNodeNetworkLimited"},
	{SFNodeP2PV2, "SFNodeP2PV2"},
}

func (f ServiceFlag) String() string {
	if f == SFNone {
		return "0x0"
	}

	var names []string
	rest := f
	for _, s := range orderedSFStrings {
		if f&s.flag == s.flag {
			names = append(names, s.name)
			rest &^= s.flag
		}
	}
	if rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint64(rest)))
	}
	return strings.Join(names, "|")
}

// Message is a typed Bitcoin wire message.
type Message interface {
	// Command is the name carried in the message header.
	Command() string
	encodePayload(w *payloadWriter) error
	decodePayload(r *payloadReader) error
}

// MessageHeader is the fixed 24 byte prefix of every message.
type MessageHeader struct {
	Magic    BitcoinNet
	Command  string
	Length   uint32
	Checksum [4]byte
}

// MsgVerAck acknowledges a version message. It has no payload.
type MsgVerAck struct{}

func (m *MsgVerAck) Command() string { return CmdVerAck }

func (m *MsgVerAck) encodePayload(w *payloadWriter) error { return nil }

func (m *MsgVerAck) decodePayload(r *payloadReader) error {
	if r.Len() != 0 {
		return fmt.Errorf("verack carries %d unexpected payload bytes", r.Len())
	}
	return nil
}

// MsgUnknown is any message this client does not interpret. The payload is
// kept verbatim so the message can be logged and discarded.
type MsgUnknown struct {
	Cmd     string
	Payload []byte
}

func (m *MsgUnknown) Command() string { return m.Cmd }

func (m *MsgUnknown) encodePayload(w *payloadWriter) error {
	w.Write(m.Payload)
	return nil
}

func (m *MsgUnknown) decodePayload(r *payloadReader) error {
	m.Payload = make([]byte, r.Len())
	copy(m.Payload, r.Next(r.Len()))
	return nil
}

func makeEmptyMessage(command string) Message {
	switch command {
	case CmdVersion:
		return &MsgVersion{}
	case CmdVerAck:
		return &MsgVerAck{}
	default:
		return &MsgUnknown{Cmd: command}
	}
}
