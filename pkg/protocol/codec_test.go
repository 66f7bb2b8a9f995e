package protocol

import (
	"bytes"
	"encoding/hex"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVersion() *MsgVersion {
	return &MsgVersion{
		ProtocolVersion: ProtocolVersion,
		Services:        SFNone,
		Timestamp:       time.Unix(1700000000, 0),
		AddrRecv:        NewNetAddress(netip.MustParseAddrPort("165.22.213.4:8333"), SFNone),
		AddrFrom:        NewNetAddress(netip.MustParseAddrPort("0.0.0.0:0"), SFNone),
		Nonce:           0x1122334455667788,
		UserAgent:       "/Satoshi:25.0.0/",
		StartHeight:     812345,
		Relay:           true,
	}
}

func encode(t *testing.T, c Codec, msg Message) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Encode(msg, &buf))
	return buf.Bytes()
}

func TestCodecRoundTrip(t *testing.T) {
	c := NewCodec(MainNet)

	tests := []struct {
		name string
		msg  Message
	}{
		{"version", testVersion()},
		{"version without relay flag", func() Message {
			m := testVersion()
			m.ProtocolVersion = 60002
			return m
		}()},
		{"version with services", func() Message {
			m := testVersion()
			m.Services = SFNodeNetwork | SFNodeWitness | SFNodeNetworkLimited
			m.AddrRecv.Services = m.Services
			m.Relay = false
			return m
		}()},
		{"verack", &MsgVerAck{}},
		{"unknown", &MsgUnknown{Cmd: "sendcmpct", Payload: []byte{0x00, 0x02, 0, 0, 0, 0, 0, 0, 0}}},
		{"unknown empty", &MsgUnknown{Cmd: "sendheaders", Payload: []byte{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := bytes.NewBuffer(encode(t, c, tt.msg))

			got, ok, err := c.Decode(buf)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.msg, got)
			assert.Zero(t, buf.Len(), "decode must consume the whole frame")
		})
	}
}

func TestEncodeVerAckWireBytes(t *testing.T) {
	got := encode(t, NewCodec(MainNet), &MsgVerAck{})

	want, err := hex.DecodeString("f9beb4d9" + "76657261636b000000000000" + "00000000" + "5df6e0e2")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEncodeVersionLayout(t *testing.T) {
	msg := testVersion()
	raw := encode(t, NewCodec(MainNet), msg)

	payload := raw[MessageHeaderSize:]
	// 4+8+8 + 26+26 + 8 + 1+16 + 4 + 1
	require.Len(t, payload, 102)
	assert.Equal(t, "76657273696f6e0000000000", hex.EncodeToString(raw[4:16]))
	assert.Equal(t, []byte{102, 0, 0, 0}, raw[16:20])

	assert.Equal(t, []byte{0x71, 0x11, 0x01, 0x00}, payload[0:4], "protocol version 70001")
	// receiver address: services, ::ffff:165.22.213.4, port 8333 big-endian
	recv := payload[20:46]
	assert.Equal(t, make([]byte, 8), recv[0:8])
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 165, 22, 213, 4}, recv[8:24])
	assert.Equal(t, []byte{0x20, 0x8d}, recv[24:26])
	assert.Equal(t, byte(len(msg.UserAgent)), payload[80])
	assert.Equal(t, byte(0x01), payload[len(payload)-1], "relay")
}

func TestDecodePartialFrame(t *testing.T) {
	c := NewCodec(MainNet)

	for _, msg := range []Message{testVersion(), &MsgVerAck{}} {
		raw := encode(t, c, msg)
		for i := 1; i < len(raw); i++ {
			buf := bytes.NewBuffer(append([]byte(nil), raw[:i]...))

			got, ok, err := c.Decode(buf)
			require.NoError(t, err, "prefix of %d bytes", i)
			require.False(t, ok, "prefix of %d bytes", i)
			require.Nil(t, got)
			require.Equal(t, i, buf.Len(), "an incomplete frame must not be consumed")

			buf.Write(raw[i:])
			got, ok, err = c.Decode(buf)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, msg, got)
		}
	}
}

func TestDecodeMultipleMessagesInOneBuffer(t *testing.T) {
	c := NewCodec(MainNet)
	var buf bytes.Buffer
	require.NoError(t, c.Encode(&MsgUnknown{Cmd: "ping", Payload: make([]byte, 8)}, &buf))
	require.NoError(t, c.Encode(testVersion(), &buf))
	require.NoError(t, c.Encode(&MsgVerAck{}, &buf))

	var commands []string
	for {
		msg, ok, err := c.Decode(&buf)
		require.NoError(t, err)
		if !ok {
			break
		}
		commands = append(commands, msg.Command())
	}
	assert.Equal(t, []string{"ping", CmdVersion, CmdVerAck}, commands)
	assert.Zero(t, buf.Len())
}

func TestDecodeChecksumCorruption(t *testing.T) {
	c := NewCodec(MainNet)
	for _, msg := range []Message{testVersion(), &MsgVerAck{}} {
		raw := encode(t, c, msg)
		for i := 20; i < MessageHeaderSize; i++ {
			corrupt := append([]byte(nil), raw...)
			corrupt[i] ^= 0xff

			got, ok, err := c.Decode(bytes.NewBuffer(corrupt))
			require.ErrorIs(t, err, ErrDecode, "checksum byte %d", i)
			assert.False(t, ok)
			assert.Nil(t, got)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	c := NewCodec(MainNet)
	verack := encode(t, c, &MsgVerAck{})

	tests := []struct {
		name  string
		input func() []byte
	}{
		{"wrong network magic", func() []byte {
			return encode(t, NewCodec(TestNet3), &MsgVerAck{})
		}},
		{"bad magic with short buffer", func() []byte {
			return []byte{0x0b, 0x11, 0x09, 0x07, 'v'}
		}},
		{"command not null padded", func() []byte {
			b := append([]byte(nil), verack...)
			b[15] = 'x'
			return b
		}},
		{"command not ascii", func() []byte {
			b := append([]byte(nil), verack...)
			b[4] = 0xc3
			return b
		}},
		{"oversized length", func() []byte {
			b := append([]byte(nil), verack[:MessageHeaderSize]...)
			b[19] = 0x7f
			return b
		}},
		{"payload corrupted", func() []byte {
			b := encode(t, c, testVersion())
			b[MessageHeaderSize+5] ^= 0x01
			return b
		}},
		{"verack with payload", func() []byte {
			b := encode(t, c, &MsgUnknown{Cmd: CmdVerAck, Payload: []byte{0x01}})
			return b
		}},
		{"truncated version payload", func() []byte {
			return encode(t, c, &MsgUnknown{Cmd: CmdVersion, Payload: make([]byte, 30)})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := bytes.NewBuffer(tt.input())
			_, ok, err := c.Decode(buf)
			require.ErrorIs(t, err, ErrDecode)
			assert.False(t, ok)
		})
	}
}

func TestDecodeVersionWithoutRelay(t *testing.T) {
	c := NewCodec(MainNet)
	msg := testVersion()
	raw := encode(t, c, msg)

	// Strip the relay byte and re-frame as an older peer would send it.
	payload := raw[MessageHeaderSize : len(raw)-1]
	old := encode(t, c, &MsgUnknown{Cmd: CmdVersion, Payload: payload})

	got, ok, err := c.Decode(bytes.NewBuffer(old))
	require.NoError(t, err)
	require.True(t, ok)
	v, isVersion := got.(*MsgVersion)
	require.True(t, isVersion)
	assert.True(t, v.Relay)
	assert.Equal(t, msg.UserAgent, v.UserAgent)
	assert.Equal(t, msg.StartHeight, v.StartHeight)
}

func TestEncodeRejectsInvalidMessages(t *testing.T) {
	c := NewCodec(MainNet)
	var buf bytes.Buffer

	assert.Error(t, c.Encode(&MsgUnknown{Cmd: "averyverylongcommand"}, &buf))

	msg := testVersion()
	msg.UserAgent = string(make([]byte, MaxUserAgentLen+1))
	assert.Error(t, c.Encode(msg, &buf))

	msg = testVersion()
	msg.AddrRecv = NetAddress{}
	assert.Error(t, c.Encode(msg, &buf))

	msg = testVersion()
	msg.AddrFrom = NetAddress{Services: SFNodeNetwork}
	assert.Error(t, c.Encode(msg, &buf))

	assert.Zero(t, buf.Len())
}

func TestParseNet(t *testing.T) {
	for _, n := range []BitcoinNet{MainNet, TestNet3, Signet, Regtest} {
		got, err := ParseNet(n.String())
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
	got, err := ParseNet(" MainNet ")
	require.NoError(t, err)
	assert.Equal(t, MainNet, got)

	_, err = ParseNet("litecoin")
	assert.Error(t, err)
}

func TestServiceFlagString(t *testing.T) {
	assert.Equal(t, "0x0", SFNone.String())
	assert.Equal(t, "SFNodeNetwork|SFNodeWitness", (SFNodeNetwork | SFNodeWitness).String())
	assert.Equal(t, "SFNodeNetworkLimited|0x10000", (SFNodeNetworkLimited | 1<<16).String())
}
