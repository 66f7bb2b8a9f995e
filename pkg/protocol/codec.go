package protocol

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrDecode marks bytes that can never become a valid message. A stream
// that produced it is unusable.
var ErrDecode = errors.New("decode error")

// Codec translates between a byte stream and typed messages for one network.
type Codec struct {
	Net BitcoinNet
}

// NewCodec returns a codec for the given network.
func NewCodec(net BitcoinNet) Codec {
	return Codec{Net: net}
}

// Checksum returns the first 4 bytes of SHA256(SHA256(payload)).
func Checksum(payload []byte) [4]byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	var sum [4]byte
	copy(sum[:], second[:4])
	return sum
}

// Encode serializes msg and appends the framed bytes to out.
func (c Codec) Encode(msg Message, out *bytes.Buffer) error {
	cmd := msg.Command()
	if len(cmd) > CommandSize {
		return fmt.Errorf("command %q is longer than %d bytes", cmd, CommandSize)
	}

	var payload bytes.Buffer
	if err := msg.encodePayload(&payloadWriter{&payload}); err != nil {
		return fmt.Errorf("encode %s payload: %w", cmd, err)
	}
	if payload.Len() > MaxMessagePayload {
		return fmt.Errorf("%s payload of %d bytes exceeds %d", cmd, payload.Len(), MaxMessagePayload)
	}

	var hdr [MessageHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(c.Net))
	copy(hdr[4:4+CommandSize], cmd)
	binary.LittleEndian.PutUint32(hdr[16:20], uint32(payload.Len()))
	sum := Checksum(payload.Bytes())
	copy(hdr[20:24], sum[:])

	out.Grow(MessageHeaderSize + payload.Len())
	out.Write(hdr[:])
	out.Write(payload.Bytes())
	return nil
}

// Decode attempts to parse one message from the front of buf.
//
// It returns (msg, true, nil) and consumes exactly the message bytes when a
// complete message is present, (nil, false, nil) without consuming anything
// when buf only holds a valid prefix, and an error wrapping ErrDecode when
// the bytes are corrupt. Callers drain buf by looping until ok is false.
func (c Codec) Decode(buf *bytes.Buffer) (msg Message, ok bool, err error) {
	data := buf.Bytes()

	if len(data) >= 4 {
		if magic := BitcoinNet(binary.LittleEndian.Uint32(data[0:4])); magic != c.Net {
			return nil, false, fmt.Errorf("%w: magic %#08x does not match %s", ErrDecode, uint32(magic), c.Net)
		}
	}
	if len(data) < MessageHeaderSize {
		return nil, false, nil
	}

	hdr, err := c.parseHeader(data[:MessageHeaderSize])
	if err != nil {
		return nil, false, err
	}

	total := MessageHeaderSize + int(hdr.Length)
	if len(data) < total {
		return nil, false, nil
	}

	payload := data[MessageHeaderSize:total]
	if sum := Checksum(payload); sum != hdr.Checksum {
		return nil, false, fmt.Errorf("%w: %s checksum %x, computed %x", ErrDecode, hdr.Command, hdr.Checksum, sum)
	}

	msg = makeEmptyMessage(hdr.Command)
	if err := msg.decodePayload(&payloadReader{bytes.NewBuffer(payload)}); err != nil {
		return nil, false, fmt.Errorf("%w: %s payload: %w", ErrDecode, hdr.Command, err)
	}

	buf.Next(total)
	return msg, true, nil
}

// parseHeader validates the fixed header fields.
func (c Codec) parseHeader(b []byte) (MessageHeader, error) {
	var hdr MessageHeader
	hdr.Magic = BitcoinNet(binary.LittleEndian.Uint32(b[0:4]))

	cmd, err := parseCommand(b[4 : 4+CommandSize])
	if err != nil {
		return hdr, err
	}
	hdr.Command = cmd

	hdr.Length = binary.LittleEndian.Uint32(b[16:20])
	if hdr.Length > MaxMessagePayload {
		return hdr, fmt.Errorf("%w: %s declares %d payload bytes, max %d", ErrDecode, cmd, hdr.Length, MaxMessagePayload)
	}
	copy(hdr.Checksum[:], b[20:24])
	return hdr, nil
}

// parseCommand accepts printable ASCII followed only by null padding.
func parseCommand(raw []byte) (string, error) {
	end := bytes.IndexByte(raw, 0x00)
	if end < 0 {
		end = len(raw)
	}
	for _, ch := range raw[end:] {
		if ch != 0x00 {
			return "", fmt.Errorf("%w: command %q is not null padded", ErrDecode, raw)
		}
	}
	for _, ch := range raw[:end] {
		if ch < 0x20 || ch > 0x7e {
			return "", fmt.Errorf("%w: command %q is not ASCII", ErrDecode, raw)
		}
	}
	return string(raw[:end]), nil
}
