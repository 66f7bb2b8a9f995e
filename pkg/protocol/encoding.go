package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net/netip"
)

var errShortPayload = errors.New("payload too short")

// payloadWriter appends little-endian primitives to a buffer.
type payloadWriter struct {
	*bytes.Buffer
}

func (w *payloadWriter) putUint16BE(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.Write(b[:])
}

func (w *payloadWriter) putUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func (w *payloadWriter) putUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func (w *payloadWriter) putBool(v bool) {
	if v {
		w.WriteByte(0x01)
		return
	}
	w.WriteByte(0x00)
}

// putVarInt writes a CompactSize integer.
func (w *payloadWriter) putVarInt(v uint64) {
	switch {
	case v < 0xfd:
		w.WriteByte(byte(v))
	case v <= math.MaxUint16:
		w.WriteByte(0xfd)
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v))
		w.Write(b[:])
	case v <= math.MaxUint32:
		w.WriteByte(0xfe)
		w.putUint32(uint32(v))
	default:
		w.WriteByte(0xff)
		w.putUint64(v)
	}
}

func (w *payloadWriter) putVarString(s string) {
	w.putVarInt(uint64(len(s)))
	w.WriteString(s)
}

// putNetAddress writes the version message form of an address, which has
// no timestamp field.
func (w *payloadWriter) putNetAddress(na NetAddress) {
	w.putUint64(uint64(na.Services))
	ip := na.Addr.Addr().As16()
	w.Write(ip[:])
	w.putUint16BE(na.Addr.Port())
}

// payloadReader consumes little-endian primitives from a payload.
type payloadReader struct {
	*bytes.Buffer
}

func (r *payloadReader) take(n int) ([]byte, error) {
	if r.Len() < n {
		return nil, errShortPayload
	}
	return r.Next(n), nil
}

func (r *payloadReader) uint16BE() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *payloadReader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *payloadReader) uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *payloadReader) bool() (bool, error) {
	b, err := r.take(1)
	if err != nil {
		return false, err
	}
	return b[0] != 0x00, nil
}

// varInt reads a CompactSize integer and rejects non-canonical encodings.
func (r *payloadReader) varInt() (uint64, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}

	var v, min uint64
	switch b[0] {
	case 0xff:
		if v, err = r.uint64(); err != nil {
			return 0, err
		}
		min = 0x100000000
	case 0xfe:
		v32, err := r.uint32()
		if err != nil {
			return 0, err
		}
		v, min = uint64(v32), 0x10000
	case 0xfd:
		raw, err := r.take(2)
		if err != nil {
			return 0, err
		}
		v, min = uint64(binary.LittleEndian.Uint16(raw)), 0xfd
	default:
		return uint64(b[0]), nil
	}

	if v < min {
		return 0, fmt.Errorf("non-canonical varint %x - discriminant %x must encode a value greater than %x", v, b[0], min)
	}
	return v, nil
}

func (r *payloadReader) varString(maxLen int) (string, error) {
	n, err := r.varInt()
	if err != nil {
		return "", err
	}
	if n > uint64(maxLen) {
		return "", fmt.Errorf("string length %d exceeds limit %d", n, maxLen)
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *payloadReader) netAddress() (NetAddress, error) {
	var na NetAddress
	services, err := r.uint64()
	if err != nil {
		return na, err
	}
	raw, err := r.take(16)
	if err != nil {
		return na, err
	}
	var ip [16]byte
	copy(ip[:], raw)
	port, err := r.uint16BE()
	if err != nil {
		return na, err
	}

	na.Services = ServiceFlag(services)
	na.Addr = netip.AddrPortFrom(netip.AddrFrom16(ip).Unmap(), port)
	return na, nil
}
