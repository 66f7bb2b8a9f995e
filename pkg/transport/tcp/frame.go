package tcp

import (
	"bytes"
	"errors"
	"io"

	"github.com/federicojvarela/node-challenge/pkg/protocol"
)

// readChunkSize is how much is pulled from the socket per read call.
const readChunkSize = 4096

// frameReader turns an arbitrary chunked byte stream into messages.
// Bytes arrive in any split: one message may span many reads and one read
// may carry several messages, so decoded messages are drained from the
// receive buffer before the socket is read again.
type frameReader struct {
	r       io.Reader
	codec   protocol.Codec
	buf     bytes.Buffer
	chunk   []byte
	readErr error
	onRead  func(n int)
}

func newFrameReader(r io.Reader, codec protocol.Codec, onRead func(n int)) *frameReader {
	return &frameReader{
		r:      r,
		codec:  codec,
		chunk:  make([]byte, readChunkSize),
		onRead: onRead,
	}
}

// next returns the next complete message. A clean close on a message
// boundary yields io.EOF; a close mid-message yields io.ErrUnexpectedEOF.
func (f *frameReader) next() (protocol.Message, error) {
	for {
		msg, ok, err := f.codec.Decode(&f.buf)
		if err != nil {
			return nil, err
		}
		if ok {
			return msg, nil
		}

		if f.readErr != nil {
			if errors.Is(f.readErr, io.EOF) && f.buf.Len() > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, f.readErr
		}

		n, err := f.r.Read(f.chunk)
		if n > 0 {
			f.buf.Write(f.chunk[:n])
			if f.onRead != nil {
				f.onRead(n)
			}
		}
		// Keep the error until buffered bytes have been decoded.
		f.readErr = err
	}
}
