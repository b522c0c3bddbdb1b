// Package codec implements the framed wire format used by the native IPC
// transport (§4.1): a little-endian 8-byte header (op, length) followed by
// an opaque payload.
package codec

import (
	"encoding/binary"
	"errors"
	"io"
)

// Op is the packet opcode. ReadFrame returns unknown values unchanged
// rather than failing, and the IPC connection handler treats them as Frame
// — the codec is lenient about op, not about framing.
type Op uint32

const (
	OpHandshake Op = 0
	OpFrame     Op = 1
	OpClose     Op = 2
	OpPing      Op = 3
	OpPong      Op = 4
)

// ErrShortRead is returned by ReadFrame when either the header or the
// payload is truncated.
var ErrShortRead = errors.New("codec: short read")

const headerSize = 8

// Encode writes op and length followed by payload, little-endian. It never
// fails — callers own the payload's validity, the codec only frames bytes.
func Encode(op Op, payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(op))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[headerSize:], payload)
	return buf
}

// ReadFrame reads one frame from r. A truncated header or payload is
// reported as ErrShortRead so callers (§4.4, §7) can distinguish it from an
// ordinary EOF-at-frame-boundary and synthesize a clearing event.
func ReadFrame(r io.Reader) (Op, []byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil, io.EOF
		}
		return 0, nil, ErrShortRead
	}

	op := Op(binary.LittleEndian.Uint32(header[0:4]))
	length := binary.LittleEndian.Uint32(header[4:8])

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, ErrShortRead
		}
	}
	return op, payload, nil
}
