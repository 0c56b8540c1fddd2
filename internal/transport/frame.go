// Package transport implements the mutually authenticated channel to an
// Authly endpoint: the handshake state machine, the established session and
// its request/response framing.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	apperrors "github.com/authly/authly-go/internal/core/errors"
)

// Wire framing for an established session. Every frame is:
//
//	version  uint8
//	type     uint8
//	sequence uint64 big endian
//	length   uint32 big endian
//	payload  length bytes
//
// The sequence number is assigned by the requesting side and echoed back on
// the matching response frame.
const (
	frameVersion byte = 1

	frameHeaderSize = 14

	// maxFramePayload bounds a single request or response body.
	maxFramePayload = 4 << 20
)

type frameType byte

const (
	frameData  frameType = 1
	framePing  frameType = 2
	framePong  frameType = 3
	frameClose frameType = 4
)

func (t frameType) valid() bool {
	return t >= frameData && t <= frameClose
}

func (t frameType) String() string {
	switch t {
	case frameData:
		return "data"
	case framePing:
		return "ping"
	case framePong:
		return "pong"
	case frameClose:
		return "close"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

type frame struct {
	typ     frameType
	seq     uint64
	payload []byte
}

// writeFrame serializes a frame to w. I/O errors are returned untouched for
// the session to classify.
func writeFrame(w io.Writer, f frame) error {
	if len(f.payload) > maxFramePayload {
		return apperrors.Newf(apperrors.KindProtocolViolation,
			"payload of %d bytes exceeds the %d byte frame limit", len(f.payload), maxFramePayload)
	}

	header := make([]byte, frameHeaderSize)
	header[0] = frameVersion
	header[1] = byte(f.typ)
	binary.BigEndian.PutUint64(header[2:10], f.seq)
	binary.BigEndian.PutUint32(header[10:14], uint32(len(f.payload)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(f.payload) > 0 {
		if _, err := w.Write(f.payload); err != nil {
			return err
		}
	}
	return nil
}

// readFrame reads and validates a single frame from r. Malformed framing is
// reported as a PROTOCOL_VIOLATION; I/O errors are returned untouched.
func readFrame(r io.Reader) (frame, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return frame{}, err
	}

	if header[0] != frameVersion {
		return frame{}, apperrors.Newf(apperrors.KindProtocolViolation,
			"unsupported frame version %d", header[0])
	}
	typ := frameType(header[1])
	if !typ.valid() {
		return frame{}, apperrors.Newf(apperrors.KindProtocolViolation,
			"unknown frame type %d", header[1])
	}
	length := binary.BigEndian.Uint32(header[10:14])
	if length > maxFramePayload {
		return frame{}, apperrors.Newf(apperrors.KindProtocolViolation,
			"declared payload of %d bytes exceeds the %d byte frame limit", length, maxFramePayload)
	}

	f := frame{
		typ: typ,
		seq: binary.BigEndian.Uint64(header[2:10]),
	}
	if length > 0 {
		f.payload = make([]byte, length)
		if _, err := io.ReadFull(r, f.payload); err != nil {
			return frame{}, err
		}
	}
	return f, nil
}
