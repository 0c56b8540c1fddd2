package transport

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/authly/authly-go/internal/core/errors"
)

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   frame
	}{
		{"data with payload", frame{typ: frameData, seq: 7, payload: []byte("hello authly")}},
		{"data empty payload", frame{typ: frameData, seq: 8}},
		{"ping", frame{typ: framePing, seq: 42}},
		{"pong", frame{typ: framePong, seq: 42}},
		{"close", frame{typ: frameClose}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			require.NoError(t, writeFrame(&buf, tt.in))

			out, err := readFrame(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.in.typ, out.typ)
			assert.Equal(t, tt.in.seq, out.seq)
			assert.Equal(t, tt.in.payload, out.payload)
		})
	}
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := writeFrame(&buf, frame{typ: frameData, payload: make([]byte, maxFramePayload+1)})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindProtocolViolation))
	assert.Zero(t, buf.Len(), "nothing may reach the wire")
}

func TestReadFrameRejectsBadHeader(t *testing.T) {
	t.Parallel()

	makeHeader := func(version, typ byte, length uint32) []byte {
		header := make([]byte, frameHeaderSize)
		header[0] = version
		header[1] = typ
		binary.BigEndian.PutUint32(header[10:14], length)
		return header
	}

	t.Run("unsupported version", func(t *testing.T) {
		t.Parallel()
		_, err := readFrame(bytes.NewReader(makeHeader(9, byte(frameData), 0)))
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindProtocolViolation))
	})

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()
		_, err := readFrame(bytes.NewReader(makeHeader(frameVersion, 99, 0)))
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindProtocolViolation))
	})

	t.Run("type zero", func(t *testing.T) {
		t.Parallel()
		_, err := readFrame(bytes.NewReader(makeHeader(frameVersion, 0, 0)))
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindProtocolViolation))
	})

	t.Run("declared length over limit", func(t *testing.T) {
		t.Parallel()
		_, err := readFrame(bytes.NewReader(makeHeader(frameVersion, byte(frameData), maxFramePayload+1)))
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindProtocolViolation))
	})
}

func TestReadFramePassesIOErrorsThrough(t *testing.T) {
	t.Parallel()

	t.Run("empty stream", func(t *testing.T) {
		t.Parallel()
		_, err := readFrame(bytes.NewReader(nil))
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("truncated header", func(t *testing.T) {
		t.Parallel()
		_, err := readFrame(bytes.NewReader([]byte{frameVersion, byte(frameData)}))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("truncated payload", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, writeFrame(&buf, frame{typ: frameData, seq: 1, payload: []byte("full payload")}))
		truncated := buf.Bytes()[:buf.Len()-4]

		_, err := readFrame(bytes.NewReader(truncated))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestFrameTypeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "data", frameData.String())
	assert.Equal(t, "ping", framePing.String())
	assert.Equal(t, "pong", framePong.String())
	assert.Equal(t, "close", frameClose.String())
	assert.Equal(t, "unknown(9)", frameType(9).String())
}
