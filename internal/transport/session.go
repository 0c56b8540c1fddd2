package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/authly/authly-go/internal/core/domain"
	apperrors "github.com/authly/authly-go/internal/core/errors"
)

// closeLinger bounds the best-effort close notification to the peer.
const closeLinger = 2 * time.Second

// Session is an established, mutually authenticated channel. It is created
// only by a successful handshake and owns its transport exclusively.
//
// Send serializes concurrent callers internally; the verified peer identity
// is fixed for the session's lifetime.
type Session struct {
	conn   *tls.Conn
	peer   *domain.ServiceIdentity
	logger *slog.Logger

	// mu is the serialization point for the request/response exchange.
	mu  sync.Mutex
	seq uint64

	lastActivity atomic.Int64 // unix nanos

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

func newSession(conn *tls.Conn, peer *domain.ServiceIdentity, logger *slog.Logger) *Session {
	s := &Session{
		conn:   conn,
		peer:   peer,
		logger: logger,
	}
	s.touch()
	return s
}

// PeerIdentity returns the identity verified during the handshake.
func (s *Session) PeerIdentity() *domain.ServiceIdentity {
	return s.peer
}

// Send writes one request over the channel and blocks until the matching
// response arrives, the context expires, or the channel fails. Inbound ping
// frames encountered while waiting are answered transparently.
func (s *Session) Send(ctx context.Context, request []byte) ([]byte, error) {
	if s.closed.Load() {
		return nil, apperrors.Newf(apperrors.KindChannelClosed, "session is closed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	seq := s.seq

	if err := s.applyDeadline(ctx); err != nil {
		return nil, err
	}

	if err := writeFrame(s.conn, frame{typ: frameData, seq: seq, payload: request}); err != nil {
		return nil, s.channelFailure("write", err)
	}
	s.touch()

	for {
		f, err := readFrame(s.conn)
		if err != nil {
			return nil, s.channelFailure("read", err)
		}
		s.touch()

		switch f.typ {
		case framePing:
			if err := writeFrame(s.conn, frame{typ: framePong, seq: f.seq}); err != nil {
				return nil, s.channelFailure("pong", err)
			}
		case framePong:
			// Stale keepalive response, ignore.
		case frameClose:
			s.teardown(nil)
			return nil, apperrors.Newf(apperrors.KindChannelClosed, "peer closed the session")
		case frameData:
			if f.seq != seq {
				err := apperrors.Newf(apperrors.KindProtocolViolation,
					"response sequence %d does not match request sequence %d", f.seq, seq)
				s.teardown(err)
				return nil, err
			}
			return f.payload, nil
		}
	}
}

// Ping performs an explicit liveness round trip.
func (s *Session) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return apperrors.Newf(apperrors.KindChannelClosed, "session is closed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	seq := s.seq

	if err := s.applyDeadline(ctx); err != nil {
		return err
	}
	if err := writeFrame(s.conn, frame{typ: framePing, seq: seq}); err != nil {
		return s.channelFailure("ping", err)
	}

	for {
		f, err := readFrame(s.conn)
		if err != nil {
			return s.channelFailure("ping", err)
		}
		s.touch()

		switch f.typ {
		case framePong:
			if f.seq == seq {
				return nil
			}
		case framePing:
			if err := writeFrame(s.conn, frame{typ: framePong, seq: f.seq}); err != nil {
				return s.channelFailure("pong", err)
			}
		case frameClose:
			s.teardown(nil)
			return apperrors.Newf(apperrors.KindChannelClosed, "peer closed the session")
		case frameData:
			// A data frame nobody asked for while pinging an idle channel.
			err := apperrors.Newf(apperrors.KindProtocolViolation,
				"unsolicited data frame with sequence %d", f.seq)
			s.teardown(err)
			return err
		}
	}
}

// IsAlive reports whether the session has not been torn down. It is a local
// check; Ping detects a silently dead peer.
func (s *Session) IsAlive() bool {
	return !s.closed.Load()
}

// LastActivity returns the time of the most recent frame in either
// direction.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Close releases the transport. It is idempotent: every call after the
// first returns the same result and the underlying transport is released
// exactly once. A best-effort close frame tells the peer the teardown was
// deliberate.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		_ = s.conn.SetDeadline(time.Now().Add(closeLinger))
		_ = writeFrame(s.conn, frame{typ: frameClose})

		s.closeErr = s.conn.Close()
		s.logger.Debug("session closed", "peer", s.peer.String())
	})
	return s.closeErr
}

// teardown marks the session dead after a channel failure and releases the
// transport without the close frame exchange.
func (s *Session) teardown(cause error) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.conn.Close()
		if cause != nil {
			s.logger.Debug("session torn down", "peer", s.peer.String(), "cause", cause)
		}
	})
}

func (s *Session) applyDeadline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperrors.New(apperrors.KindChannelClosed, "context finished before I/O", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		return s.conn.SetDeadline(deadline)
	}
	return s.conn.SetDeadline(time.Time{})
}

// channelFailure classifies an I/O error on an established channel. EOF and
// any transport-level failure surface as CHANNEL_CLOSED so callers know the
// trust configuration is not suspect; framing violations keep their own
// classification. Either way the session is dead afterwards.
func (s *Session) channelFailure(op string, err error) error {
	var classified *apperrors.ConnectionError
	if errors.As(err, &classified) {
		s.teardown(classified)
		return classified
	}

	var wrapped error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		wrapped = apperrors.New(apperrors.KindChannelClosed, "peer disconnected", err)
	default:
		wrapped = apperrors.New(apperrors.KindChannelClosed, op+" on session failed", err)
	}
	s.teardown(wrapped)
	return wrapped
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}
