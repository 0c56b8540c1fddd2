package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/authly/authly-go/internal/core/domain"
)

// Handler processes one request payload and produces the response payload.
type Handler func(peer *domain.ServiceIdentity, request []byte) ([]byte, error)

// Server accepts mutually authenticated sessions and serves the session
// framing. Client chains are verified against the same trust bundle logic
// the client applies to servers.
type Server struct {
	bundle  *domain.TrustBundle
	cred    *domain.Credential
	handler Handler
	logger  *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates a server that authenticates clients against bundle and
// presents cred as its own identity. handler may be nil, in which case
// requests are echoed.
func NewServer(bundle *domain.TrustBundle, cred *domain.Credential, handler Handler, logger *slog.Logger) *Server {
	if handler == nil {
		handler = func(_ *domain.ServiceIdentity, request []byte) ([]byte, error) {
			return request, nil
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		bundle:  bundle,
		cred:    cred,
		handler: handler,
		logger:  logger,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Listen starts listening on addr ("host:port", empty port for ephemeral)
// and serves in a background goroutine until Close.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) tlsConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{s.cred.TLSCertificate()},
		// RequireAnyClientCert plus VerifyPeerCertificate applies the same
		// classified chain verification used on the client side.
		ClientAuth: tls.RequireAnyClientCert,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			_, err := s.bundle.VerifyRawChain(rawCerts, time.Now())
			return err
		},
	}
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	cfg := s.tlsConfig()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(tls.Server(conn, cfg), conn)
	}
}

func (s *Server) serveConn(tlsConn *tls.Conn, raw net.Conn) {
	defer s.wg.Done()
	defer func() {
		_ = tlsConn.Close()
		s.mu.Lock()
		delete(s.conns, raw)
		s.mu.Unlock()
	}()

	if err := tlsConn.Handshake(); err != nil {
		s.logger.Debug("client handshake rejected", "remote", raw.RemoteAddr(), "error", err)
		return
	}

	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return
	}
	peer, err := domain.IdentityFromCertificate(state.PeerCertificates[0])
	if err != nil {
		s.logger.Debug("client certificate has no identity", "remote", raw.RemoteAddr(), "error", err)
		return
	}

	for {
		f, err := readFrame(tlsConn)
		if err != nil {
			return
		}

		switch f.typ {
		case framePing:
			if err := writeFrame(tlsConn, frame{typ: framePong, seq: f.seq}); err != nil {
				return
			}
		case framePong:
			// ignore
		case frameClose:
			return
		case frameData:
			response, err := s.handler(peer, f.payload)
			if err != nil {
				s.logger.Warn("handler failed", "peer", peer.String(), "error", err)
				return
			}
			if err := writeFrame(tlsConn, frame{typ: frameData, seq: f.seq, payload: response}); err != nil {
				return
			}
		}
	}
}

// Close stops accepting, tears down open connections and waits for the
// serving goroutines to finish. Idempotent.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	return err
}
