package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/authly/authly-go/internal/core/domain"
	apperrors "github.com/authly/authly-go/internal/core/errors"
)

// HandshakeState is the position of a connection attempt in its lifecycle.
type HandshakeState int

const (
	// StateInit is the state of a freshly constructed engine.
	StateInit HandshakeState = iota
	// StateTransportConnecting covers endpoint resolution and opening the
	// underlying byte stream.
	StateTransportConnecting
	// StateTLSNegotiating covers the encrypted record exchange up to receipt
	// of the peer's certificate chain.
	StateTLSNegotiating
	// StatePeerVerifying covers chain verification against the trust bundle.
	StatePeerVerifying
	// StateIdentityPresenting covers presenting the local credential and its
	// proof-of-possession signature.
	StateIdentityPresenting
	// StateEstablished is the terminal success state.
	StateEstablished
	// StateFailed is the terminal failure state, reachable from any
	// non-terminal state.
	StateFailed
)

func (s HandshakeState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateTransportConnecting:
		return "transport-connecting"
	case StateTLSNegotiating:
		return "tls-negotiating"
	case StatePeerVerifying:
		return "peer-verifying"
	case StateIdentityPresenting:
		return "identity-presenting"
	case StateEstablished:
		return "established"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// terminal reports whether the state machine can make no further progress.
func (s HandshakeState) terminal() bool {
	return s == StateEstablished || s == StateFailed
}

// DefaultHandshakeTimeout bounds a whole connection attempt, measured from
// the moment Run is entered.
const DefaultHandshakeTimeout = 10 * time.Second

// HandshakeEngine drives one mutually authenticated connection attempt.
// An engine is single use: a retry constructs a fresh engine rather than
// re-entering the state machine.
//
// Peer verification and local identity presentation are separate transitions
// on purpose: the credential's proof-of-possession is only produced after
// the peer chain has resolved to a trust anchor, so an unauthenticated peer
// never sees it.
type HandshakeEngine struct {
	endpoint *Endpoint
	bundle   *domain.TrustBundle
	cred     *domain.Credential
	timeout  time.Duration
	logger   *slog.Logger

	attemptID string

	mu       sync.Mutex
	state    HandshakeState
	stateErr error
	used     bool
	peer     *domain.ServiceIdentity
}

// EngineOption adjusts a HandshakeEngine.
type EngineOption func(*HandshakeEngine)

// WithHandshakeTimeout overrides the whole-handshake deadline.
func WithHandshakeTimeout(d time.Duration) EngineOption {
	return func(e *HandshakeEngine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithHandshakeLogger sets the logger for handshake progress events.
func WithHandshakeLogger(logger *slog.Logger) EngineOption {
	return func(e *HandshakeEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewHandshakeEngine creates an engine for a single attempt against endpoint.
func NewHandshakeEngine(endpoint *Endpoint, bundle *domain.TrustBundle, cred *domain.Credential, opts ...EngineOption) *HandshakeEngine {
	e := &HandshakeEngine{
		endpoint:  endpoint,
		bundle:    bundle,
		cred:      cred,
		timeout:   DefaultHandshakeTimeout,
		logger:    slog.Default(),
		attemptID: uuid.NewString(),
		state:     StateInit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current handshake state.
func (e *HandshakeEngine) State() HandshakeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// AttemptID returns the correlation ID of this attempt, used in logs.
func (e *HandshakeEngine) AttemptID() string {
	return e.attemptID
}

// Err returns the terminal failure of the attempt, or nil.
func (e *HandshakeEngine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateErr
}

func (e *HandshakeEngine) transition(next HandshakeState) {
	e.mu.Lock()
	prev := e.state
	if !prev.terminal() {
		e.state = next
	}
	e.mu.Unlock()

	e.logger.Debug("handshake transition",
		"attempt_id", e.attemptID,
		"endpoint", e.endpoint.Addr(),
		"from", prev.String(),
		"to", next.String(),
	)
}

func (e *HandshakeEngine) fail(err error) error {
	e.mu.Lock()
	if e.state != StateFailed {
		e.state = StateFailed
		e.stateErr = err
	}
	e.mu.Unlock()

	e.logger.Warn("handshake failed",
		"attempt_id", e.attemptID,
		"endpoint", e.endpoint.Addr(),
		"kind", string(apperrors.KindOf(err)),
		"error", err,
	)
	return err
}

// Run drives the state machine to Established or Failed and returns the
// resulting session or a classified error. The context bounds the whole
// attempt; cancellation or deadline expiry releases the transport and
// reports TIMEOUT. Run may be called once per engine.
func (e *HandshakeEngine) Run(ctx context.Context) (*Session, error) {
	e.mu.Lock()
	if e.used {
		e.mu.Unlock()
		return nil, fmt.Errorf("handshake engine is single use, construct a new one per attempt")
	}
	e.used = true
	e.mu.Unlock()

	// Credential validity is re-checked before any network I/O so an
	// expired identity is reported without touching the endpoint.
	if err := e.cred.CheckValidity(time.Now()); err != nil {
		return nil, e.fail(err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.transition(StateTransportConnecting)

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", e.endpoint.Addr())
	if err != nil {
		return nil, e.fail(e.classifyDialError(ctx, err))
	}

	established := false
	defer func() {
		if !established {
			_ = conn.Close()
		}
	}()

	e.transition(StateTLSNegotiating)

	tlsConn := tls.Client(conn, e.clientTLSConfig())
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, e.fail(e.classifyHandshakeError(ctx, err))
	}

	e.mu.Lock()
	peer := e.peer
	e.mu.Unlock()
	if peer == nil {
		// The verification callback ran and stored no identity, which the
		// callback contract does not allow; treat it as a malformed chain.
		return nil, e.fail(apperrors.Newf(apperrors.KindMalformedChain,
			"handshake completed without a verified peer identity"))
	}

	established = true
	e.transition(StateEstablished)
	e.logger.Info("session established",
		"attempt_id", e.attemptID,
		"endpoint", e.endpoint.Addr(),
		"peer", peer.String(),
		"tls_version", tlsVersionName(tlsConn.ConnectionState().Version),
	)

	return newSession(tlsConn, peer, e.logger), nil
}

// clientTLSConfig builds the per-attempt TLS configuration. The default
// verifier is disabled and replaced by VerifyPeerCertificate, which performs
// full chain verification against the trust bundle and records the verified
// identity; peers are named by entity ID, not DNS names, so host name
// verification does not apply.
func (e *HandshakeEngine) clientTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			e.transition(StatePeerVerifying)
			identity, err := e.bundle.VerifyRawChain(rawCerts, time.Now())
			if err != nil {
				return err
			}
			e.mu.Lock()
			e.peer = identity
			e.mu.Unlock()
			return nil
		},
		GetClientCertificate: func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
			e.transition(StateIdentityPresenting)
			if err := e.cred.CheckValidity(time.Now()); err != nil {
				return nil, err
			}
			cert := e.cred.TLSCertificate()
			return &cert, nil
		},
	}
}

func (e *HandshakeEngine) classifyDialError(ctx context.Context, err error) error {
	if timedOut(ctx, err) {
		return apperrors.New(apperrors.KindTimeout,
			fmt.Sprintf("handshake deadline of %s expired while connecting", e.timeout), err)
	}
	return apperrors.New(apperrors.KindTransport,
		fmt.Sprintf("cannot open transport to %s", e.endpoint.Addr()), err)
}

// classifyHandshakeError maps a TLS handshake failure to the taxonomy.
// Errors produced by the verification callbacks travel wrapped inside the
// TLS error and keep their classification.
func (e *HandshakeEngine) classifyHandshakeError(ctx context.Context, err error) error {
	var classified *apperrors.ConnectionError
	if errors.As(err, &classified) {
		return classified
	}
	if timedOut(ctx, err) {
		return apperrors.New(apperrors.KindTimeout,
			fmt.Sprintf("handshake deadline of %s expired during negotiation", e.timeout), err)
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		inner := certErr.Err
		if errors.As(inner, &classified) {
			return classified
		}
		return apperrors.New(apperrors.KindUntrustedPeer, "peer certificate verification failed", err)
	}

	return apperrors.New(apperrors.KindTransport, "TLS negotiation failed", err)
}

func timedOut(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func tlsVersionName(v uint16) string {
	switch v {
	case tls.VersionTLS13:
		return "1.3"
	case tls.VersionTLS12:
		return "1.2"
	default:
		return fmt.Sprintf("0x%04x", v)
	}
}
