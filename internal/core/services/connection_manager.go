package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/authly/authly-go/internal/core/domain"
	apperrors "github.com/authly/authly-go/internal/core/errors"
	"github.com/authly/authly-go/internal/transport"
)

// RetryPolicy bounds automatic reconnection of failed handshake attempts.
// Only retriable failure kinds (transport, timeout) are retried; trust and
// credential failures surface immediately. The zero value disables retry.
type RetryPolicy struct {
	// Attempts is the number of additional attempts after the first failure.
	Attempts int
	// Backoff is the delay before the first retry; it doubles per attempt
	// and is capped at MaxBackoff.
	Backoff time.Duration
	// MaxBackoff caps the growing delay. Zero means no cap.
	MaxBackoff time.Duration
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Backoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return d
}

// ManagerOptions configures a ConnectionManager.
type ManagerOptions struct {
	// HandshakeTimeout bounds each individual attempt. Zero selects the
	// transport default.
	HandshakeTimeout time.Duration
	// Retry is the automatic retry policy. Default: no retry.
	Retry RetryPolicy
	// ExpectedPeer pins the server to a single entity ID. An established
	// session whose verified identity differs is closed immediately and the
	// attempt fails as UNTRUSTED_PEER.
	ExpectedPeer *domain.EntityID
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Metrics defaults to the no-op reporter.
	Metrics MetricsReporter
}

// ConnectionManager sequences credential checks, handshakes and session
// ownership against one Authly endpoint. It owns at most one live session;
// a new Connect supersedes the previous session explicitly.
//
// The trust bundle and credential are immutable, shared inputs; concurrent
// Connect calls are safe and the last one to finish owns the active session.
type ConnectionManager struct {
	endpoint *transport.Endpoint
	bundle   *domain.TrustBundle
	cred     *domain.Credential
	opts     ManagerOptions

	mu     sync.Mutex
	active *transport.Session
}

// NewConnectionManager creates a manager for the given endpoint and trust
// material.
func NewConnectionManager(endpoint *transport.Endpoint, bundle *domain.TrustBundle, cred *domain.Credential, opts ManagerOptions) *ConnectionManager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetrics()
	}

	if leaf := cred.Leaf(); leaf != nil {
		opts.Metrics.RecordCredentialExpiry(leaf.Subject.CommonName, cred.Expiry())
	}

	return &ConnectionManager{
		endpoint: endpoint,
		bundle:   bundle,
		cred:     cred,
		opts:     opts,
	}
}

// Connect drives handshake attempts until one is established, the retry
// budget is exhausted, or a non-retriable failure occurs. On success the
// prior active session, if any, is closed and the fresh session becomes the
// active one.
func (m *ConnectionManager) Connect(ctx context.Context) (*transport.Session, error) {
	for attempt := 0; ; attempt++ {
		session, err := m.attempt(ctx)
		if err == nil {
			m.adopt(session)
			return session, nil
		}

		if !apperrors.Retriable(err) || attempt >= m.opts.Retry.Attempts {
			return nil, err
		}

		delay := m.opts.Retry.delay(attempt)
		m.opts.Logger.Info("retrying connection",
			"endpoint", m.endpoint.Addr(),
			"attempt", attempt+1,
			"delay", delay.String(),
			"previous_error", err,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, apperrors.New(apperrors.KindTimeout, "connection retries cancelled", ctx.Err())
		}
	}
}

func (m *ConnectionManager) attempt(ctx context.Context) (*transport.Session, error) {
	m.opts.Metrics.RecordAttempt()
	start := time.Now()

	engineOpts := []transport.EngineOption{transport.WithHandshakeLogger(m.opts.Logger)}
	if m.opts.HandshakeTimeout > 0 {
		engineOpts = append(engineOpts, transport.WithHandshakeTimeout(m.opts.HandshakeTimeout))
	}

	engine := transport.NewHandshakeEngine(m.endpoint, m.bundle, m.cred, engineOpts...)
	session, err := engine.Run(ctx)
	if err != nil {
		m.opts.Metrics.RecordFailure(string(apperrors.KindOf(err)))
		return nil, err
	}

	if m.opts.ExpectedPeer != nil && session.PeerIdentity().EntityID() != *m.opts.ExpectedPeer {
		_ = session.Close()
		err := apperrors.Newf(apperrors.KindUntrustedPeer,
			"peer identity %s does not match pinned entity %s",
			session.PeerIdentity(), m.opts.ExpectedPeer)
		m.opts.Metrics.RecordFailure(string(apperrors.KindUntrustedPeer))
		return nil, err
	}

	m.opts.Metrics.RecordEstablished(time.Since(start))
	return session, nil
}

// adopt installs the session as the single active one, closing any
// predecessor. Supersession is explicit, never a silent leak.
func (m *ConnectionManager) adopt(session *transport.Session) {
	m.mu.Lock()
	prior := m.active
	m.active = session
	m.mu.Unlock()

	if prior != nil && prior != session {
		m.opts.Logger.Info("superseding active session", "peer", prior.PeerIdentity().String())
		_ = prior.Close()
		m.opts.Metrics.RecordSessionClosed()
	}
}

// Endpoint returns the endpoint this manager connects to.
func (m *ConnectionManager) Endpoint() *transport.Endpoint {
	return m.endpoint
}

// Options returns the manager's configuration, for constructing a successor
// manager carrying rotated trust material.
func (m *ConnectionManager) Options() ManagerOptions {
	return m.opts
}

// Active returns the currently owned session, or nil.
func (m *ConnectionManager) Active() *transport.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// CredentialExpiry exposes the credential's not-after time for proactive
// rotation decisions.
func (m *ConnectionManager) CredentialExpiry() time.Time {
	return m.cred.Expiry()
}

// Close releases the active session, if any. Idempotent.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	session := m.active
	m.active = nil
	m.mu.Unlock()

	if session == nil {
		return nil
	}
	err := session.Close()
	m.opts.Metrics.RecordSessionClosed()
	return err
}
