package authly

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/authly/authly-go/internal/adapters/watch"
	"github.com/authly/authly-go/internal/core/domain"
	apperrors "github.com/authly/authly-go/internal/core/errors"
	"github.com/authly/authly-go/internal/core/services"
)

// Client is an authenticated handle to an Authly endpoint. It owns at most
// one live session; Reconnect and credential rotation supersede the session
// explicitly. All methods are safe for concurrent use.
type Client struct {
	manager      *services.ConnectionManager
	bundle       *domain.TrustBundle
	cred         *domain.Credential
	caPath       string
	identityPath string
	logger       *slog.Logger
	pinned       *domain.EntityID

	mu     sync.Mutex
	closed bool
}

func (c *Client) currentManager() *services.ConnectionManager {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manager
}

// Send exchanges one request/response pair over the authenticated session.
func (c *Client) Send(ctx context.Context, request []byte) ([]byte, error) {
	session := c.currentManager().Active()
	if session == nil {
		return nil, apperrors.Newf(apperrors.KindChannelClosed, "client has no active session")
	}
	return session.Send(ctx, request)
}

// Ping performs a liveness round trip over the active session.
func (c *Client) Ping(ctx context.Context) error {
	session := c.currentManager().Active()
	if session == nil {
		return apperrors.Newf(apperrors.KindChannelClosed, "client has no active session")
	}
	return session.Ping(ctx)
}

// PeerIdentity returns the verified identity of the connected server. The
// second return is false when no session is active.
func (c *Client) PeerIdentity() (Identity, bool) {
	session := c.currentManager().Active()
	if session == nil {
		return Identity{}, false
	}
	return identityFromDomain(session.PeerIdentity()), true
}

// EntityID returns the entity ID of the local service identity, or the
// empty string if the credential certificate carries none.
func (c *Client) EntityID() string {
	c.mu.Lock()
	cred := c.cred
	c.mu.Unlock()
	if id := cred.Identity(); id != nil {
		return id.EntityID().String()
	}
	return ""
}

// IsConnected reports whether the client currently holds a live session.
func (c *Client) IsConnected() bool {
	session := c.currentManager().Active()
	return session != nil && session.IsAlive()
}

// CredentialExpiry returns the not-after time of the identity credential,
// for proactive rotation ahead of handshake-time rejection.
func (c *Client) CredentialExpiry() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cred.Expiry()
}

// Reconnect establishes a fresh session. The previous session, if still
// alive, is closed once the new one is established.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.Newf(apperrors.KindChannelClosed, "client is closed")
	}
	manager := c.manager
	c.mu.Unlock()

	_, err := manager.Connect(ctx)
	return err
}

// WatchRotation watches the CA and identity files the client was built from
// and reconnects with freshly loaded material when they change. It returns
// after the watcher is registered and stops when the context finishes.
// Clients built from in-memory PEM bytes have nothing to watch.
func (c *Client) WatchRotation(ctx context.Context) error {
	var paths []string
	if c.caPath != "" {
		paths = append(paths, c.caPath)
	}
	if c.identityPath != "" {
		paths = append(paths, c.identityPath)
	}
	if len(paths) == 0 {
		return fmt.Errorf("client was built from in-memory material, nothing to watch")
	}

	watcher, err := watch.New(func() { c.rotate(ctx) }, c.logger, paths...)
	if err != nil {
		return err
	}
	return watcher.Start(ctx)
}

// rotate reloads trust material from disk and reconnects. A failed reload
// keeps the current session running; rotation must never degrade a healthy
// client.
func (c *Client) rotate(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	bundle := c.bundle
	if c.caPath != "" {
		fresh, err := domain.LoadTrustBundle(c.caPath)
		if err != nil {
			c.mu.Unlock()
			c.logger.Error("rotation: reloading trust bundle failed", "path", c.caPath, "error", err)
			return
		}
		bundle = fresh
	}

	cred := c.cred
	if c.identityPath != "" {
		fresh, err := domain.LoadCredential(c.identityPath)
		if err != nil {
			c.mu.Unlock()
			c.logger.Error("rotation: reloading credential failed", "path", c.identityPath, "error", err)
			return
		}
		cred = fresh
	}

	endpoint := c.manager.Endpoint()
	manager := services.NewConnectionManager(endpoint, bundle, cred, c.manager.Options())

	c.mu.Unlock()

	if _, err := manager.Connect(ctx); err != nil {
		c.logger.Error("rotation: reconnect with rotated material failed", "error", err)
		return
	}

	c.mu.Lock()
	old := c.manager
	c.manager = manager
	c.bundle = bundle
	c.cred = cred
	c.mu.Unlock()

	_ = old.Close()
	c.logger.Info("rotated credentials and reconnected", "credential_expiry", cred.Expiry())
}

// Close releases the active session. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	manager := c.manager
	c.mu.Unlock()

	return manager.Close()
}
