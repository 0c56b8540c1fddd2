package authly

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/authly/authly-go/internal/adapters/metrics"
	"github.com/authly/authly-go/internal/config"
	"github.com/authly/authly-go/internal/core/domain"
	"github.com/authly/authly-go/internal/core/services"
	"github.com/authly/authly-go/internal/transport"
)

// ClientBuilder configures and establishes a Client. Builders are not safe
// for concurrent use; Connect may be called once per builder.
type ClientBuilder struct {
	url          string
	caPath       string
	caPEM        []byte
	identityPath string
	identityPEM  []byte

	timeout      time.Duration
	retry        services.RetryPolicy
	expectedPeer string
	logger       *slog.Logger
	reporter     services.MetricsReporter
}

// NewClient constructs a builder. The endpoint URL defaults to the
// AUTHLY_URL environment variable, falling back to https://authly.
func NewClient() *ClientBuilder {
	url := os.Getenv("AUTHLY_URL")
	if url == "" {
		url = config.DefaultURL
	}
	return &ClientBuilder{
		url:    url,
		logger: slog.Default(),
	}
}

// FromEnvironment picks up the trust material from the well-known paths
// Authly mounts into service containers: /etc/authly/certs/local.crt and
// /etc/authly/identity/identity.pem.
func (b *ClientBuilder) FromEnvironment() *ClientBuilder {
	b.caPath = config.DefaultCACertPath
	b.identityPath = config.DefaultIdentityPath
	return b
}

// FromConfig applies a loaded configuration.
func (b *ClientBuilder) FromConfig(cfg *config.Config) *ClientBuilder {
	b.url = cfg.URL
	b.caPath = cfg.CAPath
	b.identityPath = cfg.IdentityPath
	b.timeout = cfg.ConnectTimeout
	b.retry = services.RetryPolicy{Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff}
	b.expectedPeer = cfg.ExpectedPeer
	return b
}

// WithURL overrides the Authly endpoint URL.
func (b *ClientBuilder) WithURL(url string) *ClientBuilder {
	b.url = url
	return b
}

// WithAuthlyCAPath points at the CA trust-anchor certificate file.
func (b *ClientBuilder) WithAuthlyCAPath(path string) *ClientBuilder {
	b.caPath = path
	b.caPEM = nil
	return b
}

// WithAuthlyCAPEM provides the CA trust anchors as PEM bytes.
func (b *ClientBuilder) WithAuthlyCAPEM(pem []byte) *ClientBuilder {
	b.caPEM = pem
	b.caPath = ""
	return b
}

// WithIdentityPath points at the identity credential PEM file.
func (b *ClientBuilder) WithIdentityPath(path string) *ClientBuilder {
	b.identityPath = path
	b.identityPEM = nil
	return b
}

// WithIdentityPEM provides the identity credential as PEM bytes.
func (b *ClientBuilder) WithIdentityPEM(pem []byte) *ClientBuilder {
	b.identityPEM = pem
	b.identityPath = ""
	return b
}

// WithConnectTimeout bounds each handshake attempt.
func (b *ClientBuilder) WithConnectTimeout(d time.Duration) *ClientBuilder {
	b.timeout = d
	return b
}

// WithRetry enables bounded automatic retry of transient failures: attempts
// additional tries with backoff doubling per attempt. Trust and credential
// failures are never retried.
func (b *ClientBuilder) WithRetry(attempts int, backoff time.Duration) *ClientBuilder {
	b.retry = services.RetryPolicy{Attempts: attempts, Backoff: backoff, MaxBackoff: 30 * time.Second}
	return b
}

// WithExpectedPeer pins the server to one entity ID (32 hex characters).
// An established session presenting any other verified identity is closed
// immediately and Connect fails as an untrusted peer.
func (b *ClientBuilder) WithExpectedPeer(entityID string) *ClientBuilder {
	b.expectedPeer = entityID
	return b
}

// WithLogger routes client logging through the given logger.
func (b *ClientBuilder) WithLogger(logger *slog.Logger) *ClientBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithPrometheusMetrics exports connection lifecycle metrics through the
// default Prometheus registry.
func (b *ClientBuilder) WithPrometheusMetrics() *ClientBuilder {
	b.reporter = metrics.NewPrometheusMetrics()
	return b
}

// Connect loads the trust material, performs the mutually authenticated
// handshake and returns a ready client. On any failure a classified error
// is returned and no partially usable client exists.
func (b *ClientBuilder) Connect(ctx context.Context) (*Client, error) {
	bundle, err := b.loadBundle()
	if err != nil {
		return nil, err
	}
	cred, err := b.loadCredential()
	if err != nil {
		return nil, err
	}
	endpoint, err := transport.ParseEndpoint(b.url)
	if err != nil {
		return nil, err
	}

	var pinned *domain.EntityID
	if b.expectedPeer != "" {
		id, err := domain.ParseEntityID(b.expectedPeer)
		if err != nil {
			return nil, fmt.Errorf("invalid expected peer entity ID: %w", err)
		}
		pinned = &id
	}

	manager := services.NewConnectionManager(endpoint, bundle, cred, services.ManagerOptions{
		HandshakeTimeout: b.timeout,
		Retry:            b.retry,
		ExpectedPeer:     pinned,
		Logger:           b.logger,
		Metrics:          b.reporter,
	})

	if _, err := manager.Connect(ctx); err != nil {
		return nil, err
	}

	return &Client{
		manager:      manager,
		bundle:       bundle,
		cred:         cred,
		caPath:       b.caPath,
		identityPath: b.identityPath,
		logger:       b.logger,
		pinned:       pinned,
	}, nil
}

func (b *ClientBuilder) loadBundle() (*domain.TrustBundle, error) {
	switch {
	case len(b.caPEM) > 0:
		return domain.NewTrustBundle(b.caPEM)
	case b.caPath != "":
		return domain.LoadTrustBundle(b.caPath)
	default:
		return nil, fmt.Errorf("%w: no Authly CA provided", ErrTrustMaterial)
	}
}

func (b *ClientBuilder) loadCredential() (*domain.Credential, error) {
	switch {
	case len(b.identityPEM) > 0:
		return domain.NewCredentialFromPEM(b.identityPEM)
	case b.identityPath != "":
		return domain.LoadCredential(b.identityPath)
	default:
		return nil, fmt.Errorf("%w: no identity provided", ErrCredentialLoad)
	}
}
