// Package config loads client configuration from the environment and an
// optional configuration file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/authly/authly-go/internal/core/domain"
)

// Well-known locations for Authly trust material, matching the paths the
// server mounts into service containers.
const (
	DefaultURL          = "https://authly"
	DefaultCACertPath   = "/etc/authly/certs/local.crt"
	DefaultIdentityPath = "/etc/authly/identity/identity.pem"
)

const envPrefix = "AUTHLY"

// Config is the client configuration surface. Every field can come from the
// environment (AUTHLY_URL, AUTHLY_CA_PATH, ...) or a YAML file.
type Config struct {
	// URL of the Authly endpoint. Only https is accepted.
	URL string `mapstructure:"url" validate:"required,authly_url"`

	// CAPath is the trust-anchor certificate file.
	CAPath string `mapstructure:"ca_path" validate:"required"`

	// IdentityPath is the identity credential PEM (certificate + key).
	IdentityPath string `mapstructure:"identity_path" validate:"required"`

	// ConnectTimeout bounds each handshake attempt.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// RetryAttempts is the number of automatic retries after a retriable
	// failure. Default 0: no automatic retry.
	RetryAttempts int `mapstructure:"retry_attempts" validate:"gte=0,lte=10"`

	// RetryBackoff is the initial retry delay, doubling per attempt.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`

	// ExpectedPeer optionally pins the server entity ID (32 hex chars).
	ExpectedPeer string `mapstructure:"expected_peer" validate:"omitempty,entity_id"`
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and AUTHLY_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("url", DefaultURL)
	v.SetDefault("ca_path", DefaultCACertPath)
	v.SetDefault("identity_path", DefaultIdentityPath)
	v.SetDefault("connect_timeout", "10s")
	v.SetDefault("retry_attempts", 0)
	v.SetDefault("retry_backoff", "1s")
	v.SetDefault("expected_peer", "")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading configuration file %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	if err := domain.NewValidator().Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
