package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Environment variables force these tests to run serially.

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultURL, cfg.URL)
	assert.Equal(t, DefaultCACertPath, cfg.CAPath)
	assert.Equal(t, DefaultIdentityPath, cfg.IdentityPath)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 0, cfg.RetryAttempts)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.Empty(t, cfg.ExpectedPeer)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authly.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
url: https://authly.internal:8443
ca_path: /opt/authly/ca.crt
identity_path: /opt/authly/identity.pem
connect_timeout: 5s
retry_attempts: 3
retry_backoff: 250ms
expected_peer: 3b1f6f79e2ab4d0f9f31c5a8f7f0aa01
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://authly.internal:8443", cfg.URL)
	assert.Equal(t, "/opt/authly/ca.crt", cfg.CAPath)
	assert.Equal(t, "/opt/authly/identity.pem", cfg.IdentityPath)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, "3b1f6f79e2ab4d0f9f31c5a8f7f0aa01", cfg.ExpectedPeer)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("AUTHLY_URL", "https://authly.example:9443")
	t.Setenv("AUTHLY_CONNECT_TIMEOUT", "3s")
	t.Setenv("AUTHLY_RETRY_ATTEMPTS", "2")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://authly.example:9443", cfg.URL)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 2, cfg.RetryAttempts)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authly.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: https://from-file\n"), 0o600))

	t.Setenv("AUTHLY_URL", "https://from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://from-env", cfg.URL)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"http url", map[string]string{"AUTHLY_URL": "http://authly"}},
		{"url without host", map[string]string{"AUTHLY_URL": "https://"}},
		{"retry attempts over limit", map[string]string{"AUTHLY_RETRY_ATTEMPTS": "11"}},
		{"malformed expected peer", map[string]string{"AUTHLY_EXPECTED_PEER": "not-an-entity-id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading configuration file")
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: [unclosed\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
