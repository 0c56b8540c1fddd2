package domain_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authly/authly-go/internal/core/domain"
)

func TestValidateAuthlyURL(t *testing.T) {
	t.Parallel()

	v := domain.NewValidator()

	tests := []struct {
		name  string
		value string
		valid bool
	}{
		{"https with host", "https://authly", true},
		{"https with port", "https://authly.internal:8443", true},
		{"plain http", "http://authly", false},
		{"no host", "https://", false},
		{"garbage", "://nope", false},
		{"empty passes through", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := v.ValidateVar(tt.value, "authly_url")
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateEntityID(t *testing.T) {
	t.Parallel()

	v := domain.NewValidator()

	assert.NoError(t, v.ValidateVar(testEntityID, "entity_id"))
	assert.NoError(t, v.ValidateVar("", "entity_id"))
	assert.Error(t, v.ValidateVar("too-short", "entity_id"))
	assert.Error(t, v.ValidateVar("zz16ee64920e2e77843accb2ab4fcc3f", "entity_id"))
}

func TestValidateFileExists(t *testing.T) {
	t.Parallel()

	v := domain.NewValidator()

	dir := t.TempDir()
	path := filepath.Join(dir, "present.pem")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	assert.NoError(t, v.ValidateVar(path, "file_exists"))
	assert.NoError(t, v.ValidateVar("", "file_exists"))
	assert.Error(t, v.ValidateVar(filepath.Join(dir, "absent.pem"), "file_exists"))
	assert.Error(t, v.ValidateVar(dir, "file_exists"), "directories do not count")
}

func TestValidateDuration(t *testing.T) {
	t.Parallel()

	v := domain.NewValidator()

	assert.NoError(t, v.ValidateVar("10s", "duration"))
	assert.NoError(t, v.ValidateVar("", "duration"))
	assert.Error(t, v.ValidateVar("soon", "duration"))
	assert.Error(t, v.ValidateVar("-5s", "duration"))
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()

	v := domain.NewValidator()

	type settings struct {
		URL  string `validate:"required,authly_url"`
		Peer string `validate:"omitempty,entity_id"`
	}

	assert.NoError(t, v.Validate(settings{URL: "https://authly", Peer: testEntityID}))
	assert.Error(t, v.Validate(settings{URL: ""}))
	assert.Error(t, v.Validate(settings{URL: "https://authly", Peer: "bogus"}))
}
