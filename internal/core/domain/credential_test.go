package domain_test

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authly/authly-go/internal/core/domain"
	apperrors "github.com/authly/authly-go/internal/core/errors"
	"github.com/authly/authly-go/internal/testcerts"
)

func TestNewCredentialFromPEM(t *testing.T) {
	t.Parallel()

	ca := testcerts.NewCA(t, "Authly Local CA")

	t.Run("certificate then key", func(t *testing.T) {
		t.Parallel()
		issued := ca.Issue(t, "inventory", testcerts.IssueOptions{EntityID: testEntityID})

		cred, err := domain.NewCredentialFromPEM(issued.PEM)
		require.NoError(t, err)
		assert.Equal(t, "inventory", cred.Leaf().Subject.CommonName)
		require.NotNil(t, cred.Identity())
		assert.Equal(t, testEntityID, cred.Identity().EntityID().String())
	})

	t.Run("key then certificate", func(t *testing.T) {
		t.Parallel()
		issued := ca.Issue(t, "inventory", testcerts.IssueOptions{EntityID: testEntityID})
		reordered := append(append([]byte{}, issued.KeyPEM...), issued.CertPEM...)

		cred, err := domain.NewCredentialFromPEM(reordered)
		require.NoError(t, err)
		assert.Equal(t, "inventory", cred.Leaf().Subject.CommonName)
	})

	t.Run("no identity attribute", func(t *testing.T) {
		t.Parallel()
		issued := ca.Issue(t, "plain", testcerts.IssueOptions{})

		cred, err := domain.NewCredentialFromPEM(issued.PEM)
		require.NoError(t, err)
		assert.Nil(t, cred.Identity())
	})

	t.Run("missing key", func(t *testing.T) {
		t.Parallel()
		issued := ca.Issue(t, "inventory", testcerts.IssueOptions{EntityID: testEntityID})

		_, err := domain.NewCredentialFromPEM(issued.CertPEM)
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindCredentialLoad))
	})

	t.Run("missing certificate", func(t *testing.T) {
		t.Parallel()
		issued := ca.Issue(t, "inventory", testcerts.IssueOptions{EntityID: testEntityID})

		_, err := domain.NewCredentialFromPEM(issued.KeyPEM)
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindCredentialLoad))
	})

	t.Run("key mismatch", func(t *testing.T) {
		t.Parallel()
		issued := ca.Issue(t, "inventory", testcerts.IssueOptions{EntityID: testEntityID})
		other := ca.Issue(t, "intruder", testcerts.IssueOptions{EntityID: testEntityID})
		mixed := append(append([]byte{}, issued.CertPEM...), other.KeyPEM...)

		_, err := domain.NewCredentialFromPEM(mixed)
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindKeyMismatch), "got %v", err)
	})

	t.Run("two keys", func(t *testing.T) {
		t.Parallel()
		issued := ca.Issue(t, "inventory", testcerts.IssueOptions{EntityID: testEntityID})
		doubled := append(append([]byte{}, issued.PEM...), issued.KeyPEM...)

		_, err := domain.NewCredentialFromPEM(doubled)
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindCredentialLoad))
	})

	t.Run("expired at load", func(t *testing.T) {
		t.Parallel()
		issued := ca.Issue(t, "stale", testcerts.IssueOptions{
			EntityID:  testEntityID,
			NotBefore: time.Now().Add(-2 * time.Hour),
			NotAfter:  time.Now().Add(-time.Hour),
		})

		_, err := domain.NewCredentialFromPEM(issued.PEM)
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindExpiredCertificate), "got %v", err)
	})
}

func TestLoadCredential(t *testing.T) {
	t.Parallel()

	ca := testcerts.NewCA(t, "Authly Local CA")
	issued := ca.Issue(t, "inventory", testcerts.IssueOptions{EntityID: testEntityID})

	dir := t.TempDir()
	path := filepath.Join(dir, "identity.pem")
	require.NoError(t, os.WriteFile(path, issued.PEM, 0o600))

	cred, err := domain.LoadCredential(path)
	require.NoError(t, err)
	assert.Equal(t, "inventory", cred.Leaf().Subject.CommonName)

	_, err = domain.LoadCredential(filepath.Join(dir, "missing.pem"))
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindCredentialLoad))
}

func TestLoadCredentialPair(t *testing.T) {
	t.Parallel()

	ca := testcerts.NewCA(t, "Authly Local CA")
	issued := ca.Issue(t, "inventory", testcerts.IssueOptions{EntityID: testEntityID})

	dir := t.TempDir()
	certPath := filepath.Join(dir, "identity.crt")
	keyPath := filepath.Join(dir, "identity.key")
	require.NoError(t, os.WriteFile(certPath, issued.CertPEM, 0o600))
	require.NoError(t, os.WriteFile(keyPath, issued.KeyPEM, 0o600))

	cred, err := domain.LoadCredentialPair(certPath, keyPath)
	require.NoError(t, err)
	assert.Equal(t, "inventory", cred.Leaf().Subject.CommonName)

	_, err = domain.LoadCredentialPair(certPath, filepath.Join(dir, "missing.key"))
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindCredentialLoad))
}

func TestCredentialValidityWindow(t *testing.T) {
	t.Parallel()

	ca := testcerts.NewCA(t, "Authly Local CA")
	notAfter := time.Now().Add(30 * time.Minute)
	issued := ca.Issue(t, "inventory", testcerts.IssueOptions{
		EntityID: testEntityID,
		NotAfter: notAfter,
	})

	cred, err := domain.NewCredentialFromPEM(issued.PEM)
	require.NoError(t, err)

	assert.True(t, cred.Expiry().Equal(issued.Cert.NotAfter))
	assert.True(t, cred.ExpiresWithin(time.Hour))
	assert.False(t, cred.ExpiresWithin(time.Minute))

	assert.NoError(t, cred.CheckValidity(time.Now()))

	err = cred.CheckValidity(notAfter.Add(time.Minute))
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindExpiredCertificate))

	err = cred.CheckValidity(time.Now().Add(-time.Hour))
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindExpiredCertificate))
}

func TestCredentialSign(t *testing.T) {
	t.Parallel()

	ca := testcerts.NewCA(t, "Authly Local CA")
	issued := ca.Issue(t, "inventory", testcerts.IssueOptions{EntityID: testEntityID})

	cred, err := domain.NewCredentialFromPEM(issued.PEM)
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("handshake transcript"))
	sig, err := cred.Sign(rand.Reader, digest[:], crypto.SHA256)
	require.NoError(t, err)

	pub, ok := cred.Public().(*ecdsa.PublicKey)
	require.True(t, ok)
	assert.True(t, ecdsa.VerifyASN1(pub, digest[:], sig))
}

func TestCredentialTLSCertificate(t *testing.T) {
	t.Parallel()

	ca := testcerts.NewCA(t, "Authly Local CA")
	issued := ca.Issue(t, "inventory", testcerts.IssueOptions{EntityID: testEntityID})

	cred, err := domain.NewCredentialFromPEM(issued.PEM)
	require.NoError(t, err)

	tlsCert := cred.TLSCertificate()
	require.Len(t, tlsCert.Certificate, 1)
	assert.Equal(t, issued.Cert.Raw, tlsCert.Certificate[0])
	assert.Equal(t, cred.Leaf(), tlsCert.Leaf)
	assert.Same(t, cred, tlsCert.PrivateKey)
}
