package domain

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"time"

	apperrors "github.com/authly/authly-go/internal/core/errors"
)

// Credential is the local service identity: a private key paired with its
// leaf certificate and optional intermediates. The key never leaves the
// credential; the handshake proof-of-possession goes through Sign.
//
// Credential implements crypto.Signer so it can be handed to the TLS stack
// directly as the private key of its own tls.Certificate.
type Credential struct {
	key      crypto.Signer
	leaf     *x509.Certificate
	chain    []*x509.Certificate // leaf first
	rawChain [][]byte            // DER, leaf first
	identity *ServiceIdentity
}

// LoadCredential reads an Authly identity PEM file containing the leaf
// certificate, optional intermediates and the private key.
func LoadCredential(path string) (*Credential, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.New(apperrors.KindCredentialLoad,
			fmt.Sprintf("cannot read identity file %q", path), err)
	}
	return NewCredentialFromPEM(raw)
}

// LoadCredentialPair reads the certificate chain and private key from
// separate PEM files.
func LoadCredentialPair(certPath, keyPath string) (*Credential, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, apperrors.New(apperrors.KindCredentialLoad,
			fmt.Sprintf("cannot read certificate file %q", certPath), err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, apperrors.New(apperrors.KindCredentialLoad,
			fmt.Sprintf("cannot read key file %q", keyPath), err)
	}
	return NewCredentialFromPEM(append(append([]byte{}, certPEM...), keyPEM...))
}

// NewCredentialFromPEM parses a credential from PEM bytes holding at least
// one certificate and exactly one private key, in any block order.
func NewCredentialFromPEM(pemBytes []byte) (*Credential, error) {
	var (
		chain    []*x509.Certificate
		rawChain [][]byte
		key      crypto.Signer
	)

	rest := pemBytes
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, apperrors.New(apperrors.KindCredentialLoad,
					"identity certificate does not parse", err)
			}
			chain = append(chain, cert)
			rawChain = append(rawChain, block.Bytes)
		case "PRIVATE KEY", "EC PRIVATE KEY", "RSA PRIVATE KEY":
			if key != nil {
				return nil, apperrors.Newf(apperrors.KindCredentialLoad,
					"identity contains more than one private key")
			}
			parsed, err := parsePrivateKey(block)
			if err != nil {
				return nil, apperrors.New(apperrors.KindCredentialLoad,
					"identity private key does not parse", err)
			}
			key = parsed
		}
	}

	if len(chain) == 0 {
		return nil, apperrors.Newf(apperrors.KindCredentialLoad, "identity contains no certificate")
	}
	if key == nil {
		return nil, apperrors.Newf(apperrors.KindCredentialLoad, "identity contains no private key")
	}

	leaf := chain[0]

	matcher, ok := leaf.PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !matcher.Equal(key.Public()) {
		return nil, apperrors.Newf(apperrors.KindKeyMismatch,
			"private key does not match the certificate public key")
	}

	cred := &Credential{
		key:      key,
		leaf:     leaf,
		chain:    chain,
		rawChain: rawChain,
	}
	if err := cred.CheckValidity(time.Now()); err != nil {
		return nil, err
	}

	// Identity extraction is best effort at load time: a credential issued
	// without an entity ID still works for the handshake, the server side
	// rejects it there.
	cred.identity, _ = IdentityFromCertificate(leaf)

	return cred, nil
}

func parsePrivateKey(block *pem.Block) (crypto.Signer, error) {
	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	default:
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := parsed.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("private key type %T cannot sign", parsed)
		}
		return signer, nil
	}
}

// Leaf returns the leaf certificate.
func (c *Credential) Leaf() *x509.Certificate {
	return c.leaf
}

// Identity returns the service identity embedded in the leaf certificate,
// or nil if the certificate carries none.
func (c *Credential) Identity() *ServiceIdentity {
	return c.identity
}

// Expiry returns the not-after time of the leaf certificate, for proactive
// rotation checks before handshake-time rejection.
func (c *Credential) Expiry() time.Time {
	return c.leaf.NotAfter
}

// ExpiresWithin reports whether the credential expires within d of now.
func (c *Credential) ExpiresWithin(d time.Duration) bool {
	return time.Now().Add(d).After(c.leaf.NotAfter)
}

// CheckValidity verifies the leaf certificate validity window at the given
// instant. Checked at load time and again at handshake time.
func (c *Credential) CheckValidity(now time.Time) error {
	if now.Before(c.leaf.NotBefore) {
		return apperrors.Newf(apperrors.KindExpiredCertificate,
			"identity certificate is not yet valid (not before %s)", c.leaf.NotBefore.Format(time.RFC3339))
	}
	if now.After(c.leaf.NotAfter) {
		return apperrors.Newf(apperrors.KindExpiredCertificate,
			"identity certificate has expired (not after %s)", c.leaf.NotAfter.Format(time.RFC3339))
	}
	return nil
}

// Public implements crypto.Signer.
func (c *Credential) Public() crypto.PublicKey {
	return c.key.Public()
}

// Sign implements crypto.Signer. The TLS handshake calls this to produce the
// CertificateVerify proof-of-possession; failures are reported as SIGNING
// errors.
func (c *Credential) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	sig, err := c.key.Sign(rand, digest, opts)
	if err != nil {
		return nil, apperrors.New(apperrors.KindSigning, "identity key signing operation failed", err)
	}
	return sig, nil
}

// TLSCertificate returns the credential as a tls.Certificate presenting the
// full chain, with the credential itself as the signing key.
func (c *Credential) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: c.rawChain,
		PrivateKey:  c,
		Leaf:        c.leaf,
	}
}
