package domain

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	apperrors "github.com/authly/authly-go/internal/core/errors"
)

// TrustBundle holds the Authly CA trust anchors peer chains are verified
// against. It is immutable after construction and safe to share across
// concurrent handshake attempts. Rotation replaces the whole bundle, it is
// never mutated in place.
type TrustBundle struct {
	anchors []*x509.Certificate
	pool    *x509.CertPool
}

// LoadTrustBundle reads one or more PEM-encoded CA certificates from a file.
func LoadTrustBundle(path string) (*TrustBundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.New(apperrors.KindTrustMaterial,
			fmt.Sprintf("cannot read trust anchor file %q", path), err)
	}
	return NewTrustBundle(raw)
}

// NewTrustBundle parses one or more PEM-encoded CA certificates from bytes.
// The bundle must be non-empty and every entry must parse.
func NewTrustBundle(pemBytes []byte) (*TrustBundle, error) {
	var anchors []*x509.Certificate
	rest := pemBytes
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, apperrors.New(apperrors.KindTrustMaterial,
				"trust anchor does not parse as a certificate", err)
		}
		anchors = append(anchors, cert)
	}

	if len(anchors) == 0 {
		return nil, apperrors.Newf(apperrors.KindTrustMaterial,
			"trust anchor source contains no certificates")
	}

	pool := x509.NewCertPool()
	for _, anchor := range anchors {
		pool.AddCert(anchor)
	}

	return &TrustBundle{anchors: anchors, pool: pool}, nil
}

// Anchors returns the parsed trust anchor certificates in load order.
func (tb *TrustBundle) Anchors() []*x509.Certificate {
	out := make([]*x509.Certificate, len(tb.anchors))
	copy(out, tb.anchors)
	return out
}

// CertPool returns a pool containing the trust anchors, for use as
// tls.Config RootCAs or ClientCAs.
func (tb *TrustBundle) CertPool() *x509.CertPool {
	return tb.pool.Clone()
}

// PrimaryAnchor returns the first trust anchor. The Authly local CA is the
// first entry of the bundle; its public key also verifies access tokens.
func (tb *TrustBundle) PrimaryAnchor() *x509.Certificate {
	return tb.anchors[0]
}

// VerifyRawChain parses a leaf-first DER chain as presented during a TLS
// handshake and verifies it. This is the shape tls.Config.VerifyPeerCertificate
// hands over.
func (tb *TrustBundle) VerifyRawChain(rawCerts [][]byte, now time.Time) (*ServiceIdentity, error) {
	if len(rawCerts) == 0 {
		return nil, apperrors.Newf(apperrors.KindMalformedChain, "peer presented an empty certificate chain")
	}
	chain := make([]*x509.Certificate, 0, len(rawCerts))
	for i, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return nil, apperrors.New(apperrors.KindMalformedChain,
				fmt.Sprintf("peer chain certificate %d does not parse", i), err)
		}
		chain = append(chain, cert)
	}
	return tb.VerifyChain(chain, now)
}

// VerifyChain validates a leaf-first peer chain: the chain must terminate at
// a trust anchor, every certificate must be inside its validity window, and
// the signature linkage must hold. On success the verified service identity
// of the leaf is returned. Failures are classified as UNTRUSTED_PEER,
// EXPIRED_CERTIFICATE or MALFORMED_CHAIN.
func (tb *TrustBundle) VerifyChain(chain []*x509.Certificate, now time.Time) (*ServiceIdentity, error) {
	if len(chain) == 0 {
		return nil, apperrors.Newf(apperrors.KindMalformedChain, "peer presented an empty certificate chain")
	}
	leaf := chain[0]

	// Checked explicitly before x509.Verify so expiry is reported as its
	// own kind rather than folded into a generic verification failure.
	if now.Before(leaf.NotBefore) {
		return nil, apperrors.Newf(apperrors.KindExpiredCertificate,
			"peer certificate is not yet valid (not before %s)", leaf.NotBefore.Format(time.RFC3339))
	}
	if now.After(leaf.NotAfter) {
		return nil, apperrors.Newf(apperrors.KindExpiredCertificate,
			"peer certificate has expired (not after %s)", leaf.NotAfter.Format(time.RFC3339))
	}

	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}

	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:         tb.pool,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, classifyVerifyError(err)
	}

	identity, err := IdentityFromCertificate(leaf)
	if err != nil {
		return nil, apperrors.New(apperrors.KindMalformedChain,
			"verified peer certificate carries no service identity", err)
	}
	return identity, nil
}

func classifyVerifyError(err error) error {
	switch verr := err.(type) {
	case x509.UnknownAuthorityError:
		return apperrors.New(apperrors.KindUntrustedPeer,
			"peer chain does not resolve to a configured trust anchor", err)
	case x509.CertificateInvalidError:
		if verr.Reason == x509.Expired {
			return apperrors.New(apperrors.KindExpiredCertificate,
				"peer chain contains an expired certificate", err)
		}
		return apperrors.New(apperrors.KindMalformedChain, "peer chain is invalid", err)
	default:
		return apperrors.New(apperrors.KindMalformedChain, "peer chain verification failed", err)
	}
}
