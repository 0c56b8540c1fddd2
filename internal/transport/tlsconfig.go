package transport

import (
	"crypto/tls"
	"crypto/x509"
	"time"

	"github.com/authly/authly-go/internal/core/domain"
	apperrors "github.com/authly/authly-go/internal/core/errors"
)

// ClientTLSConfig builds a client TLS configuration applying the same peer
// verification as the handshake engine, for transports that own their dial
// loop (the gRPC credentials bridge). expected, when non-nil, pins the
// verified peer to a single entity ID.
func ClientTLSConfig(bundle *domain.TrustBundle, cred *domain.Credential, expected *domain.EntityID) *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			identity, err := bundle.VerifyRawChain(rawCerts, time.Now())
			if err != nil {
				return err
			}
			if expected != nil && identity.EntityID() != *expected {
				return apperrors.Newf(apperrors.KindUntrustedPeer,
					"peer identity %s does not match pinned entity %s", identity, expected)
			}
			return nil
		},
		GetClientCertificate: func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
			if err := cred.CheckValidity(time.Now()); err != nil {
				return nil, err
			}
			cert := cred.TLSCertificate()
			return &cert, nil
		},
	}
}
