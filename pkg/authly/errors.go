package authly

import (
	apperrors "github.com/authly/authly-go/internal/core/errors"
)

// Sentinel errors for programmatic handling with errors.Is. Every error the
// client returns matches exactly one of these by failure class; messages and
// wrapped causes carry the detail.
var (
	// ErrTrustMaterial: the CA trust-anchor source is unreadable, empty or
	// unparseable. Fix the configuration; retrying cannot help.
	ErrTrustMaterial error = apperrors.Newf(apperrors.KindTrustMaterial, "trust material error")

	// ErrCredentialLoad: the identity credential source is unreadable or
	// unparseable. Fix the configuration; retrying cannot help.
	ErrCredentialLoad error = apperrors.Newf(apperrors.KindCredentialLoad, "credential load error")

	// ErrKeyMismatch: the credential private key does not match the leaf
	// certificate public key. Detected before any network I/O.
	ErrKeyMismatch error = apperrors.Newf(apperrors.KindKeyMismatch, "key mismatch")

	// ErrTransport: the underlying byte stream could not be opened or broke
	// during the handshake. Retriable.
	ErrTransport error = apperrors.Newf(apperrors.KindTransport, "transport error")

	// ErrUntrustedPeer: the server chain does not resolve to a configured
	// trust anchor, or identity pinning rejected the verified peer.
	ErrUntrustedPeer error = apperrors.Newf(apperrors.KindUntrustedPeer, "untrusted peer")

	// ErrExpiredCertificate: a certificate on either side is outside its
	// validity window.
	ErrExpiredCertificate error = apperrors.Newf(apperrors.KindExpiredCertificate, "expired certificate")

	// ErrMalformedChain: the peer chain is structurally invalid.
	ErrMalformedChain error = apperrors.Newf(apperrors.KindMalformedChain, "malformed chain")

	// ErrSigning: the credential key could not produce the handshake
	// proof-of-possession.
	ErrSigning error = apperrors.Newf(apperrors.KindSigning, "signing error")

	// ErrTimeout: the handshake deadline expired. Retriable.
	ErrTimeout error = apperrors.Newf(apperrors.KindTimeout, "timeout")

	// ErrChannelClosed: an established session was torn down. Transient;
	// the trust configuration is not suspect.
	ErrChannelClosed error = apperrors.Newf(apperrors.KindChannelClosed, "channel closed")

	// ErrProtocolViolation: malformed framing on an established session.
	ErrProtocolViolation error = apperrors.Newf(apperrors.KindProtocolViolation, "protocol violation")

	// ErrInvalidAccessToken: an access token failed decoding or signature
	// verification.
	ErrInvalidAccessToken error = apperrors.Newf(apperrors.KindAccessToken, "invalid access token")
)

// Retriable reports whether err represents a transient failure worth
// retrying with unchanged configuration.
func Retriable(err error) bool {
	return apperrors.Retriable(err)
}
