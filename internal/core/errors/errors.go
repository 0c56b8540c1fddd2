// Package errors defines the classified error types surfaced by the Authly client.
package errors

import (
	"errors"
	"fmt"
)

// Kind identifies the failure class of a connection or session error.
// Callers branch on Kind to decide between reconnecting (transient) and
// reconfiguring (bad trust material or credentials).
type Kind string

const (
	// KindTrustMaterial indicates the CA trust-anchor source could not be
	// read or parsed. Not retriable without operator intervention.
	KindTrustMaterial Kind = "TRUST_MATERIAL"

	// KindCredentialLoad indicates the identity credential source could not
	// be read or parsed. Not retriable without operator intervention.
	KindCredentialLoad Kind = "CREDENTIAL_LOAD"

	// KindKeyMismatch indicates the credential private key does not match
	// the public key embedded in the leaf certificate.
	KindKeyMismatch Kind = "KEY_MISMATCH"

	// KindTransport indicates the underlying byte stream could not be
	// opened or broke before the handshake completed. Retriable.
	KindTransport Kind = "TRANSPORT"

	// KindUntrustedPeer indicates the peer chain does not resolve to a
	// configured trust anchor, or pinning rejected the verified identity.
	KindUntrustedPeer Kind = "UNTRUSTED_PEER"

	// KindExpiredCertificate indicates a certificate outside its validity
	// window, on either side of the handshake.
	KindExpiredCertificate Kind = "EXPIRED_CERTIFICATE"

	// KindMalformedChain indicates the peer chain is structurally invalid.
	KindMalformedChain Kind = "MALFORMED_CHAIN"

	// KindSigning indicates the credential key could not complete the
	// handshake proof-of-possession signature.
	KindSigning Kind = "SIGNING"

	// KindTimeout indicates the handshake deadline expired. Retriable.
	KindTimeout Kind = "TIMEOUT"

	// KindChannelClosed indicates an established session was torn down.
	// Distinct from handshake-phase failures: configuration is not suspect.
	KindChannelClosed Kind = "CHANNEL_CLOSED"

	// KindProtocolViolation indicates malformed framing on an established
	// session.
	KindProtocolViolation Kind = "PROTOCOL_VIOLATION"

	// KindAccessToken indicates an access token failed decoding or
	// signature verification.
	KindAccessToken Kind = "INVALID_ACCESS_TOKEN"
)

// ConnectionError is the classified error type for every failure the client
// surfaces. It wraps the underlying cause and carries a stable Kind.
type ConnectionError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is matches two ConnectionErrors by Kind, so sentinel values of each kind
// work with errors.Is regardless of message and cause.
func (e *ConnectionError) Is(target error) bool {
	var other *ConnectionError
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// New creates a classified error with a cause. A nil cause is allowed.
func New(kind Kind, message string, err error) *ConnectionError {
	return &ConnectionError{Kind: kind, Message: message, Err: err}
}

// Newf creates a classified error without a cause, formatting the message.
func Newf(kind Kind, format string, args ...any) *ConnectionError {
	return &ConnectionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind of a classified error, or empty string if err is
// not a ConnectionError.
func KindOf(err error) Kind {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retriable reports whether the failure class is worth retrying with the
// same configuration. Verification and loading failures are never retried.
func Retriable(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindTimeout, KindChannelClosed:
		return true
	default:
		return false
	}
}
