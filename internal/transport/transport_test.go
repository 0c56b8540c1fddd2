package transport

import (
	"crypto/tls"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/authly/authly-go/internal/core/domain"
	"github.com/authly/authly-go/internal/testcerts"
)

const (
	serverEntityID = "3b1f6f79e2ab4d0f9f31c5a8f7f0aa01"
	clientEntityID = "9d5f19c27e564de1b0a38e2f4c6d7702"
)

// testStack is the full fixture for transport tests: a trust bundle and an
// identity on each side of the channel, all issued by one throwaway CA.
type testStack struct {
	ca         *testcerts.CA
	bundle     *domain.TrustBundle
	serverCred *domain.Credential
	clientCred *domain.Credential
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	ca := testcerts.NewCA(t, "Authly Local CA")
	bundle, err := domain.NewTrustBundle(ca.PEM)
	require.NoError(t, err)

	serverCred, err := domain.NewCredentialFromPEM(
		ca.Issue(t, "authly-server", testcerts.IssueOptions{EntityID: serverEntityID}).PEM)
	require.NoError(t, err)

	clientCred, err := domain.NewCredentialFromPEM(
		ca.Issue(t, "inventory", testcerts.IssueOptions{EntityID: clientEntityID}).PEM)
	require.NoError(t, err)

	return &testStack{ca: ca, bundle: bundle, serverCred: serverCred, clientCred: clientCred}
}

// startServer runs a loopback server on an ephemeral port and returns the
// endpoint to dial it.
func (ts *testStack) startServer(t *testing.T, handler Handler) (*Server, *Endpoint) {
	t.Helper()

	srv := NewServer(ts.bundle, ts.serverCred, handler, slog.Default())
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	t.Cleanup(func() { _ = srv.Close() })

	ep, err := ParseEndpoint("https://" + srv.Addr().String())
	require.NoError(t, err)
	return srv, ep
}

// newSessionPair builds a Session over an in-memory pipe with a scripted far
// end, for driving protocol misbehavior the real server never produces. The
// returned server conn is handshaken and ready for frame I/O.
func newSessionPair(t *testing.T, ts *testStack) (*Session, *tls.Conn) {
	t.Helper()

	clientRaw, serverRaw := net.Pipe()

	serverConn := tls.Server(serverRaw, &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{ts.serverCred.TLSCertificate()},
	})
	serverErr := make(chan error, 1)
	go func() { serverErr <- serverConn.Handshake() }()

	clientConn := tls.Client(clientRaw, &tls.Config{
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
	})
	require.NoError(t, clientConn.Handshake())
	require.NoError(t, <-serverErr)

	t.Cleanup(func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
	})

	peer, err := domain.IdentityFromCertificate(ts.serverCred.Leaf())
	require.NoError(t, err)

	return newSession(clientConn, peer, slog.Default()), serverConn
}
