package authly

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/authly/authly-go/internal/transport"
)

// TransportCredentials returns gRPC transport credentials carrying the
// client's identity and peer verification, for services whose higher-level
// API to Authly-protected peers is gRPC. The credentials apply the same
// chain verification and identity pinning as Connect.
func (c *Client) TransportCredentials() credentials.TransportCredentials {
	c.mu.Lock()
	bundle, cred, pinned := c.bundle, c.cred, c.pinned
	c.mu.Unlock()

	return credentials.NewTLS(transport.ClientTLSConfig(bundle, cred, pinned))
}

// GRPCDialOption returns a dial option wiring TransportCredentials into a
// grpc.NewClient call.
func (c *Client) GRPCDialOption() grpc.DialOption {
	return grpc.WithTransportCredentials(c.TransportCredentials())
}
