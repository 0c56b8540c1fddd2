// Package authly is the Go client for services interfacing with an Authly
// endpoint. A service authenticates itself with its identity credential (a
// private key and certificate issued by the Authly local CA) over mutually
// authenticated TLS, verifies the server against the same CA, and keeps an
// authenticated session for subsequent requests.
//
// Typical use:
//
//	client, err := authly.NewClient().
//		WithURL("https://localhost:1443").
//		WithAuthlyCAPath("local.crt").
//		WithIdentityPath("identity.pem").
//		Connect(ctx)
//	if err != nil {
//		// err is one of the classified error values in this package
//	}
//	defer client.Close()
//
// Inside an Authly-managed environment the trust material sits at well-known
// paths and FromEnvironment picks everything up:
//
//	client, err := authly.NewClient().FromEnvironment().Connect(ctx)
package authly

import (
	"github.com/authly/authly-go/internal/core/domain"
)

// Identity is the verified identity of a service, as extracted from its
// certificate during the handshake.
type Identity struct {
	// EntityID is the 128-bit Authly entity identifier in hex form.
	EntityID string
	// CommonName is the label the service was registered under.
	CommonName string
}

func identityFromDomain(id *domain.ServiceIdentity) Identity {
	if id == nil {
		return Identity{}
	}
	return Identity{
		EntityID:   id.EntityID().String(),
		CommonName: id.CommonName(),
	}
}

// String renders the identity for logs.
func (i Identity) String() string {
	if i.CommonName == "" {
		return i.EntityID
	}
	return i.CommonName + " (" + i.EntityID + ")"
}
