package transport

import (
	"net"
	"net/url"

	apperrors "github.com/authly/authly-go/internal/core/errors"
)

// defaultPort is used when the Authly URL does not name one.
const defaultPort = "443"

// Endpoint is the parsed target of a connection attempt.
type Endpoint struct {
	host string
	port string
}

// ParseEndpoint parses and validates an Authly server URL. Only https is
// accepted: transport encryption is unconditional.
func ParseEndpoint(rawURL string) (*Endpoint, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "endpoint URL does not parse", err)
	}
	if u.Scheme != "https" {
		return nil, apperrors.Newf(apperrors.KindTransport,
			"endpoint scheme %q is not supported, only https", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, apperrors.Newf(apperrors.KindTransport, "endpoint URL has no host")
	}

	port := u.Port()
	if port == "" {
		port = defaultPort
	}
	return &Endpoint{host: u.Hostname(), port: port}, nil
}

// Host returns the endpoint host name or address.
func (e *Endpoint) Host() string {
	return e.host
}

// Addr returns the dialable host:port address.
func (e *Endpoint) Addr() string {
	return net.JoinHostPort(e.host, e.port)
}

func (e *Endpoint) String() string {
	return e.Addr()
}
