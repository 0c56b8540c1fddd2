package authly

import (
	"crypto/ecdsa"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/authly/authly-go/internal/core/errors"
)

// AccessTokenClaims are the verified claims of an Authly access token. The
// token subject is the entity ID of the authenticated entity, usually a
// user of the system rather than a service.
type AccessTokenClaims struct {
	jwt.RegisteredClaims

	// Scope lists the granted authority scopes.
	Scope []string `json:"scope,omitempty"`
}

// AccessToken is a verified access token in both encoded and decoded form.
type AccessToken struct {
	// Token is the access token in compact JWT form.
	Token string
	// Claims are the decoded, signature-verified claims.
	Claims AccessTokenClaims
}

// EntityID returns the entity the token was issued to.
func (t *AccessToken) EntityID() string {
	return t.Claims.Subject
}

// DecodeAccessToken decodes and verifies an Authly access token. Tokens are
// ES256 JWTs signed with the key of the Authly local CA, so the CA
// certificate in the trust bundle is the verification key.
func (c *Client) DecodeAccessToken(token string) (*AccessToken, error) {
	c.mu.Lock()
	anchor := c.bundle.PrimaryAnchor()
	c.mu.Unlock()

	publicKey, ok := anchor.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, apperrors.Newf(apperrors.KindAccessToken,
			"trust anchor key type %T cannot verify ES256 tokens", anchor.PublicKey)
	}

	var claims AccessTokenClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return publicKey, nil },
		jwt.WithValidMethods([]string{"ES256"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, apperrors.New(apperrors.KindAccessToken, "access token verification failed", err)
	}

	return &AccessToken{Token: token, Claims: claims}, nil
}
