package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoExpiry is returned for tokens without an exp claim.
var ErrNoExpiry = errors.New("token has no expiry")

// TokenExpiry returns the exp claim of a JWT. The signature is not checked:
// the server does that, the client only needs to know when to renew.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}

// TokenExpiresWithin reports whether the client token expires within d.
// Tokens that cannot be read are reported as not expiring.
func (c *Client) TokenExpiresWithin(d time.Duration) (bool, time.Time) {
	token := c.AuthToken()
	if token == "" {
		return false, time.Time{}
	}
	exp, err := TokenExpiry(token)
	if err != nil {
		return false, time.Time{}
	}
	return time.Now().Add(d).After(exp), exp
}
