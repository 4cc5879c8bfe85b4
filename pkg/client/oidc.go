package client

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCConfig holds OpenID Connect issuer settings.
type OIDCConfig struct {
	IssuerURL string // e.g. https://keycloak.example.com/realms/gridsuite
	ClientID  string // expected audience; empty skips the audience check
}

// Identity is the user a verified token belongs to.
type Identity struct {
	Subject   string
	Username  string
	Email     string
	Issuer    string
	ExpiresAt time.Time
}

// TokenVerifier checks bearer tokens against an OpenID Connect issuer
// before they are sent to the directory server.
type TokenVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewTokenVerifier discovers the issuer configuration. Returns nil if
// IssuerURL is empty (verification disabled).
func NewTokenVerifier(ctx context.Context, cfg OIDCConfig) (*TokenVerifier, error) {
	if cfg.IssuerURL == "" {
		return nil, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider init: %w", err)
	}

	return &TokenVerifier{
		verifier: provider.Verifier(&oidc.Config{
			ClientID:          cfg.ClientID,
			SkipClientIDCheck: cfg.ClientID == "",
		}),
	}, nil
}

// Verify checks signature, issuer, audience and expiry of a token.
func (v *TokenVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}

	var claims struct {
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse oidc claims: %w", err)
	}

	// preferred_username, then email, then sub
	username := claims.PreferredUsername
	if username == "" {
		username = claims.Email
	}
	if username == "" {
		username = idToken.Subject
	}

	return &Identity{
		Subject:   idToken.Subject,
		Username:  username,
		Email:     claims.Email,
		Issuer:    idToken.Issuer,
		ExpiresAt: idToken.Expiry,
	}, nil
}
