package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCConfig holds configuration for the federated sign-in gateway.
type OIDCConfig struct {
	ClientID     string
	ProviderName string   // display name for login UI (e.g. "Google", "SSO")
	Scopes       []string // additional scopes beyond "openid" (default: ["profile", "email"])
}

func (c OIDCConfig) scopes() []string {
	scopes := []string{oidc.ScopeOpenID}
	if len(c.Scopes) > 0 {
		scopes = append(scopes, c.Scopes...)
	} else {
		scopes = append(scopes, "profile", "email")
	}
	return scopes
}

// FederatedSignIn is the result of a successful federated exchange: the
// enriched identity plus the provider-issued material the application keeps
// opaque beyond subject/role extraction.
type FederatedSignIn struct {
	Identity Identity
	Subject  string // provider subject ("sub" claim)
	IDToken  string // raw provider ID token
}

// CodeExchangeResult contains tokens from an authorization code exchange.
type CodeExchangeResult struct {
	IDToken      string
	RefreshToken string //nolint:gosec // field name, not a credential
}

// FederatedGateway abstracts the OAuth/OIDC sign-in flow: the authorization
// redirect, the code exchange, and ID token validation with the sign-in
// policy gate and role enrichment applied.
type FederatedGateway interface {
	// Exchange validates a raw ID token, applies the sign-in policy, and
	// returns the enriched sign-in result.
	Exchange(ctx context.Context, rawIDToken string) (*FederatedSignIn, error)
	// AuthCodeURL builds the provider's authorization URL. Returns the URL
	// and a crypto-random nonce that must be stored and validated in
	// ExchangeCode to prevent ID token replay.
	AuthCodeURL(redirectURI, state string) (authURL, nonce string)
	// ExchangeCode exchanges an authorization code for tokens, verifying
	// the nonce claim against expectedNonce.
	ExchangeCode(ctx context.Context, code, redirectURI, expectedNonce string) (*CodeExchangeResult, error)
	// Config returns the gateway's configuration.
	Config() OIDCConfig
}

// ErrSignInNotPermitted is returned when the sign-in policy gate rejects an
// email.
var ErrSignInNotPermitted = errors.New("sign-in not permitted for this account")

// oidcVerifier abstracts ID token verification for both production and tests.
type oidcVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (claims map[string]any, err error)
}

// goOIDCVerifier wraps go-oidc's IDTokenVerifier.
type goOIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func (v *goOIDCVerifier) Verify(ctx context.Context, rawIDToken string) (map[string]any, error) {
	token, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, err
	}
	var claims map[string]any
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("extract claims: %w", err)
	}
	return claims, nil
}

// federatedGateway is the production implementation using go-oidc/v3 + oauth2.
type federatedGateway struct {
	config       OIDCConfig
	policy       *AccessPolicy
	verifier     oidcVerifier
	oauth2Config oauth2.Config
}

// NewFederatedGateway creates a gateway using go-oidc discovery against the
// given issuer.
func NewFederatedGateway(ctx context.Context, config OIDCConfig, policy *AccessPolicy, issuer, clientSecret string) (FederatedGateway, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %s: %w", issuer, err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: config.ClientID})

	return &federatedGateway{
		config:   config,
		policy:   policy,
		verifier: &goOIDCVerifier{verifier: verifier},
		oauth2Config: oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: clientSecret,
			Endpoint:     provider.Endpoint(),
			Scopes:       config.scopes(),
		},
	}, nil
}

// NewGoogleFederatedGateway creates a Google-flavored gateway with the
// issuer fixed to accounts.google.com.
func NewGoogleFederatedGateway(ctx context.Context, config OIDCConfig, policy *AccessPolicy, clientSecret string) (FederatedGateway, error) {
	if config.ProviderName == "" {
		config.ProviderName = "Google"
	}
	return NewFederatedGateway(ctx, config, policy, "https://accounts.google.com", clientSecret)
}

// TestIDTokenVerifier abstracts ID token verification for tests.
type TestIDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (claims map[string]any, err error)
}

// NewTestFederatedGateway creates a gateway with an injected verifier for
// testing. Uses Google endpoints so redirect URL construction still works.
func NewTestFederatedGateway(config OIDCConfig, policy *AccessPolicy, verifier TestIDTokenVerifier) FederatedGateway {
	return &federatedGateway{
		config:   config,
		policy:   policy,
		verifier: verifier,
		oauth2Config: oauth2.Config{
			ClientID: config.ClientID,
			Endpoint: oauth2.Endpoint{ //nolint:gosec // test-only Google endpoints, not credentials
				AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
				TokenURL: "https://oauth2.googleapis.com/token",
			},
			Scopes: config.scopes(),
		},
	}
}

// Exchange validates a raw ID token, gates it against the sign-in policy,
// and stamps the derived role onto the resulting identity.
func (g *federatedGateway) Exchange(ctx context.Context, rawIDToken string) (*FederatedSignIn, error) {
	claims, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("invalid ID token: %w", err)
	}

	email, _ := claims["email"].(string)
	if email == "" {
		return nil, errors.New("ID token missing email claim")
	}

	if emailVerified, ok := claims["email_verified"]; ok {
		if verified, isBool := emailVerified.(bool); isBool && !verified {
			slog.Warn("sign-in rejected: email not verified", "email", email)
			return nil, errors.New("email not verified")
		}
	}

	if !g.policy.SignInAllowed(email) {
		slog.Warn("sign-in rejected by policy", "email", email)
		return nil, ErrSignInNotPermitted
	}

	displayName, _ := claims["name"].(string)
	if displayName == "" {
		displayName = displayNameFromEmail(email)
	}
	subject, _ := claims["sub"].(string)

	slog.Debug("federated ID token validated", "email", email, "provider", g.config.ProviderName)

	return &FederatedSignIn{
		Identity: Identity{
			Email:       email,
			DisplayName: displayName,
			Role:        g.policy.DeriveRole(email),
			Company:     g.policy.CompanyFor(email),
		},
		Subject: subject,
		IDToken: rawIDToken,
	}, nil
}

// AuthCodeURL builds the provider's authorization URL with a fresh nonce.
func (g *federatedGateway) AuthCodeURL(redirectURI, state string) (string, string) {
	nonce := generateOIDCNonce()
	cfg := g.oauth2Config
	cfg.RedirectURL = redirectURI
	url := cfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("prompt", "select_account"),
		oauth2.SetAuthURLParam("nonce", nonce),
	)
	return url, nonce
}

// generateOIDCNonce generates a 32-byte crypto-random hex nonce.
func generateOIDCNonce() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// Should never fail; if it does, nonce validation fails downstream.
		return ""
	}
	return hex.EncodeToString(b)
}

// ExchangeCode exchanges an authorization code for tokens and validates the
// nonce claim in the ID token against the expected value.
func (g *federatedGateway) ExchangeCode(ctx context.Context, code, redirectURI, expectedNonce string) (*CodeExchangeResult, error) {
	cfg := g.oauth2Config
	cfg.RedirectURL = redirectURI

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}

	idToken, ok := token.Extra("id_token").(string)
	if !ok || idToken == "" {
		return nil, errors.New("no id_token in code exchange response")
	}

	if expectedNonce != "" {
		claims, err := g.verifier.Verify(ctx, idToken)
		if err != nil {
			return nil, fmt.Errorf("nonce verification: ID token invalid: %w", err)
		}
		tokenNonce, _ := claims["nonce"].(string)
		if tokenNonce == "" {
			return nil, errors.New("ID token missing nonce claim")
		}
		if subtle.ConstantTimeCompare([]byte(expectedNonce), []byte(tokenNonce)) != 1 {
			return nil, errors.New("ID token nonce mismatch")
		}
	}

	return &CodeExchangeResult{
		IDToken:      idToken,
		RefreshToken: token.RefreshToken,
	}, nil
}

// Config returns the gateway's configuration.
func (g *federatedGateway) Config() OIDCConfig {
	return g.config
}
