package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer is the "iss" claim stamped on every session token.
const tokenIssuer = "marketplace-backend"

// SessionClaims are the identity claims carried by a signed session token.
// The signature binds them to a server-issued session, so a client cannot
// grant itself a role by editing headers.
type SessionClaims struct {
	Email       string `json:"email"`
	DisplayName string `json:"name,omitempty"`
	Role        string `json:"role"`
	Company     string `json:"company,omitempty"`
	jwt.RegisteredClaims
}

// TokenSigner mints and verifies HMAC-signed session tokens.
type TokenSigner struct {
	secret     []byte
	parserOpts []jwt.ParserOption
}

// NewTokenSigner creates a signer from the session signing secret.
func NewTokenSigner(secret []byte) (*TokenSigner, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session signing secret must be at least 32 bytes, got %d", len(secret))
	}
	return &TokenSigner{
		secret: secret,
		parserOpts: []jwt.ParserOption{
			jwt.WithValidMethods([]string{"HS256"}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuer(tokenIssuer),
		},
	}, nil
}

// Sign mints a session token for the session.
func (s *TokenSigner) Sign(session *Session) (string, error) {
	claims := SessionClaims{
		Email:       session.Email,
		DisplayName: session.DisplayName,
		Role:        string(session.Role),
		Company:     session.Company,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses and verifies a session token, returning its claims.
func (s *TokenSigner) Verify(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, s.parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, errors.New("invalid session token claims")
	}
	if claims.Email == "" {
		return nil, errors.New("session token missing email claim")
	}
	return claims, nil
}

// HashToken returns the SHA-256 hex digest of a token string. The hash is
// the session record's primary key so raw tokens never touch the database.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
