package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kwsg/marketplace-backend/internal/storage"
)

// Session is the externally visible projection of an Identity, retained by
// the client and re-presented on every request. Its role does not change
// until a new authentication event.
type Session struct {
	ID          string
	Email       string
	DisplayName string
	Role        Role
	Company     string
	Token       string // signed bearer token carrying the claims
	ExpiresAt   time.Time
}

// Identity returns the session's identity projection.
func (s *Session) Identity() *Identity {
	return &Identity{
		Email:       s.Email,
		DisplayName: s.DisplayName,
		Role:        s.Role,
		Company:     s.Company,
	}
}

// SignInSource is the tagged union of the two sign-in paths. Both converge
// on Materializer.Materialize so the session shape is produced in exactly
// one place.
type SignInSource interface {
	signInIdentity() Identity
	signInPath() string
}

func (f *FederatedSignIn) signInIdentity() Identity { return f.Identity }
func (f *FederatedSignIn) signInPath() string       { return "federated" }

// CodeSignIn wraps an identity produced by the verification-code path.
type CodeSignIn struct {
	Identity Identity
}

func (c CodeSignIn) signInIdentity() Identity { return c.Identity }
func (c CodeSignIn) signInPath() string       { return "code" }

// DefaultSessionTTL is how long a materialized session stays valid before
// the user must re-authenticate.
const DefaultSessionTTL = 24 * time.Hour

// Materializer normalizes either sign-in path into the canonical Session
// and persists a durable record of it so a restarted process can
// reconstruct identity from a presented token.
type Materializer struct {
	signer   *TokenSigner
	sessions storage.SessionStore
	ttl      time.Duration
}

// NewMaterializer creates a materializer. A zero ttl falls back to
// DefaultSessionTTL.
func NewMaterializer(signer *TokenSigner, sessions storage.SessionStore, ttl time.Duration) *Materializer {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Materializer{signer: signer, sessions: sessions, ttl: ttl}
}

// Materialize produces the canonical session for a sign-in event: a fresh
// session ID, a signed token carrying the identity claims, and a durable
// record keyed by the token's hash.
func (m *Materializer) Materialize(ctx context.Context, src SignInSource) (*Session, error) {
	id := src.signInIdentity()
	session := &Session{
		ID:          uuid.NewString(),
		Email:       id.Email,
		DisplayName: id.DisplayName,
		Role:        id.Role,
		Company:     id.Company,
		ExpiresAt:   time.Now().Add(m.ttl),
	}

	token, err := m.signer.Sign(session)
	if err != nil {
		return nil, err
	}
	session.Token = token

	rec := &storage.SessionRecord{
		ID:          session.ID,
		TokenHash:   HashToken(token),
		Email:       session.Email,
		DisplayName: session.DisplayName,
		Role:        string(session.Role),
		Company:     session.Company,
		SignInPath:  src.signInPath(),
		CreatedAt:   time.Now(),
		ExpiresAt:   session.ExpiresAt,
	}
	if err := m.sessions.CreateSession(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	slog.Info("session materialized",
		"session_id", session.ID,
		"email", session.Email,
		"role", session.Role,
		"path", src.signInPath(),
	)
	return session, nil
}

// Reconstruct rebuilds a session for a presented token. When live federated
// provider state is available it wins over the stored record, so a role
// revoked server-side never survives through the cached fallback; the
// record only fills in when the provider has not resolved yet.
func (m *Materializer) Reconstruct(ctx context.Context, token string, live *FederatedSignIn) (*Session, error) {
	claims, err := m.signer.Verify(token)
	if err != nil {
		return nil, err
	}

	if live != nil {
		// Live state takes precedence: re-derive everything from the
		// provider, keeping only the session identity.
		return &Session{
			ID:          claims.Subject,
			Email:       live.Identity.Email,
			DisplayName: live.Identity.DisplayName,
			Role:        live.Identity.Role,
			Company:     live.Identity.Company,
			Token:       token,
			ExpiresAt:   claims.ExpiresAt.Time,
		}, nil
	}

	rec, err := m.sessions.GetSession(ctx, HashToken(token))
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if rec == nil {
		return nil, ErrSessionRevoked
	}
	if time.Now().After(rec.ExpiresAt) {
		return nil, ErrSessionRevoked
	}

	role, err := ParseRole(rec.Role)
	if err != nil {
		return nil, fmt.Errorf("stored session has %w", err)
	}
	return &Session{
		ID:          rec.ID,
		Email:       rec.Email,
		DisplayName: rec.DisplayName,
		Role:        role,
		Company:     rec.Company,
		Token:       token,
		ExpiresAt:   rec.ExpiresAt,
	}, nil
}

// Revoke removes the durable record for a presented token (sign-out).
func (m *Materializer) Revoke(ctx context.Context, token string) error {
	return m.sessions.DeleteSession(ctx, HashToken(token))
}
