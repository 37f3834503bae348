package storage

import (
	"context"
	"time"
)

// SessionRecord is the server-side durable projection of a materialized
// session. It lets a restarted process reconstruct identity from a
// presented token before the federated provider's own state resolves.
type SessionRecord struct {
	ID          string // session UUID
	TokenHash   string // SHA-256 hex of the signed session token
	Email       string
	DisplayName string
	Role        string
	Company     string
	SignInPath  string // "federated" or "code"
	CreatedAt   time.Time
	LastSeenAt  *time.Time
	ExpiresAt   time.Time
}

// SessionStore persists session records.
type SessionStore interface {
	Close() error

	CreateSession(ctx context.Context, rec *SessionRecord) error
	// GetSession returns nil, nil when no record exists for the hash.
	GetSession(ctx context.Context, tokenHash string) (*SessionRecord, error)
	TouchSession(ctx context.Context, tokenHash string) error
	DeleteSession(ctx context.Context, tokenHash string) error
	// PurgeExpiredSessions removes records past their expiry, returning the
	// number removed.
	PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
