package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kwsg/marketplace-backend/internal/storage"
)

// memSessionStore is an in-memory storage.SessionStore for tests.
type memSessionStore struct {
	mu      sync.Mutex
	records map[string]*storage.SessionRecord
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{records: make(map[string]*storage.SessionRecord)}
}

func (s *memSessionStore) Close() error { return nil }

func (s *memSessionStore) CreateSession(_ context.Context, rec *storage.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.TokenHash] = &cp
	return nil
}

func (s *memSessionStore) GetSession(_ context.Context, tokenHash string) (*storage.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[tokenHash]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *memSessionStore) TouchSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[tokenHash]; ok {
		now := time.Now()
		rec.LastSeenAt = &now
	}
	return nil
}

func (s *memSessionStore) DeleteSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, tokenHash)
	return nil
}

func (s *memSessionStore) PurgeExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, rec := range s.records {
		if now.After(rec.ExpiresAt) {
			delete(s.records, hash)
			n++
		}
	}
	return n, nil
}

func newTestMaterializer(t *testing.T) (*Materializer, *memSessionStore) {
	t.Helper()
	store := newMemSessionStore()
	return NewMaterializer(mustNewSigner(t), store, time.Hour), store
}

func TestMaterializeCodeSignIn(t *testing.T) {
	m, store := newTestMaterializer(t)
	ctx := context.Background()

	session, err := m.Materialize(ctx, CodeSignIn{Identity: Identity{
		Email:       "agent@kwsingapore.com",
		DisplayName: "Agent",
		Role:        RoleRealtor,
		Company:     "KW Singapore",
	}})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if session.ID == "" || session.Token == "" {
		t.Fatal("session missing ID or token")
	}
	if session.Role != RoleRealtor {
		t.Fatalf("role = %s, want realtor", session.Role)
	}

	rec, err := store.GetSession(ctx, HashToken(session.Token))
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if rec == nil {
		t.Fatal("no durable record created")
	}
	if rec.SignInPath != "code" {
		t.Fatalf("sign-in path = %q, want code", rec.SignInPath)
	}
	if rec.Company != "KW Singapore" {
		t.Fatalf("company = %q", rec.Company)
	}
}

func TestMaterializeFederatedSignIn(t *testing.T) {
	m, store := newTestMaterializer(t)
	ctx := context.Background()

	session, err := m.Materialize(ctx, &FederatedSignIn{
		Identity: Identity{Email: "ops@marketplace.example", Role: RoleAdmin},
		Subject:  "google-sub-1",
	})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	rec, err := store.GetSession(ctx, HashToken(session.Token))
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if rec == nil {
		t.Fatal("no durable record created")
	}
	if rec.SignInPath != "federated" {
		t.Fatalf("sign-in path = %q, want federated", rec.SignInPath)
	}
}

func TestMaterializeBothPathsSameShape(t *testing.T) {
	m, _ := newTestMaterializer(t)
	ctx := context.Background()
	id := Identity{Email: "agent@kwsingapore.com", Role: RoleRealtor, Company: "KW Singapore"}

	fromCode, err := m.Materialize(ctx, CodeSignIn{Identity: id})
	if err != nil {
		t.Fatalf("Materialize code: %v", err)
	}
	fromFederated, err := m.Materialize(ctx, &FederatedSignIn{Identity: id})
	if err != nil {
		t.Fatalf("Materialize federated: %v", err)
	}

	// Same identity through either path yields the same session projection.
	if *fromCode.Identity() != *fromFederated.Identity() {
		t.Fatalf("identity mismatch: %+v vs %+v", fromCode.Identity(), fromFederated.Identity())
	}
}

func TestReconstructFromStore(t *testing.T) {
	m, _ := newTestMaterializer(t)
	ctx := context.Background()

	created, err := m.Materialize(ctx, CodeSignIn{Identity: Identity{
		Email:   "agent@kwsingapore.com",
		Role:    RoleRealtor,
		Company: "KW Singapore",
	}})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	rebuilt, err := m.Reconstruct(ctx, created.Token, nil)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if rebuilt.ID != created.ID {
		t.Fatalf("ID = %q, want %q", rebuilt.ID, created.ID)
	}
	if rebuilt.Role != RoleRealtor || rebuilt.Company != "KW Singapore" {
		t.Fatalf("unexpected rebuilt session: %+v", rebuilt)
	}
}

func TestReconstructLiveStateWins(t *testing.T) {
	m, _ := newTestMaterializer(t)
	ctx := context.Background()

	created, err := m.Materialize(ctx, &FederatedSignIn{
		Identity: Identity{Email: "agent@kwsingapore.com", Role: RoleRealtor, Company: "KW Singapore"},
	})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	// The provider now reports a downgraded role; it must override the record.
	live := &FederatedSignIn{Identity: Identity{Email: "agent@kwsingapore.com", Role: RoleClient}}
	rebuilt, err := m.Reconstruct(ctx, created.Token, live)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if rebuilt.Role != RoleClient {
		t.Fatalf("role = %s, want client from live state", rebuilt.Role)
	}
}

func TestReconstructRevoked(t *testing.T) {
	m, _ := newTestMaterializer(t)
	ctx := context.Background()

	created, err := m.Materialize(ctx, CodeSignIn{Identity: Identity{
		Email: "agent@kwsingapore.com",
		Role:  RoleRealtor,
	}})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if err := m.Revoke(ctx, created.Token); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	if _, err := m.Reconstruct(ctx, created.Token, nil); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestReconstructGarbageToken(t *testing.T) {
	m, _ := newTestMaterializer(t)
	if _, err := m.Reconstruct(context.Background(), "not-a-token", nil); err == nil {
		t.Fatal("expected error for garbage token")
	}
}
