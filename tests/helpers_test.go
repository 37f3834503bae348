package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kwsg/marketplace-backend/internal/api"
	"github.com/kwsg/marketplace-backend/internal/auth"
	"github.com/kwsg/marketplace-backend/internal/catalog"
	"github.com/kwsg/marketplace-backend/internal/storage"
)

const (
	testAdminEmail   = "ops@marketplace.example"
	testRealtorEmail = "agent@kwsingapore.com"
)

// testMailer captures issued verification codes instead of sending mail.
type testMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func newTestMailer() *testMailer {
	return &testMailer{codes: make(map[string]string)}
}

func (m *testMailer) SendCode(_ context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[email] = code
	return nil
}

func (m *testMailer) codeFor(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

// stubVerifier resolves canned ID tokens for the federated gateway.
type stubVerifier struct {
	claims map[string]map[string]any
}

func (v *stubVerifier) Verify(_ context.Context, rawIDToken string) (map[string]any, error) {
	claims, ok := v.claims[rawIDToken]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return claims, nil
}

// memContentStore is an in-memory vendor/studio store for admin CRUD tests.
type memContentStore struct {
	mu      sync.Mutex
	nextID  int
	vendors map[string]catalog.Vendor
	studios map[string]catalog.Studio
}

func newMemContentStore() *memContentStore {
	return &memContentStore{
		vendors: make(map[string]catalog.Vendor),
		studios: make(map[string]catalog.Studio),
	}
}

func (s *memContentStore) ListVendors(context.Context) ([]catalog.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Vendor, 0, len(s.vendors))
	for _, v := range s.vendors {
		out = append(out, v)
	}
	return out, nil
}

func (s *memContentStore) GetVendor(_ context.Context, id string) (*catalog.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vendors[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &v, nil
}

func (s *memContentStore) SaveVendor(_ context.Context, v *catalog.Vendor) (*catalog.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == "" {
		s.nextID++
		v.ID = fmt.Sprintf("vendor-%d", s.nextID)
	}
	s.vendors[v.ID] = *v
	return v, nil
}

func (s *memContentStore) DeleteVendor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vendors[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(s.vendors, id)
	return nil
}

func (s *memContentStore) ListStudios(context.Context) ([]catalog.Studio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Studio, 0, len(s.studios))
	for _, st := range s.studios {
		out = append(out, st)
	}
	return out, nil
}

func (s *memContentStore) GetStudio(_ context.Context, id string) (*catalog.Studio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.studios[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &st, nil
}

func (s *memContentStore) SaveStudio(_ context.Context, st *catalog.Studio) (*catalog.Studio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == "" {
		s.nextID++
		st.ID = fmt.Sprintf("studio-%d", s.nextID)
	}
	s.studios[st.ID] = *st
	return st, nil
}

func (s *memContentStore) DeleteStudio(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.studios[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(s.studios, id)
	return nil
}

// testBackend holds a running marketplace server for integration tests.
type testBackend struct {
	URL          string
	mailer       *testMailer
	server       *http.Server
	store        *storage.SQLiteStore
	materializer *auth.Materializer
}

func testPolicy(t *testing.T) *auth.AccessPolicy {
	t.Helper()
	policy, err := auth.NewAccessPolicy(testAdminEmail, []auth.RealtorDomain{
		{Domain: "kwsingapore.com", Company: "KW Singapore"},
	}, auth.RoleClient)
	if err != nil {
		t.Fatalf("NewAccessPolicy: %v", err)
	}
	return policy
}

// startBackend starts a fresh server on a random port with the verification
// code path, a stubbed federated gateway, and an in-memory content store.
func startBackend(t *testing.T) *testBackend {
	t.Helper()

	policy := testPolicy(t)

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	signer, err := auth.NewTokenSigner(bytes.Repeat([]byte("t"), 32))
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	materializer := auth.NewMaterializer(signer, store, time.Hour)
	guard, err := auth.NewGuard(signer, store, 64, false)
	if err != nil {
		t.Fatalf("failed to create guard: %v", err)
	}

	mailer := newTestMailer()
	codeStore := auth.NewMemoryCodeStore(0)
	t.Cleanup(codeStore.Close)
	codeService := auth.NewCodeService(policy, codeStore, mailer, time.Minute)

	gateway := auth.NewTestFederatedGateway(auth.OIDCConfig{ClientID: "test-client"}, policy, &stubVerifier{
		claims: map[string]map[string]any{
			"id-token-admin": {
				"email":          testAdminEmail,
				"email_verified": true,
				"name":           "Ops Admin",
				"sub":            "sub-admin",
			},
			"id-token-realtor": {
				"email":          testRealtorEmail,
				"email_verified": true,
				"name":           "Agent Tan",
				"sub":            "sub-realtor",
			},
			"id-token-unlisted": {
				"email":          "buyer@gmail.com",
				"email_verified": true,
				"sub":            "sub-buyer",
			},
		},
	})

	srv := api.NewServer(materializer, guard,
		api.WithCodeService(codeService),
		api.WithFederatedGateway(gateway),
		api.WithContentStore(newMemContentStore()),
	)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	httpServer := &http.Server{Handler: srv.Router(), ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = httpServer.Serve(listener) }()

	tb := &testBackend{
		URL:          fmt.Sprintf("http://%s", listener.Addr()),
		mailer:       mailer,
		server:       httpServer,
		store:        store,
		materializer: materializer,
	}
	t.Cleanup(func() {
		_ = httpServer.Close()
		_ = store.Close()
	})
	return tb
}

// doJSON issues a request with an optional JSON body and bearer token, and
// decodes the JSON response into out (when non-nil).
func (tb *testBackend) doJSON(t *testing.T, method, path string, body any, token string, out any) int {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, tb.URL+path, reqBody)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("decode response %q: %v", data, err)
		}
	}
	return resp.StatusCode
}

type sessionResponse struct {
	Success bool `json:"success"`
	User    struct {
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
		Role        string `json:"role"`
		Company     string `json:"company"`
	} `json:"user"`
	Session struct {
		ID        string `json:"id"`
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expiresAt"`
	} `json:"session"`
}

// mintSession materializes a session directly, bypassing the HTTP sign-in
// paths, for tests that only need a bearer token of a given role.
func (tb *testBackend) mintSession(t *testing.T, email string, role auth.Role) *auth.Session {
	t.Helper()
	session, err := tb.materializer.Materialize(context.Background(), &auth.FederatedSignIn{
		Identity: auth.Identity{Email: email, Role: role},
	})
	if err != nil {
		t.Fatalf("mint session: %v", err)
	}
	return session
}

// signInWithCode walks the full code path and returns the session response.
func (tb *testBackend) signInWithCode(t *testing.T, email string) sessionResponse {
	t.Helper()

	status := tb.doJSON(t, http.MethodPost, "/api/auth/code", map[string]string{"email": email}, "", nil)
	if status != http.StatusOK {
		t.Fatalf("issue code: status %d", status)
	}

	code := tb.mailer.codeFor(email)
	if code == "" {
		t.Fatalf("no code captured for %s", email)
	}

	var out sessionResponse
	status = tb.doJSON(t, http.MethodPost, "/api/auth/code/verify",
		map[string]string{"email": email, "code": code}, "", &out)
	if status != http.StatusOK {
		t.Fatalf("verify code: status %d", status)
	}
	return out
}
