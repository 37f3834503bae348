package api

import (
	"context"
	stdjson "encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/klauspost/compress/gzip"

	"github.com/kwsg/marketplace-backend/internal/audit"
	"github.com/kwsg/marketplace-backend/internal/auth"
	"github.com/kwsg/marketplace-backend/internal/catalog"
)

// Server is the HTTP API server.
type Server struct {
	codes          *auth.CodeService
	gateway        auth.FederatedGateway
	googleVerifier *auth.GoogleTokenVerifier
	materializer   *auth.Materializer
	guard          *auth.Guard
	content        catalog.ContentStore
	humaAPI        huma.API
}

// NewServer creates a new API server.
func NewServer(materializer *auth.Materializer, guard *auth.Guard, opts ...ServerOption) *Server {
	s := &Server{
		materializer: materializer,
		guard:        guard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServerOption configures the API server.
type ServerOption func(*Server)

// WithCodeService enables the one-time emailed code sign-in path.
func WithCodeService(cs *auth.CodeService) ServerOption {
	return func(s *Server) { s.codes = cs }
}

// WithFederatedGateway enables the federated OAuth sign-in path.
func WithFederatedGateway(g auth.FederatedGateway) ServerOption {
	return func(s *Server) { s.gateway = g }
}

// WithGoogleTokenVerifier enables the direct Google ID token exchange used
// by native clients.
func WithGoogleTokenVerifier(v *auth.GoogleTokenVerifier) ServerOption {
	return func(s *Server) { s.googleVerifier = v }
}

// WithContentStore sets the remote vendor/studio record store for the
// administrative CRUD routes.
func WithContentStore(cs catalog.ContentStore) ServerOption {
	return func(s *Server) { s.content = cs }
}

// humaJSONFormat uses stdlib encoding/json for huma request/response serialization.
var humaJSONFormat = huma.Format{
	Marshal: func(w io.Writer, v any) error {
		return stdjson.NewEncoder(w).Encode(v)
	},
	Unmarshal: stdjson.Unmarshal,
}

// newHumaConfig creates the huma configuration for the API.
func newHumaConfig() huma.Config {
	registry := huma.NewMapRegistry("#/components/schemas/", huma.DefaultSchemaNamer)
	config := huma.Config{
		OpenAPI: &huma.OpenAPI{
			OpenAPI: "3.1.0",
			Info: &huma.Info{
				Title:   "Marketplace Backend API",
				Version: "0.1.0",
			},
			Components: &huma.Components{
				Schemas: registry,
			},
		},
		OpenAPIPath:   "",
		DocsPath:      "",
		SchemasPath:   "",
		Formats:       map[string]huma.Format{"application/json": humaJSONFormat, "json": humaJSONFormat},
		DefaultFormat: "application/json",
	}
	config.AllowAdditionalPropertiesByDefault = true
	config.FieldsOptionalByDefault = true
	return config
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Router returns the configured HTTP handler with all endpoints.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", MetricsHandler())

	// Public huma routes (no auth).
	publicAPI := humago.New(mux, newHumaConfig())
	publicAPI.UseMiddleware(metricsHumaMiddleware)
	s.registerPublicRoutes(publicAPI)
	s.registerAuthRoutes(publicAPI)
	s.registerSessionRoutes(publicAPI)

	// Browser OAuth redirect routes (plain handlers, not JSON).
	if s.gateway != nil {
		s.registerFederatedLogin(mux)
	}

	// Admin-guarded API routes.
	adminAPI := humago.New(mux, newHumaConfig())
	adminAPI.UseMiddleware(metricsHumaMiddleware)
	adminAPI.UseMiddleware(s.adminGuardMiddleware(adminAPI))
	adminAPI.UseMiddleware(auditHumaMiddleware)
	s.humaAPI = adminAPI
	if s.content != nil {
		s.registerAdminVendors(adminAPI)
		s.registerAdminStudios(adminAPI)
	}

	// HTTP-level middleware (outermost applied last).
	var handler http.Handler = mux
	handler = gzipDecompressor(handler)
	handler = requestLogger(handler)
	handler = recoverer(handler)
	handler = realIP(handler)
	return handler
}

// registerPublicRoutes registers unauthenticated huma operations.
func (s *Server) registerPublicRoutes(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
		out := &HealthCheckOutput{}
		out.Body.Status = "ok"
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "getOpenAPISpec",
		Method:      http.MethodGet,
		Path:        "/api/openapi",
		Tags:        []string{"Meta"},
	}, func(ctx context.Context, input *struct{}) (*huma.StreamResponse, error) {
		return &huma.StreamResponse{
			Body: func(ctx huma.Context) {
				ctx.SetHeader("Content-Type", "application/json")
				if s.humaAPI != nil {
					// 3.0.3 downgrade for the widest tooling compatibility.
					data, _ := s.humaAPI.OpenAPI().Downgrade()
					_, _ = ctx.BodyWriter().Write(data)
				} else {
					_, _ = ctx.BodyWriter().Write([]byte(`{}`))
				}
			},
		}, nil
	})
}

// bearerToken extracts the token from a "Bearer ..." Authorization header.
func bearerToken(header string) string {
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// adminGuardMiddleware authenticates the request's claims and requires the
// admin role before any administrative operation runs.
func (s *Server) adminGuardMiddleware(api huma.API) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		identity, err := s.guard.Authenticate(
			ctx.Context(),
			bearerToken(ctx.Header("Authorization")),
			ctx.Header("X-Marketplace-Email"),
			ctx.Header("X-Marketplace-Role"),
		)
		if err != nil || s.guard.RequireAdmin(identity) != nil {
			actor := "anonymous"
			role := ""
			if identity != nil {
				actor = identity.Email
				role = string(identity.Role)
			}
			audit.Event{
				Actor:    actor,
				Action:   ctx.Operation().OperationID,
				Status:   "denied",
				Method:   ctx.Method(),
				Resource: ctx.Operation().Path,
				Role:     role,
				Reason:   "missing or insufficient authorization claim",
				IP:       ctx.RemoteAddr(),
			}.Warn("Audit Log: Access Denied")
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(huma.WithContext(ctx, auth.WithIdentity(ctx.Context(), identity)))
	}
}

// auditHumaMiddleware logs structured audit entries for state-mutating
// administrative operations. Runs after the guard, so identity is set.
func auditHumaMiddleware(ctx huma.Context, next func(huma.Context)) {
	next(ctx)

	method := ctx.Method()
	if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
		return
	}

	actor := "unknown"
	if identity := auth.IdentityFromContext(ctx.Context()); identity != nil {
		actor = identity.Email
	}

	status := ctx.Status()
	if status == 0 {
		status = 200
	}

	e := audit.Event{
		Actor:      actor,
		Action:     ctx.Operation().OperationID,
		Method:     method,
		Resource:   ctx.Operation().Path,
		HTTPStatus: status,
		IP:         ctx.RemoteAddr(),
	}
	if status >= 400 {
		e.Warn("Audit Log: Admin Request")
	} else {
		e.Info("Audit Log: Admin Request")
	}
}

// metricsHumaMiddleware records Prometheus metrics for each huma request using
// the operation path as the route label for clean, low-cardinality metrics.
func metricsHumaMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	next(ctx)
	elapsed := time.Since(start)

	route := ctx.Operation().Path
	status := ctx.Status()
	if status == 0 {
		status = 200
	}

	httpRequestsTotal.WithLabelValues(ctx.Method(), route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(ctx.Method(), route).Observe(elapsed.Seconds())
}

// requestLogger logs each HTTP request with method, path, status, and latency.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"latency", time.Since(start),
		)
	})
}

// realIP extracts the real client IP from X-Real-Ip or X-Forwarded-For headers.
func realIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rip := r.Header.Get("X-Real-Ip"); rip != "" {
			r.RemoteAddr = rip
		} else if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if i := strings.IndexByte(xff, ','); i > 0 {
				r.RemoteAddr = strings.TrimSpace(xff[:i])
			} else {
				r.RemoteAddr = xff
			}
		}
		next.ServeHTTP(w, r)
	})
}

// recoverer recovers from panics and returns a 500 Internal Server Error.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				slog.Error("panic recovered", "error", rvr, "method", r.Method, "path", r.URL.Path)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// gzipDecompressor transparently decompresses gzip request bodies.
func gzipDecompressor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Encoding") == "gzip" {
			gz, err := gzip.NewReader(r.Body)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_ = stdjson.NewEncoder(w).Encode(map[string]any{
					"code":  http.StatusBadRequest,
					"error": "invalid gzip body",
				})
				return
			}
			r.Body = io.NopCloser(gz)
			r.Header.Del("Content-Encoding")
		}
		next.ServeHTTP(w, r)
	})
}
