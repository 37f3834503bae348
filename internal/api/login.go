package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/kwsg/marketplace-backend/internal/audit"
	"github.com/kwsg/marketplace-backend/internal/auth"
)

const (
	stateCookie = "marketplace_oauth_state"
	nonceCookie = "marketplace_oauth_nonce"
)

// registerAuthRoutes registers the JSON sign-in endpoints: the one-time
// emailed code pair and the direct Google ID token exchange.
func (s *Server) registerAuthRoutes(api huma.API) {
	if s.codes != nil {
		huma.Register(api, huma.Operation{
			OperationID:   "issueVerificationCode",
			Method:        http.MethodPost,
			Path:          "/api/auth/code",
			Tags:          []string{"Auth"},
			DefaultStatus: http.StatusOK,
		}, s.handleIssueCode)

		huma.Register(api, huma.Operation{
			OperationID:   "verifyCode",
			Method:        http.MethodPost,
			Path:          "/api/auth/code/verify",
			Tags:          []string{"Auth"},
			DefaultStatus: http.StatusOK,
		}, s.handleVerifyCode)
	}

	if s.googleVerifier != nil {
		huma.Register(api, huma.Operation{
			OperationID:   "googleTokenExchange",
			Method:        http.MethodPost,
			Path:          "/api/auth/google",
			Tags:          []string{"Auth"},
			DefaultStatus: http.StatusOK,
		}, s.handleGoogleExchange)
	}
}

func (s *Server) handleIssueCode(ctx context.Context, input *IssueCodeInput) (*IssueCodeOutput, error) {
	email := input.Body.Email
	if email == "" {
		return nil, huma.NewError(http.StatusBadRequest, "email is required")
	}

	if err := s.codes.IssueCode(ctx, email); err != nil {
		signInsTotal.WithLabelValues("code", "rejected").Inc()
		audit.Event{
			Actor:      email,
			Action:     "issueVerificationCode",
			Status:     "denied",
			SignInPath: "code",
			Reason:     err.Error(),
		}.Warn("Audit Log: Sign-In Denied")
		return nil, authStatusError(err)
	}

	codesIssuedTotal.Inc()
	out := &IssueCodeOutput{}
	out.Body.Success = true
	return out, nil
}

func (s *Server) handleVerifyCode(ctx context.Context, input *VerifyCodeInput) (*VerifyCodeOutput, error) {
	email, code := input.Body.Email, input.Body.Code
	if email == "" || code == "" {
		return nil, huma.NewError(http.StatusBadRequest, "email and code are required")
	}

	identity, err := s.codes.VerifyCode(ctx, email, code)
	if err != nil {
		signInsTotal.WithLabelValues("code", "failure").Inc()
		audit.Event{
			Actor:      email,
			Action:     "verifyCode",
			Status:     "denied",
			SignInPath: "code",
			Reason:     err.Error(),
		}.Warn("Audit Log: Sign-In Denied")
		return nil, authStatusError(err)
	}

	session, err := s.materializer.Materialize(ctx, auth.CodeSignIn{Identity: *identity})
	if err != nil {
		signInsTotal.WithLabelValues("code", "error").Inc()
		return nil, authStatusError(err)
	}

	signInsTotal.WithLabelValues("code", "success").Inc()
	audit.Event{
		Actor:      session.Email,
		Action:     "verifyCode",
		Status:     "allowed",
		SignInPath: "code",
		Role:       string(session.Role),
	}.Info("Audit Log: Sign-In")

	out := &VerifyCodeOutput{}
	out.Body.Success = true
	out.Body.User = userInfo(session)
	out.Body.Session = sessionInfo(session)
	return out, nil
}

func (s *Server) handleGoogleExchange(ctx context.Context, input *GoogleTokenExchangeInput) (*GoogleTokenExchangeOutput, error) {
	if input.Body.IDToken == "" {
		return nil, huma.NewError(http.StatusBadRequest, "idToken is required")
	}

	signIn, err := s.googleVerifier.Exchange(ctx, input.Body.IDToken)
	if err != nil {
		signInsTotal.WithLabelValues("google", "failure").Inc()
		audit.Event{
			Action:     "googleTokenExchange",
			Status:     "denied",
			SignInPath: "google",
			Reason:     err.Error(),
		}.Warn("Audit Log: Sign-In Denied")
		return nil, authStatusError(err)
	}

	session, err := s.materializer.Materialize(ctx, signIn)
	if err != nil {
		signInsTotal.WithLabelValues("google", "error").Inc()
		return nil, authStatusError(err)
	}

	signInsTotal.WithLabelValues("google", "success").Inc()
	audit.Event{
		Actor:      session.Email,
		Action:     "googleTokenExchange",
		Status:     "allowed",
		SignInPath: "google",
		Role:       string(session.Role),
	}.Info("Audit Log: Sign-In")

	out := &GoogleTokenExchangeOutput{}
	out.Body.Success = true
	out.Body.User = userInfo(session)
	out.Body.Session = sessionInfo(session)
	return out, nil
}

// registerFederatedLogin registers the browser OAuth redirect pair. These are
// plain handlers because they speak redirects and cookies, not JSON.
func (s *Server) registerFederatedLogin(mux *http.ServeMux) {
	mux.HandleFunc("GET /login", s.handleLogin)
	mux.HandleFunc("GET /login/callback", s.handleLoginCallback)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	authURL, nonce := s.gateway.AuthCodeURL(s.redirectURI(r), state)

	secure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
	setLoginCookie(w, stateCookie, state, secure)
	setLoginCookie(w, nonceCookie, nonce, secure)

	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Server) handleLoginCallback(w http.ResponseWriter, r *http.Request) {
	fail := func(status int, msg string) {
		signInsTotal.WithLabelValues("federated", "failure").Inc()
		http.Error(w, msg, status)
	}

	stateParam := r.URL.Query().Get("state")
	stateCk, err := r.Cookie(stateCookie)
	if err != nil || stateParam == "" || stateParam != stateCk.Value {
		fail(http.StatusBadRequest, "state mismatch")
		return
	}
	clearLoginCookie(w, stateCookie)

	var expectedNonce string
	if nonceCk, err := r.Cookie(nonceCookie); err == nil {
		expectedNonce = nonceCk.Value
	}
	clearLoginCookie(w, nonceCookie)

	code := r.URL.Query().Get("code")
	if code == "" {
		fail(http.StatusBadRequest, "missing authorization code")
		return
	}

	exchange, err := s.gateway.ExchangeCode(r.Context(), code, s.redirectURI(r), expectedNonce)
	if err != nil {
		fail(http.StatusBadGateway, "code exchange failed")
		return
	}

	signIn, err := s.gateway.Exchange(r.Context(), exchange.IDToken)
	if err != nil {
		signInsTotal.WithLabelValues("federated", "rejected").Inc()
		audit.Event{
			Action:     "loginCallback",
			Status:     "denied",
			SignInPath: "federated",
			Reason:     err.Error(),
			IP:         r.RemoteAddr,
		}.Warn("Audit Log: Sign-In Denied")
		http.Error(w, "sign-in not permitted", http.StatusForbidden)
		return
	}

	session, err := s.materializer.Materialize(r.Context(), signIn)
	if err != nil {
		fail(http.StatusInternalServerError, "session creation failed")
		return
	}

	signInsTotal.WithLabelValues("federated", "success").Inc()
	audit.Event{
		Actor:      session.Email,
		Action:     "loginCallback",
		Status:     "allowed",
		SignInPath: "federated",
		Role:       string(session.Role),
		IP:         r.RemoteAddr,
	}.Info("Audit Log: Sign-In")

	redirect := "/#token=" + url.QueryEscape(session.Token)
	http.Redirect(w, r, redirect, http.StatusFound)
}

// redirectURI rebuilds the callback URL from the incoming request, honoring
// the proxy's forwarded scheme.
func (s *Server) redirectURI(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/login/callback"
}

func setLoginCookie(w http.ResponseWriter, name, value string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/login",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearLoginCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/login",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func userInfo(s *auth.Session) UserInfo {
	return UserInfo{
		Email:       s.Email,
		DisplayName: s.DisplayName,
		Role:        string(s.Role),
		Company:     s.Company,
	}
}

func sessionInfo(s *auth.Session) SessionInfo {
	return SessionInfo{
		ID:        s.ID,
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt.Unix(),
	}
}
