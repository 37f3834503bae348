package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/kwsg/marketplace-backend/internal/audit"
)

// registerSessionRoutes registers session reconstruction and sign-out.
func (s *Server) registerSessionRoutes(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getSession",
		Method:      http.MethodGet,
		Path:        "/api/session",
		Tags:        []string{"Session"},
	}, s.handleGetSession)

	huma.Register(api, huma.Operation{
		OperationID:   "signOut",
		Method:        http.MethodDelete,
		Path:          "/api/session",
		Tags:          []string{"Session"},
		DefaultStatus: http.StatusOK,
	}, s.handleSignOut)
}

func (s *Server) handleGetSession(ctx context.Context, input *GetSessionInput) (*GetSessionOutput, error) {
	token := bearerToken(input.Authorization)
	if token == "" {
		return nil, huma.NewError(http.StatusUnauthorized, "unauthorized")
	}

	session, err := s.materializer.Reconstruct(ctx, token, nil)
	if err != nil {
		return nil, authStatusError(err)
	}

	out := &GetSessionOutput{}
	out.Body.User = userInfo(session)
	out.Body.Session = sessionInfo(session)
	return out, nil
}

func (s *Server) handleSignOut(ctx context.Context, input *SignOutInput) (*SignOutOutput, error) {
	token := bearerToken(input.Authorization)
	if token == "" {
		return nil, huma.NewError(http.StatusUnauthorized, "unauthorized")
	}

	session, err := s.materializer.Reconstruct(ctx, token, nil)
	if err != nil {
		return nil, authStatusError(err)
	}

	if err := s.materializer.Revoke(ctx, token); err != nil {
		return nil, authStatusError(err)
	}
	s.guard.Invalidate(token)

	audit.Event{
		Actor:  session.Email,
		Action: "signOut",
		Status: "allowed",
		Role:   string(session.Role),
	}.Info("Audit Log: Sign-Out")

	out := &SignOutOutput{}
	out.Body.Success = true
	return out, nil
}
