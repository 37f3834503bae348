package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/kwsg/marketplace-backend/internal/auth"
)

// apiError matches the error shape the web client expects:
// {"code": int, "error": string}.
type apiError struct {
	status  int
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *apiError) Error() string {
	return e.Message
}

func (e *apiError) GetStatus() int {
	return e.status
}

func init() {
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		if len(errs) > 0 && msg == "" {
			msg = errs[0].Error()
		}
		return &apiError{
			status:  status,
			Code:    status,
			Message: msg,
		}
	}
}

// invalidCodeMessage deliberately collapses not-found, expired, and mismatch
// so a caller cannot distinguish code non-existence from expiry.
const invalidCodeMessage = "invalid or expired code"

// authStatusError maps auth-layer sentinel errors to HTTP errors.
func authStatusError(err error) huma.StatusError {
	switch {
	case errors.Is(err, auth.ErrDomainNotAllowed):
		return huma.NewError(http.StatusForbidden, "email domain is not permitted")
	case errors.Is(err, auth.ErrSignInNotPermitted):
		return huma.NewError(http.StatusForbidden, "sign-in not permitted for this account")
	case errors.Is(err, auth.ErrCodeNotFound),
		errors.Is(err, auth.ErrCodeExpired),
		errors.Is(err, auth.ErrCodeMismatch):
		return huma.NewError(http.StatusBadRequest, invalidCodeMessage)
	case errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, auth.ErrSessionRevoked):
		return huma.NewError(http.StatusUnauthorized, "unauthorized")
	default:
		return huma.NewError(http.StatusInternalServerError, "internal error")
	}
}
