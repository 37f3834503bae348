package api

import (
	"github.com/kwsg/marketplace-backend/internal/catalog"
)

// UserInfo is the identity payload returned to clients after a successful
// sign-in and from the session endpoint.
type UserInfo struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	Company     string `json:"company,omitempty"`
}

// SessionInfo is the client-retained session projection.
type SessionInfo struct {
	ID        string `json:"id"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

// --- Auth ---

// IssueCodeInput is the body for POST /api/auth/code.
type IssueCodeInput struct {
	Body struct {
		Email string `json:"email" doc:"Email address to send a one-time code to"`
	}
}

// IssueCodeOutput acknowledges code issuance.
type IssueCodeOutput struct {
	Body struct {
		Success bool `json:"success"`
	}
}

// VerifyCodeInput is the body for POST /api/auth/code/verify.
type VerifyCodeInput struct {
	Body struct {
		Email string `json:"email" doc:"Email address the code was issued for"`
		Code  string `json:"code" doc:"6-digit one-time code"`
	}
}

// VerifyCodeOutput carries the materialized identity and session.
type VerifyCodeOutput struct {
	Body struct {
		Success bool        `json:"success"`
		User    UserInfo    `json:"user"`
		Session SessionInfo `json:"session"`
	}
}

// GoogleTokenExchangeInput is the body for POST /api/auth/google.
type GoogleTokenExchangeInput struct {
	Body struct {
		IDToken string `json:"idToken" doc:"Google-issued ID token"`
	}
}

// GoogleTokenExchangeOutput carries the materialized identity and session.
type GoogleTokenExchangeOutput struct {
	Body struct {
		Success bool        `json:"success"`
		User    UserInfo    `json:"user"`
		Session SessionInfo `json:"session"`
	}
}

// AuthHeaders are the claim-bearing request headers: the signed bearer
// token, plus the two legacy forwarded claim fields.
type AuthHeaders struct {
	Authorization string `header:"Authorization" doc:"Bearer session token"`
	ClaimEmail    string `header:"X-Marketplace-Email" doc:"Legacy forwarded email claim"`
	ClaimRole     string `header:"X-Marketplace-Role" doc:"Legacy forwarded role claim"`
}

// GetSessionInput carries the auth headers for session reconstruction.
type GetSessionInput struct {
	AuthHeaders
}

// GetSessionOutput is the reconstructed session.
type GetSessionOutput struct {
	Body struct {
		User    UserInfo    `json:"user"`
		Session SessionInfo `json:"session"`
	}
}

// SignOutInput carries the auth headers for sign-out.
type SignOutInput struct {
	AuthHeaders
}

// SignOutOutput acknowledges sign-out.
type SignOutOutput struct {
	Body struct {
		Success bool `json:"success"`
	}
}

// --- Health / meta ---

// HealthCheckOutput is the health probe response.
type HealthCheckOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// --- Admin catalog ---

// ListVendorsOutput lists vendor records.
type ListVendorsOutput struct {
	Body struct {
		Vendors []catalog.Vendor `json:"vendors"`
	}
}

// VendorIDInput addresses a single vendor.
type VendorIDInput struct {
	ID string `path:"id" doc:"Vendor ID"`
}

// GetVendorOutput is a single vendor record.
type GetVendorOutput struct {
	Body catalog.Vendor
}

// SaveVendorInput creates or updates a vendor.
type SaveVendorInput struct {
	Body catalog.Vendor
}

// SaveVendorOutput is the stored vendor record.
type SaveVendorOutput struct {
	Body catalog.Vendor
}

// ListStudiosOutput lists studio records.
type ListStudiosOutput struct {
	Body struct {
		Studios []catalog.Studio `json:"studios"`
	}
}

// StudioIDInput addresses a single studio.
type StudioIDInput struct {
	ID string `path:"id" doc:"Studio ID"`
}

// GetStudioOutput is a single studio record.
type GetStudioOutput struct {
	Body catalog.Studio
}

// SaveStudioInput creates or updates a studio.
type SaveStudioInput struct {
	Body catalog.Studio
}

// SaveStudioOutput is the stored studio record.
type SaveStudioOutput struct {
	Body catalog.Studio
}
