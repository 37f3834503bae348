package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/kwsg/marketplace-backend/internal/notify"
)

// ErrDomainNotAllowed is returned when an email's domain is not on the
// realtor allow-list.
var ErrDomainNotAllowed = errors.New("email domain not allow-listed")

// DefaultCodeTTL is how long an issued verification code stays valid.
const DefaultCodeTTL = 10 * time.Minute

// CodeService issues and validates one-time emailed sign-in codes for
// allow-listed realtor domains.
type CodeService struct {
	policy   *AccessPolicy
	store    CodeStore
	notifier notify.Notifier
	ttl      time.Duration
}

// NewCodeService creates a code service. A zero ttl falls back to
// DefaultCodeTTL.
func NewCodeService(policy *AccessPolicy, store CodeStore, notifier notify.Notifier, ttl time.Duration) *CodeService {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	return &CodeService{
		policy:   policy,
		store:    store,
		notifier: notifier,
		ttl:      ttl,
	}
}

// IssueCode generates a fresh 6-digit code for the email, replacing any
// prior unconsumed code, and hands it to the notifier for delivery.
// Delivery failure is logged but not surfaced: reporting it would let a
// caller probe which addresses exist, and the user can always re-request.
func (s *CodeService) IssueCode(ctx context.Context, email string) error {
	if !s.policy.DomainAllowed(email) {
		return ErrDomainNotAllowed
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate verification code: %w", err)
	}
	s.store.Put(email, code, s.ttl)

	if err := s.notifier.SendCode(ctx, email, code); err != nil {
		slog.Warn("verification code delivery failed", "email", email, "error", err)
	}
	return nil
}

// VerifyCode consumes the code and materializes the caller's Identity.
// Role derivation goes through the central policy, which always yields
// realtor for allow-listed domains (or admin when the admin address happens
// to live on one).
func (s *CodeService) VerifyCode(ctx context.Context, email, code string) (*Identity, error) {
	if !s.policy.DomainAllowed(email) {
		return nil, ErrDomainNotAllowed
	}
	if err := s.store.Validate(email, code); err != nil {
		return nil, err
	}
	return &Identity{
		Email:       email,
		DisplayName: displayNameFromEmail(email),
		Role:        s.policy.DeriveRole(email),
		Company:     s.policy.CompanyFor(email),
	}, nil
}

// generateCode returns a uniformly random 6-digit numeric code in
// [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
