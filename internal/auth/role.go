package auth

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Role is the access level derived for an authenticated principal.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleRealtor Role = "realtor"
	RoleVendor  Role = "vendor"
	RoleClient  Role = "client"
)

// ParseRole converts a string to a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleRealtor, RoleVendor, RoleClient:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role: %q", s)
	}
}

// RealtorDomain maps an allow-listed email domain to its brokerage name.
type RealtorDomain struct {
	Domain  string `yaml:"domain"`
	Company string `yaml:"company"`
}

// AccessPolicy defines who may sign in and which role an email derives.
// Role derivation is centralized here: both sign-in paths go through
// DeriveRole so the same email always yields the same role.
type AccessPolicy struct {
	AdminEmail     string          `yaml:"adminEmail"`
	RealtorDomains []RealtorDomain `yaml:"realtorDomains"`
	// DefaultRole is the role for emails that match neither the admin
	// address nor the realtor allow-list. Explicit in the policy file so
	// the choice is visible to operators.
	DefaultRole string `yaml:"defaultRole"`
	// AllowUnlisted permits federated sign-in for emails outside the
	// allow-list. When false the federated gate rejects them outright.
	AllowUnlisted bool `yaml:"allowUnlisted"`

	defaultRole Role
}

// LoadAccessPolicy reads and parses an access policy file.
func LoadAccessPolicy(path string) (*AccessPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read access policy: %w", err)
	}
	var p AccessPolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse access policy: %w", err)
	}
	if err := p.normalize(); err != nil {
		return nil, err
	}
	return &p, nil
}

// NewAccessPolicy builds a policy programmatically (tests, embedded config).
func NewAccessPolicy(adminEmail string, domains []RealtorDomain, defaultRole Role) (*AccessPolicy, error) {
	p := &AccessPolicy{
		AdminEmail:     adminEmail,
		RealtorDomains: domains,
		DefaultRole:    string(defaultRole),
	}
	if err := p.normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AccessPolicy) normalize() error {
	if p.DefaultRole == "" {
		p.DefaultRole = string(RoleClient)
	}
	dr, err := ParseRole(p.DefaultRole)
	if err != nil {
		return fmt.Errorf("invalid default role: %w", err)
	}
	p.defaultRole = dr
	return nil
}

// DeriveRole maps an email to a role. Precedence: admin address, then the
// realtor domain allow-list, then the configured default. Malformed emails
// simply fail every match and land on the default.
func (p *AccessPolicy) DeriveRole(email string) Role {
	if p.AdminEmail != "" && strings.EqualFold(email, p.AdminEmail) {
		return RoleAdmin
	}
	if p.matchDomain(email) != nil {
		return RoleRealtor
	}
	return p.defaultRole
}

// CompanyFor returns the brokerage name for an allow-listed email, or ""
// when the email matches no realtor domain.
func (p *AccessPolicy) CompanyFor(email string) string {
	if d := p.matchDomain(email); d != nil {
		return d.Company
	}
	return ""
}

// DomainAllowed reports whether the email's domain is on the realtor
// allow-list. This is the gate for the one-time code path.
func (p *AccessPolicy) DomainAllowed(email string) bool {
	return p.matchDomain(email) != nil
}

// SignInAllowed is the federated path's stricter gate: the admin address and
// allow-listed realtor domains always pass; everyone else only passes when
// AllowUnlisted is set.
func (p *AccessPolicy) SignInAllowed(email string) bool {
	if p.AdminEmail != "" && strings.EqualFold(email, p.AdminEmail) {
		return true
	}
	if p.matchDomain(email) != nil {
		return true
	}
	return p.AllowUnlisted
}

// matchDomain returns the allow-list entry whose domain equals, or is a
// parent of, the email's domain.
func (p *AccessPolicy) matchDomain(email string) *RealtorDomain {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return nil
	}
	domain := strings.ToLower(email[at+1:])
	for i := range p.RealtorDomains {
		d := strings.ToLower(p.RealtorDomains[i].Domain)
		if d == "" {
			continue
		}
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return &p.RealtorDomains[i]
		}
	}
	return nil
}
