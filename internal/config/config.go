package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all server configuration.
type Config struct {
	Addr             string // listen address, e.g. ":8080"
	DBPath           string // path to SQLite session database file
	AccessPolicyPath string // path to access-policy.yaml

	// Auth mode: "google" (default) or "oidc".
	AuthMode string
	// Google auth settings (required when AuthMode == "google").
	GoogleClientID     string // OAuth2 client ID
	GoogleClientSecret string // OAuth2 client secret (for browser login flow)
	// Generic OIDC settings (required when AuthMode == "oidc").
	OIDCIssuer       string // OIDC provider discovery URL
	OIDCClientID     string // OAuth2 client ID
	OIDCClientSecret string // OAuth2 client secret
	OIDCProviderName string // display name for login page (default: "SSO")

	// Session token signing.
	SessionSigningKey string        // hex-encoded HMAC key (>= 32 bytes decoded)
	SessionTTL        time.Duration // materialized session lifetime
	// Secrets provider for the signing key: "local" (default) or "gcpkms".
	SecretsProvider    string
	KMSKeyResourceName string // GCP KMS key resource name (gcpkms provider)
	KMSWrappedKey      string // base64 KMS-encrypted signing key ciphertext

	// Verification codes.
	CodeTTL           time.Duration // one-time code lifetime
	CodeSweepInterval time.Duration // expired-code janitor interval

	// External collaborators.
	MailerURL        string // code-delivery webhook (empty = log only)
	ContentStoreURL  string // vendor/studio record store base URL (empty = admin CRUD disabled)
	CatalogCacheTTL  time.Duration
	CatalogCacheSize int

	// Guard.
	GuardCacheSize    int  // LRU entries for verified session tokens
	AllowHeaderClaims bool // accept legacy forwarded claim headers

	// Logging.
	LogFormat string // "json" (default) or "text"
	AuditLogs bool   // enable audit logging (default true)
}

func Parse() *Config {
	c := &Config{}
	flag.StringVar(&c.Addr, "addr", ":8080", "listen address")
	flag.StringVar(&c.DBPath, "db", "marketplace.db", "SQLite session database path")
	flag.StringVar(&c.AccessPolicyPath, "access-policy", "access-policy.yaml", "path to the access policy file")

	// Auth flags.
	flag.StringVar(&c.AuthMode, "auth-mode", "google", "authentication mode: google or oidc")
	flag.StringVar(&c.GoogleClientID, "google-client-id", "", "Google OAuth2 client ID")
	flag.StringVar(&c.GoogleClientSecret, "google-client-secret", "", "Google OAuth2 client secret (required for browser login)")
	flag.StringVar(&c.OIDCIssuer, "oidc-issuer", "", "OIDC provider discovery URL (required for oidc mode)")
	flag.StringVar(&c.OIDCClientID, "oidc-client-id", "", "OIDC OAuth2 client ID")
	flag.StringVar(&c.OIDCClientSecret, "oidc-client-secret", "", "OIDC OAuth2 client secret")
	flag.StringVar(&c.OIDCProviderName, "oidc-provider-name", "SSO", "display name for login page")

	// Session flags.
	flag.StringVar(&c.SessionSigningKey, "session-signing-key", "", "hex-encoded HMAC key for session tokens (auto-generated if empty)")
	flag.DurationVar(&c.SessionTTL, "session-ttl", 24*time.Hour, "materialized session lifetime")
	flag.StringVar(&c.SecretsProvider, "secrets-provider", "local", "signing key provider: local or gcpkms")
	flag.StringVar(&c.KMSKeyResourceName, "kms-key", "", "GCP KMS key resource name (required for gcpkms provider)")
	flag.StringVar(&c.KMSWrappedKey, "kms-wrapped-key", "", "base64 KMS-encrypted signing key ciphertext")

	// Verification code flags.
	flag.DurationVar(&c.CodeTTL, "code-ttl", 10*time.Minute, "one-time verification code lifetime")
	flag.DurationVar(&c.CodeSweepInterval, "code-sweep-interval", time.Minute, "expired code sweep interval")

	// Collaborator flags.
	flag.StringVar(&c.MailerURL, "mailer-url", "", "code delivery webhook URL (empty = log codes instead)")
	flag.StringVar(&c.ContentStoreURL, "content-store-url", "", "vendor/studio record store base URL (empty = admin CRUD disabled)")
	flag.DurationVar(&c.CatalogCacheTTL, "catalog-cache-ttl", 30*time.Second, "content store read cache TTL")
	flag.IntVar(&c.CatalogCacheSize, "catalog-cache-size", 256, "content store read cache entries")

	// Guard flags.
	flag.IntVar(&c.GuardCacheSize, "guard-cache-size", 256, "LRU cache size for verified session tokens")
	flag.BoolVar(&c.AllowHeaderClaims, "allow-header-claims", false, "accept legacy forwarded email/role claim headers")

	// Logging flags.
	flag.StringVar(&c.LogFormat, "log-format", "json", "log format: json or text")
	flag.BoolVar(&c.AuditLogs, "audit-logs", true, "enable structured audit logging")

	flag.Parse()

	// Allow env overrides.
	if v := os.Getenv("MARKETPLACE_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("MARKETPLACE_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("MARKETPLACE_ACCESS_POLICY"); v != "" {
		c.AccessPolicyPath = v
	}
	if v := os.Getenv("MARKETPLACE_AUTH_MODE"); v != "" {
		c.AuthMode = v
	}
	if v := os.Getenv("MARKETPLACE_GOOGLE_CLIENT_ID"); v != "" {
		c.GoogleClientID = v
	}
	if v := os.Getenv("MARKETPLACE_GOOGLE_CLIENT_SECRET"); v != "" {
		c.GoogleClientSecret = v
	}
	if v := os.Getenv("MARKETPLACE_OIDC_ISSUER"); v != "" {
		c.OIDCIssuer = v
	}
	if v := os.Getenv("MARKETPLACE_OIDC_CLIENT_ID"); v != "" {
		c.OIDCClientID = v
	}
	if v := os.Getenv("MARKETPLACE_OIDC_CLIENT_SECRET"); v != "" {
		c.OIDCClientSecret = v
	}
	if v := os.Getenv("MARKETPLACE_OIDC_PROVIDER_NAME"); v != "" {
		c.OIDCProviderName = v
	}
	if v := os.Getenv("MARKETPLACE_SESSION_SIGNING_KEY"); v != "" {
		c.SessionSigningKey = v
	}
	if v := os.Getenv("MARKETPLACE_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SessionTTL = d
		}
	}
	if v := os.Getenv("MARKETPLACE_SECRETS_PROVIDER"); v != "" {
		c.SecretsProvider = v
	}
	if v := os.Getenv("MARKETPLACE_KMS_KEY"); v != "" {
		c.KMSKeyResourceName = v
	}
	if v := os.Getenv("MARKETPLACE_KMS_WRAPPED_KEY"); v != "" {
		c.KMSWrappedKey = v
	}
	if v := os.Getenv("MARKETPLACE_CODE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CodeTTL = d
		}
	}
	if v := os.Getenv("MARKETPLACE_CODE_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CodeSweepInterval = d
		}
	}
	if v := os.Getenv("MARKETPLACE_MAILER_URL"); v != "" {
		c.MailerURL = v
	}
	if v := os.Getenv("MARKETPLACE_CONTENT_STORE_URL"); v != "" {
		c.ContentStoreURL = v
	}
	if v := os.Getenv("MARKETPLACE_CATALOG_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CatalogCacheTTL = d
		}
	}
	if v := os.Getenv("MARKETPLACE_CATALOG_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CatalogCacheSize = n
		}
	}
	if v := os.Getenv("MARKETPLACE_GUARD_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.GuardCacheSize = n
		}
	}
	if v := os.Getenv("MARKETPLACE_ALLOW_HEADER_CLAIMS"); v == "true" {
		c.AllowHeaderClaims = true
	}
	if v := os.Getenv("MARKETPLACE_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("MARKETPLACE_AUDIT_LOGS"); v == "false" {
		c.AuditLogs = false
	}

	if c.SessionSigningKey == "" && c.SecretsProvider == "local" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			fmt.Fprintf(os.Stderr, "failed to generate session signing key: %v\n", err)
			os.Exit(1)
		}
		c.SessionSigningKey = hex.EncodeToString(key)
		fmt.Fprintf(os.Stderr, "WARNING: auto-generated session signing key (existing sessions will not survive restart unless you persist it):\n")
		fmt.Fprintf(os.Stderr, "  export MARKETPLACE_SESSION_SIGNING_KEY=%s\n\n", c.SessionSigningKey)
	}

	return c
}

// Validate checks cross-field requirements that must fail before the server
// starts listening.
func (c *Config) Validate() error {
	switch c.AuthMode {
	case "google":
		if c.GoogleClientID == "" {
			return fmt.Errorf("google auth mode requires -google-client-id")
		}
	case "oidc":
		if c.OIDCIssuer == "" || c.OIDCClientID == "" {
			return fmt.Errorf("oidc auth mode requires -oidc-issuer and -oidc-client-id")
		}
	default:
		return fmt.Errorf("unknown auth mode %q (expected google or oidc)", c.AuthMode)
	}

	switch c.SecretsProvider {
	case "local":
		if c.SessionSigningKey == "" {
			return fmt.Errorf("local secrets provider requires -session-signing-key")
		}
	case "gcpkms":
		if c.KMSKeyResourceName == "" || c.KMSWrappedKey == "" {
			return fmt.Errorf("gcpkms secrets provider requires -kms-key and -kms-wrapped-key")
		}
	default:
		return fmt.Errorf("unknown secrets provider %q (expected local or gcpkms)", c.SecretsProvider)
	}

	if c.AccessPolicyPath == "" {
		return fmt.Errorf("access policy path must not be empty")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("unknown log format %q (expected json or text)", c.LogFormat)
	}
	return nil
}
