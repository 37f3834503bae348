package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kwsg/marketplace-backend/internal/api"
	"github.com/kwsg/marketplace-backend/internal/audit"
	"github.com/kwsg/marketplace-backend/internal/auth"
	"github.com/kwsg/marketplace-backend/internal/catalog"
	"github.com/kwsg/marketplace-backend/internal/config"
	"github.com/kwsg/marketplace-backend/internal/notify"
	"github.com/kwsg/marketplace-backend/internal/secrets"
	"github.com/kwsg/marketplace-backend/internal/storage"
)

func main() {
	cfg := config.Parse()

	// Configure logging format.
	var logHandler slog.Handler
	if cfg.LogFormat == "text" {
		logHandler = slog.NewTextHandler(os.Stdout, nil)
	} else {
		logHandler = slog.NewJSONHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(logHandler))

	// Disable audit logging if configured.
	if !cfg.AuditLogs {
		audit.Enabled = false
	}

	// Misconfiguration must fail before the server starts listening.
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	policy, err := auth.LoadAccessPolicy(cfg.AccessPolicyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load access policy: %v\n", err)
		os.Exit(1)
	}
	slog.Info("access policy loaded",
		"path", cfg.AccessPolicyPath,
		"realtor_domains", len(policy.RealtorDomains),
	)

	// Open session storage.
	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}

	// Resolve the session signing secret.
	keyProvider := createKeyProvider(cfg)
	if closer, ok := keyProvider.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	signingKey, err := keyProvider.SigningKey(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to resolve signing key: %v\n", err)
		os.Exit(1)
	}
	slog.Info("session signing key resolved", "provider", keyProvider.ProviderName())

	signer, err := auth.NewTokenSigner(signingKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create token signer: %v\n", err)
		os.Exit(1)
	}

	materializer := auth.NewMaterializer(signer, store, cfg.SessionTTL)
	guard, err := auth.NewGuard(signer, store, cfg.GuardCacheSize, cfg.AllowHeaderClaims)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create guard: %v\n", err)
		os.Exit(1)
	}
	if cfg.AllowHeaderClaims {
		slog.Warn("legacy forwarded claim headers enabled; requests are trusted without verification")
	}

	// Verification code sign-in path.
	var notifier notify.Notifier
	if cfg.MailerURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.MailerURL)
		slog.Info("mailer webhook configured", "url", cfg.MailerURL)
	} else {
		notifier = notify.LogNotifier{}
		slog.Warn("no mailer configured; verification codes are written to the log")
	}
	codeStore := auth.NewMemoryCodeStore(cfg.CodeSweepInterval)
	defer codeStore.Close()
	codeService := auth.NewCodeService(policy, codeStore, notifier, cfg.CodeTTL)

	serverOpts := []api.ServerOption{
		api.WithCodeService(codeService),
	}

	// Federated sign-in path.
	switch cfg.AuthMode {
	case "google":
		gateway, err := auth.NewGoogleFederatedGateway(context.Background(), auth.OIDCConfig{
			ClientID: cfg.GoogleClientID,
		}, policy, cfg.GoogleClientSecret)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create Google sign-in gateway: %v\n", err)
			os.Exit(1)
		}
		serverOpts = append(serverOpts,
			api.WithFederatedGateway(gateway),
			api.WithGoogleTokenVerifier(auth.NewGoogleTokenVerifier(cfg.GoogleClientID, policy)),
		)
		slog.Info("auth mode: google", "client_id", cfg.GoogleClientID)

	case "oidc":
		gateway, err := auth.NewFederatedGateway(context.Background(), auth.OIDCConfig{
			ClientID:     cfg.OIDCClientID,
			ProviderName: cfg.OIDCProviderName,
		}, policy, cfg.OIDCIssuer, cfg.OIDCClientSecret)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create OIDC sign-in gateway: %v\n", err)
			os.Exit(1)
		}
		serverOpts = append(serverOpts, api.WithFederatedGateway(gateway))
		slog.Info("auth mode: oidc",
			"issuer", cfg.OIDCIssuer,
			"client_id", cfg.OIDCClientID,
			"provider_name", cfg.OIDCProviderName,
		)
	}

	// Remote vendor/studio record store, with a read cache in front.
	if cfg.ContentStoreURL != "" {
		contentStore, err := catalog.NewCachedStore(
			catalog.NewHTTPClient(cfg.ContentStoreURL),
			cfg.CatalogCacheSize,
			cfg.CatalogCacheTTL,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create content store cache: %v\n", err)
			os.Exit(1)
		}
		serverOpts = append(serverOpts, api.WithContentStore(contentStore))
		slog.Info("content store configured", "url", cfg.ContentStoreURL)
	}

	srv := api.NewServer(materializer, guard, serverOpts...)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Hourly sweep of expired session records.
	purgeDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-purgeDone:
				return
			case <-ticker.C:
				n, err := store.PurgeExpiredSessions(context.Background(), time.Now())
				if err != nil {
					slog.Error("session purge failed", "error", err)
				} else if n > 0 {
					slog.Info("expired sessions purged", "count", n)
				}
			}
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig.String())

		// Give in-flight requests 30 seconds to complete.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
		close(done)
	}()

	slog.Info("marketplace backend starting", "addr", cfg.Addr)

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	// Wait for shutdown to complete.
	<-done

	close(purgeDone)
	store.Close()
	slog.Info("shutdown complete")
}

// createKeyProvider builds the signing key provider from config. Exits on error.
func createKeyProvider(cfg *config.Config) secrets.KeyProvider {
	switch cfg.SecretsProvider {
	case "gcpkms":
		kmsProvider, err := secrets.NewKMSKeyProvider(context.Background(), cfg.KMSKeyResourceName, cfg.KMSWrappedKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create KMS key provider: %v\n", err)
			os.Exit(1)
		}
		slog.Info("signing key provider: GCP KMS", "key", cfg.KMSKeyResourceName)
		return kmsProvider
	default: // "local"
		localProvider, err := secrets.NewLocalKeyProvider(cfg.SessionSigningKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid session signing key: %v\n", err)
			os.Exit(1)
		}
		return localProvider
	}
}
