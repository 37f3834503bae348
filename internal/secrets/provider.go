// Package secrets resolves the session signing secret at startup. The
// secret either comes straight from configuration (local) or is stored as a
// KMS-encrypted ciphertext that only the service's identity can decrypt.
package secrets

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
)

// KeyProvider yields the session signing secret. Implementations must be
// safe for concurrent use.
type KeyProvider interface {
	// SigningKey returns the raw signing secret bytes.
	SigningKey(ctx context.Context) ([]byte, error)
	// ProviderName returns a human-readable identifier (e.g. "local", "gcpkms").
	ProviderName() string
}

// LocalKeyProvider holds a hex-encoded signing secret from configuration.
type LocalKeyProvider struct {
	secret []byte
}

// NewLocalKeyProvider decodes a hex-encoded signing secret.
func NewLocalKeyProvider(hexSecret string) (*LocalKeyProvider, error) {
	secret, err := hex.DecodeString(hexSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid signing secret: %w", err)
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("signing secret must be at least 32 bytes, got %d", len(secret))
	}
	return &LocalKeyProvider{secret: secret}, nil
}

func (p *LocalKeyProvider) ProviderName() string { return "local" }

func (p *LocalKeyProvider) SigningKey(context.Context) ([]byte, error) {
	return p.secret, nil
}

// KMSKeyProvider decrypts a base64 ciphertext of the signing secret with a
// Google Cloud KMS key.
type KMSKeyProvider struct {
	client     *kms.KeyManagementClient
	keyName    string // projects/P/locations/L/keyRings/R/cryptoKeys/K
	ciphertext []byte
}

// NewKMSKeyProvider creates a provider for the given KMS key resource name
// and base64-encoded ciphertext.
func NewKMSKeyProvider(ctx context.Context, keyName, ciphertextB64 string) (*KMSKeyProvider, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret ciphertext: %w", err)
	}
	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create KMS client: %w", err)
	}
	return &KMSKeyProvider{
		client:     client,
		keyName:    keyName,
		ciphertext: ciphertext,
	}, nil
}

func (p *KMSKeyProvider) ProviderName() string { return "gcpkms" }

func (p *KMSKeyProvider) SigningKey(ctx context.Context) ([]byte, error) {
	resp, err := p.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:       p.keyName,
		Ciphertext: p.ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("KMS decrypt: %w", err)
	}
	if len(resp.Plaintext) < 32 {
		return nil, fmt.Errorf("decrypted signing secret must be at least 32 bytes, got %d", len(resp.Plaintext))
	}
	return resp.Plaintext, nil
}

// Close releases the KMS client.
func (p *KMSKeyProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
