package store

import (
	"context"
	"fmt"

	"aihub/internal/util"
	"aihub/pkg/domain"
)

// Sealer encrypts and decrypts credential secrets.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// SealedCredentials encrypts secrets before they reach the inner store and
// decrypts them on the way out.
type SealedCredentials struct {
	inner CredentialStore
	box   Sealer
}

// NewSealedCredentials wraps inner with box.
func NewSealedCredentials(inner CredentialStore, box Sealer) *SealedCredentials {
	return &SealedCredentials{inner: inner, box: box}
}

func (s *SealedCredentials) GetCredential(ctx context.Context, ownerID, provider string) (domain.Credential, bool, error) {
	cred, ok, err := s.inner.GetCredential(ctx, ownerID, provider)
	if err != nil || !ok {
		return cred, ok, err
	}
	plain, err := s.box.Open(cred.Secret)
	if err != nil {
		return domain.Credential{}, false, fmt.Errorf("open credential %s: %w", provider, err)
	}
	cred.Secret = plain
	return cred, true, nil
}

func (s *SealedCredentials) SaveCredential(ctx context.Context, cred domain.Credential) error {
	sealed, err := s.box.Seal(cred.Secret)
	if err != nil {
		return fmt.Errorf("seal credential %s: %w", cred.Provider, err)
	}
	cred.Secret = sealed
	return s.inner.SaveCredential(ctx, cred)
}

func (s *SealedCredentials) DeleteCredential(ctx context.Context, ownerID, provider string) (bool, error) {
	return s.inner.DeleteCredential(ctx, ownerID, provider)
}

// ListCredentials returns decrypted credentials. Entries that fail to open,
// typically after a key rotation, are logged and skipped.
func (s *SealedCredentials) ListCredentials(ctx context.Context, ownerID string) ([]domain.Credential, error) {
	items, err := s.inner.ListCredentials(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	res := make([]domain.Credential, 0, len(items))
	for _, cred := range items {
		plain, err := s.box.Open(cred.Secret)
		if err != nil {
			util.LoggerFromContext(ctx).Warn("credential skipped: secret cannot be opened",
				"owner_id", ownerID, "provider", cred.Provider, "err", err)
			continue
		}
		cred.Secret = plain
		res = append(res, cred)
	}
	return res, nil
}
