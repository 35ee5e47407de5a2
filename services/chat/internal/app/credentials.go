package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aihub/internal/util"
	"aihub/pkg/domain"
)

// CredentialView is what the API exposes about a stored key. The secret itself never leaves the service.
type CredentialView struct {
	Provider  string     `json:"provider"`
	HasKey    bool       `json:"hasKey"`
	MaskedKey string     `json:"maskedKey,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// MaskKey keeps the first 3 and last 4 characters of a key.
func MaskKey(key string) string {
	runes := []rune(strings.TrimSpace(key))
	if len(runes) <= 8 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:3]) + "..." + string(runes[len(runes)-4:])
}

func viewOf(cred domain.Credential) CredentialView {
	updated := cred.UpdatedAt
	return CredentialView{
		Provider:  cred.Provider,
		HasKey:    cred.Secret != "",
		MaskedKey: MaskKey(cred.Secret),
		UpdatedAt: &updated,
	}
}

// ListCredentials reports one entry per registered provider, in registry order.
func (a *App) ListCredentials(ctx context.Context, user domain.User) ([]CredentialView, error) {
	stored, err := a.credentials.ListCredentials(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	byProvider := make(map[string]domain.Credential, len(stored))
	for _, cred := range stored {
		byProvider[cred.Provider] = cred
	}
	names := a.providers.Names()
	views := make([]CredentialView, 0, len(names))
	for _, name := range names {
		if cred, ok := byProvider[name]; ok {
			views = append(views, viewOf(cred))
			continue
		}
		views = append(views, CredentialView{Provider: name})
	}
	return views, nil
}

// SaveCredential stores or replaces the user's key for provider.
func (a *App) SaveCredential(ctx context.Context, user domain.User, provider, apiKey string) (CredentialView, error) {
	p, err := a.lookupProvider(provider)
	if err != nil {
		return CredentialView{}, err
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return CredentialView{}, fmt.Errorf("%w: apiKey is required", ErrInvalidInput)
	}
	now := time.Now().UTC()
	cred := domain.Credential{
		OwnerID:   user.ID,
		Provider:  p.Name(),
		Secret:    apiKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.credentials.SaveCredential(ctx, cred); err != nil {
		return CredentialView{}, fmt.Errorf("save api key: %w", err)
	}
	util.LoggerFromContext(ctx).Info("api key saved", "provider", cred.Provider)
	return viewOf(cred), nil
}

// DeleteCredential removes the user's key for provider.
func (a *App) DeleteCredential(ctx context.Context, user domain.User, provider string) error {
	deleted, err := a.credentials.DeleteCredential(ctx, user.ID, strings.TrimSpace(provider))
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if !deleted {
		return ErrCredentialNotFound
	}
	util.LoggerFromContext(ctx).Info("api key deleted", "provider", provider)
	return nil
}

// ValidateCredential asks the provider whether a key works. An empty apiKey
// checks the key already on file.
func (a *App) ValidateCredential(ctx context.Context, user domain.User, provider, apiKey string) (bool, error) {
	p, err := a.lookupProvider(provider)
	if err != nil {
		return false, err
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		cred, ok, err := a.credentials.GetCredential(ctx, user.ID, p.Name())
		if err != nil {
			return false, fmt.Errorf("load api key: %w", err)
		}
		if !ok {
			return false, ErrCredentialNotFound
		}
		apiKey = cred.Secret
	}
	return p.Validate(ctx, apiKey), nil
}
