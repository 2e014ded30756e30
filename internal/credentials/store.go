package credentials

import (
	"context"
	"fmt"
	"log/slog"

	"jira-timer/internal/crypto"
	"jira-timer/internal/ports"
)

// Store implements ports.CredentialStore by encrypting secrets into a backend.
type Store struct {
	backend ports.SecretBackend
	cipher  crypto.Service
	log     *slog.Logger
}

func NewStore(backend ports.SecretBackend, cipher crypto.Service, log *slog.Logger) *Store {
	if cipher == nil {
		cipher = crypto.NoopService{}
	}
	return &Store{backend: backend, cipher: cipher, log: log}
}

// Get returns domain.ErrCredentialNotFound when key has no stored secret.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	enc, err := s.backend.GetSecret(ctx, key)
	if err != nil {
		return "", err
	}
	secret, err := s.cipher.Decrypt(enc)
	if err != nil {
		return "", fmt.Errorf("credential %q: %w", key, err)
	}
	return secret, nil
}

// Set replaces whatever is stored under key.
func (s *Store) Set(ctx context.Context, key, secret string) error {
	enc, err := s.cipher.Encrypt(secret)
	if err != nil {
		return err
	}
	if err := s.backend.PutSecret(ctx, key, enc); err != nil {
		return err
	}
	s.log.Debug("credential stored", slog.String("key", key))
	return nil
}

// Delete is a no-op for unknown keys.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.backend.DeleteSecret(ctx, key)
}
