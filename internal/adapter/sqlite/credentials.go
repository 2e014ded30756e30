package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"jira-timer/internal/domain"
)

func (s *Store) GetSecret(ctx context.Context, key string) (string, error) {
	var secret string
	err := s.db.QueryRowContext(ctx, `SELECT secret FROM credentials WHERE cred_key = ?`, key).Scan(&secret)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrCredentialNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get secret: %w", err)
	}
	return secret, nil
}

func (s *Store) PutSecret(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (cred_key, secret) VALUES (?, ?) ON CONFLICT(cred_key) DO UPDATE SET secret=excluded.secret`,
		key, value)
	if err != nil {
		return fmt.Errorf("put secret: %w", err)
	}
	return nil
}

func (s *Store) DeleteSecret(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE cred_key = ?`, key)
	return err
}
