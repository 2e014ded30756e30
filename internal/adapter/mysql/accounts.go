package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"jira-timer/internal/domain"
)

const accountColumns = `id, name, base_url, email, account_type, is_active, created_at, last_synced_at, username, avatar_url`

func (s *Store) SaveAccount(ctx context.Context, a domain.Account) error {
	const q = `
INSERT INTO accounts
  (` + accountColumns + `)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  name=VALUES(name),
  base_url=VALUES(base_url),
  email=VALUES(email),
  account_type=VALUES(account_type),
  is_active=VALUES(is_active),
  last_synced_at=VALUES(last_synced_at),
  username=VALUES(username),
  avatar_url=VALUES(avatar_url);
`
	_, err := s.db.ExecContext(ctx, q,
		a.ID.String(), a.Name, a.BaseURL, a.Email, string(a.Type), a.IsActive, a.CreatedAt.UTC(),
		utcPtr(a.LastSyncedAt), nullString(a.Username), nullString(a.AvatarURL),
	)
	if err != nil {
		return fmt.Errorf("save account %s: %w", a.ID, err)
	}
	return nil
}

func (s *Store) FetchAccount(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id.String())
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("fetch account %s: %w", id, err)
	}
	return a, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ActivateAccount(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ? FOR UPDATE`, id.String()).Scan(&exists)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrAccountNotFound
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET is_active = (id = ?)`, id.String()); err != nil {
		tx.Rollback()
		return fmt.Errorf("activate account %s: %w", id, err)
	}
	return tx.Commit()
}

// DeleteAccount removes the account; its time entries go with it.
func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete account %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (s *Store) TouchAccountSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE accounts SET last_synced_at = ? WHERE id = ?`, at.UTC(), id.String())
	return err
}

func (s *Store) UpdateAccountProfile(ctx context.Context, id uuid.UUID, info domain.UserInfo) error {
	_, err := s.db.ExecContext(ctx, `UPDATE accounts SET username = ?, avatar_url = ? WHERE id = ?`,
		info.DisplayName, nullString(info.AvatarURL), id.String())
	return err
}

func scanAccount(sc scanner) (domain.Account, error) {
	var (
		a                domain.Account
		id, typ          string
		lastSynced       sql.NullTime
		username, avatar sql.NullString
	)
	if err := sc.Scan(&id, &a.Name, &a.BaseURL, &a.Email, &typ, &a.IsActive, &a.CreatedAt, &lastSynced, &username, &avatar); err != nil {
		return a, err
	}
	var err error
	if a.ID, err = uuid.Parse(id); err != nil {
		return a, fmt.Errorf("account id %q: %w", id, err)
	}
	a.Type = domain.AccountType(typ)
	a.LastSyncedAt = timePtr(lastSynced)
	a.Username = stringPtr(username)
	a.AvatarURL = stringPtr(avatar)
	return a, nil
}
