package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"jira-timer/internal/domain"
)

// JiraClient talks to a Jira site. Every call is independent; the
// dialect is chosen from conn.Account.Type.
type JiraClient interface {
	FetchAssignedIssues(ctx context.Context, conn domain.Connection) ([]domain.Issue, error)
	SubmitWorklog(ctx context.Context, conn domain.Connection, w domain.Worklog) (string, error)
	TestConnection(ctx context.Context, conn domain.Connection) (bool, error)
	FetchUserInfo(ctx context.Context, conn domain.Connection) (domain.UserInfo, error)
}

// SessionStore persists time entries. It is written only by the session manager.
type SessionStore interface {
	InsertEntry(ctx context.Context, e domain.TimeEntry) error
	SaveEntry(ctx context.Context, e domain.TimeEntry) error
	DeleteEntry(ctx context.Context, id uuid.UUID) error
	GetEntry(ctx context.Context, id uuid.UUID) (domain.TimeEntry, error)
	// QueryRunning returns entries with no end time, newest start first.
	QueryRunning(ctx context.Context) ([]domain.TimeEntry, error)
	// ListUnsynced returns stopped entries that never reached Jira, oldest first.
	ListUnsynced(ctx context.Context) ([]domain.TimeEntry, error)
	FetchAccount(ctx context.Context, id uuid.UUID) (domain.Account, error)
}

// AccountStore persists configured Jira accounts.
type AccountStore interface {
	SaveAccount(ctx context.Context, a domain.Account) error
	FetchAccount(ctx context.Context, id uuid.UUID) (domain.Account, error)
	// ListAccounts returns all accounts ordered by name.
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	// ActivateAccount marks id active and every other account inactive.
	ActivateAccount(ctx context.Context, id uuid.UUID) error
	// DeleteAccount removes the account and cascades to its time entries.
	DeleteAccount(ctx context.Context, id uuid.UUID) error
	TouchAccountSynced(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateAccountProfile(ctx context.Context, id uuid.UUID, info domain.UserInfo) error
}

// CredentialStore resolves account tokens. Get returns
// domain.ErrCredentialNotFound when nothing is stored under key.
type CredentialStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, secret string) error
	Delete(ctx context.Context, key string) error
}

// SecretBackend stores opaque (already encrypted) secrets.
type SecretBackend interface {
	GetSecret(ctx context.Context, key string) (string, error)
	PutSecret(ctx context.Context, key, value string) error
	DeleteSecret(ctx context.Context, key string) error
}
