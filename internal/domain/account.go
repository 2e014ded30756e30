package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccountType selects which Jira deployment dialect an account speaks.
type AccountType string

const (
	AccountCloud      AccountType = "Cloud"
	AccountDataCenter AccountType = "Data Center"
)

// ParseAccountType accepts the stored value as well as short CLI spellings.
func ParseAccountType(s string) (AccountType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cloud":
		return AccountCloud, nil
	case "data center", "datacenter", "dc", "server":
		return AccountDataCenter, nil
	}
	return "", fmt.Errorf("unknown account type %q", s)
}

// Account is a configured Jira site the user logs work against.
// The API token is never part of the record; see CredentialKey.
type Account struct {
	ID           uuid.UUID
	Name         string
	BaseURL      string
	Email        string
	Type         AccountType
	IsActive     bool
	CreatedAt    time.Time
	LastSyncedAt *time.Time
	Username     *string
	AvatarURL    *string
}

// APIVersion is the REST API version used for the account's dialect.
func (a Account) APIVersion() string {
	if a.Type == AccountDataCenter {
		return "2"
	}
	return "3"
}

// SanitizedBaseURL forces a scheme and drops one trailing slash.
func (a Account) SanitizedBaseURL() string {
	u := strings.TrimSpace(a.BaseURL)
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return strings.TrimSuffix(u, "/")
}

// SiteURL parses SanitizedBaseURL and requires an http(s) scheme and a
// host. Anything else is ErrInvalidURL.
func (a Account) SiteURL() (*url.URL, error) {
	u, err := url.Parse(a.SanitizedBaseURL())
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}
	return u, nil
}

// CredentialKey is the key the account's token is stored under.
func (a Account) CredentialKey() string {
	if a.Type == AccountDataCenter {
		return "pat@" + a.BaseURL
	}
	return a.Email + "@" + a.BaseURL
}

// Connection pairs an account with its resolved token for a single remote call.
type Connection struct {
	Account Account
	Token   string
}

// UserInfo is the profile returned by the /myself endpoint.
type UserInfo struct {
	DisplayName string
	AvatarURL   *string
}
