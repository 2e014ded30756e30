package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"jira-timer/internal/domain"
	"jira-timer/internal/ports"
)

// NewAccount is the input for Coordinator.AddAccount.
type NewAccount struct {
	Name    string
	BaseURL string
	Email   string
	Type    domain.AccountType
	Token   string
}

func (n NewAccount) validate() error {
	var missing []string
	if strings.TrimSpace(n.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(n.BaseURL) == "" {
		missing = append(missing, "base url")
	} else if _, err := (domain.Account{BaseURL: n.BaseURL}).SiteURL(); err != nil {
		missing = append(missing, "a valid http(s) base url")
	}
	if n.Type == domain.AccountCloud && strings.TrimSpace(n.Email) == "" {
		missing = append(missing, "email")
	}
	if n.Token == "" {
		missing = append(missing, "token")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// ErrAccountInUse is returned when deleting an account that still owns timers.
var ErrAccountInUse = errors.New("account has running or unsubmitted timers")

// TimerGuard reports whether an account still owns timers.
type TimerGuard interface {
	HoldsAccount(accountID uuid.UUID) bool
}

// ValidationError names the required account fields that were left empty or malformed.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "account is missing " + strings.Join(e.Fields, ", ")
}

// Coordinator holds the selected account and its issue list and forwards
// errors to whoever renders them.
type Coordinator struct {
	accounts ports.AccountStore
	creds    ports.CredentialStore
	jira     ports.JiraClient
	clock    clockwork.Clock
	log      *slog.Logger
	timers   TimerGuard

	mu       sync.RWMutex
	selected *domain.Account
	issues   []domain.Issue
	lastErr  error
}

func NewCoordinator(accounts ports.AccountStore, creds ports.CredentialStore, jira ports.JiraClient, clock clockwork.Clock, log *slog.Logger) *Coordinator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Coordinator{accounts: accounts, creds: creds, jira: jira, clock: clock, log: log}
}

// GuardTimers makes DeleteAccount refuse accounts that g still holds.
func (c *Coordinator) GuardTimers(g TimerGuard) {
	c.timers = g
}

// LoadInitial selects the active account, or activates the first one by
// name when none is marked active, and loads its issues. No accounts is not
// an error and neither is a failed refresh; that one is kept for LastError.
func (c *Coordinator) LoadInitial(ctx context.Context) error {
	list, err := c.accounts.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	if len(list) == 0 {
		c.log.Info("no accounts configured")
		return nil
	}
	pick := list[0]
	for _, a := range list {
		if a.IsActive {
			pick = a
			break
		}
	}
	if !pick.IsActive {
		if err := c.accounts.ActivateAccount(ctx, pick.ID); err != nil {
			c.log.Warn("could not persist active account", slog.String("account", pick.Name), slog.String("error", err.Error()))
		} else {
			pick.IsActive = true
		}
	}
	c.mu.Lock()
	c.selected = &pick
	c.mu.Unlock()
	c.log.Info("account selected", slog.String("account", pick.Name), slog.String("type", string(pick.Type)))

	_ = c.RefreshIssues(ctx)
	return nil
}

// SelectAccount makes id the active account and refreshes its issues.
func (c *Coordinator) SelectAccount(ctx context.Context, id uuid.UUID) error {
	account, err := c.accounts.FetchAccount(ctx, id)
	if err != nil {
		return err
	}
	if err := c.accounts.ActivateAccount(ctx, id); err != nil {
		c.log.Warn("could not persist active account", slog.String("account", account.Name), slog.String("error", err.Error()))
	}
	account.IsActive = true

	c.mu.Lock()
	c.selected = &account
	c.issues = nil
	c.lastErr = nil
	c.mu.Unlock()

	return c.RefreshIssues(ctx)
}

// RefreshIssues reloads the issues assigned to the current user. On failure
// the list is cleared and the error kept for LastError.
func (c *Coordinator) RefreshIssues(ctx context.Context) error {
	c.mu.RLock()
	sel := c.selected
	c.mu.RUnlock()
	if sel == nil {
		return domain.ErrNoAccountSelected
	}
	account := *sel

	issues, err := c.fetchIssues(ctx, account)
	if err != nil {
		c.mu.Lock()
		c.issues = nil
		c.lastErr = err
		c.mu.Unlock()
		c.log.Warn("refresh issues failed", slog.String("account", account.Name), slog.String("error", err.Error()))
		return err
	}

	now := c.clock.Now()
	if err := c.accounts.TouchAccountSynced(ctx, account.ID, now); err != nil {
		c.log.Warn("could not record sync time", slog.String("account", account.Name), slog.String("error", err.Error()))
	}

	c.mu.Lock()
	c.issues = issues
	c.lastErr = nil
	if c.selected != nil && c.selected.ID == account.ID {
		c.selected.LastSyncedAt = &now
	}
	c.mu.Unlock()
	c.log.Info("issues refreshed", slog.String("account", account.Name), slog.Int("count", len(issues)))
	return nil
}

func (c *Coordinator) fetchIssues(ctx context.Context, account domain.Account) ([]domain.Issue, error) {
	conn, err := c.connect(ctx, account)
	if err != nil {
		return nil, err
	}
	return c.jira.FetchAssignedIssues(ctx, conn)
}

func (c *Coordinator) connect(ctx context.Context, account domain.Account) (domain.Connection, error) {
	token, err := c.creds.Get(ctx, account.CredentialKey())
	if err != nil {
		return domain.Connection{}, fmt.Errorf("token for account %s: %w", account.Name, err)
	}
	return domain.Connection{Account: account, Token: token}, nil
}

func (c *Coordinator) Issues() []domain.Issue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Issue, len(c.issues))
	copy(out, c.issues)
	return out
}

// SelectedAccount returns false when nothing is selected.
func (c *Coordinator) SelectedAccount() (domain.Account, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.selected == nil {
		return domain.Account{}, false
	}
	return *c.selected, true
}

func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// AddAccount stores the token, persists the account and then fills in the
// user profile when the site answers. Only the two writes can fail the call.
func (c *Coordinator) AddAccount(ctx context.Context, in NewAccount) (domain.Account, error) {
	if err := in.validate(); err != nil {
		return domain.Account{}, err
	}
	account := domain.Account{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(in.Name),
		BaseURL:   strings.TrimSpace(in.BaseURL),
		Email:     strings.TrimSpace(in.Email),
		Type:      in.Type,
		CreatedAt: c.clock.Now(),
	}
	if account.Type == domain.AccountDataCenter {
		account.Email = ""
	}

	if err := c.creds.Set(ctx, account.CredentialKey(), in.Token); err != nil {
		return domain.Account{}, fmt.Errorf("store token: %w", err)
	}
	if err := c.accounts.SaveAccount(ctx, account); err != nil {
		return domain.Account{}, fmt.Errorf("save account: %w", err)
	}
	c.log.Info("account added", slog.String("account", account.Name), slog.String("type", string(account.Type)))

	conn := domain.Connection{Account: account, Token: in.Token}
	info, err := c.jira.FetchUserInfo(ctx, conn)
	if err != nil {
		c.log.Warn("could not fetch user profile", slog.String("account", account.Name), slog.String("error", err.Error()))
		return account, nil
	}
	if err := c.accounts.UpdateAccountProfile(ctx, account.ID, info); err != nil {
		c.log.Warn("could not save user profile", slog.String("account", account.Name), slog.String("error", err.Error()))
		return account, nil
	}
	account.Username = &info.DisplayName
	account.AvatarURL = info.AvatarURL
	return account, nil
}

// DeleteAccount removes the account, its time entries and its token. The
// selection is cleared when it pointed at the account.
func (c *Coordinator) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	account, err := c.accounts.FetchAccount(ctx, id)
	if err != nil {
		return err
	}
	if c.timers != nil && c.timers.HoldsAccount(id) {
		return fmt.Errorf("delete %s: %w", account.Name, ErrAccountInUse)
	}
	if err := c.accounts.DeleteAccount(ctx, id); err != nil {
		return err
	}
	if c.tokenShared(ctx, account) {
		c.log.Info("token kept for another account", slog.String("account", account.Name))
	} else if err := c.creds.Delete(ctx, account.CredentialKey()); err != nil && !errors.Is(err, domain.ErrCredentialNotFound) {
		c.log.Warn("could not delete token", slog.String("account", account.Name), slog.String("error", err.Error()))
	}

	c.mu.Lock()
	if c.selected != nil && c.selected.ID == id {
		c.selected = nil
		c.issues = nil
		c.lastErr = nil
	}
	c.mu.Unlock()
	c.log.Info("account deleted", slog.String("account", account.Name))
	return nil
}

// tokenShared reports whether a remaining account stores its token under
// the same key. A failed lookup counts as shared so nothing is lost.
func (c *Coordinator) tokenShared(ctx context.Context, deleted domain.Account) bool {
	list, err := c.accounts.ListAccounts(ctx)
	if err != nil {
		c.log.Warn("could not list accounts", slog.String("error", err.Error()))
		return true
	}
	for _, a := range list {
		if a.ID != deleted.ID && a.CredentialKey() == deleted.CredentialKey() {
			return true
		}
	}
	return false
}

// TestConnection checks that the stored token is accepted by the account's site.
func (c *Coordinator) TestConnection(ctx context.Context, id uuid.UUID) (bool, error) {
	account, err := c.accounts.FetchAccount(ctx, id)
	if err != nil {
		return false, err
	}
	conn, err := c.connect(ctx, account)
	if err != nil {
		return false, err
	}
	ok, err := c.jira.TestConnection(ctx, conn)
	if err != nil {
		return false, err
	}
	c.log.Info("connection tested", slog.String("account", account.Name), slog.Bool("ok", ok))
	return ok, nil
}

// Accounts lists configured accounts ordered by name.
func (c *Coordinator) Accounts(ctx context.Context) ([]domain.Account, error) {
	return c.accounts.ListAccounts(ctx)
}

// ResolveAccount returns id when set, otherwise the selected account.
func (c *Coordinator) ResolveAccount(id uuid.UUID) (uuid.UUID, error) {
	if id != uuid.Nil {
		return id, nil
	}
	a, ok := c.SelectedAccount()
	if !ok {
		return uuid.Nil, domain.ErrNoAccountSelected
	}
	return a.ID, nil
}
