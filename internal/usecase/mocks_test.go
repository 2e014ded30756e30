package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"jira-timer/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errStoreDown = errors.New("store unavailable")

// memStore satisfies both ports.SessionStore and ports.AccountStore.
type memStore struct {
	mu       sync.Mutex
	entries  map[uuid.UUID]domain.TimeEntry
	accounts map[uuid.UUID]domain.Account

	failInsert   bool
	failSave     bool
	failDelete   bool
	failActivate bool
	failTouch    bool
	saves        int
}

func newMemStore() *memStore {
	return &memStore{
		entries:  make(map[uuid.UUID]domain.TimeEntry),
		accounts: make(map[uuid.UUID]domain.Account),
	}
}

func (s *memStore) setFailSave(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSave = v
}

func (s *memStore) entry(id uuid.UUID) (domain.TimeEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return e, ok
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *memStore) InsertEntry(_ context.Context, e domain.TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert {
		return errStoreDown
	}
	if _, ok := s.accounts[e.AccountID]; !ok {
		return domain.ErrAccountNotFound
	}
	s.entries[e.ID] = e
	return nil
}

func (s *memStore) SaveEntry(_ context.Context, e domain.TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return errStoreDown
	}
	s.saves++
	if prev, ok := s.entries[e.ID]; ok && prev.EndTime != nil && e.EndTime == nil {
		e.EndTime = prev.EndTime
	}
	s.entries[e.ID] = e
	return nil
}

func (s *memStore) DeleteEntry(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete {
		return errStoreDown
	}
	if _, ok := s.entries[id]; !ok {
		return domain.ErrEntryNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *memStore) GetEntry(_ context.Context, id uuid.UUID) (domain.TimeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return domain.TimeEntry{}, domain.ErrEntryNotFound
	}
	return e, nil
}

func (s *memStore) QueryRunning(_ context.Context) ([]domain.TimeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TimeEntry
	for _, e := range s.entries {
		if e.EndTime == nil {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (s *memStore) ListUnsynced(_ context.Context) ([]domain.TimeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TimeEntry
	for _, e := range s.entries {
		if e.EndTime != nil && !e.IsSynced {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *memStore) FetchAccount(_ context.Context, id uuid.UUID) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return a, nil
}

func (s *memStore) SaveAccount(_ context.Context, a domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
	return nil
}

func (s *memStore) ListAccounts(_ context.Context) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) ActivateAccount(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failActivate {
		return errStoreDown
	}
	if _, ok := s.accounts[id]; !ok {
		return domain.ErrAccountNotFound
	}
	for k, a := range s.accounts {
		a.IsActive = k == id
		s.accounts[k] = a
	}
	return nil
}

func (s *memStore) DeleteAccount(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return domain.ErrAccountNotFound
	}
	delete(s.accounts, id)
	for k, e := range s.entries {
		if e.AccountID == id {
			delete(s.entries, k)
		}
	}
	return nil
}

func (s *memStore) TouchAccountSynced(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTouch {
		return errStoreDown
	}
	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.LastSyncedAt = &at
	s.accounts[id] = a
	return nil
}

func (s *memStore) UpdateAccountProfile(_ context.Context, id uuid.UUID, info domain.UserInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	name := info.DisplayName
	a.Username = &name
	a.AvatarURL = info.AvatarURL
	s.accounts[id] = a
	return nil
}

type memCreds struct {
	mu      sync.Mutex
	secrets map[string]string
}

func newMemCreds() *memCreds { return &memCreds{secrets: make(map[string]string)} }

func (c *memCreds) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.secrets[key]
	if !ok {
		return "", domain.ErrCredentialNotFound
	}
	return v, nil
}

func (c *memCreds) Set(_ context.Context, key, secret string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secrets[key] = secret
	return nil
}

func (c *memCreds) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.secrets, key)
	return nil
}

// fakeJira records worklogs and answers with whatever its hooks return.
type fakeJira struct {
	mu       sync.Mutex
	worklogs []domain.Worklog
	conns    []domain.Connection

	submitErr error
	// block, when set, holds SubmitWorklog until closed.
	block  chan struct{}
	issues []domain.Issue
	issErr error
	user   domain.UserInfo
	usrErr error
	testOK bool
	nextID int
}

func (f *fakeJira) submitted() []domain.Worklog {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Worklog, len(f.worklogs))
	copy(out, f.worklogs)
	return out
}

func (f *fakeJira) FetchAssignedIssues(_ context.Context, conn domain.Connection) ([]domain.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns = append(f.conns, conn)
	return f.issues, f.issErr
}

func (f *fakeJira) SubmitWorklog(ctx context.Context, conn domain.Connection, w domain.Worklog) (string, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", &domain.NetworkError{Err: ctx.Err()}
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns = append(f.conns, conn)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.worklogs = append(f.worklogs, w)
	f.nextID++
	return fmt.Sprintf("wl-%d", f.nextID), nil
}

func (f *fakeJira) TestConnection(_ context.Context, conn domain.Connection) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns = append(f.conns, conn)
	return f.testOK, nil
}

func (f *fakeJira) FetchUserInfo(_ context.Context, conn domain.Connection) (domain.UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns = append(f.conns, conn)
	return f.user, f.usrErr
}
