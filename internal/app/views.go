package app

import (
	"time"

	"github.com/google/uuid"

	"jira-timer/internal/domain"
	"jira-timer/internal/usecase"
)

// Request and response bodies of the control API. The CLI decodes the same types.

type StartRequest struct {
	IssueKey     string `json:"issueKey"`
	IssueSummary string `json:"issueSummary,omitempty"`
	AccountID    string `json:"accountId,omitempty"`
}

type AddAccountRequest struct {
	Name    string `json:"name"`
	BaseURL string `json:"baseUrl"`
	Email   string `json:"email,omitempty"`
	Type    string `json:"type"`
	Token   string `json:"token"`
}

type TimerView struct {
	EntryID      uuid.UUID `json:"entryId"`
	IssueKey     string    `json:"issueKey"`
	IssueSummary string    `json:"issueSummary"`
	AccountID    uuid.UUID `json:"accountId"`
	StartTime    time.Time `json:"startTime"`
	Elapsed      string    `json:"elapsed"`
}

type EntryView struct {
	ID           uuid.UUID  `json:"id"`
	IssueKey     string     `json:"issueKey"`
	IssueSummary string     `json:"issueSummary"`
	StartTime    time.Time  `json:"startTime"`
	EndTime      *time.Time `json:"endTime,omitempty"`
	Duration     string     `json:"duration,omitempty"`
	IsSynced     bool       `json:"isSynced"`
	WorklogID    *string    `json:"worklogId,omitempty"`
	AccountID    uuid.UUID  `json:"accountId"`
}

type IssueView struct {
	Key        string  `json:"key"`
	Summary    string  `json:"summary"`
	Status     string  `json:"status"`
	IssueType  string  `json:"issueType"`
	Priority   *string `json:"priority,omitempty"`
	ParentKey  *string `json:"parentKey,omitempty"`
	TimeSpent  string  `json:"timeSpent,omitempty"`
	Active     bool    `json:"active"`
	ElapsedHMS string  `json:"elapsed"`
}

type AccountView struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	BaseURL      string     `json:"baseUrl"`
	Email        string     `json:"email,omitempty"`
	Type         string     `json:"type"`
	IsActive     bool       `json:"isActive"`
	Selected     bool       `json:"selected"`
	Username     *string    `json:"username,omitempty"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
}

func timerView(t usecase.ActiveTimer) TimerView {
	return TimerView{
		EntryID:      t.EntryID,
		IssueKey:     t.IssueKey,
		IssueSummary: t.IssueSummary,
		AccountID:    t.AccountID,
		StartTime:    t.StartTime,
		Elapsed:      domain.FormatClock(t.Elapsed),
	}
}

func entryView(e domain.TimeEntry) EntryView {
	v := EntryView{
		ID:           e.ID,
		IssueKey:     e.IssueKey,
		IssueSummary: e.IssueSummary,
		StartTime:    e.StartTime,
		EndTime:      e.EndTime,
		IsSynced:     e.IsSynced,
		WorklogID:    e.WorklogID,
		AccountID:    e.AccountID,
	}
	if e.EndTime != nil {
		v.Duration = domain.FormatDuration(e.Duration(*e.EndTime))
	}
	return v
}

func accountView(a domain.Account, selected bool) AccountView {
	return AccountView{
		ID:           a.ID,
		Name:         a.Name,
		BaseURL:      a.BaseURL,
		Email:        a.Email,
		Type:         string(a.Type),
		IsActive:     a.IsActive,
		Selected:     selected,
		Username:     a.Username,
		LastSyncedAt: a.LastSyncedAt,
	}
}
