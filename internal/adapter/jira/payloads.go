package jira

import "jira-timer/internal/domain"

type worklogRequest struct {
	TimeSpentSeconds int    `json:"timeSpentSeconds"`
	Started          string `json:"started"`
	Comment          any    `json:"comment"`
}

type worklogResponse struct {
	ID               string `json:"id"`
	IssueID          string `json:"issueId"`
	TimeSpentSeconds int    `json:"timeSpentSeconds"`
}

type rawUserInfo struct {
	DisplayName string            `json:"displayName"`
	AvatarURLs  map[string]string `json:"avatarUrls"`
}

// rawSearchResponse covers both /search (Data Center) and /search/jql (Cloud).
type rawSearchResponse struct {
	Issues []rawIssue `json:"issues"`
	Total  *int       `json:"total"`
	IsLast *bool      `json:"isLast"`
}

type rawIssue struct {
	ID     string    `json:"id"`
	Key    string    `json:"key"`
	Fields rawFields `json:"fields"`
}

type rawFields struct {
	Summary string `json:"summary"`
	Status  struct {
		Name           string `json:"name"`
		StatusCategory *struct {
			ColorName string `json:"colorName"`
		} `json:"statusCategory"`
	} `json:"status"`
	Assignee *struct {
		DisplayName  string  `json:"displayName"`
		EmailAddress *string `json:"emailAddress"`
	} `json:"assignee"`
	Priority *struct {
		Name string `json:"name"`
	} `json:"priority"`
	IssueType struct {
		Name string `json:"name"`
	} `json:"issuetype"`
	TimeTracking *struct {
		TimeSpentSeconds *int `json:"timeSpentSeconds"`
	} `json:"timetracking"`
	Parent *struct {
		Key    string `json:"key"`
		Fields struct {
			Summary string `json:"summary"`
		} `json:"fields"`
	} `json:"parent"`
}

func (r rawIssue) toDomain() domain.Issue {
	f := r.Fields
	out := domain.Issue{
		ID:        r.ID,
		Key:       r.Key,
		Summary:   f.Summary,
		Status:    f.Status.Name,
		IssueType: f.IssueType.Name,
	}
	if f.Status.StatusCategory != nil {
		c := f.Status.StatusCategory.ColorName
		out.StatusCategory = &c
	}
	if f.Assignee != nil {
		a := f.Assignee.DisplayName
		out.Assignee = &a
	}
	if f.Priority != nil {
		p := f.Priority.Name
		out.Priority = &p
	}
	if f.TimeTracking != nil {
		out.TimeSpentSeconds = f.TimeTracking.TimeSpentSeconds
	}
	if f.Parent != nil {
		k, s := f.Parent.Key, f.Parent.Fields.Summary
		out.ParentKey = &k
		out.ParentSummary = &s
	}
	return out
}
