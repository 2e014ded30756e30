package domain

import "fmt"

// Issue is a Jira issue as shown in the candidate list.
type Issue struct {
	ID               string
	Key              string
	Summary          string
	Status           string
	StatusCategory   *string
	Assignee         *string
	Priority         *string
	IssueType        string
	TimeSpentSeconds *int
	ParentKey        *string
	ParentSummary    *string
}

func (i Issue) DisplayName() string { return i.Key + ": " + i.Summary }

// FormattedTimeSpent returns the logged time as "2h 5m", "5m" or "40s",
// or "" when nothing has been logged yet.
func (i Issue) FormattedTimeSpent() string {
	if i.TimeSpentSeconds == nil || *i.TimeSpentSeconds <= 0 {
		return ""
	}
	s := *i.TimeSpentSeconds
	h, m := s/3600, (s%3600)/60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
