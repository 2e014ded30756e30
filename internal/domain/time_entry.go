package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// MinWorklogSeconds is the shortest worklog Jira accepts.
const MinWorklogSeconds = 60

// TimeEntry is one tracked work session against an issue.
// A nil EndTime means the timer is still running.
type TimeEntry struct {
	ID           uuid.UUID
	IssueKey     string
	IssueSummary string
	StartTime    time.Time
	EndTime      *time.Time
	Comment      *string
	IsSynced     bool
	SyncedAt     *time.Time
	WorklogID    *string
	AccountID    uuid.UUID
}

func (e TimeEntry) Running() bool { return e.EndTime == nil }

// Duration returns (EndTime or now) - StartTime, never negative.
func (e TimeEntry) Duration(now time.Time) time.Duration {
	end := now
	if e.EndTime != nil {
		end = *e.EndTime
	}
	d := end.Sub(e.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// BillableSeconds rounds d to whole seconds and applies the one-minute floor.
func BillableSeconds(d time.Duration) int {
	s := int(math.Round(d.Seconds()))
	if s < MinWorklogSeconds {
		return MinWorklogSeconds
	}
	return s
}

// FormatClock renders d as HH:MM:SS.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total/60%60, total%60)
}

// FormatDuration renders d compactly, e.g. "1h 05m 09s", "4m 02s", "7s".
func FormatDuration(d time.Duration) string {
	total := int(d / time.Second)
	h, m, s := total/3600, total/60%60, total%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// Worklog is what gets pushed to Jira for a stopped entry.
type Worklog struct {
	IssueKey         string
	TimeSpentSeconds int
	StartedAt        time.Time
	Comment          string
}
