package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"jira-timer/internal/domain"
)

const entryColumns = `id, issue_key, issue_summary, start_time, end_time, comment, is_synced, synced_at, worklog_id, account_id`

func (s *Store) InsertEntry(ctx context.Context, e domain.TimeEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO time_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.IssueKey, e.IssueSummary, formatTime(e.StartTime), nullTime(e.EndTime),
		nullString(e.Comment), e.IsSynced, nullTime(e.SyncedAt), nullString(e.WorklogID), e.AccountID.String(),
	)
	if err != nil {
		return fmt.Errorf("insert entry %s: %w", e.ID, err)
	}
	return nil
}

// SaveEntry upserts the entry. An end time already on disk is never cleared.
func (s *Store) SaveEntry(ctx context.Context, e domain.TimeEntry) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO time_entries (`+entryColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  issue_summary=excluded.issue_summary,
  end_time=COALESCE(time_entries.end_time, excluded.end_time),
  comment=excluded.comment,
  is_synced=excluded.is_synced,
  synced_at=excluded.synced_at,
  worklog_id=excluded.worklog_id`,
		e.ID.String(), e.IssueKey, e.IssueSummary, formatTime(e.StartTime), nullTime(e.EndTime),
		nullString(e.Comment), e.IsSynced, nullTime(e.SyncedAt), nullString(e.WorklogID), e.AccountID.String(),
	)
	if err != nil {
		return fmt.Errorf("save entry %s: %w", e.ID, err)
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM time_entries WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, id uuid.UUID) (domain.TimeEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE id = ?`, id.String())
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TimeEntry{}, domain.ErrEntryNotFound
	}
	if err != nil {
		return domain.TimeEntry{}, fmt.Errorf("get entry %s: %w", id, err)
	}
	return e, nil
}

func (s *Store) QueryRunning(ctx context.Context) ([]domain.TimeEntry, error) {
	return s.listEntries(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE end_time IS NULL ORDER BY start_time DESC`)
}

func (s *Store) ListUnsynced(ctx context.Context) ([]domain.TimeEntry, error) {
	return s.listEntries(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE end_time IS NOT NULL AND is_synced = 0 ORDER BY start_time ASC`)
}

func (s *Store) listEntries(ctx context.Context, query string) ([]domain.TimeEntry, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (domain.TimeEntry, error) {
	var (
		e                          domain.TimeEntry
		id, accountID, start       string
		end, comment, synced, wlID sql.NullString
	)
	if err := sc.Scan(&id, &e.IssueKey, &e.IssueSummary, &start, &end, &comment, &e.IsSynced, &synced, &wlID, &accountID); err != nil {
		return e, err
	}
	var err error
	if e.ID, err = uuid.Parse(id); err != nil {
		return e, fmt.Errorf("entry id %q: %w", id, err)
	}
	if e.AccountID, err = uuid.Parse(accountID); err != nil {
		return e, fmt.Errorf("entry %s account id: %w", id, err)
	}
	if e.StartTime, err = parseTime(start); err != nil {
		return e, fmt.Errorf("entry %s start_time: %w", id, err)
	}
	if e.EndTime, err = parseNullTime(end); err != nil {
		return e, fmt.Errorf("entry %s end_time: %w", id, err)
	}
	if e.SyncedAt, err = parseNullTime(synced); err != nil {
		return e, fmt.Errorf("entry %s synced_at: %w", id, err)
	}
	e.Comment = stringPtr(comment)
	e.WorklogID = stringPtr(wlID)
	return e, nil
}
