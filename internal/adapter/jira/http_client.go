package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"jira-timer/internal/domain"
	"jira-timer/internal/metrics"
)

const (
	// startedLayout is Jira's worklog timestamp: local time with a numeric offset.
	startedLayout = "2006-01-02T15:04:05.000-0700"

	searchJQL    = "assignee = currentUser()"
	searchLimit  = "30"
	searchFields = "summary,status,assignee,priority,issuetype,timetracking,parent"

	maxBodyBytes  = 1 << 20
	maxErrorBytes = 4096
)

// Client implements ports.JiraClient against the Jira REST API.
type Client struct {
	http *http.Client
	loc  *time.Location
	log  *slog.Logger
}

// NewClient builds a client whose worklog timestamps are rendered in loc.
func NewClient(timeout time.Duration, loc *time.Location, log *slog.Logger) *Client {
	if loc == nil {
		loc = time.Local
	}
	return &Client{
		http: &http.Client{
			Timeout: timeout,
		},
		loc: loc,
		log: log,
	}
}

// FetchAssignedIssues lists up to 30 issues assigned to the token's user.
// Cloud: GET /rest/api/3/search/jql, Data Center: GET /rest/api/2/search.
func (c *Client) FetchAssignedIssues(ctx context.Context, conn domain.Connection) ([]domain.Issue, error) {
	d := dialectFor(conn.Account.Type)
	q := url.Values{}
	q.Set("jql", searchJQL)
	q.Set("maxResults", searchLimit)
	q.Set("fields", searchFields)

	var raw rawSearchResponse
	if err := c.call(ctx, conn, "search", http.MethodGet, d.searchPath, q, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Issue, 0, len(raw.Issues))
	for _, r := range raw.Issues {
		if r.Key == "" {
			return nil, &domain.DecodingError{Err: errors.New("issue without key")}
		}
		out = append(out, r.toDomain())
	}
	c.log.Debug("fetched assigned issues", slog.String("dialect", d.name), slog.Int("count", len(out)))
	return out, nil
}

// SubmitWorklog posts a worklog and returns its id.
// POST /rest/api/{2|3}/issue/{key}/worklog
func (c *Client) SubmitWorklog(ctx context.Context, conn domain.Connection, w domain.Worklog) (string, error) {
	d := dialectFor(conn.Account.Type)
	body := worklogRequest{
		TimeSpentSeconds: w.TimeSpentSeconds,
		Started:          w.StartedAt.In(c.loc).Format(startedLayout),
		Comment:          d.comment(w.Comment),
	}
	path := fmt.Sprintf("/rest/api/%s/issue/%s/worklog", d.apiVersion, url.PathEscape(w.IssueKey))

	var resp worklogResponse
	if err := c.call(ctx, conn, "worklog", http.MethodPost, path, nil, body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &domain.DecodingError{Err: errors.New("worklog response without id")}
	}
	c.log.Info("worklog submitted",
		slog.String("issue", w.IssueKey),
		slog.Int("seconds", w.TimeSpentSeconds),
		slog.String("worklog_id", resp.ID),
	)
	return resp.ID, nil
}

// TestConnection reports whether /myself answers 200 for these credentials.
// Only transport failures are returned as errors.
func (c *Client) TestConnection(ctx context.Context, conn domain.Connection) (bool, error) {
	d := dialectFor(conn.Account.Type)
	status, _, err := c.send(ctx, conn, "myself", http.MethodGet, "/rest/api/"+d.apiVersion+"/myself", nil, nil)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// FetchUserInfo returns the display name and 48x48 avatar of the token's user.
func (c *Client) FetchUserInfo(ctx context.Context, conn domain.Connection) (domain.UserInfo, error) {
	d := dialectFor(conn.Account.Type)
	var raw rawUserInfo
	if err := c.call(ctx, conn, "myself", http.MethodGet, "/rest/api/"+d.apiVersion+"/myself", nil, nil, &raw); err != nil {
		return domain.UserInfo{}, err
	}
	info := domain.UserInfo{DisplayName: raw.DisplayName}
	if a := raw.AvatarURLs["48x48"]; a != "" {
		info.AvatarURL = &a
	}
	return info, nil
}

// call sends the request and maps the status code onto the error taxonomy.
// A 2xx body is decoded into out when out is non-nil.
func (c *Client) call(ctx context.Context, conn domain.Connection, op, method, path string, q url.Values, payload, out any) error {
	status, body, err := c.send(ctx, conn, op, method, path, q, payload)
	if err != nil {
		return err
	}
	switch {
	case status >= 200 && status < 300:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return &domain.DecodingError{Err: err}
		}
		return nil
	case status == http.StatusUnauthorized:
		return domain.ErrUnauthorized
	default:
		if len(body) > maxErrorBytes {
			body = body[:maxErrorBytes]
		}
		return &domain.ServerError{StatusCode: status, Body: string(body)}
	}
}

func (c *Client) send(ctx context.Context, conn domain.Connection, op, method, path string, q url.Values, payload any) (int, []byte, error) {
	d := dialectFor(conn.Account.Type)
	if _, err := conn.Account.SiteURL(); err != nil {
		return 0, nil, err
	}
	u, err := url.Parse(conn.Account.SanitizedBaseURL() + path)
	if err != nil || u.Host == "" {
		return 0, nil, domain.ErrInvalidURL
	}
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return 0, nil, domain.ErrInvalidURL
	}
	req.Header.Set("Authorization", d.auth(conn))
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.JiraRequestDuration.WithLabelValues(op, d.name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.JiraRequestsTotal.WithLabelValues(op, d.name, "network_error").Inc()
		return 0, nil, &domain.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.JiraRequestsTotal.WithLabelValues(op, d.name, "network_error").Inc()
		return 0, nil, &domain.NetworkError{Err: err}
	}
	metrics.JiraRequestsTotal.WithLabelValues(op, d.name, resultLabel(resp.StatusCode)).Inc()
	c.log.Debug("jira request",
		slog.String("op", op),
		slog.String("method", method),
		slog.String("path", u.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("dur", time.Since(start)),
	)
	return resp.StatusCode, body, nil
}

func resultLabel(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "ok"
	case status == http.StatusUnauthorized:
		return "unauthorized"
	default:
		return "server_error"
	}
}
