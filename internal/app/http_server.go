package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jira-timer/internal/domain"
	"jira-timer/internal/usecase"
)

// HTTPServer returns a configured http.Server exposing the local control API.
// Call ListenAndServe on the returned server in a goroutine and Shutdown it on exit.
func (a *App) HTTPServer(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           loggingMiddleware(a.log, a.routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.log.Info("http control server configured", slog.String("addr", addr))
	return srv
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /timers", a.handleListTimers)
	mux.HandleFunc("POST /timers", a.handleStartTimer)
	mux.HandleFunc("POST /timers/{key}/stop", a.handleStopTimer)
	mux.HandleFunc("POST /timers/{key}/cancel", a.handleCancelTimer)

	mux.HandleFunc("GET /entries/unsynced", a.handleUnsynced)
	mux.HandleFunc("POST /entries/{id}/resubmit", a.handleResubmit)

	mux.HandleFunc("GET /issues", a.handleIssues)

	mux.HandleFunc("GET /accounts", a.handleListAccounts)
	mux.HandleFunc("POST /accounts", a.handleAddAccount)
	mux.HandleFunc("POST /accounts/{id}/select", a.handleSelectAccount)
	mux.HandleFunc("POST /accounts/{id}/test", a.handleTestAccount)
	mux.HandleFunc("DELETE /accounts/{id}", a.handleDeleteAccount)

	return mux
}

func (a *App) handleListTimers(w http.ResponseWriter, r *http.Request) {
	active := a.sessions.Active()
	out := make([]TimerView, 0, len(active))
	for _, t := range active {
		out = append(out, timerView(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) handleStartTimer(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.IssueKey == "" {
		writeError(w, http.StatusBadRequest, "issueKey is required")
		return
	}
	var requested uuid.UUID
	if req.AccountID != "" {
		id, err := uuid.Parse(req.AccountID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid accountId: "+err.Error())
			return
		}
		requested = id
	}
	accountID, err := a.accounts.ResolveAccount(requested)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if req.IssueSummary == "" {
		req.IssueSummary = a.summaryFor(req.IssueKey)
	}

	entry, err := a.sessions.Start(r.Context(), req.IssueKey, req.IssueSummary, accountID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entryView(entry))
}

// summaryFor looks the key up in the last fetched issue list.
func (a *App) summaryFor(key string) string {
	for _, is := range a.accounts.Issues() {
		if is.Key == key {
			return is.Summary
		}
	}
	return ""
}

func (a *App) handleStopTimer(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := a.sessions.Stop(r.Context(), key); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "synced", "issueKey": key})
}

func (a *App) handleCancelTimer(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := a.sessions.Cancel(r.Context(), key); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "cancelled", "issueKey": key})
}

func (a *App) handleUnsynced(w http.ResponseWriter, r *http.Request) {
	entries, err := a.sessions.Unsynced(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryView(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) handleResubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := a.sessions.Resubmit(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "synced", "id": id})
}

// /issues?refresh=1 fetches from Jira first; otherwise the cached list is returned.
func (a *App) handleIssues(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") != "" {
		if err := a.accounts.RefreshIssues(r.Context()); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	issues := a.accounts.Issues()
	out := make([]IssueView, 0, len(issues))
	for _, is := range issues {
		out = append(out, IssueView{
			Key:        is.Key,
			Summary:    is.Summary,
			Status:     is.Status,
			IssueType:  is.IssueType,
			Priority:   is.Priority,
			ParentKey:  is.ParentKey,
			TimeSpent:  is.FormattedTimeSpent(),
			Active:     a.sessions.IsActive(is.Key),
			ElapsedHMS: a.sessions.Elapsed(is.Key),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := a.accounts.Accounts(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	sel, _ := a.accounts.SelectedAccount()
	out := make([]AccountView, 0, len(list))
	for _, acc := range list {
		out = append(out, accountView(acc, acc.ID == sel.ID))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) handleAddAccount(w http.ResponseWriter, r *http.Request) {
	var req AddAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	typ, err := domain.ParseAccountType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acc, err := a.accounts.AddAccount(r.Context(), usecase.NewAccount{
		Name:    req.Name,
		BaseURL: req.BaseURL,
		Email:   req.Email,
		Type:    typ,
		Token:   req.Token,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, accountView(acc, false))
}

func (a *App) handleSelectAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := a.accounts.SelectAccount(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "selected", "id": id, "issues": len(a.accounts.Issues())})
}

func (a *App) handleTestAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	connected, err := a.accounts.TestConnection(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "connected": connected})
}

func (a *App) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := a.accounts.DeleteAccount(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "id": id})
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+": "+err.Error())
		return uuid.Nil, false
	}
	return id, true
}

// fail maps the error taxonomy onto status codes.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Error("request failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNoActiveTimer),
		errors.Is(err, domain.ErrEntryNotFound),
		errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrCredentialNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrAlreadySynced),
		errors.Is(err, domain.ErrEntryRunning),
		errors.Is(err, usecase.ErrSubmitInProgress),
		errors.Is(err, usecase.ErrAccountInUse):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoAccountSelected):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrManagerClosed):
		return http.StatusServiceUnavailable
	case domain.IsRemoteError(err):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	var invalid *usecase.ValidationError
	if errors.As(err, &invalid) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"status": "error", "error": msg})
}

// loggingMiddleware provides basic request logging.
func loggingMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.String("remote", r.RemoteAddr),
			slog.Duration("dur", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
