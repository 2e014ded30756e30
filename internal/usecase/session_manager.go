package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"jira-timer/internal/domain"
	"jira-timer/internal/metrics"
	"jira-timer/internal/ports"
)

const (
	tickInterval   = time.Second
	defaultComment = "Work logged via jira-timer"
)

var (
	ErrManagerClosed    = errors.New("session manager closed")
	ErrSubmitInProgress = errors.New("worklog submission already in progress")
)

// EventKind says which mutation produced an Event.
type EventKind string

const (
	EventStarted    EventKind = "started"
	EventTick       EventKind = "tick"
	EventStopped    EventKind = "stopped"
	EventSyncFailed EventKind = "sync_failed"
	EventCancelled  EventKind = "cancelled"
)

// Event is published after every change to timer state. IssueKey and
// EntryID are empty for ticks.
type Event struct {
	Kind     EventKind
	IssueKey string
	EntryID  uuid.UUID
	Err      error
}

// ActiveTimer is a read-only view of a running entry.
type ActiveTimer struct {
	EntryID      uuid.UUID
	IssueKey     string
	IssueSummary string
	AccountID    uuid.UUID
	StartTime    time.Time
	Elapsed      time.Duration
}

// SessionManagerOptions tunes a SessionManager. Zero values pick defaults.
type SessionManagerOptions struct {
	Clock clockwork.Clock
	// Comment is attached to every worklog.
	Comment string
	// SubmitTimeout bounds a single worklog call; 0 disables the bound.
	SubmitTimeout time.Duration
}

// SessionManager owns the running timers. One mutex serializes every
// mutation of the active set, including ticks; the Jira call made by Stop
// runs outside it.
type SessionManager struct {
	store   ports.SessionStore
	creds   ports.CredentialStore
	jira    ports.JiraClient
	clock   clockwork.Clock
	log     *slog.Logger
	comment string
	timeout time.Duration

	mu       sync.Mutex
	active   []domain.TimeEntry // newest start first
	elapsed  map[uuid.UUID]time.Duration
	pending  map[uuid.UUID]domain.TimeEntry // stopped, Jira call in flight
	unsaved  map[uuid.UUID]domain.TimeEntry // synced but the store write failed
	tickStop chan struct{}                  // nil while the tick loop is down
	closed   bool

	inflight sync.WaitGroup

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewSessionManager adopts every entry the store still has running, so
// timers survive a restart, and starts the tick loop if there are any.
func NewSessionManager(ctx context.Context, store ports.SessionStore, creds ports.CredentialStore, jira ports.JiraClient, log *slog.Logger, opts SessionManagerOptions) (*SessionManager, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Comment == "" {
		opts.Comment = defaultComment
	}
	m := &SessionManager{
		store:   store,
		creds:   creds,
		jira:    jira,
		clock:   opts.Clock,
		log:     log,
		comment: opts.Comment,
		timeout: opts.SubmitTimeout,
		elapsed: make(map[uuid.UUID]time.Duration),
		pending: make(map[uuid.UUID]domain.TimeEntry),
		unsaved: make(map[uuid.UUID]domain.TimeEntry),
		subs:    make(map[int]chan Event),
	}

	running, err := store.QueryRunning(ctx)
	if err != nil {
		return nil, fmt.Errorf("load running timers: %w", err)
	}
	now := m.clock.Now()
	adopted := make(map[string]domain.TimeEntry, len(running))
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range running {
		if newer, ok := adopted[e.IssueKey]; ok {
			m.closeDuplicate(ctx, e, newer.StartTime)
			continue
		}
		adopted[e.IssueKey] = e
		m.active = append(m.active, e)
		m.elapsed[e.ID] = e.Duration(now)
	}
	if len(m.active) > 0 {
		log.Info("recovered running timers", slog.Int("count", len(m.active)))
	}
	m.activeChangedLocked()
	return m, nil
}

// closeDuplicate ends an older running entry for a key that already has a
// newer one at the moment the newer one started. It then shows up in
// Unsynced and can be resubmitted.
func (m *SessionManager) closeDuplicate(ctx context.Context, e domain.TimeEntry, end time.Time) {
	if end.Before(e.StartTime) {
		end = e.StartTime
	}
	e.EndTime = &end
	if err := m.store.SaveEntry(ctx, e); err != nil {
		m.log.Warn("could not close duplicate running entry", slog.String("issue", e.IssueKey), slog.String("id", e.ID.String()), slog.String("error", err.Error()))
		return
	}
	m.log.Warn("closed duplicate running entry", slog.String("issue", e.IssueKey), slog.String("id", e.ID.String()), slog.Duration("duration", e.Duration(end)))
}

// Start begins timing issueKey against accountID. A second Start for a key
// that is already running returns the existing entry and changes nothing.
func (m *SessionManager) Start(ctx context.Context, issueKey, issueSummary string, accountID uuid.UUID) (domain.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.TimeEntry{}, ErrManagerClosed
	}
	m.flushLocked(ctx)

	if i := m.indexLocked(issueKey); i >= 0 {
		return m.active[i], nil
	}

	// Re-read the account: the caller's copy may be stale or deleted.
	account, err := m.store.FetchAccount(ctx, accountID)
	if err != nil {
		return domain.TimeEntry{}, fmt.Errorf("start %s: %w", issueKey, err)
	}

	entry := domain.TimeEntry{
		ID:           uuid.New(),
		IssueKey:     issueKey,
		IssueSummary: issueSummary,
		StartTime:    m.clock.Now(),
		AccountID:    account.ID,
	}
	if err := m.store.InsertEntry(ctx, entry); err != nil {
		return domain.TimeEntry{}, fmt.Errorf("start %s: %w", issueKey, err)
	}

	m.active = append([]domain.TimeEntry{entry}, m.active...)
	m.elapsed[entry.ID] = 0
	m.activeChangedLocked()

	m.log.Info("timer started", slog.String("issue", issueKey), slog.String("id", entry.ID.String()), slog.String("account", account.Name))
	m.emit(Event{Kind: EventStarted, IssueKey: issueKey, EntryID: entry.ID})
	return entry, nil
}

// Stop ends the timer for issueKey and pushes it to Jira.
//
// The end time is committed before the network call, so a failed or
// abandoned submission never loses the tracked span; the entry then stays
// in the store unsynced and the error is returned. If ctx ends while the
// call is in flight Stop returns ctx.Err() and the submission completes in
// the background.
func (m *SessionManager) Stop(ctx context.Context, issueKey string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.flushLocked(ctx)

	i := m.indexLocked(issueKey)
	if i < 0 {
		m.mu.Unlock()
		return domain.ErrNoActiveTimer
	}
	entry := m.active[i]

	account, err := m.store.FetchAccount(ctx, entry.AccountID)
	if err != nil {
		m.mu.Unlock()
		if errors.Is(err, domain.ErrAccountNotFound) {
			return fmt.Errorf("%w: account %s for %s is gone", domain.ErrNoActiveTimer, entry.AccountID, issueKey)
		}
		return fmt.Errorf("stop %s: %w", issueKey, err)
	}

	end := m.clock.Now()
	entry.EndTime = &end
	if err := m.store.SaveEntry(ctx, entry); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("stop %s: %w", issueKey, err)
	}

	m.removeLocked(entry.ID)
	m.pending[entry.ID] = entry
	m.inflight.Add(1)
	m.mu.Unlock()

	m.log.Info("timer stopped", slog.String("issue", issueKey), slog.Duration("duration", entry.Duration(end)))
	return m.dispatch(ctx, entry, account)
}

// Cancel discards the running timer for issueKey without contacting Jira.
// Cancelling a key that is not running is a no-op.
func (m *SessionManager) Cancel(ctx context.Context, issueKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	m.flushLocked(ctx)

	i := m.indexLocked(issueKey)
	if i < 0 {
		return nil
	}
	entry := m.active[i]
	if err := m.store.DeleteEntry(ctx, entry.ID); err != nil && !errors.Is(err, domain.ErrEntryNotFound) {
		return fmt.Errorf("cancel %s: %w", issueKey, err)
	}
	m.removeLocked(entry.ID)

	m.log.Info("timer cancelled", slog.String("issue", issueKey), slog.String("id", entry.ID.String()))
	m.emit(Event{Kind: EventCancelled, IssueKey: issueKey, EntryID: entry.ID})
	return nil
}

// Resubmit retries the Jira call for a stopped entry that never synced.
// There is no automatic retry; this is the user asking again.
func (m *SessionManager) Resubmit(ctx context.Context, entryID uuid.UUID) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.flushLocked(ctx)

	if _, ok := m.pending[entryID]; ok {
		m.mu.Unlock()
		return ErrSubmitInProgress
	}
	if _, ok := m.unsaved[entryID]; ok {
		m.mu.Unlock()
		return domain.ErrAlreadySynced
	}
	entry, err := m.store.GetEntry(ctx, entryID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	switch {
	case entry.Running():
		m.mu.Unlock()
		return domain.ErrEntryRunning
	case entry.IsSynced:
		m.mu.Unlock()
		return domain.ErrAlreadySynced
	}
	account, err := m.store.FetchAccount(ctx, entry.AccountID)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("resubmit %s: %w", entryID, err)
	}
	m.pending[entry.ID] = entry
	m.inflight.Add(1)
	m.mu.Unlock()

	m.log.Info("resubmitting worklog", slog.String("issue", entry.IssueKey), slog.String("id", entry.ID.String()))
	return m.dispatch(ctx, entry, account)
}

// dispatch runs the submission detached from ctx and waits for it unless
// ctx ends first. The caller must have registered entry in pending and
// incremented inflight.
func (m *SessionManager) dispatch(ctx context.Context, entry domain.TimeEntry, account domain.Account) error {
	done := make(chan error, 1)
	go func() {
		defer m.inflight.Done()
		done <- m.submit(context.WithoutCancel(ctx), entry, account)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		m.log.Warn("caller went away, worklog submission continues in background",
			slog.String("issue", entry.IssueKey), slog.String("id", entry.ID.String()))
		return ctx.Err()
	}
}

func (m *SessionManager) submit(ctx context.Context, entry domain.TimeEntry, account domain.Account) error {
	seconds := domain.BillableSeconds(entry.Duration(m.clock.Now()))

	token, err := m.creds.Get(ctx, account.CredentialKey())
	if err != nil {
		err = fmt.Errorf("token for account %s: %w", account.Name, err)
		m.finishFailed(entry, err)
		return err
	}

	callCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	worklogID, err := m.jira.SubmitWorklog(callCtx, domain.Connection{Account: account, Token: token}, domain.Worklog{
		IssueKey:         entry.IssueKey,
		TimeSpentSeconds: seconds,
		StartedAt:        entry.StartTime,
		Comment:          m.comment,
	})
	if err != nil {
		err = fmt.Errorf("submit worklog for %s: %w", entry.IssueKey, err)
		m.finishFailed(entry, err)
		return err
	}

	m.finishSynced(ctx, entry, worklogID, seconds)
	return nil
}

func (m *SessionManager) finishSynced(ctx context.Context, entry domain.TimeEntry, worklogID string, seconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	entry.WorklogID = &worklogID
	entry.IsSynced = true
	entry.SyncedAt = &now
	delete(m.pending, entry.ID)

	if err := m.store.SaveEntry(ctx, entry); err != nil {
		// Jira has the worklog; keep the sync fields until a later save lands.
		m.unsaved[entry.ID] = entry
		m.log.Error("worklog synced but not persisted",
			slog.String("issue", entry.IssueKey), slog.String("worklog_id", worklogID), slog.String("error", err.Error()))
	}

	metrics.WorklogSubmissionsTotal.WithLabelValues("synced").Inc()
	metrics.WorklogSecondsTotal.Add(float64(seconds))
	m.log.Info("worklog synced", slog.String("issue", entry.IssueKey), slog.String("worklog_id", worklogID), slog.Int("seconds", seconds))
	m.emit(Event{Kind: EventStopped, IssueKey: entry.IssueKey, EntryID: entry.ID})
}

func (m *SessionManager) finishFailed(entry domain.TimeEntry, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pending, entry.ID)
	metrics.WorklogSubmissionsTotal.WithLabelValues("failed").Inc()
	m.log.Warn("worklog not synced, entry kept for manual resubmit",
		slog.String("issue", entry.IssueKey), slog.String("id", entry.ID.String()), slog.String("error", err.Error()))
	m.emit(Event{Kind: EventSyncFailed, IssueKey: entry.IssueKey, EntryID: entry.ID, Err: err})
}

// Elapsed returns the last ticked elapsed time for issueKey as HH:MM:SS,
// or "00:00:00" when the key is not running.
func (m *SessionManager) Elapsed(issueKey string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexLocked(issueKey)
	if i < 0 {
		return domain.FormatClock(0)
	}
	return domain.FormatClock(m.elapsed[m.active[i].ID])
}

func (m *SessionManager) IsActive(issueKey string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexLocked(issueKey) >= 0
}

// Active lists running timers, newest start first.
func (m *SessionManager) Active() []ActiveTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ActiveTimer, 0, len(m.active))
	for _, e := range m.active {
		out = append(out, ActiveTimer{
			EntryID:      e.ID,
			IssueKey:     e.IssueKey,
			IssueSummary: e.IssueSummary,
			AccountID:    e.AccountID,
			StartTime:    e.StartTime,
			Elapsed:      m.elapsed[e.ID],
		})
	}
	return out
}

// HoldsAccount reports whether accountID has a running timer or a worklog
// that is still being submitted or persisted.
func (m *SessionManager) HoldsAccount(accountID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.active {
		if e.AccountID == accountID {
			return true
		}
	}
	for _, set := range []map[uuid.UUID]domain.TimeEntry{m.pending, m.unsaved} {
		for _, e := range set {
			if e.AccountID == accountID {
				return true
			}
		}
	}
	return false
}

// Unsynced lists stopped entries that have not reached Jira.
func (m *SessionManager) Unsynced(ctx context.Context) ([]domain.TimeEntry, error) {
	entries, err := m.store.ListUnsynced(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := entries[:0]
	for _, e := range entries {
		if _, ok := m.unsaved[e.ID]; ok {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Subscribe returns a channel of state changes and a func to unsubscribe.
// Slow subscribers miss events rather than block the manager.
func (m *SessionManager) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subMu.Unlock()

	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// Close stops the tick loop, waits for in-flight submissions and makes a
// last attempt to persist sync results that failed to save.
func (m *SessionManager) Close(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	m.haltTickingLocked()
	m.mu.Unlock()

	m.inflight.Wait()

	m.mu.Lock()
	m.flushLocked(ctx)
	m.mu.Unlock()
}

func (m *SessionManager) emit(ev Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (m *SessionManager) indexLocked(issueKey string) int {
	for i, e := range m.active {
		if e.IssueKey == issueKey {
			return i
		}
	}
	return -1
}

func (m *SessionManager) removeLocked(id uuid.UUID) {
	for i, e := range m.active {
		if e.ID == id {
			m.active = append(m.active[:i], m.active[i+1:]...)
			break
		}
	}
	delete(m.elapsed, id)
	m.activeChangedLocked()
}

// activeChangedLocked keeps the tick loop running exactly while there is
// something to tick.
func (m *SessionManager) activeChangedLocked() {
	metrics.ActiveTimers.Set(float64(len(m.active)))
	if len(m.active) == 0 {
		m.haltTickingLocked()
		return
	}
	if m.tickStop != nil || m.closed {
		return
	}
	stop := make(chan struct{})
	m.tickStop = stop
	go m.tickLoop(m.clock.NewTicker(tickInterval), stop)
	m.log.Debug("tick loop started")
}

func (m *SessionManager) haltTickingLocked() {
	if m.tickStop == nil {
		return
	}
	close(m.tickStop)
	m.tickStop = nil
	m.log.Debug("tick loop stopped")
}

func (m *SessionManager) tickLoop(ticker clockwork.Ticker, stop <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			m.tick(stop)
		}
	}
}

func (m *SessionManager) tick(stop <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// The loop may have been torn down while this tick waited for the lock.
	select {
	case <-stop:
		return
	default:
	}
	now := m.clock.Now()
	for _, e := range m.active {
		m.elapsed[e.ID] = e.Duration(now)
	}
	metrics.TimerTicksTotal.Inc()
	m.emit(Event{Kind: EventTick})
}

// ticking reports whether the tick loop is up.
func (m *SessionManager) ticking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickStop != nil
}

func (m *SessionManager) flushLocked(ctx context.Context) {
	for id, e := range m.unsaved {
		if err := m.store.SaveEntry(ctx, e); err != nil {
			m.log.Warn("retrying sync persist failed", slog.String("id", id.String()), slog.String("error", err.Error()))
			continue
		}
		delete(m.unsaved, id)
	}
}
