package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jira-timer/internal/domain"
)

var t0 = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

type harness struct {
	clock   *clockwork.FakeClock
	store   *memStore
	creds   *memCreds
	jira    *fakeJira
	account domain.Account
	m       *SessionManager
}

func newHarness(t *testing.T, opts ...func(*SessionManagerOptions)) *harness {
	t.Helper()
	h := &harness{
		clock: clockwork.NewFakeClockAt(t0),
		store: newMemStore(),
		creds: newMemCreds(),
		jira:  &fakeJira{},
		account: domain.Account{
			ID:      uuid.New(),
			Name:    "acme",
			BaseURL: "https://acme.atlassian.net",
			Email:   "dev@acme.io",
			Type:    domain.AccountCloud,
		},
	}
	ctx := context.Background()
	require.NoError(t, h.store.SaveAccount(ctx, h.account))
	require.NoError(t, h.creds.Set(ctx, h.account.CredentialKey(), "secret-token"))
	h.build(t, opts...)
	return h
}

func (h *harness) build(t *testing.T, opts ...func(*SessionManagerOptions)) {
	t.Helper()
	o := SessionManagerOptions{Clock: h.clock}
	for _, fn := range opts {
		fn(&o)
	}
	m, err := NewSessionManager(context.Background(), h.store, h.creds, h.jira, discardLogger(), o)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close(context.Background()) })
	h.m = m
}

// advance moves the fake clock one tick at a time so the loop sees each second.
func (h *harness) advance(d time.Duration) {
	for ; d >= tickInterval; d -= tickInterval {
		h.clock.Advance(tickInterval)
	}
	if d > 0 {
		h.clock.Advance(d)
	}
}

func (h *harness) start(t *testing.T, key string) domain.TimeEntry {
	t.Helper()
	e, err := h.m.Start(context.Background(), key, "Summary of "+key, h.account.ID)
	require.NoError(t, err)
	return e
}

// ============================================================
// Start
// ============================================================

func TestStart_CreatesRunningEntry(t *testing.T) {
	h := newHarness(t)

	e := h.start(t, "PROJ-1")

	assert.True(t, h.m.IsActive("PROJ-1"))
	assert.True(t, h.m.ticking())
	assert.Equal(t, "00:00:00", h.m.Elapsed("PROJ-1"))

	stored, ok := h.store.entry(e.ID)
	require.True(t, ok)
	assert.Equal(t, "PROJ-1", stored.IssueKey)
	assert.Equal(t, "Summary of PROJ-1", stored.IssueSummary)
	assert.True(t, t0.Equal(stored.StartTime))
	assert.Nil(t, stored.EndTime)
	assert.Equal(t, h.account.ID, stored.AccountID)
}

func TestStart_SameKeyTwiceIsNoOp(t *testing.T) {
	h := newHarness(t)

	first := h.start(t, "PROJ-1")
	h.advance(3 * time.Second)
	second := h.start(t, "PROJ-1")

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, h.m.Active(), 1)
	assert.Equal(t, 1, h.store.count())
}

func TestStart_ConcurrentSameKeyYieldsOneTimer(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := h.m.Start(context.Background(), "PROJ-1", "s", h.account.ID)
			assert.NoError(t, err)
			ids[i] = e.ID
		}(i)
	}
	wg.Wait()

	assert.Len(t, h.m.Active(), 1)
	assert.Equal(t, 1, h.store.count())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestStart_DifferentKeysRunSideBySide(t *testing.T) {
	h := newHarness(t)

	h.start(t, "PROJ-1")
	h.advance(2 * time.Second)
	h.start(t, "PROJ-2")

	active := h.m.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "PROJ-2", active[0].IssueKey)
	assert.Equal(t, "PROJ-1", active[1].IssueKey)
}

func TestStart_UnknownAccountRejected(t *testing.T) {
	h := newHarness(t)

	_, err := h.m.Start(context.Background(), "PROJ-1", "s", uuid.New())

	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.False(t, h.m.IsActive("PROJ-1"))
	assert.False(t, h.m.ticking())
	assert.Zero(t, h.store.count())
}

func TestStart_InsertFailureLeavesNothingRunning(t *testing.T) {
	h := newHarness(t)
	h.store.failInsert = true

	_, err := h.m.Start(context.Background(), "PROJ-1", "s", h.account.ID)

	assert.ErrorIs(t, err, errStoreDown)
	assert.False(t, h.m.IsActive("PROJ-1"))
	assert.False(t, h.m.ticking())
}

// ============================================================
// Tick and elapsed
// ============================================================

func TestElapsed_FollowsTheClock(t *testing.T) {
	h := newHarness(t)
	h.start(t, "PROJ-1")

	h.advance(5 * time.Second)

	assert.Eventually(t, func() bool {
		return h.m.Elapsed("PROJ-1") == "00:00:05"
	}, time.Second, 5*time.Millisecond)
}

func TestElapsed_UnknownKeyIsZero(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "00:00:00", h.m.Elapsed("NOPE-1"))
	assert.False(t, h.m.IsActive("NOPE-1"))
}

func TestTickLoop_OnlyRunsWhileTimersAreActive(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.m.ticking())

	h.start(t, "PROJ-1")
	assert.True(t, h.m.ticking())

	require.NoError(t, h.m.Cancel(context.Background(), "PROJ-1"))
	assert.False(t, h.m.ticking())

	h.start(t, "PROJ-2")
	assert.True(t, h.m.ticking())
	h.advance(2 * time.Second)
	assert.Eventually(t, func() bool {
		return h.m.Elapsed("PROJ-2") == "00:00:02"
	}, time.Second, 5*time.Millisecond)
}

// ============================================================
// Stop
// ============================================================

func TestStop_SubmitsRoundedSecondsAndMarksSynced(t *testing.T) {
	h := newHarness(t)
	e := h.start(t, "PROJ-1")

	h.advance(90 * time.Second)
	require.NoError(t, h.m.Stop(context.Background(), "PROJ-1"))

	wl := h.jira.submitted()
	require.Len(t, wl, 1)
	assert.Equal(t, "PROJ-1", wl[0].IssueKey)
	assert.Equal(t, 90, wl[0].TimeSpentSeconds)
	assert.True(t, t0.Equal(wl[0].StartedAt))
	assert.Equal(t, defaultComment, wl[0].Comment)
	assert.Equal(t, "secret-token", h.jira.conns[0].Token)

	stored, ok := h.store.entry(e.ID)
	require.True(t, ok)
	require.NotNil(t, stored.EndTime)
	assert.True(t, t0.Add(90*time.Second).Equal(*stored.EndTime))
	assert.True(t, stored.IsSynced)
	require.NotNil(t, stored.WorklogID)
	assert.Equal(t, "wl-1", *stored.WorklogID)
	require.NotNil(t, stored.SyncedAt)

	assert.False(t, h.m.IsActive("PROJ-1"))
	assert.False(t, h.m.ticking())
}

func TestStop_ShortSessionIsBilledOneMinute(t *testing.T) {
	h := newHarness(t)
	h.start(t, "PROJ-1")

	h.advance(10 * time.Second)
	require.NoError(t, h.m.Stop(context.Background(), "PROJ-1"))

	wl := h.jira.submitted()
	require.Len(t, wl, 1)
	assert.Equal(t, domain.MinWorklogSeconds, wl[0].TimeSpentSeconds)
}

func TestStop_UsesConfiguredComment(t *testing.T) {
	h := newHarness(t, func(o *SessionManagerOptions) { o.Comment = "pairing" })
	h.start(t, "PROJ-1")

	require.NoError(t, h.m.Stop(context.Background(), "PROJ-1"))

	wl := h.jira.submitted()
	require.Len(t, wl, 1)
	assert.Equal(t, "pairing", wl[0].Comment)
}

func TestStop_RemoteFailureKeepsEntryUnsynced(t *testing.T) {
	h := newHarness(t)
	h.jira.submitErr = &domain.ServerError{StatusCode: 500, Body: "boom"}
	e := h.start(t, "PROJ-1")
	h.advance(2 * time.Minute)

	err := h.m.Stop(context.Background(), "PROJ-1")

	var se *domain.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 500, se.StatusCode)

	stored, ok := h.store.entry(e.ID)
	require.True(t, ok)
	require.NotNil(t, stored.EndTime)
	assert.True(t, t0.Add(2*time.Minute).Equal(*stored.EndTime))
	assert.False(t, stored.IsSynced)
	assert.Nil(t, stored.WorklogID)
	assert.False(t, h.m.IsActive("PROJ-1"))

	unsynced, err := h.m.Unsynced(context.Background())
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, e.ID, unsynced[0].ID)
}

func TestStop_MissingTokenFailsAfterCommittingEndTime(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.creds.Delete(context.Background(), h.account.CredentialKey()))
	e := h.start(t, "PROJ-1")

	err := h.m.Stop(context.Background(), "PROJ-1")

	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)
	stored, _ := h.store.entry(e.ID)
	assert.NotNil(t, stored.EndTime)
	assert.False(t, stored.IsSynced)
	assert.Empty(t, h.jira.submitted())
}

func TestStop_WithoutTimerChangesNothing(t *testing.T) {
	h := newHarness(t)
	h.start(t, "PROJ-1")

	err := h.m.Stop(context.Background(), "PROJ-2")

	assert.ErrorIs(t, err, domain.ErrNoActiveTimer)
	assert.True(t, h.m.IsActive("PROJ-1"))
	assert.Equal(t, 1, h.store.count())
	assert.Zero(t, h.store.saves)
	assert.Empty(t, h.jira.submitted())
}

func TestStop_AccountGoneIsNoActiveTimer(t *testing.T) {
	h := newHarness(t)
	h.start(t, "PROJ-1")
	h.store.mu.Lock()
	delete(h.store.accounts, h.account.ID)
	h.store.mu.Unlock()

	err := h.m.Stop(context.Background(), "PROJ-1")

	assert.ErrorIs(t, err, domain.ErrNoActiveTimer)
	assert.True(t, h.m.IsActive("PROJ-1"))
}

func TestStop_SaveFailureKeepsTimerRunning(t *testing.T) {
	h := newHarness(t)
	e := h.start(t, "PROJ-1")
	h.store.setFailSave(true)

	err := h.m.Stop(context.Background(), "PROJ-1")

	assert.ErrorIs(t, err, errStoreDown)
	assert.True(t, h.m.IsActive("PROJ-1"))
	stored, _ := h.store.entry(e.ID)
	assert.Nil(t, stored.EndTime)
	assert.Empty(t, h.jira.submitted())
}

func TestStop_SecondStopWhileSubmittingFails(t *testing.T) {
	h := newHarness(t)
	h.jira.block = make(chan struct{})
	h.start(t, "PROJ-1")

	done := make(chan error, 1)
	go func() { done <- h.m.Stop(context.Background(), "PROJ-1") }()

	require.Eventually(t, func() bool { return !h.m.IsActive("PROJ-1") }, time.Second, time.Millisecond)
	assert.ErrorIs(t, h.m.Stop(context.Background(), "PROJ-1"), domain.ErrNoActiveTimer)

	close(h.jira.block)
	assert.NoError(t, <-done)
	assert.Len(t, h.jira.submitted(), 1)
}

func TestStop_CallerCancelDoesNotAbortSubmission(t *testing.T) {
	h := newHarness(t)
	h.jira.block = make(chan struct{})
	e := h.start(t, "PROJ-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.m.Stop(ctx, "PROJ-1") }()

	require.Eventually(t, func() bool { return !h.m.IsActive("PROJ-1") }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(h.jira.block)
	assert.Eventually(t, func() bool {
		stored, _ := h.store.entry(e.ID)
		return stored.IsSynced
	}, time.Second, 5*time.Millisecond)
}

func TestStop_SubmitTimeoutIsNetworkError(t *testing.T) {
	h := newHarness(t, func(o *SessionManagerOptions) { o.SubmitTimeout = 20 * time.Millisecond })
	h.jira.block = make(chan struct{})
	defer close(h.jira.block)
	e := h.start(t, "PROJ-1")

	err := h.m.Stop(context.Background(), "PROJ-1")

	var ne *domain.NetworkError
	require.ErrorAs(t, err, &ne)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	stored, _ := h.store.entry(e.ID)
	assert.False(t, stored.IsSynced)
}

func TestStop_SyncedResultIsPersistedLaterWhenSaveFails(t *testing.T) {
	h := newHarness(t)
	h.jira.block = make(chan struct{})
	e := h.start(t, "PROJ-1")

	done := make(chan error, 1)
	go func() { done <- h.m.Stop(context.Background(), "PROJ-1") }()
	require.Eventually(t, func() bool { return !h.m.IsActive("PROJ-1") }, time.Second, time.Millisecond)

	h.store.setFailSave(true)
	close(h.jira.block)
	require.NoError(t, <-done)

	stored, _ := h.store.entry(e.ID)
	assert.False(t, stored.IsSynced)
	unsynced, err := h.m.Unsynced(context.Background())
	require.NoError(t, err)
	assert.Empty(t, unsynced, "entry already in Jira must not be offered for resubmit")
	assert.ErrorIs(t, h.m.Resubmit(context.Background(), e.ID), domain.ErrAlreadySynced)

	h.store.setFailSave(false)
	h.start(t, "PROJ-2")

	stored, _ = h.store.entry(e.ID)
	assert.True(t, stored.IsSynced)
	require.NotNil(t, stored.WorklogID)
	assert.Equal(t, "wl-1", *stored.WorklogID)
}

// ============================================================
// Cancel
// ============================================================

func TestCancel_LeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	h.start(t, "PROJ-1")
	h.advance(30 * time.Second)

	require.NoError(t, h.m.Cancel(context.Background(), "PROJ-1"))

	assert.False(t, h.m.IsActive("PROJ-1"))
	assert.Zero(t, h.store.count())
	assert.Empty(t, h.jira.submitted())
	assert.False(t, h.m.ticking())
}

func TestCancel_UnknownKeyIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.start(t, "PROJ-1")

	assert.NoError(t, h.m.Cancel(context.Background(), "PROJ-2"))
	assert.True(t, h.m.IsActive("PROJ-1"))
}

func TestCancel_DeleteFailureKeepsTimer(t *testing.T) {
	h := newHarness(t)
	h.start(t, "PROJ-1")
	h.store.failDelete = true

	err := h.m.Cancel(context.Background(), "PROJ-1")

	assert.ErrorIs(t, err, errStoreDown)
	assert.True(t, h.m.IsActive("PROJ-1"))
}

// ============================================================
// Restart
// ============================================================

func TestNewSessionManager_AdoptsRunningEntries(t *testing.T) {
	h := newHarness(t)
	running := domain.TimeEntry{
		ID:        uuid.New(),
		IssueKey:  "PROJ-7",
		StartTime: t0.Add(-10 * time.Minute),
		AccountID: h.account.ID,
	}
	require.NoError(t, h.store.InsertEntry(context.Background(), running))

	h.build(t)

	assert.True(t, h.m.IsActive("PROJ-7"))
	assert.Equal(t, "00:10:00", h.m.Elapsed("PROJ-7"))
	assert.True(t, h.m.ticking())

	h.advance(20 * time.Second)
	require.NoError(t, h.m.Stop(context.Background(), "PROJ-7"))
	wl := h.jira.submitted()
	require.Len(t, wl, 1)
	assert.Equal(t, 620, wl[0].TimeSpentSeconds)
}

func TestNewSessionManager_DuplicateRunningKeyKeepsNewest(t *testing.T) {
	h := newHarness(t)
	older := domain.TimeEntry{ID: uuid.New(), IssueKey: "PROJ-7", StartTime: t0.Add(-time.Hour), AccountID: h.account.ID}
	newer := domain.TimeEntry{ID: uuid.New(), IssueKey: "PROJ-7", StartTime: t0.Add(-time.Minute), AccountID: h.account.ID}
	require.NoError(t, h.store.InsertEntry(context.Background(), older))
	require.NoError(t, h.store.InsertEntry(context.Background(), newer))

	h.build(t)

	active := h.m.Active()
	require.Len(t, active, 1)
	assert.Equal(t, newer.ID, active[0].EntryID)
	assert.Equal(t, time.Minute, active[0].Elapsed)

	closed, ok := h.store.entry(older.ID)
	require.True(t, ok)
	require.NotNil(t, closed.EndTime)
	assert.Equal(t, newer.StartTime, *closed.EndTime)

	unsynced, err := h.m.Unsynced(context.Background())
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, older.ID, unsynced[0].ID)

	running, err := h.store.QueryRunning(context.Background())
	require.NoError(t, err)
	assert.Len(t, running, 1)
}

func TestHoldsAccount(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.m.HoldsAccount(h.account.ID))

	h.start(t, "PROJ-1")
	assert.True(t, h.m.HoldsAccount(h.account.ID))
	assert.False(t, h.m.HoldsAccount(uuid.New()))

	require.NoError(t, h.m.Cancel(context.Background(), "PROJ-1"))
	assert.False(t, h.m.HoldsAccount(h.account.ID))
}

// ============================================================
// Resubmit
// ============================================================

func TestResubmit_RetriesFailedEntry(t *testing.T) {
	h := newHarness(t)
	h.jira.submitErr = &domain.NetworkError{Err: context.DeadlineExceeded}
	e := h.start(t, "PROJ-1")
	h.advance(3 * time.Minute)
	require.Error(t, h.m.Stop(context.Background(), "PROJ-1"))

	h.jira.submitErr = nil
	h.advance(time.Hour)
	require.NoError(t, h.m.Resubmit(context.Background(), e.ID))

	wl := h.jira.submitted()
	require.Len(t, wl, 1)
	assert.Equal(t, 180, wl[0].TimeSpentSeconds)

	stored, _ := h.store.entry(e.ID)
	assert.True(t, stored.IsSynced)
	assert.ErrorIs(t, h.m.Resubmit(context.Background(), e.ID), domain.ErrAlreadySynced)
}

func TestResubmit_Rejections(t *testing.T) {
	h := newHarness(t)
	running := h.start(t, "PROJ-1")

	assert.ErrorIs(t, h.m.Resubmit(context.Background(), running.ID), domain.ErrEntryRunning)
	assert.ErrorIs(t, h.m.Resubmit(context.Background(), uuid.New()), domain.ErrEntryNotFound)
}

// ============================================================
// Events and lifecycle
// ============================================================

func TestSubscribe_ReceivesLifecycleEvents(t *testing.T) {
	h := newHarness(t)
	events, unsubscribe := h.m.Subscribe()
	defer unsubscribe()

	e := h.start(t, "PROJ-1")
	ev := <-events
	assert.Equal(t, EventStarted, ev.Kind)
	assert.Equal(t, e.ID, ev.EntryID)

	h.advance(time.Second)
	assert.Equal(t, EventTick, (<-events).Kind)

	require.NoError(t, h.m.Stop(context.Background(), "PROJ-1"))
	for ev = range events {
		if ev.Kind != EventTick {
			break
		}
	}
	assert.Equal(t, EventStopped, ev.Kind)
	assert.Equal(t, "PROJ-1", ev.IssueKey)
}

func TestSubscribe_SyncFailureCarriesError(t *testing.T) {
	h := newHarness(t)
	h.jira.submitErr = domain.ErrUnauthorized
	events, unsubscribe := h.m.Subscribe()
	defer unsubscribe()

	h.start(t, "PROJ-1")
	require.Error(t, h.m.Stop(context.Background(), "PROJ-1"))

	var last Event
	for ev := range events {
		if ev.Kind == EventSyncFailed {
			last = ev
			break
		}
	}
	assert.ErrorIs(t, last.Err, domain.ErrUnauthorized)
}

func TestClose_RejectsFurtherCommands(t *testing.T) {
	h := newHarness(t)
	h.start(t, "PROJ-1")

	h.m.Close(context.Background())

	assert.False(t, h.m.ticking())
	_, err := h.m.Start(context.Background(), "PROJ-2", "s", h.account.ID)
	assert.ErrorIs(t, err, ErrManagerClosed)
	assert.ErrorIs(t, h.m.Stop(context.Background(), "PROJ-1"), ErrManagerClosed)
	assert.ErrorIs(t, h.m.Cancel(context.Background(), "PROJ-1"), ErrManagerClosed)

	// The running entry stays in the store for the next process to adopt.
	running, err := h.store.QueryRunning(context.Background())
	require.NoError(t, err)
	assert.Len(t, running, 1)
}
