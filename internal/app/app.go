package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"jira-timer/internal/adapter/jira"
	msql "jira-timer/internal/adapter/mysql"
	"jira-timer/internal/adapter/sqlite"
	"jira-timer/internal/config"
	"jira-timer/internal/credentials"
	"jira-timer/internal/crypto"
	"jira-timer/internal/ports"
	"jira-timer/internal/usecase"
)

// Store is what a storage backend must provide to run the app.
type Store interface {
	ports.SessionStore
	ports.AccountStore
	ports.SecretBackend
	Close() error
}

// App wires adapters and use cases.
type App struct {
	log      *slog.Logger
	store    Store
	sessions *usecase.SessionManager
	accounts *usecase.Coordinator
}

// New opens the configured store and builds the app on top of it.
func New(ctx context.Context, log *slog.Logger, cfg config.Config) (*App, error) {
	store, err := openStore(ctx, log, cfg)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		store.Close()
		return nil, err
	}
	client := jira.NewClient(cfg.HTTPTimeout, loc, log)

	a, err := build(ctx, log, cfg, store, client, clockwork.NewRealClock())
	if err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

func openStore(ctx context.Context, log *slog.Logger, cfg config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		return msql.Open(ctx, cfg.MySQLDSN, log)
	case config.DriverSQLite:
		path := cfg.SQLitePath
		if path == "" {
			p, err := sqlite.DefaultPath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		return sqlite.Open(ctx, path, log)
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
}

func build(ctx context.Context, log *slog.Logger, cfg config.Config, store Store, client ports.JiraClient, clock clockwork.Clock) (*App, error) {
	var cipher crypto.Service = crypto.NoopService{}
	if cfg.TokenEncryptionKey != "" {
		svc, err := crypto.NewAesGcmService(cfg.TokenEncryptionKey)
		if err != nil {
			return nil, err
		}
		cipher = svc
	} else {
		log.Warn("TOKEN_ENCRYPTION_KEY not set, api tokens are stored unencrypted")
	}
	creds := credentials.NewStore(store, cipher, log)

	sessions, err := usecase.NewSessionManager(ctx, store, creds, client, log, usecase.SessionManagerOptions{
		Clock:         clock,
		Comment:       cfg.WorklogComment,
		SubmitTimeout: cfg.SubmitTimeout,
	})
	if err != nil {
		return nil, err
	}
	accounts := usecase.NewCoordinator(store, creds, client, clock, log)
	accounts.GuardTimers(sessions)
	if err := accounts.LoadInitial(ctx); err != nil {
		sessions.Close(ctx)
		return nil, err
	}

	return &App{log: log, store: store, sessions: sessions, accounts: accounts}, nil
}

// Close stops the timers' tick loop, waits for worklog submissions in
// flight and closes the store. Running timers stay in the store.
func (a *App) Close(ctx context.Context) error {
	a.sessions.Close(ctx)
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	a.log.Info("app closed")
	return nil
}

// WatchEvents logs timer state changes until ctx ends.
func (a *App) WatchEvents(ctx context.Context) {
	events, unsubscribe := a.sessions.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case usecase.EventTick:
			case usecase.EventSyncFailed:
				a.log.Warn("worklog pending manual resubmit",
					slog.String("issue", ev.IssueKey),
					slog.String("id", ev.EntryID.String()),
					slog.String("error", ev.Err.Error()))
			default:
				a.log.Debug("timer event", slog.String("kind", string(ev.Kind)), slog.String("issue", ev.IssueKey))
			}
		}
	}
}
