package mysql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"

	"jira-timer/internal/migrate"
)

// Store implements ports.SessionStore, ports.AccountStore and
// ports.SecretBackend on MySQL.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open connects using dsn, forcing the options the store relies on
// (parseTime, UTC, multiStatements for migrations), and migrates the schema.
// Example DSN: user:pass@tcp(host:3306)/dbname
func Open(ctx context.Context, dsn string, log *slog.Logger) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("mysql: DSN is required")
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.MultiStatements = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(connector)
	// Conservative pool defaults; can be adjusted via env later.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(c); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate.Run(ctx, db, migrate.MySQL, log); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("mysql store ready", slog.String("addr", cfg.Addr), slog.String("db", cfg.DBName))
	return &Store{db: db, log: log}, nil
}

// Close closes the underlying DB.
func (s *Store) Close() error { return s.db.Close() }

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
