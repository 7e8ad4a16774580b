package sqlite

import (
	"context"
	"database/sql"

	"github.com/huddlelabs/sessionguard/internal/security/store"

	_ "modernc.org/sqlite"
)

// Store is the sqlite-backed implementation of the engine's collaborator
// interfaces. A single *sql.DB is shared by all repos.
type Store struct {
	db *sql.DB
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Enforce FKs
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Users() store.Users                 { return &usersRepo{db: s.db} }
func (s *Store) Devices() store.Devices             { return &devicesRepo{db: s.db} }
func (s *Store) AuditLogs() store.AuditLogs         { return &auditLogsRepo{db: s.db} }
func (s *Store) Notifications() store.Notifications { return &notificationsRepo{db: s.db} }
func (s *Store) Revocations() store.Revocations     { return &revocationsRepo{db: s.db} }

func mapNotFound(err error) error {
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	return err
}
