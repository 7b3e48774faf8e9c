// Package store persists gateway state in SQLite: session credentials
// plus the synced chat, contact, group and message entities, one
// sub-store per table. The protocol library's own signal-key tables live
// in the same database file through its sqlstore container.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Store wraps the shared database connection and groups the entity
// sub-stores.
type Store struct {
	db        *sql.DB
	container *sqlstore.Container
	log       waLog.Logger

	Sessions *SessionStore
	Chats    *ChatStore
	Contacts *ContactStore
	Groups   *GroupStore
	Messages *MessageStore
}

// New opens (or creates) the database at dbPath, upgrades the protocol
// library's schema and creates the gateway tables.
func New(dbPath string, log waLog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	container := sqlstore.NewWithDB(db, "sqlite3", log.Sub("whatsmeow"))
	if err := container.Upgrade(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to upgrade whatsmeow schema: %w", err)
	}

	s := &Store{
		db:        db,
		container: container,
		log:       log.Sub("Store"),
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create gateway tables: %w", err)
	}

	s.Sessions = &SessionStore{store: s}
	s.Chats = &ChatStore{store: s}
	s.Contacts = &ContactStore{store: s}
	s.Groups = &GroupStore{store: s}
	s.Messages = &MessageStore{store: s}
	return s, nil
}

// Container returns the protocol library's device container.
func (s *Store) Container() *sqlstore.Container {
	return s.container
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Exec executes a query without returning rows.
func (s *Store) Exec(query string, args ...any) (sql.Result, error) {
	return s.db.Exec(query, args...)
}

// Query executes a query that returns rows.
func (s *Store) Query(query string, args ...any) (*sql.Rows, error) {
	return s.db.Query(query, args...)
}

// QueryRow executes a query that returns a single row.
func (s *Store) QueryRow(query string, args ...any) *sql.Row {
	return s.db.QueryRow(query, args...)
}

// Begin starts a transaction.
func (s *Store) Begin() (*sql.Tx, error) {
	return s.db.Begin()
}
