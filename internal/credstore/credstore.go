// Package credstore persists per-session credential material as
// serialized rows in the sessions table: the pairing identity, the
// session's connection configuration and the app-state sync keys the
// protocol client hands over. Row ids are sanitized so they stay safe as
// key components.
package credstore

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"wamux/internal/store"
	"wamux/internal/wa"
)

// Reserved row ids.
const (
	CredsID         = "creds"
	SessionConfigID = "session-config"

	appStateKeyPrefix = "app-state-sync-key-"
)

// ErrNotFound is returned when a credential row is absent.
var ErrNotFound = errors.New("credstore: not found")

// Creds is the pairing identity written once the device completes login.
type Creds struct {
	Me         *wa.Identity `json:"me,omitempty"`
	Platform   string       `json:"platform,omitempty"`
	Registered bool         `json:"registered"`
}

// SessionConfig is everything needed to rebuild a session after restart.
type SessionConfig struct {
	SessionID            string          `json:"sessionId"`
	ReadIncomingMessages bool            `json:"readIncomingMessages,omitempty"`
	Socket               wa.SocketConfig `json:"socketConfig"`
}

// Store reads and writes one session's credential rows.
type Store struct {
	sessionID string
	rows      *store.SessionStore
	log       zerolog.Logger
}

// New creates a credential store bound to one session.
func New(sessionID string, rows *store.SessionStore, log zerolog.Logger) *Store {
	return &Store{
		sessionID: sessionID,
		rows:      rows,
		log:       log.With().Str("session", sessionID).Logger(),
	}
}

// sanitizeID keeps row ids free of the separators the underlying key
// format reserves.
func sanitizeID(id string) string {
	id = strings.ReplaceAll(id, "/", "__")
	return strings.ReplaceAll(id, ":", "-")
}

// Write serializes value into the row named id.
func (s *Store) Write(id string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.rows.Put(s.sessionID, sanitizeID(id), string(data))
}

// Read decodes the row named id into dest. A corrupt row is logged and
// reported as absent so callers regenerate it instead of failing.
func (s *Store) Read(id string, dest any) error {
	data, err := s.rows.Get(s.sessionID, sanitizeID(id))
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		s.log.Error().Err(err).Str("id", id).Msg("corrupt credential row")
		return ErrNotFound
	}
	return nil
}

// Delete removes the row named id. Failures are logged and swallowed;
// a leftover row is cleaned up with the session.
func (s *Store) Delete(id string) {
	if err := s.rows.Delete(s.sessionID, sanitizeID(id)); err != nil {
		s.log.Error().Err(err).Str("id", id).Msg("failed to delete credential row")
	}
}

// DeleteAll removes every row belonging to the session.
func (s *Store) DeleteAll() error {
	return s.rows.DeleteAll(s.sessionID)
}

// ReadCreds returns the pairing identity, ErrNotFound before first login.
func (s *Store) ReadCreds() (*Creds, error) {
	var creds Creds
	if err := s.Read(CredsID, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// WriteCreds persists the pairing identity.
func (s *Store) WriteCreds(creds *Creds) error {
	return s.Write(CredsID, creds)
}

// ReadConfig returns the persisted session configuration.
func (s *Store) ReadConfig() (*SessionConfig, error) {
	var cfg SessionConfig
	if err := s.Read(SessionConfigID, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteConfig persists the session configuration.
func (s *Store) WriteConfig(cfg *SessionConfig) error {
	return s.Write(SessionConfigID, cfg)
}

// GetKeys fetches a batch of app-state sync keys. Absent ids map to nil
// entries so the caller sees every id it asked for.
func (s *Store) GetKeys(ids []string) (map[string][]byte, error) {
	rowIDs := make([]string, len(ids))
	for i, id := range ids {
		rowIDs[i] = sanitizeID(appStateKeyPrefix + id)
	}
	rows, err := s.rows.GetMany(s.sessionID, rowIDs)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]byte, len(ids))
	for i, id := range ids {
		data, ok := rows[rowIDs[i]]
		if !ok {
			result[id] = nil
			continue
		}
		var value []byte
		if err := json.Unmarshal([]byte(data), &value); err != nil {
			s.log.Error().Err(err).Str("id", id).Msg("corrupt app-state key row")
			result[id] = nil
			continue
		}
		result[id] = value
	}
	return result, nil
}

// SetKeys writes a batch of app-state sync keys. A nil value deletes the
// key's row.
func (s *Store) SetKeys(keys map[string][]byte) error {
	var remove []string
	for id, value := range keys {
		rowID := sanitizeID(appStateKeyPrefix + id)
		if value == nil {
			remove = append(remove, rowID)
			continue
		}
		data, err := json.Marshal(value)
		if err != nil {
			return err
		}
		if err := s.rows.Put(s.sessionID, rowID, string(data)); err != nil {
			return err
		}
	}
	return s.rows.DeleteMany(s.sessionID, remove)
}

// LatestKeyID returns the id of the most recently written app-state sync
// key, or "" when none exist.
func (s *Store) LatestKeyID() (string, error) {
	rowID, err := s.rows.LatestIDWithPrefix(s.sessionID, appStateKeyPrefix)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(rowID, appStateKeyPrefix), nil
}
