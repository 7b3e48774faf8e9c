package store

import (
	"database/sql"
	"errors"
)

// SessionStore handles credential rows. Each row is one serialized value
// keyed by (sessionId, id); what the values mean is up to the credential
// layer.
type SessionStore struct {
	store *Store
}

// Put inserts or replaces one credential row.
func (s *SessionStore) Put(sessionID, id, data string) error {
	_, err := s.store.Exec(`
		INSERT INTO sessions ("sessionId", "id", "data") VALUES (?, ?, ?)
		ON CONFLICT("sessionId", "id") DO UPDATE SET "data" = excluded."data"
	`, sessionID, id, data)
	return err
}

// Get retrieves one credential row, ErrNotFound when absent.
func (s *SessionStore) Get(sessionID, id string) (string, error) {
	var data string
	err := s.store.QueryRow(`SELECT "data" FROM sessions WHERE "sessionId" = ? AND "id" = ?`,
		sessionID, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return data, err
}

// GetMany retrieves the rows for the given ids; absent ids are simply
// missing from the result.
func (s *SessionStore) GetMany(sessionID string, ids []string) (map[string]string, error) {
	result := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, sessionID)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.store.Query(`
		SELECT "id", "data" FROM sessions
		WHERE "sessionId" = ? AND "id" IN (`+placeholders(len(ids))+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		result[id] = data
	}
	return result, rows.Err()
}

// Delete removes one credential row.
func (s *SessionStore) Delete(sessionID, id string) error {
	_, err := s.store.Exec(`DELETE FROM sessions WHERE "sessionId" = ? AND "id" = ?`, sessionID, id)
	return err
}

// DeleteMany removes the rows for the given ids.
func (s *SessionStore) DeleteMany(sessionID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, sessionID)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.store.Exec(`
		DELETE FROM sessions WHERE "sessionId" = ? AND "id" IN (`+placeholders(len(ids))+`)
	`, args...)
	return err
}

// DeleteAll removes every credential row belonging to the session.
func (s *SessionStore) DeleteAll(sessionID string) error {
	_, err := s.store.Exec(`DELETE FROM sessions WHERE "sessionId" = ?`, sessionID)
	return err
}

// LatestIDWithPrefix returns the most recently inserted row id with the
// given prefix, ErrNotFound when the session has none.
func (s *SessionStore) LatestIDWithPrefix(sessionID, prefix string) (string, error) {
	var id string
	err := s.store.QueryRow(`
		SELECT "id" FROM sessions WHERE "sessionId" = ? AND "id" LIKE ?
		ORDER BY "pkId" DESC LIMIT 1
	`, sessionID, prefix+"%").Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

// SessionIDsWithKey lists the sessions that have a row under the given
// key id, in insertion order.
func (s *SessionStore) SessionIDsWithKey(id string) ([]string, error) {
	rows, err := s.store.Query(`
		SELECT "sessionId" FROM sessions WHERE "id" = ? ORDER BY "pkId"
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var sessionID string
		if err := rows.Scan(&sessionID); err != nil {
			return nil, err
		}
		ids = append(ids, sessionID)
	}
	return ids, rows.Err()
}
