package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"wamux/internal/wa"
)

var messageColumns = []string{
	"key", "message", "messageTimestamp", "participant", "pushName",
	"broadcast", "status", "starred", "messageStubType", "userReceipt",
	"reactions",
}

// MessageStore handles message rows. Receipt and reaction lists are
// serialized whole; the sync handlers read, merge and write them back.
type MessageStore struct {
	store *Store
}

// Upsert inserts the message or replaces every mutable column of the
// existing row.
func (s *MessageStore) Upsert(m *wa.Message) error {
	key := jsonText(m.Key)
	var receipts, reactions any
	if m.UserReceipt != nil {
		receipts = jsonText(m.UserReceipt)
	}
	if m.Reactions != nil {
		reactions = jsonText(m.Reactions)
	}

	_, err := s.store.Exec(`
		INSERT INTO messages (
			"sessionId", "remoteJid", "id", "key", "message", "messageTimestamp",
			"participant", "pushName", "broadcast", "status", "starred",
			"messageStubType", "userReceipt", "reactions"
		) VALUES (`+placeholders(14)+`)
		ON CONFLICT("sessionId", "remoteJid", "id") DO UPDATE SET
			"key" = excluded."key",
			"message" = excluded."message",
			"messageTimestamp" = excluded."messageTimestamp",
			"participant" = excluded."participant",
			"pushName" = excluded."pushName",
			"broadcast" = excluded."broadcast",
			"status" = excluded."status",
			"starred" = excluded."starred",
			"messageStubType" = excluded."messageStubType",
			"userReceipt" = excluded."userReceipt",
			"reactions" = excluded."reactions"
	`,
		m.SessionID, m.RemoteJID, m.ID, key, nullText(string(m.Message)),
		m.MessageTimestamp, m.Participant, m.PushName, m.Broadcast, m.Status,
		m.Starred, m.MessageStubType, receipts, reactions,
	)
	return err
}

// Update applies a partial column document to one message.
func (s *MessageStore) Update(sessionID, remoteJID, id string, doc map[string]any) (int64, error) {
	set, args := buildSet(doc, messageColumns)
	if set == "" {
		return 0, nil
	}
	args = append(args, sessionID, remoteJID, id)
	res, err := s.store.Exec(`
		UPDATE messages SET `+set+` WHERE "sessionId" = ? AND "remoteJid" = ? AND "id" = ?
	`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetReceipts replaces the stored per-user receipt list.
func (s *MessageStore) SetReceipts(sessionID, remoteJID, id string, receipts []wa.UserReceipt) error {
	_, err := s.store.Exec(`
		UPDATE messages SET "userReceipt" = ? WHERE "sessionId" = ? AND "remoteJid" = ? AND "id" = ?
	`, jsonText(receipts), sessionID, remoteJID, id)
	return err
}

// SetReactions replaces the stored reaction list.
func (s *MessageStore) SetReactions(sessionID, remoteJID, id string, reactions []wa.Reaction) error {
	_, err := s.store.Exec(`
		UPDATE messages SET "reactions" = ? WHERE "sessionId" = ? AND "remoteJid" = ? AND "id" = ?
	`, jsonText(reactions), sessionID, remoteJID, id)
	return err
}

// Get retrieves one message.
func (s *MessageStore) Get(sessionID, remoteJID, id string) (*wa.Message, error) {
	row := s.store.QueryRow(`
		SELECT `+selectMessageColumns+` FROM messages
		WHERE "sessionId" = ? AND "remoteJid" = ? AND "id" = ?
	`, sessionID, remoteJID, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// List returns a page of messages plus the unpaged total. A non-empty
// remoteJID restricts the listing to one conversation.
func (s *MessageStore) List(sessionID, remoteJID string, opts ListOptions) ([]*wa.Message, int, error) {
	where := `WHERE "sessionId" = ?`
	whereArgs := []any{sessionID}
	if remoteJID != "" {
		where += ` AND "remoteJid" = ?`
		whereArgs = append(whereArgs, remoteJID)
	}

	var total int
	if err := s.store.QueryRow(`SELECT COUNT(*) FROM messages `+where, whereArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + selectMessageColumns + ` FROM messages ` + where +
		opts.orderClause(messageColumns, "pkId")
	limit, limitArgs := opts.limitClause()
	query += limit
	args := append(whereArgs, limitArgs...)

	rows, err := s.store.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages := make([]*wa.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, m)
	}
	return messages, total, rows.Err()
}

// Delete removes one message row.
func (s *MessageStore) Delete(sessionID, remoteJID, id string) error {
	_, err := s.store.Exec(`
		DELETE FROM messages WHERE "sessionId" = ? AND "remoteJid" = ? AND "id" = ?
	`, sessionID, remoteJID, id)
	return err
}

// DeleteByConversation removes every message in one conversation.
func (s *MessageStore) DeleteByConversation(sessionID, remoteJID string) error {
	_, err := s.store.Exec(`DELETE FROM messages WHERE "sessionId" = ? AND "remoteJid" = ?`,
		sessionID, remoteJID)
	return err
}

// DeleteAll removes every message belonging to the session.
func (s *MessageStore) DeleteAll(sessionID string) error {
	_, err := s.store.Exec(`DELETE FROM messages WHERE "sessionId" = ?`, sessionID)
	return err
}

var selectMessageColumns = `"sessionId", "remoteJid", "id", "` + strings.Join(messageColumns, `", "`) + `"`

func scanMessage(row rowScanner) (*wa.Message, error) {
	var m wa.Message
	var key string
	var message, participant, pushName, receipts, reactions sql.NullString
	var messageTimestamp, status, messageStubType sql.NullInt64
	var broadcast, starred sql.NullBool

	err := row.Scan(
		&m.SessionID, &m.RemoteJID, &m.ID, &key, &message, &messageTimestamp,
		&participant, &pushName, &broadcast, &status, &starred,
		&messageStubType, &receipts, &reactions,
	)
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}

	if err := json.Unmarshal([]byte(key), &m.Key); err != nil {
		return nil, fmt.Errorf("decode message key: %w", err)
	}
	m.Message = rawJSON(message)
	m.MessageTimestamp = ptrInt64(messageTimestamp)
	m.Participant = ptrString(participant)
	m.PushName = ptrString(pushName)
	m.Broadcast = ptrBool(broadcast)
	m.Status = ptrInt64(status)
	m.Starred = ptrBool(starred)
	m.MessageStubType = ptrInt64(messageStubType)
	if receipts.Valid && receipts.String != "" {
		if err := json.Unmarshal([]byte(receipts.String), &m.UserReceipt); err != nil {
			return nil, fmt.Errorf("decode message receipts: %w", err)
		}
	}
	if reactions.Valid && reactions.String != "" {
		if err := json.Unmarshal([]byte(reactions.String), &m.Reactions); err != nil {
			return nil, fmt.Errorf("decode message reactions: %w", err)
		}
	}
	return &m, nil
}
