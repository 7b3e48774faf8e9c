package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"wamux/internal/wa"
)

// ErrNotFound is returned by the Get methods when no row matches.
var ErrNotFound = errors.New("store: not found")

// chatColumns are the mutable chat columns, in table order. Identity
// columns (sessionId, id) are addressed separately.
var chatColumns = []string{
	"archived", "conversationTimestamp", "description", "displayName",
	"ephemeralExpiration", "ephemeralSettingTimestamp", "lastMsgTimestamp",
	"markedAsUnread", "muteEndTime", "name", "pinned", "readOnly",
	"unreadCount", "unreadMentionCount", "participant",
}

// ChatStore handles chat rows.
type ChatStore struct {
	store *Store
}

// Upsert inserts the chat or replaces every mutable column of the
// existing row.
func (s *ChatStore) Upsert(c *wa.Chat) error {
	_, err := s.store.Exec(`
		INSERT INTO chats (
			"sessionId", "id", "archived", "conversationTimestamp", "description",
			"displayName", "ephemeralExpiration", "ephemeralSettingTimestamp",
			"lastMsgTimestamp", "markedAsUnread", "muteEndTime", "name", "pinned",
			"readOnly", "unreadCount", "unreadMentionCount", "participant"
		) VALUES (`+placeholders(17)+`)
		ON CONFLICT("sessionId", "id") DO UPDATE SET
			"archived" = excluded."archived",
			"conversationTimestamp" = excluded."conversationTimestamp",
			"description" = excluded."description",
			"displayName" = excluded."displayName",
			"ephemeralExpiration" = excluded."ephemeralExpiration",
			"ephemeralSettingTimestamp" = excluded."ephemeralSettingTimestamp",
			"lastMsgTimestamp" = excluded."lastMsgTimestamp",
			"markedAsUnread" = excluded."markedAsUnread",
			"muteEndTime" = excluded."muteEndTime",
			"name" = excluded."name",
			"pinned" = excluded."pinned",
			"readOnly" = excluded."readOnly",
			"unreadCount" = excluded."unreadCount",
			"unreadMentionCount" = excluded."unreadMentionCount",
			"participant" = excluded."participant"
	`,
		c.SessionID, c.ID, c.Archived, c.ConversationTimestamp, c.Description,
		c.DisplayName, c.EphemeralExpiration, c.EphemeralSettingTimestamp,
		c.LastMsgTimestamp, c.MarkedAsUnread, c.MuteEndTime, c.Name, c.Pinned,
		c.ReadOnly, c.UnreadCount, c.UnreadMentionCount, nullText(string(c.Participant)),
	)
	return err
}

// Update applies a partial column document to one chat. It reports the
// number of rows touched so callers can tell an update from a miss.
func (s *ChatStore) Update(sessionID, id string, doc map[string]any) (int64, error) {
	set, args := buildSet(doc, chatColumns)
	if set == "" {
		return 0, nil
	}
	args = append(args, sessionID, id)
	res, err := s.store.Exec(`UPDATE chats SET `+set+` WHERE "sessionId" = ? AND "id" = ?`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Get retrieves one chat.
func (s *ChatStore) Get(sessionID, id string) (*wa.Chat, error) {
	row := s.store.QueryRow(`
		SELECT `+selectChatColumns+` FROM chats WHERE "sessionId" = ? AND "id" = ?
	`, sessionID, id)
	c, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// Exists reports whether the chat row is present.
func (s *ChatStore) Exists(sessionID, id string) (bool, error) {
	var n int
	err := s.store.QueryRow(`SELECT COUNT(*) FROM chats WHERE "sessionId" = ? AND "id" = ?`,
		sessionID, id).Scan(&n)
	return n > 0, err
}

// ExistingIDs returns which of the given chat ids already have rows.
func (s *ChatStore) ExistingIDs(sessionID string, ids []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, sessionID)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.store.Query(`
		SELECT "id" FROM chats WHERE "sessionId" = ? AND "id" IN (`+placeholders(len(ids))+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = true
	}
	return existing, rows.Err()
}

// List returns a page of chats plus the unpaged total.
func (s *ChatStore) List(sessionID string, opts ListOptions) ([]*wa.Chat, int, error) {
	var total int
	if err := s.store.QueryRow(`SELECT COUNT(*) FROM chats WHERE "sessionId" = ?`,
		sessionID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + selectChatColumns + ` FROM chats WHERE "sessionId" = ?` +
		opts.orderClause(chatColumns, "pkId")
	args := []any{sessionID}
	limit, limitArgs := opts.limitClause()
	query += limit
	args = append(args, limitArgs...)

	rows, err := s.store.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	chats := make([]*wa.Chat, 0)
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, 0, err
		}
		chats = append(chats, c)
	}
	return chats, total, rows.Err()
}

// Delete removes one chat row.
func (s *ChatStore) Delete(sessionID, id string) error {
	_, err := s.store.Exec(`DELETE FROM chats WHERE "sessionId" = ? AND "id" = ?`, sessionID, id)
	return err
}

// DeleteAll removes every chat belonging to the session.
func (s *ChatStore) DeleteAll(sessionID string) error {
	_, err := s.store.Exec(`DELETE FROM chats WHERE "sessionId" = ?`, sessionID)
	return err
}

var selectChatColumns = `"sessionId", "id", "` + strings.Join(chatColumns, `", "`) + `"`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*wa.Chat, error) {
	var c wa.Chat
	var archived, markedAsUnread, readOnly sql.NullBool
	var conversationTs, ephemeralExp, ephemeralSetTs, lastMsgTs sql.NullInt64
	var muteEndTime, pinned, unreadCount, unreadMentionCount sql.NullInt64
	var description, displayName, name, participant sql.NullString

	err := row.Scan(
		&c.SessionID, &c.ID, &archived, &conversationTs, &description,
		&displayName, &ephemeralExp, &ephemeralSetTs, &lastMsgTs,
		&markedAsUnread, &muteEndTime, &name, &pinned, &readOnly,
		&unreadCount, &unreadMentionCount, &participant,
	)
	if err != nil {
		return nil, fmt.Errorf("scan chat: %w", err)
	}

	c.Archived = ptrBool(archived)
	c.ConversationTimestamp = ptrInt64(conversationTs)
	c.Description = ptrString(description)
	c.DisplayName = ptrString(displayName)
	c.EphemeralExpiration = ptrInt64(ephemeralExp)
	c.EphemeralSettingTimestamp = ptrInt64(ephemeralSetTs)
	c.LastMsgTimestamp = ptrInt64(lastMsgTs)
	c.MarkedAsUnread = ptrBool(markedAsUnread)
	c.MuteEndTime = ptrInt64(muteEndTime)
	c.Name = ptrString(name)
	c.Pinned = ptrInt64(pinned)
	c.ReadOnly = ptrBool(readOnly)
	c.UnreadCount = ptrInt64(unreadCount)
	c.UnreadMentionCount = ptrInt64(unreadMentionCount)
	c.Participant = rawJSON(participant)
	return &c, nil
}
