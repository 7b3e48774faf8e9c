package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	waLog "go.mau.fi/whatsmeow/util/log"

	"wamux/internal/wa"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"), waLog.Noop)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }

func TestChatUpsertGetDelete(t *testing.T) {
	s := newTestStore(t)

	chat := &wa.Chat{
		SessionID:             "s1",
		ID:                    "123@s.whatsapp.net",
		Name:                  strPtr("Alice"),
		UnreadCount:           int64Ptr(3),
		ConversationTimestamp: int64Ptr(1700000000),
	}
	require.NoError(t, s.Chats.Upsert(chat))

	got, err := s.Chats.Get("s1", chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", *got.Name)
	assert.Equal(t, int64(3), *got.UnreadCount)
	assert.Nil(t, got.Archived)

	// Upsert replaces every mutable column.
	chat.Name = strPtr("Alice B")
	chat.UnreadCount = nil
	require.NoError(t, s.Chats.Upsert(chat))
	got, err = s.Chats.Get("s1", chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice B", *got.Name)
	assert.Nil(t, got.UnreadCount)

	require.NoError(t, s.Chats.Delete("s1", chat.ID))
	_, err = s.Chats.Get("s1", chat.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChatUpdatePartial(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Chats.Upsert(&wa.Chat{
		SessionID:   "s1",
		ID:          "c1",
		Name:        strPtr("keep"),
		UnreadCount: int64Ptr(2),
	}))

	rows, err := s.Chats.Update("s1", "c1", map[string]any{
		"unreadCount": int64(5),
		"bogusColumn": "ignored",
		"id":          "not-settable",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	got, err := s.Chats.Get("s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "keep", *got.Name)
	assert.Equal(t, int64(5), *got.UnreadCount)
	assert.Equal(t, "c1", got.ID)

	rows, err = s.Chats.Update("s1", "missing", map[string]any{"unreadCount": int64(1)})
	require.NoError(t, err)
	assert.Zero(t, rows)
}

func TestChatExistingIDs(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Chats.Upsert(&wa.Chat{SessionID: "s1", ID: "a"}))
	require.NoError(t, s.Chats.Upsert(&wa.Chat{SessionID: "s1", ID: "b"}))
	require.NoError(t, s.Chats.Upsert(&wa.Chat{SessionID: "other", ID: "c"}))

	existing, err := s.Chats.ExistingIDs("s1", []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "b": true}, existing)
}

func TestChatListPagination(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"c1", "c2", "c3"} {
		require.NoError(t, s.Chats.Upsert(&wa.Chat{SessionID: "s1", ID: id}))
	}

	chats, total, err := s.Chats.List("s1", ListOptions{Limit: 2, Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, chats, 2)
	assert.Equal(t, "c1", chats[0].ID)

	chats, total, err = s.Chats.List("s1", ListOptions{Limit: 2, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, chats, 1)
	assert.Equal(t, "c3", chats[0].ID)

	// Ordering by a whitelisted column, descending.
	chats, _, err = s.Chats.List("s1", ListOptions{OrderColumn: "id", OrderMethod: "desc"})
	require.NoError(t, err)
	require.Len(t, chats, 3)
	assert.Equal(t, "c3", chats[0].ID)

	// Unknown order columns fall back to insertion order.
	chats, _, err = s.Chats.List("s1", ListOptions{OrderColumn: "pkId; DROP TABLE chats"})
	require.NoError(t, err)
	require.Len(t, chats, 3)
	assert.Equal(t, "c1", chats[0].ID)
}

func TestContactSuffixListAndComplementDelete(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Contacts.Upsert(&wa.Contact{SessionID: "s1", ID: "1@s.whatsapp.net", Name: strPtr("a")}))
	require.NoError(t, s.Contacts.Upsert(&wa.Contact{SessionID: "s1", ID: "2@s.whatsapp.net"}))
	require.NoError(t, s.Contacts.Upsert(&wa.Contact{SessionID: "s1", ID: "g@g.us"}))

	contacts, total, err := s.Contacts.List("s1", "@s.whatsapp.net", ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, contacts, 2)

	require.NoError(t, s.Contacts.DeleteAllExcept("s1", []string{"1@s.whatsapp.net"}))
	contacts, _, err = s.Contacts.List("s1", "", ListOptions{})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "1@s.whatsapp.net", contacts[0].ID)

	// Empty keep list clears the table.
	require.NoError(t, s.Contacts.DeleteAllExcept("s1", nil))
	_, total, err = s.Contacts.List("s1", "", ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestGroupParticipants(t *testing.T) {
	s := newTestStore(t)
	group := &wa.GroupMetadata{
		SessionID: "s1",
		ID:        "g1@g.us",
		Subject:   "friends",
		Participants: []wa.Participant{
			{ID: "1@s.whatsapp.net", IsAdmin: true},
			{ID: "2@s.whatsapp.net"},
		},
	}
	require.NoError(t, s.Groups.Upsert(group))

	got, err := s.Groups.Get("s1", group.ID)
	require.NoError(t, err)
	assert.Equal(t, "friends", got.Subject)
	require.Len(t, got.Participants, 2)
	assert.True(t, got.Participants[0].IsAdmin)

	require.NoError(t, s.Groups.SetParticipants("s1", group.ID, []wa.Participant{
		{ID: "2@s.whatsapp.net", IsAdmin: true},
	}))
	got, err = s.Groups.Get("s1", group.ID)
	require.NoError(t, err)
	require.Len(t, got.Participants, 1)
	assert.Equal(t, "2@s.whatsapp.net", got.Participants[0].ID)

	// A group stored without participants decodes to an empty list.
	require.NoError(t, s.Groups.Upsert(&wa.GroupMetadata{SessionID: "s1", ID: "g2@g.us", Subject: "x"}))
	got, err = s.Groups.Get("s1", "g2@g.us")
	require.NoError(t, err)
	assert.NotNil(t, got.Participants)
	assert.Empty(t, got.Participants)
}

func TestMessageReceiptsAndReactions(t *testing.T) {
	s := newTestStore(t)
	msg := &wa.Message{
		SessionID: "s1",
		RemoteJID: "123@s.whatsapp.net",
		ID:        "m1",
		Key:       wa.MessageKey{RemoteJID: "123@s.whatsapp.net", FromMe: true, ID: "m1"},
		Message:   []byte(`{"conversation":"hi"}`),
	}
	require.NoError(t, s.Messages.Upsert(msg))

	got, err := s.Messages.Get("s1", msg.RemoteJID, "m1")
	require.NoError(t, err)
	assert.Equal(t, msg.Key, got.Key)
	assert.JSONEq(t, `{"conversation":"hi"}`, string(got.Message))
	assert.Nil(t, got.UserReceipt)

	receipts := []wa.UserReceipt{{UserJID: "123@s.whatsapp.net", Status: "read", Timestamp: 10}}
	require.NoError(t, s.Messages.SetReceipts("s1", msg.RemoteJID, "m1", receipts))
	reactions := []wa.Reaction{{Key: wa.MessageKey{RemoteJID: msg.RemoteJID, ID: "r1"}, Text: "👍"}}
	require.NoError(t, s.Messages.SetReactions("s1", msg.RemoteJID, "m1", reactions))

	got, err = s.Messages.Get("s1", msg.RemoteJID, "m1")
	require.NoError(t, err)
	assert.Equal(t, receipts, got.UserReceipt)
	assert.Equal(t, reactions, got.Reactions)
}

func TestMessageConversationScoping(t *testing.T) {
	s := newTestStore(t)
	for _, m := range []struct{ jid, id string }{
		{"a@s.whatsapp.net", "m1"},
		{"a@s.whatsapp.net", "m2"},
		{"b@s.whatsapp.net", "m3"},
	} {
		require.NoError(t, s.Messages.Upsert(&wa.Message{
			SessionID: "s1",
			RemoteJID: m.jid,
			ID:        m.id,
			Key:       wa.MessageKey{RemoteJID: m.jid, ID: m.id},
		}))
	}

	_, total, err := s.Messages.List("s1", "a@s.whatsapp.net", ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	require.NoError(t, s.Messages.DeleteByConversation("s1", "a@s.whatsapp.net"))
	_, total, err = s.Messages.List("s1", "", ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestSessionRows(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Sessions.Put("s1", "creds", `{"registered":true}`))
	require.NoError(t, s.Sessions.Put("s1", "creds", `{"registered":false}`))

	data, err := s.Sessions.Get("s1", "creds")
	require.NoError(t, err)
	assert.JSONEq(t, `{"registered":false}`, data)

	_, err = s.Sessions.Get("s1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Sessions.Put("s1", "app-state-sync-key-aa", "1"))
	require.NoError(t, s.Sessions.Put("s1", "app-state-sync-key-bb", "2"))
	latest, err := s.Sessions.LatestIDWithPrefix("s1", "app-state-sync-key-")
	require.NoError(t, err)
	assert.Equal(t, "app-state-sync-key-bb", latest)

	rows, err := s.Sessions.GetMany("s1", []string{"app-state-sync-key-aa", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"app-state-sync-key-aa": "1"}, rows)

	require.NoError(t, s.Sessions.Put("s2", "session-config", "{}"))
	require.NoError(t, s.Sessions.Put("s1", "session-config", "{}"))
	ids, err := s.Sessions.SessionIDsWithKey("session-config")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, ids)

	require.NoError(t, s.Sessions.DeleteAll("s1"))
	_, err = s.Sessions.Get("s1", "creds")
	assert.ErrorIs(t, err, ErrNotFound)
}
