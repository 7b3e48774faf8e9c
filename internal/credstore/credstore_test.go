package credstore

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	waLog "go.mau.fi/whatsmeow/util/log"

	"wamux/internal/store"
	"wamux/internal/wa"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "test.db"), waLog.Noop)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New("s1", db.Sessions, zerolog.Nop())
}

func TestSanitizeID(t *testing.T) {
	assert.Equal(t, "a__b-c", sanitizeID("a/b:c"))
	assert.Equal(t, "plain", sanitizeID("plain"))
}

func TestWriteReadDelete(t *testing.T) {
	s := newTestStore(t)

	type payload struct {
		Value string `json:"value"`
	}
	require.NoError(t, s.Write("pre-key/1:2", &payload{Value: "x"}))

	var got payload
	require.NoError(t, s.Read("pre-key/1:2", &got))
	assert.Equal(t, "x", got.Value)

	s.Delete("pre-key/1:2")
	assert.ErrorIs(t, s.Read("pre-key/1:2", &got), ErrNotFound)

	assert.ErrorIs(t, s.Read("never-written", &got), ErrNotFound)
}

func TestCorruptRowReportedAsAbsent(t *testing.T) {
	db, err := store.New(filepath.Join(t.TempDir(), "test.db"), waLog.Noop)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := New("s1", db.Sessions, zerolog.Nop())

	require.NoError(t, db.Sessions.Put("s1", "creds", "{not json"))
	_, err = s.ReadCreds()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCredsRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ReadCreds()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.WriteCreds(&Creds{
		Me:         &wa.Identity{JID: "123:4@s.whatsapp.net", Name: "Alice"},
		Platform:   "smba",
		Registered: true,
	}))
	creds, err := s.ReadCreds()
	require.NoError(t, err)
	assert.True(t, creds.Registered)
	assert.Equal(t, "smba", creds.Platform)
	require.NotNil(t, creds.Me)
	assert.Equal(t, "123:4@s.whatsapp.net", creds.Me.JID)
}

func TestConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.WriteConfig(&SessionConfig{
		SessionID:            "s1",
		ReadIncomingMessages: true,
		Socket:               wa.SocketConfig{SyncFullHistory: true},
	}))
	cfg, err := s.ReadConfig()
	require.NoError(t, err)
	assert.Equal(t, "s1", cfg.SessionID)
	assert.True(t, cfg.ReadIncomingMessages)
	assert.True(t, cfg.Socket.SyncFullHistory)
}

func TestAppStateKeys(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetKeys(map[string][]byte{
		"aa": []byte("key-a"),
		"bb": []byte("key-b"),
	}))

	keys, err := s.GetKeys([]string{"aa", "bb", "cc"})
	require.NoError(t, err)
	assert.Equal(t, []byte("key-a"), keys["aa"])
	assert.Equal(t, []byte("key-b"), keys["bb"])
	val, ok := keys["cc"]
	assert.True(t, ok, "absent ids still appear in the result")
	assert.Nil(t, val)

	// A nil value deletes the key's row.
	require.NoError(t, s.SetKeys(map[string][]byte{"aa": nil}))
	keys, err = s.GetKeys([]string{"aa"})
	require.NoError(t, err)
	assert.Nil(t, keys["aa"])
}

func TestLatestKeyID(t *testing.T) {
	s := newTestStore(t)

	latest, err := s.LatestKeyID()
	require.NoError(t, err)
	assert.Empty(t, latest)

	require.NoError(t, s.SetKeys(map[string][]byte{"aa": []byte("1")}))
	require.NoError(t, s.SetKeys(map[string][]byte{"bb": []byte("2")}))

	latest, err = s.LatestKeyID()
	require.NoError(t, err)
	assert.Equal(t, "bb", latest)
}

func TestDeleteAll(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteCreds(&Creds{Registered: true}))
	require.NoError(t, s.SetKeys(map[string][]byte{"aa": []byte("1")}))

	require.NoError(t, s.DeleteAll())
	_, err := s.ReadCreds()
	assert.ErrorIs(t, err, ErrNotFound)
	latest, err := s.LatestKeyID()
	require.NoError(t, err)
	assert.Empty(t, latest)
}
