package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	waLog "go.mau.fi/whatsmeow/util/log"

	"wamux/internal/send"
	"wamux/internal/session"
	"wamux/internal/store"
	"wamux/internal/wa"
)

type fakeClient struct {
	bus       *wa.Bus
	user      *wa.Identity
	exists    bool
	groupErr  error
	blocklist []string
}

func (c *fakeClient) Connect(ctx context.Context) error {
	c.bus.Emit(wa.EventConnectionUpdate, &wa.ConnectionUpdate{Connection: wa.ConnectionOpen})
	return nil
}

func (c *fakeClient) Disconnect()                      {}
func (c *fakeClient) Logout(ctx context.Context) error { return nil }
func (c *fakeClient) ReadyState() wa.ReadyState        { return wa.ReadyOpen }
func (c *fakeClient) User() *wa.Identity               { return c.user }

func (c *fakeClient) Exists(ctx context.Context, jid string, kind wa.JIDKind) (bool, error) {
	return c.exists, nil
}

func (c *fakeClient) SendMessage(ctx context.Context, jid string, content wa.SendContent) (*wa.SendReceipt, error) {
	return &wa.SendReceipt{ID: "sent-id", Timestamp: 1700000000}, nil
}

func (c *fakeClient) GroupMetadata(ctx context.Context, jid string) (*wa.GroupMetadata, error) {
	if c.groupErr != nil {
		return nil, c.groupErr
	}
	return &wa.GroupMetadata{ID: jid, Subject: "live group"}, nil
}

func (c *fakeClient) ProfilePictureURL(ctx context.Context, jid string) (string, error) {
	return "https://example.com/photo.jpg", nil
}

func (c *fakeClient) FetchBlocklist(ctx context.Context) ([]string, error) {
	return c.blocklist, nil
}

func (c *fakeClient) UpdateBlockStatus(ctx context.Context, jid string, action wa.BlockAction) error {
	return nil
}

func (c *fakeClient) MarkRead(ctx context.Context, keys []wa.MessageKey) error { return nil }

func (c *fakeClient) DownloadMedia(ctx context.Context, msg *wa.Message) ([]byte, string, error) {
	return []byte("media-bytes"), "image/jpeg", nil
}

type fakeDialer struct {
	client *fakeClient
}

func (d *fakeDialer) Dial(ctx context.Context, params wa.DialParams) (wa.Client, error) {
	d.client.bus = params.Bus
	return d.client, nil
}

type testEnv struct {
	server *Server
	db     *store.Store
	client *fakeClient
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "test.db"), waLog.Noop)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := &fakeClient{exists: true}
	manager := session.NewManager(session.Config{}, db, &fakeDialer{client: client}, zerolog.Nop())
	t.Cleanup(manager.Shutdown)
	sender := send.NewService(manager, zerolog.Nop())

	return &testEnv{
		server: NewServer("127.0.0.1:0", manager, sender, db, zerolog.Nop()),
		db:     db,
		client: client,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.server.http.Handler.ServeHTTP(rec, req)
	return rec
}

type responseEnvelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var env responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func (e *testEnv) createSession(t *testing.T, id string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/session", `{"sessionId":"`+id+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreateSession(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/session", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/session", `{"sessionId":"s1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "Session created", env.Message)
	var result session.PairingResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.Connected)

	rec = e.do(t, http.MethodPost, "/session", `{"sessionId":"s1"}`)
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestSessionLookupAndStatus(t *testing.T) {
	e := newTestEnv(t)
	e.client.user = &wa.Identity{JID: "123@s.whatsapp.net", Name: "Me"}
	e.createSession(t, "s1")

	rec := e.do(t, http.MethodGet, "/session/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Contains(t, string(env.Data), "123@s.whatsapp.net")

	rec = e.do(t, http.MethodGet, "/session/s1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	env = decodeEnvelope(t, rec)
	assert.JSONEq(t, `"AUTHENTICATED"`, string(env.Data))

	rec = e.do(t, http.MethodGet, "/session/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteSession(t *testing.T) {
	e := newTestEnv(t)
	e.createSession(t, "s1")

	rec := e.do(t, http.MethodDelete, "/session/s1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodDelete, "/session/s1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListChatsPagination(t *testing.T) {
	e := newTestEnv(t)
	for _, id := range []string{"c1", "c2", "c3"} {
		require.NoError(t, e.db.Chats.Upsert(&wa.Chat{SessionID: "s1", ID: id}))
	}

	rec := e.do(t, http.MethodGet, "/chat/s1?limit=2&page=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "Fetch the data of all chats successfully", env.Message)

	var page struct {
		Result     []map[string]any `json:"result"`
		Pagination struct {
			Total       int  `json:"total"`
			CurrentPage int  `json:"currentPage"`
			NextPage    *int `json:"nextPage"`
			PrevPage    *int `json:"prevPage"`
			LastPage    int  `json:"lastPage"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page.Result, 1)
	assert.Equal(t, 3, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.CurrentPage)
	assert.Equal(t, 2, page.Pagination.LastPage)
	assert.Nil(t, page.Pagination.NextPage)
	require.NotNil(t, page.Pagination.PrevPage)
	assert.Equal(t, 1, *page.Pagination.PrevPage)
}

func TestListContactsFiltersUsers(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.db.Contacts.Upsert(&wa.Contact{SessionID: "s1", ID: "1@s.whatsapp.net"}))
	require.NoError(t, e.db.Contacts.Upsert(&wa.Contact{SessionID: "s1", ID: "g@g.us"}))

	rec := e.do(t, http.MethodGet, "/contact/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	var page struct {
		Result []map[string]any `json:"result"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Result, 1)
	assert.Equal(t, "1@s.whatsapp.net", page.Result[0]["id"])
}

func TestCheckJID(t *testing.T) {
	e := newTestEnv(t)
	e.createSession(t, "s1")

	rec := e.do(t, http.MethodGet, "/contact/s1/check/123@s.whatsapp.net", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	e.client.exists = false
	rec = e.do(t, http.MethodGet, "/contact/s1/check/123@s.whatsapp.net", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "RemoteJid does not exists", env.Message)
}

func TestUpdateBlocklist(t *testing.T) {
	e := newTestEnv(t)
	e.createSession(t, "s1")

	rec := e.do(t, http.MethodPatch, "/contact/s1/blocklist", `{"jid":"1@s.whatsapp.net","action":"block"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "Successfully contact blocked", env.Message)

	rec = e.do(t, http.MethodPatch, "/contact/s1/blocklist", `{"jid":"1@s.whatsapp.net","action":"mute"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFindGroupStoredThenLive(t *testing.T) {
	e := newTestEnv(t)
	e.createSession(t, "s1")
	require.NoError(t, e.db.Groups.Upsert(&wa.GroupMetadata{SessionID: "s1", ID: "g1@g.us", Subject: "stored"}))

	rec := e.do(t, http.MethodGet, "/group/s1/find/g1@g.us", "")
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Contains(t, string(env.Data), "stored")

	rec = e.do(t, http.MethodGet, "/group/s1/find/g2@g.us", "")
	require.Equal(t, http.StatusOK, rec.Code)
	env = decodeEnvelope(t, rec)
	assert.Contains(t, string(env.Data), "live group")

	e.client.groupErr = errors.New("not a member")
	rec = e.do(t, http.MethodGet, "/group/s1/find/g3@g.us", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessage(t *testing.T) {
	e := newTestEnv(t)
	e.createSession(t, "s1")

	rec := e.do(t, http.MethodPost, "/message/s1/send", `{"jid":"1@s.whatsapp.net","message":{"text":"hi"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Contains(t, string(env.Data), "sent-id")

	rec = e.do(t, http.MethodPost, "/message/s1/send", `{"jid":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/message/missing/send", `{"jid":"1@s.whatsapp.net","message":{"text":"hi"}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadMedia(t *testing.T) {
	e := newTestEnv(t)
	e.createSession(t, "s1")

	rec := e.do(t, http.MethodPost, "/message/s1/download", `{"message":{"key":{"id":"m1"}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "media-bytes", rec.Body.String())
}
