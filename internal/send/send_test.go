package send

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	stdsync "sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	waLog "go.mau.fi/whatsmeow/util/log"

	"wamux/internal/session"
	"wamux/internal/store"
	"wamux/internal/wa"
)

type fakeClient struct {
	exists func(jid string) bool
	send   func(jid string, content wa.SendContent) (*wa.SendReceipt, error)

	mu   stdsync.Mutex
	sent []wa.SendContent
}

func (c *fakeClient) Connect(ctx context.Context) error { return nil }
func (c *fakeClient) Disconnect()                       {}
func (c *fakeClient) Logout(ctx context.Context) error  { return nil }
func (c *fakeClient) ReadyState() wa.ReadyState         { return wa.ReadyOpen }
func (c *fakeClient) User() *wa.Identity                { return nil }

func (c *fakeClient) Exists(ctx context.Context, jid string, kind wa.JIDKind) (bool, error) {
	if c.exists == nil {
		return true, nil
	}
	return c.exists(jid), nil
}

func (c *fakeClient) SendMessage(ctx context.Context, jid string, content wa.SendContent) (*wa.SendReceipt, error) {
	c.mu.Lock()
	c.sent = append(c.sent, content)
	c.mu.Unlock()
	if c.send != nil {
		return c.send(jid, content)
	}
	return &wa.SendReceipt{ID: "msg-id", Timestamp: 1700000000}, nil
}

func (c *fakeClient) GroupMetadata(ctx context.Context, jid string) (*wa.GroupMetadata, error) {
	return nil, nil
}
func (c *fakeClient) ProfilePictureURL(ctx context.Context, jid string) (string, error) {
	return "", nil
}
func (c *fakeClient) FetchBlocklist(ctx context.Context) ([]string, error) { return nil, nil }
func (c *fakeClient) UpdateBlockStatus(ctx context.Context, jid string, action wa.BlockAction) error {
	return nil
}
func (c *fakeClient) MarkRead(ctx context.Context, keys []wa.MessageKey) error { return nil }
func (c *fakeClient) DownloadMedia(ctx context.Context, msg *wa.Message) ([]byte, string, error) {
	return []byte("media"), "image/jpeg", nil
}

type fakeDialer struct {
	client *fakeClient
}

func (d *fakeDialer) Dial(ctx context.Context, params wa.DialParams) (wa.Client, error) {
	return d.client, nil
}

func newTestService(t *testing.T, client *fakeClient) *Service {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "test.db"), waLog.Noop)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	manager := session.NewManager(session.Config{}, db, &fakeDialer{client: client}, zerolog.Nop())
	t.Cleanup(manager.Shutdown)
	require.NoError(t, manager.CreateSession(context.Background(), session.Options{SessionID: "s1"}))
	return NewService(manager, zerolog.Nop())
}

func TestSendText(t *testing.T) {
	client := &fakeClient{}
	s := newTestService(t, client)

	receipt, err := s.Send(context.Background(), "s1", Request{
		JID:     "123@s.whatsapp.net",
		Message: json.RawMessage(`{"text":"hello"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-id", receipt.ID)

	require.Len(t, client.sent, 1)
	assert.Equal(t, "hello", client.sent[0].Text)
	assert.Nil(t, client.sent[0].Raw)
}

func TestSendRejectsUnknownJID(t *testing.T) {
	client := &fakeClient{exists: func(string) bool { return false }}
	s := newTestService(t, client)

	_, err := s.Send(context.Background(), "s1", Request{
		JID:     "missing@s.whatsapp.net",
		Message: json.RawMessage(`{"text":"hi"}`),
	})
	assert.ErrorIs(t, err, session.ErrJIDNotFound)
	assert.Empty(t, client.sent)
}

func TestSendUnknownSession(t *testing.T) {
	s := newTestService(t, &fakeClient{})
	_, err := s.Send(context.Background(), "nope", Request{JID: "123@s.whatsapp.net"})
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestSendBulkPartialSuccess(t *testing.T) {
	client := &fakeClient{
		exists: func(jid string) bool { return jid != "bad@s.whatsapp.net" },
	}
	s := newTestService(t, client)

	zero := 0
	result, err := s.SendBulk(context.Background(), "s1", []BulkItem{
		{Request: Request{JID: "a@s.whatsapp.net", Message: json.RawMessage(`{"text":"1"}`)}},
		{Request: Request{JID: "bad@s.whatsapp.net", Message: json.RawMessage(`{"text":"2"}`)}, Delay: &zero},
		{Request: Request{JID: "b@s.whatsapp.net", Message: json.RawMessage(`{"text":"3"}`)}, Delay: &zero},
	})
	require.NoError(t, err)
	require.Len(t, result.Success, 2)
	assert.Equal(t, 0, result.Success[0].Index)
	assert.Equal(t, 2, result.Success[1].Index)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 1, result.Errors[0].Index)
	assert.Equal(t, "JID does not exists", result.Errors[0].Error)
}

func TestSendBulkAllFailed(t *testing.T) {
	client := &fakeClient{
		send: func(string, wa.SendContent) (*wa.SendReceipt, error) {
			return nil, errors.New("boom")
		},
	}
	s := newTestService(t, client)

	zero := 0
	result, err := s.SendBulk(context.Background(), "s1", []BulkItem{
		{Request: Request{JID: "a@s.whatsapp.net", Message: json.RawMessage(`{"text":"1"}`)}},
		{Request: Request{JID: "b@s.whatsapp.net", Message: json.RawMessage(`{"text":"2"}`)}, Delay: &zero},
	})
	assert.ErrorIs(t, err, ErrAllFailed)
	require.NotNil(t, result)
	assert.Empty(t, result.Success)
	assert.Len(t, result.Errors, 2)
}

func TestSendBulkEmpty(t *testing.T) {
	s := newTestService(t, &fakeClient{})
	result, err := s.SendBulk(context.Background(), "s1", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Success)
	assert.Empty(t, result.Errors)
}

func TestDownload(t *testing.T) {
	s := newTestService(t, &fakeClient{})
	data, contentType, err := s.Download(context.Background(), "s1", &wa.Message{})
	require.NoError(t, err)
	assert.Equal(t, []byte("media"), data)
	assert.Equal(t, "image/jpeg", contentType)
}

func TestContentOf(t *testing.T) {
	content := contentOf(json.RawMessage(`{"text":"plain"}`))
	assert.Equal(t, "plain", content.Text)
	assert.Nil(t, content.Raw)

	raw := json.RawMessage(`{"text":"cap","linkPreview":true}`)
	content = contentOf(raw)
	assert.Empty(t, content.Text)
	assert.Equal(t, []byte(raw), content.Raw)

	raw = json.RawMessage(`{"imageMessage":{}}`)
	content = contentOf(raw)
	assert.Equal(t, []byte(raw), content.Raw)
}
