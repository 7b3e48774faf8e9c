package meow

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waCommon"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"wamux/internal/wa"
)

func newEventClient(t *testing.T) (*Client, *wa.Bus) {
	t.Helper()
	bus := wa.NewBus(zerolog.Nop())
	t.Cleanup(bus.Close)
	return &Client{bus: bus, log: zerolog.Nop()}, bus
}

func subscribe[T any](bus *wa.Bus, evt wa.EventName) <-chan T {
	ch := make(chan T, 8)
	bus.Subscribe(evt, func(payload any) {
		if v, ok := payload.(T); ok {
			ch <- v
		}
	})
	return ch
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		panic("unreachable")
	}
}

func messageInfo(id string) types.MessageInfo {
	return types.MessageInfo{
		MessageSource: types.MessageSource{
			Chat:   types.NewJID("123", types.DefaultUserServer),
			Sender: types.NewJID("456", types.DefaultUserServer),
		},
		ID:        id,
		Timestamp: time.Unix(1700000000, 0),
		PushName:  "Alice",
	}
}

func TestHandleMessageText(t *testing.T) {
	c, bus := newEventClient(t)
	upserts := subscribe[*wa.MessagesUpsert](bus, wa.EventMessagesUpsert)
	deletes := subscribe[*wa.MessagesDelete](bus, wa.EventMessagesDelete)

	c.handleMessage(&events.Message{
		Info:    messageInfo("m1"),
		Message: &waProto.Message{Conversation: proto.String("hello")},
	})

	ev := receive(t, upserts)
	assert.Equal(t, wa.UpsertNotify, ev.Type)
	require.Len(t, ev.Messages, 1)
	msg := ev.Messages[0]
	assert.Equal(t, "m1", msg.Key.ID)
	assert.Equal(t, "123@s.whatsapp.net", msg.Key.RemoteJID)
	assert.Contains(t, string(msg.Message), "hello")
	assert.Equal(t, int64(1700000000), *msg.MessageTimestamp)

	// A plain message must not double as a revoke.
	select {
	case <-deletes:
		t.Fatal("unexpected delete event for a plain message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleMessageReaction(t *testing.T) {
	c, bus := newEventClient(t)
	reactions := subscribe[[]wa.ReactionUpdate](bus, wa.EventMessagesReaction)

	c.handleMessage(&events.Message{
		Info: messageInfo("r1"),
		Message: &waProto.Message{
			ReactionMessage: &waProto.ReactionMessage{
				Key:  &waCommon.MessageKey{ID: proto.String("target")},
				Text: proto.String("👍"),
			},
		},
	})

	updates := receive(t, reactions)
	require.Len(t, updates, 1)
	assert.Equal(t, "target", updates[0].Key.ID)
	assert.Equal(t, "123@s.whatsapp.net", updates[0].Key.RemoteJID)
	assert.Equal(t, "👍", updates[0].Reaction.Text)
	assert.Equal(t, "r1", updates[0].Reaction.Key.ID)
}

func TestHandleMessageRevoke(t *testing.T) {
	c, bus := newEventClient(t)
	deletes := subscribe[*wa.MessagesDelete](bus, wa.EventMessagesDelete)

	c.handleMessage(&events.Message{
		Info: messageInfo("p1"),
		Message: &waProto.Message{
			ProtocolMessage: &waProto.ProtocolMessage{
				Key:  &waCommon.MessageKey{ID: proto.String("target")},
				Type: waProto.ProtocolMessage_REVOKE.Enum(),
			},
		},
	})

	ev := receive(t, deletes)
	require.Len(t, ev.Keys, 1)
	assert.Equal(t, "target", ev.Keys[0].ID)
	assert.Equal(t, "123@s.whatsapp.net", ev.Keys[0].RemoteJID)
}

func TestHandleMessageEdit(t *testing.T) {
	c, bus := newEventClient(t)
	updates := subscribe[[]wa.MessageUpdate](bus, wa.EventMessagesUpdate)
	upserts := subscribe[*wa.MessagesUpsert](bus, wa.EventMessagesUpsert)

	c.handleMessage(&events.Message{
		Info: messageInfo("e1"),
		Message: &waProto.Message{
			ProtocolMessage: &waProto.ProtocolMessage{
				Key:           &waCommon.MessageKey{ID: proto.String("target")},
				Type:          waProto.ProtocolMessage_MESSAGE_EDIT.Enum(),
				EditedMessage: &waProto.Message{Conversation: proto.String("edited text")},
			},
		},
	})

	ev := receive(t, updates)
	require.Len(t, ev, 1)
	assert.Equal(t, "target", ev[0].Key.ID)
	assert.Equal(t, "123@s.whatsapp.net", ev[0].Key.RemoteJID)
	assert.Contains(t, string(ev[0].Update.Message), "edited text")
	assert.Equal(t, int64(1700000000), *ev[0].Update.MessageTimestamp)

	// Edits never land as new rows.
	select {
	case <-upserts:
		t.Fatal("unexpected upsert event for an edit")
	case <-time.After(50 * time.Millisecond):
	}
}
