package sync

import (
	"errors"

	"github.com/rs/zerolog"

	"wamux/internal/store"
	"wamux/internal/transform"
	"wamux/internal/wa"
)

// MessageHandler applies message events to the messages table. It also
// derives chat rows: a live message for an unknown conversation emits a
// chats.upsert back onto the bus.
type MessageHandler struct {
	sessionID string
	bus       *wa.Bus
	messages  *store.MessageStore
	chats     *store.ChatStore
	log       zerolog.Logger

	listening bool
	subs      []subscription
}

// Listen subscribes the handler to its events. Safe to call twice.
func (h *MessageHandler) Listen() {
	if h.listening {
		return
	}
	h.subs = []subscription{
		on(h.bus, wa.EventHistorySet, h.log, h.set),
		on(h.bus, wa.EventMessagesUpsert, h.log, h.upsert),
		on(h.bus, wa.EventMessagesUpdate, h.log, h.update),
		on(h.bus, wa.EventMessagesDelete, h.log, h.del),
		on(h.bus, wa.EventMessageReceipt, h.log, h.updateReceipt),
		on(h.bus, wa.EventMessagesReaction, h.log, h.updateReaction),
	}
	h.listening = true
}

// Unlisten removes the handler's subscriptions. Safe to call twice.
func (h *MessageHandler) Unlisten() {
	if !h.listening {
		return
	}
	unsubscribeAll(h.bus, h.subs)
	h.subs = nil
	h.listening = false
}

// set applies the message part of a history snapshot.
func (h *MessageHandler) set(ev *wa.HistorySet) {
	if ev.IsLatest {
		if err := h.messages.DeleteAll(h.sessionID); err != nil {
			h.log.Error().Err(err).Msg("an error occurred during messages set")
			return
		}
	}

	added := 0
	for _, msg := range ev.Messages {
		msg.SessionID = h.sessionID
		msg.RemoteJID = msg.Key.RemoteJID
		msg.ID = msg.Key.ID
		if err := h.messages.Upsert(msg); err != nil {
			h.log.Error().Err(err).Str("id", msg.ID).Msg("an error occurred during messages set")
			continue
		}
		added++
	}
	h.log.Info().Int("messages", added).Msg("synced messages")
}

func (h *MessageHandler) upsert(ev *wa.MessagesUpsert) {
	switch ev.Type {
	case wa.UpsertNotify, wa.UpsertAppend:
	default:
		return
	}

	for _, msg := range ev.Messages {
		jid := msg.Key.RemoteJID
		msg.SessionID = h.sessionID
		msg.RemoteJID = jid
		msg.ID = msg.Key.ID
		if err := h.messages.Upsert(msg); err != nil {
			h.log.Error().Err(err).Str("id", msg.ID).Msg("an error occurred during message upsert")
			continue
		}

		chatExists, err := h.chats.Exists(h.sessionID, jid)
		if err != nil {
			h.log.Error().Err(err).Msg("an error occurred during message upsert")
			continue
		}
		if ev.Type == wa.UpsertNotify && !chatExists {
			unread := int64(1)
			h.bus.Emit(wa.EventChatsUpsert, []*wa.Chat{{
				ID:                    jid,
				ConversationTimestamp: msg.MessageTimestamp,
				UnreadCount:           &unread,
			}})
		}
	}
}

func (h *MessageHandler) update(updates []wa.MessageUpdate) {
	for _, u := range updates {
		_, err := h.messages.Get(h.sessionID, u.Key.RemoteJID, u.Key.ID)
		if errors.Is(err, store.ErrNotFound) {
			h.log.Info().Str("id", u.Key.ID).Msg("got update for non existent message")
			continue
		}
		if err != nil {
			h.log.Error().Err(err).Msg("an error occurred during message update")
			continue
		}

		doc := transform.ToStorage(u.Update, true)
		if u.Update.Key.ID == "" {
			delete(doc, "key")
		}
		if _, err := h.messages.Update(h.sessionID, u.Key.RemoteJID, u.Key.ID, doc); err != nil {
			h.log.Error().Err(err).Msg("an error occurred during message update")
		}
	}
}

func (h *MessageHandler) del(items *wa.MessagesDelete) {
	if items.All {
		if err := h.messages.DeleteByConversation(h.sessionID, items.JID); err != nil {
			h.log.Error().Err(err).Msg("an error occurred during message delete")
		}
		return
	}
	for _, key := range items.Keys {
		if err := h.messages.Delete(h.sessionID, key.RemoteJID, key.ID); err != nil {
			h.log.Error().Err(err).Str("id", key.ID).Msg("an error occurred during message delete")
		}
	}
}

// updateReceipt keeps at most one receipt per user per message; a later
// receipt for the same user replaces the stored one.
func (h *MessageHandler) updateReceipt(updates []wa.ReceiptUpdate) {
	for _, u := range updates {
		prev, err := h.messages.Get(h.sessionID, u.Key.RemoteJID, u.Key.ID)
		if errors.Is(err, store.ErrNotFound) {
			h.log.Debug().Str("id", u.Key.ID).Msg("got receipt update for non existent message")
			continue
		}
		if err != nil {
			h.log.Error().Err(err).Msg("an error occurred during message receipt update")
			continue
		}

		receipts := make([]wa.UserReceipt, 0, len(prev.UserReceipt)+1)
		for _, r := range prev.UserReceipt {
			if r.UserJID != u.Receipt.UserJID {
				receipts = append(receipts, r)
			}
		}
		receipts = append(receipts, u.Receipt)

		if err := h.messages.SetReceipts(h.sessionID, u.Key.RemoteJID, u.Key.ID, receipts); err != nil {
			h.log.Error().Err(err).Msg("an error occurred during message receipt update")
		}
	}
}

// updateReaction keeps at most one reaction per author per message; an
// empty reaction text removes the author's entry.
func (h *MessageHandler) updateReaction(updates []wa.ReactionUpdate) {
	for _, u := range updates {
		prev, err := h.messages.Get(h.sessionID, u.Key.RemoteJID, u.Key.ID)
		if errors.Is(err, store.ErrNotFound) {
			h.log.Debug().Str("id", u.Key.ID).Msg("got reaction update for non existent message")
			continue
		}
		if err != nil {
			h.log.Error().Err(err).Msg("an error occurred during message reaction update")
			continue
		}

		author := u.Reaction.Key.Author()
		reactions := make([]wa.Reaction, 0, len(prev.Reactions)+1)
		for _, r := range prev.Reactions {
			if r.Key.Author() != author {
				reactions = append(reactions, r)
			}
		}
		if u.Reaction.Text != "" {
			reactions = append(reactions, u.Reaction)
		}

		if err := h.messages.SetReactions(h.sessionID, u.Key.RemoteJID, u.Key.ID, reactions); err != nil {
			h.log.Error().Err(err).Msg("an error occurred during message reaction update")
		}
	}
}
