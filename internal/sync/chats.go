package sync

import (
	"errors"

	"github.com/rs/zerolog"

	"wamux/internal/store"
	"wamux/internal/transform"
	"wamux/internal/wa"
)

// ChatHandler applies chat events to the chats table.
type ChatHandler struct {
	sessionID string
	bus       *wa.Bus
	chats     *store.ChatStore
	log       zerolog.Logger

	listening bool
	subs      []subscription
}

// Listen subscribes the handler to its events. Safe to call twice.
func (h *ChatHandler) Listen() {
	if h.listening {
		return
	}
	h.subs = []subscription{
		on(h.bus, wa.EventHistorySet, h.log, h.set),
		on(h.bus, wa.EventChatsUpsert, h.log, h.upsert),
		on(h.bus, wa.EventChatsUpdate, h.log, h.update),
		on(h.bus, wa.EventChatsDelete, h.log, h.del),
	}
	h.listening = true
}

// Unlisten removes the handler's subscriptions. Safe to call twice.
func (h *ChatHandler) Unlisten() {
	if !h.listening {
		return
	}
	unsubscribeAll(h.bus, h.subs)
	h.subs = nil
	h.listening = false
}

// set applies the chat part of a history snapshot. An authoritative
// snapshot clears the table first; rows whose id already exists from live
// traffic are skipped rather than clobbered.
func (h *ChatHandler) set(ev *wa.HistorySet) {
	if ev.IsLatest {
		if err := h.chats.DeleteAll(h.sessionID); err != nil {
			h.log.Error().Err(err).Msg("an error occurred during chats set")
			return
		}
	}

	ids := make([]string, len(ev.Chats))
	for i, chat := range ev.Chats {
		ids[i] = chat.ID
	}
	existing, err := h.chats.ExistingIDs(h.sessionID, ids)
	if err != nil {
		h.log.Error().Err(err).Msg("an error occurred during chats set")
		return
	}

	added := 0
	for _, chat := range ev.Chats {
		if existing[chat.ID] {
			continue
		}
		chat.SessionID = h.sessionID
		if err := h.chats.Upsert(chat); err != nil {
			h.log.Error().Err(err).Str("id", chat.ID).Msg("an error occurred during chats set")
			continue
		}
		added++
	}
	h.log.Info().Int("chatsAdded", added).Msg("synced chats")
}

func (h *ChatHandler) upsert(chats []*wa.Chat) {
	for _, chat := range chats {
		chat.SessionID = h.sessionID
		if err := h.chats.Upsert(chat); err != nil {
			h.log.Error().Err(err).Str("id", chat.ID).Msg("an error occurred during chats upsert")
		}
	}
}

// update applies partial chat updates. unreadCount has merge semantics:
// a positive delta adds to the stored value, zero or negative overwrites.
func (h *ChatHandler) update(updates []*wa.Chat) {
	for _, update := range updates {
		doc := transform.ToStorage(update, true)

		if update.UnreadCount != nil {
			delta := *update.UnreadCount
			if delta > 0 {
				prev, err := h.chats.Get(h.sessionID, update.ID)
				if errors.Is(err, store.ErrNotFound) {
					h.log.Info().Str("id", update.ID).Msg("got update for non existent chat")
					continue
				}
				if err != nil {
					h.log.Error().Err(err).Msg("an error occurred during chat update")
					continue
				}
				stored := int64(0)
				if prev.UnreadCount != nil {
					stored = *prev.UnreadCount
				}
				doc["unreadCount"] = stored + delta
			} else {
				doc["unreadCount"] = delta
			}
		}

		rows, err := h.chats.Update(h.sessionID, update.ID, doc)
		if err != nil {
			h.log.Error().Err(err).Msg("an error occurred during chat update")
			continue
		}
		if rows == 0 {
			h.log.Info().Str("id", update.ID).Msg("got update for non existent chat")
		}
	}
}

func (h *ChatHandler) del(ids []string) {
	for _, id := range ids {
		if err := h.chats.Delete(h.sessionID, id); err != nil {
			h.log.Error().Err(err).Str("id", id).Msg("an error occurred during chats delete")
		}
	}
}
