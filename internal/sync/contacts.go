package sync

import (
	"github.com/rs/zerolog"

	"wamux/internal/store"
	"wamux/internal/transform"
	"wamux/internal/wa"
)

// ContactHandler applies contact events to the contacts table.
type ContactHandler struct {
	sessionID string
	bus       *wa.Bus
	contacts  *store.ContactStore
	log       zerolog.Logger

	listening bool
	subs      []subscription
}

// Listen subscribes the handler to its events. Safe to call twice.
func (h *ContactHandler) Listen() {
	if h.listening {
		return
	}
	h.subs = []subscription{
		on(h.bus, wa.EventHistorySet, h.log, h.set),
		on(h.bus, wa.EventContactsUpsert, h.log, h.upsert),
		on(h.bus, wa.EventContactsUpdate, h.log, h.update),
	}
	h.listening = true
}

// Unlisten removes the handler's subscriptions. Safe to call twice.
func (h *ContactHandler) Unlisten() {
	if !h.listening {
		return
	}
	unsubscribeAll(h.bus, h.subs)
	h.subs = nil
	h.listening = false
}

// set applies the contact part of a history snapshot. Unlike chats, the
// snapshot merges: stored ids absent from the snapshot are deleted and
// every snapshot row is upserted.
func (h *ContactHandler) set(ev *wa.HistorySet) {
	ids := make([]string, len(ev.Contacts))
	for i, contact := range ev.Contacts {
		ids[i] = contact.ID
	}
	if err := h.contacts.DeleteAllExcept(h.sessionID, ids); err != nil {
		h.log.Error().Err(err).Msg("an error occurred during contacts set")
		return
	}

	for _, contact := range ev.Contacts {
		contact.SessionID = h.sessionID
		if err := h.contacts.Upsert(contact); err != nil {
			h.log.Error().Err(err).Str("id", contact.ID).Msg("an error occurred during contacts set")
		}
	}
	h.log.Info().Int("newContacts", len(ev.Contacts)).Msg("synced contacts")
}

func (h *ContactHandler) upsert(contacts []*wa.Contact) {
	for _, contact := range contacts {
		contact.SessionID = h.sessionID
		if err := h.contacts.Upsert(contact); err != nil {
			h.log.Error().Err(err).Str("id", contact.ID).Msg("an error occurred during contacts upsert")
		}
	}
}

func (h *ContactHandler) update(updates []*wa.Contact) {
	for _, update := range updates {
		doc := transform.ToStorage(update, true)
		rows, err := h.contacts.Update(h.sessionID, update.ID, doc)
		if err != nil {
			h.log.Error().Err(err).Msg("an error occurred during contact update")
			continue
		}
		if rows == 0 {
			h.log.Info().Str("id", update.ID).Msg("got update for non existent contact")
		}
	}
}
