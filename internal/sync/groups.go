package sync

import (
	"errors"

	"github.com/rs/zerolog"

	"wamux/internal/store"
	"wamux/internal/transform"
	"wamux/internal/wa"
)

// GroupHandler applies group metadata events to the groups table.
type GroupHandler struct {
	sessionID string
	bus       *wa.Bus
	groups    *store.GroupStore
	log       zerolog.Logger

	listening bool
	subs      []subscription
}

// Listen subscribes the handler to its events. Safe to call twice.
func (h *GroupHandler) Listen() {
	if h.listening {
		return
	}
	h.subs = []subscription{
		on(h.bus, wa.EventGroupsUpsert, h.log, h.upsert),
		on(h.bus, wa.EventGroupsUpdate, h.log, h.update),
		on(h.bus, wa.EventGroupParticipants, h.log, h.updateParticipants),
	}
	h.listening = true
}

// Unlisten removes the handler's subscriptions. Safe to call twice.
func (h *GroupHandler) Unlisten() {
	if !h.listening {
		return
	}
	unsubscribeAll(h.bus, h.subs)
	h.subs = nil
	h.listening = false
}

func (h *GroupHandler) upsert(groups []*wa.GroupMetadata) {
	for _, group := range groups {
		group.SessionID = h.sessionID
		if err := h.groups.Upsert(group); err != nil {
			h.log.Error().Err(err).Str("id", group.ID).Msg("an error occurred during groups upsert")
		}
	}
}

func (h *GroupHandler) update(updates []*wa.GroupMetadata) {
	for _, update := range updates {
		doc := transform.ToStorage(update, true)
		// The member list is only replaced by full upserts and membership
		// events, never by a metadata update.
		delete(doc, "participants")
		if update.Subject == "" {
			delete(doc, "subject")
		}

		rows, err := h.groups.Update(h.sessionID, update.ID, doc)
		if err != nil {
			h.log.Error().Err(err).Msg("an error occurred during group metadata update")
			continue
		}
		if rows == 0 {
			h.log.Info().Str("id", update.ID).Msg("got metadata update for non existent group")
		}
	}
}

// updateParticipants mutates the stored member list incrementally: add
// appends non-admin descriptors, promote/demote flips the admin flag for
// the listed ids, remove filters them out.
func (h *GroupHandler) updateParticipants(ev *wa.ParticipantsUpdate) {
	group, err := h.groups.Get(h.sessionID, ev.ID)
	if errors.Is(err, store.ErrNotFound) {
		h.log.Info().Str("id", ev.ID).Str("action", string(ev.Action)).
			Msg("got participants update for non existent group")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("an error occurred during group participants update")
		return
	}

	participants := group.Participants
	switch ev.Action {
	case wa.ParticipantAdd:
		for _, id := range ev.Participants {
			participants = append(participants, wa.Participant{ID: id})
		}
	case wa.ParticipantPromote, wa.ParticipantDemote:
		listed := make(map[string]bool, len(ev.Participants))
		for _, id := range ev.Participants {
			listed[id] = true
		}
		for i := range participants {
			if listed[participants[i].ID] {
				participants[i].IsAdmin = ev.Action == wa.ParticipantPromote
			}
		}
	case wa.ParticipantRemove:
		kept := participants[:0]
		for _, p := range participants {
			removed := false
			for _, id := range ev.Participants {
				if p.ID == id {
					removed = true
					break
				}
			}
			if !removed {
				kept = append(kept, p)
			}
		}
		participants = kept
	}

	if err := h.groups.SetParticipants(h.sessionID, ev.ID, participants); err != nil {
		h.log.Error().Err(err).Msg("an error occurred during group participants update")
	}
}
