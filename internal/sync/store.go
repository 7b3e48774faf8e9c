// Package sync consumes a session's event bus and applies the events to
// the entity tables: one handler per entity type, each with snapshot-set,
// upsert, partial-update and delete semantics. Handler faults are logged
// and swallowed so one bad event never stops the stream.
package sync

import (
	"github.com/rs/zerolog"

	"wamux/internal/store"
	"wamux/internal/wa"
)

// Store wires the four entity handlers to one session's bus.
type Store struct {
	Chats    *ChatHandler
	Contacts *ContactHandler
	Groups   *GroupHandler
	Messages *MessageHandler
}

// NewStore builds the handlers for one session.
func NewStore(sessionID string, bus *wa.Bus, db *store.Store, log zerolog.Logger) *Store {
	log = log.With().Str("session", sessionID).Logger()
	return &Store{
		Chats:    &ChatHandler{sessionID: sessionID, bus: bus, chats: db.Chats, log: log},
		Contacts: &ContactHandler{sessionID: sessionID, bus: bus, contacts: db.Contacts, log: log},
		Groups:   &GroupHandler{sessionID: sessionID, bus: bus, groups: db.Groups, log: log},
		Messages: &MessageHandler{sessionID: sessionID, bus: bus, messages: db.Messages, chats: db.Chats, log: log},
	}
}

// Listen subscribes every handler. Safe to call twice.
func (s *Store) Listen() {
	s.Chats.Listen()
	s.Contacts.Listen()
	s.Groups.Listen()
	s.Messages.Listen()
}

// Unlisten removes every handler's subscriptions. Safe to call twice.
func (s *Store) Unlisten() {
	s.Chats.Unlisten()
	s.Contacts.Unlisten()
	s.Groups.Unlisten()
	s.Messages.Unlisten()
}

type subscription struct {
	evt wa.EventName
	id  int
}

// on subscribes a typed handler, dropping payloads of the wrong shape
// with a log line instead of panicking.
func on[T any](bus *wa.Bus, evt wa.EventName, log zerolog.Logger, fn func(T)) subscription {
	id := bus.Subscribe(evt, func(payload any) {
		v, ok := payload.(T)
		if !ok {
			log.Error().Str("event", string(evt)).Type("payload", payload).
				Msg("unexpected event payload type")
			return
		}
		fn(v)
	})
	return subscription{evt: evt, id: id}
}

func unsubscribeAll(bus *wa.Bus, subs []subscription) {
	for _, s := range subs {
		bus.Unsubscribe(s.evt, s.id)
	}
}
