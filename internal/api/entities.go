package api

import (
	"errors"
	"fmt"
	"net/http"

	"wamux/internal/session"
	"wamux/internal/store"
	"wamux/internal/transform"
	"wamux/internal/wa"
)

// userServer is the jid suffix the contact listing filter matches on.
const userServer = "@s.whatsapp.net"

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r)
	chats, total, err := s.db.Chats.List(r.PathValue("sessionId"), opts)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list chats")
		s.respondError(w, http.StatusInternalServerError, "Failed to fetch chats")
		return
	}

	result := make([]map[string]any, len(chats))
	for i, chat := range chats {
		result[i] = transform.ToWire(chat, true)
	}
	s.respond(w, http.StatusOK, "Fetch the data of all chats successfully", pageResult{
		Result:     result,
		Pagination: paginate(total, opts),
	})
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r)
	contacts, total, err := s.db.Contacts.List(r.PathValue("sessionId"), userServer, opts)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list contacts")
		s.respondError(w, http.StatusInternalServerError, "Failed to fetch contacts")
		return
	}

	result := make([]map[string]any, len(contacts))
	for i, contact := range contacts {
		result[i] = transform.ToWire(contact, true)
	}
	s.respond(w, http.StatusOK, "Fetch the data of all contacts successfully", pageResult{
		Result:     result,
		Pagination: paginate(total, opts),
	})
}

func (s *Server) handleBlocklist(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.GetSession(r.PathValue("sessionId"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	list, err := sess.Client.FetchBlocklist(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to fetch blocklist")
		s.respondError(w, http.StatusInternalServerError, "Failed to fetch blocklist")
		return
	}
	s.respond(w, http.StatusOK, "Fetch the data of all list block contacts successfully", list)
}

func (s *Server) handleUpdateBlock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		JID    string         `json:"jid"`
		Action wa.BlockAction `json:"action"`
	}
	if err := decodeBody(r, &body); err != nil || body.JID == "" {
		s.respondError(w, http.StatusBadRequest, "jid is required")
		return
	}
	if body.Action != wa.BlockActionBlock && body.Action != wa.BlockActionUnblock {
		s.respondError(w, http.StatusBadRequest, "action must be block or unblock")
		return
	}

	sess, err := s.manager.GetSession(r.PathValue("sessionId"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "Session not found")
		return
	}
	exists, err := s.manager.JIDExists(r.Context(), sess, body.JID, wa.JIDUser)
	if err != nil || !exists {
		s.respondError(w, http.StatusNotFound, "RemoteJid does not exists")
		return
	}
	if err := sess.Client.UpdateBlockStatus(r.Context(), body.JID, body.Action); err != nil {
		s.log.Error().Err(err).Msg("failed to update block status")
		s.respondError(w, http.StatusInternalServerError, "Failed to update block status")
		return
	}
	s.respond(w, http.StatusOK, fmt.Sprintf("Successfully contact %sed", body.Action), nil)
}

func (s *Server) handleCheckJID(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.GetSession(r.PathValue("sessionId"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	exists, err := s.manager.JIDExists(r.Context(), sess, r.PathValue("jid"), wa.JIDUser)
	if err != nil || !exists {
		s.respondError(w, http.StatusNotFound, "RemoteJid does not exists")
		return
	}
	s.respond(w, http.StatusOK, "RemoteJid found", nil)
}

func (s *Server) handleContactPhoto(w http.ResponseWriter, r *http.Request) {
	s.handleProfilePhoto(w, r, wa.JIDUser)
}

func (s *Server) handleGroupPhoto(w http.ResponseWriter, r *http.Request) {
	s.handleProfilePhoto(w, r, wa.JIDGroup)
}

func (s *Server) handleProfilePhoto(w http.ResponseWriter, r *http.Request, kind wa.JIDKind) {
	sess, err := s.manager.GetSession(r.PathValue("sessionId"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	url, err := s.manager.ProfilePicture(r.Context(), sess, r.PathValue("jid"), kind)
	if errors.Is(err, session.ErrJIDNotFound) {
		s.respondError(w, http.StatusNotFound, "RemoteJid does not exists")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("failed to fetch profile photo")
		s.respondError(w, http.StatusInternalServerError, "Failed to fetch profile photo")
		return
	}
	s.respond(w, http.StatusOK, "Successfully fetch a profile photo", url)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r)
	groups, total, err := s.db.Groups.List(r.PathValue("sessionId"), opts)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list groups")
		s.respondError(w, http.StatusInternalServerError, "Failed to fetch groups")
		return
	}

	result := make([]map[string]any, len(groups))
	for i, group := range groups {
		result[i] = transform.ToWire(group, true)
	}
	s.respond(w, http.StatusOK, "Fetch the data of all groups successfully", pageResult{
		Result:     result,
		Pagination: paginate(total, opts),
	})
}

// handleFindGroup serves the stored group row when one exists and falls
// back to a live metadata query otherwise.
func (s *Server) handleFindGroup(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	jid := r.PathValue("jid")

	group, err := s.db.Groups.Get(sessionID, jid)
	if err == nil {
		s.respond(w, http.StatusOK, "Fetch the data of one group successfully", transform.ToWire(group, true))
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		s.log.Error().Err(err).Msg("failed to fetch group")
		s.respondError(w, http.StatusInternalServerError, "Failed to fetch group")
		return
	}

	sess, err := s.manager.GetSession(sessionID)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "Session not found")
		return
	}
	live, err := sess.Client.GroupMetadata(r.Context(), jid)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "RemoteJid does not exists")
		return
	}
	s.respond(w, http.StatusOK, "Fetch the data of one group successfully", transform.ToWire(live, true))
}
