package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"wamux/internal/session"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var opts session.Options
	if err := decodeBody(r, &opts); err != nil || opts.SessionID == "" {
		s.respondError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if s.manager.SessionExists(opts.SessionID) {
		s.respondError(w, http.StatusFound, "Session already exists")
		return
	}

	result, err := s.manager.CreateSessionQR(r.Context(), opts)
	if errors.Is(err, session.ErrSessionExists) {
		s.respondError(w, http.StatusFound, "Session already exists")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Unable to create session")
		return
	}
	s.respond(w, http.StatusCreated, "Session created", result)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, "Fetch the data of all session successfully", s.manager.ListSessions())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.GetSession(r.PathValue("sessionId"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	var data any = ""
	if user := sess.Client.User(); user != nil {
		data = user
	}
	s.respond(w, http.StatusOK, "Fetch the data of one session successfully", data)
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.GetSession(r.PathValue("sessionId"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "Session not found")
		return
	}
	s.respond(w, http.StatusOK, "Fetch the status of one session successfully", s.manager.SessionStatus(sess))
}

// handleSessionSSE creates a session and streams every connection update
// (QR reissues included) as server-sent events until the session opens,
// the QR cap is exhausted or the consumer disconnects.
func (s *Server) handleSessionSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if s.manager.SessionExists(sessionID) {
		s.respondError(w, http.StatusFound, "Session already exists")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates, stop, err := s.manager.CreateSessionStream(r.Context(), session.Options{SessionID: sessionID})
	if errors.Is(err, session.ErrSessionExists) {
		s.respondError(w, http.StatusFound, "Session already exists")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Unable to create session")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			stop()
			return
		case update, open := <-updates:
			if !open {
				return
			}
			payload, err := json.Marshal(update)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if !s.manager.SessionExists(sessionID) {
		s.respondError(w, http.StatusNotFound, "Session not found")
		return
	}
	s.manager.Destroy(sessionID, true)
	w.WriteHeader(http.StatusNoContent)
}
