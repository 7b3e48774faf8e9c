package api

import (
	"errors"
	"net/http"

	"wamux/internal/send"
	"wamux/internal/session"
	"wamux/internal/transform"
	"wamux/internal/wa"
)

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	s.listMessages(w, r, "")
}

func (s *Server) handleListConversation(w http.ResponseWriter, r *http.Request) {
	s.listMessages(w, r, r.PathValue("jid"))
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request, remoteJID string) {
	opts := listOptions(r)
	messages, total, err := s.db.Messages.List(r.PathValue("sessionId"), remoteJID, opts)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list messages")
		s.respondError(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}

	result := make([]map[string]any, len(messages))
	for i, msg := range messages {
		result[i] = transform.ToWire(msg, true)
	}
	s.respond(w, http.StatusOK, "Fetch the data of all messages successfully", pageResult{
		Result:     result,
		Pagination: paginate(total, opts),
	})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req send.Request
	if err := decodeBody(r, &req); err != nil || req.JID == "" || len(req.Message) == 0 {
		s.respondError(w, http.StatusBadRequest, "jid and message are required")
		return
	}

	receipt, err := s.sender.Send(r.Context(), r.PathValue("sessionId"), req)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		s.respondError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, session.ErrJIDNotFound):
		s.respondError(w, http.StatusNotFound, "JID does not exists")
	case err != nil:
		s.log.Error().Err(err).Msg("failed to send message")
		s.respondError(w, http.StatusInternalServerError, "Failed to send message")
	default:
		s.respond(w, http.StatusOK, "Message sent successfully", receipt)
	}
}

func (s *Server) handleSendBulk(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Messages []send.BulkItem `json:"messages"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.sender.SendBulk(r.Context(), r.PathValue("sessionId"), body.Messages)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		s.respondError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, send.ErrAllFailed):
		s.respond(w, http.StatusInternalServerError, "All messages failed to send", result)
	case err != nil:
		s.log.Error().Err(err).Msg("failed to send bulk messages")
		s.respondError(w, http.StatusInternalServerError, "Failed to send messages")
	default:
		s.respond(w, http.StatusOK, "Bulk messages processed", result)
	}
}

// handleDownload streams the media carried by a stored message payload,
// with the content type taken from the payload itself.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message *wa.Message `json:"message"`
	}
	if err := decodeBody(r, &body); err != nil || body.Message == nil {
		s.respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	data, contentType, err := s.sender.Download(r.Context(), r.PathValue("sessionId"), body.Message)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		s.respondError(w, http.StatusNotFound, "Session not found")
	case err != nil:
		s.log.Error().Err(err).Msg("failed to download media")
		s.respondError(w, http.StatusInternalServerError, "Failed to download media")
	default:
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			s.log.Error().Err(err).Msg("failed to write media response")
		}
	}
}
