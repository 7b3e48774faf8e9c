// Package send implements the outbound message operations: single send,
// sequential bulk send with partial-success reporting, and media
// download from a stored message payload.
package send

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"wamux/internal/session"
	"wamux/internal/wa"
)

// ErrAllFailed is returned by SendBulk when every item failed.
var ErrAllFailed = errors.New("all bulk messages failed")

// defaultBulkDelayMs spaces consecutive bulk sends when the item does not
// set its own delay.
const defaultBulkDelayMs = 1000

// Request is one outbound message.
type Request struct {
	JID     string          `json:"jid"`
	Type    wa.JIDKind      `json:"type,omitempty"`
	Message json.RawMessage `json:"message"`
}

// BulkItem is one entry of a bulk send. Delay is the pause in
// milliseconds before this item, skipped for the first one.
type BulkItem struct {
	Request
	Delay *int `json:"delay,omitempty"`
}

// BulkSuccess reports one delivered bulk item.
type BulkSuccess struct {
	Index  int             `json:"index"`
	Result *wa.SendReceipt `json:"result"`
}

// BulkError reports one failed bulk item.
type BulkError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BulkResult is the full outcome of a bulk send.
type BulkResult struct {
	Success []BulkSuccess `json:"success"`
	Errors  []BulkError   `json:"errors"`
}

// Service runs sends against live sessions.
type Service struct {
	manager *session.Manager
	log     zerolog.Logger
}

// NewService creates a send service.
func NewService(manager *session.Manager, log zerolog.Logger) *Service {
	return &Service{manager: manager, log: log}
}

// Send delivers one message after resolving that the recipient exists.
func (s *Service) Send(ctx context.Context, sessionID string, req Request) (*wa.SendReceipt, error) {
	sess, err := s.manager.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	kind := req.Type
	if kind == "" {
		kind = wa.JIDUser
	}
	exists, err := s.manager.JIDExists(ctx, sess, req.JID, kind)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, session.ErrJIDNotFound
	}

	return sess.Client.SendMessage(ctx, req.JID, contentOf(req.Message))
}

// SendBulk delivers the items in order, pausing between consecutive
// sends. Failures are collected per item; the call itself only fails when
// nothing was delivered.
func (s *Service) SendBulk(ctx context.Context, sessionID string, items []BulkItem) (*BulkResult, error) {
	sess, err := s.manager.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{Success: []BulkSuccess{}, Errors: []BulkError{}}
	for index, item := range items {
		kind := item.Type
		if kind == "" {
			kind = wa.JIDUser
		}
		exists, err := s.manager.JIDExists(ctx, sess, item.JID, kind)
		if err != nil || !exists {
			result.Errors = append(result.Errors, BulkError{Index: index, Error: "JID does not exists"})
			continue
		}

		if index > 0 {
			delay := defaultBulkDelayMs
			if item.Delay != nil {
				delay = *item.Delay
			}
			select {
			case <-ctx.Done():
				result.Errors = append(result.Errors, BulkError{Index: index, Error: ctx.Err().Error()})
				continue
			case <-time.After(time.Duration(delay) * time.Millisecond):
			}
		}

		receipt, err := sess.Client.SendMessage(ctx, item.JID, contentOf(item.Message))
		if err != nil {
			s.log.Error().Err(err).Str("session", sessionID).Int("index", index).
				Msg("an error occurred during message send")
			result.Errors = append(result.Errors, BulkError{Index: index, Error: "an error occurred during message send"})
			continue
		}
		result.Success = append(result.Success, BulkSuccess{Index: index, Result: receipt})
	}

	if len(items) != 0 && len(result.Errors) == len(items) {
		return result, ErrAllFailed
	}
	return result, nil
}

// Download fetches the media attachment of a stored message and reports
// its content type.
func (s *Service) Download(ctx context.Context, sessionID string, msg *wa.Message) ([]byte, string, error) {
	sess, err := s.manager.GetSession(sessionID)
	if err != nil {
		return nil, "", err
	}
	return sess.Client.DownloadMedia(ctx, msg)
}

// contentOf maps the request body onto the client's send content: a bare
// {"text": ...} object becomes a text message, anything richer rides
// through as a raw protocol payload.
func contentOf(message json.RawMessage) wa.SendContent {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(message, &fields); err == nil {
		if raw, ok := fields["text"]; ok && len(fields) == 1 {
			var text string
			if err := json.Unmarshal(raw, &text); err == nil {
				return wa.SendContent{Text: text}
			}
		}
	}
	return wa.SendContent{Raw: message}
}
