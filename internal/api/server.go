// Package api exposes the gateway over HTTP: session lifecycle with the
// two pairing flows, paginated entity listings, contact and group
// lookups, and the message operations.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wamux/internal/send"
	"wamux/internal/session"
	"wamux/internal/store"
)

// Server is the HTTP front of the gateway.
type Server struct {
	manager *session.Manager
	sender  *send.Service
	db      *store.Store
	log     zerolog.Logger
	http    *http.Server
}

// NewServer assembles the server on addr.
func NewServer(addr string, manager *session.Manager, sender *send.Service, db *store.Store, log zerolog.Logger) *Server {
	s := &Server{
		manager: manager,
		sender:  sender,
		db:      db,
		log:     log,
	}

	mux := http.NewServeMux()
	s.routes(mux)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.accessLog(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /session", s.handleCreateSession)
	mux.HandleFunc("GET /session", s.handleListSessions)
	mux.HandleFunc("GET /session/{sessionId}", s.handleGetSession)
	mux.HandleFunc("GET /session/{sessionId}/status", s.handleSessionStatus)
	mux.HandleFunc("GET /session/{sessionId}/SSE", s.handleSessionSSE)
	mux.HandleFunc("DELETE /session/{sessionId}", s.handleDeleteSession)

	mux.HandleFunc("GET /chat/{sessionId}", s.handleListChats)

	mux.HandleFunc("GET /contact/{sessionId}", s.handleListContacts)
	mux.HandleFunc("GET /contact/{sessionId}/blocklist", s.handleBlocklist)
	mux.HandleFunc("PATCH /contact/{sessionId}/blocklist", s.handleUpdateBlock)
	mux.HandleFunc("GET /contact/{sessionId}/check/{jid}", s.handleCheckJID)
	mux.HandleFunc("GET /contact/{sessionId}/profile/{jid}", s.handleContactPhoto)

	mux.HandleFunc("GET /group/{sessionId}", s.handleListGroups)
	mux.HandleFunc("GET /group/{sessionId}/find/{jid}", s.handleFindGroup)
	mux.HandleFunc("GET /group/{sessionId}/profile/{jid}", s.handleGroupPhoto)

	mux.HandleFunc("GET /message/{sessionId}", s.handleListMessages)
	mux.HandleFunc("GET /message/{sessionId}/list/{jid}", s.handleListConversation)
	mux.HandleFunc("POST /message/{sessionId}/send", s.handleSend)
	mux.HandleFunc("POST /message/{sessionId}/send/bulk", s.handleSendBulk)
	mux.HandleFunc("POST /message/{sessionId}/download", s.handleDownload)
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// accessLog tags each request with an id and logs its outcome.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.log.Info().
			Str("requestId", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// statusRecorder captures the response status for the access log while
// passing flushes through for the SSE feed.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

type envelope struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Message: message, Data: data}); err != nil {
		s.log.Error().Err(err).Msg("failed to write response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respond(w, status, message, nil)
}

func decodeBody(r *http.Request, dest any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dest)
}

// pagination mirrors the listing envelope: pages are one-based.
type pagination struct {
	Total       int  `json:"total"`
	CurrentPage int  `json:"currentPage"`
	Limit       int  `json:"limit"`
	NextPage    *int `json:"nextPage,omitempty"`
	PrevPage    *int `json:"prevPage,omitempty"`
	FirstPage   int  `json:"firstPage"`
	LastPage    int  `json:"lastPage"`
}

type pageResult struct {
	Result     any        `json:"result"`
	Pagination pagination `json:"pagination"`
}

func listOptions(r *http.Request) store.ListOptions {
	q := r.URL.Query()
	return store.ListOptions{
		Limit:       atoiDefault(q.Get("limit"), 10),
		Page:        atoiDefault(q.Get("page"), 1),
		OrderColumn: q.Get("orderColumn"),
		OrderMethod: q.Get("orderMethod"),
	}
}

func atoiDefault(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func paginate(total int, opts store.ListOptions) pagination {
	limit := opts.Limit
	page := opts.Page
	if page < 1 {
		page = 1
	}

	p := pagination{
		Total:       total,
		CurrentPage: page,
		Limit:       limit,
		FirstPage:   1,
		LastPage:    1,
	}
	if limit > 0 && total > 0 {
		p.LastPage = (total + limit - 1) / limit
	}
	if page < p.LastPage {
		next := page + 1
		p.NextPage = &next
	}
	if page > 1 {
		prev := page - 1
		p.PrevPage = &prev
	}
	return p
}
