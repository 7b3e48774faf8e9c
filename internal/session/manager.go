// Package session owns the registry of live connections: creation with
// the two pairing flows, the reconnect policy, restart restore and
// teardown. All registry state sits behind one mutex because connection
// callbacks for the same session can fire concurrently.
package session

import (
	"context"
	"errors"
	stdsync "sync"
	"time"

	"github.com/rs/zerolog"

	"wamux/internal/credstore"
	"wamux/internal/store"
	evsync "wamux/internal/sync"
	"wamux/internal/wa"
)

var (
	// ErrSessionExists is returned when creating a session id that is
	// already registered.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionNotFound is returned for lookups of unregistered ids.
	ErrSessionNotFound = errors.New("session not found")
)

// Status labels derived from the transport's ready state.
const (
	StatusConnecting    = "CONNECTING"
	StatusConnected     = "CONNECTED"
	StatusDisconnecting = "DISCONNECTING"
	StatusDisconnected  = "DISCONNECTED"
	StatusAuthenticated = "AUTHENTICATED"
)

// Options are the caller-supplied session parameters. The effective
// options are persisted so the session survives a process restart.
type Options struct {
	SessionID            string          `json:"sessionId"`
	ReadIncomingMessages bool            `json:"readIncomingMessages,omitempty"`
	Socket               wa.SocketConfig `json:"socketConfig"`
}

// Session is one registered connection handle.
type Session struct {
	ID     string
	Client wa.Client
	Bus    *wa.Bus
	Sync   *evsync.Store
	Creds  *credstore.Store
}

// Info is a listing entry.
type Info struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Config tunes the manager's reconnect and pairing policy.
type Config struct {
	ReconnectInterval time.Duration
	MaxRetries        int
	MaxQRGenerations  int
}

// Manager owns every live session.
type Manager struct {
	cfg    Config
	db     *store.Store
	dialer wa.Dialer
	log    zerolog.Logger

	mu            stdsync.Mutex
	sessions      map[string]*Session
	retries       map[string]int
	qrGenerations map[string]int
	generations   map[string]int
	waiters       map[string]waiter
}

// NewManager creates an empty manager.
func NewManager(cfg Config, db *store.Store, dialer wa.Dialer, log zerolog.Logger) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.MaxQRGenerations <= 0 {
		cfg.MaxQRGenerations = 5
	}
	return &Manager{
		cfg:           cfg,
		db:            db,
		dialer:        dialer,
		log:           log,
		sessions:      make(map[string]*Session),
		retries:       make(map[string]int),
		qrGenerations: make(map[string]int),
		generations:   make(map[string]int),
		waiters:       make(map[string]waiter),
	}
}

// InitSessions recreates every session with a persisted configuration
// row. Called once at startup.
func (m *Manager) InitSessions(ctx context.Context) {
	ids, err := m.db.Sessions.SessionIDsWithKey(credstore.SessionConfigID)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to list persisted sessions")
		return
	}

	for _, id := range ids {
		creds := credstore.New(id, m.db.Sessions, m.log)
		cfg, err := creds.ReadConfig()
		if err != nil {
			m.log.Error().Err(err).Str("session", id).Msg("failed to read session config")
			continue
		}
		opts := Options{
			SessionID:            id,
			ReadIncomingMessages: cfg.ReadIncomingMessages,
			Socket:               cfg.Socket,
		}
		if err := m.CreateSession(ctx, opts); err != nil {
			m.log.Error().Err(err).Str("session", id).Msg("failed to restore session")
		}
	}
}

// CreateSession registers and connects a session without a pairing
// waiter. Used by restart restore; pairing callers use CreateSessionQR
// or CreateSessionStream.
func (m *Manager) CreateSession(ctx context.Context, opts Options) error {
	if m.SessionExists(opts.SessionID) {
		return ErrSessionExists
	}
	return m.startSession(ctx, opts, nil)
}

// startSession dials a client, wires the sync handlers and the
// connection observer, registers the handle and persists the effective
// configuration. An existing registration for the id is replaced, which
// is how reconnects work.
func (m *Manager) startSession(ctx context.Context, opts Options, w waiter) error {
	sessionID := opts.SessionID
	log := m.log.With().Str("session", sessionID).Logger()

	bus := wa.NewBus(log)
	client, err := m.dialer.Dial(ctx, wa.DialParams{
		SessionID: sessionID,
		Config:    opts.Socket,
		Bus:       bus,
	})
	if err != nil {
		bus.Close()
		return err
	}

	creds := credstore.New(sessionID, m.db.Sessions, m.log)
	sess := &Session{
		ID:     sessionID,
		Client: client,
		Bus:    bus,
		Sync:   evsync.NewStore(sessionID, bus, m.db, m.log),
		Creds:  creds,
	}
	sess.Sync.Listen()

	m.mu.Lock()
	old := m.sessions[sessionID]
	m.sessions[sessionID] = sess
	m.generations[sessionID]++
	if w != nil {
		m.waiters[sessionID] = w
	}
	m.mu.Unlock()

	// Closing the superseded bus waits for its in-flight handlers, and
	// those handlers take the registry lock, so the close must happen
	// outside it.
	if old != nil && old.Bus != bus {
		old.Bus.Close()
	}

	bus.Subscribe(wa.EventConnectionUpdate, func(payload any) {
		update, ok := payload.(*wa.ConnectionUpdate)
		if !ok {
			return
		}
		m.handleConnectionUpdate(opts, update)
	})

	if opts.ReadIncomingMessages {
		bus.Subscribe(wa.EventMessagesUpsert, func(payload any) {
			ev, ok := payload.(*wa.MessagesUpsert)
			if !ok || ev.Type != wa.UpsertNotify || len(ev.Messages) == 0 {
				return
			}
			msg := ev.Messages[0]
			if msg.Key.FromMe {
				return
			}
			go func() {
				time.Sleep(time.Second)
				if err := client.MarkRead(context.Background(), []wa.MessageKey{msg.Key}); err != nil {
					log.Error().Err(err).Msg("failed to mark incoming message read")
				}
			}()
		})
	}

	if err := creds.WriteConfig(&credstore.SessionConfig{
		SessionID:            sessionID,
		ReadIncomingMessages: opts.ReadIncomingMessages,
		Socket:               opts.Socket,
	}); err != nil {
		log.Error().Err(err).Msg("failed to persist session config")
	}

	if err := client.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("failed to connect")
		m.failWaiter(sessionID, "unable to create session")
		m.Destroy(sessionID, false)
		return err
	}
	return nil
}

// handleConnectionUpdate observes transport state: open clears the
// policy counters, close applies the reconnect policy, and every update
// is forwarded to the session's pairing waiter if one is attached.
func (m *Manager) handleConnectionUpdate(opts Options, update *wa.ConnectionUpdate) {
	sessionID := opts.SessionID

	if update.Connection == wa.ConnectionOpen {
		m.mu.Lock()
		delete(m.retries, sessionID)
		delete(m.qrGenerations, sessionID)
		m.mu.Unlock()
	}
	if update.Connection == wa.ConnectionClose {
		m.handleConnectionClose(opts, update)
	}
	m.notifyWaiter(sessionID, update)
}

// shouldReconnect increments the session's attempt counter and reports
// whether it is still under the cap.
func (m *Manager) shouldReconnect(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	attempts := m.retries[sessionID]
	if attempts < m.cfg.MaxRetries {
		m.retries[sessionID] = attempts + 1
		return true
	}
	return false
}

func (m *Manager) handleConnectionClose(opts Options, update *wa.ConnectionUpdate) {
	sessionID := opts.SessionID
	restartRequired := update.StatusCode == wa.ReasonRestartRequired
	doNotReconnect := !m.shouldReconnect(sessionID)

	_, streaming := m.currentWaiter(sessionID).(*streamWaiter)
	if update.StatusCode == wa.ReasonLoggedOut || (doNotReconnect && streaming) {
		m.failWaiter(sessionID, "unable to create session")
		// Destroy closes the bus this callback runs on, so it cannot be
		// called synchronously here.
		go m.Destroy(sessionID, doNotReconnect)
		return
	}

	delay := m.cfg.ReconnectInterval
	if restartRequired {
		delay = 0
	} else {
		m.mu.Lock()
		attempts := m.retries[sessionID]
		m.mu.Unlock()
		m.log.Info().Str("session", sessionID).Int("attempts", attempts).Msg("reconnecting...")
	}

	// The timer is bound to the generation it was scheduled under; a
	// destroy or recreate in the meantime supersedes it.
	m.mu.Lock()
	gen := m.generations[sessionID]
	m.mu.Unlock()

	time.AfterFunc(delay, func() {
		m.mu.Lock()
		current, registered := m.generations[sessionID]
		w := m.waiters[sessionID]
		m.mu.Unlock()
		if !registered || current != gen {
			return
		}
		if err := m.startSession(context.Background(), opts, w); err != nil {
			m.log.Error().Err(err).Str("session", sessionID).Msg("reconnect failed")
		}
	})
}

// Destroy tears a session down: optional protocol logout plus the five
// table deletions run in parallel, each best-effort, and the registry
// entry is removed unconditionally afterwards.
func (m *Manager) Destroy(sessionID string, logout bool) {
	m.mu.Lock()
	sess := m.sessions[sessionID]
	m.mu.Unlock()

	var wg stdsync.WaitGroup
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				m.log.Error().Err(err).Str("session", sessionID).Str("step", name).
					Msg("an error occurred during session destroy")
			}
		}()
	}

	if sess != nil && logout {
		run("logout", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return sess.Client.Logout(ctx)
		})
	}
	run("chats", func() error { return m.db.Chats.DeleteAll(sessionID) })
	run("contacts", func() error { return m.db.Contacts.DeleteAll(sessionID) })
	run("messages", func() error { return m.db.Messages.DeleteAll(sessionID) })
	run("groups", func() error { return m.db.Groups.DeleteAll(sessionID) })
	run("credentials", func() error { return m.db.Sessions.DeleteAll(sessionID) })
	wg.Wait()

	if sess != nil {
		sess.Client.Disconnect()
		sess.Sync.Unlisten()
		sess.Bus.Close()
	}

	m.mu.Lock()
	w := m.waiters[sessionID]
	delete(m.waiters, sessionID)
	delete(m.sessions, sessionID)
	delete(m.retries, sessionID)
	delete(m.qrGenerations, sessionID)
	m.generations[sessionID]++
	m.mu.Unlock()

	if w != nil {
		w.finish()
	}
}

// GetSession returns the registered handle for the id.
func (m *Manager) GetSession(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// SessionExists reports whether the id is registered.
func (m *Manager) SessionExists(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[sessionID]
	return ok
}

// ListSessions returns every registered session with its computed
// status.
func (m *Manager) ListSessions() []Info {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()

	infos := make([]Info, len(sessions))
	for i, sess := range sessions {
		infos[i] = Info{ID: sess.ID, Status: m.SessionStatus(sess)}
	}
	return infos
}

// SessionStatus derives the status label from the transport's ready
// state, upgraded once the remote identity is known.
func (m *Manager) SessionStatus(sess *Session) string {
	status := StatusDisconnected
	switch sess.Client.ReadyState() {
	case wa.ReadyConnecting:
		status = StatusConnecting
	case wa.ReadyOpen:
		status = StatusConnected
	case wa.ReadyClosing:
		status = StatusDisconnecting
	}
	if sess.Client.User() != nil {
		status = StatusAuthenticated
	}
	return status
}

// JIDExists checks the remote network for a user or group identifier.
// Gates sends and profile-photo lookups.
func (m *Manager) JIDExists(ctx context.Context, sess *Session, jid string, kind wa.JIDKind) (bool, error) {
	return sess.Client.Exists(ctx, jid, kind)
}

// ProfilePicture returns the profile photo URL for an existing user or
// group, ErrSessionNotFound-style gating handled by the caller.
func (m *Manager) ProfilePicture(ctx context.Context, sess *Session, jid string, kind wa.JIDKind) (string, error) {
	exists, err := m.JIDExists(ctx, sess, jid, kind)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrJIDNotFound
	}
	return sess.Client.ProfilePictureURL(ctx, jid)
}

// ErrJIDNotFound is returned when a remote identifier does not exist.
var ErrJIDNotFound = errors.New("jid does not exist on the network")

// Shutdown disconnects every session without destroying persisted data.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Client.Disconnect()
		sess.Sync.Unlisten()
		sess.Bus.Close()
	}
}
