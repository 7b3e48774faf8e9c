package session

import (
	"context"
	"encoding/base64"
	"errors"
	stdsync "sync"

	"github.com/skip2/go-qrcode"

	"wamux/internal/wa"
)

// Update is one entry of the streaming pairing feed. QR carries a
// rendered PNG data URL, not the raw pairing payload.
type Update struct {
	Connection string `json:"connection,omitempty"`
	QR         string `json:"qr,omitempty"`
	IsNewLogin bool   `json:"isNewLogin,omitempty"`
	Error      string `json:"error,omitempty"`
}

// PairingResult is the outcome of a one-shot create: either a QR code to
// scan or an already-authenticated connection.
type PairingResult struct {
	QR        string `json:"qr,omitempty"`
	Connected bool   `json:"connected,omitempty"`
}

// waiter receives the connection updates of a pairing flow.
type waiter interface {
	finish()
}

// CreateSessionQR registers and connects a session, blocking until the
// first QR code is produced (returned as a PNG data URL) or the
// connection opens without pairing. Once the QR has been handed out a
// reissue destroys the session; a one-shot attempt is not retried past
// the code the caller already has.
func (m *Manager) CreateSessionQR(ctx context.Context, opts Options) (*PairingResult, error) {
	if m.SessionExists(opts.SessionID) {
		return nil, ErrSessionExists
	}

	w := &qrWaiter{ch: make(chan qrOutcome, 1)}
	if err := m.startSession(ctx, opts, w); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		go m.Destroy(opts.SessionID, false)
		return nil, ctx.Err()
	case out := <-w.ch:
		if out.err != nil {
			return nil, out.err
		}
		return &out.result, nil
	}
}

// CreateSessionStream registers and connects a session and returns a
// feed of every connection update. QR reissues count against the
// configured cap; exhausting it destroys the session and closes the
// feed. The returned stop function is the consumer's disconnect: it
// destroys the session too.
func (m *Manager) CreateSessionStream(ctx context.Context, opts Options) (<-chan Update, func(), error) {
	if m.SessionExists(opts.SessionID) {
		return nil, nil, ErrSessionExists
	}

	w := newStreamWaiter()
	if err := m.startSession(ctx, opts, w); err != nil {
		return nil, nil, err
	}

	stop := func() {
		if w.markConsumerGone() {
			go m.Destroy(opts.SessionID, true)
		}
	}
	return w.ch, stop, nil
}

func (m *Manager) currentWaiter(sessionID string) waiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiters[sessionID]
}

// notifyWaiter forwards one connection update into the session's pairing
// flow, rendering QR payloads and enforcing the flow's reissue rules.
func (m *Manager) notifyWaiter(sessionID string, update *wa.ConnectionUpdate) {
	w := m.currentWaiter(sessionID)
	if w == nil {
		return
	}

	var qrURL string
	if update.QR != "" {
		var err error
		qrURL, err = qrDataURL(update.QR)
		if err != nil {
			m.log.Error().Err(err).Str("session", sessionID).
				Msg("an error occurred during QR generation")
		}
	}

	switch w := w.(type) {
	case *qrWaiter:
		if update.QR != "" {
			if qrURL == "" {
				w.fail(errors.New("unable to generate QR"))
				return
			}
			if !w.deliver(PairingResult{QR: qrURL}) {
				// The caller already has a code; a reissue means it was
				// never scanned.
				go m.Destroy(sessionID, true)
			}
			return
		}
		if update.Connection == wa.ConnectionOpen {
			w.deliver(PairingResult{Connected: true})
		}

	case *streamWaiter:
		if w.consumerGone() {
			go m.Destroy(sessionID, true)
			return
		}
		if update.QR != "" {
			m.mu.Lock()
			generations := m.qrGenerations[sessionID]
			if generations >= m.cfg.MaxQRGenerations {
				m.mu.Unlock()
				go m.Destroy(sessionID, true)
				return
			}
			m.qrGenerations[sessionID] = generations + 1
			m.mu.Unlock()
		}
		w.send(Update{
			Connection: update.Connection,
			QR:         qrURL,
			IsNewLogin: update.IsNewLogin,
			Error:      update.Error,
		})
	}
}

// failWaiter reports a terminal session fault to a pending one-shot
// caller.
func (m *Manager) failWaiter(sessionID, msg string) {
	if w, ok := m.currentWaiter(sessionID).(*qrWaiter); ok {
		w.fail(errors.New(msg))
	}
}

// qrDataURL renders the pairing payload as a PNG data URL.
func qrDataURL(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

type qrOutcome struct {
	result PairingResult
	err    error
}

// qrWaiter resolves a one-shot create exactly once.
type qrWaiter struct {
	mu        stdsync.Mutex
	delivered bool
	ch        chan qrOutcome
}

// deliver hands the result to the caller; false when one was already
// delivered.
func (w *qrWaiter) deliver(result PairingResult) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.delivered {
		return false
	}
	w.delivered = true
	w.ch <- qrOutcome{result: result}
	return true
}

func (w *qrWaiter) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.delivered {
		return
	}
	w.delivered = true
	w.ch <- qrOutcome{err: err}
}

func (w *qrWaiter) finish() {
	w.fail(errors.New("session destroyed"))
}

// streamWaiter pushes every update into a channel feed.
type streamWaiter struct {
	mu     stdsync.Mutex
	closed bool
	gone   bool
	ch     chan Update
}

func newStreamWaiter() *streamWaiter {
	return &streamWaiter{ch: make(chan Update, 8)}
}

// send pushes one update, dropping it if the consumer stopped reading.
func (w *streamWaiter) send(u Update) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.ch <- u:
	default:
	}
}

func (w *streamWaiter) finish() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.ch)
}

// markConsumerGone records the consumer-side disconnect; true the first
// time.
func (w *streamWaiter) markConsumerGone() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gone {
		return false
	}
	w.gone = true
	return true
}

func (w *streamWaiter) consumerGone() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gone
}
