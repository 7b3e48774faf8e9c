package wa

import "context"

// ReadyState mirrors the transport's socket state, in the order the
// status endpoint reports them.
type ReadyState int

const (
	ReadyConnecting ReadyState = iota
	ReadyOpen
	ReadyClosing
	ReadyClosed
)

// Identity is the authenticated account behind a connection.
type Identity struct {
	JID  string `json:"id"`
	Name string `json:"name,omitempty"`
}

// JIDKind selects the namespace for an existence check.
type JIDKind string

const (
	JIDUser  JIDKind = "number"
	JIDGroup JIDKind = "group"
)

// SendContent is the caller-supplied message body. Text is the only
// content kind the gateway builds itself; richer payloads ride through
// Raw as a serialized protocol message.
type SendContent struct {
	Text string `json:"text,omitempty"`
	Raw  []byte `json:"raw,omitempty"`
}

// SendReceipt reports a completed send.
type SendReceipt struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

// BlockAction toggles a peer's blocklist membership.
type BlockAction string

const (
	BlockActionBlock   BlockAction = "block"
	BlockActionUnblock BlockAction = "unblock"
)

// Client is the session's connection to the messaging network. The
// concrete implementation lives in the protocol adapter; the lifecycle
// manager and the HTTP-facing services only see this surface.
type Client interface {
	// Connect opens the transport. Progress (QR codes, open/close) is
	// reported through the session bus as connection.update events.
	Connect(ctx context.Context) error
	// Disconnect tears down the transport without logging out.
	Disconnect()
	// Logout invalidates the pairing on the remote end.
	Logout(ctx context.Context) error

	ReadyState() ReadyState
	// User returns the authenticated identity, or nil before pairing
	// completes.
	User() *Identity

	// Exists checks whether jid is a reachable user or group.
	Exists(ctx context.Context, jid string, kind JIDKind) (bool, error)
	SendMessage(ctx context.Context, jid string, content SendContent) (*SendReceipt, error)
	GroupMetadata(ctx context.Context, jid string) (*GroupMetadata, error)
	ProfilePictureURL(ctx context.Context, jid string) (string, error)
	FetchBlocklist(ctx context.Context) ([]string, error)
	UpdateBlockStatus(ctx context.Context, jid string, action BlockAction) error
	MarkRead(ctx context.Context, keys []MessageKey) error
	// DownloadMedia fetches the media carried by a stored message and
	// reports its content type.
	DownloadMedia(ctx context.Context, msg *Message) ([]byte, string, error)
}

// SocketConfig is the per-session connection configuration persisted with
// the credentials so a session can be reconstructed after restart.
type SocketConfig struct {
	Browser             string `json:"browser,omitempty"`
	SyncFullHistory     bool   `json:"syncFullHistory,omitempty"`
	MarkOnlineOnConnect bool   `json:"markOnlineOnConnect,omitempty"`
}

// DialParams carries everything an adapter needs to assemble a client.
type DialParams struct {
	SessionID string
	Config    SocketConfig
	Bus       *Bus
}

// Dialer assembles protocol clients; faked in tests.
type Dialer interface {
	Dial(ctx context.Context, params DialParams) (Client, error)
}
