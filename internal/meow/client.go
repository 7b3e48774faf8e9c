// Package meow adapts whatsmeow to the gateway's client surface: it
// dials devices out of the shared sqlstore container, translates native
// events onto the session bus and implements the operational calls the
// HTTP services need (sends, existence checks, group metadata, profile
// photos, blocklist, read receipts, media download).
package meow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	wstore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"wamux/internal/credstore"
	"wamux/internal/logger"
	"wamux/internal/store"
	"wamux/internal/wa"
)

// Dialer assembles whatsmeow-backed clients on top of the shared device
// container.
type Dialer struct {
	db         *store.Store
	deviceName string
	log        zerolog.Logger
}

// NewDialer creates a dialer. deviceName is the client name shown in the
// phone's linked-devices list when no per-session browser is configured.
func NewDialer(db *store.Store, deviceName string, log zerolog.Logger) *Dialer {
	return &Dialer{db: db, deviceName: deviceName, log: log}
}

// Dial builds a client for one session. A session that paired before is
// matched back to its device row through the stored credentials; anything
// else gets a fresh unregistered device.
func (d *Dialer) Dial(ctx context.Context, params wa.DialParams) (wa.Client, error) {
	log := d.log.With().Str("session", params.SessionID).Logger()
	creds := credstore.New(params.SessionID, d.db.Sessions, log)

	device, err := d.device(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve device: %w", err)
	}

	// Device props are registered during pairing, so they only matter for
	// devices that have not paired yet.
	if name := params.Config.Browser; name != "" {
		wstore.SetOSInfo(name, [3]uint32{1, 0, 0})
	} else if d.deviceName != "" {
		wstore.SetOSInfo(d.deviceName, [3]uint32{1, 0, 0})
	}
	if params.Config.SyncFullHistory {
		wstore.DeviceProps.RequireFullSync = proto.Bool(true)
	}

	device.AppStateKeys = newAppStateKeyStore(device.AppStateKeys, creds, log)

	c := &Client{
		sessionID: params.SessionID,
		cfg:       params.Config,
		device:    device,
		bus:       params.Bus,
		creds:     creds,
		log:       log,
		state:     wa.ReadyClosed,
	}
	c.wa = whatsmeow.NewClient(device, logger.Wa(log, "Client"))
	// Reconnect policy belongs to the session manager, which rebuilds the
	// whole client instead of reviving the socket.
	c.wa.EnableAutoReconnect = false
	c.wa.AddEventHandler(c.handleEvent)
	return c, nil
}

// device finds the session's paired device through its stored identity,
// falling back to a fresh device when the session never paired.
func (d *Dialer) device(ctx context.Context, creds *credstore.Store) (*wstore.Device, error) {
	saved, err := creds.ReadCreds()
	if errors.Is(err, credstore.ErrNotFound) {
		return d.db.Container().NewDevice(), nil
	}
	if err != nil {
		return nil, err
	}
	if saved.Me == nil {
		return d.db.Container().NewDevice(), nil
	}

	jid, err := types.ParseJID(saved.Me.JID)
	if err != nil {
		return nil, fmt.Errorf("corrupt stored identity %q: %w", saved.Me.JID, err)
	}
	device, err := d.db.Container().GetDevice(ctx, jid)
	if err != nil {
		return nil, err
	}
	if device == nil {
		// The device row is gone (for example after a logout elsewhere);
		// pairing starts over.
		return d.db.Container().NewDevice(), nil
	}
	return device, nil
}

// Client is the whatsmeow-backed wa.Client.
type Client struct {
	sessionID string
	cfg       wa.SocketConfig
	wa        *whatsmeow.Client
	device    *wstore.Device
	bus       *wa.Bus
	creds     *credstore.Store
	log       zerolog.Logger

	mu    sync.Mutex
	state wa.ReadyState
}

// Connect opens the socket. An unpaired device additionally starts the QR
// channel; codes and timeouts surface as connection.update events.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(wa.ReadyConnecting)
	c.bus.Emit(wa.EventConnectionUpdate, &wa.ConnectionUpdate{Connection: wa.ConnectionConnecting})

	if c.device.ID == nil {
		qrChan, err := c.wa.GetQRChannel(ctx)
		if err != nil && !errors.Is(err, whatsmeow.ErrQRStoreContainsID) {
			c.setState(wa.ReadyClosed)
			return err
		}
		if err == nil {
			go c.pumpQR(qrChan)
		}
	}

	if err := c.wa.Connect(); err != nil {
		c.setState(wa.ReadyClosed)
		return err
	}
	return nil
}

// pumpQR forwards pairing codes from the QR channel onto the bus. The
// channel closes itself after a successful pair or a timeout.
func (c *Client) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			c.bus.Emit(wa.EventConnectionUpdate, &wa.ConnectionUpdate{QR: item.Code})
		case "timeout":
			c.setState(wa.ReadyClosed)
			c.bus.Emit(wa.EventConnectionUpdate, &wa.ConnectionUpdate{
				Connection: wa.ConnectionClose,
				StatusCode: wa.ReasonConnectionLost,
				Error:      "QR timed out",
			})
		case "error":
			c.setState(wa.ReadyClosed)
			update := &wa.ConnectionUpdate{
				Connection: wa.ConnectionClose,
				StatusCode: wa.ReasonBadSession,
			}
			if item.Error != nil {
				update.Error = item.Error.Error()
			}
			c.bus.Emit(wa.EventConnectionUpdate, update)
		}
	}
}

// Disconnect tears down the socket without logging out.
func (c *Client) Disconnect() {
	c.setState(wa.ReadyClosing)
	c.wa.Disconnect()
	c.setState(wa.ReadyClosed)
}

// Logout invalidates the pairing on the remote end.
func (c *Client) Logout(ctx context.Context) error {
	return c.wa.Logout(ctx)
}

func (c *Client) ReadyState() wa.ReadyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(state wa.ReadyState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// User returns the authenticated identity, nil before pairing completes.
func (c *Client) User() *wa.Identity {
	if c.device.ID == nil {
		return nil
	}
	return &wa.Identity{JID: c.device.ID.String(), Name: c.device.PushName}
}

// Exists checks whether jid is a registered account or a reachable group.
func (c *Client) Exists(ctx context.Context, jid string, kind wa.JIDKind) (bool, error) {
	if kind == wa.JIDGroup {
		parsed, err := types.ParseJID(jid)
		if err != nil {
			return false, nil
		}
		_, err = c.wa.GetGroupInfo(ctx, parsed)
		return err == nil, nil
	}

	phone := jid
	if i := strings.IndexByte(phone, '@'); i >= 0 {
		phone = phone[:i]
	}
	resp, err := c.wa.IsOnWhatsApp(ctx, []string{phone})
	if err != nil {
		return false, err
	}
	return len(resp) > 0 && resp[0].IsIn, nil
}

// SendMessage delivers content to jid. Raw payloads ride through as
// serialized protocol messages; plain text becomes a conversation message.
func (c *Client) SendMessage(ctx context.Context, jid string, content wa.SendContent) (*wa.SendReceipt, error) {
	parsed, err := types.ParseJID(jid)
	if err != nil {
		return nil, fmt.Errorf("invalid jid %q: %w", jid, err)
	}

	msg := &waProto.Message{}
	if len(content.Raw) > 0 {
		if err := protojson.Unmarshal(content.Raw, msg); err != nil {
			return nil, fmt.Errorf("invalid message payload: %w", err)
		}
	} else {
		msg.Conversation = proto.String(content.Text)
	}

	resp, err := c.wa.SendMessage(ctx, parsed, msg)
	if err != nil {
		return nil, err
	}
	return &wa.SendReceipt{ID: resp.ID, Timestamp: resp.Timestamp.Unix()}, nil
}

// GroupMetadata fetches live group metadata from the server.
func (c *Client) GroupMetadata(ctx context.Context, jid string) (*wa.GroupMetadata, error) {
	parsed, err := types.ParseJID(jid)
	if err != nil {
		return nil, fmt.Errorf("invalid jid %q: %w", jid, err)
	}
	info, err := c.wa.GetGroupInfo(ctx, parsed)
	if err != nil {
		return nil, err
	}
	return groupInfoToWA(info), nil
}

// ProfilePictureURL returns the full-size profile photo URL, "" when none
// is set or visible.
func (c *Client) ProfilePictureURL(ctx context.Context, jid string) (string, error) {
	parsed, err := types.ParseJID(jid)
	if err != nil {
		return "", fmt.Errorf("invalid jid %q: %w", jid, err)
	}
	pic, err := c.wa.GetProfilePictureInfo(ctx, parsed, &whatsmeow.GetProfilePictureParams{})
	if errors.Is(err, whatsmeow.ErrProfilePictureNotSet) || errors.Is(err, whatsmeow.ErrProfilePictureUnauthorized) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if pic == nil {
		return "", nil
	}
	return pic.URL, nil
}

// FetchBlocklist returns the jids currently blocked by the account.
func (c *Client) FetchBlocklist(ctx context.Context) ([]string, error) {
	list, err := c.wa.GetBlocklist(ctx)
	if err != nil {
		return nil, err
	}
	jids := make([]string, len(list.JIDs))
	for i, jid := range list.JIDs {
		jids[i] = jid.String()
	}
	return jids, nil
}

// UpdateBlockStatus blocks or unblocks a peer.
func (c *Client) UpdateBlockStatus(ctx context.Context, jid string, action wa.BlockAction) error {
	parsed, err := types.ParseJID(jid)
	if err != nil {
		return fmt.Errorf("invalid jid %q: %w", jid, err)
	}
	change := events.BlocklistChangeActionBlock
	if action == wa.BlockActionUnblock {
		change = events.BlocklistChangeActionUnblock
	}
	_, err = c.wa.UpdateBlocklist(ctx, parsed, change)
	return err
}

// MarkRead sends read receipts for the given message keys.
func (c *Client) MarkRead(ctx context.Context, keys []wa.MessageKey) error {
	for _, key := range keys {
		chat, err := types.ParseJID(key.RemoteJID)
		if err != nil {
			return fmt.Errorf("invalid jid %q: %w", key.RemoteJID, err)
		}
		sender := chat
		if key.Participant != "" {
			sender, err = types.ParseJID(key.Participant)
			if err != nil {
				return fmt.Errorf("invalid participant %q: %w", key.Participant, err)
			}
		}
		if err := c.wa.MarkRead(ctx, []types.MessageID{key.ID}, time.Now(), chat, sender); err != nil {
			return err
		}
	}
	return nil
}

// DownloadMedia fetches the media attachment carried by a stored message
// and reports its declared content type.
func (c *Client) DownloadMedia(ctx context.Context, msg *wa.Message) ([]byte, string, error) {
	if len(msg.Message) == 0 {
		return nil, "", errors.New("message carries no payload")
	}
	var payload waProto.Message
	if err := protojson.Unmarshal(msg.Message, &payload); err != nil {
		return nil, "", fmt.Errorf("corrupt message payload: %w", err)
	}

	data, err := c.wa.DownloadAny(ctx, &payload)
	if err != nil {
		return nil, "", err
	}
	return data, mediaMimetype(&payload), nil
}

// mediaMimetype returns the declared mimetype of the payload's media
// part.
func mediaMimetype(msg *waProto.Message) string {
	switch {
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetMimetype()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetMimetype()
	case msg.GetAudioMessage() != nil:
		return msg.GetAudioMessage().GetMimetype()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetMimetype()
	case msg.GetStickerMessage() != nil:
		return msg.GetStickerMessage().GetMimetype()
	default:
		return "application/octet-stream"
	}
}

// groupInfoToWA maps whatsmeow group metadata to the gateway shape.
func groupInfoToWA(info *types.GroupInfo) *wa.GroupMetadata {
	group := &wa.GroupMetadata{
		ID:       info.JID.String(),
		Subject:  info.GroupName.Name,
		Restrict: boolPtr(info.GroupLocked.IsLocked),
		Announce: boolPtr(info.GroupAnnounce.IsAnnounce),
	}
	if !info.OwnerJID.IsEmpty() {
		group.Owner = strPtr(info.OwnerJID.String())
	}
	if !info.GroupName.NameSetAt.IsZero() {
		group.SubjectTime = int64Ptr(info.GroupName.NameSetAt.Unix())
	}
	if !info.GroupName.NameSetBy.IsEmpty() {
		group.SubjectOwner = strPtr(info.GroupName.NameSetBy.String())
	}
	if !info.GroupCreated.IsZero() {
		group.Creation = int64Ptr(info.GroupCreated.Unix())
	}
	if info.GroupTopic.Topic != "" {
		group.Desc = strPtr(info.GroupTopic.Topic)
	}
	if info.GroupEphemeral.IsEphemeral {
		group.EphemeralDuration = int64Ptr(int64(info.GroupEphemeral.DisappearingTimer))
	}

	group.Participants = make([]wa.Participant, len(info.Participants))
	for i, p := range info.Participants {
		group.Participants[i] = wa.Participant{
			ID:           p.JID.String(),
			IsAdmin:      p.IsAdmin || p.IsSuperAdmin,
			IsSuperAdmin: p.IsSuperAdmin,
		}
	}
	group.Size = int64Ptr(int64(len(group.Participants)))
	return group
}

func strPtr(s string) *string { return &s }
func int64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool    { return &v }
