// Package wa defines the neutral vocabulary shared between the protocol
// adapter, the event-sync store and the session lifecycle manager: entity
// shapes, the typed event stream and the client surface the gateway needs
// from the underlying messaging library.
package wa

import "encoding/json"

// EventName identifies one stream on a session's event bus.
type EventName string

const (
	EventHistorySet         EventName = "messaging-history.set"
	EventChatsUpsert        EventName = "chats.upsert"
	EventChatsUpdate        EventName = "chats.update"
	EventChatsDelete        EventName = "chats.delete"
	EventContactsUpsert     EventName = "contacts.upsert"
	EventContactsUpdate     EventName = "contacts.update"
	EventGroupsUpsert       EventName = "groups.upsert"
	EventGroupsUpdate       EventName = "groups.update"
	EventGroupParticipants  EventName = "group-participants.update"
	EventMessagesUpsert     EventName = "messages.upsert"
	EventMessagesUpdate     EventName = "messages.update"
	EventMessagesDelete     EventName = "messages.delete"
	EventMessageReceipt     EventName = "message-receipt.update"
	EventMessagesReaction   EventName = "messages.reaction"
	EventConnectionUpdate   EventName = "connection.update"
)

// Chat is per-conversation metadata. Pointer fields distinguish "absent"
// from zero so the same shape serves snapshots, upserts and partial
// updates.
type Chat struct {
	SessionID                 string          `json:"sessionId"`
	ID                        string          `json:"id"`
	Archived                  *bool           `json:"archived,omitempty"`
	ConversationTimestamp     *int64          `json:"conversationTimestamp,omitempty"`
	Description               *string         `json:"description,omitempty"`
	DisplayName               *string         `json:"displayName,omitempty"`
	EphemeralExpiration       *int64          `json:"ephemeralExpiration,omitempty"`
	EphemeralSettingTimestamp *int64          `json:"ephemeralSettingTimestamp,omitempty"`
	LastMsgTimestamp          *int64          `json:"lastMsgTimestamp,omitempty"`
	MarkedAsUnread            *bool           `json:"markedAsUnread,omitempty"`
	MuteEndTime               *int64          `json:"muteEndTime,omitempty"`
	Name                      *string         `json:"name,omitempty"`
	Pinned                    *int64          `json:"pinned,omitempty"`
	ReadOnly                  *bool           `json:"readOnly,omitempty"`
	UnreadCount               *int64          `json:"unreadCount,omitempty"`
	UnreadMentionCount        *int64          `json:"unreadMentionCount,omitempty"`
	Participant               json.RawMessage `json:"participant,omitempty"`
}

// Contact is a peer profile.
type Contact struct {
	SessionID    string  `json:"sessionId"`
	ID           string  `json:"id"`
	Name         *string `json:"name,omitempty"`
	Notify       *string `json:"notify,omitempty"`
	VerifiedName *string `json:"verifiedName,omitempty"`
	ImgURL       *string `json:"imgUrl,omitempty"`
	Status       *string `json:"status,omitempty"`
}

// Participant is one group member descriptor.
type Participant struct {
	ID           string `json:"id"`
	IsAdmin      bool   `json:"isAdmin"`
	IsSuperAdmin bool   `json:"isSuperAdmin"`
}

// GroupMetadata is group-specific state. Participants is mutated
// incrementally by membership events and only replaced on full resync.
type GroupMetadata struct {
	SessionID         string        `json:"sessionId"`
	ID                string        `json:"id"`
	Owner             *string       `json:"owner,omitempty"`
	Subject           string        `json:"subject"`
	SubjectOwner      *string       `json:"subjectOwner,omitempty"`
	SubjectTime       *int64        `json:"subjectTime,omitempty"`
	Creation          *int64        `json:"creation,omitempty"`
	Desc              *string       `json:"desc,omitempty"`
	DescOwner         *string       `json:"descOwner,omitempty"`
	Restrict          *bool         `json:"restrict,omitempty"`
	Announce          *bool         `json:"announce,omitempty"`
	Size              *int64        `json:"size,omitempty"`
	Participants      []Participant `json:"participants"`
	EphemeralDuration *int64        `json:"ephemeralDuration,omitempty"`
	InviteCode        *string       `json:"inviteCode,omitempty"`
}

// MessageKey identifies a message within a conversation.
type MessageKey struct {
	RemoteJID   string `json:"remoteJid"`
	FromMe      bool   `json:"fromMe"`
	ID          string `json:"id"`
	Participant string `json:"participant,omitempty"`
}

// Author returns the key's author identifier: "me" for own messages,
// otherwise the participant (group) or the conversation peer.
func (k MessageKey) Author() string {
	if k.FromMe {
		return "me"
	}
	if k.Participant != "" {
		return k.Participant
	}
	return k.RemoteJID
}

// UserReceipt is one per-user delivery acknowledgment. At most one live
// entry per user per message; later receipts replace earlier ones.
type UserReceipt struct {
	UserJID   string `json:"userJid"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// Reaction is one per-author annotation. An empty Text removes the
// author's entry.
type Reaction struct {
	Key  MessageKey `json:"key"`
	Text string     `json:"text"`
}

// Message is one stored message. The protocol payload is carried opaque.
type Message struct {
	SessionID        string          `json:"sessionId"`
	RemoteJID        string          `json:"remoteJid"`
	ID               string          `json:"id"`
	Key              MessageKey      `json:"key"`
	Message          json.RawMessage `json:"message,omitempty"`
	MessageTimestamp *int64          `json:"messageTimestamp,omitempty"`
	Participant      *string         `json:"participant,omitempty"`
	PushName         *string         `json:"pushName,omitempty"`
	Broadcast        *bool           `json:"broadcast,omitempty"`
	Status           *int64          `json:"status,omitempty"`
	Starred          *bool           `json:"starred,omitempty"`
	MessageStubType  *int64          `json:"messageStubType,omitempty"`
	UserReceipt      []UserReceipt   `json:"userReceipt,omitempty"`
	Reactions        []Reaction      `json:"reactions,omitempty"`
}

// HistorySet is the bulk "here is the current full state" event.
type HistorySet struct {
	Chats    []*Chat
	Contacts []*Contact
	Messages []*Message
	IsLatest bool
}

// ParticipantAction is a membership-change kind.
type ParticipantAction string

const (
	ParticipantAdd     ParticipantAction = "add"
	ParticipantRemove  ParticipantAction = "remove"
	ParticipantPromote ParticipantAction = "promote"
	ParticipantDemote  ParticipantAction = "demote"
)

// ParticipantsUpdate mutates a group's member list incrementally.
type ParticipantsUpdate struct {
	ID           string
	Action       ParticipantAction
	Participants []string
}

// UpsertType distinguishes live messages from backfill.
type UpsertType string

const (
	UpsertNotify UpsertType = "notify"
	UpsertAppend UpsertType = "append"
)

// MessagesUpsert carries new messages plus their origin kind.
type MessagesUpsert struct {
	Messages []*Message
	Type     UpsertType
}

// MessageUpdate is a partial update addressed by key.
type MessageUpdate struct {
	Key    MessageKey
	Update *Message
}

// MessagesDelete removes messages by key list, or a whole conversation
// when All is set.
type MessagesDelete struct {
	All  bool
	JID  string
	Keys []MessageKey
}

// ReceiptUpdate attaches a delivery receipt to a message.
type ReceiptUpdate struct {
	Key     MessageKey
	Receipt UserReceipt
}

// ReactionUpdate attaches or clears a reaction on a message.
type ReactionUpdate struct {
	Key      MessageKey
	Reaction Reaction
}

// Connection state labels within a ConnectionUpdate.
const (
	ConnectionConnecting = "connecting"
	ConnectionOpen       = "open"
	ConnectionClose      = "close"
)

// Disconnect status codes, mirroring the wire protocol's stream error
// codes.
const (
	ReasonLoggedOut           = 401
	ReasonForbidden           = 403
	ReasonConnectionLost      = 408
	ReasonMultideviceMismatch = 411
	ReasonConnectionClosed    = 428
	ReasonConnectionReplaced  = 440
	ReasonBadSession          = 500
	ReasonRestartRequired     = 515
)

// ConnectionUpdate reports transport state changes and pairing codes.
type ConnectionUpdate struct {
	Connection string `json:"connection,omitempty"`
	QR         string `json:"qr,omitempty"`
	IsNewLogin bool   `json:"isNewLogin,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`
}
