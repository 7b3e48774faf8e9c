package meow

import (
	"context"
	"strconv"
	"time"

	"go.mau.fi/whatsmeow/proto/waCommon"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/encoding/protojson"

	"wamux/internal/credstore"
	"wamux/internal/wa"
)

// handleEvent translates native protocol events into the bus events the
// sync handlers consume.
func (c *Client) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		c.handleConnected()
	case *events.PairSuccess:
		c.handlePairSuccess(e)
	case *events.LoggedOut:
		c.setState(wa.ReadyClosed)
		c.emitClose(wa.ReasonLoggedOut, "logged out from another device")
	case *events.StreamReplaced:
		c.setState(wa.ReadyClosed)
		c.emitClose(wa.ReasonConnectionReplaced, "stream replaced by another connection")
	case *events.Disconnected:
		c.setState(wa.ReadyClosed)
		c.emitClose(wa.ReasonConnectionClosed, "")
	case *events.ConnectFailure:
		c.setState(wa.ReadyClosed)
		c.emitClose(int(e.Reason), e.Message)
	case *events.StreamError:
		c.setState(wa.ReadyClosed)
		code := wa.ReasonBadSession
		if parsed, err := strconv.Atoi(e.Code); err == nil {
			code = parsed
		}
		c.emitClose(code, "stream error "+e.Code)
	case *events.KeepAliveTimeout:
		c.log.Debug().Msg("keepalive timeout")

	case *events.HistorySync:
		c.handleHistorySync(e)
	case *events.Message:
		c.handleMessage(e)
	case *events.Receipt:
		c.handleReceipt(e)

	case *events.Contact:
		c.bus.Emit(wa.EventContactsUpsert, []*wa.Contact{{
			ID:   e.JID.String(),
			Name: strPtr(e.Action.GetFullName()),
		}})
	case *events.PushName:
		c.bus.Emit(wa.EventContactsUpdate, []*wa.Contact{{
			ID:     e.JID.String(),
			Notify: strPtr(e.NewPushName),
		}})
	case *events.BusinessName:
		c.bus.Emit(wa.EventContactsUpdate, []*wa.Contact{{
			ID:           e.JID.String(),
			VerifiedName: strPtr(e.NewBusinessName),
		}})

	case *events.JoinedGroup:
		c.bus.Emit(wa.EventGroupsUpsert, []*wa.GroupMetadata{groupInfoToWA(&e.GroupInfo)})
	case *events.GroupInfo:
		c.handleGroupInfo(e)

	case *events.Pin:
		pinned := int64(0)
		if e.Action.GetPinned() {
			pinned = e.Timestamp.Unix()
		}
		c.emitChatUpdate(&wa.Chat{ID: e.JID.String(), Pinned: &pinned})
	case *events.Mute:
		muteEnd := int64(0)
		if e.Action.GetMuted() {
			muteEnd = e.Action.GetMuteEndTimestamp()
		}
		c.emitChatUpdate(&wa.Chat{ID: e.JID.String(), MuteEndTime: &muteEnd})
	case *events.Archive:
		c.emitChatUpdate(&wa.Chat{ID: e.JID.String(), Archived: boolPtr(e.Action.GetArchived())})
	case *events.MarkChatAsRead:
		update := &wa.Chat{ID: e.JID.String()}
		if e.Action.GetRead() {
			update.UnreadCount = int64Ptr(0)
		} else {
			update.MarkedAsUnread = boolPtr(true)
		}
		c.emitChatUpdate(update)
	case *events.DeleteChat:
		c.bus.Emit(wa.EventChatsDelete, []string{e.JID.String()})
	case *events.ClearChat:
		c.bus.Emit(wa.EventMessagesDelete, &wa.MessagesDelete{All: true, JID: e.JID.String()})
	case *events.DeleteForMe:
		c.bus.Emit(wa.EventMessagesDelete, &wa.MessagesDelete{Keys: []wa.MessageKey{{
			RemoteJID: e.ChatJID.String(),
			FromMe:    e.IsFromMe,
			ID:        e.MessageID,
		}}})
	}
}

func (c *Client) handleConnected() {
	c.setState(wa.ReadyOpen)

	if me := c.User(); me != nil {
		err := c.creds.WriteCreds(&credstore.Creds{Me: me, Registered: true})
		if err != nil {
			c.log.Error().Err(err).Msg("failed to persist credentials")
		}
	}
	if c.cfg.MarkOnlineOnConnect {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.wa.SendPresence(ctx, types.PresenceAvailable); err != nil {
				c.log.Warn().Err(err).Msg("failed to send available presence")
			}
		}()
	}

	c.bus.Emit(wa.EventConnectionUpdate, &wa.ConnectionUpdate{Connection: wa.ConnectionOpen})
}

func (c *Client) handlePairSuccess(e *events.PairSuccess) {
	creds := &credstore.Creds{
		Me:         &wa.Identity{JID: e.ID.String(), Name: e.BusinessName},
		Platform:   e.Platform,
		Registered: true,
	}
	if err := c.creds.WriteCreds(creds); err != nil {
		c.log.Error().Err(err).Msg("failed to persist credentials")
	}
	c.bus.Emit(wa.EventConnectionUpdate, &wa.ConnectionUpdate{IsNewLogin: true})
}

func (c *Client) emitClose(code int, msg string) {
	c.bus.Emit(wa.EventConnectionUpdate, &wa.ConnectionUpdate{
		Connection: wa.ConnectionClose,
		StatusCode: code,
		Error:      msg,
	})
}

func (c *Client) emitChatUpdate(update *wa.Chat) {
	c.bus.Emit(wa.EventChatsUpdate, []*wa.Chat{update})
}

// handleMessage forwards a live message. Reactions, revokes and edits
// are not stored as messages of their own; they become reaction, delete
// and update events addressed at their target.
func (c *Client) handleMessage(e *events.Message) {
	if e.Message == nil {
		return
	}

	key := wa.MessageKey{
		RemoteJID: e.Info.Chat.String(),
		FromMe:    e.Info.IsFromMe,
		ID:        e.Info.ID,
	}
	if e.Info.IsGroup {
		key.Participant = e.Info.Sender.ToNonAD().String()
	}

	if rm := e.Message.GetReactionMessage(); rm != nil {
		c.bus.Emit(wa.EventMessagesReaction, []wa.ReactionUpdate{{
			Key:      keyFromProto(rm.GetKey(), e.Info.Chat.String()),
			Reaction: wa.Reaction{Key: key, Text: rm.GetText()},
		}})
		return
	}
	if pm := e.Message.GetProtocolMessage(); pm != nil {
		switch pm.GetType() {
		case waProto.ProtocolMessage_REVOKE:
			c.bus.Emit(wa.EventMessagesDelete, &wa.MessagesDelete{
				Keys: []wa.MessageKey{keyFromProto(pm.GetKey(), e.Info.Chat.String())},
			})
			return
		case waProto.ProtocolMessage_MESSAGE_EDIT:
			edited := pm.GetEditedMessage()
			if edited == nil {
				return
			}
			payload, err := protojson.Marshal(edited)
			if err != nil {
				c.log.Error().Err(err).Str("id", e.Info.ID).Msg("failed to encode edited payload")
				return
			}
			c.bus.Emit(wa.EventMessagesUpdate, []wa.MessageUpdate{{
				Key: keyFromProto(pm.GetKey(), e.Info.Chat.String()),
				Update: &wa.Message{
					Message:          payload,
					MessageTimestamp: int64Ptr(e.Info.Timestamp.Unix()),
				},
			}})
			return
		}
	}

	payload, err := protojson.Marshal(e.Message)
	if err != nil {
		c.log.Error().Err(err).Str("id", e.Info.ID).Msg("failed to encode message payload")
		return
	}

	msg := &wa.Message{
		Key:              key,
		Message:          payload,
		MessageTimestamp: int64Ptr(e.Info.Timestamp.Unix()),
	}
	if e.Info.PushName != "" {
		msg.PushName = strPtr(e.Info.PushName)
	}
	if key.Participant != "" {
		msg.Participant = strPtr(key.Participant)
	}

	c.bus.Emit(wa.EventMessagesUpsert, &wa.MessagesUpsert{
		Messages: []*wa.Message{msg},
		Type:     wa.UpsertNotify,
	})
}

func (c *Client) handleReceipt(e *events.Receipt) {
	status := "delivery"
	switch e.Type {
	case types.ReceiptTypeRead, types.ReceiptTypeReadSelf:
		status = "read"
	case types.ReceiptTypePlayed:
		status = "played"
	}

	receipt := wa.UserReceipt{
		UserJID:   e.Sender.ToNonAD().String(),
		Status:    status,
		Timestamp: e.Timestamp.Unix(),
	}
	updates := make([]wa.ReceiptUpdate, len(e.MessageIDs))
	for i, id := range e.MessageIDs {
		updates[i] = wa.ReceiptUpdate{
			Key:     wa.MessageKey{RemoteJID: e.Chat.String(), FromMe: true, ID: id},
			Receipt: receipt,
		}
	}
	c.bus.Emit(wa.EventMessageReceipt, updates)
}

// handleGroupInfo splits a native group notification into a metadata
// update and membership change events.
func (c *Client) handleGroupInfo(e *events.GroupInfo) {
	jid := e.JID.String()

	update := &wa.GroupMetadata{ID: jid}
	changed := false
	if e.Name != nil {
		update.Subject = e.Name.Name
		update.SubjectTime = int64Ptr(e.Name.NameSetAt.Unix())
		if !e.Name.NameSetBy.IsEmpty() {
			update.SubjectOwner = strPtr(e.Name.NameSetBy.String())
		}
		changed = true
	}
	if e.Topic != nil {
		update.Desc = strPtr(e.Topic.Topic)
		changed = true
	}
	if e.Locked != nil {
		update.Restrict = boolPtr(e.Locked.IsLocked)
		changed = true
	}
	if e.Announce != nil {
		update.Announce = boolPtr(e.Announce.IsAnnounce)
		changed = true
	}
	if e.Ephemeral != nil {
		duration := int64(0)
		if e.Ephemeral.IsEphemeral {
			duration = int64(e.Ephemeral.DisappearingTimer)
		}
		update.EphemeralDuration = &duration
		changed = true
	}
	if changed {
		c.bus.Emit(wa.EventGroupsUpdate, []*wa.GroupMetadata{update})
	}

	c.emitParticipants(jid, wa.ParticipantAdd, e.Join)
	c.emitParticipants(jid, wa.ParticipantRemove, e.Leave)
	c.emitParticipants(jid, wa.ParticipantPromote, e.Promote)
	c.emitParticipants(jid, wa.ParticipantDemote, e.Demote)
}

func (c *Client) emitParticipants(jid string, action wa.ParticipantAction, members []types.JID) {
	if len(members) == 0 {
		return
	}
	ids := make([]string, len(members))
	for i, member := range members {
		ids[i] = member.ToNonAD().String()
	}
	c.bus.Emit(wa.EventGroupParticipants, &wa.ParticipantsUpdate{
		ID:           jid,
		Action:       action,
		Participants: ids,
	})
}

// handleHistorySync converts a history snapshot into the bulk set event.
// The initial bootstrap chunk represents the device's full current state;
// later chunks only extend it.
func (c *Client) handleHistorySync(e *events.HistorySync) {
	data := e.Data
	set := &wa.HistorySet{
		IsLatest: data.GetSyncType() == waHistorySync.HistorySync_INITIAL_BOOTSTRAP,
	}

	for _, pn := range data.GetPushnames() {
		if pn.GetID() == "" {
			continue
		}
		set.Contacts = append(set.Contacts, &wa.Contact{
			ID:     pn.GetID(),
			Notify: strPtr(pn.GetPushname()),
		})
	}

	for _, conv := range data.GetConversations() {
		id := conv.GetID()
		if id == "" {
			continue
		}
		set.Chats = append(set.Chats, historyChat(conv))
		for _, histMsg := range conv.GetMessages() {
			if msg := historyMessage(histMsg, id); msg != nil {
				set.Messages = append(set.Messages, msg)
			}
		}
	}

	c.log.Info().
		Str("syncType", data.GetSyncType().String()).
		Int("chats", len(set.Chats)).
		Int("contacts", len(set.Contacts)).
		Int("messages", len(set.Messages)).
		Msg("received history sync")
	c.bus.Emit(wa.EventHistorySet, set)
}

func historyChat(conv *waHistorySync.Conversation) *wa.Chat {
	chat := &wa.Chat{ID: conv.GetID()}
	if v := conv.GetDisplayName(); v != "" {
		chat.DisplayName = strPtr(v)
	}
	if v := conv.GetName(); v != "" {
		chat.Name = strPtr(v)
	}
	if v := conv.GetDescription(); v != "" {
		chat.Description = strPtr(v)
	}
	if v := conv.GetUnreadCount(); v > 0 {
		chat.UnreadCount = int64Ptr(int64(v))
	}
	if v := conv.GetUnreadMentionCount(); v > 0 {
		chat.UnreadMentionCount = int64Ptr(int64(v))
	}
	if conv.GetArchived() {
		chat.Archived = boolPtr(true)
	}
	if conv.GetMarkedAsUnread() {
		chat.MarkedAsUnread = boolPtr(true)
	}
	if conv.GetReadOnly() {
		chat.ReadOnly = boolPtr(true)
	}
	if ts := conv.GetPinned(); ts > 0 {
		chat.Pinned = int64Ptr(int64(ts))
	}
	if ts := conv.GetMuteEndTime(); ts > 0 {
		chat.MuteEndTime = int64Ptr(int64(ts))
	}
	if v := conv.GetEphemeralExpiration(); v > 0 {
		chat.EphemeralExpiration = int64Ptr(int64(v))
	}
	if ts := conv.GetEphemeralSettingTimestamp(); ts > 0 {
		chat.EphemeralSettingTimestamp = int64Ptr(ts)
	}
	if ts := conv.GetLastMsgTimestamp(); ts > 0 {
		chat.LastMsgTimestamp = int64Ptr(int64(ts))
	}
	if ts := conv.GetConversationTimestamp(); ts > 0 {
		chat.ConversationTimestamp = int64Ptr(int64(ts))
	}
	return chat
}

func historyMessage(histMsg *waHistorySync.HistorySyncMsg, chatJID string) *wa.Message {
	webMsg := histMsg.GetMessage()
	if webMsg == nil || webMsg.GetKey().GetID() == "" {
		return nil
	}

	msg := &wa.Message{
		Key: wa.MessageKey{
			RemoteJID: chatJID,
			FromMe:    webMsg.GetKey().GetFromMe(),
			ID:        webMsg.GetKey().GetID(),
		},
	}
	if p := webMsg.GetParticipant(); p != "" {
		msg.Key.Participant = p
		msg.Participant = strPtr(p)
	}
	if ts := webMsg.GetMessageTimestamp(); ts > 0 {
		msg.MessageTimestamp = int64Ptr(int64(ts))
	}
	if v := webMsg.GetPushName(); v != "" {
		msg.PushName = strPtr(v)
	}
	if webMsg.GetStarred() {
		msg.Starred = boolPtr(true)
	}
	if webMsg.GetBroadcast() {
		msg.Broadcast = boolPtr(true)
	}
	if st := webMsg.GetStatus(); st != 0 {
		msg.Status = int64Ptr(int64(st))
	}
	if st := webMsg.GetMessageStubType(); st != 0 {
		msg.MessageStubType = int64Ptr(int64(st))
	}
	if pm := webMsg.GetMessage(); pm != nil {
		if raw, err := protojson.Marshal(pm); err == nil {
			msg.Message = raw
		}
	}
	return msg
}

// keyFromProto converts a protocol message key, defaulting the chat jid
// when the key omits it.
func keyFromProto(key *waCommon.MessageKey, chatJID string) wa.MessageKey {
	out := wa.MessageKey{
		RemoteJID:   key.GetRemoteJID(),
		FromMe:      key.GetFromMe(),
		ID:          key.GetID(),
		Participant: key.GetParticipant(),
	}
	if out.RemoteJID == "" {
		out.RemoteJID = chatJID
	}
	return out
}
