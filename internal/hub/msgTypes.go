package hub

import (
	"encoding/json"

	"converse-backend/internal/models"
)

// client -> hub
const (
	Identify           = "identify"
	SubscribeChannel   = "subscribe-channel"
	UnsubscribeChannel = "unsubscribe-channel"
)

// hub -> room
const (
	MessageCreated = "message-created"
	MessageUpdated = "message-updated"
	MessageDeleted = "message-deleted"

	Typing     = "typing"
	StopTyping = "stop-typing"

	ChannelDeleted = "channel-deleted"

	MeetingCreated = "meeting-created"
	MeetingUpdated = "meeting-updated"
	MeetingDeleted = "meeting-deleted"
)

// hub -> one client
const (
	Identified   = "identified"
	Subscribed   = "subscribed"
	Unsubscribed = "unsubscribed"
	Error        = "error"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func PrepareMessage(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

type MessagePayload struct {
	ChannelID int64          `json:"channelId,string"`
	Message   models.Message `json:"message"`
}

type MessageDeletedPayload struct {
	ChannelID int64 `json:"channelId,string"`
	MessageID int64 `json:"messageId,string"`
}

type TypingPayload struct {
	ChannelID int64  `json:"channelId,string"`
	Username  string `json:"username,omitempty"`
}

type ChannelDeletedPayload struct {
	ChannelID int64 `json:"channelId,string"`
}

type MeetingPayload struct {
	ChannelID int64          `json:"channelId,string"`
	Meeting   models.Meeting `json:"meeting"`
}

type MeetingDeletedPayload struct {
	ChannelID int64 `json:"channelId,string"`
	MeetingID int64 `json:"meetingId,string"`
}

type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

type IdentifiedPayload struct {
	UserID int64 `json:"userId,string"`
}

type ChannelPayload struct {
	ChannelID int64 `json:"channelId,string"`
}
