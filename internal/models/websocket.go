package models

import "encoding/json"

type EventType string

// Client -> server events.
const (
	EventSendMessageToUser  EventType = "sendMessageToUser"
	EventSendMessageToGroup EventType = "sendMessageToGroup"
	EventJoinGroup          EventType = "joinGroup"
	EventLeaveGroup         EventType = "leaveGroup"
	EventStartTyping        EventType = "startTyping"
	EventStopTyping         EventType = "stopTyping"
	EventMarkMessagesAsRead EventType = "markMessagesAsRead"
)

// Server -> client events.
const (
	EventReceiveMessage      EventType = "ReceiveMessage"
	EventMessageSent         EventType = "MessageSent"
	EventReceiveGroupMessage EventType = "ReceiveGroupMessage"
	EventUserJoinedGroup     EventType = "UserJoinedGroup"
	EventUserLeftGroup       EventType = "UserLeftGroup"
	EventUserTyping          EventType = "UserTyping"
	EventUserStoppedTyping   EventType = "UserStoppedTyping"
	EventMessagesRead        EventType = "MessagesRead"
	EventUserOnline          EventType = "UserOnline"
	EventUserOffline         EventType = "UserOffline"
	EventOnlineUsers         EventType = "OnlineUsers"
	EventError               EventType = "Error"
)

// InboundEvent is a frame received from a client. Payload is decoded
// according to Type.
type InboundEvent struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type OutboundEvent struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
}

// Encode marshals an outbound event into a text frame.
func Encode(eventType EventType, payload interface{}) ([]byte, error) {
	return json.Marshal(OutboundEvent{Type: eventType, Payload: payload})
}

type SendMessageToUserPayload struct {
	ReceiverID int    `json:"receiverId"`
	Message    string `json:"message"`
}

type SendMessageToGroupPayload struct {
	GroupID int    `json:"groupId"`
	Message string `json:"message"`
}

type GroupRoomPayload struct {
	GroupID int `json:"groupId"`
}

type TypingPayload struct {
	ReceiverID int `json:"receiverId"`
}

type MarkMessagesAsReadPayload struct {
	SenderID int `json:"senderId"`
}

// GroupPresence is carried by UserJoinedGroup and UserLeftGroup.
type GroupPresence struct {
	UserID   int    `json:"userId"`
	Username string `json:"username"`
	GroupID  int    `json:"groupId"`
}

type TypingSignal struct {
	SenderID       int    `json:"senderId"`
	SenderUsername string `json:"senderUsername"`
}

// ReadReceipt tells both sides of a conversation that ReaderID has read
// Count messages sent by SenderID.
type ReadReceipt struct {
	ReaderID int   `json:"readerId"`
	SenderID int   `json:"senderId"`
	Count    int64 `json:"count"`
}

// PresenceChange is carried by UserOnline and UserOffline.
type PresenceChange struct {
	UserID   int    `json:"userId"`
	Username string `json:"username,omitempty"`
}

type OnlineSnapshot struct {
	UserIDs []int `json:"userIds"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
