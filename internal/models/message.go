package models

import "time"

// DirectMessage is a one-to-one message. IsRead flips false->true once,
// either on live delivery or on an explicit mark-read.
type DirectMessage struct {
	ID               int       `json:"id"`
	SenderID         int       `json:"senderId"`
	SenderUsername   string    `json:"senderUsername"`
	ReceiverID       int       `json:"receiverId"`
	ReceiverUsername string    `json:"receiverUsername"`
	Body             string    `json:"body"`
	SentAtUTC        time.Time `json:"sentAtUtc"`
	IsRead           bool      `json:"isRead"`
}

type GroupMessage struct {
	ID             int       `json:"id"`
	GroupID        int       `json:"groupId"`
	SenderID       int       `json:"senderId"`
	SenderUsername string    `json:"senderUsername"`
	Body           string    `json:"body"`
	SentAtUTC      time.Time `json:"sentAtUtc"`
}

// HistoryQuery pages backwards through a conversation. A zero Before
// means "from the newest message".
type HistoryQuery struct {
	Limit  int
	Before int
}
