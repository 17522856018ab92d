package services

import (
	"context"
	"fmt"
	"strings"

	"chat-realtime/internal/database"
	"chat-realtime/internal/models"
	"chat-realtime/internal/registry"
	"chat-realtime/pkg/logger"
)

type DirectService struct {
	db           database.Database
	registry     *registry.Registry
	historyLimit int
}

func NewDirectService(db database.Database, reg *registry.Registry, historyLimit int) *DirectService {
	return &DirectService{db: db, registry: reg, historyLimit: historyLimit}
}

// SendDirect persists a message from sender to receiverID, pushes it to every
// live connection of the receiver and acknowledges the sender's originating
// connection with MessageSent. A message delivered live is marked read before
// the acknowledgement goes out.
func (s *DirectService) SendDirect(ctx context.Context, sender registry.Conn, receiverID int, body string) (*models.DirectMessage, error) {
	if sender.UserID == 0 {
		return nil, ErrNotAuthenticated
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalidRequest)
	}

	receiver, err := s.db.GetUserByID(ctx, receiverID)
	if err != nil {
		return nil, lookupError("get receiver", err, ErrUnknownRecipient)
	}

	msg := &models.DirectMessage{
		SenderID:         sender.UserID,
		SenderUsername:   sender.Username,
		ReceiverID:       receiver.ID,
		ReceiverUsername: receiver.Username,
		Body:             body,
		IsRead:           false,
	}
	if err := s.db.SaveDirectMessage(ctx, msg); err != nil {
		return nil, persistenceError("save direct message", err)
	}

	delivered := push(s.registry.ConnectionsFor(receiver.ID), models.EventReceiveMessage, *msg)
	if delivered > 0 {
		if _, err := s.db.MarkDirectMessageRead(ctx, msg.ID); err != nil {
			logger.Error("Error marking message %d read after live delivery: %v", msg.ID, err)
		} else {
			msg.IsRead = true
		}
	}

	push([]registry.Conn{sender}, models.EventMessageSent, *msg)
	return msg, nil
}

// MarkMessagesAsRead marks every unread message from senderID to reader as
// read. The sender is notified when anything changed; the reader always gets
// the receipt as an acknowledgement.
func (s *DirectService) MarkMessagesAsRead(ctx context.Context, reader registry.Conn, senderID int) (int64, error) {
	if reader.UserID == 0 {
		return 0, ErrNotAuthenticated
	}
	if _, err := s.db.GetUserByID(ctx, senderID); err != nil {
		return 0, lookupError("get sender", err, ErrUnknownRecipient)
	}

	count, err := s.db.MarkDirectMessagesRead(ctx, senderID, reader.UserID)
	if err != nil {
		return 0, persistenceError("mark messages read", err)
	}

	receipt := models.ReadReceipt{ReaderID: reader.UserID, SenderID: senderID, Count: count}
	if count > 0 {
		push(s.registry.ConnectionsFor(senderID), models.EventMessagesRead, receipt)
	}
	push([]registry.Conn{reader}, models.EventMessagesRead, receipt)
	return count, nil
}

// History returns the conversation between userID and peerID, oldest first.
func (s *DirectService) History(ctx context.Context, userID, peerID int, q models.HistoryQuery) ([]*models.DirectMessage, error) {
	if userID == 0 {
		return nil, ErrNotAuthenticated
	}
	if _, err := s.db.GetUserByID(ctx, peerID); err != nil {
		return nil, lookupError("get peer", err, ErrUnknownRecipient)
	}

	q.Limit = clampLimit(q.Limit, s.historyLimit)
	messages, err := s.db.ListDirectMessages(ctx, userID, peerID, q)
	if err != nil {
		return nil, persistenceError("list direct messages", err)
	}
	return messages, nil
}

func clampLimit(requested, max int) int {
	if requested <= 0 || requested > max {
		return max
	}
	return requested
}
