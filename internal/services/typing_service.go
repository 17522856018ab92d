package services

import (
	"chat-realtime/internal/models"
	"chat-realtime/internal/registry"
)

// TypingService relays ephemeral typing signals. Nothing is stored and a
// signal for an offline receiver is dropped.
type TypingService struct {
	registry *registry.Registry
}

func NewTypingService(reg *registry.Registry) *TypingService {
	return &TypingService{registry: reg}
}

func (s *TypingService) StartTyping(sender registry.Conn, receiverID int) error {
	return s.relay(sender, receiverID, models.EventUserTyping)
}

func (s *TypingService) StopTyping(sender registry.Conn, receiverID int) error {
	return s.relay(sender, receiverID, models.EventUserStoppedTyping)
}

func (s *TypingService) relay(sender registry.Conn, receiverID int, eventType models.EventType) error {
	if sender.UserID == 0 {
		return ErrNotAuthenticated
	}
	push(s.registry.ConnectionsFor(receiverID), eventType, models.TypingSignal{
		SenderID:       sender.UserID,
		SenderUsername: sender.Username,
	})
	return nil
}
