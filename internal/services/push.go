package services

import (
	"chat-realtime/internal/models"
	"chat-realtime/internal/registry"
	"chat-realtime/pkg/logger"
)

// push encodes the event once and queues it on every connection. It returns
// how many connections accepted the frame.
func push(conns []registry.Conn, eventType models.EventType, payload interface{}) int {
	if len(conns) == 0 {
		return 0
	}

	data, err := models.Encode(eventType, payload)
	if err != nil {
		logger.Error("Error marshaling %s event: %v", eventType, err)
		return 0
	}

	delivered := 0
	for _, c := range conns {
		if c.Sink.Send(data) {
			delivered++
		} else {
			logger.Debug("Dropped %s event for connection %s of user %d", eventType, c.ID, c.UserID)
		}
	}
	return delivered
}

// SendError pushes an Error event describing err to a single connection.
func SendError(conn registry.Conn, err error) {
	push([]registry.Conn{conn}, models.EventError, models.ErrorPayload{
		Code:    ErrorCode(err),
		Message: err.Error(),
	})
}

func without(conns []registry.Conn, id registry.ConnID) []registry.Conn {
	out := conns[:0:0]
	for _, c := range conns {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}
