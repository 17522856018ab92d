package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"chat-realtime/internal/config"
	"chat-realtime/internal/models"
	"chat-realtime/internal/registry"
	"chat-realtime/internal/services"
	"chat-realtime/pkg/logger"

	"github.com/gorilla/websocket"
)

const operationTimeout = 10 * time.Second

// Hub owns the live clients and routes their inbound events to the services.
type Hub struct {
	registry *registry.Registry
	presence *services.PresenceService
	direct   *services.DirectService
	groups   *services.GroupService
	typing   *services.TypingService
	cfg      config.WebSocketConfig

	// operations run on this context, not the connection's lifetime, so a
	// disconnect never aborts a write that is already in flight
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHub(
	reg *registry.Registry,
	presence *services.PresenceService,
	direct *services.DirectService,
	groups *services.GroupService,
	typing *services.TypingService,
	cfg config.WebSocketConfig,
) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry: reg,
		presence: presence,
		direct:   direct,
		groups:   groups,
		typing:   typing,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ServeClient takes ownership of an upgraded connection for an authenticated
// user, registers it and starts its pumps.
func (h *Hub) ServeClient(conn *websocket.Conn, user *models.User) *Client {
	client := newClient(h, conn, user.ID, user.Username)
	client.setState(StateConnecting)

	h.presence.Connect(client.Handle())
	client.setState(StateConnected)
	client.log.Debugw("Connection opened", "state", client.State().String(), "live_connections", h.registry.ConnectionCount())

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.WritePump()
	}()
	go func() {
		defer h.wg.Done()
		client.ReadPump()
	}()
	return client
}

func (h *Hub) disconnect(c *Client) {
	prev := State(c.state.Swap(int32(StateDisconnected)))
	if prev == StateDisconnected {
		return
	}
	h.presence.Disconnect(c.id)
	c.log.Debugw("Connection closed", "previous_state", prev.String(), "live_connections", h.registry.ConnectionCount())
}

func (h *Hub) dispatch(c *Client, raw []byte) {
	handle := c.Handle()

	var event models.InboundEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		services.SendError(handle, fmt.Errorf("%w: malformed event", services.ErrInvalidRequest))
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, operationTimeout)
	defer cancel()

	if err := h.handle(ctx, handle, event); err != nil {
		if errors.Is(err, services.ErrPersistence) {
			logger.Error("Event %s from user %d failed: %v", event.Type, handle.UserID, err)
		}
		services.SendError(handle, err)
	}
}

func (h *Hub) handle(ctx context.Context, conn registry.Conn, event models.InboundEvent) error {
	switch event.Type {
	case models.EventSendMessageToUser:
		var p models.SendMessageToUserPayload
		if err := decodePayload(event, &p); err != nil {
			return err
		}
		_, err := h.direct.SendDirect(ctx, conn, p.ReceiverID, p.Message)
		return err

	case models.EventSendMessageToGroup:
		var p models.SendMessageToGroupPayload
		if err := decodePayload(event, &p); err != nil {
			return err
		}
		_, err := h.groups.SendToGroup(ctx, conn, p.GroupID, p.Message)
		return err

	case models.EventJoinGroup:
		var p models.GroupRoomPayload
		if err := decodePayload(event, &p); err != nil {
			return err
		}
		return h.groups.JoinRoom(ctx, conn, p.GroupID)

	case models.EventLeaveGroup:
		var p models.GroupRoomPayload
		if err := decodePayload(event, &p); err != nil {
			return err
		}
		return h.groups.LeaveRoom(ctx, conn, p.GroupID)

	case models.EventStartTyping, models.EventStopTyping:
		var p models.TypingPayload
		if err := decodePayload(event, &p); err != nil {
			return err
		}
		if event.Type == models.EventStartTyping {
			return h.typing.StartTyping(conn, p.ReceiverID)
		}
		return h.typing.StopTyping(conn, p.ReceiverID)

	case models.EventMarkMessagesAsRead:
		var p models.MarkMessagesAsReadPayload
		if err := decodePayload(event, &p); err != nil {
			return err
		}
		_, err := h.direct.MarkMessagesAsRead(ctx, conn, p.SenderID)
		return err

	default:
		return fmt.Errorf("%w: unknown event type %q", services.ErrInvalidRequest, event.Type)
	}
}

func decodePayload(event models.InboundEvent, v interface{}) error {
	if len(event.Payload) == 0 {
		return fmt.Errorf("%w: %s requires a payload", services.ErrInvalidRequest, event.Type)
	}
	if err := json.Unmarshal(event.Payload, v); err != nil {
		return fmt.Errorf("%w: invalid %s payload", services.ErrInvalidRequest, event.Type)
	}
	return nil
}

// Shutdown closes every client and waits for their pumps to exit.
func (h *Hub) Shutdown(timeout time.Duration) error {
	for _, conn := range h.registry.Connections() {
		if client, ok := conn.Sink.(*Client); ok && client.State() != StateDisconnected {
			client.close()
		}
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	defer h.cancel()
	select {
	case <-done:
		logger.Info("All websocket clients closed")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timed out after %s waiting for websocket clients", timeout)
	}
}
