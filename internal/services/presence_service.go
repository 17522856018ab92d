package services

import (
	"sync"

	"chat-realtime/internal/models"
	"chat-realtime/internal/registry"
	"chat-realtime/pkg/logger"
)

// PresenceService registers connections and announces online/offline
// transitions. Announcements only happen when a user's connection count
// moves between zero and one, so extra tabs never cause flicker.
type PresenceService struct {
	registry *registry.Registry
	groups   *GroupService

	// a user's registry transition and its announcement happen under the
	// same stripe, so observers see online/offline in transition order
	userLocks [64]sync.Mutex
}

func NewPresenceService(reg *registry.Registry, groups *GroupService) *PresenceService {
	return &PresenceService{registry: reg, groups: groups}
}

func (s *PresenceService) lockUser(userID int) func() {
	mu := &s.userLocks[uint(userID)%uint(len(s.userLocks))]
	mu.Lock()
	return mu.Unlock
}

// Connect registers conn and sends it the current online snapshot.
func (s *PresenceService) Connect(conn registry.Conn) {
	unlock := s.lockUser(conn.UserID)
	if first := s.registry.Register(conn); first {
		others := without(s.registry.Connections(), conn.ID)
		push(others, models.EventUserOnline, models.PresenceChange{UserID: conn.UserID, Username: conn.Username})
		logger.Info("User %s (%d) is online", conn.Username, conn.UserID)
	}
	unlock()

	push([]registry.Conn{conn}, models.EventOnlineUsers, models.OnlineSnapshot{UserIDs: s.registry.OnlineUserIDs()})
}

// Disconnect removes the handle, tells each room it had joined that the user
// left, and announces the user offline if this was their last connection.
// Disconnecting an unknown handle does nothing.
func (s *PresenceService) Disconnect(id registry.ConnID) {
	handle, ok := s.registry.Lookup(id)
	if !ok {
		return
	}
	unlock := s.lockUser(handle.UserID)
	defer unlock()

	removal, ok := s.registry.Unregister(id)
	if !ok {
		return
	}
	conn := removal.Conn

	for _, groupID := range removal.Rooms {
		s.groups.NotifyLeft(groupID, conn.UserID, conn.Username)
	}

	if removal.LastConnection {
		push(s.registry.Connections(), models.EventUserOffline, models.PresenceChange{UserID: conn.UserID, Username: conn.Username})
		logger.Info("User %s (%d) is offline", conn.Username, conn.UserID)
	}
}

// OnlineUsers returns a snapshot of online user ids.
func (s *PresenceService) OnlineUsers() []int {
	return s.registry.OnlineUserIDs()
}
