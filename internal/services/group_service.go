package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"chat-realtime/internal/database"
	"chat-realtime/internal/models"
	"chat-realtime/internal/registry"
	"chat-realtime/pkg/logger"
)

type GroupService struct {
	db           database.Database
	registry     *registry.Registry
	historyLimit int

	// per-group mutexes serialise persist+broadcast so that delivery order
	// matches commit order within this process
	locks sync.Map
}

func NewGroupService(db database.Database, reg *registry.Registry, historyLimit int) *GroupService {
	return &GroupService{db: db, registry: reg, historyLimit: historyLimit}
}

func (s *GroupService) lockGroup(groupID int) func() {
	v, _ := s.locks.LoadOrStore(groupID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// SendToGroup persists a message from a current member and broadcasts it to
// every connection subscribed to the group room, the sender's included.
func (s *GroupService) SendToGroup(ctx context.Context, sender registry.Conn, groupID int, body string) (*models.GroupMessage, error) {
	if sender.UserID == 0 {
		return nil, ErrNotAuthenticated
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalidRequest)
	}
	if err := s.requireMember(ctx, groupID, sender.UserID); err != nil {
		return nil, err
	}

	unlock := s.lockGroup(groupID)
	defer unlock()

	msg := &models.GroupMessage{
		GroupID:        groupID,
		SenderID:       sender.UserID,
		SenderUsername: sender.Username,
		Body:           body,
	}
	if err := s.db.SaveGroupMessage(ctx, msg); err != nil {
		return nil, persistenceError("save group message", err)
	}

	push(s.liveRoom(ctx, groupID), models.EventReceiveGroupMessage, *msg)
	return msg, nil
}

// liveRoom returns the room's connections whose user is still a member.
// Connections of users that lost membership are dropped from the room.
func (s *GroupService) liveRoom(ctx context.Context, groupID int) []registry.Conn {
	conns := s.registry.RoomConnections(groupID)
	membership := make(map[int]bool)
	live := conns[:0:0]

	for _, c := range conns {
		member, checked := membership[c.UserID]
		if !checked {
			var err error
			member, err = s.db.IsGroupMember(ctx, groupID, c.UserID)
			if err != nil {
				// keep delivering on a lookup failure; the join-time check still holds
				logger.Error("Error re-checking membership of user %d in group %d: %v", c.UserID, groupID, err)
				member = true
			}
			membership[c.UserID] = member
			if !member {
				s.registry.LeaveRoomForUser(c.UserID, groupID)
				logger.Info("User %d is no longer a member of group %d; removed from room", c.UserID, groupID)
			}
		}
		if member {
			live = append(live, c)
		}
	}
	return live
}

// JoinRoom subscribes a member's connection to the group room and announces
// it to the room, the joiner included.
func (s *GroupService) JoinRoom(ctx context.Context, conn registry.Conn, groupID int) error {
	if conn.UserID == 0 {
		return ErrNotAuthenticated
	}
	if err := s.requireMember(ctx, groupID, conn.UserID); err != nil {
		return err
	}

	event := models.GroupPresence{UserID: conn.UserID, Username: conn.Username, GroupID: groupID}
	if !s.registry.JoinRoom(conn.ID, groupID) {
		// already subscribed: acknowledge without re-announcing
		push([]registry.Conn{conn}, models.EventUserJoinedGroup, event)
		return nil
	}

	push(s.registry.RoomConnections(groupID), models.EventUserJoinedGroup, event)
	logger.Debug("User %s joined room of group %d", conn.Username, groupID)
	return nil
}

// LeaveRoom unsubscribes the connection and tells the remaining subscribers.
// Leaving a room that was never joined only acknowledges the caller.
func (s *GroupService) LeaveRoom(ctx context.Context, conn registry.Conn, groupID int) error {
	if conn.UserID == 0 {
		return ErrNotAuthenticated
	}

	event := models.GroupPresence{UserID: conn.UserID, Username: conn.Username, GroupID: groupID}
	if s.registry.LeaveRoom(conn.ID, groupID) {
		s.NotifyLeft(groupID, conn.UserID, conn.Username)
	}
	push([]registry.Conn{conn}, models.EventUserLeftGroup, event)
	return nil
}

// NotifyLeft tells the current subscribers of a room that userID left it.
func (s *GroupService) NotifyLeft(groupID, userID int, username string) {
	push(s.registry.RoomConnections(groupID), models.EventUserLeftGroup, models.GroupPresence{
		UserID:   userID,
		Username: username,
		GroupID:  groupID,
	})
}

func (s *GroupService) CreateGroup(ctx context.Context, creatorID int, req *models.CreateGroupRequest) (*models.Group, error) {
	if creatorID == 0 {
		return nil, ErrNotAuthenticated
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", ErrInvalidRequest)
	}

	group, err := s.db.CreateGroup(ctx, name, creatorID)
	if err != nil {
		return nil, persistenceError("create group", err)
	}
	logger.Info("User %d created group %d (%s)", creatorID, group.ID, group.Name)
	return group, nil
}

func (s *GroupService) ListUserGroups(ctx context.Context, userID int) ([]*models.Group, error) {
	groups, err := s.db.ListUserGroups(ctx, userID)
	if err != nil {
		return nil, persistenceError("list groups", err)
	}
	return groups, nil
}

func (s *GroupService) GetMembers(ctx context.Context, requesterID, groupID int) ([]*models.GroupMember, error) {
	if err := s.requireMember(ctx, groupID, requesterID); err != nil {
		return nil, err
	}
	members, err := s.db.GetGroupMembers(ctx, groupID)
	if err != nil {
		return nil, persistenceError("list members", err)
	}
	return members, nil
}

// History returns a page of group messages, oldest first. Members only.
func (s *GroupService) History(ctx context.Context, requesterID, groupID int, q models.HistoryQuery) ([]*models.GroupMessage, error) {
	if err := s.requireMember(ctx, groupID, requesterID); err != nil {
		return nil, err
	}
	q.Limit = clampLimit(q.Limit, s.historyLimit)
	messages, err := s.db.ListGroupMessages(ctx, groupID, q)
	if err != nil {
		return nil, persistenceError("list group messages", err)
	}
	return messages, nil
}

// AddMember adds targetID to the group. Only admins may add other users.
func (s *GroupService) AddMember(ctx context.Context, requesterID, groupID, targetID int) error {
	if err := s.requireMember(ctx, groupID, requesterID); err != nil {
		return err
	}
	if targetID != requesterID {
		if err := s.requireAdmin(ctx, groupID, requesterID); err != nil {
			return err
		}
	}
	if _, err := s.db.GetUserByID(ctx, targetID); err != nil {
		return lookupError("get user", err, ErrUnknownRecipient)
	}

	if err := s.db.AddMember(ctx, groupID, targetID, false); err != nil {
		return persistenceError("add member", err)
	}
	logger.Info("User %d added user %d to group %d", requesterID, targetID, groupID)
	return nil
}

// RemoveMember removes targetID from the group. Admins may remove anyone;
// other members may only remove themselves. The removed user's connections
// are taken out of the room and the room is told.
func (s *GroupService) RemoveMember(ctx context.Context, requesterID, groupID, targetID int) error {
	if err := s.requireMember(ctx, groupID, requesterID); err != nil {
		return err
	}
	if targetID != requesterID {
		if err := s.requireAdmin(ctx, groupID, requesterID); err != nil {
			return err
		}
		if err := s.requireTargetMember(ctx, groupID, targetID); err != nil {
			return err
		}
	}

	if err := s.db.RemoveMember(ctx, groupID, targetID); err != nil {
		return persistenceError("remove member", err)
	}

	removed := s.registry.LeaveRoomForUser(targetID, groupID)
	if len(removed) > 0 {
		event := models.GroupPresence{UserID: targetID, Username: removed[0].Username, GroupID: groupID}
		push(append(s.registry.RoomConnections(groupID), removed...), models.EventUserLeftGroup, event)
	}
	logger.Info("User %d removed user %d from group %d", requesterID, targetID, groupID)
	return nil
}

func (s *GroupService) PromoteAdmin(ctx context.Context, requesterID, groupID, targetID int) error {
	return s.setAdmin(ctx, requesterID, groupID, targetID, true)
}

func (s *GroupService) DemoteAdmin(ctx context.Context, requesterID, groupID, targetID int) error {
	return s.setAdmin(ctx, requesterID, groupID, targetID, false)
}

func (s *GroupService) setAdmin(ctx context.Context, requesterID, groupID, targetID int, isAdmin bool) error {
	if err := s.requireMember(ctx, groupID, requesterID); err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, groupID, requesterID); err != nil {
		return err
	}
	if err := s.requireTargetMember(ctx, groupID, targetID); err != nil {
		return err
	}

	if err := s.db.SetAdmin(ctx, groupID, targetID, isAdmin); err != nil {
		return lookupError("set admin", err, ErrNotAMember)
	}
	logger.Info("User %d set admin=%t for user %d in group %d", requesterID, isAdmin, targetID, groupID)
	return nil
}

// requireMember checks that the group exists and userID belongs to it.
func (s *GroupService) requireMember(ctx context.Context, groupID, userID int) error {
	if userID == 0 {
		return ErrNotAuthenticated
	}
	if _, err := s.db.GetGroupByID(ctx, groupID); err != nil {
		return lookupError("get group", err, ErrUnknownGroup)
	}
	member, err := s.db.IsGroupMember(ctx, groupID, userID)
	if err != nil {
		return persistenceError("check membership", err)
	}
	if !member {
		return ErrNotAMember
	}
	return nil
}

func (s *GroupService) requireTargetMember(ctx context.Context, groupID, userID int) error {
	member, err := s.db.IsGroupMember(ctx, groupID, userID)
	if err != nil {
		return persistenceError("check membership", err)
	}
	if !member {
		return fmt.Errorf("%w: user %d", ErrNotAMember, userID)
	}
	return nil
}

func (s *GroupService) requireAdmin(ctx context.Context, groupID, userID int) error {
	admin, err := s.db.IsGroupAdmin(ctx, groupID, userID)
	if err != nil {
		return persistenceError("check admin", err)
	}
	if !admin {
		return ErrNotAuthorized
	}
	return nil
}
