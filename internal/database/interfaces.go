package database

import (
	"context"
	"errors"

	"chat-realtime/internal/models"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
}

type GroupRepository interface {
	// CreateGroup stores the group and makes the creator its first admin.
	CreateGroup(ctx context.Context, name string, creatorID int) (*models.Group, error)
	GetGroupByID(ctx context.Context, id int) (*models.Group, error)
	ListUserGroups(ctx context.Context, userID int) ([]*models.Group, error)
}

type MembershipRepository interface {
	AddMember(ctx context.Context, groupID, userID int, isAdmin bool) error
	RemoveMember(ctx context.Context, groupID, userID int) error
	SetAdmin(ctx context.Context, groupID, userID int, isAdmin bool) error
	IsGroupMember(ctx context.Context, groupID, userID int) (bool, error)
	IsGroupAdmin(ctx context.Context, groupID, userID int) (bool, error)
	GetGroupMembers(ctx context.Context, groupID int) ([]*models.GroupMember, error)
}

type MessageRepository interface {
	// SaveDirectMessage assigns ID and SentAtUTC on msg.
	SaveDirectMessage(ctx context.Context, msg *models.DirectMessage) error
	// MarkDirectMessageRead reports whether the message transitioned to read.
	MarkDirectMessageRead(ctx context.Context, id int) (bool, error)
	// MarkDirectMessagesRead marks every unread message from senderID to
	// receiverID as read and returns how many changed.
	MarkDirectMessagesRead(ctx context.Context, senderID, receiverID int) (int64, error)
	ListDirectMessages(ctx context.Context, userID, peerID int, q models.HistoryQuery) ([]*models.DirectMessage, error)

	// SaveGroupMessage assigns ID and SentAtUTC on msg.
	SaveGroupMessage(ctx context.Context, msg *models.GroupMessage) error
	ListGroupMessages(ctx context.Context, groupID int, q models.HistoryQuery) ([]*models.GroupMessage, error)
}

type Database interface {
	UserRepository
	GroupRepository
	MembershipRepository
	MessageRepository
	Close() error
}
