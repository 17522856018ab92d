// Package dbmock provides a testify mock of database.Database.
package dbmock

import (
	"context"

	"chat-realtime/internal/database"
	"chat-realtime/internal/models"

	"github.com/stretchr/testify/mock"
)

var _ database.Database = (*MockDatabase)(nil)

type MockDatabase struct {
	mock.Mock
}

func (m *MockDatabase) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) != nil {
		return args.Get(0).(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	args := m.Called(ctx, req)
	if args.Get(0) != nil {
		return args.Get(0).(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) != nil {
		return args.Get(0).(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) CreateGroup(ctx context.Context, name string, creatorID int) (*models.Group, error) {
	args := m.Called(ctx, name, creatorID)
	if args.Get(0) != nil {
		return args.Get(0).(*models.Group), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) GetGroupByID(ctx context.Context, id int) (*models.Group, error) {
	args := m.Called(ctx, id)
	if args.Get(0) != nil {
		return args.Get(0).(*models.Group), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) ListUserGroups(ctx context.Context, userID int) ([]*models.Group, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).([]*models.Group), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) AddMember(ctx context.Context, groupID, userID int, isAdmin bool) error {
	return m.Called(ctx, groupID, userID, isAdmin).Error(0)
}

func (m *MockDatabase) RemoveMember(ctx context.Context, groupID, userID int) error {
	return m.Called(ctx, groupID, userID).Error(0)
}

func (m *MockDatabase) SetAdmin(ctx context.Context, groupID, userID int, isAdmin bool) error {
	return m.Called(ctx, groupID, userID, isAdmin).Error(0)
}

func (m *MockDatabase) IsGroupMember(ctx context.Context, groupID, userID int) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDatabase) IsGroupAdmin(ctx context.Context, groupID, userID int) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDatabase) GetGroupMembers(ctx context.Context, groupID int) ([]*models.GroupMember, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) != nil {
		return args.Get(0).([]*models.GroupMember), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) SaveDirectMessage(ctx context.Context, msg *models.DirectMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockDatabase) MarkDirectMessageRead(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockDatabase) MarkDirectMessagesRead(ctx context.Context, senderID, receiverID int) (int64, error) {
	args := m.Called(ctx, senderID, receiverID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDatabase) ListDirectMessages(ctx context.Context, userID, peerID int, q models.HistoryQuery) ([]*models.DirectMessage, error) {
	args := m.Called(ctx, userID, peerID, q)
	if args.Get(0) != nil {
		return args.Get(0).([]*models.DirectMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) SaveGroupMessage(ctx context.Context, msg *models.GroupMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockDatabase) ListGroupMessages(ctx context.Context, groupID int, q models.HistoryQuery) ([]*models.GroupMessage, error) {
	args := m.Called(ctx, groupID, q)
	if args.Get(0) != nil {
		return args.Get(0).([]*models.GroupMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) Close() error {
	return nil
}
