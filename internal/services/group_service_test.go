package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"chat-realtime/internal/database"
	"chat-realtime/internal/models"
	"chat-realtime/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const groupID = 5

var friends = &models.Group{ID: groupID, Name: "friends", CreatedBy: alice.ID}

// expectGroup registers group 5 with the given members; admins is a subset.
func expectGroup(e *testEnv, members []int, admins []int) {
	e.db.On("GetGroupByID", mock.Anything, groupID).Return(friends, nil)
	for _, userID := range []int{alice.ID, bob.ID, carol.ID, 4} {
		e.db.On("IsGroupMember", mock.Anything, groupID, userID).Return(contains(members, userID), nil).Maybe()
		e.db.On("IsGroupAdmin", mock.Anything, groupID, userID).Return(contains(admins, userID), nil).Maybe()
	}
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestSendToGroupByNonMember(t *testing.T) {
	e := newTestEnv()
	expectGroup(e, []int{alice.ID}, nil)
	c, sink := e.connect(carol.ID, carol.Username)

	_, err := e.groups.SendToGroup(context.Background(), c, groupID, "let me in")
	assert.ErrorIs(t, err, ErrNotAMember)
	assert.Empty(t, sink.events(t))
	e.db.AssertNotCalled(t, "SaveGroupMessage", mock.Anything, mock.Anything)
}

func TestSendToUnknownGroup(t *testing.T) {
	e := newTestEnv()
	a, _ := e.connect(alice.ID, alice.Username)
	e.db.On("GetGroupByID", mock.Anything, 404).Return(nil, database.ErrNotFound)

	_, err := e.groups.SendToGroup(context.Background(), a, 404, "hello")
	assert.ErrorIs(t, err, ErrUnknownGroup)
	e.db.AssertNotCalled(t, "SaveGroupMessage", mock.Anything, mock.Anything)
}

func TestGroupBroadcastReachesEveryJoinedConnection(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	expectGroup(e, []int{alice.ID, bob.ID}, []int{alice.ID})
	e.db.On("SaveGroupMessage", mock.Anything, mock.AnythingOfType("*models.GroupMessage")).
		Run(func(args mock.Arguments) { args.Get(1).(*models.GroupMessage).ID = 77 }).
		Return(nil).Once()

	a, aSink := e.connect(alice.ID, alice.Username)
	b, bSink := e.connect(bob.ID, bob.Username)
	require.NoError(t, e.groups.JoinRoom(ctx, a, groupID))
	require.NoError(t, e.groups.JoinRoom(ctx, b, groupID))

	_, err := e.groups.SendToGroup(ctx, a, groupID, "hello group")
	require.NoError(t, err)

	for _, sink := range []*recordingSink{aSink, bSink} {
		got := ofType[models.GroupMessage](t, sink, models.EventReceiveGroupMessage)
		require.Len(t, got, 1)
		assert.Equal(t, "hello group", got[0].Body)
		assert.Equal(t, groupID, got[0].GroupID)
		assert.Equal(t, 77, got[0].ID)
	}
	e.db.AssertExpectations(t)
}

func TestGroupBroadcastSkipsUsersNoLongerMembers(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	e.db.On("GetGroupByID", mock.Anything, groupID).Return(friends, nil)
	e.db.On("IsGroupMember", mock.Anything, groupID, alice.ID).Return(true, nil)
	e.db.On("IsGroupMember", mock.Anything, groupID, bob.ID).Return(true, nil).Once()
	e.db.On("IsGroupMember", mock.Anything, groupID, bob.ID).Return(false, nil)
	e.db.On("SaveGroupMessage", mock.Anything, mock.Anything).Return(nil).Once()

	a, _ := e.connect(alice.ID, alice.Username)
	b, bSink := e.connect(bob.ID, bob.Username)
	require.NoError(t, e.groups.JoinRoom(ctx, a, groupID))
	require.NoError(t, e.groups.JoinRoom(ctx, b, groupID))

	_, err := e.groups.SendToGroup(ctx, a, groupID, "members only")
	require.NoError(t, err)

	assert.Empty(t, ofType[models.GroupMessage](t, bSink, models.EventReceiveGroupMessage))
	assert.Empty(t, e.registry.RoomsFor(b.ID), "stale subscription is dropped")
}

func TestJoinRoomRequiresMembership(t *testing.T) {
	e := newTestEnv()
	expectGroup(e, []int{alice.ID}, nil)
	c, _ := e.connect(carol.ID, carol.Username)

	err := e.groups.JoinRoom(context.Background(), c, groupID)
	assert.ErrorIs(t, err, ErrNotAMember)
	assert.Empty(t, e.registry.RoomConnections(groupID))
}

func TestJoinAndLeaveRoomAnnouncements(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	expectGroup(e, []int{alice.ID, bob.ID}, nil)

	a, aSink := e.connect(alice.ID, alice.Username)
	b, bSink := e.connect(bob.ID, bob.Username)
	require.NoError(t, e.groups.JoinRoom(ctx, a, groupID))
	require.NoError(t, e.groups.JoinRoom(ctx, b, groupID))

	joined := ofType[models.GroupPresence](t, aSink, models.EventUserJoinedGroup)
	require.Len(t, joined, 2, "alice sees her own join and bob's")
	assert.Equal(t, bob.ID, joined[1].UserID)

	// joining twice only re-acknowledges the joiner
	require.NoError(t, e.groups.JoinRoom(ctx, b, groupID))
	assert.Len(t, ofType[models.GroupPresence](t, aSink, models.EventUserJoinedGroup), 2)
	assert.Len(t, ofType[models.GroupPresence](t, bSink, models.EventUserJoinedGroup), 2)

	require.NoError(t, e.groups.LeaveRoom(ctx, b, groupID))
	left := ofType[models.GroupPresence](t, aSink, models.EventUserLeftGroup)
	require.Len(t, left, 1)
	assert.Equal(t, models.GroupPresence{UserID: bob.ID, Username: "bob", GroupID: groupID}, left[0])
	assert.Len(t, ofType[models.GroupPresence](t, bSink, models.EventUserLeftGroup), 1)
	assert.Len(t, e.registry.RoomConnections(groupID), 1)
}

func TestRemoveMemberAuthorization(t *testing.T) {
	tests := []struct {
		name      string
		requester int
		target    int
		wantErr   error
	}{
		{name: "non-admin removes other", requester: bob.ID, target: carol.ID, wantErr: ErrNotAuthorized},
		{name: "admin removes other", requester: alice.ID, target: carol.ID},
		{name: "non-admin removes self", requester: bob.ID, target: bob.ID},
		{name: "non-member requester", requester: 4, target: carol.ID, wantErr: ErrNotAMember},
		{name: "admin removes non-member", requester: alice.ID, target: 4, wantErr: ErrNotAMember},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv()
			expectGroup(e, []int{alice.ID, bob.ID, carol.ID}, []int{alice.ID})
			e.db.On("RemoveMember", mock.Anything, groupID, tt.target).Return(nil).Maybe()

			err := e.groups.RemoveMember(context.Background(), tt.requester, groupID, tt.target)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				e.db.AssertNotCalled(t, "RemoveMember", mock.Anything, mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			e.db.AssertCalled(t, "RemoveMember", mock.Anything, groupID, tt.target)
		})
	}
}

func TestRemoveMemberForcesRoomLeave(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	expectGroup(e, []int{alice.ID, carol.ID}, []int{alice.ID})
	e.db.On("RemoveMember", mock.Anything, groupID, carol.ID).Return(nil).Once()

	a, aSink := e.connect(alice.ID, alice.Username)
	c, cSink := e.connect(carol.ID, carol.Username)
	require.NoError(t, e.groups.JoinRoom(ctx, a, groupID))
	require.NoError(t, e.groups.JoinRoom(ctx, c, groupID))

	require.NoError(t, e.groups.RemoveMember(ctx, alice.ID, groupID, carol.ID))

	assert.Empty(t, e.registry.RoomsFor(c.ID))
	for _, sink := range []*recordingSink{aSink, cSink} {
		left := ofType[models.GroupPresence](t, sink, models.EventUserLeftGroup)
		require.Len(t, left, 1)
		assert.Equal(t, carol.ID, left[0].UserID)
	}
}

func TestAddMemberAuthorization(t *testing.T) {
	tests := []struct {
		name      string
		requester int
		target    int
		setup     func(e *testEnv)
		wantErr   error
	}{
		{name: "non-admin adds other", requester: bob.ID, target: carol.ID, wantErr: ErrNotAuthorized},
		{name: "non-member requester", requester: carol.ID, target: 4, wantErr: ErrNotAMember},
		{
			name: "admin adds unknown user", requester: alice.ID, target: 4,
			setup: func(e *testEnv) {
				e.db.On("GetUserByID", mock.Anything, 4).Return(nil, database.ErrNotFound)
			},
			wantErr: ErrUnknownRecipient,
		},
		{
			name: "admin adds user", requester: alice.ID, target: carol.ID,
			setup: func(e *testEnv) {
				e.db.On("GetUserByID", mock.Anything, carol.ID).Return(carol, nil)
				e.db.On("AddMember", mock.Anything, groupID, carol.ID, false).Return(nil).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv()
			expectGroup(e, []int{alice.ID, bob.ID}, []int{alice.ID})
			if tt.setup != nil {
				tt.setup(e)
			}

			err := e.groups.AddMember(context.Background(), tt.requester, groupID, tt.target)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				e.db.AssertNotCalled(t, "AddMember", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			e.db.AssertExpectations(t)
		})
	}
}

func TestAdminChangesRequireAdmin(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	expectGroup(e, []int{alice.ID, bob.ID, carol.ID}, []int{alice.ID})
	e.db.On("SetAdmin", mock.Anything, groupID, carol.ID, true).Return(nil).Once()
	e.db.On("SetAdmin", mock.Anything, groupID, alice.ID, false).Return(nil).Once()

	assert.ErrorIs(t, e.groups.PromoteAdmin(ctx, bob.ID, groupID, carol.ID), ErrNotAuthorized)
	assert.ErrorIs(t, e.groups.PromoteAdmin(ctx, alice.ID, groupID, 4), ErrNotAMember)
	require.NoError(t, e.groups.PromoteAdmin(ctx, alice.ID, groupID, carol.ID))
	require.NoError(t, e.groups.DemoteAdmin(ctx, alice.ID, groupID, alice.ID))
	e.db.AssertExpectations(t)
}

func TestCreateGroup(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	e.db.On("CreateGroup", mock.Anything, "friends", alice.ID).Return(friends, nil).Once()

	_, err := e.groups.CreateGroup(ctx, alice.ID, &models.CreateGroupRequest{Name: "  "})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	group, err := e.groups.CreateGroup(ctx, alice.ID, &models.CreateGroupRequest{Name: " friends "})
	require.NoError(t, err)
	assert.Equal(t, friends, group)
	e.db.AssertExpectations(t)
}

func TestGroupHistoryMembersOnly(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	expectGroup(e, []int{alice.ID}, nil)
	e.db.On("ListGroupMessages", mock.Anything, groupID, models.HistoryQuery{Limit: 20}).
		Return([]*models.GroupMessage{{ID: 1}}, nil).Once()

	_, err := e.groups.History(ctx, carol.ID, groupID, models.HistoryQuery{Limit: 20})
	assert.ErrorIs(t, err, ErrNotAMember)

	got, err := e.groups.History(ctx, alice.ID, groupID, models.HistoryQuery{Limit: 20})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMembershipLookupFailureIsPersistenceError(t *testing.T) {
	e := newTestEnv()
	e.db.On("GetGroupByID", mock.Anything, groupID).Return(friends, nil)
	e.db.On("IsGroupMember", mock.Anything, groupID, alice.ID).Return(false, errors.New("timeout"))

	a := registry.Conn{ID: "c1", UserID: alice.ID}
	_, err := e.groups.SendToGroup(context.Background(), a, groupID, "hi")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, "persistence_error", ErrorCode(err))
}

func TestConcurrentGroupSendsDeliverInPersistedOrder(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	expectGroup(e, []int{alice.ID, bob.ID}, nil)

	var nextID atomic.Int64
	e.db.On("SaveGroupMessage", mock.Anything, mock.AnythingOfType("*models.GroupMessage")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.GroupMessage).ID = int(nextID.Add(1))
		}).
		Return(nil)

	a, aSink := e.connect(alice.ID, alice.Username)
	b, bSink := e.connect(bob.ID, bob.Username)
	require.NoError(t, e.groups.JoinRoom(ctx, a, groupID))
	require.NoError(t, e.groups.JoinRoom(ctx, b, groupID))

	const senders, perSender = 8, 25
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		sender := a
		if i%2 == 1 {
			sender = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				_, err := e.groups.SendToGroup(ctx, sender, groupID, "msg")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	for _, sink := range []*recordingSink{aSink, bSink} {
		got := ofType[models.GroupMessage](t, sink, models.EventReceiveGroupMessage)
		require.Len(t, got, senders*perSender)
		ids := make([]int, len(got))
		for i, m := range got {
			ids[i] = m.ID
		}
		assert.True(t, sort.IntsAreSorted(ids), "frames must arrive in persisted order")
	}
}
