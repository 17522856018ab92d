package database_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chat-realtime/internal/database"
	"chat-realtime/internal/database/dbmock"
	"chat-realtime/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	values  map[string]string
	failGet bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string]string)}
}

func (s *fakeStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return "", errors.New("connection refused")
	}
	v, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (s *fakeStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *fakeStore) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = value
	return true, nil
}

func TestCachedMembershipHitsStoreOnce(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()
	db := new(dbmock.MockDatabase)
	db.On("IsGroupMember", mock.Anything, 1, 2).Return(true, nil).Once()

	cached := database.NewCachedDatabase(db, newFakeStore(), time.Minute)

	for i := 0; i < 3; i++ {
		member, err := cached.IsGroupMember(ctx, 1, 2)
		require.NoError(t, err)
		assert.True(t, member)
	}
	db.AssertExpectations(t)
}

func TestCachedMembershipCachesNegativeAnswers(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()
	db := new(dbmock.MockDatabase)
	db.On("IsGroupAdmin", mock.Anything, 1, 2).Return(false, nil).Once()

	cached := database.NewCachedDatabase(db, newFakeStore(), time.Minute)

	for i := 0; i < 2; i++ {
		admin, err := cached.IsGroupAdmin(ctx, 1, 2)
		require.NoError(t, err)
		assert.False(t, admin)
	}
	db.AssertExpectations(t)
}

func TestCachedMembershipInvalidatedOnRemove(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()
	db := new(dbmock.MockDatabase)
	db.On("IsGroupMember", mock.Anything, 1, 2).Return(true, nil).Once()
	db.On("RemoveMember", mock.Anything, 1, 2).Return(nil).Once()
	db.On("IsGroupMember", mock.Anything, 1, 2).Return(false, nil).Once()

	cached := database.NewCachedDatabase(db, newFakeStore(), time.Minute)

	member, err := cached.IsGroupMember(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, member)

	require.NoError(t, cached.RemoveMember(ctx, 1, 2))

	member, err = cached.IsGroupMember(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, member)
	db.AssertExpectations(t)
}

func TestCachedMembershipLoadRacingRemoveDoesNotRefill(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()
	db := new(dbmock.MockDatabase)

	loading := make(chan struct{})
	release := make(chan struct{})
	db.On("IsGroupMember", mock.Anything, 1, 2).
		Run(func(mock.Arguments) {
			close(loading)
			<-release
		}).
		Return(true, nil).Once()
	db.On("RemoveMember", mock.Anything, 1, 2).Return(nil).Once()
	db.On("IsGroupMember", mock.Anything, 1, 2).Return(false, nil).Once()

	cached := database.NewCachedDatabase(db, newFakeStore(), time.Minute)

	stale := make(chan bool)
	go func() {
		member, err := cached.IsGroupMember(ctx, 1, 2)
		assert.NoError(t, err)
		stale <- member
	}()

	<-loading
	require.NoError(t, cached.RemoveMember(ctx, 1, 2))
	close(release)
	assert.True(t, <-stale, "the in-flight read answers with what it loaded")

	member, err := cached.IsGroupMember(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, member, "removed user must not be served from a refilled cache entry")
	db.AssertExpectations(t)
}

func TestCachedMembershipInvalidatedOnPromote(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()
	db := new(dbmock.MockDatabase)
	db.On("IsGroupAdmin", mock.Anything, 1, 2).Return(false, nil).Once()
	db.On("SetAdmin", mock.Anything, 1, 2, true).Return(nil).Once()
	db.On("IsGroupAdmin", mock.Anything, 1, 2).Return(true, nil).Once()

	cached := database.NewCachedDatabase(db, newFakeStore(), time.Minute)

	admin, _ := cached.IsGroupAdmin(ctx, 1, 2)
	assert.False(t, admin)
	require.NoError(t, cached.SetAdmin(ctx, 1, 2, true))
	admin, _ = cached.IsGroupAdmin(ctx, 1, 2)
	assert.True(t, admin)
	db.AssertExpectations(t)
}

func TestCachedMembershipFallsThroughOnStoreError(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()
	db := new(dbmock.MockDatabase)
	db.On("IsGroupMember", mock.Anything, 1, 2).Return(true, nil).Twice()

	store := newFakeStore()
	store.failGet = true
	cached := database.NewCachedDatabase(db, store, time.Minute)

	for i := 0; i < 2; i++ {
		member, err := cached.IsGroupMember(ctx, 1, 2)
		require.NoError(t, err)
		assert.True(t, member)
	}
	db.AssertExpectations(t)
}

func TestCachedMembershipDoesNotCacheErrors(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()
	db := new(dbmock.MockDatabase)
	db.On("IsGroupMember", mock.Anything, 1, 2).Return(false, errors.New("db down")).Once()
	db.On("IsGroupMember", mock.Anything, 1, 2).Return(true, nil).Once()

	cached := database.NewCachedDatabase(db, newFakeStore(), time.Minute)

	_, err := cached.IsGroupMember(ctx, 1, 2)
	assert.Error(t, err)

	member, err := cached.IsGroupMember(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, member)
	db.AssertExpectations(t)
}
