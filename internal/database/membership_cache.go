package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-realtime/pkg/logger"

	"github.com/go-redis/redis/v8"
)

var _ Database = (*PostgresDB)(nil)
var _ Database = (*CachedDatabase)(nil)

// KeyValueStore is the subset of redis commands the membership cache needs.
// Get returns redis.Nil on a miss. SetNX reports whether the key was written.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

type redisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (KeyValueStore, func() error, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	logger.Info("Connected to redis at %s", addr)
	return &redisStore{client: client}, client.Close, nil
}

func (s *redisStore) Get(ctx context.Context, key string) (string, error) {
	return s.client.Get(ctx, key).Result()
}

func (s *redisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

// tombstone marks a key invalidated by a membership change. While it lives,
// reads go to the database and fills are refused, so a load that started
// before the change can never write its stale answer back.
const tombstone = "-"

// CachedDatabase answers membership and admin checks from a key/value cache,
// falling through to the wrapped Database on a miss or a cache error. Every
// membership mutation replaces the affected keys with a tombstone.
type CachedDatabase struct {
	Database
	store KeyValueStore
	ttl   time.Duration
}

func NewCachedDatabase(db Database, store KeyValueStore, ttl time.Duration) *CachedDatabase {
	return &CachedDatabase{Database: db, store: store, ttl: ttl}
}

func memberKey(groupID, userID int) string {
	return fmt.Sprintf("chat:group:%d:member:%d", groupID, userID)
}

func adminKey(groupID, userID int) string {
	return fmt.Sprintf("chat:group:%d:admin:%d", groupID, userID)
}

func (c *CachedDatabase) IsGroupMember(ctx context.Context, groupID, userID int) (bool, error) {
	return c.cachedBool(ctx, memberKey(groupID, userID), func() (bool, error) {
		return c.Database.IsGroupMember(ctx, groupID, userID)
	})
}

func (c *CachedDatabase) IsGroupAdmin(ctx context.Context, groupID, userID int) (bool, error) {
	return c.cachedBool(ctx, adminKey(groupID, userID), func() (bool, error) {
		return c.Database.IsGroupAdmin(ctx, groupID, userID)
	})
}

func (c *CachedDatabase) AddMember(ctx context.Context, groupID, userID int, isAdmin bool) error {
	if err := c.Database.AddMember(ctx, groupID, userID, isAdmin); err != nil {
		return err
	}
	c.invalidate(ctx, groupID, userID)
	return nil
}

func (c *CachedDatabase) RemoveMember(ctx context.Context, groupID, userID int) error {
	if err := c.Database.RemoveMember(ctx, groupID, userID); err != nil {
		return err
	}
	c.invalidate(ctx, groupID, userID)
	return nil
}

func (c *CachedDatabase) SetAdmin(ctx context.Context, groupID, userID int, isAdmin bool) error {
	if err := c.Database.SetAdmin(ctx, groupID, userID, isAdmin); err != nil {
		return err
	}
	c.invalidate(ctx, groupID, userID)
	return nil
}

func (c *CachedDatabase) cachedBool(ctx context.Context, key string, load func() (bool, error)) (bool, error) {
	fill := false
	cached, err := c.store.Get(ctx, key)
	switch {
	case err == nil && cached != tombstone:
		return cached == "1", nil
	case err == nil:
		// recently invalidated; read through without filling
	case errors.Is(err, redis.Nil):
		fill = true
	default:
		logger.Warn("Membership cache read failed for %s: %v", key, err)
	}

	value, err := load()
	if err != nil || !fill {
		return value, err
	}

	encoded := "0"
	if value {
		encoded = "1"
	}
	// SetNX loses to a tombstone written while the load was in flight
	if _, err := c.store.SetNX(ctx, key, encoded, c.ttl); err != nil {
		logger.Warn("Membership cache write failed for %s: %v", key, err)
	}
	return value, nil
}

// invalidate tombstones both keys for one ttl, which outlives any load that
// was in flight when the mutation committed.
func (c *CachedDatabase) invalidate(ctx context.Context, groupID, userID int) {
	for _, key := range []string{memberKey(groupID, userID), adminKey(groupID, userID)} {
		if err := c.store.Set(ctx, key, tombstone, c.ttl); err != nil {
			logger.Error("Membership cache invalidation failed for %s: %v", key, err)
		}
	}
}
