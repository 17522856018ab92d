package services

import (
	"encoding/json"
	"sync"
	"testing"

	"chat-realtime/internal/database/dbmock"
	"chat-realtime/internal/models"
	"chat-realtime/internal/registry"
	"chat-realtime/pkg/logger"

	"github.com/stretchr/testify/require"
)

// recordingSink captures every frame queued for one connection.
type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
	full   bool
}

func (s *recordingSink) Send(msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.frames = append(s.frames, msg)
	return true
}

func (s *recordingSink) events(t *testing.T) []models.InboundEvent {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.InboundEvent, 0, len(s.frames))
	for _, f := range s.frames {
		var ev models.InboundEvent
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}

// ofType decodes the payloads of every captured event of the given type.
func ofType[T any](t *testing.T, s *recordingSink, eventType models.EventType) []T {
	t.Helper()
	var out []T
	for _, ev := range s.events(t) {
		if ev.Type != eventType {
			continue
		}
		var payload T
		require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		out = append(out, payload)
	}
	return out
}

type testEnv struct {
	db       *dbmock.MockDatabase
	registry *registry.Registry
	direct   *DirectService
	groups   *GroupService
	presence *PresenceService
	typing   *TypingService
}

func newTestEnv() *testEnv {
	logger.SetNewNop()
	db := new(dbmock.MockDatabase)
	reg := registry.New()
	groups := NewGroupService(db, reg, 50)
	return &testEnv{
		db:       db,
		registry: reg,
		direct:   NewDirectService(db, reg, 50),
		groups:   groups,
		presence: NewPresenceService(reg, groups),
		typing:   NewTypingService(reg),
	}
}

// connect registers a new connection for the user without going through
// presence announcements.
func (e *testEnv) connect(userID int, username string) (registry.Conn, *recordingSink) {
	sink := &recordingSink{}
	conn := registry.Conn{ID: registry.NewConnID(), UserID: userID, Username: username, Sink: sink}
	e.registry.Register(conn)
	return conn, sink
}
