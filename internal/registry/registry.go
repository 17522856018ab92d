// Package registry tracks live connections per user and the group rooms each
// connection has joined. It is the in-process source of truth for presence.
package registry

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ConnID identifies one live transport session.
type ConnID string

func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

// Sink accepts encoded frames for a single connection. Send must not block;
// it reports false when the frame could not be queued.
type Sink interface {
	Send(msg []byte) bool
}

// Conn is a registered connection handle.
type Conn struct {
	ID       ConnID
	UserID   int
	Username string
	Sink     Sink
}

// Removal describes what Unregister took down.
type Removal struct {
	Conn Conn
	// LastConnection is true when the user went from one connection to none.
	LastConnection bool
	// Rooms the connection was subscribed to, sorted ascending.
	Rooms []int
}

type entry struct {
	conn  Conn
	rooms map[int]struct{}
}

// Registry is safe for concurrent use. A single lock guards the user, connection
// and room indices so a lookup never observes a half-removed handle.
type Registry struct {
	mu     sync.RWMutex
	byUser map[int]map[ConnID]*entry
	byConn map[ConnID]*entry
	rooms  map[int]map[ConnID]*entry
}

func New() *Registry {
	return &Registry{
		byUser: make(map[int]map[ConnID]*entry),
		byConn: make(map[ConnID]*entry),
		rooms:  make(map[int]map[ConnID]*entry),
	}
}

// Register adds conn to its user's connection set. It returns true when this
// was the user's first connection. Registering the same handle twice is a no-op.
func (r *Registry) Register(conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byConn[conn.ID]; exists {
		return false
	}

	e := &entry{conn: conn, rooms: make(map[int]struct{})}
	r.byConn[conn.ID] = e

	conns := r.byUser[conn.UserID]
	if conns == nil {
		conns = make(map[ConnID]*entry)
		r.byUser[conn.UserID] = conns
	}
	conns[conn.ID] = e
	return len(conns) == 1
}

// Unregister removes the handle and all of its room subscriptions. ok is false
// for an unknown handle.
func (r *Registry) Unregister(id ConnID) (removal Removal, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.byConn[id]
	if !exists {
		return Removal{}, false
	}
	delete(r.byConn, id)

	rooms := make([]int, 0, len(e.rooms))
	for groupID := range e.rooms {
		r.removeFromRoom(groupID, id)
		rooms = append(rooms, groupID)
	}
	sort.Ints(rooms)
	e.rooms = nil

	last := false
	if conns := r.byUser[e.conn.UserID]; conns != nil {
		delete(conns, id)
		if len(conns) == 0 {
			delete(r.byUser, e.conn.UserID)
			last = true
		}
	}

	return Removal{Conn: e.conn, LastConnection: last, Rooms: rooms}, true
}

func (r *Registry) IsOnline(userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// ConnectionsFor returns every live handle of the user, or nil when offline.
func (r *Registry) ConnectionsFor(userID int) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return collect(r.byUser[userID])
}

// OnlineUserIDs returns a sorted snapshot of users with at least one connection.
func (r *Registry) OnlineUserIDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int, 0, len(r.byUser))
	for userID := range r.byUser {
		ids = append(ids, userID)
	}
	sort.Ints(ids)
	return ids
}

func (r *Registry) Lookup(id ConnID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byConn[id]
	if !ok {
		return Conn{}, false
	}
	return e.conn, true
}

// Connections returns every live handle.
func (r *Registry) Connections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return collect(r.byConn)
}

// ConnectionCount returns the number of live handles across all users.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// JoinRoom subscribes the handle to a group room. It returns false if the
// handle is unknown or already subscribed.
func (r *Registry) JoinRoom(id ConnID, groupID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byConn[id]
	if !ok {
		return false
	}
	if _, joined := e.rooms[groupID]; joined {
		return false
	}
	e.rooms[groupID] = struct{}{}

	members := r.rooms[groupID]
	if members == nil {
		members = make(map[ConnID]*entry)
		r.rooms[groupID] = members
	}
	members[id] = e
	return true
}

// LeaveRoom unsubscribes the handle. It returns false if it was not subscribed.
func (r *Registry) LeaveRoom(id ConnID, groupID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byConn[id]
	if !ok {
		return false
	}
	if _, joined := e.rooms[groupID]; !joined {
		return false
	}
	delete(e.rooms, groupID)
	r.removeFromRoom(groupID, id)
	return true
}

// LeaveRoomForUser unsubscribes every handle of the user from the room and
// returns the handles that were removed.
func (r *Registry) LeaveRoomForUser(userID, groupID int) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []Conn
	for id, e := range r.byUser[userID] {
		if _, joined := e.rooms[groupID]; !joined {
			continue
		}
		delete(e.rooms, groupID)
		r.removeFromRoom(groupID, id)
		removed = append(removed, e.conn)
	}
	return removed
}

// RoomConnections returns the handles subscribed to the group room.
func (r *Registry) RoomConnections(groupID int) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return collect(r.rooms[groupID])
}

// RoomsFor returns the sorted group ids the handle is subscribed to.
func (r *Registry) RoomsFor(id ConnID) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byConn[id]
	if !ok {
		return nil
	}
	rooms := make([]int, 0, len(e.rooms))
	for groupID := range e.rooms {
		rooms = append(rooms, groupID)
	}
	sort.Ints(rooms)
	return rooms
}

// removeFromRoom must be called with mu held.
func (r *Registry) removeFromRoom(groupID int, id ConnID) {
	members := r.rooms[groupID]
	if members == nil {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, groupID)
	}
}

func collect(set map[ConnID]*entry) []Conn {
	if len(set) == 0 {
		return nil
	}
	out := make([]Conn, 0, len(set))
	for _, e := range set {
		out = append(out, e.conn)
	}
	return out
}
