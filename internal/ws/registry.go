// internal/ws/registry.go
package ws

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/typebattle/typebattle/internal/protocol"
)

// Registry tracks live sessions and their room-group membership, exposing the
// send-to-one and broadcast-to-group primitives the room service runs on.
// It satisfies room.Transport.
type Registry struct {
	mu       sync.Mutex
	log      *logrus.Logger
	sessions map[string]*Session
	groups   map[string]map[string]*Session // room code -> session ID -> session
}

// NewRegistry initializes an empty registry.
func NewRegistry(log *logrus.Logger) *Registry {
	return &Registry{
		log:      log,
		sessions: make(map[string]*Session),
		groups:   make(map[string]map[string]*Session),
	}
}

// Add registers a live session.
func (r *Registry) Add(sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID] = sess
}

// Remove drops a session and its every group membership. The session's queue
// is closed so a lingering write pump exits.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	sess, ok := r.sessions[connID]
	delete(r.sessions, connID)
	for code, members := range r.groups {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.groups, code)
		}
	}
	r.mu.Unlock()

	if ok {
		sess.Close()
	}
}

// Join adds the connection to a room's broadcast group. Re-joining is a no-op,
// so room-scoped handlers call it on every event to keep reconnected clients
// in their group.
func (r *Registry) Join(roomCode, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[connID]
	if !ok {
		return
	}
	members, ok := r.groups[roomCode]
	if !ok {
		members = make(map[string]*Session)
		r.groups[roomCode] = members
	}
	members[connID] = sess
}

// Leave removes the connection from a room's broadcast group.
func (r *Registry) Leave(roomCode, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.groups[roomCode]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.groups, roomCode)
	}
}

// ToConn sends to a single connection, if it is still live.
func (r *Registry) ToConn(connID string, msg protocol.ServerMessage) {
	r.mu.Lock()
	sess, ok := r.sessions[connID]
	r.mu.Unlock()
	if ok {
		sess.Send(msg)
	}
}

// ToRoom broadcasts to every member of a room's group.
func (r *Registry) ToRoom(roomCode string, msg protocol.ServerMessage) {
	r.mu.Lock()
	members := r.groups[roomCode]
	targets := make([]*Session, 0, len(members))
	for _, sess := range members {
		targets = append(targets, sess)
	}
	r.mu.Unlock()

	for _, sess := range targets {
		sess.Send(msg)
	}
}
