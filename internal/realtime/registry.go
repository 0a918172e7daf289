package realtime

import "sync"

// Registry holds the process-local connection state: which connections are
// joined to which room, and which identity owns which connection. It is
// derived state over "who is connected right now" — rebuilt empty on restart,
// never persisted. The durable presence roster lives on the Collaboration
// aggregate instead.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]map[Conn]struct{}
	memberRooms map[Conn]map[string]struct{}
	identities  map[string]Conn
}

// NewRegistry constructs an empty registry. One instance is created at process
// start and handed to every connection handler.
func NewRegistry() *Registry {
	return &Registry{
		rooms:       make(map[string]map[Conn]struct{}),
		memberRooms: make(map[Conn]map[string]struct{}),
		identities:  make(map[string]Conn),
	}
}

// Join adds the connection to the room's member set. Idempotent.
func (r *Registry) Join(roomID string, conn Conn) {
	if roomID == "" || conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[Conn]struct{})
	}
	r.rooms[roomID][conn] = struct{}{}
	if r.memberRooms[conn] == nil {
		r.memberRooms[conn] = make(map[string]struct{})
	}
	r.memberRooms[conn][roomID] = struct{}{}
}

// Leave removes the connection from the room's member set. A no-op when the
// connection was never a member.
func (r *Registry) Leave(roomID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(roomID, conn)
}

func (r *Registry) leaveLocked(roomID string, conn Conn) {
	if members, ok := r.rooms[roomID]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	if rooms, ok := r.memberRooms[conn]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.memberRooms, conn)
		}
	}
}

// MembersOf returns the room's current connections; empty for unknown rooms.
// No ordering guarantee.
func (r *Registry) MembersOf(roomID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[roomID]
	if len(members) == 0 {
		return nil
	}
	result := make([]Conn, 0, len(members))
	for conn := range members {
		result = append(result, conn)
	}
	return result
}

// Identify registers the identity→connection mapping. Last registered wins;
// an earlier connection for the same identity is dropped from the table but
// not closed.
func (r *Registry) Identify(identity string, conn Conn) {
	if identity == "" || conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities[identity] = conn
}

// Resolve returns the live connection for the identity, or false when offline.
func (r *Registry) Resolve(identity string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.identities[identity]
	return conn, ok
}

// Forget removes every identity entry mapped to this connection. Used on
// disconnect; keeps a newer connection's mapping for the same identity intact.
func (r *Registry) Forget(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgetLocked(conn)
}

func (r *Registry) forgetLocked(conn Conn) {
	for identity, mapped := range r.identities {
		if mapped == conn {
			delete(r.identities, identity)
		}
	}
}

// Drop removes the connection from every room it joined and from the identity
// table, returning the affected room ids so the caller can notify remaining
// members. A second Drop for the same connection returns nothing, which keeps
// disconnect cleanup exactly-once.
func (r *Registry) Drop(conn Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.memberRooms[conn]
	affected := make([]string, 0, len(rooms))
	for roomID := range rooms {
		affected = append(affected, roomID)
		if members, ok := r.rooms[roomID]; ok {
			delete(members, conn)
			if len(members) == 0 {
				delete(r.rooms, roomID)
			}
		}
	}
	delete(r.memberRooms, conn)
	r.forgetLocked(conn)
	return affected
}
