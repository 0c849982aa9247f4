package realtime

import "sync"

// Registry tracks live sessions and their room memberships. It is the only
// shared mutable state in the realtime core; all mutation goes through
// Register, Join and Deregister. Lookups are read-heavy (one broadcaster,
// many connection lifecycles), hence the RWMutex.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[string]map[string]*Session
	joined   map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[string]*Session),
		joined:   make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	r.joined[s.ID] = make(map[string]struct{})
}

// Join adds the session to a room. Joining twice is a no-op.
func (r *Registry) Join(sessionID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	if _, ok := r.joined[sessionID][room]; ok {
		return
	}
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]*Session)
	}
	r.rooms[room][sessionID] = s
	r.joined[sessionID][room] = struct{}{}
}

// Deregister removes the session and every membership it holds. Called on
// disconnect detection; after it returns no room retains the session, so
// a later emit never targets the dead connection.
func (r *Registry) Deregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.joined[sessionID] {
		delete(r.rooms[room], sessionID)
		if len(r.rooms[room]) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(r.joined, sessionID)
	delete(r.sessions, sessionID)
}

// MembersOf snapshots the sessions currently in a room.
func (r *Registry) MembersOf(room string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]*Session, 0, len(members))
	for _, s := range members {
		out = append(out, s)
	}
	return out
}

// Rooms lists the rooms the session currently belongs to.
func (r *Registry) Rooms(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.joined[sessionID]))
	for room := range r.joined[sessionID] {
		out = append(out, room)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
