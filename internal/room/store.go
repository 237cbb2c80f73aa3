// internal/room/store.go
package room

// Store is the in-memory room table, sole owner of Room lifecycle. It is not
// safe for concurrent use on its own: the Service serializes every access
// behind its mutex, which also makes room deletion and slot mutation mutually
// exclusive.
type Store struct {
	rooms map[string]*Room
}

// NewStore initializes an empty room table.
func NewStore() *Store {
	return &Store{rooms: make(map[string]*Room)}
}

// Get retrieves a room by code.
func (s *Store) Get(code string) (*Room, bool) {
	r, ok := s.rooms[code]
	return r, ok
}

// Add inserts a room. Returns false without overwriting when the code is
// already taken.
func (s *Store) Add(r *Room) bool {
	if _, exists := s.rooms[r.Code]; exists {
		return false
	}
	s.rooms[r.Code] = r
	return true
}

// Delete removes a room by code.
func (s *Store) Delete(code string) {
	delete(s.rooms, code)
}

// Len reports the number of live rooms.
func (s *Store) Len() int {
	return len(s.rooms)
}

// Each visits every room. The visitor may delete rooms via the Service but
// must not add any.
func (s *Store) Each(fn func(*Room)) {
	for _, r := range s.rooms {
		fn(r)
	}
}
