package room

import "sync"

// Locker serializes operations on a single room. Lock blocks until the room
// is free and returns the matching unlock.
type Locker interface {
	Lock(roomID string) (unlock func())
}

// Registry hands out one mutex per room. Entries are reference counted and
// dropped once nobody holds or waits on them, so idle rooms cost nothing.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*handle
}

type handle struct {
	mu   sync.Mutex
	refs int
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*handle)}
}

func (r *Registry) Lock(roomID string) func() {
	r.mu.Lock()
	h, ok := r.rooms[roomID]
	if !ok {
		h = &handle{}
		r.rooms[roomID] = h
	}
	h.refs++
	r.mu.Unlock()

	h.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Unlock()
			r.mu.Lock()
			h.refs--
			if h.refs == 0 {
				delete(r.rooms, roomID)
			}
			r.mu.Unlock()
		})
	}
}

// Len returns the number of rooms currently locked or awaited.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
