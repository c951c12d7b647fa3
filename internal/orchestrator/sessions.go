package orchestrator

import "sync"

// Sessions keeps one Session per conversation key, created on first use.
type Sessions struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	factory  func() *Session
}

func NewSessions(factory func() *Session) *Sessions {
	return &Sessions{
		sessions: make(map[int64]*Session),
		factory:  factory,
	}
}

func (r *Sessions) Get(key int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	if !ok {
		s = r.factory()
		r.sessions[key] = s
	}
	return s
}

// Drop forgets a session. A request already running on it still completes
// and is answered, but the next Get starts from a fresh session.
func (r *Sessions) Drop(key int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, key)
}

func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
