package relay

import (
	"sort"
	"sync"
)

// Registry is the shared identity -> session directory. All mutation is
// serialized on one mutex, held only for the map access and never across a
// network send.
type Registry struct {
	mu      sync.Mutex
	members map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		members: make(map[string]*Session),
	}
}

// TryRegister atomically claims name for sess. Concurrent callers with the
// same name see exactly one success.
func (r *Registry) TryRegister(name string, sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.members[name]; taken {
		return false
	}
	r.members[name] = sess
	return true
}

// Deregister removes name if present. Idempotent.
func (r *Registry) Deregister(name string) {
	r.mu.Lock()
	delete(r.members, name)
	r.mu.Unlock()
}

// Lookup may be stale the instant it returns; a failed send to the result
// means the recipient is gone.
func (r *Registry) Lookup(name string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.members[name]
	return sess, ok
}

// Identities returns a sorted snapshot of every registered name.
func (r *Registry) Identities() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.members))
	for name := range r.members {
		names = append(names, name)
	}
	r.mu.Unlock()

	sort.Strings(names)
	return names
}

// snapshot returns every session except the named one, for broadcasting
// outside the lock.
func (r *Registry) snapshot(exclude string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := make([]*Session, 0, len(r.members))
	for name, sess := range r.members {
		if name == exclude {
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}
