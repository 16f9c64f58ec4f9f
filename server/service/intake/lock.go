package intake

import "sync"

// sessionLocks serializes mutations per session id. At most one
// in-flight mutation per session is allowed; the lock is not held across
// the external model call.
type sessionLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{entries: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for the given session id, creating it on
// first use.
func (l *sessionLocks) Lock(id string) {
	l.mu.Lock()
	entry, ok := l.entries[id]
	if !ok {
		entry = &lockEntry{}
		l.entries[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

// Unlock releases the mutex for the given session id and drops the
// entry once no caller references it.
func (l *sessionLocks) Unlock(id string) {
	l.mu.Lock()
	entry, ok := l.entries[id]
	if ok {
		entry.refs--
		if entry.refs <= 0 {
			delete(l.entries, id)
		}
	}
	l.mu.Unlock()

	if ok {
		entry.mu.Unlock()
	}
}
