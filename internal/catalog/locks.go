package catalog

import "sync"

// Locks is a keyed mutex. Each project gets its own critical section;
// entries are reference counted and released when no goroutine holds or
// waits on them.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocks returns an empty keyed mutex.
func NewLocks() *Locks {
	return &Locks{locks: make(map[string]*keyedLock)}
}

// Lock blocks until the critical section for key is held and returns its
// release function.
func (l *Locks) Lock(key string) (unlock func()) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &keyedLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.locks, key)
			}
			l.mu.Unlock()
		})
	}
}

func (l *Locks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
