package memory

import "sync"

// userLocks hands out one mutex per user key so that per-user state is
// mutated by at most one goroutine at a time while different users proceed
// independently. Locks are never released back; the per-user footprint is
// one mutex.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

// get returns the mutex for userID, creating it on first use.
func (l *userLocks) get(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[userID]
	if !ok {
		lk = &sync.Mutex{}
		l.locks[userID] = lk
	}
	return lk
}
