package service

import "sync"

// claimLocks is a keyed mutex: one lock per claim, dropped once no
// goroutine holds or waits for it.
type claimLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newClaimLocks() *claimLocks {
	return &claimLocks{locks: make(map[string]*refLock)}
}

// lock blocks until the claim's lock is held and returns its release func
func (l *claimLocks) lock(claimID string) func() {
	l.mu.Lock()
	rl, ok := l.locks[claimID]
	if !ok {
		rl = &refLock{}
		l.locks[claimID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, claimID)
		}
		l.mu.Unlock()
	}
}

func (l *claimLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
