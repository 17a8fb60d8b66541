package session

import (
	"context"
	"sync"
)

// Locker hands out one mutex per session id so that a whole exchange on a
// session runs without interleaving. Entries are dropped once nobody holds
// or waits on them.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

// Lock blocks until the session is free or ctx is done. The returned
// function releases the lock and is safe to call more than once.
func (l *Locker) Lock(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[sessionID]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[sessionID] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-kl.ch
				l.release(sessionID, kl)
			})
		}, nil
	case <-ctx.Done():
		l.release(sessionID, kl)
		return nil, ctx.Err()
	}
}

func (l *Locker) release(sessionID string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, sessionID)
	}
}

// Len reports how many session ids currently have holders or waiters.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
