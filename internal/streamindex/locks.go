package streamindex

import (
	"context"
	"sync"
)

// Locks is a keyed lock table: one exclusive section per stream name.
// Entries are reference counted and dropped when no holder or waiter is left.
type Locks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func NewLocks() *Locks {
	return &Locks{m: make(map[string]*keyLock)}
}

// Lock acquires the section for name. It returns ctx.Err() if ctx is done
// first. The returned function releases the section and must be called once.
func (l *Locks) Lock(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.m[name]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.m[name] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(name, kl)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.sem
			l.release(name, kl)
		})
	}, nil
}

func (l *Locks) release(name string, kl *keyLock) {
	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.m, name)
	}
	l.mu.Unlock()
}

// Len returns the number of names currently held or awaited.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
