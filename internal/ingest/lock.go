package ingest

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// keyedLock hands out one exclusive slot per collection id. Entries are
// dropped once nobody holds or waits on them.
type keyedLock struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  *semaphore.Weighted
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{slots: make(map[string]*slot)}
}

// Lock blocks until id is free or ctx is done. The returned func releases it.
func (l *keyedLock) Lock(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[id]
	if !ok {
		s = &slot{sem: semaphore.NewWeighted(1)}
		l.slots[id] = s
	}
	s.refs++
	l.mu.Unlock()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		l.drop(id, s)
		return nil, err
	}
	return func() {
		s.sem.Release(1)
		l.drop(id, s)
	}, nil
}

func (l *keyedLock) drop(id string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, id)
	}
}

func (l *keyedLock) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
