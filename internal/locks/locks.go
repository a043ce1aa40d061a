// Package locks serializes booking mutations per trip.
package locks

import (
	"context"
	"sync"
)

// TripLocker hands out an exclusive lock per trip id. The returned unlock
// func is safe to call more than once.
type TripLocker interface {
	Lock(ctx context.Context, tripID int64) (unlock func(), err error)
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex is an in-process TripLocker. Entries are dropped once no
// goroutine holds or waits for them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[int64]*keyedEntry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: map[int64]*keyedEntry{}}
}

func (k *KeyedMutex) Lock(ctx context.Context, tripID int64) (func(), error) {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = map[int64]*keyedEntry{}
	}
	e, ok := k.entries[tripID]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.entries[tripID] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(tripID, e)
		return nil, ctx.Err()
	}

	return releaseOnce(func() {
		<-e.ch
		k.release(tripID, e)
	}), nil
}

// releaseOnce makes an unlock func safe to call repeatedly from any goroutine.
func releaseOnce(release func()) func() {
	var once sync.Once
	return func() { once.Do(release) }
}

func (k *KeyedMutex) release(tripID int64, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, tripID)
	}
}

// size is used by tests to check idle entries are dropped.
func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
