package lock

import (
	"sync"
)

// KeyedMutex provides mutual exclusion scoped to an arbitrary string key.
// Turns for the same session key must be serialized while turns for
// different keys run concurrently, so one process-wide mutex is too coarse
// and a mutex per struct field is too fine. Entries are reference counted
// and removed once the last holder releases, so the map does not grow with
// the number of keys ever seen.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		entries: make(map[string]*entry),
	}
}

// Lock acquires the mutex for key, blocking until it is available, and
// returns the function that releases it. Release on every exit path:
//
//	unlock := locks.Lock(key)
//	defer unlock()
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
