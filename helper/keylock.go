package helper

import "sync"

// KeyedMutex serializes work per string key. Callers holding different
// keys proceed in parallel; callers holding the same key are serialized.
// Used to guarantee single-writer semantics for entity creation keyed by
// (type, normalized name) and connection upserts keyed by
// (restaurant, dish, selective signature).
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: map[string]*keyedLock{},
	}
}

// Lock acquires the lock for key and returns the matching unlock function.
// Lock entries are reference counted and removed once unused, so the table
// does not grow with the key space.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
