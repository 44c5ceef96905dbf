package engine

import "sync"

// keyedMutex hands out one mutex per room id. Entries are never removed;
// rooms are never deleted, so the map is bounded by the room directory.
type keyedMutex struct {
	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.RLock()
	m, ok := k.locks[key]
	k.mu.RUnlock()

	if !ok {
		k.mu.Lock()
		// Double-check after acquiring the write lock.
		if m, ok = k.locks[key]; !ok {
			m = &sync.Mutex{}
			k.locks[key] = m
		}
		k.mu.Unlock()
	}

	m.Lock()
	return m.Unlock
}
