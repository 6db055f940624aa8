// Per-key locks, used for serializing writes to the same content hash
package mutexmap

import (
	"sync"
)

// Locks keyed by a string. A key only occupies memory while someone holds or waits for it.
type M struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu      sync.Mutex
	holders int // lock holder + waiters. entry is removed when this reaches zero
}

func New() *M {
	return &M{
		locks: map[string]*keyLock{},
	}
}

// blocks until the key is free. call the returned func to release
func (m *M) Lock(key string) func() {
	kl := m.acquireRef(key)
	kl.mu.Lock()

	return m.unlocker(key, kl)
}

// like Lock(), but gives up (second return false) if someone else holds the key
func (m *M) TryLock(key string) (func(), bool) {
	kl := m.acquireRef(key)

	if !kl.mu.TryLock() {
		m.releaseRef(key, kl)
		return nil, false
	}

	return m.unlocker(key, kl), true
}

// number of keys currently held or waited on
func (m *M) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.locks)
}

func (m *M) unlocker(key string, kl *keyLock) func() {
	var once sync.Once

	return func() {
		once.Do(func() {
			kl.mu.Unlock()
			m.releaseRef(key, kl)
		})
	}
}

func (m *M) acquireRef(key string) *keyLock {
	m.mu.Lock()
	defer m.mu.Unlock()

	kl, found := m.locks[key]
	if !found {
		kl = &keyLock{}
		m.locks[key] = kl
	}

	kl.holders++

	return kl
}

func (m *M) releaseRef(key string, kl *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kl.holders--
	if kl.holders == 0 {
		delete(m.locks, key)
	}
}
