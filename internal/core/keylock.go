package core

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// KeyedMutex serializes work per key. Event handlers and the sweep take the
// same lock before touching a key's state, so a read-suspend-write sequence
// on one key is never interleaved with another on the same key. An entry
// lives only while some caller holds or waits for it.
type KeyedMutex struct {
	locks *xsync.MapOf[string, *keyLock]
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty lock table
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: xsync.NewMapOf[string, *keyLock]()}
}

// Lock acquires the lock of key and returns its release function
func (k *KeyedMutex) Lock(key string) func() {
	entry, _ := k.locks.Compute(key, func(old *keyLock, loaded bool) (*keyLock, bool) {
		if !loaded {
			old = &keyLock{}
		}
		old.refs++
		return old, false
	})
	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		k.locks.Compute(key, func(old *keyLock, loaded bool) (*keyLock, bool) {
			if !loaded {
				return old, true
			}
			old.refs--
			return old, old.refs == 0
		})
	}
}

// Size returns the number of keys currently held or awaited
func (k *KeyedMutex) Size() int {
	return k.locks.Size()
}

func guildKey(guildID string) string {
	return guildID
}

func memberKey(guildID, userID string) string {
	return guildID + ":" + userID
}
