package services

import "sync"

// keyedMutex serializes operations per key. Mutexes are created lazily
// and never removed: the set of live handles is small enough that the
// map does not need eviction.
type keyedMutex struct {
	locks sync.Map
}

func (km *keyedMutex) lock(key string) func() {
	v, _ := km.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
