package utils

import (
	"hash/fnv"
	"sync"
)

const defaultStripes = 64

// KeyedRWMutex is a fixed set of RWMutex stripes selected by key hash.
// Two keys may share a stripe; a key always maps to the same stripe.
type KeyedRWMutex struct {
	stripes []sync.RWMutex
}

func NewKeyedRWMutex(stripes int) *KeyedRWMutex {
	if stripes <= 0 {
		stripes = defaultStripes
	}
	return &KeyedRWMutex{stripes: make([]sync.RWMutex, stripes)}
}

func (k *KeyedRWMutex) stripe(key string) *sync.RWMutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &k.stripes[h.Sum32()%uint32(len(k.stripes))]
}

// Lock takes the exclusive lock for key and returns its release.
func (k *KeyedRWMutex) Lock(key string) (unlock func()) {
	m := k.stripe(key)
	m.Lock()
	return m.Unlock
}

// RLock takes the shared lock for key and returns its release.
func (k *KeyedRWMutex) RLock(key string) (unlock func()) {
	m := k.stripe(key)
	m.RLock()
	return m.RUnlock
}
