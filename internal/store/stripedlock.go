package store

import (
	"hash/fnv"
	"sync"
)

// stripeCount bounds the number of locks.
// Two repositories can hash to the same stripe and then contend with each
// other, concurrency is reduced but bounded, correctness is unaffected.
const stripeCount = 16

type stripedLock struct {
	stripes [stripeCount]sync.Mutex
}

func (l *stripedLock) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	// fnv hash writes never fail
	_, _ = h.Write([]byte(key))

	return &l.stripes[h.Sum32()%stripeCount]
}

// Lock acquires the stripe for key and returns the unlock function.
// The lock blocks without timeout.
func (l *stripedLock) Lock(key string) (unlock func()) {
	m := l.stripe(key)
	m.Lock()

	return m.Unlock
}
