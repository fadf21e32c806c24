package util

import (
	"math/rand"
	"sync"
)

// LockedSource is a rand.Source guarded by a mutex.
type LockedSource struct {
	lk  sync.Mutex
	src rand.Source
}

func (r *LockedSource) Int63() (n int64) {
	r.lk.Lock()
	n = r.src.Int63()
	r.lk.Unlock()
	return
}

func (r *LockedSource) Seed(seed int64) {
	r.lk.Lock()
	r.src.Seed(seed)
	r.lk.Unlock()
}

// NewThreadsafeRand returns a seeded *rand.Rand that can be shared between goroutines. Two instances created with the
// same seed produce the same sequence.
func NewThreadsafeRand(seed int64) *rand.Rand {
	return rand.New(&LockedSource{src: rand.NewSource(seed)})
}
