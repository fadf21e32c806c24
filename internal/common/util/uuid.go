package util

import (
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

var (
	entropy = ulid.Monotonic(NewThreadsafeRand(time.Now().UnixNano()), 0)
	m       sync.Mutex
)

// NewULID returns a lower-case ULID. Ids created by the same process sort in creation order.
func NewULID() string {
	m.Lock()
	defer m.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Now(), entropy).String())
}
