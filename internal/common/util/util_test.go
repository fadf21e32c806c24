package util

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewThreadsafeRand_SameSeedSameSequence(t *testing.T) {
	a := NewThreadsafeRand(42)
	b := NewThreadsafeRand(42)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Int63(), b.Int63())
	}
}

func TestNewULID_Ordered(t *testing.T) {
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = NewULID()
	}
	assert.True(t, sort.StringsAreSorted(ids))
	seen := make(map[string]bool)
	for _, id := range ids {
		assert.False(t, seen[id])
		assert.Len(t, id, 26)
		seen[id] = true
	}
}
