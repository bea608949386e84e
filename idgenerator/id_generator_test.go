package idgenerator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdGenerator(t *testing.T) {
	t.Run("first id is start plus one", func(t *testing.T) {
		gen := NewIdGenerator(0)
		require.NotNil(t, gen)
		assert.Equal(t, uint32(1), gen.Id())
	})

	t.Run("custom start value", func(t *testing.T) {
		gen := NewIdGenerator(100)
		assert.Equal(t, uint32(101), gen.Id())
		assert.Equal(t, uint32(102), gen.Id())
	})
}

func TestIdGenerator_Id_concurrent(t *testing.T) {
	gen := NewIdGenerator(0)
	const n = 500
	ids := make([]uint32, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		go func(idx int) {
			defer wg.Done()
			ids[idx] = gen.Id()
		}(i)
	}
	wg.Wait()

	seen := make(map[uint32]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		assert.NotZero(t, id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "guest-1", Label("guest", 1))
	assert.Equal(t, "guest-4294967295", Label("guest", ^uint32(0)))
	assert.Equal(t, "-3", Label("", 3))
}
