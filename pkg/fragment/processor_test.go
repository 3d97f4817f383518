package fragment

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessor_CountersStartAtOneAndAreIndependent(t *testing.T) {
	p := New("run-1")

	assert.Equal(t, 1, p.NextFactID())
	assert.Equal(t, 2, p.NextFactID())
	assert.Equal(t, 1, p.NextEntityID())
	assert.Equal(t, 1, p.NextQuoteID())
	assert.Equal(t, 1, p.NextDatumID())
	assert.Equal(t, 3, p.NextFactID())

	assert.Equal(t, Counts{Facts: 3, Entities: 1, Quotes: 1, Data: 1}, p.Counts())
}

func TestProcessor_VerifyToken(t *testing.T) {
	p := New("run-1")

	require.NoError(t, p.VerifyToken("run-1"))

	err := p.VerifyToken("run-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-1")
	assert.Contains(t, err.Error(), "run-2")
}

func TestProcessor_ConcurrentAllocationNeverDuplicates(t *testing.T) {
	p := New("run-1")

	const n = 200
	ids := make([]int, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			ids[i] = p.NextEntityID()
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for _, id := range ids {
		require.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Equal(t, n, p.Counts().Entities)
}

func TestIDSet_HasPtr(t *testing.T) {
	s := NewIDSet([]int{1, 2, 3})

	assert.True(t, s.Has(2))
	assert.False(t, s.Has(5))

	assert.True(t, s.HasPtr(nil))

	two := 2
	assert.True(t, s.HasPtr(&two))

	five := 5
	assert.False(t, s.HasPtr(&five))
}
