package chat

import (
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTempIDs_Format(t *testing.T) {
	var g TempIDs
	id := g.Next(time.Unix(0, 1700000000000000000))
	assert.Equal(t, "temp-1700000000000000000", id)
}

func TestTempIDs_SameInstantStillIncreases(t *testing.T) {
	var g TempIDs
	now := testEpoch

	first := g.Next(now)
	second := g.Next(now)
	third := g.Next(now.Add(-time.Second))

	assert.NotEqual(t, first, second)
	assert.NotEqual(t, second, third)
	assert.Equal(t, "temp-"+strconv.FormatInt(now.UnixNano()+1, 10), second)
	assert.Equal(t, "temp-"+strconv.FormatInt(now.UnixNano()+2, 10), third)
}

func TestTempIDs_ConcurrentUnique(t *testing.T) {
	var g TempIDs
	var mu sync.Mutex
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := g.Next(testEpoch)
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, 1000)
	for id := range seen {
		assert.True(t, strings.HasPrefix(id, "temp-"))
	}
}
