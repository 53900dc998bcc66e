package model

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBID_UniqueAndLexicallyNonDecreasing(t *testing.T) {
	const n = 200
	ids := make([]string, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			ids[i] = NewBID()
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for _, id := range ids {
		_, dup := seen[id]
		assert.False(t, dup, "bid %q generated twice", id)
		seen[id] = struct{}{}
	}

	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	serial := make([]string, n)
	for i := range serial {
		serial[i] = NewBID()
	}
	for i := 1; i < len(serial); i++ {
		assert.LessOrEqual(t, serial[i-1], serial[i], "serially generated bids must be lexicographically non-decreasing")
	}
}
