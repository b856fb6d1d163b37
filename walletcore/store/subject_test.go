package store_test

import (
	"context"
	"testing"

	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/store"
)

func cloneInts(m map[string]int) map[string]int {
	return store.CloneMap(m, func(v int) int { return v })
}

func TestSubjectSnapshotOnSubscribe(t *testing.T) {
	s := store.NewSubject(map[string]int{"a": 1}, cloneInts)

	var seen []map[string]int
	unsubscribe := s.Subscribe(func(v map[string]int) { seen = append(seen, v) })
	assert.Equal(t, len(seen), 1)
	assert.Equal(t, seen[0]["a"], 1)

	s.Update(func(m map[string]int) map[string]int {
		m["b"] = 2
		return m
	})
	assert.Equal(t, len(seen), 2)
	assert.Equal(t, seen[1]["b"], 2)

	// snapshots are copies
	seen[1]["b"] = 99
	assert.Equal(t, s.Value()["b"], 2)

	unsubscribe()
	unsubscribe()
	s.Next(map[string]int{})
	assert.Equal(t, len(seen), 2)
}

func TestSubjectWatchKeepsLatest(t *testing.T) {
	s := store.NewSubject(0, func(v int) int { return v })
	ctx, cancel := context.WithCancel(context.Background())

	ch := s.Watch(ctx)
	for i := 1; i <= 5; i++ {
		s.Next(i)
	}
	assert.Equal(t, <-ch, 5)

	cancel()
	for range ch {
	}
}
