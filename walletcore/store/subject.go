package store

import (
	"context"
	"sync"
)

// Subject holds a value and pushes every change to its subscribers.
// New subscribers get the current snapshot right away.
type Subject[T any] struct {
	mu     sync.Mutex
	value  T
	clone  func(T) T
	subs   map[uint64]func(T)
	nextID uint64

	// deliver serializes notifications so subscribers see changes in order
	deliver sync.Mutex
}

// NewSubject creates a subject. clone is used for every snapshot handed out.
func NewSubject[T any](initial T, clone func(T) T) *Subject[T] {
	return &Subject[T]{value: initial, clone: clone, subs: make(map[uint64]func(T))}
}

// Value returns a snapshot of the current value
func (s *Subject[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clone(s.value)
}

// Next replaces the value and notifies subscribers
func (s *Subject[T]) Next(v T) {
	s.Update(func(T) T { return v })
}

// Update applies f to the current value under lock and notifies subscribers with the result.
func (s *Subject[T]) Update(f func(T) T) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	s.value = f(s.value)
	snapshot := s.value
	subs := make([]func(T), 0, len(s.subs))
	for _, cb := range s.subs {
		subs = append(subs, cb)
	}
	s.mu.Unlock()

	for _, cb := range subs {
		cb(s.clone(snapshot))
	}
}

// Subscribe registers cb and calls it with the current snapshot. The returned func unsubscribes.
func (s *Subject[T]) Subscribe(cb func(T)) func() {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = cb
	snapshot := s.clone(s.value)
	s.mu.Unlock()

	cb(snapshot)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Watch is Subscribe over a channel. Slow readers miss intermediate snapshots, never the latest one.
// The channel is closed when ctx is done.
func (s *Subject[T]) Watch(ctx context.Context) <-chan T {
	ch := make(chan T, 1)
	var closeMu sync.Mutex
	closed := false

	unsubscribe := s.Subscribe(func(v T) {
		closeMu.Lock()
		defer closeMu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- v:
		default:
			// drop the stale snapshot and keep the newest
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	})

	go func() {
		<-ctx.Done()
		unsubscribe()
		closeMu.Lock()
		closed = true
		close(ch)
		closeMu.Unlock()
	}()
	return ch
}

// CloneMap copies a map of pointers with the given element clone
func CloneMap[K comparable, V any](m map[K]V, clone func(V) V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = clone(v)
	}
	return out
}
