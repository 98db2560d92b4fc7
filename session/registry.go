package session

import (
	"errors"
	"math"
	"sort"
	"sync/atomic"
)

// ErrIDsExhausted is returned by Allocate once every session id has been handed out.
var ErrIDsExhausted = errors.New("session ids exhausted")

// Registry maps session ids to the workers owning them.
//
// The map itself is not synchronized: it belongs to the dispatcher goroutine,
// which is the only one adding or removing sessions. Allocate is safe for
// concurrent use.
type Registry struct {
	last    atomic.Uint32
	workers map[uint32]*Worker
}

// NewRegistry returns an empty registry whose first allocated id is 1.
func NewRegistry() *Registry {
	return NewRegistryAfter(0)
}

// NewRegistryAfter returns an empty registry whose first allocated id is last+1.
func NewRegistryAfter(last uint32) *Registry {
	r := &Registry{
		workers: map[uint32]*Worker{},
	}
	r.last.Store(last)

	return r
}

// Allocate returns the next session id. Ids are never reused: once
// math.MaxUint32 has been handed out, Allocate fails with ErrIDsExhausted.
func (r *Registry) Allocate() (uint32, error) {
	for {
		cur := r.last.Load()
		if cur == math.MaxUint32 {
			return 0, ErrIDsExhausted
		}

		if r.last.CompareAndSwap(cur, cur+1) {
			return cur + 1, nil
		}
	}
}

// Add registers w under its session id.
func (r *Registry) Add(w *Worker) {
	r.workers[w.ID()] = w
}

// Lookup returns the worker owning id.
func (r *Registry) Lookup(id uint32) (*Worker, bool) {
	w, ok := r.workers[id]
	return w, ok
}

// Remove forgets id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id uint32) {
	delete(r.workers, id)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	return len(r.workers)
}

// IDs returns the registered session ids in ascending order.
func (r *Registry) IDs() []uint32 {
	ids := make([]uint32, 0, len(r.workers))
	for id := range r.workers {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}
